// Package config loads habitcore settings from an optional TOML file and
// HABITCORE_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// BlobNone disables protocol archiving.
const BlobNone = "none"

// Config is the full runtime configuration.
type Config struct {
	Storage Storage `toml:"storage"`
	Blob    Blob    `toml:"blob"`
	HTTP    HTTP    `toml:"http"`
	Log     Log     `toml:"log"`
	// Timezone names the IANA location used to resolve effective days.
	// Empty means the process local zone.
	Timezone string `toml:"timezone"`
}

type Storage struct {
	Driver      string `toml:"driver"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
}

type Blob struct {
	Driver string `toml:"driver"`
	FSRoot string `toml:"fs_root"`
	S3     S3     `toml:"s3"`
}

type S3 struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	PathStyle       bool   `toml:"path_style"`
	Prefix          string `toml:"prefix"`
}

type HTTP struct {
	Addr            string   `toml:"addr"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type Log struct {
	Level string `toml:"level"`
}

// Duration decodes "5s" style strings.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Storage: Storage{
			Driver:      StorageSQLite,
			SQLitePath:  "habitcore.db",
			PostgresDSN: "postgres://localhost/habitcore?sslmode=disable",
		},
		Blob: Blob{
			Driver: BlobNone,
			FSRoot: "archives",
			S3:     S3{Region: "us-east-1"},
		},
		HTTP: HTTP{Addr: ":8080", ShutdownTimeout: Duration{10 * time.Second}},
		Log:  Log{Level: "info"},
	}
}

// Load reads path (when non-empty), applies process environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("HABITCORE_STORAGE_DRIVER", &cfg.Storage.Driver)
	str("HABITCORE_SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("HABITCORE_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	str("HABITCORE_BLOB_DRIVER", &cfg.Blob.Driver)
	str("HABITCORE_BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	str("HABITCORE_BLOB_S3_BUCKET", &cfg.Blob.S3.Bucket)
	str("HABITCORE_BLOB_S3_REGION", &cfg.Blob.S3.Region)
	str("HABITCORE_BLOB_S3_ENDPOINT", &cfg.Blob.S3.Endpoint)
	str("HABITCORE_BLOB_S3_ACCESS_KEY_ID", &cfg.Blob.S3.AccessKeyID)
	str("HABITCORE_BLOB_S3_SECRET_ACCESS_KEY", &cfg.Blob.S3.SecretAccessKey)
	str("HABITCORE_BLOB_S3_PREFIX", &cfg.Blob.S3.Prefix)
	str("HABITCORE_HTTP_ADDR", &cfg.HTTP.Addr)
	str("HABITCORE_LOG_LEVEL", &cfg.Log.Level)
	str("HABITCORE_TIMEZONE", &cfg.Timezone)
	if v, ok := lookup("HABITCORE_BLOB_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HABITCORE_BLOB_S3_PATH_STYLE: %w", err)
		}
		cfg.Blob.S3.PathStyle = b
	}
	if v, ok := lookup("HABITCORE_HTTP_SHUTDOWN_TIMEOUT"); ok && v != "" {
		if err := cfg.HTTP.ShutdownTimeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("HABITCORE_HTTP_SHUTDOWN_TIMEOUT: %w", err)
		}
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			errs = append(errs, errors.New("storage.sqlite_path required for sqlite driver"))
		}
	case StoragePostgres:
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			errs = append(errs, errors.New("storage.postgres_dsn required for postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case BlobNone, "memory":
	case "fs":
		if strings.TrimSpace(c.Blob.FSRoot) == "" {
			errs = append(errs, errors.New("blob.fs_root required for fs driver"))
		}
	case "s3":
		if strings.TrimSpace(c.Blob.S3.Bucket) == "" {
			errs = append(errs, errors.New("blob.s3.bucket required for s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr required"))
	}
	if c.HTTP.ShutdownTimeout.Duration < 0 {
		errs = append(errs, errors.New("http.shutdown_timeout must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
