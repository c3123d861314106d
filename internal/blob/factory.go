package blob

import (
	"context"
	"fmt"

	"habitcore/internal/config"
)

// Open builds the archive store selected by cfg. The "none" driver (or an
// empty one) disables archiving and yields a nil Store.
func Open(ctx context.Context, cfg config.Blob) (Store, error) {
	switch cfg.Driver {
	case "", config.BlobNone:
		return nil, nil
	case string(DriverFilesystem):
		return NewFilesystem(cfg.FSRoot)
	case string(DriverMemory):
		return NewMemory(), nil
	case string(DriverS3):
		return NewS3(ctx, S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PathStyle:       cfg.S3.PathStyle,
			Prefix:          cfg.S3.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
