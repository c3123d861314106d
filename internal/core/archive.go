package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"habitcore/internal/blob"
	"habitcore/pkg/domain"
)

const (
	archiveReasonReset  = "reset"
	archiveReasonDelete = "delete"

	archivePrefix     = "protocols/"
	archiveTimeLayout = "20060102T150405.000000000Z"
	archiveURLExpiry  = 15 * time.Minute
)

// ArchiveInfo describes one archived protocol snapshot.
type ArchiveInfo struct {
	Key        string    `json:"key"`
	ProtocolID string    `json:"protocolId"`
	Reason     string    `json:"reason"`
	ArchivedAt time.Time `json:"archivedAt"`
	SizeBytes  int64     `json:"sizeBytes"`
	URL        string    `json:"url,omitempty"`
}

func archiveKey(id, reason string, at time.Time) string {
	return fmt.Sprintf("%s%s/%s-%s.json", archivePrefix, id, at.UTC().Format(archiveTimeLayout), reason)
}

// parseArchiveKey splits protocols/<id>/<timestamp>-<reason>.json.
func parseArchiveKey(key string) (ArchiveInfo, bool) {
	rest, ok := strings.CutPrefix(key, archivePrefix)
	if !ok {
		return ArchiveInfo{}, false
	}
	id, name := path.Split(rest)
	id = strings.TrimSuffix(id, "/")
	stem, ok := strings.CutSuffix(name, ".json")
	if !ok || id == "" {
		return ArchiveInfo{}, false
	}
	ts, reason, ok := strings.Cut(stem, "-")
	if !ok {
		return ArchiveInfo{}, false
	}
	at, err := time.Parse(archiveTimeLayout, ts)
	if err != nil {
		return ArchiveInfo{}, false
	}
	return ArchiveInfo{Key: key, ProtocolID: id, Reason: reason, ArchivedAt: at}, true
}

// archiveSnapshot writes p to the archive store before a destructive change
// and returns the written key. Without an archive store it does nothing and
// returns an empty key.
func (s *Service) archiveSnapshot(ctx context.Context, p domain.Protocol, reason string, at time.Time) (string, error) {
	if s.archive == nil {
		return "", nil
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode archive: %w", err)
	}
	key := archiveKey(p.ID, reason, at)
	_, err = s.archive.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"protocol-id": p.ID,
			"reason":      reason,
		},
	})
	if err != nil {
		return "", domain.PersistenceError{Op: "archive", Err: err}
	}
	s.logger.Info("protocol archived", "protocol_id", p.ID, "reason", reason, "key", key)
	return key, nil
}

// discardArchive removes a snapshot whose destructive change did not commit.
// Cleanup failures are logged; the caller's error wins.
func (s *Service) discardArchive(ctx context.Context, key string) {
	if key == "" || s.archive == nil {
		return
	}
	if err := s.archive.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		s.logger.Warn("discard archive failed", "key", key, "error", err)
		return
	}
	s.logger.Info("archive discarded", "key", key)
}

// ListArchives returns the archived snapshots of a protocol, oldest first.
// Without an archive store the list is empty.
func (s *Service) ListArchives(ctx context.Context, id string) ([]ArchiveInfo, error) {
	var out []ArchiveInfo
	err := s.run(ctx, opListArchives, id, func(ctx context.Context) error {
		if s.archive == nil {
			return nil
		}
		infos, err := s.archive.List(ctx, archivePrefix+id+"/")
		if err != nil {
			return domain.PersistenceError{Op: "list archives", Err: err}
		}
		for _, info := range infos {
			entry, ok := parseArchiveKey(info.Key)
			if !ok || entry.ProtocolID != id {
				continue
			}
			entry.SizeBytes = info.Size
			url, err := s.archive.PresignURL(ctx, info.Key, blob.SignedURLOptions{Expiry: archiveURLExpiry})
			switch {
			case err == nil:
				entry.URL = url
			case !errors.Is(err, blob.ErrUnsupported):
				s.logger.Warn("presign archive failed", "key", info.Key, "error", err)
			}
			out = append(out, entry)
		}
		return nil
	})
	return out, err
}

// LoadArchive decodes an archived snapshot.
func (s *Service) LoadArchive(ctx context.Context, key string) (domain.Protocol, error) {
	var p domain.Protocol
	err := s.run(ctx, opLoadArchive, key, func(ctx context.Context) error {
		if s.archive == nil {
			return domain.NotFoundError{Entity: domain.EntityArchive, ID: key}
		}
		if _, ok := parseArchiveKey(key); !ok {
			return domain.ValidationError{Field: "key", Reason: fmt.Sprintf("%q is not an archive key", key)}
		}
		_, rc, err := s.archive.Get(ctx, key)
		if err != nil {
			if errors.Is(err, blob.ErrNotFound) {
				return domain.NotFoundError{Entity: domain.EntityArchive, ID: key}
			}
			return domain.PersistenceError{Op: "load archive", Err: err}
		}
		defer func() { _ = rc.Close() }()
		if err := json.NewDecoder(rc).Decode(&p); err != nil {
			return fmt.Errorf("decode archive %s: %w", key, err)
		}
		return nil
	})
	return p, err
}
