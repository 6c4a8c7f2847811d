package artifacts

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Steve-IX/Ezra/pkg/config"
)

// Archive backends.
const (
	TypeFS   = "fs"
	TypeS3   = "s3"
	TypeGCS  = "gcs"
	TypeNone = "none"
)

// NewStore builds the archive backend named by cfg. It returns a nil Store
// when archiving is disabled.
func NewStore(ctx context.Context, cfg config.ArchiveConfig, dataDir string) (Store, error) {
	switch cfg.Type {
	case "", TypeFS:
		return NewFileStore(filepath.Join(dataDir, "archive"))
	case TypeS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("EZRA_ARCHIVE_S3_BUCKET is required for S3 archive")
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.Prefix,
		})
	case TypeGCS:
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("EZRA_ARCHIVE_GCS_BUCKET is required for GCS archive")
		}
		return NewGCSStore(ctx, GCSStoreConfig{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
	case TypeNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported archive type: %s", cfg.Type)
	}
}
