package database

import (
	"context"
	"fmt"
	"time"

	"video_ingest_service/pkg/config"
)

// Storage object storage used by gateway, ingest and worker
type Storage interface {
	ObjectStore
	FileStore
}

// OpenStorage pick minio (default) or s3 by storage.driver
func OpenStorage(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "", "minio":
		m := cfg.MinIO
		mc, err := NewMinIOConnection(MinIOConnection{
			Endpoint: fmt.Sprintf("%s:%d", m.Host, m.Port),
			User:     m.User,
			Password: m.Password,
			Buckets:  []string{cfg.QuarantineBucket, cfg.DurableBucket},
			UseSSL:   m.UseSSL,

			RetryCount:    m.RetryCount,
			RetryInterval: time.Duration(m.RetryInterval),
		})
		if err != nil {
			return nil, err
		}
		return mc, nil
	case "s3":
		awsCfg, err := LoadAWSConfig(ctx, cfg.S3.Region)
		if err != nil {
			return nil, err
		}
		return NewS3Client(awsCfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", config.ErrConfig, cfg.Driver)
	}
}
