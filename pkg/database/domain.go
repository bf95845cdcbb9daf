package database

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// ErrObjectNotFound object or bucket does not exist (yet)
var ErrObjectNotFound = errors.New("object not found")

// Connection definition connect string setting, RetryInterval counted in seconds
type Connection struct {
	ConnectStr string

	RetryCount    int
	RetryInterval time.Duration
}

// MongoDB definition mongo db
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// MinIOConnection definition minio, Buckets are created when missing
type MinIOConnection struct {
	Endpoint string
	User     string
	Password string
	Buckets  []string
	UseSSL   bool

	RetryCount    int
	RetryInterval time.Duration
}

// KafkaConnection definition kafka
type KafkaConnection struct {
	Brokers       []string
	Topic         string
	RetryCount    int
	RetryInterval time.Duration
}

// ObjectInfo stat result of one object
type ObjectInfo struct {
	Bucket      string
	Key         string
	Size        int64
	ContentType string
	ETag        string
}

// ObjectStore operations the ingest pipeline needs from object storage
type ObjectStore interface {
	// StatObject returns an error wrapping ErrObjectNotFound when the object is not visible
	StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error)
	CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey, contentType string) error
	// RemoveObject of a missing object is a no-op
	RemoveObject(ctx context.Context, bucket, key string) error
	PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error)
}

// FileStore operations the transcode worker needs
type FileStore interface {
	DownloadFile(ctx context.Context, bucket, key, destPath string) error
	UploadFile(ctx context.Context, bucket, key, filePath, contentType string) error
}
