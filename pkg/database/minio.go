package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOClient definition minio client
type MinIOClient struct {
	Client *minio.Client
}

var _ ObjectStore = (*MinIOClient)(nil)
var _ FileStore = (*MinIOClient)(nil)

// NewMinIOConnection create a new minio connection have retry
func NewMinIOConnection(d MinIOConnection) (*MinIOClient, error) {
	var mc *MinIOClient
	var err error

	retry := d.RetryCount
	if retry <= 0 {
		retry = 1
	}
	for i := 1; i <= retry; i++ {
		mc, err = NewMinioClient(d.Endpoint, d.User, d.Password, d.Buckets, d.UseSSL)
		if err == nil {
			log.Printf("minIO[%s] 連線成功 (嘗試 %d 次)", d.Endpoint, i)
			return mc, nil
		}

		log.Printf("minIO[%s] 連線失敗 (嘗試 %d/%d): %v", d.Endpoint, i, retry, err)
		time.Sleep(d.RetryInterval * time.Second)
	}

	return mc, err
}

// NewMinioClient create a new minio and make sure every bucket exists
func NewMinioClient(endpoint, accessKey, secretKey string, buckets []string, useSSL bool) (*MinIOClient, error) {
	minioClient, err := minio.New(endpoint,
		&minio.Options{
			Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
			Secure: useSSL,
		})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 失敗: %v", err)
	}

	ctx := context.Background()
	for _, bucketName := range buckets {
		exists, err := minioClient.BucketExists(ctx, bucketName)
		if err != nil {
			return nil, fmt.Errorf("檢查 bucket [%s] 失敗: %v", bucketName, err)
		}
		if exists {
			continue
		}
		if err = minioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("建立 bucket [%s] 失敗: %v", bucketName, err)
		}
		log.Printf("Bucket [%s] 建立成功", bucketName)
	}

	return &MinIOClient{Client: minioClient}, nil
}

func isMinIONotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}

// StatObject head one object
func (m *MinIOClient) StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	info, err := m.Client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isMinIONotFound(err) {
			return ObjectInfo{}, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		return ObjectInfo{}, fmt.Errorf("stat %s/%s: %w", bucket, key, err)
	}
	return ObjectInfo{
		Bucket:      bucket,
		Key:         info.Key,
		Size:        info.Size,
		ContentType: info.ContentType,
		ETag:        info.ETag,
	}, nil
}

// CopyObject server side copy, content type is kept on the destination
func (m *MinIOClient) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey, contentType string) error {
	dst := minio.CopyDestOptions{
		Bucket:          dstBucket,
		Object:          dstKey,
		ReplaceMetadata: contentType != "",
	}
	if contentType != "" {
		dst.UserMetadata = map[string]string{"Content-Type": contentType}
	}
	src := minio.CopySrcOptions{Bucket: srcBucket, Object: srcKey}

	if _, err := m.Client.CopyObject(ctx, dst, src); err != nil {
		if isMinIONotFound(err) {
			return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, srcBucket, srcKey)
		}
		return fmt.Errorf("copy %s/%s -> %s/%s: %w", srcBucket, srcKey, dstBucket, dstKey, err)
	}
	return nil
}

// RemoveObject delete one object, missing object is fine
func (m *MinIOClient) RemoveObject(ctx context.Context, bucket, key string) error {
	err := m.Client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isMinIONotFound(err) {
		return fmt.Errorf("remove %s/%s: %w", bucket, key, err)
	}
	return nil
}

// PresignPut 生成一個只能寫入指定 object 的 Presigned URL
func (m *MinIOClient) PresignPut(ctx context.Context, bucket, key, _ string, ttl time.Duration) (string, error) {
	presignedURL, err := m.Client.PresignedPutObject(ctx, bucket, key, ttl)
	if err != nil {
		return "", fmt.Errorf("生成 Presigned URL 失敗: %w", err)
	}
	return presignedURL.String(), nil
}

// UploadFile minio upload file func
func (m *MinIOClient) UploadFile(ctx context.Context, bucket, key, filePath, contentType string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("開啟檔案失敗: %v", err)
	}
	defer file.Close()

	_, err = m.Client.PutObject(ctx, bucket, key, file, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// DownloadFile minio download file func
func (m *MinIOClient) DownloadFile(ctx context.Context, bucket, key, destPath string) error {
	if err := m.Client.FGetObject(ctx, bucket, key, destPath, minio.GetObjectOptions{}); err != nil {
		if isMinIONotFound(err) {
			return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		return fmt.Errorf("取得物件失敗: %v", err)
	}
	return nil
}
