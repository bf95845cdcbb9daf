package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/repository"
	"video_ingest_service/pkg/database"
	"video_ingest_service/pkg/signer"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var fastRetry = RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxAttempts: 3}

// newSQLiteRepo 以 sqlite in-memory 當作 metadata 服務
func newSQLiteRepo(t *testing.T) repository.AssetRepo {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	repo := repository.NewAssetRepo(db)
	require.NoError(t, repo.AutoMigrate())
	return repo
}

// MockAssetRepo 是 AssetRepo 的 Mock
type MockAssetRepo struct {
	mock.Mock
}

func (m *MockAssetRepo) AutoMigrate() error {
	return m.Called().Error(0)
}

func (m *MockAssetRepo) Create(ctx context.Context, asset *domain.VideoAsset) error {
	return m.Called(ctx, asset).Error(0)
}

func (m *MockAssetRepo) GetByID(ctx context.Context, id string) (*domain.VideoAsset, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*domain.VideoAsset)
	return a, args.Error(1)
}

func (m *MockAssetRepo) Transition(ctx context.Context, id string, from, to domain.AssetStatus, u repository.AssetUpdate) error {
	return m.Called(ctx, id, from, to, u).Error(0)
}

// MockRabbitChannel 是 RabbitMQ 的 Mock
type MockRabbitChannel struct {
	mock.Mock
}

func (m *MockRabbitChannel) GetRabbit() *amqp.Channel {
	args := m.Called()
	ch, _ := args.Get(0).(*amqp.Channel)
	return ch
}

func (m *MockRabbitChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

// MockEventPublisher 是 EventPublisher 的 Mock
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishLifecycle(ctx context.Context, ev domain.LifecycleEvent) error {
	return m.Called(ctx, ev).Error(0)
}

// MockIncidentRecorder 是 IncidentRecorder 的 Mock
type MockIncidentRecorder struct {
	mock.Mock
}

func (m *MockIncidentRecorder) Record(ctx context.Context, in domain.Incident) error {
	return m.Called(ctx, in).Error(0)
}

// MockInvalidator 是 EdgeInvalidator 的 Mock
type MockInvalidator struct {
	mock.Mock
}

func (m *MockInvalidator) Invalidate(ctx context.Context, paths ...string) error {
	return m.Called(ctx, paths).Error(0)
}

// MockPresigner 是 Presigner 的 Mock
type MockPresigner struct {
	mock.Mock
}

func (m *MockPresigner) PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, bucket, key, contentType, ttl)
	return args.String(0), args.Error(1)
}

// MockURLSigner 是 URLSigner 的 Mock
type MockURLSigner struct {
	mock.Mock
}

func (m *MockURLSigner) Sign(resourceURL string, expiresAt time.Time) (signer.Signed, error) {
	args := m.Called(resourceURL, expiresAt)
	s, _ := args.Get(0).(signer.Signed)
	return s, args.Error(1)
}

// MockDispatcher 是 TranscodeDispatcher 的 Mock
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, asset *domain.VideoAsset) (string, error) {
	args := m.Called(ctx, asset)
	return args.String(0), args.Error(1)
}

// memStore in-memory object store, records every mutating call in order
type memStore struct {
	mu      sync.Mutex
	objects map[string]database.ObjectInfo
	ops     []string

	// hiddenStats 前 N 次 stat 假裝物件尚未可見
	hiddenStats int
	copyErr     error
	statErr     error
	removeErr   error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string]database.ObjectInfo{}}
}

func (s *memStore) put(bucket, key, contentType string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = database.ObjectInfo{Bucket: bucket, Key: key, Size: size, ContentType: contentType, ETag: fmt.Sprintf("etag-%d", size)}
}

func (s *memStore) has(bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[bucket+"/"+key]
	return ok
}

func (s *memStore) StatObject(_ context.Context, bucket, key string) (database.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statErr != nil {
		return database.ObjectInfo{}, s.statErr
	}
	if s.hiddenStats > 0 {
		s.hiddenStats--
		return database.ObjectInfo{}, fmt.Errorf("%w: %s/%s", database.ErrObjectNotFound, bucket, key)
	}
	info, ok := s.objects[bucket+"/"+key]
	if !ok {
		return database.ObjectInfo{}, fmt.Errorf("%w: %s/%s", database.ErrObjectNotFound, bucket, key)
	}
	return info, nil
}

func (s *memStore) CopyObject(_ context.Context, srcBucket, srcKey, dstBucket, dstKey, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "copy "+srcBucket+"/"+srcKey)
	if s.copyErr != nil {
		return s.copyErr
	}
	info, ok := s.objects[srcBucket+"/"+srcKey]
	if !ok {
		return fmt.Errorf("%w: %s/%s", database.ErrObjectNotFound, srcBucket, srcKey)
	}
	info.Bucket, info.Key, info.ContentType = dstBucket, dstKey, contentType
	s.objects[dstBucket+"/"+dstKey] = info
	return nil
}

func (s *memStore) RemoveObject(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "remove "+bucket+"/"+key)
	if s.removeErr != nil {
		return s.removeErr
	}
	delete(s.objects, bucket+"/"+key)
	return nil
}

func (s *memStore) PresignPut(_ context.Context, bucket, key, _ string, _ time.Duration) (string, error) {
	return "https://storage.local/" + bucket + "/" + key + "?X-Amz-Signature=test", nil
}
