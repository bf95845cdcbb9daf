package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/repository"
	errprocess "video_ingest_service/pkg/err"
	"video_ingest_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Presigner issues write credentials scoped to a single object key
type Presigner interface {
	PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error)
}

// UploadIntake hands out upload slots in the quarantine bucket
type UploadIntake struct {
	repo      repository.AssetRepo
	presigner Presigner
	bucket    string
	ttl       time.Duration
	now       func() time.Time
	newID     func() string
}

// NewUploadIntake create UploadIntake
func NewUploadIntake(repo repository.AssetRepo, presigner Presigner, quarantineBucket string, ttl time.Duration) *UploadIntake {
	return &UploadIntake{
		repo:      repo,
		presigner: presigner,
		bucket:    quarantineBucket,
		ttl:       ttl,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// RequestUploadSlot new asset id, quarantine key and presigned PUT; the asset is registered PendingUpload.
// fileName is stored as data only.
func (u *UploadIntake) RequestUploadSlot(ctx context.Context, contentType, fileName string) (*domain.UploadSlot, error) {
	contentType = strings.TrimSpace(contentType)
	fileName = strings.TrimSpace(fileName)
	if contentType == "" || fileName == "" {
		return nil, fmt.Errorf("%w: contentType and fileName are required", domain.ErrInvalidInput)
	}
	if u.presigner == nil || u.bucket == "" || u.ttl <= 0 {
		return nil, errprocess.Wrap(domain.ErrConfig, "upload signing is not configured")
	}

	assetID := u.newID()
	key := domain.QuarantineKey(assetID)
	issued := u.now().UTC()

	url, err := u.presigner.PresignPut(ctx, u.bucket, key, contentType, u.ttl)
	if err != nil {
		if errors.Is(err, domain.ErrConfig) {
			return nil, err
		}
		return nil, errprocess.Wrap(domain.ErrTransientInfra, fmt.Sprintf("presign upload for %s: %v", assetID, err))
	}

	raw := domain.Locator{Bucket: u.bucket, Key: key}
	asset := &domain.VideoAsset{
		ID:                  assetID,
		OriginalFileName:    fileName,
		DeclaredContentType: contentType,
		RawLocator:          raw.String(),
		Status:              domain.StatusPendingUpload,
	}
	if err := u.repo.Create(ctx, asset); err != nil {
		return nil, err
	}

	logger.Log.Info("upload slot issued", zap.String("asset_id", assetID), zap.String("key", key))
	return &domain.UploadSlot{
		AssetID:   assetID,
		ObjectKey: key,
		WriteGrant: domain.SignedURLGrant{
			TargetLocator: raw.String(),
			Method:        http.MethodPut,
			URL:           url,
			IssuedAt:      issued,
			ExpiresAt:     issued.Add(u.ttl),
		},
	}, nil
}
