package repository

import (
	"context"
	"errors"
	"fmt"

	"video_ingest_service/internal/ingest/domain"

	"gorm.io/gorm"
)

// AssetUpdate optional columns written together with a status change
type AssetUpdate struct {
	RawLocator       *string
	SourceLocator    *string
	RenditionLocator *string
	JobID            *string
	FailureReason    *string
}

func (u AssetUpdate) columns(to domain.AssetStatus) map[string]interface{} {
	cols := map[string]interface{}{"status": to}
	if u.RawLocator != nil {
		cols["raw_locator"] = *u.RawLocator
	}
	if u.SourceLocator != nil {
		cols["source_locator"] = *u.SourceLocator
	}
	if u.RenditionLocator != nil {
		cols["rendition_locator"] = *u.RenditionLocator
	}
	if u.JobID != nil {
		cols["job_id"] = *u.JobID
	}
	if u.FailureReason != nil {
		cols["failure_reason"] = *u.FailureReason
	}
	return cols
}

// AssetRepo metadata access for VideoAsset
type AssetRepo interface {
	AutoMigrate() error
	Create(ctx context.Context, asset *domain.VideoAsset) error
	GetByID(ctx context.Context, id string) (*domain.VideoAsset, error)
	// Transition compare-and-set from -> to, ErrStaleTransition when status is no longer from
	Transition(ctx context.Context, id string, from, to domain.AssetStatus, u AssetUpdate) error
}

type assetRepo struct {
	db *gorm.DB
}

// NewAssetRepo create AssetRepo
func NewAssetRepo(db *gorm.DB) AssetRepo {
	return &assetRepo{db: db}
}

func (r *assetRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.VideoAsset{})
}

func (r *assetRepo) Create(ctx context.Context, asset *domain.VideoAsset) error {
	if err := r.db.WithContext(ctx).Create(asset).Error; err != nil {
		return fmt.Errorf("%w: create asset %s: %v", domain.ErrTransientInfra, asset.ID, err)
	}
	return nil
}

func (r *assetRepo) GetByID(ctx context.Context, id string) (*domain.VideoAsset, error) {
	var a domain.VideoAsset
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: asset %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: get asset %s: %v", domain.ErrTransientInfra, id, err)
	}
	return &a, nil
}

func (r *assetRepo) Transition(ctx context.Context, id string, from, to domain.AssetStatus, u AssetUpdate) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	res := r.db.WithContext(ctx).
		Model(&domain.VideoAsset{}).
		Where("id = ? AND status = ?", id, from).
		Updates(u.columns(to))
	if res.Error != nil {
		return fmt.Errorf("%w: transition %s %s -> %s: %v", domain.ErrTransientInfra, id, from, to, res.Error)
	}
	if res.RowsAffected == 0 {
		// 區分不存在與被其他寫入者搶先
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: asset %s no longer %s", domain.ErrStaleTransition, id, from)
	}
	return nil
}
