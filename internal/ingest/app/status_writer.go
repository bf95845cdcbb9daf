package app

import (
	"context"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/repository"
	"video_ingest_service/pkg/logger"

	"go.uber.org/zap"
)

// statusWriter every status change goes through here, then a lifecycle event is emitted
type statusWriter struct {
	repo   repository.AssetRepo
	events repository.EventPublisher
	now    func() time.Time
}

func (w statusWriter) transition(ctx context.Context, asset *domain.VideoAsset, to domain.AssetStatus, u repository.AssetUpdate, reason string) error {
	from := asset.Status
	if err := w.repo.Transition(ctx, asset.ID, from, to, u); err != nil {
		return err
	}

	asset.Status = to
	applyUpdate(asset, u)
	logger.Log.Info("asset status changed",
		zap.String("asset_id", asset.ID), zap.String("from", string(from)), zap.String("to", string(to)))

	if w.events != nil {
		ev := domain.LifecycleEvent{AssetID: asset.ID, From: from, To: to, Reason: reason, At: w.now().UTC()}
		runSideEffect(ctx, effectLifecycleEvent, func(ctx context.Context) error {
			return w.events.PublishLifecycle(ctx, ev)
		}, zap.String("asset_id", asset.ID))
	}
	return nil
}

func applyUpdate(a *domain.VideoAsset, u repository.AssetUpdate) {
	if u.RawLocator != nil {
		a.RawLocator = *u.RawLocator
	}
	if u.SourceLocator != nil {
		a.SourceLocator = *u.SourceLocator
	}
	if u.RenditionLocator != nil {
		a.RenditionLocator = *u.RenditionLocator
	}
	if u.JobID != nil {
		a.JobID = *u.JobID
	}
	if u.FailureReason != nil {
		a.FailureReason = *u.FailureReason
	}
}
