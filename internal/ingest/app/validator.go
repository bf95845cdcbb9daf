package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/repository"
	"video_ingest_service/pkg"
	"video_ingest_service/pkg/database"
	"video_ingest_service/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// TranscodeDispatcher submits the transcode job of a Promoting asset
type TranscodeDispatcher interface {
	Dispatch(ctx context.Context, asset *domain.VideoAsset) (string, error)
}

// ValidatorConfig static validator setting
type ValidatorConfig struct {
	QuarantineBucket    string
	DurableBucket       string
	AllowedMIMEPrefixes []string
	StatRetry           RetryPolicy
	StorageRetry        RetryPolicy
	LockTTL             time.Duration
}

// Validator reacts to "object created" notifications in the quarantine bucket
type Validator struct {
	repo       repository.AssetRepo
	store      database.ObjectStore
	lock       repository.AssetLock
	dispatcher TranscodeDispatcher
	writer     statusWriter
	incidents  repository.IncidentRecorder
	cfg        ValidatorConfig
}

// NewValidator create Validator, lock may be nil for a single replica
func NewValidator(repo repository.AssetRepo, store database.ObjectStore, lock repository.AssetLock,
	dispatcher TranscodeDispatcher, events repository.EventPublisher, incidents repository.IncidentRecorder,
	cfg ValidatorConfig) *Validator {
	if lock == nil {
		lock = repository.NewNoopAssetLock()
	}
	return &Validator{
		repo:       repo,
		store:      store,
		lock:       lock,
		dispatcher: dispatcher,
		writer:     statusWriter{repo: repo, events: events, now: time.Now},
		incidents:  incidents,
		cfg:        cfg,
	}
}

// OnObjectCreated validate, promote and dispatch one uploaded object.
// Safe to call repeatedly for the same object; state is re-derived from storage.
func (v *Validator) OnObjectCreated(ctx context.Context, n domain.StorageNotification) error {
	if n.Bucket != v.cfg.QuarantineBucket {
		logger.Log.Warn("notification for unexpected bucket", zap.String("bucket", n.Bucket), zap.String("key", n.Key))
		return nil
	}
	assetID, ok := domain.AssetIDFromQuarantineKey(n.Key)
	if !ok {
		logger.Log.Warn("notification for unknown key layout", zap.String("key", n.Key))
		return nil
	}
	fields := []zap.Field{zap.String("asset_id", assetID)}

	unlock, ok, err := v.lock.TryLock(ctx, assetID, v.cfg.LockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: asset %s is being processed", domain.ErrTransientInfra, assetID)
	}
	defer func() {
		if err := unlock(context.Background()); err != nil {
			logger.Log.Warn("release asset lock failed", append(fields, zap.Error(err))...)
		}
	}()

	asset, err := v.repo.GetByID(ctx, assetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Log.Warn("notification for unregistered asset", fields...)
			return nil
		}
		return err
	}

	switch asset.Status {
	case domain.StatusPendingUpload:
		if err := v.writer.transition(ctx, asset, domain.StatusValidating, repository.AssetUpdate{}, ""); err != nil {
			return err
		}
		fallthrough
	case domain.StatusValidating:
		return v.validateAndPromote(ctx, asset, n)
	case domain.StatusPromoting:
		return v.dispatch(ctx, asset)
	default:
		logger.Log.Debug("duplicate notification ignored", append(fields, zap.String("status", string(asset.Status)))...)
		pipelineOutcomes.WithLabelValues("validate", "duplicate").Inc()
		return nil
	}
}

func (v *Validator) validateAndPromote(ctx context.Context, asset *domain.VideoAsset, n domain.StorageNotification) error {
	src := domain.Locator{Bucket: v.cfg.QuarantineBucket, Key: domain.QuarantineKey(asset.ID)}
	dst := domain.Locator{Bucket: v.cfg.DurableBucket, Key: domain.DurableKey(asset.ID)}

	info, err := v.statWithBackoff(ctx, src)
	if err != nil {
		if !errors.Is(err, database.ErrObjectNotFound) {
			return v.giveUp(ctx, asset, fmt.Sprintf("stat %s", src), err)
		}
		// quarantine 已不存在: 若 durable 已有副本視為已完成搬移
		promoted, perr := v.exists(ctx, dst)
		if perr != nil {
			return perr
		}
		if promoted {
			return v.finishPromotion(ctx, asset, dst)
		}
		return v.reject(ctx, asset, "uploaded object never became visible in quarantine")
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = n.ContentType
	}
	if !pkg.HasAnyPrefix(contentType, v.cfg.AllowedMIMEPrefixes) {
		return v.reject(ctx, asset, fmt.Sprintf("content type %q is not an accepted video type", contentType))
	}
	if n.Size > 0 && n.Size != info.Size {
		logger.Log.Warn("declared size differs from stored object",
			zap.String("asset_id", asset.ID), zap.Int64("declared", n.Size), zap.Int64("stored", info.Size))
	}

	if err := v.copyVerified(ctx, src, dst, info); err != nil {
		return v.giveUp(ctx, asset, fmt.Sprintf("promote %s -> %s", src, dst), err)
	}

	// 確認 durable 副本後才刪除 quarantine
	err = v.cfg.StorageRetry.Do(ctx, func() error {
		return v.store.RemoveObject(ctx, src.Bucket, src.Key)
	})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: remove %s: %v", domain.ErrTransientInfra, src, err)
		}
		// durable 副本已驗證, quarantine 留給 lifecycle 過期
		logger.Log.Error("quarantine cleanup failed", zap.String("asset_id", asset.ID), zap.Error(err))
		v.recordIncident(ctx, asset.ID, fmt.Sprintf("remove %s failed after retries: %v", src, err))
	}

	return v.finishPromotion(ctx, asset, dst)
}

func (v *Validator) statWithBackoff(ctx context.Context, loc domain.Locator) (database.ObjectInfo, error) {
	var info database.ObjectInfo
	err := v.cfg.StatRetry.Do(ctx, func() error {
		var err error
		info, err = v.store.StatObject(ctx, loc.Bucket, loc.Key)
		return err
	})
	return info, err
}

func (v *Validator) exists(ctx context.Context, loc domain.Locator) (bool, error) {
	_, err := v.store.StatObject(ctx, loc.Bucket, loc.Key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, database.ErrObjectNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("%w: stat %s: %v", domain.ErrTransientInfra, loc, err)
	}
}

// copyVerified copy src to dst and confirm size and, for single part uploads, ETag
func (v *Validator) copyVerified(ctx context.Context, src, dst domain.Locator, srcInfo database.ObjectInfo) error {
	err := v.cfg.StorageRetry.Do(ctx, func() error {
		if err := v.store.CopyObject(ctx, src.Bucket, src.Key, dst.Bucket, dst.Key, srcInfo.ContentType); err != nil {
			if errors.Is(err, database.ErrObjectNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		got, err := v.store.StatObject(ctx, dst.Bucket, dst.Key)
		if err != nil {
			return err
		}
		if got.Size != srcInfo.Size {
			return fmt.Errorf("durable copy size %d != %d", got.Size, srcInfo.Size)
		}
		if isSinglePartETag(srcInfo.ETag) && got.ETag != srcInfo.ETag {
			return fmt.Errorf("durable copy etag %s != %s", got.ETag, srcInfo.ETag)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, database.ErrObjectNotFound) {
		// 來源在複製途中被另一個投遞搬走
		if ok, perr := v.exists(ctx, dst); perr == nil && ok {
			return nil
		}
	}
	return err
}

func isSinglePartETag(etag string) bool {
	return etag != "" && !strings.Contains(etag, "-")
}

func (v *Validator) finishPromotion(ctx context.Context, asset *domain.VideoAsset, dst domain.Locator) error {
	empty, source := "", dst.String()
	err := v.writer.transition(ctx, asset, domain.StatusPromoting,
		repository.AssetUpdate{RawLocator: &empty, SourceLocator: &source}, "")
	if err != nil {
		return err
	}
	pipelineOutcomes.WithLabelValues("validate", "promoted").Inc()
	return v.dispatch(ctx, asset)
}

func (v *Validator) dispatch(ctx context.Context, asset *domain.VideoAsset) error {
	if _, err := v.dispatcher.Dispatch(ctx, asset); err != nil {
		if errors.Is(err, ErrSubmitExhausted) {
			// 已標記 TranscodeFailed 並留下 incident
			return nil
		}
		return err
	}
	return nil
}

// giveUp storage retries ran out: the asset ends Rejected with the reason and an incident.
// A cancelled ctx (shutdown or handler timeout) is still redelivered.
func (v *Validator) giveUp(ctx context.Context, asset *domain.VideoAsset, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrTransientInfra, op, err)
	}
	reason := fmt.Sprintf("%s failed after retries: %v", op, err)
	if terr := v.writer.transition(ctx, asset, domain.StatusRejected, repository.AssetUpdate{FailureReason: &reason}, reason); terr != nil {
		return fmt.Errorf("%w: %s: %v (record failure: %v)", domain.ErrTransientInfra, op, err, terr)
	}
	pipelineOutcomes.WithLabelValues("validate", "exhausted").Inc()
	logger.Log.Error("promotion abandoned", zap.String("asset_id", asset.ID), zap.String("reason", reason))
	v.recordIncident(ctx, asset.ID, reason)
	return nil
}

func (v *Validator) recordIncident(ctx context.Context, assetID, reason string) {
	if v.incidents == nil {
		return
	}
	runSideEffect(ctx, effectIncident, func(ctx context.Context) error {
		return v.incidents.Record(ctx, domain.Incident{AssetID: assetID, Stage: "validate", Reason: reason})
	}, zap.String("asset_id", assetID))
}

// reject quarantine object is left for lifecycle expiry
func (v *Validator) reject(ctx context.Context, asset *domain.VideoAsset, reason string) error {
	if err := v.writer.transition(ctx, asset, domain.StatusRejected, repository.AssetUpdate{FailureReason: &reason}, reason); err != nil {
		return err
	}
	pipelineOutcomes.WithLabelValues("validate", "rejected").Inc()
	logger.Log.Info("upload rejected", zap.String("asset_id", asset.ID), zap.String("reason", reason))
	return fmt.Errorf("%w: %s", domain.ErrValidationRejected, reason)
}
