package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/repository"
	"video_ingest_service/pkg/logger"

	"go.uber.org/zap"
)

// CompletionHandler applies transcode completions to assets
type CompletionHandler struct {
	repo        repository.AssetRepo
	writer      statusWriter
	invalidator repository.EdgeInvalidator
	incidents   repository.IncidentRecorder
}

// NewCompletionHandler create CompletionHandler, invalidator and incidents may be nil
func NewCompletionHandler(repo repository.AssetRepo, events repository.EventPublisher,
	invalidator repository.EdgeInvalidator, incidents repository.IncidentRecorder) *CompletionHandler {
	return &CompletionHandler{
		repo:        repo,
		writer:      statusWriter{repo: repo, events: events, now: time.Now},
		invalidator: invalidator,
		incidents:   incidents,
	}
}

// OnTranscodeCompleted Transcoding -> Ready | TranscodeFailed; duplicates and stale jobs are no-ops
func (h *CompletionHandler) OnTranscodeCompleted(ctx context.Context, c domain.TranscodeCompletion) error {
	fields := []zap.Field{zap.String("asset_id", c.AssetID), zap.String("job_id", c.JobID)}

	asset, err := h.repo.GetByID(ctx, c.AssetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Log.Warn("completion for unknown asset", fields...)
			return nil
		}
		return err
	}

	switch asset.Status {
	case domain.StatusTranscoding:
	case domain.StatusPromoting:
		// 工作已送出但 Transcoding 尚未寫入, 稍後重試
		if source, perr := domain.ParseLocator(asset.SourceLocator); perr == nil && JobIDFor(asset.ID, source) == c.JobID {
			return fmt.Errorf("%w: asset %s not yet marked transcoding", domain.ErrTransientInfra, asset.ID)
		}
		logger.Log.Warn("completion for unexpected job", fields...)
		return nil
	default:
		logger.Log.Debug("completion ignored", append(fields, zap.String("status", string(asset.Status)))...)
		pipelineOutcomes.WithLabelValues("complete", "duplicate").Inc()
		return nil
	}

	if asset.JobID != "" && asset.JobID != c.JobID {
		logger.Log.Warn("stale completion ignored", append(fields, zap.String("current_job_id", asset.JobID))...)
		pipelineOutcomes.WithLabelValues("complete", "stale").Inc()
		return nil
	}

	if c.Outcome == domain.OutcomeFailure {
		reason := c.Message
		if reason == "" {
			reason = "transcoder reported failure"
		}
		if err := h.writer.transition(ctx, asset, domain.StatusTranscodeFailed, repository.AssetUpdate{FailureReason: &reason}, reason); err != nil {
			return err
		}
		pipelineOutcomes.WithLabelValues("complete", "failed").Inc()
		if h.incidents != nil {
			runSideEffect(ctx, effectIncident, func(ctx context.Context) error {
				return h.incidents.Record(ctx, domain.Incident{AssetID: asset.ID, Stage: "transcode", Reason: reason, JobID: c.JobID})
			}, fields...)
		}
		return nil
	}

	manifest := domain.RenditionManifestKey(asset.ID)
	if err := h.writer.transition(ctx, asset, domain.StatusReady, repository.AssetUpdate{RenditionLocator: &manifest}, ""); err != nil {
		return err
	}
	pipelineOutcomes.WithLabelValues("complete", "ready").Inc()

	if h.invalidator != nil {
		runSideEffect(ctx, effectInvalidation, func(ctx context.Context) error {
			return h.invalidator.Invalidate(ctx, "/"+domain.RenditionPrefix(asset.ID)+"*")
		}, fields...)
	}
	return nil
}
