package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/repository"
	"video_ingest_service/pkg/database"
	"video_ingest_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSubmitExhausted submission retries ran out, the asset was marked TranscodeFailed
var ErrSubmitExhausted = errors.New("transcode submission exhausted")

// jobNamespace uuid v5 namespace for transcode job ids
var jobNamespace = uuid.MustParse("6f1c9b52-1d55-4c2e-9f0e-8a3e0f6f4d21")

// JobIDFor same asset and source always yield the same job id
func JobIDFor(assetID string, source domain.Locator) string {
	return uuid.NewSHA1(jobNamespace, []byte(assetID+"|"+source.String())).String()
}

// DispatcherConfig static dispatch setting
type DispatcherConfig struct {
	JobQueue      string
	CallbackQueue string
	DurableBucket string
	Profile       domain.FormatProfile
	Retry         RetryPolicy
}

// Dispatcher submits transcode jobs
type Dispatcher struct {
	publisher database.RabbitRepo
	writer    statusWriter
	incidents repository.IncidentRecorder
	cfg       DispatcherConfig
}

// NewDispatcher create Dispatcher
func NewDispatcher(publisher database.RabbitRepo, repo repository.AssetRepo, events repository.EventPublisher,
	incidents repository.IncidentRecorder, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		writer:    statusWriter{repo: repo, events: events, now: time.Now},
		incidents: incidents,
		cfg:       cfg,
	}
}

// BuildJob job for asset, destination renditions/<assetId>/ in the durable bucket
func (d *Dispatcher) BuildJob(assetID string, source domain.Locator) domain.TranscodeJob {
	return domain.TranscodeJob{
		JobID:   JobIDFor(assetID, source),
		AssetID: assetID,
		Input:   source,
		Outputs: []domain.TranscodeOutput{{
			FormatProfile:     d.cfg.Profile,
			DestinationPrefix: domain.Locator{Bucket: d.cfg.DurableBucket, Key: domain.RenditionPrefix(assetID)},
		}},
		CallbackTarget: d.cfg.CallbackQueue,
	}
}

// Dispatch submit the job of a Promoting asset and move it to Transcoding.
// Repeated dispatch resubmits the same job id.
func (d *Dispatcher) Dispatch(ctx context.Context, asset *domain.VideoAsset) (string, error) {
	if asset.Status != domain.StatusPromoting {
		return "", fmt.Errorf("%w: dispatch asset %s in %s", domain.ErrInvalidTransition, asset.ID, asset.Status)
	}
	source, err := domain.ParseLocator(asset.SourceLocator)
	if err != nil || source.IsZero() {
		return "", fmt.Errorf("%w: asset %s has no source locator", domain.ErrInvalidTransition, asset.ID)
	}

	job := d.BuildJob(asset.ID, source)
	fields := []zap.Field{zap.String("asset_id", asset.ID), zap.String("job_id", job.JobID)}

	err = d.cfg.Retry.Do(ctx, func() error {
		return database.PublishJSON(d.publisher, d.cfg.JobQueue, job.JobID, job)
	})
	if err != nil {
		pipelineOutcomes.WithLabelValues("dispatch", "exhausted").Inc()
		logger.Log.Error("transcode submission failed", append(fields, zap.Error(err))...)

		reason := fmt.Sprintf("transcode submission failed: %v", err)
		if terr := d.writer.transition(ctx, asset, domain.StatusTranscodeFailed,
			repository.AssetUpdate{JobID: &job.JobID, FailureReason: &reason}, reason); terr != nil {
			return job.JobID, fmt.Errorf("%w: %v (record failure: %v)", domain.ErrTransientInfra, err, terr)
		}
		d.recordIncident(ctx, asset.ID, job.JobID, reason)
		return job.JobID, fmt.Errorf("%w: %w: %v", domain.ErrTransientInfra, ErrSubmitExhausted, err)
	}

	if err := d.writer.transition(ctx, asset, domain.StatusTranscoding, repository.AssetUpdate{JobID: &job.JobID}, ""); err != nil {
		return job.JobID, err
	}
	pipelineOutcomes.WithLabelValues("dispatch", "submitted").Inc()
	logger.Log.Info("transcode job submitted", fields...)
	return job.JobID, nil
}

func (d *Dispatcher) recordIncident(ctx context.Context, assetID, jobID, reason string) {
	if d.incidents == nil {
		return
	}
	runSideEffect(ctx, effectIncident, func(ctx context.Context) error {
		return d.incidents.Record(ctx, domain.Incident{AssetID: assetID, Stage: "dispatch", Reason: reason, JobID: jobID})
	}, zap.String("asset_id", assetID))
}
