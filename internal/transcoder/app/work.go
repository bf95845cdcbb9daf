package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	ingest "video_ingest_service/internal/ingest/app"
	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/database"
	errprocess "video_ingest_service/pkg/err"
	"video_ingest_service/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var transcodeJobs = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "transcode_jobs_total",
	Help: "Transcode jobs handled by the worker, by outcome.",
}, []string{"outcome"})

// Worker 轉碼執行者: 下載 source, ffmpeg 轉 HLS, 上傳 rendition, 回報完成
type Worker struct {
	files     database.FileStore
	publisher database.RabbitRepo
	tmpDir    string
	retry     ingest.RetryPolicy
}

// NewWorker create Worker
func NewWorker(files database.FileStore, publisher database.RabbitRepo, tmpDir string, retry ingest.RetryPolicy) *Worker {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &Worker{files: files, publisher: publisher, tmpDir: tmpDir, retry: retry}
}

// Handler transcode queue body -> Handle, for ingest.QueueConsumer
func (w *Worker) Handler() ingest.DeliveryHandler {
	return func(ctx context.Context, body []byte) error {
		var job domain.TranscodeJob
		if err := json.Unmarshal(body, &job); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
		}
		if err := job.Validate(); err != nil {
			return err
		}
		return w.Handle(ctx, job)
	}
}

// Handle run the job and publish the completion.
// Transcode failures are reported as Failure; only a failed publish is returned for redelivery.
func (w *Worker) Handle(ctx context.Context, job domain.TranscodeJob) error {
	fields := []zap.Field{zap.String("asset_id", job.AssetID), zap.String("job_id", job.JobID)}
	logger.Log.Info("收到轉碼工作訊息", fields...)

	completion := domain.TranscodeCompletion{JobID: job.JobID, AssetID: job.AssetID, Outcome: domain.OutcomeSuccess}
	if err := w.process(ctx, job); err != nil {
		// ctx 結束不回報 Failure, 讓訊息重送
		if ctx.Err() != nil {
			return fmt.Errorf("%w: job %s interrupted: %v", domain.ErrTransientInfra, job.JobID, err)
		}
		logger.Log.Error("處理轉碼工作失敗", append(fields, zap.Error(err))...)
		completion.Outcome = domain.OutcomeFailure
		completion.Message = err.Error()
	}

	if job.CallbackTarget == "" {
		logger.Log.Warn("transcode job has no callback target", fields...)
		return nil
	}
	if err := database.PublishJSON(w.publisher, job.CallbackTarget, job.JobID, completion); err != nil {
		transcodeJobs.WithLabelValues("publish_failed").Inc()
		return fmt.Errorf("%w: publish completion of %s: %v", domain.ErrTransientInfra, job.JobID, err)
	}
	transcodeJobs.WithLabelValues(string(completion.Outcome)).Inc()
	logger.Log.Info("轉碼工作完成", append(fields, zap.String("outcome", string(completion.Outcome)))...)
	return nil
}

// process 負責執行轉碼工作：
// 1. 下載原始影片檔
// 2. 使用 FFmpeg 轉碼成 HLS
// 3. 將轉碼結果上傳到 destination prefix
// 4. 清理本地暫存檔案
func (w *Worker) process(ctx context.Context, job domain.TranscodeJob) error {
	workDir, err := os.MkdirTemp(w.tmpDir, "job-"+job.JobID+"-")
	if err != nil {
		return fmt.Errorf("建立暫存目錄失敗: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Log.Warn("清理本地暫存檔案失敗", zap.String("dir", workDir), zap.Error(err))
		}
	}()

	localInputPath := filepath.Join(workDir, "source")
	err = w.retry.Do(ctx, func() error {
		err := w.files.DownloadFile(ctx, job.Input.Bucket, job.Input.Key, localInputPath)
		if errors.Is(err, database.ErrObjectNotFound) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("下載原始影片失敗: %w", err)
	}

	for i, out := range job.Outputs {
		localOutputDir := filepath.Join(workDir, fmt.Sprintf("out_%d", i))
		if err := os.MkdirAll(localOutputDir, 0o755); err != nil {
			return fmt.Errorf("建立轉碼輸出目錄失敗: %w", err)
		}
		if err := TranscodeToHLS(ctx, localInputPath, localOutputDir, out.FormatProfile); err != nil {
			return err
		}
		if err := w.upload(ctx, localOutputDir, out.DestinationPrefix); err != nil {
			return err
		}
	}
	return nil
}

// upload playlist 最後上傳, 避免 manifest 指向還不存在的 segment
func (w *Worker) upload(ctx context.Context, dir string, dest domain.Locator) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("讀取轉碼輸出目錄失敗: %w", err)
	}

	var (
		names    []string
		manifest bool
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if e.Name() == domain.ManifestName {
			manifest = true
			continue
		}
		names = append(names, e.Name())
	}
	if !manifest {
		return errprocess.Set(fmt.Sprintf("transcode produced no %s in %s", domain.ManifestName, dir))
	}
	names = append(names, domain.ManifestName)

	for _, name := range names {
		localFilePath := filepath.Join(dir, name)
		objectName := path.Join(dest.Key, name)
		err := w.retry.Do(ctx, func() error {
			return w.files.UploadFile(ctx, dest.Bucket, objectName, localFilePath, getContentType(name))
		})
		if err != nil {
			return fmt.Errorf("上傳轉碼結果失敗 %s: %w", objectName, err)
		}
	}
	return nil
}
