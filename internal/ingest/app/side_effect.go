package app

import (
	"context"

	"video_ingest_service/pkg/logger"

	"go.uber.org/zap"
)

// Side effect names
const (
	effectLifecycleEvent = "lifecycle_event"
	effectIncident       = "incident"
	effectInvalidation   = "cdn_invalidation"
)

// runSideEffect 非關鍵副作用, 失敗只記錄與計數, 不影響主流程
func runSideEffect(ctx context.Context, name string, fn func(context.Context) error, fields ...zap.Field) {
	if err := fn(ctx); err != nil {
		sideEffectOutcomes.WithLabelValues(name, "failure").Inc()
		logger.Log.Warn("side effect failed", append(fields, zap.String("side_effect", name), zap.Error(err))...)
		return
	}
	sideEffectOutcomes.WithLabelValues(name, "success").Inc()
}
