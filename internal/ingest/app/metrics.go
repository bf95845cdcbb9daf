package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "video_ingest",
		Name:      "pipeline_outcomes_total",
		Help:      "Ingestion pipeline outcomes by stage.",
	}, []string{"stage", "outcome"})

	playbackDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "video_ingest",
		Name:      "playback_decisions_total",
		Help:      "Access gate decisions.",
	}, []string{"decision"})

	sideEffectOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "video_ingest",
		Name:      "side_effects_total",
		Help:      "Non-critical side effects by name and outcome.",
	}, []string{"name", "outcome"})

	deliveryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "video_ingest",
		Name:      "deliveries_total",
		Help:      "Queue deliveries by consumer and action.",
	}, []string{"consumer", "action"})
)
