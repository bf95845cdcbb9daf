package repository

import (
	"context"
	"fmt"
	"time"

	"video_ingest_service/internal/ingest/domain"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IncidentCollection mongo collection of operator incidents
const IncidentCollection = "pipeline_incidents"

// IncidentRecorder operator visible record of pipeline failures
type IncidentRecorder interface {
	Record(ctx context.Context, in domain.Incident) error
}

// InsertOner subset of *mongo.Collection
type InsertOner interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

type mongoIncidentRecorder struct {
	coll InsertOner
	now  func() time.Time
}

// NewMongoIncidentRecorder record into coll
func NewMongoIncidentRecorder(coll InsertOner) IncidentRecorder {
	return &mongoIncidentRecorder{coll: coll, now: time.Now}
}

func (r *mongoIncidentRecorder) Record(ctx context.Context, in domain.Incident) error {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = r.now().UTC()
	}
	if _, err := r.coll.InsertOne(ctx, in); err != nil {
		return fmt.Errorf("%w: record incident %s/%s: %v", domain.ErrTransientInfra, in.AssetID, in.Stage, err)
	}
	return nil
}
