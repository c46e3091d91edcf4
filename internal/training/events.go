package training

import (
	"context"
	"time"
)

// ProgressEvent is emitted after every training batch and at every epoch
// boundary, so downstream consumers can track long runs without polling.
type ProgressEvent struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"` // "batch", "epoch", "done"
	Epoch     int       `json:"epoch"`
	Batch     int       `json:"batch"`
	Loss      float64   `json:"loss"`
	MeanAUC   float64   `json:"mean_auc,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressSink receives training progress events.  Implementations must be
// safe for use from the training goroutine; slow sinks should buffer
// internally rather than stall the epoch loop.
type ProgressSink interface {
	PublishProgress(ctx context.Context, ev ProgressEvent) error
}

// CheckpointStore persists encoded model checkpoints under a key.
type CheckpointStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// nopSink discards events.
type nopSink struct{}

func (nopSink) PublishProgress(context.Context, ProgressEvent) error { return nil }
