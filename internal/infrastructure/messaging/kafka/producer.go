// Package kafka publishes training progress events to a Kafka topic so that
// dashboards and schedulers can follow long runs without polling the API.
package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
	"github.com/molforge/graphchem/internal/training"
	"github.com/molforge/graphchem/pkg/errors"
)

// ErrProducerClosed is returned by publish calls after Close.
var ErrProducerClosed = errors.New(errors.ErrCodeInternal, "kafka producer closed")

// ProducerConfig holds the progress producer settings.
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	MaxRetries   int
	BatchTimeout time.Duration
	WriteTimeout time.Duration

	// Async drops the publish onto a goroutine and logs failures instead of
	// returning them; training throughput then never stalls on the broker.
	Async bool
}

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProgressProducer publishes training.ProgressEvent values as JSON messages
// keyed by run ID, so all events of one run land on one partition in order.
type ProgressProducer struct {
	writer WriterInterface
	config ProducerConfig
	logger logging.Logger
	closed atomic.Bool
	sent   atomic.Int64
	failed atomic.Int64
}

// NewProgressProducer creates a producer for the configured topic.
func NewProgressProducer(cfg ProducerConfig, logger logging.Logger) (*ProgressProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeBadRequest, "kafka brokers required")
	}
	if cfg.Topic == "" {
		return nil, errors.New(errors.ErrCodeBadRequest, "kafka topic required")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxRetries + 1,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return &ProgressProducer{writer: writer, config: cfg, logger: logger}, nil
}

// NewProgressProducerWithWriter injects a writer, for tests.
func NewProgressProducerWithWriter(w WriterInterface, cfg ProducerConfig, logger logging.Logger) *ProgressProducer {
	return &ProgressProducer{writer: w, config: cfg, logger: logger}
}

// PublishProgress implements training.ProgressSink.
func (p *ProgressProducer) PublishProgress(ctx context.Context, ev training.ProgressEvent) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode progress event")
	}
	msg := kafka.Message{
		Key:   []byte(ev.RunID),
		Value: value,
		Time:  ev.Timestamp,
	}

	if p.config.Async {
		go p.write(context.WithoutCancel(ctx), msg, ev)
		return nil
	}
	return p.write(ctx, msg, ev)
}

func (p *ProgressProducer) write(ctx context.Context, msg kafka.Message, ev training.ProgressEvent) error {
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.failed.Add(1)
		p.logger.Warn("failed to publish progress event",
			logging.String("run_id", ev.RunID),
			logging.String("stage", ev.Stage),
			logging.Err(err),
		)
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to publish progress event")
	}
	p.sent.Add(1)
	return nil
}

// Sent returns the number of successfully published events.
func (p *ProgressProducer) Sent() int64 { return p.sent.Load() }

// Failed returns the number of failed publishes.
func (p *ProgressProducer) Failed() int64 { return p.failed.Load() }

// Close flushes and closes the underlying writer.  Idempotent.
func (p *ProgressProducer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("kafka progress producer closed", logging.Int64("sent", p.sent.Load()))
	return err
}
