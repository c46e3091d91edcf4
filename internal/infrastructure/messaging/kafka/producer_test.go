package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
	"github.com/molforge/graphchem/internal/training"
)

// fakeWriter records written messages.
type fakeWriter struct {
	mu       sync.Mutex
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func testEvent() training.ProgressEvent {
	return training.ProgressEvent{
		RunID:     "run-42",
		Stage:     "epoch",
		Epoch:     3,
		Loss:      0.25,
		Timestamp: time.Now(),
	}
}

func TestNewProgressProducer_Validation(t *testing.T) {
	logger := logging.NewNopLogger()

	_, err := NewProgressProducer(ProducerConfig{Topic: "t"}, logger)
	assert.Error(t, err)

	_, err = NewProgressProducer(ProducerConfig{Brokers: []string{"localhost:9092"}}, logger)
	assert.Error(t, err)

	p, err := NewProgressProducer(ProducerConfig{
		Brokers: []string{"localhost:9092"}, Topic: "t",
	}, logger)
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestPublishProgress(t *testing.T) {
	w := &fakeWriter{}
	p := NewProgressProducerWithWriter(w, ProducerConfig{Topic: "t"}, logging.NewNopLogger())

	ev := testEvent()
	require.NoError(t, p.PublishProgress(context.Background(), ev))

	require.Len(t, w.messages, 1)
	assert.Equal(t, []byte("run-42"), w.messages[0].Key)

	var decoded training.ProgressEvent
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &decoded))
	assert.Equal(t, ev.RunID, decoded.RunID)
	assert.Equal(t, ev.Epoch, decoded.Epoch)
	assert.Equal(t, ev.Loss, decoded.Loss)

	assert.Equal(t, int64(1), p.Sent())
	assert.Equal(t, int64(0), p.Failed())
}

func TestPublishProgress_WriteError(t *testing.T) {
	w := &fakeWriter{err: assert.AnError}
	p := NewProgressProducerWithWriter(w, ProducerConfig{Topic: "t"}, logging.NewNopLogger())

	err := p.PublishProgress(context.Background(), testEvent())
	assert.Error(t, err)
	assert.Equal(t, int64(1), p.Failed())
}

func TestPublishProgress_AfterClose(t *testing.T) {
	w := &fakeWriter{}
	p := NewProgressProducerWithWriter(w, ProducerConfig{Topic: "t"}, logging.NewNopLogger())

	require.NoError(t, p.Close())
	assert.True(t, w.closed)

	err := p.PublishProgress(context.Background(), testEvent())
	assert.ErrorIs(t, err, ErrProducerClosed)

	// Close is idempotent.
	assert.NoError(t, p.Close())
}
