package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/parleyhq/parley/log"
	"github.com/parleyhq/parley/metrics"
	"github.com/parleyhq/parley/types"
)

// MessageSink persists batches of finalized messages.
type MessageSink interface {
	WriteMessages(ctx context.Context, messages []types.Message) error
}

// SessionSink binds the store to one session's metadata so batch
// writers need only messages.
func (s *Store) SessionSink(meta *types.SessionMeta) MessageSink {
	return &sessionSink{store: s, meta: meta}
}

type sessionSink struct {
	store *Store
	meta  *types.SessionMeta
}

func (s *sessionSink) WriteMessages(ctx context.Context, messages []types.Message) error {
	return s.store.WriteMessages(ctx, s.meta, messages)
}

// FlushTrigger identifies which trigger caused a flush.
type FlushTrigger string

const (
	FlushTriggerCount    FlushTrigger = "count"
	FlushTriggerInterval FlushTrigger = "interval"
	FlushTriggerClose    FlushTrigger = "close"
)

// ErrBatcherInvalidConfig is returned when BatcherConfig is invalid.
var ErrBatcherInvalidConfig = errors.New("invalid batcher config: at least one of FlushCount or FlushInterval must be set")

// BatcherConfig configures a Batcher.
type BatcherConfig struct {
	// FlushCount triggers a flush after N messages accumulate.
	// Zero disables count-based flush.
	FlushCount int

	// FlushInterval triggers a flush every interval.
	// Zero disables interval-based flush.
	FlushInterval time.Duration

	// Logger is an optional logger for flush observability.
	Logger *log.Logger

	// Collector is an optional metrics collector.
	Collector *metrics.Collector
}

// Batcher buffers finalized messages and flushes them to a sink on a
// count threshold, an interval tick, or close.
//
// At-least-once: a failed flush preserves the buffer, ahead of any
// messages added during the write, and the next trigger retries.
// Flushes are serialized by flushMu; mu guards only buffer state, so
// Add never blocks on a slow sink.
type Batcher struct {
	sink      MessageSink
	config    BatcherConfig
	logger    *log.Logger
	collector *metrics.Collector

	mu     sync.Mutex
	buffer []types.Message

	flushMu sync.Mutex

	stopCh  chan struct{}
	stopped bool
}

// NewBatcher creates a batcher. Returns an error if neither flush
// trigger is configured.
func NewBatcher(sink MessageSink, cfg BatcherConfig) (*Batcher, error) {
	if cfg.FlushCount <= 0 && cfg.FlushInterval <= 0 {
		return nil, ErrBatcherInvalidConfig
	}

	b := &Batcher{
		sink:      sink,
		config:    cfg,
		logger:    cfg.Logger,
		collector: cfg.Collector,
		buffer:    make([]types.Message, 0, 32),
		stopCh:    make(chan struct{}),
	}

	if cfg.FlushInterval > 0 {
		go b.intervalLoop()
	}
	return b, nil
}

// Add buffers one finalized message. Never drops; if the count
// threshold is reached, triggers a flush.
func (b *Batcher) Add(ctx context.Context, m types.Message) error {
	b.mu.Lock()
	b.buffer = append(b.buffer, m)
	shouldFlush := b.config.FlushCount > 0 && len(b.buffer) >= b.config.FlushCount
	b.mu.Unlock()

	if shouldFlush {
		return b.triggerFlush(ctx, FlushTriggerCount)
	}
	return nil
}

// Flush writes all buffered messages immediately.
func (b *Batcher) Flush(ctx context.Context) error {
	return b.triggerFlush(ctx, FlushTriggerClose)
}

// Len reports the number of buffered messages.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// triggerFlush swaps the buffer under mu, writes outside mu, and
// restores the batch ahead of newer messages on failure.
func (b *Batcher) triggerFlush(ctx context.Context, trigger FlushTrigger) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.buffer
	if len(batch) == 0 {
		b.mu.Unlock()
		return nil
	}
	b.buffer = make([]types.Message, 0, 32)
	b.mu.Unlock()

	if err := b.sink.WriteMessages(ctx, batch); err != nil {
		b.mu.Lock()
		b.buffer = append(batch, b.buffer...)
		b.mu.Unlock()
		b.collector.IncArchiveWriteFailure()
		if b.logger != nil {
			b.logger.Error("archive flush failed", map[string]any{
				"trigger":  string(trigger),
				"messages": len(batch),
				"error":    err.Error(),
			})
		}
		return err
	}

	b.collector.IncArchiveWriteSuccess()
	if b.logger != nil {
		b.logger.Debug("archive flush", map[string]any{
			"trigger":  string(trigger),
			"messages": len(batch),
		})
	}
	return nil
}

// Close stops the interval goroutine and flushes remaining messages.
func (b *Batcher) Close() error {
	b.mu.Lock()
	if !b.stopped {
		b.stopped = true
		close(b.stopCh)
	}
	b.mu.Unlock()

	return b.Flush(context.Background())
}

func (b *Batcher) intervalLoop() {
	ticker := time.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			hasData := len(b.buffer) > 0
			b.mu.Unlock()
			if hasData {
				// Best-effort; failures retry on the next trigger.
				_ = b.triggerFlush(context.Background(), FlushTriggerInterval)
			}
		case <-b.stopCh:
			return
		}
	}
}
