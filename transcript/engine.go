// Package transcript implements the fragment reassembly engine.
//
// The engine consumes binary payloads from the channel's data stream,
// decodes them into message fragments, merges fragments into ordered
// turn records, and emits an immutable snapshot of the transcript after
// every state change. Fragments for one turn may arrive in any order
// and may be re-delivered; the reassembled text is identical to strict
// in-order delivery.
package transcript

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/parleyhq/parley/log"
	"github.com/parleyhq/parley/metrics"
	"github.com/parleyhq/parley/types"
	"github.com/parleyhq/parley/wire"
)

// Defaults for engine configuration.
const (
	// DefaultPendingTimeout bounds how long out-of-order fragments wait
	// for a gap to close before the turn is flushed.
	DefaultPendingTimeout = 3 * time.Second
	// DefaultSweepInterval is the periodic maintenance cadence.
	DefaultSweepInterval = 250 * time.Millisecond
)

// Snapshot is an immutable view of the transcript handed to consumers.
// Messages holds terminal turns ordered by turn ID ascending;
// InProgress is the most recent non-terminal turn, or nil. Consumers
// never observe engine-owned mutable state.
type Snapshot struct {
	Messages   []types.Message
	InProgress *types.Message
}

// UpdateFunc receives a snapshot after each state change.
// Called synchronously from the payload or sweep path; implementations
// must not block and must not call back into the engine.
type UpdateFunc func(Snapshot)

// Config configures an Engine.
type Config struct {
	// Mode selects fragment granularity. Fixed for the engine lifetime.
	Mode types.TranscriptMode

	// PendingTimeout bounds the out-of-order buffer per turn, measured
	// from the first parked fragment. Default 3s.
	PendingTimeout time.Duration

	// SweepInterval is the periodic maintenance cadence. Default 250ms.
	SweepInterval time.Duration

	// OnUpdate receives snapshots. Required.
	OnUpdate UpdateFunc

	// Logger is an optional logger for drop/flush observability.
	Logger *log.Logger

	// Collector is an optional metrics collector.
	Collector *metrics.Collector
}

// Engine reassembles message fragments into transcript messages.
//
// All state is instance-scoped: turn records, per-sender packet
// assemblers, and the sweep task are owned by the engine and released
// by Stop. The engine is restartable; Stop discards buffered partial
// state, Start begins a fresh transcript.
type Engine struct {
	config    Config
	logger    *log.Logger
	collector *metrics.Collector

	mu         sync.Mutex
	running    bool
	turns      map[int64]*turn
	assemblers map[string]*wire.Assembler
	dirty      bool
	stopCh     chan struct{}

	// now is stubbed in tests.
	now func() time.Time
}

// New creates an engine. Returns an error for an invalid mode or a
// missing update callback.
func New(cfg Config) (*Engine, error) {
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("invalid transcript mode %q", cfg.Mode)
	}
	if cfg.OnUpdate == nil {
		return nil, fmt.Errorf("transcript engine requires an OnUpdate callback")
	}
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = DefaultPendingTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	return &Engine{
		config:    cfg,
		logger:    cfg.Logger,
		collector: cfg.Collector,
		now:       time.Now,
	}, nil
}

// Start begins listening for payloads and starts the periodic sweep.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrAlreadyRunning
	}

	e.running = true
	e.turns = make(map[int64]*turn)
	e.assemblers = make(map[string]*wire.Assembler)
	e.dirty = false
	e.stopCh = make(chan struct{})

	go e.sweepLoop(e.stopCh)
	return nil
}

// Stop halts the sweep and discards buffered partial fragments.
// Safe to call when not running.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.turns = nil
	e.assemblers = nil
	e.mu.Unlock()
}

// Running reports whether the engine is started.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// HandlePayload decodes one binary payload from senderID and applies it.
// Payloads may carry partial frames or several frames; the engine
// buffers per sender until frames complete.
//
// Malformed frames are dropped: the returned *wire.FrameError is an
// observability signal, never a fatal condition, and the engine state
// stays consistent. Returns ErrNotRunning before Start.
func (e *Engine) HandlePayload(senderID string, data []byte) error {
	sender := types.CanonicalUID(senderID)

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.collector.IncPayloadReceived()

	asm, ok := e.assemblers[sender]
	if !ok {
		asm = wire.NewAssembler()
		e.assemblers[sender] = asm
	}

	payloads, feedErr := asm.Feed(data)
	if feedErr != nil {
		// Framing lost for this sender; drop the buffer and resync on
		// the next packet boundary.
		asm.Reset()
		e.collector.IncDecodeError()
	}

	var firstDecodeErr error
	for _, payload := range payloads {
		if err := e.applyPayloadLocked(payload); err != nil && firstDecodeErr == nil {
			firstDecodeErr = err
		}
	}

	e.emitIfDirtyLocked()
	e.mu.Unlock()

	if feedErr != nil {
		e.logDrop("frame stream resync", feedErr)
		return feedErr
	}
	if firstDecodeErr != nil {
		return firstDecodeErr
	}
	return nil
}

// applyPayloadLocked decodes and applies a single complete frame payload.
// Caller must hold mu.
func (e *Engine) applyPayloadLocked(payload []byte) error {
	decoded, err := wire.DecodeFrame(payload)
	if err != nil {
		e.collector.IncDecodeError()
		e.logDrop("fragment dropped", err)
		return err
	}

	switch frame := decoded.(type) {
	case *types.FragmentFrame:
		e.applyFragmentsLocked(frame)
	case *types.InterruptFrame:
		e.applyInterruptLocked(frame)
	}
	return nil
}

// applyFragmentsLocked merges each normalized fragment of a frame.
// Caller must hold mu.
func (e *Engine) applyFragmentsLocked(frame *types.FragmentFrame) {
	now := e.now()
	for _, frag := range frame.Fragments(e.config.Mode) {
		t, ok := e.turns[frag.TurnID]
		if !ok {
			t = newTurn(frag.TurnID, frag.UID)
			e.turns[frag.TurnID] = t
			e.collector.IncTurnStarted()
			e.dirty = true
		}

		var res applyResult
		if e.config.Mode == types.ModeWords {
			res = t.applyTimed(frag, now)
		} else {
			res = t.applySequenced(frag, now)
		}

		switch res {
		case applyAppended:
			e.collector.IncFragmentApplied()
			e.dirty = true
			if t.status == types.StatusComplete {
				e.collector.IncTurnCompleted()
			}
		case applyParked:
			e.collector.IncFragmentPending()
		case applyIgnored:
			e.collector.IncFragmentDuplicate()
		}
	}
}

// applyInterruptLocked finalizes an in-progress turn as interrupted.
// Interrupts for unknown or already-terminal turns are ignored.
// Caller must hold mu.
func (e *Engine) applyInterruptLocked(frame *types.InterruptFrame) {
	t, ok := e.turns[frame.TurnID]
	if !ok {
		return
	}
	if t.interrupt() {
		e.collector.IncTurnInterrupted()
		e.dirty = true
	}
}

// sweepLoop runs periodic maintenance until stopCh closes: expired
// pending buffers are flushed and a snapshot is emitted if anything
// changed since the last emission, so time-based transitions are
// observed without a new payload.
func (e *Engine) sweepLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(e.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}

// sweep flushes timed-out turns and emits a snapshot if state changed.
func (e *Engine) sweep() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}

	now := e.now()
	for _, t := range e.turns {
		if !t.pendingExpired(now, e.config.PendingTimeout) {
			continue
		}
		finalized := t.finalSeen
		t.complete()
		e.dirty = true
		if finalized {
			// Word stream whose settle window elapsed after the
			// closing token: a normal completion.
			e.collector.IncTurnCompleted()
			continue
		}
		// The gap never closed: finalize with the contiguously
		// accumulated text and discard parked fragments.
		e.collector.IncTurnTimedOut()
		if e.logger != nil {
			e.logger.Warn("turn flushed after pending timeout", map[string]any{
				"turn_id": t.id,
				"uid":     t.uid,
			})
		}
	}

	e.emitIfDirtyLocked()
	e.mu.Unlock()
}

// emitIfDirtyLocked emits a snapshot and clears the dirty flag.
// Emission happens under mu so consumers observe a monotonically
// advancing view; OnUpdate must not call back into the engine.
// Caller must hold mu.
func (e *Engine) emitIfDirtyLocked() {
	if !e.dirty {
		return
	}
	e.dirty = false
	e.config.OnUpdate(e.snapshotLocked())
}

// snapshotLocked copies current state into an immutable Snapshot.
// Terminal turns are surfaced ordered by turn ID; of the non-terminal
// turns only the most recent is surfaced, as the in-progress message.
// Caller must hold mu.
func (e *Engine) snapshotLocked() Snapshot {
	messages := make([]types.Message, 0, len(e.turns))
	var inProgress *types.Message

	for _, t := range e.turns {
		if t.status.IsTerminal() {
			messages = append(messages, t.message())
			continue
		}
		if inProgress == nil || t.id > inProgress.TurnID {
			m := t.message()
			inProgress = &m
		}
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].TurnID < messages[j].TurnID
	})

	return Snapshot{Messages: messages, InProgress: inProgress}
}

// SnapshotNow returns the current snapshot without waiting for a
// state change. Returns an empty snapshot when not running.
func (e *Engine) SnapshotNow() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return Snapshot{}
	}
	return e.snapshotLocked()
}

func (e *Engine) logDrop(msg string, err error) {
	if e.logger == nil {
		return
	}
	e.logger.Warn(msg, map[string]any{
		"error": err.Error(),
	})
}
