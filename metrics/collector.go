// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters during a single session. It is a
// leaf package with no internal dependencies; consumers export the
// final Snapshot with the session report.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Ingestion
	PayloadsReceived   int64
	FragmentsApplied   int64
	FragmentsDuplicate int64
	FragmentsPending   int64
	DecodeErrors       int64

	// Turns
	TurnsStarted     int64
	TurnsCompleted   int64
	TurnsInterrupted int64
	TurnsTimedOut    int64

	// Engine lifecycle
	EngineRestarts int64

	// Archive
	ArchiveWriteSuccess int64
	ArchiveWriteFailure int64

	// Adapter
	AdapterPublishSuccess int64
	AdapterPublishFailure int64

	// Dimensions (informational, set at construction)
	Mode      string
	Channel   string
	SessionID string
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	payloadsReceived   int64
	fragmentsApplied   int64
	fragmentsDuplicate int64
	fragmentsPending   int64
	decodeErrors       int64

	turnsStarted     int64
	turnsCompleted   int64
	turnsInterrupted int64
	turnsTimedOut    int64

	engineRestarts int64

	archiveWriteSuccess int64
	archiveWriteFailure int64

	adapterPublishSuccess int64
	adapterPublishFailure int64

	mode      string
	channel   string
	sessionID string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(mode, channel, sessionID string) *Collector {
	return &Collector{
		mode:      mode,
		channel:   channel,
		sessionID: sessionID,
	}
}

func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// IncPayloadReceived records one inbound binary payload.
func (c *Collector) IncPayloadReceived() {
	if c == nil {
		return
	}
	c.inc(&c.payloadsReceived)
}

// IncFragmentApplied records a fragment merged into a turn.
func (c *Collector) IncFragmentApplied() {
	if c == nil {
		return
	}
	c.inc(&c.fragmentsApplied)
}

// IncFragmentDuplicate records an idempotently ignored duplicate fragment.
func (c *Collector) IncFragmentDuplicate() {
	if c == nil {
		return
	}
	c.inc(&c.fragmentsDuplicate)
}

// IncFragmentPending records a fragment parked in the out-of-order buffer.
func (c *Collector) IncFragmentPending() {
	if c == nil {
		return
	}
	c.inc(&c.fragmentsPending)
}

// IncDecodeError records a dropped malformed payload.
func (c *Collector) IncDecodeError() {
	if c == nil {
		return
	}
	c.inc(&c.decodeErrors)
}

// IncTurnStarted records a new turn record.
func (c *Collector) IncTurnStarted() {
	if c == nil {
		return
	}
	c.inc(&c.turnsStarted)
}

// IncTurnCompleted records a turn finalized by its final fragment.
func (c *Collector) IncTurnCompleted() {
	if c == nil {
		return
	}
	c.inc(&c.turnsCompleted)
}

// IncTurnInterrupted records a turn finalized by an interrupt frame.
func (c *Collector) IncTurnInterrupted() {
	if c == nil {
		return
	}
	c.inc(&c.turnsInterrupted)
}

// IncTurnTimedOut records a turn flushed by the pending-fragment timeout.
func (c *Collector) IncTurnTimedOut() {
	if c == nil {
		return
	}
	c.inc(&c.turnsTimedOut)
}

// IncEngineRestart records an engine restart after ErrNotRunning.
func (c *Collector) IncEngineRestart() {
	if c == nil {
		return
	}
	c.inc(&c.engineRestarts)
}

// IncArchiveWriteSuccess records a successful archive write (per-call).
func (c *Collector) IncArchiveWriteSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.archiveWriteSuccess)
}

// IncArchiveWriteFailure records a failed archive write (per-call).
func (c *Collector) IncArchiveWriteFailure() {
	if c == nil {
		return
	}
	c.inc(&c.archiveWriteFailure)
}

// IncAdapterPublishSuccess records a successful downstream publish.
func (c *Collector) IncAdapterPublishSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.adapterPublishSuccess)
}

// IncAdapterPublishFailure records a failed downstream publish.
func (c *Collector) IncAdapterPublishFailure() {
	if c == nil {
		return
	}
	c.inc(&c.adapterPublishFailure)
}

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		PayloadsReceived:   c.payloadsReceived,
		FragmentsApplied:   c.fragmentsApplied,
		FragmentsDuplicate: c.fragmentsDuplicate,
		FragmentsPending:   c.fragmentsPending,
		DecodeErrors:       c.decodeErrors,

		TurnsStarted:     c.turnsStarted,
		TurnsCompleted:   c.turnsCompleted,
		TurnsInterrupted: c.turnsInterrupted,
		TurnsTimedOut:    c.turnsTimedOut,

		EngineRestarts: c.engineRestarts,

		ArchiveWriteSuccess: c.archiveWriteSuccess,
		ArchiveWriteFailure: c.archiveWriteFailure,

		AdapterPublishSuccess: c.adapterPublishSuccess,
		AdapterPublishFailure: c.adapterPublishFailure,

		Mode:      c.mode,
		Channel:   c.channel,
		SessionID: c.sessionID,
	}
}
