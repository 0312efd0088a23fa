// Package session orchestrates one conversation session end to end:
// start the agent, join the realtime channel, run the transcript
// engine, fan out snapshots to the UI and the archive, and on close
// stop everything, flush, publish the session-closed event, and report
// the outcome.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/adapter"
	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/archive"
	"github.com/parleyhq/parley/log"
	"github.com/parleyhq/parley/metrics"
	"github.com/parleyhq/parley/rtc"
	"github.com/parleyhq/parley/transcript"
	"github.com/parleyhq/parley/types"
)

// DefaultMaxEngineRestarts bounds automatic engine restarts after an
// unexpected not-running condition.
const DefaultMaxEngineRestarts = 3

// Archive flush defaults.
const (
	DefaultArchiveFlushCount    = 16
	DefaultArchiveFlushInterval = 2 * time.Second
)

// AgentService abstracts the backend agent client.
type AgentService interface {
	Start(ctx context.Context, channel, uid string) (*agent.StartResult, error)
	Stop(ctx context.Context, channel, uid, agentUID, tenantID string) error
	RenewToken(ctx context.Context, channel, uid string) (string, error)
}

// DataChannel abstracts a joined realtime channel.
type DataChannel interface {
	States() <-chan rtc.ConnectionState
	SetMuted(muted bool) error
	Leave() error
	Err() error
}

// JoinFunc joins a realtime channel. Overridable for testing.
type JoinFunc func(ctx context.Context, cfg rtc.Config) (DataChannel, error)

func defaultJoin(ctx context.Context, cfg rtc.Config) (DataChannel, error) {
	return rtc.Join(ctx, cfg)
}

// NoticeLevel classifies a user-facing notice.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a user-facing status line, e.g. an inline error banner.
type Notice struct {
	Level   NoticeLevel
	Message string
}

// Config configures a Conductor.
type Config struct {
	// Channel and UID identify the session (required).
	Channel string
	UID     string
	// TenantID is passed through to the agent stop call.
	TenantID string

	// Mode selects transcript granularity (required).
	Mode types.TranscriptMode

	// Agent is the backend agent service (required).
	Agent AgentService
	// RTCURL is the realtime endpoint (required).
	RTCURL string
	// Token is the initial channel token.
	Token string
	// RTCDialTimeout and RTCRedials tune channel joining; zero applies
	// rtc defaults.
	RTCDialTimeout time.Duration
	RTCRedials     int

	// Store enables transcript archival when set.
	Store *archive.Store
	// Adapters receive the session-closed event.
	Adapters []adapter.Adapter

	// Logger is optional; a session-scoped logger is created when nil.
	Logger *log.Logger
	// Collector is optional; when nil a collector dimensioned with the
	// generated session ID is created.
	Collector *metrics.Collector

	// PendingTimeout and SweepInterval tune the engine; zero applies
	// engine defaults.
	PendingTimeout time.Duration
	SweepInterval  time.Duration

	// ArchiveFlushCount and ArchiveFlushInterval tune the batcher.
	ArchiveFlushCount    int
	ArchiveFlushInterval time.Duration

	// MaxEngineRestarts bounds automatic engine recovery (default 3).
	MaxEngineRestarts int

	// Join overrides channel joining (for testing).
	Join JoinFunc
}

// Conductor owns one session's lifecycle.
type Conductor struct {
	config    Config
	logger    *log.Logger
	collector *metrics.Collector

	meta   types.SessionMeta
	engine *transcript.Engine
	fanout *Fanout

	chanMu  sync.Mutex
	channel DataChannel

	closing atomic.Bool

	restartMu sync.Mutex
	restarts  int

	snapMu sync.Mutex
	last   transcript.Snapshot

	notices chan Notice
}

// New creates a conductor. The session ID is generated here; metadata
// is completed once the agent has started.
func New(cfg Config) (*Conductor, error) {
	if cfg.Channel == "" || cfg.UID == "" {
		return nil, errors.New("session: channel and uid are required")
	}
	if cfg.Agent == nil {
		return nil, errors.New("session: agent service is required")
	}
	if cfg.RTCURL == "" {
		return nil, errors.New("session: rtc url is required")
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("session: invalid transcript mode %q", cfg.Mode)
	}
	if cfg.MaxEngineRestarts <= 0 {
		cfg.MaxEngineRestarts = DefaultMaxEngineRestarts
	}
	if cfg.ArchiveFlushCount <= 0 {
		cfg.ArchiveFlushCount = DefaultArchiveFlushCount
	}
	if cfg.ArchiveFlushInterval <= 0 {
		cfg.ArchiveFlushInterval = DefaultArchiveFlushInterval
	}
	if cfg.Join == nil {
		cfg.Join = defaultJoin
	}

	meta := types.SessionMeta{
		SessionID: uuid.New().String(),
		Channel:   cfg.Channel,
		UID:       types.CanonicalUID(cfg.UID),
		TenantID:  cfg.TenantID,
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger(&meta)
	}
	collector := cfg.Collector
	if collector == nil {
		collector = metrics.NewCollector(string(cfg.Mode), cfg.Channel, meta.SessionID)
	}

	return &Conductor{
		config:    cfg,
		logger:    logger,
		collector: collector,
		meta:      meta,
		fanout:    NewFanout(),
		notices:   make(chan Notice, 16),
	}, nil
}

// Meta returns the session metadata. AgentUID is populated once Run
// has started the agent.
func (c *Conductor) Meta() types.SessionMeta {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	return c.meta
}

// Snapshots returns a new subscription to transcript snapshots.
// Subscribe before calling Run to observe the session from the start.
func (c *Conductor) Snapshots() <-chan transcript.Snapshot {
	return c.fanout.Subscribe()
}

// Notices returns the user-facing notice stream.
func (c *Conductor) Notices() <-chan Notice {
	return c.notices
}

// SetMuted toggles mic publishing on the joined channel.
func (c *Conductor) SetMuted(muted bool) error {
	c.chanMu.Lock()
	ch := c.channel
	c.chanMu.Unlock()
	if ch == nil {
		return errors.New("session: channel not joined")
	}
	return ch.SetMuted(muted)
}

// Run executes the session until ctx is canceled or the channel is
// lost. The returned report is always non-nil; its outcome classifies
// how the session ended.
func (c *Conductor) Run(ctx context.Context) (*types.SessionReport, error) {
	c.setStartedAt(time.Now())
	c.logger.Info("starting session", map[string]any{
		"mode": string(c.config.Mode),
	})

	// Start the agent first; without it there is no conversation.
	started, err := c.config.Agent.Start(ctx, c.meta.Channel, c.meta.UID)
	if err != nil {
		c.notify(NoticeError, fmt.Sprintf("agent start failed: %v", err))
		c.logger.Error("agent start failed", map[string]any{"error": err.Error()})
		return c.finish(types.SessionOutcome{
			Status:  types.OutcomeAgentError,
			Message: fmt.Sprintf("agent start failed: %v", err),
		}), nil
	}
	c.setAgentUID(started.AgentUID)
	c.logger.Info("agent started", map[string]any{
		"agent_id": started.AgentID,
		"state":    started.State,
	})

	engine, err := transcript.New(transcript.Config{
		Mode:           c.config.Mode,
		PendingTimeout: c.config.PendingTimeout,
		SweepInterval:  c.config.SweepInterval,
		OnUpdate:       c.onUpdate,
		Logger:         c.logger,
		Collector:      c.collector,
	})
	if err != nil {
		return c.finishWithAgentStop(ctx, types.SessionOutcome{
			Status:  types.OutcomeAgentError,
			Message: fmt.Sprintf("engine setup failed: %v", err),
		}), nil
	}
	c.engine = engine
	if err := engine.Start(); err != nil {
		return c.finishWithAgentStop(ctx, types.SessionOutcome{
			Status:  types.OutcomeAgentError,
			Message: fmt.Sprintf("engine start failed: %v", err),
		}), nil
	}
	defer engine.Stop()

	// Archive consumer runs off a fanout subscription so slow storage
	// never backs up the payload path. Subscribed before the channel
	// join so no snapshot can slip past it.
	var archiveDone chan error
	var batcher *archive.Batcher
	if c.config.Store != nil {
		b, err := archive.NewBatcher(c.config.Store.SessionSink(c.metaCopy()), archive.BatcherConfig{
			FlushCount:    c.config.ArchiveFlushCount,
			FlushInterval: c.config.ArchiveFlushInterval,
			Logger:        c.logger,
			Collector:     c.collector,
		})
		if err != nil {
			return c.finishWithAgentStop(ctx, types.SessionOutcome{
				Status:  types.OutcomeAgentError,
				Message: fmt.Sprintf("archive setup failed: %v", err),
			}), nil
		}
		batcher = b
		archiveDone = make(chan error, 1)
		go c.archiveLoop(c.fanout.Subscribe(), batcher, archiveDone)
	}

	channel, err := c.config.Join(ctx, rtc.Config{
		URL:         c.config.RTCURL,
		Channel:     c.meta.Channel,
		UID:         c.meta.UID,
		Token:       c.config.Token,
		DialTimeout: c.config.RTCDialTimeout,
		Redials:     c.config.RTCRedials,
		OnData:      c.handleData,
		RenewToken: func(ctx context.Context) (string, error) {
			return c.config.Agent.RenewToken(ctx, c.meta.Channel, c.meta.UID)
		},
		Logger: c.logger,
	})
	if err != nil {
		c.notify(NoticeError, fmt.Sprintf("channel join failed: %v", err))
		c.fanout.Close()
		if archiveDone != nil {
			<-archiveDone
		}
		return c.finishWithAgentStop(ctx, types.SessionOutcome{
			Status:  types.OutcomeChannelError,
			Message: fmt.Sprintf("channel join failed: %v", err),
		}), nil
	}
	c.chanMu.Lock()
	c.channel = channel
	c.chanMu.Unlock()

	// Watch the channel state stream for terminal loss.
	channelDone := make(chan struct{})
	go c.watchStates(channel.States(), channelDone)

	var outcome types.SessionOutcome
	select {
	case <-ctx.Done():
		outcome = types.SessionOutcome{Status: types.OutcomeCompleted}
	case <-channelDone:
		if chErr := channel.Err(); chErr != nil {
			c.notify(NoticeError, fmt.Sprintf("channel lost: %v", chErr))
			outcome = types.SessionOutcome{
				Status:  types.OutcomeChannelError,
				Message: chErr.Error(),
			}
		} else {
			outcome = types.SessionOutcome{
				Status:  types.OutcomeChannelError,
				Message: "channel closed unexpectedly",
			}
		}
	}

	// Teardown order: stop ingest, leave, stop agent, flush archive.
	c.closing.Store(true)
	engine.Stop()
	_ = channel.Leave()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	stopErr := c.config.Agent.Stop(stopCtx, c.meta.Channel, c.meta.UID, c.agentUID(), c.meta.TenantID)
	cancel()
	if stopErr != nil {
		c.logger.Error("agent stop failed", map[string]any{"error": stopErr.Error()})
		c.notify(NoticeError, fmt.Sprintf("agent stop failed: %v", stopErr))
		if outcome.Status == types.OutcomeCompleted {
			outcome = types.SessionOutcome{
				Status:  types.OutcomeAgentError,
				Message: fmt.Sprintf("agent stop failed: %v", stopErr),
			}
		}
	}

	c.fanout.Close()
	if batcher != nil {
		if err := <-archiveDone; err != nil {
			c.logger.Warn("archive final flush failed", map[string]any{"error": err.Error()})
		}
	}

	return c.finish(outcome), nil
}

// onUpdate records the latest snapshot and fans it out.
// Runs synchronously under the engine lock; must stay non-blocking.
func (c *Conductor) onUpdate(snap transcript.Snapshot) {
	c.snapMu.Lock()
	c.last = snap
	c.snapMu.Unlock()
	c.fanout.Publish(snap)
}

// handleData feeds one payload into the engine, recovering from an
// unexpectedly stopped engine with a bounded restart.
func (c *Conductor) handleData(senderID string, payload []byte) {
	err := c.engine.HandlePayload(senderID, payload)
	if err == nil {
		return
	}
	if errors.Is(err, transcript.ErrNotRunning) {
		if c.tryRestartEngine() {
			_ = c.engine.HandlePayload(senderID, payload)
		}
		return
	}
	// Decode errors are already logged and counted by the engine.
}

// tryRestartEngine restarts a stopped engine, bounded by
// MaxEngineRestarts. Never restarts during teardown.
func (c *Conductor) tryRestartEngine() bool {
	if c.closing.Load() {
		return false
	}

	c.restartMu.Lock()
	defer c.restartMu.Unlock()

	if c.restarts >= c.config.MaxEngineRestarts {
		return false
	}
	c.restarts++

	err := c.engine.Start()
	if err != nil && !errors.Is(err, transcript.ErrAlreadyRunning) {
		return false
	}
	c.collector.IncEngineRestart()
	c.logger.Warn("transcript engine restarted", map[string]any{
		"restart": c.restarts,
	})
	if c.restarts == c.config.MaxEngineRestarts {
		c.notify(NoticeError, "transcript engine restart limit reached")
	}
	return true
}

// watchStates forwards connection-state changes as notices and signals
// when the stream reaches its terminal close.
func (c *Conductor) watchStates(states <-chan rtc.ConnectionState, done chan<- struct{}) {
	for s := range states {
		switch s {
		case rtc.StateReconnecting:
			c.notify(NoticeInfo, "connection lost, reconnecting")
		case rtc.StateConnected:
			c.notify(NoticeInfo, "connected")
		}
	}
	close(done)
}

// archiveLoop feeds newly finalized messages to the batcher as
// snapshots arrive, then flushes on subscription close.
func (c *Conductor) archiveLoop(snaps <-chan transcript.Snapshot, batcher *archive.Batcher, done chan<- error) {
	archived := make(map[int64]struct{})
	for snap := range snaps {
		for _, m := range snap.Messages {
			if _, ok := archived[m.TurnID]; ok {
				continue
			}
			archived[m.TurnID] = struct{}{}
			if err := batcher.Add(context.Background(), m); err != nil {
				c.logger.Warn("archive write deferred", map[string]any{
					"turn_id": m.TurnID,
					"error":   err.Error(),
				})
			}
		}
	}
	done <- batcher.Close()
}

// finish builds the final report, persists the session summary, and
// publishes the session-closed event.
func (c *Conductor) finish(outcome types.SessionOutcome) *types.SessionReport {
	meta := c.metaCopy()
	snap := c.lastSnapshot()

	var interrupted int64
	for _, m := range snap.Messages {
		if m.Status == types.StatusInterrupted {
			interrupted++
		}
	}

	report := &types.SessionReport{
		Meta:             *meta,
		Outcome:          outcome,
		MessageCount:     int64(len(snap.Messages)),
		InterruptedCount: interrupted,
		Duration:         time.Since(meta.StartedAt),
		EndedAt:          time.Now(),
	}
	if c.config.Store != nil {
		report.StoragePath = archive.PathFor(meta)

		writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.config.Store.WriteReport(writeCtx, report); err != nil {
			c.logger.Error("session report write failed", map[string]any{"error": err.Error()})
			c.collector.IncArchiveWriteFailure()
		} else {
			c.collector.IncArchiveWriteSuccess()
		}
		cancel()
	}

	c.publishClosed(report)

	c.logger.Info("session finished", map[string]any{
		"outcome":  string(outcome.Status),
		"messages": report.MessageCount,
		"duration": report.Duration.String(),
	})
	return report
}

// finishWithAgentStop stops the agent best-effort before reporting a
// setup failure that happened after the agent had started.
func (c *Conductor) finishWithAgentStop(ctx context.Context, outcome types.SessionOutcome) *types.SessionReport {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	if err := c.config.Agent.Stop(stopCtx, c.meta.Channel, c.meta.UID, c.agentUID(), c.meta.TenantID); err != nil {
		c.logger.Warn("agent stop failed during setup teardown", map[string]any{
			"error": err.Error(),
		})
	}
	cancel()
	return c.finish(outcome)
}

// publishClosed sends the session-closed event to every adapter.
// Publish failures are logged and counted, never fatal.
func (c *Conductor) publishClosed(report *types.SessionReport) {
	if len(c.config.Adapters) == 0 {
		return
	}
	event := adapter.FromReport(report)

	for _, a := range c.config.Adapters {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.Publish(ctx, event); err != nil {
			c.collector.IncAdapterPublishFailure()
			c.logger.Error("session-closed publish failed", map[string]any{
				"error": err.Error(),
			})
		} else {
			c.collector.IncAdapterPublishSuccess()
		}
		cancel()
	}
}

func (c *Conductor) notify(level NoticeLevel, msg string) {
	select {
	case c.notices <- Notice{Level: level, Message: msg}:
	default:
	}
}

func (c *Conductor) setStartedAt(t time.Time) {
	c.snapMu.Lock()
	c.meta.StartedAt = t
	c.snapMu.Unlock()
}

func (c *Conductor) setAgentUID(uid string) {
	c.snapMu.Lock()
	c.meta.AgentUID = uid
	c.snapMu.Unlock()
}

func (c *Conductor) agentUID() string {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	return c.meta.AgentUID
}

func (c *Conductor) metaCopy() *types.SessionMeta {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	meta := c.meta
	return &meta
}

func (c *Conductor) lastSnapshot() transcript.Snapshot {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	return c.last
}
