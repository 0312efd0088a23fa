package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/parleyhq/parley/adapter"
	redisadapter "github.com/parleyhq/parley/adapter/redis"
	"github.com/parleyhq/parley/adapter/webhook"
	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/archive"
	"github.com/parleyhq/parley/cli/config"
	"github.com/parleyhq/parley/cli/tui"
	"github.com/parleyhq/parley/session"
	"github.com/parleyhq/parley/types"
)

// Exit codes for attach.
const (
	exitCompleted    = 0
	exitAgentError   = 1
	exitChannelError = 2
)

// AttachCommand returns the attach command, the only command that
// joins a live session.
func AttachCommand() *cli.Command {
	return &cli.Command{
		Name:  "attach",
		Usage: "Attach to a live conversation session",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to parley.yaml config file",
			},
			&cli.StringFlag{
				Name:  "channel",
				Usage: "Realtime channel name",
			},
			&cli.StringFlag{
				Name:  "uid",
				Usage: "Local participant identity",
			},
			&cli.StringFlag{
				Name:  "tenant-id",
				Usage: "Backend tenant identifier (optional)",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Transcript mode: text or words",
			},
			&cli.StringFlag{
				Name:  "agent-url",
				Usage: "Agent service base URL",
			},
			&cli.StringFlag{
				Name:  "rtc-url",
				Usage: "Realtime endpoint URL",
			},
			&cli.StringFlag{
				Name:  "token",
				Usage: "Initial channel token",
			},
			&cli.DurationFlag{
				Name:  "pending-timeout",
				Usage: "How long out-of-order fragments may wait before a flush",
			},
			&cli.DurationFlag{
				Name:  "sweep-interval",
				Usage: "How often pending fragments are checked for timeout",
			},
			&cli.IntFlag{
				Name:  "archive-flush-count",
				Usage: "Messages per archive write batch",
			},
			&cli.DurationFlag{
				Name:  "archive-flush-interval",
				Usage: "Maximum delay before a partial archive batch is written",
			},
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Session-closed adapter: webhook or redis",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Adapter endpoint URL",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis pub/sub channel name",
			},
			&cli.DurationFlag{
				Name:  "adapter-timeout",
				Usage: "Adapter publish timeout",
			},
			&cli.IntFlag{
				Name:  "adapter-retries",
				Usage: "Adapter retry attempts",
				Value: -1,
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Render the session in the interactive TUI",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the final session summary",
			},
		}, StorageFlags()...),
		Action: attachAction,
	}
}

// attachSettings holds the effective attach configuration after
// merging flags over the config file. Flags always win.
type attachSettings struct {
	channel  string
	uid      string
	tenantID string
	mode     types.TranscriptMode

	agentURL     string
	agentHeaders map[string]string
	agentTimeout time.Duration

	rtcURL         string
	token          string
	rtcDialTimeout time.Duration
	rtcRedials     int

	pendingTimeout time.Duration
	sweepInterval  time.Duration

	storage       config.StorageConfig
	flushCount    int
	flushInterval time.Duration

	adapterType    string
	adapterURL     string
	adapterChannel string
	adapterHeaders map[string]string
	adapterTimeout time.Duration
	adapterRetries int
}

func resolveAttach(c *cli.Context) (*attachSettings, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	s := &attachSettings{
		channel:        pick(c.String("channel"), cfg.Channel),
		uid:            pick(c.String("uid"), cfg.UID),
		tenantID:       pick(c.String("tenant-id"), cfg.TenantID),
		mode:           types.TranscriptMode(pick(c.String("mode"), cfg.Mode)),
		agentURL:       pick(c.String("agent-url"), cfg.Agent.URL),
		agentHeaders:   cfg.Agent.Headers,
		agentTimeout:   cfg.Agent.Timeout.Duration,
		rtcURL:         pick(c.String("rtc-url"), cfg.RTC.URL),
		token:          pick(c.String("token"), cfg.RTC.Token),
		rtcDialTimeout: cfg.RTC.DialTimeout.Duration,
		pendingTimeout: pickDuration(c, "pending-timeout", cfg.Engine.PendingTimeout.Duration),
		sweepInterval:  pickDuration(c, "sweep-interval", cfg.Engine.SweepInterval.Duration),
		storage:        cfg.Storage,
		flushCount:     pickInt(c, "archive-flush-count", cfg.Archive.FlushCount),
		flushInterval:  pickDuration(c, "archive-flush-interval", cfg.Archive.FlushInterval.Duration),
		adapterType:    pick(c.String("adapter"), cfg.Adapter.Type),
		adapterURL:     pick(c.String("adapter-url"), cfg.Adapter.URL),
		adapterChannel: pick(c.String("adapter-channel"), cfg.Adapter.Channel),
		adapterHeaders: cfg.Adapter.Headers,
		adapterTimeout: pickDuration(c, "adapter-timeout", cfg.Adapter.Timeout.Duration),
	}

	s.adapterRetries = -1
	if c.IsSet("adapter-retries") {
		s.adapterRetries = c.Int("adapter-retries")
	} else if cfg.Adapter.Retries != nil {
		s.adapterRetries = *cfg.Adapter.Retries
	}

	if cfg.RTC.Redials != nil {
		s.rtcRedials = *cfg.RTC.Redials
	}

	if v := c.String("storage-backend"); v != "" {
		s.storage.Backend = v
	}
	if v := c.String("storage-path"); v != "" {
		s.storage.Path = v
	}
	if c.IsSet("storage-dataset") || s.storage.Dataset == "" {
		s.storage.Dataset = c.String("storage-dataset")
	}
	if v := c.String("storage-region"); v != "" {
		s.storage.Region = v
	}
	if v := c.String("storage-endpoint"); v != "" {
		s.storage.Endpoint = v
	}
	if c.IsSet("storage-path-style") {
		s.storage.S3PathStyle = c.Bool("storage-path-style")
	}

	if s.mode == "" {
		s.mode = types.ModeText
	}

	switch {
	case s.channel == "":
		return nil, fmt.Errorf("--channel is required")
	case s.uid == "":
		return nil, fmt.Errorf("--uid is required")
	case s.agentURL == "":
		return nil, fmt.Errorf("--agent-url is required")
	case s.rtcURL == "":
		return nil, fmt.Errorf("--rtc-url is required")
	case !s.mode.Valid():
		return nil, fmt.Errorf("invalid mode %q (must be text or words)", s.mode)
	}

	return s, nil
}

func pick(flag, fromConfig string) string {
	if flag != "" {
		return flag
	}
	return fromConfig
}

func pickDuration(c *cli.Context, name string, fromConfig time.Duration) time.Duration {
	if c.IsSet(name) {
		return c.Duration(name)
	}
	return fromConfig
}

func pickInt(c *cli.Context, name string, fromConfig int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	return fromConfig
}

// buildStore creates the archive store, or nil when no backend is
// configured.
func buildStore(s *attachSettings) (*archive.Store, error) {
	cfg := archive.Config{Dataset: s.storage.Dataset}

	switch s.storage.Backend {
	case "":
		return nil, nil
	case "fs":
		if s.storage.Path == "" {
			return nil, fmt.Errorf("fs backend requires --storage-path")
		}
		return archive.NewFSStore(cfg, s.storage.Path)
	case "memory":
		return archive.NewMemoryStore(cfg)
	case "s3":
		if s.storage.Path == "" {
			return nil, fmt.Errorf("s3 backend requires --storage-path (bucket/prefix)")
		}
		bucket, prefix := archive.ParseS3Path(s.storage.Path)
		return archive.NewS3Store(cfg, archive.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       s.storage.Region,
			Endpoint:     s.storage.Endpoint,
			UsePathStyle: s.storage.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (must be fs, s3, or memory)", s.storage.Backend)
	}
}

// buildAdapters creates the configured session-closed adapters.
func buildAdapters(s *attachSettings) ([]adapter.Adapter, error) {
	switch s.adapterType {
	case "":
		return nil, nil

	case "webhook":
		retries := s.adapterRetries
		if retries < 0 {
			retries = webhook.DefaultRetries
		}
		a, err := webhook.New(webhook.Config{
			URL:     s.adapterURL,
			Headers: s.adapterHeaders,
			Timeout: s.adapterTimeout,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return []adapter.Adapter{a}, nil

	case "redis":
		retries := s.adapterRetries
		if retries < 0 {
			retries = redisadapter.DefaultRetries
		}
		a, err := redisadapter.New(redisadapter.Config{
			URL:     s.adapterURL,
			Channel: s.adapterChannel,
			Timeout: s.adapterTimeout,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return []adapter.Adapter{a}, nil

	default:
		return nil, fmt.Errorf("unknown adapter type: %s (must be webhook or redis)", s.adapterType)
	}
}

func attachAction(c *cli.Context) error {
	settings, err := resolveAttach(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid attach config: %v", err), exitAgentError)
	}

	agentClient, err := agent.New(agent.Config{
		BaseURL: settings.agentURL,
		Headers: settings.agentHeaders,
		Timeout: settings.agentTimeout,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("agent client: %v", err), exitAgentError)
	}
	defer agentClient.Close()

	store, err := buildStore(settings)
	if err != nil {
		return cli.Exit(fmt.Sprintf("archive store: %v", err), exitAgentError)
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	adapters, err := buildAdapters(settings)
	if err != nil {
		return cli.Exit(fmt.Sprintf("adapter: %v", err), exitAgentError)
	}
	defer func() {
		for _, a := range adapters {
			_ = a.Close()
		}
	}()

	conductor, err := session.New(session.Config{
		Channel:              settings.channel,
		UID:                  settings.uid,
		TenantID:             settings.tenantID,
		Mode:                 settings.mode,
		Agent:                agentClient,
		RTCURL:               settings.rtcURL,
		Token:                settings.token,
		RTCDialTimeout:       settings.rtcDialTimeout,
		RTCRedials:           settings.rtcRedials,
		Store:                store,
		Adapters:             adapters,
		PendingTimeout:       settings.pendingTimeout,
		SweepInterval:        settings.sweepInterval,
		ArchiveFlushCount:    settings.flushCount,
		ArchiveFlushInterval: settings.flushInterval,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("session: %v", err), exitAgentError)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	reportCh := make(chan *types.SessionReport, 1)
	go func() {
		report, _ := conductor.Run(ctx)
		reportCh <- report
	}()

	if c.Bool("tui") {
		userQuit, tuiErr := tui.RunLive(conductor)
		if tuiErr != nil {
			fmt.Fprintf(os.Stderr, "tui error: %v\n", tuiErr)
		}
		if userQuit || tuiErr != nil {
			cancel()
		}
	} else {
		followPlain(conductor)
	}

	report := <-reportCh
	if !c.Bool("quiet") {
		printSessionReport(report)
	}

	return cli.Exit("", outcomeToExitCode(report.Outcome.Status))
}

// followPlain streams finalized messages to stdout and notices to
// stderr until the session ends.
func followPlain(conductor *session.Conductor) {
	snaps := conductor.Snapshots()
	notices := conductor.Notices()
	printed := make(map[int64]bool)

	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			agentUID := conductor.Meta().AgentUID
			for _, m := range snap.Messages {
				if printed[m.TurnID] {
					continue
				}
				printed[m.TurnID] = true

				speaker := "you"
				if types.RoleOf(m.UID, agentUID) == types.RoleAssistant {
					speaker = "agent"
				}
				marker := ""
				if m.Status == types.StatusInterrupted {
					marker = " [interrupted]"
				}
				fmt.Printf("%s> %s%s\n", speaker, m.Text, marker)
			}

		case n := <-notices:
			fmt.Fprintf(os.Stderr, "%s: %s\n", n.Level, n.Message)
		}
	}
}

func outcomeToExitCode(status types.SessionOutcomeStatus) int {
	switch status {
	case types.OutcomeCompleted:
		return exitCompleted
	case types.OutcomeAgentError:
		return exitAgentError
	case types.OutcomeChannelError:
		return exitChannelError
	default:
		return exitAgentError
	}
}

func printSessionReport(report *types.SessionReport) {
	fmt.Printf("\nsession_id=%s, outcome=%s, duration=%s\n",
		report.Meta.SessionID,
		report.Outcome.Status,
		report.Duration.Round(time.Millisecond),
	)

	fmt.Printf("\n=== Session Result ===\n")
	fmt.Printf("Session ID:   %s\n", report.Meta.SessionID)
	fmt.Printf("Channel:      %s\n", report.Meta.Channel)
	fmt.Printf("UID:          %s\n", report.Meta.UID)
	if report.Meta.AgentUID != "" {
		fmt.Printf("Agent UID:    %s\n", report.Meta.AgentUID)
	}
	fmt.Printf("Outcome:      %s\n", report.Outcome.Status)
	if report.Outcome.Message != "" {
		fmt.Printf("Message:      %s\n", report.Outcome.Message)
	}
	fmt.Printf("Messages:     %d\n", report.MessageCount)
	fmt.Printf("Interrupted:  %d\n", report.InterruptedCount)
	fmt.Printf("Duration:     %s\n", report.Duration)
	if report.StoragePath != "" {
		fmt.Printf("Archive:      %s\n", report.StoragePath)
	}
}
