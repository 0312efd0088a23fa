package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/parleyhq/parley/archive"
	"github.com/parleyhq/parley/cli/render"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// SessionsCommand returns the sessions command with subcommands. All
// subcommands are read-only views over the archive.
func SessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Browse archived sessions (list, inspect, stats)",
		Subcommands: []*cli.Command{
			sessionsListCommand(),
			sessionsInspectCommand(),
			sessionsStatsCommand(),
		},
	}
}

// buildReader creates an archive reader from the storage flags.
func buildReader(c *cli.Context) (*archive.Reader, error) {
	cfg := archive.Config{Dataset: c.String("storage-dataset")}
	path := c.String("storage-path")

	switch backend := c.String("storage-backend"); backend {
	case "", "fs":
		if path == "" {
			return nil, fmt.Errorf("--storage-path is required")
		}
		return archive.NewFSReader(cfg, path)
	case "s3":
		if path == "" {
			return nil, fmt.Errorf("--storage-path is required (bucket/prefix)")
		}
		bucket, prefix := archive.ParseS3Path(path)
		return archive.NewS3Reader(cfg, archive.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       c.String("storage-region"),
			Endpoint:     c.String("storage-endpoint"),
			UsePathStyle: c.Bool("storage-path-style"),
		})
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (must be fs or s3)", backend)
	}
}

func sessionsListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List archived sessions, newest first",
		Flags: append(append(ReadOnlyFlags(), StorageFlags()...),
			&cli.StringFlag{
				Name:  "channel",
				Usage: "Filter by channel name",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of sessions to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: sessionsListAction,
	}
}

func sessionsListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for list commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}

	reader, err := buildReader(c)
	if err != nil {
		return err
	}

	results, err := reader.ListSessions(c.Context, c.String("channel"))
	if err != nil {
		return err
	}

	limit := c.Int("limit")
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(results) > listWarningThreshold && limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(results))
	}

	return r.Render(results)
}

func sessionsInspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show one session's summary and transcript",
		ArgsUsage: "<session-id>",
		Flags:     append(TUIReadOnlyFlags(), StorageFlags()...),
		Action:    sessionsInspectAction,
	}
}

func sessionsInspectAction(c *cli.Context) error {
	sessionID := c.Args().First()
	if sessionID == "" {
		return cli.Exit("session id argument is required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	reader, err := buildReader(c)
	if err != nil {
		return err
	}

	detail, err := reader.InspectSession(c.Context, sessionID)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("inspect_session", detail)
	}
	return r.Render(detail)
}

func sessionsStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Aggregate archived session statistics",
		Flags: append(append(TUIReadOnlyFlags(), StorageFlags()...),
			&cli.StringFlag{
				Name:  "channel",
				Usage: "Scope stats to one channel",
			},
		),
		Action: sessionsStatsAction,
	}
}

func sessionsStatsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	reader, err := buildReader(c)
	if err != nil {
		return err
	}

	stats, err := reader.Stats(c.Context, c.String("channel"))
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_sessions", stats)
	}
	return r.Render(stats)
}
