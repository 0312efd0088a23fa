// Package archive persists finalized transcript messages as JSONL
// records in a lode dataset partitioned by channel, day, and session.
// Storage backends are filesystem, in-memory (tests), and S3-compatible
// object stores.
package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"

	"github.com/parleyhq/parley/types"
)

// partitionKeys define the Hive layout shared by the write and read
// paths. Readers must use the same layout to resolve paths.
var partitionKeys = []string{"channel", "day", "session_id"}

// Config configures an archive store.
type Config struct {
	// Dataset is the lode dataset identifier (required).
	Dataset string
}

// Store writes transcript records to a lode dataset.
type Store struct {
	dataset lode.Dataset
	config  Config
}

// NewStore creates a store with a custom lode store factory.
// Use lode.NewMemoryFactory() for testing.
func NewStore(cfg Config, factory lode.StoreFactory) (*Store, error) {
	if cfg.Dataset == "" {
		return nil, errors.New("archive store requires a dataset name")
	}

	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, err
	}
	return &Store{dataset: ds, config: cfg}, nil
}

// NewFSStore creates a store with filesystem storage rooted at root.
func NewFSStore(cfg Config, root string) (*Store, error) {
	return NewStore(cfg, lode.NewFSFactory(root))
}

// NewMemoryStore creates a store with in-memory storage.
func NewMemoryStore(cfg Config) (*Store, error) {
	return NewStore(cfg, lode.NewMemoryFactory())
}

// newDataset creates a dataset with the archive layout and codec.
// The read side uses the same construction for compatibility.
func newDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteMessages persists a batch of finalized messages for the session.
func (s *Store) WriteMessages(ctx context.Context, meta *types.SessionMeta, messages []types.Message) error {
	if len(messages) == 0 {
		return nil
	}

	records := make([]any, 0, len(messages))
	for _, m := range messages {
		records = append(records, toMessageRecord(meta, m))
	}

	if _, err := s.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return fmt.Errorf("archive: write messages: %w", err)
	}
	return nil
}

// WriteReport persists the final session summary record.
func (s *Store) WriteReport(ctx context.Context, report *types.SessionReport) error {
	record := toSessionRecord(report)
	if _, err := s.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return fmt.Errorf("archive: write session report: %w", err)
	}
	return nil
}

// Dataset exposes the underlying dataset for the read side.
func (s *Store) Dataset() lode.Dataset {
	return s.dataset
}

// PathFor returns the Hive partition path for a session, used as the
// storage path reference in reports and downstream events.
func PathFor(meta *types.SessionMeta) string {
	return fmt.Sprintf("channel=%s/day=%s/session_id=%s",
		meta.Channel, types.DeriveDay(meta.StartedAt), meta.SessionID)
}

// Close releases store resources.
func (s *Store) Close() error {
	// Dataset does not require explicit close in the current lode API.
	return nil
}
