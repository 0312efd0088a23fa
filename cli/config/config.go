package config

import (
	"fmt"
	"time"
)

// Config represents a parley.yaml configuration file.
// All values are optional and act as defaults for parley attach flags.
// CLI flags always override config values.
type Config struct {
	Channel  string `yaml:"channel"`
	UID      string `yaml:"uid"`
	TenantID string `yaml:"tenant_id"`
	Mode     string `yaml:"mode"`

	Agent   AgentConfig   `yaml:"agent"`
	RTC     RTCConfig     `yaml:"rtc"`
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
	Archive ArchiveConfig `yaml:"archive"`
	Adapter AdapterConfig `yaml:"adapter"`
}

// AgentConfig holds agent service defaults from the config file.
type AgentConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
}

// RTCConfig holds data channel defaults from the config file.
type RTCConfig struct {
	URL         string   `yaml:"url"`
	Token       string   `yaml:"token,omitempty"`
	DialTimeout Duration `yaml:"dial_timeout,omitempty"`
	Redials     *int     `yaml:"redials,omitempty"`
}

// EngineConfig holds reassembly engine defaults from the config file.
type EngineConfig struct {
	PendingTimeout Duration `yaml:"pending_timeout,omitempty"`
	SweepInterval  Duration `yaml:"sweep_interval,omitempty"`
}

// StorageConfig holds storage defaults from the config file.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// ArchiveConfig holds transcript batching defaults from the config file.
type ArchiveConfig struct {
	FlushCount    int      `yaml:"flush_count"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
