package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Security  SecurityConfig  `yaml:"security"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Messages  MessagesConfig  `yaml:"messages"`
	Blobs     BlobsConfig     `yaml:"blobs"`
	Logging   LoggingConfig   `yaml:"logging"`
	Retention RetentionConfig `yaml:"retention"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds listener and storage locations.
type ServerConfig struct {
	Address      string `yaml:"address"`
	Port         int    `yaml:"port"`
	RealtimePort int    `yaml:"realtime_port"`
	DBPath       string `yaml:"db_path"`
	CORS         struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
}

// SecurityConfig holds token and rate limiting settings.
type SecurityConfig struct {
	// JWTSecret is the shared HMAC secret used to sign and verify session tokens.
	JWTSecret string   `yaml:"jwt_secret"`
	TokenTTL  Duration `yaml:"token_ttl"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// RealtimeConfig tunes the websocket gateway.
type RealtimeConfig struct {
	Path             string    `yaml:"path"`
	SendBuffer       int       `yaml:"send_buffer"`
	WriteTimeout     Duration  `yaml:"write_timeout"`
	PingInterval     Duration  `yaml:"ping_interval"`
	ReadLimit        SizeBytes `yaml:"read_limit"`
	HandshakeTimeout Duration  `yaml:"handshake_timeout"`
	EventRPS         float64   `yaml:"event_rps"`
	EventBurst       int       `yaml:"event_burst"`
}

// MessagesConfig holds message mutation rules.
type MessagesConfig struct {
	RecallWindow Duration  `yaml:"recall_window"`
	MaxTextBytes SizeBytes `yaml:"max_text_bytes"`
}

// BlobsConfig holds blob store limits.
type BlobsConfig struct {
	MaxSize       SizeBytes `yaml:"max_size"`
	PublicBaseURL string    `yaml:"public_base_url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Sink  string `yaml:"sink"`
}

// RetentionConfig holds configuration for the group tombstone purge runner.
type RetentionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	Period  string `yaml:"period"`
	DryRun  bool   `yaml:"dry_run"`
	// LockTTL is the lease TTL for a single run.
	LockTTL Duration `yaml:"lock_ttl"`
}

// SensorConfig holds disk monitor settings.
type SensorConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	DiskHighPct  int      `yaml:"disk_high_pct"`
}

// TelemetryConfig controls the slow-operation log under <db>/state/logs.
type TelemetryConfig struct {
	Enabled       bool     `yaml:"enabled"`
	SlowThreshold Duration `yaml:"slow_threshold"`
	QueueSize     int      `yaml:"queue_size"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := ParseSizeBytes(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.IBytes(uint64(s)) }

// ParseSizeBytes accepts "512KiB", "5 MB" or a bare integer.
func ParseSizeBytes(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = 0
		return nil
	}
	v, err := ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// ParseDuration accepts Go duration strings or numeric seconds.
func ParseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}
