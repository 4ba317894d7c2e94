package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults when a value is left unset.
const (
	defaultPort         = 8080
	defaultRealtimePort = 8081
	defaultRealtimePath = "/ws"
	defaultTokenTTL     = 24 * time.Hour
	defaultRateRPS      = 100
	defaultRateBurst    = 200

	// realtime gateway
	defaultSendBuffer       = 256
	defaultWriteTimeout     = 10 * time.Second
	defaultPingInterval     = 25 * time.Second
	defaultReadLimit        = 1 << 20 // 1 MiB per frame
	defaultHandshakeTimeout = 10 * time.Second
	defaultEventRPS         = 20
	defaultEventBurst       = 40

	// messages
	defaultRecallWindow = 2 * time.Minute
	defaultMaxTextBytes = 64 * 1024

	// blobs
	defaultBlobMaxSize = 25 * 1024 * 1024

	// retention
	defaultRetentionCron    = "0 3 * * *" // daily at 03:00
	defaultRetentionPeriod  = "30d"
	defaultRetentionLockTTL = 300 * time.Second

	// sensor
	defaultSensorPollInterval = 30 * time.Second
	defaultSensorDiskHighPct  = 85

	// telemetry
	defaultSlowThreshold  = 250 * time.Millisecond
	defaultTelemetryQueue = 1024

	defaultLogLevel = "info"
)

// Addr returns the REST server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// RealtimeAddr returns the websocket gateway address as host:port.
func (c *Config) RealtimeAddr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := c.Server.RealtimePort
	if port == 0 {
		port = defaultRealtimePort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset value with its default.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.RealtimePort == 0 {
		c.Server.RealtimePort = defaultRealtimePort
	}

	if c.Security.TokenTTL == 0 {
		c.Security.TokenTTL = Duration(defaultTokenTTL)
	}
	if c.Security.RateLimit.RPS <= 0 {
		c.Security.RateLimit.RPS = defaultRateRPS
	}
	if c.Security.RateLimit.Burst <= 0 {
		c.Security.RateLimit.Burst = defaultRateBurst
	}

	rt := &c.Realtime
	if rt.Path == "" {
		rt.Path = defaultRealtimePath
	}
	if rt.SendBuffer <= 0 {
		rt.SendBuffer = defaultSendBuffer
	}
	if rt.WriteTimeout == 0 {
		rt.WriteTimeout = Duration(defaultWriteTimeout)
	}
	if rt.PingInterval == 0 {
		rt.PingInterval = Duration(defaultPingInterval)
	}
	if rt.ReadLimit == 0 {
		rt.ReadLimit = SizeBytes(defaultReadLimit)
	}
	if rt.HandshakeTimeout == 0 {
		rt.HandshakeTimeout = Duration(defaultHandshakeTimeout)
	}
	if rt.EventRPS <= 0 {
		rt.EventRPS = defaultEventRPS
	}
	if rt.EventBurst <= 0 {
		rt.EventBurst = defaultEventBurst
	}

	if c.Messages.RecallWindow == 0 {
		c.Messages.RecallWindow = Duration(defaultRecallWindow)
	}
	if c.Messages.MaxTextBytes == 0 {
		c.Messages.MaxTextBytes = SizeBytes(defaultMaxTextBytes)
	}

	if c.Blobs.MaxSize == 0 {
		c.Blobs.MaxSize = SizeBytes(defaultBlobMaxSize)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	if c.Retention.Cron == "" {
		c.Retention.Cron = defaultRetentionCron
	}
	if c.Retention.Period == "" {
		c.Retention.Period = defaultRetentionPeriod
	}
	if c.Retention.LockTTL == 0 {
		c.Retention.LockTTL = Duration(defaultRetentionLockTTL)
	}

	if c.Sensor.PollInterval == 0 {
		c.Sensor.PollInterval = Duration(defaultSensorPollInterval)
	}
	if c.Sensor.DiskHighPct == 0 {
		c.Sensor.DiskHighPct = defaultSensorDiskHighPct
	}

	if c.Telemetry.SlowThreshold == 0 {
		c.Telemetry.SlowThreshold = Duration(defaultSlowThreshold)
	}
	if c.Telemetry.QueueSize <= 0 {
		c.Telemetry.QueueSize = defaultTelemetryQueue
	}
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("CHATZALO_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
