package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
)

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// holds the results of applying environment overrides
type EnvResult struct {
	Applied []string
	EnvUsed bool
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	// Source lists the layers that contributed, e.g. "config+env+flags".
	Source string
}

// parses command-line flags into a Flags struct
func ParseConfigFlags(fset *flag.FlagSet, args []string) (Flags, error) {
	addrPtr := fset.String("addr", "", "REST listen address (host:port)")
	dbPtr := fset.String("db", "./.database", "Pebble DB path")
	cfgPtr := fset.String("config", "./config.yaml", "Path to config file")
	if err := fset.Parse(args); err != nil {
		return Flags{}, err
	}

	setFlags := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}, nil
}

// loads config from file, returns config, found bool, and error
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs overlays CHATZALO_* environment variables onto cfg.
func ParseConfigEnvs(cfg *Config) EnvResult {
	return applyEnvs(cfg, os.Getenv)
}

func applyEnvs(cfg *Config, getenv func(string) string) EnvResult {
	envs := map[string]string{
		"ADDR":          getenv("CHATZALO_ADDR"),
		"REALTIME_PORT": getenv("CHATZALO_REALTIME_PORT"),
		"DB_PATH":       getenv("CHATZALO_DB_PATH"),
		"CORS_ORIGINS":  getenv("CHATZALO_CORS_ORIGINS"),

		"JWT_SECRET": getenv("CHATZALO_JWT_SECRET"),
		"TOKEN_TTL":  getenv("CHATZALO_TOKEN_TTL"),
		"RATE_RPS":   getenv("CHATZALO_RATE_RPS"),
		"RATE_BURST": getenv("CHATZALO_RATE_BURST"),

		"REALTIME_SEND_BUFFER":   getenv("CHATZALO_REALTIME_SEND_BUFFER"),
		"REALTIME_PING_INTERVAL": getenv("CHATZALO_REALTIME_PING_INTERVAL"),
		"REALTIME_READ_LIMIT":    getenv("CHATZALO_REALTIME_READ_LIMIT"),
		"REALTIME_EVENT_RPS":     getenv("CHATZALO_REALTIME_EVENT_RPS"),

		"RECALL_WINDOW":  getenv("CHATZALO_RECALL_WINDOW"),
		"BLOB_MAX_SIZE":  getenv("CHATZALO_BLOB_MAX_SIZE"),
		"BLOB_BASE_URL":  getenv("CHATZALO_BLOB_BASE_URL"),
		"LOG_LEVEL":      getenv("CHATZALO_LOG_LEVEL"),
		"LOG_SINK":       getenv("CHATZALO_LOG_SINK"),
		"SENSOR_DISK_HI": getenv("CHATZALO_SENSOR_DISK_HIGH_PCT"),
		"TELEMETRY":      getenv("CHATZALO_TELEMETRY_ENABLED"),
		"SLOW_THRESHOLD": getenv("CHATZALO_SLOW_THRESHOLD"),

		// group tombstone retention
		"RETENTION_ENABLED": getenv("CHATZALO_RETENTION_ENABLED"),
		"RETENTION_CRON":    getenv("CHATZALO_RETENTION_CRON"),
		"RETENTION_PERIOD":  getenv("CHATZALO_RETENTION_PERIOD"),
		"RETENTION_DRY_RUN": getenv("CHATZALO_RETENTION_DRY_RUN"),
	}

	res := EnvResult{}
	mark := func(name string) {
		res.Applied = append(res.Applied, name)
		res.EnvUsed = true
	}

	parseList := func(v string) []string {
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}
	parseBool := func(v string) bool {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			return true
		default:
			return false
		}
	}

	if v := envs["ADDR"]; v != "" {
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
		mark("ADDR")
	}
	if v := envs["REALTIME_PORT"]; v != "" {
		if pi, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Server.RealtimePort = pi
			mark("REALTIME_PORT")
		}
	}
	if v := envs["DB_PATH"]; v != "" {
		cfg.Server.DBPath = v
		mark("DB_PATH")
	}
	if v := envs["CORS_ORIGINS"]; v != "" {
		cfg.Server.CORS.AllowedOrigins = parseList(v)
		mark("CORS_ORIGINS")
	}

	if v := envs["JWT_SECRET"]; v != "" {
		cfg.Security.JWTSecret = v
		mark("JWT_SECRET")
	}
	if v := envs["TOKEN_TTL"]; v != "" {
		if d, err := ParseDuration(v); err == nil {
			cfg.Security.TokenTTL = d
			mark("TOKEN_TTL")
		}
	}
	if v := envs["RATE_RPS"]; v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.Security.RateLimit.RPS = f
			mark("RATE_RPS")
		}
	}
	if v := envs["RATE_BURST"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Security.RateLimit.Burst = n
			mark("RATE_BURST")
		}
	}

	if v := envs["REALTIME_SEND_BUFFER"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Realtime.SendBuffer = n
			mark("REALTIME_SEND_BUFFER")
		}
	}
	if v := envs["REALTIME_PING_INTERVAL"]; v != "" {
		if d, err := ParseDuration(v); err == nil {
			cfg.Realtime.PingInterval = d
			mark("REALTIME_PING_INTERVAL")
		}
	}
	if v := envs["REALTIME_READ_LIMIT"]; v != "" {
		if s, err := ParseSizeBytes(v); err == nil {
			cfg.Realtime.ReadLimit = s
			mark("REALTIME_READ_LIMIT")
		}
	}
	if v := envs["REALTIME_EVENT_RPS"]; v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.Realtime.EventRPS = f
			mark("REALTIME_EVENT_RPS")
		}
	}

	if v := envs["RECALL_WINDOW"]; v != "" {
		if d, err := ParseDuration(v); err == nil {
			cfg.Messages.RecallWindow = d
			mark("RECALL_WINDOW")
		}
	}
	if v := envs["BLOB_MAX_SIZE"]; v != "" {
		if s, err := ParseSizeBytes(v); err == nil {
			cfg.Blobs.MaxSize = s
			mark("BLOB_MAX_SIZE")
		}
	}
	if v := envs["BLOB_BASE_URL"]; v != "" {
		cfg.Blobs.PublicBaseURL = v
		mark("BLOB_BASE_URL")
	}

	if v := envs["LOG_LEVEL"]; v != "" {
		cfg.Logging.Level = strings.TrimSpace(v)
		mark("LOG_LEVEL")
	}
	if v := envs["LOG_SINK"]; v != "" {
		cfg.Logging.Sink = strings.TrimSpace(v)
		mark("LOG_SINK")
	}
	if v := envs["SENSOR_DISK_HI"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Sensor.DiskHighPct = n
			mark("SENSOR_DISK_HIGH_PCT")
		}
	}

	if v := envs["TELEMETRY"]; v != "" {
		cfg.Telemetry.Enabled = parseBool(v)
		mark("TELEMETRY_ENABLED")
	}
	if v := envs["SLOW_THRESHOLD"]; v != "" {
		if d, err := ParseDuration(v); err == nil {
			cfg.Telemetry.SlowThreshold = d
			mark("SLOW_THRESHOLD")
		}
	}

	if v := envs["RETENTION_ENABLED"]; v != "" {
		cfg.Retention.Enabled = parseBool(v)
		mark("RETENTION_ENABLED")
	}
	if v := envs["RETENTION_CRON"]; v != "" {
		cfg.Retention.Cron = v
		mark("RETENTION_CRON")
	}
	if v := envs["RETENTION_PERIOD"]; v != "" {
		cfg.Retention.Period = v
		mark("RETENTION_PERIOD")
	}
	if v := envs["RETENTION_DRY_RUN"]; v != "" {
		cfg.Retention.DryRun = parseBool(v)
		mark("RETENTION_DRY_RUN")
	}
	return res
}

// LoadEffectiveConfig layers the config file, environment overrides and
// explicitly set flags (in that order of precedence, lowest first).
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envRes EnvResult) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult
	if flags.Set["config"] && !fileExists {
		return res, fmt.Errorf("config file %s not found", flags.Config)
	}
	cfg := fileCfg
	if cfg == nil {
		cfg = &Config{}
	}

	var layers []string
	if fileExists {
		layers = append(layers, "config")
	}
	if envRes.EnvUsed {
		layers = append(layers, "env")
	}

	if flags.Set["addr"] {
		h, p, err := net.SplitHostPort(flags.Addr)
		if err != nil {
			return res, fmt.Errorf("invalid --addr %q: %w", flags.Addr, err)
		}
		cfg.Server.Address = h
		if pi, err := strconv.Atoi(p); err == nil {
			cfg.Server.Port = pi
		}
	}
	if flags.Set["db"] || strings.TrimSpace(cfg.Server.DBPath) == "" {
		cfg.Server.DBPath = flags.DB
	}
	if flags.Set["addr"] || flags.Set["db"] {
		layers = append(layers, "flags")
	}
	if len(layers) == 0 {
		layers = append(layers, "defaults")
	}

	cfg.ApplyDefaults()
	res.Config = cfg
	res.Addr = cfg.Addr()
	res.DBPath = cfg.Server.DBPath
	res.Source = strings.Join(layers, "+")
	return res, nil
}
