package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"

	"chatzalo/internal/retention"
	"chatzalo/pkg/api"
	"chatzalo/pkg/auth"
	"chatzalo/pkg/blob"
	"chatzalo/pkg/config"
	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/fanout"
	"chatzalo/pkg/gateway"
	"chatzalo/pkg/logger"
	"chatzalo/pkg/metrics"
	"chatzalo/pkg/presence"
	"chatzalo/pkg/progressor"
	"chatzalo/pkg/rooms"
	"chatzalo/pkg/sensor"
	"chatzalo/pkg/social"
	"chatzalo/pkg/state"
	"chatzalo/pkg/store"
	"chatzalo/pkg/store/locks"
	"chatzalo/pkg/telemetry"
)

// App groups server state and components.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string
	paths     state.Paths

	store   *store.Store
	coord   *coordinator.Coordinator
	social  *social.Service
	api     *api.Server
	gateway *gateway.Manager

	tel      *telemetry.Telemetry
	srvFast  *fasthttp.Server
	srvWS    *http.Server
	sensor   *sensor.Sensor
	purger   *retention.Manager
	stopPurg context.CancelFunc
	state    string
}

// New opens the store and builds every service. Listeners are started by Run.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	cfg := eff.Config
	paths, err := state.Prepare(eff.DBPath)
	if err != nil {
		return nil, fmt.Errorf("prepare state directories: %w", err)
	}

	st, err := store.Open(paths.Store, store.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", paths.Store, err)
	}
	if n, err := progressor.Run(context.Background(), st, nil); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	} else if n > 0 {
		logger.Info("schema_migrated", "migrations", n, "version", progressor.CurrentVersion)
	}

	reg := presence.NewRegistry()
	tracker := rooms.NewTracker()
	router := fanout.NewRouter(reg, tracker)
	lk := locks.NewKeyed()

	coord := coordinator.New(st, lk, router, coordinator.Options{
		RecallWindow: cfg.Messages.RecallWindow.Duration(),
		MaxTextBytes: int(cfg.Messages.MaxTextBytes.Int64()),
	})
	soc := social.New(st, lk, coord, router, nil)

	tokens := auth.NewTokens(cfg.Security.JWTSecret, cfg.Security.TokenTTL.Duration(), nil)
	accounts := auth.NewAccounts(st, tokens, 0, nil)
	blobs := blob.New(st.DB(), cfg.Blobs.MaxSize.Int64(), cfg.Blobs.PublicBaseURL, nil)

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		paths:     paths,
		store:     st,
		coord:     coord,
		social:    soc,
		state:     "initialized",
	}

	a.api = api.New(api.Deps{
		Store:       st,
		Accounts:    accounts,
		Coordinator: coord,
		Social:      soc,
		Blobs:       blobs,
	}, api.Options{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		RPS:            cfg.Security.RateLimit.RPS,
		Burst:          cfg.Security.RateLimit.Burst,
	})
	a.gateway = newGateway(cfg, gateway.Deps{
		Presence:    reg,
		Rooms:       tracker,
		Router:      router,
		Auth:        accounts,
		Coordinator: coord,
		Social:      soc,
	})

	a.sensor = sensor.New(sensor.Config{
		Path:         paths.DB,
		PollInterval: cfg.Sensor.PollInterval.Duration(),
		HighPct:      cfg.Sensor.DiskHighPct,
	})
	if cfg.Telemetry.Enabled {
		tel, err := telemetry.New(filepath.Join(paths.Logs, "slow"), telemetry.Options{
			Threshold: cfg.Telemetry.SlowThreshold.Duration(),
			QueueSize: cfg.Telemetry.QueueSize,
		})
		if err != nil {
			logger.Warn("telemetry_disabled", "error", err)
		} else {
			a.tel = tel
			metrics.SetObserver(tel.Observe)
		}
	}
	a.purger = retention.New(cfg.Retention, st, coord, paths.Retention, nil)

	logger.LogConfigSummary("config_summary", []string{
		fmt.Sprintf("rest: %s", cfg.Addr()),
		fmt.Sprintf("realtime: %s%s", cfg.RealtimeAddr(), cfg.Realtime.Path),
		fmt.Sprintf("recall_window: %s", cfg.Messages.RecallWindow.Duration()),
		fmt.Sprintf("max_text: %s", humanize.IBytes(uint64(cfg.Messages.MaxTextBytes))),
		fmt.Sprintf("blob_max: %s", humanize.IBytes(uint64(cfg.Blobs.MaxSize))),
		fmt.Sprintf("send_buffer: %s", humanize.Comma(int64(cfg.Realtime.SendBuffer))),
		fmt.Sprintf("retention: %t", cfg.Retention.Enabled),
	})
	return a, nil
}

// Run starts the listeners and background jobs and blocks until ctx ends
// or a listener fails.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	a.stopPurg = a.purger.Start(ctx)
	a.sensor.Start()

	errCh := make(chan error, 2)
	a.startHTTP(errCh)
	a.startRealtime(errCh)
	a.state = "running"
	logger.Info("server_started", "rest", a.eff.Config.Addr(), "realtime", a.eff.Config.RealtimeAddr())

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
