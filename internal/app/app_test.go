package app

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatzalo/pkg/config"
	"chatzalo/pkg/progressor"
)

func testEff(t *testing.T, dbPath string) config.EffectiveConfigResult {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.DBPath = dbPath
	cfg.Security.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.Telemetry.Enabled = true
	cfg.ApplyDefaults()
	eff := config.EffectiveConfigResult{Config: cfg, Addr: cfg.Addr(), DBPath: dbPath, Source: "defaults"}
	require.NoError(t, config.ValidateConfig(eff))
	return eff
}

func TestNewPreparesStateAndShutsDown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "database")
	eff := testEff(t, dbPath)

	a, err := New(eff, "test", "none", "unknown")
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dbPath, "store"))
	assert.DirExists(t, filepath.Join(dbPath, "state", "logs", "slow"))

	v, err := a.store.GetSystem("schema_version")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(progressor.CurrentVersion), v)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
	assert.Equal(t, "stopped", a.state)

	// the store lock is released, so the directory opens again
	b, err := New(eff, "test", "none", "unknown")
	require.NoError(t, err)
	require.NoError(t, b.Shutdown(ctx))
}
