package sensor

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatzalo/pkg/metrics"
)

type fakeDisk struct {
	usage Usage
	err   error
}

func (f *fakeDisk) stat(string) (Usage, error) { return f.usage, f.err }

func TestCheckHysteresis(t *testing.T) {
	disk := &fakeDisk{usage: Usage{Total: 100, Avail: 50}}
	s := New(Config{Path: "/data", HighPct: 80, Stat: disk.stat})

	assert.False(t, s.Check())
	assert.InDelta(t, 0.5, testutil.ToFloat64(metrics.DiskUsedRatio), 1e-9)

	disk.usage.Avail = 10
	assert.True(t, s.Check())

	disk.usage.Avail = 22 // 78% is inside the band
	assert.True(t, s.Check())

	disk.usage.Avail = 30
	assert.False(t, s.Check())
}

func TestCheckStatError(t *testing.T) {
	s := New(Config{Stat: (&fakeDisk{err: errors.New("boom")}).stat})
	assert.False(t, s.Check())
}

func TestStatfsRealPath(t *testing.T) {
	u, err := Statfs(t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, u.Total, uint64(0))
	assert.LessOrEqual(t, u.UsedRatio(), 1.0)
}

func TestStartStop(t *testing.T) {
	s := New(Config{Stat: (&fakeDisk{usage: Usage{Total: 10, Avail: 5}}).stat})
	s.Start()
	s.Stop()
	s.Stop()
}
