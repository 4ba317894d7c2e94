package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatzalo/pkg/auth"
	"chatzalo/pkg/models"
	"chatzalo/pkg/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRoot("test", "none")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return strings.TrimSpace(out.String()), err
}

func seedDB(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "store")
	st, err := store.Open(dir, store.Options{})
	require.NoError(t, err)
	require.NoError(t, st.CreateUser(&models.User{ID: "u-1", Email: "ann@x.io"}))
	require.NoError(t, st.CreateUser(&models.User{ID: "u-2", Email: "ben@x.io"}))
	require.NoError(t, st.Close())
	return dir
}

func TestConvIDIsOrderIndependent(t *testing.T) {
	a, err := run(t, "convid", "Ben@x.io", "ann@x.io")
	require.NoError(t, err)
	b, err := run(t, "convid", "ann@x.io", "ben@x.io")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "ann@x.io_ben@x.io", a)

	key, err := run(t, "convid", "--key", "ann@x.io", "ben@x.io")
	require.NoError(t, err)
	assert.Equal(t, "c:ann@x.io_ben@x.io", key)
}

func TestTokenRoundTrip(t *testing.T) {
	t.Setenv("CHATZALO_JWT_SECRET", "")
	token, err := run(t, "token", "--secret", testSecret, "ann@x.io")
	require.NoError(t, err)

	id, err := auth.NewTokens(testSecret, 0, nil).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ann@x.io", id.Email)
	assert.Equal(t, "ann@x.io", id.UserID)

	out, err := run(t, "verify", "--secret", testSecret, token)
	require.NoError(t, err)
	assert.Contains(t, out, "email: ann@x.io")

	_, err = run(t, "verify", "--secret", "another-secret-another-secret!!", token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenSecretSources(t *testing.T) {
	t.Setenv("CHATZALO_JWT_SECRET", "")
	_, err := run(t, "token", "ann@x.io")
	assert.ErrorIs(t, err, errNoSecret)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("security:\n  jwt_secret: "+testSecret+"\n"), 0o600))
	token, err := run(t, "token", "--config", cfgPath, "ann@x.io")
	require.NoError(t, err)
	_, err = auth.NewTokens(testSecret, 0, nil).Verify(token)
	require.NoError(t, err)

	t.Setenv("CHATZALO_JWT_SECRET", testSecret)
	token, err = run(t, "token", "ben@x.io")
	require.NoError(t, err)
	id, err := auth.NewTokens(testSecret, 0, nil).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ben@x.io", id.Email)

	_, err = run(t, "token", "not an email")
	assert.Error(t, err)
}

func TestTokenResolvesUserIDFromDB(t *testing.T) {
	dir := seedDB(t)
	token, err := run(t, "token", "--secret", testSecret, "--db", dir, "ben@x.io")
	require.NoError(t, err)
	id, err := auth.NewTokens(testSecret, 0, nil).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-2", id.UserID)

	_, err = run(t, "token", "--secret", testSecret, "--db", dir, "zed@x.io")
	assert.ErrorContains(t, err, "not found")
}

func TestInspect(t *testing.T) {
	dir := seedDB(t)
	sum, err := inspectDatabase(dir, "", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 2, sum.Kinds["user"])
	assert.Equal(t, []string{"u:ann@x.io"}, sum.Samples)

	out, err := run(t, "inspect", "--yaml", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "total: 2")

	out, err = run(t, "inspect", "--prefix", "g:", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Total keys: 0")

	_, err = run(t, "inspect", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
