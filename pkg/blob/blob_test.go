package blob

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"chatzalo/pkg/timeutil"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, max int64) *Store {
	t.Helper()
	db, err := pebble.Open("blobs", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, max, "https://chat.example/", timeutil.Fixed(time.Unix(10, 0).UTC()))
}

func TestUploadDownload(t *testing.T) {
	s := newTestStore(t, 1024)
	ctx := context.Background()

	obj, err := s.Upload(ctx, []byte("hello"), "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, int64(5), obj.Size)
	assert.True(t, strings.HasPrefix(obj.URL, "https://chat.example/v1/blobs/"))
	assert.Equal(t, "text/plain; charset=utf-8", obj.ContentType)

	got, data, err := s.Download(ctx, obj.Key)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, obj.ContentType, got.ContentType)
	assert.Equal(t, obj.URL, got.URL)
}

func TestUploadLimits(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	_, err := s.Upload(ctx, nil, "image/png")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = s.Upload(ctx, []byte("too big"), "image/png")
	assert.True(t, errors.Is(err, ErrTooLarge))

	obj, err := s.Upload(ctx, []byte("ok"), "")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", obj.ContentType)
}

func TestDownloadMissing(t *testing.T) {
	s := newTestStore(t, 0)
	_, _, err := s.Download(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = s.Download(context.Background(), "b:../x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelledContext(t *testing.T) {
	s := newTestStore(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Upload(ctx, []byte("x"), "text/plain")
	assert.ErrorIs(t, err, context.Canceled)
}
