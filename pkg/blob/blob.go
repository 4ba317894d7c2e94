package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"chatzalo/pkg/logger"
	"chatzalo/pkg/metrics"
	"chatzalo/pkg/timeutil"
	"chatzalo/pkg/utils"

	"github.com/cockroachdb/pebble"
	"github.com/dustin/go-humanize"
)

const (
	metaKey = "b:%s:meta" // b:<key>:meta
	dataKey = "b:%s:data" // b:<key>:data
)

var (
	ErrNotFound = errors.New("blob: not found")
	ErrTooLarge = errors.New("blob: too large")
	ErrEmpty    = errors.New("blob: empty upload")
)

// Object describes a stored blob.
type Object struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store keeps opaque objects in pebble and hands back retrievable URLs.
type Store struct {
	db      *pebble.DB
	maxSize int64
	baseURL string
	now     timeutil.Clock
}

// New wraps db. baseURL prefixes returned URLs, e.g. "https://chat.example".
func New(db *pebble.DB, maxSize int64, baseURL string, clock timeutil.Clock) *Store {
	return &Store{
		db:      db,
		maxSize: maxSize,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     clock.OrNow(),
	}
}

// URLFor returns the public URL of key.
func (s *Store) URLFor(key string) string {
	return s.baseURL + "/v1/blobs/" + key
}

// Upload stores data under a fresh key.
func (s *Store) Upload(ctx context.Context, data []byte, contentType string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	tr := metrics.Track("blob.upload")
	defer tr.Finish()

	if len(data) == 0 {
		return Object{}, ErrEmpty
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return Object{}, fmt.Errorf("%w: %s exceeds %s", ErrTooLarge,
			humanize.IBytes(uint64(len(data))), humanize.IBytes(uint64(s.maxSize)))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := utils.GenID() + extensionFor(contentType)
	obj := Object{
		Key:         key,
		URL:         s.URLFor(key),
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   s.now(),
	}
	meta, err := json.Marshal(obj)
	if err != nil {
		return Object{}, err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set([]byte(fmt.Sprintf(metaKey, key)), meta, nil); err != nil {
		return Object{}, err
	}
	if err := b.Set([]byte(fmt.Sprintf(dataKey, key)), data, nil); err != nil {
		return Object{}, err
	}
	if err := s.db.Apply(b, pebble.Sync); err != nil {
		logger.Error("blob_upload_failed", "key", key, "error", err)
		return Object{}, err
	}
	logger.Debug("blob_uploaded", "key", key, "size", humanize.IBytes(uint64(obj.Size)))
	return obj, nil
}

// Download returns the object metadata and its bytes.
func (s *Store) Download(ctx context.Context, key string) (Object, []byte, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, nil, err
	}
	tr := metrics.Track("blob.download")
	defer tr.Finish()

	if key == "" || strings.ContainsAny(key, ":/") {
		return Object{}, nil, ErrNotFound
	}
	meta, err := s.read(fmt.Sprintf(metaKey, key))
	if err != nil {
		return Object{}, nil, err
	}
	var obj Object
	if err := json.Unmarshal(meta, &obj); err != nil {
		return Object{}, nil, fmt.Errorf("decode blob meta %s: %w", key, err)
	}
	data, err := s.read(fmt.Sprintf(dataKey, key))
	if err != nil {
		return Object{}, nil, err
	}
	obj.URL = s.URLFor(key)
	return obj, data, nil
}

func (s *Store) read(key string) ([]byte, error) {
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
