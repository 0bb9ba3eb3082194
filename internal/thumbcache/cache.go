// SPDX-License-Identifier: MIT

// Package thumbcache stores recording preview images on local disk. A file's
// existence is the only cache signal: entries are written once and never
// refreshed.
package thumbcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // GIF previews
	_ "image/jpeg" // JPEG previews
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	xglog "github.com/ManuGH/myth2dsv/internal/log"
	"github.com/ManuGH/myth2dsv/internal/metrics"
	"github.com/disintegration/imaging"
	"github.com/google/renameio/v2"
	_ "golang.org/x/image/webp" // WebP format support
	"golang.org/x/sync/singleflight"
)

// DefaultPrefix is prepended to every cache file name.
const DefaultPrefix = "myth2dsv_thumb_"

// Result describes what FetchAndStore did.
type Result int

const (
	ResultHit    Result = iota // entry already existed, fetch not called
	ResultStored               // fetched and written
)

func (r Result) String() string {
	if r == ResultStored {
		return "stored"
	}
	return "hit"
}

// ErrUndecodable is returned when the fetched payload is not a known image format.
var ErrUndecodable = errors.New("thumbcache: payload is not a decodable image")

// Fetcher retrieves the raw preview image for a key.
type Fetcher func(ctx context.Context) ([]byte, error)

// Option configures a Cache.
type Option func(*Cache)

// WithHeight makes stored thumbnails exactly h pixels high, keeping the
// aspect ratio. Zero stores the decoded image at its original size.
func WithHeight(h int) Option {
	return func(c *Cache) {
		if h > 0 {
			c.height = h
		}
	}
}

// Cache is a directory of PNG thumbnails keyed by recording filename.
type Cache struct {
	dir    string
	prefix string
	height int
	group  singleflight.Group
}

// New returns a cache rooted at dir. An empty dir means os.TempDir().
func New(dir, prefix string, opts ...Option) *Cache {
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	c := &Cache{dir: dir, prefix: prefix}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the directory holding the cache files.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the file that holds key's thumbnail.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, c.prefix+sanitizeKey(key)+".png")
}

// Has reports whether key's thumbnail exists on disk.
func (c *Cache) Has(key string) bool {
	fi, err := os.Stat(c.Path(key))
	return err == nil && fi.Mode().IsRegular()
}

// FetchAndStore makes sure key has a cache entry. fetch is only called when
// the entry is missing, and concurrent callers for one key share a single
// call. A failed fetch or write leaves no entry behind.
func (c *Cache) FetchAndStore(ctx context.Context, key string, fetch Fetcher) (Result, error) {
	if c.Has(key) {
		metrics.IncThumbnailFetch("hit")
		return ResultHit, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Another flight may have finished between Has and Do.
		if c.Has(key) {
			return ResultHit, nil
		}
		raw, err := fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch thumbnail: %w", err)
		}
		img, err := c.normalize(raw)
		if err != nil {
			return nil, err
		}
		if err := c.write(ctx, key, img); err != nil {
			return nil, err
		}
		return ResultStored, nil
	})
	if err != nil {
		metrics.IncThumbnailFetch("error")
		return ResultHit, err
	}
	res := v.(Result)
	metrics.IncThumbnailFetch(res.String())
	return res, nil
}

func (c *Cache) normalize(raw []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if c.height > 0 && img.Bounds().Dy() != c.height {
		img = imaging.Resize(img, 0, c.height, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Cache) write(ctx context.Context, key string, data []byte) error {
	logger := xglog.FromContext(ctx)
	if err := os.MkdirAll(c.dir, 0o750); err != nil {
		return fmt.Errorf("create thumbnail dir: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(c.Path(key), renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending thumbnail: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Str(xglog.FieldRecording, key).Msg("cleanup pending thumbnail")
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace thumbnail: %w", err)
	}
	return nil
}

// sanitizeKey keeps a key inside a single path element.
func sanitizeKey(key string) string {
	key = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, key)
	if key == "." || key == ".." {
		key = strings.Repeat("_", len(key))
	}
	return key
}
