package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // layer assets may be JPEG
	_ "image/png"
	"os"
	"time"

	"github.com/zjrosen/layerforge/internal/cachemanager"
	"github.com/zjrosen/layerforge/internal/log"
)

// ErrAssetLoad marks an element image that could not be acquired.
var ErrAssetLoad = errors.New("layer asset could not be loaded")

// Loader acquires the decoded image of an element.
type Loader interface {
	Load(ctx context.Context, path string) (image.Image, error)
}

// FileLoader decodes images from the local filesystem.
type FileLoader struct{}

// Load opens and decodes path.
func (FileLoader) Load(ctx context.Context, path string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // G304: paths come from the layer catalog
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetLoad, path, err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", ErrAssetLoad, path, err)
	}
	return img, nil
}

// CachedLoader keeps decoded images so an element drawn by many editions is
// read from disk once.
type CachedLoader struct {
	rt  *cachemanager.ReadThroughCache[string, image.Image]
	ttl time.Duration
}

// NewCachedLoader wraps next with cache. A zero ttl keeps the cache default.
func NewCachedLoader(next Loader, cache cachemanager.CacheManager[string, image.Image], ttl time.Duration) *CachedLoader {
	return &CachedLoader{
		rt: cachemanager.NewReadThroughCache(cache, func(ctx context.Context, path string) (image.Image, error) {
			log.Debug(log.CatRender, "Loading layer image", "path", path)
			return next.Load(ctx, path)
		}, false),
		ttl: ttl,
	}
}

// Load returns the cached image of path, loading it on a miss.
func (c *CachedLoader) Load(ctx context.Context, path string) (image.Image, error) {
	return c.rt.Get(ctx, path, c.ttl)
}

// Stats reports cache hits and misses across all editions so far.
func (c *CachedLoader) Stats() cachemanager.Stats { return c.rt.Stats() }
