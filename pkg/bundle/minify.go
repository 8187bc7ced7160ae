package bundle

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/js"
	bolt "go.etcd.io/bbolt"
)

const jsMediaType = "application/javascript"

var minifier = newMinifier()

func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc(jsMediaType, js.Minify)
	return m
}

// Minify returns a minified version of the given JavaScript source
func Minify(src []byte) ([]byte, error) {
	result, err := minifier.Bytes(jsMediaType, src)
	if err != nil {
		return nil, eris.Wrap(err, "failed to minify")
	}
	return result, nil
}

type minifyCacheKey struct{}

var minifiedBucket = []byte("minified")

// MinifyCache stores minified sources keyed by the SHA-256 of their input
type MinifyCache struct {
	db *bolt.DB
}

// OpenMinifyCache opens (or creates) the cache database at path
func OpenMinifyCache(path string) (*MinifyCache, error) {
	err := os.MkdirAll(filepath.Dir(path), 0770)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(minifiedBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, eris.Wrap(err, "failed to initialize the minify cache")
	}

	return &MinifyCache{db: db}, nil
}

func (c *MinifyCache) Close() error {
	return c.db.Close()
}

// Get returns the cached result for key or nil if there is none
func (c *MinifyCache) Get(key []byte) ([]byte, error) {
	var result []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		item := tx.Bucket(minifiedBucket).Get(key)
		if item != nil {
			// item is only valid during the transaction
			result = append([]byte{}, item...)
		}
		return nil
	})
	return result, err
}

func (c *MinifyCache) Put(key, value []byte) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(minifiedBucket).Put(key, value)
	})
}

// WithMinifyCache attaches cache to the context. MinifyCached uses it to skip repeated work.
func WithMinifyCache(ctx context.Context, cache *MinifyCache) context.Context {
	return context.WithValue(ctx, minifyCacheKey{}, cache)
}

func minifyCacheFromCtx(ctx context.Context) *MinifyCache {
	cache, _ := ctx.Value(minifyCacheKey{}).(*MinifyCache)
	return cache
}

// MinifyCached works like Minify but consults the cache attached to ctx first
func MinifyCached(ctx context.Context, src []byte) ([]byte, error) {
	cache := minifyCacheFromCtx(ctx)
	if cache == nil {
		return Minify(src)
	}

	key := sha256.Sum256(src)
	result, err := cache.Get(key[:])
	if err != nil {
		return nil, eris.Wrap(err, "failed to read from the minify cache")
	}
	if result != nil {
		return result, nil
	}

	result, err = Minify(src)
	if err != nil {
		return nil, err
	}

	err = cache.Put(key[:], result)
	if err != nil {
		return nil, eris.Wrap(err, "failed to update the minify cache")
	}
	return result, nil
}
