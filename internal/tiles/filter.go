package tiles

import (
	"time"

	"github.com/bluele/gcache"
)

type CacheOptions struct {
	Size int           `toml:"size" yaml:"size" validate:"gte=0"`
	TTL  time.Duration `toml:"ttl" yaml:"ttl"`
}

func DefaultCacheOptions() CacheOptions {
	return CacheOptions{Size: 2048, TTL: 6 * time.Hour}
}

// Filter grays tiles once per key. A processed tile is remembered until it
// is evicted from the LRU or expires, and is served from memory afterwards.
type Filter struct {
	weights Weights
	cache   gcache.Cache
}

func NewFilter(weights Weights, opts CacheOptions) (*Filter, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if opts.Size <= 0 {
		opts.Size = DefaultCacheOptions().Size
	}

	builder := gcache.New(opts.Size).LRU()
	if opts.TTL > 0 {
		builder = builder.Expiration(opts.TTL)
	}

	return &Filter{weights: weights, cache: builder.Build()}, nil
}

func (filter *Filter) Weights() Weights {
	return filter.weights
}

// Cached returns the processed tile for key if present.
func (filter *Filter) Cached(key string) ([]byte, bool) {
	value, err := filter.cache.GetIFPresent(key)
	if err != nil {
		return nil, false
	}
	return value.([]byte), true
}

// Process returns the grayscale PNG for key, converting raw only when the
// key has not been processed yet.
func (filter *Filter) Process(key string, raw []byte) ([]byte, error) {
	if processed, ok := filter.Cached(key); ok {
		return processed, nil
	}

	processed, err := GrayscalePNG(raw, filter.weights)
	if err != nil {
		return nil, err
	}

	_ = filter.cache.Set(key, processed)
	return processed, nil
}

func (filter *Filter) Len() int {
	return filter.cache.Len(true)
}
