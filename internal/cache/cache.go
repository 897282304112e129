// Package cache memoizes final extraction results by content. The first tier
// is an in-process LRU; an optional Redis tier is shared between workers.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
)

const (
	defaultSize   = 512
	defaultTTL    = 24 * time.Hour
	defaultPrefix = "scene-extractor:result:"
)

// Config holds result cache configuration.
type Config struct {
	// Disabled turns caching off entirely.
	Disabled bool `env:"EXTRACTOR_CACHE_DISABLED" yaml:"disabled"`
	// Size is the LRU capacity in results. Default: 512
	Size  int         `yaml:"size"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds the optional shared tier. Empty Address disables it.
type RedisConfig struct {
	Address  string        `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string        `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	Prefix   string        `yaml:"prefix"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Size == 0 {
		c.Size = defaultSize
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = defaultTTL
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = defaultPrefix
	}
}

// Source tells which tier answered a lookup.
type Source string

// Lookup sources.
const (
	SourceNone  Source = ""
	SourceLocal Source = "lru"
	SourceRedis Source = "redis"
)

// ResultCache is the two-tier cache. A nil *ResultCache is a valid, empty cache.
type ResultCache struct {
	local  *LRU
	shared *RedisStore
	logger logger.Logger
}

// New builds the cache. shared may be nil.
func New(cfg Config, shared *RedisStore, log logger.Logger) *ResultCache {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NewNop()
	}
	return &ResultCache{
		local:  NewLRU(cfg.Size),
		shared: shared,
		logger: log,
	}
}

// Get returns a copy of the result for key. Redis hits populate the LRU.
// Redis errors are logged and treated as misses.
func (c *ResultCache) Get(ctx context.Context, key string) ([]domain.Description, Source, bool) {
	if c == nil {
		return nil, SourceNone, false
	}
	if descs, ok := c.local.Get(key); ok {
		return descs, SourceLocal, true
	}
	if c.shared == nil {
		return nil, SourceNone, false
	}

	descs, ok, err := c.shared.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Result cache read failed", logger.Error(err))
		return nil, SourceNone, false
	}
	if !ok {
		return nil, SourceNone, false
	}
	c.local.Add(key, descs)
	return domain.CloneDescriptions(descs), SourceRedis, true
}

// Put stores result under key in both tiers. Existing entries are never overwritten.
func (c *ResultCache) Put(ctx context.Context, key string, result []domain.Description) {
	if c == nil {
		return
	}
	c.local.Add(key, result)
	if c.shared == nil {
		return
	}
	if _, err := c.shared.Put(ctx, key, result); err != nil {
		c.logger.Warn("Result cache write failed", logger.Error(err))
	}
}

// Len returns the number of results in the local tier.
func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	return c.local.Len()
}

// Close releases the shared tier.
func (c *ResultCache) Close() error {
	if c == nil || c.shared == nil {
		return nil
	}
	return c.shared.Close()
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
