// Package bootstrap wires configuration into a running extractor.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/api"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/cache"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/config"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/engine"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/ensemble"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/merge"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/scoring"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/selector"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/server"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/telemetry"
)

// Components holds everything a command needs to run extraction jobs.
type Components struct {
	Config      *config.Config
	Logger      logger.Logger
	Telemetry   *telemetry.Provider
	Pool        *engine.Pool
	Cache       *cache.ResultCache
	Coordinator *ensemble.Coordinator

	redis *cache.RedisStore
}

// LoadConfig loads configuration from path, or from CONFIG_PATH / config.yml when path is empty.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.ResolvePath(config.DefaultPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// CreateLogger creates a logger instance from configuration.
func CreateLogger(cfg *config.Config) (logger.Logger, error) {
	logCfg := cfg.Logging
	logCfg.Development = logCfg.Development || cfg.Service.Debug
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", cfg.Service.Name)), nil
}

// New builds the engine pool, adapters, cache and coordinator. Engines that
// fail to load are logged and left to the health loop; New fails only when
// no engine could be registered at all.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*Components, error) {
	tel := telemetry.NewProvider()
	c := &Components{Config: cfg, Logger: log, Telemetry: tel}

	languages, err := domain.NewLanguageSet(cfg.Extraction.Languages)
	if err != nil {
		return nil, fmt.Errorf("languages: %w", err)
	}

	c.Pool = engine.NewPool(cfg.Engines.Config, log, func(name string, _, to engine.State) {
		tel.SetEngineState(name, int(to))
	})
	adapters, err := registerEngines(c.Pool, cfg, languages.Codes(), log)
	if err != nil {
		_ = c.Pool.Close()
		return nil, err
	}
	for _, name := range c.Pool.Names() {
		tel.SetEngineState(name, int(engine.StateHealthy))
	}
	if initErr := c.Pool.Init(ctx); initErr != nil {
		log.Warn("Some engines failed to load; the health loop will retry", logger.Error(initErr))
	}

	c.Cache = c.setupCache(cfg, log)

	scorer := scoring.New(cfg.Scoring)
	c.Coordinator, err = ensemble.New(ensemble.Config{
		Deadline:          cfg.Extraction.Deadline,
		MaxConcurrentJobs: cfg.Extraction.MaxConcurrentJobs,
		BatchConcurrency:  cfg.Extraction.BatchConcurrency,
		BatchRate:         cfg.Extraction.BatchRate,
		BatchBurst:        cfg.Extraction.BatchBurst,
	}, ensemble.Deps{
		Adapters:  adapters,
		Languages: languages,
		Selector:  selector.New(cfg.Selector, log),
		Merger:    merge.New(cfg.Merge, scorer),
		Cache:     c.Cache,
		Telemetry: tel,
		Logger:    log,
		Priority:  cfg.Merge.ProcessorPriority,
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	log.Info("Extractor initialized",
		logger.Strings("engines", c.Coordinator.Processors()),
		logger.Strings("languages", languages.Codes()),
		logger.Bool("redis_cache", c.redis != nil),
	)
	return c, nil
}

// setupCache returns nil when caching is disabled. A Redis tier that cannot
// be reached is logged and skipped.
func (c *Components) setupCache(cfg *config.Config, log logger.Logger) *cache.ResultCache {
	if cfg.Cache.Disabled {
		log.Info("Result cache disabled")
		return nil
	}
	if cfg.Cache.Redis.Address != "" {
		client, err := cache.NewRedisClient(cfg.Cache.Redis)
		if err != nil {
			log.Warn("Redis result cache unavailable, using local cache only",
				logger.String("address", cfg.Cache.Redis.Address),
				logger.Error(err),
			)
		} else {
			c.redis = cache.NewRedisStore(client, cfg.Cache.Redis)
		}
	}
	return cache.New(cfg.Cache, c.redis, log)
}

// StartHealthLoop probes engines in the background until ctx is done.
func (c *Components) StartHealthLoop(ctx context.Context) {
	go c.Pool.Run(ctx)
}

// HTTPServer builds the API server over these components.
func (c *Components) HTTPServer() *server.Server {
	handler := api.NewHandler(c.Coordinator, c.Pool, c.Config.Extraction.DefaultMinConfidence(), c.Logger)
	deps := api.ServerDeps{Metrics: c.Telemetry.Handler()}
	if c.redis != nil {
		store := c.redis
		deps.RedisPing = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
			defer cancel()
			return store.Ping(ctx)
		}
	}
	return api.NewServer(handler, c.Config, c.Logger, deps)
}

// Close releases engines and the cache.
func (c *Components) Close() error {
	var errs []error
	if c.Pool != nil {
		errs = append(errs, c.Pool.Close())
	}
	errs = append(errs, c.Cache.Close())
	return errors.Join(errs...)
}
