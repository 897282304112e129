// Package profiling starts optional continuous profiling for the serve command.
package profiling

import (
	"fmt"
	"os"
	"runtime"

	"github.com/grafana/pyroscope-go"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/logger"
)

const (
	defaultServerAddress = "http://pyroscope:4040"
	defaultEnvironment   = "development"
)

// Config holds Pyroscope settings.
type Config struct {
	Enabled       bool   `env:"ENABLE_CONTINUOUS_PROFILING" yaml:"enabled"`
	ServerAddress string `env:"PYROSCOPE_SERVER_URL"        yaml:"server_address"`
	Environment   string `env:"PYROSCOPE_ENVIRONMENT"       yaml:"environment"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ServerAddress == "" {
		c.ServerAddress = defaultServerAddress
	}
	if c.Environment == "" {
		c.Environment = defaultEnvironment
	}
}

// Profiler holds the Pyroscope profiler instance
type Profiler struct {
	profiler *pyroscope.Profiler
}

// Start begins continuous profiling. It returns a nil *Profiler when profiling
// is disabled; Stop is safe on nil.
func Start(cfg Config, serviceName, version string, log logger.Logger) (*Profiler, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	pcfg := pyroscope.Config{
		ApplicationName: "north-cloud." + serviceName,
		ServerAddress:   cfg.ServerAddress,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
		Tags: map[string]string{
			"environment": cfg.Environment,
			"version":     version,
			"hostname":    hostname(),
			"go_version":  runtime.Version(),
		},
	}

	profiler, err := pyroscope.Start(pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}

	log.Info("Pyroscope continuous profiling started",
		logger.String("application", pcfg.ApplicationName),
		logger.String("server", cfg.ServerAddress),
		logger.String("environment", cfg.Environment),
	)
	return &Profiler{profiler: profiler}, nil
}

// Stop gracefully stops the Pyroscope profiler
func (p *Profiler) Stop() error {
	if p == nil || p.profiler == nil {
		return nil
	}
	return p.profiler.Stop()
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
