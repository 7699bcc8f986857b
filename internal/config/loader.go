package config

import (
	"flag"
	"fmt"
)

// Load loads configuration with precedence: defaults → environment variables → command line flags.
// It performs validation before returning the configuration.
func Load() (*Config, error) {
	// Parse command line flags if not already parsed
	if !flag.Parsed() {
		flag.Parse()
	}

	// Step 1: Start with defaults
	cfg := defaultConfig()

	// Step 2: Apply environment variables
	loadMQTTFromEnv(&cfg.MQTT)
	loadRedisFromEnv(&cfg.Redis)
	loadPostgresFromEnv(&cfg.Postgres)
	loadSchedulerFromEnv(&cfg.Scheduler)
	loadPipelineFromEnv(&cfg.Pipeline)

	// Step 3: Apply command line flags (highest precedence)
	applyMQTTFlags(&cfg.MQTT)
	applyRedisFlags(&cfg.Redis)
	applyPostgresFlags(&cfg.Postgres)
	applySchedulerFlags(&cfg.Scheduler)
	applyPipelineFlags(&cfg.Pipeline)

	// Step 4: Validate the final configuration
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
