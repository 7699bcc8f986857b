package config

import "fmt"

// Validate checks configuration constraints
func Validate(cfg *Config) error {
	if err := validateMQTT(&cfg.MQTT); err != nil {
		return err
	}
	if err := validateRedis(&cfg.Redis); err != nil {
		return err
	}
	if err := validatePostgres(&cfg.Postgres); err != nil {
		return err
	}
	if err := validateScheduler(&cfg.Scheduler); err != nil {
		return err
	}
	return validatePipeline(&cfg.Pipeline)
}

// validateMQTT validates MQTT configuration
func validateMQTT(cfg *MQTTConfig) error {
	if cfg.Broker == "" {
		return fmt.Errorf("mqtt broker cannot be empty")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("mqtt client ID cannot be empty")
	}
	if len(cfg.Topics) == 0 {
		return fmt.Errorf("mqtt subscription topics cannot be empty")
	}
	if cfg.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	if cfg.TLSEnabled && (cfg.ClientCert == "") != (cfg.ClientKey == "") {
		return fmt.Errorf("mqtt client cert and key must be provided together")
	}
	return nil
}

// validateRedis validates Redis configuration
func validateRedis(cfg *RedisConfig) error {
	if cfg.Address == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if cfg.PoolSize < 1 {
		return fmt.Errorf("redis pool size must be positive")
	}
	if cfg.MaxReconnectAttempts < 1 {
		return fmt.Errorf("redis max reconnect attempts must be positive")
	}
	return nil
}

// validatePostgres validates Postgres configuration
func validatePostgres(cfg *PostgresConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("postgres host cannot be empty")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("postgres port out of range")
	}
	if cfg.Database == "" {
		return fmt.Errorf("postgres database cannot be empty")
	}
	if cfg.MinConnections < 1 || cfg.MaxConnections < cfg.MinConnections {
		return fmt.Errorf("postgres pool bounds invalid (min=%d, max=%d)", cfg.MinConnections, cfg.MaxConnections)
	}
	return nil
}

// validateScheduler validates scheduler configuration
func validateScheduler(cfg *SchedulerConfig) error {
	if cfg.Workers < 0 {
		return fmt.Errorf("scheduler workers cannot be negative")
	}
	if cfg.RecentHistory < 1 {
		return fmt.Errorf("scheduler recent history must be positive")
	}
	return nil
}

// validatePipeline validates pipeline configuration
func validatePipeline(cfg *PipelineConfig) error {
	if cfg.BufferFlushInterval <= 0 {
		return fmt.Errorf("pipeline buffer flush interval must be positive")
	}
	if cfg.PersistFlushInterval <= 0 {
		return fmt.Errorf("pipeline persist flush interval must be positive")
	}
	return nil
}
