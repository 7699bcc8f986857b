package config

import "time"

// defaultMQTTConfig returns the default MQTT configuration
func defaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "chipmonitor-ingest",
		Topics: []string{
			"factory/telemetry/+/+",
			"factory/telemetry/+/+/+",
			"gateway/+/+",
		},
		QoS:                  1,
		KeepAlive:            60 * time.Second,
		ConnectTimeout:       10 * time.Second,
		SubscribeTimeout:     10 * time.Second,
		MaxReconnectInterval: 10 * time.Second,
		DisconnectTimeout:    1000,
		TLSEnabled:           false,
		CACert:               "",
		ClientCert:           "",
		ClientKey:            "",
		InsecureSkip:         false,
	}
}

// defaultRedisConfig returns the default Redis configuration
func defaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:              "localhost:6379",
		Password:             "",
		DB:                   0,
		PoolSize:             20,
		DialTimeout:          3 * time.Second,
		ReadTimeout:          5 * time.Second,
		WriteTimeout:         5 * time.Second,
		PingTimeout:          5 * time.Second,
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 10,
	}
}

// defaultPostgresConfig returns the default Postgres configuration
func defaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:           "localhost",
		Port:           5435,
		Database:       "semiconductor_db",
		User:           "app_user",
		Password:       "app_pass",
		SSLMode:        "prefer",
		MinConnections: 5,
		MaxConnections: 20,
		ConnectTimeout: 10 * time.Second,
	}
}

// defaultSchedulerConfig returns the default scheduler configuration
func defaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Workers:       0, // sized from CPU count at construction
		RecentHistory: 1000,
		StatsInterval: 5 * time.Second,
	}
}

// defaultPipelineConfig returns the default pipeline configuration
func defaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BufferFlushInterval:  10 * time.Second,
		PersistFlushInterval: 30 * time.Second,
		ShutdownTimeout:      30 * time.Second,
	}
}

// defaultConfig returns a complete configuration with all default values
func defaultConfig() *Config {
	return &Config{
		MQTT:      defaultMQTTConfig(),
		Redis:     defaultRedisConfig(),
		Postgres:  defaultPostgresConfig(),
		Scheduler: defaultSchedulerConfig(),
		Pipeline:  defaultPipelineConfig(),
	}
}
