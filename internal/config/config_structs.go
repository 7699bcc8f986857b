// Package config provides configuration loading and validation from environment variables and command line flags.
package config

import "time"

// Config holds the complete configuration. It is built once at startup and
// handed to every component at construction time; nothing reads config files.
type Config struct {
	MQTT      MQTTConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Scheduler SchedulerConfig
	Pipeline  PipelineConfig
}

// MQTTConfig holds MQTT ingress client configuration
type MQTTConfig struct {
	Broker               string
	ClientID             string
	Username             string
	Password             string
	Topics               []string // subscription filters
	QoS                  byte
	KeepAlive            time.Duration
	ConnectTimeout       time.Duration
	SubscribeTimeout     time.Duration
	MaxReconnectInterval time.Duration
	DisconnectTimeout    uint // Milliseconds for graceful disconnect
	// TLS Configuration
	TLSEnabled   bool
	CACert       string
	ClientCert   string
	ClientKey    string
	InsecureSkip bool
}

// RedisConfig holds durable cache configuration
type RedisConfig struct {
	Address              string
	Password             string
	DB                   int
	PoolSize             int
	DialTimeout          time.Duration
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	PingTimeout          time.Duration
	ReconnectInterval    time.Duration // fixed interval between reconnect attempts
	MaxReconnectAttempts int           // hard cap, disconnected past this
}

// PostgresConfig holds relational store configuration
type PostgresConfig struct {
	Host           string
	Port           int
	Database       string
	User           string
	Password       string
	SSLMode        string
	MinConnections int
	MaxConnections int
	ConnectTimeout time.Duration
}

// SchedulerConfig holds worker pool settings
type SchedulerConfig struct {
	Workers       int           // 0 means min(32, NumCPU+4)
	RecentHistory int           // ring size of finished task ids kept for diagnostics
	StatsInterval time.Duration // periodic metrics log
}

// PipelineConfig holds cross-component orchestration settings
type PipelineConfig struct {
	BufferFlushInterval  time.Duration // background force-flush for the Redis buffer
	PersistFlushInterval time.Duration // background force-flush for the persistence service
	ShutdownTimeout      time.Duration
}
