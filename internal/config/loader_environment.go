package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// loadMQTTFromEnv loads MQTT configuration from environment variables
func loadMQTTFromEnv(cfg *MQTTConfig) {
	loadMQTTStrings(cfg)
	loadMQTTInts(cfg)
	loadMQTTTimeouts(cfg)
	loadMQTTTLS(cfg)
}

func loadMQTTStrings(cfg *MQTTConfig) {
	if v := getEnvString("MQTT_BROKER"); v != "" {
		cfg.Broker = v
	}
	if v := getEnvString("MQTT_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := getEnvString("MQTT_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := getEnvString("MQTT_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := getEnvString("MQTT_TOPICS"); v != "" {
		cfg.Topics = splitTopics(v)
	}
}

func loadMQTTInts(cfg *MQTTConfig) {
	if v := getEnvInt("MQTT_QOS"); v > 0 && v <= 2 {
		cfg.QoS = byte(v) // #nosec G115 - validated range 0-2
	}
	if v := getEnvInt("MQTT_DISCONNECT_TIMEOUT"); v != 0 {
		cfg.DisconnectTimeout = uint(v) // #nosec G115 - config values are non-negative
	}
}

func loadMQTTTimeouts(cfg *MQTTConfig) {
	if v := getEnvDuration("MQTT_KEEPALIVE"); v != 0 {
		cfg.KeepAlive = v
	}
	if v := getEnvDuration("MQTT_CONNECT_TIMEOUT"); v != 0 {
		cfg.ConnectTimeout = v
	}
	if v := getEnvDuration("MQTT_SUBSCRIBE_TIMEOUT"); v != 0 {
		cfg.SubscribeTimeout = v
	}
	if v := getEnvDuration("MQTT_MAX_RECONNECT_INTERVAL"); v != 0 {
		cfg.MaxReconnectInterval = v
	}
}

func loadMQTTTLS(cfg *MQTTConfig) {
	if getEnvBool("MQTT_TLS_ENABLED") {
		cfg.TLSEnabled = true
	}
	if v := getEnvString("MQTT_CA_CERT"); v != "" {
		cfg.CACert = v
	}
	if v := getEnvString("MQTT_CLIENT_CERT"); v != "" {
		cfg.ClientCert = v
	}
	if v := getEnvString("MQTT_CLIENT_KEY"); v != "" {
		cfg.ClientKey = v
	}
	if getEnvBool("MQTT_TLS_INSECURE_SKIP") {
		cfg.InsecureSkip = true
	}
}

// loadRedisFromEnv loads Redis configuration from environment variables
func loadRedisFromEnv(cfg *RedisConfig) {
	if v := getEnvString("REDIS_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := getEnvString("REDIS_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := getEnvInt("REDIS_DB"); v != 0 {
		cfg.DB = v
	}
	if v := getEnvInt("REDIS_POOL_SIZE"); v != 0 {
		cfg.PoolSize = v
	}
	if v := getEnvDuration("REDIS_DIAL_TIMEOUT"); v != 0 {
		cfg.DialTimeout = v
	}
	if v := getEnvDuration("REDIS_READ_TIMEOUT"); v != 0 {
		cfg.ReadTimeout = v
	}
	if v := getEnvDuration("REDIS_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	if v := getEnvDuration("REDIS_PING_TIMEOUT"); v != 0 {
		cfg.PingTimeout = v
	}
	if v := getEnvDuration("REDIS_RECONNECT_INTERVAL"); v != 0 {
		cfg.ReconnectInterval = v
	}
	if v := getEnvInt("REDIS_MAX_RECONNECT_ATTEMPTS"); v != 0 {
		cfg.MaxReconnectAttempts = v
	}
}

// loadPostgresFromEnv loads Postgres configuration from environment variables
func loadPostgresFromEnv(cfg *PostgresConfig) {
	if v := getEnvString("POSTGRES_HOST"); v != "" {
		cfg.Host = v
	}
	if v := getEnvInt("POSTGRES_PORT"); v != 0 {
		cfg.Port = v
	}
	if v := getEnvString("POSTGRES_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := getEnvString("POSTGRES_USER"); v != "" {
		cfg.User = v
	}
	if v := getEnvString("POSTGRES_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := getEnvString("POSTGRES_SSLMODE"); v != "" {
		cfg.SSLMode = v
	}
	if v := getEnvInt("POSTGRES_MIN_CONNECTIONS"); v != 0 {
		cfg.MinConnections = v
	}
	if v := getEnvInt("POSTGRES_MAX_CONNECTIONS"); v != 0 {
		cfg.MaxConnections = v
	}
	if v := getEnvDuration("POSTGRES_CONNECT_TIMEOUT"); v != 0 {
		cfg.ConnectTimeout = v
	}
}

// loadSchedulerFromEnv loads scheduler configuration from environment variables
func loadSchedulerFromEnv(cfg *SchedulerConfig) {
	if v := getEnvInt("SCHEDULER_WORKERS"); v != 0 {
		cfg.Workers = v
	}
	if v := getEnvInt("SCHEDULER_RECENT_HISTORY"); v != 0 {
		cfg.RecentHistory = v
	}
	if v := getEnvDuration("SCHEDULER_STATS_INTERVAL"); v != 0 {
		cfg.StatsInterval = v
	}
}

// loadPipelineFromEnv loads pipeline configuration from environment variables
func loadPipelineFromEnv(cfg *PipelineConfig) {
	if v := getEnvDuration("PIPELINE_BUFFER_FLUSH_INTERVAL"); v != 0 {
		cfg.BufferFlushInterval = v
	}
	if v := getEnvDuration("PIPELINE_PERSIST_FLUSH_INTERVAL"); v != 0 {
		cfg.PersistFlushInterval = v
	}
	if v := getEnvDuration("PIPELINE_SHUTDOWN_TIMEOUT"); v != 0 {
		cfg.ShutdownTimeout = v
	}
}

// splitTopics parses a comma-separated topic filter list
func splitTopics(raw string) []string {
	parts := strings.Split(raw, ",")
	topics := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// Helper functions for reading environment variables

func getEnvString(key string) string {
	return os.Getenv(key)
}

func getEnvInt(key string) int {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return intValue
}

func getEnvDuration(key string) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return duration
}

func getEnvBool(key string) bool {
	value := os.Getenv(key)
	return value == "true"
}
