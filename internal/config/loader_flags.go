package config

import (
	"flag"
)

// Command line flags (have precedence over environment variables)
var (
	// MQTT flags
	flagMQTTBroker            = flag.String("mqtt-broker", "", "MQTT broker URL")
	flagMQTTClientID          = flag.String("mqtt-client-id", "", "MQTT client ID")
	flagMQTTUsername          = flag.String("mqtt-username", "", "MQTT username")
	flagMQTTPassword          = flag.String("mqtt-password", "", "MQTT password")
	flagMQTTTopics            = flag.String("mqtt-topics", "", "Comma-separated MQTT subscription filters")
	flagMQTTQoS               = flag.Int("mqtt-qos", -1, "MQTT QoS (0, 1, or 2)")
	flagMQTTKeepAlive         = flag.Duration("mqtt-keepalive", 0, "MQTT keepalive interval")
	flagMQTTConnectTimeout    = flag.Duration("mqtt-connect-timeout", 0, "MQTT connect timeout")
	flagMQTTSubscribeTimeout  = flag.Duration("mqtt-subscribe-timeout", 0, "MQTT subscribe timeout")
	flagMQTTMaxReconnect      = flag.Duration("mqtt-max-reconnect-interval", 0, "MQTT max reconnect interval")
	flagMQTTDisconnectTimeout = flag.Int("mqtt-disconnect-timeout", 0, "MQTT disconnect timeout (ms)")
	flagMQTTTLSEnabled        = flag.Bool("mqtt-tls-enabled", false, "Enable MQTT TLS")
	flagMQTTCACert            = flag.String("mqtt-ca-cert", "", "MQTT CA certificate path")
	flagMQTTClientCert        = flag.String("mqtt-client-cert", "", "MQTT client certificate path")
	flagMQTTClientKey         = flag.String("mqtt-client-key", "", "MQTT client key path")
	flagMQTTTLSInsecureSkip   = flag.Bool("mqtt-tls-insecure-skip", false, "Skip MQTT TLS verification")

	// Redis flags
	flagRedisAddress           = flag.String("redis-address", "", "Redis address")
	flagRedisPassword          = flag.String("redis-password", "", "Redis password")
	flagRedisDB                = flag.Int("redis-db", 0, "Redis database number")
	flagRedisPoolSize          = flag.Int("redis-pool-size", 0, "Redis connection pool size")
	flagRedisDialTimeout       = flag.Duration("redis-dial-timeout", 0, "Redis dial timeout")
	flagRedisReadTimeout       = flag.Duration("redis-read-timeout", 0, "Redis read timeout")
	flagRedisWriteTimeout      = flag.Duration("redis-write-timeout", 0, "Redis write timeout")
	flagRedisPingTimeout       = flag.Duration("redis-ping-timeout", 0, "Redis ping timeout")
	flagRedisReconnectInterval = flag.Duration("redis-reconnect-interval", 0, "Redis reconnect interval")
	flagRedisMaxReconnect      = flag.Int("redis-max-reconnect-attempts", 0, "Redis max reconnect attempts")

	// Postgres flags
	flagPostgresHost           = flag.String("postgres-host", "", "Postgres host")
	flagPostgresPort           = flag.Int("postgres-port", 0, "Postgres port")
	flagPostgresDatabase       = flag.String("postgres-database", "", "Postgres database name")
	flagPostgresUser           = flag.String("postgres-user", "", "Postgres user")
	flagPostgresPassword       = flag.String("postgres-password", "", "Postgres password")
	flagPostgresSSLMode        = flag.String("postgres-sslmode", "", "Postgres SSL mode")
	flagPostgresMinConnections = flag.Int("postgres-min-connections", 0, "Postgres pool minimum connections")
	flagPostgresMaxConnections = flag.Int("postgres-max-connections", 0, "Postgres pool maximum connections")
	flagPostgresConnectTimeout = flag.Duration("postgres-connect-timeout", 0, "Postgres connect timeout")

	// Scheduler flags
	flagSchedulerWorkers       = flag.Int("scheduler-workers", 0, "Scheduler worker count (0 = auto)")
	flagSchedulerRecentHistory = flag.Int("scheduler-recent-history", 0, "Finished task ids retained for diagnostics")
	flagSchedulerStatsInterval = flag.Duration("scheduler-stats-interval", 0, "Scheduler metrics log interval")

	// Pipeline flags
	flagPipelineBufferFlush     = flag.Duration("pipeline-buffer-flush-interval", 0, "Background flush interval for the Redis buffer")
	flagPipelinePersistFlush    = flag.Duration("pipeline-persist-flush-interval", 0, "Background flush interval for the persistence service")
	flagPipelineShutdownTimeout = flag.Duration("pipeline-shutdown-timeout", 0, "Pipeline shutdown timeout")
)

// applyMQTTFlags applies command line flags to MQTT configuration
func applyMQTTFlags(cfg *MQTTConfig) {
	applyMQTTFlagStrings(cfg)
	applyMQTTFlagInts(cfg)
	applyMQTTFlagTimeouts(cfg)
	applyMQTTFlagTLS(cfg)
}

func applyMQTTFlagStrings(cfg *MQTTConfig) {
	if *flagMQTTBroker != "" {
		cfg.Broker = *flagMQTTBroker
	}
	if *flagMQTTClientID != "" {
		cfg.ClientID = *flagMQTTClientID
	}
	if *flagMQTTUsername != "" {
		cfg.Username = *flagMQTTUsername
	}
	if *flagMQTTPassword != "" {
		cfg.Password = *flagMQTTPassword
	}
	if *flagMQTTTopics != "" {
		cfg.Topics = splitTopics(*flagMQTTTopics)
	}
}

func applyMQTTFlagInts(cfg *MQTTConfig) {
	if *flagMQTTQoS != -1 && *flagMQTTQoS >= 0 && *flagMQTTQoS <= 2 {
		cfg.QoS = byte(*flagMQTTQoS) // #nosec G115 - validated range 0-2
	}
	if *flagMQTTDisconnectTimeout != 0 {
		cfg.DisconnectTimeout = uint(*flagMQTTDisconnectTimeout) // #nosec G115 - config values are non-negative
	}
}

func applyMQTTFlagTimeouts(cfg *MQTTConfig) {
	if *flagMQTTKeepAlive != 0 {
		cfg.KeepAlive = *flagMQTTKeepAlive
	}
	if *flagMQTTConnectTimeout != 0 {
		cfg.ConnectTimeout = *flagMQTTConnectTimeout
	}
	if *flagMQTTSubscribeTimeout != 0 {
		cfg.SubscribeTimeout = *flagMQTTSubscribeTimeout
	}
	if *flagMQTTMaxReconnect != 0 {
		cfg.MaxReconnectInterval = *flagMQTTMaxReconnect
	}
}

func applyMQTTFlagTLS(cfg *MQTTConfig) {
	if isFlagSet("mqtt-tls-enabled") {
		cfg.TLSEnabled = *flagMQTTTLSEnabled
	}
	if *flagMQTTCACert != "" {
		cfg.CACert = *flagMQTTCACert
	}
	if *flagMQTTClientCert != "" {
		cfg.ClientCert = *flagMQTTClientCert
	}
	if *flagMQTTClientKey != "" {
		cfg.ClientKey = *flagMQTTClientKey
	}
	if isFlagSet("mqtt-tls-insecure-skip") {
		cfg.InsecureSkip = *flagMQTTTLSInsecureSkip
	}
}

// applyRedisFlags applies command line flags to Redis configuration
func applyRedisFlags(cfg *RedisConfig) {
	if *flagRedisAddress != "" {
		cfg.Address = *flagRedisAddress
	}
	if *flagRedisPassword != "" {
		cfg.Password = *flagRedisPassword
	}
	if *flagRedisDB != 0 {
		cfg.DB = *flagRedisDB
	}
	if *flagRedisPoolSize != 0 {
		cfg.PoolSize = *flagRedisPoolSize
	}
	if *flagRedisDialTimeout != 0 {
		cfg.DialTimeout = *flagRedisDialTimeout
	}
	if *flagRedisReadTimeout != 0 {
		cfg.ReadTimeout = *flagRedisReadTimeout
	}
	if *flagRedisWriteTimeout != 0 {
		cfg.WriteTimeout = *flagRedisWriteTimeout
	}
	if *flagRedisPingTimeout != 0 {
		cfg.PingTimeout = *flagRedisPingTimeout
	}
	if *flagRedisReconnectInterval != 0 {
		cfg.ReconnectInterval = *flagRedisReconnectInterval
	}
	if *flagRedisMaxReconnect != 0 {
		cfg.MaxReconnectAttempts = *flagRedisMaxReconnect
	}
}

// applyPostgresFlags applies command line flags to Postgres configuration
func applyPostgresFlags(cfg *PostgresConfig) {
	if *flagPostgresHost != "" {
		cfg.Host = *flagPostgresHost
	}
	if *flagPostgresPort != 0 {
		cfg.Port = *flagPostgresPort
	}
	if *flagPostgresDatabase != "" {
		cfg.Database = *flagPostgresDatabase
	}
	if *flagPostgresUser != "" {
		cfg.User = *flagPostgresUser
	}
	if *flagPostgresPassword != "" {
		cfg.Password = *flagPostgresPassword
	}
	if *flagPostgresSSLMode != "" {
		cfg.SSLMode = *flagPostgresSSLMode
	}
	if *flagPostgresMinConnections != 0 {
		cfg.MinConnections = *flagPostgresMinConnections
	}
	if *flagPostgresMaxConnections != 0 {
		cfg.MaxConnections = *flagPostgresMaxConnections
	}
	if *flagPostgresConnectTimeout != 0 {
		cfg.ConnectTimeout = *flagPostgresConnectTimeout
	}
}

// applySchedulerFlags applies command line flags to scheduler configuration
func applySchedulerFlags(cfg *SchedulerConfig) {
	if *flagSchedulerWorkers != 0 {
		cfg.Workers = *flagSchedulerWorkers
	}
	if *flagSchedulerRecentHistory != 0 {
		cfg.RecentHistory = *flagSchedulerRecentHistory
	}
	if *flagSchedulerStatsInterval != 0 {
		cfg.StatsInterval = *flagSchedulerStatsInterval
	}
}

// applyPipelineFlags applies command line flags to pipeline configuration
func applyPipelineFlags(cfg *PipelineConfig) {
	if *flagPipelineBufferFlush != 0 {
		cfg.BufferFlushInterval = *flagPipelineBufferFlush
	}
	if *flagPipelinePersistFlush != 0 {
		cfg.PersistFlushInterval = *flagPipelinePersistFlush
	}
	if *flagPipelineShutdownTimeout != 0 {
		cfg.ShutdownTimeout = *flagPipelineShutdownTimeout
	}
}

// isFlagSet checks if a flag was explicitly set on the command line
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
