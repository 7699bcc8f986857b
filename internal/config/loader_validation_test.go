package config

import "testing"

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Validate(defaultConfig()); err != nil {
		t.Errorf("Validate(defaultConfig()) = %v; want nil", err)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty broker", func(c *Config) { c.MQTT.Broker = "" }},
		{"empty client id", func(c *Config) { c.MQTT.ClientID = "" }},
		{"no topics", func(c *Config) { c.MQTT.Topics = nil }},
		{"qos out of range", func(c *Config) { c.MQTT.QoS = 3 }},
		{"cert without key", func(c *Config) {
			c.MQTT.TLSEnabled = true
			c.MQTT.ClientCert = "client.pem"
		}},
		{"empty redis address", func(c *Config) { c.Redis.Address = "" }},
		{"zero redis pool", func(c *Config) { c.Redis.PoolSize = 0 }},
		{"zero reconnect attempts", func(c *Config) { c.Redis.MaxReconnectAttempts = 0 }},
		{"empty postgres host", func(c *Config) { c.Postgres.Host = "" }},
		{"postgres port too high", func(c *Config) { c.Postgres.Port = 70000 }},
		{"empty postgres database", func(c *Config) { c.Postgres.Database = "" }},
		{"postgres max below min", func(c *Config) {
			c.Postgres.MinConnections = 10
			c.Postgres.MaxConnections = 5
		}},
		{"negative workers", func(c *Config) { c.Scheduler.Workers = -1 }},
		{"zero recent history", func(c *Config) { c.Scheduler.RecentHistory = 0 }},
		{"zero buffer flush interval", func(c *Config) { c.Pipeline.BufferFlushInterval = 0 }},
		{"zero persist flush interval", func(c *Config) { c.Pipeline.PersistFlushInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Errorf("Validate() = nil; want error for %s", tt.name)
			}
		})
	}
}

func TestValidateAllowsTLSWithBothCertAndKey(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.TLSEnabled = true
	cfg.MQTT.ClientCert = "client.pem"
	cfg.MQTT.ClientKey = "client.key"
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() = %v; want nil when cert and key are paired", err)
	}
}
