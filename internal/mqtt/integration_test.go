package mqtt

import (
	"sync"
	"testing"

	"github.com/chipmonitor/ingest/internal/config"
	"github.com/chipmonitor/ingest/internal/log"
)

type captureRouter struct {
	mu     sync.Mutex
	topics []string
}

func (r *captureRouter) Handle(topic string, _ []byte) {
	r.mu.Lock()
	r.topics = append(r.topics, topic)
	r.mu.Unlock()
}

func TestIntegration_ConnectAndSubscribe(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	t.Setenv("MQTT_BROKER", "tcp://localhost:1883")
	t.Setenv("MQTT_CLIENT_ID", "ingest-test")
	t.Setenv("MQTT_CONNECT_TIMEOUT", "2s")

	fullCfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	client, err := NewClient(&fullCfg.MQTT, &captureRouter{}, nil, log.New())
	if err != nil {
		t.Skipf("MQTT broker not available, skipping integration test: %v", err)
	}
	defer func() { _ = client.Close() }()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after successful connect")
	}

	if err := client.Subscribe(); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	stats := client.GetStats()
	if !stats.Connected {
		t.Error("GetStats().Connected = false")
	}
	if len(stats.Topics) != len(fullCfg.MQTT.Topics) {
		t.Errorf("GetStats().Topics = %v; want %v", stats.Topics, fullCfg.MQTT.Topics)
	}
}
