package redis

import (
	"context"
	"testing"
	"time"

	"github.com/chipmonitor/ingest/internal/config"
	"github.com/chipmonitor/ingest/internal/event"
	"github.com/chipmonitor/ingest/internal/log"
)

// newTestClient connects to a local Redis instance, skipping the test when
// none is available.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	t.Setenv("REDIS_ADDRESS", "localhost:6379")
	t.Setenv("REDIS_DIAL_TIMEOUT", "1s")

	fullCfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	client, err := NewClient(&fullCfg.Redis, log.New())
	if err != nil {
		t.Skipf("Redis not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIntegration_BufferFlushOnForce(t *testing.T) {
	client := newTestClient(t)
	buffer := NewBuffer(client, log.New())

	ctx := context.Background()
	if err := buffer.ClearChannel(ctx, event.ChannelAlerts); err != nil {
		t.Fatalf("ClearChannel() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		msg := event.NewMessage(event.ChannelAlerts, "test",
			event.Alert{DeviceID: "TOOL_1", Severity: "warning", Message: "drift"}, "TOOL_1")
		if !buffer.Buffer(msg) {
			t.Fatalf("Buffer() message %d rejected", i)
		}
	}

	flushed := buffer.ForceFlushAll()
	if flushed[event.ChannelAlerts] != 3 {
		t.Errorf("ForceFlushAll() alerts = %d; want 3", flushed[event.ChannelAlerts])
	}

	count, err := buffer.BufferedCount(ctx, event.ChannelAlerts)
	if err != nil {
		t.Fatalf("BufferedCount() error = %v", err)
	}
	if count != 3 {
		t.Errorf("BufferedCount() = %d; want 3", count)
	}

	if err := buffer.ClearChannel(ctx, event.ChannelAlerts); err != nil {
		t.Fatalf("ClearChannel() error = %v", err)
	}
	count, err = buffer.BufferedCount(ctx, event.ChannelAlerts)
	if err != nil {
		t.Fatalf("BufferedCount() after clear error = %v", err)
	}
	if count != 0 {
		t.Errorf("BufferedCount() after clear = %d; want 0", count)
	}
}

func TestIntegration_BufferInlineFlushAtBatchSize(t *testing.T) {
	client := newTestClient(t)
	buffer := NewBuffer(client, log.New())

	ctx := context.Background()
	if err := buffer.ClearChannel(ctx, event.ChannelErrors); err != nil {
		t.Fatalf("ClearChannel() error = %v", err)
	}

	batchSize := bufferStrategies[event.ChannelErrors].batchSize
	for i := 0; i < batchSize; i++ {
		msg := event.NewMessage(event.ChannelErrors, "test",
			event.ErrorEvent{DeviceID: "TOOL_2", ErrorType: "decode_failure", Severity: "error"}, "TOOL_2")
		if !buffer.Buffer(msg) {
			t.Fatalf("Buffer() message %d rejected", i)
		}
	}

	// the batch-size breach flushes inline, nothing should be pending
	stats := buffer.GetStats()
	if stats.QueueSizes[event.ChannelErrors] != 0 {
		t.Errorf("pending queue = %d after batch-size flush; want 0", stats.QueueSizes[event.ChannelErrors])
	}
	if stats.Flushes == 0 {
		t.Error("Flushes = 0; want at least one inline flush")
	}

	count, err := buffer.BufferedCount(ctx, event.ChannelErrors)
	if err != nil {
		t.Fatalf("BufferedCount() error = %v", err)
	}
	if count != int64(batchSize) {
		t.Errorf("BufferedCount() = %d; want %d", count, batchSize)
	}

	_ = buffer.ClearChannel(ctx, event.ChannelErrors)
}

func TestIntegration_TelemetryStream(t *testing.T) {
	client := newTestClient(t)
	buffer := NewBuffer(client, log.New())

	ctx := context.Background()
	if err := buffer.ClearChannel(ctx, event.ChannelTelemetry); err != nil {
		t.Fatalf("ClearChannel() error = %v", err)
	}

	msg := event.NewMessage(event.ChannelTelemetry, "test",
		event.TelemetryEvent{DeviceID: "LAM_ETCH_000", DeviceType: "etcher", Vendor: "LAM", BatchSize: 1},
		"LAM_ETCH_000")
	if !buffer.Buffer(msg) {
		t.Fatal("Buffer() rejected telemetry message")
	}
	buffer.ForceFlushAll()

	count, err := buffer.BufferedCount(ctx, event.ChannelTelemetry)
	if err != nil {
		t.Fatalf("BufferedCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("stream length = %d; want 1", count)
	}

	_ = buffer.ClearChannel(ctx, event.ChannelTelemetry)
}

func TestIntegration_ClientPingAndReconnect(t *testing.T) {
	client := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if !client.Connected() {
		t.Error("Connected() = false after successful ping")
	}

	if err := client.Reconnect(ctx); err != nil {
		t.Errorf("Reconnect() error = %v", err)
	}

	info, err := client.Info(ctx, "server")
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info == "" {
		t.Error("Info() returned empty server section")
	}
}
