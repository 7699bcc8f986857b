package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/chipmonitor/ingest/internal/config"
	"github.com/chipmonitor/ingest/internal/event"
	"github.com/chipmonitor/ingest/internal/log"
)

// newTestStore connects to a local Postgres instance, skipping the test when
// none is available.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	t.Setenv("POSTGRES_CONNECT_TIMEOUT", "2s")

	fullCfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	store, err := NewStore(ctx, &fullCfg.Postgres, log.New())
	if err != nil {
		t.Skipf("Postgres not available, skipping integration test: %v", err)
	}
	t.Cleanup(store.Close)

	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	return store
}

func TestIntegration_InsertBatchAllChannels(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pressure := 250.5
	msgs := map[event.Channel][]event.Message{
		event.ChannelTelemetry: {
			event.NewMessage(event.ChannelTelemetry, "test", event.TelemetryEvent{
				DeviceID:   "ITEST_TOOL_1",
				DeviceType: "etcher",
				Vendor:     "ITEST",
				Topic:      "factory/telemetry/etcher/ITEST_TOOL_1",
				Format:     "JSON",
				BatchSize:  1,
				Sample: event.TelemetryRecord{
					EquipmentID:     "ITEST_TOOL_1",
					Recipe:          "RCP_7",
					Pressure:        &pressure,
					DeviceTimestamp: 1000000,
					Gas:             map[string]float64{"CF4": 45.2},
				},
			}, "ITEST_TOOL_1"),
		},
		event.ChannelAlerts: {
			event.NewMessage(event.ChannelAlerts, "test", event.Alert{
				DeviceID: "ITEST_TOOL_1", AlertType: "threshold", Severity: "warning", Message: "drift",
			}, "ITEST_TOOL_1"),
		},
		event.ChannelErrors: {
			event.NewMessage(event.ChannelErrors, "test", event.ErrorEvent{
				DeviceID: "ITEST_TOOL_1", ErrorType: "decode_failure", Message: "bad payload", Severity: "error",
			}, "ITEST_TOOL_1"),
		},
		event.ChannelDeviceEvents: {
			event.NewMessage(event.ChannelDeviceEvents, "test", event.DeviceEvent{
				DeviceID: "ITEST_TOOL_1", DeviceType: "etcher", Vendor: "ITEST", EventType: "online", Severity: "info",
			}, "ITEST_TOOL_1"),
		},
	}

	for channel, batch := range msgs {
		if err := store.InsertBatch(ctx, channel, batch); err != nil {
			t.Errorf("InsertBatch(%s) error = %v", channel, err)
		}
	}

	var count int
	err := store.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM devices WHERE device_id = $1", "ITEST_TOOL_1").Scan(&count)
	if err != nil {
		t.Fatalf("registry lookup failed: %v", err)
	}
	if count != 1 {
		t.Errorf("devices rows for ITEST_TOOL_1 = %d; want 1 after repeated upserts", count)
	}
}

func TestIntegration_UpsertDeviceRefreshesLastSeen(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertDevice(ctx, "ITEST_TOOL_2", "cvd", "ITEST"); err != nil {
		t.Fatalf("UpsertDevice() error = %v", err)
	}

	var firstSeen time.Time
	if err := store.pool.QueryRow(ctx,
		"SELECT last_seen FROM devices WHERE device_id = $1", "ITEST_TOOL_2").Scan(&firstSeen); err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if err := store.UpsertDevice(ctx, "ITEST_TOOL_2", "cvd", "ITEST"); err != nil {
		t.Fatalf("second UpsertDevice() error = %v", err)
	}

	var lastSeen time.Time
	if err := store.pool.QueryRow(ctx,
		"SELECT last_seen FROM devices WHERE device_id = $1", "ITEST_TOOL_2").Scan(&lastSeen); err != nil {
		t.Fatalf("second lookup failed: %v", err)
	}
	if !lastSeen.After(firstSeen) {
		t.Errorf("last_seen not advanced: first=%v last=%v", firstSeen, lastSeen)
	}
}
