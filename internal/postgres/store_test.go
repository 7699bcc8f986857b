package postgres

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chipmonitor/ingest/internal/event"
)

func TestJSONOrNil(t *testing.T) {
	if v, err := jsonOrNil(map[string]float64(nil)); err != nil || v != nil {
		t.Errorf("jsonOrNil(nil) = (%v, %v); want (nil, nil)", v, err)
	}
	if v, err := jsonOrNil(map[string]any{}); err != nil || v != nil {
		t.Errorf("jsonOrNil(empty) = (%v, %v); want (nil, nil)", v, err)
	}

	v, err := jsonOrNil(map[string]float64{"CF4": 45.2})
	if err != nil {
		t.Fatalf("jsonOrNil() error = %v", err)
	}
	if v != `{"CF4":45.2}` {
		t.Errorf("jsonOrNil() = %v; want {\"CF4\":45.2}", v)
	}
}

func TestNilIfEmptyAndZero(t *testing.T) {
	if nilIfEmpty("") != nil {
		t.Error(`nilIfEmpty("") != nil`)
	}
	if nilIfEmpty("x") != "x" {
		t.Errorf(`nilIfEmpty("x") = %v; want "x"`, nilIfEmpty("x"))
	}
	if nilIfZero(0) != nil {
		t.Error("nilIfZero(0) != nil")
	}
	if nilIfZero(1000000) != int64(1000000) {
		t.Errorf("nilIfZero(1000000) = %v; want 1000000", nilIfZero(1000000))
	}
}

func TestChannelLabel(t *testing.T) {
	if channelLabel(0) != nil {
		t.Error("channelLabel(0) != nil")
	}
	if channelLabel(3) != "3" {
		t.Errorf("channelLabel(3) = %v; want 3", channelLabel(3))
	}
	if channelLabel(2.5) != "2.5" {
		t.Errorf("channelLabel(2.5) = %v; want 2.5", channelLabel(2.5))
	}
}

func TestQueueInsertBatchShape(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		payload event.Payload
		queued  int
	}{
		{
			"telemetry adds registry upsert",
			event.TelemetryEvent{DeviceID: "LAM_ETCH_000", DeviceType: "etcher", Vendor: "LAM", BatchSize: 1},
			2,
		},
		{
			"alert is one insert",
			event.Alert{DeviceID: "TOOL_1", AlertType: "threshold", Severity: "warning", Message: "drift"},
			1,
		},
		{
			"error is one insert",
			event.ErrorEvent{DeviceID: "TOOL_1", ErrorType: "decode_failure", Message: "bad payload", Severity: "error"},
			1,
		},
		{
			"device event adds registry upsert",
			event.DeviceEvent{DeviceID: "TOOL_1", DeviceType: "etcher", Vendor: "TOOL", EventType: "online", Severity: "info"},
			2,
		},
		{
			"device event without id skips upsert",
			event.DeviceEvent{EventType: "system_message", Severity: "info"},
			1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := &pgx.Batch{}
			msg := event.Message{Channel: tt.payload.Kind(), Source: "test", Timestamp: now, Payload: tt.payload}
			if err := queueInsert(batch, &msg); err != nil {
				t.Fatalf("queueInsert() error = %v", err)
			}
			if batch.Len() != tt.queued {
				t.Errorf("batch.Len() = %d; want %d", batch.Len(), tt.queued)
			}
		})
	}
}

func TestQueueInsertRejectsUnknownPayload(t *testing.T) {
	batch := &pgx.Batch{}
	msg := event.Message{Channel: event.ChannelTelemetry, Payload: nil}
	if err := queueInsert(batch, &msg); err == nil {
		t.Error("queueInsert() = nil; want error for nil payload")
	}
	if batch.Len() != 0 {
		t.Errorf("batch.Len() = %d after rejected payload; want 0", batch.Len())
	}
}
