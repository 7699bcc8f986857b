// Package event provides the shared message types flowing through the
// pipeline: channels, the bus message envelope and the typed payload variants.
package event

import "time"

// Channel is a named message category with its own subscriber list and
// buffering strategy. The set is closed.
type Channel string

// The four pipeline channels.
const (
	ChannelTelemetry    Channel = "telemetry_data"
	ChannelAlerts       Channel = "alerts"
	ChannelErrors       Channel = "errors"
	ChannelDeviceEvents Channel = "device_events"
)

// Channels lists every channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelTelemetry, ChannelAlerts, ChannelErrors, ChannelDeviceEvents}
}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelTelemetry, ChannelAlerts, ChannelErrors, ChannelDeviceEvents:
		return true
	}
	return false
}

// Payload is the closed union of per-channel message bodies.
type Payload interface {
	Kind() Channel
}

// Message is the bus envelope. Immutable once published.
type Message struct {
	Channel   Channel
	Source    string
	DeviceID  string
	Timestamp time.Time
	Payload   Payload
}

// NewMessage stamps the envelope with the current time.
func NewMessage(channel Channel, source string, payload Payload, deviceID string) Message {
	return Message{
		Channel:   channel,
		Source:    source,
		DeviceID:  deviceID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// TelemetryRecord holds the canonical fields of one decoded wire record.
// Compact wire keys are remapped before this struct is populated, so the
// JSON names below are the stable storage names.
type TelemetryRecord struct {
	EquipmentID        string             `json:"equipment_id,omitempty"`
	Channel            float64            `json:"channel,omitempty"`
	Recipe             string             `json:"recipe,omitempty"`
	Step               string             `json:"step,omitempty"`
	LotNumber          string             `json:"lot_number,omitempty"`
	WaferID            string             `json:"wafer_id,omitempty"`
	Pressure           *float64           `json:"pressure,omitempty"`
	Temperature        *float64           `json:"temperature,omitempty"`
	RFPower            *float64           `json:"rf_power,omitempty"`
	Endpoint           *float64           `json:"endpoint,omitempty"`
	DeviceTimestamp    int64              `json:"device_timestamp,omitempty"`
	DeviceTimestampSec float64            `json:"device_timestamp_sec,omitempty"`
	Gas                map[string]float64 `json:"gas,omitempty"`
}

// BatchSpan describes the time spread of a multi-record batch. Timestamps are
// seconds; Density is records per second.
type BatchSpan struct {
	Span    float64 `json:"batch_time_span"`
	Density float64 `json:"batch_data_density"`
	Start   float64 `json:"batch_start_time"`
	End     float64 `json:"batch_end_time"`
}

// TelemetryEvent is one successfully decoded wire message, possibly carrying
// a batch of records. Sample holds the first record's canonical fields.
type TelemetryEvent struct {
	DeviceID   string          `json:"device_id"`
	DeviceType string          `json:"device_type"`
	Vendor     string          `json:"vendor"`
	Topic      string          `json:"topic"`
	Format     string          `json:"data_format"`
	BatchSize  int             `json:"batch_size"`
	DataSize   int             `json:"data_size"`
	ParseTime  time.Duration   `json:"-"`
	Sample     TelemetryRecord `json:"sample_record"`
	Span       *BatchSpan      `json:"span,omitempty"`
}

// Kind implements Payload.
func (TelemetryEvent) Kind() Channel { return ChannelTelemetry }

// Alert is an operator-facing condition raised against a device.
type Alert struct {
	DeviceID  string         `json:"device_id"`
	AlertType string         `json:"alert_type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// Kind implements Payload.
func (Alert) Kind() Channel { return ChannelAlerts }

// ErrorEvent reports a decode, routing or processing failure. DeviceID is
// best-effort, recovered from the topic when the payload is unreadable.
type ErrorEvent struct {
	DeviceID   string         `json:"device_id"`
	DeviceType string         `json:"device_type"`
	Vendor     string         `json:"vendor"`
	Topic      string         `json:"topic"`
	ErrorType  string         `json:"error_type"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"error"`
	Severity   string         `json:"severity"`
	Data       map[string]any `json:"data,omitempty"`
}

// Kind implements Payload.
func (ErrorEvent) Kind() Channel { return ChannelErrors }

// DeviceEvent covers discovery, gateway and system lifecycle messages.
type DeviceEvent struct {
	DeviceID   string         `json:"device_id"`
	DeviceType string         `json:"device_type"`
	Vendor     string         `json:"vendor"`
	EventType  string         `json:"event_type"`
	Severity   string         `json:"severity"`
	Topic      string         `json:"topic,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Kind implements Payload.
func (DeviceEvent) Kind() Channel { return ChannelDeviceEvents }
