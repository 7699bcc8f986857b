package redis

import (
	"time"

	"github.com/chipmonitor/ingest/internal/event"
)

// structureType selects the Redis data structure backing a channel.
type structureType int

const (
	structureStream structureType = iota
	structureList
)

// strategy describes how one channel is buffered: which structure, the key,
// the retained length, the batch size that triggers an inline flush, the
// elapsed time that triggers one, and the key TTL (lists only, streams are
// capped by MAXLEN).
type strategy struct {
	structure     structureType
	key           string
	maxLength     int64
	batchSize     int
	flushInterval time.Duration
	ttl           time.Duration
}

// bufferStrategies is the static per-channel table. Telemetry is high-rate
// and goes to a capped stream; the low-rate channels are capped lists with a
// TTL.
var bufferStrategies = map[event.Channel]strategy{
	event.ChannelTelemetry: {
		structure:     structureStream,
		key:           "telemetry_stream",
		maxLength:     10000,
		batchSize:     100,
		flushInterval: 5 * time.Second,
		ttl:           time.Hour,
	},
	event.ChannelAlerts: {
		structure:     structureList,
		key:           "alerts_queue",
		maxLength:     1000,
		batchSize:     20,
		flushInterval: 2 * time.Second,
		ttl:           24 * time.Hour,
	},
	event.ChannelErrors: {
		structure:     structureList,
		key:           "errors_queue",
		maxLength:     1000,
		batchSize:     20,
		flushInterval: 2 * time.Second,
		ttl:           24 * time.Hour,
	},
	event.ChannelDeviceEvents: {
		structure:     structureList,
		key:           "device_events_queue",
		maxLength:     2000,
		batchSize:     50,
		flushInterval: 3 * time.Second,
		ttl:           24 * time.Hour,
	},
}
