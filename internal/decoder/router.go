package decoder

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chipmonitor/ingest/internal/bus"
	"github.com/chipmonitor/ingest/internal/event"
	"github.com/chipmonitor/ingest/internal/log"
	"github.com/chipmonitor/ingest/internal/scheduler"
)

const sourceName = "mqtt"

// Router classifies inbound wire messages and hands the decode work to the
// scheduler at realtime priority, so the wire callback returns immediately.
// Decoded results are published onto the bus from the worker goroutine.
type Router struct {
	sched *scheduler.Scheduler
	bus   *bus.Bus
	log   *log.Logger

	mu           sync.Mutex
	knownDevices map[string]struct{}
}

// NewRouter wires a router to its scheduler and bus.
func NewRouter(sched *scheduler.Scheduler, b *bus.Bus, logger *log.Logger) *Router {
	return &Router{
		sched:        sched,
		bus:          b,
		log:          logger,
		knownDevices: make(map[string]struct{}),
	}
}

// Handle classifies the topic and submits the decode task. It never blocks
// and never returns an error to the wire callback; failures surface as
// events on the error channel.
func (r *Router) Handle(topic string, payload []byte) {
	info := ClassifyTopic(topic)

	// own copy, the wire client may reuse the buffer
	body := make([]byte, len(payload))
	copy(body, payload)

	switch info.Class {
	case TopicDeviceTelemetry:
		r.sched.Submit(scheduler.CategoryMQTT, scheduler.PriorityRealtime, func() (any, error) {
			r.processDeviceMessage(topic, info, body)
			return nil, nil
		})
	case TopicGateway:
		r.sched.Submit(scheduler.CategoryEvent, scheduler.PriorityNormal, func() (any, error) {
			r.processGatewayMessage(topic, info, body)
			return nil, nil
		})
	default:
		r.sched.Submit(scheduler.CategoryEvent, scheduler.PriorityLow, func() (any, error) {
			r.processSystemMessage(topic, body)
			return nil, nil
		})
	}
}

// KnownDevices returns the ids seen so far.
func (r *Router) KnownDevices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.knownDevices))
	for id := range r.knownDevices {
		ids = append(ids, id)
	}
	return ids
}

// markSeen records a device id and reports whether it is new.
func (r *Router) markSeen(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.knownDevices[deviceID]; ok {
		return false
	}
	r.knownDevices[deviceID] = struct{}{}
	return true
}

func (r *Router) processDeviceMessage(topic string, info TopicInfo, payload []byte) {
	start := time.Now()

	if r.markSeen(info.DeviceID) {
		r.bus.Publish(event.ChannelDeviceEvents, sourceName, event.DeviceEvent{
			DeviceID:   info.DeviceID,
			DeviceType: info.DeviceType,
			Vendor:     info.Vendor,
			EventType:  "online",
			Severity:   "info",
			Topic:      info.CleanTopic,
		}, info.DeviceID)
		r.log.Info("Device discovered: %s [%s %s]", info.DeviceID, info.Vendor, info.DeviceType)
	}

	decoded, format, err := decodePayload(payload, info.FormatHint)
	if err != nil {
		r.publishDecodeError(topic, info, len(payload), err)
		return
	}

	records, ok := decoded.([]any)
	if !ok {
		r.publishDecodeError(topic, info, len(payload),
			fmt.Errorf("%w: expected array payload, got %T", event.ErrDecode, decoded))
		return
	}
	if len(records) == 0 {
		r.publishDecodeError(topic, info, len(payload),
			fmt.Errorf("%w: empty data array", event.ErrDecode))
		return
	}

	first, ok := asStringMap(records[0])
	if !ok {
		r.publishDecodeError(topic, info, len(payload),
			fmt.Errorf("%w: first record is %T, not an object", event.ErrDecode, records[0]))
		return
	}

	ev := event.TelemetryEvent{
		DeviceID:   info.DeviceID,
		DeviceType: info.DeviceType,
		Vendor:     info.Vendor,
		Topic:      info.CleanTopic,
		Format:     format,
		BatchSize:  len(records),
		DataSize:   len(payload),
		Sample:     MapRecord(first),
	}
	if len(records) > 1 {
		ev.Span = AnalyzeBatchSpan(records)
	}
	ev.ParseTime = time.Since(start)

	if !r.bus.Publish(event.ChannelTelemetry, sourceName, ev, info.DeviceID) {
		r.log.Error("Telemetry publish failed: %s", info.DeviceID)
	}
}

func (r *Router) processGatewayMessage(topic string, info TopicInfo, payload []byte) {
	parsed, contentType := decodeLoose(payload, info.FormatHint)

	r.bus.Publish(event.ChannelDeviceEvents, sourceName, event.DeviceEvent{
		DeviceID:   info.GatewayID,
		DeviceType: "GATEWAY",
		Vendor:     "SYSTEM",
		EventType:  "gateway_message",
		Severity:   "info",
		Topic:      info.CleanTopic,
		Data: map[string]any{
			"function":     info.Function,
			"content_type": contentType,
			"data_size":    len(payload),
			"payload":      parsed,
		},
	}, info.GatewayID)

	r.log.Debug("Gateway message: %s/%s [%s]", info.GatewayID, info.Function, contentType)
}

func (r *Router) processSystemMessage(topic string, payload []byte) {
	messageType := topic
	if i := strings.IndexByte(topic, '/'); i >= 0 {
		messageType = topic[:i]
	}

	r.log.Info("System message: %s | %d bytes", topic, len(payload))

	r.bus.Publish(event.ChannelDeviceEvents, sourceName, event.DeviceEvent{
		DeviceID:   "system",
		DeviceType: "SYSTEM",
		Vendor:     "SYSTEM",
		EventType:  "system_message",
		Severity:   "info",
		Topic:      topic,
		Data: map[string]any{
			"message_type": messageType,
			"payload_size": len(payload),
		},
	}, "system")
}

func (r *Router) publishDecodeError(topic string, info TopicInfo, size int, err error) {
	r.log.Warn("Decode failed on %s: %v", topic, err)

	r.bus.Publish(event.ChannelErrors, sourceName, event.ErrorEvent{
		DeviceID:   info.DeviceID,
		DeviceType: info.DeviceType,
		Vendor:     info.Vendor,
		Topic:      topic,
		ErrorType:  "decode_failure",
		Message:    err.Error(),
		Severity:   "error",
		Data: map[string]any{
			"data_size": size,
		},
	}, info.DeviceID)
}
