package decoder

import "strings"

// TopicClass is the routing class of an inbound topic.
type TopicClass int

const (
	// TopicDeviceTelemetry matches factory/telemetry/{device_type}/{device_id}[/{format}].
	TopicDeviceTelemetry TopicClass = iota
	// TopicGateway matches gateway/{gateway_id}/{function}[/{format}].
	TopicGateway
	// TopicSystem covers everything else.
	TopicSystem
)

func (c TopicClass) String() string {
	switch c {
	case TopicDeviceTelemetry:
		return "device-telemetry"
	case TopicGateway:
		return "gateway"
	default:
		return "system"
	}
}

// TopicInfo is the result of classifying one topic string. CleanTopic has
// the format hint stripped; FormatHint is "msgpack", "json", or "" for
// auto-detect.
type TopicInfo struct {
	Class      TopicClass
	CleanTopic string
	FormatHint string
	DeviceType string
	DeviceID   string
	Vendor     string
	GatewayID  string
	Function   string
}

// stripFormatHint removes a trailing /msgpack or /json segment.
func stripFormatHint(topic string) (clean, hint string) {
	switch {
	case strings.HasSuffix(topic, "/msgpack"):
		return strings.TrimSuffix(topic, "/msgpack"), "msgpack"
	case strings.HasSuffix(topic, "/json"):
		return strings.TrimSuffix(topic, "/json"), "json"
	}
	return topic, ""
}

// ClassifyTopic splits a topic, strips the format hint and classifies the
// remainder. Device ids follow the {vendor}_{type}_{serial} convention, so
// the vendor is the segment before the first underscore.
func ClassifyTopic(topic string) TopicInfo {
	clean, hint := stripFormatHint(topic)
	parts := strings.Split(clean, "/")

	info := TopicInfo{Class: TopicSystem, CleanTopic: clean, FormatHint: hint}

	switch {
	case len(parts) >= 4 && parts[0] == "factory" && parts[1] == "telemetry":
		info.Class = TopicDeviceTelemetry
		info.DeviceType = parts[2]
		info.DeviceID = parts[3]
		info.Vendor = vendorFromDeviceID(parts[3])
	case len(parts) >= 3 && parts[0] == "gateway":
		info.Class = TopicGateway
		info.GatewayID = parts[1]
		info.Function = parts[2]
		info.DeviceID = parts[1]
		info.DeviceType = "GATEWAY"
		info.Vendor = "SYSTEM"
		// gateway status and config bodies are plain text unless hinted
		if hint == "" && (info.Function == "status" || info.Function == "config") {
			info.FormatHint = "text"
		}
	}
	return info
}

func vendorFromDeviceID(deviceID string) string {
	if i := strings.IndexByte(deviceID, '_'); i > 0 {
		return deviceID[:i]
	}
	if deviceID != "" {
		return deviceID
	}
	return "UNKNOWN"
}
