package decoder

import (
	"strconv"
	"strings"

	"github.com/chipmonitor/ingest/internal/event"
)

// Wire records carry device timestamps in microseconds.
const microsecondsPerSecond = 1e6

// asStringMap normalizes the two map shapes the decoders produce.
func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	}
	return nil, false
}

// toFloat coerces the numeric shapes the decoders produce, plus
// numeric-looking strings.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return ""
}

// MapRecord remaps one raw wire record's compact keys to canonical names:
// the static lookup table, nested gas flows flattened to gas_<name>, numeric
// coercion on the measurement fields and microsecond timestamp
// normalization.
func MapRecord(raw map[string]any) event.TelemetryRecord {
	var rec event.TelemetryRecord

	if v, ok := raw["eq"]; ok {
		rec.EquipmentID = toString(v)
	}
	if v, ok := raw["rt"]; ok {
		rec.Recipe = toString(v)
	}
	if v, ok := raw["st"]; ok {
		rec.Step = toString(v)
	}
	if v, ok := raw["lot"]; ok {
		rec.LotNumber = toString(v)
	}
	if v, ok := raw["wf"]; ok {
		rec.WaferID = toString(v)
	}
	if v, ok := raw["ch"]; ok {
		if f, ok := toFloat(v); ok {
			rec.Channel = f
		}
	}
	if v, ok := raw["p"]; ok {
		if f, ok := toFloat(v); ok {
			rec.Pressure = &f
		}
	}
	if v, ok := raw["t"]; ok {
		if f, ok := toFloat(v); ok {
			rec.Temperature = &f
		}
	}
	if v, ok := raw["rf"]; ok {
		if f, ok := toFloat(v); ok {
			rec.RFPower = &f
		}
	}
	if v, ok := raw["ep"]; ok {
		if f, ok := toFloat(v); ok {
			rec.Endpoint = &f
		}
	}

	if v, ok := raw["g"]; ok {
		if gases, ok := asStringMap(v); ok {
			rec.Gas = make(map[string]float64, len(gases))
			for name, flow := range gases {
				if f, ok := toFloat(flow); ok {
					rec.Gas[name] = f
				}
			}
		}
	}

	if v, ok := raw["ts"]; ok {
		if f, ok := toFloat(v); ok {
			rec.DeviceTimestamp = int64(f)
			rec.DeviceTimestampSec = f / microsecondsPerSecond
		}
	}

	return rec
}

// AnalyzeBatchSpan computes the time spread of a multi-record batch from
// per-record ts fields, normalizing microsecond timestamps to seconds. It
// returns nil when fewer than two records carry a usable timestamp.
func AnalyzeBatchSpan(records []any) *event.BatchSpan {
	var timestamps []float64
	for _, r := range records {
		m, ok := asStringMap(r)
		if !ok {
			continue
		}
		v, ok := m["ts"]
		if !ok {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		timestamps = append(timestamps, f/microsecondsPerSecond)
	}
	if len(timestamps) < 2 {
		return nil
	}

	start, end := timestamps[0], timestamps[0]
	for _, ts := range timestamps[1:] {
		if ts < start {
			start = ts
		}
		if ts > end {
			end = ts
		}
	}

	// density stays zero for an instantaneous batch; Inf would not survive
	// JSON encoding downstream
	span := end - start
	var density float64
	if span > 0 {
		density = float64(len(timestamps)) / span
	}
	return &event.BatchSpan{
		Span:    span,
		Density: density,
		Start:   start,
		End:     end,
	}
}
