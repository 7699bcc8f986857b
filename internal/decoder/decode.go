package decoder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chipmonitor/ingest/internal/event"
)

// Format names reported on decoded events.
const (
	FormatMessagePack = "MessagePack"
	FormatJSON        = "JSON"
	FormatText        = "Text"
	FormatBinary      = "Binary"
)

// decodePayload turns raw bytes into a generic value using the hinted
// format, or by auto-detection: msgpack first, then JSON. A hinted format
// that fails to parse is an error; auto-detection falls through.
func decodePayload(payload []byte, hint string) (any, string, error) {
	switch hint {
	case "msgpack":
		v, err := decodeMsgpack(payload)
		if err != nil {
			return nil, "", fmt.Errorf("%w: msgpack: %v", event.ErrDecode, err)
		}
		return v, FormatMessagePack, nil
	case "json":
		v, err := decodeJSON(payload)
		if err != nil {
			return nil, "", fmt.Errorf("%w: json: %v", event.ErrDecode, err)
		}
		return v, FormatJSON, nil
	}

	if v, err := decodeMsgpack(payload); err == nil {
		return v, FormatMessagePack, nil
	}
	if v, err := decodeJSON(payload); err == nil {
		return v, FormatJSON, nil
	}
	if utf8.Valid(payload) {
		text := string(payload)
		return map[string]any{"text": text, "length": len(text)}, FormatText, nil
	}
	return nil, "", fmt.Errorf("%w: payload is not msgpack, json or utf-8 text", event.ErrDecode)
}

// decodeMsgpack rejects trailing bytes: without this, auto-detection would
// read a JSON array as one short msgpack string and misclassify the format.
func decodeMsgpack(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	dec := msgpack.NewDecoder(r)
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("trailing bytes after msgpack value")
	}
	return v, nil
}

func decodeJSON(payload []byte) (any, error) {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeLoose is the gateway/system variant: hinted formats as above, and
// anything else wraps the raw text instead of failing. Invalid UTF-8 is
// reported as binary with a short preview.
func decodeLoose(payload []byte, hint string) (map[string]any, string) {
	switch hint {
	case "msgpack":
		if v, err := decodeMsgpack(payload); err == nil {
			return map[string]any{"parsed_data": v}, FormatMessagePack
		}
	case "json":
		if v, err := decodeJSON(payload); err == nil {
			return map[string]any{"parsed_data": v}, FormatJSON
		}
	}

	if utf8.Valid(payload) {
		text := string(payload)
		return map[string]any{"text": text, "length": len(text)}, FormatText
	}
	preview := payload
	if len(preview) > 50 {
		preview = preview[:50]
	}
	return map[string]any{"size": len(payload), "preview": fmt.Sprintf("%x", preview)}, FormatBinary
}
