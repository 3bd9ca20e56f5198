package response

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	FieldRawContent = "raw_content"
	FieldError      = "error"

	ParseFailure = "Failed to parse JSON"
)

// ParseJSONPayload strips a surrounding fenced code block (with or without a
// language tag) and decodes a JSON object. On failure it returns a sentinel
// mapping carrying the raw text and an error flag instead of an error.
func ParseJSONPayload(text string) map[string]any {
	cleaned := ExtractJSON(text)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil || data == nil {
		return map[string]any{
			FieldRawContent: cleaned,
			FieldError:      ParseFailure,
		}
	}
	return data
}

// ParseFailed reports whether payload is the ParseJSONPayload sentinel.
func ParseFailed(payload map[string]any) bool {
	msg, ok := payload[FieldError].(string)
	_, raw := payload[FieldRawContent]
	return ok && raw && msg == ParseFailure
}

// ExtractJSON removes one leading fence line (```json, ```JSON, ``` ...) and
// one trailing fence.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if idx := strings.IndexByte(raw, '\n'); idx != -1 {
			raw = raw[idx+1:]
		} else {
			raw = strings.TrimPrefix(raw, "```")
		}
		raw = strings.TrimSpace(raw)
		if strings.HasSuffix(raw, "```") {
			raw = strings.TrimSuffix(raw, "```")
		}
	}
	return strings.TrimSpace(raw)
}

// CoerceFloat returns NaN for values that are not numeric.
func CoerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func CoerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
