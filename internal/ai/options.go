package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Option keys understood by more than one adapter. Other keys are passed
// through as request body fields where the backend accepts free-form JSON.
const (
	ThinkingBudgetOption = "thinking_budget"
	TopPOption           = "top_p"
	TopKOption           = "top_k"
	SeedOption           = "seed"
)

// EncodeWithExtra encodes payload as a JSON object and adds the extra keys it
// does not already set. Fields built by the adapter always win.
func EncodeWithExtra(payload any, extra map[string]any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil || len(extra) == 0 {
		return body, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("payload is not an object: %w", err)
	}
	for k, v := range extra {
		if _, ok := fields[k]; ok {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode option %q: %w", k, err)
		}
		fields[k] = raw
	}
	return json.Marshal(fields)
}

// FloatOption reads a numeric option that may arrive from YAML, JSON or a flag.
func FloatOption(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// IntOption reads an integer option that may arrive from YAML, JSON or a flag.
func IntOption(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), val == float64(int(val))
	case json.Number:
		n, err := val.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		return n, err == nil
	default:
		return 0, false
	}
}
