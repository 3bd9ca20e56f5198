package engine

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAnalysisResultLatencyInMilliseconds(t *testing.T) {
	t.Parallel()

	score := 80
	result := &AnalysisResult{Report: "ok", Score: &score, Model: "m", Latency: 1500 * time.Millisecond}

	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if got := decoded["latency_ms"]; got != 1500.0 {
		t.Fatalf("latency_ms = %v, want 1500", got)
	}
	if decoded["report"] != "ok" || decoded["score"] != 80.0 || decoded["model"] != "m" {
		t.Fatalf("other fields lost: %s", raw)
	}
	if _, ok := decoded["Latency"]; ok {
		t.Fatalf("raw duration should not be serialized: %s", raw)
	}
}
