package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// AnalysisResult is built fresh for every call and never mutated afterwards.
type AnalysisResult struct {
	Report     string         `json:"report"`
	Score      *int           `json:"score"`
	Model      string         `json:"model"`
	TokensUsed int            `json:"tokens_used"`
	Latency    time.Duration  `json:"-"`
	Cached     bool           `json:"cached"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// MarshalJSON reports latency as fractional milliseconds.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	type plain AnalysisResult
	return json.Marshal(struct {
		plain
		LatencyMS float64 `json:"latency_ms"`
	}{plain: plain(r), LatencyMS: float64(r.Latency) / float64(time.Millisecond)})
}

// cachedReport is the persisted form of a report-producing task.
type cachedReport struct {
	Report     string `json:"report"`
	Score      *int   `json:"score"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used"`
	Streamed   bool   `json:"streamed,omitempty"`
}

// Options tune a single engine call.
type Options struct {
	UseCache bool
	// Model overrides the provider default model.
	Model string
	// Temperature overrides the configured or task temperature.
	Temperature *float64
	// Extra is forwarded to the backend as additional request fields.
	Extra map[string]any
}

type AnalyzeRequest struct {
	Resume  string
	JD      string
	Persona string
	Options
}

type Candidate struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type Job struct {
	Role string `json:"role"`
}

type MessageOptions struct {
	Style       string `json:"style"`
	Time        string `json:"time"`
	Interviewer string `json:"interviewer"`
	Tips        string `json:"tips"`
}

// MessageRequest describes a reject or invite email.
type MessageRequest struct {
	Kind      string
	Candidate Candidate
	Job       Job
	Options   MessageOptions
}

type ProviderInfo struct {
	Name         string   `json:"provider"`
	Kind         string   `json:"kind"`
	DefaultModel string   `json:"default_model"`
	Models       []string `json:"models"`
	Available    bool     `json:"available"`
}

type ProviderHealth struct {
	Name    string `json:"provider"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type StorageHealth struct {
	Enabled bool   `json:"enabled"`
	Backend string `json:"backend,omitempty"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type HealthStatus struct {
	Provider ProviderHealth `json:"llm_provider"`
	Storage  StorageHealth  `json:"storage"`
}

// AnalysisError wraps an unrecovered provider failure with the task name.
type AnalysisError struct {
	Task string
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s: %v", e.Task, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }
