package ai

import (
	"context"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is built once by the caller and never mutated after dispatch.
// Model and Temperature are always resolved before a provider sees it.
type Request struct {
	Messages    []Message
	Model       string
	Temperature float64
	MaxTokens   int
	Options     map[string]any
}

// System returns the content of the first system message, if any.
func (r Request) System() string {
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			return m.Content
		}
	}
	return ""
}

// Conversation returns all non-system messages in order.
func (r Request) Conversation() []Message {
	out := make([]Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

type Response struct {
	Text       string
	Model      string
	TokensUsed int
	Latency    time.Duration
	Raw        any
}

type EventKind int

const (
	EventAnswer EventKind = iota
	EventReasoning
)

func (k EventKind) String() string {
	if k == EventReasoning {
		return "reasoning"
	}
	return "answer"
}

type StreamEvent struct {
	Kind EventKind
	Text string
}

// Stream is a single-pass sequence of events. Recv returns io.EOF once the
// stream is exhausted.
type Stream interface {
	Recv() (StreamEvent, error)
	Close() error
}

// Provider wraps one LLM backend. Implementations are immutable once
// constructed and safe for concurrent use.
type Provider interface {
	Name() string
	Kind() string
	Models() []string
	Chat(ctx context.Context, req Request) (*Response, error)
	ChatStream(ctx context.Context, req Request) (Stream, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	HealthCheck(ctx context.Context) error
	Available() bool
}
