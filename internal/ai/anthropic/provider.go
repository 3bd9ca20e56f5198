package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/spigell/resume-analyzer/internal/ai"
	"github.com/spigell/resume-analyzer/internal/ai/sse"
	"github.com/spigell/resume-analyzer/internal/config"
	"github.com/spigell/resume-analyzer/internal/logger"
	"github.com/spigell/resume-analyzer/internal/secrets"
	"go.uber.org/zap"
)

const (
	Kind = "anthropic"

	apiVersion       = "2023-06-01"
	defaultBaseURL   = "https://api.anthropic.com"
	defaultMaxTokens = 4096
	defaultTimeout   = 60 * time.Second
	maxErrorBody     = 4 << 10
)

// Provider implements ai.Provider over the Anthropic messages API.
type Provider struct {
	name         string
	apiKey       string
	client       *http.Client
	defaultModel string
	models       []string
	messagesURL  string
	modelsURL    string
	logger       *zap.Logger
}

// New is the registry factory for the anthropic kind.
func New(ctx context.Context, name string, cfg *config.ProviderConfig, log *zap.Logger) (ai.Provider, error) {
	return newProvider(name, cfg, nil, log)
}

func newProvider(name string, cfg *config.ProviderConfig, client *http.Client, log *zap.Logger) (*Provider, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "anthropic api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   cfg.APIKeyEnv,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	names := make([]string, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		names = append(names, m.Name)
	}
	defaultModel := strings.TrimSpace(cfg.DefaultModel)
	if defaultModel == "" && len(names) > 0 {
		defaultModel = names[0]
	}
	if defaultModel == "" {
		return nil, fmt.Errorf("%w: provider %q has no default model", config.ErrConfiguration, name)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Provider{
		name:         name,
		apiKey:       apiKey,
		client:       client,
		defaultModel: defaultModel,
		models:       names,
		messagesURL:  baseURL + "/v1/messages",
		modelsURL:    baseURL + "/v1/models",
		logger:       logger.WithFields(log, zap.String(logger.FieldProvider, name)),
	}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Kind() string { return Kind }

func (p *Provider) Models() []string {
	return append([]string(nil), p.models...)
}

func (p *Provider) Available() bool {
	return p != nil && p.apiKey != "" && p.client != nil
}

func (p *Provider) Chat(ctx context.Context, req ai.Request) (*ai.Response, error) {
	payload := p.buildPayload(req, false)

	start := time.Now()
	httpResp, err := p.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var decoded messagesResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
		return nil, ai.TransportError(p.name, fmt.Errorf("decode messages response: %w", err))
	}

	var text strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &ai.ProviderError{Provider: p.name, Kind: ai.ErrBackendUnavailable, Err: errors.New("response contained no text")}
	}

	latency := time.Since(start)
	tokens := decoded.Usage.InputTokens + decoded.Usage.OutputTokens
	p.logger.Debug("messages response",
		zap.String(logger.FieldModel, decoded.Model),
		zap.Int("tokens", tokens),
		zap.Duration("latency", latency),
	)

	model := decoded.Model
	if model == "" {
		model = payload.Model
	}

	return &ai.Response{
		Text:       text.String(),
		Model:      model,
		TokensUsed: tokens,
		Latency:    latency,
		Raw:        decoded,
	}, nil
}

func (p *Provider) ChatStream(ctx context.Context, req ai.Request) (ai.Stream, error) {
	httpResp, err := p.post(ctx, p.buildPayload(req, true))
	if err != nil {
		return nil, err
	}
	return sse.New(httpResp.Body, p.name, decodeEvent), nil
}

func (p *Provider) Embed(context.Context, string) ([]float32, error) {
	return nil, ai.Unsupported(p.name, "embeddings")
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.modelsURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	p.setHeaders(httpReq)

	httpResp, err := p.do(httpReq)
	if err != nil {
		return err
	}
	httpResp.Body.Close()
	return nil
}

// buildPayload moves the system message into the top-level system field.
func (p *Provider) buildPayload(req ai.Request, stream bool) messagesRequest {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	conversation := req.Conversation()
	messages := make([]message, 0, len(conversation))
	for _, m := range conversation {
		messages = append(messages, message{Role: string(m.Role), Content: m.Content})
	}

	extra := maps.Clone(req.Options)
	temperature := req.Temperature
	payload := messagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      req.System(),
		Messages:    messages,
		Temperature: &temperature,
		Stream:      stream,
	}

	if budget, ok := ai.IntOption(extra[ai.ThinkingBudgetOption]); ok && budget > 0 {
		// Thinking only runs at temperature 1 and the budget counts against max_tokens.
		one := 1.0
		payload.Temperature = &one
		payload.Thinking = &thinkingConfig{Type: "enabled", BudgetTokens: budget}
		if payload.MaxTokens <= budget {
			payload.MaxTokens = budget + maxTokens
		}
	}
	delete(extra, ai.ThinkingBudgetOption)
	payload.Extra = extra
	return payload
}

func (p *Provider) post(ctx context.Context, payload messagesRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.messagesURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	p.setHeaders(httpReq)
	httpReq.Header.Set("content-type", "application/json")

	return p.do(httpReq)
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
}

func (p *Provider) do(req *http.Request) (*http.Response, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, ai.TransportError(p.name, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		retryAfter, _ := ai.ParseRetryAfter(resp.Header.Get("retry-after"))

		message := strings.TrimSpace(string(data))
		var apiErr errorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		return nil, ai.StatusError(p.name, resp.StatusCode, retryAfter, message)
	}
	return resp, nil
}

// decodeEvent handles content_block_delta events. Thinking deltas become
// reasoning, text deltas become answer. Stream-level errors abort the stream.
func decodeEvent(data []byte) ([]ai.StreamEvent, error) {
	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode stream event: %w", err)
	}

	switch ev.Type {
	case "content_block_delta":
		switch ev.Delta.Type {
		case "thinking_delta":
			if ev.Delta.Thinking != "" {
				return []ai.StreamEvent{{Kind: ai.EventReasoning, Text: ev.Delta.Thinking}}, nil
			}
		case "text_delta":
			if ev.Delta.Text != "" {
				return []ai.StreamEvent{{Kind: ai.EventAnswer, Text: ev.Delta.Text}}, nil
			}
		}
	case "error":
		return nil, fmt.Errorf("%s: %s", ev.Error.Type, ev.Error.Message)
	}
	return nil, nil
}

type messagesRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Messages    []message       `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	Thinking    *thinkingConfig `json:"thinking,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Extra       map[string]any  `json:"-"`
}

func (r messagesRequest) MarshalJSON() ([]byte, error) {
	type plain messagesRequest
	return ai.EncodeWithExtra(plain(r), r.Extra)
}

type thinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
