package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
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
	KindOpenAI   = "openai"
	KindDeepSeek = "deepseek"

	contentTypeJSON = "application/json"
	userAgent       = "resume-analyzer"
	defaultTimeout  = 60 * time.Second
	maxErrorBody    = 4 << 10
)

var defaultBaseURLs = map[string]string{
	KindOpenAI:   "https://api.openai.com/v1",
	KindDeepSeek: "https://api.deepseek.com",
}

// Provider implements ai.Provider for OpenAI-compatible chat completion APIs.
type Provider struct {
	name           string
	kind           string
	apiKey         string
	client         *http.Client
	defaultModel   string
	models         []string
	embeddingModel string
	chatURL        string
	embedURL       string
	modelsURL      string
	logger         *zap.Logger
}

// NewOpenAI is the registry factory for the openai kind.
func NewOpenAI(ctx context.Context, name string, cfg *config.ProviderConfig, log *zap.Logger) (ai.Provider, error) {
	return newProvider(KindOpenAI, name, cfg, nil, log)
}

// NewDeepSeek is the registry factory for the deepseek kind.
func NewDeepSeek(ctx context.Context, name string, cfg *config.ProviderConfig, log *zap.Logger) (ai.Provider, error) {
	return newProvider(KindDeepSeek, name, cfg, nil, log)
}

func newProvider(kind, name string, cfg *config.ProviderConfig, client *http.Client, log *zap.Logger) (*Provider, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  kind + " api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   cfg.APIKeyEnv,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURLs[kind]
	}

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
		name:           name,
		kind:           kind,
		apiKey:         apiKey,
		client:         client,
		defaultModel:   defaultModel,
		models:         names,
		embeddingModel: strings.TrimSpace(cfg.EmbeddingModel),
		chatURL:        baseURL + "/chat/completions",
		embedURL:       baseURL + "/embeddings",
		modelsURL:      baseURL + "/models",
		logger:         logger.WithFields(log, zap.String(logger.FieldProvider, name)),
	}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Kind() string { return p.kind }

func (p *Provider) Models() []string {
	return append([]string(nil), p.models...)
}

func (p *Provider) Available() bool {
	return p != nil && p.apiKey != "" && p.client != nil
}

func (p *Provider) Chat(ctx context.Context, req ai.Request) (*ai.Response, error) {
	payload := p.buildChatPayload(req, false)

	start := time.Now()
	httpResp, err := p.post(ctx, p.chatURL, payload)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var decoded chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
		return nil, ai.TransportError(p.name, fmt.Errorf("decode chat response: %w", err))
	}
	if len(decoded.Choices) == 0 {
		return nil, &ai.ProviderError{Provider: p.name, Kind: ai.ErrBackendUnavailable, Err: errors.New("response contained no choices")}
	}

	latency := time.Since(start)
	p.logger.Debug("chat completion response",
		zap.String(logger.FieldModel, decoded.Model),
		zap.Int("tokens", decoded.Usage.TotalTokens),
		zap.Duration("latency", latency),
	)

	model := decoded.Model
	if model == "" {
		model = payload.Model
	}

	return &ai.Response{
		Text:       decoded.Choices[0].Message.Content,
		Model:      model,
		TokensUsed: decoded.Usage.TotalTokens,
		Latency:    latency,
		Raw:        decoded,
	}, nil
}

func (p *Provider) ChatStream(ctx context.Context, req ai.Request) (ai.Stream, error) {
	httpResp, err := p.post(ctx, p.chatURL, p.buildChatPayload(req, true))
	if err != nil {
		return nil, err
	}
	return sse.New(httpResp.Body, p.name, decodeChunk), nil
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.embeddingModel == "" {
		return nil, ai.Unsupported(p.name, "embeddings")
	}

	httpResp, err := p.post(ctx, p.embedURL, embeddingRequest{Model: p.embeddingModel, Input: text})
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var decoded embeddingResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
		return nil, ai.TransportError(p.name, fmt.Errorf("decode embedding response: %w", err))
	}
	if len(decoded.Data) == 0 {
		return nil, &ai.ProviderError{Provider: p.name, Kind: ai.ErrBackendUnavailable, Err: errors.New("response contained no embeddings")}
	}
	return decoded.Data[0].Embedding, nil
}

// HealthCheck lists models, which authenticates without spending tokens.
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

func (p *Provider) buildChatPayload(req ai.Request, stream bool) chatRequest {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]chatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	temperature := req.Temperature
	payload := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: &temperature,
		Stream:      stream,
		Extra:       req.Options,
	}
	if req.MaxTokens > 0 {
		payload.MaxTokens = req.MaxTokens
	}
	return payload
}

func (p *Provider) post(ctx context.Context, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	p.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", contentTypeJSON)

	return p.do(httpReq)
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
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
		return nil, parseAPIError(p.name, resp)
	}
	return resp, nil
}

func parseAPIError(provider string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	retryAfter, _ := ai.ParseRetryAfter(resp.Header.Get("Retry-After"))

	message := strings.TrimSpace(string(data))
	var apiErr apiErrorResponse
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}
	return ai.StatusError(provider, resp.StatusCode, retryAfter, message)
}

// decodeChunk maps one chat.completion.chunk payload onto stream events.
// DeepSeek reasoner models report their thinking in delta.reasoning_content.
func decodeChunk(data []byte) ([]ai.StreamEvent, error) {
	var chunk chatChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("decode stream chunk: %w", err)
	}
	var events []ai.StreamEvent
	for _, choice := range chunk.Choices {
		if choice.Delta.ReasoningContent != "" {
			events = append(events, ai.StreamEvent{Kind: ai.EventReasoning, Text: choice.Delta.ReasoningContent})
		}
		if choice.Delta.Content != "" {
			events = append(events, ai.StreamEvent{Kind: ai.EventAnswer, Text: choice.Delta.Content})
		}
	}
	return events, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	// Extra carries backend-specific body keys such as seed or top_p.
	Extra map[string]any `json:"-"`
}

func (r chatRequest) MarshalJSON() ([]byte, error) {
	type plain chatRequest
	return ai.EncodeWithExtra(plain(r), r.Extra)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
