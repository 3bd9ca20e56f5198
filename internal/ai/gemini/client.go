package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/spigell/resume-analyzer/internal/ai"
	"github.com/spigell/resume-analyzer/internal/config"
	"github.com/spigell/resume-analyzer/internal/logger"
	"github.com/spigell/resume-analyzer/internal/secrets"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	Kind = "gemini"

	defaultModel          = "gemini-2.5-pro"
	defaultEmbeddingModel = "text-embedding-004"
)

// modelsAPI is the subset of *genai.Models used by the provider.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
	Get(ctx context.Context, model string, config *genai.GetModelConfig) (*genai.Model, error)
}

// Generator wraps the Google GenAI client behind the ai.Provider contract.
type Generator struct {
	name           string
	models         modelsAPI
	modelName      string
	modelNames     []string
	embeddingModel string
	logger         *zap.Logger
}

// New is the registry factory for the gemini kind.
func New(ctx context.Context, name string, cfg *config.ProviderConfig, log *zap.Logger) (ai.Provider, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   cfg.APIKeyEnv,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(name, client.Models, cfg, log), nil
}

func newGenerator(name string, models modelsAPI, cfg *config.ProviderConfig, log *zap.Logger) *Generator {
	model := strings.TrimSpace(cfg.DefaultModel)
	if model == "" {
		model = defaultModel
	}
	embedding := strings.TrimSpace(cfg.EmbeddingModel)
	if embedding == "" {
		embedding = defaultEmbeddingModel
	}

	names := make([]string, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		names = append(names, m.Name)
	}
	if len(names) == 0 {
		names = append(names, model)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Generator{
		name:           name,
		models:         models,
		modelName:      model,
		modelNames:     names,
		embeddingModel: embedding,
		logger:         logger.WithFields(log, zap.String(logger.FieldProvider, name)),
	}
}

func (g *Generator) Name() string { return g.name }

func (g *Generator) Kind() string { return Kind }

func (g *Generator) Models() []string {
	return append([]string(nil), g.modelNames...)
}

func (g *Generator) Available() bool {
	return g != nil && g.models != nil
}

// Model returns the default model name.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}

func (g *Generator) Chat(ctx context.Context, req ai.Request) (*ai.Response, error) {
	if !g.Available() {
		return nil, errors.New("gemini generator is not initialized")
	}

	model := g.resolveModel(req.Model)
	contents, cfg := buildContents(req)

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, g.wrapError(err)
	}

	answer, _ := splitParts(resp)
	output := strings.TrimSpace(answer)
	if output == "" {
		return nil, &ai.ProviderError{Provider: g.name, Kind: ai.ErrBackendUnavailable, Err: errors.New("gemini api returned empty response")}
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	g.logger.Debug("gemini generate content response",
		zap.String(logger.FieldModel, model),
		zap.Int("tokens", tokens),
		zap.Duration("latency", time.Since(start)),
	)

	return &ai.Response{
		Text:       output,
		Model:      model,
		TokensUsed: tokens,
		Latency:    time.Since(start),
		Raw:        resp,
	}, nil
}

func (g *Generator) ChatStream(ctx context.Context, req ai.Request) (ai.Stream, error) {
	if !g.Available() {
		return nil, errors.New("gemini generator is not initialized")
	}

	contents, cfg := buildContents(req)
	if cfg.ThinkingConfig == nil {
		cfg.ThinkingConfig = &genai.ThinkingConfig{}
	}
	cfg.ThinkingConfig.IncludeThoughts = true

	next, stop := iter.Pull2(g.models.GenerateContentStream(ctx, g.resolveModel(req.Model), contents, cfg))
	return &stream{next: next, stop: stop, wrap: g.wrapError}, nil
}

func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	if !g.Available() {
		return nil, errors.New("gemini generator is not initialized")
	}

	resp, err := g.models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), nil)
	if err != nil {
		return nil, g.wrapError(err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, &ai.ProviderError{Provider: g.name, Kind: ai.ErrBackendUnavailable, Err: errors.New("gemini api returned no embeddings")}
	}
	return resp.Embeddings[0].Values, nil
}

// HealthCheck looks up the default model, which needs a valid key but spends no tokens.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if !g.Available() {
		return errors.New("gemini generator is not initialized")
	}
	if _, err := g.models.Get(ctx, g.modelName, nil); err != nil {
		return g.wrapError(err)
	}
	return nil
}

func (g *Generator) resolveModel(model string) string {
	if model = strings.TrimSpace(model); model != "" {
		return model
	}
	return g.modelName
}

func (g *Generator) wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return ai.StatusError(g.name, apiErr.Code, 0, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return ai.StatusError(g.name, apiErrPtr.Code, 0, apiErrPtr.Message)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return ai.TransportError(g.name, err)
}

func buildContents(req ai.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	applyOptions(cfg, req.Options)
	if system := strings.TrimSpace(req.System()); system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	var contents []*genai.Content
	for _, msg := range req.Conversation() {
		role := genai.RoleUser
		if msg.Role == ai.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	return contents, cfg
}

// applyOptions maps the option keys the SDK has typed fields for. Other keys
// have no place in GenerateContentConfig and are ignored.
func applyOptions(cfg *genai.GenerateContentConfig, opts map[string]any) {
	if v, ok := ai.FloatOption(opts[ai.TopPOption]); ok {
		cfg.TopP = genai.Ptr(float32(v))
	}
	if v, ok := ai.FloatOption(opts[ai.TopKOption]); ok {
		cfg.TopK = genai.Ptr(float32(v))
	}
	if v, ok := ai.IntOption(opts[ai.SeedOption]); ok {
		cfg.Seed = genai.Ptr(int32(v))
	}
	if v, ok := ai.IntOption(opts[ai.ThinkingBudgetOption]); ok {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(v))}
	}
}

// splitParts separates thought parts from answer parts of the first candidate.
func splitParts(resp *genai.GenerateContentResponse) (answer, reasoning string) {
	if resp == nil {
		return "", ""
	}
	var a, r strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			if part.Thought {
				r.WriteString(part.Text)
			} else {
				a.WriteString(part.Text)
			}
		}
		break
	}
	return a.String(), r.String()
}

type stream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	wrap    func(error) error
	pending []ai.StreamEvent
	done    bool
}

func (s *stream) Recv() (ai.StreamEvent, error) {
	for len(s.pending) == 0 {
		if s.done {
			return ai.StreamEvent{}, io.EOF
		}
		resp, err, ok := s.next()
		if !ok {
			s.done = true
			continue
		}
		if err != nil {
			s.done = true
			return ai.StreamEvent{}, s.wrap(err)
		}
		s.pending = eventsFrom(resp)
	}

	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func (s *stream) Close() error {
	s.done = true
	s.stop()
	return nil
}

func eventsFrom(resp *genai.GenerateContentResponse) []ai.StreamEvent {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return nil
	}
	var events []ai.StreamEvent
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Text == "" {
			continue
		}
		kind := ai.EventAnswer
		if part.Thought {
			kind = ai.EventReasoning
		}
		events = append(events, ai.StreamEvent{Kind: kind, Text: part.Text})
	}
	return events
}
