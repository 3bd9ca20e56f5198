package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spigell/resume-analyzer/internal/ai"
	"github.com/spigell/resume-analyzer/internal/cache"
	"github.com/spigell/resume-analyzer/internal/config"
	"github.com/spigell/resume-analyzer/internal/logger"
	"github.com/spigell/resume-analyzer/internal/prompt"
	"github.com/spigell/resume-analyzer/internal/utils"
	"go.uber.org/zap"
)

// Engine ties prompt construction, caching, retried invocation and response
// interpretation together. It is safe for concurrent use.
type Engine struct {
	cfg      *config.Config
	registry *ai.Registry
	store    cache.Store
	personas *prompt.Personas
	logger   *zap.Logger

	// current is replaced atomically on provider switch. Calls capture the
	// binding once and finish against it.
	current atomic.Pointer[binding]

	newID func() string
}

// binding is an immutable provider together with its settings.
type binding struct {
	name     string
	cfg      *config.ProviderConfig
	provider ai.Provider
	retry    ai.RetryPolicy
}

// New builds the engine and binds the provider named by provider, or the
// configured default when empty. store may be nil to disable caching.
func New(ctx context.Context, cfg *config.Config, registry *ai.Registry, store cache.Store, provider string, log *zap.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: configuration is required", config.ErrConfiguration)
	}
	if registry == nil {
		return nil, errors.New("provider registry is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		cfg:      cfg,
		registry: registry,
		store:    store,
		personas: prompt.NewPersonas(cfg.Analysis.Personas, cfg.Analysis.DefaultPersona),
		logger:   log,
		newID:    func() string { return uuid.NewString() },
	}

	b, err := e.bind(ctx, provider)
	if err != nil {
		return nil, err
	}
	e.current.Store(b)

	log.Info("engine initialized",
		zap.String(logger.FieldProvider, b.name),
		zap.String(logger.FieldModel, b.cfg.DefaultModel),
		zap.Bool("cache_enabled", store != nil),
	)
	return e, nil
}

// SwitchProvider replaces the current provider. Calls already in flight keep
// the previous provider. On failure the current provider is left unchanged.
func (e *Engine) SwitchProvider(ctx context.Context, name string) error {
	b, err := e.bind(ctx, name)
	if err != nil {
		return err
	}
	prev := e.current.Swap(b)
	e.logger.Info("switched llm provider",
		zap.String("from", prev.name),
		zap.String("to", b.name),
	)
	return nil
}

func (e *Engine) bind(ctx context.Context, name string) (*binding, error) {
	resolved, pcfg, err := e.cfg.ResolveProvider(name)
	if err != nil {
		return nil, err
	}

	provider, err := e.registry.New(ctx, resolved, pcfg, e.logger)
	if err != nil {
		return nil, fmt.Errorf("setup provider %q: %w", resolved, err)
	}

	return &binding{
		name:     resolved,
		cfg:      pcfg,
		provider: provider,
		retry: ai.RetryPolicy{
			MaxRetries:      pcfg.MaxRetries,
			BaseDelay:       pcfg.RetryBaseDelay,
			HonorRetryAfter: pcfg.HonorRetryAfter,
			Logger:          logger.WithFields(e.logger, zap.String(logger.FieldProvider, resolved)),
		},
	}, nil
}

// Personas exposes the configured personas.
func (e *Engine) Personas() []prompt.Persona {
	return e.personas.List()
}

func (e *Engine) ProviderInfo() ProviderInfo {
	b := e.current.Load()
	return ProviderInfo{
		Name:         b.name,
		Kind:         b.provider.Kind(),
		DefaultModel: b.cfg.DefaultModel,
		Models:       b.provider.Models(),
		Available:    b.provider.Available(),
	}
}

// Embed passes text through to the current provider's embedding endpoint.
func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	b := e.current.Load()
	vec, err := b.provider.Embed(ctx, text)
	if err != nil {
		return nil, &AnalysisError{Task: "embedding", Err: err}
	}
	return vec, nil
}

// ClearCache drops every cached entry.
func (e *Engine) ClearCache(ctx context.Context) error {
	if e.store == nil {
		return errors.New("cache is disabled")
	}
	return e.store.Clear(ctx)
}

// DeleteCacheEntry removes one cached entry by key.
func (e *Engine) DeleteCacheEntry(ctx context.Context, key string) (bool, error) {
	if e.store == nil {
		return false, errors.New("cache is disabled")
	}
	return e.store.Delete(ctx, key)
}

// operation carries per-call state: the captured provider and a correlated logger.
type operation struct {
	task   prompt.Task
	id     string
	b      *binding
	logger *zap.Logger
	start  time.Time
}

func (e *Engine) begin(task prompt.Task) *operation {
	b := e.current.Load()
	id := e.newID()
	log := logger.WithOperation(e.logger, task.String(), id)
	log = logger.WithFields(log, logger.CommonFields(b.name, "")...)
	return &operation{task: task, id: id, b: b, logger: log, start: time.Now()}
}

// resolve fills the model, temperature, token budget and backend options of
// req. An explicit temperature wins, then the task's pinned value, then the
// model setting. Call options override model options key by key.
func (b *binding) resolve(req *ai.Request, opts Options, pinned *float64) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = b.cfg.DefaultModel
	}
	if model == "" {
		if models := b.provider.Models(); len(models) > 0 {
			model = models[0]
		}
	}

	temperature := config.DefaultTemperature
	maxTokens := config.DefaultMaxTokens
	var extra map[string]any
	if m, ok := b.cfg.Model(model); ok {
		if m.Temperature != nil {
			temperature = *m.Temperature
		}
		if m.MaxTokens > 0 {
			maxTokens = m.MaxTokens
		}
		extra = maps.Clone(m.Options)
	}
	if len(opts.Extra) > 0 {
		if extra == nil {
			extra = make(map[string]any, len(opts.Extra))
		}
		maps.Copy(extra, opts.Extra)
	}

	switch {
	case opts.Temperature != nil:
		temperature = *opts.Temperature
	case pinned != nil:
		temperature = *pinned
	}

	req.Model = model
	req.Temperature = temperature
	req.MaxTokens = maxTokens
	req.Options = extra
}

func buildMessages(system, user string) []ai.Message {
	messages := make([]ai.Message, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: system})
	}
	return append(messages, ai.Message{Role: ai.RoleUser, Content: user})
}

func (e *Engine) request(op *operation, system, user string, opts Options, pinned *float64) ai.Request {
	req := ai.Request{Messages: buildMessages(system, user)}
	op.b.resolve(&req, opts, pinned)
	return req
}

// call sends one synchronous request through the retry policy.
func (e *Engine) call(ctx context.Context, op *operation, system, user string, opts Options, pinned *float64) (*ai.Response, error) {
	req := e.request(op, system, user, opts, pinned)

	op.logger.Debug("llm request",
		zap.String(logger.FieldModel, req.Model),
		zap.Float64("temperature", req.Temperature),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Int("prompt_length", utf8.RuneCountInString(user)),
		zap.String("prompt_preview", utils.TruncateForLog(user, e.cfg.MaxLogLength)),
	)

	resp, err := op.b.retry.Chat(ctx, op.b.provider, req)
	if err != nil {
		op.logger.Error("llm call failed", zap.String(logger.FieldModel, req.Model), zap.Error(err))
		return nil, &AnalysisError{Task: op.task.String(), Err: err}
	}

	op.logger.Debug("llm response",
		zap.String(logger.FieldModel, resp.Model),
		zap.Int("tokens", resp.TokensUsed),
		zap.Duration("latency", resp.Latency),
		zap.Int("response_length", utf8.RuneCountInString(resp.Text)),
		zap.String("response_preview", utils.TruncateForLog(resp.Text, e.cfg.MaxLogLength)),
	)
	return resp, nil
}

// loadCached decodes a cached value into dst. Any failure is a miss.
func (e *Engine) loadCached(ctx context.Context, op *operation, useCache bool, key string, dst any) bool {
	if !useCache || e.store == nil {
		return false
	}

	data, ok, err := e.store.Load(ctx, key)
	if err != nil {
		op.logger.Warn("cache load failed, treating as miss", zap.String(logger.FieldCacheKey, key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		op.logger.Warn("cache entry is corrupt, treating as miss", zap.String(logger.FieldCacheKey, key), zap.Error(err))
		return false
	}

	op.logger.Debug("cache hit", zap.String(logger.FieldCacheKey, key))
	return true
}

// saveCached writes through to the store. Failures are logged and ignored.
func (e *Engine) saveCached(ctx context.Context, op *operation, useCache bool, key string, value any) {
	if !useCache || e.store == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		op.logger.Warn("cache entry encode failed", zap.String(logger.FieldCacheKey, key), zap.Error(err))
		return
	}
	if err := e.store.Save(ctx, key, data, e.cfg.Storage.CacheTTL); err != nil {
		op.logger.Warn("cache save failed, result returned uncached", zap.String(logger.FieldCacheKey, key), zap.Error(err))
		return
	}
	op.logger.Debug("cache stored", zap.String(logger.FieldCacheKey, key))
}

func (e *Engine) language() string {
	return e.cfg.Analysis.Language
}

func temperature(v float64) *float64 { return &v }
