package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/spigell/resume-analyzer/internal/ai"
	"github.com/spigell/resume-analyzer/internal/cache"
	"github.com/spigell/resume-analyzer/internal/config"
	"go.uber.org/zap"
)

const fakeKind = "fake"

type fakeProvider struct {
	name string

	mu       sync.Mutex
	calls    int
	requests []ai.Request

	chat   func(ctx context.Context, req ai.Request) (*ai.Response, error)
	events []ai.StreamEvent
	// streamErr is returned after events are exhausted.
	streamErr error
	healthErr error
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Kind() string     { return fakeKind }
func (f *fakeProvider) Models() []string { return []string{"fake-model"} }
func (f *fakeProvider) Available() bool  { return true }

func (f *fakeProvider) Chat(ctx context.Context, req ai.Request) (*ai.Response, error) {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, req)
	chat := f.chat
	f.mu.Unlock()

	if chat != nil {
		return chat(ctx, req)
	}
	return &ai.Response{Text: "Score: 80\nsolid match", Model: req.Model, TokensUsed: 42, Latency: time.Millisecond}, nil
}

func (f *fakeProvider) ChatStream(_ context.Context, req ai.Request) (ai.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, req)
	return &sliceStream{events: f.events, err: f.streamErr}, nil
}

func (f *fakeProvider) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (f *fakeProvider) HealthCheck(context.Context) error { return f.healthErr }

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) lastRequest() ai.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type sliceStream struct {
	events []ai.StreamEvent
	err    error
	pos    int
}

func (s *sliceStream) Recv() (ai.StreamEvent, error) {
	if s.pos < len(s.events) {
		ev := s.events[s.pos]
		s.pos++
		return ev, nil
	}
	if s.err != nil {
		return ai.StreamEvent{}, s.err
	}
	return ai.StreamEvent{}, io.EOF
}

func (s *sliceStream) Close() error { return nil }

// failingStore fails every operation.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Name() string { return "failing" }
func (failingStore) Save(context.Context, string, []byte, time.Duration) error {
	return errStoreDown
}
func (failingStore) Load(context.Context, string) ([]byte, bool, error) {
	return nil, false, errStoreDown
}
func (failingStore) Delete(context.Context, string) (bool, error) { return false, errStoreDown }
func (failingStore) Exists(context.Context, string) (bool, error) { return false, errStoreDown }
func (failingStore) Clear(context.Context) error                  { return errStoreDown }

func testConfig(names ...string) *config.Config {
	cfg := &config.Config{
		DefaultProvider: names[0],
		Providers:       map[string]*config.ProviderConfig{},
		Storage:         config.StorageConfig{Enabled: true, Backend: cache.MemoryBackend, CacheTTL: time.Hour},
		Analysis: config.AnalysisConfig{
			DefaultPersona: config.DefaultPersona,
			Language:       config.DefaultLanguage,
		},
		MaxLogLength: config.DefaultMaxLogLength,
	}
	for _, name := range names {
		cfg.Providers[name] = &config.ProviderConfig{
			Kind:           fakeKind,
			Enabled:        true,
			DefaultModel:   "fake-model",
			Models:         []config.ModelConfig{{Name: "fake-model", MaxTokens: 1024, Temperature: temperature(0.5)}},
			MaxRetries:     3,
			RetryBaseDelay: time.Millisecond,
		}
	}
	return cfg
}

// newTestEngine wires an engine to fakes keyed by provider name.
func newTestEngine(t *testing.T, store cache.Store, fakes ...*fakeProvider) *Engine {
	t.Helper()

	names := make([]string, 0, len(fakes))
	byName := make(map[string]*fakeProvider, len(fakes))
	for _, f := range fakes {
		names = append(names, f.name)
		byName[f.name] = f
	}

	registry := ai.NewRegistry()
	registry.Register(fakeKind, func(_ context.Context, name string, _ *config.ProviderConfig, _ *zap.Logger) (ai.Provider, error) {
		f, ok := byName[name]
		if !ok {
			return nil, errors.New("no fake named " + name)
		}
		return f, nil
	})

	e, err := New(context.Background(), testConfig(names...), registry, store, "", zap.NewNop())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return e
}
