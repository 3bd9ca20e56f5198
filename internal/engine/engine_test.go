package engine

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/spigell/resume-analyzer/internal/ai"
	"github.com/spigell/resume-analyzer/internal/cache"
	"github.com/spigell/resume-analyzer/internal/config"
	"github.com/spigell/resume-analyzer/internal/prompt"
)

const (
	testResume = "Jane Doe\nGo engineer, 7 years of distributed systems."
	testJD     = "Senior Go developer with Kubernetes experience."
)

func jsonChat(text string) func(context.Context, ai.Request) (*ai.Response, error) {
	return func(_ context.Context, req ai.Request) (*ai.Response, error) {
		return &ai.Response{Text: text, Model: req.Model, TokensUsed: 7}, nil
	}
}

func TestAnalyzeCachesResult(t *testing.T) {
	t.Parallel()

	fake := &fakeProvider{name: "primary"}
	e := newTestEngine(t, cache.NewMemory(0), fake)
	req := AnalyzeRequest{Resume: testResume, JD: testJD, Persona: "hrbp", Options: Options{UseCache: true}}

	first, err := e.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("first Analyze returned error: %v", err)
	}
	if first.Cached {
		t.Fatalf("first call should not be cached")
	}
	if first.Score == nil || *first.Score != 80 {
		t.Fatalf("unexpected score: %v", first.Score)
	}

	second, err := e.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("second Analyze returned error: %v", err)
	}
	if !second.Cached {
		t.Fatalf("second call should be served from cache")
	}
	if second.Report != first.Report || *second.Score != *first.Score {
		t.Fatalf("cached result differs: %+v vs %+v", second, first)
	}
	if second.Latency != 0 {
		t.Fatalf("cached result should carry zero latency, got %s", second.Latency)
	}
	if got := fake.callCount(); got != 1 {
		t.Fatalf("expected provider to be called once, got %d", got)
	}
}

func TestAnalyzePersonaChangesKey(t *testing.T) {
	t.Parallel()

	fake := &fakeProvider{name: "primary"}
	e := newTestEngine(t, cache.NewMemory(0), fake)

	for _, persona := range []string{"hrbp", "candidate", "hrbp"} {
		if _, err := e.Analyze(context.Background(), AnalyzeRequest{
			Resume: testResume, JD: testJD, Persona: persona, Options: Options{UseCache: true},
		}); err != nil {
			t.Fatalf("Analyze(%s) returned error: %v", persona, err)
		}
	}
	if got := fake.callCount(); got != 2 {
		t.Fatalf("expected 2 provider calls, got %d", got)
	}
}

func TestAnalyzeWithoutCache(t *testing.T) {
	t.Parallel()

	fake := &fakeProvider{name: "primary"}
	e := newTestEngine(t, cache.NewMemory(0), fake)
	req := AnalyzeRequest{Resume: testResume, JD: testJD}

	for i := 0; i < 2; i++ {
		res, err := e.Analyze(context.Background(), req)
		if err != nil {
			t.Fatalf("Analyze returned error: %v", err)
		}
		if res.Cached {
			t.Fatalf("uncached call reported cached result")
		}
	}
	if got := fake.callCount(); got != 2 {
		t.Fatalf("expected 2 provider calls, got %d", got)
	}
}

func TestCacheFailureIsBestEffort(t *testing.T) {
	t.Parallel()

	fake := &fakeProvider{name: "primary"}
	e := newTestEngine(t, failingStore{}, fake)

	res, err := e.Analyze(context.Background(), AnalyzeRequest{Resume: testResume, JD: testJD, Options: Options{UseCache: true}})
	if err != nil {
		t.Fatalf("cache failure must not fail the call: %v", err)
	}
	if res.Cached || res.Report == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRetryExhaustionSurfacesAnalysisError(t *testing.T) {
	t.Parallel()

	fake := &fakeProvider{
		name: "primary",
		chat: func(context.Context, ai.Request) (*ai.Response, error) {
			return nil, ai.StatusError("primary", http.StatusServiceUnavailable, 0, "overloaded")
		},
	}
	e := newTestEngine(t, nil, fake)

	_, err := e.Analyze(context.Background(), AnalyzeRequest{Resume: testResume, JD: testJD})
	if err == nil {
		t.Fatalf("expected error")
	}

	var analysisErr *AnalysisError
	if !errors.As(err, &analysisErr) {
		t.Fatalf("expected AnalysisError, got %T", err)
	}
	if analysisErr.Task != prompt.MatchAnalysis.String() {
		t.Fatalf("unexpected task: %s", analysisErr.Task)
	}
	if !errors.Is(err, ai.ErrBackendUnavailable) {
		t.Fatalf("cause should be preserved, got %v", err)
	}
	if !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("message should carry the cause: %v", err)
	}
	if got := fake.callCount(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestResolveModelAndTemperature(t *testing.T) {
	t.Parallel()

	fake := &fakeProvider{name: "primary", chat: jsonChat(`{"name":"Jane"}`)}
	e := newTestEngine(t, nil, fake)
	ctx := context.Background()

	if _, err := e.Analyze(ctx, AnalyzeRequest{Resume: testResume, JD: testJD}); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	req := fake.lastRequest()
	if req.Model != "fake-model" || req.Temperature != 0.5 || req.MaxTokens != 1024 {
		t.Fatalf("model settings not applied: %+v", req)
	}

	override := 0.9
	if _, err := e.Analyze(ctx, AnalyzeRequest{Resume: testResume, JD: testJD, Options: Options{Temperature: &override}}); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if got := fake.lastRequest().Temperature; got != 0.9 {
		t.Fatalf("explicit temperature should win, got %v", got)
	}

	if _, err := e.ExtractResumeFields(ctx, testResume, Options{}); err != nil {
		t.Fatalf("ExtractResumeFields returned error: %v", err)
	}
	if got := fake.lastRequest().Temperature; got != 0.1 {
		t.Fatalf("extraction should use its pinned temperature, got %v", got)
	}

	if _, err := e.Analyze(ctx, AnalyzeRequest{Resume: testResume, JD: testJD, Options: Options{Model: "other-model"}}); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	req = fake.lastRequest()
	if req.Model != "other-model" || req.Temperature != config.DefaultTemperature || req.MaxTokens != config.DefaultMaxTokens {
		t.Fatalf("unknown model should use defaults: %+v", req)
	}
}

func TestZeroModelTemperatureIsKept(t *testing.T) {
	t.Parallel()

	fake := &fakeProvider{name: "primary", chat: jsonChat("Score: 80")}
	e := newTestEngine(t, nil, fake)
	e.cfg.Providers["primary"].Models[0].Temperature = temperature(0)

	if _, err := e.Analyze(context.Background(), AnalyzeRequest{Resume: testResume, JD: testJD}); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if got := fake.lastRequest().Temperature; got != 0 {
		t.Fatalf("configured zero temperature should be sent as 0, got %v", got)
	}
}

func TestRequestOptionsMerge(t *testing.T) {
	t.Parallel()

	fake := &fakeProvider{name: "primary", chat: jsonChat("Score: 80")}
	e := newTestEngine(t, nil, fake)
	modelOptions := map[string]any{"seed": 1, "top_p": 0.9}
	e.cfg.Providers["primary"].Models[0].Options = modelOptions

	opts := Options{Extra: map[string]any{"seed": 2}}
	if _, err := e.Analyze(context.Background(), AnalyzeRequest{Resume: testResume, JD: testJD, Options: opts}); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	got := fake.lastRequest().Options
	if got["seed"] != 2 || got["top_p"] != 0.9 {
		t.Fatalf("call options should override model options, got %v", got)
	}
	if modelOptions["seed"] != 1 {
		t.Fatalf("model options must not be mutated, got %v", modelOptions)
	}
}

func TestOptimizeJDCachesResult(t *testing.T) {
	t.Parallel()

	fake := &fakeProvider{name: "primary", chat: jsonChat("## Senior Go developer\nSell the team.")}
	e := newTestEngine(t, cache.NewMemory(0), fake)
	ctx := context.Background()
	opts := Options{UseCache: true}

	first, err := e.OptimizeJD(ctx, testJD, opts)
	if err != nil {
		t.Fatalf("OptimizeJD returned error: %v", err)
	}
	if first.Cached || first.Score != nil || !strings.Contains(first.Report, "Senior Go developer") {
		t.Fatalf("unexpected first result: %+v", first)
	}

	second, err := e.OptimizeJD(ctx, testJD, opts)
	if err != nil {
		t.Fatalf("OptimizeJD returned error: %v", err)
	}
	if !second.Cached || second.Report != first.Report || second.TokensUsed != first.TokensUsed {
		t.Fatalf("second call should be served from cache: %+v", second)
	}
	if got := fake.callCount(); got != 1 {
		t.Fatalf("expected one provider call, got %d", got)
	}

	if _, err := e.OptimizeJD(ctx, testJD+" Remote.", opts); err != nil {
		t.Fatalf("OptimizeJD returned error: %v", err)
	}
	if got := fake.callCount(); got != 2 {
		t.Fatalf("a different description should miss the cache, got %d calls", got)
	}
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	fake := &fakeProvider{name: "primary", chat: jsonChat("Ingeniera de Go")}
	e := newTestEngine(t, cache.NewMemory(0), fake)

	got, err := e.Translate(context.Background(), "Go engineer", "Spanish")
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	if got != "Ingeniera de Go" {
		t.Fatalf("unexpected translation %q", got)
	}

	req := fake.lastRequest()
	if req.Temperature != 0.3 {
		t.Fatalf("translation should use its pinned temperature, got %v", req.Temperature)
	}
	var user string
	for _, m := range req.Messages {
		if m.Role == ai.RoleUser {
			user = m.Content
		}
	}
	if !strings.Contains(user, "Go engineer") || !strings.Contains(user, "Spanish") {
		t.Fatalf("prompt should carry the text and target language: %q", user)
	}

	fake.chat = func(context.Context, ai.Request) (*ai.Response, error) {
		return nil, &ai.ProviderError{Provider: "primary", Kind: ai.ErrAuthentication, Err: errors.New("bad key")}
	}
	_, err = e.Translate(context.Background(), "Go engineer", "Spanish")
	var analysisErr *AnalysisError
	if !errors.As(err, &analysisErr) || analysisErr.Task != prompt.Translation.String() {
		t.Fatalf("expected translation AnalysisError, got %v", err)
	}
}

func TestEvaluateMatchWeightsChangeKey(t *testing.T) {
	t.Parallel()

	fake := &fakeProvider{name: "primary", chat: jsonChat("```json\n{\"score\": 75, \"status\": \"Suitable\"}\n```")}
	e := newTestEngine(t, cache.NewMemory(0), fake)
	ctx := context.Background()
	opts := Options{UseCache: true}

	heavySkills := prompt.Weights{Skills: 70, Experience: 10, Education: 10, SoftSkills: 10}
	heavySoft := prompt.Weights{Skills: 70, Experience: 10, Education: 10, SoftSkills: 11}

	first, err := e.EvaluateMatch(ctx, testResume, testJD, &heavySkills, opts)
	if err != nil {
		t.Fatalf("EvaluateMatch returned error: %v", err)
	}
	if first["score"] != float64(75) {
		t.Fatalf("unexpected payload: %v", first)
	}
	if _, err := e.EvaluateMatch(ctx, testResume, testJD, &heavySoft, opts); err != nil {
		t.Fatalf("EvaluateMatch returned error: %v", err)
	}
	if _, err := e.EvaluateMatch(ctx, testResume, testJD, &heavySkills, opts); err != nil {
		t.Fatalf("EvaluateMatch returned error: %v", err)
	}

	if got := fake.callCount(); got != 2 {
		t.Fatalf("expected 2 provider calls, got %d", got)
	}
	if !strings.Contains(fake.lastRequest().Messages[1].Content, "Soft Skills: 11%") {
		t.Fatalf("weights not rendered into prompt")
	}
}

func TestEvaluateMatchFallsBackToExtraction(t *testing.T) {
	t.Parallel()

	for _, jd := range []string{"", "   ", "too short"} {
		fake := &fakeProvider{name: "primary", chat: jsonChat(`{"name": "Jane Doe"}`)}
		e := newTestEngine(t, nil, fake)

		got, err := e.EvaluateMatch(context.Background(), testResume, jd, nil, Options{})
		if err != nil {
			t.Fatalf("EvaluateMatch(%q) returned error: %v", jd, err)
		}
		if got["name"] != "Jane Doe" {
			t.Fatalf("expected extraction payload, got %v", got)
		}
		if _, ok := got[metadataField]; !ok {
			t.Fatalf("extraction payload should carry metadata: %v", got)
		}
		if sys := fake.lastRequest().System(); !strings.Contains(sys, "HR data analyst") {
			t.Fatalf("expected extraction prompt, got %q", sys)
		}
	}
}

func TestEvaluateMatchParseFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeProvider{name: "primary", chat: jsonChat("I think they are a good fit.")}
	e := newTestEngine(t, cache.NewMemory(0), fake)

	got, err := e.EvaluateMatch(context.Background(), testResume, testJD, nil, Options{UseCache: true})
	if err != nil {
		t.Fatalf("EvaluateMatch returned error: %v", err)
	}
	if got["status"] != "Error" || got["score"] != 0 || got["raw"] != "I think they are a good fit." {
		t.Fatalf("unexpected sentinel: %v", got)
	}
}

func TestDiagnoseResumeHasNoScore(t *testing.T) {
	t.Parallel()

	fake := &fakeProvider{name: "primary"}
	e := newTestEngine(t, nil, fake)

	res, err := e.DiagnoseResume(context.Background(), testResume, "candidate", Options{})
	if err != nil {
		t.Fatalf("DiagnoseResume returned error: %v", err)
	}
	if res.Score != nil {
		t.Fatalf("diagnosis should not carry a score")
	}
	if res.Metadata["persona"] != "candidate" {
		t.Fatalf("unexpected metadata: %v", res.Metadata)
	}
}

func TestGenerateMessage(t *testing.T) {
	t.Parallel()

	fake := &fakeProvider{name: "primary", chat: jsonChat("Dear Jane, ...")}
	e := newTestEngine(t, nil, fake)
	ctx := context.Background()

	text, err := e.GenerateMessage(ctx, MessageRequest{
		Kind:      "Invite",
		Candidate: Candidate{Name: "Jane"},
		Job:       Job{Role: "Go developer"},
		Options:   MessageOptions{Time: "Monday 10:00"},
	})
	if err != nil {
		t.Fatalf("GenerateMessage returned error: %v", err)
	}
	if text != "Dear Jane, ..." {
		t.Fatalf("unexpected text: %q", text)
	}
	if got := fake.lastRequest().Temperature; got != 0.7 {
		t.Fatalf("unexpected temperature: %v", got)
	}

	_, err = e.GenerateMessage(ctx, MessageRequest{Kind: "promote"})
	if !errors.Is(err, prompt.ErrInvalidMessageKind) {
		t.Fatalf("expected ErrInvalidMessageKind, got %v", err)
	}
	if got := fake.callCount(); got != 1 {
		t.Fatalf("invalid kind must not reach the provider, got %d calls", got)
	}
}

func TestBatchAnalyzeContinuesOnFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeProvider{
		name: "primary",
		chat: func(_ context.Context, req ai.Request) (*ai.Response, error) {
			if strings.Contains(req.Messages[len(req.Messages)-1].Content, "broken resume") {
				return nil, ai.StatusError("primary", http.StatusUnauthorized, 0, "bad key")
			}
			return &ai.Response{Text: "Score: 60", Model: req.Model}, nil
		},
	}
	e := newTestEngine(t, nil, fake)

	results := e.BatchAnalyze(context.Background(), []string{testResume, "broken resume"}, testJD, "", false)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Score == nil || *results[0].Score != 60 {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if !strings.HasPrefix(results[1].Report, "Analysis failed: ") {
		t.Fatalf("unexpected failure report: %q", results[1].Report)
	}
	if _, ok := results[1].Metadata["error"]; !ok {
		t.Fatalf("failure should carry metadata.error")
	}
}

func TestSwitchProviderIsolation(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	a := &fakeProvider{
		name: "a",
		chat: func(_ context.Context, req ai.Request) (*ai.Response, error) {
			close(started)
			<-release
			return &ai.Response{Text: "from a", Model: req.Model}, nil
		},
	}
	b := &fakeProvider{name: "b", chat: jsonChat("from b")}
	e := newTestEngine(t, nil, a, b)

	type outcome struct {
		res *AnalysisResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.Analyze(context.Background(), AnalyzeRequest{Resume: testResume, JD: testJD})
		done <- outcome{res, err}
	}()

	<-started
	if err := e.SwitchProvider(context.Background(), "b"); err != nil {
		t.Fatalf("SwitchProvider returned error: %v", err)
	}
	close(release)

	select {
	case out := <-done:
		if out.err != nil {
			t.Fatalf("in-flight call failed: %v", out.err)
		}
		if out.res.Report != "from a" {
			t.Fatalf("in-flight call should finish on a, got %q", out.res.Report)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("in-flight call did not finish")
	}

	res, err := e.Analyze(context.Background(), AnalyzeRequest{Resume: testResume, JD: testJD})
	if err != nil {
		t.Fatalf("Analyze after switch returned error: %v", err)
	}
	if res.Report != "from b" {
		t.Fatalf("new calls should use b, got %q", res.Report)
	}
	if e.ProviderInfo().Name != "b" {
		t.Fatalf("provider info not updated")
	}
}

func TestSwitchProviderFailureKeepsCurrent(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil, &fakeProvider{name: "primary"})

	err := e.SwitchProvider(context.Background(), "missing")
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if got := e.ProviderInfo().Name; got != "primary" {
		t.Fatalf("current provider changed to %q", got)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()
		store := cache.NewMemory(0)
		e := newTestEngine(t, store, &fakeProvider{name: "primary"})

		status := e.HealthCheck(context.Background())
		if !status.Provider.Healthy || !status.Storage.Healthy || !status.Storage.Enabled {
			t.Fatalf("unexpected status: %+v", status)
		}
		if status.Storage.Backend != cache.MemoryBackend {
			t.Fatalf("unexpected backend: %s", status.Storage.Backend)
		}
		if store.Len() != 0 {
			t.Fatalf("health check entry should be removed")
		}
	})

	t.Run("failures", func(t *testing.T) {
		t.Parallel()
		e := newTestEngine(t, failingStore{}, &fakeProvider{name: "primary", healthErr: errors.New("no route")})

		status := e.HealthCheck(context.Background())
		if status.Provider.Healthy || status.Provider.Error != "no route" {
			t.Fatalf("unexpected provider status: %+v", status.Provider)
		}
		if status.Storage.Healthy || status.Storage.Error == "" {
			t.Fatalf("unexpected storage status: %+v", status.Storage)
		}
	})

	t.Run("storage disabled", func(t *testing.T) {
		t.Parallel()
		e := newTestEngine(t, nil, &fakeProvider{name: "primary"})

		status := e.HealthCheck(context.Background())
		if status.Storage.Enabled || status.Storage.Healthy {
			t.Fatalf("unexpected storage status: %+v", status.Storage)
		}
	})
}

func TestNewRequiresEnabledProvider(t *testing.T) {
	t.Parallel()

	cfg := testConfig("primary")
	cfg.Providers["primary"].Enabled = false

	_, err := New(context.Background(), cfg, ai.NewRegistry(), nil, "", nil)
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
