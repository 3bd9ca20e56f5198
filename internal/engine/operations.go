package engine

import (
	"context"
	"strings"

	"github.com/spigell/resume-analyzer/internal/cache"
	"github.com/spigell/resume-analyzer/internal/prompt"
	"github.com/spigell/resume-analyzer/internal/response"
	"go.uber.org/zap"
)

// Pinned sampling temperatures for tasks that need stable or creative output.
var (
	extractionTemperature = temperature(0.1)
	evaluationTemperature = temperature(0.2)
	messageTemperature    = temperature(0.7)
	translateTemperature  = temperature(0.3)
	rewriteTemperature    = temperature(0.7)
)

// minJDLength is the shortest job description worth evaluating against.
const minJDLength = 10

const metadataField = "_metadata"

// OptimizeJD rewrites a job description from a headhunter's point of view.
func (e *Engine) OptimizeJD(ctx context.Context, jd string, opts Options) (*AnalysisResult, error) {
	op := e.begin(prompt.JDOptimization)
	key := cache.Key(jd, op.task.String(), prompt.PersonaHeadhunter)

	var cached cachedReport
	if e.loadCached(ctx, op, opts.UseCache, key, &cached) {
		return fromCache(cached), nil
	}

	system, user, err := prompt.Build(prompt.JDOptimization, prompt.Persona{}, prompt.Inputs{JD: jd, Language: e.language()})
	if err != nil {
		return nil, err
	}

	resp, err := e.call(ctx, op, system, user, opts, nil)
	if err != nil {
		return nil, err
	}

	result := &AnalysisResult{
		Report:     resp.Text,
		Model:      resp.Model,
		TokensUsed: resp.TokensUsed,
		Latency:    resp.Latency,
		Metadata:   map[string]any{"provider": op.b.name},
	}
	e.saveCached(ctx, op, opts.UseCache, key, toCache(result))
	return result, nil
}

// ExtractResumeFields parses a resume into structured fields. A response that
// is not valid JSON yields the parse sentinel and is not cached.
func (e *Engine) ExtractResumeFields(ctx context.Context, resume string, opts Options) (map[string]any, error) {
	op := e.begin(prompt.FieldExtraction)
	key := cache.Key(resume, op.task.String(), "parser")

	var cached map[string]any
	if e.loadCached(ctx, op, opts.UseCache, key, &cached) {
		return cached, nil
	}

	system, user, err := prompt.Build(prompt.FieldExtraction, prompt.Persona{}, prompt.Inputs{Resume: resume})
	if err != nil {
		return nil, err
	}

	resp, err := e.call(ctx, op, system, user, opts, extractionTemperature)
	if err != nil {
		return nil, err
	}

	payload := response.ParseJSONPayload(resp.Text)
	payload[metadataField] = map[string]any{
		"model":       resp.Model,
		"tokens_used": resp.TokensUsed,
	}

	if response.ParseFailed(payload) {
		op.logger.Warn("extraction returned non-JSON output")
		return payload, nil
	}
	e.saveCached(ctx, op, opts.UseCache, key, payload)
	return payload, nil
}

// EvaluateMatch scores a resume against a job description with optional
// weights. Without a usable job description it falls back to field extraction.
func (e *Engine) EvaluateMatch(ctx context.Context, resume, jd string, weights *prompt.Weights, opts Options) (map[string]any, error) {
	if len([]rune(strings.TrimSpace(jd))) < minJDLength {
		e.logger.Info("job description missing or too short, extracting fields instead")
		return e.ExtractResumeFields(ctx, resume, opts)
	}

	w := prompt.DefaultWeights()
	if weights != nil {
		w = *weights
	}

	op := e.begin(prompt.MatchEvaluation)
	key := cache.Key(resume, jd, w.String(), op.task.String())

	var cached map[string]any
	if e.loadCached(ctx, op, opts.UseCache, key, &cached) {
		return cached, nil
	}

	system, user, err := prompt.Build(prompt.MatchEvaluation, prompt.Persona{}, prompt.Inputs{
		Resume:   resume,
		JD:       jd,
		Weights:  &w,
		Language: e.language(),
	})
	if err != nil {
		return nil, err
	}

	resp, err := e.call(ctx, op, system, user, opts, evaluationTemperature)
	if err != nil {
		return nil, err
	}

	payload := response.ParseJSONPayload(resp.Text)
	if response.ParseFailed(payload) {
		op.logger.Warn("evaluation returned non-JSON output")
		return evaluationParseFailure(resp.Text), nil
	}

	e.saveCached(ctx, op, opts.UseCache, key, payload)
	return payload, nil
}

const evaluationErrorStatus = "Error"

func evaluationParseFailure(raw string) map[string]any {
	return map[string]any{
		"score":  0,
		"status": evaluationErrorStatus,
		"reason": "Failed to parse analysis",
		"raw":    raw,
	}
}

// DiagnoseResume reviews a resume on its own. The result carries no score.
func (e *Engine) DiagnoseResume(ctx context.Context, resume, persona string, opts Options) (*AnalysisResult, error) {
	op := e.begin(prompt.Diagnostic)
	p := e.personas.Resolve(persona)
	key := cache.Key(resume, op.task.String(), p.Key)

	var cached cachedReport
	if e.loadCached(ctx, op, opts.UseCache, key, &cached) {
		return fromCache(cached), nil
	}

	system, user, err := prompt.Build(prompt.Diagnostic, p, prompt.Inputs{Resume: resume, Language: e.language()})
	if err != nil {
		return nil, err
	}

	resp, err := e.call(ctx, op, system, user, opts, nil)
	if err != nil {
		return nil, err
	}

	result := &AnalysisResult{
		Report:     resp.Text,
		Model:      resp.Model,
		TokensUsed: resp.TokensUsed,
		Latency:    resp.Latency,
		Metadata:   map[string]any{"persona": p.Key, "provider": op.b.name},
	}
	e.saveCached(ctx, op, opts.UseCache, key, toCache(result))
	return result, nil
}

// GenerateMessage drafts a reject or invite email. Messages are never cached.
func (e *Engine) GenerateMessage(ctx context.Context, req MessageRequest) (string, error) {
	op := e.begin(prompt.MessageGeneration)

	system, user, err := prompt.Build(prompt.MessageGeneration, prompt.Persona{}, prompt.Inputs{
		Language: e.language(),
		Message: prompt.Message{
			Kind:          prompt.MessageKind(strings.ToLower(strings.TrimSpace(req.Kind))),
			CandidateName: req.Candidate.Name,
			Reason:        req.Candidate.Reason,
			Role:          req.Job.Role,
			Style:         req.Options.Style,
			Time:          req.Options.Time,
			Interviewer:   req.Options.Interviewer,
			Tips:          req.Options.Tips,
		},
	})
	if err != nil {
		return "", err
	}

	op.logger.Info("generating message", zap.String("kind", req.Kind))
	resp, err := e.call(ctx, op, system, user, Options{}, messageTemperature)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Translate renders text in targetLang.
func (e *Engine) Translate(ctx context.Context, text, targetLang string) (string, error) {
	op := e.begin(prompt.Translation)

	system, user, err := prompt.Build(prompt.Translation, prompt.Persona{}, prompt.Inputs{Text: text, TargetLanguage: targetLang})
	if err != nil {
		return "", err
	}

	resp, err := e.call(ctx, op, system, user, Options{}, translateTemperature)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// RewriteBullet rewrites one resume bullet in STAR form, tailored to jd when given.
func (e *Engine) RewriteBullet(ctx context.Context, bullet, jd string) (string, error) {
	op := e.begin(prompt.BulletRewrite)

	system, user, err := prompt.Build(prompt.BulletRewrite, prompt.Persona{}, prompt.Inputs{
		Text:     bullet,
		JD:       jd,
		Language: e.language(),
	})
	if err != nil {
		return "", err
	}

	resp, err := e.call(ctx, op, system, user, Options{}, rewriteTemperature)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}
