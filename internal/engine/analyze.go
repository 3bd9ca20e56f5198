package engine

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spigell/resume-analyzer/internal/ai"
	"github.com/spigell/resume-analyzer/internal/cache"
	"github.com/spigell/resume-analyzer/internal/logger"
	"github.com/spigell/resume-analyzer/internal/prompt"
	"github.com/spigell/resume-analyzer/internal/response"
	"go.uber.org/zap"
)

// Analyze produces a persona-specific match report for a resume and a job description.
func (e *Engine) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalysisResult, error) {
	op := e.begin(prompt.MatchAnalysis)
	persona := e.personas.Resolve(req.Persona)
	key := cache.Key(req.Resume, req.JD, persona.Key)

	var cached cachedReport
	if e.loadCached(ctx, op, req.UseCache, key, &cached) {
		return fromCache(cached), nil
	}

	system, user, err := prompt.Build(prompt.MatchAnalysis, persona, prompt.Inputs{
		Resume:   req.Resume,
		JD:       req.JD,
		Language: e.language(),
	})
	if err != nil {
		return nil, err
	}

	op.logger.Info("analyzing resume", zap.String("persona", persona.Key))

	resp, err := e.call(ctx, op, system, user, req.Options, nil)
	if err != nil {
		return nil, err
	}

	result := &AnalysisResult{
		Report:     resp.Text,
		Score:      response.ScorePtr(resp.Text),
		Model:      resp.Model,
		TokensUsed: resp.TokensUsed,
		Latency:    resp.Latency,
		Metadata: map[string]any{
			"persona":  persona.Key,
			"provider": op.b.name,
		},
	}

	e.saveCached(ctx, op, req.UseCache, key, toCache(result))
	return result, nil
}

// AnalyzeStream is the streaming form of Analyze. The sequence yields the
// normalized transcript chunk by chunk and may be ranged over once. The full
// transcript is cached only when the sequence is drained without error.
func (e *Engine) AnalyzeStream(ctx context.Context, req AnalyzeRequest) iter.Seq2[string, error] {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield("", ai.ErrStreamConsumed)
			return
		}

		op := e.begin(prompt.MatchAnalysis)
		persona := e.personas.Resolve(req.Persona)
		key := cache.Key(req.Resume, req.JD, persona.Key)

		var cached cachedReport
		if e.loadCached(ctx, op, req.UseCache, key, &cached) {
			yield(cached.Report, nil)
			return
		}

		system, user, err := prompt.Build(prompt.MatchAnalysis, persona, prompt.Inputs{
			Resume:   req.Resume,
			JD:       req.JD,
			Language: e.language(),
		})
		if err != nil {
			yield("", err)
			return
		}

		r := e.request(op, system, user, req.Options, nil)
		op.logger.Info("streaming analysis",
			zap.String("persona", persona.Key),
			zap.String(logger.FieldModel, r.Model),
		)

		// Streams are never retried: partial output cannot be replayed.
		stream, err := op.b.provider.ChatStream(ctx, r)
		if err != nil {
			op.logger.Error("stream setup failed", zap.Error(err))
			yield("", &AnalysisError{Task: op.task.String(), Err: err})
			return
		}

		var transcript strings.Builder
		for chunk, err := range ai.Normalize(stream) {
			if err != nil {
				op.logger.Error("stream interrupted", zap.Int("delivered", transcript.Len()), zap.Error(err))
				yield("", &AnalysisError{Task: op.task.String(), Err: err})
				return
			}
			transcript.WriteString(chunk)
			if !yield(chunk, nil) {
				op.logger.Debug("stream abandoned by consumer", zap.Int("delivered", transcript.Len()))
				return
			}
		}

		full := transcript.String()
		op.logger.Info("stream completed",
			zap.Duration("latency", time.Since(op.start)),
			zap.Int("response_length", len(full)),
		)

		e.saveCached(ctx, op, req.UseCache, key, cachedReport{
			Report:   full,
			Score:    response.ScorePtr(ai.AnswerOnly(full)),
			Model:    r.Model,
			Streamed: true,
		})
	}
}

// BatchAnalyze runs Analyze for every resume against one job description. A
// failed resume yields an error report instead of failing the batch.
func (e *Engine) BatchAnalyze(ctx context.Context, resumes []string, jd, persona string, useCache bool) []*AnalysisResult {
	results := make([]*AnalysisResult, 0, len(resumes))
	for i, resume := range resumes {
		res, err := e.Analyze(ctx, AnalyzeRequest{
			Resume:  resume,
			JD:      jd,
			Persona: persona,
			Options: Options{UseCache: useCache},
		})
		if err != nil {
			e.logger.Warn("batch analysis entry failed", zap.Int("index", i), zap.Error(err))
			res = &AnalysisResult{
				Report:   fmt.Sprintf("Analysis failed: %v", err),
				Metadata: map[string]any{"error": err.Error(), "index": i},
			}
		}
		results = append(results, res)
	}
	return results
}

func fromCache(c cachedReport) *AnalysisResult {
	res := &AnalysisResult{
		Report:     c.Report,
		Score:      c.Score,
		Model:      c.Model,
		TokensUsed: c.TokensUsed,
		Cached:     true,
	}
	if c.Streamed {
		res.Metadata = map[string]any{"streamed": true}
	}
	return res
}

func toCache(r *AnalysisResult) cachedReport {
	return cachedReport{
		Report:     r.Report,
		Score:      r.Score,
		Model:      r.Model,
		TokensUsed: r.TokensUsed,
	}
}
