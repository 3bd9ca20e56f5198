package screening

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spigell/resume-analyzer/internal/cache"
	"github.com/spigell/resume-analyzer/internal/engine"
	"go.uber.org/zap"
)

type duplicatesFilter struct{}

// NewDuplicates creates a filter that keeps only the first of identical resumes.
func NewDuplicates() Filter {
	return &duplicatesFilter{}
}

func (f *duplicatesFilter) Name() string { return "duplicates" }

func (f *duplicatesFilter) Disable(string) {}

func (f *duplicatesFilter) IsEnabled() bool { return true }

func (f *duplicatesFilter) Validate(Deps) error { return nil }

func (f *duplicatesFilter) Apply(_ context.Context, deps Deps, c *Candidates) (*Candidates, Step, error) {
	initial := c.Len()
	seen := make(map[string]string, initial)
	var dupes []string

	for _, candidate := range c.Items {
		key := cache.Key(strings.TrimSpace(candidate.Resume))
		if first, ok := seen[key]; ok {
			deps.Logger.Info("skipping duplicate resume",
				zap.String("candidate", candidate.ID),
				zap.String("duplicate_of", first),
			)
			dupes = append(dupes, candidate.ID)
			continue
		}
		seen[key] = candidate.ID
	}

	c.Exclude(dupes)
	return c, Step{Initial: initial, Dropped: len(dupes), Left: c.Len()}, nil
}

type excludeFileFilter struct {
	path string
}

// NewExcludeFile creates a filter that removes candidates listed in an exclude file.
func NewExcludeFile(path string) Filter {
	return &excludeFileFilter{path: strings.TrimSpace(path)}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Disable(string) {}

func (f *excludeFileFilter) IsEnabled() bool { return true }

func (f *excludeFileFilter) Validate(Deps) error { return nil }

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, c *Candidates) (*Candidates, Step, error) {
	initial := c.Len()
	if f.path == "" {
		return c, Step{Initial: initial, Left: initial}, nil
	}

	excluded, err := LoadExcluded(f.path)
	if err != nil {
		return c, Step{}, fmt.Errorf("getting excluded candidates from file: %w", err)
	}

	removed := c.Exclude(excluded.IDs())
	if len(removed) > 0 {
		deps.Logger.Info("excluding candidates based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_candidates", removed),
			zap.Int("candidates_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(removed), Left: c.Len()}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}

type evaluateFilter struct {
	enabled     bool
	reason      string
	minScore    int
	excludeFile string
}

// NewEvaluate creates the LLM scoring step. Candidates scoring below
// minScore are dropped and, when excludeFile is set, recorded there.
// Candidates whose evaluation failed are kept with the error attached.
func NewEvaluate(minScore int, excludeFile string) Filter {
	if minScore < 0 {
		minScore = 0
	}
	return &evaluateFilter{
		enabled:     true,
		minScore:    minScore,
		excludeFile: strings.TrimSpace(excludeFile),
	}
}

func (f *evaluateFilter) Name() string { return "evaluate" }

func (f *evaluateFilter) Disable(reason string) {
	f.enabled = false
	f.reason = reason
}

func (f *evaluateFilter) IsEnabled() bool { return f.enabled }

func (f *evaluateFilter) Validate(deps Deps) error {
	if deps.Evaluator == nil {
		return errors.New("evaluator is required")
	}
	if strings.TrimSpace(deps.JD) == "" {
		return errors.New("job description is required")
	}
	return nil
}

func (f *evaluateFilter) Apply(ctx context.Context, deps Deps, c *Candidates) (*Candidates, Step, error) {
	initial := c.Len()
	approved := make([]*Candidate, 0, initial)
	rejected := &Candidates{}

	for _, candidate := range c.Items {
		if err := ctx.Err(); err != nil {
			return c, Step{}, err
		}

		payload, err := deps.Evaluator.EvaluateMatch(ctx, candidate.Resume, deps.JD, deps.Weights, engine.Options{UseCache: deps.UseCache})
		if err != nil {
			deps.Logger.Warn("evaluation failed", zap.String("candidate", candidate.ID), zap.Error(err))
			candidate.Error = err.Error()
			approved = append(approved, candidate)
			continue
		}

		candidate.Raw = payload
		evaluation, err := engine.DecodeEvaluation(payload)
		if err != nil {
			deps.Logger.Warn("evaluation has no verdict", zap.String("candidate", candidate.ID), zap.Error(err))
			candidate.Error = err.Error()
			approved = append(approved, candidate)
			continue
		}
		candidate.Evaluation = &evaluation

		if evaluation.Score < f.minScore {
			deps.Logger.Info("candidate rejected by evaluation",
				zap.String("candidate", candidate.ID),
				zap.Int("score", evaluation.Score),
				zap.String("reason", evaluation.Reason),
			)
			rejected.Items = append(rejected.Items, candidate)
			continue
		}

		deps.Logger.Info("candidate approved by evaluation",
			zap.String("candidate", candidate.ID),
			zap.Int("score", evaluation.Score),
		)
		approved = append(approved, candidate)
	}

	if err := f.appendToExcludeFile(rejected); err != nil {
		deps.Logger.Warn("failed to append candidates to exclude file", zap.String("path", f.excludeFile), zap.Error(err))
	}

	c.Items = approved
	return c, Step{Initial: initial, Dropped: initial - c.Len(), Left: c.Len()}, nil
}

func (f *evaluateFilter) appendToExcludeFile(rejected *Candidates) error {
	if f.excludeFile == "" || rejected.Len() == 0 {
		return nil
	}

	excluded, err := LoadExcluded(f.excludeFile)
	if err != nil {
		return fmt.Errorf("load excluded candidates: %w", err)
	}

	excluded.Append(rejected.ToExcluded(ExcludeActorAI, fmt.Sprintf("score below %d", f.minScore)))
	if err := excluded.ToFile(f.excludeFile); err != nil {
		return fmt.Errorf("write excluded candidates: %w", err)
	}
	return nil
}

func (f *evaluateFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.enabled,
		Reason:  f.reason,
		Details: map[string]string{"minimum_score": strconv.Itoa(f.minScore)},
	}
}
