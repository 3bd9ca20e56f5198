package ai

import (
	"context"
	"time"

	"github.com/spigell/resume-analyzer/internal/utils"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
)

var sleep = utils.WaitFor

// RetryPolicy wraps a single synchronous Chat call with bounded retries and
// exponential backoff. Streams are never retried.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// HonorRetryAfter waits max(backoff, retry-after) when the backend suggests a delay.
	HonorRetryAfter bool
	Logger          *zap.Logger
}

func (p RetryPolicy) attempts() int {
	if p.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return p.MaxRetries
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	return base * time.Duration(1<<attempt)
}

// Chat invokes provider.Chat up to MaxRetries times. The last error is returned
// unchanged once attempts are exhausted.
func (p RetryPolicy) Chat(ctx context.Context, provider Provider, req Request) (*Response, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	attempts := p.attempts()
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := provider.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == attempts-1 {
			break
		}

		delay := p.backoff(attempt)
		if p.HonorRetryAfter {
			if hint, ok := RetryAfter(err); ok && hint > delay {
				delay = hint
			}
		}

		logger.Warn("llm call failed, retrying",
			zap.String("ai_provider", provider.Name()),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if waitErr := sleep(ctx, delay); waitErr != nil {
			break
		}
	}

	return nil, lastErr
}
