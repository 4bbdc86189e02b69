package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limited wraps a backend with a rate limiter, a per-call timeout and
// retries with exponential backoff. Every error it returns wraps
// ErrCompletion.
type Limited struct {
	next       Completion
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

var _ Completion = (*Limited)(nil)

// NewLimited wraps next. Zero RateLimit disables limiting.
func NewLimited(next Completion, cfg Config, logger *zap.Logger) *Limited {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limited{
		next:       next,
		limiter:    rate.NewLimiter(limit, burst),
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		logger:     logger,
	}
}

// Complete waits for the limiter and calls the backend.
func (l *Limited) Complete(ctx context.Context, prompt, system string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %w", ErrCompletion, err)
	}

	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			wait := l.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %w", ErrCompletion, ctx.Err())
			}
		}

		out, err := l.once(ctx, prompt, system)
		if err == nil {
			return out, nil
		}
		lastErr = err

		// The caller gave up; retrying cannot help.
		if ctx.Err() != nil || errors.Is(err, ErrEmptyResponse) {
			break
		}
		l.logger.Warn("completion attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", l.maxRetries+1),
			zap.Error(err),
		)
	}
	if errors.Is(lastErr, ErrCompletion) {
		return "", lastErr
	}
	return "", fmt.Errorf("%w: %w", ErrCompletion, lastErr)
}

func (l *Limited) once(ctx context.Context, prompt, system string) (string, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.next.Complete(ctx, prompt, system)
}

// ErrEmptyResponse is returned when a model answers with no text.
var ErrEmptyResponse = errors.New("empty completion response")
