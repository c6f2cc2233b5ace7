package rotation

import (
	"context"
	"errors"
	"time"

	"metapro/internal/domain"
	"metapro/internal/infra"
)

// Retrier re-runs a call that failed with domain.ErrGenerationFailure, up to
// MaxAttempts in total with a fixed delay between attempts.
type Retrier struct {
	MaxAttempts int
	Delay       time.Duration
	Logger      *infra.Logger

	// Sleep waits between attempts; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewRetrier(maxAttempts int, delay time.Duration, logger *infra.Logger) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrier{MaxAttempts: maxAttempts, Delay: delay, Logger: logger, Sleep: sleepContext}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. It returns the number of attempts made.
func (r *Retrier) Do(ctx context.Context, name string, fn func(ctx context.Context, attempt int) error) (int, error) {
	logger := infra.OrDiscard(r.Logger)
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	max := r.MaxAttempts
	if max < 1 {
		max = 1
	}

	var err error
	for attempt := 1; attempt <= max; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			logger.Debug().Str("item", name).Int("attempt", attempt).Msg("call succeeded")
			return attempt, nil
		}
		logger.Warn().Err(err).Str("item", name).Int("attempt", attempt).Int("max_attempts", max).Msg("call failed")
		if !errors.Is(err, domain.ErrGenerationFailure) {
			return attempt, err
		}
		if attempt == max {
			return attempt, err
		}
		if serr := sleep(ctx, r.Delay); serr != nil {
			return attempt, err
		}
	}
	return max, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
