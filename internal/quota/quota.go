// Package quota decides whether a run may start, before any work is
// dispatched.
package quota

import (
	"context"
	"time"

	"metapro/internal/domain"
)

const (
	PolicyPerRun = "max_items_per_run"
	PolicyDaily  = "daily_item_quota"
)

// Static caps the item count of a single run. A zero limit allows any count.
type Static struct {
	Limit int
}

func (s Static) CheckAndReserve(_ context.Context, count int) (domain.QuotaDecision, error) {
	if s.Limit > 0 && count > s.Limit {
		return domain.QuotaDecision{Limit: s.Limit}, &domain.QuotaError{Policy: PolicyPerRun, Limit: s.Limit, Requested: count}
	}
	remaining := 0
	if s.Limit > 0 {
		remaining = s.Limit - count
	}
	return domain.QuotaDecision{Allowed: true, Limit: s.Limit, Used: count, Remaining: remaining}, nil
}

// Chain applies policies in order and stops at the first refusal. The
// returned decision is the last one evaluated.
type Chain []domain.QuotaPolicy

func (c Chain) CheckAndReserve(ctx context.Context, count int) (domain.QuotaDecision, error) {
	decision := domain.QuotaDecision{Allowed: true}
	for _, p := range c {
		if p == nil {
			continue
		}
		d, err := p.CheckAndReserve(ctx, count)
		if err != nil {
			return d, err
		}
		decision = d
	}
	return decision, nil
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
