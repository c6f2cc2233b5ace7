package quota

import (
	"context"
	"fmt"
	"time"

	"metapro/internal/domain"
	"metapro/internal/infra"
	"metapro/internal/sqlinline"
)

// PostgresDaily keeps the per-day ledger in the quota_usage table. The
// reservation is a single conditional upsert.
type PostgresDaily struct {
	sql     infra.SQLExecutor
	subject string
	limit   int
	now     func() time.Time
}

func NewPostgresDaily(sql infra.SQLExecutor, subject string, limit int) *PostgresDaily {
	return &PostgresDaily{sql: sql, subject: subject, limit: limit, now: time.Now}
}

func (q *PostgresDaily) CheckAndReserve(ctx context.Context, count int) (domain.QuotaDecision, error) {
	if q.limit <= 0 {
		return domain.QuotaDecision{Allowed: true}, nil
	}
	day := dayKey(q.now())
	if count <= q.limit {
		var used int
		err := q.sql.QueryRow(ctx, sqlinline.QReserveDailyQuota, q.subject, day, count, q.limit).Scan(&used)
		if err == nil {
			return domain.QuotaDecision{Allowed: true, Limit: q.limit, Used: used, Remaining: q.limit - used}, nil
		}
		if !infra.IsNoRows(err) {
			return domain.QuotaDecision{}, fmt.Errorf("%w: reserve quota: %v", domain.ErrStoreUnavailable, err)
		}
	}

	var used int
	if err := q.sql.QueryRow(ctx, sqlinline.QSelectDailyQuota, q.subject, day).Scan(&used); err != nil && !infra.IsNoRows(err) {
		return domain.QuotaDecision{}, fmt.Errorf("%w: read quota: %v", domain.ErrStoreUnavailable, err)
	}
	return domain.QuotaDecision{Limit: q.limit, Used: used, Remaining: max(q.limit-used, 0)},
		&domain.QuotaError{Policy: PolicyDaily, Limit: q.limit, Used: used, Requested: count}
}
