package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"metapro/internal/domain"
)

// RedisDaily keeps a per-day item counter in redis.
type RedisDaily struct {
	client  redis.UniversalClient
	subject string
	limit   int
	now     func() time.Time
}

func NewRedisDaily(client redis.UniversalClient, subject string, limit int) *RedisDaily {
	return &RedisDaily{client: client, subject: subject, limit: limit, now: time.Now}
}

func (q *RedisDaily) key() string {
	return fmt.Sprintf("metapro:quota:%s:%s", q.subject, dayKey(q.now()))
}

func (q *RedisDaily) CheckAndReserve(ctx context.Context, count int) (domain.QuotaDecision, error) {
	if q.limit <= 0 {
		return domain.QuotaDecision{Allowed: true}, nil
	}
	key := q.key()
	used, err := q.client.IncrBy(ctx, key, int64(count)).Result()
	if err != nil {
		return domain.QuotaDecision{}, fmt.Errorf("%w: quota counter: %v", domain.ErrStoreUnavailable, err)
	}
	if used == int64(count) {
		q.client.Expire(ctx, key, 48*time.Hour)
	}
	if int(used) > q.limit {
		if err := q.client.DecrBy(ctx, key, int64(count)).Err(); err != nil {
			return domain.QuotaDecision{}, fmt.Errorf("%w: quota rollback: %v", domain.ErrStoreUnavailable, err)
		}
		before := int(used) - count
		return domain.QuotaDecision{Limit: q.limit, Used: before, Remaining: max(q.limit-before, 0)},
			&domain.QuotaError{Policy: PolicyDaily, Limit: q.limit, Used: before, Requested: count}
	}
	return domain.QuotaDecision{Allowed: true, Limit: q.limit, Used: int(used), Remaining: q.limit - int(used)}, nil
}
