package partial

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"metapro/internal/domain"
	"metapro/internal/infra"
)

const defaultRedisTTL = 7 * 24 * time.Hour

// RedisStore appends outcomes to a list per run. RPUSH is atomic, so
// concurrent workers never interleave records.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *infra.Logger
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration, logger *infra.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{client: client, prefix: "metapro:partial:", ttl: ttl, logger: infra.OrDiscard(logger)}
}

func (s *RedisStore) key(runID string) string { return s.prefix + runID }

func (s *RedisStore) Append(ctx context.Context, o domain.Outcome) error {
	if err := checkRunID(o.RunID); err != nil {
		return err
	}
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("partial: encode outcome: %w", err)
	}
	key := s.key(o.RunID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, raw)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("partial: redis append: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, runID string) ([]domain.Outcome, error) {
	if err := checkRunID(runID); err != nil {
		return nil, err
	}
	values, err := s.client.LRange(ctx, s.key(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("partial: redis load: %w", err)
	}
	if len(values) == 0 {
		return nil, domain.ErrNotFound
	}
	outcomes := make([]domain.Outcome, 0, len(values))
	for i, v := range values {
		var o domain.Outcome
		if err := json.Unmarshal([]byte(v), &o); err != nil {
			s.logger.Warn().Err(err).Str("run_id", runID).Int("entry", i).Msg("skipping unreadable partial record")
			continue
		}
		outcomes = append(outcomes, o)
	}
	return reconcile(outcomes), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}
