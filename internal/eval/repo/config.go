package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/model"
	logx "github.com/ensemble-chat/server/pkg/logger"
)

// RedisConfigRepository stores per-agent evaluation policy overrides.
type RedisConfigRepository struct {
	rdb redis.Cmdable
}

// NewRedisConfigRepository creates the repository.
func NewRedisConfigRepository(rdb redis.Cmdable) *RedisConfigRepository {
	return &RedisConfigRepository{rdb: rdb}
}

func (r *RedisConfigRepository) key(agentID string) string {
	return fmt.Sprintf("eval:config:%s", agentID)
}

// Get returns the agent's stored config, or nil when the agent has no
// override; callers fall back to model.DefaultResolvedConfig.
func (r *RedisConfigRepository) Get(ctx context.Context, agentID string) (*model.ResolvedConfig, error) {
	raw, err := r.rdb.Get(ctx, r.key(agentID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errx.WrapRedis(err)
	}
	var cfg model.ResolvedConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config for %s: %w", agentID, err)
	}
	return &cfg, nil
}

// Upsert merges the patch over the stored config (or the default when none
// exists) and writes the result back, returning the effective config.
func (r *RedisConfigRepository) Upsert(ctx context.Context, agentID string, patch model.ConfigPatch) (*model.ResolvedConfig, error) {
	current, err := r.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	base := model.DefaultResolvedConfig()
	if current != nil {
		base = *current
	}

	merged := patch.Apply(base)
	b, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key(agentID), b, 0).Err(); err != nil {
		logx.Error().Err(err).Str("agentID", agentID).Msg("failed to write agent config")
		return nil, errx.WrapRedis(err)
	}
	return &merged, nil
}

var _ model.ConfigRepository = (*RedisConfigRepository)(nil)

// RedisBaselineRepository stores dynamically captured baselines plus an
// index set for enumeration.
type RedisBaselineRepository struct {
	rdb redis.Cmdable
}

// NewRedisBaselineRepository creates the repository.
func NewRedisBaselineRepository(rdb redis.Cmdable) *RedisBaselineRepository {
	return &RedisBaselineRepository{rdb: rdb}
}

const baselineIndexKey = "eval:baselines"

func (r *RedisBaselineRepository) key(agentID string) string {
	return fmt.Sprintf("eval:baseline:%s", agentID)
}

// Save stores the baseline and registers the agent in the index.
func (r *RedisBaselineRepository) Save(ctx context.Context, baseline *model.Baseline) error {
	b, err := json.Marshal(baseline)
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key(baseline.AgentID), b, 0).Err(); err != nil {
		logx.Error().Err(err).Str("agentID", baseline.AgentID).Msg("failed to write baseline")
		return errx.WrapRedis(err)
	}
	if err := r.rdb.SAdd(ctx, baselineIndexKey, baseline.AgentID).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

// Get returns the captured baseline for an agent; not-found surfaces via errx.
func (r *RedisBaselineRepository) Get(ctx context.Context, agentID string) (*model.Baseline, error) {
	raw, err := r.rdb.Get(ctx, r.key(agentID)).Result()
	if err != nil {
		return nil, errx.WrapRedis(err)
	}
	var baseline model.Baseline
	if err := json.Unmarshal([]byte(raw), &baseline); err != nil {
		return nil, fmt.Errorf("unmarshal baseline for %s: %w", agentID, err)
	}
	return &baseline, nil
}

// List enumerates every captured baseline.
func (r *RedisBaselineRepository) List(ctx context.Context) ([]model.Baseline, error) {
	agentIDs, err := r.rdb.SMembers(ctx, baselineIndexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []model.Baseline{}, nil
		}
		return nil, errx.WrapRedis(err)
	}

	baselines := make([]model.Baseline, 0, len(agentIDs))
	for _, id := range agentIDs {
		b, err := r.Get(ctx, id)
		if err != nil {
			if errx.IsNotFound(err) {
				continue // index entry outlived its record
			}
			return nil, err
		}
		baselines = append(baselines, *b)
	}
	return baselines, nil
}

var _ model.BaselineRepository = (*RedisBaselineRepository)(nil)
