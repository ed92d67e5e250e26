package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/model"
	logx "github.com/ensemble-chat/server/pkg/logger"
)

// RedisCorrectionLogRepository stores the gate's audit trail, one list per agent.
type RedisCorrectionLogRepository struct {
	rdb redis.Cmdable
}

// NewRedisCorrectionLogRepository creates the repository.
func NewRedisCorrectionLogRepository(rdb redis.Cmdable) *RedisCorrectionLogRepository {
	return &RedisCorrectionLogRepository{rdb: rdb}
}

func (r *RedisCorrectionLogRepository) key(agentID string) string {
	return fmt.Sprintf("eval:corrections:%s", agentID)
}

// Append writes one attempt row. Rows are never updated afterwards.
func (r *RedisCorrectionLogRepository) Append(ctx context.Context, log *model.CorrectionLog) error {
	b, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("marshal correction log: %w", err)
	}
	if err := r.rdb.RPush(ctx, r.key(log.AgentID), b).Err(); err != nil {
		logx.Error().Err(err).Str("agentID", log.AgentID).Msg("failed to append correction log")
		return errx.WrapRedis(err)
	}
	return nil
}

// ListByAgent returns an agent's rows inside [from, to]; zero bounds are open.
func (r *RedisCorrectionLogRepository) ListByAgent(ctx context.Context, agentID string, from, to time.Time) ([]model.CorrectionLog, error) {
	rows, err := r.rdb.LRange(ctx, r.key(agentID), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []model.CorrectionLog{}, nil
		}
		return nil, errx.WrapRedis(err)
	}

	logs := make([]model.CorrectionLog, 0, len(rows))
	for i, row := range rows {
		var l model.CorrectionLog
		if err := json.Unmarshal([]byte(row), &l); err != nil {
			return nil, fmt.Errorf("unmarshal correction log at index %d: %w", i, err)
		}
		if inRange(l.CreatedAt, from, to) {
			logs = append(logs, l)
		}
	}
	return logs, nil
}

// CountPassedSince counts an agent's passing attempts newer than since,
// the input to the minimum-required-actions override.
func (r *RedisCorrectionLogRepository) CountPassedSince(ctx context.Context, agentID string, since time.Time) (int, error) {
	logs, err := r.ListByAgent(ctx, agentID, since, time.Time{})
	if err != nil {
		return 0, err
	}
	var n int
	for _, l := range logs {
		if l.Outcome == model.OutcomePassed {
			n++
		}
	}
	return n, nil
}

var _ model.CorrectionLogRepository = (*RedisCorrectionLogRepository)(nil)

// RedisInterventionLogRepository stores intervention evaluations per agent.
type RedisInterventionLogRepository struct {
	rdb redis.Cmdable
}

// NewRedisInterventionLogRepository creates the repository.
func NewRedisInterventionLogRepository(rdb redis.Cmdable) *RedisInterventionLogRepository {
	return &RedisInterventionLogRepository{rdb: rdb}
}

func (r *RedisInterventionLogRepository) key(agentID string) string {
	return fmt.Sprintf("eval:interventions:%s", agentID)
}

// Append writes one evaluation row, fired or not.
func (r *RedisInterventionLogRepository) Append(ctx context.Context, log *model.InterventionLog) error {
	b, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("marshal intervention log: %w", err)
	}
	if err := r.rdb.RPush(ctx, r.key(log.AgentID), b).Err(); err != nil {
		logx.Error().Err(err).Str("agentID", log.AgentID).Msg("failed to append intervention log")
		return errx.WrapRedis(err)
	}
	return nil
}

// ListByAgent returns an agent's rows inside [from, to]; zero bounds are open.
func (r *RedisInterventionLogRepository) ListByAgent(ctx context.Context, agentID string, from, to time.Time) ([]model.InterventionLog, error) {
	rows, err := r.rdb.LRange(ctx, r.key(agentID), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []model.InterventionLog{}, nil
		}
		return nil, errx.WrapRedis(err)
	}

	logs := make([]model.InterventionLog, 0, len(rows))
	for i, row := range rows {
		var l model.InterventionLog
		if err := json.Unmarshal([]byte(row), &l); err != nil {
			return nil, fmt.Errorf("unmarshal intervention log at index %d: %w", i, err)
		}
		if inRange(l.CreatedAt, from, to) {
			logs = append(logs, l)
		}
	}
	return logs, nil
}

var _ model.InterventionLogRepository = (*RedisInterventionLogRepository)(nil)

// inRange checks t against optional bounds; zero bounds are open ends.
func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
