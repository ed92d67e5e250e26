// Package repo implements the pipeline's Redis persistence: evaluation runs
// and scores, correction and intervention logs, per-agent config and
// captured baselines. All rows are JSON; log streams are append-only.
package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/model"
	logx "github.com/ensemble-chat/server/pkg/logger"
)

// RedisEvaluationRepository persists evaluation runs and their score rows.
type RedisEvaluationRepository struct {
	rdb redis.Cmdable
}

// NewRedisEvaluationRepository creates the repository.
func NewRedisEvaluationRepository(rdb redis.Cmdable) *RedisEvaluationRepository {
	return &RedisEvaluationRepository{rdb: rdb}
}

func (r *RedisEvaluationRepository) runKey(runID string) string {
	return fmt.Sprintf("eval:run:%s", runID)
}

func (r *RedisEvaluationRepository) scoresKey(runID string) string {
	return fmt.Sprintf("eval:run:%s:scores", runID)
}

// CreateRun stores a new run record in its pending/running state.
func (r *RedisEvaluationRepository) CreateRun(ctx context.Context, run *model.EvaluationRun) error {
	return r.writeRun(ctx, run)
}

// FinishRun overwrites the run with its terminal state. Runs are immutable
// once completed; this is the single transition that writes the final shape.
func (r *RedisEvaluationRepository) FinishRun(ctx context.Context, run *model.EvaluationRun) error {
	return r.writeRun(ctx, run)
}

func (r *RedisEvaluationRepository) writeRun(ctx context.Context, run *model.EvaluationRun) error {
	b, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if err := r.rdb.Set(ctx, r.runKey(run.ID), b, 0).Err(); err != nil {
		logx.Error().Err(err).Str("runID", run.ID).Msg("failed to write evaluation run")
		return errx.WrapRedis(err)
	}
	return nil
}

// GetRun loads a run by ID; not-found surfaces via errx.
func (r *RedisEvaluationRepository) GetRun(ctx context.Context, runID string) (*model.EvaluationRun, error) {
	raw, err := r.rdb.Get(ctx, r.runKey(runID)).Result()
	if err != nil {
		return nil, errx.WrapRedis(err)
	}
	var run model.EvaluationRun
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", runID, err)
	}
	return &run, nil
}

// AppendScores appends proposition score rows to the run's score list.
func (r *RedisEvaluationRepository) AppendScores(ctx context.Context, runID string, scores []model.EvaluationScore) error {
	if len(scores) == 0 {
		return nil
	}
	rows := make([]any, 0, len(scores))
	for _, s := range scores {
		b, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal score: %w", err)
		}
		rows = append(rows, b)
	}
	if err := r.rdb.RPush(ctx, r.scoresKey(runID), rows...).Err(); err != nil {
		logx.Error().Err(err).Str("runID", runID).Msg("failed to append evaluation scores")
		return errx.WrapRedis(err)
	}
	return nil
}

// GetScores returns all score rows for a run, in append order.
func (r *RedisEvaluationRepository) GetScores(ctx context.Context, runID string) ([]model.EvaluationScore, error) {
	rows, err := r.rdb.LRange(ctx, r.scoresKey(runID), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []model.EvaluationScore{}, nil
		}
		return nil, errx.WrapRedis(err)
	}
	scores := make([]model.EvaluationScore, 0, len(rows))
	for i, row := range rows {
		var s model.EvaluationScore
		if err := json.Unmarshal([]byte(row), &s); err != nil {
			return nil, fmt.Errorf("unmarshal score at index %d: %w", i, err)
		}
		scores = append(scores, s)
	}
	return scores, nil
}

// DeleteRun removes a run and cascades to its score rows.
func (r *RedisEvaluationRepository) DeleteRun(ctx context.Context, runID string) error {
	if err := r.rdb.Del(ctx, r.runKey(runID), r.scoresKey(runID)).Err(); err != nil {
		logx.Error().Err(err).Str("runID", runID).Msg("failed to delete evaluation run")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.EvaluationRepository = (*RedisEvaluationRepository)(nil)
