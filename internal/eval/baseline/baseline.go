// Package baseline captures per-agent score snapshots and compares later
// runs against them. Two kinds of reference exist: dynamic baselines captured
// from live scoring and stored in Redis, and golden baselines curated as
// YAML files in the repository and read-only at evaluation time.
package baseline

import (
	"context"
	"sort"
	"strings"
	"time"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/model"
	"github.com/ensemble-chat/server/internal/eval/scorer"
	logx "github.com/ensemble-chat/server/pkg/logger"
)

// DimensionScorer is the scoring surface baseline capture drives. Satisfied
// by scorer.Scorer.
type DimensionScorer interface {
	ScoreAdherence(ctx context.Context, agentID string, opts scorer.Options) (*scorer.Result, error)
	ScoreConsistency(ctx context.Context, agentID string, opts scorer.Options) (*scorer.Result, error)
	ScoreFluency(ctx context.Context, agentID string, opts scorer.Options) (*scorer.Result, error)
	ScoreConvergence(ctx context.Context, channelID string, opts scorer.Options) (*scorer.Result, error)
	ScoreIdeas(ctx context.Context, channelID string, opts scorer.Options) (*scorer.Result, error)
}

// Manager captures and serves dynamic baselines.
type Manager struct {
	scorer DimensionScorer
	repo   model.BaselineRepository
}

// NewManager wires the baseline manager.
func NewManager(ds DimensionScorer, repo model.BaselineRepository) *Manager {
	return &Manager{scorer: ds, repo: repo}
}

// Capture runs the requested dimensions for the agent, marks the runs as
// baseline runs, and stores the snapshot. An empty dims slice captures every
// scorer dimension. channelID feeds the channel-scoped convergence and
// ideas-quantity dimensions; leave it empty to skip those. Dimensions
// without an overall score (thin windows, ideas) are omitted from the
// snapshot rather than recorded as zero.
func (m *Manager) Capture(ctx context.Context, agentID, channelID string, dims []model.Dimension) (*model.Baseline, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, errx.NewValidation("agentID is required")
	}

	opts := scorer.Options{IsBaseline: true}
	b := &model.Baseline{
		AgentID:    agentID,
		Scores:     make(map[model.Dimension]float64),
		CapturedAt: time.Now().UTC(),
	}

	record := func(res *scorer.Result, err error) error {
		if err != nil {
			return err
		}
		b.EvaluationRunIDs = append(b.EvaluationRunIDs, res.EvaluationRunID)
		if res.OverallScore != nil {
			b.Scores[res.Dimension] = *res.OverallScore
		}
		return nil
	}

	for _, dim := range resolveDimensions(dims) {
		var err error
		switch dim {
		case model.DimensionAdherence:
			err = record(m.scorer.ScoreAdherence(ctx, agentID, opts))
		case model.DimensionConsistency:
			err = record(m.scorer.ScoreConsistency(ctx, agentID, opts))
		case model.DimensionFluency:
			err = record(m.scorer.ScoreFluency(ctx, agentID, opts))
		case model.DimensionIdeas:
			if channelID != "" {
				err = record(m.scorer.ScoreIdeas(ctx, channelID, opts))
			}
		case model.DimensionConvergence:
			if channelID != "" {
				err = record(m.scorer.ScoreConvergence(ctx, channelID, opts))
			}
		default:
			return nil, errx.NewValidation("unknown dimension: %s", string(dim))
		}
		if err != nil {
			return nil, err
		}
	}

	if err := m.repo.Save(ctx, b); err != nil {
		return nil, err
	}

	logx.Info().
		Str("agentID", agentID).
		Int("dimensions", len(b.Scores)).
		Int("runs", len(b.EvaluationRunIDs)).
		Msg("baseline captured")

	return b, nil
}

// resolveDimensions defaults an empty request to every scorer dimension.
func resolveDimensions(dims []model.Dimension) []model.Dimension {
	if len(dims) == 0 {
		return model.ScorerDimensions
	}
	return dims
}

// Get returns the stored baseline for an agent.
func (m *Manager) Get(ctx context.Context, agentID string) (*model.Baseline, error) {
	return m.repo.Get(ctx, agentID)
}

// List returns every stored baseline.
func (m *Manager) List(ctx context.Context) ([]model.Baseline, error) {
	return m.repo.List(ctx)
}

// DetectRegressions flags every dimension whose current score fell more than
// delta below the baseline. Dimensions absent from either side are skipped:
// a newly scored dimension is not a regression, and neither is a retired
// one. Pure function, no I/O.
func DetectRegressions(baseline, current map[model.Dimension]float64, delta float64) []model.Regression {
	var out []model.Regression
	for dim, base := range baseline {
		cur, ok := current[dim]
		if !ok {
			continue
		}
		if d := cur - base; d < -delta {
			out = append(out, model.Regression{
				Dimension: dim,
				Baseline:  base,
				Current:   cur,
				Delta:     d,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dimension < out[j].Dimension })
	return out
}
