// Package harness runs the full evaluation suite across a roster of agents,
// typically in CI with the deterministic mock judge, and renders the outcome
// as a pull-request comment.
package harness

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/baseline"
	"github.com/ensemble-chat/server/internal/eval/model"
	"github.com/ensemble-chat/server/internal/eval/scorer"
	"github.com/ensemble-chat/server/internal/eval/scoring"
	logx "github.com/ensemble-chat/server/pkg/logger"
)

// DefaultConcurrency caps how many agents are evaluated at once. Each agent
// already fans out judge calls internally, so this stays small.
const DefaultConcurrency = 4

// AllAgents is the roster wildcard accepted in Config.Agents.
const AllAgents = "all"

// Config describes one harness invocation.
type Config struct {
	// Agents to evaluate; the single entry "all" expands to Roster.
	Agents []string
	// Roster is the full set of known agents, used by the wildcard.
	Roster []string
	// ChannelID feeds the channel-scoped convergence and ideas-quantity
	// dimensions. Empty skips both.
	ChannelID string
	// Dimensions restricts the run to a subset; empty runs every scorer
	// dimension.
	Dimensions []model.Dimension
	// PassThreshold is the minimum overall score for an agent to pass.
	PassThreshold float64
	// RegressionDelta is the allowed drop against the golden baseline.
	RegressionDelta float64
	// GoldenRoot is the golden baseline directory. Empty disables comparison.
	GoldenRoot string
	// Concurrency caps parallel agent evaluations; 0 means DefaultConcurrency.
	Concurrency int
}

// AgentReport is one agent's suite outcome. BaselineDelta is current minus
// golden per dimension scored on both sides; only set when a golden baseline
// exists.
type AgentReport struct {
	AgentID       string                      `json:"agent_id"`
	Dimensions    map[model.Dimension]float64 `json:"dimensions"`
	IdeaCount     int                         `json:"idea_count"`
	Overall       *float64                    `json:"overall"`
	Passed        bool                        `json:"passed"`
	Regressions   []model.Regression          `json:"regressions,omitempty"`
	BaselineDelta map[model.Dimension]float64 `json:"baseline_delta,omitempty"`
	HasGolden     bool                        `json:"has_golden"`
	TokenUsage    model.TokenUsage            `json:"token_usage"`
	Err           error                       `json:"-"`
	ErrorMessage  string                      `json:"error,omitempty"`
}

// Summary aggregates the run. Passed plus Failed always equals Total, and
// FailedAgents lists exactly the Failed agents; an errored agent counts as
// failed.
type Summary struct {
	Total        int      `json:"total"`
	Passed       int      `json:"passed"`
	Failed       int      `json:"failed"`
	FailedAgents []string `json:"failed_agents"`
}

// Report is the full harness output.
type Report struct {
	Agents     []AgentReport    `json:"agents"`
	Summary    Summary          `json:"summary"`
	TokenUsage model.TokenUsage `json:"token_usage"`
	StartedAt  time.Time        `json:"started_at"`
	Duration   time.Duration    `json:"duration_ns"`
}

// Runner drives the suite.
type Runner struct {
	scorer baseline.DimensionScorer
}

// NewRunner wires the harness on top of the dimension scorers.
func NewRunner(ds baseline.DimensionScorer) *Runner {
	return &Runner{scorer: ds}
}

// Run evaluates every requested agent and aggregates the results. Individual
// agent failures are captured in their report; only an empty agent list is
// an error.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Report, error) {
	agents, err := expandAgents(cfg)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	reports := make([]AgentReport, len(agents))

	limit := cfg.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	var mu sync.Mutex

	for i, agentID := range agents {
		g.Go(func() error {
			rep := r.evaluateAgent(gctx, agentID, cfg)
			mu.Lock()
			reports[i] = rep
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{
		Agents:    reports,
		StartedAt: started.UTC(),
		Duration:  time.Since(started),
	}
	for _, rep := range reports {
		report.Summary.Total++
		if rep.Passed {
			report.Summary.Passed++
		} else {
			report.Summary.Failed++
			report.Summary.FailedAgents = append(report.Summary.FailedAgents, rep.AgentID)
		}
		report.TokenUsage.Add(rep.TokenUsage)
	}

	logx.Info().
		Int("total", report.Summary.Total).
		Int("passed", report.Summary.Passed).
		Int("failed", report.Summary.Failed).
		Dur("duration", report.Duration).
		Msg("harness run complete")

	return report, nil
}

// evaluateAgent runs every dimension for one agent. A scorer error fails the
// agent without aborting the rest of the run.
func (r *Runner) evaluateAgent(ctx context.Context, agentID string, cfg Config) AgentReport {
	rep := AgentReport{
		AgentID:    agentID,
		Dimensions: make(map[model.Dimension]float64),
	}

	opts := scorer.Options{}
	record := func(res *scorer.Result, err error) bool {
		if err != nil {
			rep.Err = err
			return false
		}
		rep.TokenUsage.Add(res.TokenUsage)
		if res.OverallScore != nil {
			rep.Dimensions[res.Dimension] = *res.OverallScore
		}
		if res.Dimension == model.DimensionIdeas {
			rep.IdeaCount = res.IdeaCount
		}
		return true
	}

	dims := cfg.Dimensions
	if len(dims) == 0 {
		dims = model.ScorerDimensions
	}

	ok := true
	for _, dim := range dims {
		switch dim {
		case model.DimensionAdherence:
			ok = record(r.scorer.ScoreAdherence(ctx, agentID, opts))
		case model.DimensionConsistency:
			ok = record(r.scorer.ScoreConsistency(ctx, agentID, opts))
		case model.DimensionFluency:
			ok = record(r.scorer.ScoreFluency(ctx, agentID, opts))
		case model.DimensionIdeas:
			if cfg.ChannelID != "" {
				ok = record(r.scorer.ScoreIdeas(ctx, cfg.ChannelID, opts))
			}
		case model.DimensionConvergence:
			if cfg.ChannelID != "" {
				ok = record(r.scorer.ScoreConvergence(ctx, cfg.ChannelID, opts))
			}
		default:
			rep.Err = errx.NewValidation("unknown dimension: %s", string(dim))
			ok = false
		}
		if !ok {
			break
		}
	}
	if !ok {
		rep.ErrorMessage = rep.Err.Error()
		logx.Error().Err(rep.Err).Str("agentID", agentID).Msg("agent evaluation failed")
		return rep
	}

	scores := make([]*float64, 0, len(rep.Dimensions))
	for _, dim := range model.ScorerDimensions {
		if v, present := rep.Dimensions[dim]; present {
			scores = append(scores, &v)
		}
	}
	rep.Overall = scoring.EqualMean(scores)
	rep.Passed = rep.Overall != nil && *rep.Overall >= cfg.PassThreshold

	if cfg.GoldenRoot != "" {
		golden, err := baseline.LoadGolden(cfg.GoldenRoot, agentID)
		switch {
		case err == nil:
			rep.HasGolden = true
			rep.BaselineDelta = baselineDeltas(golden.Dimensions, rep.Dimensions)
			rep.Regressions = baseline.DetectRegressions(golden.Dimensions, rep.Dimensions, cfg.RegressionDelta)
		case errx.IsNotFound(err):
			// no golden for this agent; nothing to compare
		default:
			rep.Err = err
			rep.ErrorMessage = err.Error()
			rep.Passed = false
		}
	}

	return rep
}

// baselineDeltas computes current minus golden for every dimension scored on
// both sides.
func baselineDeltas(golden, current map[model.Dimension]float64) map[model.Dimension]float64 {
	out := make(map[model.Dimension]float64)
	for dim, base := range golden {
		if cur, ok := current[dim]; ok {
			out[dim] = cur - base
		}
	}
	return out
}

// expandAgents resolves the wildcard and rejects empty requests.
func expandAgents(cfg Config) ([]string, error) {
	agents := cfg.Agents
	if len(agents) == 1 && strings.EqualFold(agents[0], AllAgents) {
		agents = cfg.Roster
	}
	if len(agents) == 0 {
		return nil, errx.NewValidation("no agents to evaluate")
	}
	out := make([]string, len(agents))
	copy(out, agents)
	sort.Strings(out)
	return out, nil
}
