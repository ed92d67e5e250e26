// Package scorer implements the dimension scorers: adherence, consistency,
// fluency, convergence and ideas-quantity. Every scorer samples its evidence
// window, fans judge calls out per proposition, aggregates through the
// shared scoring package and persists an EvaluationRun with its score rows.
package scorer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/judge"
	"github.com/ensemble-chat/server/internal/eval/model"
	"github.com/ensemble-chat/server/internal/eval/proposition"
	"github.com/ensemble-chat/server/internal/eval/scoring"
	"github.com/ensemble-chat/server/internal/eval/textstat"
	logx "github.com/ensemble-chat/server/pkg/logger"
)

// DefaultJudgeConcurrency caps the per-call judge fan-out so a wide
// proposition set cannot stampede the judge API.
const DefaultJudgeConcurrency = 8

// MinWindowMessages is the smallest sample the consistency scorer accepts
// per window before it withholds the overall score.
const MinWindowMessages = 3

const maxSnippetLen = 240

// Scorer runs dimension evaluations. All five dimensions share its judge
// fan-out and persistence plumbing.
type Scorer struct {
	library          *proposition.Library
	judge            judge.Judge
	store            model.ConversationStore
	runs             model.EvaluationRepository
	judgeConcurrency int
}

// New creates a Scorer. A non-positive concurrency falls back to the default.
func New(library *proposition.Library, j judge.Judge, store model.ConversationStore, runs model.EvaluationRepository, judgeConcurrency int) *Scorer {
	if judgeConcurrency <= 0 {
		judgeConcurrency = DefaultJudgeConcurrency
	}
	return &Scorer{
		library:          library,
		judge:            j,
		store:            store,
		runs:             runs,
		judgeConcurrency: judgeConcurrency,
	}
}

// Options tune a single scorer invocation.
type Options struct {
	// Window bounds the evidence sample. Zero means "everything stored".
	Window model.Window
	// HistoryWindow is the older comparison window for consistency.
	HistoryWindow model.Window
	// Hard overrides the proposition set's hard flag when non-nil.
	Hard *bool
	// TemplateVars feed the proposition library's substitution; agent_name
	// is filled automatically from the target when absent.
	TemplateVars map[string]string
	// IsBaseline marks the persisted run as a baseline capture.
	IsBaseline bool
}

// PairSimilarity is the lexical overlap between two agents' vocabularies in
// a channel window, diagnostic output of the convergence scorer.
type PairSimilarity struct {
	AgentA  string  `json:"agent_a"`
	AgentB  string  `json:"agent_b"`
	Overlap float64 `json:"overlap"`
}

// Result is the common scorer output shape. Dimension-specific extras are
// populated only by their scorer and ignored elsewhere.
type Result struct {
	EvaluationRunID   string
	Dimension         model.Dimension
	OverallScore      *float64
	PropositionScores []model.PropositionResult
	SampleSize        int
	TokenUsage        model.TokenUsage

	// Fluency diagnostics; not mixed into OverallScore.
	Repetition *textstat.RepetitionStats
	// Convergence diagnostics.
	PairSimilarities []PairSimilarity
	// Ideas-quantity output. IdeaCount is the dimension's real product;
	// OverallScore stays nil for that run.
	Ideas     []string
	IdeaCount int
}

// ================ shared engine ================

// judgeAll fans one judge call per proposition out concurrently and joins
// the results. A failed call drops its proposition from the output; only
// the "every proposition failed" case is an error.
func (s *Scorer) judgeAll(ctx context.Context, props []model.Proposition, evidence []string, hard bool) ([]model.PropositionResult, model.TokenUsage, error) {
	results := make([]*model.PropositionResult, len(props))
	usages := make([]model.TokenUsage, len(props))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.judgeConcurrency)

	for i, p := range props {
		g.Go(func() error {
			verdict, err := s.judge.Judge(gctx, p.Claim, evidence)
			if err != nil {
				logx.Error().Err(err).Str("propositionID", p.ID).Msg("judge failed; dropping proposition")
				return nil
			}
			usages[i] = verdict.Usage
			results[i] = &model.PropositionResult{
				PropositionID:  p.ID,
				Score:          scoring.Adjust(verdict.Score, p.Inverted, hard),
				Reasoning:      verdict.Reasoning,
				ContextSnippet: snippet(evidence),
			}
			return nil
		})
	}
	// Workers never return errors; Wait is just the join point.
	_ = g.Wait()

	var usage model.TokenUsage
	collected := make([]model.PropositionResult, 0, len(props))
	for i := range props {
		usage.Add(usages[i])
		if results[i] != nil {
			collected = append(collected, *results[i])
		}
	}

	if len(collected) == 0 && len(props) > 0 {
		return nil, usage, errx.WrapJudge(fmt.Errorf("all %d proposition judgements failed", len(props)))
	}
	return collected, usage, nil
}

// snippet keeps a short evidence excerpt for the persisted score rows.
func snippet(evidence []string) string {
	joined := strings.Join(evidence, " | ")
	if len(joined) > maxSnippetLen {
		joined = joined[:maxSnippetLen]
	}
	return joined
}

// ================ run persistence ================

func (s *Scorer) beginRun(ctx context.Context, agentID, channelID string, dim model.Dimension, sampleSize int, isBaseline bool) (*model.EvaluationRun, error) {
	run := &model.EvaluationRun{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		ChannelID:  channelID,
		Status:     model.RunRunning,
		Dimensions: []model.Dimension{dim},
		SampleSize: sampleSize,
		IsBaseline: isBaseline,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Scorer) finishRun(ctx context.Context, run *model.EvaluationRun, status model.RunStatus, overall *float64, usage model.TokenUsage, results []model.PropositionResult) error {
	now := time.Now().UTC()
	run.Status = status
	run.OverallScore = overall
	run.TokenUsage = usage
	run.CompletedAt = &now

	if len(results) > 0 {
		scores := make([]model.EvaluationScore, 0, len(results))
		for _, r := range results {
			scores = append(scores, model.EvaluationScore{
				EvaluationRunID: run.ID,
				Dimension:       run.Dimensions[0],
				PropositionID:   r.PropositionID,
				Score:           r.Score,
				Reasoning:       r.Reasoning,
				ContextSnippet:  r.ContextSnippet,
			})
		}
		if err := s.runs.AppendScores(ctx, run.ID, scores); err != nil {
			return err
		}
	}
	return s.runs.FinishRun(ctx, run)
}

// hardFlag resolves the effective hard mode for a set given the request
// override.
func hardFlag(set *model.PropositionSet, opts Options) bool {
	if opts.Hard != nil {
		return *opts.Hard
	}
	return set.Hard
}

// templateVars fills agent_name when the caller did not.
func templateVars(opts Options, agentID string) map[string]string {
	vars := make(map[string]string, len(opts.TemplateVars)+1)
	for k, v := range opts.TemplateVars {
		vars[k] = v
	}
	if _, ok := vars["agent_name"]; !ok && agentID != "" {
		vars["agent_name"] = agentID
	}
	return vars
}
