// Package gate decides whether a drafted agent message may be posted. A
// failing candidate walks a staged correction pipeline (regenerate, then
// directly edit) before the gate either releases a corrected text, releases
// the last candidate under continue-on-failure, or blocks the action
// entirely. Every attempt leaves one correction-log row.
package gate

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/judge"
	"github.com/ensemble-chat/server/internal/eval/model"
	"github.com/ensemble-chat/server/internal/eval/scorer"
	"github.com/ensemble-chat/server/internal/eval/textstat"
	logx "github.com/ensemble-chat/server/pkg/logger"
)

// ================ Constants ================

const (
	// historyLimit bounds the channel context shown to the judge per check.
	historyLimit = 12
	// similarityLimit bounds how far back the self-similarity gate looks.
	similarityLimit = 20
	// minActionsLookback is the window the minimum-required-actions override
	// counts passed actions over.
	minActionsLookback = 24 * time.Hour
)

// ================ Interfaces ================

// CandidateScorer judges one drafted message against a dimension's criteria.
// Satisfied by scorer.Scorer.
type CandidateScorer interface {
	ScoreCandidate(ctx context.Context, agentID string, dim model.Dimension, candidate string, history []model.Message, opts scorer.Options) (*scorer.CandidateScore, error)
}

// Regenerator asks the upstream agent for a fresh reply given guidance about
// what was wrong with the last one. Nil disables the regeneration stage.
type Regenerator interface {
	Regenerate(ctx context.Context, agentID, channelID string, guidance []string) (string, model.TokenUsage, error)
}

// ================ Gate ================

// Gate evaluates candidate actions against the agent's resolved policy.
type Gate struct {
	scorer      CandidateScorer
	editor      judge.Editor
	regenerator Regenerator
	store       model.ConversationStore
	configs     model.ConfigRepository
	logs        model.CorrectionLogRepository
}

// New wires the gate. regenerator may be nil; the regeneration stage is then
// skipped even when the policy enables it.
func New(cs CandidateScorer, editor judge.Editor, regenerator Regenerator, store model.ConversationStore, configs model.ConfigRepository, logs model.CorrectionLogRepository) *Gate {
	return &Gate{
		scorer:      cs,
		editor:      editor,
		regenerator: regenerator,
		store:       store,
		configs:     configs,
		logs:        logs,
	}
}

// Request is one candidate action to gate.
type Request struct {
	AgentID   string
	ChannelID string
	Text      string
}

// Decision is the gate's verdict on a candidate. Passed is false only when
// the attempts were exhausted and the last candidate was released anyway,
// either under continue-on-failure or the minimum-required-actions override.
type Decision struct {
	FinalText  string
	Stage      model.CorrectionStage
	Passed     bool
	Attempts   int
	Checks     []model.DimensionCheck
	TokenUsage model.TokenUsage
}

// Check runs the candidate through the enabled checks and, on failure, the
// staged correction pipeline. It returns errx.ErrGateBlocked when the
// attempts are exhausted and the policy forbids posting the original.
func (g *Gate) Check(ctx context.Context, req Request) (*Decision, error) {
	if strings.TrimSpace(req.AgentID) == "" || strings.TrimSpace(req.Text) == "" {
		return nil, errx.NewValidation("agentID and text are required")
	}

	cfg, err := g.resolveConfig(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}

	history, err := g.store.ChannelMessages(ctx, req.ChannelID, model.Window{Limit: historyLimit})
	if err != nil {
		return nil, err
	}
	var own []model.Message
	if cfg.Similarity.Enabled {
		own, err = g.store.AgentMessages(ctx, req.AgentID, model.Window{Limit: similarityLimit})
		if err != nil {
			return nil, err
		}
	}

	var total model.TokenUsage
	candidate := req.Text
	stage := model.StageOriginal
	attempt := 0

	for {
		attempt++
		started := time.Now()

		eval, err := g.evaluate(ctx, req.AgentID, candidate, history, own, cfg)
		if err != nil {
			return nil, err
		}
		total.Add(eval.usage)

		outcome := model.OutcomeFailed
		if eval.passed {
			outcome = model.OutcomePassed
		} else if attempt > cfg.Correction.MaxCorrectionAttempts {
			outcome = model.OutcomeExhausted
		}

		dec := &Decision{
			FinalText:  candidate,
			Stage:      stage,
			Passed:     eval.passed,
			Attempts:   attempt,
			Checks:     eval.checks,
			TokenUsage: total,
		}
		g.appendLog(ctx, req, dec, outcome, eval.simScore, eval.totalScore, eval.usage, time.Since(started).Milliseconds())

		if eval.passed {
			return dec, nil
		}
		if outcome == model.OutcomeExhausted {
			if cfg.Correction.ContinueOnFailure {
				logx.Warn().
					Str("agentID", req.AgentID).
					Int("attempts", attempt).
					Msg("corrections exhausted; releasing last candidate under continue-on-failure")
				return dec, nil
			}
			// Override the blocking decision only. The attempt was still
			// scored and logged like any other; silencing a quiet agent is
			// worse than letting a mediocre message through.
			if override, count := g.minActionsOverride(ctx, req.AgentID, cfg); override {
				logx.Warn().
					Str("agentID", req.AgentID).
					Int("recentActions", count).
					Int("required", cfg.Correction.MinimumRequiredQtyOfActions).
					Msg("corrections exhausted; block suppressed by minimum-required-actions override")
				return dec, nil
			}
			return nil, errx.ErrGateBlocked
		}

		next, nextStage, usage, err := g.correct(ctx, req, candidate, eval, cfg, attempt)
		total.Add(usage)
		if err != nil {
			logx.Error().Err(err).Str("agentID", req.AgentID).Msg("correction stage failed; keeping last candidate")
			continue
		}
		candidate, stage = next, nextStage
	}
}

// ================ Evaluation ================

type attemptEval struct {
	passed     bool
	checks     []model.DimensionCheck
	simScore   *float64
	totalScore *float64
	usage      model.TokenUsage
	failures   []string
}

// evaluate runs every enabled check against one candidate text.
func (g *Gate) evaluate(ctx context.Context, agentID, candidate string, history, own []model.Message, cfg model.ResolvedConfig) (*attemptEval, error) {
	eval := &attemptEval{passed: true}

	for _, gc := range []struct {
		dim   model.Dimension
		check model.GateCheck
	}{
		{model.DimensionAdherence, cfg.Adherence},
		{model.DimensionConsistency, cfg.Consistency},
		{model.DimensionFluency, cfg.Fluency},
		{model.DimensionSuitability, cfg.Suitability},
	} {
		if !gc.check.Enabled {
			continue
		}
		score, err := g.scorer.ScoreCandidate(ctx, agentID, gc.dim, candidate, history, scorer.Options{})
		if err != nil {
			return nil, err
		}
		eval.usage.Add(score.TokenUsage)

		passed := score.OverallScore != nil && *score.OverallScore >= gc.check.Threshold
		eval.checks = append(eval.checks, model.DimensionCheck{
			Dimension: gc.dim,
			Score:     score.OverallScore,
			Threshold: gc.check.Threshold,
			Passed:    passed,
		})
		if !passed {
			eval.passed = false
			eval.failures = append(eval.failures, failureGuidance(gc.dim, score))
		}
	}

	if n := len(eval.checks); n > 0 {
		var sum float64
		var scored int
		for _, c := range eval.checks {
			if c.Score != nil {
				sum += *c.Score
				scored++
			}
		}
		if scored > 0 {
			mean := sum / float64(scored)
			eval.totalScore = &mean
		}
	}

	if cfg.Similarity.Enabled && len(own) > 0 {
		sim := textstat.MaxSimilarity(candidate, messageTexts(own))
		eval.simScore = &sim
		if sim >= cfg.Similarity.Threshold {
			eval.passed = false
			eval.failures = append(eval.failures, "the reply repeats the agent's own recent messages almost verbatim; say something new")
		}
	}

	if cfg.Repetition.Enabled {
		stats := textstat.Repetition([]string{candidate})
		if rate := stats.TrigramRepetitionRate(); rate >= cfg.Repetition.Threshold {
			eval.passed = false
			eval.failures = append(eval.failures, "the reply repeats its own phrasing; vary the wording")
		}
	}

	return eval, nil
}

// correct produces the next candidate for a failed attempt. Regeneration is
// tried while attempts remain for both stages; the last attempt falls through
// to direct correction.
func (g *Gate) correct(ctx context.Context, req Request, candidate string, eval *attemptEval, cfg model.ResolvedConfig, attempt int) (string, model.CorrectionStage, model.TokenUsage, error) {
	remaining := cfg.Correction.MaxCorrectionAttempts - attempt + 1

	canRegenerate := cfg.Correction.EnableRegeneration && g.regenerator != nil
	canDirect := cfg.Correction.EnableDirectCorrection && g.editor != nil

	if canRegenerate && (remaining > 1 || !canDirect) {
		text, usage, err := g.regenerator.Regenerate(ctx, req.AgentID, req.ChannelID, eval.failures)
		return text, model.StageRegenerated, usage, err
	}
	if canDirect {
		text, usage, err := g.editor.Rewrite(ctx, candidate, eval.failures)
		return text, model.StageDirectCorrected, usage, err
	}
	// Neither stage available: re-judging the same text is pointless, but the
	// loop still terminates through the attempt bound.
	return candidate, model.StageOriginal, model.TokenUsage{}, nil
}

// ================ Helpers ================

func (g *Gate) resolveConfig(ctx context.Context, agentID string) (model.ResolvedConfig, error) {
	cfg, err := g.configs.Get(ctx, agentID)
	if err != nil {
		return model.ResolvedConfig{}, err
	}
	if cfg == nil {
		return model.DefaultResolvedConfig(), nil
	}
	return *cfg, nil
}

// minActionsOverride reports whether the agent is under its minimum recent
// action count. A repository failure disables the override rather than the
// gate.
func (g *Gate) minActionsOverride(ctx context.Context, agentID string, cfg model.ResolvedConfig) (bool, int) {
	min := cfg.Correction.MinimumRequiredQtyOfActions
	if min <= 0 {
		return false, 0
	}
	count, err := g.logs.CountPassedSince(ctx, agentID, time.Now().Add(-minActionsLookback))
	if err != nil {
		logx.Error().Err(err).Str("agentID", agentID).Msg("passed-action count failed; override skipped")
		return false, 0
	}
	return count < min, count
}

// appendLog writes one audit row. Log failures never change the decision.
func (g *Gate) appendLog(ctx context.Context, req Request, dec *Decision, outcome model.CorrectionOutcome, simScore, totalScore *float64, usage model.TokenUsage, durationMs int64) {
	row := &model.CorrectionLog{
		ID:              uuid.NewString(),
		AgentID:         req.AgentID,
		ChannelID:       req.ChannelID,
		OriginalText:    req.Text,
		FinalText:       dec.FinalText,
		Stage:           dec.Stage,
		AttemptNumber:   dec.Attempts,
		Outcome:         outcome,
		DimensionScores: dec.Checks,
		SimilarityScore: simScore,
		TotalScore:      totalScore,
		TokenUsage:      usage,
		DurationMs:      durationMs,
		CreatedAt:       time.Now().UTC(),
	}
	if err := g.logs.Append(ctx, row); err != nil {
		logx.Error().Err(err).Str("agentID", req.AgentID).Msg("correction log write failed")
	}
}

func failureGuidance(dim model.Dimension, score *scorer.CandidateScore) string {
	var b strings.Builder
	b.WriteString("the reply scores below the ")
	b.WriteString(string(dim))
	b.WriteString(" bar")
	for _, r := range score.PropositionScores {
		if r.Score >= model.MaxScore/2 {
			continue
		}
		b.WriteString("; ")
		b.WriteString(r.Reasoning)
		if rec := score.Recommendations[r.PropositionID]; rec != "" {
			b.WriteString(" (")
			b.WriteString(rec)
			b.WriteString(")")
		}
	}
	return b.String()
}

func messageTexts(msgs []model.Message) []string {
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Text
	}
	return texts
}
