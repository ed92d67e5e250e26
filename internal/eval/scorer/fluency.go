package scorer

import (
	"context"
	"strings"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/conversation"
	"github.com/ensemble-chat/server/internal/eval/model"
	"github.com/ensemble-chat/server/internal/eval/scoring"
	"github.com/ensemble-chat/server/internal/eval/textstat"
	logx "github.com/ensemble-chat/server/pkg/logger"
)

// ScoreFluency judges language quality propositions over the agent's recent
// messages and attaches n-gram repetition diagnostics computed locally, so
// the caller can see mechanical repetition even when the judge is lenient.
func (s *Scorer) ScoreFluency(ctx context.Context, agentID string, opts Options) (*Result, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, errx.NewValidation("agentID is required")
	}

	msgs, err := s.store.AgentMessages(ctx, agentID, opts.Window)
	if err != nil {
		return nil, err
	}

	set, err := s.library.Load(model.DimensionFluency, agentID, templateVars(opts, agentID))
	if err != nil {
		return nil, err
	}

	run, err := s.beginRun(ctx, agentID, "", model.DimensionFluency, len(msgs), opts.IsBaseline)
	if err != nil {
		return nil, err
	}

	if len(msgs) == 0 {
		if err := s.finishRun(ctx, run, model.RunCompleted, nil, model.TokenUsage{}, nil); err != nil {
			return nil, err
		}
		return &Result{EvaluationRunID: run.ID, Dimension: model.DimensionFluency}, nil
	}

	texts := conversation.Texts(msgs)
	stats := textstat.Repetition(texts)

	results, usage, judgeErr := s.judgeAll(ctx, set.Propositions, conversation.EvidenceLines(msgs), hardFlag(set, opts))
	if judgeErr != nil {
		if err := s.finishRun(ctx, run, model.RunFailed, nil, usage, nil); err != nil {
			logx.Error().Err(err).Str("runID", run.ID).Msg("failed to persist failed run")
		}
		return nil, judgeErr
	}

	overall := scoring.WeightedMean(results, set.Propositions)
	if err := s.finishRun(ctx, run, model.RunCompleted, overall, usage, results); err != nil {
		return nil, err
	}

	logx.Info().
		Str("agentID", agentID).
		Str("runID", run.ID).
		Float64("trigramRate", stats.TrigramRepetitionRate()).
		Float64("fivegramRate", stats.FivegramRepetitionRate()).
		Msg("fluency scored")

	return &Result{
		EvaluationRunID:   run.ID,
		Dimension:         model.DimensionFluency,
		OverallScore:      overall,
		PropositionScores: results,
		SampleSize:        len(msgs),
		TokenUsage:        usage,
		Repetition:        &stats,
	}, nil
}
