package scorer

import (
	"context"
	"strings"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/conversation"
	"github.com/ensemble-chat/server/internal/eval/model"
	"github.com/ensemble-chat/server/internal/eval/scoring"
	logx "github.com/ensemble-chat/server/pkg/logger"
)

// ScoreAdherence evaluates how faithfully an agent's recent messages follow
// its persona propositions.
func (s *Scorer) ScoreAdherence(ctx context.Context, agentID string, opts Options) (*Result, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, errx.NewValidation("agentID is required")
	}

	msgs, err := s.store.AgentMessages(ctx, agentID, opts.Window)
	if err != nil {
		return nil, err
	}

	set, err := s.library.Load(model.DimensionAdherence, agentID, templateVars(opts, agentID))
	if err != nil {
		return nil, err
	}

	run, err := s.beginRun(ctx, agentID, "", model.DimensionAdherence, len(msgs), opts.IsBaseline)
	if err != nil {
		return nil, err
	}

	if len(msgs) == 0 {
		// Insufficient data is a well-formed result, not a failure.
		if err := s.finishRun(ctx, run, model.RunCompleted, nil, model.TokenUsage{}, nil); err != nil {
			return nil, err
		}
		return &Result{EvaluationRunID: run.ID, Dimension: model.DimensionAdherence}, nil
	}

	evidence := conversation.EvidenceLines(msgs)
	results, usage, judgeErr := s.judgeAll(ctx, set.Propositions, evidence, hardFlag(set, opts))
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
		Int("sampleSize", len(msgs)).
		Msg("adherence scored")

	return &Result{
		EvaluationRunID:   run.ID,
		Dimension:         model.DimensionAdherence,
		OverallScore:      overall,
		PropositionScores: results,
		SampleSize:        len(msgs),
		TokenUsage:        usage,
	}, nil
}
