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

// ScoreConsistency compares an agent's current window against a historical
// window of its own messages. Both windows need MinWindowMessages entries
// for the overall score to be meaningful; with a thin historical window the
// propositions are still judged against the current evidence alone and the
// partial results preserved, but OverallScore stays nil.
func (s *Scorer) ScoreConsistency(ctx context.Context, agentID string, opts Options) (*Result, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, errx.NewValidation("agentID is required")
	}

	current, err := s.store.AgentMessages(ctx, agentID, opts.Window)
	if err != nil {
		return nil, err
	}
	historical, err := s.store.AgentMessages(ctx, agentID, opts.HistoryWindow)
	if err != nil {
		return nil, err
	}

	set, err := s.library.Load(model.DimensionConsistency, agentID, templateVars(opts, agentID))
	if err != nil {
		return nil, err
	}

	sampleSize := len(current) + len(historical)
	run, err := s.beginRun(ctx, agentID, "", model.DimensionConsistency, sampleSize, opts.IsBaseline)
	if err != nil {
		return nil, err
	}

	if len(current) == 0 {
		if err := s.finishRun(ctx, run, model.RunCompleted, nil, model.TokenUsage{}, nil); err != nil {
			return nil, err
		}
		return &Result{EvaluationRunID: run.ID, Dimension: model.DimensionConsistency}, nil
	}

	bothSufficient := len(current) >= MinWindowMessages && len(historical) >= MinWindowMessages

	evidence := buildConsistencyEvidence(current, historical)
	results, usage, judgeErr := s.judgeAll(ctx, set.Propositions, evidence, hardFlag(set, opts))
	if judgeErr != nil {
		if err := s.finishRun(ctx, run, model.RunFailed, nil, usage, nil); err != nil {
			logx.Error().Err(err).Str("runID", run.ID).Msg("failed to persist failed run")
		}
		return nil, judgeErr
	}

	var overall *float64
	if bothSufficient {
		overall = scoring.WeightedMean(results, set.Propositions)
	} else {
		logx.Warn().
			Str("agentID", agentID).
			Int("current", len(current)).
			Int("historical", len(historical)).
			Msg("consistency windows too thin; withholding overall score")
	}

	if err := s.finishRun(ctx, run, model.RunCompleted, overall, usage, results); err != nil {
		return nil, err
	}

	return &Result{
		EvaluationRunID:   run.ID,
		Dimension:         model.DimensionConsistency,
		OverallScore:      overall,
		PropositionScores: results,
		SampleSize:        sampleSize,
		TokenUsage:        usage,
	}, nil
}

// buildConsistencyEvidence labels the two windows so the judge can compare
// them. An empty historical section is stated explicitly rather than omitted.
func buildConsistencyEvidence(current, historical []model.Message) []string {
	evidence := []string{"[historical window]"}
	if len(historical) == 0 {
		evidence = append(evidence, "(no messages)")
	} else {
		evidence = append(evidence, conversation.EvidenceLines(historical)...)
	}
	evidence = append(evidence, "[current window]")
	evidence = append(evidence, conversation.EvidenceLines(current)...)
	return evidence
}
