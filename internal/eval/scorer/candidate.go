package scorer

import (
	"context"
	"strings"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/conversation"
	"github.com/ensemble-chat/server/internal/eval/model"
	"github.com/ensemble-chat/server/internal/eval/scoring"
)

// CandidateScore is a pre-send judgement of a single drafted message. Unlike
// the window scorers it persists nothing; the action gate owns the audit
// trail for candidate checks.
type CandidateScore struct {
	Dimension         model.Dimension
	OverallScore      *float64
	PropositionScores []model.PropositionResult
	// Recommendations maps proposition IDs to their author-supplied
	// improvement hints, so correction prompts can quote them for the
	// propositions that scored low.
	Recommendations map[string]string
	TokenUsage      model.TokenUsage
}

// ScoreCandidate judges a drafted message against one dimension's
// propositions, with the recent channel history as surrounding evidence.
func (s *Scorer) ScoreCandidate(ctx context.Context, agentID string, dim model.Dimension, candidate string, history []model.Message, opts Options) (*CandidateScore, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, errx.NewValidation("agentID is required")
	}
	if strings.TrimSpace(candidate) == "" {
		return nil, errx.NewValidation("candidate text is required")
	}

	set, err := s.library.Load(dim, agentID, templateVars(opts, agentID))
	if err != nil {
		return nil, err
	}

	evidence := make([]string, 0, len(history)+2)
	if len(history) > 0 {
		evidence = append(evidence, conversation.EvidenceLines(history)...)
	}
	evidence = append(evidence, "[candidate reply]", agentID+": "+candidate)

	results, usage, err := s.judgeAll(ctx, set.Propositions, evidence, hardFlag(set, opts))
	if err != nil {
		return nil, err
	}

	recs := make(map[string]string, len(set.Propositions))
	for _, p := range set.Propositions {
		if p.Recommendations != "" {
			recs[p.ID] = p.Recommendations
		}
	}

	return &CandidateScore{
		Dimension:         dim,
		OverallScore:      scoring.WeightedMean(results, set.Propositions),
		PropositionScores: results,
		Recommendations:   recs,
		TokenUsage:        usage,
	}, nil
}
