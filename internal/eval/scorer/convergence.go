package scorer

import (
	"context"
	"sort"
	"strings"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/conversation"
	"github.com/ensemble-chat/server/internal/eval/model"
	"github.com/ensemble-chat/server/internal/eval/scoring"
	"github.com/ensemble-chat/server/internal/eval/textstat"
	logx "github.com/ensemble-chat/server/pkg/logger"
)

// ScoreConvergence is the one channel-scoped scorer: it judges whether the
// agents in a channel are drifting into one voice. Propositions for this
// dimension are typically inverted, so high raw similarity reads as a low
// score. Pairwise vocabulary overlap between authors rides along as a
// deterministic diagnostic.
func (s *Scorer) ScoreConvergence(ctx context.Context, channelID string, opts Options) (*Result, error) {
	if strings.TrimSpace(channelID) == "" {
		return nil, errx.NewValidation("channelID is required")
	}

	msgs, err := s.store.ChannelMessages(ctx, channelID, opts.Window)
	if err != nil {
		return nil, err
	}

	set, err := s.library.Load(model.DimensionConvergence, "", templateVars(opts, ""))
	if err != nil {
		return nil, err
	}

	run, err := s.beginRun(ctx, "", channelID, model.DimensionConvergence, len(msgs), opts.IsBaseline)
	if err != nil {
		return nil, err
	}

	if len(msgs) == 0 {
		if err := s.finishRun(ctx, run, model.RunCompleted, nil, model.TokenUsage{}, nil); err != nil {
			return nil, err
		}
		return &Result{EvaluationRunID: run.ID, Dimension: model.DimensionConvergence}, nil
	}

	pairs := pairOverlaps(conversation.ByAuthor(msgs))

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

	return &Result{
		EvaluationRunID:   run.ID,
		Dimension:         model.DimensionConvergence,
		OverallScore:      overall,
		PropositionScores: results,
		SampleSize:        len(msgs),
		TokenUsage:        usage,
		PairSimilarities:  pairs,
	}, nil
}

// pairOverlaps computes vocabulary overlap for every unordered author pair,
// sorted so output is stable for tests and logs.
func pairOverlaps(byAuthor map[string][]string) []PairSimilarity {
	authors := make([]string, 0, len(byAuthor))
	for a := range byAuthor {
		authors = append(authors, a)
	}
	sort.Strings(authors)

	var pairs []PairSimilarity
	for i := 0; i < len(authors); i++ {
		for j := i + 1; j < len(authors); j++ {
			pairs = append(pairs, PairSimilarity{
				AgentA:  authors[i],
				AgentB:  authors[j],
				Overlap: textstat.VocabularyOverlap(byAuthor[authors[i]], byAuthor[authors[j]]),
			})
		}
	}
	return pairs
}
