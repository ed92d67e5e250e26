package scorer

import (
	"context"
	"strings"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/conversation"
	"github.com/ensemble-chat/server/internal/eval/model"
	logx "github.com/ensemble-chat/server/pkg/logger"
)

// ideaMarkers are proposal openers scanned for during extraction. Matching is
// case-insensitive against each sentence of a message.
var ideaMarkers = []string{
	"we could",
	"we should",
	"what if",
	"let's",
	"how about",
	"i suggest",
	"i propose",
	"maybe we",
	"another option",
}

// ScoreIdeas counts distinct proposals pitched in a channel's recent
// messages. The count is what callers act on; the ideas_quantity
// propositions are still judged and persisted so the reasoning is
// auditable, but the dimension reports no overall score.
func (s *Scorer) ScoreIdeas(ctx context.Context, channelID string, opts Options) (*Result, error) {
	if strings.TrimSpace(channelID) == "" {
		return nil, errx.NewValidation("channelID is required")
	}

	msgs, err := s.store.ChannelMessages(ctx, channelID, opts.Window)
	if err != nil {
		return nil, err
	}

	set, err := s.library.Load(model.DimensionIdeas, "", templateVars(opts, ""))
	if err != nil {
		return nil, err
	}

	run, err := s.beginRun(ctx, "", channelID, model.DimensionIdeas, len(msgs), opts.IsBaseline)
	if err != nil {
		return nil, err
	}

	if len(msgs) == 0 {
		if err := s.finishRun(ctx, run, model.RunCompleted, nil, model.TokenUsage{}, nil); err != nil {
			return nil, err
		}
		return &Result{EvaluationRunID: run.ID, Dimension: model.DimensionIdeas}, nil
	}

	ideas := extractIdeas(conversation.Texts(msgs))

	results, usage, judgeErr := s.judgeAll(ctx, set.Propositions, conversation.EvidenceLines(msgs), hardFlag(set, opts))
	if judgeErr != nil {
		if err := s.finishRun(ctx, run, model.RunFailed, nil, usage, nil); err != nil {
			logx.Error().Err(err).Str("runID", run.ID).Msg("failed to persist failed run")
		}
		return nil, judgeErr
	}

	// No overall score for this dimension: the deliverable is the count.
	if err := s.finishRun(ctx, run, model.RunCompleted, nil, usage, results); err != nil {
		return nil, err
	}

	logx.Info().
		Str("channelID", channelID).
		Str("runID", run.ID).
		Int("ideas", len(ideas)).
		Msg("ideas counted")

	return &Result{
		EvaluationRunID:   run.ID,
		Dimension:         model.DimensionIdeas,
		PropositionScores: results,
		SampleSize:        len(msgs),
		TokenUsage:        usage,
		Ideas:             ideas,
		IdeaCount:         len(ideas),
	}, nil
}

// extractIdeas returns the sentences that open a proposal, deduplicated on
// their lowercased form so a repeated pitch counts once.
func extractIdeas(texts []string) []string {
	seen := make(map[string]struct{})
	var ideas []string
	for _, text := range texts {
		for _, sentence := range splitSentences(text) {
			lower := strings.ToLower(sentence)
			if !hasIdeaMarker(lower) {
				continue
			}
			if _, dup := seen[lower]; dup {
				continue
			}
			seen[lower] = struct{}{}
			ideas = append(ideas, sentence)
		}
	}
	return ideas
}

func hasIdeaMarker(lower string) bool {
	for _, m := range ideaMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
