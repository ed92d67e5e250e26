// Package judge wraps the LLM that scores propositions against conversation
// evidence. The live client and the deterministic mock implement the same
// interface; scorers never branch on which one they were given.
package judge

import (
	"context"

	"github.com/ensemble-chat/server/internal/eval/model"
)

// Verdict is one judge call's output. Score is the raw judge score in
// [0, model.MaxScore], before inversion or hard-mode adjustment.
type Verdict struct {
	Score     float64
	Reasoning string
	Usage     model.TokenUsage
}

// Judge scores a single claim against evidence messages. Implementations
// must bound each call with their own timeout; a hang surfaces as an error
// the scorer handles by dropping the proposition.
type Judge interface {
	Judge(ctx context.Context, claim string, evidence []string) (*Verdict, error)
}

// Editor rewrites a candidate message guided by the recommendations of the
// propositions it failed. Used by the gate's direct-correction stage.
type Editor interface {
	Rewrite(ctx context.Context, text string, guidance []string) (string, model.TokenUsage, error)
}
