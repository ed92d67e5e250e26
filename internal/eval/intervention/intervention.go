// Package intervention nudges agents that are drifting into sameness. Unlike
// the action gate it never blocks anything: it watches a channel, and when an
// intervention's preconditions hold it injects a nudge prompt for the agent's
// next turn. Every evaluation is logged, fired or not.
package intervention

import (
	"context"
	"hash/fnv"
	"strings"
	"time"

	"github.com/google/uuid"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/conversation"
	"github.com/ensemble-chat/server/internal/eval/model"
	"github.com/ensemble-chat/server/internal/eval/scorer"
	"github.com/ensemble-chat/server/internal/eval/textstat"
	logx "github.com/ensemble-chat/server/pkg/logger"
)

// ================ Constants ================

const (
	// channelWindowLimit bounds the channel sample each evaluation reads.
	channelWindowLimit = 40
	// overlapTextualThreshold is the deterministic vocabulary-overlap level
	// that makes the anti-convergence textual layer fire.
	overlapTextualThreshold = 0.5
	// minAuthorsForConvergence: one voice cannot converge with itself.
	minAuthorsForConvergence = 2
)

// ================ Interfaces ================

// ConvergenceScorer runs the judged channel-level convergence evaluation
// backing the propositional layer. Satisfied by scorer.Scorer.
type ConvergenceScorer interface {
	ScoreConvergence(ctx context.Context, channelID string, opts scorer.Options) (*scorer.Result, error)
}

// CustomCondition is a caller-supplied intervention. Each layer func may be
// nil, marking the layer not applicable. NudgeType selects the template.
type CustomCondition struct {
	Textual       func(agentMsgs, channelMsgs []model.Message) bool
	Functional    func(cfg model.ResolvedConfig) bool
	Propositional func(ctx context.Context, channelID string) (bool, model.TokenUsage, error)
	NudgeType     model.NudgeType
}

// ================ Engine ================

// Engine evaluates the configured interventions for one agent in priority
// order: anti-convergence, then variety, then any registered custom
// condition. The first one whose applicable layers all hold fires; the rest
// are skipped.
type Engine struct {
	store   model.ConversationStore
	scorer  ConvergenceScorer
	configs model.ConfigRepository
	logs    model.InterventionLogRepository
	nudges  string // nudge template root directory
	custom  *CustomCondition
}

// New wires the engine. nudgeRoot points at the nudge template directory.
func New(store model.ConversationStore, cs ConvergenceScorer, configs model.ConfigRepository, logs model.InterventionLogRepository, nudgeRoot string) *Engine {
	return &Engine{store: store, scorer: cs, configs: configs, logs: logs, nudges: nudgeRoot}
}

// WithCustom registers a custom intervention, evaluated after the built-ins.
func (e *Engine) WithCustom(c CustomCondition) *Engine {
	e.custom = &c
	return e
}

// Outcome reports one Evaluate call. NudgeText is empty unless Fired.
type Outcome struct {
	Fired      bool
	Type       model.InterventionType
	NudgeType  model.NudgeType
	NudgeText  string
	TokenUsage model.TokenUsage
}

// Evaluate checks every enabled intervention for the agent in the channel.
// Template problems abort before any judging so a broken book never produces
// a half-evaluated intervention.
func (e *Engine) Evaluate(ctx context.Context, agentID, channelID string) (*Outcome, error) {
	if strings.TrimSpace(agentID) == "" || strings.TrimSpace(channelID) == "" {
		return nil, errx.NewValidation("agentID and channelID are required")
	}

	book, err := LoadBook(e.nudges, agentID)
	if err != nil {
		return nil, err
	}

	cfg, err := e.resolveConfig(ctx, agentID)
	if err != nil {
		return nil, err
	}

	channelMsgs, err := e.store.ChannelMessages(ctx, channelID, model.Window{Limit: channelWindowLimit})
	if err != nil {
		return nil, err
	}
	agentMsgs, err := e.store.AgentMessages(ctx, agentID, model.Window{Limit: channelWindowLimit})
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{}

	if cfg.Intervention.AntiConvergenceEnabled {
		row, usage, err := e.evalAntiConvergence(ctx, agentID, channelID, agentMsgs, channelMsgs, cfg)
		outcome.TokenUsage.Add(usage)
		if err != nil {
			return nil, err
		}
		if row != nil {
			return e.fire(ctx, outcome, model.InterventionAntiConvergence, book, row), nil
		}
	}

	if cfg.Intervention.VarietyInterventionEnabled {
		if row := e.evalVariety(ctx, agentID, channelID, agentMsgs, cfg); row != nil {
			return e.fire(ctx, outcome, model.InterventionVariety, book, row), nil
		}
	}

	if e.custom != nil {
		row, usage, err := e.evalCustom(ctx, agentID, channelID, agentMsgs, channelMsgs, cfg)
		outcome.TokenUsage.Add(usage)
		if err != nil {
			return nil, err
		}
		if row != nil {
			return e.fire(ctx, outcome, model.InterventionCustom, book, row), nil
		}
	}

	return outcome, nil
}

// ================ Built-in interventions ================

// evalAntiConvergence runs all three layers. The propositional (judged)
// layer is the expensive one and only runs when the cheap layers held. A
// non-nil returned row means the intervention fires; the row is then
// completed and written by fire, so each evaluation logs exactly once.
func (e *Engine) evalAntiConvergence(ctx context.Context, agentID, channelID string, agentMsgs, channelMsgs []model.Message, cfg model.ResolvedConfig) (*model.InterventionLog, model.TokenUsage, error) {
	var usage model.TokenUsage
	row := e.newLog(agentID, channelID, model.InterventionAntiConvergence)

	byAuthor := conversation.ByAuthor(channelMsgs)
	functional := len(byAuthor) >= minAuthorsForConvergence && len(agentMsgs) > 0
	row.Functional = &functional
	if !functional {
		e.appendLog(ctx, row)
		return nil, usage, nil
	}

	textual := maxAgentOverlap(agentID, byAuthor) >= overlapTextualThreshold
	row.Textual = &textual
	if !textual {
		e.appendLog(ctx, row)
		return nil, usage, nil
	}

	res, err := e.scorer.ScoreConvergence(ctx, channelID, scorer.Options{Window: model.Window{Limit: channelWindowLimit}})
	if err != nil {
		e.appendLog(ctx, row)
		return nil, usage, err
	}
	usage = res.TokenUsage
	row.TokenUsage = usage

	// Convergence propositions are inverted: a low overall score means the
	// voices really are collapsing into one.
	propositional := res.OverallScore != nil && *res.OverallScore < cfg.Intervention.ConvergenceThreshold
	row.Propositional = &propositional
	if !propositional {
		e.appendLog(ctx, row)
		return nil, usage, nil
	}
	return row, usage, nil
}

// evalVariety has no propositional layer: repetition is measured locally.
func (e *Engine) evalVariety(ctx context.Context, agentID, channelID string, agentMsgs []model.Message, cfg model.ResolvedConfig) *model.InterventionLog {
	row := e.newLog(agentID, channelID, model.InterventionVariety)

	functional := len(agentMsgs) >= cfg.Intervention.VarietyMessageThreshold
	row.Functional = &functional
	if !functional {
		e.appendLog(ctx, row)
		return nil
	}

	stats := textstat.Repetition(conversation.Texts(agentMsgs))
	textual := stats.TrigramRepetitionRate() >= cfg.Repetition.Threshold
	row.Textual = &textual
	if !textual {
		e.appendLog(ctx, row)
		return nil
	}
	return row
}

func (e *Engine) evalCustom(ctx context.Context, agentID, channelID string, agentMsgs, channelMsgs []model.Message, cfg model.ResolvedConfig) (*model.InterventionLog, model.TokenUsage, error) {
	var usage model.TokenUsage
	row := e.newLog(agentID, channelID, model.InterventionCustom)

	if e.custom.Functional != nil {
		functional := e.custom.Functional(cfg)
		row.Functional = &functional
		if !functional {
			e.appendLog(ctx, row)
			return nil, usage, nil
		}
	}
	if e.custom.Textual != nil {
		textual := e.custom.Textual(agentMsgs, channelMsgs)
		row.Textual = &textual
		if !textual {
			e.appendLog(ctx, row)
			return nil, usage, nil
		}
	}
	if e.custom.Propositional != nil {
		propositional, u, err := e.custom.Propositional(ctx, channelID)
		usage = u
		row.TokenUsage = u
		if err != nil {
			e.appendLog(ctx, row)
			return nil, usage, err
		}
		row.Propositional = &propositional
		if !propositional {
			e.appendLog(ctx, row)
			return nil, usage, nil
		}
	}
	return row, usage, nil
}

// ================ Firing ================

// nudgePool maps each intervention type to the nudges that make sense for it.
var nudgePool = map[model.InterventionType][]model.NudgeType{
	model.InterventionAntiConvergence: {model.NudgeDevilsAdvocate, model.NudgeChangeSubject, model.NudgeChallengingQuestion},
	model.InterventionVariety:         {model.NudgeNewIdeas, model.NudgePersonalStory},
}

// fire completes the evaluation row with the rendered nudge and writes it,
// the single log row for a fired evaluation.
func (e *Engine) fire(ctx context.Context, outcome *Outcome, it model.InterventionType, book *Book, row *model.InterventionLog) *Outcome {
	nt := e.pickNudge(it, row.AgentID, row.ChannelID)
	outcome.Fired = true
	outcome.Type = it
	outcome.NudgeType = nt
	outcome.NudgeText = book.Render(nt, map[string]string{"agent_name": row.AgentID})

	logx.Info().
		Str("agentID", row.AgentID).
		Str("channelID", row.ChannelID).
		Str("intervention", string(it)).
		Str("nudge", string(nt)).
		Msg("intervention fired")

	row.Fired = true
	row.NudgeText = outcome.NudgeText
	e.appendLog(ctx, row)

	return outcome
}

// pickNudge selects deterministically within the pool so repeated fires on
// the same agent and channel agree, which keeps harness runs reproducible.
func (e *Engine) pickNudge(it model.InterventionType, agentID, channelID string) model.NudgeType {
	if it == model.InterventionCustom && e.custom != nil && e.custom.NudgeType != "" {
		return e.custom.NudgeType
	}
	pool := nudgePool[it]
	if len(pool) == 0 {
		pool = model.NudgeTypes
	}
	h := fnv.New32a()
	h.Write([]byte(agentID))
	h.Write([]byte("|"))
	h.Write([]byte(channelID))
	return pool[h.Sum32()%uint32(len(pool))]
}

// ================ Helpers ================

func (e *Engine) resolveConfig(ctx context.Context, agentID string) (model.ResolvedConfig, error) {
	cfg, err := e.configs.Get(ctx, agentID)
	if err != nil {
		return model.ResolvedConfig{}, err
	}
	if cfg == nil {
		return model.DefaultResolvedConfig(), nil
	}
	return *cfg, nil
}

func (e *Engine) newLog(agentID, channelID string, it model.InterventionType) *model.InterventionLog {
	return &model.InterventionLog{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		ChannelID: channelID,
		Type:      it,
		CreatedAt: time.Now().UTC(),
	}
}

// appendLog is best effort: a lost log row never blocks an intervention.
func (e *Engine) appendLog(ctx context.Context, row *model.InterventionLog) {
	if err := e.logs.Append(ctx, row); err != nil {
		logx.Error().Err(err).Str("agentID", row.AgentID).Msg("intervention log write failed")
	}
}

// maxAgentOverlap is the agent's highest vocabulary overlap with any other
// author in the channel.
func maxAgentOverlap(agentID string, byAuthor map[string][]string) float64 {
	own := byAuthor[agentID]
	var max float64
	for author, texts := range byAuthor {
		if author == agentID {
			continue
		}
		if o := textstat.VocabularyOverlap(own, texts); o > max {
			max = o
		}
	}
	return max
}
