// Package cost aggregates judge spend from the pipeline's audit logs. Token
// counts are recorded on every correction and intervention row at write
// time; this package only sums and prices them, so a summary never triggers
// a model call.
package cost

import (
	"context"
	"strings"
	"time"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/model"
)

// Summary is the priced token usage for one query.
type Summary struct {
	AgentID       string           `json:"agent_id,omitempty"`
	From          time.Time        `json:"from"`
	To            time.Time        `json:"to"`
	Corrections   model.TokenUsage `json:"corrections"`
	Interventions model.TokenUsage `json:"interventions"`
	TotalTokens   int              `json:"total_tokens"`
	InputCost     float64          `json:"input_cost_usd"`
	OutputCost    float64          `json:"output_cost_usd"`
	TotalCost     float64          `json:"total_cost_usd"`
	Model         string           `json:"model"`
}

// Tracker prices logged token usage against the judge model's rates.
type Tracker struct {
	corrections   model.CorrectionLogRepository
	interventions model.InterventionLogRepository
	model         string
}

// NewTracker wires the tracker for one judge model's pricing.
func NewTracker(corrections model.CorrectionLogRepository, interventions model.InterventionLogRepository, judgeModel string) *Tracker {
	return &Tracker{corrections: corrections, interventions: interventions, model: judgeModel}
}

// Summarize totals everything the agent's logs recorded between from and to.
// A zero to means "until now". The logs are keyed per agent, so an agent is
// required; an empty ID would silently sum an empty key.
func (t *Tracker) Summarize(ctx context.Context, agentID string, from, to time.Time) (*Summary, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, errx.NewValidation("agentID is required")
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}

	s := &Summary{AgentID: agentID, From: from, To: to, Model: t.model}

	corr, err := t.corrections.ListByAgent(ctx, agentID, from, to)
	if err != nil {
		return nil, err
	}
	for _, row := range corr {
		s.Corrections.Add(row.TokenUsage)
	}

	intv, err := t.interventions.ListByAgent(ctx, agentID, from, to)
	if err != nil {
		return nil, err
	}
	for _, row := range intv {
		s.Interventions.Add(row.TokenUsage)
	}

	var total model.TokenUsage
	total.Add(s.Corrections)
	total.Add(s.Interventions)
	s.TotalTokens = total.Total()

	pricing := model.ResolvePricing(t.model)
	s.InputCost, s.OutputCost, s.TotalCost = model.ComputeCost(total, pricing)
	return s, nil
}
