package model

import (
	"context"
	"time"
)

// ConversationStore is the read side of the chat application's message
// store. The pipeline only samples evidence windows; persistence and
// delivery stay with the chat app.
type ConversationStore interface {
	// AgentMessages returns an agent's own messages inside the window,
	// oldest first.
	AgentMessages(ctx context.Context, agentID string, window Window) ([]Message, error)

	// ChannelMessages returns a channel's messages inside the window,
	// oldest first, across all participants.
	ChannelMessages(ctx context.Context, channelID string, window Window) ([]Message, error)
}

// EvaluationRepository persists evaluation runs and their scores. Runs
// transition pending -> running -> completed|failed and are immutable once
// completed; scores are append-only and cascade-deleted with the run.
type EvaluationRepository interface {
	CreateRun(ctx context.Context, run *EvaluationRun) error
	FinishRun(ctx context.Context, run *EvaluationRun) error
	GetRun(ctx context.Context, runID string) (*EvaluationRun, error)
	AppendScores(ctx context.Context, runID string, scores []EvaluationScore) error
	GetScores(ctx context.Context, runID string) ([]EvaluationScore, error)
	DeleteRun(ctx context.Context, runID string) error
}

// CorrectionLogRepository stores the gate's append-only audit trail.
type CorrectionLogRepository interface {
	Append(ctx context.Context, log *CorrectionLog) error
	ListByAgent(ctx context.Context, agentID string, from, to time.Time) ([]CorrectionLog, error)
	// CountPassedSince supports the minimum-required-actions override.
	CountPassedSince(ctx context.Context, agentID string, since time.Time) (int, error)
}

// InterventionLogRepository stores intervention evaluations, fired or not.
type InterventionLogRepository interface {
	Append(ctx context.Context, log *InterventionLog) error
	ListByAgent(ctx context.Context, agentID string, from, to time.Time) ([]InterventionLog, error)
}

// ConfigRepository stores per-agent evaluation policy. Get returns nil when
// the agent has no override; callers fall back to DefaultResolvedConfig.
type ConfigRepository interface {
	Get(ctx context.Context, agentID string) (*ResolvedConfig, error)
	Upsert(ctx context.Context, agentID string, patch ConfigPatch) (*ResolvedConfig, error)
}

// BaselineRepository stores dynamically captured baselines keyed by agent.
type BaselineRepository interface {
	Save(ctx context.Context, baseline *Baseline) error
	Get(ctx context.Context, agentID string) (*Baseline, error)
	List(ctx context.Context) ([]Baseline, error)
}
