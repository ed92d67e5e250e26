package model

import (
	"time"
)

// Dimension is a named evaluation axis.
type Dimension string

const (
	DimensionAdherence   Dimension = "adherence"
	DimensionConsistency Dimension = "consistency"
	DimensionFluency     Dimension = "fluency"
	DimensionConvergence Dimension = "convergence"
	DimensionIdeas       Dimension = "ideas_quantity"
	DimensionSuitability Dimension = "suitability"
)

// ScorerDimensions lists the dimensions backed by a full window scorer, in
// the order the harness reports them.
var ScorerDimensions = []Dimension{
	DimensionAdherence,
	DimensionConsistency,
	DimensionFluency,
	DimensionConvergence,
	DimensionIdeas,
}

// MaxScore is the top of the judge scale. Scores live in [0, MaxScore].
const MaxScore = 9.0

// TokenUsage accumulates judge token consumption for one run, gate
// invocation or intervention evaluation.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add folds another usage record into the receiver.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Total returns the combined token count.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Message is one chat message as seen by the evaluation pipeline. The chat
// application owns the full message shape; only these fields matter here.
type Message struct {
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Window bounds an evidence sample: messages newer than Since, capped to the
// most recent Limit entries. A zero Since means "no time bound".
type Window struct {
	Since time.Time
	Limit int
}

// ================ Propositions ================

// PropositionSource tags where a proposition was defined.
type PropositionSource string

const (
	SourceDefault PropositionSource = "default"
	SourceAgent   PropositionSource = "agent"
)

// Proposition is a single weighted, possibly inverted scoring claim
// evaluated by the judge.
type Proposition struct {
	ID              string            `yaml:"id" json:"id"`
	Claim           string            `yaml:"claim" json:"claim"`
	Weight          float64           `yaml:"weight" json:"weight"`
	Inverted        bool              `yaml:"inverted" json:"inverted"`
	Recommendations string            `yaml:"recommendations_for_improvement" json:"recommendations_for_improvement,omitempty"`
	Source          PropositionSource `yaml:"-" json:"source,omitempty"`
}

// TargetType distinguishes agent-scoped proposition sets from channel
// (environment) scoped ones.
type TargetType string

const (
	TargetAgent       TargetType = "agent"
	TargetEnvironment TargetType = "environment"
)

// PropositionSet is the merged, template-resolved criteria for one dimension
// and (optionally) one agent.
type PropositionSet struct {
	Dimension       Dimension
	TargetType      TargetType
	IncludePersonas bool
	Hard            bool
	Propositions    []Proposition
}

// PropositionResult is the immutable output of scoring one proposition.
// Score is post inversion/hard-mode adjustment, always in [0, MaxScore].
type PropositionResult struct {
	PropositionID  string  `json:"proposition_id"`
	Score          float64 `json:"score"`
	Reasoning      string  `json:"reasoning"`
	ContextSnippet string  `json:"context_snippet,omitempty"`
}

// ================ Evaluation runs ================

// RunStatus is the lifecycle state of an evaluation run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// EvaluationRun is one scoring session. Immutable once completed.
// OverallScore is nil when the sample was too small to score; for the
// ideas_quantity dimension it is not meaningful and stays nil.
type EvaluationRun struct {
	ID           string      `json:"id"`
	AgentID      string      `json:"agent_id,omitempty"`
	ChannelID    string      `json:"channel_id,omitempty"`
	Status       RunStatus   `json:"status"`
	Dimensions   []Dimension `json:"dimensions"`
	SampleSize   int         `json:"sample_size"`
	OverallScore *float64    `json:"overall_score"`
	IsBaseline   bool        `json:"is_baseline"`
	TokenUsage   TokenUsage  `json:"token_usage"`
	CreatedAt    time.Time   `json:"created_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
}

// EvaluationScore is one proposition's persisted result, scoped to a run.
// Append-only, cascade-deleted with the run.
type EvaluationScore struct {
	EvaluationRunID string    `json:"evaluation_run_id"`
	Dimension       Dimension `json:"dimension"`
	PropositionID   string    `json:"proposition_id"`
	Score           float64   `json:"score"`
	Reasoning       string    `json:"reasoning"`
	ContextSnippet  string    `json:"context_snippet,omitempty"`
}

// ================ Correction pipeline ================

// CorrectionStage names where a candidate text came from.
type CorrectionStage string

const (
	StageOriginal        CorrectionStage = "original"
	StageRegenerated     CorrectionStage = "regenerated"
	StageDirectCorrected CorrectionStage = "direct-corrected"
)

// CorrectionOutcome is the verdict for one attempt.
type CorrectionOutcome string

const (
	OutcomePassed    CorrectionOutcome = "passed"
	OutcomeFailed    CorrectionOutcome = "failed"
	OutcomeExhausted CorrectionOutcome = "exhausted"
)

// DimensionCheck records one gate dimension check inside an attempt.
type DimensionCheck struct {
	Dimension Dimension `json:"dimension"`
	Score     *float64  `json:"score"`
	Threshold float64   `json:"threshold"`
	Passed    bool      `json:"passed"`
}

// CorrectionLog is one row per correction-pipeline attempt. Append-only
// audit trail, never updated.
type CorrectionLog struct {
	ID              string            `json:"id"`
	AgentID         string            `json:"agent_id"`
	RunID           string            `json:"run_id,omitempty"`
	ChannelID       string            `json:"channel_id"`
	OriginalText    string            `json:"original_text"`
	FinalText       string            `json:"final_text"`
	Stage           CorrectionStage   `json:"stage"`
	AttemptNumber   int               `json:"attempt_number"`
	Outcome         CorrectionOutcome `json:"outcome"`
	DimensionScores []DimensionCheck  `json:"dimension_scores"`
	SimilarityScore *float64          `json:"similarity_score,omitempty"`
	TotalScore      *float64          `json:"total_score,omitempty"`
	TokenUsage      TokenUsage        `json:"token_usage"`
	DurationMs      int64             `json:"duration_ms"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ================ Interventions ================

// InterventionType names a configured intervention.
type InterventionType string

const (
	InterventionAntiConvergence InterventionType = "anti_convergence"
	InterventionVariety         InterventionType = "variety"
	InterventionCustom          InterventionType = "custom"
)

// NudgeType keys the per-agent nudge template table.
type NudgeType string

const (
	NudgeDevilsAdvocate      NudgeType = "devils_advocate"
	NudgeChangeSubject       NudgeType = "change_subject"
	NudgePersonalStory       NudgeType = "personal_story"
	NudgeChallengingQuestion NudgeType = "challenging_question"
	NudgeNewIdeas            NudgeType = "new_ideas"
)

// NudgeTypes enumerates every template key an agent must define.
var NudgeTypes = []NudgeType{
	NudgeDevilsAdvocate,
	NudgeChangeSubject,
	NudgePersonalStory,
	NudgeChallengingQuestion,
	NudgeNewIdeas,
}

// InterventionLog is one row per intervention evaluation. Precondition
// results are nil when the layer was not applicable. Append-only.
type InterventionLog struct {
	ID            string           `json:"id"`
	AgentID       string           `json:"agent_id"`
	ChannelID     string           `json:"channel_id"`
	Type          InterventionType `json:"intervention_type"`
	Textual       *bool            `json:"textual_result"`
	Functional    *bool            `json:"functional_result"`
	Propositional *bool            `json:"propositional_result"`
	Fired         bool             `json:"fired"`
	NudgeText     string           `json:"nudge_text,omitempty"`
	TokenUsage    TokenUsage       `json:"token_usage"`
	CreatedAt     time.Time        `json:"created_at"`
}

// ================ Baselines ================

// Baseline is a dynamically captured per-agent score snapshot.
type Baseline struct {
	AgentID          string                `json:"agent_id"`
	Scores           map[Dimension]float64 `json:"scores"`
	EvaluationRunIDs []string              `json:"evaluation_run_ids"`
	CapturedAt       time.Time             `json:"captured_at"`
}

// GoldenBaseline is a curated, version-controlled reference score set,
// read-only at evaluation time.
type GoldenBaseline struct {
	AgentID           string                `yaml:"agent_id" json:"agent_id"`
	CapturedAt        time.Time             `yaml:"captured_at" json:"captured_at"`
	Dimensions        map[Dimension]float64 `yaml:"dimensions" json:"dimensions"`
	PropositionScores map[string]float64    `yaml:"proposition_scores" json:"proposition_scores,omitempty"`
}

// Regression is a computed (not persisted) comparison result. Delta is
// current minus baseline and is negative for every flagged regression.
type Regression struct {
	Dimension Dimension `json:"dimension"`
	Baseline  float64   `json:"baseline"`
	Current   float64   `json:"current"`
	Delta     float64   `json:"delta"`
}
