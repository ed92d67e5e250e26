package model

// ================ Per-agent evaluation policy ================

// GateCheck enables one dimension check in the action gate with its pass
// threshold on the [0, MaxScore] scale.
type GateCheck struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"`
}

// SimilarityGate fails a candidate whose lexical similarity to the agent's
// own recent messages reaches Threshold (the agent is repeating itself).
type SimilarityGate struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"`
}

// CorrectionPolicy controls the staged correction pipeline.
type CorrectionPolicy struct {
	EnableRegeneration          bool `json:"enable_regeneration"`
	EnableDirectCorrection      bool `json:"enable_direct_correction"`
	MaxCorrectionAttempts       int  `json:"max_correction_attempts"`
	ContinueOnFailure           bool `json:"continue_on_failure"`
	MinimumRequiredQtyOfActions int  `json:"minimum_required_qty_of_actions"`
}

// InterventionPolicy controls the non-blocking nudge framework.
type InterventionPolicy struct {
	AntiConvergenceEnabled     bool    `json:"anti_convergence_enabled"`
	ConvergenceThreshold       float64 `json:"convergence_threshold"`
	VarietyInterventionEnabled bool    `json:"variety_intervention_enabled"`
	VarietyMessageThreshold    int     `json:"variety_message_threshold"`
}

// RepetitionPolicy suppresses repeated phrasing independently of the
// similarity gate.
type RepetitionPolicy struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"`
}

// ResolvedConfig is the effective per-agent evaluation policy. It is read
// once at the start of each gate/intervention invocation and never re-read
// mid-flight, so a concurrent config update cannot corrupt a single
// invocation's view.
type ResolvedConfig struct {
	Adherence    GateCheck          `json:"adherence"`
	Consistency  GateCheck          `json:"consistency"`
	Fluency      GateCheck          `json:"fluency"`
	Suitability  GateCheck          `json:"suitability"`
	Similarity   SimilarityGate     `json:"similarity"`
	Correction   CorrectionPolicy   `json:"correction"`
	Intervention InterventionPolicy `json:"intervention"`
	Repetition   RepetitionPolicy   `json:"repetition"`
}

// DefaultResolvedConfig is the hardcoded fallback applied when no per-agent
// override exists.
func DefaultResolvedConfig() ResolvedConfig {
	return ResolvedConfig{
		Adherence:   GateCheck{Enabled: true, Threshold: 5.0},
		Consistency: GateCheck{Enabled: false, Threshold: 5.0},
		Fluency:     GateCheck{Enabled: false, Threshold: 5.0},
		Suitability: GateCheck{Enabled: true, Threshold: 4.0},
		Similarity:  SimilarityGate{Enabled: true, Threshold: 0.85},
		Correction: CorrectionPolicy{
			EnableRegeneration:          true,
			EnableDirectCorrection:      true,
			MaxCorrectionAttempts:       2,
			ContinueOnFailure:           true,
			MinimumRequiredQtyOfActions: 0,
		},
		Intervention: InterventionPolicy{
			AntiConvergenceEnabled:     false,
			ConvergenceThreshold:       6.0,
			VarietyInterventionEnabled: false,
			VarietyMessageThreshold:    12,
		},
		Repetition: RepetitionPolicy{Enabled: false, Threshold: 0.6},
	}
}

// ConfigPatch is a partial update to a ResolvedConfig. Nil fields keep the
// current value; the merge happens in the config repository's upsert.
type ConfigPatch struct {
	Adherence    *GateCheck          `json:"adherence,omitempty"`
	Consistency  *GateCheck          `json:"consistency,omitempty"`
	Fluency      *GateCheck          `json:"fluency,omitempty"`
	Suitability  *GateCheck          `json:"suitability,omitempty"`
	Similarity   *SimilarityGate     `json:"similarity,omitempty"`
	Correction   *CorrectionPolicy   `json:"correction,omitempty"`
	Intervention *InterventionPolicy `json:"intervention,omitempty"`
	Repetition   *RepetitionPolicy   `json:"repetition,omitempty"`
}

// Apply merges the patch over cfg and returns the result.
func (p ConfigPatch) Apply(cfg ResolvedConfig) ResolvedConfig {
	if p.Adherence != nil {
		cfg.Adherence = *p.Adherence
	}
	if p.Consistency != nil {
		cfg.Consistency = *p.Consistency
	}
	if p.Fluency != nil {
		cfg.Fluency = *p.Fluency
	}
	if p.Suitability != nil {
		cfg.Suitability = *p.Suitability
	}
	if p.Similarity != nil {
		cfg.Similarity = *p.Similarity
	}
	if p.Correction != nil {
		cfg.Correction = *p.Correction
	}
	if p.Intervention != nil {
		cfg.Intervention = *p.Intervention
	}
	if p.Repetition != nil {
		cfg.Repetition = *p.Repetition
	}
	return cfg
}
