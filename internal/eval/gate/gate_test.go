package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/model"
	"github.com/ensemble-chat/server/internal/eval/scorer"
)

// ================ fakes ================

// scriptedScorer maps candidate text to a fixed overall score.
type scriptedScorer struct {
	scores   map[string]float64
	fallback float64
}

func (s *scriptedScorer) ScoreCandidate(_ context.Context, _ string, dim model.Dimension, candidate string, _ []model.Message, _ scorer.Options) (*scorer.CandidateScore, error) {
	v, ok := s.scores[candidate]
	if !ok {
		v = s.fallback
	}
	return &scorer.CandidateScore{
		Dimension:    dim,
		OverallScore: &v,
		PropositionScores: []model.PropositionResult{
			{PropositionID: "stays-in-character", Score: v, Reasoning: "scripted"},
		},
		Recommendations: map[string]string{"stays-in-character": "use the usual catchphrases"},
		TokenUsage:      model.TokenUsage{InputTokens: 100, OutputTokens: 10},
	}, nil
}

type fakeEditor struct {
	calls    int
	guidance []string
}

func (f *fakeEditor) Rewrite(_ context.Context, text string, guidance []string) (string, model.TokenUsage, error) {
	f.calls++
	f.guidance = guidance
	return text + " [edited]", model.TokenUsage{InputTokens: 50, OutputTokens: 20}, nil
}

type fakeRegenerator struct {
	calls int
	reply string
}

func (f *fakeRegenerator) Regenerate(_ context.Context, _, _ string, _ []string) (string, model.TokenUsage, error) {
	f.calls++
	return f.reply, model.TokenUsage{InputTokens: 200, OutputTokens: 40}, nil
}

type fakeConfigs struct{ cfg *model.ResolvedConfig }

func (f *fakeConfigs) Get(_ context.Context, _ string) (*model.ResolvedConfig, error) {
	return f.cfg, nil
}

func (f *fakeConfigs) Upsert(_ context.Context, _ string, patch model.ConfigPatch) (*model.ResolvedConfig, error) {
	base := model.DefaultResolvedConfig()
	if f.cfg != nil {
		base = *f.cfg
	}
	merged := patch.Apply(base)
	f.cfg = &merged
	return &merged, nil
}

type fakeLogs struct {
	rows      []model.CorrectionLog
	appendErr error
	passed    int
}

func (f *fakeLogs) Append(_ context.Context, row *model.CorrectionLog) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rows = append(f.rows, *row)
	return nil
}

func (f *fakeLogs) ListByAgent(_ context.Context, _ string, _, _ time.Time) ([]model.CorrectionLog, error) {
	return f.rows, nil
}

func (f *fakeLogs) CountPassedSince(_ context.Context, _ string, _ time.Time) (int, error) {
	return f.passed, nil
}

type emptyStore struct{}

func (emptyStore) AgentMessages(_ context.Context, _ string, _ model.Window) ([]model.Message, error) {
	return nil, nil
}

func (emptyStore) ChannelMessages(_ context.Context, _ string, _ model.Window) ([]model.Message, error) {
	return nil, nil
}

// ================ helpers ================

// adherenceOnly keeps one judged check so scripted scores map directly to
// the gate outcome.
func adherenceOnly(threshold float64) *model.ResolvedConfig {
	cfg := model.DefaultResolvedConfig()
	cfg.Adherence = model.GateCheck{Enabled: true, Threshold: threshold}
	cfg.Suitability.Enabled = false
	cfg.Similarity.Enabled = false
	return &cfg
}

func request() Request {
	return Request{AgentID: "michael", ChannelID: "general", Text: "Conference room, five minutes."}
}

// ================ tests ================

func TestCheckPassesOriginal(t *testing.T) {
	logs := &fakeLogs{}
	g := New(&scriptedScorer{fallback: 7.0}, &fakeEditor{}, nil, emptyStore{}, &fakeConfigs{cfg: adherenceOnly(5.0)}, logs)

	dec, err := g.Check(context.Background(), request())
	require.NoError(t, err)

	assert.True(t, dec.Passed)
	assert.Equal(t, model.StageOriginal, dec.Stage)
	assert.Equal(t, request().Text, dec.FinalText)
	assert.Equal(t, 1, dec.Attempts)

	require.Len(t, logs.rows, 1)
	assert.Equal(t, model.OutcomePassed, logs.rows[0].Outcome)
	require.Len(t, logs.rows[0].DimensionScores, 1)
	assert.True(t, logs.rows[0].DimensionScores[0].Passed)
}

func TestCheckRegeneratesThenPasses(t *testing.T) {
	logs := &fakeLogs{}
	regen := &fakeRegenerator{reply: "Everyone, meeting postponed, carry on."}
	sc := &scriptedScorer{
		scores:   map[string]float64{request().Text: 3.0, regen.reply: 8.0},
		fallback: 0,
	}
	g := New(sc, &fakeEditor{}, regen, emptyStore{}, &fakeConfigs{cfg: adherenceOnly(5.0)}, logs)

	dec, err := g.Check(context.Background(), request())
	require.NoError(t, err)

	assert.True(t, dec.Passed)
	assert.Equal(t, model.StageRegenerated, dec.Stage)
	assert.Equal(t, regen.reply, dec.FinalText)
	assert.Equal(t, 1, regen.calls)

	require.Len(t, logs.rows, 2)
	assert.Equal(t, model.OutcomeFailed, logs.rows[0].Outcome)
	assert.Equal(t, model.OutcomePassed, logs.rows[1].Outcome)
	assert.Equal(t, 2, logs.rows[1].AttemptNumber)
}

func TestCheckDirectCorrectionLastResort(t *testing.T) {
	logs := &fakeLogs{}
	editor := &fakeEditor{}
	regen := &fakeRegenerator{reply: "Still bad."}
	sc := &scriptedScorer{
		scores: map[string]float64{
			request().Text:            2.0,
			regen.reply:               2.0,
			regen.reply + " [edited]": 8.0,
		},
	}
	g := New(sc, editor, regen, emptyStore{}, &fakeConfigs{cfg: adherenceOnly(5.0)}, logs)

	dec, err := g.Check(context.Background(), request())
	require.NoError(t, err)

	assert.True(t, dec.Passed)
	assert.Equal(t, model.StageDirectCorrected, dec.Stage)
	assert.Equal(t, 1, regen.calls)
	assert.Equal(t, 1, editor.calls)
	require.Len(t, editor.guidance, 1)
	assert.Contains(t, editor.guidance[0], "use the usual catchphrases")
	assert.Equal(t, 3, dec.Attempts)
	// Max attempts 2 -> at most 3 rows per invocation.
	assert.Len(t, logs.rows, 3)
}

func TestCheckExhaustedContinueOnFailure(t *testing.T) {
	logs := &fakeLogs{}
	g := New(&scriptedScorer{fallback: 1.0}, &fakeEditor{}, &fakeRegenerator{reply: "also bad"}, emptyStore{}, &fakeConfigs{cfg: adherenceOnly(5.0)}, logs)

	dec, err := g.Check(context.Background(), request())
	require.NoError(t, err)

	// The last corrected candidate is released even though nothing passed.
	assert.False(t, dec.Passed)
	assert.Equal(t, "also bad [edited]", dec.FinalText)
	assert.Equal(t, model.StageDirectCorrected, dec.Stage)

	require.Len(t, logs.rows, 3)
	assert.Equal(t, model.OutcomeExhausted, logs.rows[2].Outcome)
	assert.Equal(t, "also bad [edited]", logs.rows[2].FinalText)
}

func TestCheckExhaustedBlocks(t *testing.T) {
	cfg := adherenceOnly(5.0)
	cfg.Correction.ContinueOnFailure = false
	g := New(&scriptedScorer{fallback: 1.0}, &fakeEditor{}, nil, emptyStore{}, &fakeConfigs{cfg: cfg}, &fakeLogs{})

	_, err := g.Check(context.Background(), request())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrGateBlocked))
}

func TestCheckMinimumActionsOverrideSuppressesBlock(t *testing.T) {
	cfg := adherenceOnly(5.0)
	cfg.Correction.ContinueOnFailure = false
	cfg.Correction.MinimumRequiredQtyOfActions = 3
	logs := &fakeLogs{passed: 1}

	// Everything fails scoring; the quiet agent must still be released, with
	// every attempt judged and logged normally.
	g := New(&scriptedScorer{fallback: 0.0}, &fakeEditor{}, nil, emptyStore{}, &fakeConfigs{cfg: cfg}, logs)

	dec, err := g.Check(context.Background(), request())
	require.NoError(t, err)
	assert.False(t, dec.Passed)
	require.Len(t, dec.Checks, 1)
	assert.False(t, dec.Checks[0].Passed)
	assert.NotZero(t, dec.TokenUsage.Total())
	require.Len(t, logs.rows, 3)
	assert.Equal(t, model.OutcomeExhausted, logs.rows[2].Outcome)
	require.Len(t, logs.rows[0].DimensionScores, 1)
}

func TestCheckMinimumActionsSatisfiedStillBlocks(t *testing.T) {
	cfg := adherenceOnly(5.0)
	cfg.Correction.ContinueOnFailure = false
	cfg.Correction.MinimumRequiredQtyOfActions = 3
	logs := &fakeLogs{passed: 5}

	g := New(&scriptedScorer{fallback: 0.0}, &fakeEditor{}, nil, emptyStore{}, &fakeConfigs{cfg: cfg}, logs)

	_, err := g.Check(context.Background(), request())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrGateBlocked))
}

func TestCheckAutoPassesWhenNothingEnabled(t *testing.T) {
	cfg := adherenceOnly(5.0)
	cfg.Adherence.Enabled = false
	logs := &fakeLogs{}

	// All dimension checks, similarity and repetition disabled: permissive
	// default, first attempt passes untouched.
	g := New(&scriptedScorer{fallback: 0.0}, &fakeEditor{}, nil, emptyStore{}, &fakeConfigs{cfg: cfg}, logs)

	dec, err := g.Check(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, dec.Passed)
	assert.Equal(t, request().Text, dec.FinalText)
	assert.Equal(t, 1, dec.Attempts)
	assert.Empty(t, dec.Checks)
	require.Len(t, logs.rows, 1)
	assert.Equal(t, model.OutcomePassed, logs.rows[0].Outcome)
}

func TestCheckLogFailureDoesNotBlock(t *testing.T) {
	logs := &fakeLogs{appendErr: errors.New("redis down")}
	g := New(&scriptedScorer{fallback: 7.0}, &fakeEditor{}, nil, emptyStore{}, &fakeConfigs{cfg: adherenceOnly(5.0)}, logs)

	dec, err := g.Check(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, dec.Passed)
}

func TestCheckDefaultConfigWhenUnset(t *testing.T) {
	// No stored config: defaults gate on adherence and suitability.
	logs := &fakeLogs{}
	g := New(&scriptedScorer{fallback: 7.0}, &fakeEditor{}, nil, emptyStore{}, &fakeConfigs{}, logs)

	dec, err := g.Check(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, dec.Passed)
	assert.Len(t, dec.Checks, 2)
}

func TestCheckValidation(t *testing.T) {
	g := New(&scriptedScorer{}, &fakeEditor{}, nil, emptyStore{}, &fakeConfigs{}, &fakeLogs{})
	_, err := g.Check(context.Background(), Request{AgentID: "", Text: "hi"})
	require.Error(t, err)
}
