package baseline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/model"
	"github.com/ensemble-chat/server/internal/eval/scorer"
)

// ================ fakes ================

type fakeScorer struct {
	scores map[model.Dimension]*float64
	runSeq int
}

func (f *fakeScorer) result(dim model.Dimension) (*scorer.Result, error) {
	f.runSeq++
	return &scorer.Result{
		EvaluationRunID: string(dim) + "-run",
		Dimension:       dim,
		OverallScore:    f.scores[dim],
	}, nil
}

func (f *fakeScorer) ScoreAdherence(_ context.Context, _ string, _ scorer.Options) (*scorer.Result, error) {
	return f.result(model.DimensionAdherence)
}

func (f *fakeScorer) ScoreConsistency(_ context.Context, _ string, _ scorer.Options) (*scorer.Result, error) {
	return f.result(model.DimensionConsistency)
}

func (f *fakeScorer) ScoreFluency(_ context.Context, _ string, _ scorer.Options) (*scorer.Result, error) {
	return f.result(model.DimensionFluency)
}

func (f *fakeScorer) ScoreConvergence(_ context.Context, _ string, _ scorer.Options) (*scorer.Result, error) {
	return f.result(model.DimensionConvergence)
}

func (f *fakeScorer) ScoreIdeas(_ context.Context, _ string, _ scorer.Options) (*scorer.Result, error) {
	return f.result(model.DimensionIdeas)
}

type fakeRepo struct{ saved map[string]*model.Baseline }

func (f *fakeRepo) Save(_ context.Context, b *model.Baseline) error {
	if f.saved == nil {
		f.saved = make(map[string]*model.Baseline)
	}
	f.saved[b.AgentID] = b
	return nil
}

func (f *fakeRepo) Get(_ context.Context, agentID string) (*model.Baseline, error) {
	return f.saved[agentID], nil
}

func (f *fakeRepo) List(_ context.Context) ([]model.Baseline, error) {
	var out []model.Baseline
	for _, b := range f.saved {
		out = append(out, *b)
	}
	return out, nil
}

func ptr(v float64) *float64 { return &v }

// ================ capture tests ================

func TestCapture(t *testing.T) {
	fs := &fakeScorer{scores: map[model.Dimension]*float64{
		model.DimensionAdherence:   ptr(7.0),
		model.DimensionConsistency: ptr(6.5),
		model.DimensionFluency:     ptr(8.0),
		model.DimensionConvergence: ptr(5.5),
		// ideas has no overall score
	}}
	repo := &fakeRepo{}
	m := NewManager(fs, repo)

	b, err := m.Capture(context.Background(), "michael", "general", nil)
	require.NoError(t, err)

	assert.Len(t, b.Scores, 4)
	assert.NotContains(t, b.Scores, model.DimensionIdeas)
	assert.Len(t, b.EvaluationRunIDs, 5)
	assert.Equal(t, 7.0, b.Scores[model.DimensionAdherence])
	require.NotNil(t, repo.saved["michael"])
}

func TestCaptureWithoutChannelSkipsChannelDimensions(t *testing.T) {
	fs := &fakeScorer{scores: map[model.Dimension]*float64{
		model.DimensionAdherence: ptr(7.0),
	}}
	m := NewManager(fs, &fakeRepo{})

	b, err := m.Capture(context.Background(), "michael", "", nil)
	require.NoError(t, err)
	assert.Len(t, b.EvaluationRunIDs, 3)
	assert.NotContains(t, b.Scores, model.DimensionConvergence)
	assert.NotContains(t, b.Scores, model.DimensionIdeas)
}

func TestCaptureDimensionSubset(t *testing.T) {
	fs := &fakeScorer{scores: map[model.Dimension]*float64{
		model.DimensionAdherence: ptr(7.0),
		model.DimensionFluency:   ptr(8.0),
	}}
	m := NewManager(fs, &fakeRepo{})

	b, err := m.Capture(context.Background(), "michael", "",
		[]model.Dimension{model.DimensionAdherence, model.DimensionFluency})
	require.NoError(t, err)
	assert.Len(t, b.EvaluationRunIDs, 2)
	assert.Len(t, b.Scores, 2)
}

// ================ regression tests ================

func TestDetectRegressions(t *testing.T) {
	base := map[model.Dimension]float64{
		model.DimensionAdherence:   7.0,
		model.DimensionConsistency: 6.0,
		model.DimensionFluency:     8.0,
	}
	current := map[model.Dimension]float64{
		model.DimensionAdherence:   5.0, // fell by 2.0
		model.DimensionConsistency: 5.5, // fell by 0.5, within delta
		model.DimensionFluency:     8.5, // improved
	}

	regs := DetectRegressions(base, current, 1.0)
	require.Len(t, regs, 1)
	assert.Equal(t, model.DimensionAdherence, regs[0].Dimension)
	assert.Equal(t, 7.0, regs[0].Baseline)
	assert.Equal(t, 5.0, regs[0].Current)
	assert.InDelta(t, -2.0, regs[0].Delta, 1e-9)
}

func TestDetectRegressionsSkipsUnmatchedDimensions(t *testing.T) {
	base := map[model.Dimension]float64{model.DimensionAdherence: 7.0}
	current := map[model.Dimension]float64{model.DimensionFluency: 1.0}
	assert.Empty(t, DetectRegressions(base, current, 1.0))
}

func TestDetectRegressionsExactDeltaNotFlagged(t *testing.T) {
	base := map[model.Dimension]float64{model.DimensionAdherence: 7.0}
	current := map[model.Dimension]float64{model.DimensionAdherence: 6.0}
	assert.Empty(t, DetectRegressions(base, current, 1.0))
}

// ================ golden tests ================

const goldenYAML = `agent_id: michael
captured_at: 2026-08-01T00:00:00Z
dimensions:
  adherence: 7.2
  consistency: 6.8
proposition_scores:
  stays-in-character: 7.5
`

func TestLoadGolden(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "michael.yaml"), []byte(goldenYAML), 0o644))

	g, err := LoadGolden(root, "michael")
	require.NoError(t, err)
	assert.Equal(t, "michael", g.AgentID)
	assert.Equal(t, 7.2, g.Dimensions[model.DimensionAdherence])
	assert.Equal(t, 7.5, g.PropositionScores["stays-in-character"])
}

func TestLoadGoldenMissing(t *testing.T) {
	_, err := LoadGolden(t.TempDir(), "michael")
	require.Error(t, err)
	assert.True(t, errx.IsNotFound(err))
}

func TestLoadGoldenAgentMismatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "dwight.yaml"), []byte(goldenYAML), 0o644))

	_, err := LoadGolden(root, "dwight")
	require.Error(t, err)
	assert.True(t, errx.IsConfig(err))
}

func TestListGolden(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "michael.yaml"), []byte(goldenYAML), 0o644))

	list, err := ListGolden(root)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "michael", list[0].AgentID)
}

func TestListGoldenMissingDir(t *testing.T) {
	list, err := ListGolden(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, list)
}
