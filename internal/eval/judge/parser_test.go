package judge

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerdict_WellFormed(t *testing.T) {
	score, reasoning, err := parseVerdict("SCORE: 7\nREASONING: strong persona voice throughout.")
	require.NoError(t, err)
	assert.Equal(t, 7.0, score)
	assert.Equal(t, "strong persona voice throughout.", reasoning)
}

func TestParseVerdict_MultilineReasoning(t *testing.T) {
	in := "SCORE: 3\nREASONING: first part\nsecond part\n\nthird part"
	score, reasoning, err := parseVerdict(in)
	require.NoError(t, err)
	assert.Equal(t, 3.0, score)
	assert.Equal(t, "first part second part third part", reasoning)
}

func TestParseVerdict_LeadingChatter(t *testing.T) {
	in := "Sure, here is my assessment.\nSCORE: 9\nREASONING: overwhelming support."
	score, _, err := parseVerdict(in)
	require.NoError(t, err)
	assert.Equal(t, 9.0, score)
}

func TestParseVerdict_MissingScore(t *testing.T) {
	_, _, err := parseVerdict("REASONING: no score given")
	assert.Error(t, err)
}

func TestParseVerdict_OutOfRange(t *testing.T) {
	_, _, err := parseVerdict("SCORE: 11\nREASONING: too generous")
	assert.Error(t, err)

	_, _, err = parseVerdict("SCORE: -1\nREASONING: negative")
	assert.Error(t, err)
}

func TestParseVerdict_NonNumeric(t *testing.T) {
	_, _, err := parseVerdict("SCORE: high\nREASONING: words are not numbers")
	assert.Error(t, err)
}

func TestParseVerdict_OversizedInputTruncated(t *testing.T) {
	in := "SCORE: 5\nREASONING: " + strings.Repeat("x", maxJudgeOutputLen)
	score, _, err := parseVerdict(in)
	require.NoError(t, err)
	assert.Equal(t, 5.0, score)
}

func TestMockJudge_Deterministic(t *testing.T) {
	m := NewMockJudge()
	ctx := context.Background()

	first, err := m.Judge(ctx, "the agent stays in character", []string{"hello there"})
	require.NoError(t, err)
	second, err := m.Judge(ctx, "the agent stays in character", []string{"hello there"})
	require.NoError(t, err)

	assert.Equal(t, first.Score, second.Score)
	assert.GreaterOrEqual(t, first.Score, 6.0)
	assert.LessOrEqual(t, first.Score, 8.0)
}

func TestMockJudge_ScoreVariesByClaim(t *testing.T) {
	m := NewMockJudge()
	ctx := context.Background()

	seen := map[float64]bool{}
	claims := []string{"claim a", "claim b", "claim c", "claim d", "claim e", "claim f"}
	for _, c := range claims {
		v, err := m.Judge(ctx, c, nil)
		require.NoError(t, err)
		seen[v.Score] = true
	}
	// FNV spreads claims over the band; more than one distinct value expected.
	assert.Greater(t, len(seen), 1)
}

func TestMockJudge_Rewrite(t *testing.T) {
	m := NewMockJudge()
	out, usage, err := m.Rewrite(context.Background(), "  some text  ", []string{"be nicer"})
	require.NoError(t, err)
	assert.Equal(t, "some text (revised)", out)
	assert.Greater(t, usage.Total(), 0)
}
