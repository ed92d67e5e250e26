package textstat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t,
		[]string{"that's", "what", "she", "said"},
		Tokenize("That's what SHE said!"))
	assert.Empty(t, Tokenize("...!?"))
}

func TestRepetition_NoRepeats(t *testing.T) {
	stats := Repetition([]string{"the quick brown fox jumps over the lazy dog"})
	assert.Zero(t, stats.RepeatedTrigrams)
	assert.Zero(t, stats.RepeatedFivegrams)
	assert.Equal(t, 0.0, stats.TrigramRepetitionRate())
}

func TestRepetition_AcrossMessages(t *testing.T) {
	stats := Repetition([]string{
		"bears beets battlestar galactica",
		"bears beets battlestar galactica",
	})
	assert.Greater(t, stats.RepeatedTrigrams, 0)
	assert.Greater(t, stats.TrigramRepetitionRate(), 0.0)
	assert.LessOrEqual(t, stats.TrigramRepetitionRate(), 1.0)
}

func TestRepetition_ShortInput(t *testing.T) {
	stats := Repetition([]string{"too short"})
	assert.Zero(t, stats.TrigramCount)
	assert.Zero(t, stats.FivegramCount)
	assert.Equal(t, 0.0, stats.FivegramRepetitionRate())
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("identical text here", "identical text here"))
	assert.Equal(t, 0.0, Similarity("alpha beta", "gamma delta"))

	partial := Similarity("the office is great", "the office is terrible")
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)
}

func TestSimilarity_EmptyInputs(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("something", ""))
}

func TestMaxSimilarity(t *testing.T) {
	refs := []string{"completely unrelated words", "an identical candidate message"}
	got := MaxSimilarity("an identical candidate message", refs)
	assert.Equal(t, 1.0, got)

	assert.Equal(t, 0.0, MaxSimilarity("anything", nil))
}

func TestVocabularyOverlap(t *testing.T) {
	a := []string{"synergy paradigm leverage"}
	b := []string{"synergy paradigm disruption"}
	got := VocabularyOverlap(a, b)
	assert.InDelta(t, 0.5, got, 1e-9)

	assert.Equal(t, 1.0, VocabularyOverlap(nil, nil))
}
