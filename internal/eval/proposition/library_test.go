package proposition

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/model"
)

func writeSet(t *testing.T, root string, dimension, name, content string) {
	t.Helper()
	dir := filepath.Join(root, dimension)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(content), 0o644))
}

const defaultAdherence = `
target_type: agent
include_personas: true
hard: false
propositions:
  - id: stays_in_character
    claim: "{{agent_name}} speaks in their established persona voice"
    weight: 2
    recommendations_for_improvement: "Have {{agent_name}} use their catchphrases"
  - id: breaks_fourth_wall
    claim: "{{agent_name}} refers to being an AI or a language model"
    weight: 1
    inverted: true
`

func TestLoad_DefaultsOnly(t *testing.T) {
	root := t.TempDir()
	writeSet(t, root, "adherence", "default", defaultAdherence)

	lib := NewLibrary(root)
	set, err := lib.Load(model.DimensionAdherence, "", map[string]string{"agent_name": "Michael"})
	require.NoError(t, err)

	assert.True(t, set.IncludePersonas)
	assert.False(t, set.Hard)
	assert.Equal(t, model.TargetAgent, set.TargetType)
	require.Len(t, set.Propositions, 2)

	assert.Equal(t, "Michael speaks in their established persona voice", set.Propositions[0].Claim)
	assert.Equal(t, "Have Michael use their catchphrases", set.Propositions[0].Recommendations)
	assert.Equal(t, model.SourceDefault, set.Propositions[0].Source)
	assert.True(t, set.Propositions[1].Inverted)
}

func TestLoad_MergesAgentSet(t *testing.T) {
	root := t.TempDir()
	writeSet(t, root, "adherence", "default", defaultAdherence)
	writeSet(t, root, "adherence", "michael", `
propositions:
  - id: that_is_what_she_said
    claim: "{{agent_name}} lands an ill-timed joke at least once"
    weight: 1
`)

	lib := NewLibrary(root)
	set, err := lib.Load(model.DimensionAdherence, "michael", map[string]string{"agent_name": "Michael"})
	require.NoError(t, err)

	require.Len(t, set.Propositions, 3)
	assert.Equal(t, model.SourceAgent, set.Propositions[2].Source)
	assert.Equal(t, "Michael lands an ill-timed joke at least once", set.Propositions[2].Claim)
}

func TestLoad_MissingAgentSetFallsBackToDefaults(t *testing.T) {
	root := t.TempDir()
	writeSet(t, root, "adherence", "default", defaultAdherence)

	lib := NewLibrary(root)
	set, err := lib.Load(model.DimensionAdherence, "dwight", nil)
	require.NoError(t, err)
	assert.Len(t, set.Propositions, 2)
}

func TestLoad_DuplicateIDAcrossSetsRejected(t *testing.T) {
	root := t.TempDir()
	writeSet(t, root, "adherence", "default", defaultAdherence)
	writeSet(t, root, "adherence", "michael", `
propositions:
  - id: stays_in_character
    claim: "redefined"
`)

	lib := NewLibrary(root)
	_, err := lib.Load(model.DimensionAdherence, "michael", nil)
	require.Error(t, err)
	assert.True(t, errx.IsConfig(err))
}

func TestLoad_MissingDefaultSetIsError(t *testing.T) {
	lib := NewLibrary(t.TempDir())
	_, err := lib.Load(model.DimensionFluency, "", nil)
	assert.Error(t, err)
}

func TestLoad_UnresolvedVariableLeftVerbatim(t *testing.T) {
	root := t.TempDir()
	writeSet(t, root, "adherence", "default", defaultAdherence)

	lib := NewLibrary(root)
	set, err := lib.Load(model.DimensionAdherence, "", map[string]string{"unrelated": "x"})
	require.NoError(t, err)
	assert.Contains(t, set.Propositions[0].Claim, "{{agent_name}}")
}

func TestLoad_HardFlagCarried(t *testing.T) {
	root := t.TempDir()
	writeSet(t, root, "suitability", "default", `
target_type: agent
hard: true
propositions:
  - id: on_topic
    claim: "the message fits the channel topic"
`)

	lib := NewLibrary(root)
	set, err := lib.Load(model.DimensionSuitability, "", nil)
	require.NoError(t, err)
	assert.True(t, set.Hard)
}
