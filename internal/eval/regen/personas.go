package regen

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	errx "github.com/ensemble-chat/server/internal/core/error"
)

// defaultPersona keeps regeneration usable for agents without a configured
// persona; the gate still scores the result against their propositions.
const defaultPersona = "You are a participant in a team chat. Stay consistent with how you have spoken so far."

// Personas maps agent IDs to their persona descriptions.
type Personas struct {
	byAgent map[string]string
}

// personaFile mirrors the YAML shape: a flat agent-to-persona map.
type personaFile struct {
	Personas map[string]string `yaml:"personas"`
}

// LoadPersonas reads the persona table from path. An empty path yields an
// empty table; a missing file is a configuration error since the path was
// given deliberately.
func LoadPersonas(path string) (*Personas, error) {
	if path == "" {
		return &Personas{byAgent: map[string]string{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errx.NewConfig("persona file %s does not exist", path)
		}
		return nil, errx.NewConfig("read persona file %s: %v", path, err)
	}
	var f personaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errx.NewConfig("decode persona file %s: %v", path, err)
	}
	if f.Personas == nil {
		f.Personas = map[string]string{}
	}
	return &Personas{byAgent: f.Personas}, nil
}

// Lookup returns the agent's persona, falling back to a neutral one.
func (p *Personas) Lookup(agentID string) string {
	if persona, present := p.byAgent[agentID]; present && persona != "" {
		return persona
	}
	return defaultPersona
}
