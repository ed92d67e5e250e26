// Package proposition loads and merges the declarative scoring criteria the
// dimension scorers evaluate. Sets are YAML files on disk, deploy-time
// artifacts alongside the golden baselines:
//
//	<root>/<dimension>/default.yaml   always applied
//	<root>/<dimension>/<agent>.yaml   merged in when the agent is given
package proposition

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/model"
	logx "github.com/ensemble-chat/server/pkg/logger"
)

// setFile mirrors the YAML shape of one proposition set definition.
type setFile struct {
	TargetType      model.TargetType    `yaml:"target_type"`
	IncludePersonas bool                `yaml:"include_personas"`
	Hard            bool                `yaml:"hard"`
	Propositions    []model.Proposition `yaml:"propositions"`
}

// Library resolves proposition sets from a root directory.
type Library struct {
	root string
}

// NewLibrary creates a Library rooted at the given directory.
func NewLibrary(root string) *Library {
	return &Library{root: root}
}

// Load returns the merged, template-resolved proposition set for a
// dimension, optionally specialized for one agent. The default set must
// exist; an agent without a specific set just gets the defaults. Duplicate
// proposition IDs across the two sets are a configuration error, never a
// silent overwrite.
func (l *Library) Load(dimension model.Dimension, agentID string, vars map[string]string) (*model.PropositionSet, error) {
	defaults, err := l.loadFile(l.path(dimension, "default"))
	if err != nil {
		return nil, err
	}

	set := &model.PropositionSet{
		Dimension:       dimension,
		TargetType:      defaults.TargetType,
		IncludePersonas: defaults.IncludePersonas,
		Hard:            defaults.Hard,
	}
	if set.TargetType == "" {
		set.TargetType = model.TargetAgent
	}

	seen := make(map[string]model.PropositionSource)
	for _, p := range defaults.Propositions {
		if err := validate(p); err != nil {
			return nil, err
		}
		if _, dup := seen[p.ID]; dup {
			return nil, errx.NewConfig("duplicate proposition id %q in %s default set", p.ID, dimension)
		}
		seen[p.ID] = model.SourceDefault
		p.Source = model.SourceDefault
		set.Propositions = append(set.Propositions, p)
	}

	if agentID != "" {
		agentFile, err := l.loadFile(l.path(dimension, agentID))
		switch {
		case err == nil:
			for _, p := range agentFile.Propositions {
				if err := validate(p); err != nil {
					return nil, err
				}
				if src, dup := seen[p.ID]; dup {
					return nil, errx.NewConfig("proposition id %q for agent %s already defined in %s set", p.ID, agentID, src)
				}
				seen[p.ID] = model.SourceAgent
				p.Source = model.SourceAgent
				set.Propositions = append(set.Propositions, p)
			}
		case errors.Is(err, fs.ErrNotExist):
			// no agent-specific set; defaults apply alone
		default:
			return nil, err
		}
	}

	for i := range set.Propositions {
		set.Propositions[i].Claim = substitute(set.Propositions[i].Claim, vars)
		set.Propositions[i].Recommendations = substitute(set.Propositions[i].Recommendations, vars)
	}

	logx.Debug().
		Str("dimension", string(dimension)).
		Str("agentID", agentID).
		Int("propositions", len(set.Propositions)).
		Msg("proposition set loaded")

	return set, nil
}

func (l *Library) path(dimension model.Dimension, name string) string {
	return filepath.Join(l.root, string(dimension), name+".yaml")
}

func (l *Library) loadFile(path string) (*setFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("proposition set %s: %w", path, err)
		}
		return nil, errx.NewConfig("read proposition set %s: %v", path, err)
	}
	var f setFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errx.NewConfig("decode proposition set %s: %v", path, err)
	}
	return &f, nil
}

func validate(p model.Proposition) error {
	if strings.TrimSpace(p.ID) == "" {
		return errx.NewConfig("proposition id is required")
	}
	if strings.TrimSpace(p.Claim) == "" {
		return errx.NewConfig("proposition %q: claim is required", p.ID)
	}
	if p.Weight < 0 {
		return errx.NewConfig("proposition %q: weight must not be negative", p.ID)
	}
	return nil
}

// substitute replaces {{name}} placeholders from vars. An unresolved
// variable stays verbatim in the text; callers see the raw placeholder
// rather than an error.
func substitute(text string, vars map[string]string) string {
	if text == "" || len(vars) == 0 {
		return text
	}
	pairs := make([]string, 0, len(vars)*4)
	for name, value := range vars {
		pairs = append(pairs,
			"{{"+name+"}}", value,
			"{{ "+name+" }}", value,
		)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
