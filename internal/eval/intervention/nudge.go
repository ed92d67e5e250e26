package intervention

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/model"
)

// bookFile mirrors the YAML shape of one nudge template definition.
type bookFile struct {
	Nudges map[model.NudgeType]string `yaml:"nudges"`
}

// Book holds a complete, validated nudge template table for one agent.
// Validation is strict: a book missing any nudge type is rejected at load
// time rather than surfacing as an empty nudge mid-intervention.
type Book struct {
	templates map[model.NudgeType]string
}

// LoadBook resolves an agent's nudge templates from a root directory,
// falling back to <root>/default.yaml when the agent has no file of its own.
func LoadBook(root, agentID string) (*Book, error) {
	paths := []string{filepath.Join(root, "default.yaml")}
	if agentID != "" {
		paths = []string{filepath.Join(root, agentID+".yaml"), paths[0]}
	}

	var data []byte
	var err error
	var path string
	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			path = p
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, errx.NewConfig("read nudge templates %s: %v", p, err)
		}
	}
	if path == "" {
		return nil, errx.NewConfig("no nudge templates for agent %q under %s", agentID, root)
	}

	var f bookFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errx.NewConfig("decode nudge templates %s: %v", path, err)
	}

	for _, nt := range model.NudgeTypes {
		if strings.TrimSpace(f.Nudges[nt]) == "" {
			return nil, errx.NewConfig("nudge templates %s: missing template for %q", path, nt)
		}
	}

	return &Book{templates: f.Nudges}, nil
}

// Render fills a nudge template's {{name}} placeholders. Unresolved
// variables stay verbatim.
func (b *Book) Render(nt model.NudgeType, vars map[string]string) string {
	text := b.templates[nt]
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
