package baseline

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	errx "github.com/ensemble-chat/server/internal/core/error"
	"github.com/ensemble-chat/server/internal/eval/model"
)

// LoadGolden reads the curated golden baseline for one agent from
// <root>/<agent>.yaml. A missing file is a not-found error so callers can
// distinguish "no golden yet" from a broken one.
func LoadGolden(root, agentID string) (*model.GoldenBaseline, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, errx.NewValidation("agentID is required")
	}
	path := filepath.Join(root, agentID+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errx.NewNotFound("no golden baseline for agent %q", agentID)
		}
		return nil, errx.NewConfig("read golden baseline %s: %v", path, err)
	}

	var g model.GoldenBaseline
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, errx.NewConfig("decode golden baseline %s: %v", path, err)
	}
	if g.AgentID == "" {
		g.AgentID = agentID
	}
	if g.AgentID != agentID {
		return nil, errx.NewConfig("golden baseline %s declares agent %q", path, g.AgentID)
	}
	return &g, nil
}

// ListGolden returns every golden baseline under root, sorted by agent.
// A directory without any YAML files is an empty list, not an error.
func ListGolden(root string) ([]model.GoldenBaseline, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errx.NewConfig("read golden baseline dir %s: %v", root, err)
	}

	var out []model.GoldenBaseline
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		agentID := strings.TrimSuffix(e.Name(), ".yaml")
		g, err := LoadGolden(root, agentID)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}
