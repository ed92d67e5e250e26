package harness

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ensemble-chat/server/internal/eval/model"
)

// WriteJSON stores the machine-readable report next to the PR comment so
// other CI steps can consume the run without parsing markdown.
func WriteJSON(report *Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal harness report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write harness report: %w", err)
	}
	return nil
}

// FormatPRComment renders the report as the markdown block posted on pull
// requests. One row per agent, a regression section only when something
// regressed, and a one-line verdict at the bottom.
func FormatPRComment(report *Report, passThreshold float64) string {
	var b strings.Builder

	b.WriteString("## Character Evaluation Report\n\n")
	fmt.Fprintf(&b, "**%d/%d agents passed** (threshold %.1f/%.0f)\n\n",
		report.Summary.Passed, report.Summary.Total, passThreshold, model.MaxScore)

	b.WriteString("| Agent | ")
	for _, dim := range model.ScorerDimensions {
		b.WriteString(dimensionLabel(dim))
		b.WriteString(" | ")
	}
	b.WriteString("Overall | Status |\n")
	b.WriteString("|---|")
	for range model.ScorerDimensions {
		b.WriteString("---|")
	}
	b.WriteString("---|---|\n")

	for _, rep := range report.Agents {
		fmt.Fprintf(&b, "| %s | ", rep.AgentID)
		for _, dim := range model.ScorerDimensions {
			if dim == model.DimensionIdeas {
				fmt.Fprintf(&b, "%d | ", rep.IdeaCount)
				continue
			}
			if v, present := rep.Dimensions[dim]; present {
				fmt.Fprintf(&b, "%.1f | ", v)
			} else {
				b.WriteString("n/a | ")
			}
		}
		b.WriteString(formatScore(rep.Overall))
		b.WriteString(" | ")
		b.WriteString(statusLabel(rep))
		b.WriteString(" |\n")
	}

	if deltas := collectDeltas(report); len(deltas) > 0 {
		b.WriteString("\n### Drift vs golden baseline\n\n")
		b.WriteString("| Agent | Dimension | Delta |\n")
		b.WriteString("|---|---|---|\n")
		for _, d := range deltas {
			fmt.Fprintf(&b, "| %s | %s | %+.1f |\n", d.agentID, d.dim, d.delta)
		}
	}

	if regs := collectRegressions(report); len(regs) > 0 {
		b.WriteString("\n### Regressions vs golden baseline\n\n")
		b.WriteString("| Agent | Dimension | Baseline | Current | Delta |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, r := range regs {
			fmt.Fprintf(&b, "| %s | %s | %.1f | %.1f | %+.1f |\n",
				r.agentID, r.reg.Dimension, r.reg.Baseline, r.reg.Current, r.reg.Delta)
		}
	}

	fmt.Fprintf(&b, "\n_%d judge tokens, %s_\n", report.TokenUsage.Total(), report.Duration.Round(time.Millisecond))

	if report.Summary.Failed == 0 {
		b.WriteString("\n✅ All agents meet the bar.\n")
	} else {
		fmt.Fprintf(&b, "\n❌ Below the bar: %s.\n", strings.Join(report.Summary.FailedAgents, ", "))
	}
	return b.String()
}

type agentDelta struct {
	agentID string
	dim     model.Dimension
	delta   float64
}

// collectDeltas flattens per-agent baseline deltas in stable dimension order.
func collectDeltas(report *Report) []agentDelta {
	var out []agentDelta
	for _, rep := range report.Agents {
		for _, dim := range model.ScorerDimensions {
			if d, ok := rep.BaselineDelta[dim]; ok {
				out = append(out, agentDelta{agentID: rep.AgentID, dim: dim, delta: d})
			}
		}
	}
	return out
}

type agentRegression struct {
	agentID string
	reg     model.Regression
}

func collectRegressions(report *Report) []agentRegression {
	var out []agentRegression
	for _, rep := range report.Agents {
		for _, r := range rep.Regressions {
			out = append(out, agentRegression{agentID: rep.AgentID, reg: r})
		}
	}
	return out
}

func statusLabel(rep AgentReport) string {
	switch {
	case rep.Err != nil:
		return "⚠️ error"
	case rep.Passed:
		return "✅ pass"
	default:
		return "❌ fail"
	}
}

func formatScore(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", *v)
}

func dimensionLabel(dim model.Dimension) string {
	if dim == model.DimensionIdeas {
		return "Ideas"
	}
	name := string(dim)
	return strings.ToUpper(name[:1]) + name[1:]
}
