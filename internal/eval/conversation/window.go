package conversation

import (
	"fmt"
	"strings"

	"github.com/ensemble-chat/server/internal/eval/model"
)

// ApplyWindow filters messages to those newer than window.Since and trims to
// the most recent window.Limit entries, preserving oldest-first order.
func ApplyWindow(msgs []model.Message, window model.Window) []model.Message {
	filtered := msgs
	if !window.Since.IsZero() {
		filtered = filtered[:0:0]
		for _, m := range msgs {
			if m.CreatedAt.After(window.Since) {
				filtered = append(filtered, m)
			}
		}
	}
	if window.Limit > 0 && len(filtered) > window.Limit {
		filtered = filtered[len(filtered)-window.Limit:]
	}
	out := make([]model.Message, len(filtered))
	copy(out, filtered)
	return out
}

// EvidenceLines renders messages as the "user: text" lines handed to the
// judge. Empty messages are skipped.
func EvidenceLines(msgs []model.Message) []string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", m.UserID, text))
	}
	return lines
}

// Texts extracts just the message bodies, for the lexical statistics.
func Texts(msgs []model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		out = append(out, m.Text)
	}
	return out
}

// ByAuthor groups message texts by their author, for per-agent-pair
// convergence statistics.
func ByAuthor(msgs []model.Message) map[string][]string {
	groups := make(map[string][]string)
	for _, m := range msgs {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		groups[m.UserID] = append(groups[m.UserID], m.Text)
	}
	return groups
}
