package judge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ensemble-chat/server/internal/eval/model"
)

const (
	scorePrefix     = "SCORE:"
	reasoningPrefix = "REASONING:"

	// basic safety limit to avoid pathological model output
	maxJudgeOutputLen = 32 * 1024 // 32KB
)

// parseVerdict extracts the score and reasoning from the judge model's
// delimited reply:
//
//	SCORE: 7
//	REASONING: free text, possibly spanning lines
//
// A missing or out-of-range score is an error; the caller treats it like
// any other failed judge call.
func parseVerdict(content string) (float64, string, error) {
	if len(content) > maxJudgeOutputLen {
		content = content[:maxJudgeOutputLen]
	}

	var score float64
	var haveScore bool
	var reasoning strings.Builder
	var inReasoning bool

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case !haveScore && strings.HasPrefix(trimmed, scorePrefix):
			raw := strings.TrimSpace(strings.TrimPrefix(trimmed, scorePrefix))
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return 0, "", fmt.Errorf("judge score parse %q: %w", raw, err)
			}
			if v < 0 || v > model.MaxScore {
				return 0, "", fmt.Errorf("judge score %v out of range [0,%v]", v, model.MaxScore)
			}
			score = v
			haveScore = true
		case strings.HasPrefix(trimmed, reasoningPrefix):
			inReasoning = true
			rest := strings.TrimSpace(strings.TrimPrefix(trimmed, reasoningPrefix))
			if rest != "" {
				reasoning.WriteString(rest)
			}
		case inReasoning && trimmed != "":
			if reasoning.Len() > 0 {
				reasoning.WriteString(" ")
			}
			reasoning.WriteString(trimmed)
		}
	}

	if !haveScore {
		return 0, "", fmt.Errorf("judge reply missing %s line", scorePrefix)
	}
	return score, reasoning.String(), nil
}
