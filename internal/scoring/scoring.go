// Package scoring is a deterministic heuristic that rates generated replies
// for the audit trail. It is intentionally not a learning system: the score
// is a fixed formula over surface features, it keeps no state, and nothing
// in the broker branches on it.
package scoring

import "strings"

// Score rates a reply in [0, 100]. Longer, structured replies score higher;
// empty or error-shaped replies score zero.
func Score(reply string) int {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return 0
	}

	score := 0

	// Length band, capped so verbosity alone cannot max the score.
	switch n := len(trimmed); {
	case n >= 800:
		score += 40
	case n >= 200:
		score += 30
	case n >= 50:
		score += 20
	default:
		score += 10
	}

	if strings.Contains(trimmed, "```") {
		score += 25
	}
	if strings.Contains(trimmed, "\n") {
		score += 15
	}
	// Bulleted or numbered structure.
	if strings.Contains(trimmed, "\n- ") || strings.Contains(trimmed, "\n1.") {
		score += 10
	}
	if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "`") {
		score += 10
	}

	if score > 100 {
		score = 100
	}
	return score
}
