// Package changescore computes the 0–100 "amount changed" metric between two
// text versions. It is used as a human-review triage signal and as the
// per-stage audit value in the correction log.
//
// The metric is Levenshtein distance over whitespace-normalised text, scaled
// by the longer text's length. Normalisation collapses all runs of
// whitespace (including newlines) to single spaces first, so pure paragraph
// reflow scores 0 while genuine lexical edits are captured.
package changescore

import (
	"math"
	"strings"

	"github.com/antzucaro/matchr"
)

// Score returns how much b differs from a, in [0, 100].
//
// Properties:
//   - Score(x, x) == 0 for any x.
//   - Score("", x) == 100 for any non-empty x (and symmetrically).
//   - Insensitive to pure whitespace/paragraph reflow.
func Score(a, b string) int {
	na := normalize(a)
	nb := normalize(b)

	if na == nb {
		return 0
	}
	if na == "" || nb == "" {
		return 100
	}

	dist := matchr.Levenshtein(na, nb)
	longest := max(len([]rune(na)), len([]rune(nb)))

	score := int(math.Round(float64(dist) / float64(longest) * 100))
	if score > 100 {
		score = 100
	}
	if score < 1 {
		// Any real difference scores at least 1 so the log never records a
		// change as a no-op.
		score = 1
	}
	return score
}

// normalize collapses all whitespace runs to single spaces and trims the
// ends, making the metric blind to cosmetic reflow.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
