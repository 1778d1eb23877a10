package correct

import (
	"strings"

	"github.com/skribent/skribent/pkg/provider/llm"
)

// knownPreambles are phrases models prepend to corrected text despite being
// told not to. Matched case-insensitively at the start of the output.
var knownPreambles = []string{
	"here is the corrected text:",
	"here's the corrected text:",
	"here is the corrected version:",
	"corrected text:",
	"hier ist der korrigierte text:",
	"korrigierter text:",
	"sure, here is the corrected text:",
}

// CleanModelOutput normalises raw LLM output into usable document text: it
// strips echoed sentinel delimiters, known preambles, markdown code fences,
// and markdown emphasis, then trims surrounding whitespace.
func CleanModelOutput(s string) string {
	s = llm.StripSentinels(s)
	s = stripFences(s)
	s = stripPreamble(s)
	s = stripEmphasis(s)
	return strings.TrimSpace(s)
}

// stripFences removes a wrapping markdown code fence (```text ... ```).
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	if before, ok := strings.CutSuffix(strings.TrimSpace(s), "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

// stripPreamble removes one known preamble phrase from the start of the
// output, including a following blank line.
func stripPreamble(s string) string {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)
	for _, p := range knownPreambles {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(trimmed[len(p):])
		}
	}
	return s
}

// stripEmphasis removes markdown bold and italic markers the model may wrap
// around terms it "fixed". Underscores inside words (lab codes, identifiers)
// are left alone.
func stripEmphasis(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")

	// Single-asterisk emphasis: drop asterisks that hug a word boundary.
	var sb strings.Builder
	sb.Grow(len(s))
	runes := []rune(s)
	for i, r := range runes {
		if r != '*' {
			sb.WriteRune(r)
			continue
		}
		prevSpace := i == 0 || runes[i-1] == ' ' || runes[i-1] == '\n'
		nextSpace := i == len(runes)-1 || runes[i+1] == ' ' || runes[i+1] == '\n'
		if prevSpace && nextSpace {
			// A lone asterisk is probably dictated content; keep it.
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
