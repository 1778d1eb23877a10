package correct

import (
	"strings"
	"unicode"

	"github.com/skribent/skribent/pkg/provider/llm"
)

// abbreviations whose trailing period never ends a sentence. Lowercased;
// covers the English and German forms common in clinical dictation.
var abbreviations = map[string]bool{
	"dr": true, "prof": true, "mr": true, "mrs": true, "ms": true, "st": true,
	"vs": true, "etc": true, "e.g": true, "i.e": true, "cf": true, "ca": true,
	"approx": true, "no": true, "nr": true, "abs": true, "bzw": true,
	"z.b": true, "d.h": true, "u.a": true, "ggf": true, "inkl": true,
	"mg": true, "ml": true, "bid": true, "tid": true, "p.o": true, "i.v": true,
}

// budget is the chunk size constraint derived from a provider's input limit:
// either a character count or a token count with its estimator.
type budget struct {
	maxChars  int
	maxTokens int
	count     func(string) int
}

// newBudget derives the usable chunk budget from the provider's limit, minus
// headroom for the system prompt and the sentinel wrapping.
func newBudget(p llm.Provider, systemPrompt string) budget {
	limit := p.InputLimit()
	const headroomChars = 512

	if limit.MaxTokens > 0 {
		headroom := p.CountTokens(systemPrompt) + p.CountTokens(llm.WrapData("")) + 128
		maxTok := limit.MaxTokens - headroom
		if maxTok < 1 {
			maxTok = 1
		}
		return budget{maxTokens: maxTok, count: p.CountTokens}
	}

	maxChars := limit.MaxChars - len(systemPrompt) - headroomChars
	if maxChars < 1 {
		maxChars = 1
	}
	return budget{maxChars: maxChars}
}

// fits reports whether text is within the budget.
func (b budget) fits(text string) bool {
	if b.maxTokens > 0 {
		return b.count(text) <= b.maxTokens
	}
	return len(text) <= b.maxChars
}

// chunk splits text into pieces that each fit the budget. Splits happen at
// paragraph boundaries first, then sentence boundaries — never mid-sentence
// unless a single sentence alone exceeds the budget, in which case it falls
// back to clause and finally word boundaries.
//
// Paragraph structure inside a chunk is preserved; the pieces rejoin with
// [joinChunks].
func chunk(text string, b budget) []string {
	if b.fits(text) {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	// add appends unit to the current chunk with sep, flushing first when the
	// result would exceed the budget.
	add := func(unit, sep string) {
		if cur.Len() == 0 {
			cur.WriteString(unit)
			return
		}
		if b.fits(cur.String() + sep + unit) {
			cur.WriteString(sep)
			cur.WriteString(unit)
			return
		}
		flush()
		cur.WriteString(unit)
	}

	for _, para := range splitParagraphs(text) {
		first := true
		for _, sentence := range SplitSentences(para) {
			sep := " "
			if first {
				sep = "\n\n"
				first = false
			}
			if b.fits(sentence) {
				add(sentence, sep)
				continue
			}
			// Oversized sentence: clause split, then word split.
			for _, piece := range splitOversized(sentence, b) {
				add(piece, sep)
				sep = " "
			}
		}
	}
	flush()
	return chunks
}

// joinChunks reassembles corrected chunks with a paragraph break between
// them, then collapses redundant blank lines so at most one blank line
// separates any two paragraphs. Trailing whitespace on lines is dropped.
func joinChunks(chunks []string) string {
	joined := strings.Join(chunks, "\n\n")

	lines := strings.Split(joined, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blank = 0
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// splitParagraphs splits on blank lines, keeping paragraph order.
func splitParagraphs(text string) []string {
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// SplitSentences splits paragraph text into sentences. A '.', '!', or '?'
// ends a sentence only when followed by whitespace, and a period is ignored
// when it terminates a recognised abbreviation or an ordinal/date number
// ("12. März", "am 3.").
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Only a boundary when followed by whitespace (or end of text).
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if r == '.' && protectedPeriod(runes, start, i) {
			continue
		}
		s := strings.TrimSpace(string(runes[start : i+1]))
		if s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// protectedPeriod reports whether the period at index i terminates a word
// that must keep its period: a recognised abbreviation or a short number
// (ordinal or date component).
func protectedPeriod(runes []rune, start, i int) bool {
	// Find the word preceding the period.
	w := i
	for w > start && !unicode.IsSpace(runes[w-1]) {
		w--
	}
	word := strings.ToLower(string(runes[w:i]))
	word = strings.TrimLeft(word, "(\"'")
	if abbreviations[word] {
		return true
	}

	// Short all-digit word: an ordinal or a date component, not a sentence
	// end ("am 12. März", "Ziffer 3.").
	if len(word) > 0 && len(word) <= 2 {
		allDigits := true
		for _, r := range word {
			if !unicode.IsDigit(r) {
				allDigits = false
				break
			}
		}
		if allDigits {
			return true
		}
	}
	return false
}

// splitOversized breaks a sentence that alone exceeds the budget, preferring
// clause boundaries (comma, semicolon) and falling back to single words.
func splitOversized(sentence string, b budget) []string {
	clauses := splitAfterAny(sentence, ",;")

	var pieces []string
	var cur strings.Builder
	emit := func() {
		if cur.Len() > 0 {
			pieces = append(pieces, cur.String())
			cur.Reset()
		}
	}

	for _, clause := range clauses {
		if b.fits(clause) {
			if cur.Len() > 0 && !b.fits(cur.String()+" "+clause) {
				emit()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(clause)
			continue
		}
		emit()
		// Word-level last resort.
		for _, word := range strings.Fields(clause) {
			if cur.Len() > 0 && !b.fits(cur.String()+" "+word) {
				emit()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(word)
		}
		emit()
	}
	emit()
	return pieces
}

// splitAfterAny splits s after each occurrence of any rune in seps, keeping
// the separator attached to the preceding piece.
func splitAfterAny(s, seps string) []string {
	var parts []string
	start := 0
	for i, r := range s {
		if strings.ContainsRune(seps, r) {
			part := strings.TrimSpace(s[start : i+1])
			if part != "" {
				parts = append(parts, part)
			}
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}
