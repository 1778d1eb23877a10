// Package preprocess deterministically rewrites spoken formatting directives
// ("new paragraph", "comma", "delete last word") into real punctuation, line
// breaks, and deletions, and applies the user dictionary.
//
// Doing this mechanically keeps formatting out of the nondeterministic LLM
// correction stage. Normalisation is idempotent: running it again on already
// normalised text changes nothing, because directive words no longer appear
// and existing line and paragraph breaks are preserved.
package preprocess

import (
	"strings"

	"github.com/skribent/skribent/internal/dictionary"
)

// token kinds in the intermediate stream.
const (
	tokWord = iota
	tokLineBreak
	tokParaBreak
)

type token struct {
	kind int
	text string
}

// directive maps a spoken phrase (lowercased, space-separated) to its effect.
type directive struct {
	// punct is appended to the preceding word ("," "." ":" ";" "?" "!" ")").
	punct string
	// open is prepended to the following word ("(").
	open string
	// brk emits a break token.
	brk int
	// deleteLast removes the preceding word.
	deleteLast bool
}

// directives is keyed by phrase word count first so the scanner can try the
// longest phrases at each position.
var directives = map[string]directive{
	"new paragraph":     {brk: tokParaBreak},
	"next paragraph":    {brk: tokParaBreak},
	"new line":          {brk: tokLineBreak},
	"next line":         {brk: tokLineBreak},
	"comma":             {punct: ","},
	"period":            {punct: "."},
	"full stop":         {punct: "."},
	"colon":             {punct: ":"},
	"semicolon":         {punct: ";"},
	"question mark":     {punct: "?"},
	"exclamation mark":  {punct: "!"},
	"exclamation point": {punct: "!"},
	"open parenthesis":  {open: "("},
	"close parenthesis": {punct: ")"},
	"delete last word":  {deleteLast: true},
}

// maxDirectiveWords is the longest phrase length in the directive table.
const maxDirectiveWords = 3

// Normalizer rewrites spoken formatting directives and applies a dictionary.
// The zero value applies directives only. Safe for concurrent use; it is
// read-only after construction.
type Normalizer struct {
	entries []dictionary.Entry
}

// New returns a Normalizer that additionally applies the given dictionary
// entries after directive rewriting.
func New(entries []dictionary.Entry) *Normalizer {
	return &Normalizer{entries: entries}
}

// Normalize returns the normalised form of text.
func (n *Normalizer) Normalize(text string) string {
	out := render(applyDirectives(lex(text)))
	if n != nil && len(n.entries) > 0 {
		out = dictionary.Apply(out, n.entries)
	}
	return out
}

// lex splits text into word and break tokens. Two or more consecutive
// newlines form a paragraph break; a single newline forms a line break. All
// other whitespace separates words.
func lex(text string) []token {
	var toks []token
	word := strings.Builder{}
	newlines := 0

	flushWord := func() {
		if word.Len() > 0 {
			toks = append(toks, token{kind: tokWord, text: word.String()})
			word.Reset()
		}
	}
	flushBreak := func() {
		if newlines >= 2 {
			toks = append(toks, token{kind: tokParaBreak})
		} else if newlines == 1 {
			toks = append(toks, token{kind: tokLineBreak})
		}
		newlines = 0
	}

	for _, r := range text {
		switch {
		case r == '\n':
			flushWord()
			newlines++
		case r == ' ' || r == '\t' || r == '\r':
			flushWord()
		default:
			flushBreak()
			word.WriteRune(r)
		}
	}
	flushWord()
	flushBreak()
	return toks
}

// applyDirectives scans the token stream for directive phrases and rewrites
// them into punctuation, breaks, and deletions.
func applyDirectives(in []token) []token {
	var out []token
	pendingOpen := ""

	lastWordIdx := func() int {
		for i := len(out) - 1; i >= 0; i-- {
			if out[i].kind == tokWord {
				return i
			}
		}
		return -1
	}

	i := 0
	for i < len(in) {
		if in[i].kind != tokWord {
			out = append(out, in[i])
			i++
			continue
		}

		d, n, ok := matchDirective(in, i)
		if !ok {
			w := in[i].text
			if pendingOpen != "" {
				w = pendingOpen + w
				pendingOpen = ""
			}
			out = append(out, token{kind: tokWord, text: w})
			i++
			continue
		}

		switch {
		case d.punct != "":
			if j := lastWordIdx(); j >= 0 && !strings.HasSuffix(out[j].text, d.punct) {
				out[j].text += d.punct
			}
		case d.open != "":
			pendingOpen = d.open
		case d.brk != 0:
			// Collapse a break directive spoken right after an existing break.
			if len(out) > 0 && out[len(out)-1].kind != tokWord {
				out[len(out)-1] = token{kind: d.brk}
			} else {
				out = append(out, token{kind: d.brk})
			}
		case d.deleteLast:
			if j := lastWordIdx(); j >= 0 {
				out = append(out[:j], out[j+1:]...)
			}
		}
		i += n
	}
	return out
}

// matchDirective tries the longest directive phrase starting at position i.
// Returns the directive, the number of tokens consumed, and whether a phrase
// matched. Only runs of plain word tokens participate.
func matchDirective(in []token, i int) (directive, int, bool) {
	for n := maxDirectiveWords; n >= 1; n-- {
		if i+n > len(in) {
			continue
		}
		words := make([]string, 0, n)
		ok := true
		for _, t := range in[i : i+n] {
			if t.kind != tokWord {
				ok = false
				break
			}
			words = append(words, strings.ToLower(t.text))
		}
		if !ok {
			continue
		}
		if d, found := directives[strings.Join(words, " ")]; found {
			return d, n, true
		}
	}
	return directive{}, 0, false
}

// render flattens the token stream back into text: words joined by single
// spaces, line breaks as "\n", paragraph breaks as "\n\n". Leading and
// trailing breaks are dropped.
func render(toks []token) string {
	// Trim leading/trailing breaks.
	start, end := 0, len(toks)
	for start < end && toks[start].kind != tokWord {
		start++
	}
	for end > start && toks[end-1].kind != tokWord {
		end--
	}

	var sb strings.Builder
	prev := -1
	for _, t := range toks[start:end] {
		switch t.kind {
		case tokWord:
			if prev == tokWord {
				sb.WriteByte(' ')
			}
			sb.WriteString(t.text)
		case tokLineBreak:
			sb.WriteByte('\n')
		case tokParaBreak:
			sb.WriteString("\n\n")
		}
		prev = t.kind
	}
	return sb.String()
}
