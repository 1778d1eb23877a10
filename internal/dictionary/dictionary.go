// Package dictionary provides user-specific wrong→correct substitution lists
// applied during preprocessing and offered to providers as vocabulary hints.
//
// Entries come from a [Provider]; the built-in [FileProvider] loads them from
// a YAML file keyed by user. Substitution is deterministic: exact word
// matches always apply, and entries flagged with MatchStem additionally match
// tokens that merely begin with the wrong form, preserving the inflected
// suffix (dictated languages with rich inflection need this to catch case
// endings the dictating user never speaks).
package dictionary

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Entry is one wrong→correct substitution.
type Entry struct {
	// Wrong is the misrecognised form as it appears in ASR output.
	Wrong string `yaml:"wrong"`

	// Correct is the replacement.
	Correct string `yaml:"correct"`

	// UseInPrompt marks this entry for inclusion in LLM correction prompts
	// and ASR vocabulary hints.
	UseInPrompt bool `yaml:"use_in_prompt"`

	// MatchStem enables prefix matching: a token whose beginning equals
	// Wrong is rewritten to Correct plus the token's remaining suffix.
	MatchStem bool `yaml:"match_stem"`
}

// Provider loads the dictionary for a user. Implementations must be safe for
// concurrent use.
type Provider interface {
	Load(ctx context.Context, userID string) ([]Entry, error)
}

// PromptEntries filters entries down to those flagged for prompt inclusion.
func PromptEntries(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.UseInPrompt {
			out = append(out, e)
		}
	}
	return out
}

// Vocabulary returns the correct forms of all prompt-flagged entries, for use
// as an ASR biasing vocabulary list.
func Vocabulary(entries []Entry) []string {
	var out []string
	for _, e := range entries {
		if e.UseInPrompt && e.Correct != "" {
			out = append(out, e.Correct)
		}
	}
	return out
}

// Apply rewrites text by substituting every dictionary match. Matching is
// case-insensitive on whole tokens; trailing punctuation on a token is
// preserved. Longer wrong forms win over shorter ones when both match at the
// same position. Whitespace between tokens, including line and paragraph
// breaks, is carried through verbatim.
//
// Apply is idempotent as long as no Correct form is itself the Wrong form of
// another entry.
func Apply(text string, entries []Entry) string {
	if len(entries) == 0 || text == "" {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	changed := false

	for i := 0; i < len(text); {
		j := i
		for j < len(text) {
			r, size := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(r) {
				break
			}
			j += size
		}
		if j > i {
			b.WriteString(text[i:j])
			i = j
			continue
		}
		for j < len(text) {
			r, size := utf8.DecodeRuneInString(text[j:])
			if unicode.IsSpace(r) {
				break
			}
			j += size
		}
		tok := text[i:j]
		core, trail := splitTrailingPunct(tok)
		if repl, ok := match(core, entries); core != "" && ok {
			b.WriteString(repl)
			b.WriteString(trail)
			changed = true
		} else {
			b.WriteString(tok)
		}
		i = j
	}

	if !changed {
		return text
	}
	return b.String()
}

// match finds the replacement for core, preferring exact matches, then the
// longest stem match.
func match(core string, entries []Entry) (string, bool) {
	lower := strings.ToLower(core)

	var (
		best    string
		bestLen int
		found   bool
	)
	for _, e := range entries {
		w := strings.ToLower(e.Wrong)
		if w == "" {
			continue
		}
		if lower == w {
			return e.Correct, true
		}
		if e.MatchStem && strings.HasPrefix(lower, w) && len(w) > bestLen {
			best = e.Correct + core[len(w):]
			bestLen = len(w)
			found = true
		}
	}
	return best, found
}

// splitTrailingPunct splits a token into its core and any trailing
// punctuation run, so "tachicardia," matches the entry for "tachicardia".
func splitTrailingPunct(tok string) (core, trail string) {
	runes := []rune(tok)
	i := len(runes)
	for i > 0 && (unicode.IsPunct(runes[i-1]) || unicode.IsSymbol(runes[i-1])) {
		i--
	}
	return string(runes[:i]), string(runes[i:])
}
