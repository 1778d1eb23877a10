package preprocess

import (
	"testing"

	"github.com/skribent/skribent/internal/dictionary"
)

func TestNormalizeDirectives(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "comma attaches to preceding word",
			in:   "blood pressure comma pulse regular",
			want: "blood pressure, pulse regular",
		},
		{
			name: "period and full stop",
			in:   "no fever period lungs clear full stop",
			want: "no fever. lungs clear.",
		},
		{
			name: "new paragraph",
			in:   "assessment stable new paragraph plan discharge",
			want: "assessment stable\n\nplan discharge",
		},
		{
			name: "new line",
			in:   "first item new line second item",
			want: "first item\nsecond item",
		},
		{
			name: "question and exclamation marks",
			in:   "any allergies question mark none exclamation mark",
			want: "any allergies? none!",
		},
		{
			name: "parentheses wrap following word",
			in:   "rate open parenthesis resting close parenthesis normal",
			want: "rate (resting) normal",
		},
		{
			name: "delete last word removes preceding word",
			in:   "patient shows mild delete last word moderate distress",
			want: "patient shows moderate distress",
		},
		{
			name: "delete last word at start is a no-op",
			in:   "delete last word hello",
			want: "hello",
		},
		{
			name: "directive case-insensitive",
			in:   "stable Comma improving",
			want: "stable, improving",
		},
		{
			name: "doubled punctuation directive collapses",
			in:   "done period period",
			want: "done.",
		},
		{
			name: "no directives unchanged",
			in:   "plain dictated text without any markers",
			want: "plain dictated text without any markers",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}

	n := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := n.Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	n := New([]dictionary.Entry{
		{Wrong: "tachicardia", Correct: "tachycardia"},
	})

	inputs := []string{
		"findings comma sinus tachicardia period new paragraph plan colon rest",
		"already normalised text, with punctuation.\n\nAnd a second paragraph.",
		"line one\nline two",
	}
	for _, in := range inputs {
		once := n.Normalize(in)
		twice := n.Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q:\n first: %q\nsecond: %q", in, once, twice)
		}
	}
}

func TestNormalizeAppliesDictionary(t *testing.T) {
	t.Parallel()

	n := New([]dictionary.Entry{
		{Wrong: "tachicardia", Correct: "tachycardia"},
	})
	got := n.Normalize("sinus tachicardia comma resolving")
	want := "sinus tachycardia, resolving"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalizeDictionaryKeepsDirectiveBreaks(t *testing.T) {
	t.Parallel()

	n := New([]dictionary.Entry{
		{Wrong: "tachicardia", Correct: "tachycardia"},
	})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "substitution before paragraph directive",
			in:   "Patient shows tachicardia new paragraph Plan unchanged",
			want: "Patient shows tachycardia\n\nPlan unchanged",
		},
		{
			name: "substitution after line directive",
			in:   "Befund new line sinus tachicardia period",
			want: "Befund\nsinus tachycardia.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := n.Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizePreservesParagraphs(t *testing.T) {
	t.Parallel()

	n := New(nil)
	in := "First paragraph.\n\nSecond paragraph with new paragraph a break."
	got := n.Normalize(in)
	want := "First paragraph.\n\nSecond paragraph with\n\na break."
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}
