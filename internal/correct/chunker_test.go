package correct

import (
	"fmt"
	"strings"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "plain sentences",
			in:   "First sentence. Second sentence! Third?",
			want: []string{"First sentence.", "Second sentence!", "Third?"},
		},
		{
			name: "abbreviation does not split",
			in:   "Seen by Dr. Weber today. Follow up arranged.",
			want: []string{"Seen by Dr. Weber today.", "Follow up arranged."},
		},
		{
			name: "german date ordinal does not split",
			in:   "Aufnahme am 12. März erfolgt. Entlassung geplant.",
			want: []string{"Aufnahme am 12. März erfolgt.", "Entlassung geplant."},
		},
		{
			name: "dose abbreviation",
			in:   "Gabe von 40 mg. p.o. fortgesetzt und gut vertragen. Kontrolle morgen.",
			want: []string{"Gabe von 40 mg. p.o. fortgesetzt und gut vertragen.", "Kontrolle morgen."},
		},
		{
			name: "no trailing terminator",
			in:   "Unfinished dictation without a period",
			want: []string{"Unfinished dictation without a period"},
		},
		{
			name: "decimal point mid number",
			in:   "Kreatinin 1.8 stabil. Weiter beobachten.",
			want: []string{"Kreatinin 1.8 stabil.", "Weiter beobachten."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := SplitSentences(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitSentences(%q) = %q, want %q", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sentence %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestChunkFitsReturnsWhole(t *testing.T) {
	t.Parallel()

	text := "Short report. Nothing to split."
	chunks := chunk(text, budget{maxChars: 1000})
	if len(chunks) != 1 || chunks[0] != text {
		t.Errorf("chunk returned %q, want the input untouched", chunks)
	}
}

func TestChunkLargeInputSplitsAtSentences(t *testing.T) {
	t.Parallel()

	// ~45,000 characters of sentences against a 40,000 character budget.
	sentence := "The patient remains haemodynamically stable on the current regimen and tolerates oral intake without difficulty."
	var sb strings.Builder
	for sb.Len() < 45_000 {
		fmt.Fprintf(&sb, "%s Finding %d documented. ", sentence, sb.Len())
	}
	text := strings.TrimSpace(sb.String())

	b := budget{maxChars: 40_000}
	chunks := chunk(text, b)

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	for i, c := range chunks {
		if !b.fits(c) {
			t.Errorf("chunk %d has %d chars, exceeds budget", i, len(c))
		}
		if !strings.HasSuffix(strings.TrimSpace(c), ".") {
			t.Errorf("chunk %d does not end at a sentence boundary: ...%q", i, c[len(c)-30:])
		}
	}

	// No content lost: the rejoined text has the same words.
	if got, want := strings.Fields(joinChunks(chunks)), strings.Fields(text); len(got) != len(want) {
		t.Errorf("rejoined word count %d, want %d", len(got), len(want))
	}
}

func TestChunkTokenBudget(t *testing.T) {
	t.Parallel()

	count := func(s string) int { return len(strings.Fields(s)) }
	b := budget{maxTokens: 8, count: count}

	text := "One two three four five. Six seven eight nine ten. Eleven twelve."
	chunks := chunk(text, b)

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	for i, c := range chunks {
		if count(c) > 8 {
			t.Errorf("chunk %d has %d tokens, exceeds budget", i, count(c))
		}
	}
}

func TestChunkOversizedSentence(t *testing.T) {
	t.Parallel()

	// A single run-on sentence far above the budget must still split.
	words := make([]string, 200)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ") + "."

	b := budget{maxChars: 120}
	chunks := chunk(text, b)

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 120 {
			t.Errorf("chunk %d has %d chars, exceeds budget", i, len(c))
		}
	}
}

func TestJoinChunks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{
			name:   "single chunk unchanged",
			chunks: []string{"One paragraph."},
			want:   "One paragraph.",
		},
		{
			name:   "paragraph break between chunks",
			chunks: []string{"First.", "Second."},
			want:   "First.\n\nSecond.",
		},
		{
			name:   "redundant blank lines collapse",
			chunks: []string{"First.\n\n", "\n\nSecond."},
			want:   "First.\n\nSecond.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := joinChunks(tt.chunks); got != tt.want {
				t.Errorf("joinChunks = %q, want %q", got, tt.want)
			}
		})
	}
}
