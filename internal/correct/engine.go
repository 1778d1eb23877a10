// Package correct applies final linguistic and terminology correction to
// preprocessed dictation text via a configurable LLM provider.
//
// Long input is split into chunks at sentence boundaries so every request
// fits the provider's input budget (characters for cloud APIs, tokens for
// local runtimes). Every chunk of one document is corrected with an
// identical system prompt so providers with prompt caching can reuse it, and
// the corrected chunks rejoin with normalised paragraph breaks.
//
// A fast terminology-only variant guards against runaway rewrites from
// smaller models by comparing input and output word sets (Jaccard
// similarity) and lengths, discarding the model output when it drifts too
// far from the input.
package correct

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skribent/skribent/internal/dictation"
	"github.com/skribent/skribent/internal/dictionary"
	"github.com/skribent/skribent/pkg/provider/llm"
)

const defaultTemperature = 0.2

// systemPromptFull instructs the full correction pass.
const systemPromptFull = `You correct dictated medical documents transcribed by a speech engine.

Fix grammar, punctuation, capitalisation, and misrecognised medical terminology. Keep the author's wording and sentence order; do not summarise, expand, or reorder content. Keep paragraph breaks as they are.

Output plain text only: no markdown, no commentary, no introduction.

` + llm.SentinelInstruction

// systemPromptTerminology instructs the fast variant: terminology fixes
// only, nothing stylistic.
const systemPromptTerminology = `You fix misrecognised medical terminology in dictated text.

Replace only words that are clearly misrecognised technical terms. Do not change grammar, style, word order, or anything else. If nothing is misrecognised, return the text unchanged.

Output plain text only: no markdown, no commentary, no introduction.

` + llm.SentinelInstruction

// Result is the outcome of a correction pass.
type Result struct {
	// Text is the corrected document.
	Text string

	// Model attributes the pass for the correction log.
	Model string

	// Chunks is how many provider calls the input was split into.
	Chunks int

	// Guarded counts chunks whose model output the similarity guard
	// discarded in favour of the original (terminology variant only).
	Guarded int
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithTemperature sets the sampling temperature. Default: 0.2.
func WithTemperature(temp float64) Option {
	return func(e *Engine) {
		e.temperature = temp
	}
}

// WithGuard replaces the default similarity guard used by the terminology
// variant.
func WithGuard(g Guard) Option {
	return func(e *Engine) {
		e.guard = g
	}
}

// Engine performs LLM-based correction. Safe for concurrent use.
type Engine struct {
	llm         llm.Provider
	temperature float64
	guard       Guard
}

// New returns an Engine backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Engine {
	e := &Engine{
		llm:         provider,
		temperature: defaultTemperature,
		guard:       DefaultGuard(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Correct runs the full linguistic correction pass. Dictionary entries
// flagged for prompt use are offered to the model as known-correct terms.
func (e *Engine) Correct(ctx context.Context, text string, entries []dictionary.Entry) (*Result, error) {
	return e.run(ctx, text, e.buildSystemPrompt(systemPromptFull, entries), false)
}

// CorrectTerminology runs the fast terminology-only pass with the similarity
// guard applied per chunk: guarded chunks keep their original text.
func (e *Engine) CorrectTerminology(ctx context.Context, text string, entries []dictionary.Entry) (*Result, error) {
	return e.run(ctx, text, e.buildSystemPrompt(systemPromptTerminology, entries), true)
}

// run chunks text, corrects each chunk with the same system prompt, and
// rejoins. A failed chunk call aborts the pass with a provider error carrying
// the chunk index; the caller decides the fallback.
func (e *Engine) run(ctx context.Context, text, sysPrompt string, guarded bool) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("correct: %w: empty input", dictation.ErrValidation)
	}

	chunks := chunk(text, newBudget(e.llm, sysPrompt))
	res := &Result{Chunks: len(chunks)}

	corrected := make([]string, 0, len(chunks))
	for i, c := range chunks {
		start := time.Now()
		resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: sysPrompt,
			UserPrompt:   llm.WrapData(c),
			Temperature:  e.temperature,
		})
		if err != nil {
			perr := dictation.NewProviderError(dictation.ErrProviderUnavailable, e.llm.Name(), "complete", time.Since(start), err)
			perr.Chunk = i
			return nil, perr
		}

		out := CleanModelOutput(resp.Content)
		if out == "" {
			// An emptied chunk is a model failure; keep the original text
			// rather than losing content.
			slog.Warn("correction chunk came back empty, keeping original",
				"provider", e.llm.Name(), "chunk", i)
			out = c
		} else if guarded {
			if verdict := e.guard.Check(c, out); !verdict.OK {
				slog.Warn("similarity guard rejected correction output",
					"provider", e.llm.Name(), "chunk", i,
					"jaccard", fmt.Sprintf("%.2f", verdict.Jaccard),
					"length_ratio", fmt.Sprintf("%.2f", verdict.LengthRatio))
				out = c
				res.Guarded++
			}
		}
		res.Model = resp.Model
		corrected = append(corrected, out)
	}

	res.Text = joinChunks(corrected)
	return res, nil
}

// buildSystemPrompt appends the prompt-flagged dictionary terms to the base
// instruction. The result is identical for every chunk of one document.
func (e *Engine) buildSystemPrompt(base string, entries []dictionary.Entry) string {
	prompt := dictionary.PromptEntries(entries)
	if len(prompt) == 0 {
		return base
	}

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\nKnown corrections (misrecognised → correct):\n")
	for _, en := range prompt {
		sb.WriteString("- ")
		sb.WriteString(en.Wrong)
		sb.WriteString(" → ")
		sb.WriteString(en.Correct)
		sb.WriteByte('\n')
	}
	return sb.String()
}
