// Package reconcile implements double-precision reconciliation: two
// independent transcriptions of one recording are aligned token by token,
// divergent regions are marked with provider attribution, and an LLM resolves
// the marked text into one coherent transcript.
//
// Running two ASR engines offsets either engine's blind spots. When the
// transcripts agree the first one is used verbatim and no LLM call is made;
// the reconciliation is still logged so the equivalence is auditable. Both
// source texts are always preserved verbatim so the merge can be replayed
// later under a different model or configuration without re-transcribing
// audio.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/skribent/skribent/internal/correct"
	"github.com/skribent/skribent/internal/dictation"
	"github.com/skribent/skribent/internal/dictionary"
	"github.com/skribent/skribent/pkg/provider/llm"
)

const defaultTemperature = 0.2

// systemPrompt instructs the merge model. The marked dictation text is
// wrapped in sentinel delimiters and must be treated as data.
const systemPrompt = `You merge two machine transcriptions of the same dictated medical document into one correct text.

Divergent passages appear twice in the input, each variant wrapped in [[engine]]...[[/engine]] markers naming the speech engine that produced it. Unmarked passages are identical in both transcriptions.

Rules:
- For every marked passage, choose the variant that is medically and grammatically correct in context. You may combine parts of both variants when each got a different word right.
- Never invent content that appears in neither variant.
- Remove all markers from your output.
- Keep unmarked passages exactly as they are.
- Output plain text only: no markdown, no commentary, no explanation.

` + llm.SentinelInstruction

// Context carries optional dictation metadata that helps the model resolve
// ambiguous regions (names, dates, domain terms).
type Context struct {
	// Patient identifies the patient the document concerns.
	Patient string

	// Date is the dictation date as the clinic formats it.
	Date string

	// Clinician is the dictating clinician's name.
	Clinician string

	// Dictionary entries flagged for prompt use, offered as known-correct
	// terminology.
	Dictionary []dictionary.Entry

	// PromptOverride replaces the built-in system prompt when an operator
	// has configured a custom merge instruction.
	PromptOverride string
}

// Option is a functional option for configuring a [Reconciler].
type Option func(*Reconciler)

// WithTemperature sets the merge model sampling temperature. Default: 0.2.
func WithTemperature(temp float64) Option {
	return func(r *Reconciler) {
		r.temperature = temp
	}
}

// Reconciler aligns and merges dual transcriptions. Safe for concurrent use.
type Reconciler struct {
	llm         llm.Provider
	temperature float64
}

// New returns a Reconciler backed by the given merge model provider.
func New(provider llm.Provider, opts ...Option) *Reconciler {
	r := &Reconciler{
		llm:         provider,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Reconcile merges the two transcription results. When the token streams are
// identical it returns immediately with HasDifferences false and no LLM
// call. Otherwise the marked text is sent to the merge model.
//
// A non-nil error means the merge call failed; the returned artefact is nil
// and the caller decides the fallback (the pipeline fails soft to the first
// transcription).
func (r *Reconciler) Reconcile(ctx context.Context, first, second dictation.TranscriptionResult, mergeCtx Context) (*dictation.MergedTranscription, error) {
	merged := &dictation.MergedTranscription{
		Text1:     first.Text,
		Provider1: first.ProviderID,
		Text2:     second.Text,
		Provider2: second.ProviderID,
	}

	a := tokenize(first.Text)
	b := tokenize(second.Text)
	anchors := tokenLCS(a, b)
	regions := diffRegions(a, b, anchors)

	if len(regions) == 0 {
		merged.HasDifferences = false
		merged.MarkedText = first.Text
		merged.MergedText = first.Text
		return merged, nil
	}

	merged.HasDifferences = true
	merged.MarkedText = markedText(a, b, anchors, first.ProviderID, second.ProviderID)

	sys := systemPrompt
	if mergeCtx.PromptOverride != "" {
		sys = mergeCtx.PromptOverride + "\n\n" + llm.SentinelInstruction
	}

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: sys,
		UserPrompt:   buildUserPrompt(merged.MarkedText, mergeCtx),
		Temperature:  r.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile: merge completion: %w", err)
	}

	merged.MergedText = correct.CleanModelOutput(resp.Content)
	merged.Model = resp.Model
	if merged.MergedText == "" {
		// An empty merge is useless; treat it like a parse failure.
		return nil, fmt.Errorf("reconcile: %w: empty merge output", dictation.ErrParse)
	}
	return merged, nil
}

// buildUserPrompt assembles the marked text plus optional context into the
// user message. The dictation content itself is sentinel-wrapped.
func buildUserPrompt(marked string, mergeCtx Context) string {
	var sb strings.Builder

	if mergeCtx.Patient != "" {
		fmt.Fprintf(&sb, "Patient: %s\n", mergeCtx.Patient)
	}
	if mergeCtx.Date != "" {
		fmt.Fprintf(&sb, "Date: %s\n", mergeCtx.Date)
	}
	if mergeCtx.Clinician != "" {
		fmt.Fprintf(&sb, "Clinician: %s\n", mergeCtx.Clinician)
	}
	if len(mergeCtx.Dictionary) > 0 {
		sb.WriteString("Known correct terms: ")
		terms := make([]string, 0, len(mergeCtx.Dictionary))
		for _, e := range mergeCtx.Dictionary {
			terms = append(terms, e.Correct)
		}
		sb.WriteString(strings.Join(terms, ", "))
		sb.WriteString("\n")
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(llm.WrapData(marked))
	return sb.String()
}
