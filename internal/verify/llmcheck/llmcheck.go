// Package llmcheck asks a text-completion model whether the names the
// pipeline resolved are plausible given the transcript. The verdict is
// advisory: it is recorded alongside the verified matches, never used to
// drop them.
package llmcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ATAboukhadra/T30-Mazad/internal/verify"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/llm"
)

const systemPrompt = `You are reviewing the output of a speech transcription pipeline for football commentary.
Given a transcript and a list of player names the pipeline claims were mentioned, judge whether each name is plausibly present in the transcript, allowing for transcription errors and phonetic similarity.
Respond with a single JSON object of the form:
{"all_valid": true|false, "invalid_names": ["..."], "reasoning": "..."}
List a name in invalid_names only when the transcript gives no plausible support for it.`

// Verdict is the model's judgement.
type Verdict struct {
	AllValid     bool     `json:"all_valid"`
	InvalidNames []string `json:"invalid_names"`
	Reasoning    string   `json:"reasoning"`
}

// Checker runs the plausibility check.
type Checker struct {
	provider  llm.Provider
	maxTokens int
}

// Option is a functional option for Checker.
type Option func(*Checker)

// WithMaxTokens caps the verdict length. Defaults to 512.
func WithMaxTokens(n int) Option {
	return func(c *Checker) { c.maxTokens = n }
}

// New constructs a Checker over provider.
func New(provider llm.Provider, opts ...Option) (*Checker, error) {
	if provider == nil {
		return nil, errors.New("llmcheck: provider must not be nil")
	}
	c := &Checker{provider: provider, maxTokens: 512}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Check submits the transcript and matched names and parses the verdict.
// An empty match list short-circuits to an all-valid verdict without a call.
func (c *Checker) Check(ctx context.Context, transcript string, matches []verify.Match) (Verdict, error) {
	if len(matches) == 0 {
		return Verdict{AllValid: true}, nil
	}

	names := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.Name]; ok {
			continue
		}
		seen[m.Name] = struct{}{}
		names = append(names, m.Name)
	}

	var sb strings.Builder
	sb.WriteString("Transcript:\n")
	sb.WriteString(transcript)
	sb.WriteString("\n\nClaimed player names:\n")
	for _, n := range names {
		sb.WriteString("- ")
		sb.WriteString(n)
		sb.WriteString("\n")
	}

	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: sb.String()}},
		MaxTokens:    c.maxTokens,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("llmcheck: completion: %w", err)
	}

	verdict, err := parseVerdict(resp.Content)
	if err != nil {
		return Verdict{}, err
	}
	return verdict, nil
}

// parseVerdict extracts the JSON object from the model response, tolerating
// surrounding prose and markdown fences.
func parseVerdict(content string) (Verdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return Verdict{}, fmt.Errorf("llmcheck: no JSON object in response %q", content)
	}
	var v Verdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return Verdict{}, fmt.Errorf("llmcheck: parse verdict: %w", err)
	}
	return v, nil
}
