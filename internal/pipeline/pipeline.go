// Package pipeline composes the resolution stages end to end: clip
// extraction, prompt construction, multi-pass transcription, entity
// matching, verification, and the optional LLM plausibility check. Each
// stage writes its artifact as soon as it completes, so a later failure
// never loses earlier results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ATAboukhadra/T30-Mazad/internal/knowledge/semindex"
	"github.com/ATAboukhadra/T30-Mazad/internal/match"
	"github.com/ATAboukhadra/T30-Mazad/internal/observe"
	"github.com/ATAboukhadra/T30-Mazad/internal/prompt"
	"github.com/ATAboukhadra/T30-Mazad/internal/transcribe"
	"github.com/ATAboukhadra/T30-Mazad/internal/verify"
	"github.com/ATAboukhadra/T30-Mazad/internal/verify/llmcheck"
	"github.com/ATAboukhadra/T30-Mazad/pkg/media"
)

// Stage names, used in errors, metrics attributes, and span names.
const (
	StageExtract    = "extract"
	StagePrompt     = "prompt"
	StageTranscribe = "transcribe"
	StageMatch      = "match"
	StageVerify     = "verify"
	StageLLMCheck   = "llmcheck"
)

// StageError reports which stage a pipeline run failed in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Input describes one pipeline run.
type Input struct {
	// Source is the media file to cut the clip from.
	Source string

	// Segment bounds the clip within the source.
	Segment media.Segment

	// Question optionally constrains which knowledge records condition the
	// prompt and the verification round.
	Question string
}

// Output collects the results of all stages that completed.
type Output struct {
	Clip       media.Clip
	Prompt     string
	Transcript transcribe.Transcript
	Candidates []match.Candidate
	Verified   verify.Result

	// Verdict is the advisory LLM check result, nil when the check is
	// disabled or failed. VerdictErr carries the failure in the latter case.
	Verdict    *llmcheck.Verdict
	VerdictErr error
}

// Extractor cuts a clip out of source media. *media.Extractor satisfies it.
type Extractor interface {
	Extract(ctx context.Context, sourcePath string, seg media.Segment, destDir string) (media.Clip, error)
}

var _ Extractor = (*media.Extractor)(nil)

// Pipeline runs the full resolution flow over a single clip.
type Pipeline struct {
	extractor   Extractor
	builder     *prompt.Builder
	transcriber *transcribe.Transcriber
	matcher     *match.Matcher
	verifier    *verify.Verifier

	checker      *llmcheck.Checker
	semantic     *semindex.Index
	semanticTopK int
	charBudget   int

	artifacts *Artifacts
	metrics   *observe.Metrics
	logger    *slog.Logger
}

// Option is a functional option for Pipeline.
type Option func(*Pipeline)

// WithChecker enables the advisory LLM plausibility check.
func WithChecker(c *llmcheck.Checker) Option {
	return func(p *Pipeline) { p.checker = c }
}

// WithSemanticIndex routes prompt record selection through the semantic
// index: the question retrieves the topK closest records instead of the
// lexical constraint filter.
func WithSemanticIndex(idx *semindex.Index, topK int) Option {
	return func(p *Pipeline) {
		p.semantic = idx
		p.semanticTopK = topK
	}
}

// WithCharBudget bounds prompts rendered from semantic retrieval results.
func WithCharBudget(n int) Option {
	return func(p *Pipeline) { p.charBudget = n }
}

// WithArtifacts enables artifact writing.
func WithArtifacts(a *Artifacts) Option {
	return func(p *Pipeline) { p.artifacts = a }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New constructs a Pipeline from its stage implementations.
func New(extractor Extractor, builder *prompt.Builder, transcriber *transcribe.Transcriber, matcher *match.Matcher, verifier *verify.Verifier, opts ...Option) (*Pipeline, error) {
	if extractor == nil || builder == nil || transcriber == nil || matcher == nil || verifier == nil {
		return nil, errors.New("pipeline: all stage implementations must be non-nil")
	}
	p := &Pipeline{
		extractor:   extractor,
		builder:     builder,
		transcriber: transcriber,
		matcher:     matcher,
		verifier:    verifier,
		charBudget:  prompt.DefaultCharBudget,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// Run executes all stages over in. On failure the returned Output still
// holds everything the completed stages produced, and the error is a
// *StageError naming the stage that failed.
func (p *Pipeline) Run(ctx context.Context, in Input) (out Output, err error) {
	defer func() { p.metrics.RecordClip(ctx, err) }()

	err = p.runStage(ctx, StageExtract, func(ctx context.Context) error {
		clip, err := p.extractor.Extract(ctx, in.Source, in.Segment, p.clipDir())
		if err != nil {
			return err
		}
		out.Clip = clip
		return nil
	})
	if err != nil {
		return out, err
	}

	err = p.runStage(ctx, StagePrompt, func(ctx context.Context) error {
		text, err := p.buildPrompt(ctx, in.Question)
		if err != nil {
			return err
		}
		out.Prompt = text
		return p.artifacts.WritePrompt(text)
	})
	if err != nil {
		return out, err
	}

	err = p.runStage(ctx, StageTranscribe, func(ctx context.Context) error {
		tr, err := p.transcriber.Transcribe(ctx, out.Clip, out.Prompt)
		for _, pass := range tr.Passes {
			p.metrics.RecordPass(ctx, pass.Dropped())
		}
		if err != nil {
			return err
		}
		out.Transcript = tr
		if werr := p.artifacts.WriteTranscript(tr.Text); werr != nil {
			return werr
		}
		return p.artifacts.WriteTokens(tr.Passes)
	})
	if err != nil {
		return out, err
	}

	err = p.runStage(ctx, StageMatch, func(ctx context.Context) error {
		cands, err := p.matcher.Match(out.Transcript.Tokens)
		if err != nil {
			return err
		}
		out.Candidates = cands
		p.metrics.Candidates.Record(ctx, int64(len(cands)))
		return p.artifacts.WriteCandidates(cands)
	})
	if err != nil {
		return out, err
	}

	err = p.runStage(ctx, StageVerify, func(ctx context.Context) error {
		res, err := p.verifier.Verify(ctx, out.Clip, in.Question, out.Candidates)
		if err != nil {
			return err
		}
		out.Verified = res
		return p.artifacts.WriteVerified(res)
	})
	if err != nil {
		return out, err
	}

	if p.checker != nil {
		// Advisory only: a check failure is recorded, never fatal.
		cerr := p.runStage(ctx, StageLLMCheck, func(ctx context.Context) error {
			verdict, err := p.checker.Check(ctx, out.Transcript.Text, out.Verified.Matches)
			if err != nil {
				return err
			}
			out.Verdict = &verdict
			return p.artifacts.WriteVerdict(verdict)
		})
		if cerr != nil {
			out.VerdictErr = cerr
			p.logger.Warn("llm plausibility check failed", "error", cerr)
		}
	}

	return out, nil
}

// buildPrompt selects records for the recognition prompt. With a semantic
// index configured and a question present, the question retrieves the
// closest records; otherwise the lexical builder handles selection.
func (p *Pipeline) buildPrompt(ctx context.Context, question string) (string, error) {
	if p.semantic == nil || question == "" {
		return p.builder.Build(question), nil
	}

	results, err := p.semantic.Retrieve(ctx, question, p.semanticTopK)
	if err != nil {
		return "", fmt.Errorf("semantic retrieval: %w", err)
	}
	if len(results) == 0 {
		return p.builder.Build(question), nil
	}
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Record.Name
	}
	return prompt.Render(prompt.DefaultPrefix, names, p.charBudget), nil
}

// runStage wraps one stage in a span, timing, and error accounting.
func (p *Pipeline) runStage(ctx context.Context, stage string, fn func(context.Context) error) error {
	ctx, span := observe.StartSpan(ctx, "pipeline."+stage)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	p.metrics.RecordStage(ctx, stage, time.Since(start).Seconds(), err != nil)
	if err != nil {
		span.RecordError(err)
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

// clipDir is where the extracted WAV lands: the artifact directory when
// artifacts are enabled, the system temp directory otherwise.
func (p *Pipeline) clipDir() string {
	if p.artifacts != nil && p.artifacts.Dir != "" {
		return p.artifacts.Dir
	}
	return os.TempDir()
}
