// Package transcribe runs knowledge-conditioned recognition over an audio
// clip: several independent passes against an asr.Recognizer, folded into a
// consensus transcript.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ATAboukhadra/T30-Mazad/pkg/media"
	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr"
)

// DefaultPasses is the number of recognition passes per clip.
const DefaultPasses = 3

// DefaultPassTimeout bounds a single pass. A pass that exceeds it is dropped
// rather than failing the whole stage.
const DefaultPassTimeout = 5 * time.Minute

// defaultTemperatureStep spreads pass temperatures so repeated passes do not
// just replay the same decoding.
const defaultTemperatureStep = 0.2

// Pass is the outcome of one recognition pass.
type Pass struct {
	Index  int
	Result asr.PassResult
	Err    error
}

// Dropped reports whether the pass failed and was excluded from consensus.
func (p Pass) Dropped() bool { return p.Err != nil }

// Transcript is the stage output: the consensus text and tokens, plus every
// pass that contributed to or was dropped from it.
type Transcript struct {
	Text   string
	Tokens []asr.Token
	Passes []Pass
}

// Transcriber drives multi-pass recognition.
type Transcriber struct {
	rec         asr.Recognizer
	passes      int
	passTimeout time.Duration
	tempBase    float64
	tempStep    float64
	language    string
	logger      *slog.Logger
}

// Option is a functional option for Transcriber.
type Option func(*Transcriber)

// WithPasses sets the number of recognition passes. Values below 1 are
// rejected by New.
func WithPasses(n int) Option {
	return func(t *Transcriber) { t.passes = n }
}

// WithPassTimeout bounds each individual pass.
func WithPassTimeout(d time.Duration) Option {
	return func(t *Transcriber) { t.passTimeout = d }
}

// WithTemperature sets the sampling temperature of the first pass, in
// [0, 1]. Defaults to 0, greedy decoding.
func WithTemperature(temp float64) Option {
	return func(t *Transcriber) { t.tempBase = temp }
}

// WithTemperatureStep sets the temperature increment between passes. Pass i
// runs at the base temperature plus i times the step.
func WithTemperatureStep(step float64) Option {
	return func(t *Transcriber) { t.tempStep = step }
}

// WithLanguage sets the language hint forwarded to the recognizer.
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transcriber) { t.logger = l }
}

// New constructs a Transcriber over rec.
func New(rec asr.Recognizer, opts ...Option) (*Transcriber, error) {
	if rec == nil {
		return nil, errors.New("transcribe: recognizer must not be nil")
	}
	t := &Transcriber{
		rec:         rec,
		passes:      DefaultPasses,
		passTimeout: DefaultPassTimeout,
		tempStep:    defaultTemperatureStep,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	if t.passes < 1 {
		return nil, fmt.Errorf("transcribe: passes must be at least 1, got %d", t.passes)
	}
	if t.tempBase < 0 || t.tempBase > 1 {
		return nil, fmt.Errorf("transcribe: temperature must be in [0, 1], got %v", t.tempBase)
	}
	return t, nil
}

// Transcribe runs all passes concurrently over clip with the given prompt
// and folds the successful ones into a consensus Transcript. A failed or
// timed-out pass is logged and dropped; the stage only fails when every pass
// does, in which case the returned error joins the per-pass failures.
func (t *Transcriber) Transcribe(ctx context.Context, clip media.Clip, promptText string) (Transcript, error) {
	passes := make([]Pass, t.passes)

	var g errgroup.Group
	for i := 0; i < t.passes; i++ {
		g.Go(func() error {
			passCtx, cancel := context.WithTimeout(ctx, t.passTimeout)
			defer cancel()

			result, err := t.rec.Transcribe(passCtx, asr.Request{
				Clip:        clip,
				Prompt:      promptText,
				Language:    t.language,
				Task:        asr.TaskTranscribe,
				Temperature: t.tempBase + float64(i)*t.tempStep,
			})
			if err == nil {
				for j := range result.Tokens {
					result.Tokens[j].Pass = i
				}
			}
			passes[i] = Pass{Index: i, Result: result, Err: err}
			return nil
		})
	}
	// Goroutines report failure through their Pass slot, never the group.
	_ = g.Wait()

	var ok []asr.PassResult
	var errs []error
	for _, p := range passes {
		if p.Err != nil {
			t.logger.Warn("recognition pass dropped",
				"pass", p.Index,
				"clip", clip.Path,
				"error", p.Err)
			errs = append(errs, fmt.Errorf("pass %d: %w", p.Index, p.Err))
			continue
		}
		ok = append(ok, p.Result)
	}
	if len(ok) == 0 {
		return Transcript{Passes: passes}, fmt.Errorf("transcribe: all %d passes failed: %w", t.passes, errors.Join(errs...))
	}

	consensus := Aggregate(ok)
	return Transcript{
		Text:   consensus.Text,
		Tokens: consensus.Tokens,
		Passes: passes,
	}, nil
}
