// Package asr defines the Recognizer interface for speech-recognition
// backends.
//
// A recognizer wraps a batch transcription engine (local whisper.cpp, a
// whisper-server instance, or the OpenAI audio API) and exposes a uniform
// single-pass interface: given an extracted audio clip, a biasing prompt, and
// decoding parameters, it returns the transcript text plus a timed token
// stream. Multi-pass decoding and consensus aggregation live above this
// interface in internal/transcribe.
//
// Implementations must be safe for concurrent use; the transcriber runs
// independent passes against the same Recognizer in parallel.
package asr

import (
	"context"
	"fmt"

	"github.com/ATAboukhadra/T30-Mazad/pkg/media"
)

// Task selects the recognition task. Only transcription is supported by this
// pipeline; the value exists so backends can reject anything else explicitly.
type Task string

const (
	// TaskTranscribe requests same-language transcription.
	TaskTranscribe Task = "transcribe"

	// TaskTranslate requests translation to English. Out of scope for the
	// pipeline; backends return an error when asked for it.
	TaskTranslate Task = "translate"
)

// IsValid reports whether t is a recognised task.
func (t Task) IsValid() bool {
	return t == TaskTranscribe || t == TaskTranslate
}

// Request carries everything a recognizer needs for one decoding pass.
type Request struct {
	// Clip is the extracted audio to transcribe.
	Clip media.Clip

	// Prompt is an optional vocabulary-biasing text injected into decoding.
	// Empty means no biasing.
	Prompt string

	// Language is the expected language code (e.g., "en"). Empty lets the
	// backend auto-detect when it supports that.
	Language string

	// Task selects transcription vs. translation. The zero value is treated
	// as TaskTranscribe.
	Task Task

	// Temperature controls sampling randomness in [0, 1]. Zero requests
	// greedy decoding; above zero, independent requests may disagree.
	Temperature float64
}

// Token is one recognised word with clip-relative timing.
type Token struct {
	// Text is the token surface form, without surrounding whitespace.
	Text string

	// Start and End are offsets in seconds from the start of the clip.
	Start float64
	End   float64

	// Confidence is the backend's probability for this token in [0, 1], or
	// nil when the backend does not expose token confidence.
	Confidence *float64

	// Pass is the decoding pass that produced this token. Recognizers leave
	// it zero; the transcriber stamps it during aggregation.
	Pass int
}

// PassResult is the output of a single decoding pass.
type PassResult struct {
	// Text is the full transcript of the pass.
	Text string

	// Tokens is the ordered token stream with timing and, when available,
	// confidence.
	Tokens []Token
}

// Recognizer is the abstraction over any batch speech-recognition backend.
//
// Implementations must be safe for concurrent use and must respect ctx
// cancellation: a cancelled context aborts the pass and returns ctx.Err()
// (possibly wrapped in a *BackendError).
type Recognizer interface {
	// Transcribe runs one decoding pass over req.Clip and returns the
	// transcript. Backend failures are returned as *BackendError so the
	// caller can distinguish them from input validation errors.
	Transcribe(ctx context.Context, req Request) (PassResult, error)
}

// BackendError wraps a failure inside a recognition backend. One pass
// failing is non-fatal when other passes of the same stage succeed; the
// transcriber makes that call, not the backend.
type BackendError struct {
	// Backend names the recognizer implementation ("whisper-native",
	// "whisper-server", "openai", ...).
	Backend string

	// Err is the underlying failure.
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("asr: %s backend: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
