// Package mock provides a test double for the asr.Recognizer interface.
//
// Use Recognizer to script a sequence of pass results and inspect which
// requests the transcriber made:
//
//	rec := &mock.Recognizer{
//	    Results: []asr.PassResult{{Text: "John Smith", Tokens: toks}},
//	}
//	result, err := rec.Transcribe(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr"
)

// Ensure Recognizer implements asr.Recognizer at compile time.
var _ asr.Recognizer = (*Recognizer)(nil)

// TranscribeCall records a single invocation of Recognizer.Transcribe.
type TranscribeCall struct {
	// Req is the request passed to Transcribe.
	Req asr.Request
}

// Recognizer is a scripted implementation of asr.Recognizer.
// Calls consume Results in order; when the script is exhausted, the last
// result repeats. All fields are guarded by an internal mutex so concurrent
// passes can share one mock.
type Recognizer struct {
	mu sync.Mutex

	// Results is the scripted sequence of pass results.
	Results []asr.PassResult

	// Errs, when non-nil, is consumed in lockstep with Results: a non-nil
	// entry is returned instead of the corresponding result.
	Errs []error

	// Delay, when set, makes every call block until the context is done or
	// the delay channel is closed. Useful for timeout tests.
	Delay <-chan struct{}

	// Calls records every invocation.
	Calls []TranscribeCall

	next int
}

// Transcribe implements asr.Recognizer.
func (r *Recognizer) Transcribe(ctx context.Context, req asr.Request) (asr.PassResult, error) {
	r.mu.Lock()
	r.Calls = append(r.Calls, TranscribeCall{Req: req})
	i := r.next
	r.next++
	delay := r.Delay
	r.mu.Unlock()

	if delay != nil {
		select {
		case <-ctx.Done():
			return asr.PassResult{}, &asr.BackendError{Backend: "mock", Err: ctx.Err()}
		case <-delay:
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i < len(r.Errs) && r.Errs[i] != nil {
		return asr.PassResult{}, r.Errs[i]
	}
	if len(r.Results) == 0 {
		return asr.PassResult{}, nil
	}
	if i >= len(r.Results) {
		i = len(r.Results) - 1
	}
	return r.Results[i], nil
}

// CallCount returns the number of recorded Transcribe calls. Thread-safe.
func (r *Recognizer) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}
