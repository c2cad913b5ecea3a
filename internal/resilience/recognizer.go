package resilience

import (
	"context"

	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/asr"
)

// Recognizer implements [asr.Recognizer] with automatic failover across
// several recognition backends, each behind its own breaker. Passes that
// land while the primary's breaker is open go straight to a fallback, so a
// dead whisper-server degrades a run instead of failing it.
type Recognizer struct {
	chain *Chain[asr.Recognizer]
}

var _ asr.Recognizer = (*Recognizer)(nil)

// NewRecognizer wraps primary as the preferred backend.
func NewRecognizer(primary asr.Recognizer, name string, cfg BreakerConfig) *Recognizer {
	return &Recognizer{chain: NewChain(primary, name, cfg)}
}

// AddFallback registers an additional recognition backend.
func (r *Recognizer) AddFallback(name string, rec asr.Recognizer) {
	r.chain.AddFallback(name, rec)
}

// Transcribe implements asr.Recognizer by delegating to the first healthy
// backend in the chain.
func (r *Recognizer) Transcribe(ctx context.Context, req asr.Request) (asr.PassResult, error) {
	return Do(r.chain, func(rec asr.Recognizer) (asr.PassResult, error) {
		return rec.Transcribe(ctx, req)
	})
}
