// Package mock provides a test double for the llm.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/ATAboukhadra/T30-Mazad/pkg/provider/llm"
)

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)

// CompleteCall records a single invocation of Provider.Complete.
type CompleteCall struct {
	Req llm.CompletionRequest
}

// Provider is a scripted implementation of llm.Provider. Calls consume
// Responses in order; when the script is exhausted, the last response
// repeats. Thread-safe.
type Provider struct {
	mu sync.Mutex

	// Responses is the scripted sequence of completions.
	Responses []llm.CompletionResponse

	// Errs, when non-nil, is consumed in lockstep with Responses: a non-nil
	// entry is returned instead of the corresponding response.
	Errs []error

	// Calls records every invocation.
	Calls []CompleteCall

	next int
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, CompleteCall{Req: req})
	i := p.next
	p.next++

	if i < len(p.Errs) && p.Errs[i] != nil {
		return nil, p.Errs[i]
	}
	if len(p.Responses) == 0 {
		return &llm.CompletionResponse{}, nil
	}
	if i >= len(p.Responses) {
		i = len(p.Responses) - 1
	}
	resp := p.Responses[i]
	return &resp, nil
}

// CallCount returns the number of recorded Complete calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
