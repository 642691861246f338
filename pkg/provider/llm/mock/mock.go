// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the prompts the dialogue layer
// sends and to feed controlled answers without a live backend.
//
// Example:
//
//	p := &mock.Provider{Response: &llm.Response{Content: `{"intent":"NEW_RESERVATION"}`}}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/kaiwa-ai/uketsuke/pkg/provider/llm"
)

// Call records a single invocation of Complete.
type Call struct {
	Ctx context.Context
	Req llm.Request
}

// Provider is a mock implementation of llm.Provider. Zero values cause
// Complete to return llm.ErrEmptyResponse; set Response or Err to
// control the outcome.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Complete when Err is nil.
	Response *llm.Response

	// Err, if non-nil, is returned as the error from Complete.
	Err error

	// Calls records every invocation in order.
	Calls []Call
}

var _ llm.Provider = (*Provider)(nil)

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	if p.Response == nil {
		return nil, llm.ErrEmptyResponse
	}
	return p.Response, nil
}

// CallCount returns the number of recorded Complete invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
