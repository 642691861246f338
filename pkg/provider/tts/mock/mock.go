// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/kaiwa-ai/uketsuke/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider. By default every
// call succeeds with a short burst of silence.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by Synthesize when Err is nil. A zero value
	// yields 160 samples of 8 kHz silence.
	Audio tts.Audio

	// Err, if non-nil, is returned by Synthesize.
	Err error

	// Requests records every synthesis request in order.
	Requests []tts.Request
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(_ context.Context, req tts.Request) (tts.Audio, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	p.mu.Unlock()

	if p.Err != nil {
		return tts.Audio{}, p.Err
	}
	if p.Audio.SampleRate == 0 {
		return tts.Audio{PCM: make([]byte, 320), SampleRate: 8000}, nil
	}
	return p.Audio, nil
}

// CallCount returns the number of recorded Synthesize invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}
