package resilience

import (
	"context"

	"github.com/kaiwa-ai/uketsuke/pkg/provider/llm"
	"github.com/kaiwa-ai/uketsuke/pkg/provider/tts"
)

var (
	_ llm.Provider = (*GuardedLLM)(nil)
	_ tts.Provider = (*GuardedTTS)(nil)
)

// GuardedLLM wraps a chat-completion provider with a circuit breaker.
// While the circuit is open every call fails immediately with ErrOpen,
// which the dialogue layer already treats as an empty model answer.
type GuardedLLM struct {
	inner   llm.Provider
	breaker *Breaker
}

// NewGuardedLLM wraps inner.
func NewGuardedLLM(inner llm.Provider, cfg BreakerConfig) *GuardedLLM {
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	return &GuardedLLM{inner: inner, breaker: NewBreaker(cfg)}
}

// Complete implements llm.Provider.
func (g *GuardedLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	var resp *llm.Response
	err := g.breaker.Do(func() error {
		var innerErr error
		resp, innerErr = g.inner.Complete(ctx, req)
		return innerErr
	})
	return resp, err
}

// GuardedTTS wraps a synthesis provider with a circuit breaker so a
// down synthesis service degrades to the apology path without waiting
// out the full timeout on every utterance.
type GuardedTTS struct {
	inner   tts.Provider
	breaker *Breaker
}

// NewGuardedTTS wraps inner.
func NewGuardedTTS(inner tts.Provider, cfg BreakerConfig) *GuardedTTS {
	if cfg.Name == "" {
		cfg.Name = "tts"
	}
	return &GuardedTTS{inner: inner, breaker: NewBreaker(cfg)}
}

// Synthesize implements tts.Provider.
func (g *GuardedTTS) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	var audio tts.Audio
	err := g.breaker.Do(func() error {
		var innerErr error
		audio, innerErr = g.inner.Synthesize(ctx, req)
		return innerErr
	})
	return audio, err
}
