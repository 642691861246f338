// Package ttsbridge turns dialogue utterances into carrier-ready audio
// envelopes: base64 mu-law at 8 kHz. Labeled utterances are served from
// a pre-synthesized WAV cache when available; everything else goes
// through the configured synthesis provider. A single worker drains the
// bounded input queue so envelope order matches enqueue order.
package ttsbridge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kaiwa-ai/uketsuke/internal/dialogue"
	"github.com/kaiwa-ai/uketsuke/pkg/audio"
	"github.com/kaiwa-ai/uketsuke/pkg/provider/tts"
)

const (
	// QueueSize bounds the pending utterance queue.
	QueueSize = 16

	// synthesisTimeout bounds one provider call.
	synthesisTimeout = 10 * time.Second
)

// ErrQueueFull is returned by Enqueue when the bounded queue did not
// free up within the enqueue grace period.
var ErrQueueFull = errors.New("ttsbridge: queue full")

// Envelope is one synthesized response ready for the carrier.
type Envelope struct {
	// Label is the template label when the utterance had one.
	Label string

	// Text is the spoken text, kept for the conversation log.
	Text string

	// Payload is base64 mu-law 8 kHz audio.
	Payload string
}

// SynthError reports a failed utterance; the orchestrator decides the
// fallback.
type SynthError struct {
	Utterance dialogue.Utterance
	Err       error
}

func (e *SynthError) Error() string {
	return fmt.Sprintf("ttsbridge: synthesize %q: %v", e.Utterance.Text, e.Err)
}

func (e *SynthError) Unwrap() error { return e.Err }

// Bridge is the synthesis pipeline between dialogue and carrier.
type Bridge struct {
	log      *slog.Logger
	provider tts.Provider
	cacheDir string
	voice    tts.Request

	queue     chan dialogue.Utterance
	envelopes chan Envelope
	errs      chan error

	// pending counts queued plus in-flight utterances; zero with an
	// empty envelope channel means the bridge is drained.
	pending atomic.Int64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bridge) { b.log = log }
}

// WithCacheDir points at the pre-synthesized label WAV directory.
func WithCacheDir(dir string) Option {
	return func(b *Bridge) { b.cacheDir = dir }
}

// WithVoice overrides voice, style and rate for synthesis.
func WithVoice(voice, style, rate string) Option {
	return func(b *Bridge) {
		b.voice = tts.Request{Voice: voice, Style: style, Rate: rate}
	}
}

// New builds a Bridge over the given provider.
func New(provider tts.Provider, opts ...Option) *Bridge {
	b := &Bridge{
		log:       slog.Default(),
		provider:  provider,
		queue:     make(chan dialogue.Utterance, QueueSize),
		envelopes: make(chan Envelope, QueueSize),
		errs:      make(chan error, QueueSize),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Enqueue queues one utterance for synthesis. It tolerates a short
// bounded wait before reporting ErrQueueFull.
func (b *Bridge) Enqueue(u dialogue.Utterance) error {
	b.pending.Add(1)
	select {
	case b.queue <- u:
		return nil
	case <-time.After(100 * time.Millisecond):
		b.pending.Add(-1)
		return ErrQueueFull
	}
}

// Envelopes returns the outbound audio stream. Closed when Run ends.
func (b *Bridge) Envelopes() <-chan Envelope { return b.envelopes }

// Errors reports failed syntheses, best effort.
func (b *Bridge) Errors() <-chan error { return b.errs }

// IsEmpty reports that nothing is queued, in flight or waiting for the
// writer.
func (b *Bridge) IsEmpty() bool {
	return b.pending.Load() == 0 && len(b.envelopes) == 0
}

// Run drains the queue until ctx is done, then closes the envelope
// stream.
func (b *Bridge) Run(ctx context.Context) error {
	defer close(b.envelopes)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-b.queue:
			env, err := b.render(ctx, u)
			b.pending.Add(-1)
			if err != nil {
				b.log.Error("synthesis failed", "label", u.Label, "error", err)
				select {
				case b.errs <- &SynthError{Utterance: u, Err: err}:
				default:
				}
				continue
			}
			select {
			case b.envelopes <- env:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// render produces the mu-law payload for one utterance, preferring the
// label cache.
func (b *Bridge) render(ctx context.Context, u dialogue.Utterance) (Envelope, error) {
	if pcm, rate, ok := b.cachedAudio(u.Label); ok {
		return b.envelope(u, pcm, rate)
	}

	ctx, cancel := context.WithTimeout(ctx, synthesisTimeout)
	defer cancel()
	req := b.voice
	req.Text = AdjustForSpeech(u.Text)
	out, err := b.provider.Synthesize(ctx, req)
	if err != nil {
		return Envelope{}, err
	}
	return b.envelope(u, out.PCM, out.SampleRate)
}

func (b *Bridge) envelope(u dialogue.Utterance, pcm []byte, rate int) (Envelope, error) {
	samples := audio.BytesToPCM16(pcm)
	if rate != audio.CarrierSampleRate {
		samples = audio.ResampleMono16(samples, rate, audio.CarrierSampleRate)
	}
	return Envelope{
		Label:   u.Label,
		Text:    u.Text,
		Payload: base64.StdEncoding.EncodeToString(audio.EncodeMulaw(samples)),
	}, nil
}

// cachedAudio loads templates/wav/<label>.wav when it exists.
func (b *Bridge) cachedAudio(label string) (pcm []byte, rate int, ok bool) {
	if label == "" || b.cacheDir == "" {
		return nil, 0, false
	}
	path := filepath.Join(b.cacheDir, strings.ToLower(label)+".wav")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, false
	}
	pcm, rate, err = parseWAV(raw)
	if err != nil {
		b.log.Warn("unreadable cached audio", "path", path, "error", err)
		return nil, 0, false
	}
	return pcm, rate, true
}
