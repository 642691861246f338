// Package tts defines the Provider interface for speech-synthesis
// backends.
//
// The phone agent synthesizes short utterances one at a time; the
// result is raw 16-bit PCM that the TTS bridge converts to telephony
// mu-law. Implementations must be safe for concurrent use.
package tts

import "context"

// Default synthesis settings for the restaurant agent voice.
const (
	DefaultVoice = "ja-JP-NanamiNeural"
	DefaultStyle = "customerservice"
	DefaultRate  = "+10%"
)

// Request describes one synthesis call. Text may contain SSML break
// elements; providers wrap it in a full SSML document.
type Request struct {
	Text string

	// Voice is the provider voice name; empty selects DefaultVoice.
	Voice string

	// Style is the speaking style; empty selects DefaultStyle.
	Style string

	// Rate adjusts the speaking rate, e.g. "+10%"; empty selects
	// DefaultRate.
	Rate string
}

// Audio is synthesized speech as raw little-endian 16-bit mono PCM.
type Audio struct {
	PCM        []byte
	SampleRate int
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders one utterance. Implementations must honor ctx
	// deadlines; the caller enforces a per-utterance budget.
	Synthesize(ctx context.Context, req Request) (Audio, error)
}
