// Package asr defines the Provider interface for streaming
// speech-recognition backends.
//
// A provider opens one streaming session per caller turn sequence. The
// session accepts raw telephony audio chunks and emits Transcript
// values: low-latency interim hypotheses for turn-taking decisions and
// authoritative finals for the dialogue layer. Implementations must be
// safe for concurrent use; the audio input and the transcript output
// run on different goroutines by construction.
package asr

import (
	"context"
	"errors"
	"fmt"
)

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("asr: session is closed")

// TransientError wraps a failure worth retrying, such as a dropped
// connection or a per-stream duration limit. Callers reconnect with
// backoff on transient errors and give up on everything else.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("asr: transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth a reconnect attempt.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// StreamConfig describes the audio format and recognition settings for
// a new session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Telephony is 8000.
	SampleRate int

	// Encoding names the wire format of SendAudio chunks, e.g. "mulaw"
	// or "linear16".
	Encoding string

	// Language is the BCP-47 recognition language, e.g. "ja".
	Language string

	// InterimResults requests low-latency partial hypotheses.
	InterimResults bool

	// Keywords boosts recognition of uncommon vocabulary such as menu
	// items or the shop name.
	Keywords []string
}

// SessionHandle is an open streaming recognition session. Callers must
// Close the session; failing to do so leaks the provider connection.
type SessionHandle interface {
	// SendAudio delivers one audio chunk in the format agreed in
	// StreamConfig. Returns ErrSessionClosed after Close.
	SendAudio(chunk []byte) error

	// Results returns the transcript stream. Interim hypotheses carry
	// IsFinal=false; the channel is closed when the session ends.
	Results() <-chan Transcript

	// Err returns the terminal session error after Results is closed,
	// nil on a clean shutdown. Wrap inspection with IsTransient to
	// decide on reconnects.
	Err() error

	// Close flushes pending audio and releases the connection. Calling
	// Close more than once is safe.
	Close() error
}

// Provider is the abstraction over any streaming ASR backend.
type Provider interface {
	// StartStream opens a recognition session. The ctx governs the whole
	// session lifetime, not just the dial.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
