// Package audio provides the telephony audio primitives shared by the
// pipeline: G.711 mu-law transcoding, little-endian PCM16 helpers and a
// mono resampler. All functions are pure and safe for concurrent use.
package audio

import "time"

// Telephony constants for carrier media streams.
const (
	// CarrierSampleRate is the sample rate of carrier media streams in Hz.
	CarrierSampleRate = 8000

	// FrameDuration is the nominal duration of a single carrier media frame.
	FrameDuration = 20 * time.Millisecond
)

// Frame is a single frame of caller audio flowing through the pipeline.
// Frames are the atomic unit of inbound transport: decoded from carrier
// media messages, measured by the VAD and forwarded to the recognizer.
type Frame struct {
	// Mulaw holds raw 8-bit G.711 mu-law samples, 8 kHz mono.
	Mulaw []byte

	// Timestamp marks when the frame was received, relative to stream start.
	Timestamp time.Duration
}

// PCM16 decodes the frame payload into linear 16-bit samples.
func (f Frame) PCM16() []int16 {
	return DecodeMulaw(f.Mulaw)
}
