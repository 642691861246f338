package asr

import "time"

// Transcript is one recognition hypothesis.
type Transcript struct {
	// Text is the recognized text, already punctuated when the backend
	// supports it.
	Text string

	// IsFinal marks an authoritative result. Interim hypotheses may be
	// revised by later emissions.
	IsFinal bool

	// Stability estimates how unlikely an interim hypothesis is to
	// change, in [0,1]. Finals carry the backend's confidence instead.
	Stability float64

	// ReceivedAt is the local arrival time, used for turn-taking
	// timeout decisions.
	ReceivedAt time.Time
}
