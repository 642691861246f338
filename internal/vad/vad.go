// Package vad implements volume based voice activity detection for 8 kHz
// telephony audio. The detector slides a short analysis window over the
// incoming PCM stream, flags each carrier chunk as speech or silence and
// derives two end-of-speech signals from consecutive silent chunks: a fast
// one used together with linguistic cues and a slow one that fires on
// volume alone.
package vad

import "time"

// Defaults matching production tuning for carrier audio (20 ms chunks).
const (
	DefaultVolumeThreshold = 1000
	DefaultFastEndChunks   = 20 // 400 ms of silence
	DefaultSlowEndChunks   = 80 // 1.6 s of silence

	windowDuration = 10 * time.Millisecond
	hopDuration    = 5 * time.Millisecond
)

// Config tunes a Detector. Zero fields fall back to the defaults above.
type Config struct {
	// SampleRate of the PCM fed to Process, in Hz.
	SampleRate int

	// VolumeThreshold is the mean absolute amplitude above which an
	// analysis window counts as speech.
	VolumeThreshold int

	// FastEndChunks is the number of consecutive silent chunks after
	// which FastSpeechEnd is raised.
	FastEndChunks int

	// SlowEndChunks is the number of consecutive silent chunks after
	// which SlowSpeechEnd is raised.
	SlowEndChunks int
}

// State is the detector output after one processed chunk.
type State struct {
	// IsSpeech reports whether the chunk contained at least one speech
	// window.
	IsSpeech bool

	// FastSpeechEnd reports a short silence run, meaningful only in
	// combination with linguistic cues from the recognizer.
	FastSpeechEnd bool

	// SlowSpeechEnd reports a long silence run and is a standalone
	// end-of-turn signal.
	SlowSpeechEnd bool

	// SpeechChunks counts chunks flagged as speech since the last Reset.
	// The barge-in gate compares it against its own threshold.
	SpeechChunks int
}

// Detector analyses caller audio chunk by chunk. Not safe for concurrent
// use; the orchestrator owns exactly one per call leg.
type Detector struct {
	volumeThreshold int
	fastEndChunks   int
	slowEndChunks   int
	windowSize      int
	hopSize         int

	buf          []int16
	silence      []bool // most recent chunk silence flags, bounded
	speechChunks int
}

// New creates a Detector for the given config.
func New(cfg Config) *Detector {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 8000
	}
	if cfg.VolumeThreshold <= 0 {
		cfg.VolumeThreshold = DefaultVolumeThreshold
	}
	if cfg.FastEndChunks <= 0 {
		cfg.FastEndChunks = DefaultFastEndChunks
	}
	if cfg.SlowEndChunks <= 0 {
		cfg.SlowEndChunks = DefaultSlowEndChunks
	}
	return &Detector{
		volumeThreshold: cfg.VolumeThreshold,
		fastEndChunks:   cfg.FastEndChunks,
		slowEndChunks:   cfg.SlowEndChunks,
		windowSize:      int(windowDuration.Seconds() * float64(cfg.SampleRate)),
		hopSize:         int(hopDuration.Seconds() * float64(cfg.SampleRate)),
	}
}

// Process consumes one chunk of PCM16 and returns the updated state.
// Samples that do not yet fill an analysis window are carried over to the
// next call, so arbitrary chunk sizes are fine.
func (d *Detector) Process(pcm []int16) State {
	d.buf = append(d.buf, pcm...)

	speech := false
	for len(d.buf) >= d.windowSize {
		if d.windowPower(d.buf[:d.windowSize]) > d.volumeThreshold {
			speech = true
		}
		d.buf = d.buf[d.hopSize:]
	}

	d.silence = append(d.silence, !speech)
	if n := len(d.silence) - d.slowEndChunks; n > 0 {
		d.silence = d.silence[n:]
	}
	if speech {
		d.speechChunks++
	}

	return State{
		IsSpeech:      speech,
		FastSpeechEnd: d.silentRun(d.fastEndChunks),
		SlowSpeechEnd: d.silentRun(d.slowEndChunks),
		SpeechChunks:  d.speechChunks,
	}
}

// Reset clears all accumulated state, called at each turn boundary and
// after a barge-in.
func (d *Detector) Reset() {
	d.buf = nil
	d.silence = nil
	d.speechChunks = 0
}

// windowPower is the mean absolute amplitude of one analysis window.
func (d *Detector) windowPower(window []int16) int {
	var sum int64
	for _, s := range window {
		v := int64(s)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return int(sum / int64(len(window)))
}

// silentRun reports whether the last n chunks were all silent. False until
// at least n chunks have been observed.
func (d *Detector) silentRun(n int) bool {
	if len(d.silence) < n {
		return false
	}
	for _, s := range d.silence[len(d.silence)-n:] {
		if !s {
			return false
		}
	}
	return true
}
