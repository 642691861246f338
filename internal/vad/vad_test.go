package vad_test

import (
	"testing"

	"github.com/kaiwa-ai/uketsuke/internal/vad"
)

// chunk sizes below mirror carrier media frames: 20 ms at 8 kHz = 160 samples.
const chunkSamples = 160

func loudChunk() []int16 {
	pcm := make([]int16, chunkSamples)
	for i := range pcm {
		if i%2 == 0 {
			pcm[i] = 8000
		} else {
			pcm[i] = -8000
		}
	}
	return pcm
}

func quietChunk() []int16 {
	return make([]int16, chunkSamples)
}

func newDetector() *vad.Detector {
	return vad.New(vad.Config{
		SampleRate:      8000,
		VolumeThreshold: 1000,
		FastEndChunks:   3,
		SlowEndChunks:   6,
	})
}

func TestDetector_SpeechFlag(t *testing.T) {
	d := newDetector()
	if st := d.Process(loudChunk()); !st.IsSpeech {
		t.Error("loud chunk not flagged as speech")
	}
	if st := d.Process(quietChunk()); st.IsSpeech {
		t.Error("quiet chunk flagged as speech")
	}
}

func TestDetector_SpeechChunksAccumulate(t *testing.T) {
	d := newDetector()
	for range 4 {
		d.Process(loudChunk())
	}
	st := d.Process(quietChunk())
	if st.SpeechChunks != 4 {
		t.Errorf("SpeechChunks = %d, want 4", st.SpeechChunks)
	}
}

func TestDetector_FastEndAfterSilenceRun(t *testing.T) {
	d := newDetector()
	d.Process(loudChunk())

	// The first quiet chunk still shares an analysis window with carried
	// over loud samples, so the silence run starts one chunk later.
	var st vad.State
	for i := range 4 {
		st = d.Process(quietChunk())
		if i < 3 && st.FastSpeechEnd {
			t.Fatalf("fast end raised after only %d quiet chunks", i+1)
		}
	}
	if !st.FastSpeechEnd {
		t.Error("fast end not raised after the silence run")
	}
	if st.SlowSpeechEnd {
		t.Error("slow end raised before its threshold")
	}
}

func TestDetector_SlowEndAfterLongSilence(t *testing.T) {
	d := newDetector()
	d.Process(loudChunk())

	var st vad.State
	for range 7 {
		st = d.Process(quietChunk())
	}
	if !st.SlowSpeechEnd {
		t.Error("slow end not raised after the long silence run")
	}
}

// Leading silence alone must eventually raise both signals; the caller may
// simply never speak.
func TestDetector_SilenceOnlyStream(t *testing.T) {
	d := newDetector()
	var st vad.State
	for range 6 {
		st = d.Process(quietChunk())
	}
	if !st.FastSpeechEnd || !st.SlowSpeechEnd {
		t.Error("silence-only stream did not raise end signals")
	}
	if st.SpeechChunks != 0 {
		t.Errorf("SpeechChunks = %d, want 0", st.SpeechChunks)
	}
}

func TestDetector_SpeechBreaksSilenceRun(t *testing.T) {
	d := newDetector()
	d.Process(quietChunk())
	d.Process(quietChunk())
	d.Process(loudChunk())
	st := d.Process(quietChunk())
	if st.FastSpeechEnd {
		t.Error("fast end raised even though the run was interrupted")
	}
}

func TestDetector_Reset(t *testing.T) {
	d := newDetector()
	for range 6 {
		d.Process(loudChunk())
	}
	d.Reset()
	st := d.Process(quietChunk())
	if st.SpeechChunks != 0 {
		t.Errorf("SpeechChunks after reset = %d, want 0", st.SpeechChunks)
	}
	if st.FastSpeechEnd {
		t.Error("fast end raised right after reset")
	}
}

// Partial windows must carry over between calls instead of being dropped.
func TestDetector_FragmentedChunks(t *testing.T) {
	d := newDetector()
	loud := loudChunk()
	st := d.Process(loud[:50])
	if st.IsSpeech {
		t.Error("speech flagged before a full analysis window")
	}
	st = d.Process(loud[50:])
	if !st.IsSpeech {
		t.Error("carried-over samples not analysed")
	}
}
