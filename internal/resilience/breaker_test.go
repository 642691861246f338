package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kaiwa-ai/uketsuke/internal/resilience"
	"github.com/kaiwa-ai/uketsuke/pkg/provider/llm"
	llmmock "github.com/kaiwa-ai/uketsuke/pkg/provider/llm/mock"
	"github.com/kaiwa-ai/uketsuke/pkg/provider/tts"
	ttsmock "github.com/kaiwa-ai/uketsuke/pkg/provider/tts/mock"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := resilience.NewBreaker(resilience.BreakerConfig{Trip: 3, Cooldown: time.Hour})

	fail := func() error { return errBoom }
	for i := 0; i < 3; i++ {
		if err := b.Do(fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if !b.Open() {
		t.Fatal("breaker not open after trip count")
	}
	if err := b.Do(fail); !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := resilience.NewBreaker(resilience.BreakerConfig{Trip: 2, Cooldown: time.Hour})

	if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("err = %v", err)
	}
	if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
	if b.Open() {
		t.Error("breaker opened despite interleaved success")
	}
}

func TestBreaker_HalfOpenProbesClose(t *testing.T) {
	b := resilience.NewBreaker(resilience.BreakerConfig{
		Trip:     1,
		Cooldown: 10 * time.Millisecond,
		Probes:   2,
	})

	if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
	if !b.Open() {
		t.Fatal("not open")
	}

	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if b.Open() {
		t.Error("breaker still open after successful probes")
	}
	// A later failure starts a fresh count instead of tripping at once.
	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("closed call failed: %v", err)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := resilience.NewBreaker(resilience.BreakerConfig{
		Trip:     1,
		Cooldown: 10 * time.Millisecond,
	})
	_ = b.Do(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
	if !b.Open() {
		t.Error("breaker closed after failed probe")
	}
}

func TestGuardedLLM_FailsFastWhenOpen(t *testing.T) {
	inner := &llmmock.Provider{Err: errBoom}
	g := resilience.NewGuardedLLM(inner, resilience.BreakerConfig{Trip: 2, Cooldown: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := g.Complete(ctx, llm.Request{UserMessage: "x"}); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if _, err := g.Complete(ctx, llm.Request{UserMessage: "x"}); !errors.Is(err, resilience.ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
	if inner.CallCount() != 2 {
		t.Errorf("inner calls = %d, want 2", inner.CallCount())
	}
}

func TestGuardedTTS_PassesThrough(t *testing.T) {
	inner := &ttsmock.Provider{Audio: tts.Audio{PCM: make([]byte, 4), SampleRate: 8000}}
	g := resilience.NewGuardedTTS(inner, resilience.BreakerConfig{})

	audio, err := g.Synthesize(context.Background(), tts.Request{Text: "こんにちは"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if audio.SampleRate != 8000 || len(audio.PCM) != 4 {
		t.Errorf("audio = %+v", audio)
	}
}
