// Command uketsuke is the restaurant reservation phone agent server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kaiwa-ai/uketsuke/internal/classifier"
	"github.com/kaiwa-ai/uketsuke/internal/config"
	"github.com/kaiwa-ai/uketsuke/internal/convlog"
	"github.com/kaiwa-ai/uketsuke/internal/dialogue"
	"github.com/kaiwa-ai/uketsuke/internal/health"
	"github.com/kaiwa-ai/uketsuke/internal/nlu"
	"github.com/kaiwa-ai/uketsuke/internal/observe"
	"github.com/kaiwa-ai/uketsuke/internal/reservation"
	"github.com/kaiwa-ai/uketsuke/internal/resilience"
	"github.com/kaiwa-ai/uketsuke/internal/server"
	"github.com/kaiwa-ai/uketsuke/internal/session"
	"github.com/kaiwa-ai/uketsuke/pkg/provider/asr/deepgram"
	openaillm "github.com/kaiwa-ai/uketsuke/pkg/provider/llm/openai"
	"github.com/kaiwa-ai/uketsuke/pkg/provider/tts/azure"
)

// version is stamped by the build.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "uketsuke: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "uketsuke: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("uketsuke starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("telemetry init failed", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	probes := health.New()

	deps, closers, err := buildDeps(ctx, cfg, probes)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	srv := server.New(server.Config{
		ListenAddr: cfg.Server.ListenAddr,
		Session:    cfg.SessionConfig(),
		Voice:      cfg.Providers.TTS.Voice,
		Style:      cfg.Providers.TTS.Style,
		Rate:       cfg.Providers.TTS.Rate,
		CacheDir:   cfg.Storage.CacheDir,
	}, *deps)

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildDeps instantiates the providers and supporting stores named in
// cfg and registers their readiness checks.
func buildDeps(ctx context.Context, cfg *config.Config, probes *health.Handler) (*server.Deps, []func(), error) {
	var closers []func()

	// ── Recognizer ───────────────────────────────────────────────────
	var asrOpts []deepgram.Option
	if cfg.Providers.ASR.Model != "" {
		asrOpts = append(asrOpts, deepgram.WithModel(cfg.Providers.ASR.Model))
	}
	if cfg.Providers.ASR.Language != "" {
		asrOpts = append(asrOpts, deepgram.WithLanguage(cfg.Providers.ASR.Language))
	}
	if cfg.Providers.ASR.Endpoint != "" {
		asrOpts = append(asrOpts, deepgram.WithEndpoint(cfg.Providers.ASR.Endpoint))
	}
	recognizer, err := deepgram.New(cfg.Providers.ASR.APIKey, asrOpts...)
	if err != nil {
		return nil, closers, fmt.Errorf("create asr provider: %w", err)
	}
	slog.Info("provider created", "kind", "asr", "name", "deepgram")

	// ── Synthesizer ──────────────────────────────────────────────────
	rawTTS, err := azure.New(cfg.Providers.TTS.APIKey, cfg.Providers.TTS.Region)
	if err != nil {
		return nil, closers, fmt.Errorf("create tts provider: %w", err)
	}
	synthesizer := resilience.NewGuardedTTS(rawTTS, resilience.BreakerConfig{Name: "tts"})
	slog.Info("provider created", "kind", "tts", "name", "azure", "region", cfg.Providers.TTS.Region)

	// ── Language model (optional) ────────────────────────────────────
	var (
		intents dialogue.IntentClassifier
		slots   session.SlotExtractor
	)
	if cfg.Providers.LLM.APIKey != "" {
		var llmOpts []openaillm.Option
		if cfg.Providers.LLM.BaseURL != "" {
			llmOpts = append(llmOpts, openaillm.WithBaseURL(cfg.Providers.LLM.BaseURL))
		}
		if cfg.Providers.LLM.TimeoutSec > 0 {
			llmOpts = append(llmOpts, openaillm.WithTimeout(time.Duration(cfg.Providers.LLM.TimeoutSec)*time.Second))
		}
		rawLLM, err := openaillm.New(cfg.Providers.LLM.APIKey, cfg.Providers.LLM.Model, llmOpts...)
		if err != nil {
			return nil, closers, fmt.Errorf("create llm provider: %w", err)
		}
		guarded := resilience.NewGuardedLLM(rawLLM, resilience.BreakerConfig{Name: "llm"})

		cl := classifier.New(guarded)
		intents = cl
		slots = cl
		slog.Info("provider created", "kind", "llm", "name", "openai", "model", cfg.Providers.LLM.Model)
	} else {
		slog.Info("no llm api key configured; rule-based matching only")
	}

	// ── Conversation log ─────────────────────────────────────────────
	var recorder convlog.Recorder
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pg, err := convlog.NewPostgresRecorder(ctx, dsn)
		if err != nil {
			return nil, closers, fmt.Errorf("connect conversation store: %w", err)
		}
		closers = append(closers, pg.Close)
		probes.AddCheck("conversation_store", pg.Ping)
		recorder = pg
		slog.Info("conversation store connected")
	} else {
		recorder = convlog.NewMemoryRecorder()
		slog.Warn("storage.postgres_dsn is empty; conversation logs stay in memory")
	}

	// ── Dialogue pattern ─────────────────────────────────────────────
	var pattern *dialogue.Pattern
	if dir := cfg.Dialogue.PatternDir; dir != "" {
		patterns, err := dialogue.LoadPatterns(dir)
		if err != nil {
			return nil, closers, err
		}
		idx := cfg.Dialogue.PatternIndex
		if idx >= len(patterns) {
			return nil, closers, fmt.Errorf("dialogue.pattern_index %d out of range, %d patterns loaded", idx, len(patterns))
		}
		pattern = &patterns[idx]
		slog.Info("dialogue patterns loaded", "dir", dir, "count", len(patterns), "selected", idx)
	}

	analyzer, err := nlu.NewAnalyzer(nlu.Normalizer{Today: time.Now()}, nil)
	if err != nil {
		return nil, closers, fmt.Errorf("init analyzer: %w", err)
	}

	return &server.Deps{
		ASR:        recognizer,
		TTS:        synthesizer,
		Analyzer:   analyzer,
		Classifier: intents,
		Slots:      slots,
		Bookings:   reservation.NewManager(),
		Pattern:    pattern,
		Recorder:   recorder,
		Metrics:    observe.DefaultMetrics(),
		Health:     probes,
	}, closers, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
