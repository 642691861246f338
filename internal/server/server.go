// Package server exposes the carrier-facing WebSocket endpoint plus the
// operational HTTP surface (health probes and Prometheus metrics). Each
// accepted media stream gets its own dialogue manager, synthesis bridge
// and session, so concurrent calls never share mutable state.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kaiwa-ai/uketsuke/internal/convlog"
	"github.com/kaiwa-ai/uketsuke/internal/dialogue"
	"github.com/kaiwa-ai/uketsuke/internal/health"
	"github.com/kaiwa-ai/uketsuke/internal/nlu"
	"github.com/kaiwa-ai/uketsuke/internal/observe"
	"github.com/kaiwa-ai/uketsuke/internal/session"
	"github.com/kaiwa-ai/uketsuke/internal/ttsbridge"
	"github.com/kaiwa-ai/uketsuke/pkg/provider/asr"
	"github.com/kaiwa-ai/uketsuke/pkg/provider/tts"
)

// shutdownGrace bounds the drain of in-flight calls on shutdown.
const shutdownGrace = 10 * time.Second

// Config holds the server settings plus the per-call session tuning.
type Config struct {
	// ListenAddr is the TCP address to listen on, e.g. ":8080".
	ListenAddr string

	// Session is the per-call configuration applied to every stream.
	Session session.Config

	// Voice, Style and Rate select the synthesis voice. Empty fields use
	// the provider defaults.
	Voice string
	Style string
	Rate  string

	// CacheDir holds pre-synthesized WAV files keyed by utterance label.
	CacheDir string
}

// Deps are the shared collaborators handed to every call. Provider
// values are safe for concurrent streams; per-call state is created in
// the handler.
type Deps struct {
	ASR      asr.Provider
	TTS      tts.Provider
	Analyzer *nlu.Analyzer

	// Classifier enables model-backed intent resolution; nil keeps the
	// rule matcher only.
	Classifier dialogue.IntentClassifier

	// Slots is consulted in llm slot-filling mode.
	Slots session.SlotExtractor

	// Bookings is the reservation backend.
	Bookings dialogue.Bookings

	// Pattern replaces the built-in conversation flow when non-nil.
	Pattern *dialogue.Pattern

	Recorder convlog.Recorder
	Metrics  *observe.Metrics
	Health   *health.Handler
	Logger   *slog.Logger
}

// Server accepts carrier media streams and serves the operational
// endpoints.
type Server struct {
	cfg    Config
	deps   Deps
	log    *slog.Logger
	health *health.Handler
}

// New builds a Server. Deps.ASR, Deps.TTS and Deps.Analyzer are
// required; the rest are optional.
func New(cfg Config, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	h := deps.Health
	if h == nil {
		h = health.New()
	}
	return &Server{cfg: cfg, deps: deps, log: log, health: h}
}

// Handler returns the full HTTP surface: the media stream endpoint, the
// health probes and the metrics endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleStream)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)
	return mux
}

// Run serves until ctx is cancelled, then drains in-flight calls.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("listening", "addr", s.cfg.ListenAddr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}

// handleStream upgrades the request and runs one call to completion.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The carrier connects server to server without a browser Origin.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	log := s.log.With("remote", r.RemoteAddr)
	sess := session.New(wsConn{conn}, s.newCallDeps(log), s.cfg.Session)

	if err := sess.Run(r.Context()); err != nil {
		log.Error("call ended with error", "error", err)
		conn.Close(websocket.StatusInternalError, "session error")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// newCallDeps assembles the per-call collaborators. The dialogue
// manager and bridge carry call state and must never be shared.
func (s *Server) newCallDeps(log *slog.Logger) session.Deps {
	mopts := []dialogue.Option{dialogue.WithLogger(log)}
	if s.deps.Classifier != nil {
		mopts = append(mopts, dialogue.WithClassifier(s.deps.Classifier))
	}
	if s.deps.Bookings != nil {
		mopts = append(mopts, dialogue.WithBookings(s.deps.Bookings))
	}
	if s.deps.Pattern != nil {
		mopts = append(mopts, dialogue.WithPattern(*s.deps.Pattern))
	}

	bopts := []ttsbridge.Option{ttsbridge.WithLogger(log)}
	if s.cfg.CacheDir != "" {
		bopts = append(bopts, ttsbridge.WithCacheDir(s.cfg.CacheDir))
	}
	if s.cfg.Voice != "" || s.cfg.Style != "" || s.cfg.Rate != "" {
		bopts = append(bopts, ttsbridge.WithVoice(s.cfg.Voice, s.cfg.Style, s.cfg.Rate))
	}

	return session.Deps{
		ASR:      s.deps.ASR,
		Bridge:   ttsbridge.New(s.deps.TTS, bopts...),
		Dialogue: dialogue.NewManager(nil, mopts...),
		Analyzer: s.deps.Analyzer,
		Slots:    s.deps.Slots,
		Recorder: s.deps.Recorder,
		Metrics:  s.deps.Metrics,
		Logger:   log,
	}
}

// wsConn adapts the carrier WebSocket to the session's Conn.
type wsConn struct {
	c *websocket.Conn
}

func (w wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}
