// Package session runs one phone call end to end: it owns the carrier
// socket, the voice activity detector, the streaming recognizer, the
// dialogue manager and the synthesis bridge, and coordinates them as a
// small fleet of workers. All dialogue state transitions happen on the
// orchestrator goroutine; every other worker communicates with it over
// channels and sees only immutable snapshots.
package session

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kaiwa-ai/uketsuke/internal/convlog"
	"github.com/kaiwa-ai/uketsuke/internal/dialogue"
	"github.com/kaiwa-ai/uketsuke/internal/nlu"
	"github.com/kaiwa-ai/uketsuke/internal/observe"
	"github.com/kaiwa-ai/uketsuke/internal/ttsbridge"
	"github.com/kaiwa-ai/uketsuke/internal/vad"
	"github.com/kaiwa-ai/uketsuke/pkg/provider/asr"
)

const (
	// InboundFrameCap bounds the reader-to-orchestrator frame queue.
	InboundFrameCap = 64

	// outboundFrameCap bounds the orchestrator-to-writer queue.
	outboundFrameCap = 64

	// writeTimeout bounds one socket write; a slower write drops the
	// frame and the call continues with a gap in the audio.
	writeTimeout = 2 * time.Second

	// chunkDuration is the carrier media frame length.
	chunkDuration = 20 * time.Millisecond

	// maxASRRetries caps reconnect attempts before a recognizer outage
	// is treated as fatal for the current turn.
	maxASRRetries = 3

	// DefaultASRRetryBackoff is the wait between reconnect attempts.
	DefaultASRRetryBackoff = 5 * time.Second

	// DefaultStabilityThreshold ends a turn when a final hypothesis
	// reaches this stability in recognizer-driven turn taking.
	DefaultStabilityThreshold = 0.85

	// DefaultBargeInChunks is the accumulated speech needed before a
	// caller may interrupt a confirmation prompt.
	DefaultBargeInChunks = 20
)

// errCarrierClosed signals an orderly shutdown after the carrier side
// went away.
var errCarrierClosed = errors.New("session: carrier closed")

// Conn is the carrier media socket as the session sees it. The server
// adapts the real WebSocket; tests script frames directly.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// TurnTakingMode selects how the end of a caller turn is detected.
type TurnTakingMode string

const (
	// TurnTakingASRStability combines volume and linguistic cues with
	// the recognizer's stability signal.
	TurnTakingASRStability TurnTakingMode = "asr-stability"

	// TurnTakingVolumeEOT relies on volume and linguistic cues alone.
	TurnTakingVolumeEOT TurnTakingMode = "volume-eot"
)

// SlotFillingMode selects the slot extraction backend.
type SlotFillingMode string

const (
	SlotFillingRule SlotFillingMode = "rule"
	SlotFillingLLM  SlotFillingMode = "llm"
)

// BargeInMode selects whether a caller may interrupt the bot.
type BargeInMode string

const (
	BargeInOff              BargeInMode = "off"
	BargeInConfirmationOnly BargeInMode = "confirmation-only"
)

// Modes is the recognized behavior variants of a session, dispatched by
// tagged value.
type Modes struct {
	TurnTaking  TurnTakingMode
	SlotFilling SlotFillingMode
	BargeIn     BargeInMode
}

// DefaultModes is the production configuration.
func DefaultModes() Modes {
	return Modes{
		TurnTaking:  TurnTakingASRStability,
		SlotFilling: SlotFillingRule,
		BargeIn:     BargeInConfirmationOnly,
	}
}

// SlotExtractor is the optional model-backed slot extraction used in
// SlotFillingLLM mode.
type SlotExtractor interface {
	ExtractSlots(ctx context.Context, utterance string) (map[string]string, error)
}

// Config tunes one session. Zero fields fall back to defaults.
type Config struct {
	Modes Modes

	// Language is the recognition language passed to the ASR provider.
	Language string

	// Keywords boosts recognition of domain vocabulary.
	Keywords []string

	// VolumeThreshold, FastEndChunks and SlowEndChunks configure the
	// voice activity detector.
	VolumeThreshold int
	FastEndChunks   int
	SlowEndChunks   int

	// BargeInChunks is the speech chunk count that arms a barge-in.
	BargeInChunks int

	// StabilityThreshold ends the turn on a stable final hypothesis.
	StabilityThreshold float64

	// ASRRetryBackoff is the wait between recognizer reconnects.
	ASRRetryBackoff time.Duration

	// Backchannel enables a short acknowledgement when a new entity is
	// heard mid turn.
	Backchannel bool
}

func (c *Config) applyDefaults() {
	if c.Modes.TurnTaking == "" {
		c.Modes.TurnTaking = TurnTakingASRStability
	}
	if c.Modes.SlotFilling == "" {
		c.Modes.SlotFilling = SlotFillingRule
	}
	if c.Modes.BargeIn == "" {
		c.Modes.BargeIn = BargeInConfirmationOnly
	}
	if c.Language == "" {
		c.Language = "ja"
	}
	if c.FastEndChunks <= 0 {
		c.FastEndChunks = vad.DefaultFastEndChunks
	}
	if c.SlowEndChunks <= 0 {
		c.SlowEndChunks = vad.DefaultSlowEndChunks
	}
	if c.BargeInChunks <= 0 {
		c.BargeInChunks = DefaultBargeInChunks
	}
	if c.StabilityThreshold <= 0 {
		c.StabilityThreshold = DefaultStabilityThreshold
	}
	if c.ASRRetryBackoff <= 0 {
		c.ASRRetryBackoff = DefaultASRRetryBackoff
	}
}

// Deps are the collaborating components of a session.
type Deps struct {
	ASR      asr.Provider
	Bridge   *ttsbridge.Bridge
	Dialogue *dialogue.Manager
	Analyzer *nlu.Analyzer

	// Slots is consulted in SlotFillingLLM mode; nil falls back to the
	// rule-based result.
	Slots SlotExtractor

	// Recorder receives the conversation log, best effort. Nil disables
	// logging.
	Recorder convlog.Recorder

	// Metrics is optional; a nil value records nothing.
	Metrics *observe.Metrics

	Logger *slog.Logger
}

// Session is the per-call orchestrator. Create one per carrier stream
// and call Run exactly once.
type Session struct {
	log      *slog.Logger
	conn     Conn
	provider asr.Provider
	bridge   *ttsbridge.Bridge
	manager  *dialogue.Manager
	analyzer *nlu.Analyzer
	slots    SlotExtractor
	recorder convlog.Recorder
	metrics  *observe.Metrics
	detector *vad.Detector
	cfg      Config

	// Orchestrator-owned state. No other goroutine touches it.
	started        bool
	streamSid      string
	callSid        string
	conversationID string
	botSpeaking    bool
	currentLabel   string
	finishSent     bool
	outQueue       []ttsbridge.Envelope
	lastVAD        vad.State
	backchanneled  bool
	turn           int

	// Caller transcript of the current turn.
	finalText   string
	interimText string
	nluDirty    bool
	lastNLU     nlu.Result

	// Recognizer lifecycle.
	asrHandle  asr.SessionHandle
	asrCancel  context.CancelFunc
	asrResults <-chan asr.Transcript
	asrEnded   bool
	asrRetries int
	asrRestart <-chan time.Time

	outbound chan []byte
	logQueue chan convlog.Entry
}

// New builds a Session over an accepted carrier connection.
func New(conn Conn, deps Deps, cfg Config) *Session {
	cfg.applyDefaults()
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		log:      log,
		conn:     conn,
		provider: deps.ASR,
		bridge:   deps.Bridge,
		manager:  deps.Dialogue,
		analyzer: deps.Analyzer,
		slots:    deps.Slots,
		recorder: deps.Recorder,
		metrics:  deps.Metrics,
		cfg:      cfg,
		detector: vad.New(vad.Config{
			SampleRate:      8000,
			VolumeThreshold: cfg.VolumeThreshold,
			FastEndChunks:   cfg.FastEndChunks,
			SlowEndChunks:   cfg.SlowEndChunks,
		}),
		outbound: make(chan []byte, outboundFrameCap),
		logQueue: make(chan convlog.Entry, 64),
	}
}

// ConversationID derives the stable conversation identifier from the
// carrier call SID.
func ConversationID(callSid string) string {
	sum := sha1.Sum([]byte(callSid))
	return hex.EncodeToString(sum[:])
}

// Run drives the call until the carrier hangs up, a finish mark round
// trips or ctx is cancelled. It always returns after the worker fleet
// has stopped.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	inbound := make(chan []byte, InboundFrameCap)

	g.Go(func() error { return s.readLoop(ctx, inbound) })
	g.Go(func() error { return s.writeLoop(ctx) })
	g.Go(func() error { return ignoreCancel(s.bridge.Run(ctx)) })
	g.Go(func() error { return s.logLoop(ctx) })
	g.Go(func() error {
		defer cancel()
		return s.orchestrate(ctx, inbound)
	})

	err := g.Wait()
	if s.started {
		status := "dropped"
		if s.manager.Complete() {
			status = "completed"
		}
		s.metrics.CallEnded(context.WithoutCancel(ctx), status)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, errCarrierClosed) {
		return nil
	}
	return err
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readLoop feeds raw carrier frames to the orchestrator in receive
// order. A read failure closes the inbound stream, which the
// orchestrator treats as a hangup.
func (s *Session) readLoop(ctx context.Context, inbound chan<- []byte) error {
	defer close(inbound)
	for {
		data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Debug("carrier read ended", "error", err)
			return nil
		}
		select {
		case inbound <- data:
		case <-ctx.Done():
			return nil
		}
	}
}

// writeLoop sends outbound frames with a per-frame deadline. A timed
// out frame is dropped; any other write failure ends the session.
func (s *Session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-s.outbound:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Write(wctx, frame)
			cancel()
			if err == nil {
				continue
			}
			if errors.Is(err, context.DeadlineExceeded) {
				s.log.Warn("outbound frame dropped after write timeout")
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			s.log.Debug("carrier write ended", "error", err)
			return errCarrierClosed
		}
	}
}

// logLoop persists conversation entries off the hot path. Recorder
// failures are logged and never block the dialogue.
func (s *Session) logLoop(ctx context.Context) error {
	if s.recorder == nil {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-s.logQueue:
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
			if err := s.recorder.Record(rctx, e); err != nil {
				s.log.Warn("conversation log write failed", "error", err)
			}
			cancel()
		}
	}
}

// send hands one frame to the writer without blocking the orchestrator.
func (s *Session) send(frame []byte, err error) {
	if err != nil {
		s.log.Error("outbound frame encode failed", "error", err)
		return
	}
	select {
	case s.outbound <- frame:
	default:
		s.log.Warn("outbound queue full, frame dropped")
	}
}

// logEntry queues one conversation event, best effort.
func (s *Session) logEntry(role convlog.Role, label, text string) {
	if s.recorder == nil || text == "" {
		return
	}
	snap := s.manager.Snapshot()
	s.turn++
	e := convlog.Entry{
		ConversationID: s.conversationID,
		Turn:           s.turn,
		Role:           role,
		Label:          label,
		Text:           text,
		Intent:         string(snap.Intent),
		State:          string(snap.State),
		CreatedAt:      time.Now(),
	}
	select {
	case s.logQueue <- e:
	default:
		s.log.Warn("conversation log queue full, entry dropped")
	}
}
