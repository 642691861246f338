package session

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/kaiwa-ai/uketsuke/internal/carrier"
	"github.com/kaiwa-ai/uketsuke/internal/convlog"
	"github.com/kaiwa-ai/uketsuke/internal/dialogue"
	"github.com/kaiwa-ai/uketsuke/internal/nlu"
	"github.com/kaiwa-ai/uketsuke/internal/observe"
	"github.com/kaiwa-ai/uketsuke/pkg/audio"
	"github.com/kaiwa-ai/uketsuke/pkg/provider/asr"
)

// turnStatus is the per-frame turn-taking decision.
type turnStatus int

const (
	statusContinue turnStatus = iota
	statusBackchannel
	statusEndOfTurn
)

// bargeInLabels is the allow-list of utterances a caller may interrupt.
var bargeInLabels = map[string]bool{
	dialogue.LabelDatePrompt:        true,
	dialogue.LabelTimePrompt:        true,
	dialogue.LabelPersonCountPrompt: true,
	dialogue.LabelNamePrompt:        true,
	dialogue.LabelFinalConfirm:      true,
}

// orchestrate is the single consumer of inbound frames, recognizer
// results and synthesized envelopes. It is the only writer of dialogue
// state and of the bot speaking flag.
func (s *Session) orchestrate(ctx context.Context, inbound <-chan []byte) error {
	defer s.closeASR()

	envelopes := s.bridge.Envelopes()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-inbound:
			if !ok {
				return errCarrierClosed
			}
			if done := s.handleFrame(ctx, raw); done {
				return nil
			}

		case tr, ok := <-s.asrResults:
			if !ok {
				s.handleASREnd()
				continue
			}
			s.handleTranscript(tr)

		case env, ok := <-envelopes:
			if !ok {
				envelopes = nil
				continue
			}
			s.outQueue = append(s.outQueue, env)
			s.pump()

		case err := <-s.bridge.Errors():
			s.handleSynthFailure(ctx, err)

		case <-s.asrRestart:
			s.asrRestart = nil
			s.metrics.RecognizerRestarted(ctx)
			s.startASR(ctx)
		}
	}
}

// handleFrame processes one carrier frame in receive order. It reports
// true when the session should shut down.
func (s *Session) handleFrame(ctx context.Context, raw []byte) bool {
	msg, err := carrier.Parse(raw)
	if err != nil {
		s.log.Warn("unparseable carrier frame", "error", err)
		return false
	}

	switch msg.Event {
	case carrier.EventConnected:
		// Acknowledged by receipt.

	case carrier.EventStart:
		s.begin(ctx, msg)

	case carrier.EventMedia:
		s.handleMedia(ctx, msg)

	case carrier.EventMark:
		if msg.Mark == nil {
			return false
		}
		switch msg.Mark.Name {
		case carrier.MarkContinue:
			s.botSpeaking = false
			s.currentLabel = ""
			s.maybeFinish()
		case carrier.MarkFinish:
			return true
		}

	case carrier.EventStop:
		return true

	default:
		s.log.Debug("ignoring carrier event", "event", msg.Event)
	}

	s.pump()
	return false
}

// begin initializes the call on the carrier start event: identity,
// first recognizer session and the greeting.
func (s *Session) begin(ctx context.Context, msg carrier.Message) {
	if s.started || msg.Start == nil {
		return
	}
	s.started = true
	s.streamSid = msg.Start.StreamSid
	s.callSid = msg.Start.CallSid
	s.conversationID = ConversationID(msg.Start.CallSid)
	s.log = s.log.With("conversation_id", s.conversationID)
	s.log.Info("call started", "stream_sid", s.streamSid)
	s.metrics.CallStarted(ctx)

	s.startASR(ctx)

	greeting := s.manager.InitialMessage()
	s.enqueueUtterance(greeting)
}

// handleMedia runs one 20 ms audio chunk through VAD, the recognizer
// and the turn-taking decision.
func (s *Session) handleMedia(ctx context.Context, msg carrier.Message) {
	if !s.started {
		return
	}
	mulaw, err := msg.AudioPayload()
	if err != nil {
		s.log.Warn("bad media frame", "error", err)
		return
	}

	s.lastVAD = s.detector.Process(audio.DecodeMulaw(mulaw))

	// Suppress recognizer input while the bot is speaking to avoid
	// transcribing our own audio.
	if !s.botSpeaking && s.asrHandle != nil {
		if err := s.asrHandle.SendAudio(mulaw); err != nil && err != asr.ErrSessionClosed {
			s.log.Warn("recognizer feed failed", "error", err)
		}
	}

	switch s.turnTakingStatus() {
	case statusEndOfTurn:
		s.endOfTurn(ctx)
	case statusBackchannel:
		s.backchannel()
	}

	s.checkBargeIn(ctx)
}

// turnTakingStatus combines volume, linguistic and recognizer signals
// into one per-frame decision.
func (s *Session) turnTakingStatus() turnStatus {
	text := s.transcript()
	res := s.currentNLU()

	switch {
	case res.GotTerminalForm && s.lastVAD.FastSpeechEnd:
		return statusEndOfTurn
	case s.newSlotFilled(res) && s.lastVAD.FastSpeechEnd:
		return statusEndOfTurn
	case s.lastVAD.SlowSpeechEnd && text != "":
		return statusEndOfTurn
	case s.cfg.Modes.TurnTaking == TurnTakingASRStability && s.asrEnded:
		return statusEndOfTurn
	case res.GotEntity && s.lastVAD.FastSpeechEnd:
		return statusBackchannel
	default:
		return statusContinue
	}
}

// newSlotFilled reports a value for a slot the tracker does not have
// yet.
func (s *Session) newSlotFilled(res nlu.Result) bool {
	snap := s.manager.Snapshot()
	for k, v := range res.Slots {
		if v != "" && snap.Slots[k] == "" {
			return true
		}
	}
	return false
}

// endOfTurn runs the full dialogue turn: log, slot filling, state
// update, response generation and a fresh recognizer.
func (s *Session) endOfTurn(ctx context.Context) {
	if s.botSpeaking {
		// Echo of our own prompt; throw the partial turn away.
		s.resetTurn(ctx)
		return
	}
	text := s.transcript()
	if text == "" {
		s.resetTurn(ctx)
		return
	}

	started := time.Now()
	ctx, span := observe.StartSpan(ctx, "dialogue.turn")
	defer span.End()
	defer func() { s.metrics.TurnProcessed(ctx, time.Since(started).Seconds()) }()

	s.logEntry(convlog.RoleCaller, "", text)
	res := s.currentNLU()
	slots := s.fillSlots(ctx, text, res)

	responses := s.manager.ProcessTurn(ctx, dialogue.TurnInput{
		Text:        text,
		Slots:       slots,
		HearingItem: res.HearingItem,
	})
	for _, u := range responses {
		s.enqueueUtterance(u)
	}

	s.resetTurn(ctx)
}

// fillSlots returns the slot values for the turn, consulting the model
// extractor when configured. The rule-based result is the floor: a
// model outage or an empty model value never loses a rule-extracted
// slot.
func (s *Session) fillSlots(ctx context.Context, text string, res nlu.Result) map[string]string {
	slots := res.Slots
	if s.cfg.Modes.SlotFilling != SlotFillingLLM || s.slots == nil {
		return slots
	}
	modelSlots, err := s.slots.ExtractSlots(ctx, text)
	if err != nil {
		s.log.Warn("model slot extraction failed", "error", err)
		return slots
	}
	merged := make(map[string]string, len(slots))
	for k, v := range slots {
		merged[k] = v
	}
	for k, v := range modelSlots {
		if v != "" {
			merged[k] = v
		}
	}
	return merged
}

// backchannel plays a short acknowledgement once per turn without
// advancing the dialogue state.
func (s *Session) backchannel() {
	if !s.cfg.Backchannel || s.backchanneled || s.botSpeaking {
		return
	}
	s.backchanneled = true
	s.enqueueUtterance(s.manager.Filler())
}

// checkBargeIn interrupts the bot when the caller keeps talking over an
// interruptible prompt.
func (s *Session) checkBargeIn(ctx context.Context) {
	if s.cfg.Modes.BargeIn != BargeInConfirmationOnly || !s.botSpeaking {
		return
	}
	if !s.bargeInAllowed() {
		return
	}
	if s.lastVAD.SpeechChunks < s.cfg.BargeInChunks {
		return
	}

	s.log.Info("barge-in", "label", s.currentLabel, "speech_chunks", s.lastVAD.SpeechChunks)
	s.metrics.BargeIn(ctx)
	s.send(carrier.ClearFrame(s.streamSid))
	s.detector.Reset()
	s.clearTranscript()
	s.botSpeaking = false
	s.currentLabel = ""
}

func (s *Session) bargeInAllowed() bool {
	if bargeInLabels[s.currentLabel] {
		return true
	}
	return s.manager.Snapshot().State == dialogue.StateWaitingConfirmation
}

// pump moves at most one synthesized envelope to the carrier and waits
// for its playback mark before sending the next.
func (s *Session) pump() {
	if !s.started || s.botSpeaking || len(s.outQueue) == 0 {
		return
	}
	env := s.outQueue[0]
	s.outQueue = s.outQueue[1:]

	mulaw, err := base64.StdEncoding.DecodeString(env.Payload)
	if err != nil {
		s.log.Error("undecodable envelope payload", "label", env.Label, "error", err)
		return
	}
	s.send(carrier.MediaFrame(s.streamSid, mulaw))
	s.send(carrier.MarkFrame(s.streamSid, carrier.MarkContinue))
	s.botSpeaking = true
	s.currentLabel = env.Label
}

// maybeFinish requests hangup once the dialogue is terminal and all
// audio has been played.
func (s *Session) maybeFinish() {
	if s.finishSent || !s.manager.Complete() {
		return
	}
	if !s.bridge.IsEmpty() || len(s.outQueue) > 0 {
		return
	}
	s.finishSent = true
	s.send(carrier.MarkFrame(s.streamSid, carrier.MarkFinish))
}

// enqueueUtterance hands one response to the synthesis bridge and logs
// it.
func (s *Session) enqueueUtterance(u dialogue.Utterance) {
	if err := s.bridge.Enqueue(u); err != nil {
		s.log.Error("synthesis enqueue failed", "label", u.Label, "error", err)
		return
	}
	s.logEntry(convlog.RoleBot, u.Label, u.Text)
}

// handleSynthFailure plays the apology without advancing the dialogue
// state.
func (s *Session) handleSynthFailure(ctx context.Context, err error) {
	s.log.Error("synthesis failed", "error", err)
	s.metrics.ProviderError(ctx, "tts", "synth")
	apology := s.manager.Apologize()
	if e := s.bridge.Enqueue(apology); e != nil {
		s.log.Error("apology enqueue failed", "error", e)
	}
}

// handleTranscript folds one recognizer hypothesis into the turn
// buffer.
func (s *Session) handleTranscript(tr asr.Transcript) {
	if s.botSpeaking {
		return
	}
	if tr.IsFinal {
		if tr.Text != "" {
			s.finalText += tr.Text
		}
		s.interimText = ""
		if s.cfg.Modes.TurnTaking == TurnTakingASRStability && tr.Stability >= s.cfg.StabilityThreshold {
			s.asrEnded = true
		}
	} else {
		s.interimText = tr.Text
	}
	s.nluDirty = true
}

// transcript is the caller text accumulated this turn.
func (s *Session) transcript() string {
	return strings.TrimSpace(s.finalText + s.interimText)
}

// currentNLU analyses the turn transcript, cached until it changes.
func (s *Session) currentNLU() nlu.Result {
	if !s.nluDirty {
		return s.lastNLU
	}
	s.lastNLU = s.analyzer.Process(s.transcript())
	s.nluDirty = false
	return s.lastNLU
}

func (s *Session) clearTranscript() {
	s.finalText = ""
	s.interimText = ""
	s.nluDirty = false
	s.lastNLU = nlu.Result{}
	s.asrEnded = false
}

// resetTurn starts the next caller turn from a clean slate with a
// fresh recognizer session.
func (s *Session) resetTurn(ctx context.Context) {
	s.closeASR()
	s.detector.Reset()
	s.clearTranscript()
	s.backchanneled = false
	s.startASR(ctx)
}

// asrDeadline bounds one recognizer session relative to the slow
// end-of-speech budget.
func (s *Session) asrDeadline() time.Duration {
	return 3 * time.Duration(s.cfg.SlowEndChunks) * chunkDuration
}

// startASR opens a recognizer session. A failed dial schedules a
// retry.
func (s *Session) startASR(ctx context.Context) {
	if s.asrHandle != nil || s.provider == nil {
		return
	}
	actx, cancel := context.WithTimeout(ctx, s.asrDeadline())
	handle, err := s.provider.StartStream(actx, asr.StreamConfig{
		SampleRate:     8000,
		Encoding:       "mulaw",
		Language:       s.cfg.Language,
		InterimResults: true,
		Keywords:       s.cfg.Keywords,
	})
	if err != nil {
		cancel()
		s.log.Warn("recognizer start failed", "error", err)
		s.scheduleASRRetry()
		return
	}
	s.asrHandle = handle
	s.asrCancel = cancel
	s.asrResults = handle.Results()
	s.asrRetries = 0
}

// handleASREnd reacts to a closed recognizer result stream: reconnect
// on transient failures, apologize once retries are exhausted.
func (s *Session) handleASREnd() {
	var err error
	if s.asrHandle != nil {
		err = s.asrHandle.Err()
	}
	s.closeASR()

	if err == nil || asr.IsTransient(err) {
		s.scheduleASRRetry()
		return
	}
	s.log.Error("recognizer failed", "error", err)
	s.asrFatal()
}

// scheduleASRRetry arms the backoff timer, degrading to a fatal outage
// after the retry budget.
func (s *Session) scheduleASRRetry() {
	if s.asrRetries >= maxASRRetries {
		s.asrFatal()
		return
	}
	s.asrRetries++
	s.asrRestart = time.After(s.cfg.ASRRetryBackoff)
}

// asrFatal treats the partial turn as empty, apologizes and keeps the
// call alive with a fresh retry budget.
func (s *Session) asrFatal() {
	s.clearTranscript()
	s.detector.Reset()
	s.enqueueUtterance(s.manager.Apologize())
	s.asrRetries = 0
	s.asrRestart = time.After(s.cfg.ASRRetryBackoff)
}

func (s *Session) closeASR() {
	if s.asrHandle == nil {
		return
	}
	if err := s.asrHandle.Close(); err != nil {
		s.log.Debug("recognizer close", "error", err)
	}
	if s.asrCancel != nil {
		s.asrCancel()
	}
	s.asrHandle = nil
	s.asrCancel = nil
	s.asrResults = nil
}
