package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// IntentClassifier resolves an intent or answers a store question via a
// language model. Implementations must honor ctx deadlines; the manager
// treats any error or empty answer as "no result".
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, utterance string, candidates map[Intent][]string) (Intent, error)
	AnswerQuestion(ctx context.Context, utterance string) (string, error)
}

// Bookings is the reservation backend consulted by the confirm, cancel
// and completion flows. Create returns one of the Response* codes.
type Bookings interface {
	Create(ctx context.Context, slots map[string]string) (string, error)
	Find(ctx context.Context, name string) (map[string]string, bool, error)
	Cancel(ctx context.Context, name string) (bool, error)
}

// TurnInput is the per-turn NLU outcome handed to the manager by the
// orchestrator.
type TurnInput struct {
	Text        string
	Slots       map[string]string
	HearingItem string
}

// Manager drives one conversation: intent routing, state tracking and
// response selection. Not safe for concurrent use; the orchestrator is
// its only caller.
type Manager struct {
	log        *slog.Logger
	gen        *Generator
	tracker    *Tracker
	matcher    *Matcher
	pattern    Pattern
	classifier IntentClassifier
	bookings   Bookings
	now        func() time.Time

	unrecognizedStreak int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithClassifier enables LLM intent classification and FAQ answering.
func WithClassifier(c IntentClassifier) Option {
	return func(m *Manager) { m.classifier = c }
}

// WithBookings connects the reservation backend.
func WithBookings(b Bookings) Option {
	return func(m *Manager) { m.bookings = b }
}

// WithPattern replaces the built-in conversation flow.
func WithPattern(p Pattern) Option {
	return func(m *Manager) { m.pattern = p }
}

// WithMatcher replaces the default phrase matcher.
func WithMatcher(ma *Matcher) Option {
	return func(m *Manager) { m.matcher = ma }
}

// WithClock overrides the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a Manager around a Generator; gen defaults to the
// built-in templates when nil.
func NewManager(gen *Generator, opts ...Option) *Manager {
	if gen == nil {
		gen = NewGenerator(nil)
	}
	m := &Manager{
		log:     slog.Default(),
		gen:     gen,
		tracker: NewTracker(gen.Templates()),
		matcher: NewMatcher(0),
		pattern: DefaultPattern(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitialMessage is the greeting spoken when the call connects.
func (m *Manager) InitialMessage() Utterance {
	label := m.pattern.InitialMessage
	return Utterance{Label: label, Text: m.gen.Templates().Text(label)}
}

// Apologize returns the standing apology utterance, used by the
// orchestrator when a provider call fails mid-turn.
func (m *Manager) Apologize() Utterance { return m.gen.Apologize() }

// Filler returns the short acknowledgement played while a slow model
// call is in flight.
func (m *Manager) Filler() Utterance { return m.gen.Filler() }

// Snapshot exposes the current tracker state.
func (m *Manager) Snapshot() Snapshot { return m.tracker.Snapshot() }

// Complete reports whether the conversation reached a terminal state.
func (m *Manager) Complete() bool { return m.tracker.State().Terminal() }

// Reset returns the conversation to its starting state.
func (m *Manager) Reset() {
	m.tracker = NewTracker(m.gen.Templates())
	m.unrecognizedStreak = 0
}

// ProcessTurn runs one full dialogue turn: intent routing, state update
// and response generation. It always returns at least one utterance.
func (m *Manager) ProcessTurn(ctx context.Context, in TurnInput) []Utterance {
	current := m.tracker.Snapshot()

	intent := m.routeIntent(ctx, in.Text, current)
	updated := m.tracker.UpdateState(NLUResult{
		Intent:      intent,
		Slots:       in.Slots,
		HearingItem: in.HearingItem,
	})
	m.log.Debug("dialogue state updated",
		"intent", updated.Intent,
		"state", updated.State,
		"updated_slots", updated.UpdatedSlots,
		"missing_slots", updated.MissingSlots)

	var responses []Utterance
	switch {
	case updated.State == StateFallback:
		responses = []Utterance{m.gen.Fallback(FallbackDefault)}
		m.tracker.SetState(StateWaitingConfirmation)

	case updated.State == StateSlotsFilled:
		responses = m.slotsFilledTurn(ctx, updated)

	case updated.State == StateCorrection:
		responses = m.correctionTurn(current, updated, in)

	default:
		responses = m.generateResponse(ctx, current, updated, in.Text)
	}

	if len(responses) == 0 {
		responses = []Utterance{m.gen.Fallback(FallbackDefault)}
	}
	return responses
}

// routeIntent decides this turn's intent: the fuzzy phrase matcher
// first, then the LLM classifier, falling back to the current intent.
func (m *Manager) routeIntent(ctx context.Context, text string, current Snapshot) Intent {
	if !m.needsClassification(current) {
		return current.Intent
	}
	candidates := m.pattern.Candidates(current.State, current.Intent)
	if len(candidates) == 0 {
		candidates = m.pattern.GlobalIntents
	}

	if intent, score, ok := m.matcher.Match(text, candidates); ok {
		m.log.Debug("intent matched", "intent", intent, "score", score)
		m.unrecognizedStreak = 0
		return intent
	}
	if m.classifier != nil {
		intent, err := m.classifier.ClassifyIntent(ctx, text, candidates)
		if err != nil {
			m.log.Warn("intent classification failed", "error", err)
		} else if _, ok := candidates[intent]; ok {
			m.unrecognizedStreak = 0
			return intent
		}
	}
	m.unrecognizedStreak++
	return current.Intent
}

func (m *Manager) needsClassification(current Snapshot) bool {
	if current.Intent == IntentNone {
		return true
	}
	return current.State == StateStart || current.State == StateWaitingConfirmation
}

// slotsFilledTurn handles the transition where every required slot of
// the scene just became available.
func (m *Manager) slotsFilledTurn(ctx context.Context, updated Snapshot) []Utterance {
	var responses []Utterance
	if conf, ok := m.gen.ImplicitConfirmation(updated.Intent, updated.UpdatedSlots, updated.Slots); ok {
		responses = append(responses, conf)
	}

	switch updated.Intent {
	case IntentConfirmReservation:
		slots, found := m.lookupReservation(ctx, updated.Slots)
		m.tracker.SetState(StateComplete)
		code := ResponseFind
		if !found {
			code = ResponseNotFound
		}
		if u, err := m.gen.IntentResponse(updated.Intent, code, slots); err == nil {
			responses = append(responses, u)
		}
		if u, ok := m.gen.SceneComplete(updated.Intent); ok && found {
			responses = append(responses, u)
		}

	case IntentCancelReservation:
		slots, found := m.lookupReservation(ctx, updated.Slots)
		if !found {
			m.tracker.SetState(StateComplete)
			if u, err := m.gen.IntentResponse(updated.Intent, ResponseNotFound, slots); err == nil {
				responses = append(responses, u)
			}
			return responses
		}
		if u, err := m.gen.IntentResponse(updated.Intent, ResponseComplete, slots); err == nil {
			responses = append(responses, u)
		}
		m.tracker.SetState(StateWaitingConfirmation)

	default:
		if prompt, err := m.gen.ConfirmationPrompt(updated.Intent, updated.Slots); err == nil {
			responses = append(responses, prompt)
		}
		m.tracker.SetState(StateWaitingConfirmation)
	}
	return responses
}

// lookupReservation fills slots the caller did not provide from the
// booking on file. Without a backend a placeholder booking one week out
// keeps the flow testable.
func (m *Manager) lookupReservation(ctx context.Context, slots map[string]string) (map[string]string, bool) {
	filled := make(map[string]string, len(slots))
	for k, v := range slots {
		filled[k] = v
	}
	var (
		onFile map[string]string
		found  bool
	)
	if m.bookings != nil {
		stored, ok, err := m.bookings.Find(ctx, filled[SlotName])
		if err != nil {
			m.log.Warn("reservation lookup failed", "error", err)
			return filled, false
		}
		onFile, found = stored, ok
	} else {
		onFile = map[string]string{
			SlotDate:        m.now().AddDate(0, 0, 7).Format("01/02"),
			SlotTime:        "19:00",
			SlotPersonCount: "2",
		}
		found = true
	}
	if !found {
		return filled, false
	}
	for slot, value := range onFile {
		if filled[slot] == "" {
			filled[slot] = value
			m.tracker.SetSlot(slot, value)
		}
	}
	return filled, true
}

// correctionTurn handles a caller revising already-confirmed values.
func (m *Manager) correctionTurn(current, updated Snapshot, in TurnInput) []Utterance {
	if len(updated.UpdatedSlots) > 0 {
		m.tracker.SetCorrectionTarget(updated.UpdatedSlots[0])
		var responses []Utterance
		if conf, ok := m.gen.ImplicitConfirmation(current.Intent, updated.UpdatedSlots, updated.Slots); ok {
			responses = append(responses, conf)
		}
		if prompt, err := m.gen.ConfirmationPrompt(updated.Intent, updated.Slots); err == nil {
			responses = append(responses, prompt)
		}
		m.tracker.SetState(StateWaitingConfirmation)
		return responses
	}

	if in.HearingItem != "" {
		m.tracker.SetCorrectionTarget(in.HearingItem)
		if prompt, ok := m.gen.CorrectionPrompt(updated.Intent, in.HearingItem); ok {
			return []Utterance{prompt}
		}
	}
	if u, ok := m.gen.FinalConfirmationResponse(updated.Intent, IntentChange); ok {
		return []Utterance{u}
	}
	return nil
}

// generateResponse covers the remaining states after the slots-filled
// and correction branches.
func (m *Manager) generateResponse(ctx context.Context, previous, updated Snapshot, userText string) []Utterance {
	nextQuestion, hasQuestion := m.nextQuestion(updated)

	if updated.Intent == IntentAskAboutStore && updated.State != StateIntentChanged {
		return m.storeQuestionTurn(ctx, updated, userText)
	}

	switch updated.State {
	case StateError:
		m.tracker.SetState(StateWaitingConfirmation)
		return []Utterance{m.gen.Fallback(FallbackInvalidIntent)}

	case StateIntentChanged:
		return m.intentChangedTurn(updated, nextQuestion, hasQuestion)

	case StateWaitingConfirmation:
		// Reached when a correction target was just refilled.
		var responses []Utterance
		if conf, ok := m.gen.ImplicitConfirmation(updated.Intent, updated.UpdatedSlots, updated.Slots); ok {
			responses = append(responses, conf)
		}
		if prompt, err := m.gen.ConfirmationPrompt(updated.Intent, updated.Slots); err == nil {
			responses = append(responses, prompt)
		}
		return responses

	case StateComplete:
		return m.completeTurn(ctx, updated)

	case StateCancelled:
		return m.cancelledTurn(updated)
	}

	if len(updated.UpdatedSlots) > 0 {
		if conf, ok := m.gen.ImplicitConfirmation(updated.Intent, updated.UpdatedSlots, updated.Slots); ok {
			if hasQuestion {
				return []Utterance{conf, nextQuestion}
			}
			return []Utterance{conf}
		}
	}
	if updated.State == StateContinue && hasQuestion {
		return []Utterance{nextQuestion}
	}
	return []Utterance{m.gen.Fallback(FallbackDefault)}
}

func (m *Manager) nextQuestion(s Snapshot) (Utterance, bool) {
	if len(s.MissingSlots) == 0 {
		return Utterance{}, false
	}
	return m.gen.NextQuestion(s.Intent, s.MissingSlots[0])
}

func (m *Manager) intentChangedTurn(updated Snapshot, nextQuestion Utterance, hasQuestion bool) []Utterance {
	if updated.Intent == IntentChangeReservation {
		m.tracker.SetState(StateComplete)
		var responses []Utterance
		if u, ok := m.gen.SceneInitial(updated.Intent); ok {
			responses = append(responses, u)
		}
		if u, ok := m.gen.SceneComplete(updated.Intent); ok {
			responses = append(responses, u)
		}
		return responses
	}

	if len(updated.UpdatedSlots) > 0 {
		if conf, ok := m.gen.ImplicitConfirmation(updated.Intent, updated.UpdatedSlots, updated.Slots); ok {
			if hasQuestion {
				return []Utterance{conf, nextQuestion}
			}
			return []Utterance{conf}
		}
	}

	var responses []Utterance
	if u, ok := m.gen.SceneInitial(updated.Intent); ok {
		responses = append(responses, u)
	}
	if hasQuestion {
		responses = append(responses, nextQuestion)
	}
	return responses
}

// completeTurn finalizes a scene once the caller confirmed.
func (m *Manager) completeTurn(ctx context.Context, updated Snapshot) []Utterance {
	switch updated.Intent {
	case IntentNewReservation:
		code := ResponseComplete
		if m.bookings != nil {
			c, err := m.bookings.Create(ctx, updated.Slots)
			if err != nil {
				m.log.Error("reservation create failed", "error", err)
				return []Utterance{m.gen.Apologize()}
			}
			code = c
		}
		if code != ResponseComplete {
			return m.rejectedBooking(updated, code)
		}
		var responses []Utterance
		if u, err := m.gen.IntentResponse(updated.Intent, ResponseComplete, updated.Slots); err == nil {
			responses = append(responses, u)
		} else if u, ok := m.gen.SceneComplete(updated.Intent); ok {
			responses = append(responses, u)
		}
		return responses

	case IntentCancelReservation:
		if m.bookings != nil {
			if _, err := m.bookings.Cancel(ctx, updated.Slots[SlotName]); err != nil {
				m.log.Error("reservation cancel failed", "error", err)
				return []Utterance{m.gen.Apologize()}
			}
		}
		if u, ok := m.gen.SceneComplete(updated.Intent); ok {
			return []Utterance{u}
		}
	}
	if u, ok := m.gen.SceneComplete(updated.Intent); ok {
		return []Utterance{u}
	}
	return nil
}

// rejectedBooking speaks the refusal and re-opens the date slot so the
// caller can pick another day or time.
func (m *Manager) rejectedBooking(updated Snapshot, code string) []Utterance {
	var responses []Utterance
	if u, err := m.gen.IntentResponse(updated.Intent, code, updated.Slots); err == nil {
		responses = append(responses, u)
	} else {
		m.log.Warn("no template for booking outcome", "code", code, "error", err)
		responses = append(responses, m.gen.Apologize())
	}
	target := SlotDate
	if code == ResponseInvalidTime {
		target = SlotTime
	}
	m.tracker.SetCorrectionTarget(target)
	m.tracker.SetState(StateCorrection)
	if prompt, ok := m.gen.CorrectionPrompt(updated.Intent, target); ok {
		responses = append(responses, prompt)
	}
	return responses
}

func (m *Manager) cancelledTurn(updated Snapshot) []Utterance {
	switch updated.Intent {
	case IntentNewReservation, IntentCancelReservation:
		m.tracker.SetState(StateComplete)
		if u, ok := m.gen.FinalConfirmationResponse(updated.Intent, IntentCancel); ok {
			return []Utterance{u}
		}
	case IntentConfirmReservation:
		// A cancel request during a confirmation review ends the call the
		// same way an explicit cancellation scene would.
		m.tracker.SetState(StateComplete)
		if u, ok := m.gen.SceneComplete(IntentCancelReservation); ok {
			return []Utterance{u}
		}
	default:
		m.tracker.SetState(StateComplete)
	}
	if u, ok := m.gen.SceneComplete(updated.Intent); ok {
		return []Utterance{u}
	}
	return nil
}

// storeQuestionTurn answers a store FAQ through the language model.
func (m *Manager) storeQuestionTurn(ctx context.Context, updated Snapshot, userText string) []Utterance {
	switch updated.State {
	case StateCancelled, StateComplete:
		m.tracker.SetState(StateComplete)
		if u, ok := m.gen.SceneComplete(updated.Intent); ok {
			return []Utterance{u}
		}
		return nil
	}

	m.tracker.SetState(StateWaitingConfirmation)
	if m.classifier == nil {
		if u, err := m.gen.IntentResponse(updated.Intent, ResponseNotFound, nil); err == nil {
			return []Utterance{u}
		}
		return nil
	}
	answer, err := m.classifier.AnswerQuestion(ctx, userText)
	if err != nil {
		m.log.Warn("faq answering failed", "error", err)
		return []Utterance{m.gen.Apologize()}
	}
	if answer == "" {
		if u, err := m.gen.IntentResponse(updated.Intent, ResponseNotFound, nil); err == nil {
			return []Utterance{u}
		}
		return nil
	}
	return []Utterance{{Text: answer}}
}

var _ fmt.Stringer = Intent("")

// String implements fmt.Stringer for log output.
func (i Intent) String() string {
	if i == IntentNone {
		return "NONE"
	}
	return string(i)
}
