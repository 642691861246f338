// Package dialogue implements the rule-based dialogue layer of the phone
// agent: intent and state definitions, the dialogue state tracker, the
// template response generator and the per-turn manager that binds them.
package dialogue

import "github.com/kaiwa-ai/uketsuke/internal/nlu"

// Intent is the caller's goal for a turn. Global intents may open a
// scene; local intents are only meaningful while waiting for the final
// confirmation.
type Intent string

const (
	IntentNewReservation     Intent = "NEW_RESERVATION"
	IntentConfirmReservation Intent = "CONFIRM_RESERVATION"
	IntentCancelReservation  Intent = "CANCEL_RESERVATION"
	IntentChangeReservation  Intent = "CHANGE_RESERVATION"
	IntentAskAboutStore      Intent = "ASK_ABOUT_STORE"

	IntentYes     Intent = "YES"
	IntentNo      Intent = "NO"
	IntentChange  Intent = "CHANGE"
	IntentCancel  Intent = "CANCEL"
	IntentConfirm Intent = "CONFIRM"
	IntentOther   Intent = "OTHER"

	IntentNone Intent = ""
)

// IsGlobal reports whether the intent may start a scene.
func (i Intent) IsGlobal() bool {
	switch i {
	case IntentNewReservation, IntentConfirmReservation, IntentCancelReservation,
		IntentChangeReservation, IntentAskAboutStore:
		return true
	}
	return false
}

// IsLocal reports whether the intent only resolves a pending
// confirmation.
func (i Intent) IsLocal() bool {
	switch i {
	case IntentYes, IntentNo, IntentChange, IntentCancel, IntentConfirm:
		return true
	}
	return false
}

// State is the dialogue state machine position.
type State string

const (
	StateStart               State = "START"
	StateContinue            State = "CONTINUE"
	StateSlotsFilled         State = "SLOTS_FILLED"
	StateWaitingConfirmation State = "WAITING_CONFIRMATION"
	StateCorrection          State = "CORRECTION"
	StateComplete            State = "COMPLETE"
	StateCancelled           State = "CANCELLED"
	StateError               State = "ERROR"
	StateIntentChanged       State = "INTENT_CHANGED"
	StateFallback            State = "FALLBACK"
)

// Terminal reports whether the conversation ends in this state.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateCancelled
}

// FallbackKind selects a fallback template.
type FallbackKind string

const (
	FallbackInvalidIntent     FallbackKind = "INVALID_INTENT"
	FallbackNoIntent          FallbackKind = "NO_INTENT"
	FallbackConversationError FallbackKind = "CONVERSATION_ERROR"
	FallbackDefault           FallbackKind = "DEFAULT"
)

// Slot names reuse the NLU canonical names; the tracker and templates
// share them.
const (
	SlotDate        = nlu.SlotDate
	SlotTime        = nlu.SlotTime
	SlotPersonCount = nlu.SlotPersonCount
	SlotName        = nlu.SlotName
)

// NLUResult is the per-turn input to the tracker: the routed intent plus
// the slots and cues extracted from the transcript.
type NLUResult struct {
	Intent      Intent
	Slots       map[string]string
	HearingItem string
}

// Snapshot is an immutable copy of the tracker state handed to other
// components. Maps and slices are deep-copied on every call.
type Snapshot struct {
	Intent           Intent
	State            State
	Slots            map[string]string
	PreviousSlots    map[string]string
	MissingSlots     []string
	UpdatedSlots     []string
	RequiredSlots    []string
	OptionalSlots    []string
	CorrectionTarget string
}

// Utterance is one outbound response unit. Label-carrying utterances let
// the TTS bridge serve pre-synthesized audio; Text is always set.
type Utterance struct {
	Label string
	Text  string
}
