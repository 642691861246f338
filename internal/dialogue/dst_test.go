package dialogue_test

import (
	"testing"

	"github.com/kaiwa-ai/uketsuke/internal/dialogue"
)

func newTracker() *dialogue.Tracker {
	return dialogue.NewTracker(dialogue.DefaultTemplates())
}

func TestTracker_IntentChange(t *testing.T) {
	tr := newTracker()
	snap := tr.UpdateState(dialogue.NLUResult{Intent: dialogue.IntentNewReservation})
	if snap.State != dialogue.StateIntentChanged {
		t.Fatalf("state = %s, want INTENT_CHANGED", snap.State)
	}
	if snap.Intent != dialogue.IntentNewReservation {
		t.Fatalf("intent = %s", snap.Intent)
	}
	if len(snap.MissingSlots) != 4 {
		t.Errorf("missing slots = %v, want all four", snap.MissingSlots)
	}
}

func TestTracker_SlotMergeNeverClears(t *testing.T) {
	tr := newTracker()
	tr.UpdateState(dialogue.NLUResult{Intent: dialogue.IntentNewReservation})
	tr.UpdateState(dialogue.NLUResult{Slots: map[string]string{dialogue.SlotDate: "11/02"}})

	// An empty extraction must not erase the stored date.
	snap := tr.UpdateState(dialogue.NLUResult{Slots: map[string]string{dialogue.SlotDate: ""}})
	if snap.Slots[dialogue.SlotDate] != "11/02" {
		t.Errorf("date = %q after empty merge, want 11/02", snap.Slots[dialogue.SlotDate])
	}
}

func TestTracker_SlotsFilledTransition(t *testing.T) {
	tr := newTracker()
	tr.UpdateState(dialogue.NLUResult{Intent: dialogue.IntentNewReservation})
	snap := tr.UpdateState(dialogue.NLUResult{Slots: map[string]string{
		dialogue.SlotDate:        "11/02",
		dialogue.SlotTime:        "19:00",
		dialogue.SlotPersonCount: "3",
		dialogue.SlotName:        "山田",
	}})
	if snap.State != dialogue.StateSlotsFilled {
		t.Fatalf("state = %s, want SLOTS_FILLED", snap.State)
	}
	if len(snap.UpdatedSlots) != 4 {
		t.Errorf("updated slots = %v", snap.UpdatedSlots)
	}
	if len(snap.MissingSlots) != 0 {
		t.Errorf("missing slots = %v, want none", snap.MissingSlots)
	}
}

func TestTracker_PartialFillContinues(t *testing.T) {
	tr := newTracker()
	tr.UpdateState(dialogue.NLUResult{Intent: dialogue.IntentNewReservation})
	snap := tr.UpdateState(dialogue.NLUResult{Slots: map[string]string{dialogue.SlotDate: "11/02"}})
	if snap.State != dialogue.StateContinue {
		t.Fatalf("state = %s, want CONTINUE", snap.State)
	}
	if len(snap.MissingSlots) != 3 {
		t.Errorf("missing slots = %v, want three", snap.MissingSlots)
	}
}

func TestTracker_LocalIntentRouting(t *testing.T) {
	cases := []struct {
		local dialogue.Intent
		want  dialogue.State
	}{
		{dialogue.IntentConfirm, dialogue.StateComplete},
		{dialogue.IntentYes, dialogue.StateComplete},
		{dialogue.IntentChange, dialogue.StateCorrection},
		{dialogue.IntentCancel, dialogue.StateCancelled},
		{dialogue.IntentNo, dialogue.StateWaitingConfirmation},
	}
	for _, c := range cases {
		tr := newTracker()
		tr.UpdateState(dialogue.NLUResult{Intent: dialogue.IntentNewReservation})
		tr.SetState(dialogue.StateWaitingConfirmation)
		snap := tr.UpdateState(dialogue.NLUResult{Intent: c.local})
		if snap.State != c.want {
			t.Errorf("local %s: state = %s, want %s", c.local, snap.State, c.want)
		}
	}
}

func TestTracker_CorrectionCompletes(t *testing.T) {
	tr := newTracker()
	tr.UpdateState(dialogue.NLUResult{Intent: dialogue.IntentNewReservation})
	tr.SetState(dialogue.StateCorrection)
	tr.SetCorrectionTarget(dialogue.SlotDate)

	snap := tr.UpdateState(dialogue.NLUResult{Slots: map[string]string{dialogue.SlotDate: "11/03"}})
	if snap.State != dialogue.StateWaitingConfirmation {
		t.Fatalf("state = %s, want WAITING_CONFIRMATION", snap.State)
	}
	if snap.CorrectionTarget != "" {
		t.Errorf("correction target = %q, want cleared", snap.CorrectionTarget)
	}
}

func TestTracker_ConfirmationCorrectionByValue(t *testing.T) {
	tr := newTracker()
	tr.UpdateState(dialogue.NLUResult{Intent: dialogue.IntentNewReservation})
	tr.UpdateState(dialogue.NLUResult{Slots: map[string]string{dialogue.SlotDate: "11/02"}})
	tr.SetState(dialogue.StateWaitingConfirmation)

	// A new slot value during confirmation is a correction.
	snap := tr.UpdateState(dialogue.NLUResult{Slots: map[string]string{dialogue.SlotDate: "11/03"}})
	if snap.State != dialogue.StateCorrection {
		t.Fatalf("state = %s, want CORRECTION", snap.State)
	}
	if snap.CorrectionTarget != dialogue.SlotDate {
		t.Errorf("correction target = %q", snap.CorrectionTarget)
	}
}

func TestTracker_ConfirmationCorrectionByName(t *testing.T) {
	tr := newTracker()
	tr.UpdateState(dialogue.NLUResult{Intent: dialogue.IntentNewReservation})
	tr.SetState(dialogue.StateWaitingConfirmation)

	snap := tr.UpdateState(dialogue.NLUResult{HearingItem: dialogue.SlotTime})
	if snap.State != dialogue.StateCorrection {
		t.Fatalf("state = %s, want CORRECTION", snap.State)
	}
	if snap.CorrectionTarget != dialogue.SlotTime {
		t.Errorf("correction target = %q", snap.CorrectionTarget)
	}
}

func TestTracker_UnrecognizedDuringConfirmation(t *testing.T) {
	tr := newTracker()
	tr.UpdateState(dialogue.NLUResult{Intent: dialogue.IntentNewReservation})
	tr.SetState(dialogue.StateWaitingConfirmation)

	snap := tr.UpdateState(dialogue.NLUResult{Intent: dialogue.IntentNewReservation})
	if snap.State != dialogue.StateError {
		t.Fatalf("state = %s, want ERROR", snap.State)
	}
}

func TestTracker_NoIntentFallsBack(t *testing.T) {
	tr := newTracker()
	snap := tr.UpdateState(dialogue.NLUResult{})
	if snap.State != dialogue.StateFallback {
		t.Fatalf("state = %s, want FALLBACK", snap.State)
	}
}

func TestTracker_CanTransitionTo(t *testing.T) {
	tr := newTracker()
	if !tr.CanTransitionTo(dialogue.IntentNewReservation) {
		t.Error("global intent rejected in START")
	}
	if tr.CanTransitionTo(dialogue.IntentConfirm) {
		t.Error("local intent accepted outside WAITING_CONFIRMATION")
	}

	tr.UpdateState(dialogue.NLUResult{Intent: dialogue.IntentNewReservation})
	tr.SetState(dialogue.StateWaitingConfirmation)
	if !tr.CanTransitionTo(dialogue.IntentConfirm) {
		t.Error("local intent rejected in WAITING_CONFIRMATION")
	}

	tr.SetState(dialogue.StateComplete)
	if tr.CanTransitionTo(dialogue.IntentNewReservation) {
		t.Error("transition accepted from terminal state")
	}
}

func TestTracker_SnapshotIsolation(t *testing.T) {
	tr := newTracker()
	tr.UpdateState(dialogue.NLUResult{Intent: dialogue.IntentNewReservation})
	snap := tr.Snapshot()
	snap.Slots[dialogue.SlotDate] = "tampered"

	if tr.Snapshot().Slots[dialogue.SlotDate] == "tampered" {
		t.Error("snapshot mutation leaked into tracker")
	}
}
