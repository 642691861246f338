package dialogue

// Tracker is the dialogue state tracker: a flat, single-scene state
// machine owning the current intent, the slot map and the dialogue
// state. Exactly one goroutine (the session orchestrator) mutates it;
// everyone else works on Snapshot copies.
type Tracker struct {
	templates *Templates

	intent           Intent
	state            State
	slots            map[string]string
	previousSlots    map[string]string
	updatedSlots     []string
	correctionTarget string
}

// NewTracker starts a tracker in START with every slot empty.
func NewTracker(templates *Templates) *Tracker {
	if templates == nil {
		templates = DefaultTemplates()
	}
	return &Tracker{
		templates:     templates,
		state:         StateStart,
		slots:         emptySlots(),
		previousSlots: emptySlots(),
	}
}

func emptySlots() map[string]string {
	return map[string]string{
		SlotDate:        "",
		SlotTime:        "",
		SlotPersonCount: "",
		SlotName:        "",
	}
}

func cloneSlots(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// UpdateState applies one turn's NLU result and returns the resulting
// snapshot. Non-empty slot values merge in; an empty extraction never
// clears a previously filled slot.
func (tr *Tracker) UpdateState(res NLUResult) Snapshot {
	tr.previousSlots = cloneSlots(tr.slots)
	tr.updatedSlots = tr.mergeSlots(res.Slots)

	switch {
	case tr.state == StateWaitingConfirmation && res.Intent.IsLocal():
		tr.routeLocalIntent(res.Intent)

	case res.Intent.IsGlobal() && res.Intent != tr.intent:
		tr.intent = res.Intent
		tr.state = StateIntentChanged

	case tr.state == StateCorrection:
		if tr.correctionTarget != "" && tr.slots[tr.correctionTarget] != "" &&
			tr.slots[tr.correctionTarget] != tr.previousSlots[tr.correctionTarget] {
			tr.correctionTarget = ""
			tr.state = StateWaitingConfirmation
		}

	case tr.state == StateWaitingConfirmation:
		// A slot-bearing turn during confirmation is a correction; an
		// utterance naming a slot targets it even without a new value.
		switch {
		case len(tr.updatedSlots) > 0:
			tr.correctionTarget = tr.updatedSlots[0]
			tr.state = StateCorrection
		case res.HearingItem != "":
			tr.correctionTarget = res.HearingItem
			tr.state = StateCorrection
		default:
			tr.state = StateError
		}

	case tr.intent == IntentNone:
		tr.state = StateFallback

	default:
		if len(tr.RequiredSlots()) > 0 && len(tr.missingSlots()) == 0 {
			tr.state = StateSlotsFilled
		} else {
			tr.state = StateContinue
		}
	}
	return tr.Snapshot()
}

func (tr *Tracker) routeLocalIntent(local Intent) {
	switch local {
	case IntentConfirm, IntentYes:
		tr.state = StateComplete
	case IntentChange:
		tr.state = StateCorrection
	case IntentCancel:
		tr.state = StateCancelled
	case IntentNo:
		tr.state = StateWaitingConfirmation
	}
}

// mergeSlots merges non-empty values and returns the names of slots
// whose value actually changed this turn.
func (tr *Tracker) mergeSlots(incoming map[string]string) []string {
	var updated []string
	for slot, value := range incoming {
		if value == "" {
			continue
		}
		if _, known := tr.slots[slot]; !known {
			continue
		}
		if tr.slots[slot] != value {
			tr.slots[slot] = value
			updated = append(updated, slot)
		}
	}
	return updated
}

// RequiredSlots returns the active scene's required slot names.
func (tr *Tracker) RequiredSlots() []string {
	if scene, ok := tr.templates.Scenes[tr.intent]; ok {
		return scene.RequiredSlots
	}
	return nil
}

// OptionalSlots returns the active scene's optional slot names.
func (tr *Tracker) OptionalSlots() []string {
	if scene, ok := tr.templates.Scenes[tr.intent]; ok {
		return scene.OptionalSlots
	}
	return nil
}

func (tr *Tracker) missingSlots() []string {
	var missing []string
	for _, slot := range tr.RequiredSlots() {
		if tr.slots[slot] == "" {
			missing = append(missing, slot)
		}
	}
	return missing
}

// Snapshot returns an immutable deep copy of the tracker state.
func (tr *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Intent:           tr.intent,
		State:            tr.state,
		Slots:            cloneSlots(tr.slots),
		PreviousSlots:    cloneSlots(tr.previousSlots),
		MissingSlots:     append([]string(nil), tr.missingSlots()...),
		UpdatedSlots:     append([]string(nil), tr.updatedSlots...),
		RequiredSlots:    append([]string(nil), tr.RequiredSlots()...),
		OptionalSlots:    append([]string(nil), tr.OptionalSlots()...),
		CorrectionTarget: tr.correctionTarget,
	}
}

// Intent returns the active global intent.
func (tr *Tracker) Intent() Intent { return tr.intent }

// State returns the current dialogue state.
func (tr *Tracker) State() State { return tr.state }

// SetState forces a dialogue state, used by the orchestrator for the
// post-response transitions the state machine prescribes.
func (tr *Tracker) SetState(s State) { tr.state = s }

// SetCorrectionTarget pins the slot a correction re-asks.
func (tr *Tracker) SetCorrectionTarget(slot string) { tr.correctionTarget = slot }

// SetSlot writes one slot directly, used when a backend lookup fills
// values the caller did not provide.
func (tr *Tracker) SetSlot(slot, value string) {
	if _, ok := tr.slots[slot]; ok && value != "" {
		tr.slots[slot] = value
	}
}

// CanTransitionTo reports whether the given intent is admissible from
// the current state. Pure query, no mutation.
func (tr *Tracker) CanTransitionTo(intent Intent) bool {
	if tr.state.Terminal() {
		return false
	}
	if intent.IsLocal() {
		return tr.state == StateWaitingConfirmation
	}
	return intent.IsGlobal()
}

// SlotsFilled reports whether every required slot of the active scene
// has a value.
func (tr *Tracker) SlotsFilled() bool {
	return len(tr.RequiredSlots()) > 0 && len(tr.missingSlots()) == 0
}
