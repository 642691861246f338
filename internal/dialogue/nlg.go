package dialogue

import (
	"fmt"

	"github.com/kaiwa-ai/uketsuke/internal/nlu"
)

// Generator turns tracker snapshots and backend results into outbound
// utterances using the template table. All methods are read-only and
// safe for concurrent use.
type Generator struct {
	t *Templates
}

// NewGenerator builds a Generator; templates defaults to
// DefaultTemplates when nil.
func NewGenerator(templates *Templates) *Generator {
	if templates == nil {
		templates = DefaultTemplates()
	}
	return &Generator{t: templates}
}

// Templates exposes the underlying table for label resolution.
func (g *Generator) Templates() *Templates { return g.t }

// Initial is the greeting played as soon as the call connects.
func (g *Generator) Initial() Utterance {
	return Utterance{Label: g.t.InitialUtterance.Label, Text: g.t.InitialUtterance.Text}
}

// Filler bridges backend latency while the caller waits.
func (g *Generator) Filler() Utterance {
	return Utterance{Label: g.t.Filler.Label, Text: g.t.Filler.Text}
}

// Apologize is spoken when a backend failed and no answer exists.
func (g *Generator) Apologize() Utterance {
	return Utterance{Label: g.t.Apologize.Label, Text: g.t.Apologize.Text}
}

// Fallback picks the re-prompt for a fallback kind, defaulting to the
// generic one.
func (g *Generator) Fallback(kind FallbackKind) Utterance {
	if text, ok := g.t.Fallbacks[kind]; ok {
		return Utterance{Text: text}
	}
	return Utterance{Text: g.t.Fallbacks[FallbackDefault]}
}

// SceneInitial announces that a scene opened.
func (g *Generator) SceneInitial(intent Intent) (Utterance, bool) {
	scene, ok := g.t.Scenes[intent]
	if !ok {
		return Utterance{}, false
	}
	return Utterance{Label: scene.Initial.Label, Text: scene.Initial.Text}, true
}

// SceneComplete closes out a scene.
func (g *Generator) SceneComplete(intent Intent) (Utterance, bool) {
	scene, ok := g.t.Scenes[intent]
	if !ok || scene.Complete == "" {
		return Utterance{}, false
	}
	return Utterance{Text: scene.Complete}, true
}

// NextQuestion asks for one missing slot.
func (g *Generator) NextQuestion(intent Intent, slot string) (Utterance, bool) {
	scene, ok := g.t.Scenes[intent]
	if !ok {
		return Utterance{}, false
	}
	p, ok := scene.Prompts[slot]
	if !ok {
		return Utterance{}, false
	}
	return Utterance{Label: p.Label, Text: p.Text}, true
}

// CorrectionPrompt re-asks a slot the caller flagged as wrong.
func (g *Generator) CorrectionPrompt(intent Intent, slot string) (Utterance, bool) {
	scene, ok := g.t.Scenes[intent]
	if !ok {
		return Utterance{}, false
	}
	p, ok := scene.Corrections[slot]
	if !ok {
		return Utterance{}, false
	}
	return Utterance{Label: p.Label, Text: p.Text}, true
}

// ImplicitConfirmation echoes the freshly updated slots back to the
// caller. It returns false when no template covers the combination.
func (g *Generator) ImplicitConfirmation(intent Intent, updated []string, slots map[string]string) (Utterance, bool) {
	scene, ok := g.t.Scenes[intent]
	if !ok || len(updated) == 0 {
		return Utterance{}, false
	}
	tpl, ok := scene.ImplicitConfirmations[SlotSetKey(updated)]
	if !ok && len(updated) == 1 {
		tpl, ok = scene.ImplicitConfirmations[updated[0]]
	}
	if !ok {
		return Utterance{}, false
	}
	text, err := interpolate(tpl, nlu.SpeakableSlots(slots))
	if err != nil {
		return Utterance{}, false
	}
	return Utterance{Text: text}, true
}

// ConfirmationPrompt is the explicit final yes/no question, filled with
// the current slot values.
func (g *Generator) ConfirmationPrompt(intent Intent, slots map[string]string) (Utterance, error) {
	scene, ok := g.t.Scenes[intent]
	if !ok || scene.Final.Prompt == "" {
		return Utterance{}, fmt.Errorf("dialogue: no final confirmation for intent %s", intent)
	}
	text, err := interpolate(scene.Final.Prompt, nlu.SpeakableSlots(slots))
	if err != nil {
		return Utterance{}, err
	}
	return Utterance{Label: scene.Final.Label, Text: text}, nil
}

// FinalConfirmationResponse answers the local intent that resolved a
// pending confirmation.
func (g *Generator) FinalConfirmationResponse(intent, local Intent) (Utterance, bool) {
	scene, ok := g.t.Scenes[intent]
	if !ok {
		return Utterance{}, false
	}
	text, ok := scene.Final.Responses[local]
	if !ok {
		return Utterance{}, false
	}
	u := Utterance{Text: text}
	if intent == IntentNewReservation && local == IntentCancel {
		u.Label = LabelNewReservationCancel
	}
	return u, true
}

// IntentResponse renders a backend result template for the scene.
func (g *Generator) IntentResponse(intent Intent, responseType string, slots map[string]string) (Utterance, error) {
	scene, ok := g.t.Scenes[intent]
	if !ok {
		return Utterance{}, fmt.Errorf("dialogue: no scene for intent %s", intent)
	}
	tpl, ok := scene.Responses[responseType]
	if !ok {
		return Utterance{}, fmt.Errorf("dialogue: intent %s has no %s response", intent, responseType)
	}
	text, err := interpolate(tpl, nlu.SpeakableSlots(slots))
	if err != nil {
		return Utterance{}, err
	}
	return Utterance{Text: text}, nil
}
