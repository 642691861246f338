package dialogue_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kaiwa-ai/uketsuke/internal/dialogue"
)

var fixedNow = func() time.Time {
	return time.Date(2024, 10, 23, 10, 0, 0, 0, time.UTC)
}

func newManager(opts ...dialogue.Option) *dialogue.Manager {
	opts = append([]dialogue.Option{dialogue.WithClock(fixedNow)}, opts...)
	return dialogue.NewManager(nil, opts...)
}

func joinTexts(us []dialogue.Utterance) string {
	var b strings.Builder
	for _, u := range us {
		b.WriteString(u.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func hasLabel(us []dialogue.Utterance, label string) bool {
	for _, u := range us {
		if u.Label == label {
			return true
		}
	}
	return false
}

func fullSlots() map[string]string {
	return map[string]string{
		dialogue.SlotDate:        "11/02",
		dialogue.SlotTime:        "19:00",
		dialogue.SlotPersonCount: "3",
		dialogue.SlotName:        "山田",
	}
}

func TestManager_InitialMessage(t *testing.T) {
	m := newManager()
	u := m.InitialMessage()
	if u.Label != dialogue.LabelInitial {
		t.Errorf("label = %q", u.Label)
	}
	if !strings.Contains(u.Text, "お電話ありがとうございます") {
		t.Errorf("text = %q", u.Text)
	}
}

// Happy path: open the scene, fill every slot at once, confirm.
func TestManager_HappyPath(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	// Turn 1: intent only.
	res := m.ProcessTurn(ctx, dialogue.TurnInput{Text: "予約したいです"})
	if !hasLabel(res, dialogue.LabelNewReservationIntro) {
		t.Fatalf("turn 1 missing scene intro: %v", res)
	}
	if !hasLabel(res, dialogue.LabelDatePrompt) {
		t.Fatalf("turn 1 missing date prompt: %v", res)
	}

	// Turn 2: every slot in one utterance.
	res = m.ProcessTurn(ctx, dialogue.TurnInput{
		Text:  "来週の土曜日、19時から3名で、山田です",
		Slots: fullSlots(),
	})
	text := joinTexts(res)
	if !strings.Contains(text, "11月2日") || !strings.Contains(text, "19時") {
		t.Fatalf("turn 2 confirmation lacks slot echo: %q", text)
	}
	if !hasLabel(res, dialogue.LabelFinalConfirm) {
		t.Fatalf("turn 2 missing final confirmation: %v", res)
	}
	if m.Snapshot().State != dialogue.StateWaitingConfirmation {
		t.Fatalf("state = %s", m.Snapshot().State)
	}

	// Turn 3: confirm.
	res = m.ProcessTurn(ctx, dialogue.TurnInput{Text: "はい、お願いします"})
	text = joinTexts(res)
	if !strings.Contains(text, "ご予約を承りました") {
		t.Fatalf("turn 3 = %q", text)
	}
	if !m.Complete() {
		t.Error("conversation not complete after confirmation")
	}
}

// Slots arrive one by one; each turn echoes the value and asks for the
// next missing slot.
func TestManager_IncrementalSlotFilling(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	m.ProcessTurn(ctx, dialogue.TurnInput{Text: "予約をお願いします"})
	res := m.ProcessTurn(ctx, dialogue.TurnInput{
		Text:  "明日で",
		Slots: map[string]string{dialogue.SlotDate: "10/24"},
	})
	text := joinTexts(res)
	if !strings.Contains(text, "10月24日ですね") {
		t.Fatalf("no implicit confirmation: %q", text)
	}
	if !hasLabel(res, dialogue.LabelTimePrompt) {
		t.Fatalf("missing next question: %v", res)
	}
	if m.Snapshot().State != dialogue.StateContinue {
		t.Errorf("state = %s", m.Snapshot().State)
	}
}

// The caller flags the time as wrong during confirmation, then fixes it.
func TestManager_CorrectionFlow(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	m.ProcessTurn(ctx, dialogue.TurnInput{Text: "予約したいです"})
	m.ProcessTurn(ctx, dialogue.TurnInput{Text: "全部", Slots: fullSlots()})

	res := m.ProcessTurn(ctx, dialogue.TurnInput{
		Text:        "時間を変更したいです",
		HearingItem: dialogue.SlotTime,
	})
	if !hasLabel(res, dialogue.LabelTimeCorrection) {
		t.Fatalf("missing correction prompt: %v", res)
	}
	if m.Snapshot().State != dialogue.StateCorrection {
		t.Fatalf("state = %s", m.Snapshot().State)
	}

	res = m.ProcessTurn(ctx, dialogue.TurnInput{
		Text:  "20時でお願いします",
		Slots: map[string]string{dialogue.SlotTime: "20:00"},
	})
	text := joinTexts(res)
	if !strings.Contains(text, "20時") {
		t.Fatalf("corrected value not echoed: %q", text)
	}
	if !hasLabel(res, dialogue.LabelFinalConfirm) {
		t.Fatalf("missing re-confirmation: %v", res)
	}

	res = m.ProcessTurn(ctx, dialogue.TurnInput{Text: "はい"})
	if !strings.Contains(joinTexts(res), "20時") {
		t.Fatalf("completion lacks corrected time: %v", res)
	}
	if !m.Complete() {
		t.Error("not complete after corrected confirmation")
	}
}

// The caller abandons the reservation at the final confirmation.
func TestManager_CancelDuringConfirmation(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	m.ProcessTurn(ctx, dialogue.TurnInput{Text: "予約したいです"})
	m.ProcessTurn(ctx, dialogue.TurnInput{Text: "全部", Slots: fullSlots()})

	res := m.ProcessTurn(ctx, dialogue.TurnInput{Text: "やっぱりやめます"})
	if !strings.Contains(joinTexts(res), "キャンセルしました") {
		t.Fatalf("cancel response = %v", res)
	}
	if !m.Complete() {
		t.Error("not complete after cancel")
	}
}

// Unintelligible input at the start produces the generic re-prompt.
func TestManager_FallbackOnNoIntent(t *testing.T) {
	m := newManager()
	res := m.ProcessTurn(context.Background(), dialogue.TurnInput{Text: "あのえっとその"})
	if !strings.Contains(joinTexts(res), "もう一度お願いします") {
		t.Fatalf("fallback = %v", res)
	}
}

// Repeated unrecognized input during confirmation keeps re-prompting
// without losing the scene.
func TestManager_RepeatedUnrecognized(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	m.ProcessTurn(ctx, dialogue.TurnInput{Text: "予約したいです"})
	m.ProcessTurn(ctx, dialogue.TurnInput{Text: "全部", Slots: fullSlots()})

	for i := 0; i < 2; i++ {
		res := m.ProcessTurn(ctx, dialogue.TurnInput{Text: "えっとあのその"})
		if !strings.Contains(joinTexts(res), "ご用件をもう一度") {
			t.Fatalf("attempt %d: %v", i, res)
		}
		if m.Snapshot().State != dialogue.StateWaitingConfirmation {
			t.Fatalf("attempt %d state = %s", i, m.Snapshot().State)
		}
	}

	// The scene survives: a confirmation still completes it.
	m.ProcessTurn(ctx, dialogue.TurnInput{Text: "はい、お願いします"})
	if !m.Complete() {
		t.Error("scene lost after repeated unrecognized turns")
	}
}

type stubBookings struct {
	createCode string
	createErr  error
	found      map[string]string
	cancelled  bool
}

func (s *stubBookings) Create(_ context.Context, _ map[string]string) (string, error) {
	return s.createCode, s.createErr
}

func (s *stubBookings) Find(_ context.Context, _ string) (map[string]string, bool, error) {
	return s.found, s.found != nil, nil
}

func (s *stubBookings) Cancel(_ context.Context, _ string) (bool, error) {
	s.cancelled = true
	return true, nil
}

// A holiday refusal re-opens the date slot instead of completing.
func TestManager_HolidayReopensDate(t *testing.T) {
	m := newManager(dialogue.WithBookings(&stubBookings{createCode: dialogue.ResponseHoliday}))
	ctx := context.Background()

	m.ProcessTurn(ctx, dialogue.TurnInput{Text: "予約したいです"})
	m.ProcessTurn(ctx, dialogue.TurnInput{Text: "全部", Slots: fullSlots()})
	res := m.ProcessTurn(ctx, dialogue.TurnInput{Text: "はい"})

	text := joinTexts(res)
	if !strings.Contains(text, "定休日") {
		t.Fatalf("no holiday refusal: %q", text)
	}
	if !hasLabel(res, dialogue.LabelDateCorrection) {
		t.Fatalf("date not re-asked: %v", res)
	}
	if m.Complete() {
		t.Error("completed despite refusal")
	}
}

// Cancellation scene: name lookup, explicit yes, backend cancel.
func TestManager_CancelReservationScene(t *testing.T) {
	bookings := &stubBookings{found: map[string]string{
		dialogue.SlotDate:        "10/30",
		dialogue.SlotTime:        "18:00",
		dialogue.SlotPersonCount: "2",
	}}
	m := newManager(dialogue.WithBookings(bookings))
	ctx := context.Background()

	res := m.ProcessTurn(ctx, dialogue.TurnInput{Text: "予約のキャンセルをしたいです"})
	if !hasLabel(res, dialogue.LabelNamePrompt) {
		t.Fatalf("name not asked: %v", res)
	}

	res = m.ProcessTurn(ctx, dialogue.TurnInput{
		Text:  "山田です",
		Slots: map[string]string{dialogue.SlotName: "山田"},
	})
	text := joinTexts(res)
	if !strings.Contains(text, "キャンセルしても良いでしょうか") {
		t.Fatalf("no cancel confirmation: %q", text)
	}

	res = m.ProcessTurn(ctx, dialogue.TurnInput{Text: "はい、お願いします"})
	if !strings.Contains(joinTexts(res), "キャンセルが完了しました") {
		t.Fatalf("cancel not completed: %v", res)
	}
	if !bookings.cancelled {
		t.Error("backend cancel not called")
	}
	if !m.Complete() {
		t.Error("not complete")
	}
}

type stubClassifier struct {
	intent dialogue.Intent
	answer string
	err    error
}

func (s *stubClassifier) ClassifyIntent(_ context.Context, _ string, _ map[dialogue.Intent][]string) (dialogue.Intent, error) {
	return s.intent, s.err
}

func (s *stubClassifier) AnswerQuestion(_ context.Context, _ string) (string, error) {
	return s.answer, s.err
}

// Store questions go to the FAQ backend once the scene is open.
func TestManager_StoreQuestion(t *testing.T) {
	m := newManager(dialogue.WithClassifier(&stubClassifier{answer: "営業時間は11時から23時までです。"}))
	ctx := context.Background()

	res := m.ProcessTurn(ctx, dialogue.TurnInput{Text: "質問があります"})
	if !hasLabel(res, dialogue.LabelAskAboutStoreIntro) {
		t.Fatalf("scene intro missing: %v", res)
	}

	res = m.ProcessTurn(ctx, dialogue.TurnInput{Text: "営業時間を教えてもらえますか"})
	if !strings.Contains(joinTexts(res), "営業時間は11時から") {
		t.Fatalf("faq answer missing: %v", res)
	}
}

// An LLM failure during FAQ answering produces the apology, not an
// error escape.
func TestManager_StoreQuestionLLMFailure(t *testing.T) {
	m := newManager(dialogue.WithClassifier(&stubClassifier{err: errors.New("timeout")}))
	ctx := context.Background()

	m.ProcessTurn(ctx, dialogue.TurnInput{Text: "質問があります"})
	res := m.ProcessTurn(ctx, dialogue.TurnInput{Text: "営業時間を教えてもらえますか"})
	if !hasLabel(res, dialogue.LabelApologize) {
		t.Fatalf("apology missing: %v", res)
	}
}

// Switching intent mid-scene carries the already-filled slots along.
func TestManager_IntentSwitchKeepsSlots(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	m.ProcessTurn(ctx, dialogue.TurnInput{Text: "予約したいです"})
	m.ProcessTurn(ctx, dialogue.TurnInput{
		Text:  "明日の19時で",
		Slots: map[string]string{dialogue.SlotDate: "10/24", dialogue.SlotTime: "19:00"},
	})

	snap := m.Snapshot()
	if snap.Slots[dialogue.SlotDate] != "10/24" || snap.Slots[dialogue.SlotTime] != "19:00" {
		t.Fatalf("slots = %v", snap.Slots)
	}
}

func TestManager_Reset(t *testing.T) {
	m := newManager()
	ctx := context.Background()
	m.ProcessTurn(ctx, dialogue.TurnInput{Text: "予約したいです", Slots: fullSlots()})
	m.Reset()

	snap := m.Snapshot()
	if snap.State != dialogue.StateStart || snap.Intent != dialogue.IntentNone {
		t.Fatalf("after reset: %+v", snap)
	}
	for slot, v := range snap.Slots {
		if v != "" {
			t.Errorf("slot %s = %q after reset", slot, v)
		}
	}
}
