package dialogue

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Well-known utterance labels. Labeled utterances can be served from the
// pre-synthesized audio cache; parameterized responses are always sent as
// plain text.
const (
	LabelInitial   = "INITIAL"
	LabelFiller    = "FILLER"
	LabelApologize = "APOLOGIZE"

	LabelDatePrompt        = "DATE_1"
	LabelTimePrompt        = "TIME_1"
	LabelPersonCountPrompt = "N_PERSON_1"
	LabelNamePrompt        = "NAME_1"

	LabelDateCorrection        = "DATE_2"
	LabelTimeCorrection        = "TIME_2"
	LabelPersonCountCorrection = "N_PERSON_2"
	LabelNameCorrection        = "NAME_2"

	LabelFinalConfirm          = "FINAL_CONFIRM_1"
	LabelNewReservationIntro   = "NEW_RESERVATION_INTRO"
	LabelNewReservationCancel  = "NEW_RESERVATION_CANCEL"
	LabelConfirmReservationIn  = "CONFIRM_RESERVATION_INTRO"
	LabelCancelReservationIn   = "CANCEL_RESERVATION_INTRO"
	LabelChangeReservationIn   = "CHANGE_RESERVATION_INTRO"
	LabelAskAboutStoreIntro    = "ASK_ABOUT_STORE_INTRO"
	LabelAskAboutStoreComplete = "ASK_ABOUT_STORE_COMPLETE"
)

// Backend result keys used to pick a scene response template.
const (
	ResponseComplete    = "COMPLETE"
	ResponseHoliday     = "HOLIDAY"
	ResponseFull        = "FULL"
	ResponseInvalidTime = "INVALID_TIME"
	ResponseFind        = "FIND"
	ResponseNotFound    = "NOT_FOUND"
)

// Prompt is a fixed utterance with its cacheable label.
type Prompt struct {
	Text  string
	Label string
}

// FinalConfirmation describes the explicit yes/no stage of a scene.
type FinalConfirmation struct {
	// Prompt is a template interpolated with the full slot map.
	Prompt string
	Label  string

	// Responses maps the resolving local intent to a reply.
	Responses map[Intent]string
}

// Scene holds every template of one global intent.
type Scene struct {
	Intent        Intent
	Initial       Prompt
	Complete      string
	RequiredSlots []string
	OptionalSlots []string

	// Prompts and Corrections are keyed by slot name.
	Prompts     map[string]Prompt
	Corrections map[string]Prompt

	// ImplicitConfirmations is keyed by the canonical slot-set key, see
	// SlotSetKey. Single-slot entries use the bare slot name.
	ImplicitConfirmations map[string]string

	// Responses maps backend result codes to templates.
	Responses map[string]string

	Final FinalConfirmation
}

// Templates is the process-global, read-only template table.
type Templates struct {
	InitialUtterance Prompt
	Filler           Prompt
	Apologize        Prompt
	Fallbacks        map[FallbackKind]string
	Scenes           map[Intent]*Scene

	// LabelText resolves a label to its spoken text. Labels without an
	// entry are treated as literal text.
	LabelText map[string]string
}

// SlotSetKey builds the canonical lookup key for a combination of
// updated slots: sorted names joined with "+".
func SlotSetKey(slots []string) string {
	sorted := make([]string, len(slots))
	copy(sorted, slots)
	sort.Strings(sorted)
	return strings.Join(sorted, "+")
}

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// interpolate fills {slot} placeholders from values. It fails when any
// placeholder has no non-empty value, mirroring a strict format.
func interpolate(tpl string, values map[string]string) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(tpl, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := values[key]
		if !ok || v == "" {
			missing = append(missing, key)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("dialogue: template missing slots %v", missing)
	}
	return out, nil
}

// DefaultTemplates returns the built-in Japanese reservation templates.
func DefaultTemplates() *Templates {
	t := &Templates{
		InitialUtterance: Prompt{Text: "お電話ありがとうございます。ご予約のお電話でしょうか。", Label: LabelInitial},
		Filler:           Prompt{Text: "確認いたします", Label: LabelFiller},
		Apologize:        Prompt{Text: "申し訳ございません、うまく聞き取れませんでした", Label: LabelApologize},
		Fallbacks: map[FallbackKind]string{
			FallbackDefault:           "すみません、よく聞き取れなかったのでもう一度お願いします。",
			FallbackNoIntent:          "すみません、よく聞き取れなかったのでもう一度お願いします。",
			FallbackInvalidIntent:     "申し訳ございません、ご用件をもう一度お伺いしてもよろしいでしょうか。",
			FallbackConversationError: "申し訳ございません、最初からお伺いしてもよろしいでしょうか。",
		},
		Scenes: map[Intent]*Scene{},
	}

	t.Scenes[IntentNewReservation] = &Scene{
		Intent:        IntentNewReservation,
		Initial:       Prompt{Text: "ご予約ですね。", Label: LabelNewReservationIntro},
		Complete:      "渋谷店にて{日付}に{時間}に{人数}名で{名前}さまのご予約を承りました。",
		RequiredSlots: []string{SlotDate, SlotTime, SlotPersonCount, SlotName},
		Prompts: map[string]Prompt{
			SlotDate:        {Text: "ご希望の日付をお伺いしてもよろしいでしょうか？", Label: LabelDatePrompt},
			SlotTime:        {Text: "ご希望の時間をお伺いしてもよろしいでしょうか？", Label: LabelTimePrompt},
			SlotPersonCount: {Text: "ご来店人数をお伺いしてもよろしいでしょうか？", Label: LabelPersonCountPrompt},
			SlotName:        {Text: "ご来店される代表者のお名前をお伺いしてもよろしいでしょうか？", Label: LabelNamePrompt},
		},
		Corrections: map[string]Prompt{
			SlotDate:        {Text: "ご希望の日付を改めてお伺いいたします。", Label: LabelDateCorrection},
			SlotTime:        {Text: "ご希望の時間を改めてお伺いいたします。", Label: LabelTimeCorrection},
			SlotPersonCount: {Text: "ご来店人数を改めてお伺いいたします。", Label: LabelPersonCountCorrection},
			SlotName:        {Text: "代表者のお名前を改めてお伺いいたします。", Label: LabelNameCorrection},
		},
		ImplicitConfirmations: map[string]string{
			SlotSetKey([]string{SlotDate, SlotTime, SlotPersonCount, SlotName}): "{日付}の{時間}に{人数}名様ですね。",
			SlotSetKey([]string{SlotDate, SlotTime, SlotPersonCount}):           "{日付}の{時間}に{人数}名ですね。",
			SlotSetKey([]string{SlotDate, SlotTime}):                            "{日付}の{時間}ですね。",
			SlotSetKey([]string{SlotDate, SlotPersonCount}):                     "{日付}に{人数}名ですね。",
			SlotSetKey([]string{SlotTime, SlotPersonCount}):                     "{時間}に{人数}名ですね。",
			SlotName:                                                            "{名前}様ですね。",
			SlotDate:                                                            "{日付}ですね。",
			SlotTime:                                                            "{時間}ですね。",
			SlotPersonCount:                                                     "{人数}名ですね。",
		},
		Responses: map[string]string{
			ResponseComplete:    "渋谷店にて{日付}に{時間}に{人数}名で{名前}さまのご予約を承りました。",
			ResponseHoliday:     "申し訳ございません、水曜日は定休日のため、ご予約を承ることができません。",
			ResponseFull:        "申し訳ございません、{日付}は満席のため、ご予約を承ることができません。",
			ResponseInvalidTime: "申し訳ございません、ご指定のお時間は営業時間外となっております。",
		},
		Final: FinalConfirmation{
			Prompt: "{日付}の{時間}に{人数}名様、{名前}様のご予約でよろしいでしょうか？",
			Label:  LabelFinalConfirm,
			Responses: map[Intent]string{
				IntentChange: "申し訳ございません。日付、時間、人数どの項目が間違っていたでしょうか？",
				IntentCancel: "新規予約をキャンセルしました。",
			},
		},
	}

	t.Scenes[IntentConfirmReservation] = &Scene{
		Intent:        IntentConfirmReservation,
		Initial:       Prompt{Text: "ご予約の詳細をご確認させていただきます。", Label: LabelConfirmReservationIn},
		Complete:      "ご予約されている内容は以上です。",
		RequiredSlots: []string{SlotName},
		OptionalSlots: []string{SlotDate, SlotTime, SlotPersonCount},
		Prompts: map[string]Prompt{
			SlotName: {Text: "ご予約された際の代表者のお名前をお伺いしてもよろしいでしょうか？", Label: LabelNamePrompt},
		},
		ImplicitConfirmations: map[string]string{
			SlotName: "{名前}様ですね。",
		},
		Responses: map[string]string{
			ResponseFind:     "{日付}の{時間}に{人数}名でのご予約が確認されました。",
			ResponseNotFound: "{名前}様の予約情報は見つかりませんでした。",
		},
	}

	t.Scenes[IntentCancelReservation] = &Scene{
		Intent:        IntentCancelReservation,
		Initial:       Prompt{Text: "ご予約のキャンセルですね。", Label: LabelCancelReservationIn},
		Complete:      "ご予約のキャンセルが完了しました。またのご利用をお待ちしております。",
		RequiredSlots: []string{SlotName},
		OptionalSlots: []string{SlotDate, SlotTime, SlotPersonCount},
		Prompts: map[string]Prompt{
			SlotName: {Text: "ご予約された際の代表者のお名前をお伺いしてもよろしいでしょうか？", Label: LabelNamePrompt},
		},
		ImplicitConfirmations: map[string]string{
			SlotName: "{名前}様ですね。",
		},
		Responses: map[string]string{
			ResponseComplete: "{日付}に{人数}名様のご予約が確認されました。キャンセルしても良いでしょうか？",
			ResponseNotFound: "ご予約されている内容が見つかりませんでした。",
		},
		Final: FinalConfirmation{
			Prompt: "ご予約をキャンセルしてもよろしいでしょうか？",
			Label:  LabelFinalConfirm,
			Responses: map[Intent]string{
				IntentYes:    "ご予約のキャンセルが完了しました。またのご利用をお待ちしております。",
				IntentNo:     "キャンセル作業を中断しました。",
				IntentCancel: "キャンセル作業を中断しました。",
			},
		},
	}

	t.Scenes[IntentChangeReservation] = &Scene{
		Intent:   IntentChangeReservation,
		Initial:  Prompt{Text: "ご予約の変更ですね。", Label: LabelChangeReservationIn},
		Complete: "ご予約の変更は、お手数ですが一度キャンセルの上、新規のご予約として承っております。",
	}

	t.Scenes[IntentAskAboutStore] = &Scene{
		Intent:   IntentAskAboutStore,
		Initial:  Prompt{Text: "店舗についてのご質問ですね。", Label: LabelAskAboutStoreIntro},
		Complete: "ご質問ありがとうございました。",
		Responses: map[string]string{
			ResponseNotFound: "申し訳ございません、お答えできる情報が見つかりませんでした。",
		},
	}

	t.LabelText = buildLabelIndex(t)
	return t
}

// buildLabelIndex collects every labeled utterance into the label→text
// map used by the TTS bridge and the conversation log.
func buildLabelIndex(t *Templates) map[string]string {
	idx := map[string]string{
		t.InitialUtterance.Label: t.InitialUtterance.Text,
		t.Filler.Label:           t.Filler.Text,
		t.Apologize.Label:        t.Apologize.Text,
	}
	for _, scene := range t.Scenes {
		if scene.Initial.Label != "" {
			idx[scene.Initial.Label] = scene.Initial.Text
		}
		for _, p := range scene.Prompts {
			idx[p.Label] = p.Text
		}
		for _, p := range scene.Corrections {
			idx[p.Label] = p.Text
		}
	}
	return idx
}

// Text resolves a label through the index, falling back to the label
// itself as literal text.
func (t *Templates) Text(labelOrText string) string {
	if text, ok := t.LabelText[labelOrText]; ok {
		return text
	}
	return labelOrText
}
