package dialogue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Pattern is one conversation flow: the opening message plus the intent
// candidate sets offered to the matcher and the classifier in each
// dialogue state.
type Pattern struct {
	// InitialMessage is a label or literal text spoken on connect.
	InitialMessage string

	// GlobalIntents lists the global intents selectable outside a
	// confirmation, with example phrases per intent.
	GlobalIntents map[Intent][]string

	// LocalIntents lists the local intents selectable while a scene
	// waits for confirmation, keyed by the scene's global intent.
	LocalIntents map[Intent]map[Intent][]string
}

type patternFile struct {
	InitialMessage string                       `json:"initial_message"`
	SceneIntents   map[string]json.RawMessage   `json:"scene_intents"`
}

// LoadPatterns reads every *.json pattern file in dir, sorted by file
// name so pattern indices are stable.
func LoadPatterns(dir string) ([]Pattern, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("dialogue: read pattern dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	patterns := make([]Pattern, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("dialogue: read pattern %s: %w", name, err)
		}
		p, err := parsePattern(raw)
		if err != nil {
			return nil, fmt.Errorf("dialogue: parse pattern %s: %w", name, err)
		}
		patterns = append(patterns, p)
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("dialogue: no pattern files in %s", dir)
	}
	return patterns, nil
}

func parsePattern(raw []byte) (Pattern, error) {
	var pf patternFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return Pattern{}, err
	}
	p := Pattern{
		InitialMessage: pf.InitialMessage,
		GlobalIntents:  map[Intent][]string{},
		LocalIntents:   map[Intent]map[Intent][]string{},
	}
	for state, body := range pf.SceneIntents {
		if State(state) == StateWaitingConfirmation {
			var local map[Intent]map[Intent][]string
			if err := json.Unmarshal(body, &local); err != nil {
				return Pattern{}, fmt.Errorf("state %s: %w", state, err)
			}
			for scene, intents := range local {
				p.LocalIntents[scene] = intents
			}
			continue
		}
		var global map[Intent][]string
		if err := json.Unmarshal(body, &global); err != nil {
			return Pattern{}, fmt.Errorf("state %s: %w", state, err)
		}
		for intent, phrases := range global {
			p.GlobalIntents[intent] = append(p.GlobalIntents[intent], phrases...)
		}
	}
	return p, nil
}

// DefaultPattern is the built-in restaurant reservation flow.
func DefaultPattern() Pattern {
	return Pattern{
		InitialMessage: LabelInitial,
		GlobalIntents: map[Intent][]string{
			IntentNewReservation: {
				"予約したい", "予約をお願いします", "予約お願いします", "新規予約",
				"席を予約したい", "予約できますか",
			},
			IntentConfirmReservation: {
				"予約の確認", "予約内容の確認", "予約を確認したい", "予約できていますか",
			},
			IntentCancelReservation: {
				"キャンセルしたい", "予約のキャンセル", "予約を取り消したい",
				"キャンセルをお願いします",
			},
			IntentChangeReservation: {
				"予約の変更", "予約を変更したい", "日程を変更したい", "時間を変更したい予約",
			},
			IntentAskAboutStore: {
				"営業時間", "定休日", "お店の場所", "アクセス", "駐車場",
				"質問があります",
			},
		},
		LocalIntents: map[Intent]map[Intent][]string{
			IntentNewReservation: {
				IntentConfirm: {"はい", "大丈夫です", "お願いします", "それでお願いします", "間違いないです"},
				IntentChange:  {"違います", "変更したい", "間違っています", "直してください"},
				IntentCancel:  {"キャンセル", "やめます", "やっぱりやめます"},
			},
			IntentCancelReservation: {
				IntentYes: {"はい", "お願いします", "キャンセルしてください"},
				IntentNo:  {"いいえ", "やめておきます", "やっぱりやめます"},
			},
			IntentConfirmReservation: {
				IntentYes:    {"はい", "合っています"},
				IntentNo:     {"いいえ", "違います"},
				IntentCancel: {"キャンセルしたい", "予約をキャンセル"},
			},
		},
	}
}

// Candidates returns the intent candidate set the matcher should use
// given the current dialogue state and scene.
func (p Pattern) Candidates(state State, scene Intent) map[Intent][]string {
	if state == StateWaitingConfirmation {
		if local, ok := p.LocalIntents[scene]; ok {
			return local
		}
		return nil
	}
	return p.GlobalIntents
}
