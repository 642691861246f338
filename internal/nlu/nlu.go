// Package nlu extracts reservation slots and end-of-clause cues from
// streaming Japanese transcripts. A transcript passes through three
// stages: expression normalization (dates, times, person counts), regex
// and morphology based entity extraction with per-slot validation, and
// terminal verb form detection used by the turn-taking logic.
//
// The analyzer is stateless across calls: every Process starts from a
// clean slate so interim and final transcripts can be analysed with the
// same code path. Slot persistence across turns belongs to the dialogue
// state tracker.
package nlu

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Canonical slot names, shared with the dialogue templates.
const (
	SlotDate        = "日付"
	SlotTime        = "時間"
	SlotPersonCount = "人数"
	SlotName        = "名前"
)

// DefaultSlotKeys is the slot set of the reservation scene.
var DefaultSlotKeys = []string{SlotDate, SlotTime, SlotPersonCount, SlotName}

// A committed terminal form needs exactly one trailing token; after two
// or more the clause is considered abandoned and the cue is dropped.
const maxTokensPostTerminal = 2

var (
	dateValueRe   = regexp.MustCompile(`\d{1,2}/\d{1,2}`)
	timeValueRe   = regexp.MustCompile(`\d{1,2}:\d{2}`)
	personCountRe = regexp.MustCompile(`(\d{1,2})人`)
)

// Result is the outcome of analysing one transcript.
type Result struct {
	// Slots maps slot names to validated normalized values. Values that
	// failed validation are empty.
	Slots map[string]string

	// Normalized is the transcript after expression rewriting.
	Normalized string

	// GotEntity reports that at least one slot value was extracted.
	GotEntity bool

	// SlotsFilled reports that every configured slot has a value.
	SlotsFilled bool

	// GotTerminalForm reports a committed clause-final verb form,
	// a strong end-of-turn cue.
	GotTerminalForm bool

	// HearingItem names the slot the caller referred to by name, used to
	// target corrections ("時間を変えたい" mentions 時間).
	HearingItem string
}

// Analyzer runs the NLU pipeline. Safe for concurrent use; the tokenizer
// and all patterns are read-only after construction.
type Analyzer struct {
	tok      *tokenizer.Tokenizer
	norm     Normalizer
	slotKeys []string
}

// NewAnalyzer builds an Analyzer with the embedded IPA dictionary.
// slotKeys defaults to DefaultSlotKeys when empty.
func NewAnalyzer(norm Normalizer, slotKeys []string) (*Analyzer, error) {
	tok, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("nlu: init tokenizer: %w", err)
	}
	if len(slotKeys) == 0 {
		slotKeys = DefaultSlotKeys
	}
	return &Analyzer{tok: tok, norm: norm, slotKeys: slotKeys}, nil
}

// Process analyses one transcript. Calling it twice with the same input
// yields identical results.
func (a *Analyzer) Process(text string) Result {
	res := Result{Slots: make(map[string]string, len(a.slotKeys))}
	for _, k := range a.slotKeys {
		res.Slots[k] = ""
	}
	if text == "" {
		return res
	}

	res.Normalized = a.norm.Normalize(text)
	res.HearingItem = a.detectHearingItem(res.Normalized)

	tokens := a.tok.Tokenize(res.Normalized)
	a.extractEntities(res.Normalized, tokens, res.Slots)
	res.GotTerminalForm = extractTerminalForm(tokens)

	filled := 0
	for _, k := range a.slotKeys {
		if res.Slots[k] != "" {
			filled++
		}
	}
	res.GotEntity = filled > 0
	res.SlotsFilled = filled == len(a.slotKeys)
	return res
}

// detectHearingItem returns the first slot whose name appears verbatim in
// the transcript.
func (a *Analyzer) detectHearingItem(text string) string {
	for _, slot := range a.slotKeys {
		if strings.Contains(text, slot) {
			return slot
		}
	}
	return ""
}

// extractEntities fills the slot map from the normalized text. The last
// occurrence of each entity kind wins, matching how callers correct
// themselves mid-utterance ("19時、いや20時で").
func (a *Analyzer) extractEntities(text string, tokens []tokenizer.Token, slots map[string]string) {
	if _, ok := slots[SlotDate]; ok {
		if ms := dateValueRe.FindAllString(text, -1); len(ms) > 0 {
			slots[SlotDate] = validated(ms[len(ms)-1], ValidDate)
		}
	}
	if _, ok := slots[SlotTime]; ok {
		if ms := timeValueRe.FindAllString(text, -1); len(ms) > 0 {
			slots[SlotTime] = validated(ms[len(ms)-1], ValidTime)
		}
	}
	if _, ok := slots[SlotPersonCount]; ok {
		if ms := personCountRe.FindAllStringSubmatch(text, -1); len(ms) > 0 {
			slots[SlotPersonCount] = validated(ms[len(ms)-1][1], ValidPersonCount)
		}
	}
	if _, ok := slots[SlotName]; ok {
		if name := extractPersonName(tokens); name != "" {
			slots[SlotName] = name
		}
	}
}

func validated(value string, valid func(string) bool) string {
	if !valid(value) {
		return ""
	}
	return value
}

// extractPersonName joins consecutive person-name tokens (IPA feature
// 名詞/固有名詞/人名) and returns the last name mentioned.
func extractPersonName(tokens []tokenizer.Token) string {
	var names []string
	var current strings.Builder
	for _, t := range tokens {
		pos := t.POS()
		if len(pos) >= 3 && pos[0] == "名詞" && pos[1] == "固有名詞" && pos[2] == "人名" {
			current.WriteString(t.Surface)
			continue
		}
		if current.Len() > 0 {
			names = append(names, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		names = append(names, current.String())
	}
	if len(names) == 0 {
		return ""
	}
	return names[len(names)-1]
}

// extractTerminalForm scans for clause-final verb or auxiliary forms
// (基本形). A connective particle right after a candidate cancels it
// ("予約したいんですが" keeps the floor); a candidate commits once exactly
// one unrelated token follows, and expires after two.
func extractTerminalForm(tokens []tokenizer.Token) bool {
	pending := false
	postTerminal := 0
	for _, t := range tokens {
		if pending {
			postTerminal++
		}
		if isConnectiveParticle(t) && postTerminal == 1 {
			pending = false
			postTerminal = 0
			continue
		}
		if isTerminalForm(t) {
			pending = true
			postTerminal = 0
		}
		if postTerminal >= maxTokensPostTerminal {
			pending = false
			postTerminal = 0
		}
	}
	return pending && postTerminal == maxTokensPostTerminal-1
}

func isTerminalForm(t tokenizer.Token) bool {
	form, ok := t.InflectionalForm()
	if !ok || form != "基本形" {
		return false
	}
	pos := t.POS()
	if len(pos) == 0 {
		return false
	}
	switch pos[0] {
	case "動詞", "助動詞", "形容詞":
		return true
	}
	return false
}

func isConnectiveParticle(t tokenizer.Token) bool {
	pos := t.POS()
	return len(pos) >= 2 && pos[0] == "助詞" && pos[1] == "接続助詞"
}
