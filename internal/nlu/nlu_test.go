package nlu_test

import (
	"testing"

	"github.com/kaiwa-ai/uketsuke/internal/nlu"
)

func newAnalyzer(t *testing.T) *nlu.Analyzer {
	t.Helper()
	a, err := nlu.NewAnalyzer(newNormalizer(), nil)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	return a
}

func TestProcess_FullUtterance(t *testing.T) {
	a := newAnalyzer(t)
	res := a.Process("来週の土曜日、19時から3名で、山田です")

	want := map[string]string{
		nlu.SlotDate:        "11/02",
		nlu.SlotTime:        "19:00",
		nlu.SlotPersonCount: "3",
		nlu.SlotName:        "山田",
	}
	for slot, v := range want {
		if res.Slots[slot] != v {
			t.Errorf("slot %s = %q, want %q", slot, res.Slots[slot], v)
		}
	}
	if !res.GotEntity {
		t.Error("GotEntity = false")
	}
	if !res.SlotsFilled {
		t.Error("SlotsFilled = false")
	}
}

func TestProcess_PartialSlots(t *testing.T) {
	a := newAnalyzer(t)
	res := a.Process("明日の18時でお願いします")
	if res.Slots[nlu.SlotDate] != "10/24" {
		t.Errorf("date = %q, want 10/24", res.Slots[nlu.SlotDate])
	}
	if res.Slots[nlu.SlotTime] != "18:00" {
		t.Errorf("time = %q, want 18:00", res.Slots[nlu.SlotTime])
	}
	if res.SlotsFilled {
		t.Error("SlotsFilled = true with two empty slots")
	}
	if !res.GotEntity {
		t.Error("GotEntity = false")
	}
}

func TestProcess_Idempotent(t *testing.T) {
	a := newAnalyzer(t)
	first := a.Process("明日の18時に2名、佐藤です。")
	second := a.Process("明日の18時に2名、佐藤です。")
	for slot, v := range first.Slots {
		if second.Slots[slot] != v {
			t.Errorf("slot %s differs between runs: %q vs %q", slot, v, second.Slots[slot])
		}
	}
	if first.GotTerminalForm != second.GotTerminalForm ||
		first.SlotsFilled != second.SlotsFilled ||
		first.GotEntity != second.GotEntity {
		t.Error("status flags differ between identical runs")
	}
}

func TestProcess_TerminalForm(t *testing.T) {
	a := newAnalyzer(t)
	cases := []struct {
		in   string
		want bool
	}{
		{"予約します。", true},
		{"お願いします。", true},
		{"予約したいんですが", false}, // connective keeps the floor
		{"明日の", false},
	}
	for _, c := range cases {
		res := a.Process(c.in)
		if res.GotTerminalForm != c.want {
			t.Errorf("GotTerminalForm(%q) = %v, want %v", c.in, res.GotTerminalForm, c.want)
		}
	}
}

func TestProcess_HearingItem(t *testing.T) {
	a := newAnalyzer(t)
	cases := []struct {
		in   string
		want string
	}{
		{"時間を変更したいです", "時間"},
		{"日付を変えてください", "日付"},
		{"人数を4人にしてください", "人数"},
		{"名前は佐藤です", "名前"},
		{"よろしくお願いします", ""},
	}
	for _, c := range cases {
		res := a.Process(c.in)
		if res.HearingItem != c.want {
			t.Errorf("HearingItem(%q) = %q, want %q", c.in, res.HearingItem, c.want)
		}
	}
}

func TestProcess_InvalidValuesRejected(t *testing.T) {
	a := newAnalyzer(t)
	// 25時 is out of range; the time slot must stay empty.
	res := a.Process("25時でお願いします")
	if res.Slots[nlu.SlotTime] != "" {
		t.Errorf("time = %q, want empty for out-of-range hour", res.Slots[nlu.SlotTime])
	}
}

func TestProcess_LastValueWins(t *testing.T) {
	a := newAnalyzer(t)
	res := a.Process("18時、やっぱり19時でお願いします")
	if res.Slots[nlu.SlotTime] != "19:00" {
		t.Errorf("time = %q, want 19:00", res.Slots[nlu.SlotTime])
	}
}

func TestProcess_EmptyInput(t *testing.T) {
	a := newAnalyzer(t)
	res := a.Process("")
	if res.GotEntity || res.SlotsFilled || res.GotTerminalForm {
		t.Error("empty input produced entity or terminal flags")
	}
	for slot, v := range res.Slots {
		if v != "" {
			t.Errorf("slot %s = %q, want empty", slot, v)
		}
	}
}
