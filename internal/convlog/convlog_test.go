package convlog_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kaiwa-ai/uketsuke/internal/convlog"
)

func TestMemoryRecorder(t *testing.T) {
	r := convlog.NewMemoryRecorder()
	ctx := context.Background()

	turns := []convlog.Entry{
		{ConversationID: "abc", Turn: 1, Role: convlog.RoleBot, Label: "INITIAL", Text: "お電話ありがとうございます。"},
		{ConversationID: "abc", Turn: 2, Role: convlog.RoleCaller, Text: "予約をお願いします"},
		{ConversationID: "xyz", Turn: 1, Role: convlog.RoleCaller, Text: "別の通話"},
	}
	for _, e := range turns {
		if err := r.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := r.Entries(ctx, "abc")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].Label != "INITIAL" || got[1].Text != "予約をお願いします" {
		t.Errorf("entries = %+v", got)
	}

	// The returned slice is a copy.
	got[0].Text = "書き換え"
	again, _ := r.Entries(ctx, "abc")
	if again[0].Text != "お電話ありがとうございます。" {
		t.Error("Entries exposed internal slice")
	}
}

func TestWriteCSV(t *testing.T) {
	at := time.Date(2024, 10, 23, 12, 0, 0, 0, time.UTC)
	entries := []convlog.Entry{
		{ConversationID: "abc", Turn: 1, Role: convlog.RoleBot, Label: "DATE_1", Text: "ご希望の日付をお伺いします。", State: "CONTINUE", CreatedAt: at},
		{ConversationID: "abc", Turn: 2, Role: convlog.RoleCaller, Text: "11月2日, 夜で", Intent: "NEW_RESERVATION", CreatedAt: at},
	}

	var sb strings.Builder
	if err := convlog.WriteCSV(&sb, entries); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header + 2", len(lines))
	}
	if !strings.HasPrefix(lines[0], "conversation_id,turn,role") {
		t.Errorf("header = %q", lines[0])
	}
	// A comma inside the text must be quoted.
	if !strings.Contains(lines[2], `"11月2日, 夜で"`) {
		t.Errorf("record = %q", lines[2])
	}
}
