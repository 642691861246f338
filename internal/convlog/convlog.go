// Package convlog records per-conversation dialogue turns. A Recorder
// persists entries (PostgreSQL in production, in-memory for tests and
// DB-less deployments) and WriteCSV exports a conversation for offline
// review.
package convlog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Role identifies who produced an entry.
type Role string

const (
	RoleCaller Role = "caller"
	RoleBot    Role = "bot"
)

// Entry is one logged turn of a conversation.
type Entry struct {
	// ConversationID is the stable identifier derived from the call SID.
	ConversationID string

	// Turn numbers entries within a conversation, starting at 1.
	Turn int

	Role Role

	// Label is the response template label for bot entries, empty for
	// caller entries.
	Label string

	// Text is the transcript (caller) or spoken response (bot).
	Text string

	// Intent and State capture the dialogue snapshot after the turn.
	Intent string
	State  string

	CreatedAt time.Time
}

// Recorder persists conversation entries.
type Recorder interface {
	// Record appends one entry.
	Record(ctx context.Context, e Entry) error

	// Entries returns all entries for a conversation in turn order.
	Entries(ctx context.Context, conversationID string) ([]Entry, error)
}

// WriteCSV writes entries as CSV with a header row.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"conversation_id", "turn", "role", "label", "text", "intent", "state", "created_at"}); err != nil {
		return fmt.Errorf("convlog: write csv header: %w", err)
	}
	for _, e := range entries {
		rec := []string{
			e.ConversationID,
			strconv.Itoa(e.Turn),
			string(e.Role),
			e.Label,
			e.Text,
			e.Intent,
			e.State,
			e.CreatedAt.Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("convlog: write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
