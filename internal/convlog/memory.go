package convlog

import (
	"context"
	"sync"
)

var _ Recorder = (*MemoryRecorder)(nil)

// MemoryRecorder keeps entries in memory. It backs tests and
// deployments without a database.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{entries: make(map[string][]Entry)}
}

func (m *MemoryRecorder) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ConversationID] = append(m.entries[e.ConversationID], e)
	return nil
}

func (m *MemoryRecorder) Entries(_ context.Context, conversationID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries[conversationID]))
	copy(out, m.entries[conversationID])
	return out, nil
}
