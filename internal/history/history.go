// Package history stores chat exchanges so the assistant can carry recent
// conversation context between questions.
package history

import (
	"context"
	"sync"
	"time"
)

// DefaultLimit caps how many exchanges a store keeps.
const DefaultLimit = 10

// Entry is one question/answer exchange.
type Entry struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Provider string    `json:"provider,omitempty"`
	AskedAt  time.Time `json:"asked_at"`
}

// Store keeps a bounded conversation history, oldest first.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, n int) ([]Entry, error)
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Memory is an in-process Store backed by a bounded slice.
type Memory struct {
	mu      sync.Mutex
	limit   int
	entries []Entry
}

// NewMemory returns a memory store keeping up to limit exchanges. A
// non-positive limit uses DefaultLimit.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Memory{limit: limit}
}

func (m *Memory) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if len(m.entries) > m.limit {
		m.entries = append([]Entry(nil), m.entries[len(m.entries)-m.limit:]...)
	}
	return nil
}

func (m *Memory) Recent(_ context.Context, n int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.entries) {
		n = len(m.entries)
	}
	out := make([]Entry, n)
	copy(out, m.entries[len(m.entries)-n:])
	return out, nil
}

func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	return nil
}
