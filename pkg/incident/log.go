package incident

import (
	"context"
	"iter"
	"slices"
	"sync"
)

// Log is the durable record of incidents. Append is called in ReportedAt
// order, and Scan must yield records in that same order.
type Log interface {
	Append(ctx context.Context, inc Incident) error
	Scan(ctx context.Context) iter.Seq2[Incident, error]
	Delete(ctx context.Context, incs []Incident) error
	Close() error
}

// MemoryLog keeps incidents in process memory only.
type MemoryLog struct {
	mu    sync.Mutex
	items []Incident
}

// NewMemoryLog returns an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) Append(_ context.Context, inc Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, inc)
	return nil
}

func (m *MemoryLog) Scan(ctx context.Context) iter.Seq2[Incident, error] {
	return func(yield func(Incident, error) bool) {
		m.mu.Lock()
		items := slices.Clone(m.items)
		m.mu.Unlock()
		for _, inc := range items {
			if err := ctx.Err(); err != nil {
				yield(Incident{}, err)
				return
			}
			if !yield(inc, nil) {
				return
			}
		}
	}
}

func (m *MemoryLog) Delete(_ context.Context, incs []Incident) error {
	drop := make(map[string]struct{}, len(incs))
	for _, inc := range incs {
		drop[inc.ID] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = slices.DeleteFunc(m.items, func(inc Incident) bool {
		_, ok := drop[inc.ID]
		return ok
	})
	return nil
}

func (m *MemoryLog) Close() error { return nil }
