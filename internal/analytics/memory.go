package analytics

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
)

// Memory is a simple in-memory sink used when no DATABASE_URL is set.
type Memory struct {
    mu    sync.Mutex
    items []Dwell
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(ctx context.Context, d Dwell) error {
    if d.ID == "" { d.ID = uuid.New().String() }
    m.mu.Lock(); defer m.mu.Unlock()
    m.items = append(m.items, d)
    return nil
}

func (m *Memory) Totals(ctx context.Context, since time.Time) ([]CategoryTotal, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    by := map[string]*CategoryTotal{}
    for _, d := range m.items {
        if d.EndedAt.Before(since) { continue }
        t := by[d.Category]
        if t == nil { t = &CategoryTotal{Category: d.Category}; by[d.Category] = t }
        t.Visits++
        t.TotalSeconds += d.Seconds()
    }
    out := make([]CategoryTotal, 0, len(by))
    for _, t := range by { out = append(out, *t) }
    sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
    return out, nil
}

// Records returns a copy of everything recorded.
func (m *Memory) Records() []Dwell {
    m.mu.Lock(); defer m.mu.Unlock()
    return append([]Dwell(nil), m.items...)
}
