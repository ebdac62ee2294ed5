// Package analytics records how long visitors stay on each place category.
package analytics

import (
    "context"
    "time"
)

// Dwell is one continuous stay on a category tab.
type Dwell struct {
    ID        string    `json:"id"`
    Session   string    `json:"session"`
    Category  string    `json:"category"`
    StartedAt time.Time `json:"started_at"`
    EndedAt   time.Time `json:"ended_at"`
}

// Seconds is the whole-second length of the stay.
func (d Dwell) Seconds() int { return int(d.EndedAt.Sub(d.StartedAt) / time.Second) }

// CategoryTotal aggregates dwell per category.
type CategoryTotal struct {
    Category     string `json:"category"`
    Visits       int    `json:"visits"`
    TotalSeconds int    `json:"total_seconds"`
}

// Sink is the persistence interface for dwell records.
type Sink interface {
    Record(ctx context.Context, d Dwell) error
    Totals(ctx context.Context, since time.Time) ([]CategoryTotal, error)
}
