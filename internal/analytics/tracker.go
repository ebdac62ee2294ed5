package analytics

import (
    "context"
    "sync"
    "time"

    "reliefmap/internal/logger"
    "reliefmap/internal/metrics"
)

const (
    DefaultDebounce = time.Second
    DefaultMinDwell = 10 * time.Second
)

// Tracker measures how long a session stays on each category. Leaving a
// category schedules its record after a debounce; a newer change within
// the window replaces the pending record. Stays shorter than the minimum
// are dropped.
type Tracker struct {
    sink     Sink
    session  string
    now      func() time.Time
    debounce time.Duration
    minDwell time.Duration

    mu       sync.Mutex
    category string
    since    time.Time
    pending  *Dwell
    timer    *time.Timer
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

func WithDebounce(d time.Duration) Option { return func(t *Tracker) { t.debounce = d } }

func WithMinDwell(d time.Duration) Option { return func(t *Tracker) { t.minDwell = d } }

func NewTracker(sink Sink, session string, opts ...Option) *Tracker {
    t := &Tracker{sink: sink, session: session, now: time.Now, debounce: DefaultDebounce, minDwell: DefaultMinDwell}
    for _, o := range opts { o(t) }
    return t
}

// Enter switches to category, closing the stay on the previous one.
func (t *Tracker) Enter(category string) {
    t.mu.Lock()
    defer t.mu.Unlock()
    if category == t.category { return }
    now := t.now()
    if t.category != "" {
        d := Dwell{Session: t.session, Category: t.category, StartedAt: t.since, EndedAt: now}
        t.pending = &d
        if t.timer != nil { t.timer.Stop() }
        t.timer = time.AfterFunc(t.debounce, t.fire)
    }
    t.category = category
    t.since = now
}

func (t *Tracker) fire() {
    t.mu.Lock()
    d := t.pending
    t.pending = nil
    t.mu.Unlock()
    if d != nil { t.emit(*d) }
}

// Flush records the pending and the current stay immediately. The tracker
// can be reused afterwards.
func (t *Tracker) Flush() {
    t.mu.Lock()
    if t.timer != nil { t.timer.Stop(); t.timer = nil }
    var out []Dwell
    if t.pending != nil { out = append(out, *t.pending); t.pending = nil }
    if t.category != "" {
        out = append(out, Dwell{Session: t.session, Category: t.category, StartedAt: t.since, EndedAt: t.now()})
        t.category = ""
    }
    t.mu.Unlock()
    for _, d := range out { t.emit(d) }
}

func (t *Tracker) emit(d Dwell) {
    if d.EndedAt.Sub(d.StartedAt) < t.minDwell {
        metrics.DwellRecords.WithLabelValues("dropped").Inc()
        return
    }
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := t.sink.Record(ctx, d); err != nil {
        metrics.DwellRecords.WithLabelValues("error").Inc()
        logger.L().Warn("dwell_record_error", "category", d.Category, "err", err)
        return
    }
    metrics.DwellRecords.WithLabelValues("recorded").Inc()
    logger.L().Debug("dwell_recorded", "category", d.Category, "seconds", d.Seconds())
}
