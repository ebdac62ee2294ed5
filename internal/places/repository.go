package places

import (
	"context"
	"sort"
	"sync"
	"time"

	"reliefmap/internal/model"
)

// Cache key of the all-places grouped read.
const AllKey = "places"

const (
	DefaultStaleAfter = 5 * time.Minute
	DefaultGCAfter    = 10 * time.Minute
)

// Grouped holds places by type. Every known type has an entry, possibly empty.
type Grouped map[model.PlaceType][]model.Place

// Group buckets places by type. Places of unknown types are dropped.
func Group(places []model.Place) Grouped {
	g := Grouped{}
	for _, t := range model.AllPlaceTypes() {
		g[t] = []model.Place{}
	}
	for _, p := range places {
		if _, ok := g[p.Type]; ok {
			g[p.Type] = append(g[p.Type], p)
		}
	}
	return g
}

// Flat returns every place, types in display order, arrival order within a type.
func (g Grouped) Flat() []model.Place {
	var out []model.Place
	for _, t := range model.AllPlaceTypes() {
		out = append(out, g[t]...)
	}
	return out
}

// For returns the places visible under tab.
func (g Grouped) For(tab model.Tab) []model.Place {
	if t := tab.Type(); t != "" {
		return g[t]
	}
	return g.Flat()
}

// Counts returns the number of places per type.
func (g Grouped) Counts() map[model.PlaceType]int {
	out := make(map[model.PlaceType]int, len(g))
	for t, ps := range g {
		out[t] = len(ps)
	}
	return out
}

// Find looks a place up by id.
func (g Grouped) Find(id string) (model.Place, bool) {
	for _, ps := range g {
		for _, p := range ps {
			if p.ID == id {
				return p, true
			}
		}
	}
	return model.Place{}, false
}

// SortByName returns a copy of places ordered by name. The order is stable
// for equal names.
func SortByName(places []model.Place) []model.Place {
	out := append([]model.Place(nil), places...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Options tune a Repository.
type Options struct {
	StaleAfter time.Duration
	GCAfter    time.Duration
	Now        func() time.Time
}

// Repository is the process-wide place cache.
type Repository struct {
	fetch Fetcher
	now   func() time.Time
	all   *cache[[]model.Place]
	pages *cache[[]model.PlacesPage]

	mu        sync.Mutex
	listeners map[int]func(key string)
	nextID    int
}

// NewRepository wraps f with a cache.
func NewRepository(f Fetcher, opts Options) *Repository {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.GCAfter <= 0 {
		opts.GCAfter = DefaultGCAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Repository{fetch: f, now: opts.Now, listeners: map[int]func(string){}}
	r.all = newCache[[]model.Place](opts.StaleAfter, opts.GCAfter, opts.Now, r.changed)
	r.pages = newCache[[]model.PlacesPage](opts.StaleAfter, opts.GCAfter, opts.Now, r.changed)
	return r
}

func (r *Repository) loadAll(ctx context.Context, _ []model.Place, _ bool) ([]model.Place, error) {
	return Drain(ctx, r.fetch, "")
}

// AllGroupedByType returns every open place grouped by type. Fresh data is
// served from cache; stale data is served while a refetch runs in the
// background. A failed refetch keeps the previous data and returns it with
// the error.
func (r *Repository) AllGroupedByType(ctx context.Context) (Grouped, error) {
	ps, err := r.all.get(ctx, AllKey, r.loadAll)
	if ps == nil && err != nil {
		return nil, err
	}
	return Group(ps), err
}

// Refresh refetches the grouped read, superseding any fetch in flight.
func (r *Repository) Refresh(ctx context.Context) (Grouped, error) {
	ps, err := r.all.refresh(ctx, AllKey, r.loadAll)
	if ps == nil && err != nil {
		return nil, err
	}
	return Group(ps), err
}

// GroupedState reports the cached grouped read without fetching.
func (r *Repository) GroupedState() State[Grouped] {
	st := r.all.state(AllKey)
	out := State[Grouped]{HasData: st.HasData, UpdatedAt: st.UpdatedAt, Err: st.Err, Fetching: st.Fetching, Stale: st.Stale}
	if st.HasData {
		out.Data = Group(st.Data)
	}
	return out
}

// Infinite returns the page-at-a-time feed for a tab.
func (r *Repository) Infinite(tab model.Tab) *Feed {
	return &Feed{repo: r, tab: tab, key: FeedKey(tab)}
}

// FeedKey is the cache key of a tab's feed.
func FeedKey(tab model.Tab) string {
	if tab == "" {
		tab = model.TabAll
	}
	return "infinite:" + string(tab)
}

// Invalidate evicts every cached query.
func (r *Repository) Invalidate() {
	r.all.invalidate()
	r.pages.invalidate()
}

// OnChange registers fn to run whenever a key's cached data or error
// changes. It returns the unsubscribe func.
func (r *Repository) OnChange(fn func(key string)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Repository) changed(key string) {
	r.mu.Lock()
	fns := make([]func(string), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(key)
	}
}

// Close abandons in-flight fetches. Reads afterwards return ErrClosed.
func (r *Repository) Close() {
	r.all.close()
	r.pages.close()
}
