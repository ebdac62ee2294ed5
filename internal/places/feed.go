package places

import (
	"context"

	"reliefmap/internal/model"
)

// Feed is a cached, page-at-a-time listing for one tab. The "all" tab sends
// no type filter but still groups client-side.
type Feed struct {
	repo *Repository
	tab  model.Tab
	key  string
}

// Tab returns the feed's tab.
func (f *Feed) Tab() model.Tab { return f.tab }

// Load reads the first page, using the cache like AllGroupedByType. A
// stale refetch reloads as many pages as were loaded before.
func (f *Feed) Load(ctx context.Context) ([]model.PlacesPage, error) {
	return f.repo.pages.get(ctx, f.key, f.reload)
}

func (f *Feed) reload(ctx context.Context, current []model.PlacesPage, has bool) ([]model.PlacesPage, error) {
	want := 1
	if has && len(current) > 1 {
		want = len(current)
	}
	page, err := f.repo.fetch.FirstPage(ctx, f.tab.Type())
	if err != nil {
		return nil, err
	}
	pages := []model.PlacesPage{page}
	for len(pages) < want {
		next, ok := page.NextLink()
		if !ok {
			break
		}
		if page, err = f.repo.fetch.NextPage(ctx, next); err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// FetchNextPage appends the next page. It is a no-op when the last loaded
// page has no continuation, and loads the first page when nothing is cached.
func (f *Feed) FetchNextPage(ctx context.Context) ([]model.PlacesPage, error) {
	if !f.repo.pages.state(f.key).HasData {
		return f.Load(ctx)
	}
	if !f.HasNextPage() {
		return f.Pages(), nil
	}
	return f.repo.pages.refresh(ctx, f.key, func(ctx context.Context, current []model.PlacesPage, has bool) ([]model.PlacesPage, error) {
		if !has || len(current) == 0 {
			return f.reload(ctx, nil, false)
		}
		next, ok := current[len(current)-1].NextLink()
		if !ok {
			return current, nil
		}
		page, err := f.repo.fetch.NextPage(ctx, next)
		if err != nil {
			return nil, err
		}
		out := append(append([]model.PlacesPage(nil), current...), page)
		return out, nil
	})
}

// HasNextPage reports whether the last loaded page links onwards.
func (f *Feed) HasNextPage() bool {
	pages := f.Pages()
	if len(pages) == 0 {
		return false
	}
	_, ok := pages[len(pages)-1].NextLink()
	return ok
}

// Pages returns the loaded pages.
func (f *Feed) Pages() []model.PlacesPage {
	return f.repo.pages.state(f.key).Data
}

// Flat returns every loaded place in arrival order.
func (f *Feed) Flat() []model.Place {
	var out []model.Place
	for _, p := range f.Pages() {
		out = append(out, p.Member...)
	}
	return out
}

// Grouped groups the loaded places by type.
func (f *Feed) Grouped() Grouped { return Group(f.Flat()) }

// Err returns the last fetch error for the feed.
func (f *Feed) Err() error { return f.repo.pages.state(f.key).Err }
