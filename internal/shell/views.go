package shell

import (
	"context"
	"fmt"

	"reliefmap/internal/model"
	"reliefmap/internal/places"
)

// ListEntry is one row of the sidebar list.
type ListEntry struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Type          model.PlaceType `json:"type"`
	TypeLabel     string          `json:"type_label"`
	Address       string          `json:"address"`
	Caption       string          `json:"caption,omitempty"`
	SubType       string          `json:"sub_type,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	DateRange     string          `json:"date_range,omitempty"`
	WebsiteURL    string          `json:"website_url,omitempty"`
	NavigateURL   string          `json:"navigate_url,omitempty"`
	NavigateLabel string          `json:"navigate_label,omitempty"`
	OnMap         bool            `json:"on_map"`
}

// Entry builds the list row for a place.
func Entry(p model.Place) ListEntry {
	e := ListEntry{
		ID:         p.ID,
		Name:       p.DisplayName(),
		Type:       p.Type,
		TypeLabel:  p.Type.Label(),
		Address:    p.DisplayAddress(),
		SubType:    p.SubType,
		Phone:      p.ContactPhone,
		WebsiteURL: p.WebsiteURL,
		OnMap:      p.Renderable(),
	}
	e.DateRange, _ = p.DateRange()
	if g := p.Coordinates; g != nil {
		switch g.Kind {
		case model.KindPolygon:
			e.Caption = fmt.Sprintf("(%d 個點)", g.VertexCount())
		case model.KindLineString:
			e.Caption = fmt.Sprintf("(%d 個節點)", g.VertexCount())
		}
	}
	if u, ok := p.NavigationURL(); ok {
		e.NavigateURL = u
		e.NavigateLabel = "查看路線"
		if p.Coordinates.Kind == model.KindPoint {
			e.NavigateLabel = "導航"
		}
	}
	return e
}

// Entries builds list rows for places sorted by name.
func Entries(ps []model.Place) []ListEntry {
	sorted := places.SortByName(ps)
	out := make([]ListEntry, 0, len(sorted))
	for _, p := range sorted {
		out = append(out, Entry(p))
	}
	return out
}

// List returns the rows visible under tab, places without geometry included.
func (s *Shell) List(tab model.Tab) []ListEntry {
	s.mu.Lock()
	g := s.grouped
	s.mu.Unlock()
	return Entries(g.For(tab))
}

// ListPage is the paged listing of one tab.
type ListPage struct {
	Tab         model.Tab   `json:"tab"`
	Label       string      `json:"label"`
	Entries     []ListEntry `json:"entries"`
	HasNextPage bool        `json:"has_next_page"`
}

// PageOf builds the listing for a tab from its feed's loaded pages.
func PageOf(feed *places.Feed) ListPage {
	tab := feed.Tab()
	return ListPage{
		Tab:         tab,
		Label:       tab.Label(),
		Entries:     Entries(feed.Grouped().For(tab)),
		HasNextPage: feed.HasNextPage(),
	}
}

// ListPage loads the active tab's paged listing. With more set it appends
// the next page first; at the end of the feed that is a no-op. Loaded pages
// are returned alongside a fetch error.
func (s *Shell) ListPage(ctx context.Context, more bool) (ListPage, error) {
	feed := s.repo.Infinite(s.Tab())
	var err error
	if more {
		_, err = feed.FetchNextPage(ctx)
	} else {
		_, err = feed.Load(ctx)
	}
	return PageOf(feed), err
}

// DetailView is the content of the detail dialog.
type DetailView struct {
	Place       model.Place `json:"place"`
	Name        string      `json:"name"`
	TypeLabel   string      `json:"type_label"`
	Address     string      `json:"address"`
	DateRange   string      `json:"date_range,omitempty"`
	TimeRange   string      `json:"time_range,omitempty"`
	NavigateURL string      `json:"navigate_url,omitempty"`
}

// Detail returns the view for a place. NavigateURL is empty when the place
// has no usable coordinates.
func Detail(p model.Place) DetailView {
	v := DetailView{
		Place:     p,
		Name:      p.DisplayName(),
		TypeLabel: p.Type.Label(),
		Address:   p.DisplayAddress(),
	}
	v.DateRange, _ = p.DateRange()
	v.TimeRange, _ = p.TimeRange()
	v.NavigateURL, _ = p.NavigationURL()
	return v
}

// DetailView returns the view of the open detail dialog, if any.
func (s *Shell) DetailView() (DetailView, bool) {
	st := s.Modal.Snapshot()
	if st.Detail == nil {
		return DetailView{}, false
	}
	return Detail(st.Detail.Place), true
}
