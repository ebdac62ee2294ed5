package api

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    "reliefmap/internal/feeds"
    "reliefmap/internal/model"
    "reliefmap/internal/places"
    "reliefmap/internal/shell"
)

// PlacesHandler serves GET /v1/places?tab=all|<type>[&paged=1[&more=1]]
func (s *Server) PlacesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    q := r.URL.Query()
    tab, ok := model.ParseTab(q.Get("tab"))
    if !ok { writeProblem(w, 400, "Invalid tab", "unknown place type "+q.Get("tab"), r.URL.Path); return }
    if q.Get("paged") == "1" || q.Get("more") == "1" {
        s.pagedPlaces(w, r, tab, q.Get("more") == "1")
        return
    }
    g, err := s.Places.AllGroupedByType(r.Context())
    if g == nil {
        writeProblem(w, 502, "Places unavailable", errString(err), r.URL.Path)
        return
    }
    entries := shell.Entries(g.For(tab))
    st := s.Places.GroupedState()
    writeJSON(w, 200, placesResponse{Tab: tab, Label: tab.Label(), Total: len(entries), Entries: entries, Stale: st.Stale, Error: errString(err)})
}

// pagedPlaces serves the tab's page-at-a-time feed. more appends the next
// page; pages already loaded are kept across requests.
func (s *Server) pagedPlaces(w http.ResponseWriter, r *http.Request, tab model.Tab, more bool) {
    feed := s.Places.Infinite(tab)
    var err error
    if more {
        _, err = feed.FetchNextPage(r.Context())
    } else {
        _, err = feed.Load(r.Context())
    }
    if len(feed.Pages()) == 0 {
        writeProblem(w, 502, "Places unavailable", errString(err), r.URL.Path)
        return
    }
    page := shell.PageOf(feed)
    writeJSON(w, 200, placesResponse{Tab: tab, Label: page.Label, Total: len(page.Entries), Entries: page.Entries, HasNextPage: &page.HasNextPage, Error: errString(err)})
}

// PlacesRefreshHandler serves POST /v1/places/refresh[?hard=1]. A hard
// refresh evicts every cached listing first.
func (s *Server) PlacesRefreshHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(405); return }
    var (
        g   places.Grouped
        err error
    )
    if r.URL.Query().Get("hard") == "1" {
        s.Places.Invalidate()
        g, err = s.Places.AllGroupedByType(r.Context())
    } else {
        g, err = s.Places.Refresh(r.Context())
    }
    if g == nil {
        writeProblem(w, 502, "Places unavailable", errString(err), r.URL.Path)
        return
    }
    entries := shell.Entries(g.Flat())
    writeJSON(w, 200, placesResponse{Tab: model.TabAll, Label: model.TabAll.Label(), Total: len(entries), Entries: entries, Error: errString(err)})
}

type groupCount struct {
    Type  model.PlaceType `json:"type"`
    Slug  string          `json:"slug"`
    Label string          `json:"label"`
    Count int             `json:"count"`
}

// GroupedHandler serves GET /v1/places/grouped with counts per type.
func (s *Server) GroupedHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    g, err := s.Places.AllGroupedByType(r.Context())
    if g == nil {
        writeProblem(w, 502, "Places unavailable", errString(err), r.URL.Path)
        return
    }
    counts := g.Counts()
    out := make([]groupCount, 0, len(counts))
    total := 0
    for _, t := range model.AllPlaceTypes() {
        out = append(out, groupCount{Type: t, Slug: t.Slug(), Label: t.Label(), Count: counts[t]})
        total += counts[t]
    }
    writeJSON(w, 200, map[string]any{"total": total, "groups": out, "error": errString(err)})
}

// FeedsIndexHandler lists the content sections.
func (s *Server) FeedsIndexHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]any{"feeds": s.Feeds.Names()})
}

// FeedHandler serves GET /v1/feeds/{name}[?type=]
func (s *Server) FeedHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/feeds/"), "/")
    if _, ok := s.Feeds[name]; !ok { writeProblem(w, 404, "Not Found", "unknown feed "+name, r.URL.Path); return }
    v, err := s.Feeds.Load(r.Context(), s.Sheets, name)
    switch {
    case errors.Is(err, feeds.ErrNotConfigured):
        writeProblem(w, 503, "Feed not configured", err.Error(), r.URL.Path)
        return
    case errors.Is(err, feeds.ErrNotTabular):
        writeJSON(w, 200, feedResponse{Name: name, Data: v, HasData: false})
        return
    case err != nil:
        writeProblem(w, 502, "Feed unavailable", err.Error(), r.URL.Path)
        return
    }
    has := feeds.HasData(v)
    if typ := r.URL.Query().Get("type"); typ != "" {
        switch d := v.(type) {
        case feeds.HouseRepair:
            v = map[string]any{"types": d.Types, "vendors": d.Filter(typ)}
        case feeds.SupportInfo:
            v = map[string]any{"types": d.Types, "programs": d.Filter(typ)}
        }
    }
    writeJSON(w, 200, feedResponse{Name: name, Data: v, HasData: has})
}

// DwellHandler serves GET /v1/analytics/dwell?since=RFC3339|duration
func (s *Server) DwellHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    since := time.Now().Add(-24 * time.Hour)
    if v := r.URL.Query().Get("since"); v != "" {
        if t, err := time.Parse(time.RFC3339, v); err == nil {
            since = t
        } else if d, err := time.ParseDuration(v); err == nil {
            since = time.Now().Add(-d)
        } else {
            writeProblem(w, 400, "Invalid since", "use RFC3339 or a duration like 6h", r.URL.Path)
            return
        }
    }
    totals, err := s.Dwell.Totals(r.Context(), since)
    if err != nil { writeProblem(w, 500, "Dwell totals failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"since": since.UTC().Format(time.RFC3339), "totals": totals})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

// ReadyHandler checks Redis and Postgres when they are configured.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    for name, p := range s.pingers {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        err := p.Ping(ctx)
        cancel()
        if err != nil { writeProblem(w, 503, "Not Ready", name+": "+err.Error(), r.URL.Path); return }
    }
    // Places come from an external API; their state is reported, not gated on.
    st := s.Places.GroupedState()
    placesState := "cold"
    switch {
    case st.HasData && st.Stale:
        placesState = "stale"
    case st.HasData:
        placesState = "fresh"
    case st.Err != nil:
        placesState = "unavailable"
    }
    writeJSON(w, 200, map[string]string{"status": "ready", "places": placesState})
}

func errString(err error) string {
    if err == nil { return "" }
    return err.Error()
}
