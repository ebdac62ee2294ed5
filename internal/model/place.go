package model

import (
	"strings"
	"time"
)

// Resource is a stocked item at a place.
type Resource struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
}

// Tag is a labelled priority marker on a place.
type Tag struct {
	Priority int    `json:"priority"`
	Name     string `json:"name"`
}

// Place is a relief resource record owned by the backend. The client never
// mutates one; it only reads, filters and groups.
type Place struct {
	ID                 string    `json:"id"`
	CreatedAt          int64     `json:"created_at,omitempty"`
	UpdatedAt          int64     `json:"updated_at,omitempty"`
	Name               string    `json:"name"`
	Address            string    `json:"address"`
	AddressDescription string    `json:"address_description,omitempty"`
	Coordinates        *Geometry `json:"coordinates"`
	Type               PlaceType `json:"type"`
	SubType            string    `json:"sub_type"`
	InfoSources        []string  `json:"info_sources,omitempty"`
	VerifiedAt         int64     `json:"verified_at,omitempty"`
	WebsiteURL         string    `json:"website_url,omitempty"`
	Status             string    `json:"status,omitempty"`
	Resources          []Resource `json:"resources,omitempty"`
	OpenDate           string    `json:"open_date,omitempty"`
	EndDate            string    `json:"end_date,omitempty"`
	OpenTime           string    `json:"open_time,omitempty"`
	EndTime            string    `json:"end_time,omitempty"`
	ContactName        string    `json:"contact_name,omitempty"`
	ContactPhone       string    `json:"contact_phone,omitempty"`
	Notes              string    `json:"notes"`
	Tags               []Tag     `json:"tags,omitempty"`
}

// Renderable reports whether the place can be drawn on the map.
func (p Place) Renderable() bool { return p.Coordinates.Renderable() }

// Center is the place's camera target.
func (p Place) Center() (LatLng, bool) {
	if p.Coordinates == nil {
		return LatLng{}, false
	}
	return p.Coordinates.Center()
}

// NavigationURL is the external directions link, if the geometry has one.
func (p Place) NavigationURL() (string, bool) {
	if p.Coordinates == nil {
		return "", false
	}
	return p.Coordinates.NavigationURL()
}

// DisplayAddress falls back to the address description, then a placeholder.
func (p Place) DisplayAddress() string {
	if s := strings.TrimSpace(p.Address); s != "" {
		return s
	}
	if s := strings.TrimSpace(p.AddressDescription); s != "" {
		return s
	}
	return "未提供地址"
}

// DisplayName falls back to a placeholder for unnamed places.
func (p Place) DisplayName() string {
	if s := strings.TrimSpace(p.Name); s != "" {
		return s
	}
	return "未知地點"
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"15:04:05",
	"15:04",
}

func parseAny(s string, layouts []string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// formatRange renders "X ~ Y", "X ~" or "~ Y". Unparseable sides count as absent.
func formatRange(from, to string, layouts []string, out string) (string, bool) {
	a, okA := parseAny(from, layouts)
	b, okB := parseAny(to, layouts)
	if !okA && !okB {
		return "", false
	}
	var sb strings.Builder
	if okA {
		sb.WriteString(a.Format(out))
		sb.WriteString(" ")
	}
	sb.WriteString("~")
	if okB {
		sb.WriteString(" ")
		sb.WriteString(b.Format(out))
	}
	return sb.String(), true
}

// DateRange renders the validity dates as YYYY/MM/DD. Either side may be open.
func (p Place) DateRange() (string, bool) {
	return formatRange(p.OpenDate, p.EndDate, dateLayouts, "2006/01/02")
}

// TimeRange renders daily opening hours as HH:mm. Either side may be open.
func (p Place) TimeRange() (string, bool) {
	return formatRange(p.OpenTime, p.EndTime, timeLayouts, "15:04")
}

// PlacesPage is one page of the cursor-paginated listing.
type PlacesPage struct {
	Context    string  `json:"@context,omitempty"`
	Type       string  `json:"@type,omitempty"`
	Member     []Place `json:"member"`
	Next       *string `json:"next"`
	Previous   *string `json:"previous,omitempty"`
	TotalItems int     `json:"totalItems"`
	Limit      int     `json:"limit"`
	Offset     int     `json:"offset"`
}

// NextLink returns the continuation link, if any.
func (p PlacesPage) NextLink() (string, bool) {
	if p.Next == nil || strings.TrimSpace(*p.Next) == "" {
		return "", false
	}
	return *p.Next, true
}

// ReportStatusPending is the status every client-submitted report carries.
const ReportStatusPending = "false"

// ReportRequest is the body of POST /reports.
type ReportRequest struct {
	LocationType string `json:"location_type"`
	LocationID   string `json:"location_id"`
	Name         string `json:"name"`
	Reason       string `json:"reason"`
	Status       string `json:"status"`
}
