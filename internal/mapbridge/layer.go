// Package mapbridge keeps an externally rendered map surface in step with
// the place data and exposes imperative camera and popup control.
package mapbridge

import (
	"reflect"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/time/rate"

	"reliefmap/internal/model"
)

// NeighborhoodZoom is the zoom used when a caller gives none.
const NeighborhoodZoom = 15

// DefaultRecenterInterval throttles camera follow on position updates.
const DefaultRecenterInterval = 400 * time.Millisecond

type FeatureKind string

const (
	Marker   FeatureKind = "marker"
	Polygon  FeatureKind = "polygon"
	Polyline FeatureKind = "polyline"
)

// Popup is the content of a feature's popup.
type Popup struct {
	Title       string `json:"title"`
	TypeLabel   string `json:"type_label"`
	Address     string `json:"address"`
	DateRange   string `json:"date_range,omitempty"`
	TimeRange   string `json:"time_range,omitempty"`
	Phone       string `json:"phone,omitempty"`
	NavigateURL string `json:"navigate_url,omitempty"`
}

// Feature is one drawable place.
type Feature struct {
	ID      string           `json:"id"`
	Kind    FeatureKind      `json:"kind"`
	Type    model.PlaceType  `json:"type"`
	Shape   *geojson.Feature `json:"geojson"`
	Popup   Popup            `json:"popup"`
	Version int64            `json:"version"`
}

// FeatureFor builds the feature for a place. Non-renderable places have none.
func FeatureFor(p model.Place) (Feature, bool) {
	if !p.Renderable() {
		return Feature{}, false
	}
	var kind FeatureKind
	switch p.Coordinates.Kind {
	case model.KindPoint:
		kind = Marker
	case model.KindPolygon:
		kind = Polygon
	case model.KindLineString:
		kind = Polyline
	default:
		return Feature{}, false
	}
	shape := geojson.NewFeature(p.Coordinates.Orb())
	shape.ID = p.ID
	shape.Properties["type"] = string(p.Type)
	shape.Properties["name"] = p.DisplayName()
	shape.BBox = geojson.NewBBox(p.Coordinates.Bound())

	pop := Popup{
		Title:     p.DisplayName(),
		TypeLabel: p.Type.Label(),
		Address:   p.DisplayAddress(),
		Phone:     p.ContactPhone,
	}
	pop.DateRange, _ = p.DateRange()
	pop.TimeRange, _ = p.TimeRange()
	pop.NavigateURL, _ = p.NavigationURL()
	return Feature{ID: p.ID, Kind: kind, Type: p.Type, Shape: shape, Popup: pop, Version: p.UpdatedAt}, true
}

// Surface is the external map renderer.
type Surface interface {
	AddFeature(f Feature)
	RemoveFeature(id string)
	// OpenPopup reports whether a popup could be opened for the feature.
	OpenPopup(id string) bool
	// FlyTo animates the camera. A newer call overrides one not yet applied.
	FlyTo(center model.LatLng, zoom int)
	SetUserMarker(pos model.UserPosition)
}

// Bridge is the imperative control handed to list views and the tracker.
type Bridge interface {
	FlyTo(center model.LatLng, zoom int)
	OpenPopupFor(featureID string)
	SyncUserMarker(pos model.UserPosition, recenter bool)
}

// Layer renders places onto a Surface and implements Bridge. The same
// Layer stays valid while the feature set changes.
type Layer struct {
	surface  Surface
	recenter *rate.Limiter

	followMu    sync.Mutex
	followPos   model.UserPosition
	followTimer *time.Timer
	stopped     bool

	renderMu sync.Mutex
	mu       sync.Mutex
	tab      model.Tab
	places   []model.Place
	rendered map[string]Feature
}

// LayerOption configures a Layer.
type LayerOption func(*Layer)

// WithRecenterInterval sets the minimum gap between follow recenters.
// Zero disables throttling.
func WithRecenterInterval(d time.Duration) LayerOption {
	return func(l *Layer) {
		if d <= 0 {
			l.recenter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		l.recenter = rate.NewLimiter(rate.Every(d), 1)
	}
}

func NewLayer(s Surface, opts ...LayerOption) *Layer {
	l := &Layer{
		surface:  s,
		recenter: rate.NewLimiter(rate.Every(DefaultRecenterInterval), 1),
		tab:      model.TabAll,
		rendered: map[string]Feature{},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Render replaces the place set and reconciles the surface.
func (l *Layer) Render(places []model.Place) {
	l.mu.Lock()
	l.places = append([]model.Place(nil), places...)
	l.mu.Unlock()
	l.reconcile()
}

// SetTab changes which types are visible.
func (l *Layer) SetTab(tab model.Tab) {
	l.mu.Lock()
	l.tab = tab
	l.mu.Unlock()
	l.reconcile()
}

// Rendered returns the ids currently drawn.
func (l *Layer) Rendered() map[string]FeatureKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]FeatureKind, len(l.rendered))
	for id, f := range l.rendered {
		out[id] = f.Kind
	}
	return out
}

func (l *Layer) reconcile() {
	l.renderMu.Lock()
	defer l.renderMu.Unlock()

	l.mu.Lock()
	want := map[string]Feature{}
	var order []string
	for _, p := range l.places {
		if !l.tab.Includes(p.Type) {
			continue
		}
		f, ok := FeatureFor(p)
		if !ok {
			continue
		}
		if _, dup := want[p.ID]; !dup {
			order = append(order, p.ID)
		}
		want[p.ID] = f
	}
	var removes []string
	var adds []Feature
	for id, have := range l.rendered {
		w, keep := want[id]
		if !keep || !reflect.DeepEqual(w, have) {
			removes = append(removes, id)
		}
	}
	for _, id := range order {
		have, ok := l.rendered[id]
		if w := want[id]; !ok || !reflect.DeepEqual(w, have) {
			adds = append(adds, w)
		}
	}
	l.rendered = want
	l.mu.Unlock()

	for _, id := range removes {
		l.surface.RemoveFeature(id)
	}
	for _, f := range adds {
		l.surface.AddFeature(f)
	}
}

// FlyTo implements Bridge. Zoom 0 means NeighborhoodZoom.
func (l *Layer) FlyTo(center model.LatLng, zoom int) {
	if zoom <= 0 {
		zoom = NeighborhoodZoom
	}
	l.surface.FlyTo(center, zoom)
}

// OpenPopupFor implements Bridge. Unknown or hidden ids are ignored.
func (l *Layer) OpenPopupFor(id string) {
	l.mu.Lock()
	_, ok := l.rendered[id]
	l.mu.Unlock()
	if !ok {
		return
	}
	l.surface.OpenPopup(id)
}

// SyncUserMarker implements Bridge. Recenters are rate limited; a
// recenter that arrives inside the interval is deferred to its end, and
// only the newest deferred position is flown to.
func (l *Layer) SyncUserMarker(pos model.UserPosition, recenter bool) {
	l.surface.SetUserMarker(pos)
	if !recenter {
		return
	}
	l.followMu.Lock()
	if l.stopped {
		l.followMu.Unlock()
		return
	}
	if l.followTimer != nil {
		l.followPos = pos
		l.followMu.Unlock()
		return
	}
	if l.recenter.Allow() {
		l.followMu.Unlock()
		l.FlyTo(pos, NeighborhoodZoom)
		return
	}
	l.followPos = pos
	l.followTimer = time.AfterFunc(l.recenter.Reserve().Delay(), l.flushFollow)
	l.followMu.Unlock()
}

func (l *Layer) flushFollow() {
	l.followMu.Lock()
	pos, stopped := l.followPos, l.stopped
	l.followTimer = nil
	l.followMu.Unlock()
	if !stopped {
		l.FlyTo(pos, NeighborhoodZoom)
	}
}

// Stop drops any deferred recenter. Later recenters are ignored.
func (l *Layer) Stop() {
	l.followMu.Lock()
	defer l.followMu.Unlock()
	l.stopped = true
	if l.followTimer != nil {
		l.followTimer.Stop()
		l.followTimer = nil
	}
}
