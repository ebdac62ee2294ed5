package mapbridge

import (
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reliefmap/internal/model"
)

type op struct {
	name string
	id   string
	at   model.LatLng
	zoom int
}

type recordingSurface struct {
	mu  sync.Mutex
	ops []op
}

func (s *recordingSurface) record(o op) {
	s.mu.Lock()
	s.ops = append(s.ops, o)
	s.mu.Unlock()
}

func (s *recordingSurface) AddFeature(f Feature)    { s.record(op{name: "add", id: f.ID}) }
func (s *recordingSurface) RemoveFeature(id string) { s.record(op{name: "remove", id: id}) }
func (s *recordingSurface) OpenPopup(id string) bool {
	s.record(op{name: "popup", id: id})
	return true
}
func (s *recordingSurface) FlyTo(c model.LatLng, zoom int) {
	s.record(op{name: "fly", at: c, zoom: zoom})
}
func (s *recordingSurface) SetUserMarker(p model.UserPosition) { s.record(op{name: "marker", at: p}) }

func (s *recordingSurface) take() []op {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.ops
	s.ops = nil
	return out
}

func names(ops []op) []string {
	out := make([]string, len(ops))
	for i, o := range ops {
		out[i] = o.name + ":" + o.id
	}
	return out
}

func samplePlaces() []model.Place {
	return []model.Place{
		{ID: "a", Name: "A", Type: model.Medical, Coordinates: model.NewPoint(121.4, 23.6)},
		{ID: "b", Name: "B", Type: model.Water, Coordinates: &model.Geometry{Kind: model.KindPolygon}},
		{ID: "c", Name: "C", Type: model.Water, Coordinates: model.NewLineString(orb.Point{121.4, 23.6}, orb.Point{121.5, 23.7})},
		{ID: "d", Name: "D", Type: model.Shelter, Coordinates: model.NewPolygon(orb.Point{0, 0}, orb.Point{1, 0}, orb.Point{1, 1})},
	}
}

func TestFeatureFor(t *testing.T) {
	ps := samplePlaces()
	f, ok := FeatureFor(ps[0])
	require.True(t, ok)
	assert.Equal(t, Marker, f.Kind)
	assert.Contains(t, f.Popup.NavigateURL, "query=23.6,121.4")
	assert.Equal(t, "醫療站", f.Popup.TypeLabel)
	assert.Equal(t, "a", f.Shape.ID)

	_, ok = FeatureFor(ps[1])
	assert.False(t, ok)

	f, _ = FeatureFor(ps[2])
	assert.Equal(t, Polyline, f.Kind)
	f, _ = FeatureFor(ps[3])
	assert.Equal(t, Polygon, f.Kind)
	assert.Empty(t, f.Popup.NavigateURL)
	assert.Equal(t, "未提供地址", f.Popup.Address)
}

func TestRenderSkipsNonRenderable(t *testing.T) {
	s := &recordingSurface{}
	l := NewLayer(s)
	l.Render(samplePlaces())
	assert.Equal(t, []string{"add:a", "add:c", "add:d"}, names(s.take()))
	assert.Equal(t, map[string]FeatureKind{"a": Marker, "c": Polyline, "d": Polygon}, l.Rendered())
}

func TestRenderReconcilesById(t *testing.T) {
	s := &recordingSurface{}
	l := NewLayer(s)
	ps := samplePlaces()
	l.Render(ps)
	s.take()

	l.Render(ps)
	assert.Empty(t, s.take(), "unchanged set is a no-op")

	moved := append([]model.Place(nil), ps[0], ps[2])
	moved[0].Coordinates = model.NewPoint(121.45, 23.65)
	l.Render(moved)
	assert.ElementsMatch(t, []string{"remove:a", "remove:d", "add:a"}, names(s.take()))
}

func TestSetTabHidesOtherTypes(t *testing.T) {
	s := &recordingSurface{}
	l := NewLayer(s)
	l.Render(samplePlaces())
	s.take()

	l.SetTab(model.TabFor(model.Water))
	assert.ElementsMatch(t, []string{"remove:a", "remove:d"}, names(s.take()))

	l.OpenPopupFor("a")
	assert.Empty(t, s.take(), "hidden feature has no popup")
	l.OpenPopupFor("c")
	assert.Equal(t, []string{"popup:c"}, names(s.take()))

	l.SetTab(model.TabAll)
	assert.ElementsMatch(t, []string{"add:a", "add:d"}, names(s.take()))
}

func TestFlyToDefaultsZoom(t *testing.T) {
	s := &recordingSurface{}
	var b Bridge = NewLayer(s)
	b.FlyTo(model.LatLng{Lat: 1, Lng: 2}, 0)
	b.FlyTo(model.LatLng{Lat: 3, Lng: 4}, 12)
	ops := s.take()
	require.Len(t, ops, 2)
	assert.Equal(t, NeighborhoodZoom, ops[0].zoom)
	assert.Equal(t, 12, ops[1].zoom)
}

func TestSyncUserMarker(t *testing.T) {
	s := &recordingSurface{}
	l := NewLayer(s, WithRecenterInterval(0))
	pos := model.UserPosition{Lat: 23.66, Lng: 121.42}

	l.SyncUserMarker(pos, false)
	assert.Equal(t, []string{"marker:"}, names(s.take()))

	l.SyncUserMarker(pos, true)
	ops := s.take()
	require.Len(t, ops, 2)
	assert.Equal(t, "fly", ops[1].name)
	assert.Equal(t, pos, ops[1].at)
	assert.Equal(t, NeighborhoodZoom, ops[1].zoom)
}

func TestRecenterFollowsLatestPosition(t *testing.T) {
	s := &recordingSurface{}
	l := NewLayer(s, WithRecenterInterval(30*time.Millisecond))
	defer l.Stop()
	for i := 1; i <= 5; i++ {
		l.SyncUserMarker(model.UserPosition{Lat: float64(i), Lng: float64(i)}, true)
	}
	last := model.UserPosition{Lat: 5, Lng: 5}

	var flies []op
	require.Eventually(t, func() bool {
		for _, o := range s.take() {
			if o.name == "fly" {
				flies = append(flies, o)
			}
		}
		return len(flies) > 0 && flies[len(flies)-1].at == last
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, flies, 2)
	assert.Equal(t, model.UserPosition{Lat: 1, Lng: 1}, flies[0].at)
}

func TestStopDropsDeferredRecenter(t *testing.T) {
	s := &recordingSurface{}
	l := NewLayer(s, WithRecenterInterval(20*time.Millisecond))
	l.SyncUserMarker(model.UserPosition{Lat: 1, Lng: 1}, true)
	l.SyncUserMarker(model.UserPosition{Lat: 2, Lng: 2}, true)
	l.Stop()
	time.Sleep(60 * time.Millisecond)

	var flies int
	for _, o := range s.take() {
		if o.name == "fly" {
			flies++
		}
	}
	assert.Equal(t, 1, flies)
}
