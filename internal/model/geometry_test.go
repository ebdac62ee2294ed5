package model

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeGeometry(t *testing.T, s string) *Geometry {
	t.Helper()
	var g Geometry
	require.NoError(t, json.Unmarshal([]byte(s), &g))
	return &g
}

func TestGeometryDecodeVariants(t *testing.T) {
	pt := decodeGeometry(t, `{"type":"Point","coordinates":[121.42,23.66]}`)
	require.True(t, pt.Renderable())
	assert.Equal(t, orb.Point{121.42, 23.66}, pt.Point)

	poly := decodeGeometry(t, `{"type":"Polygon","coordinates":[[0,0],[2,0],[2,2],[0,2]]}`)
	require.True(t, poly.Renderable())
	assert.Len(t, poly.Ring, 4)
	assert.True(t, poly.ClosedRing().Closed())

	line := decodeGeometry(t, `{"type":"LineString","coordinates":[[1,1],[2,2],[3,3]]}`)
	require.True(t, line.Renderable())
	assert.Equal(t, 3, line.VertexCount())
}

func TestGeometryMalformedIsNotRenderable(t *testing.T) {
	cases := map[string]string{
		"empty point":         `{"type":"Point","coordinates":[]}`,
		"empty polygon":       `{"type":"Polygon","coordinates":[]}`,
		"two vertex polygon":  `{"type":"Polygon","coordinates":[[0,0],[1,1],[0,0]]}`,
		"single vertex line":  `{"type":"LineString","coordinates":[[1,1]]}`,
		"unknown type":        `{"type":"Circle","coordinates":[1,1]}`,
		"string coordinates":  `{"type":"Point","coordinates":"x"}`,
		"out of range lat":    `{"type":"Point","coordinates":[10,95]}`,
		"garbage in object":   `{"type":1}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			g := decodeGeometry(t, in)
			assert.False(t, g.Renderable())
			_, ok := g.Center()
			assert.False(t, ok)
			_, ok = g.NavigationURL()
			assert.False(t, ok)
		})
	}
}

func TestPlaceWithBadCoordinatesStillDecodes(t *testing.T) {
	var p Place
	err := json.Unmarshal([]byte(`{"id":"b","name":"B","type":"醫療","coordinates":{"type":"Polygon","coordinates":[]}}`), &p)
	require.NoError(t, err)
	assert.Equal(t, "b", p.ID)
	assert.False(t, p.Renderable())

	var q Place
	require.NoError(t, json.Unmarshal([]byte(`{"id":"c","coordinates":null}`), &q))
	assert.Nil(t, q.Coordinates)
	assert.False(t, q.Renderable())
}

func TestPageWithNonObjectCoordinatesDecodes(t *testing.T) {
	body := `{"member":[
		{"id":"a","name":"A","type":"醫療","coordinates":[]},
		{"id":"b","name":"B","type":"醫療","coordinates":""},
		{"id":"c","name":"C","type":"醫療","coordinates":[121.4,23.6]},
		{"id":"d","name":"D","type":"醫療","coordinates":{"type":"Point","coordinates":[121.42,23.66]}}
	],"next":null}`
	var page PlacesPage
	require.NoError(t, json.Unmarshal([]byte(body), &page))
	require.Len(t, page.Member, 4)
	for _, p := range page.Member[:3] {
		assert.False(t, p.Renderable(), p.ID)
	}
	assert.True(t, page.Member[3].Renderable())

	out, err := json.Marshal(page.Member[0].Coordinates)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(out))
}

func TestGeometryCenter(t *testing.T) {
	c, ok := NewPoint(121.5, 23.7).Center()
	require.True(t, ok)
	assert.Equal(t, LatLng{Lat: 23.7, Lng: 121.5}, c)

	c, ok = NewPolygon(orb.Point{0, 0}, orb.Point{4, 0}, orb.Point{4, 4}, orb.Point{0, 4}).Center()
	require.True(t, ok)
	assert.InDelta(t, 2.0, c.Lat, 1e-9)
	assert.InDelta(t, 2.0, c.Lng, 1e-9)

	c, ok = NewLineString(orb.Point{1, 10}, orb.Point{2, 20}, orb.Point{3, 30}, orb.Point{4, 40}).Center()
	require.True(t, ok)
	assert.Equal(t, LatLng{Lat: 30, Lng: 3}, c)
}

func TestNavigationURL(t *testing.T) {
	u, ok := NewPoint(121.42, 23.66).NavigationURL()
	require.True(t, ok)
	assert.Equal(t, "https://www.google.com/maps/search/?api=1&query=23.66,121.42", u)

	u, ok = NewLineString(orb.Point{121.4, 23.6}, orb.Point{121.5, 23.7}).NavigationURL()
	require.True(t, ok)
	assert.Equal(t, "https://www.google.com/maps/dir/?api=1&waypoints=23.6,121.4|23.7,121.5&travelmode=walking", u)

	_, ok = NewPolygon(orb.Point{0, 0}, orb.Point{1, 0}, orb.Point{1, 1}).NavigationURL()
	assert.False(t, ok)
}

func TestGeometryMarshalRoundTripsBackendShape(t *testing.T) {
	in := `{"type":"Polygon","coordinates":[[0,0],[2,0],[2,2]]}`
	g := decodeGeometry(t, in)
	out, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))

	bad := decodeGeometry(t, `{"type":"Point","coordinates":[]}`)
	out, err = json.Marshal(bad)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Point","coordinates":[]}`, string(out))
}
