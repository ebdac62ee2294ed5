package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// GeometryKind is the backend's coordinates.type tag.
type GeometryKind string

const (
	KindPoint      GeometryKind = "Point"
	KindPolygon    GeometryKind = "Polygon"
	KindLineString GeometryKind = "LineString"
)

// LatLng is a WGS84 position in map (lat, lng) order.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// UserPosition is the latest fix reported by the geolocation provider.
type UserPosition = LatLng

func latLngOf(p orb.Point) LatLng { return LatLng{Lat: p.Lat(), Lng: p.Lon()} }

// Point converts to an orb point (lng, lat order).
func (l LatLng) Point() orb.Point { return orb.Point{l.Lng, l.Lat} }

// Geometry is a place's coordinates. Exactly one of Point, Ring or Line is
// meaningful, selected by Kind. Malformed input decodes without error into a
// geometry that is not Renderable.
type Geometry struct {
	Kind  GeometryKind
	Point orb.Point
	// Ring holds the polygon vertices as sent by the backend; it may or may
	// not repeat the first vertex at the end.
	Ring orb.Ring
	Line orb.LineString

	valid bool
	raw   json.RawMessage
}

// NewPoint builds a valid point geometry.
func NewPoint(lng, lat float64) *Geometry {
	g := &Geometry{Kind: KindPoint, Point: orb.Point{lng, lat}}
	g.valid = g.validate()
	return g
}

// NewPolygon builds a polygon from [lng,lat] vertices.
func NewPolygon(ring ...orb.Point) *Geometry {
	g := &Geometry{Kind: KindPolygon, Ring: orb.Ring(ring)}
	g.valid = g.validate()
	return g
}

// NewLineString builds a line string from [lng,lat] vertices.
func NewLineString(pts ...orb.Point) *Geometry {
	g := &Geometry{Kind: KindLineString, Line: orb.LineString(pts)}
	g.valid = g.validate()
	return g
}

type wireGeometry struct {
	Type        GeometryKind    `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// UnmarshalJSON decodes {type, coordinates}. It never fails: any other
// shape ([], "", a bare array) is kept as raw bytes and is not Renderable.
func (g *Geometry) UnmarshalJSON(b []byte) error {
	*g = Geometry{raw: append(json.RawMessage(nil), b...)}
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		g.raw = nil
		return nil
	}
	var w wireGeometry
	if json.Unmarshal(b, &w) != nil {
		return nil
	}
	g.Kind = w.Type
	switch w.Type {
	case KindPoint:
		var c []float64
		if json.Unmarshal(w.Coordinates, &c) != nil || len(c) < 2 {
			return nil
		}
		g.Point = orb.Point{c[0], c[1]}
	case KindPolygon:
		pts, ok := decodePositions(w.Coordinates)
		if !ok {
			return nil
		}
		g.Ring = orb.Ring(pts)
	case KindLineString:
		pts, ok := decodePositions(w.Coordinates)
		if !ok {
			return nil
		}
		g.Line = orb.LineString(pts)
	default:
		return nil
	}
	g.valid = g.validate()
	return nil
}

// decodePositions reads a flat [[lng,lat],...] array. A GeoJSON style
// nested ring ([[[lng,lat],...]]) is accepted too by taking the outer ring.
func decodePositions(raw json.RawMessage) ([]orb.Point, bool) {
	var flat [][]float64
	if err := json.Unmarshal(raw, &flat); err != nil {
		var nested [][][]float64
		if json.Unmarshal(raw, &nested) != nil || len(nested) == 0 {
			return nil, false
		}
		flat = nested[0]
	}
	pts := make([]orb.Point, 0, len(flat))
	for _, c := range flat {
		if len(c) < 2 {
			return nil, false
		}
		pts = append(pts, orb.Point{c[0], c[1]})
	}
	return pts, true
}

// MarshalJSON writes the backend form. Invalid geometries round-trip their
// input bytes.
func (g Geometry) MarshalJSON() ([]byte, error) {
	if !g.valid {
		if len(g.raw) > 0 {
			return g.raw, nil
		}
		return []byte("null"), nil
	}
	w := struct {
		Type        GeometryKind `json:"type"`
		Coordinates any          `json:"coordinates"`
	}{Type: g.Kind}
	switch g.Kind {
	case KindPoint:
		w.Coordinates = [2]float64{g.Point[0], g.Point[1]}
	case KindPolygon:
		w.Coordinates = positions(g.Ring)
	case KindLineString:
		w.Coordinates = positions(g.Line)
	}
	return json.Marshal(w)
}

func positions(pts []orb.Point) [][2]float64 {
	out := make([][2]float64, len(pts))
	for i, p := range pts {
		out[i] = [2]float64{p[0], p[1]}
	}
	return out
}

func validPoint(p orb.Point) bool {
	lng, lat := p[0], p[1]
	if math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func (g *Geometry) validate() bool {
	switch g.Kind {
	case KindPoint:
		return validPoint(g.Point)
	case KindPolygon:
		distinct := map[orb.Point]struct{}{}
		for _, p := range g.Ring {
			if !validPoint(p) {
				return false
			}
			distinct[p] = struct{}{}
		}
		return len(distinct) >= 3
	case KindLineString:
		if len(g.Line) < 2 {
			return false
		}
		for _, p := range g.Line {
			if !validPoint(p) {
				return false
			}
		}
		return true
	}
	return false
}

// Renderable reports whether the geometry can be drawn on the map.
func (g *Geometry) Renderable() bool { return g != nil && g.valid }

// ClosedRing returns the polygon ring with the first vertex repeated at the end.
func (g *Geometry) ClosedRing() orb.Ring {
	if len(g.Ring) == 0 {
		return nil
	}
	r := append(orb.Ring(nil), g.Ring...)
	if !r.Closed() {
		r = append(r, r[0])
	}
	return r
}

// Center is the camera target for the geometry: the point itself, the
// vertex mean of a polygon, or the middle vertex of a line string.
func (g *Geometry) Center() (LatLng, bool) {
	if !g.Renderable() {
		return LatLng{}, false
	}
	switch g.Kind {
	case KindPoint:
		return latLngOf(g.Point), true
	case KindPolygon:
		var sumLng, sumLat float64
		for _, p := range g.Ring {
			sumLng += p[0]
			sumLat += p[1]
		}
		n := float64(len(g.Ring))
		return LatLng{Lat: sumLat / n, Lng: sumLng / n}, true
	case KindLineString:
		return latLngOf(g.Line[len(g.Line)/2]), true
	}
	return LatLng{}, false
}

// Bound is the bounding box of the geometry.
func (g *Geometry) Bound() orb.Bound {
	switch g.Kind {
	case KindPolygon:
		return g.Ring.Bound()
	case KindLineString:
		return g.Line.Bound()
	}
	return g.Point.Bound()
}

// VertexCount is the number of coordinates, used in list captions.
func (g *Geometry) VertexCount() int {
	if g == nil {
		return 0
	}
	switch g.Kind {
	case KindPoint:
		return 1
	case KindPolygon:
		return len(g.Ring)
	case KindLineString:
		return len(g.Line)
	}
	return 0
}

// Orb returns the geometry as an orb value for GeoJSON encoding.
func (g *Geometry) Orb() orb.Geometry {
	switch g.Kind {
	case KindPoint:
		return g.Point
	case KindPolygon:
		return orb.Polygon{g.ClosedRing()}
	case KindLineString:
		return g.Line
	}
	return nil
}

func formatCoord(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// NavigationURL returns an external maps link: a search for points and
// walking directions through every vertex for line strings. Polygons have none.
func (g *Geometry) NavigationURL() (string, bool) {
	if !g.Renderable() {
		return "", false
	}
	switch g.Kind {
	case KindPoint:
		return "https://www.google.com/maps/search/?api=1&query=" +
			formatCoord(g.Point.Lat()) + "," + formatCoord(g.Point.Lon()), true
	case KindLineString:
		wps := make([]string, len(g.Line))
		for i, p := range g.Line {
			wps[i] = formatCoord(p.Lat()) + "," + formatCoord(p.Lon())
		}
		return "https://www.google.com/maps/dir/?api=1&waypoints=" +
			strings.Join(wps, "|") + "&travelmode=walking", true
	}
	return "", false
}
