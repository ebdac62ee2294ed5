package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reliefmap/internal/config"
	"reliefmap/internal/feeds"
)

const placesJSON = `{"@context":"https://schema.org","@type":"Collection","member":[
	{"id":"a","name":"避難所A","type":"避難","address":"光復鄉中正路","coordinates":{"type":"Point","coordinates":[121.4,23.66]}},
	{"id":"b","name":"醫療站B","type":"醫療","coordinates":null}
],"next":null,"totalItems":2,"limit":50,"offset":0}`

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/places" {
			w.WriteHeader(404)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(placesJSON))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.APIBaseURL = newBackend(t).URL
	cfg.Geo.InitDelay = 10 * time.Millisecond
	cfg.Geo.WatchDelay = 10 * time.Millisecond
	cfg.Geo.RecenterInterval = -1
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	mux := http.NewServeMux()
	s.Routes(mux)
	hs := httptest.NewServer(LogMiddleware(mux))
	t.Cleanup(hs.Close)
	return s, hs
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func TestHealthReady(t *testing.T) {
	_, hs := newTestServer(t, nil)
	assert.Equal(t, 200, getJSON(t, hs.URL+"/healthz", nil))
	var ready map[string]string
	assert.Equal(t, 200, getJSON(t, hs.URL+"/readyz", &ready))
	assert.Equal(t, "ready", ready["status"])
	assert.Equal(t, 200, getJSON(t, hs.URL+"/debug/vars", nil))
}

func TestPlacesHandler(t *testing.T) {
	_, hs := newTestServer(t, nil)

	var all placesResponse
	require.Equal(t, 200, getJSON(t, hs.URL+"/v1/places", &all))
	assert.Equal(t, 2, all.Total)
	assert.Equal(t, "全部", all.Label)

	var medical placesResponse
	require.Equal(t, 200, getJSON(t, hs.URL+"/v1/places?tab=medical", &medical))
	require.Len(t, medical.Entries, 1)
	assert.Equal(t, "b", medical.Entries[0].ID)
	assert.Equal(t, "未提供地址", medical.Entries[0].Address)
	assert.False(t, medical.Entries[0].OnMap)
	assert.Empty(t, medical.Entries[0].NavigateURL)

	assert.Equal(t, 400, getJSON(t, hs.URL+"/v1/places?tab=casino", nil))

	var grouped struct {
		Total  int          `json:"total"`
		Groups []groupCount `json:"groups"`
	}
	require.Equal(t, 200, getJSON(t, hs.URL+"/v1/places/grouped", &grouped))
	assert.Equal(t, 2, grouped.Total)
	assert.Len(t, grouped.Groups, 10)
}

func TestFeedHandler(t *testing.T) {
	_, hs := newTestServer(t, nil)
	assert.Equal(t, 503, getJSON(t, hs.URL+"/v1/feeds/faq", nil))
	assert.Equal(t, 404, getJSON(t, hs.URL+"/v1/feeds/weather", nil))

	var idx map[string][]string
	require.Equal(t, 200, getJSON(t, hs.URL+"/v1/feeds", &idx))
	assert.Contains(t, idx["feeds"], "faq")
}

func TestFeedHandlerHTMLSheetHasNoData(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body>Sign in</body></html>"))
	}))
	defer page.Close()
	s, hs := newTestServer(t, nil)
	s.Feeds[feeds.FAQName] = feeds.Section[[]feeds.FAQ]{Sheet: feeds.Sheet{Name: feeds.FAQName, URL: page.URL}, Decode: feeds.DecodeFAQ}

	var got struct {
		Name    string      `json:"name"`
		Data    []feeds.FAQ `json:"data"`
		HasData bool        `json:"has_data"`
	}
	require.Equal(t, 200, getJSON(t, hs.URL+"/v1/feeds/faq", &got))
	assert.Equal(t, feeds.FAQName, got.Name)
	assert.False(t, got.HasData)
	assert.NotNil(t, got.Data)
	assert.Empty(t, got.Data)
}

func pagedBackend(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if q := r.URL.Query(); q.Get("page") == "2" || q.Get("type") == "加水" {
			_, _ = w.Write([]byte(`{"member":[{"id":"c","name":"加水站C","type":"加水","coordinates":null}],"next":null}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"member":[{"id":"a","name":"避難所A","type":"避難","coordinates":null}],"next":%q}`, srv.URL+"/places?page=2")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func TestPagedPlaces(t *testing.T) {
	backend := pagedBackend(t)
	_, hs := newTestServer(t, func(c *config.Config) { c.APIBaseURL = backend.URL })

	var first placesResponse
	require.Equal(t, 200, getJSON(t, hs.URL+"/v1/places?paged=1", &first))
	assert.Equal(t, 1, first.Total)
	require.NotNil(t, first.HasNextPage)
	assert.True(t, *first.HasNextPage)

	var more placesResponse
	require.Equal(t, 200, getJSON(t, hs.URL+"/v1/places?more=1", &more))
	assert.Equal(t, 2, more.Total)
	require.NotNil(t, more.HasNextPage)
	assert.False(t, *more.HasNextPage)

	var end placesResponse
	require.Equal(t, 200, getJSON(t, hs.URL+"/v1/places?more=1", &end))
	assert.Equal(t, 2, end.Total)

	var water placesResponse
	require.Equal(t, 200, getJSON(t, hs.URL+"/v1/places?tab=water&more=1", &water))
	require.Len(t, water.Entries, 1)
	assert.Equal(t, "c", water.Entries[0].ID)
}

func TestPlacesRefresh(t *testing.T) {
	backend := pagedBackend(t)
	_, hs := newTestServer(t, func(c *config.Config) { c.APIBaseURL = backend.URL })

	assert.Equal(t, 405, getJSON(t, hs.URL+"/v1/places/refresh", nil))

	var got placesResponse
	require.Equal(t, 200, postJSON(t, hs.URL+"/v1/places/refresh", &got))
	assert.Equal(t, 2, got.Total)

	var hard placesResponse
	require.Equal(t, 200, postJSON(t, hs.URL+"/v1/places/refresh?hard=1", &hard))
	assert.Equal(t, 2, hard.Total)
	assert.Empty(t, hard.Error)
}

func TestDwellHandler(t *testing.T) {
	_, hs := newTestServer(t, nil)
	assert.Equal(t, 200, getJSON(t, hs.URL+"/v1/analytics/dwell?since=1h", nil))
	assert.Equal(t, 400, getJSON(t, hs.URL+"/v1/analytics/dwell?since=yesterday", nil))
}

// wsPeer is the test side of a map surface connection.
type wsPeer struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, hs *httptest.Server, query string) *wsPeer {
	t.Helper()
	u := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &wsPeer{t: t, conn: conn}
}

// until reads messages until one of type typ satisfies match.
func (p *wsPeer) until(typ string, match func(wsMessage) bool) wsMessage {
	p.t.Helper()
	_ = p.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg wsMessage
		require.NoError(p.t, p.conn.ReadJSON(&msg), "waiting for %s", typ)
		if msg.Type == typ && (match == nil || match(msg)) {
			return msg
		}
	}
}

func (p *wsPeer) send(typ, id string, payload any) {
	p.t.Helper()
	msg := wsMessage{Type: typ, ID: id}
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(p.t, err)
		msg.Payload = b
	}
	require.NoError(p.t, p.conn.WriteJSON(msg))
}

func payloadOf(t *testing.T, msg wsMessage) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &m))
	return m
}

func TestMapSurfaceScenario(t *testing.T) {
	_, hs := newTestServer(t, func(c *config.Config) { c.Geo.InitDelay = time.Hour })
	p := dial(t, hs, "?geo=0")

	p.until("session", nil)
	add := p.until("feature.add", nil)
	f := payloadOf(t, add)
	assert.Equal(t, "a", f["id"])
	assert.Equal(t, "marker", f["kind"])

	p.send("ui.select", "r1", map[string]string{"id": "b"})
	m := p.until("modal", nil)
	st := payloadOf(t, m)
	require.Equal(t, "detail", st["kind"])
	place := st["detail"].(map[string]any)["place"].(map[string]any)
	assert.Equal(t, "b", place["id"])
	assert.Nil(t, place["coordinates"])

	p.send("ui.select", "r2", map[string]string{"id": "a"})
	cam := payloadOf(t, p.until("camera.fly", nil))
	assert.EqualValues(t, 15, cam["zoom"])
	p.until("popup.open", nil)

	p.send("ui.modal.close", "", nil)
	p.until("modal", func(m wsMessage) bool { return payloadOf(t, m)["kind"] == "none" })
}

func TestMapSurfaceListPages(t *testing.T) {
	backend := pagedBackend(t)
	_, hs := newTestServer(t, func(c *config.Config) {
		c.APIBaseURL = backend.URL
		c.Geo.InitDelay = time.Hour
	})
	p := dial(t, hs, "?geo=0")
	p.until("session", nil)

	p.send("ui.list.page", "l1", nil)
	first := payloadOf(t, p.until("list.page", func(m wsMessage) bool { return m.ID == "l1" }))
	assert.Len(t, first["entries"], 1)
	assert.Equal(t, true, first["has_next_page"])

	p.send("ui.list.more", "l2", nil)
	more := payloadOf(t, p.until("list.page", func(m wsMessage) bool { return m.ID == "l2" }))
	assert.Len(t, more["entries"], 2)
	assert.Equal(t, false, more["has_next_page"])

	p.send("ui.refresh", "r1", nil)
	p.send("ui.list.page", "l3", nil)
	again := payloadOf(t, p.until("list.page", func(m wsMessage) bool { return m.ID == "l3" }))
	assert.Len(t, again["entries"], 2)
}

func TestMapSurfaceWithoutGeolocationWarns(t *testing.T) {
	_, hs := newTestServer(t, nil)
	p := dial(t, hs, "?geo=0")
	n := payloadOf(t, p.until("notice", nil))
	assert.Equal(t, "warning", n["level"])
	assert.Equal(t, "您的瀏覽器不支援定位功能", n["message"])
}

func TestMapSurfacePermissionFlow(t *testing.T) {
	_, hs := newTestServer(t, nil)
	p := dial(t, hs, "")

	perm := p.until("geo.permission", nil)
	p.send("geo.permission.state", perm.ID, permissionPayload{State: "prompt"})

	p.until("modal", func(m wsMessage) bool { return payloadOf(t, m)["kind"] == "confirm" })
	p.send("ui.confirm", "", map[string]bool{"accept": true})

	req := p.until("geo.request", nil)
	p.send("geo.position", req.ID, positionPayload{Lat: 23.66, Lng: 121.42})
	p.until("user.marker", nil)

	w := payloadOf(t, p.until("geo.watch", nil))
	watchID := int(w["watch_id"].(float64))
	p.until("notice", func(m wsMessage) bool { return payloadOf(t, m)["message"] == "已開啟實時位置追蹤" })
	p.send("geo.position", "", positionPayload{WatchID: watchID, Lat: 23.67, Lng: 121.43})
	marker := payloadOf(t, p.until("user.marker", func(m wsMessage) bool { return payloadOf(t, m)["lat"] == 23.67 }))
	assert.Equal(t, 121.43, marker["lng"])

	p.send("ui.location.toggle", "t1", nil)
	cleared := payloadOf(t, p.until("geo.clear", nil))
	assert.EqualValues(t, watchID, cleared["watch_id"])
}
