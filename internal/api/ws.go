package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"reliefmap/internal/geo"
	"reliefmap/internal/logger"
	"reliefmap/internal/mapbridge"
	"reliefmap/internal/metrics"
	"reliefmap/internal/modal"
	"reliefmap/internal/model"
	"reliefmap/internal/notify"
	"reliefmap/internal/places"
	"reliefmap/internal/reports"
	"reliefmap/internal/shell"
)

// One browser map per connection. The browser draws what it is told and
// answers geolocation requests; the server owns every piece of state.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

var errClientGone = errors.New("api: map client disconnected")

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type cameraPayload struct {
	Center model.LatLng `json:"center"`
	Zoom   int          `json:"zoom"`
}

type geoOptionsPayload struct {
	WatchID            int   `json:"watch_id,omitempty"`
	EnableHighAccuracy bool  `json:"enableHighAccuracy"`
	Timeout            int64 `json:"timeout"`
	MaximumAge         int64 `json:"maximumAge"`
}

func optionsPayload(id geo.WatchID, o geo.Options) geoOptionsPayload {
	return geoOptionsPayload{
		WatchID:            int(id),
		EnableHighAccuracy: o.HighAccuracy,
		Timeout:            o.Timeout.Milliseconds(),
		MaximumAge:         o.MaxAge.Milliseconds(),
	}
}

type positionPayload struct {
	WatchID int     `json:"watch_id,omitempty"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

type geoErrorPayload struct {
	WatchID int    `json:"watch_id,omitempty"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type permissionPayload struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

type uiPayload struct {
	ID     string `json:"id,omitempty"`
	Tab    string `json:"tab,omitempty"`
	Reason string `json:"reason,omitempty"`
	Accept bool   `json:"accept,omitempty"`
}

type geoReply struct {
	pos  model.UserPosition
	perm geo.Permission
	err  error
}

type watch struct {
	onUpdate func(model.UserPosition)
	onError  func(error)
}

// wsClient is both the map Surface and the geolocation Provider of one
// connected browser.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	camMu     sync.Mutex
	cam       *cameraPayload
	camSignal chan struct{}

	mu        sync.Mutex
	pending   map[string]chan geoReply
	watches   map[geo.WatchID]watch
	nextWatch geo.WatchID
	closed    bool
	done      chan struct{}
}

func newWSClient(conn *websocket.Conn) *wsClient {
	c := &wsClient{
		conn:      conn,
		camSignal: make(chan struct{}, 1),
		pending:   map[string]chan geoReply{},
		watches:   map[geo.WatchID]watch{},
		done:      make(chan struct{}),
	}
	go c.cameraLoop()
	return c
}

func (c *wsClient) send(typ, id string, v any) error {
	msg := wsMessage{Type: typ, ID: id}
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		msg.Payload = b
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(msg)
}

func (c *wsClient) AddFeature(f mapbridge.Feature) { _ = c.send("feature.add", "", f) }

func (c *wsClient) RemoveFeature(id string) {
	_ = c.send("feature.remove", "", map[string]string{"id": id})
}

func (c *wsClient) OpenPopup(id string) bool {
	return c.send("popup.open", "", map[string]string{"id": id}) == nil
}

// FlyTo keeps only the newest target; a move not yet written is replaced.
func (c *wsClient) FlyTo(center model.LatLng, zoom int) {
	c.camMu.Lock()
	c.cam = &cameraPayload{Center: center, Zoom: zoom}
	c.camMu.Unlock()
	select {
	case c.camSignal <- struct{}{}:
	default:
	}
}

func (c *wsClient) cameraLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.camSignal:
		}
		c.camMu.Lock()
		cam := c.cam
		c.cam = nil
		c.camMu.Unlock()
		if cam != nil {
			_ = c.send("camera.fly", "", cam)
		}
	}
}

func (c *wsClient) SetUserMarker(pos model.UserPosition) { _ = c.send("user.marker", "", pos) }

func (c *wsClient) request(ctx context.Context, typ string, payload any) (geoReply, error) {
	id := uuid.NewString()
	ch := make(chan geoReply, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return geoReply{}, errClientGone
	}
	c.pending[id] = ch
	c.mu.Unlock()
	drop := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}
	if err := c.send(typ, id, payload); err != nil {
		drop()
		return geoReply{}, err
	}
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		drop()
		return geoReply{}, ctx.Err()
	case <-c.done:
		return geoReply{}, errClientGone
	}
}

func (c *wsClient) resolve(id string, r geoReply) {
	c.mu.Lock()
	ch := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if ch != nil {
		ch <- r
	}
}

func (c *wsClient) CurrentPosition(ctx context.Context, opts geo.Options) (model.UserPosition, error) {
	r, err := c.request(ctx, "geo.request", optionsPayload(0, opts))
	if err != nil {
		return model.UserPosition{}, err
	}
	return r.pos, r.err
}

func (c *wsClient) Watch(opts geo.Options, onUpdate func(model.UserPosition), onError func(error)) (geo.WatchID, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, errClientGone
	}
	c.nextWatch++
	id := c.nextWatch
	c.watches[id] = watch{onUpdate: onUpdate, onError: onError}
	c.mu.Unlock()
	if err := c.send("geo.watch", "", optionsPayload(id, opts)); err != nil {
		c.mu.Lock()
		delete(c.watches, id)
		c.mu.Unlock()
		return 0, err
	}
	return id, nil
}

func (c *wsClient) ClearWatch(id geo.WatchID) {
	c.mu.Lock()
	_, ok := c.watches[id]
	delete(c.watches, id)
	closed := c.closed
	c.mu.Unlock()
	if ok && !closed {
		_ = c.send("geo.clear", "", map[string]int{"watch_id": int(id)})
	}
}

func (c *wsClient) PermissionState(ctx context.Context) (geo.Permission, error) {
	r, err := c.request(ctx, "geo.permission", nil)
	if err != nil {
		return "", err
	}
	return r.perm, r.err
}

func (c *wsClient) watchFor(id int) (watch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.watches[geo.WatchID(id)]
	return w, ok
}

// handleGeo routes a geolocation answer to its request or watch.
func (c *wsClient) handleGeo(msg wsMessage) {
	switch msg.Type {
	case "geo.position":
		var p positionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		pos := model.UserPosition{Lat: p.Lat, Lng: p.Lng}
		if msg.ID != "" {
			c.resolve(msg.ID, geoReply{pos: pos})
		} else if w, ok := c.watchFor(p.WatchID); ok {
			w.onUpdate(pos)
		}
	case "geo.error":
		var p geoErrorPayload
		_ = json.Unmarshal(msg.Payload, &p)
		pe := &geo.PositionError{Code: geo.ErrorCode(p.Code), Message: p.Message}
		if msg.ID != "" {
			c.resolve(msg.ID, geoReply{err: pe})
		} else if w, ok := c.watchFor(p.WatchID); ok {
			w.onError(pe)
		}
	case "geo.permission.state":
		var p permissionPayload
		_ = json.Unmarshal(msg.Payload, &p)
		r := geoReply{perm: geo.Permission(p.State)}
		if p.State == "" || p.Error != "" {
			r.err = geo.ErrPermissionUnknown
		}
		c.resolve(msg.ID, r)
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
}

// MapWSHandler handles /ws. Query parameters: session (reuse a session id)
// and geo=0 when the browser has no geolocation.
func (s *Server) MapWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	session := r.URL.Query().Get("session")
	if _, err := uuid.Parse(session); err != nil {
		session = uuid.NewString()
	}
	connID := uuid.NewString()
	log := logger.L().With("session", session, "conn", connID)

	metrics.WSClients.Inc()
	s.clients.Add(1)
	defer func() {
		metrics.WSClients.Dec()
		s.clients.Add(-1)
	}()

	c := newWSClient(conn)
	defer c.close()

	var provider geo.Provider = c
	if r.URL.Query().Get("geo") == "0" {
		provider = nil
	}
	sh := shell.New(shell.Deps{
		Places:           s.Places,
		Provider:         provider,
		Surface:          c,
		Notices:          notify.NewCenter(s.Broker, connID),
		Session:          s.Sessions.Session(session),
		Reports:          s.Reports,
		Dwell:            s.Dwell,
		SessionID:        session,
		InitDelay:        s.Config.Geo.InitDelay,
		WatchDelay:       s.Config.Geo.WatchDelay,
		RecenterInterval: s.Config.Geo.RecenterInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Notices for this connection
	notices := s.Broker.Subscribe(connID)
	defer s.Broker.Unsubscribe(connID, notices)
	go func() {
		for n := range notices {
			_ = c.send("notice", n.ID, n)
		}
	}()

	unModal := sh.Modal.OnChange(func(st modal.State) { _ = c.send("modal", "", st) })
	defer unModal()

	pushList := func() {
		g, _ := s.Places.AllGroupedByType(ctx)
		if g == nil {
			return
		}
		tab := sh.Tab()
		_ = c.send("list", "", map[string]any{"tab": tab, "label": tab.Label(), "entries": shell.Entries(g.For(tab))})
	}
	unPlaces := s.Places.OnChange(func(key string) {
		if key == places.AllKey {
			go pushList()
		}
	})
	defer unPlaces()

	_ = c.send("session", "", map[string]string{"id": session})
	sh.Mount(ctx)
	go pushList()
	log.Info("ws_client_connected", "geo", provider != nil)

	// UI actions run one at a time off the read loop.
	ui := make(chan func(), 32)
	uiDone := make(chan struct{})
	go func() {
		defer close(uiDone)
		for fn := range ui {
			fn()
		}
	}()
	enqueue := func(fn func()) {
		select {
		case ui <- fn:
		default:
			log.Warn("ws_ui_dropped")
		}
	}
	reply := func(id string, err error) {
		if err != nil && !errors.Is(err, context.Canceled) {
			_ = c.send("error", id, map[string]string{"message": err.Error()})
		}
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				if err := c.send("ping", "", nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		var p uiPayload
		if len(msg.Payload) > 0 {
			_ = json.Unmarshal(msg.Payload, &p)
		}
		switch msg.Type {
		case "ping":
			_ = c.send("pong", "", nil)
		case "pong":
		case "geo.position", "geo.error", "geo.permission.state":
			c.handleGeo(msg)
		case "ui.confirm":
			if p.Accept {
				sh.Modal.Accept()
			} else {
				sh.Modal.Decline()
			}
		case "ui.modal.close":
			sh.CloseModal()
		case "ui.modal.back":
			sh.CancelReport()
		case "ui.location.toggle":
			go func(id string) { reply(id, sh.ToggleLocation(ctx)) }(msg.ID)
		case "ui.tab":
			tab, ok := model.ParseTab(p.Tab)
			if !ok {
				reply(msg.ID, errors.New("unknown tab "+p.Tab))
				continue
			}
			enqueue(func() {
				sh.SetTab(tab)
				pushList()
			})
		case "ui.list.page", "ui.list.more":
			id, more := msg.ID, msg.Type == "ui.list.more"
			enqueue(func() {
				page, err := sh.ListPage(ctx, more)
				_ = c.send("list.page", id, page)
				reply(id, err)
			})
		case "ui.refresh":
			id := msg.ID
			enqueue(func() { reply(id, sh.Refresh(ctx)) })
		case "ui.select":
			id := msg.ID
			enqueue(func() { reply(id, sh.SelectFromList(p.ID)) })
		case "ui.detail":
			id := msg.ID
			enqueue(func() { reply(id, sh.ShowDetail(p.ID)) })
		case "ui.report.open":
			id := msg.ID
			enqueue(func() { reply(id, sh.OpenReportFor(p.ID)) })
		case "ui.report.submit":
			id := msg.ID
			enqueue(func() {
				err := sh.SubmitReport(ctx, p.Reason)
				switch {
				case errors.Is(err, reports.ErrReasonRequired):
					_ = c.send("report.invalid", id, map[string]string{"message": "請填寫問題原因"})
				case err == nil:
					_ = c.send("report.submitted", id, nil)
				}
			})
		default:
			// ignore
		}
	}

	cancel()
	close(ui)
	<-uiDone
	sh.Unmount()
	log.Info("ws_client_disconnected")
}
