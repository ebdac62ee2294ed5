// Package shell wires the place cache, map layer, geolocation tracker and
// modal controller for one connected map client.
package shell

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reliefmap/internal/analytics"
	"reliefmap/internal/geo"
	"reliefmap/internal/logger"
	"reliefmap/internal/mapbridge"
	"reliefmap/internal/modal"
	"reliefmap/internal/model"
	"reliefmap/internal/notify"
	"reliefmap/internal/places"
	"reliefmap/internal/reports"
)

// DefaultInitDelay is the pause between mount and the permission flow.
const DefaultInitDelay = 1500 * time.Millisecond

var ErrUnknownPlace = errors.New("shell: unknown place")

// Deps are the collaborators of a Shell. Places and Surface are required.
type Deps struct {
	Places   *places.Repository
	Provider geo.Provider
	Surface  mapbridge.Surface
	Notices  notify.Notifier
	Session  geo.SessionStore
	Reports  reports.Submitter
	Dwell    analytics.Sink
	// SessionID tags dwell records.
	SessionID string

	InitDelay        time.Duration
	WatchDelay       time.Duration
	RecenterInterval time.Duration
}

// Shell is the interaction layer of one client.
type Shell struct {
	repo    *places.Repository
	reports reports.Submitter
	notices notify.Notifier
	dwell   *analytics.Tracker

	Modal   *modal.Controller
	Layer   *mapbridge.Layer
	Tracker *geo.Tracker

	initDelay time.Duration

	renderMu    sync.Mutex
	mu          sync.Mutex
	tab         model.Tab
	grouped     places.Grouped
	reportInput string
	cancel      context.CancelFunc
	initTimer   *time.Timer
	unsubscribe func()
	mounted     bool
}

func New(d Deps) *Shell {
	if d.Notices == nil {
		d.Notices = notify.NotifierFunc(func(notify.Level, string) {})
	}
	if d.InitDelay <= 0 {
		d.InitDelay = DefaultInitDelay
	}
	if d.Dwell == nil {
		d.Dwell = analytics.NewMemory()
	}
	var layerOpts []mapbridge.LayerOption
	if d.RecenterInterval != 0 {
		layerOpts = append(layerOpts, mapbridge.WithRecenterInterval(d.RecenterInterval))
	}
	s := &Shell{
		repo:      d.Places,
		reports:   d.Reports,
		notices:   d.Notices,
		dwell:     analytics.NewTracker(d.Dwell, d.SessionID),
		Modal:     modal.New(),
		Layer:     mapbridge.NewLayer(d.Surface, layerOpts...),
		initDelay: d.InitDelay,
		tab:       model.TabAll,
	}
	s.Tracker = geo.NewTracker(geo.Config{
		Provider: d.Provider,
		Confirm:  s.Modal,
		Notices:  d.Notices,
		Session:  d.Session,
		OnPosition: func(pos model.UserPosition) {
			s.Layer.SyncUserMarker(pos, true)
		},
		WatchDelay: d.WatchDelay,
	})
	return s
}

// Mount starts loading places and schedules the permission flow.
func (s *Shell) Mount(ctx context.Context) {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return
	}
	s.mounted = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.unsubscribe = s.repo.OnChange(func(key string) {
		if key == places.AllKey {
			s.syncFromCache(nil)
		}
	})
	s.initTimer = time.AfterFunc(s.initDelay, func() {
		if err := s.Tracker.InitPermissionFlow(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Warn("geo_init_failed", "err", err)
		}
	})
	s.mu.Unlock()

	s.dwell.Enter(string(model.TabAll))
	go s.Load(ctx)
}

// Load reads the grouped places and renders them. A failure is reported as
// an error notice and any previously rendered data stays.
func (s *Shell) Load(ctx context.Context) error {
	g, err := s.repo.AllGroupedByType(ctx)
	if g != nil {
		s.syncFromCache(g)
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, places.ErrClosed) {
		logger.L().Warn("shell_load_failed", "err", err)
		s.notices.Notify(notify.Error, "地點資料載入失敗，請稍後再試")
	}
	return err
}

// Refresh refetches every place, superseding a fetch in flight. A failure
// keeps the rendered data and is reported as an error notice.
func (s *Shell) Refresh(ctx context.Context) error {
	g, err := s.repo.Refresh(ctx)
	if g != nil {
		s.syncFromCache(g)
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, places.ErrClosed) {
		logger.L().Warn("shell_refresh_failed", "err", err)
		s.notices.Notify(notify.Error, "地點資料載入失敗，請稍後再試")
	}
	return err
}

// syncFromCache renders the newest cached read, or fallback when the cache
// has none.
func (s *Shell) syncFromCache(fallback places.Grouped) {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	st := s.repo.GroupedState()
	g := fallback
	if st.HasData {
		g = st.Data
	}
	if g == nil {
		return
	}
	s.mu.Lock()
	s.grouped = g
	s.mu.Unlock()
	s.Layer.Render(g.Flat())
}

// Tab returns the active tab.
func (s *Shell) Tab() model.Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tab
}

// SetTab switches the visible category on the map and in dwell tracking.
func (s *Shell) SetTab(tab model.Tab) {
	s.mu.Lock()
	s.tab = tab
	s.mu.Unlock()
	s.Layer.SetTab(tab)
	s.dwell.Enter(string(tab))
}

// Counts returns the number of places per type.
func (s *Shell) Counts() map[model.PlaceType]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grouped.Counts()
}

func (s *Shell) find(id string) (model.Place, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grouped.Find(id)
}

// SelectFromList flies to a renderable place and opens its popup. Places
// without a drawable geometry open the detail dialog instead.
func (s *Shell) SelectFromList(id string) error {
	p, ok := s.find(id)
	if !ok {
		return ErrUnknownPlace
	}
	center, ok := p.Center()
	if !ok {
		return s.ShowDetail(id)
	}
	s.Layer.FlyTo(center, mapbridge.NeighborhoodZoom)
	s.Layer.OpenPopupFor(p.ID)
	return nil
}

// ShowDetail opens the detail dialog for a place.
func (s *Shell) ShowDetail(id string) error {
	p, ok := s.find(id)
	if !ok {
		return ErrUnknownPlace
	}
	s.Modal.OpenDetail(modal.DetailData{Type: p.Type.Label(), Name: p.DisplayName(), Place: p})
	return nil
}

// OpenReportFor opens the report form for a place, keeping any open
// detail to return to.
func (s *Shell) OpenReportFor(id string) error {
	p, ok := s.find(id)
	if !ok {
		return ErrUnknownPlace
	}
	s.mu.Lock()
	s.reportInput = ""
	s.mu.Unlock()
	s.Modal.OpenReport(modal.ReportData{Category: string(p.Type), ID: p.ID, Name: p.Name})
	return nil
}

// ReportInput is the reason kept in the form after a failed submit.
func (s *Shell) ReportInput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportInput
}

// SubmitReport sends the open report. A blank reason returns
// reports.ErrReasonRequired without a request. On failure the form stays
// open with its input and an error notice is emitted.
func (s *Shell) SubmitReport(ctx context.Context, reason string) error {
	st := s.Modal.Snapshot()
	if st.Kind != modal.KindReport || st.Report == nil {
		return errors.New("shell: no report form open")
	}
	s.mu.Lock()
	s.reportInput = reason
	s.mu.Unlock()
	req, err := reports.NewRequest(st.Report.Category, st.Report.ID, st.Report.Name, reason)
	if err != nil {
		return err
	}
	if s.reports == nil {
		s.notices.Notify(notify.Error, "提交失敗，請稍後再試")
		return fmt.Errorf("shell: %w", reports.ErrNotConfigured)
	}
	if _, err := s.reports.Submit(ctx, req); err != nil {
		logger.L().Warn("report_submit_failed", "place_id", req.LocationID, "err", err)
		s.notices.Notify(notify.Error, "提交失敗，請稍後再試")
		return err
	}
	s.mu.Lock()
	s.reportInput = ""
	s.mu.Unlock()
	s.notices.Notify(notify.Success, "感謝您的回報")
	s.Modal.CloseAndReturn()
	return nil
}

// CancelReport leaves the report form for the detail it came from.
func (s *Shell) CancelReport() { s.Modal.CloseAndReturn() }

// CloseModal hides every dialog.
func (s *Shell) CloseModal() { s.Modal.Close() }

// ToggleLocation starts a confirmed watch or stops the active one.
func (s *Shell) ToggleLocation(ctx context.Context) error {
	if s.Tracker.Watching() {
		s.Tracker.StopWatching()
		return nil
	}
	return s.Tracker.StartWatching(ctx, true)
}

// Unmount stops tracking, abandons pending loads and flushes dwell
// tracking. The shared repository stays open.
func (s *Shell) Unmount() {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return
	}
	s.mounted = false
	if s.initTimer != nil {
		s.initTimer.Stop()
	}
	cancel, unsub := s.cancel, s.unsubscribe
	s.mu.Unlock()

	cancel()
	unsub()
	s.Tracker.Close()
	s.Layer.Stop()
	s.Modal.Close()
	s.dwell.Flush()
}
