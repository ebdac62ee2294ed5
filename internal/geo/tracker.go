package geo

import (
	"context"
	"sync"
	"time"

	"reliefmap/internal/logger"
	"reliefmap/internal/metrics"
	"reliefmap/internal/model"
	"reliefmap/internal/notify"
)

// Confirmer asks the user a yes/no question and blocks for the answer.
type Confirmer interface {
	Confirm(ctx context.Context, title, message string) (bool, error)
}

// State is the tracker's lifecycle position.
type State string

const (
	StateIdle     State = "idle"
	StatePending  State = "permission_pending"
	StateGranted  State = "granted"
	StateWatching State = "watching"
	StateStopped  State = "stopped"
	StateDeclined State = "declined"
	StateDenied   State = "denied"
)

// DefaultWatchDelay separates the permission grant from the watch start.
const DefaultWatchDelay = time.Second

// Config wires a Tracker. Provider may be nil when the client has no
// geolocation capability.
type Config struct {
	Provider Provider
	Confirm  Confirmer
	Notices  notify.Notifier
	Session  SessionStore
	// OnPosition receives every fix, one-shot or watched.
	OnPosition func(model.UserPosition)
	WatchDelay time.Duration
}

// Tracker is the permission and tracking state machine for one client.
type Tracker struct {
	provider   Provider
	confirm    Confirmer
	notices    notify.Notifier
	session    SessionStore
	onPosition func(model.UserPosition)
	watchDelay time.Duration

	mu            sync.Mutex
	state         State
	position      *model.UserPosition
	hasPermission bool
	starting      bool
	watching      bool
	watchID       WatchID
	watchTimer    *time.Timer
	closed        bool
}

func NewTracker(cfg Config) *Tracker {
	if cfg.Notices == nil {
		cfg.Notices = notify.NotifierFunc(func(notify.Level, string) {})
	}
	if cfg.Session == nil {
		cfg.Session = &MemorySession{}
	}
	if cfg.WatchDelay <= 0 {
		cfg.WatchDelay = DefaultWatchDelay
	}
	return &Tracker{
		provider:   cfg.Provider,
		confirm:    cfg.Confirm,
		notices:    cfg.Notices,
		session:    cfg.Session,
		onPosition: cfg.OnPosition,
		watchDelay: cfg.WatchDelay,
		state:      StateIdle,
	}
}

// State returns the lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Position returns the latest fix.
func (t *Tracker) Position() (model.UserPosition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.position == nil {
		return model.UserPosition{}, false
	}
	return *t.position, true
}

// HasPermission reports whether the last one-shot request succeeded.
func (t *Tracker) HasPermission() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasPermission
}

// Watching reports whether a watch is active.
func (t *Tracker) Watching() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.watching
}

func (t *Tracker) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Tracker) publish(pos model.UserPosition) {
	t.mu.Lock()
	p := pos
	t.position = &p
	fn := t.onPosition
	t.mu.Unlock()
	if fn != nil {
		fn(pos)
	}
}

// RequestOnce asks for a single fix. Failures are reported as an error
// notice and returned.
func (t *Tracker) RequestOnce(ctx context.Context) (model.UserPosition, error) {
	if t.provider == nil {
		t.notices.Notify(notify.Error, unsupportedMessage)
		return model.UserPosition{}, ErrUnsupported
	}
	t.mu.Lock()
	if t.state == StateIdle || t.state == StateDeclined {
		t.state = StatePending
	}
	t.mu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, OnceOptions.Timeout)
	defer cancel()
	pos, err := t.provider.CurrentPosition(rctx, OnceOptions)
	if err != nil {
		pe := AsPositionError(err)
		metrics.GeoErrors.WithLabelValues(pe.Code.String()).Inc()
		logger.L().Info("geo_request_failed", "code", pe.Code.String(), "err", err)
		t.mu.Lock()
		t.hasPermission = false
		if pe.Code == CodePermissionDenied {
			t.state = StateDenied
		} else if t.state == StatePending {
			t.state = StateIdle
		}
		t.mu.Unlock()
		t.notices.Notify(notify.Error, pe.UserMessage())
		return model.UserPosition{}, pe
	}
	t.mu.Lock()
	t.hasPermission = true
	if !t.watching {
		t.state = StateGranted
	}
	t.mu.Unlock()
	t.publish(pos)
	return pos, nil
}

// StartWatching begins continuous tracking. With requireConfirmation the
// user is asked first; declining leaves tracking off. Calling it while a
// watch is active or starting is a no-op.
func (t *Tracker) StartWatching(ctx context.Context, requireConfirmation bool) error {
	if t.provider == nil {
		return ErrUnsupported
	}
	if t.busy() {
		return nil
	}
	if requireConfirmation && t.confirm != nil {
		ok, err := t.confirm.Confirm(ctx, "位置追蹤確認", "是否開啟實時位置追蹤？這將持續更新您在地圖上的位置。")
		if err != nil {
			return err
		}
		if !ok {
			t.notices.Notify(notify.Info, "已取消位置追蹤")
			return nil
		}
	}

	t.mu.Lock()
	if t.closed || t.starting || t.watching {
		t.mu.Unlock()
		return nil
	}
	t.starting = true
	t.mu.Unlock()

	id, err := t.provider.Watch(WatchOptions, t.handleUpdate, t.handleWatchError)

	t.mu.Lock()
	t.starting = false
	if err != nil {
		t.mu.Unlock()
		pe := AsPositionError(err)
		metrics.GeoErrors.WithLabelValues(pe.Code.String()).Inc()
		t.notices.Notify(notify.Error, "位置追蹤失敗")
		return err
	}
	if t.closed {
		t.mu.Unlock()
		t.provider.ClearWatch(id)
		return nil
	}
	t.watching = true
	t.watchID = id
	t.state = StateWatching
	t.mu.Unlock()

	metrics.GeoWatches.Inc()
	logger.L().Info("geo_watch_started", "watch_id", int(id))
	t.notices.Notify(notify.Success, "已開啟實時位置追蹤")
	return nil
}

func (t *Tracker) busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.starting || t.watching || t.closed
}

func (t *Tracker) handleUpdate(pos model.UserPosition) {
	t.mu.Lock()
	active := t.watching
	t.mu.Unlock()
	if !active {
		return
	}
	t.publish(pos)
}

func (t *Tracker) handleWatchError(err error) {
	pe := AsPositionError(err)
	metrics.GeoErrors.WithLabelValues(pe.Code.String()).Inc()
	logger.L().Warn("geo_watch_error", "code", pe.Code.String(), "err", err)
	if t.stop(true) {
		t.notices.Notify(notify.Error, "位置追蹤失敗")
	}
}

// StopWatching ends tracking. It is safe to call when not watching.
func (t *Tracker) StopWatching() {
	t.stop(true)
}

func (t *Tracker) stop(announce bool) bool {
	t.mu.Lock()
	if !t.watching {
		t.mu.Unlock()
		return false
	}
	id := t.watchID
	t.watching = false
	t.state = StateStopped
	t.mu.Unlock()

	t.provider.ClearWatch(id)
	metrics.GeoWatches.Dec()
	logger.L().Info("geo_watch_stopped", "watch_id", int(id))
	if announce {
		t.notices.Notify(notify.Info, "已停止位置追蹤")
	}
	return true
}

// InitPermissionFlow runs the first-visit flow: skip when the user already
// declined this session, warn when the browser has denied access, otherwise
// ask, take one fix and start watching after a short delay.
func (t *Tracker) InitPermissionFlow(ctx context.Context) error {
	declined, err := t.session.Declined(ctx)
	if err != nil {
		logger.L().Warn("geo_session_error", "err", err)
	}
	if declined {
		t.setState(StateDeclined)
		return nil
	}
	if t.provider == nil {
		t.notices.Notify(notify.Warning, unsupportedMessage)
		return nil
	}
	perm, err := t.provider.PermissionState(ctx)
	switch {
	case err == nil && perm == Denied:
		t.setState(StateDenied)
		t.notices.Notify(notify.Warning, "地理位置權限已被拒絕，請在瀏覽器設置中允許位置訪問")
		return nil
	case err != nil:
		logger.L().Debug("geo_permission_query_failed", "err", err)
	}

	t.setState(StatePending)
	if t.confirm != nil {
		ok, err := t.confirm.Confirm(ctx, "位置權限請求", "此網站想要取得您的位置資訊並開啟實時位置追蹤，是否允許？\n這將幫助您在地圖上看到自己的位置並保持更新。")
		if err != nil {
			t.setState(StateIdle)
			return err
		}
		if !ok {
			t.setState(StateDeclined)
			t.notices.Notify(notify.Info, "已取消位置權限請求")
			if err := t.session.MarkDeclined(ctx); err != nil {
				logger.L().Warn("geo_session_error", "err", err)
			}
			return nil
		}
	}

	t.notices.Notify(notify.Info, "正在獲取位置權限...")
	if _, err := t.RequestOnce(ctx); err != nil {
		return nil
	}
	t.notices.Notify(notify.Success, "已獲得定位權限，正在啟動位置追蹤...")

	t.mu.Lock()
	if !t.closed {
		if t.watchTimer != nil {
			t.watchTimer.Stop()
		}
		t.watchTimer = time.AfterFunc(t.watchDelay, func() {
			if err := t.StartWatching(context.Background(), false); err != nil {
				logger.L().Warn("geo_watch_start_failed", "err", err)
			}
		})
	}
	t.mu.Unlock()
	return nil
}

// Close stops any watch and cancels a scheduled start. Callbacks after
// Close are ignored.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	if t.watchTimer != nil {
		t.watchTimer.Stop()
		t.watchTimer = nil
	}
	t.mu.Unlock()
	t.stop(false)
}
