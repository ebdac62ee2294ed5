// Package modal holds the single visible dialog and its one-level return slot.
package modal

import (
	"context"
	"sync"

	"reliefmap/internal/model"
)

// Kind identifies the visible dialog.
type Kind string

const (
	KindNone    Kind = "none"
	KindReport  Kind = "report"
	KindDetail  Kind = "detail"
	KindConfirm Kind = "confirm"
)

// ReportData targets a report at one place.
type ReportData struct {
	Category string `json:"category"`
	ID       string `json:"id"`
	Name     string `json:"name"`
}

// DetailData is the full record shown in the detail dialog.
type DetailData struct {
	Type  string      `json:"type,omitempty"`
	Name  string      `json:"name"`
	Place model.Place `json:"place"`
}

// ConfirmData is a yes/no question. The callbacks are used by OpenConfirm;
// ShowConfirm resolves a channel instead.
type ConfirmData struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	OnConfirm func() `json:"-"`
	OnCancel  func() `json:"-"`
}

// State is a snapshot of the controller.
type State struct {
	Kind     Kind         `json:"kind"`
	Report   *ReportData  `json:"report,omitempty"`
	Detail   *DetailData  `json:"detail,omitempty"`
	Confirm  *ConfirmData `json:"confirm,omitempty"`
	ReturnTo *DetailData  `json:"return_to,omitempty"`
}

// Controller owns the modal slot. At most one dialog is visible.
type Controller struct {
	mu        sync.Mutex
	state     State
	pending   chan bool
	listeners map[int]func(State)
	nextID    int
}

// New returns a controller with nothing open.
func New() *Controller {
	return &Controller{state: State{Kind: KindNone}, listeners: map[int]func(State){}}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	s := c.state
	if s.Report != nil {
		r := *s.Report
		s.Report = &r
	}
	if s.Detail != nil {
		d := *s.Detail
		s.Detail = &d
	}
	if s.Confirm != nil {
		cf := *s.Confirm
		s.Confirm = &cf
	}
	if s.ReturnTo != nil {
		d := *s.ReturnTo
		s.ReturnTo = &d
	}
	return s
}

// OnChange registers fn to receive every new state. It returns the
// unsubscribe func.
func (c *Controller) OnChange(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// commit runs mutate under the lock, then resolves any confirm channel it
// displaced and notifies listeners.
func (c *Controller) commit(mutate func() (resolve chan bool, answer bool, cb func())) {
	c.mu.Lock()
	resolve, answer, cb := mutate()
	snap := c.snapshotLocked()
	fns := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	if resolve != nil {
		resolve <- answer
	}
	if cb != nil {
		cb()
	}
	for _, fn := range fns {
		fn(snap)
	}
}

// takePendingLocked detaches the unresolved confirm channel, if any.
func (c *Controller) takePendingLocked() chan bool {
	ch := c.pending
	c.pending = nil
	return ch
}

// OpenDetail shows a place's detail and clears the return slot.
func (c *Controller) OpenDetail(d DetailData) {
	c.commit(func() (chan bool, bool, func()) {
		ch := c.takePendingLocked()
		c.state = State{Kind: KindDetail, Detail: &d}
		return ch, false, nil
	})
}

// OpenReport shows the report form. Opened from a detail dialog, the detail
// is kept in the return slot.
func (c *Controller) OpenReport(r ReportData) {
	c.commit(func() (chan bool, bool, func()) {
		ch := c.takePendingLocked()
		returnTo := c.state.ReturnTo
		if c.state.Kind == KindDetail && c.state.Detail != nil {
			d := *c.state.Detail
			returnTo = &d
		}
		c.state = State{Kind: KindReport, Report: &r, ReturnTo: returnTo}
		return ch, false, nil
	})
}

// OpenConfirm shows a question whose answer invokes onConfirm or onCancel.
func (c *Controller) OpenConfirm(title, message string, onConfirm, onCancel func()) {
	c.commit(func() (chan bool, bool, func()) {
		ch := c.takePendingLocked()
		c.state = State{Kind: KindConfirm, ReturnTo: c.state.ReturnTo, Confirm: &ConfirmData{
			Title: title, Message: message, OnConfirm: onConfirm, OnCancel: onCancel,
		}}
		return ch, false, nil
	})
}

// ShowConfirm shows a question and returns a channel that receives the
// answer exactly once. A confirm still pending is resolved false first, as
// is one displaced by another dialog or by Close.
func (c *Controller) ShowConfirm(title, message string) <-chan bool {
	ch := make(chan bool, 1)
	c.commit(func() (chan bool, bool, func()) {
		old := c.takePendingLocked()
		c.pending = ch
		c.state = State{Kind: KindConfirm, ReturnTo: c.state.ReturnTo, Confirm: &ConfirmData{Title: title, Message: message}}
		return old, false, nil
	})
	return ch
}

// Confirm shows a confirm and blocks for the answer. If ctx ends first the
// dialog is dismissed and ctx.Err is returned.
func (c *Controller) Confirm(ctx context.Context, title, message string) (bool, error) {
	ch := c.ShowConfirm(title, message)
	select {
	case ok := <-ch:
		return ok, nil
	case <-ctx.Done():
		c.commit(func() (chan bool, bool, func()) {
			if c.pending == ch {
				c.pending = nil
				if c.state.Kind == KindConfirm {
					c.state = State{Kind: KindNone, ReturnTo: c.state.ReturnTo}
				}
			}
			return nil, false, nil
		})
		select {
		case ok := <-ch:
			return ok, nil
		default:
			return false, ctx.Err()
		}
	}
}

// Accept answers the visible confirm with yes.
func (c *Controller) Accept() { c.answer(true) }

// Decline answers the visible confirm with no.
func (c *Controller) Decline() { c.answer(false) }

func (c *Controller) answer(yes bool) {
	c.commit(func() (chan bool, bool, func()) {
		if c.state.Kind != KindConfirm || c.state.Confirm == nil {
			return nil, false, nil
		}
		data := c.state.Confirm
		c.state = State{Kind: KindNone, ReturnTo: c.state.ReturnTo}
		if ch := c.takePendingLocked(); ch != nil {
			return ch, yes, nil
		}
		if yes {
			return nil, false, data.OnConfirm
		}
		return nil, false, data.OnCancel
	})
}

// CloseAndReturn restores the detail in the return slot, or closes
// everything when the slot is empty.
func (c *Controller) CloseAndReturn() {
	c.commit(func() (chan bool, bool, func()) {
		ch := c.takePendingLocked()
		if c.state.ReturnTo != nil {
			c.state = State{Kind: KindDetail, Detail: c.state.ReturnTo}
		} else {
			c.state = State{Kind: KindNone}
		}
		return ch, false, nil
	})
}

// Close hides the dialog and clears the return slot. A pending confirm
// resolves false.
func (c *Controller) Close() {
	c.commit(func() (chan bool, bool, func()) {
		ch := c.takePendingLocked()
		c.state = State{Kind: KindNone}
		return ch, false, nil
	})
}
