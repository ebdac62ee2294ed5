// Package geo drives the browser geolocation capability: one-shot fixes,
// continuous watches and the confirmation-gated permission flow.
package geo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reliefmap/internal/model"
)

// Options mirror the browser PositionOptions.
type Options struct {
	HighAccuracy bool          `json:"enableHighAccuracy"`
	Timeout      time.Duration `json:"-"`
	MaxAge       time.Duration `json:"-"`
}

var (
	// OnceOptions is used for one-shot requests.
	OnceOptions = Options{HighAccuracy: true, Timeout: 15 * time.Second, MaxAge: 5 * time.Minute}
	// WatchOptions is used for continuous tracking.
	WatchOptions = Options{HighAccuracy: true, Timeout: 15 * time.Second, MaxAge: time.Minute}
)

// Permission is the browser's geolocation permission state.
type Permission string

const (
	Granted Permission = "granted"
	Denied  Permission = "denied"
	Prompt  Permission = "prompt"
)

// WatchID identifies an active watch on the provider.
type WatchID int

var (
	// ErrUnsupported means the client has no geolocation capability.
	ErrUnsupported = errors.New("geo: geolocation not supported")
	// ErrPermissionUnknown means the permission state cannot be queried.
	ErrPermissionUnknown = errors.New("geo: permission state unavailable")
)

// Provider is the external geolocation capability. Watch callbacks must not
// run before Watch returns, and must not run after ClearWatch.
type Provider interface {
	CurrentPosition(ctx context.Context, opts Options) (model.UserPosition, error)
	Watch(opts Options, onUpdate func(model.UserPosition), onError func(error)) (WatchID, error)
	ClearWatch(id WatchID)
	PermissionState(ctx context.Context) (Permission, error)
}

// ErrorCode follows the browser GeolocationPositionError codes.
type ErrorCode int

const (
	CodeUnknown             ErrorCode = 0
	CodePermissionDenied    ErrorCode = 1
	CodePositionUnavailable ErrorCode = 2
	CodeTimeout             ErrorCode = 3
)

func (c ErrorCode) String() string {
	switch c {
	case CodePermissionDenied:
		return "permission_denied"
	case CodePositionUnavailable:
		return "position_unavailable"
	case CodeTimeout:
		return "timeout"
	}
	return "unknown"
}

// PositionError is a failed position request.
type PositionError struct {
	Code    ErrorCode
	Message string
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("geolocation error %d (%s): %s", int(e.Code), e.Code, e.Message)
}

// UserMessage is the text shown to the user for this failure.
func (e *PositionError) UserMessage() string {
	switch e.Code {
	case CodePermissionDenied:
		return "定位權限被拒絕，請檢查瀏覽器設置並允許位置訪問"
	case CodePositionUnavailable:
		return "位置資訊無法使用，請確保GPS已開啟"
	case CodeTimeout:
		return "定位請求超時，請重試"
	}
	return fmt.Sprintf("定位錯誤 (代碼: %d): %s", int(e.Code), e.Message)
}

const unsupportedMessage = "您的瀏覽器不支援定位功能"

// AsPositionError classifies any provider failure. Context deadlines count
// as timeouts.
func AsPositionError(err error) *PositionError {
	var pe *PositionError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &pe):
		return pe
	case errors.Is(err, context.DeadlineExceeded):
		return &PositionError{Code: CodeTimeout, Message: err.Error()}
	}
	return &PositionError{Code: CodeUnknown, Message: err.Error()}
}

// UserMessage maps any tracker error to user-facing text.
func UserMessage(err error) string {
	if errors.Is(err, ErrUnsupported) {
		return unsupportedMessage
	}
	return AsPositionError(err).UserMessage()
}
