// Package notify delivers transient user notices (toasts) to connected clients.
package notify

import (
    "time"

    "github.com/google/uuid"

    "reliefmap/internal/logger"
    "reliefmap/internal/metrics"
)

type Level string

const (
    Info    Level = "info"
    Success Level = "success"
    Warning Level = "warning"
    Error   Level = "error"
)

// Notice is one toast.
type Notice struct {
    ID        string    `json:"id"`
    Level     Level     `json:"level"`
    Message   string    `json:"message"`
    CreatedAt time.Time `json:"created_at"`
}

// Notifier accepts notices for display.
type Notifier interface {
    Notify(level Level, message string)
}

// NotifierFunc adapts a func to Notifier.
type NotifierFunc func(level Level, message string)

func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

// Center publishes notices for one client session through a broker.
type Center struct {
    Broker EventBroker
    Topic  string
}

func NewCenter(b EventBroker, topic string) *Center {
    return &Center{Broker: b, Topic: topic}
}

func (c *Center) Notify(level Level, message string) {
    n := Notice{ID: uuid.NewString(), Level: level, Message: message, CreatedAt: time.Now().UTC()}
    metrics.Notices.WithLabelValues(string(level)).Inc()
    logger.L().Debug("notice", "topic", c.Topic, "level", level, "message", message)
    c.Broker.Publish(c.Topic, n)
}
