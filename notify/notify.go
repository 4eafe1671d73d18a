// Package notify is the leveled, timed notification sink consumed by the
// authentication core. The UI shell renders whatever the Center publishes;
// this package only manages the queue and auto-dismissal.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tmsfleet/go-auth-client/observable"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

const defaultDuration = 5 * time.Second

type Notification struct {
	ID       string
	Message  string
	Level    Level
	Duration time.Duration
}

// Notifier is the fire-and-forget sink. Each notification auto-dismisses
// after its duration; a duration of 0 makes it sticky.
type Notifier interface {
	Success(message string, opts ...Option)
	Error(message string, opts ...Option)
	Warning(message string, opts ...Option)
	Info(message string, opts ...Option)
}

type Option func(*Notification)

// WithDuration overrides the default display duration. Zero disables
// auto-dismissal.
func WithDuration(d time.Duration) Option {
	return func(n *Notification) {
		n.Duration = d
	}
}

var _ Notifier = (*Center)(nil)

// Center is the in-memory notification queue.
type Center struct {
	notifications *observable.Value[[]Notification]
	timers        map[string]*time.Timer
	lock          sync.Mutex
}

func NewCenter() *Center {
	return &Center{
		notifications: observable.NewValue([]Notification(nil)),
		timers:        make(map[string]*time.Timer),
	}
}

// Notifications exposes the live queue to the rendering layer.
func (c *Center) Notifications() *observable.Value[[]Notification] {
	return c.notifications
}

func (c *Center) Success(message string, opts ...Option) {
	c.push(LevelSuccess, message, opts)
}

func (c *Center) Error(message string, opts ...Option) {
	c.push(LevelError, message, opts)
}

func (c *Center) Warning(message string, opts ...Option) {
	c.push(LevelWarning, message, opts)
}

func (c *Center) Info(message string, opts ...Option) {
	c.push(LevelInfo, message, opts)
}

// Dismiss removes a notification before its timer fires.
func (c *Center) Dismiss(id string) {
	c.lock.Lock()
	if timer, ok := c.timers[id]; ok {
		timer.Stop()
		delete(c.timers, id)
	}
	c.lock.Unlock()

	c.notifications.Update(func(current []Notification) []Notification {
		kept := make([]Notification, 0, len(current))
		for _, n := range current {
			if n.ID != id {
				kept = append(kept, n)
			}
		}
		return kept
	})
}

func (c *Center) push(level Level, message string, opts []Option) {
	notification := Notification{
		ID:       uuid.New().String(),
		Message:  message,
		Level:    level,
		Duration: defaultDuration,
	}
	for _, opt := range opts {
		opt(&notification)
	}

	c.notifications.Update(func(current []Notification) []Notification {
		return append(append([]Notification(nil), current...), notification)
	})

	if notification.Duration > 0 {
		c.lock.Lock()
		c.timers[notification.ID] = time.AfterFunc(notification.Duration, func() {
			c.Dismiss(notification.ID)
		})
		c.lock.Unlock()
	}
}
