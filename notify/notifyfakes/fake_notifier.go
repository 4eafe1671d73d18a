// Package notifyfakes provides a recording Notifier for tests.
package notifyfakes

import (
	"sync"
	"time"

	"github.com/tmsfleet/go-auth-client/notify"
)

var _ notify.Notifier = (*FakeNotifier)(nil)

type Recorded struct {
	Level       notify.Level
	Message     string
	Duration    time.Duration
	HasDuration bool
}

type FakeNotifier struct {
	recorded []Recorded
	lock     sync.Mutex
}

func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{}
}

func (f *FakeNotifier) Success(message string, opts ...notify.Option) {
	f.record(notify.LevelSuccess, message, opts)
}

func (f *FakeNotifier) Error(message string, opts ...notify.Option) {
	f.record(notify.LevelError, message, opts)
}

func (f *FakeNotifier) Warning(message string, opts ...notify.Option) {
	f.record(notify.LevelWarning, message, opts)
}

func (f *FakeNotifier) Info(message string, opts ...notify.Option) {
	f.record(notify.LevelInfo, message, opts)
}

func (f *FakeNotifier) record(level notify.Level, message string, opts []notify.Option) {
	notification := notify.Notification{Duration: -1}
	for _, opt := range opts {
		opt(&notification)
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	f.recorded = append(f.recorded, Recorded{
		Level:       level,
		Message:     message,
		Duration:    notification.Duration,
		HasDuration: notification.Duration >= 0,
	})
}

// All returns every recorded notification in order.
func (f *FakeNotifier) All() []Recorded {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]Recorded(nil), f.recorded...)
}

// Messages returns every recorded message in order.
func (f *FakeNotifier) Messages() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	messages := make([]string, 0, len(f.recorded))
	for _, r := range f.recorded {
		messages = append(messages, r.Message)
	}
	return messages
}

// ByLevel returns the messages recorded at the given level.
func (f *FakeNotifier) ByLevel(level notify.Level) []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	var messages []string
	for _, r := range f.recorded {
		if r.Level == level {
			messages = append(messages, r.Message)
		}
	}
	return messages
}

// Reset clears everything recorded so far.
func (f *FakeNotifier) Reset() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.recorded = nil
}
