package notify

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Feed keeps the most recent notifications for the admin dashboard
type Feed struct {
	mu    sync.RWMutex
	items []Notification
	limit int
}

func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = 1
	}
	return &Feed{limit: limit}
}

// Handle stores n, evicting the oldest entry once the feed is full
func (f *Feed) Handle(n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append(f.items, n)
	if len(f.items) > f.limit {
		f.items = f.items[len(f.items)-f.limit:]
	}
	return nil
}

// Notify stores n synchronously, for callers that bypass the bus
func (f *Feed) Notify(n Notification) {
	f.Handle(n)
}

// List returns the stored notifications, newest first
func (f *Feed) List() []Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()

	list := make([]Notification, len(f.items))
	for i, n := range f.items {
		list[len(f.items)-1-i] = n
	}
	return list
}

// LogHandler writes notifications to the application log
func LogHandler(logger *logrus.Logger) Handler {
	return func(n Notification) error {
		entry := logger.WithFields(logrus.Fields{
			"level_hint": string(n.Level),
			"batch_id":   n.BatchID,
			"listing":    n.Listing,
		})
		message := strings.TrimSpace(n.Title + ": " + n.Message)
		switch n.Level {
		case LevelFailure:
			entry.Error(message)
		default:
			entry.Info(message)
		}
		return nil
	}
}
