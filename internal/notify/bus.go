// Package notify delivers user-visible import notifications to the admin
// feed, the log and optionally a Telegram chat.
package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrBusFull   = errors.New("notification bus is full")
	ErrBusClosed = errors.New("notification bus is closed")
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelFailure Level = "failure"
	LevelInfo    Level = "info"
)

type Notification struct {
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Listing string    `json:"listing,omitempty"`
	BatchID string    `json:"batch_id,omitempty"`
	Time    time.Time `json:"time"`
}

// Notifier accepts notifications without blocking the caller
type Notifier interface {
	Notify(n Notification)
}

// Handler consumes a delivered notification
type Handler func(Notification) error

// Bus is an in-memory queue fanning notifications out to subscribed handlers
type Bus struct {
	items    chan Notification
	done     chan struct{}
	stopped  chan struct{}
	maxSize  int
	closed   bool
	started  bool
	mu       sync.RWMutex
	logger   *logrus.Logger
	handlers []Handler
}

// NewBus creates a bus buffering up to bufferSize undelivered notifications
func NewBus(bufferSize int, logger *logrus.Logger) *Bus {
	return &Bus{
		items:    make(chan Notification, bufferSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		maxSize:  bufferSize,
		logger:   logger,
		handlers: make([]Handler, 0),
	}
}

// Push queues a notification for delivery
func (b *Bus) Push(n Notification) error {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	// Non-blocking send so a slow sink never stalls an import
	select {
	case b.items <- n:
		b.logger.WithField("level", n.Level).Debug("Pushed notification to bus")
		return nil
	default:
		return ErrBusFull
	}
}

// Notify pushes n and logs when it cannot be queued
func (b *Bus) Notify(n Notification) {
	if err := b.Push(n); err != nil {
		b.logger.WithError(err).WithFields(logrus.Fields{
			"title":    n.Title,
			"queued":   b.Len(),
			"capacity": b.maxSize,
		}).Warn("Dropped notification")
	}
}

// Subscribe adds a handler that will be called for each notification
func (b *Bus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Start begins delivering queued notifications
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true
	go b.process()
}

func (b *Bus) process() {
	defer close(b.stopped)
	for {
		select {
		case <-b.done:
			b.drain()
			return
		case n := <-b.items:
			b.dispatch(n)
		}
	}
}

func (b *Bus) drain() {
	for {
		select {
		case n := <-b.items:
			b.dispatch(n)
		default:
			return
		}
	}
}

// dispatch sends the notification to all subscribed handlers
func (b *Bus) dispatch(n Notification) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(n); err != nil {
			b.logger.WithError(err).Error("Handler failed to process notification")
		}
	}
}

// Close stops accepting notifications and waits until the queued ones are delivered
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	started := b.started
	close(b.done)
	b.mu.Unlock()

	if started {
		<-b.stopped
	} else {
		b.drain()
	}
	return nil
}

// Len returns the number of notifications waiting for delivery
func (b *Bus) Len() int {
	return len(b.items)
}
