// Package notify fans out user-facing notifications to Redis subscribers and browser push endpoints.
package notify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type Notification struct {
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	URL   string                 `json:"url,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// Notifier delivers one notification to one recipient, identified by email.
type Notifier interface {
	Notify(ctx context.Context, recipient string, n Notification) error
}

// Dispatcher sends notifications in the background so request handlers never wait on delivery.
type Dispatcher struct {
	notifiers []Notifier
	log       *logrus.Logger
	timeout   time.Duration
}

func NewDispatcher(log *logrus.Logger, notifiers ...Notifier) *Dispatcher {
	d := &Dispatcher{log: log, timeout: 5 * time.Second}
	for _, n := range notifiers {
		if n != nil {
			d.notifiers = append(d.notifiers, n)
		}
	}
	return d
}

// Send delivers n to every recipient through every notifier and waits for completion.
func (d *Dispatcher) Send(ctx context.Context, recipients []string, n Notification) {
	for _, to := range recipients {
		for _, notifier := range d.notifiers {
			if err := notifier.Notify(ctx, to, n); err != nil {
				d.log.WithError(err).WithField("recipient", to).Warn("Notification delivery failed")
			}
		}
	}
}

// Dispatch is Send in a goroutine with its own timeout.
func (d *Dispatcher) Dispatch(recipients []string, n Notification) {
	if d == nil || len(d.notifiers) == 0 || len(recipients) == 0 {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.log.WithField("panic", r).Error("Panic in notification dispatch")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.Send(ctx, recipients, n)
	}()
}

// Truncate shortens s to max bytes on a rune boundary, appending an ellipsis.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
