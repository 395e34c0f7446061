package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "officeplanner/internal/log"
)

// Message is one desktop-style notification.
type Message struct {
	Title   string
	Body    string
	AppName string
	// Timeout is how long the notification stays up, where the sink has
	// such a notion.
	Timeout time.Duration
}

// Notifier delivers a Message somewhere the user will see it. It either
// succeeds or returns an error; nothing else is inspected.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, msg Message) error

func (f Func) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Named attaches a sink name used in logs and wrapped errors.
type Named struct {
	Name     string
	Notifier Notifier
}

// Multi fans a message out to several sinks. Delivery counts as
// successful when at least one sink accepts it; failures of the others are
// logged. With every sink failing the joined error is returned.
type Multi struct {
	sinks []Named
}

func NewMulti(sinks ...Named) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Notify(ctx context.Context, msg Message) error {
	if len(m.sinks) == 0 {
		return errors.New("notify: no sinks configured")
	}

	var errs []error
	for _, s := range m.sinks {
		if err := s.Notifier.Notify(ctx, msg); err != nil {
			err = fmt.Errorf("%s: %w", s.Name, err)
			appLog.Error("notify: sink failed", err, "sink", s.Name, "title", msg.Title)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(m.sinks) {
		return errors.Join(errs...)
	}
	return nil
}

// Log writes notifications to the application log. It is the fallback
// sink for headless runs.
type Log struct{}

func (Log) Notify(_ context.Context, msg Message) error {
	appLog.Info("notification", "app", msg.AppName, "title", msg.Title, "message", msg.Body)
	return nil
}
