package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"officeplanner/internal/event"
	appLog "officeplanner/internal/log"
	"officeplanner/internal/notify"
)

const (
	// DefaultSpec polls once a minute.
	DefaultSpec    = "@every 1m"
	DefaultAppName = "Pametni Kancelarijski Planer"
	DefaultTimeout = 10 * time.Second
	testTimeout    = 5 * time.Second
)

// EventSource is the part of the event store the scheduler needs.
type EventSource interface {
	DueForNotification() []event.Event
	MarkNotified(id string) error
}

// Options tunes a Scheduler. Zero values take the defaults above.
type Options struct {
	Spec     string
	AppName  string
	Timeout  time.Duration
	Location *time.Location
	Now      func() time.Time
}

// Scheduler polls the store on a fixed interval and dispatches a reminder
// for every due event. It moves between Stopped and Running; ticks never
// overlap and a slow notifier delays the following ticks.
type Scheduler struct {
	source   EventSource
	notifier notify.Notifier
	opts     Options

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	cancel  context.CancelFunc
	ticks   sync.WaitGroup
	tickMu  sync.Mutex
}

func New(source EventSource, notifier notify.Notifier, opts Options) *Scheduler {
	if opts.Spec == "" {
		opts.Spec = DefaultSpec
	}
	if opts.AppName == "" {
		opts.AppName = DefaultAppName
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{source: source, notifier: notifier, opts: opts}
}

// Running reports whether the polling loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches the polling loop with an immediate first tick. Calling
// Start while running is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := c.AddFunc(s.opts.Spec, func() { s.runTick(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("add poll job %q: %w", s.opts.Spec, err)
	}

	s.cron, s.cancel = c, cancel
	s.running = true
	c.Start()

	s.ticks.Add(1)
	go func() {
		defer s.ticks.Done()
		s.runTick(ctx)
	}()

	appLog.Info("notification scheduler started", "spec", s.opts.Spec, "tz", s.opts.Location.String())
	return nil
}

// Stop ends the polling loop and waits for an in-flight tick, or until ctx
// is done. A tick is never interrupted while Stop waits; once ctx is done
// the remaining dispatches of that tick see a cancelled context. Stopping
// a stopped scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c, cancel := s.cron, s.cancel
	s.running = false
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	cronDone := c.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.ticks.Wait()
		cancel()
		close(done)
	}()

	select {
	case <-done:
		appLog.Info("notification scheduler stopped")
		return nil
	case <-ctx.Done():
		cancel()
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		appLog.Debug("scheduler: previous tick still running; skipping")
		return
	}
	defer s.tickMu.Unlock()
	s.Tick(ctx)
}

// Tick runs one poll: every due event is announced and then marked
// notified. A failure for one event is logged and the batch continues;
// the event stays due and is retried on the next tick. It returns how
// many events were notified.
func (s *Scheduler) Tick(ctx context.Context) int {
	due := s.source.DueForNotification()
	if len(due) == 0 {
		return 0
	}
	appLog.Debug("scheduler: events due", "count", len(due))

	sent := 0
	for _, ev := range due {
		msg := ReminderMessage(ev, s.opts.Now(), s.opts.AppName, s.opts.Timeout)
		if err := s.notifier.Notify(ctx, msg); err != nil {
			appLog.Error("scheduler: notification failed", err, "event_id", ev.ID, "title", ev.Title)
			continue
		}
		if err := s.source.MarkNotified(ev.ID); err != nil {
			appLog.Error("scheduler: mark notified failed", err, "event_id", ev.ID)
			continue
		}
		sent++
		appLog.Info("reminder sent", "event_id", ev.ID, "title", ev.Title)
	}
	return sent
}

// SendTestNotification fires one fixed notification. Unlike scheduled
// reminders, its failure is returned to the caller.
func (s *Scheduler) SendTestNotification(ctx context.Context) error {
	if s.notifier == nil {
		return errors.New("no notifier configured")
	}
	if err := s.notifier.Notify(ctx, TestMessage(s.opts.AppName)); err != nil {
		appLog.Error("scheduler: test notification failed", err)
		return err
	}
	return nil
}

// cronLogger routes cron's own diagnostics into the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
