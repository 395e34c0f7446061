package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"officeplanner/internal/event"
	appLog "officeplanner/internal/log"
)

// DefaultPath is the backing file used when none is configured.
const DefaultPath = "dogadjaji.json"

// ErrNotFound is returned by id-keyed operations when no event has the id.
var ErrNotFound = errors.New("event not found")

// Store owns the event collection and its JSON backing file.
//
// Every mutation rewrites the whole file before returning. A failed write
// is logged and the in-memory state is kept, so memory and disk may
// diverge until the next successful save. All methods are safe for
// concurrent use; the mutex serializes mutations and their saves.
type Store struct {
	mu       sync.Mutex
	path     string
	events   []event.Event
	now      func() time.Time
	loadErrs []error
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for the time-dependent queries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates a Store backed by path and loads whatever the file holds.
// A missing file yields an empty store. Load problems never fail Open;
// they are logged and available through LoadErrors.
func Open(path string, opts ...Option) *Store {
	if path == "" {
		path = DefaultPath
	}
	s := &Store{path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.load()
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// LoadErrors reports the problems found by the initial load: either a
// single error for an unreadable file, or one per skipped record.
func (s *Store) LoadErrors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.loadErrs)
}

// load reads the backing file. A file that is not a JSON array is copied
// aside and the store starts empty; inside an array every record that
// decodes is kept and the others are skipped.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		appLog.Error("store: read failed", err, "path", s.path)
		s.loadErrs = append(s.loadErrs, err)
		return
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		appLog.Error("store: backing file is not a JSON array; starting empty", err, "path", s.path)
		s.loadErrs = append(s.loadErrs, err)
		s.quarantine(data)
		return
	}

	events := make([]event.Event, 0, len(raws))
	for i, raw := range raws {
		ev, err := event.DecodeRecord(raw)
		if err != nil {
			err = fmt.Errorf("record %d: %w", i, err)
			appLog.Error("store: skipping malformed record", err, "path", s.path, "index", i)
			s.loadErrs = append(s.loadErrs, err)
			continue
		}
		events = append(events, ev)
	}
	s.events = events

	appLog.Debug("store: loaded", "path", s.path, "events", len(events), "skipped", len(raws)-len(events))
}

// quarantine keeps a copy of an unreadable file so the next save does not
// destroy it.
func (s *Store) quarantine(data []byte) {
	dst := s.path + ".corrupt"
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		appLog.Error("store: failed to keep corrupt file copy", err, "path", dst)
		return
	}
	appLog.Warn("store: corrupt file copied aside", "path", dst)
}

// Add validates ev, assigns an id if it has none, appends it and saves.
// Only validation errors are returned.
func (s *Store) Add(ev event.Event) (event.Event, error) {
	if err := ev.Validate(); err != nil {
		return event.Event{}, err
	}
	if ev.ID == "" {
		fresh, err := event.New(ev.Title, ev.Description, ev.DateTime, ev.NotificationMinutes, ev.Tags...)
		if err != nil {
			return event.Event{}, err
		}
		fresh.Notified = ev.Notified
		ev = fresh
	}
	ev = ev.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	s.persist()
	return ev.Clone(), nil
}

// RemoveAt deletes the event at index in storage order. It reports false,
// without touching the file, when index is out of range.
func (s *Store) RemoveAt(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.events) {
		return false
	}
	s.events = slices.Delete(s.events, index, index+1)
	s.persist()
	return true
}

// Remove deletes the event with the given id.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.events = slices.Delete(s.events, i, i+1)
	s.persist()
	return true
}

// Replace swaps the event with the given id for ev, keeping the id and the
// storage position. The notified flag is taken from ev as given.
func (s *Store) Replace(id string, ev event.Event) error {
	ev.ID = id
	if err := ev.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("replace %s: %w", id, ErrNotFound)
	}
	s.events[i] = ev.Clone()
	s.persist()
	return nil
}

// MarkNotified sets the notified flag on the event with the given id.
func (s *Store) MarkNotified(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("mark notified %s: %w", id, ErrNotFound)
	}
	s.events[i].Notified = true
	s.persist()
	return nil
}

// Get returns a copy of the event with the given id.
func (s *Store) Get(id string) (event.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return event.Event{}, false
	}
	return s.events[i].Clone(), true
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// List returns a snapshot of all events, ascending by date and time when
// sortByDate is set (ties keep storage order), else in storage order.
func (s *Store) List(sortByDate bool) []event.Event {
	s.mu.Lock()
	out := s.snapshot()
	s.mu.Unlock()

	if sortByDate {
		sortByTime(out)
	}
	return out
}

// Upcoming returns events whose time falls in [now, now+days], ascending.
func (s *Store) Upcoming(days int) []event.Event {
	now := s.now()
	end := now.AddDate(0, 0, days)
	out := s.where(func(ev event.Event) bool {
		return !ev.DateTime.Before(now) && !ev.DateTime.After(end)
	})
	sortByTime(out)
	return out
}

// Today returns the events on the current calendar date, ascending.
func (s *Store) Today() []event.Event {
	now := s.now()
	y, m, d := now.Date()
	out := s.where(func(ev event.Event) bool {
		ey, em, ed := ev.DateTime.In(now.Location()).Date()
		return ey == y && em == m && ed == d
	})
	sortByTime(out)
	return out
}

// FromNow returns every event at or after now, ascending.
func (s *Store) FromNow() []event.Event {
	now := s.now()
	out := s.where(func(ev event.Event) bool { return !ev.DateTime.Before(now) })
	sortByTime(out)
	return out
}

// Filter names a listing view.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterToday    Filter = "today"
	FilterWeek     Filter = "week"
	FilterUpcoming Filter = "upcoming"
)

// WeekDays is the window of FilterWeek.
const WeekDays = 7

// ParseFilter accepts a filter name; empty means all.
func ParseFilter(v string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(v))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterToday, FilterWeek, FilterUpcoming:
		return f, nil
	default:
		return "", fmt.Errorf("unknown filter %q (all, today, week, upcoming)", v)
	}
}

// Select returns the events of a listing view. Only FilterAll honours
// sortByDate; the other views are always ascending.
func (s *Store) Select(f Filter, sortByDate bool) []event.Event {
	switch f {
	case FilterToday:
		return s.Today()
	case FilterWeek:
		return s.Upcoming(WeekDays)
	case FilterUpcoming:
		return s.FromNow()
	default:
		return s.List(sortByDate)
	}
}

// DueForNotification returns, in storage order, the events whose reminder
// is due and has not fired.
func (s *Store) DueForNotification() []event.Event {
	now := s.now()
	return s.where(func(ev event.Event) bool { return ev.IsNotificationDue(now) })
}

// where returns clones of the matching events in storage order.
func (s *Store) where(keep func(event.Event) bool) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Event, 0)
	for _, ev := range s.events {
		if keep(ev) {
			out = append(out, ev.Clone())
		}
	}
	return out
}

// Save writes every event, in storage order, to the backing file. Errors
// are logged and returned; the in-memory collection is unchanged.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}

// persist must be called with s.mu held.
func (s *Store) persist() error {
	records := make([]event.Record, 0, len(s.events))
	for _, ev := range s.events {
		records = append(records, ev.ToRecord())
	}

	data, err := encode(records)
	if err != nil {
		appLog.Error("store: encode failed", err, "path", s.path)
		return err
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		appLog.Error("store: save failed", err, "path", s.path, "events", len(records))
		return err
	}
	return nil
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.events, func(ev event.Event) bool { return ev.ID == id })
}

func (s *Store) snapshot() []event.Event {
	out := make([]event.Event, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Clone()
	}
	return out
}

func sortByTime(events []event.Event) {
	slices.SortStableFunc(events, func(a, b event.Event) int {
		return a.DateTime.Compare(b.DateTime)
	})
}

// encode renders records as indented UTF-8 JSON without HTML escaping.
func encode(records []event.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".planner-events-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
