package event

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultLeadMinutes is the notification lead time used when the caller
// does not choose one.
const DefaultLeadMinutes = 15

// Event is a single scheduled occurrence with a reminder lead time.
//
// ID is an opaque surrogate key assigned at creation; store operations
// (replace, remove, mark notified) key off it so that two events with
// identical fields stay distinguishable.
type Event struct {
	ID                  string
	Title               string
	Description         string
	DateTime            time.Time
	NotificationMinutes int
	Notified            bool
	Tags                []string
}

// ValidationError reports malformed input to event construction.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// New builds a validated Event with a fresh ID. The time is truncated to
// minute precision. Duplicate tags are collapsed, keeping first-seen order.
func New(title, description string, dateTime time.Time, notificationMinutes int, tags ...string) (Event, error) {
	ev := Event{
		ID:                  uuid.NewString(),
		Title:               strings.TrimSpace(title),
		Description:         description,
		DateTime:            dateTime.Round(0).Truncate(time.Minute),
		NotificationMinutes: notificationMinutes,
		Tags:                dedupe(tags),
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	if err := checkTags(ev.Tags, nil); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Validate checks the field invariants every stored event holds. Tags are
// not checked here: loaded records keep theirs verbatim.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if e.DateTime.IsZero() {
		return &ValidationError{Field: "date_time", Reason: "must be set"}
	}
	if e.NotificationMinutes < 0 {
		return &ValidationError{Field: "notification_minutes", Reason: "must not be negative"}
	}
	return nil
}

// WithTags returns a copy of e labelled with tags, duplicates collapsed.
// Labels outside the vocabulary are accepted only when keep lists them, so
// an edit can carry over what a loaded event already has.
func (e Event) WithTags(tags, keep []string) (Event, error) {
	tags = dedupe(tags)
	if err := checkTags(tags, keep); err != nil {
		return Event{}, err
	}
	e.Tags = tags
	return e, nil
}

func checkTags(tags, keep []string) error {
	for _, t := range tags {
		if !IsKnownTag(t) && !slices.Contains(keep, t) {
			return &ValidationError{Field: "tags", Reason: fmt.Sprintf("unknown tag %q", t)}
		}
	}
	return nil
}

// NotifyAt is the instant the reminder becomes due.
func (e Event) NotifyAt() time.Time {
	return e.DateTime.Add(-time.Duration(e.NotificationMinutes) * time.Minute)
}

// IsNotificationDue reports whether the lead-time threshold has passed and
// no reminder has fired yet.
func (e Event) IsNotificationDue(now time.Time) bool {
	if e.Notified {
		return false
	}
	return !now.Before(e.NotifyAt())
}

// IsOverdue reports whether the event time has passed.
func (e Event) IsOverdue(now time.Time) bool {
	return now.After(e.DateTime)
}

// TimeUntil renders the remaining time with the coarsest non-zero unit
// pair: days+hours, hours+minutes, or minutes alone.
func (e Event) TimeUntil(now time.Time) string {
	if now.After(e.DateTime) {
		return "Prošao je rok"
	}

	diff := e.DateTime.Sub(now)
	days := int(diff / (24 * time.Hour))
	hours := int(diff % (24 * time.Hour) / time.Hour)
	minutes := int(diff % time.Hour / time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%d dana, %d sati", days, hours)
	case hours > 0:
		return fmt.Sprintf("%d sati, %d minuta", hours, minutes)
	default:
		return fmt.Sprintf("%d minuta", minutes)
	}
}

// Status classifies an event for display.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusDue       Status = "due"
	StatusOverdue   Status = "overdue"
	StatusNotified  Status = "notified"
)

// StatusAt picks the display status; notified wins over overdue, overdue
// over due.
func (e Event) StatusAt(now time.Time) Status {
	switch {
	case e.Notified:
		return StatusNotified
	case e.IsOverdue(now):
		return StatusOverdue
	case e.IsNotificationDue(now):
		return StatusDue
	default:
		return StatusScheduled
	}
}

// Clone returns a copy that shares no slices with e.
func (e Event) Clone() Event {
	e.Tags = slices.Clone(e.Tags)
	return e
}

// Equal compares all fields, using time equality for DateTime.
func (e Event) Equal(o Event) bool {
	return e.ID == o.ID &&
		e.Title == o.Title &&
		e.Description == o.Description &&
		e.DateTime.Equal(o.DateTime) &&
		e.NotificationMinutes == o.NotificationMinutes &&
		e.Notified == o.Notified &&
		slices.Equal(normTags(e.Tags), normTags(o.Tags))
}

func normTags(t []string) []string {
	if len(t) == 0 {
		return nil
	}
	return t
}

func dedupe(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
