package event

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is the on-disk form of date_time: ISO-8601 local time
// without a zone designator.
const TimestampLayout = "2006-01-02T15:04:05"

// parseLayouts are tried in order when reading date_time. Fractional
// seconds are accepted after any layout that ends in seconds.
var parseLayouts = []string{
	TimestampLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Record is the persisted shape of an Event.
type Record struct {
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	DateTime            string   `json:"date_time"`
	NotificationMinutes int      `json:"notification_minutes"`
	Notified            bool     `json:"notified"`
	Tags                []string `json:"tags"`
	ID                  string   `json:"id,omitempty"`
}

// rawRecord distinguishes absent fields from zero values.
type rawRecord struct {
	Title               *string  `json:"title"`
	Description         *string  `json:"description"`
	DateTime            *string  `json:"date_time"`
	NotificationMinutes *int     `json:"notification_minutes"`
	Notified            *bool    `json:"notified"`
	Tags                []string `json:"tags"`
	ID                  string   `json:"id"`
}

// MalformedRecordError reports a persisted record that cannot be turned
// back into an Event.
type MalformedRecordError struct {
	Field  string
	Reason string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	msg := fmt.Sprintf("malformed record: %s %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// ToRecord serializes the event. Tags are always emitted as a list.
func (e Event) ToRecord() Record {
	tags := slices.Clone(e.Tags)
	if tags == nil {
		tags = []string{}
	}
	return Record{
		ID:                  e.ID,
		Title:               e.Title,
		Description:         e.Description,
		DateTime:            FormatTimestamp(e.DateTime),
		NotificationMinutes: e.NotificationMinutes,
		Notified:            e.Notified,
		Tags:                tags,
	}
}

// DecodeRecord parses one persisted record. title, description, date_time
// and notification_minutes are required; notified and tags default to
// false and empty. Records without an id get a fresh one. Unknown fields
// are ignored.
func DecodeRecord(data []byte) (Event, error) {
	var raw rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, &MalformedRecordError{Field: "record", Reason: "is not an object", Err: err}
	}

	switch {
	case raw.Title == nil:
		return Event{}, missing("title")
	case raw.Description == nil:
		return Event{}, missing("description")
	case raw.DateTime == nil:
		return Event{}, missing("date_time")
	case raw.NotificationMinutes == nil:
		return Event{}, missing("notification_minutes")
	}

	if strings.TrimSpace(*raw.Title) == "" {
		return Event{}, &MalformedRecordError{Field: "title", Reason: "is empty"}
	}
	if *raw.NotificationMinutes < 0 {
		return Event{}, &MalformedRecordError{Field: "notification_minutes", Reason: "is negative"}
	}

	dt, err := ParseTimestamp(*raw.DateTime)
	if err != nil {
		return Event{}, &MalformedRecordError{Field: "date_time", Reason: "is not a timestamp", Err: err}
	}

	ev := Event{
		ID:                  raw.ID,
		Title:               *raw.Title,
		Description:         *raw.Description,
		DateTime:            dt,
		NotificationMinutes: *raw.NotificationMinutes,
		Tags:                raw.Tags,
	}
	if raw.Notified != nil {
		ev.Notified = *raw.Notified
	}
	if ev.Tags == nil {
		ev.Tags = []string{}
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	return ev, nil
}

func missing(field string) error {
	return &MalformedRecordError{Field: field, Reason: "is missing"}
}

// FormatTimestamp renders t in local time. Sub-second precision is kept
// as microseconds when present.
func FormatTimestamp(t time.Time) string {
	t = t.In(time.Local)
	if t.Nanosecond() != 0 {
		return t.Format(TimestampLayout + ".000000")
	}
	return t.Format(TimestampLayout)
}

// ParseTimestamp reads an ISO-8601 timestamp. Values without a zone are
// local; values with one are converted to local.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(time.Local), nil
	}
	var firstErr error
	for _, layout := range parseLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
