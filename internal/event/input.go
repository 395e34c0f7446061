package event

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// ParseDate accepts GGGG-MM-DD, "danas" (today), "sutra" (tomorrow) or
// "+N" (N days from today). The result is midnight local time.
func ParseDate(input string, now time.Time) (time.Time, error) {
	in := strings.ToLower(strings.TrimSpace(input))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)

	switch {
	case in == "" || in == "danas":
		return today, nil
	case in == "sutra":
		return today.AddDate(0, 0, 1), nil
	case strings.HasPrefix(in, "+"):
		days, err := strconv.Atoi(in[1:])
		if err != nil || days < 0 {
			return time.Time{}, &ValidationError{Field: "date", Reason: "expected +N with N a non-negative number of days"}
		}
		return today.AddDate(0, 0, days), nil
	}

	d, err := time.ParseInLocation(DateLayout, in, time.Local)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Reason: "expected GGGG-MM-DD"}
	}
	return d, nil
}

// ParseClock parses HH:MM and combines it with day. An empty input takes
// the current minute from now.
func ParseClock(input string, day, now time.Time) (time.Time, error) {
	in := strings.TrimSpace(input)
	if in == "" {
		return time.Date(day.Year(), day.Month(), day.Day(), now.Hour(), now.Minute(), 0, 0, time.Local), nil
	}
	c, err := time.Parse(ClockLayout, in)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "time", Reason: "expected HH:MM"}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, time.Local), nil
}

// ParseLeadMinutes parses the notification lead time. Empty input yields
// def.
func ParseLeadMinutes(input string, def int) (int, error) {
	in := strings.TrimSpace(input)
	if in == "" {
		return def, nil
	}
	n, err := strconv.Atoi(in)
	if err != nil {
		return 0, &ValidationError{Field: "notification_minutes", Reason: "must be a whole number of minutes"}
	}
	if n < 0 {
		return 0, &ValidationError{Field: "notification_minutes", Reason: "must not be negative"}
	}
	return n, nil
}

// Input is the raw user form for an event, as typed into the CLI or
// posted to the HTTP API.
type Input struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Date        string      `json:"date"`
	Time        string      `json:"time"`
	DateTime    string      `json:"date_time"`
	LeadMinutes json.Number `json:"notification_minutes"`
	Tags        []string    `json:"tags"`
}

// Build validates in and returns a new Event. DateTime, when set, takes
// precedence over the Date/Time pair.
func (in Input) Build(now time.Time, defaultLead int) (Event, error) {
	if strings.TrimSpace(in.Title) == "" {
		return Event{}, &ValidationError{Field: "title", Reason: "must not be empty"}
	}

	var dt time.Time
	if strings.TrimSpace(in.DateTime) != "" {
		t, err := ParseTimestamp(in.DateTime)
		if err != nil {
			return Event{}, &ValidationError{Field: "date_time", Reason: "expected ISO-8601 timestamp"}
		}
		dt = t
	} else {
		day, err := ParseDate(in.Date, now)
		if err != nil {
			return Event{}, err
		}
		dt, err = ParseClock(in.Time, day, now)
		if err != nil {
			return Event{}, err
		}
	}

	lead, err := ParseLeadMinutes(in.LeadMinutes.String(), defaultLead)
	if err != nil {
		return Event{}, err
	}
	return New(in.Title, strings.TrimSpace(in.Description), dt, lead, in.Tags...)
}
