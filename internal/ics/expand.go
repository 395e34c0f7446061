package ics

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"officeplanner/internal/event"
	appLog "officeplanner/internal/log"
)

const (
	defaultMaxOccurrencesPerEvent = 500
)

// importNamespace seeds the deterministic ids of imported occurrences, so
// importing the same calendar twice yields the same ids.
var importNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("officeplanner/ics-import"))

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// RangeStart / RangeEnd define the inclusive window for occurrence
	// start times.
	RangeStart time.Time
	RangeEnd   time.Time

	// DefaultLeadMinutes applies to events without a VALARM.
	DefaultLeadMinutes int

	// MaxOccurrencesPerEvent is a safety cap to avoid infinite or extremely
	// large expansions. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the planner events and information about truncation.
type ExpandResult struct {
	Events []event.Event
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
	// Skipped counts occurrences that could not become events (no title).
	Skipped int
}

// ExpandEvents turns parsed VEVENTs into planner events whose start falls
// within the configured window. It handles single events, RRULE
// recurrence, EXDATE and RECURRENCE-ID overrides. Times are converted to
// local time; all-day events start at local midnight. The result is
// sorted by start time.
func ExpandEvents(parsed []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and overrides by UID.
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	var order []string
	for _, ev := range parsed {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	for _, uid := range order {
		ov := overridesByUID[uid]
		truncated := false

		for _, ev := range baseByUID[uid] {
			occ, hitCap := expandEvent(ev, ov, cfg)
			if hitCap {
				truncated = true
			}
			for _, o := range occ {
				pe, ok := toPlannerEvent(o, cfg)
				if !ok {
					result.Skipped++
					continue
				}
				result.Events = append(result.Events, pe)
			}
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	slices.SortStableFunc(result.Events, func(a, b event.Event) int {
		return a.DateTime.Compare(b.DateTime)
	})
	return result, nil
}

// occurrence is one concrete instance of a VEVENT.
type occurrence struct {
	ev    ParsedEvent
	start time.Time
	// key is the instance start in the base event's own recurrence, stable
	// across overrides.
	key time.Time
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]occurrence, bool) {
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, cfg), false
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []occurrence {
	start := ev.Start
	key := start
	if o, ok := findOverrideForStart(overrides, start); ok {
		ev, start = o, o.Start
	}
	if !inRange(start, cfg) {
		return nil
	}
	return []occurrence{{ev: ev, start: start, key: key}}
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]occurrence, bool) {
	out := make([]occurrence, 0)
	hitCap := false

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return out, false
	}

	// Ensure Dtstart is set to the event's DTSTART.
	r.DTStart(ev.Start)

	// Build a set so we can apply EXDATE.
	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	rangeStart := cfg.RangeStart.In(ev.Start.Location())
	rangeEnd := cfg.RangeEnd.In(ev.Start.Location())
	occTimes := set.Between(rangeStart, rangeEnd, true)

	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	for _, occStart := range occTimes {
		base, start := ev, occStart
		if o, ok := findOverrideForStart(overrides, occStart); ok {
			base, start = o, o.Start
			if !inRange(start, cfg) {
				continue
			}
		}
		out = append(out, occurrence{ev: base, start: start, key: occStart})
	}

	return out, hitCap
}

// findOverrideForStart finds an override event whose RECURRENCE-ID matches
// the given start with exact time equality.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func inRange(t time.Time, cfg ExpandConfig) bool {
	return !t.Before(cfg.RangeStart) && !t.After(cfg.RangeEnd)
}

func toPlannerEvent(o occurrence, cfg ExpandConfig) (event.Event, bool) {
	if o.ev.Summary == "" {
		appLog.Warn("expand: skipping occurrence without summary", "uid", o.ev.UID)
		return event.Event{}, false
	}

	start := o.start.In(time.Local)
	if o.ev.AllDay {
		start = time.Date(o.start.Year(), o.start.Month(), o.start.Day(), 0, 0, 0, 0, time.Local)
	}

	lead := cfg.DefaultLeadMinutes
	if o.ev.AlarmMinutes != nil {
		lead = *o.ev.AlarmMinutes
	}

	key := o.ev.UID + "|" + o.key.UTC().Format(time.RFC3339)
	return event.Event{
		ID:                  uuid.NewSHA1(importNamespace, []byte(key)).String(),
		Title:               o.ev.Summary,
		Description:         o.ev.Description,
		DateTime:            start.Truncate(time.Minute),
		NotificationMinutes: lead,
		Tags:                event.FilterKnownTags(o.ev.Categories),
	}, true
}
