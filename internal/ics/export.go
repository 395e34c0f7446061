package ics

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"officeplanner/internal/event"
)

// ProductID identifies exported calendars.
const ProductID = "-//officeplanner//Pametni Kancelarijski Planer//SR"

// eventDuration is the length given to exported events, which only carry
// a start time.
const eventDuration = 30 * time.Minute

// BuildCalendar converts planner events into a VCALENDAR. Each event keeps
// its id as UID and gets a display alarm at its lead time.
func BuildCalendar(events []event.Event, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(ev.DateTime)
		ve.SetEndAt(ev.DateTime.Add(eventDuration))
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		for _, tag := range ev.Tags {
			ve.AddCategory(tag)
		}

		alarm := ve.AddAlarm()
		alarm.SetAction(ical.ActionDisplay)
		alarm.SetTrigger(fmt.Sprintf("-PT%dM", ev.NotificationMinutes))
		alarm.SetDescription(ev.Title)
	}
	return cal
}

// Export writes events as an iCalendar document to w.
func Export(w io.Writer, events []event.Event, stamp time.Time) error {
	return BuildCalendar(events, stamp).SerializeTo(w)
}
