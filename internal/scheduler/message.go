package scheduler

import (
	"time"

	"officeplanner/internal/event"
	"officeplanner/internal/notify"
)

// DisplayLayout is the date/time format used in reminder texts.
const DisplayLayout = "02.01.2006 15:04"

// ReminderMessage frames a due event: overdue events get the past-due
// wording, the rest a countdown.
func ReminderMessage(ev event.Event, now time.Time, appName string, timeout time.Duration) notify.Message {
	when := ev.DateTime.Format(DisplayLayout)

	var title, body string
	if ev.IsOverdue(now) {
		title = "⚠️ Prošao je rok: " + ev.Title
		body = "Događaj je bio zakazan za " + when + "\n\n" + ev.Description
	} else {
		title = "🔔 Predstojeći događaj: " + ev.Title
		body = "Zakazano za: " + when + "\nVreme do događaja: " + ev.TimeUntil(now) + "\n\n" + ev.Description
	}

	return notify.Message{
		Title:   title,
		Body:    body,
		AppName: appName,
		Timeout: timeout,
	}
}

// TestMessage is the fixed message used to check the notification backend.
func TestMessage(appName string) notify.Message {
	return notify.Message{
		Title:   "🧪 Test Pametnog Kancelarijskog Planera",
		Body:    "Sistem obaveštenja radi ispravno!",
		AppName: appName,
		Timeout: testTimeout,
	}
}
