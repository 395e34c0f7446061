// Package report renders events as human-readable text for the terminal
// and for plain-text exports.
package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"officeplanner/internal/event"
)

const (
	dateTimeLayout = "02.01.2006 15:04"
	exportLayout   = "02.01.2006 15:04:05"
	fileLayout     = "20060102_150405"

	// descriptionPreview is how many characters of a description a listing
	// shows.
	descriptionPreview = 100
)

var weekdays = [...]string{
	time.Sunday:    "nedelja",
	time.Monday:    "ponedeljak",
	time.Tuesday:   "utorak",
	time.Wednesday: "sreda",
	time.Thursday:  "četvrtak",
	time.Friday:    "petak",
	time.Saturday:  "subota",
}

// Weekday names t's day of the week.
func Weekday(t time.Time) string {
	return weekdays[t.Weekday()]
}

// DateTime renders t as "28.08.2025 09:30 (četvrtak)".
func DateTime(t time.Time) string {
	return fmt.Sprintf("%s (%s)", t.Format(dateTimeLayout), Weekday(t))
}

// StatusLabel is the terminal label of a status.
func StatusLabel(s event.Status) string {
	switch s {
	case event.StatusNotified:
		return "🔔 OBAVEŠTEN"
	case event.StatusDue:
		return "📢 SADA JE VREME"
	case event.StatusOverdue:
		return "⚠️ PROŠAO JE ROK"
	default:
		return "📅 ZAKAZAN"
	}
}

// ExportFileName is the default name of a text export made at now.
func ExportFileName(now time.Time) string {
	return "izvoz_dogadjaja_" + now.Format(fileLayout) + ".txt"
}

// WriteExport writes the plain-text export of events, numbered from 1 in
// the given order.
func WriteExport(w io.Writer, events []event.Event, now time.Time) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "PAMETNI KANCELARIJSKI PLANER - IZVOZ DOGAĐAJA")
	fmt.Fprintln(bw, strings.Repeat("=", 50))
	fmt.Fprintf(bw, "Izvozno na: %s\n", now.Format(exportLayout))
	fmt.Fprintf(bw, "Ukupno događaja: %d\n\n", len(events))

	for i, ev := range events {
		fmt.Fprintf(bw, "%d. %s\n", i+1, ev.Title)
		fmt.Fprintf(bw, "   Datum: %s\n", DateTime(ev.DateTime))
		fmt.Fprintf(bw, "   Status: %s\n", ev.TimeUntil(now))
		fmt.Fprintf(bw, "   Obaveštenje: %d minuta pre\n", ev.NotificationMinutes)
		if strings.TrimSpace(ev.Description) != "" {
			fmt.Fprintf(bw, "   Opis: %s\n", ev.Description)
		}
		fmt.Fprintf(bw, "\n%s\n\n", strings.Repeat("-", 40))
	}
	return bw.Flush()
}

// WriteList writes the terminal listing of events under heading.
func WriteList(w io.Writer, heading string, events []event.Event, now time.Time) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "\n📅 %s\n", heading)
	fmt.Fprintln(bw, strings.Repeat("-", 60))
	if len(events) == 0 {
		fmt.Fprintln(bw, "Nema pronađenih događaja.")
		return bw.Flush()
	}

	for i, ev := range events {
		fmt.Fprintf(bw, "\n%d. %s\n", i+1, ev.Title)
		fmt.Fprintf(bw, "   📍 Datum: %s\n", DateTime(ev.DateTime))
		fmt.Fprintf(bw, "   ⏰ Vreme do: %s\n", ev.TimeUntil(now))
		fmt.Fprintf(bw, "   🔔 Obavesti: %d min pre\n", ev.NotificationMinutes)
		fmt.Fprintf(bw, "   📊 Status: %s\n", StatusLabel(ev.StatusAt(now)))
		if len(ev.Tags) > 0 {
			fmt.Fprintf(bw, "   🏷️  Oznake: %s\n", strings.Join(ev.Tags, ", "))
		}
		if d := strings.TrimSpace(ev.Description); d != "" {
			fmt.Fprintf(bw, "   📝 Opis: %s\n", preview(d))
		}
		fmt.Fprintf(bw, "   🆔 %s\n", ev.ID)
	}
	return bw.Flush()
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= descriptionPreview {
		return s
	}
	return string(r[:descriptionPreview]) + "..."
}
