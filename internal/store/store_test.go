package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"officeplanner/internal/event"
)

var now = time.Date(2025, 8, 28, 9, 0, 0, 0, time.Local)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func newEvent(t *testing.T, title string, at time.Time, lead int, tags ...string) event.Event {
	t.Helper()
	ev, err := event.New(title, "opis "+title, at, lead, tags...)
	require.NoError(t, err)
	return ev
}

func openTemp(t *testing.T, clock *time.Time) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dogadjaji.json")
	return Open(path, WithClock(fixedClock(clock))), path
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	clock := now
	s, path := openTemp(t, &clock)

	assert.Empty(t, s.List(true))
	assert.Empty(t, s.LoadErrors())
	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestAddPersists(t *testing.T) {
	clock := now
	s, path := openTemp(t, &clock)

	added, err := s.Add(newEvent(t, "Standup", now.Add(30*time.Minute), 15, "sastanak"))
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Standup", records[0]["title"])
	assert.Equal(t, added.ID, records[0]["id"])
	assert.Equal(t, []any{"sastanak"}, records[0]["tags"])
}

func TestAddRejectsInvalid(t *testing.T) {
	clock := now
	s, _ := openTemp(t, &clock)

	_, err := s.Add(event.Event{Title: "", DateTime: now})
	var verr *event.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Zero(t, s.Len())
}

func TestAddAssignsIDWhenMissing(t *testing.T) {
	clock := now
	s, _ := openTemp(t, &clock)

	added, err := s.Add(event.Event{Title: "Bez id", DateTime: now, NotificationMinutes: 5, Notified: true})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.True(t, added.Notified)
}

func TestSaveAndReload(t *testing.T) {
	clock := now
	s, path := openTemp(t, &clock)

	a, err := s.Add(newEvent(t, "Prezentacija", now.AddDate(0, 0, 1), 60, "posao", "projekat"))
	require.NoError(t, err)
	b, err := s.Add(newEvent(t, "Pauza za kafu", now.Add(2*time.Hour), 10))
	require.NoError(t, err)
	require.NoError(t, s.MarkNotified(b.ID))
	b.Notified = true

	reloaded := Open(path, WithClock(fixedClock(&clock)))
	got := reloaded.List(false)
	require.Len(t, got, 2)
	assert.True(t, a.Equal(got[0]), "want %+v got %+v", a, got[0])
	assert.True(t, b.Equal(got[1]), "want %+v got %+v", b, got[1])
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dogadjaji.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	var s *Store
	require.NotPanics(t, func() { s = Open(path) })

	assert.Empty(t, s.List(true))
	assert.Len(t, s.LoadErrors(), 1)

	kept, err := os.ReadFile(path + ".corrupt")
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(kept))
}

func TestMalformedRecordsAreSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dogadjaji.json")
	content := `[
		{"title":"Dobar","description":"","date_time":"2025-08-28T10:00:00","notification_minutes":15},
		{"title":"Bez vremena","description":"","notification_minutes":15},
		{"title":"Loše vreme","description":"","date_time":"sutra","notification_minutes":15},
		{"title":"Takođe dobar","description":"","date_time":"2025-08-29T10:00:00","notification_minutes":5,"notified":true,"tags":["rok"]}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s := Open(path)
	got := s.List(false)
	require.Len(t, got, 2)
	assert.Equal(t, "Dobar", got[0].Title)
	assert.Equal(t, "Takođe dobar", got[1].Title)
	assert.True(t, got[1].Notified)

	errs := s.LoadErrors()
	require.Len(t, errs, 2)
	var merr *event.MalformedRecordError
	assert.True(t, errors.As(errs[0], &merr))
	assert.Contains(t, errs[0].Error(), "record 1")
	assert.Contains(t, errs[1].Error(), "record 2")
}

func TestRemoveAt(t *testing.T) {
	clock := now
	s, path := openTemp(t, &clock)

	first, _ := s.Add(newEvent(t, "Prvi", now.Add(time.Hour), 15))
	second, _ := s.Add(newEvent(t, "Drugi", now.Add(2*time.Hour), 15))

	before, err := os.ReadFile(path)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)

	for _, idx := range []int{-1, 2, 100} {
		assert.False(t, s.RemoveAt(idx), idx)
	}
	assert.Equal(t, 2, s.Len())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	infoAfter, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), infoAfter.ModTime())

	assert.True(t, s.RemoveAt(0))
	got := s.List(false)
	require.Len(t, got, 1)
	assert.Equal(t, second.ID, got[0].ID)
	_, ok := s.Get(first.ID)
	assert.False(t, ok)
}

func TestRemoveByID(t *testing.T) {
	clock := now
	s, path := openTemp(t, &clock)

	// Field-equal events stay distinguishable by id.
	twin := newEvent(t, "Isti", now.Add(time.Hour), 15)
	a, _ := s.Add(twin)
	twin.ID = ""
	b, _ := s.Add(twin)
	require.NotEqual(t, a.ID, b.ID)

	assert.True(t, s.Remove(b.ID))
	assert.False(t, s.Remove(b.ID))

	reloaded := Open(path)
	got := reloaded.List(false)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
}

func TestReplace(t *testing.T) {
	clock := now
	s, _ := openTemp(t, &clock)

	a, _ := s.Add(newEvent(t, "Prvi", now.Add(time.Hour), 15))
	b, _ := s.Add(newEvent(t, "Drugi", now.Add(2*time.Hour), 15))
	require.NoError(t, s.MarkNotified(a.ID))

	edited := newEvent(t, "Prvi (pomeren)", now.Add(3*time.Hour), 30)
	require.NoError(t, s.Replace(a.ID, edited))

	got := s.List(false)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, "Prvi (pomeren)", got[0].Title)
	assert.Equal(t, 30, got[0].NotificationMinutes)
	assert.False(t, got[0].Notified)
	assert.Equal(t, b.ID, got[1].ID)

	err := s.Replace("missing", edited)
	assert.ErrorIs(t, err, ErrNotFound)

	edited.Title = ""
	var verr *event.ValidationError
	assert.True(t, errors.As(s.Replace(a.ID, edited), &verr))
}

func TestListSortedIsStableAndSnapshot(t *testing.T) {
	clock := now
	s, _ := openTemp(t, &clock)

	late, _ := s.Add(newEvent(t, "Kasno", now.Add(3*time.Hour), 15))
	tieA, _ := s.Add(newEvent(t, "Isto A", now.Add(time.Hour), 15))
	tieB, _ := s.Add(newEvent(t, "Isto B", now.Add(time.Hour), 15))

	first := s.List(true)
	second := s.List(true)
	require.Len(t, first, 3)
	assert.Equal(t, []string{tieA.ID, tieB.ID, late.ID}, ids(first))
	assert.Equal(t, ids(first), ids(second))

	unsorted := s.List(false)
	assert.Equal(t, []string{late.ID, tieA.ID, tieB.ID}, ids(unsorted))

	first[0].Title = "promenjeno"
	got, _ := s.Get(tieA.ID)
	assert.Equal(t, "Isto A", got.Title)
}

func TestUpcomingWindow(t *testing.T) {
	clock := now
	s, _ := openTemp(t, &clock)

	_, _ = s.Add(newEvent(t, "Prošlo", now.Add(-time.Minute), 15))
	atNow, _ := s.Add(newEvent(t, "Sada", now, 15))
	edge, _ := s.Add(newEvent(t, "Granica", now.AddDate(0, 0, 7), 15))
	_, _ = s.Add(newEvent(t, "Van prozora", now.AddDate(0, 0, 7).Add(time.Minute), 15))
	mid, _ := s.Add(newEvent(t, "Sredina", now.AddDate(0, 0, 3), 15))

	got := s.Upcoming(7)
	assert.Equal(t, []string{atNow.ID, mid.ID, edge.ID}, ids(got))

	assert.Equal(t, []string{atNow.ID}, ids(s.Upcoming(0)))
}

func TestTodayMidnightBoundaries(t *testing.T) {
	clock := now
	s, _ := openTemp(t, &clock)
	midnight := time.Date(2025, 8, 28, 0, 0, 0, 0, time.Local)

	_, _ = s.Add(newEvent(t, "Juče kasno", midnight.Add(-time.Minute), 15))
	late, _ := s.Add(newEvent(t, "Kasno", midnight.Add(24*time.Hour-time.Minute), 15))
	early, _ := s.Add(newEvent(t, "Ponoć", midnight, 15))
	_, _ = s.Add(newEvent(t, "Sutra u ponoć", midnight.Add(24*time.Hour), 15))
	past, _ := s.Add(newEvent(t, "Jutros", now.Add(-2*time.Hour), 15))

	assert.Equal(t, []string{early.ID, past.ID, late.ID}, ids(s.Today()))

	clock = midnight.Add(24 * time.Hour)
	assert.Len(t, s.Today(), 1)
}

func TestFromNowHasNoWindow(t *testing.T) {
	clock := now
	s, _ := openTemp(t, &clock)

	_, _ = s.Add(newEvent(t, "Prošlo", now.Add(-time.Minute), 15))
	far, _ := s.Add(newEvent(t, "Daleko", now.AddDate(1, 0, 0), 15))
	atNow, _ := s.Add(newEvent(t, "Sada", now, 15))

	assert.Equal(t, []string{atNow.ID, far.ID}, ids(s.FromNow()))
}

func TestSelect(t *testing.T) {
	clock := now
	s, _ := openTemp(t, &clock)

	later, _ := s.Add(newEvent(t, "Za deset dana", now.AddDate(0, 0, 10), 15))
	today, _ := s.Add(newEvent(t, "Danas", now.Add(time.Hour), 15))
	past, _ := s.Add(newEvent(t, "Prošlo", now.AddDate(0, 0, -1), 15))

	assert.Equal(t, []string{past.ID, today.ID, later.ID}, ids(s.Select(FilterAll, true)))
	assert.Equal(t, []string{later.ID, today.ID, past.ID}, ids(s.Select(FilterAll, false)))
	assert.Equal(t, []string{today.ID}, ids(s.Select(FilterToday, false)))
	assert.Equal(t, []string{today.ID}, ids(s.Select(FilterWeek, true)))
	assert.Equal(t, []string{today.ID, later.ID}, ids(s.Select(FilterUpcoming, true)))
}

func TestParseFilter(t *testing.T) {
	for in, want := range map[string]Filter{
		"":         FilterAll,
		"all":      FilterAll,
		" Today ":  FilterToday,
		"week":     FilterWeek,
		"upcoming": FilterUpcoming,
	} {
		got, err := ParseFilter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFilter("month")
	assert.Error(t, err)
}

func TestDueForNotificationScenario(t *testing.T) {
	clock := now
	s, _ := openTemp(t, &clock)

	standup, err := s.Add(newEvent(t, "Standup", now.Add(30*time.Minute), 15))
	require.NoError(t, err)

	assert.Empty(t, s.DueForNotification())

	clock = now.Add(16 * time.Minute)
	due := s.DueForNotification()
	require.Len(t, due, 1)
	assert.Equal(t, standup.ID, due[0].ID)

	require.NoError(t, s.MarkNotified(standup.ID))
	assert.Empty(t, s.DueForNotification())

	assert.ErrorIs(t, s.MarkNotified("missing"), ErrNotFound)
}

func TestSaveFailureKeepsMemory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	clock := now
	s := Open(filepath.Join(blocker, "dogadjaji.json"), WithClock(fixedClock(&clock)))

	added, err := s.Add(newEvent(t, "Ostaje u memoriji", now.Add(time.Hour), 15))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Error(t, s.Save())

	got, ok := s.Get(added.ID)
	require.True(t, ok)
	assert.Equal(t, "Ostaje u memoriji", got.Title)
}

func TestSavedFileIsReadableUTF8(t *testing.T) {
	clock := now
	s, path := openTemp(t, &clock)

	_, err := s.Add(newEvent(t, "Društveni <sastanak> & kafa", now, 15, "društveno"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Društveni <sastanak> & kafa")
	assert.Contains(t, string(data), "\n  {\n    \"title\"")
}

func ids(events []event.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}
