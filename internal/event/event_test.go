package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 8, 28, 9, 0, 0, 0, time.Local)

func mustNew(t *testing.T, title string, at time.Time, lead int, tags ...string) Event {
	t.Helper()
	ev, err := New(title, "opis", at, lead, tags...)
	require.NoError(t, err)
	return ev
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name  string
		title string
		at    time.Time
		lead  int
		tags  []string
		field string
	}{
		{"empty title", "", base, 15, nil, "title"},
		{"blank title", "   ", base, 15, nil, "title"},
		{"zero time", "Standup", time.Time{}, 15, nil, "date_time"},
		{"negative lead", "Standup", base, -1, nil, "notification_minutes"},
		{"unknown tag", "Standup", base, 15, []string{"meeting"}, "tags"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.title, "", tt.at, tt.lead, tt.tags...)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestNewNormalizes(t *testing.T) {
	ev, err := New("  Standup ", "", base.Add(42*time.Second), 0, "posao", "sastanak", "posao")
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "Standup", ev.Title)
	assert.True(t, ev.DateTime.Equal(base))
	assert.Equal(t, []string{"posao", "sastanak"}, ev.Tags)
	assert.False(t, ev.Notified)

	other := mustNew(t, "Standup", base, 0)
	assert.NotEqual(t, ev.ID, other.ID)
}

func TestWithTags(t *testing.T) {
	ev := mustNew(t, "Standup", base, 15, "posao")
	ev.Tags = []string{"hitno", "posao"} // as loaded from an older file
	require.NoError(t, ev.Validate())

	kept, err := ev.WithTags(ev.Tags, ev.Tags)
	require.NoError(t, err)
	assert.Equal(t, []string{"hitno", "posao"}, kept.Tags)

	kept, err = ev.WithTags([]string{"rok", "hitno", "rok"}, ev.Tags)
	require.NoError(t, err)
	assert.Equal(t, []string{"rok", "hitno"}, kept.Tags)

	_, err = ev.WithTags([]string{"izmisljeno"}, ev.Tags)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "tags", verr.Field)

	_, err = ev.WithTags([]string{"hitno"}, nil)
	assert.Error(t, err)
}

func TestIsNotificationDue(t *testing.T) {
	ev := mustNew(t, "Standup", base.Add(30*time.Minute), 15)

	assert.False(t, ev.IsNotificationDue(base))
	assert.False(t, ev.IsNotificationDue(base.Add(14*time.Minute)))
	assert.True(t, ev.IsNotificationDue(base.Add(15*time.Minute)))
	assert.True(t, ev.IsNotificationDue(base.Add(16*time.Minute)))
	assert.True(t, ev.IsNotificationDue(base.Add(2*time.Hour)))

	ev.Notified = true
	assert.False(t, ev.IsNotificationDue(base.Add(16*time.Minute)))
}

func TestIsOverdue(t *testing.T) {
	ev := mustNew(t, "Rok", base, 0)

	assert.False(t, ev.IsOverdue(base.Add(-time.Minute)))
	assert.False(t, ev.IsOverdue(base))
	assert.True(t, ev.IsOverdue(base.Add(time.Second)))
}

func TestTimeUntil(t *testing.T) {
	tests := []struct {
		name  string
		until time.Duration
		want  string
	}{
		{"past", -10 * time.Minute, "Prošao je rok"},
		{"now", 0, "0 minuta"},
		{"minutes only", 45*time.Minute + 30*time.Second, "45 minuta"},
		{"exact hour", time.Hour, "1 sati, 0 minuta"},
		{"hours and minutes", 3*time.Hour + 7*time.Minute, "3 sati, 7 minuta"},
		{"exact day", 24 * time.Hour, "1 dana, 0 sati"},
		{"days drop minutes", 2*24*time.Hour + 5*time.Hour + 59*time.Minute, "2 dana, 5 sati"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := mustNew(t, "Sastanak", base, 15)
			assert.Equal(t, tt.want, ev.TimeUntil(base.Add(-tt.until)))
		})
	}
}

func TestPastEventIsOverdueWithPastPhrase(t *testing.T) {
	now := base
	ev := mustNew(t, "Kasni", now.Add(-10*time.Minute), 15)

	assert.True(t, ev.IsOverdue(now))
	assert.Equal(t, "Prošao je rok", ev.TimeUntil(now))
}

func TestStatusAt(t *testing.T) {
	ev := mustNew(t, "Sastanak", base.Add(time.Hour), 15)

	assert.Equal(t, StatusScheduled, ev.StatusAt(base))
	assert.Equal(t, StatusDue, ev.StatusAt(base.Add(50*time.Minute)))
	assert.Equal(t, StatusDue, ev.StatusAt(base.Add(time.Hour)))
	assert.Equal(t, StatusOverdue, ev.StatusAt(base.Add(time.Hour+time.Second)))
	assert.Equal(t, StatusOverdue, ev.StatusAt(base.Add(2*time.Hour)))

	ev.Notified = true
	assert.Equal(t, StatusNotified, ev.StatusAt(base.Add(2*time.Hour)))

	ev.Notified = false
	ev.NotificationMinutes = 0
	assert.Equal(t, StatusScheduled, ev.StatusAt(base.Add(59*time.Minute)))
}

func TestCloneDoesNotShareTags(t *testing.T) {
	ev := mustNew(t, "Trening", base, 15, "sport")
	c := ev.Clone()
	c.Tags[0] = "zdravlje"
	assert.Equal(t, "sport", ev.Tags[0])
}

func TestFilterKnownTags(t *testing.T) {
	got := FilterKnownTags([]string{"sport", "Meeting", "rok", "sport", ""})
	assert.Equal(t, []string{"sport", "rok"}, got)
	assert.True(t, IsKnownTag("lično"))
	assert.False(t, IsKnownTag("licno"))
}
