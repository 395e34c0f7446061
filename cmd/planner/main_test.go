package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"officeplanner/internal/config"
	"officeplanner/internal/notify"
	"officeplanner/internal/store"
)

var now = time.Date(2025, 8, 28, 9, 0, 0, 0, time.Local)

type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recorder) Notify(_ context.Context, m notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

type harness struct {
	t        *testing.T
	dir      string
	data     string
	notifier *recorder
}

func newHarness(t *testing.T) *harness {
	dir := t.TempDir()
	return &harness{
		t:        t,
		dir:      dir,
		data:     filepath.Join(dir, "dogadjaji.json"),
		notifier: &recorder{},
	}
}

// run executes one CLI invocation with a fresh env, so state only carries
// over through the data file.
func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	e := &env{now: func() time.Time { return now }, notifier: h.notifier}
	app := newApp(e)

	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = strings.NewReader(stdin)
	app.ExitErrHandler = func(*cli.Context, error) {}

	full := append([]string{
		"planner",
		"--config", filepath.Join(h.dir, "planner.yaml"),
		"--data", h.data,
		"--env-file", filepath.Join(h.dir, "missing.env"),
	}, args...)
	err := app.Run(full)
	return out.String(), err
}

func (h *harness) store() *store.Store {
	return store.Open(h.data, store.WithClock(func() time.Time { return now }))
}

func TestAddListDelete(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "add", "--title", "Sastanak tima", "--date", "sutra", "--time", "10:00", "--minutes", "30", "--tag", "sastanak")
	require.NoError(t, err)
	assert.Contains(t, out, "Događaj 'Sastanak tima' uspešno dodat!")
	assert.Contains(t, out, "29.08.2025 10:00 (petak)")

	_, err = os.Stat(filepath.Join(h.dir, "planner.yaml"))
	require.NoError(t, err, "config created on first run")

	out, err = h.run("", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "1. Sastanak tima")
	assert.Contains(t, out, "Obavesti: 30 min pre")

	out, err = h.run("n\n", "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Brisanje otkazano")
	assert.Equal(t, 1, h.store().Len())

	out, err = h.run("", "delete", "--yes", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "uspešno obrisan")
	assert.Zero(t, h.store().Len())

	_, err = h.run("", "delete", "--yes", "1")
	assert.Error(t, err)
}

func TestAddInteractive(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("Pregled projekta\nFaza 2\n+3\n14:15\n\nprojekat, rok\n", "add")
	require.NoError(t, err)
	assert.Contains(t, out, "DODAJ NOVI DOGAĐAJ")

	events := h.store().List(true)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "Pregled projekta", ev.Title)
	assert.Equal(t, "Faza 2", ev.Description)
	assert.True(t, ev.DateTime.Equal(time.Date(2025, 8, 31, 14, 15, 0, 0, time.Local)))
	assert.Equal(t, 15, ev.NotificationMinutes)
	assert.Equal(t, []string{"projekat", "rok"}, ev.Tags)

	_, err = h.run("\n", "add")
	assert.Error(t, err, "empty title")

	_, err = h.run("", "add", "--title", "X", "--date", "31.12.2025")
	assert.Error(t, err)
	assert.Equal(t, 1, h.store().Len())
}

func TestEditKeepsNotifiedUnlessReset(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "add", "--title", "Standup", "--date", "danas", "--time", "09:10")
	require.NoError(t, err)

	id := h.store().List(false)[0].ID
	require.NoError(t, h.store().MarkNotified(id))

	_, err = h.run("", "edit", "--time", "11:00", "--minutes", "5", id)
	require.NoError(t, err)
	ev, ok := h.store().Get(id)
	require.True(t, ok)
	assert.True(t, ev.DateTime.Equal(time.Date(2025, 8, 28, 11, 0, 0, 0, time.Local)))
	assert.Equal(t, 5, ev.NotificationMinutes)
	assert.Equal(t, "Standup", ev.Title)
	assert.True(t, ev.Notified)

	_, err = h.run("", "edit", "--reset-notified", "--title", "Dnevni standup", "1")
	require.NoError(t, err)
	ev, _ = h.store().Get(id)
	assert.Equal(t, "Dnevni standup", ev.Title)
	assert.False(t, ev.Notified)

	_, err = h.run("", "edit", "--title", "x", "nepostojeci-id")
	assert.Error(t, err)
}

func TestEditKeepsLegacyTags(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.data, []byte(`[{"title":"Stari","description":"","date_time":"2025-08-29T10:00:00","notification_minutes":15,"notified":false,"tags":["hitno","posao"]}]`), 0o644))

	_, err := h.run("", "edit", "--title", "Novi naslov", "1")
	require.NoError(t, err)
	ev := h.store().List(false)[0]
	assert.Equal(t, "Novi naslov", ev.Title)
	assert.Equal(t, []string{"hitno", "posao"}, ev.Tags)

	_, err = h.run("", "edit", "--tag", "hitno", "--tag", "rok", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"hitno", "rok"}, h.store().List(false)[0].Tags)

	_, err = h.run("", "edit", "--tag", "izmisljeno", "1")
	assert.Error(t, err)
	assert.Equal(t, []string{"hitno", "rok"}, h.store().List(false)[0].Tags)
}

func TestCheckSendsDueReminders(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Nema čekajućih obaveštenja")

	_, err = h.run("", "add", "--title", "Standup", "--date", "danas", "--time", "09:10")
	require.NoError(t, err)
	_, err = h.run("", "add", "--title", "Sutra", "--date", "sutra", "--time", "09:10")
	require.NoError(t, err)

	out, err = h.run("", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Pronađeno 1 događaj(a)")
	assert.Contains(t, out, "Poslato obaveštenja: 1 od 1")

	require.Len(t, h.notifier.msgs, 1)
	assert.Equal(t, "🔔 Predstojeći događaj: Standup", h.notifier.msgs[0].Title)
	assert.Empty(t, h.store().DueForNotification())
}

func TestTestNotify(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("", "test-notify")
	require.NoError(t, err)
	assert.Contains(t, out, "Test obaveštenje poslano")
	require.Len(t, h.notifier.msgs, 1)
	assert.Equal(t, "Sistem obaveštenja radi ispravno!", h.notifier.msgs[0].Body)
}

func TestExportAndImport(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "export", "--out", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Nema događaja za izvoz")

	_, err = h.run("", "add", "--title", "Standup", "--date", "sutra", "--time", "09:00", "--description", "Dnevni sastanak")
	require.NoError(t, err)

	out, err = h.run("", "export", "--out", "-")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "PAMETNI KANCELARIJSKI PLANER - IZVOZ DOGAĐAJA\n"))
	assert.Contains(t, out, "Ukupno događaja: 1")
	assert.Contains(t, out, "   Opis: Dnevni sastanak\n")

	icsPath := filepath.Join(h.dir, "planer.ics")
	out, err = h.run("", "export", "--format", "ics", "--out", icsPath)
	require.NoError(t, err)
	assert.Contains(t, out, icsPath)

	_, err = h.run("", "export", "--format", "pdf", "--out", "-")
	assert.Error(t, err)

	// Importing our own export adds a copy under a derived id, once.
	out, err = h.run("", "import", icsPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Uvezeno: 1")
	out, err = h.run("", "import", icsPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Uvezeno: 0, već postoji: 1")
	assert.Equal(t, 2, h.store().Len())

	_, err = h.run("", "import")
	assert.Error(t, err)
}

func TestUpcomingAndTags(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "add", "--title", "Za deset dana", "--date", "+10", "--time", "09:00")
	require.NoError(t, err)

	out, err := h.run("", "upcoming")
	require.NoError(t, err)
	assert.Contains(t, out, "Narednih 7 Dana")
	assert.Contains(t, out, "Nema pronađenih događaja.")

	out, err = h.run("", "upcoming", "--days", "14")
	require.NoError(t, err)
	assert.Contains(t, out, "Za deset dana")

	out, err = h.run("", "tags")
	require.NoError(t, err)
	assert.Contains(t, out, "sastanak\n")
	assert.Contains(t, out, "društveno\n")
}

func TestListFilter(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "add", "--title", "Jutros", "--date", "danas", "--time", "08:00")
	require.NoError(t, err)
	_, err = h.run("", "add", "--title", "Popodne", "--date", "danas", "--time", "15:00")
	require.NoError(t, err)
	_, err = h.run("", "add", "--title", "Za deset dana", "--date", "+10", "--time", "09:00")
	require.NoError(t, err)

	out, err := h.run("", "list", "--filter", "today")
	require.NoError(t, err)
	assert.Contains(t, out, "DANAŠNJI DOGAĐAJI")
	assert.Contains(t, out, "Jutros")
	assert.Contains(t, out, "Popodne")
	assert.NotContains(t, out, "Za deset dana")

	out, err = h.run("", "list", "--filter", "week")
	require.NoError(t, err)
	assert.NotContains(t, out, "Jutros")
	assert.Contains(t, out, "Popodne")
	assert.NotContains(t, out, "Za deset dana")

	out, err = h.run("", "list", "-f", "upcoming")
	require.NoError(t, err)
	assert.NotContains(t, out, "Jutros")
	assert.Contains(t, out, "Za deset dana")

	_, err = h.run("", "list", "--filter", "month")
	assert.Error(t, err)
}

func TestBuildNotifier(t *testing.T) {
	cfg := config.DefaultConfig()
	n, err := buildNotifier(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, n.(*notify.Multi).Len())

	cfg.Notifiers.Desktop = false
	n, err = buildNotifier(cfg)
	require.NoError(t, err)
	assert.NoError(t, n.Notify(context.Background(), notify.Message{Title: "x"}), "log fallback")

	cfg.Notifiers.Email = &config.EmailConfig{Region: "eu-central-1"}
	_, err = buildNotifier(cfg)
	assert.Error(t, err, "email without from/to")

	cfg.Notifiers.Email = nil
	cfg.Notifiers.Telegram = &config.TelegramConfig{ChatID: 42}
	_, err = buildNotifier(cfg)
	assert.Error(t, err, "telegram without token")
}
