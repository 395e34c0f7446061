package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"officeplanner/internal/event"
	"officeplanner/internal/ics"
	appLog "officeplanner/internal/log"
	"officeplanner/internal/report"
	"officeplanner/internal/store"
	"officeplanner/internal/web"
)

const shutdownTimeout = 10 * time.Second

var listHeadings = map[store.Filter]string{
	store.FilterAll:      "SVI DOGAĐAJI",
	store.FilterToday:    "DANAŠNJI DOGAĐAJI",
	store.FilterWeek:     "OVE NEDELJE",
	store.FilterUpcoming: "PREDSTOJEĆI DOGAĐAJI",
}

func listCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "show events, all or one view of them",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Value: "all", Usage: "all, today, week or upcoming"},
			&cli.BoolFlag{Name: "unsorted", Usage: "keep storage order instead of sorting by date (all only)"},
		},
		Action: func(c *cli.Context) error {
			f, err := store.ParseFilter(c.String("filter"))
			if err != nil {
				return err
			}
			events := e.events().Select(f, !c.Bool("unsorted"))
			return report.WriteList(c.App.Writer, listHeadings[f], events, e.now())
		},
	}
}

func upcomingCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "upcoming",
		Usage: "show events in the next days",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Aliases: []string{"d"}, Usage: "window in days (default upcoming_days)"},
		},
		Action: func(c *cli.Context) error {
			days := e.cfg.UpcomingDays
			if c.IsSet("days") {
				days = c.Int("days")
			}
			if days < 0 {
				return errors.New("--days must not be negative")
			}
			heading := fmt.Sprintf("PREDSTOJEĆI DOGAĐAJI (Narednih %d Dana)", days)
			return report.WriteList(c.App.Writer, heading, e.events().Upcoming(days), e.now())
		},
	}
}

func eventFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "event title"},
		&cli.StringFlag{Name: "description", Usage: "free-form description"},
		&cli.StringFlag{Name: "date", Usage: "GGGG-MM-DD, danas, sutra or +N"},
		&cli.StringFlag{Name: "time", Usage: "HH:MM (default: current time)"},
		&cli.StringFlag{Name: "minutes", Aliases: []string{"m"}, Usage: "reminder lead time in minutes"},
		&cli.StringSliceFlag{Name: "tag", Usage: "label from the vocabulary, repeatable"},
	}
}

func addCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "add an event; prompts for missing fields when --title is not given",
		Flags: eventFlags(),
		Action: func(c *cli.Context) error {
			in := event.Input{
				Title:       c.String("title"),
				Description: c.String("description"),
				Date:        c.String("date"),
				Time:        c.String("time"),
				LeadMinutes: json.Number(c.String("minutes")),
				Tags:        c.StringSlice("tag"),
			}
			if !c.IsSet("title") {
				var err error
				if in, err = promptEvent(c.App.Reader, c.App.Writer, e.cfg.DefaultLeadMinutes); err != nil {
					return err
				}
			}

			ev, err := in.Build(e.now(), e.cfg.DefaultLeadMinutes)
			if err != nil {
				return err
			}
			added, err := e.events().Add(ev)
			if err != nil {
				return err
			}

			w := c.App.Writer
			fmt.Fprintf(w, "\n✅ Događaj '%s' uspešno dodat!\n", added.Title)
			fmt.Fprintf(w, "   📅 Zakazan za: %s\n", report.DateTime(added.DateTime))
			fmt.Fprintf(w, "   🔔 Obaveštenje: %d minuta pre\n", added.NotificationMinutes)
			fmt.Fprintf(w, "   🆔 %s\n", added.ID)
			return nil
		},
	}
}

// promptEvent asks for the event fields line by line.
func promptEvent(r io.Reader, w io.Writer, defaultLead int) (event.Input, error) {
	sc := bufio.NewScanner(r)
	ask := func(prompt string) string {
		fmt.Fprint(w, prompt)
		if !sc.Scan() {
			return ""
		}
		return strings.TrimSpace(sc.Text())
	}

	fmt.Fprintln(w, "\n➕ DODAJ NOVI DOGAĐAJ")
	fmt.Fprintln(w, strings.Repeat("-", 30))

	var in event.Input
	in.Title = ask("Naslov događaja: ")
	if in.Title == "" {
		if err := sc.Err(); err != nil {
			return in, err
		}
		return in, &event.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	in.Description = ask("Opis (opciono): ")
	fmt.Fprintln(w, "\n📅 Datum i vreme:")
	fmt.Fprintln(w, "Primeri: '2025-08-28', 'danas', 'sutra', '+3' (3 dana od danas)")
	in.Date = ask("Datum (GGGG-MM-DD ili skraćeno): ")
	in.Time = ask("Vreme (HH:MM) [podrazumevano: trenutno vreme]: ")
	in.LeadMinutes = json.Number(ask(fmt.Sprintf("Obavesti me (minuta pre) [podrazumevano: %d]: ", defaultLead)))
	if tags := ask("Oznake (odvojene zarezom, opciono): "); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				in.Tags = append(in.Tags, t)
			}
		}
	}
	return in, sc.Err()
}

func editCommand(e *env) *cli.Command {
	flags := append(eventFlags(), &cli.BoolFlag{Name: "reset-notified", Usage: "re-arm the reminder"})
	return &cli.Command{
		Name:      "edit",
		Usage:     "change fields of an event; unset flags keep their value",
		ArgsUsage: "<number|id>",
		Flags:     flags,
		Action: func(c *cli.Context) error {
			st := e.events()
			current, _, err := resolve(st, c.Args().First())
			if err != nil {
				return err
			}

			title, desc := current.Title, current.Description
			if c.IsSet("title") {
				title = c.String("title")
			}
			if c.IsSet("description") {
				desc = c.String("description")
			}

			dt := current.DateTime
			if c.IsSet("date") || c.IsSet("time") {
				dateIn := dt.Format(event.DateLayout)
				clockIn := dt.Format(event.ClockLayout)
				if c.IsSet("date") {
					dateIn = c.String("date")
				}
				if c.IsSet("time") {
					clockIn = c.String("time")
				}
				day, err := event.ParseDate(dateIn, e.now())
				if err != nil {
					return err
				}
				if dt, err = event.ParseClock(clockIn, day, e.now()); err != nil {
					return err
				}
			}

			lead, err := event.ParseLeadMinutes(c.String("minutes"), current.NotificationMinutes)
			if err != nil {
				return err
			}

			tags := current.Tags
			if c.IsSet("tag") {
				tags = c.StringSlice("tag")
			}

			updated, err := event.New(title, desc, dt, lead)
			if err != nil {
				return err
			}
			if updated, err = updated.WithTags(tags, current.Tags); err != nil {
				return err
			}
			updated.ID = current.ID
			updated.Notified = current.Notified && !c.Bool("reset-notified")

			if err := st.Replace(current.ID, updated); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✅ Događaj '%s' izmenjen.\n", updated.Title)
			return nil
		},
	}
}

func deleteCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "delete an event by its list number or id",
		ArgsUsage: "<number|id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
		},
		Action: func(c *cli.Context) error {
			st := e.events()
			ev, index, err := resolve(st, c.Args().First())
			if err != nil {
				return err
			}

			if !c.Bool("yes") {
				fmt.Fprintf(c.App.Writer, "Da li ste sigurni da želite da obrišete '%s'? (d/N): ", ev.Title)
				answer, _ := bufio.NewReader(c.App.Reader).ReadString('\n')
				switch strings.ToLower(strings.TrimSpace(answer)) {
				case "d", "da":
				default:
					fmt.Fprintln(c.App.Writer, "❌ Brisanje otkazano.")
					return nil
				}
			}

			var removed bool
			if index >= 0 {
				removed = st.RemoveAt(index)
			} else {
				removed = st.Remove(ev.ID)
			}
			if !removed {
				return fmt.Errorf("delete %s: %w", ev.ID, store.ErrNotFound)
			}
			fmt.Fprintf(c.App.Writer, "✅ Događaj '%s' uspešno obrisan!\n", ev.Title)
			return nil
		},
	}
}

// resolve finds an event by 1-based position in storage order or by id.
// The returned index is the storage index for positional references and
// -1 for ids.
func resolve(st *store.Store, ref string) (event.Event, int, error) {
	if ref == "" {
		return event.Event{}, -1, errors.New("event number or id is required")
	}
	if n, err := strconv.Atoi(ref); err == nil {
		events := st.List(false)
		if n < 1 || n > len(events) {
			return event.Event{}, -1, fmt.Errorf("no event number %d (have %d)", n, len(events))
		}
		return events[n-1], n - 1, nil
	}
	ev, ok := st.Get(ref)
	if !ok {
		return event.Event{}, -1, fmt.Errorf("event %s: %w", ref, store.ErrNotFound)
	}
	return ev, -1, nil
}

func checkCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "send reminders for every due event now",
		Action: func(c *cli.Context) error {
			w := c.App.Writer
			due := e.events().DueForNotification()
			if len(due) == 0 {
				fmt.Fprintln(w, "✅ Nema čekajućih obaveštenja.")
				return nil
			}

			fmt.Fprintf(w, "📢 Pronađeno %d događaj(a) koji zahteva obaveštenje:\n", len(due))
			for _, ev := range due {
				fmt.Fprintf(w, "\n📅 %s\n", ev.Title)
				fmt.Fprintf(w, "   ⏰ Zakazano: %s\n", ev.DateTime.Format("02.01.2006 15:04"))
				fmt.Fprintf(w, "   📍 Status: %s\n", ev.TimeUntil(e.now()))
			}

			sched, err := e.scheduler()
			if err != nil {
				return err
			}
			sent := sched.Tick(c.Context)
			fmt.Fprintf(w, "\n✅ Poslato obaveštenja: %d od %d\n", sent, len(due))
			if sent < len(due) {
				return fmt.Errorf("%d notification(s) failed, see log", len(due)-sent)
			}
			return nil
		},
	}
}

func testNotifyCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "test-notify",
		Usage: "send a test notification through the configured sinks",
		Action: func(c *cli.Context) error {
			sched, err := e.scheduler()
			if err != nil {
				return err
			}
			if err := sched.SendTestNotification(c.Context); err != nil {
				fmt.Fprintln(c.App.Writer, "💡 Proverite da vaš sistem podržava desktop obaveštenja.")
				return fmt.Errorf("test notification: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "✅ Test obaveštenje poslano!")
			return nil
		},
	}
}

func exportCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "write all events to a text report or an iCalendar file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "text", Usage: "text or ics"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file, - for stdout"},
		},
		Action: func(c *cli.Context) error {
			events := e.events().List(false)
			if len(events) == 0 {
				fmt.Fprintln(c.App.Writer, "❌ Nema događaja za izvoz.")
				return nil
			}

			now := e.now()
			var (
				write   func(io.Writer) error
				outPath = c.String("out")
			)
			switch c.String("format") {
			case "text", "txt":
				write = func(w io.Writer) error { return report.WriteExport(w, events, now) }
				if outPath == "" {
					outPath = report.ExportFileName(now)
				}
			case "ics", "ical":
				write = func(w io.Writer) error { return ics.Export(w, events, now) }
				if outPath == "" {
					outPath = "planer.ics"
				}
			default:
				return fmt.Errorf("unknown export format %q", c.String("format"))
			}

			if outPath == "-" {
				return write(c.App.Writer)
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := write(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✅ Događaji izvezeni u: %s\n", outPath)
			return nil
		},
	}
}

func importCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "add events from an .ics file or calendar URL",
		ArgsUsage: "<file|url>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Usage: "import occurrences this many days ahead (default import_horizon_days)"},
		},
		Action: func(c *cli.Context) error {
			location := c.Args().First()
			if location == "" {
				return errors.New("calendar file or URL is required")
			}
			days := e.cfg.ImportHorizonDays
			if c.IsSet("days") {
				days = c.Int("days")
			}

			res, err := ics.Import(c.Context, ics.NewFetcher(e.cfg.ICSCacheDir), location, e.events(), ics.ImportOptions{
				Now:                e.now(),
				HorizonDays:        days,
				DefaultLeadMinutes: e.cfg.DefaultLeadMinutes,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✅ Uvezeno: %d, već postoji: %d, preskočeno: %d\n", res.Added, res.Existing, res.Skipped)
			return nil
		},
	}
}

func tagsCommand(_ *env) *cli.Command {
	return &cli.Command{
		Name:  "tags",
		Usage: "list the allowed event labels",
		Action: func(c *cli.Context) error {
			for _, t := range event.Tags {
				fmt.Fprintln(c.App.Writer, t)
			}
			return nil
		},
	}
}

func runCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the reminder scheduler and the HTTP API until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "HTTP listen address (overrides listen)"},
			&cli.BoolFlag{Name: "no-http", Usage: "run the scheduler only"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if v := c.String("listen"); v != "" {
				e.cfg.Listen = v
			}

			st := e.events()
			sched, err := e.scheduler()
			if err != nil {
				return err
			}
			if err := sched.Start(); err != nil {
				return err
			}

			var srv *http.Server
			errCh := make(chan error, 1)
			if !c.Bool("no-http") {
				srv = &http.Server{
					Addr:              e.cfg.Listen,
					Handler:           web.NewServer(e.cfg, st, sched).Handler(),
					ReadHeaderTimeout: 10 * time.Second,
				}
				go func() {
					appLog.Info("starting HTTP server", "listen", "http://"+e.cfg.Listen)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errCh <- err
					}
				}()
			}

			appLog.Info("planner running", "events", st.Len(), "data_file", st.Path())

			var runErr error
			select {
			case <-ctx.Done():
				appLog.Info("signal received, shutting down")
			case runErr = <-errCh:
				appLog.Error("HTTP server failed", runErr)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if srv != nil {
				if err := srv.Shutdown(shutdownCtx); err != nil {
					appLog.Error("HTTP shutdown failed", err)
				}
			}
			if err := sched.Stop(shutdownCtx); err != nil {
				appLog.Error("scheduler stop failed", err)
			}
			appLog.Info("planner exiting")
			return runErr
		},
	}
}
