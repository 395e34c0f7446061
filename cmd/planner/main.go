package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"officeplanner/internal/config"
	appLog "officeplanner/internal/log"
	"officeplanner/internal/notify"
	"officeplanner/internal/scheduler"
	"officeplanner/internal/store"
)

const version = "0.1.0"

// env is the state shared by all commands, filled in by the Before hook.
type env struct {
	cfg   *config.Config
	store *store.Store
	now   func() time.Time

	// notifier overrides the configured sinks; tests set it.
	notifier notify.Notifier
}

func (e *env) events() *store.Store {
	if e.store == nil {
		e.store = store.Open(e.cfg.DataFile, store.WithClock(e.now))
		for _, err := range e.store.LoadErrors() {
			appLog.Warn("skipped malformed record", "path", e.cfg.DataFile, "err", err)
		}
	}
	return e.store
}

func (e *env) scheduler() (*scheduler.Scheduler, error) {
	n := e.notifier
	if n == nil {
		var err error
		if n, err = buildNotifier(e.cfg); err != nil {
			return nil, err
		}
	}
	loc, err := e.cfg.Location()
	if err != nil {
		return nil, err
	}
	return scheduler.New(e.events(), n, scheduler.Options{
		Spec:     e.cfg.Poll,
		AppName:  e.cfg.AppName,
		Timeout:  e.cfg.NotifyTimeout(),
		Location: loc,
		Now:      e.now,
	}), nil
}

func main() {
	if err := newApp(&env{now: time.Now}).Run(os.Args); err != nil {
		appLog.Error("planner failed", err)
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func newApp(e *env) *cli.App {
	return &cli.App{
		Name:    "planner",
		Usage:   "Pametni Kancelarijski Planer: office events with reminders",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "planner.yaml",
				Usage:   "path to the YAML config file (created on first run)",
				EnvVars: []string{"PLANNER_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "data",
				Usage: "events JSON file (overrides data_file)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (overrides log_level)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file with PLANNER_* secrets",
			},
		},
		Before: func(c *cli.Context) error {
			return e.setup(c)
		},
		Commands: []*cli.Command{
			listCommand(e),
			upcomingCommand(e),
			addCommand(e),
			editCommand(e),
			deleteCommand(e),
			checkCommand(e),
			testNotifyCommand(e),
			exportCommand(e),
			importCommand(e),
			tagsCommand(e),
			runCommand(e),
		},
	}
}

// setup loads .env, the config file and env overrides, then applies the
// log level and time zone.
func (e *env) setup(c *cli.Context) error {
	if err := config.LoadDotEnv(c.String("env-file")); err != nil {
		return fmt.Errorf("load %s: %w", c.String("env-file"), err)
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if v := c.String("data"); v != "" {
		cfg.DataFile = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	time.Local = loc

	e.cfg = cfg
	appLog.Debug("effective config",
		"config_path", c.String("config"),
		"data_file", cfg.DataFile,
		"timezone", loc.String(),
		"poll", cfg.Poll,
		"desktop", cfg.Notifiers.Desktop,
		"telegram", cfg.Notifiers.Telegram != nil,
		"email", cfg.Notifiers.Email != nil,
	)
	return nil
}
