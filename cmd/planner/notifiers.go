package main

import (
	"officeplanner/internal/config"
	appLog "officeplanner/internal/log"
	"officeplanner/internal/notify"
)

// buildNotifier assembles the configured sinks. A sink that cannot be
// constructed is an error; with none enabled, reminders go to the log.
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	var sinks []notify.Named

	if cfg.Notifiers.Desktop {
		sinks = append(sinks, notify.Named{Name: "desktop", Notifier: notify.NewDesktop()})
	}

	if tg := cfg.Notifiers.Telegram; tg != nil {
		t, err := notify.NewTelegram(tg.Token, tg.ChatID)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, notify.Named{Name: "telegram", Notifier: t})
	}

	if em := cfg.Notifiers.Email; em != nil {
		e, err := notify.NewEmail(notify.EmailConfig{
			Region:          em.Region,
			AccessKeyID:     em.AccessKeyID,
			SecretAccessKey: em.SecretAccessKey,
			From:            em.From,
			To:              em.To,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, notify.Named{Name: "email", Notifier: e})
	}

	if len(sinks) == 0 {
		appLog.Warn("no notifiers enabled; reminders are only logged")
		sinks = append(sinks, notify.Named{Name: "log", Notifier: notify.Log{}})
	}
	return notify.NewMulti(sinks...), nil
}
