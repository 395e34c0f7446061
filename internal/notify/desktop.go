package notify

import (
	"context"
	"sync"

	"github.com/gen2brain/beeep"
)

// Sender shows one desktop notification. Tests replace it.
type Sender func(appName, title, body string) error

// beeep keeps the application name in a package variable.
var beeepMu sync.Mutex

func beeepSend(appName, title, body string) error {
	beeepMu.Lock()
	defer beeepMu.Unlock()
	if appName != "" {
		beeep.AppName = appName
	}
	return beeep.Notify(title, body, "")
}

// Desktop shows notifications through the OS facility: D-Bus (falling back
// to notify-send) on Linux/BSD, terminal-notifier or osascript on macOS and
// toast notifications on Windows.
type Desktop struct {
	send Sender
}

func NewDesktop() *Desktop {
	return &Desktop{send: beeepSend}
}

// Notify returns when the notification is shown or ctx is done, whichever
// comes first. A send abandoned on ctx still finishes in the background.
func (d *Desktop) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- d.send(msg.AppName, msg.Title, msg.Body)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
