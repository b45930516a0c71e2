// Package sdnotify reports service state to systemd (Type=notify units)
// and feeds the unit watchdog. Outside systemd every call is a no-op.
package sdnotify

import (
	"context"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "smartsched/pkg/logx"
)

type Notifier struct {
	log logx.Logger
}

func New(log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{log: log.With(logx.String("comp", "systemd"))}
}

func (n *Notifier) send(states ...string) {
	sent, err := daemon.SdNotify(false, strings.Join(states, "\n"))
	if err != nil {
		n.log.Warn("sd_notify failed", logx.Strs("state", states), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify", logx.Strs("state", states))
	}
}

func (n *Notifier) Ready()    { n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Status sets the free-form line shown by systemctl status.
func (n *Notifier) Status(msg string) {
	n.send("STATUS=" + strings.ReplaceAll(msg, "\n", " "))
}

// Watchdog pings systemd at half the configured WatchdogSec until ctx is
// done. It returns immediately when the unit has no watchdog.
func (n *Notifier) Watchdog(ctx context.Context) error {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return err
	}
	if every <= 0 {
		return nil
	}
	every /= 2
	n.log.Info("watchdog enabled", logx.Duration("interval", every))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		n.send(daemon.SdNotifyWatchdog)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
