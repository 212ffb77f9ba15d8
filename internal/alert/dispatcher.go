package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/sensorsd/internal/engine"
	"github.com/obsidianstack/sensorsd/internal/notify"
	"github.com/obsidianstack/sensorsd/internal/units"
)

const notifyTimeout = 30 * time.Second

// EventNotifier receives every reported status change. *notify.Fanout
// implements it.
type EventNotifier interface {
	Notify(ctx context.Context, ev notify.Event) error
}

// Dispatcher reports status changes from a watch table: a log record per
// change, the sensor's command if one is configured, and an event for the
// notifiers.
type Dispatcher struct {
	table    *engine.Table
	launcher Launcher
	notifier EventNotifier

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. notifier may be nil.
func NewDispatcher(table *engine.Table, l Launcher, n EventNotifier) *Dispatcher {
	return &Dispatcher{table: table, launcher: l, notifier: n}
}

// Report handles every record whose visible status changed strictly after
// since and returns how many were reported. A command that cannot be
// expanded or started is logged and skipped; the remaining records are
// still reported.
func (d *Dispatcher) Report(since time.Time) int {
	changed := d.table.ChangedSince(since)
	for _, r := range changed {
		d.report(r)
	}
	return len(changed)
}

func (d *Dispatcher) report(r engine.Record) {
	key := r.ID.Key()
	value := units.Format(r.ID.Kind, r.LastValue)

	if r.WithinLimits() {
		slog.Info("alert: within limits", "sensor", key, "value", value)
	} else {
		slog.Warn("alert: exceed limits", "sensor", key, "value", value, "status", r.Visible.String())
	}

	if r.Command != "" {
		d.runCommand(key, r)
	}

	if d.notifier != nil {
		ev := notify.NewEvent(r)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			// Fanout logs per-target failures itself.
			_ = d.notifier.Notify(ctx, ev)
		}()
	}
}

func (d *Dispatcher) runCommand(key string, r engine.Record) {
	cmd, err := Expand(r.Command, VarsFor(r))
	if err != nil {
		slog.Error("alert: could not expand command", "sensor", key, "err", err)
		return
	}
	if cmd == "" {
		return
	}
	if err := d.launcher.Launch(cmd); err != nil {
		slog.Error("alert: could not launch command", "sensor", key, "err", err)
		return
	}
	slog.Debug("alert: command launched", "sensor", key, "command", cmd)
}

// Wait blocks until every in-flight notifier delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
