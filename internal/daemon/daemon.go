package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/obsidianstack/sensorsd/internal/config"
	"github.com/obsidianstack/sensorsd/internal/engine"
	"github.com/obsidianstack/sensorsd/internal/sensor"
)

var (
	// ErrNoSensors is returned by Init when the source enumerates nothing.
	ErrNoSensors = errors.New("daemon: no sensors found")
	// ErrNoWatches is returned by Init when no known sensor is configured.
	ErrNoWatches = errors.New("daemon: no watches defined")
)

// Reporter reports the status changes recorded after since.
// *alert.Dispatcher implements it.
type Reporter interface {
	Report(since time.Time) int
}

// Loader re-reads the configuration on reload.
type Loader func() (*config.Config, error)

// Init enumerates src, builds the watch table and applies the thresholds of
// cfg. It fails when there is nothing to watch.
func Init(ctx context.Context, cfg *config.Config, src sensor.Source) (*engine.Table, error) {
	ids, err := src.Enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("daemon: enumerate sensors: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNoSensors
	}

	table := engine.NewTable(ids)
	watches, err := table.Apply(Thresholds(cfg))
	if err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}
	if watches == 0 {
		return nil, ErrNoWatches
	}

	slog.Info("daemon: startup", "watches", watches, "sensors", table.Len())
	return table, nil
}

// Daemon drives the check and report cycles.
type Daemon struct {
	source   sensor.Source
	table    *engine.Table
	reporter Reporter
	load     Loader

	checkInterval   time.Duration
	reportInterval  time.Duration
	failOnReadError bool

	reload atomic.Bool
	wake   chan struct{}

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New creates a Daemon with the cycle settings of cfg. load is called on
// every reload request.
func New(cfg *config.Config, src sensor.Source, table *engine.Table, r Reporter, load Loader) *Daemon {
	return &Daemon{
		source:          src,
		table:           table,
		reporter:        r,
		load:            load,
		checkInterval:   cfg.CheckInterval,
		reportInterval:  cfg.ReportInterval,
		failOnReadError: cfg.FailOnReadError,
		wake:            make(chan struct{}, 1),
		now:             time.Now,
		after:           time.After,
	}
}

// RequestReload asks the loop to re-read its configuration before its next
// cycle. It is safe to call from any goroutine, including signal handlers;
// requests made before the loop gets to them collapse into one reload.
func (d *Daemon) RequestReload() {
	d.reload.Store(true)
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run samples and reports until ctx is cancelled, then returns nil. It only
// returns an error when a sensor read fails and fail_on_read_error is set.
func (d *Daemon) Run(ctx context.Context) error {
	var lastReport time.Time
	nextCheck := d.now()
	nextReport := nextCheck

	for {
		if d.reload.Swap(false) {
			d.reloadConfig()
		}

		if !d.now().Before(nextCheck) {
			if err := d.table.Check(ctx, d.source); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if d.failOnReadError {
					return fmt.Errorf("daemon: check sensors: %w", err)
				}
				slog.Warn("daemon: sensor read failed", "err", err)
			}
			nextCheck = d.now().Add(d.checkInterval)
		}

		if !d.now().Before(nextReport) {
			// Anchor the window to when the report ran; the check above may
			// have stamped changes after the scheduled report time.
			reportedAt := d.now()
			if n := d.reporter.Report(lastReport); n > 0 {
				slog.Debug("daemon: reported changes", "count", n)
			}
			lastReport = reportedAt
			nextReport = d.now().Add(d.reportInterval)
		}

		next := nextCheck
		if nextReport.Before(next) {
			next = nextReport
		}
		if wait := next.Sub(d.now()); wait > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-d.wake:
			case <-d.after(wait):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// reloadConfig re-reads the configuration and applies it. On any failure the
// previous thresholds and cycle settings stay in effect.
func (d *Daemon) reloadConfig() {
	cfg, err := d.load()
	if err != nil {
		slog.Error("daemon: error in config file", "err", err)
		return
	}
	watches, err := d.table.Apply(Thresholds(cfg))
	if err != nil {
		slog.Error("daemon: error in config file", "err", err)
		return
	}

	d.checkInterval = cfg.CheckInterval
	d.reportInterval = cfg.ReportInterval
	d.failOnReadError = cfg.FailOnReadError

	slog.Info("daemon: configuration reloaded", "watches", watches)
	if watches == 0 {
		slog.Warn("daemon: no watches defined after reload")
	}
}

// Thresholds adapts a loaded configuration to the engine's threshold lookup.
func Thresholds(cfg *config.Config) engine.ThresholdProvider {
	return configThresholds{cfg: cfg}
}

type configThresholds struct {
	cfg *config.Config
}

func (c configThresholds) Lookup(key string) (engine.Threshold, bool) {
	w, ok := c.cfg.Lookup(key)
	if !ok {
		return engine.Threshold{}, false
	}
	return engine.Threshold{Low: w.Low, High: w.High, Command: w.Command}, true
}
