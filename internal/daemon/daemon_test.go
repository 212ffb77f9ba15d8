package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/obsidianstack/sensorsd/internal/alert"
	"github.com/obsidianstack/sensorsd/internal/config"
	"github.com/obsidianstack/sensorsd/internal/engine"
	"github.com/obsidianstack/sensorsd/internal/sensor"
	"github.com/obsidianstack/sensorsd/internal/units"
)

var (
	t0    = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	temp0 = sensor.ID{Device: "coretemp0", Kind: sensor.KindTemp, Index: 0}
	fan0  = sensor.ID{Device: "nct6775_0", Kind: sensor.KindFan, Index: 0}
)

// fakeClock advances when the loop sleeps and, if step is set, by step on
// every read.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.t = c.t.Add(d)
	now := c.t
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

type fakeSource struct {
	mu       sync.Mutex
	ids      []sensor.ID
	readings map[sensor.ID]sensor.Reading
	err      error
	reads    int
}

func (f *fakeSource) Enumerate(context.Context) ([]sensor.ID, error) { return f.ids, nil }

func (f *fakeSource) Read(_ context.Context, id sensor.ID) (sensor.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return sensor.Reading{}, f.err
	}
	return f.readings[id], nil
}

// stopAfter records each report window and cancels the loop after n reports.
type stopAfter struct {
	n      int
	table  *engine.Table
	cancel context.CancelFunc
	since  []time.Time
	counts []int
}

func (s *stopAfter) Report(since time.Time) int {
	changed := len(s.table.ChangedSince(since))
	s.since = append(s.since, since)
	s.counts = append(s.counts, changed)
	if len(s.since) == s.n {
		s.cancel()
	}
	return changed
}

func baseConfig() *config.Config {
	return &config.Config{
		CheckInterval:  20 * time.Second,
		ReportInterval: 60 * time.Second,
		Watches: map[string]config.Watch{
			temp0.Key(): {High: "80C"},
		},
	}
}

func okSource() *fakeSource {
	return &fakeSource{
		ids: []sensor.ID{temp0, fan0},
		readings: map[sensor.ID]sensor.Reading{
			temp0: {Value: 300000000, Status: sensor.StatusUnspec},
			fan0:  {Value: 1200, Status: sensor.StatusUnspec},
		},
	}
}

// newTestDaemon wires a daemon to a fake clock and source.
func newTestDaemon(t *testing.T, cfg *config.Config, src *fakeSource, load Loader) (*Daemon, *engine.Table, *fakeClock) {
	t.Helper()
	table, err := Init(context.Background(), cfg, src)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	clk := &fakeClock{t: t0}
	table.SetClock(clk.Now)

	if load == nil {
		load = func() (*config.Config, error) { return cfg, nil }
	}
	d := New(cfg, src, table, nil, load)
	d.now = clk.Now
	d.after = clk.After
	return d, table, clk
}

func run(ctx context.Context, t *testing.T, cancel context.CancelFunc, d *Daemon, r Reporter) error {
	t.Helper()
	d.reporter = r
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("Run did not return")
		return nil
	}
}

func TestInit(t *testing.T) {
	t.Run("no sensors", func(t *testing.T) {
		_, err := Init(context.Background(), baseConfig(), &fakeSource{})
		if !errors.Is(err, ErrNoSensors) {
			t.Errorf("error = %v, want ErrNoSensors", err)
		}
	})
	t.Run("no watches", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Watches = map[string]config.Watch{"other0.temp0": {High: "80C"}}
		_, err := Init(context.Background(), cfg, okSource())
		if !errors.Is(err, ErrNoWatches) {
			t.Errorf("error = %v, want ErrNoWatches", err)
		}
	})
	t.Run("bad threshold", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Watches[temp0.Key()] = config.Watch{High: "80"}
		_, err := Init(context.Background(), cfg, okSource())
		if !errors.Is(err, units.ErrUnknownUnit) {
			t.Errorf("error = %v, want ErrUnknownUnit", err)
		}
	})
	t.Run("ok", func(t *testing.T) {
		table, err := Init(context.Background(), baseConfig(), okSource())
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if table.Len() != 2 {
			t.Errorf("Len() = %d, want 2", table.Len())
		}
	})
}

func TestRun_Cadence(t *testing.T) {
	src := okSource()
	d, table, _ := newTestDaemon(t, baseConfig(), src, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rep := &stopAfter{n: 3, table: table, cancel: cancel}
	if err := run(ctx, t, cancel, d, rep); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantSince := []time.Time{{}, t0, t0.Add(60 * time.Second)}
	for i, want := range wantSince {
		if !rep.since[i].Equal(want) {
			t.Errorf("report %d since = %v, want %v", i, rep.since[i], want)
		}
	}
	// The initial OK state is reported once, then nothing changes.
	if rep.counts[0] != 1 || rep.counts[1] != 0 || rep.counts[2] != 0 {
		t.Errorf("changes per report = %v, want [1 0 0]", rep.counts)
	}
	// Checks at 0, 20, 40, 60, 80, 100 and 120s; only temp0 is watched.
	if src.reads != 7 {
		t.Errorf("reads = %d, want 7", src.reads)
	}
}

func TestRun_ChangesReportedOnceWhileClockRuns(t *testing.T) {
	src := okSource()
	d, table, clk := newTestDaemon(t, baseConfig(), src, nil)
	clk.step = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rep := &stopAfter{n: 3, table: table, cancel: cancel}
	if err := run(ctx, t, cancel, d, rep); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if rep.counts[0] != 1 || rep.counts[1] != 0 || rep.counts[2] != 0 {
		t.Errorf("changes per report = %v, want [1 0 0]", rep.counts)
	}
	r, _ := table.Get(temp0.Key())
	if !rep.since[1].After(r.ChangedAt) {
		t.Errorf("second window starts at %v, not after the change at %v", rep.since[1], r.ChangedAt)
	}
}

type recordingLauncher struct {
	mu       sync.Mutex
	commands []string
}

func (l *recordingLauncher) Launch(cmd string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commands = append(l.commands, cmd)
	return nil
}

// cancelOnReport stops the loop after n reports.
type cancelOnReport struct {
	Reporter
	n      int
	calls  int
	cancel context.CancelFunc
}

func (c *cancelOnReport) Report(since time.Time) int {
	n := c.Reporter.Report(since)
	c.calls++
	if c.calls == c.n {
		c.cancel()
	}
	return n
}

func TestRun_AlertsAfterDebounce(t *testing.T) {
	cfg := baseConfig()
	cfg.Watches[temp0.Key()] = config.Watch{High: "80C", Command: "alert %x.%t%n %2 over %4"}
	src := okSource()
	src.readings[temp0] = sensor.Reading{Value: 363150000, Status: sensor.StatusUnspec} // 90C

	d, table, _ := newTestDaemon(t, cfg, src, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := &recordingLauncher{}
	rep := &cancelOnReport{Reporter: alert.NewDispatcher(table, l, nil), n: 2, cancel: cancel}
	if err := run(ctx, t, cancel, d, rep); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	r, _ := table.Get(temp0.Key())
	if r.Visible != sensor.StatusCrit || !r.ChangedAt.Equal(t0.Add(40*time.Second)) {
		t.Errorf("visible=%s changedAt=%v, want critical at +40s", r.Visible, r.ChangedAt)
	}
	if len(l.commands) != 1 || l.commands[0] != "alert coretemp0.temp0 90.00 degC over 80.00 degC" {
		t.Errorf("commands = %q", l.commands)
	}
}

func TestRun_ReloadAppliesThresholdsAndIntervals(t *testing.T) {
	cfg := baseConfig()
	next := baseConfig()
	next.CheckInterval = 10 * time.Second
	next.Watches[temp0.Key()] = config.Watch{High: "95C"}

	loads := 0
	src := okSource()
	d, table, _ := newTestDaemon(t, cfg, src, func() (*config.Config, error) {
		loads++
		return next, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.RequestReload()
	d.RequestReload()
	d.RequestReload()

	rep := &stopAfter{n: 2, table: table, cancel: cancel}
	if err := run(ctx, t, cancel, d, rep); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if loads != 1 {
		t.Errorf("loads = %d, want repeated requests to collapse into 1", loads)
	}
	r, _ := table.Get(temp0.Key())
	want, _ := units.Parse("95C", true, sensor.KindTemp)
	if r.Upper != want {
		t.Errorf("Upper = %d, want %d", r.Upper, want)
	}
	// Checks every 10s from 0 to 60s inclusive.
	if src.reads != 7 {
		t.Errorf("reads = %d, want 7 with the reloaded check interval", src.reads)
	}
}

func TestRun_FailedReloadKeepsThresholds(t *testing.T) {
	tests := []struct {
		name string
		load Loader
	}{
		{"load error", func() (*config.Config, error) { return nil, errors.New("parse yaml") }},
		{"bad threshold", func() (*config.Config, error) {
			c := baseConfig()
			c.CheckInterval = time.Second
			c.Watches[temp0.Key()] = config.Watch{High: "hot"}
			return c, nil
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := okSource()
			d, table, _ := newTestDaemon(t, baseConfig(), src, tc.load)
			before, _ := table.Get(temp0.Key())
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			d.RequestReload()
			rep := &stopAfter{n: 1, table: table, cancel: cancel}
			if err := run(ctx, t, cancel, d, rep); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			after, _ := table.Get(temp0.Key())
			if after.Upper != before.Upper {
				t.Errorf("Upper changed after failed reload: %d -> %d", before.Upper, after.Upper)
			}
			if d.checkInterval != 20*time.Second {
				t.Errorf("checkInterval = %v, want previous 20s", d.checkInterval)
			}
		})
	}
}

func TestRun_ReadFailure(t *testing.T) {
	boom := errors.New("sysfs gone")

	t.Run("skipped by default", func(t *testing.T) {
		src := okSource()
		src.err = boom
		d, table, _ := newTestDaemon(t, baseConfig(), src, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		rep := &stopAfter{n: 2, table: table, cancel: cancel}
		if err := run(ctx, t, cancel, d, rep); err != nil {
			t.Fatalf("Run() error = %v, want nil", err)
		}
		if len(rep.since) != 2 {
			t.Errorf("reports = %d, want loop to keep running", len(rep.since))
		}
	})

	t.Run("fatal when configured", func(t *testing.T) {
		cfg := baseConfig()
		cfg.FailOnReadError = true
		src := okSource()
		src.err = boom
		d, table, _ := newTestDaemon(t, cfg, src, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		rep := &stopAfter{n: 100, table: table, cancel: cancel}
		if err := run(ctx, t, cancel, d, rep); !errors.Is(err, boom) {
			t.Errorf("Run() error = %v, want %v", err, boom)
		}
	})
}

func TestRun_StopsOnCancel(t *testing.T) {
	d, _, _ := newTestDaemon(t, baseConfig(), okSource(), nil)
	d.after = func(time.Duration) <-chan time.Time { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	reports := 0
	rep := reporterFunc(func(time.Time) int {
		reports++
		cancel()
		return 0
	})
	if err := run(ctx, t, cancel, d, rep); err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if reports != 1 {
		t.Errorf("reports = %d, want 1", reports)
	}
}

type reporterFunc func(time.Time) int

func (f reporterFunc) Report(since time.Time) int { return f(since) }
