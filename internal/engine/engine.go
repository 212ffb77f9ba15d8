package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/obsidianstack/sensorsd/internal/sensor"
	"github.com/obsidianstack/sensorsd/internal/units"
)

// DebounceCount is the number of consecutive identical abnormal readings
// needed before a non-OK status becomes visible.
const DebounceCount = 3

// Record is the watch state of one sensor. Records are created once at
// startup; reloads only change Watched, Lower, Upper and Command.
type Record struct {
	ID sensor.ID

	Watched bool
	Lower   int64
	Upper   int64
	Command string

	LastValue int64

	// Visible is the debounced status last promoted for reporting. It is
	// StatusUnspec until the sensor is evaluated for the first time.
	Visible sensor.Status

	// Pending is the most recent abnormal status not yet promoted, and
	// PendingCount the number of consecutive polls it has persisted since
	// it was first seen. It is 0 whenever Pending changes.
	Pending      sensor.Status
	PendingCount int

	// ChangedAt is when Visible last changed.
	ChangedAt time.Time
}

// WithinLimits reports whether the visible status is OK.
func (r Record) WithinLimits() bool { return r.Visible == sensor.StatusOK }

// Threshold is the textual watch configuration for one sensor.
type Threshold struct {
	Low     string
	High    string
	Command string
}

// ThresholdProvider looks up the watch configured for a node key.
type ThresholdProvider interface {
	Lookup(key string) (Threshold, bool)
}

// Table owns the watch records of every known sensor.
//
// All exported methods are safe for concurrent use; the lock is held for the
// whole of one check, apply or collection pass.
type Table struct {
	mu      sync.Mutex
	records []*Record
	index   map[sensor.ID]*Record
	now     func() time.Time
}

// NewTable creates an unwatched record for each id, in order.
func NewTable(ids []sensor.ID) *Table {
	t := &Table{
		records: make([]*Record, 0, len(ids)),
		index:   make(map[sensor.ID]*Record, len(ids)),
		now:     time.Now,
	}
	for _, id := range ids {
		if _, dup := t.index[id]; dup {
			continue
		}
		r := &Record{ID: id, Lower: math.MinInt64, Upper: math.MaxInt64}
		t.records = append(t.records, r)
		t.index[id] = r
	}
	return t
}

// SetClock replaces the time source used to stamp ChangedAt.
func (t *Table) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Len returns the number of known sensors.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

type pendingWatch struct {
	rec          *Record
	watched      bool
	lower, upper int64
	command      string
}

// Apply refreshes every record's watch settings from p and returns the number
// of watched sensors. Every bound is parsed before anything is changed: if one
// fails, the table keeps its previous settings and the error names the sensor.
func (t *Table) Apply(p ThresholdProvider) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make([]pendingWatch, 0, len(t.records))
	var errs []error
	watched := 0

	for _, r := range t.records {
		key := r.ID.Key()
		th, ok := p.Lookup(key)
		if !ok {
			next = append(next, pendingWatch{rec: r, lower: math.MinInt64, upper: math.MaxInt64})
			continue
		}
		lower, err := units.Parse(th.Low, false, r.ID.Kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s low: %w", key, err))
			continue
		}
		upper, err := units.Parse(th.High, true, r.ID.Kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s high: %w", key, err))
			continue
		}
		next = append(next, pendingWatch{rec: r, watched: true, lower: lower, upper: upper, command: th.Command})
		watched++
	}
	if len(errs) > 0 {
		return 0, fmt.Errorf("engine: apply thresholds: %w", errors.Join(errs...))
	}

	for _, w := range next {
		w.rec.Watched = w.watched
		w.rec.Lower = w.lower
		w.rec.Upper = w.upper
		w.rec.Command = w.command
	}
	return watched, nil
}

// Check reads every watched sensor from src and advances its state machine.
//
// A sensor that cannot be read keeps its previous state; the remaining
// sensors are still checked and all read errors are returned joined.
func (t *Table) Check(ctx context.Context, src sensor.Source) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for _, r := range t.records {
		if !r.Watched {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		reading, err := src.Read(ctx, r.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("engine: read %s: %w", r.ID.Key(), err))
			continue
		}
		if Observe(r, reading, t.now()) {
			slog.Debug("engine: status promoted",
				"sensor", r.ID.Key(),
				"status", r.Visible.String(),
				"value", units.Format(r.ID.Kind, r.LastValue),
			)
		}
	}
	return errors.Join(errs...)
}

// ChangedSince returns copies of the records whose visible status changed
// strictly after since, in enumeration order.
func (t *Table) ChangedSince(since time.Time) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Record
	for _, r := range t.records {
		if r.ChangedAt.After(since) {
			out = append(out, *r)
		}
	}
	return out
}

// Snapshot returns copies of all records in enumeration order.
func (t *Table) Snapshot() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, len(t.records))
	for i, r := range t.records {
		out[i] = *r
	}
	return out
}

// Get returns a copy of the record for the given node key.
func (t *Table) Get(key string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range t.records {
		if r.ID.Key() == key {
			return *r, true
		}
	}
	return Record{}, false
}
