package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/sensorsd/internal/config"
	"github.com/obsidianstack/sensorsd/internal/engine"
	"github.com/obsidianstack/sensorsd/internal/units"
)

// Limits at these values are unset.
const (
	minLimit = math.MinInt64
	maxLimit = math.MaxInt64
)

// Event is one reported status change, as delivered to every notifier.
type Event struct {
	ID        string    `json:"id"`
	Sensor    string    `json:"sensor"`
	Device    string    `json:"device"`
	Kind      string    `json:"kind"`
	Index     int       `json:"index"`
	Status    string    `json:"status"`
	State     string    `json:"state"` // "exceed" | "within"
	Value     string    `json:"value"`
	Raw       int64     `json:"raw"`
	Lower     string    `json:"lower,omitempty"`
	Upper     string    `json:"upper,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// NewEvent builds the event for a changed record. Unset limits are left
// empty rather than rendered as the int64 extremes.
func NewEvent(r engine.Record) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Sensor:    r.ID.Key(),
		Device:    r.ID.Device,
		Kind:      r.ID.Kind.String(),
		Index:     r.ID.Index,
		Status:    r.Visible.String(),
		State:     "within",
		Value:     units.Format(r.ID.Kind, r.LastValue),
		Raw:       r.LastValue,
		ChangedAt: r.ChangedAt,
	}
	if !r.WithinLimits() {
		ev.State = "exceed"
	}
	if r.Lower != minLimit {
		ev.Lower = units.Format(r.ID.Kind, r.Lower)
	}
	if r.Upper != maxLimit {
		ev.Upper = units.Format(r.ID.Kind, r.Upper)
	}
	return ev
}

// Message is the one-line human form used by chat webhooks.
func (e Event) Message() string {
	return fmt.Sprintf("%s: %s limits, value: %s", e.Sensor, e.State, e.Value)
}

// Notifier delivers alert events to one external target.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
	Close() error
}

// Fanout delivers each event to every configured notifier in turn.
// A Fanout with no notifiers is valid; Notify becomes a no-op.
type Fanout struct {
	notifiers []Notifier
}

// NewFanout groups notifiers.
func NewFanout(n ...Notifier) *Fanout {
	return &Fanout{notifiers: n}
}

// Build connects every target enabled in cfg. On error, notifiers already
// connected are closed.
func Build(cfg config.NotifyConfig) (*Fanout, error) {
	f := &Fanout{}
	for _, wh := range cfg.Webhooks {
		f.notifiers = append(f.notifiers, NewWebhook(wh.Type, wh.URL()))
	}
	if cfg.MQTT.Enabled() {
		m, err := NewMQTT(cfg.MQTT)
		if err != nil {
			f.Close()
			return nil, err
		}
		f.notifiers = append(f.notifiers, m)
	}
	if cfg.NATS.Enabled() {
		n, err := NewNATS(cfg.NATS)
		if err != nil {
			f.Close()
			return nil, err
		}
		f.notifiers = append(f.notifiers, n)
	}
	return f, nil
}

// Len returns the number of notifiers.
func (f *Fanout) Len() int { return len(f.notifiers) }

// Notify delivers ev to every notifier. Failures are logged and returned
// joined; one failing target never stops the others.
func (f *Fanout) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			slog.Error("notify: delivery failed",
				"notifier", n.Name(),
				"sensor", ev.Sensor,
				"err", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		slog.Debug("notify: delivered", "notifier", n.Name(), "sensor", ev.Sensor, "state", ev.State)
	}
	return errors.Join(errs...)
}

// Close releases every notifier's connection.
func (f *Fanout) Close() error {
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
