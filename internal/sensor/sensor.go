package sensor

import (
	"context"
	"fmt"
)

// Kind is the physical quantity a sensor measures.
type Kind int

// Sensor kinds. The order matches the kernel sensor framework the daemon was
// modelled on; names are what appear in node keys (e.g. "coretemp0.temp0").
const (
	KindTemp Kind = iota
	KindFan
	KindVoltsDC
	KindVoltsAC
	KindOhms
	KindWatts
	KindAmps
	KindWattHour
	KindAmpHour
	KindIndicator
	KindInteger
	KindPercent
	KindLux
	KindDrive
	kindMax
)

var kindNames = [...]string{
	KindTemp:      "temp",
	KindFan:       "fan",
	KindVoltsDC:   "volt",
	KindVoltsAC:   "acvolt",
	KindOhms:      "resistance",
	KindWatts:     "power",
	KindAmps:      "current",
	KindWattHour:  "watthour",
	KindAmpHour:   "amphour",
	KindIndicator: "indicator",
	KindInteger:   "raw",
	KindPercent:   "percent",
	KindLux:       "illuminance",
	KindDrive:     "drive",
}

// String returns the node-key name of k, or "unknown" for out-of-range kinds.
func (k Kind) String() string {
	if k < 0 || k >= kindMax {
		return "unknown"
	}
	return kindNames[k]
}

// Kinds returns every defined kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindMax)
	for k := KindTemp; k < kindMax; k++ {
		out = append(out, k)
	}
	return out
}

// Status is the classification of a reading. Sources report raw statuses;
// the engine only ever exposes OK, Warn and Crit as a visible status.
type Status int

const (
	StatusUnspec Status = iota
	StatusOK
	StatusWarn
	StatusCrit
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusUnspec:
		return "unspec"
	case StatusOK:
		return "ok"
	case StatusWarn:
		return "warning"
	case StatusCrit:
		return "critical"
	case StatusUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ID names one hardware sensor. It is assigned once at enumeration and never
// changes for the lifetime of the process.
type ID struct {
	Device string
	Kind   Kind
	Index  int
}

// Key renders the stable node key used to look up thresholds:
// <device>.<kind><index>.
func (id ID) Key() string {
	return fmt.Sprintf("%s.%s%d", id.Device, id.Kind, id.Index)
}

func (id ID) String() string { return id.Key() }

// Reading is one sample returned by a Source.
type Reading struct {
	Value  int64
	Status Status
}

// Source enumerates the sensors of a machine and reads their current values.
//
// Values are in the raw fixed-point unit of the kind: micro-kelvin for
// temperatures, RPM for fans, micro-volts/amps, milli-percent, micro-lux.
type Source interface {
	// Enumerate lists the sensors available at startup. Sensors that exist
	// but cannot currently produce a value are omitted.
	Enumerate(ctx context.Context) ([]ID, error)

	// Read returns the current value and raw status of id.
	Read(ctx context.Context, id ID) (Reading, error)
}
