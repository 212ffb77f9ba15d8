package engine

import (
	"time"

	"github.com/obsidianstack/sensorsd/internal/sensor"
)

// Classify maps a raw reading to the status the state machine works with.
// Unknown means the sensor could not judge itself, which is worth a warning.
// Unspec leaves the judgement to the configured limits.
func Classify(r *Record, reading sensor.Reading) sensor.Status {
	switch reading.Status {
	case sensor.StatusUnknown:
		return sensor.StatusWarn
	case sensor.StatusUnspec:
		if reading.Value < r.Lower || reading.Value > r.Upper {
			return sensor.StatusCrit
		}
		return sensor.StatusOK
	default:
		return reading.Status
	}
}

// Observe feeds one reading into r's state machine and reports whether the
// visible status changed.
//
// A return to OK is promoted at once. Any other status must be seen
// DebounceCount times in a row; a different abnormal status restarts the
// window. PendingCount counts the repeats after the reading that set
// Pending, so it is 0 right after Pending changes.
func Observe(r *Record, reading sensor.Reading, now time.Time) bool {
	r.LastValue = reading.Value
	status := Classify(r, reading)

	if status == r.Visible {
		return false
	}

	if status == sensor.StatusOK {
		r.Visible = status
		r.Pending = status
		r.PendingCount = 0
		r.ChangedAt = now
		return true
	}

	if status != r.Pending {
		r.Pending = status
		r.PendingCount = 0
	} else {
		r.PendingCount++
	}
	if r.PendingCount+1 < DebounceCount {
		return false
	}
	r.Visible = r.Pending
	r.PendingCount = 0
	r.ChangedAt = now
	return true
}
