package units

import (
	"fmt"
	"math"

	"github.com/obsidianstack/sensorsd/internal/sensor"
)

// kelvinOffset is 0 degC in micro-kelvin.
const kelvinOffset = 273150000

// driveStates names drive status values 1..10; 0 is not a valid state.
var driveStates = [...]string{
	"", "empty", "ready", "powerup", "online", "idle", "active",
	"rebuild", "powerdown", "fail", "pfail",
}

// Format renders a raw sensor value of kind k for humans, e.g.
// "26.85 degC", "2000 RPM", "12.05 V DC". Unknown kinds and out-of-range
// drive states render as "<raw> ???".
func Format(k sensor.Kind, raw int64) string {
	switch k {
	case sensor.KindTemp:
		if raw < math.MinInt64+kelvinOffset {
			return fmt.Sprintf("%.2f degC", float64(raw)/1e6-273.15)
		}
		return fmt.Sprintf("%.2f degC", float64(raw-kelvinOffset)/1e6)
	case sensor.KindFan:
		return fmt.Sprintf("%d RPM", raw)
	case sensor.KindVoltsDC:
		return fmt.Sprintf("%.2f V DC", float64(raw)/1e6)
	case sensor.KindAmps:
		return fmt.Sprintf("%.2f A", float64(raw)/1e6)
	case sensor.KindIndicator:
		if raw != 0 {
			return "On"
		}
		return "Off"
	case sensor.KindInteger:
		return fmt.Sprintf("%d raw", raw)
	case sensor.KindPercent:
		return fmt.Sprintf("%.2f%%", float64(raw)/1e3)
	case sensor.KindLux:
		return fmt.Sprintf("%.2f lx", float64(raw)/1e6)
	case sensor.KindDrive:
		if raw > 0 && raw < int64(len(driveStates)) {
			return driveStates[raw]
		}
	}
	return fmt.Sprintf("%d ???", raw)
}
