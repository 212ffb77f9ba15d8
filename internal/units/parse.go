package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/obsidianstack/sensorsd/internal/sensor"
)

var (
	// ErrInvalidNumber means the text has no leading numeric component.
	ErrInvalidNumber = errors.New("units: invalid number")
	// ErrUnknownUnit means the kind needs a unit suffix and none known follows.
	ErrUnknownUnit = errors.New("units: unknown unit")
	// ErrUnsupportedKind means thresholds cannot be expressed for the kind.
	ErrUnsupportedKind = errors.New("units: unsupported sensor kind")
)

// Parse converts a threshold text such as "85C", "150F", "11.5V" or "40"
// into the raw fixed-point value of kind k.
//
// An empty text means no limit: math.MaxInt64 when upper is set, otherwise
// math.MinInt64.
func Parse(text string, upper bool, k sensor.Kind) (int64, error) {
	if text == "" {
		if upper {
			return math.MaxInt64, nil
		}
		return math.MinInt64, nil
	}

	val, rest, ok := leadingFloat(text)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, text)
	}
	unit := strings.TrimLeft(rest, " \t")

	switch k {
	case sensor.KindTemp:
		// Accept what Format produces ("26.85 degC") as well as "26.85C".
		unit = strings.TrimPrefix(strings.TrimPrefix(unit, "deg"), "°")
		switch {
		case strings.HasPrefix(unit, "C"):
			return scaled(val+273.15, 1e6), nil
		case strings.HasPrefix(unit, "F"):
			return scaled((val-32)/9*5+273.15, 1e6), nil
		default:
			return 0, fmt.Errorf("%w %q for temp sensor", ErrUnknownUnit, unit)
		}
	case sensor.KindVoltsDC:
		if !strings.HasPrefix(unit, "V") {
			return 0, fmt.Errorf("%w %q for voltage sensor", ErrUnknownUnit, unit)
		}
		return scaled(val, 1e6), nil
	case sensor.KindPercent:
		return scaled(val, 1e3), nil
	case sensor.KindLux:
		return scaled(val, 1e6), nil
	case sensor.KindFan, sensor.KindIndicator, sensor.KindInteger, sensor.KindDrive:
		return truncate(val), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedKind, k)
	}
}

// scaled multiplies and rounds to the nearest raw unit, so "4.35V" is
// 4350000 and not 4349999.
func scaled(v, factor float64) int64 {
	return clampInt64(math.Round(v * factor))
}

func truncate(v float64) int64 {
	return clampInt64(math.Trunc(v))
}

func clampInt64(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	case v <= math.MinInt64:
		return math.MinInt64
	}
	return int64(v)
}

// leadingFloat parses the longest decimal float prefix of s (after leading
// blanks) and returns it with the unparsed remainder.
func leadingFloat(s string) (float64, string, bool) {
	s = strings.TrimLeft(s, " \t")
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0, s, false
	}
	// Exponent only counts when at least one digit follows it.
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			i = j
		}
	}
	v, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		// Out of range: ParseFloat still returns ±Inf, which is a usable limit.
		var numErr *strconv.NumError
		if !errors.As(err, &numErr) || !errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, s, false
		}
	}
	return v, s[i:], true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
