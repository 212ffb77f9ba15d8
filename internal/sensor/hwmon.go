package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultHwmonRoot is where the kernel exposes hwmon devices.
const DefaultHwmonRoot = "/sys/class/hwmon"

// ErrUnknownSensor is returned by Read for an ID the source never enumerated.
var ErrUnknownSensor = errors.New("sensor: unknown sensor")

// hwmon input prefixes and the kind each one maps to.
var hwmonPrefixes = map[string]Kind{
	"temp":     KindTemp,
	"fan":      KindFan,
	"in":       KindVoltsDC,
	"curr":     KindAmps,
	"humidity": KindPercent,
}

var hwmonInputRe = regexp.MustCompile(`^(temp|fan|in|curr|humidity)(\d+)_input$`)

// HwmonSource reads sensors from the Linux hwmon sysfs interface.
type HwmonSource struct {
	root     string
	channels map[ID]string // ID -> path prefix, e.g. /sys/class/hwmon/hwmon3/temp1
}

// NewHwmonSource returns a source rooted at root. An empty root means
// DefaultHwmonRoot.
func NewHwmonSource(root string) *HwmonSource {
	if root == "" {
		root = DefaultHwmonRoot
	}
	return &HwmonSource{root: root, channels: make(map[ID]string)}
}

type hwmonChannel struct {
	kind    Kind
	channel int
	prefix  string
}

// Enumerate walks every hwmonN directory in numeric order. Devices are named
// after the chip with a per-chip ordinal so duplicate chips (two NVMe drives)
// stay distinct. Inputs that cannot be read right now are skipped.
func (s *HwmonSource) Enumerate(ctx context.Context) ([]ID, error) {
	dirs, err := filepath.Glob(filepath.Join(s.root, "hwmon*"))
	if err != nil {
		return nil, fmt.Errorf("sensor: hwmon glob: %w", err)
	}
	sort.Slice(dirs, func(i, j int) bool {
		return hwmonNumber(dirs[i]) < hwmonNumber(dirs[j])
	})

	s.channels = make(map[ID]string)
	ordinals := make(map[string]int)
	var ids []ID

	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			slog.Debug("sensor: hwmon device without name, skipping", "dir", dir, "err", err)
			continue
		}
		chip := sanitizeDevice(strings.TrimSpace(string(raw)))
		device := deviceName(chip, ordinals[chip])
		ordinals[chip]++

		entries, err := os.ReadDir(dir)
		if err != nil {
			slog.Warn("sensor: cannot list hwmon device", "dir", dir, "err", err)
			continue
		}

		var chans []hwmonChannel
		for _, e := range entries {
			m := hwmonInputRe.FindStringSubmatch(e.Name())
			if m == nil {
				continue
			}
			n, _ := strconv.Atoi(m[2])
			prefix := filepath.Join(dir, m[1]+m[2])
			if _, err := readSysfsInt(prefix + "_input"); err != nil {
				continue
			}
			chans = append(chans, hwmonChannel{kind: hwmonPrefixes[m[1]], channel: n, prefix: prefix})
		}
		sort.Slice(chans, func(i, j int) bool {
			if chans[i].kind != chans[j].kind {
				return chans[i].kind < chans[j].kind
			}
			return chans[i].channel < chans[j].channel
		})

		index := make(map[Kind]int)
		for _, c := range chans {
			id := ID{Device: device, Kind: c.kind, Index: index[c.kind]}
			index[c.kind]++
			s.channels[id] = c.prefix
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Read samples one enumerated sensor.
func (s *HwmonSource) Read(_ context.Context, id ID) (Reading, error) {
	prefix, ok := s.channels[id]
	if !ok {
		return Reading{}, fmt.Errorf("%w: %s", ErrUnknownSensor, id.Key())
	}
	v, err := readSysfsInt(prefix + "_input")
	if err != nil {
		return Reading{}, fmt.Errorf("sensor: read %s: %w", id.Key(), err)
	}
	return Reading{Value: hwmonToRaw(id.Kind, v), Status: hwmonStatus(prefix)}, nil
}

// hwmonToRaw converts a sysfs value into the kind's raw unit.
func hwmonToRaw(k Kind, v int64) int64 {
	switch k {
	case KindTemp:
		return v*1000 + 273150000 // millidegree C -> micro-kelvin
	case KindVoltsDC, KindAmps:
		return v * 1000 // milli -> micro
	default:
		return v // fan RPM, humidity milli-percent
	}
}

// hwmonStatus derives a raw status from the optional alarm and fault files.
// Absent files mean the chip does not judge the value itself.
func hwmonStatus(prefix string) Status {
	if v, err := readSysfsInt(prefix + "_fault"); err == nil && v != 0 {
		return StatusUnknown
	}
	if v, err := readSysfsInt(prefix + "_crit_alarm"); err == nil && v != 0 {
		return StatusCrit
	}
	if v, err := readSysfsInt(prefix + "_alarm"); err == nil && v != 0 {
		return StatusWarn
	}
	return StatusUnspec
}

func readSysfsInt(path string) (int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
}

func hwmonNumber(dir string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(dir), "hwmon"))
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}

// deviceName appends the ordinal to chip, separated by '_' when the chip name
// already ends in a digit (nct6775 -> nct6775_0, coretemp -> coretemp0).
func deviceName(chip string, ordinal int) string {
	if last := chip[len(chip)-1]; last >= '0' && last <= '9' {
		return fmt.Sprintf("%s_%d", chip, ordinal)
	}
	return fmt.Sprintf("%s%d", chip, ordinal)
}

// sanitizeDevice keeps device names safe for node keys, which use '.' as a
// separator.
func sanitizeDevice(name string) string {
	if name == "" {
		return "hwmon"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
