package alert

import (
	"errors"
	"strconv"
	"strings"

	"github.com/obsidianstack/sensorsd/internal/engine"
	"github.com/obsidianstack/sensorsd/internal/units"
)

// MaxCommandLen bounds an expanded command: the result must be shorter.
const MaxCommandLen = 1024

// ErrCommandTooLong is returned by Expand when the expansion does not fit.
var ErrCommandTooLong = errors.New("alert: expanded command too long")

// Vars are the substitutions available to a command template.
type Vars struct {
	Device string // %x
	Kind   string // %t
	Index  int    // %n
	Value  string // %2
	Lower  string // %3
	Upper  string // %4
}

// VarsFor renders the template substitutions of a record.
func VarsFor(r engine.Record) Vars {
	return Vars{
		Device: r.ID.Device,
		Kind:   r.ID.Kind.String(),
		Index:  r.ID.Index,
		Value:  units.Format(r.ID.Kind, r.LastValue),
		Lower:  units.Format(r.ID.Kind, r.Lower),
		Upper:  units.Format(r.ID.Kind, r.Upper),
	}
}

// Expand substitutes the % tokens of tmpl:
//
//	%x  device name        %2  current value
//	%t  sensor kind        %3  lower limit
//	%n  sensor index       %4  upper limit
//
// Any other %c is kept as written. A lone % at the end of tmpl ends the
// expansion.
func Expand(tmpl string, v Vars) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c != '%' {
			b.WriteByte(c)
		} else {
			i++
			if i == len(tmpl) {
				break
			}
			switch tmpl[i] {
			case 'x':
				b.WriteString(v.Device)
			case 't':
				b.WriteString(v.Kind)
			case 'n':
				b.WriteString(strconv.Itoa(v.Index))
			case '2':
				b.WriteString(v.Value)
			case '3':
				b.WriteString(v.Lower)
			case '4':
				b.WriteString(v.Upper)
			default:
				b.WriteByte('%')
				b.WriteByte(tmpl[i])
			}
		}
		if b.Len() >= MaxCommandLen {
			return "", ErrCommandTooLong
		}
	}
	return b.String(), nil
}
