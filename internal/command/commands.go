package command

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// REF argument values. Bits 18, 20, 22, 24 and 28 are always set; bit 9
// requests takeoff and bit 8 toggles the emergency state.
const (
	RefLand      = 290717696
	RefEmergency = 290717952
	RefTakeoff   = 290718208
)

// CTRL modes.
const (
	NoControlMode           = 0
	CfgGetControlMode       = 4
	AckControlMode          = 5
	CustomCfgGetControlMode = 6
)

// Movement holds progressive command values, each in [-1, 1]. Negative
// pitch moves forward, negative roll moves left, negative gaz descends and
// negative yaw spins left.
type Movement struct {
	Roll  float32 `json:"roll"`
	Pitch float32 `json:"pitch"`
	Gaz   float32 `json:"gaz"`
	Yaw   float32 `json:"yaw"`
}

// Hovering reports whether every axis is zero.
func (m Movement) Hovering() bool {
	return m == Movement{}
}

// EncodeFloat returns the int32 whose bits are the IEEE 754 encoding of f,
// the form PCMD expects its arguments in.
func EncodeFloat(f float32) int32 {
	return int32(math.Float32bits(f))
}

// Ref renders AT*REF.
func Ref(seq uint32, flags int) string {
	return fmt.Sprintf("AT*REF=%d,%d\r", seq, flags)
}

// PCMD renders AT*PCMD. A hovering movement clears the progressive flag.
func PCMD(seq uint32, m Movement) string {
	if m.Hovering() {
		return fmt.Sprintf("AT*PCMD=%d,0,0,0,0,0\r", seq)
	}
	return fmt.Sprintf("AT*PCMD=%d,1,%d,%d,%d,%d\r", seq,
		EncodeFloat(m.Roll), EncodeFloat(m.Pitch), EncodeFloat(m.Gaz), EncodeFloat(m.Yaw))
}

// FlatTrim renders AT*FTRIM.
func FlatTrim(seq uint32) string {
	return fmt.Sprintf("AT*FTRIM=%d\r", seq)
}

// ComWatchdog renders AT*COMWDG. The firmware accepts the trailing comma.
func ComWatchdog(seq uint32) string {
	return fmt.Sprintf("AT*COMWDG=%d,\r", seq)
}

// Config renders AT*CONFIG.
func Config(seq uint32, key, value string) string {
	return fmt.Sprintf("AT*CONFIG=%d,\"%s\",\"%s\"\r", seq, key, value)
}

// Ctrl renders AT*CTRL.
func Ctrl(seq uint32, mode, value int) string {
	return fmt.Sprintf("AT*CTRL=%d,%d,%d\r", seq, mode, value)
}

// ValidateCommand checks that text is exactly one printable ASCII AT line.
func ValidateCommand(text string) error {
	switch {
	case text == "":
		return fmt.Errorf("%w: empty", ErrInvalidCommand)
	case !strings.HasPrefix(text, "AT*"):
		return fmt.Errorf("%w: missing AT* prefix", ErrInvalidCommand)
	case !strings.HasSuffix(text, "\r"):
		return fmt.Errorf("%w: missing line terminator", ErrInvalidCommand)
	}

	body := text[:len(text)-1]
	for i := 0; i < len(body); i++ {
		if c := body[i]; c < 0x20 || c > 0x7e {
			return fmt.Errorf("%w: byte 0x%02x at %d", ErrInvalidCommand, c, i)
		}
	}
	return nil
}

// Parsed is one AT line split into its parts.
type Parsed struct {
	Name string
	Seq  uint32
	Args []string
}

// ParseCommands splits an AT datagram into its command lines.
func ParseCommands(payload []byte) ([]Parsed, error) {
	var out []Parsed

	text := string(payload)
	for text != "" {
		end := strings.IndexByte(text, '\r')
		if end < 0 {
			return out, fmt.Errorf("%w: unterminated line %q", ErrInvalidCommand, text)
		}
		line := text[:end]
		text = text[end+1:]

		p, err := parseLine(line)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parseLine(line string) (Parsed, error) {
	rest, ok := strings.CutPrefix(line, "AT*")
	if !ok {
		return Parsed{}, fmt.Errorf("%w: %q", ErrInvalidCommand, line)
	}
	name, params, ok := strings.Cut(rest, "=")
	if !ok || name == "" {
		return Parsed{}, fmt.Errorf("%w: %q", ErrInvalidCommand, line)
	}

	fields, err := splitFields(params)
	if err != nil {
		return Parsed{}, fmt.Errorf("%w: %v in %q", ErrInvalidCommand, err, line)
	}
	seq, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return Parsed{}, fmt.Errorf("%w: bad sequence in %q", ErrInvalidCommand, line)
	}

	args := fields[1:]
	return Parsed{Name: name, Seq: uint32(seq), Args: args}, nil
}

// splitFields splits on commas outside double quotes and drops the quotes.
// Quoted text is taken verbatim, as Config writes it.
func splitFields(params string) ([]string, error) {
	var (
		fields []string
		cur    strings.Builder
		inside bool
	)
	for i := 0; i < len(params); i++ {
		switch c := params[i]; {
		case c == '"':
			inside = !inside
		case c == ',' && !inside:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if inside {
		return nil, errors.New("unterminated quote")
	}
	return append(fields, cur.String()), nil
}
