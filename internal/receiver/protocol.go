package receiver

import (
	"fmt"
	"strconv"
	"strings"
)

// Command names used by this package.
const (
	CmdDevice = "DEVICE"
	CmdPower  = "POWER"
	CmdVolume = "VOL"
	CmdMute   = "MUTE"
	CmdSource = "SRC"
)

// lineTerminator ends every frame in both directions.
const lineTerminator = '\r'

// Message is one parsed frame.
type Message struct {
	Name  string // upper-case command name, e.g. "VOL"
	Args  string // text inside the parentheses, or the suffix after the name
	Query bool   // "!NAME?"
}

// ParseMessage parses a single frame without its terminator.
//
//	!DEVICE(MP-60)  -> {Name: "DEVICE", Args: "MP-60"}
//	!VOL?           -> {Name: "VOL", Query: true}
//	!MUTEON         -> {Name: "MUTEON"}
func ParseMessage(line string) (Message, error) {
	line = strings.TrimSpace(line)
	body, ok := strings.CutPrefix(line, "!")
	if !ok || body == "" {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidMessage, line)
	}

	if name, isQuery := strings.CutSuffix(body, "?"); isQuery {
		return Message{Name: strings.ToUpper(name), Query: true}, nil
	}

	open := strings.IndexByte(body, '(')
	if open < 0 {
		return Message{Name: strings.ToUpper(body)}, nil
	}
	if open == 0 || !strings.HasSuffix(body, ")") {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidMessage, line)
	}
	return Message{
		Name: strings.ToUpper(body[:open]),
		Args: body[open+1 : len(body)-1],
	}, nil
}

// String renders m as a frame without the terminator.
func (m Message) String() string {
	switch {
	case m.Query:
		return "!" + m.Name + "?"
	case m.Args != "":
		return "!" + m.Name + "(" + m.Args + ")"
	default:
		return "!" + m.Name
	}
}

// Query builds the "!NAME?" frame.
func Query(name string) string {
	return Message{Name: name, Query: true}.String()
}

// ParseVolume converts a volume argument in tenths of a dB ("-305") to dB.
func ParseVolume(args string) (float64, error) {
	tenths, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return 0, fmt.Errorf("%w: volume %q", ErrInvalidMessage, args)
	}
	return float64(tenths) / 10, nil
}

// FormatVolume converts dB to a "!VOL(n)" style argument, clamped to the
// model's range.
func FormatVolume(db float64, m Model) string {
	if db < m.VolumeMin {
		db = m.VolumeMin
	}
	if db > m.VolumeMax {
		db = m.VolumeMax
	}
	return strconv.Itoa(int(roundHalfAway(db * 10)))
}

func roundHalfAway(f float64) float64 {
	if f < 0 {
		return float64(int64(f - 0.5))
	}
	return float64(int64(f + 0.5))
}
