package navdata

import "fmt"

// Mode is the state of the NAVDATA handshake.
type Mode int

const (
	// ModeOffline means no packet has been accepted yet.
	ModeOffline Mode = iota

	// ModeBootstrap means the vehicle sends the state mask only and waits
	// for the navdata_demo configuration.
	ModeBootstrap

	// ModeHandshake means the vehicle acknowledged a control command and
	// waits for the client's acknowledgement.
	ModeHandshake

	// ModeTelemetryActive means every packet carries the navdata_demo option.
	ModeTelemetryActive
)

func (m Mode) String() string {
	switch m {
	case ModeOffline:
		return "OFFLINE"
	case ModeBootstrap:
		return "BOOTSTRAP"
	case ModeHandshake:
		return "HANDSHAKE"
	case ModeTelemetryActive:
		return "TELEMETRY_ACTIVE"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText lets modes appear by name in JSON.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ComputeMode derives the handshake mode from the bootstrap and control
// command ack flags. The ack flag is evaluated last and overrides
// bootstrap.
func ComputeMode(bootstrap, ack bool) Mode {
	mode := ModeOffline
	if bootstrap {
		mode = ModeBootstrap
	}
	if ack {
		mode = ModeHandshake
	}
	if !bootstrap && !ack {
		mode = ModeTelemetryActive
	}
	return mode
}

// ModeOf is ComputeMode applied to a decoded state mask.
func ModeOf(f StatusFlags) Mode {
	return ComputeMode(f.NavdataBootstrap, f.ControlCommandAck)
}

// Transition is emitted when the computed mode differs from the previous one.
type Transition struct {
	From     Mode
	To       Mode
	Sequence uint32
}

// NextMode returns the mode for the given flags and whether it differs from
// prev.
func NextMode(prev Mode, f StatusFlags) (Mode, bool) {
	next := ModeOf(f)
	return next, next != prev
}
