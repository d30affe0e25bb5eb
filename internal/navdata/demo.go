package navdata

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Offsets of the navdata_demo fields relative to DemoOffset.
const (
	demoTag      = 0
	demoSize     = 2
	demoFly      = 4
	demoState    = 6
	demoBattery  = 8
	demoPitch    = 12
	demoRoll     = 16
	demoYaw      = 20
	demoAltitude = 24
	demoVX       = 28
	demoVY       = 32
	demoVZ       = 36
	demoFrames   = 40

	// DemoSize is the number of bytes the decoder reads.
	DemoSize = 44
)

// FlightState is the control thread state reported in the demo option.
type FlightState uint16

const (
	CtrlDefault FlightState = iota
	CtrlInit
	CtrlLanded
	CtrlFlying
	CtrlHovering
	CtrlTest
	CtrlTransTakeoff
	CtrlTransGotoFix
	CtrlTransLanding
	CtrlTransLooping
)

var flightStateNames = [...]string{
	"DEFAULT", "INIT", "LANDED", "FLYING", "HOVERING",
	"TEST", "TRANS_TAKEOFF", "TRANS_GOTOFIX", "TRANS_LANDING", "TRANS_LOOPING",
}

func (s FlightState) String() string {
	if int(s) < len(flightStateNames) {
		return flightStateNames[s]
	}
	return fmt.Sprintf("FlightState(%d)", uint16(s))
}

// TelemetryRecord is the navdata_demo option. Tag and Size are reported as
// received and never used to bound the decode. Battery is a percentage,
// Pitch/Roll/Yaw are milli-degrees and Altitude is in centimeters.
type TelemetryRecord struct {
	Tag      uint16      `json:"tag"`
	Size     uint16      `json:"size"`
	Flying   bool        `json:"flying"`
	State    FlightState `json:"state"`
	Battery  uint32      `json:"battery"`
	Pitch    float32     `json:"pitch"`
	Roll     float32     `json:"roll"`
	Yaw      float32     `json:"yaw"`
	Altitude int32       `json:"altitude"`
	VX       float32     `json:"vx"`
	VY       float32     `json:"vy"`
	VZ       float32     `json:"vz"`
	Frames   uint32      `json:"frames"`
}

// DecodeTelemetryRecord decodes a demo option from the start of buf.
func DecodeTelemetryRecord(buf []byte) (TelemetryRecord, error) {
	if len(buf) < DemoSize {
		return TelemetryRecord{}, fmt.Errorf("%w: got %d bytes, need %d", ErrShortRecord, len(buf), DemoSize)
	}

	le := binary.LittleEndian
	return TelemetryRecord{
		Tag:      le.Uint16(buf[demoTag:]),
		Size:     le.Uint16(buf[demoSize:]),
		Flying:   le.Uint16(buf[demoFly:]) != 0,
		State:    FlightState(le.Uint16(buf[demoState:])),
		Battery:  le.Uint32(buf[demoBattery:]),
		Pitch:    math.Float32frombits(le.Uint32(buf[demoPitch:])),
		Roll:     math.Float32frombits(le.Uint32(buf[demoRoll:])),
		Yaw:      math.Float32frombits(le.Uint32(buf[demoYaw:])),
		Altitude: int32(le.Uint32(buf[demoAltitude:])),
		VX:       math.Float32frombits(le.Uint32(buf[demoVX:])),
		VY:       math.Float32frombits(le.Uint32(buf[demoVY:])),
		VZ:       math.Float32frombits(le.Uint32(buf[demoVZ:])),
		Frames:   le.Uint32(buf[demoFrames:]),
	}, nil
}

// AppendBinary appends the DemoSize-byte wire form of r to dst.
func (r TelemetryRecord) AppendBinary(dst []byte) []byte {
	le := binary.LittleEndian
	var fly uint16
	if r.Flying {
		fly = 1
	}

	dst = le.AppendUint16(dst, r.Tag)
	dst = le.AppendUint16(dst, r.Size)
	dst = le.AppendUint16(dst, fly)
	dst = le.AppendUint16(dst, uint16(r.State))
	dst = le.AppendUint32(dst, r.Battery)
	dst = le.AppendUint32(dst, math.Float32bits(r.Pitch))
	dst = le.AppendUint32(dst, math.Float32bits(r.Roll))
	dst = le.AppendUint32(dst, math.Float32bits(r.Yaw))
	dst = le.AppendUint32(dst, uint32(r.Altitude))
	dst = le.AppendUint32(dst, math.Float32bits(r.VX))
	dst = le.AppendUint32(dst, math.Float32bits(r.VY))
	dst = le.AppendUint32(dst, math.Float32bits(r.VZ))
	return le.AppendUint32(dst, r.Frames)
}
