package navdata

import (
	"encoding/binary"
	"fmt"
)

// StatusFlags is the decoded 32-bit state mask of a NAVDATA header.
// Field order matches bit order: Fly is bit 0, EmergencyLanding is bit 31.
type StatusFlags struct {
	Fly                     bool `json:"fly"`                     // (0) landed, (1) flying
	Video                   bool `json:"video"`                   // video enabled
	Vision                  bool `json:"vision"`                  // vision enabled
	ControlAlgo             bool `json:"controlAlgo"`             // (0) euler angles, (1) angular speed
	AltitudeControlAlgo     bool `json:"altitudeControlAlgo"`     // altitude control active
	UserFeedback            bool `json:"userFeedback"`            // start button state
	ControlCommandAck       bool `json:"controlCommandAck"`       // control command ack received
	CameraEnabled           bool `json:"cameraEnabled"`           // camera ready
	TravellingEnabled       bool `json:"travellingEnabled"`       // travelling enabled
	USBKey                  bool `json:"usbKey"`                  // usb key ready
	NavdataDemo             bool `json:"navdataDemo"`             // (0) all navdata, (1) only navdata_demo
	NavdataBootstrap        bool `json:"navdataBootstrap"`        // (1) no navdata options sent
	MotorStatus             bool `json:"motorStatus"`             // (1) motors problem
	CommunicationLost       bool `json:"communicationLost"`       // (1) com problem
	SoftwareFault           bool `json:"softwareFault"`           // land as quick as possible
	VBatLow                 bool `json:"vBatLow"`                 // battery too low
	UserEmergencyLanding    bool `json:"userEmergencyLanding"`    // user emergency landing on
	TimerElapsed            bool `json:"timerElapsed"`            // timer elapsed
	MagnetometerCalibration bool `json:"magnetometerCalibration"` // (1) calibration needed
	AnglesOutOfRange        bool `json:"anglesOutOfRange"`        // angles out of range
	WindMask                bool `json:"windMask"`                // too much wind
	UltrasonicSensor        bool `json:"ultrasonicSensor"`        // (1) ultrasonic sensor deaf
	CutoutSystem            bool `json:"cutoutSystem"`            // cutout system detected
	PICVersion              bool `json:"picVersion"`              // PIC version number OK
	ATCodecThread           bool `json:"atCodecThread"`           // ATCodec thread on
	NavdataThread           bool `json:"navdataThread"`           // navdata thread on
	VideoThread             bool `json:"videoThread"`             // video thread on
	AcquisitionThread       bool `json:"acquisitionThread"`       // acquisition thread on
	CtrlWatchdog            bool `json:"ctrlWatchdog"`            // control execution delayed > 5ms
	ADCWatchdog             bool `json:"adcWatchdog"`             // uart2 dsr delayed > 5ms
	CommunicationWatchdog   bool `json:"communicationWatchdog"`   // (1) com problem
	EmergencyLanding        bool `json:"emergencyLanding"`        // emergency landing
}

// Bit positions of the flags the handshake depends on.
const (
	BitFly               = 0
	BitControlCommandAck = 6
	BitNavdataDemo       = 10
	BitNavdataBootstrap  = 11
	BitEmergencyLanding  = 31
)

// bits returns pointers to every flag, indexed by bit position.
func (f *StatusFlags) bits() [32]*bool {
	return [32]*bool{
		&f.Fly, &f.Video, &f.Vision, &f.ControlAlgo,
		&f.AltitudeControlAlgo, &f.UserFeedback, &f.ControlCommandAck, &f.CameraEnabled,
		&f.TravellingEnabled, &f.USBKey, &f.NavdataDemo, &f.NavdataBootstrap,
		&f.MotorStatus, &f.CommunicationLost, &f.SoftwareFault, &f.VBatLow,
		&f.UserEmergencyLanding, &f.TimerElapsed, &f.MagnetometerCalibration, &f.AnglesOutOfRange,
		&f.WindMask, &f.UltrasonicSensor, &f.CutoutSystem, &f.PICVersion,
		&f.ATCodecThread, &f.NavdataThread, &f.VideoThread, &f.AcquisitionThread,
		&f.CtrlWatchdog, &f.ADCWatchdog, &f.CommunicationWatchdog, &f.EmergencyLanding,
	}
}

// DecodeStatusFlags expands a state word into its 32 flags.
func DecodeStatusFlags(word uint32) StatusFlags {
	var f StatusFlags
	for i, p := range f.bits() {
		*p = word&(1<<uint(i)) != 0
	}
	return f
}

// ParseStatusFlags decodes a little-endian state word from the first four
// bytes of buf.
func ParseStatusFlags(buf []byte) (StatusFlags, error) {
	if len(buf) < 4 {
		return StatusFlags{}, fmt.Errorf("navdata: state mask needs 4 bytes, got %d", len(buf))
	}
	return DecodeStatusFlags(binary.LittleEndian.Uint32(buf)), nil
}

// Encode packs the flags back into a state word.
func (f StatusFlags) Encode() uint32 {
	var word uint32
	for i, p := range f.bits() {
		if *p {
			word |= 1 << uint(i)
		}
	}
	return word
}
