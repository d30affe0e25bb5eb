package navdata

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestStatusFlagsRoundTrip(t *testing.T) {
	words := []uint32{
		0, 1, 0xFFFFFFFF, 0x80000000, 0x55667788,
		1 << BitNavdataBootstrap, 1 << BitControlCommandAck, 0xDEADBEEF,
	}
	for i := uint(0); i < 32; i++ {
		words = append(words, 1<<i)
	}

	for _, w := range words {
		if got := DecodeStatusFlags(w).Encode(); got != w {
			t.Errorf("Encode(Decode(0x%08X)) = 0x%08X", w, got)
		}
	}
}

func TestStatusFlagsBitPositions(t *testing.T) {
	tests := []struct {
		name string
		bit  uint
		get  func(StatusFlags) bool
	}{
		{"fly", BitFly, func(f StatusFlags) bool { return f.Fly }},
		{"video", 1, func(f StatusFlags) bool { return f.Video }},
		{"controlCommandAck", BitControlCommandAck, func(f StatusFlags) bool { return f.ControlCommandAck }},
		{"navdataDemo", BitNavdataDemo, func(f StatusFlags) bool { return f.NavdataDemo }},
		{"navdataBootstrap", BitNavdataBootstrap, func(f StatusFlags) bool { return f.NavdataBootstrap }},
		{"vBatLow", 15, func(f StatusFlags) bool { return f.VBatLow }},
		{"communicationWatchdog", 30, func(f StatusFlags) bool { return f.CommunicationWatchdog }},
		{"emergencyLanding", BitEmergencyLanding, func(f StatusFlags) bool { return f.EmergencyLanding }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := DecodeStatusFlags(1 << tt.bit)
			if !tt.get(f) {
				t.Errorf("bit %d did not set %s", tt.bit, tt.name)
			}
			if f.Encode() != 1<<tt.bit {
				t.Errorf("bit %d set other flags: 0x%08X", tt.bit, f.Encode())
			}
		})
	}
}

func TestParseStatusFlagsShort(t *testing.T) {
	if _, err := ParseStatusFlags([]byte{1, 2, 3}); err == nil {
		t.Fatal("ParseStatusFlags() accepted 3 bytes")
	}

	f, err := ParseStatusFlags([]byte{0x01, 0x08, 0x00, 0x00})
	if err != nil {
		t.Fatalf("ParseStatusFlags() failed: %v", err)
	}
	if !f.Fly || !f.NavdataBootstrap {
		t.Errorf("flags = %+v, want fly and bootstrap", f)
	}
}

// rawDemo lays out a demo record byte by byte so the decoder is checked
// against fixed offsets rather than against AppendBinary.
func rawDemo() []byte {
	buf := make([]byte, DemoSize)
	le := binary.LittleEndian
	le.PutUint16(buf[0:], 1)
	le.PutUint16(buf[2:], 0)
	le.PutUint16(buf[4:], 1)
	le.PutUint16(buf[6:], 3)
	le.PutUint32(buf[8:], 80)
	le.PutUint32(buf[12:], math.Float32bits(10.0))
	le.PutUint32(buf[16:], math.Float32bits(-5.0))
	le.PutUint32(buf[20:], math.Float32bits(0.0))
	le.PutUint32(buf[24:], 150)
	le.PutUint32(buf[28:], math.Float32bits(0.1))
	le.PutUint32(buf[32:], math.Float32bits(0.0))
	le.PutUint32(buf[36:], math.Float32bits(0.0))
	le.PutUint32(buf[40:], 42)
	return buf
}

func TestDecodeTelemetryRecord(t *testing.T) {
	rec, err := DecodeTelemetryRecord(rawDemo())
	if err != nil {
		t.Fatalf("DecodeTelemetryRecord() failed: %v", err)
	}

	want := TelemetryRecord{
		Tag: 1, Size: 0, Flying: true, State: CtrlFlying, Battery: 80,
		Pitch: 10.0, Roll: -5.0, Yaw: 0.0, Altitude: 150,
		VX: 0.1, VY: 0.0, VZ: 0.0, Frames: 42,
	}
	if rec != want {
		t.Errorf("record = %+v\nwant     %+v", rec, want)
	}
	if rec.State.String() != "FLYING" {
		t.Errorf("State.String() = %q, want FLYING", rec.State.String())
	}
}

func TestDecodeTelemetryRecordNegativeAltitude(t *testing.T) {
	buf := rawDemo()
	binary.LittleEndian.PutUint32(buf[24:], uint32(0xFFFFFFF6)) // -10

	rec, err := DecodeTelemetryRecord(buf)
	if err != nil {
		t.Fatalf("DecodeTelemetryRecord() failed: %v", err)
	}
	if rec.Altitude != -10 {
		t.Errorf("Altitude = %d, want -10", rec.Altitude)
	}
}

func TestDecodeTelemetryRecordShort(t *testing.T) {
	_, err := DecodeTelemetryRecord(rawDemo()[:DemoSize-1])
	if !errors.Is(err, ErrShortRecord) {
		t.Fatalf("err = %v, want ErrShortRecord", err)
	}
}

func TestTelemetryRecordAppendBinary(t *testing.T) {
	rec, _ := DecodeTelemetryRecord(rawDemo())
	if got := rec.AppendBinary(nil); string(got) != string(rawDemo()) {
		t.Errorf("AppendBinary() = %x\nwant            %x", got, rawDemo())
	}
}

func TestDecodeHeader(t *testing.T) {
	good := EncodePacket(Header{State: 0x800, Sequence: 7, Vision: 1}, nil)

	h, err := DecodeHeader(good)
	if err != nil {
		t.Fatalf("DecodeHeader() failed: %v", err)
	}
	if h.Magic != Magic || h.State != 0x800 || h.Sequence != 7 || h.Vision != 1 {
		t.Errorf("header = %+v", h)
	}

	if _, err := DecodeHeader(good[:HeaderSize-1]); !errors.Is(err, ErrShortPacket) {
		t.Errorf("short header err = %v, want ErrShortPacket", err)
	}

	bad := append([]byte(nil), good...)
	bad[0] ^= 0xFF
	if _, err := DecodeHeader(bad); !errors.Is(err, ErrBadMagic) {
		t.Errorf("bad magic err = %v, want ErrBadMagic", err)
	}
}

func TestEncodePacketLayout(t *testing.T) {
	rec, _ := DecodeTelemetryRecord(rawDemo())
	pkt := EncodePacket(Header{Magic: 1, State: 0, Sequence: 9}, &rec)

	if len(pkt) != HeaderSize+DemoSize {
		t.Fatalf("len = %d, want %d", len(pkt), HeaderSize+DemoSize)
	}
	if binary.LittleEndian.Uint32(pkt[0:]) != Magic {
		t.Error("magic not forced")
	}
	if binary.LittleEndian.Uint32(pkt[8:]) != 9 {
		t.Error("sequence not at bytes 8..11")
	}
	if binary.LittleEndian.Uint32(pkt[24:]) != 80 {
		t.Error("battery not at bytes 24..27")
	}
	if binary.LittleEndian.Uint32(pkt[56:]) != 42 {
		t.Error("frames not at bytes 56..59")
	}
}

func TestDecodeDemoOnlyInTelemetryMode(t *testing.T) {
	rec, _ := DecodeTelemetryRecord(rawDemo())

	p, err := Decode(EncodePacket(Header{State: 1 << BitNavdataBootstrap, Sequence: 1}, &rec))
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if p.Demo != nil {
		t.Error("demo decoded in bootstrap mode")
	}

	p, err = Decode(EncodePacket(Header{Sequence: 2}, &rec))
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if p.Demo == nil || *p.Demo != rec {
		t.Errorf("demo = %+v, want %+v", p.Demo, rec)
	}

	if _, err := Decode(EncodePacket(Header{Sequence: 3}, nil)); !errors.Is(err, ErrShortRecord) {
		t.Errorf("truncated demo err = %v, want ErrShortRecord", err)
	}
}
