package navdata

import (
	"encoding/binary"
	"fmt"
)

// Magic is the first word of every NAVDATA datagram (0x55667788).
const Magic uint32 = 0x55667788

// Byte layout of a NAVDATA datagram. All fields are little-endian.
const (
	offsetMagic    = 0
	offsetState    = 4
	offsetSequence = 8
	offsetVision   = 12

	// HeaderSize is the number of bytes preceding the first option.
	HeaderSize = 16

	// DemoOffset is where the navdata_demo option starts inside a packet.
	DemoOffset = HeaderSize
)

// StartRequest is the single-byte datagram that asks the vehicle to start
// streaming NAVDATA to the sender.
var StartRequest = []byte{1}

// Header is the fixed prefix of a NAVDATA datagram.
type Header struct {
	Magic    uint32
	State    uint32
	Sequence uint32
	Vision   uint32
}

// DecodeHeader decodes the first HeaderSize bytes of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes, need %d", ErrShortPacket, len(buf), HeaderSize)
	}

	h := Header{
		Magic:    binary.LittleEndian.Uint32(buf[offsetMagic:]),
		State:    binary.LittleEndian.Uint32(buf[offsetState:]),
		Sequence: binary.LittleEndian.Uint32(buf[offsetSequence:]),
		Vision:   binary.LittleEndian.Uint32(buf[offsetVision:]),
	}
	if h.Magic != Magic {
		return Header{}, fmt.Errorf("%w: 0x%08X", ErrBadMagic, h.Magic)
	}

	return h, nil
}

// AppendHeader appends the wire form of h to dst.
func AppendHeader(dst []byte, h Header) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, h.Magic)
	dst = binary.LittleEndian.AppendUint32(dst, h.State)
	dst = binary.LittleEndian.AppendUint32(dst, h.Sequence)
	return binary.LittleEndian.AppendUint32(dst, h.Vision)
}

// Packet is a fully decoded datagram. Demo is nil unless the packet was
// decoded in demo mode.
type Packet struct {
	Header Header
	Flags  StatusFlags
	Demo   *TelemetryRecord
}

// EncodePacket builds a datagram from a header and an optional demo record.
// The header magic is forced to Magic.
func EncodePacket(h Header, demo *TelemetryRecord) []byte {
	h.Magic = Magic
	size := HeaderSize
	if demo != nil {
		size += DemoSize
	}

	buf := AppendHeader(make([]byte, 0, size), h)
	if demo != nil {
		buf = demo.AppendBinary(buf)
	}
	return buf
}
