package navdata

import (
	"errors"
	"fmt"
)

var (
	// ErrShortPacket is returned when a datagram is smaller than the header.
	ErrShortPacket = errors.New("navdata: packet shorter than header")

	// ErrBadMagic is returned when the header does not start with Magic.
	ErrBadMagic = errors.New("navdata: bad header magic")

	// ErrStalePacket is returned for datagrams whose sequence number does
	// not exceed the last accepted one.
	ErrStalePacket = errors.New("navdata: stale sequence number")

	// ErrShortRecord is returned when a demo option is truncated.
	ErrShortRecord = errors.New("navdata: demo record truncated")

	// ErrNotInitialized is returned by Receiver operations that need an
	// open channel.
	ErrNotInitialized = errors.New("navdata: receiver not initialized")
)

// ChannelError reports a bind or send failure of the inbound channel.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("navdata channel %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
