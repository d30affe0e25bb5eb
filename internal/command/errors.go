package command

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCommand indicates a rendered command is not a single AT line.
	ErrInvalidCommand = errors.New("invalid AT command")

	// ErrPayloadExceeded indicates a command does not fit in the current datagram.
	ErrPayloadExceeded = errors.New("payload limit exceeded")

	// ErrSchedulerStopped indicates the scheduler is no longer cycling.
	ErrSchedulerStopped = errors.New("scheduler stopped")
)

// DropError is the reason handed to Entry.OnDropped. It wraps
// ErrInvalidCommand or ErrPayloadExceeded.
type DropError struct {
	Command string
	Seq     uint32
	Err     error
}

func (e *DropError) Error() string {
	return fmt.Sprintf("command seq %d dropped: %v", e.Seq, e.Err)
}

func (e *DropError) Unwrap() error {
	return e.Err
}

// ChannelError reports a failure of the outbound socket. It is terminal for
// the scheduler that returned it.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("command channel %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
