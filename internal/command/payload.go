package command

import "fmt"

// DefaultPayloadLimit is the largest AT datagram the vehicle accepts.
const DefaultPayloadLimit = 1024

// Payload accumulates rendered command lines for one datagram.
type Payload struct {
	buf   []byte
	limit int
}

// NewPayload creates an empty payload holding at most limit bytes.
func NewPayload(limit int) *Payload {
	if limit <= 0 {
		limit = DefaultPayloadLimit
	}
	return &Payload{buf: make([]byte, 0, limit), limit: limit}
}

// Append adds cmd unless it would push the payload past its limit.
func (p *Payload) Append(cmd string) error {
	if len(p.buf)+len(cmd) > p.limit {
		return fmt.Errorf("%w: %d+%d > %d bytes", ErrPayloadExceeded, len(p.buf), len(cmd), p.limit)
	}
	p.buf = append(p.buf, cmd...)
	return nil
}

// Bytes returns the accumulated payload. It is valid until the next Reset.
func (p *Payload) Bytes() []byte { return p.buf }

// Len returns the number of accumulated bytes.
func (p *Payload) Len() int { return len(p.buf) }

// Limit returns the capacity limit.
func (p *Payload) Limit() int { return p.limit }

// Reset empties the payload.
func (p *Payload) Reset() { p.buf = p.buf[:0] }
