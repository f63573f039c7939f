package wire

import (
	"fmt"
	"io"
)

// Codec reads and writes framed ADB messages on a byte stream.
// It is stateless aside from the negotiated checksum policy and the
// payload size bound, both of which the connection layer updates after
// the CNXN exchange.
type Codec struct {
	policy     ChecksumPolicy
	maxPayload uint32
}

// NewCodec creates a codec with checksums required and the default
// payload bound, the state every session starts in before negotiation.
func NewCodec() *Codec {
	return &Codec{
		policy:     ChecksumRequired,
		maxPayload: MaxPayloadDefault,
	}
}

// SetPolicy updates the checksum policy after version negotiation.
func (c *Codec) SetPolicy(p ChecksumPolicy) {
	c.policy = p
}

// Policy returns the current checksum policy.
func (c *Codec) Policy() ChecksumPolicy {
	return c.policy
}

// SetMaxPayload updates the payload bound after CNXN negotiation.
// Values below MaxPayloadMin are raised to MaxPayloadMin.
func (c *Codec) SetMaxPayload(max uint32) {
	if max < MaxPayloadMin {
		max = MaxPayloadMin
	}
	if max > MaxPayloadDefault {
		max = MaxPayloadDefault
	}
	c.maxPayload = max
}

// MaxPayload returns the current payload bound.
func (c *Codec) MaxPayload() uint32 {
	return c.maxPayload
}

// WriteMessage fills in the header length, checksum and magic for the
// given payload and writes header and payload to w.
func (c *Codec) WriteMessage(w io.Writer, hdr Header, payload []byte) error {
	if uint32(len(payload)) > c.maxPayload {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), c.maxPayload)
	}

	hdr.Length = uint32(len(payload))
	hdr.Magic = uint32(hdr.Command) ^ 0xFFFFFFFF
	if c.policy == ChecksumRequired {
		hdr.Checksum = Checksum(payload)
	} else {
		hdr.Checksum = 0
	}

	buf := make([]byte, HeaderSize+len(payload))
	hdr.EncodeTo(buf)
	copy(buf[HeaderSize:], payload)

	_, err := w.Write(buf)
	return err
}

// ReadMessage reads exactly one framed message from r. The header magic
// is always validated; the checksum only when the policy requires it.
func (c *Codec) ReadMessage(r io.Reader) (Header, []byte, error) {
	var hbuf [HeaderSize]byte
	if _, err := io.ReadFull(r, hbuf[:]); err != nil {
		return Header{}, nil, err
	}

	var hdr Header
	if _, err := hdr.Decode(hbuf[:]); err != nil {
		return Header{}, nil, err
	}

	if hdr.Length > c.maxPayload {
		return Header{}, nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, hdr.Length, c.maxPayload)
	}

	var payload []byte
	if hdr.Length > 0 {
		payload = make([]byte, hdr.Length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return Header{}, nil, err
		}
	}

	if c.policy == ChecksumRequired && hdr.Checksum != 0 {
		if sum := Checksum(payload); sum != hdr.Checksum {
			return Header{}, nil, fmt.Errorf("%w: header %#x, computed %#x", ErrBadChecksum, hdr.Checksum, sum)
		}
	}

	return hdr, payload, nil
}
