package wire

import (
	"encoding/binary"
)

// Header is the fixed 24-byte ADB message header that precedes every
// payload on the transport. All fields are little-endian on the wire.
type Header struct {
	// Command is one of the A_* command identifiers (CNXN, AUTH, OPEN, ...).
	Command Command

	// Arg0 and Arg1 are command-specific arguments. For stream commands
	// they carry the (local-id, remote-id) pair.
	Arg0 uint32
	Arg1 uint32

	// Length is the payload length in bytes.
	Length uint32

	// Checksum is the byte sum of the payload mod 2^32, or zero when both
	// peers negotiated a protocol version that skips checksums.
	Checksum uint32

	// Magic is the bitwise complement of Command. The decoder rejects
	// headers whose magic does not match.
	Magic uint32
}

// Size returns the encoded size of the header in bytes.
func (h *Header) Size() int {
	return HeaderSize
}

// Encode serializes the header to bytes.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	h.EncodeTo(buf)
	return buf
}

// EncodeTo serializes the header into the provided buffer.
// The buffer must be at least HeaderSize bytes long.
// Returns the number of bytes written.
func (h *Header) EncodeTo(buf []byte) int {
	binary.LittleEndian.PutUint32(buf[0:], uint32(h.Command))
	binary.LittleEndian.PutUint32(buf[4:], h.Arg0)
	binary.LittleEndian.PutUint32(buf[8:], h.Arg1)
	binary.LittleEndian.PutUint32(buf[12:], h.Length)
	binary.LittleEndian.PutUint32(buf[16:], h.Checksum)
	binary.LittleEndian.PutUint32(buf[20:], h.Magic)
	return HeaderSize
}

// Decode deserializes a header from bytes and validates the magic field.
// Returns the number of bytes consumed from data.
func (h *Header) Decode(data []byte) (int, error) {
	if len(data) < HeaderSize {
		return 0, ErrHeaderTooShort
	}

	h.Command = Command(binary.LittleEndian.Uint32(data[0:]))
	h.Arg0 = binary.LittleEndian.Uint32(data[4:])
	h.Arg1 = binary.LittleEndian.Uint32(data[8:])
	h.Length = binary.LittleEndian.Uint32(data[12:])
	h.Checksum = binary.LittleEndian.Uint32(data[16:])
	h.Magic = binary.LittleEndian.Uint32(data[20:])

	if h.Magic != uint32(h.Command)^0xFFFFFFFF {
		return 0, ErrBadMagic
	}
	if !h.Command.IsValid() {
		return 0, ErrUnknownCommand
	}

	return HeaderSize, nil
}

// NewHeader builds a header for the given command and arguments,
// filling in the magic and payload length. The checksum is left to the
// codec, which knows the negotiated checksum policy.
func NewHeader(cmd Command, arg0, arg1 uint32, payload []byte) Header {
	return Header{
		Command: cmd,
		Arg0:    arg0,
		Arg1:    arg1,
		Length:  uint32(len(payload)),
		Magic:   uint32(cmd) ^ 0xFFFFFFFF,
	}
}

// Checksum computes the ADB payload checksum: the sum of all payload
// bytes, mod 2^32.
func Checksum(payload []byte) uint32 {
	var sum uint32
	for _, b := range payload {
		sum += uint32(b)
	}
	return sum
}
