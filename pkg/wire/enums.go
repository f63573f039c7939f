package wire

// Command identifies an ADB message. The value is the four ASCII
// command bytes interpreted as a little-endian uint32.
type Command uint32

// ADB command identifiers.
const (
	// CmdSync is the legacy A_SYNC command. Modern daemons no longer send
	// it, but the decoder still accepts it so that old devices do not kill
	// the session.
	CmdSync Command = 0x434e5953 // "SYNC"

	// CmdConnect carries the connection banner (version, max payload,
	// identity string).
	CmdConnect Command = 0x4e584e43 // "CNXN"

	// CmdAuth drives the token/signature/public-key authentication loop.
	CmdAuth Command = 0x48545541 // "AUTH"

	// CmdOpen asks the peer to open the service named in the payload.
	CmdOpen Command = 0x4e45504f // "OPEN"

	// CmdOkay acknowledges an OPEN or a WRTE.
	CmdOkay Command = 0x59414b4f // "OKAY"

	// CmdClose closes one direction of a stream.
	CmdClose Command = 0x45534c43 // "CLSE"

	// CmdWrite carries stream payload data.
	CmdWrite Command = 0x45545257 // "WRTE"

	// CmdSTLS requests a TLS upgrade before authentication.
	CmdSTLS Command = 0x534c5453 // "STLS"
)

// IsValid reports whether c is a known command identifier.
func (c Command) IsValid() bool {
	switch c {
	case CmdSync, CmdConnect, CmdAuth, CmdOpen, CmdOkay, CmdClose, CmdWrite, CmdSTLS:
		return true
	}
	return false
}

// String renders the four ASCII command bytes, for logs.
func (c Command) String() string {
	b := [4]byte{
		byte(c),
		byte(c >> 8),
		byte(c >> 16),
		byte(c >> 24),
	}
	for _, ch := range b {
		if ch < 0x20 || ch > 0x7e {
			return "????"
		}
	}
	return string(b[:])
}

// AUTH message types (Arg0 of CmdAuth).
const (
	// AuthToken accompanies a 20-byte random token from the device.
	AuthToken uint32 = 1

	// AuthSignature carries the host's signature over the token.
	AuthSignature uint32 = 2

	// AuthRSAPublicKey carries the host public key for operator approval.
	AuthRSAPublicKey uint32 = 3
)

// Protocol constants.
const (
	// HeaderSize is the encoded size of a message header.
	HeaderSize = 24

	// VersionMin is the oldest protocol version this client talks to.
	VersionMin uint32 = 0x01000000

	// VersionSkipChecksum is the first protocol version where both sides
	// stop emitting and verifying payload checksums.
	VersionSkipChecksum uint32 = 0x01000001

	// Version is the protocol version this client advertises in CNXN.
	Version uint32 = 0x01000001

	// MaxPayloadDefault is the payload size this client advertises.
	MaxPayloadDefault uint32 = 1 << 20

	// MaxPayloadMin is the smallest max-payload value a peer may impose.
	MaxPayloadMin uint32 = 4096

	// AuthTokenSize is the size of the random token in an AUTH(TOKEN).
	AuthTokenSize = 20
)

// ChecksumPolicy controls whether payload checksums are emitted and
// verified. The policy is negotiated: checksums are dropped once both
// sides advertise VersionSkipChecksum or newer.
type ChecksumPolicy uint8

const (
	// ChecksumRequired emits and verifies payload checksums.
	ChecksumRequired ChecksumPolicy = iota

	// ChecksumDisabled emits zero checksums and skips verification.
	ChecksumDisabled
)

// PolicyForVersions returns the checksum policy for a session negotiated
// between the given local and remote protocol versions.
func PolicyForVersions(local, remote uint32) ChecksumPolicy {
	if local >= VersionSkipChecksum && remote >= VersionSkipChecksum {
		return ChecksumDisabled
	}
	return ChecksumRequired
}

func (p ChecksumPolicy) String() string {
	switch p {
	case ChecksumRequired:
		return "required"
	case ChecksumDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}
