package transport

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/droidlink/droidlink/pkg/wire"
)

// Channel is a duplex byte channel that carries framed ADB messages.
// Reads and writes are message-granular; the underlying byte stream is
// not exposed. The connection layer updates the checksum policy and
// payload bound after CNXN negotiation.
type Channel interface {
	// ReadMessage reads exactly one framed message.
	ReadMessage() (wire.Header, []byte, error)

	// WriteMessage frames and writes one message.
	WriteMessage(hdr wire.Header, payload []byte) error

	// SetChecksumPolicy updates the negotiated checksum policy.
	SetChecksumPolicy(p wire.ChecksumPolicy)

	// SetMaxPayload updates the negotiated payload bound.
	SetMaxPayload(max uint32)

	// SetReadDeadline bounds the next ReadMessage call.
	// A zero time clears the deadline.
	SetReadDeadline(t time.Time) error

	// Close closes the channel. Blocked reads and writes return ErrClosed.
	Close() error
}

// Conn adapts a net.Conn into a Channel. Writes are serialized with a
// mutex so concurrent senders cannot interleave frames.
type Conn struct {
	conn  net.Conn
	codec *wire.Codec
	log   logging.LeveledLogger

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// ConnConfig configures a Conn.
type ConnConfig struct {
	// Conn is the underlying byte stream. Required.
	Conn net.Conn

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewConn wraps an established net.Conn.
func NewConn(config ConnConfig) (*Conn, error) {
	if config.Conn == nil {
		return nil, ErrNoConn
	}

	c := &Conn{
		conn:  config.Conn,
		codec: wire.NewCodec(),
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("transport")
	}
	return c, nil
}

// ReadMessage reads one framed message from the peer.
func (c *Conn) ReadMessage() (wire.Header, []byte, error) {
	hdr, payload, err := c.codec.ReadMessage(c.conn)
	if err != nil {
		if c.isClosed() {
			return wire.Header{}, nil, ErrClosed
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return wire.Header{}, nil, ErrClosed
		}
		return wire.Header{}, nil, err
	}
	if c.log != nil {
		c.log.Tracef("recv %s arg0=%d arg1=%d len=%d", hdr.Command, hdr.Arg0, hdr.Arg1, hdr.Length)
	}
	return hdr, payload, nil
}

// WriteMessage frames and writes one message to the peer.
func (c *Conn) WriteMessage(hdr wire.Header, payload []byte) error {
	if c.isClosed() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.log != nil {
		c.log.Tracef("send %s arg0=%d arg1=%d len=%d", hdr.Command, hdr.Arg0, hdr.Arg1, len(payload))
	}
	if err := c.codec.WriteMessage(c.conn, hdr, payload); err != nil {
		if c.isClosed() {
			return ErrClosed
		}
		return err
	}
	return nil
}

// SetChecksumPolicy updates the negotiated checksum policy.
func (c *Conn) SetChecksumPolicy(p wire.ChecksumPolicy) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.codec.SetPolicy(p)
}

// SetMaxPayload updates the negotiated payload bound.
func (c *Conn) SetMaxPayload(max uint32) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.codec.SetMaxPayload(max)
}

// SetReadDeadline bounds the next ReadMessage call.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.conn.Close()
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Verify Conn implements Channel.
var _ Channel = (*Conn)(nil)
