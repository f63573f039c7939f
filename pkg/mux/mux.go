// Package mux multiplexes byte streams over one online session
// channel. It owns the single inbound read loop; nothing else reads
// from the channel once the multiplexer starts.
package mux

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/logging"

	"github.com/droidlink/droidlink/pkg/transport"
	"github.com/droidlink/droidlink/pkg/wire"
)

// Config configures a multiplexer.
type Config struct {
	// Channel is the online session channel. Required. The multiplexer
	// takes ownership: closing the multiplexer closes the channel.
	Channel transport.Channel

	// MaxPayload is the negotiated outer payload bound used to chunk
	// outbound writes. Default: wire.MaxPayloadDefault.
	MaxPayload uint32

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Mux routes OKAY, WRTE and CLSE frames between the channel and the
// stream table. All outbound messages funnel through the channel's
// serialized writer.
type Mux struct {
	channel    transport.Channel
	maxPayload uint32
	log        logging.LeveledLogger

	mu       sync.Mutex
	streams  map[uint32]*Stream
	nextID   uint32
	closed   bool
	closeErr error

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New starts a multiplexer on an online channel. The read loop runs
// until the channel fails or Close is called.
func New(config Config) (*Mux, error) {
	if config.Channel == nil {
		return nil, ErrNoChannel
	}
	if config.MaxPayload == 0 {
		config.MaxPayload = wire.MaxPayloadDefault
	}

	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("mux")
	}

	m := &Mux{
		channel:    config.Channel,
		maxPayload: config.MaxPayload,
		log:        log,
		streams:    make(map[uint32]*Stream),
		closeCh:    make(chan struct{}),
	}

	m.wg.Add(1)
	go m.readLoop()

	return m, nil
}

// MaxPayload is the outer payload bound writes are chunked at.
func (m *Mux) MaxPayload() uint32 {
	return m.maxPayload
}

// Open asks the peer for the named service and blocks until the peer
// acknowledges or rejects it.
func (m *Mux) Open(ctx context.Context, destination string) (*Stream, error) {
	m.mu.Lock()
	if m.closed {
		err := m.closeErr
		m.mu.Unlock()
		if err == nil {
			err = ErrMuxClosed
		}
		return nil, err
	}
	id := m.allocIDLocked()
	s := newStream(m, id, destination)
	m.streams[id] = s
	m.mu.Unlock()

	payload := append([]byte(destination), 0)
	if err := m.send(wire.CmdOpen, id, 0, payload); err != nil {
		m.dropStream(id)
		return nil, fmt.Errorf("%w: sending OPEN: %v", ErrMuxClosed, err)
	}

	select {
	case <-s.openCh:
	case <-ctx.Done():
		s.Close()
		m.dropStream(id)
		return nil, ctx.Err()
	}

	s.mu.Lock()
	err := s.openErr
	s.mu.Unlock()
	if err != nil {
		m.dropStream(id)
		if err == ErrServiceRejected {
			return nil, fmt.Errorf("%w: %q", ErrServiceRejected, destination)
		}
		return nil, err
	}

	if m.log != nil {
		m.log.Debugf("stream %d open: %q remote=%d", s.localID, destination, s.RemoteID())
	}
	return s, nil
}

// Close tears down every stream and closes the channel. Blocks until
// the read loop exits.
func (m *Mux) Close() error {
	m.teardown(ErrMuxClosed)
	err := m.channel.Close()
	m.wg.Wait()
	return err
}

// Done closes when the multiplexer stops, for any reason.
func (m *Mux) Done() <-chan struct{} {
	return m.closeCh
}

// Err is the teardown cause once Done is closed.
func (m *Mux) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeErr
}

// allocIDLocked hands out the next free local id, skipping zero and
// ids still in the table. Callers hold m.mu.
func (m *Mux) allocIDLocked() uint32 {
	for {
		m.nextID++
		if m.nextID == 0 {
			m.nextID = 1
		}
		if _, live := m.streams[m.nextID]; !live {
			return m.nextID
		}
	}
}

func (m *Mux) send(cmd wire.Command, arg0, arg1 uint32, payload []byte) error {
	return m.channel.WriteMessage(wire.NewHeader(cmd, arg0, arg1, payload), payload)
}

// streamClosed is the stream's half of Close: put CLSE on the wire.
// The id stays in the table until the peer's CLSE comes back.
func (m *Mux) streamClosed(s *Stream, remoteID uint32) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		m.dropStream(s.localID)
		return nil
	}
	return m.send(wire.CmdClose, s.localID, remoteID, nil)
}

func (m *Mux) dropStream(id uint32) {
	m.mu.Lock()
	delete(m.streams, id)
	m.mu.Unlock()
}

func (m *Mux) lookup(id uint32) *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[id]
}

func (m *Mux) readLoop() {
	defer m.wg.Done()

	for {
		hdr, payload, err := m.channel.ReadMessage()
		if err != nil {
			m.teardown(fmt.Errorf("%w: %v", ErrStreamClosed, err))
			return
		}
		if err := m.dispatch(hdr, payload); err != nil {
			if m.log != nil {
				m.log.Errorf("dispatch %s: %v", hdr.Command, err)
			}
			m.teardown(fmt.Errorf("%w: %v", ErrStreamClosed, err))
			m.channel.Close()
			return
		}
	}
}

func (m *Mux) dispatch(hdr wire.Header, payload []byte) error {
	switch hdr.Command {
	case wire.CmdOkay:
		s := m.lookup(hdr.Arg1)
		if s == nil {
			// Stale ack for a stream already gone.
			return nil
		}
		s.mu.Lock()
		opening := s.state == streamOpening
		s.mu.Unlock()
		if opening {
			s.openAck(hdr.Arg0)
		} else {
			s.writeAck()
		}
		return nil

	case wire.CmdWrite:
		s := m.lookup(hdr.Arg1)
		if s == nil {
			return m.send(wire.CmdClose, 0, hdr.Arg0, nil)
		}
		s.deliver(payload)
		return m.send(wire.CmdOkay, hdr.Arg1, hdr.Arg0, nil)

	case wire.CmdClose:
		s := m.lookup(hdr.Arg1)
		if s == nil {
			return nil
		}
		prev := s.peerClosed()
		m.dropStream(hdr.Arg1)
		if m.log != nil {
			m.log.Debugf("stream %d closed by peer (was %s)", hdr.Arg1, prev)
		}
		if prev == streamOpen {
			return m.send(wire.CmdClose, hdr.Arg1, hdr.Arg0, nil)
		}
		return nil

	case wire.CmdOpen:
		// Peer-initiated streams are not accepted.
		return m.send(wire.CmdClose, 0, hdr.Arg0, nil)

	case wire.CmdSync:
		// Obsolete carrier-level command, ignored.
		if m.log != nil {
			m.log.Debugf("ignoring SYNC(%d, %d)", hdr.Arg0, hdr.Arg1)
		}
		return nil

	default:
		return fmt.Errorf("%w: %s on online session", ErrProtocol, hdr.Command)
	}
}

// teardown fails every stream with the cause and marks the mux closed.
func (m *Mux) teardown(cause error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.closeErr = cause
	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.streams = make(map[uint32]*Stream)
	close(m.closeCh)
	m.mu.Unlock()

	for _, s := range streams {
		s.fail(cause)
	}
	if m.log != nil && cause != ErrMuxClosed {
		m.log.Warnf("session down: %v", cause)
	}
}
