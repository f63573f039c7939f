package mux

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pion/transport/v3/deadline"
	"github.com/pion/transport/v3/packetio"

	"github.com/droidlink/droidlink/pkg/wire"
)

// streamState tracks a stream through its lifecycle.
type streamState uint8

const (
	// streamOpening means the OPEN is on the wire and no OKAY has come
	// back yet.
	streamOpening streamState = iota

	// streamOpen means the peer acknowledged the OPEN.
	streamOpen

	// streamClosing means this side sent CLSE and is waiting for the
	// peer's CLSE. Inbound data for the id is discarded.
	streamClosing

	// streamClosed means the stream is gone from the table.
	streamClosed
)

func (s streamState) String() string {
	switch s {
	case streamOpening:
		return "opening"
	case streamOpen:
		return "open"
	case streamClosing:
		return "closing"
	case streamClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stream is one multiplexed byte stream inside a session. Reads and
// writes may run concurrently with each other, but each side must be
// called sequentially.
type Stream struct {
	mux         *Mux
	localID     uint32
	destination string

	inbound  *packetio.Buffer
	leftover []byte

	writeMu       sync.Mutex
	writeDeadline *deadline.Deadline

	mu       sync.Mutex
	state    streamState
	remoteID uint32
	openDone bool
	openErr  error
	closeErr error

	// permit carries the single outbound WRTE token. It is filled when
	// the peer acknowledges the OPEN and refilled on every OKAY.
	permit chan struct{}

	// openCh closes when the OPEN resolves either way.
	openCh chan struct{}

	// closeCh closes when the stream stops accepting writes.
	closeCh chan struct{}
}

func newStream(m *Mux, localID uint32, destination string) *Stream {
	return &Stream{
		mux:           m,
		localID:       localID,
		destination:   destination,
		inbound:       packetio.NewBuffer(),
		writeDeadline: deadline.New(),
		state:         streamOpening,
		permit:        make(chan struct{}, 1),
		openCh:        make(chan struct{}),
		closeCh:       make(chan struct{}),
	}
}

// LocalID is the id this side allocated for the stream.
func (s *Stream) LocalID() uint32 {
	return s.localID
}

// RemoteID is the id the peer assigned, zero until the OPEN resolves.
func (s *Stream) RemoteID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteID
}

// Destination is the service string the stream was opened with.
func (s *Stream) Destination() string {
	return s.destination
}

// Read copies inbound payload bytes into p. It blocks until data
// arrives, the read deadline expires, or the stream ends. A stream
// closed by the peer drains buffered data and then returns io.EOF; a
// stream killed by a session failure returns the failure instead.
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(s.leftover) > 0 {
		n := copy(p, s.leftover)
		s.leftover = s.leftover[n:]
		return n, nil
	}

	max := int(s.mux.maxPayload)
	if len(p) >= max {
		n, err := s.inbound.Read(p)
		if err != nil {
			return 0, s.readErr(err)
		}
		return n, nil
	}

	buf := make([]byte, max)
	n, err := s.inbound.Read(buf)
	if err != nil {
		return 0, s.readErr(err)
	}
	c := copy(p, buf[:n])
	s.leftover = buf[c:n]
	return c, nil
}

// readErr swaps the buffer's EOF for the session failure, if any.
func (s *Stream) readErr(err error) error {
	if err != io.EOF {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr != nil {
		return s.closeErr
	}
	return io.EOF
}

// SetReadDeadline bounds blocking Reads. A zero time means no deadline.
func (s *Stream) SetReadDeadline(t time.Time) error {
	return s.inbound.SetReadDeadline(t)
}

// SetWriteDeadline bounds blocking Writes. A zero time means no
// deadline. An expired deadline fails the wait for the write permit
// with os.ErrDeadlineExceeded.
func (s *Stream) SetWriteDeadline(t time.Time) error {
	s.writeDeadline.Set(t)
	return nil
}

// Write sends p to the peer, split into chunks of at most the session
// max payload. Each chunk waits for the previous one's acknowledgement.
func (s *Stream) Write(p []byte) (int, error) {
	return s.WriteContext(context.Background(), p)
}

// WriteContext is Write bounded by ctx. Cancellation mid-write closes
// the stream: the peer has already seen part of the data, so there is
// no consistent state to resume from.
func (s *Stream) WriteContext(ctx context.Context, p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	total := 0
	max := int(s.mux.maxPayload)
	for len(p) > 0 {
		chunk := p
		if len(chunk) > max {
			chunk = chunk[:max]
		}

		if err := s.acquirePermit(ctx); err != nil {
			if ctx.Err() != nil && total > 0 {
				s.Close()
			}
			return total, err
		}

		remote := s.RemoteID()
		if err := s.mux.send(wire.CmdWrite, s.localID, remote, chunk); err != nil {
			return total, fmt.Errorf("%w: %v", ErrStreamClosed, err)
		}

		total += len(chunk)
		p = p[len(chunk):]
	}
	return total, nil
}

// acquirePermit blocks until the outbound WRTE token is available.
func (s *Stream) acquirePermit(ctx context.Context) error {
	select {
	case <-s.closeCh:
		return s.closeError()
	case <-s.mux.closeCh:
		return s.closeError()
	default:
	}
	select {
	case <-s.permit:
		return nil
	default:
	}
	select {
	case <-s.permit:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.writeDeadline.Done():
		return os.ErrDeadlineExceeded
	case <-s.closeCh:
		return s.closeError()
	case <-s.mux.closeCh:
		return s.closeError()
	}
}

func (s *Stream) closeError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr != nil {
		return s.closeErr
	}
	return ErrStreamClosed
}

// Close sends CLSE to the peer and stops the stream locally. Data
// already buffered can still be read; inbound data arriving after Close
// is discarded. The stream leaves the id table once the peer's CLSE
// arrives. Close is idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.state == streamClosing || s.state == streamClosed {
		s.mu.Unlock()
		return nil
	}
	remote := s.remoteID
	s.state = streamClosing
	if !s.openDone {
		s.openDone = true
		s.openErr = ErrStreamClosed
		close(s.openCh)
	}
	close(s.closeCh)
	s.mu.Unlock()

	s.inbound.Close()
	return s.mux.streamClosed(s, remote)
}

// openAck resolves a pending OPEN with the peer's id and arms the
// first write permit.
func (s *Stream) openAck(remoteID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != streamOpening {
		return
	}
	s.state = streamOpen
	s.remoteID = remoteID
	s.openDone = true
	close(s.openCh)

	select {
	case s.permit <- struct{}{}:
	default:
	}
}

// writeAck restores the outbound permit after the peer's OKAY.
func (s *Stream) writeAck() {
	select {
	case s.permit <- struct{}{}:
	default:
	}
}

// deliver queues inbound payload. In the closing state the data is
// discarded; the WRTE is still acknowledged by the caller.
func (s *Stream) deliver(payload []byte) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != streamOpen {
		return
	}
	// Write only fails once the buffer is closed, which means the data
	// raced a close and is discarded anyway.
	s.inbound.Write(payload) //nolint:errcheck
}

// peerClosed handles the peer's CLSE: a pending OPEN fails as
// rejected, an open stream drains to EOF for readers and fails
// writers. Returns the state the stream was in before the CLSE.
func (s *Stream) peerClosed() streamState {
	s.mu.Lock()
	prev := s.state
	s.state = streamClosed
	if !s.openDone {
		s.openDone = true
		s.openErr = ErrServiceRejected
		close(s.openCh)
	}
	if prev == streamOpening || prev == streamOpen {
		close(s.closeCh)
	}
	s.mu.Unlock()

	s.inbound.Close()
	return prev
}

// fail kills the stream because the session died underneath it.
func (s *Stream) fail(cause error) {
	s.mu.Lock()
	if s.state == streamClosed {
		s.mu.Unlock()
		return
	}
	already := s.state == streamClosing
	s.state = streamClosed
	s.closeErr = cause
	if !s.openDone {
		s.openDone = true
		s.openErr = cause
		close(s.openCh)
	}
	if !already {
		close(s.closeCh)
	}
	s.mu.Unlock()

	s.inbound.Close()
}
