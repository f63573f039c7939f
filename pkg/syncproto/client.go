// Package syncproto speaks the file transfer sub-protocol inside a
// stream opened with the "sync:" service. Messages carry an 8-byte
// [id][value] little-endian header; integer lengths replace the ASCII
// hex framing the outer host services use.
package syncproto

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"time"

	"github.com/pion/logging"
)

// FileInfo describes one remote file, from STAT or a LIST entry.
type FileInfo struct {
	// Name is the entry name for LIST, the queried path for Stat.
	Name string

	// Mode is the POSIX mode translated to fs.FileMode bits.
	Mode fs.FileMode

	// Size is the file size in bytes, truncated to 32 bits by the
	// protocol.
	Size uint32

	// MTime is the modification time, at second granularity.
	MTime time.Time
}

// Config configures a sync client.
type Config struct {
	// Stream is the open "sync:" service stream. Required.
	Stream io.ReadWriter

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Client drives sync requests over one stream. Requests must not be
// interleaved; the protocol is strictly request/reply per operation.
type Client struct {
	rw  io.ReadWriter
	log logging.LeveledLogger
}

// NewClient wraps an open sync stream.
func NewClient(config Config) (*Client, error) {
	if config.Stream == nil {
		return nil, ErrNoStream
	}
	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("sync")
	}
	return &Client{rw: config.Stream, log: log}, nil
}

// Stat queries one remote path. A missing path reports fs.ErrNotExist.
func (c *Client) Stat(path string) (FileInfo, error) {
	if err := c.writeRequest(OpStat, path); err != nil {
		return FileInfo{}, err
	}

	op, mode, err := c.readHeader()
	if err != nil {
		return FileInfo{}, err
	}
	if op == OpFail {
		return FileInfo{}, c.readFail(OpStat, mode)
	}
	if op != OpStat {
		return FileInfo{}, fmt.Errorf("%w: %s to STAT", ErrUnexpectedReply, op)
	}

	var rest [8]byte
	if _, err := io.ReadFull(c.rw, rest[:]); err != nil {
		return FileInfo{}, err
	}
	size := binary.LittleEndian.Uint32(rest[0:])
	mtime := binary.LittleEndian.Uint32(rest[4:])

	// The device reports an all-zero struct instead of an error for a
	// path it cannot stat.
	if mode == 0 && size == 0 && mtime == 0 {
		return FileInfo{}, fs.ErrNotExist
	}

	return FileInfo{
		Name:  path,
		Mode:  toFileMode(mode),
		Size:  size,
		MTime: time.Unix(int64(mtime), 0),
	}, nil
}

// List reads a remote directory. Entries arrive as DENT messages and
// end with DONE.
func (c *Client) List(path string) ([]FileInfo, error) {
	if err := c.writeRequest(OpList, path); err != nil {
		return nil, err
	}

	var entries []FileInfo
	for {
		op, mode, err := c.readHeader()
		if err != nil {
			return nil, err
		}
		switch op {
		case OpDone:
			return entries, nil

		case OpFail:
			return nil, c.readFail(OpList, mode)

		case OpDent:
			var rest [12]byte
			if _, err := io.ReadFull(c.rw, rest[:]); err != nil {
				return nil, err
			}
			size := binary.LittleEndian.Uint32(rest[0:])
			mtime := binary.LittleEndian.Uint32(rest[4:])
			nameLen := binary.LittleEndian.Uint32(rest[8:])
			if nameLen > MaxChunk {
				return nil, fmt.Errorf("%w: DENT name of %d bytes", ErrUnexpectedReply, nameLen)
			}
			name := make([]byte, nameLen)
			if _, err := io.ReadFull(c.rw, name); err != nil {
				return nil, err
			}
			entries = append(entries, FileInfo{
				Name:  string(name),
				Mode:  toFileMode(mode),
				Size:  size,
				MTime: time.Unix(int64(mtime), 0),
			})

		default:
			return nil, fmt.Errorf("%w: %s to LIST", ErrUnexpectedReply, op)
		}
	}
}

// Push streams r to the remote path in DATA chunks and seals the file
// with DONE carrying the modification time. The device answers with a
// single OKAY or FAIL after DONE.
func (c *Client) Push(ctx context.Context, r io.Reader, remotePath string, mode fs.FileMode, mtime time.Time) error {
	meta := remotePath + "," + strconv.FormatUint(uint64(mode.Perm()), 8)
	if err := c.writeRequest(OpSend, meta); err != nil {
		return err
	}

	buf := make([]byte, headerSize+MaxChunk)
	var sent int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf[headerSize:])
		if n > 0 {
			binary.LittleEndian.PutUint32(buf[0:], uint32(OpData))
			binary.LittleEndian.PutUint32(buf[4:], uint32(n))
			if _, werr := c.rw.Write(buf[:headerSize+n]); werr != nil {
				return werr
			}
			sent += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	if err := c.writeHeader(OpDone, uint32(mtime.Unix())); err != nil {
		return err
	}
	if c.log != nil {
		c.log.Debugf("pushed %d bytes to %q", sent, remotePath)
	}

	op, value, err := c.readHeader()
	if err != nil {
		return err
	}
	switch op {
	case OpOkay:
		return nil
	case OpFail:
		return c.readFail(OpSend, value)
	default:
		return fmt.Errorf("%w: %s to SEND", ErrUnexpectedReply, op)
	}
}

// Pull streams the remote path into w. Returns the number of bytes
// written, which on error counts data already delivered before the
// failure.
func (c *Client) Pull(ctx context.Context, w io.Writer, remotePath string) (int64, error) {
	if err := c.writeRequest(OpRecv, remotePath); err != nil {
		return 0, err
	}

	var written int64
	buf := make([]byte, MaxChunk)
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		op, value, err := c.readHeader()
		if err != nil {
			return written, err
		}
		switch op {
		case OpDone:
			if c.log != nil {
				c.log.Debugf("pulled %d bytes from %q", written, remotePath)
			}
			return written, nil

		case OpFail:
			return written, c.readFail(OpRecv, value)

		case OpData:
			if value > MaxChunk {
				return written, fmt.Errorf("%w: %d bytes", ErrChunkTooLarge, value)
			}
			if _, err := io.ReadFull(c.rw, buf[:value]); err != nil {
				return written, err
			}
			n, err := w.Write(buf[:value])
			written += int64(n)
			if err != nil {
				return written, err
			}

		default:
			return written, fmt.Errorf("%w: %s to RECV", ErrUnexpectedReply, op)
		}
	}
}

// Quit ends the sync conversation. The stream should be closed after.
func (c *Client) Quit() error {
	return c.writeHeader(OpQuit, 0)
}

// writeHeader emits a bare [id][value] message.
func (c *Client) writeHeader(op Op, value uint32) error {
	var buf [headerSize]byte
	binary.LittleEndian.PutUint32(buf[0:], uint32(op))
	binary.LittleEndian.PutUint32(buf[4:], value)
	_, err := c.rw.Write(buf[:])
	return err
}

// writeRequest emits a header whose value is the path length, with the
// path bytes in the same write.
func (c *Client) writeRequest(op Op, path string) error {
	buf := make([]byte, headerSize+len(path))
	binary.LittleEndian.PutUint32(buf[0:], uint32(op))
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(path)))
	copy(buf[headerSize:], path)
	_, err := c.rw.Write(buf)
	return err
}

func (c *Client) readHeader() (Op, uint32, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(c.rw, buf[:]); err != nil {
		return 0, 0, err
	}
	return Op(binary.LittleEndian.Uint32(buf[0:])), binary.LittleEndian.Uint32(buf[4:]), nil
}

// readFail drains the failure text and wraps it.
func (c *Client) readFail(req Op, length uint32) error {
	if length > MaxChunk {
		return fmt.Errorf("%w: FAIL of %d bytes", ErrUnexpectedReply, length)
	}
	msg := make([]byte, length)
	if _, err := io.ReadFull(c.rw, msg); err != nil {
		return err
	}
	return &SyncError{Op: req, Message: string(msg)}
}

// toFileMode translates POSIX mode bits.
func toFileMode(raw uint32) fs.FileMode {
	mode := fs.FileMode(raw & 0o777)
	switch raw & 0xF000 {
	case 0x4000:
		mode |= fs.ModeDir
	case 0xA000:
		mode |= fs.ModeSymlink
	case 0xC000:
		mode |= fs.ModeSocket
	case 0x6000:
		mode |= fs.ModeDevice
	case 0x2000:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case 0x1000:
		mode |= fs.ModeNamedPipe
	}
	return mode
}
