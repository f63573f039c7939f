// Package adb is the user-facing client for one device: it dials,
// authenticates, and exposes services, shell execution, and file
// transfer on top of the multiplexed session.
package adb

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/logging"

	"github.com/droidlink/droidlink/pkg/auth"
	"github.com/droidlink/droidlink/pkg/conn"
	"github.com/droidlink/droidlink/pkg/mux"
	"github.com/droidlink/droidlink/pkg/syncproto"
	"github.com/droidlink/droidlink/pkg/transport"
)

// Config configures a device connection.
type Config struct {
	// Address is the device's TCP address ("192.168.1.77:5555").
	Address string

	// Signers are tried in order when the device demands
	// authentication.
	Signers []auth.Signer

	// ConnectTimeout bounds the TCP dial. Zero uses the transport
	// default.
	ConnectTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Client is an authenticated connection to one device.
type Client struct {
	sess *conn.Session
	mux  *mux.Mux
	lf   logging.LoggerFactory
	log  logging.LeveledLogger
}

// Dial connects, authenticates, and starts the multiplexer.
func Dial(ctx context.Context, config Config) (*Client, error) {
	channel, err := transport.DialTCP(ctx, transport.TCPConfig{
		Address:        config.Address,
		ConnectTimeout: config.ConnectTimeout,
		LoggerFactory:  config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	sess, err := conn.Connect(ctx, conn.Config{
		Channel:       channel,
		Signers:       config.Signers,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	return NewClient(sess, config.LoggerFactory)
}

// NewClient starts a multiplexer on an already-online session.
func NewClient(sess *conn.Session, loggerFactory logging.LoggerFactory) (*Client, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	m, err := mux.New(mux.Config{
		Channel:       sess.Channel(),
		MaxPayload:    sess.MaxPayload(),
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return nil, err
	}

	var log logging.LeveledLogger
	if loggerFactory != nil {
		log = loggerFactory.NewLogger("adb")
	}
	return &Client{sess: sess, mux: m, lf: loggerFactory, log: log}, nil
}

// Session is the underlying online session.
func (c *Client) Session() *conn.Session {
	return c.sess
}

// Mux is the underlying stream multiplexer.
func (c *Client) Mux() *mux.Mux {
	return c.mux
}

// DeviceState is the device state from the connection banner.
func (c *Client) DeviceState() string {
	return c.sess.DeviceState()
}

// Supports reports whether the device advertised the feature.
func (c *Client) Supports(feature string) bool {
	return c.sess.Supports(feature)
}

// Close tears down all streams and the connection.
func (c *Client) Close() error {
	return c.mux.Close()
}

// OpenService opens a raw service stream ("shell:ls", "sync:",
// "tcp:8080", ...).
func (c *Client) OpenService(ctx context.Context, service string) (*mux.Stream, error) {
	return c.mux.Open(ctx, service)
}

// RunShell runs one command through the shell service and returns its
// output once the device closes the stream. Cancelling ctx aborts the
// read by closing the stream.
func (c *Client) RunShell(ctx context.Context, command string) ([]byte, error) {
	s, err := c.OpenService(ctx, "shell:"+command)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	out, err := io.ReadAll(s)
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, err
	}
	return out, nil
}

// Push copies a local file to the device, preserving permission bits
// and the modification time.
func (c *Client) Push(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	sc, s, err := c.openSync(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := sc.Push(ctx, f, remotePath, fi.Mode(), fi.ModTime()); err != nil {
		return err
	}
	return sc.Quit()
}

// Pull copies a remote file into localPath. A transfer that fails
// after partial data removes the local file instead of leaving a
// truncated copy behind.
func (c *Client) Pull(ctx context.Context, remotePath, localPath string) error {
	sc, s, err := c.openSync(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	f, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	n, err := sc.Pull(ctx, f, remotePath)
	cerr := f.Close()
	if err != nil {
		os.Remove(localPath)
		return err
	}
	if cerr != nil {
		os.Remove(localPath)
		return cerr
	}
	if c.log != nil {
		c.log.Debugf("pulled %q (%d bytes)", remotePath, n)
	}
	return sc.Quit()
}

// Stat queries one remote path through the sync service.
func (c *Client) Stat(ctx context.Context, remotePath string) (syncproto.FileInfo, error) {
	sc, s, err := c.openSync(ctx)
	if err != nil {
		return syncproto.FileInfo{}, err
	}
	defer s.Close()

	info, err := sc.Stat(remotePath)
	if err != nil {
		return syncproto.FileInfo{}, err
	}
	return info, sc.Quit()
}

// List reads a remote directory through the sync service.
func (c *Client) List(ctx context.Context, remotePath string) ([]syncproto.FileInfo, error) {
	sc, s, err := c.openSync(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	entries, err := sc.List(remotePath)
	if err != nil {
		return nil, err
	}
	return entries, sc.Quit()
}

func (c *Client) openSync(ctx context.Context) (*syncproto.Client, *mux.Stream, error) {
	s, err := c.OpenService(ctx, "sync:")
	if err != nil {
		return nil, nil, err
	}
	sc, err := syncproto.NewClient(syncproto.Config{Stream: s, LoggerFactory: c.lf})
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return sc, s, nil
}

// TCPIP restarts the device daemon listening on the given TCP port.
// Returns the daemon's response text.
func (c *Client) TCPIP(ctx context.Context, port int) (string, error) {
	s, err := c.OpenService(ctx, "tcpip:"+strconv.Itoa(port))
	if err != nil {
		return "", err
	}
	defer s.Close()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	out, err := io.ReadAll(s)
	reply := strings.TrimSpace(string(out))
	if err != nil {
		if ctx.Err() != nil {
			return reply, ctx.Err()
		}
		return reply, err
	}
	if !strings.Contains(reply, "restarting") {
		return reply, fmt.Errorf("%w: %q", ErrServiceFailed, reply)
	}
	return reply, nil
}
