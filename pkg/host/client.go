package host

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/pion/logging"
)

// DefaultAddress is where a local adb host server listens.
const DefaultAddress = "127.0.0.1:5037"

// ClientConfig configures a host server client.
type ClientConfig struct {
	// Address is the server address. Default: DefaultAddress.
	Address string

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Client talks to an adb host server. The server closes the socket
// after most replies, so every request dials a fresh connection.
type Client struct {
	address string
	log     logging.LeveledLogger
}

// NewClient builds a client for the server at config.Address.
func NewClient(config ClientConfig) *Client {
	if config.Address == "" {
		config.Address = DefaultAddress
	}
	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("host")
	}
	return &Client{address: config.Address, log: log}
}

// Devices lists connected devices. The long form carries the k:v
// annotations the server knows about each device.
func (c *Client) Devices(ctx context.Context, long bool) ([]DeviceRow, error) {
	request := "host:devices"
	if long {
		request = "host:devices-l"
	}
	body, err := c.roundTrip(ctx, request)
	if err != nil {
		return nil, err
	}
	return ParseDeviceRows(body)
}

// Version reports the server's internal version number.
func (c *Client) Version(ctx context.Context) (int, error) {
	body, err := c.roundTrip(ctx, "host:version")
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(string(body), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: version %q", ErrBadLength, body)
	}
	return int(v), nil
}

// Connect asks the server to connect to a TCP device. An empty reply
// body means success; anything else is the server's failure text.
func (c *Client) Connect(ctx context.Context, hostport string) error {
	return c.emptyReply(ctx, "host:connect:"+hostport)
}

// Disconnect asks the server to drop a TCP device.
func (c *Client) Disconnect(ctx context.Context, hostport string) error {
	return c.emptyReply(ctx, "host:disconnect:"+hostport)
}

func (c *Client) emptyReply(ctx context.Context, request string) error {
	body, err := c.roundTrip(ctx, request)
	if err != nil {
		return err
	}
	if len(body) != 0 {
		return &ServerError{Request: request, Message: string(body)}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, request string) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}

	if c.log != nil {
		c.log.Debugf("request %q", request)
	}
	return RoundTrip(conn, request)
}
