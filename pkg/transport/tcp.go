package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pion/logging"
)

// TCPConfig configures a TCP channel.
type TCPConfig struct {
	// Address is the device address in "host:port" form (e.g.,
	// "192.168.1.20:5555"). Required.
	Address string

	// ConnectTimeout bounds the dial. Zero means no timeout.
	ConnectTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// DialTCP connects to a device listening on TCP (the `adbd` TCP mode on
// port 5555) and returns a message channel over the connection.
func DialTCP(ctx context.Context, config TCPConfig) (*Conn, error) {
	if config.Address == "" {
		return nil, ErrNoConn
	}

	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("transport-tcp")
	}

	dialer := net.Dialer{Timeout: config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", config.Address, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		// Message frames are small and latency-sensitive.
		_ = tc.SetNoDelay(true)
	}

	if log != nil {
		log.Infof("connected to %s", conn.RemoteAddr())
	}

	return NewConn(ConnConfig{
		Conn:          conn,
		LoggerFactory: config.LoggerFactory,
	})
}
