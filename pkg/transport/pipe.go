package transport

import (
	"net"
)

// NewPipe returns two channels connected back to back over an in-memory
// net.Pipe. Messages written on one side arrive on the other. Use the
// pair for deterministic protocol tests without real network I/O: one
// side plays the host, the other a scripted device.
func NewPipe() (*Conn, *Conn) {
	c0, c1 := net.Pipe()

	host, err := NewConn(ConnConfig{Conn: c0})
	if err != nil {
		panic(err) // net.Pipe never returns nil conns
	}
	device, err := NewConn(ConnConfig{Conn: c1})
	if err != nil {
		panic(err)
	}
	return host, device
}
