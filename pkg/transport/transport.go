// Package transport defines the datagram channel the protocol engine runs
// on: unreliable, unordered, length-limited. Implementations exist for UDP,
// QUIC unreliable datagrams, and an in-process pair for tests.
package transport

import (
	"net"
	"strconv"
)

// Remote describes the far end of a received datagram.
type Remote struct {
	Host   string
	Port   int
	Family string // "udp4", "udp6", "quic", "mem"
	Size   int    // size of the datagram this Remote was taken from
}

// Addr formats the remote as host:port.
func (r Remote) Addr() string { return net.JoinHostPort(r.Host, strconv.Itoa(r.Port)) }

// Handler consumes one inbound datagram.
type Handler func(b []byte, from Remote)

// Conn is a bidirectional datagram channel. The UDP and mem implementations
// deliver inbound datagrams to the handler from a single goroutine; the QUIC
// implementation runs one receive goroutine per peer connection, so its
// handler calls can overlap. Send may be called from any goroutine.
type Conn interface {
	// Send transmits one datagram to host:port. A nil error means the
	// datagram was handed to the network, not that it arrived.
	Send(b []byte, host string, port int) error
	// OnData installs the inbound handler. Must be called before datagrams
	// are expected; the previous handler, if any, is replaced.
	OnData(h Handler)
	// LocalAddr returns the bound local address.
	LocalAddr() net.Addr
	// Close tears the channel down and stops the receive loop.
	Close() error
}
