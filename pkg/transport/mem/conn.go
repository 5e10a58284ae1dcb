package mem

import (
	"net"

	"rdgram/pkg/transport"
)

// Conn adapts an Endpoint to transport.Conn. The host part of addresses is
// ignored; only ports route on a mem network.
type Conn struct {
	ep *Endpoint
}

// Dial opens a transport.Conn on the network bound to port.
func Dial(n *Network, port int) (*Conn, error) {
	ep, err := n.Open(port)
	if err != nil {
		return nil, err
	}
	return &Conn{ep: ep}, nil
}

func (c *Conn) Send(b []byte, _ string, port int) error {
	return c.ep.Send(b, port)
}

func (c *Conn) OnData(h transport.Handler) {
	c.ep.SetHandler(func(b []byte, fromPort int) {
		h(b, transport.Remote{Host: "mem", Port: fromPort, Family: "mem", Size: len(b)})
	})
}

func (c *Conn) LocalAddr() net.Addr { return Addr(c.ep.Port()) }

func (c *Conn) Close() error { return c.ep.Close() }

var _ transport.Conn = (*Conn)(nil)
