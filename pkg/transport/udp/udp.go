// Package udp implements the datagram channel over a UDP socket.
package udp

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"rdgram/pkg/transport"
)

// Conn is a UDP-backed transport.Conn. One socket serves both directions;
// the read loop runs on its own goroutine and serializes handler calls.
type Conn struct {
	sock    *net.UDPConn
	mu      sync.RWMutex
	handler transport.Handler
	closed  atomic.Bool
}

// Listen binds a UDP socket on address (e.g. ":9000" or "127.0.0.1:0") and
// starts the read loop.
func Listen(address string) (*Conn, error) {
	laddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	sock, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	c := &Conn{sock: sock}
	go c.readLoop()
	return c, nil
}

func (c *Conn) OnData(h transport.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *Conn) Send(b []byte, host string, port int) error {
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	_, err = c.sock.WriteToUDP(b, raddr)
	return err
}

func (c *Conn) LocalAddr() net.Addr { return c.sock.LocalAddr() }

func (c *Conn) Close() error {
	c.closed.Store(true)
	return c.sock.Close()
}

func (c *Conn) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, raddr, err := c.sock.ReadFromUDP(buf)
		if err != nil {
			if !c.closed.Load() {
				zap.L().Warn("udp read failed", zap.Error(err))
			}
			return
		}
		c.mu.RLock()
		h := c.handler
		c.mu.RUnlock()
		if h == nil {
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		family := "udp4"
		if raddr.IP.To4() == nil {
			family = "udp6"
		}
		h(pkt, transport.Remote{Host: raddr.IP.String(), Port: raddr.Port, Family: family, Size: n})
	}
}
