// Package quic implements the datagram channel over QUIC unreliable
// datagrams (RFC 9221). Connections are established lazily per remote and
// reused; loss and reordering semantics match UDP, which is what the
// reliability layer above expects.
package quic

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"math/big"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	quicgo "github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"rdgram/pkg/transport"
)

const alpn = "rdgram"

// Conn is a QUIC-backed transport.Conn. Inbound connections are accepted on
// the listener; outbound connections are dialed on first Send to a remote
// and cached.
type Conn struct {
	ln       *quicgo.Listener
	tlsConf  *tls.Config
	quicConf *quicgo.Config

	mu      sync.Mutex
	peers   map[string]quicgo.Connection
	handler transport.Handler

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// Listen binds a QUIC listener on address with an ephemeral self-signed
// certificate and starts accepting datagram-enabled connections.
func Listen(address string) (*Conn, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, err
	}
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpn},
		MinVersion:   tls.VersionTLS13,
	}
	quicConf := &quicgo.Config{EnableDatagrams: true, KeepAlivePeriod: 15 * time.Second}
	ln, err := quicgo.ListenAddr(address, tlsConf, quicConf)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ln:       ln,
		tlsConf:  tlsConf,
		quicConf: quicConf,
		peers:    make(map[string]quicgo.Connection),
		ctx:      ctx,
		cancel:   cancel,
	}
	go c.acceptLoop()
	return c, nil
}

func (c *Conn) OnData(h transport.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *Conn) LocalAddr() net.Addr { return c.ln.Addr() }

func (c *Conn) Send(b []byte, host string, port int) error {
	conn, err := c.peer(host, port)
	if err != nil {
		return err
	}
	return conn.SendDatagram(b)
}

func (c *Conn) Close() error {
	c.closed.Store(true)
	c.cancel()
	c.mu.Lock()
	for _, p := range c.peers {
		_ = p.CloseWithError(0, "closing")
	}
	c.peers = make(map[string]quicgo.Connection)
	c.mu.Unlock()
	return c.ln.Close()
}

func (c *Conn) peer(host string, port int) (quicgo.Connection, error) {
	key := net.JoinHostPort(host, strconv.Itoa(port))
	c.mu.Lock()
	conn := c.peers[key]
	c.mu.Unlock()
	if conn != nil {
		return conn, nil
	}
	tlsClient := &tls.Config{
		InsecureSkipVerify: true, // identity is not part of this layer
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}
	dialCtx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()
	conn, err := quicgo.DialAddr(dialCtx, key, tlsClient, c.quicConf)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if prev := c.peers[key]; prev != nil {
		c.mu.Unlock()
		_ = conn.CloseWithError(0, "duplicate")
		return prev, nil
	}
	c.peers[key] = conn
	c.mu.Unlock()
	go c.recvLoop(conn, key)
	return conn, nil
}

func (c *Conn) acceptLoop() {
	for {
		conn, err := c.ln.Accept(c.ctx)
		if err != nil {
			if !c.closed.Load() {
				zap.L().Warn("quic accept failed", zap.Error(err))
			}
			return
		}
		key := conn.RemoteAddr().String()
		c.mu.Lock()
		c.peers[key] = conn
		c.mu.Unlock()
		go c.recvLoop(conn, key)
	}
}

func (c *Conn) recvLoop(conn quicgo.Connection, key string) {
	defer func() {
		c.mu.Lock()
		if c.peers[key] == conn {
			delete(c.peers, key)
		}
		c.mu.Unlock()
	}()
	for {
		b, err := conn.ReceiveDatagram(c.ctx)
		if err != nil {
			return
		}
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h == nil {
			continue
		}
		host, portStr, _ := net.SplitHostPort(conn.RemoteAddr().String())
		port, _ := strconv.Atoi(portStr)
		h(b, transport.Remote{Host: host, Port: port, Family: "quic", Size: len(b)})
	}
}

// selfSignedCert generates a short-lived certificate for local use; peers do
// not verify it, reliability above this layer does not depend on identity.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}

var _ transport.Conn = (*Conn)(nil)
