package transport

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// DefaultMaxDatagram is the receive buffer size used when none is configured.
// Scan-segment datagrams never exceed one UDP payload.
const DefaultMaxDatagram = 65535

// DatagramConfig configures a datagram transport.
type DatagramConfig struct {
	Host        string
	Port        int
	MaxDatagram int           // per-datagram buffer size; DefaultMaxDatagram when 0
	ReadTimeout time.Duration // optional per-receive deadline; 0 blocks until Close
}

// DatagramTransport receives one telegram per UDP datagram. No framing work is
// needed: the sensor emits exactly one telegram per datagram.
type DatagramTransport struct {
	conn        *net.UDPConn
	buf         []byte
	readTimeout time.Duration
	count       atomic.Uint64
}

// NewDatagramTransport binds a UDP socket on host:port and returns the
// transport owning it.
func NewDatagramTransport(cfg DatagramConfig) (*DatagramTransport, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	maxDatagram := cfg.MaxDatagram
	if maxDatagram <= 0 {
		maxDatagram = DefaultMaxDatagram
	}
	return &DatagramTransport{
		conn:        conn,
		buf:         make([]byte, maxDatagram),
		readTimeout: cfg.ReadTimeout,
	}, nil
}

// Receive blocks until the next datagram arrives and returns its payload.
func (t *DatagramTransport) Receive() ([]byte, error) {
	deadline(t.conn, t.readTimeout)
	n, _, err := t.conn.ReadFromUDP(t.buf)
	if err != nil {
		return nil, wrapReadError(err)
	}
	t.count.Add(1)
	telegram := make([]byte, n)
	copy(telegram, t.buf[:n])
	return telegram, nil
}

// Count reports the number of datagrams received so far.
func (t *DatagramTransport) Count() uint64 { return t.count.Load() }

// LocalAddr returns the bound socket address, e.g. to discover the port when
// listening on port 0.
func (t *DatagramTransport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// Close releases the socket, failing any blocked Receive.
func (t *DatagramTransport) Close() error { return t.conn.Close() }
