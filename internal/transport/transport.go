package transport

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/lodpnet/lodp/internal/lodp"
)

// Transport manages the UDP socket LODP datagrams ride on. The protocol
// core never touches the socket; it hands finished packets to a send
// hook backed by SendTo and the host's read loop feeds raw datagrams
// back into the dispatcher.
type Transport struct {
	conn   *net.UDPConn
	port   int
	mu     sync.RWMutex
	closed bool
	log    *slog.Logger

	packetsIn  atomic.Uint64
	packetsOut atomic.Uint64
}

// NewTransport creates and binds a UDP socket on the given port (0 for
// an ephemeral port).
func NewTransport(port int, log *slog.Logger) (*Transport, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("bind UDP port %d: %w", port, err)
	}
	actualPort := conn.LocalAddr().(*net.UDPAddr).Port
	log.Info("transport listening", "port", actualPort)
	return &Transport{
		conn: conn,
		port: actualPort,
		log:  log,
	}, nil
}

// Port returns the bound port number.
func (t *Transport) Port() int {
	return t.port
}

// ReadFrom reads one datagram. The caller's buffer should be at least
// lodp.MaxSegmentSize; anything longer than that on the wire is not a
// legal LODP packet and the dispatcher will reject it.
func (t *Transport) ReadFrom(buf []byte) (int, *net.UDPAddr, error) {
	n, addr, err := t.conn.ReadFromUDP(buf)
	if err == nil {
		t.packetsIn.Add(1)
	}
	return n, addr, err
}

// SendTo emits one finished packet. Oversized sends indicate a host bug
// and are refused before touching the socket.
func (t *Transport) SendTo(data []byte, addr *net.UDPAddr) error {
	if len(data) > lodp.MaxSegmentSize {
		return fmt.Errorf("packet of %d bytes exceeds segment size %d", len(data), lodp.MaxSegmentSize)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return fmt.Errorf("transport closed")
	}
	if _, err := t.conn.WriteToUDP(data, addr); err != nil {
		return err
	}
	t.packetsOut.Add(1)
	return nil
}

// Stats returns the datagram counters since creation.
func (t *Transport) Stats() (in, out uint64) {
	return t.packetsIn.Load(), t.packetsOut.Load()
}

// Close shuts down the transport. Further sends fail; a blocked
// ReadFrom returns with an error.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return t.conn.Close()
}

// LocalAddr returns the local address of the UDP socket.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}
