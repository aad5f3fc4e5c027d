package transport

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/lodpnet/lodp/internal/lodp"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoopbackRoundTrip(t *testing.T) {
	a, err := NewTransport(0, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewTransport(0, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	payload := []byte("datagram")
	dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: b.Port()}
	if err := a.SendTo(payload, dst); err != nil {
		t.Fatalf("send: %v", err)
	}

	buf := make([]byte, lodp.MaxSegmentSize)
	b.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, from, err := b.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Fatalf("payload = %q", buf[:n])
	}
	if from.Port != a.Port() {
		t.Fatalf("from port = %d, want %d", from.Port, a.Port())
	}

	in, _ := b.Stats()
	_, out := a.Stats()
	if in != 1 || out != 1 {
		t.Fatalf("stats in=%d out=%d", in, out)
	}
}

func TestSendToRefusesOversized(t *testing.T) {
	tr, err := NewTransport(0, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: tr.Port()}
	if err := tr.SendTo(make([]byte, lodp.MaxSegmentSize+1), dst); err == nil {
		t.Fatal("oversized send accepted")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	tr, err := NewTransport(0, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: tr.Port()}
	tr.Close()
	if err := tr.SendTo([]byte("late"), dst); err == nil {
		t.Fatal("send after close accepted")
	}
}
