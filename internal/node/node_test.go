package node

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lodpnet/lodp/internal/identity"
	"github.com/lodpnet/lodp/internal/lodp"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startNode(t *testing.T, opts Options) *Node {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	opts.Identity = id
	opts.Logger = quietLogger()
	if opts.RetransmitEvery == 0 {
		opts.RetransmitEvery = 50 * time.Millisecond
	}
	n, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(n.Stop)
	return n
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNodesHandshakeAndEchoOverUDP(t *testing.T) {
	resp := startNode(t, Options{Responder: true})

	got := make(chan []byte, 1)
	init := startNode(t, Options{
		OnData: func(_ *lodp.Session, payload []byte) {
			select {
			case got <- append([]byte(nil), payload...):
			default:
			}
		},
	})

	respPub := respPublicKey(t, resp)
	key, err := init.Dial(localEndpoint(resp), respPub)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	waitFor(t, func() bool { return init.Established(key) }, "session establishment")

	if err := init.Send(key, []byte("ping")); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case payload := <-got:
		if !bytes.Equal(payload, []byte("ping")) {
			t.Fatalf("echo = %q", payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no echo received")
	}

	// Both sides expose the session.
	waitFor(t, func() bool { return len(resp.Sessions()) == 1 }, "responder session table")
	if len(init.Sessions()) != 1 {
		t.Fatalf("initiator sessions = %d", len(init.Sessions()))
	}
}

func TestDialIsIdempotentPerEndpoint(t *testing.T) {
	resp := startNode(t, Options{Responder: true})
	init := startNode(t, Options{})

	respPub := respPublicKey(t, resp)
	ep := localEndpoint(resp)

	k1, err := init.Dial(ep, respPub)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := init.Dial(ep, respPub)
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Fatalf("dial keys differ: %s vs %s", k1, k2)
	}
	if len(init.Sessions()) != 1 {
		t.Fatalf("sessions = %d, want 1", len(init.Sessions()))
	}
}

func respPublicKey(t *testing.T, n *Node) [32]byte {
	t.Helper()
	return n.opts.Identity.Keypair.Public()
}

func localEndpoint(n *Node) string {
	return fmt.Sprintf("127.0.0.1:%d", n.Port())
}
