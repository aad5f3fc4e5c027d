package node

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/lodpnet/lodp/internal/crypto"
	"github.com/lodpnet/lodp/internal/identity"
	"github.com/lodpnet/lodp/internal/lodp"
	"github.com/lodpnet/lodp/internal/registry"
	"github.com/lodpnet/lodp/internal/transport"
)

// Event is a session lifecycle notification published to the host
// (management API feed, logs).
type Event struct {
	Kind string    `json:"kind"` // accepted, connected, connect_failed, closed, heartbeat_ack
	Addr string    `json:"addr"`
	Time time.Time `json:"time"`
	Err  string    `json:"err,omitempty"`
}

// DataHandler consumes an established session's DATA payloads. The
// payload slice is only valid for the duration of the call.
type DataHandler func(s *lodp.Session, payload []byte)

// Options configures a Node.
type Options struct {
	Identity  *identity.Identity
	Responder bool
	Port      int

	// DB is the optional registry handle (responder, usually).
	DB *gorm.DB
	// Publish receives lifecycle events; nil discards them.
	Publish func(Event)
	// OnData handles DATA payloads. Nil on a responder means echo.
	OnData DataHandler

	HeartbeatEvery  time.Duration
	RetransmitEvery time.Duration
	IdleAfter       time.Duration

	Logger *slog.Logger
}

// tracked pairs a session with the host-side bookkeeping the core
// deliberately leaves outside: lookup key, registry row, counters.
type tracked struct {
	sess     *lodp.Session
	recID    uint
	lastSeen time.Time
	lastBeat time.Time
	bytesIn  int64
	bytesOut int64
}

// Node owns one endpoint, its UDP transport and the address→session
// table. All endpoint and session calls are serialized under mu, which
// is held while the core runs (core callbacks must not re-lock it).
type Node struct {
	opts      Options
	transport *transport.Transport
	endpoint  *lodp.Endpoint

	mu       sync.Mutex
	sessions map[string]*tracked

	events chan Event
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Node around an identity.
func New(opts Options) (*Node, error) {
	if opts.Identity == nil {
		return nil, fmt.Errorf("node requires an identity")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HeartbeatEvery == 0 {
		opts.HeartbeatEvery = 15 * time.Second
	}
	if opts.RetransmitEvery == 0 {
		opts.RetransmitEvery = 3 * time.Second
	}
	if opts.IdleAfter == 0 {
		opts.IdleAfter = 120 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		opts:     opts,
		sessions: make(map[string]*tracked),
		events:   make(chan Event, 64),
		log:      opts.Logger.With("component", "node"),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// SetPublish installs the event sink. Must be called before Start.
func (n *Node) SetPublish(fn func(Event)) {
	n.opts.Publish = fn
}

// Start binds the transport, builds the endpoint and launches the read
// and maintenance loops.
func (n *Node) Start() error {
	tr, err := transport.NewTransport(n.opts.Port, n.log)
	if err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	n.transport = tr

	ep, err := lodp.NewEndpoint(lodp.Config{
		Identity:  n.opts.Identity.Keypair,
		Responder: n.opts.Responder,
		Logger:    n.log,
	}, lodp.Callbacks{
		Send:           n.sendPacket,
		OnAccept:       n.onAccept,
		OnConnect:      n.onConnect,
		OnRecv:         n.onRecv,
		OnHeartbeatAck: n.onHeartbeatAck,
	})
	if err != nil {
		tr.Close()
		return fmt.Errorf("create endpoint: %w", err)
	}
	n.endpoint = ep

	n.wg.Add(3)
	go n.readLoop()
	go n.maintenanceLoop()
	go n.eventLoop()

	n.log.Info("node started",
		"fingerprint", n.opts.Identity.Fingerprint,
		"port", tr.Port(),
		"responder", n.opts.Responder,
	)
	return nil
}

// Stop shuts the node down, closing every session.
func (n *Node) Stop() {
	n.log.Info("node stopping...")
	n.cancel()
	if n.transport != nil {
		n.transport.Close()
	}

	n.mu.Lock()
	for key, t := range n.sessions {
		t.sess.Close()
		n.closeRecord(t)
		delete(n.sessions, key)
	}
	if n.endpoint != nil {
		n.endpoint.Close()
	}
	n.mu.Unlock()

	n.wg.Wait()
	close(n.events)
	n.log.Info("node stopped")
}

// Port returns the bound UDP port.
func (n *Node) Port() int {
	return n.transport.Port()
}

// Dial opens an initiator session toward a responder and retransmits
// the handshake until it settles. The returned key addresses the
// session in Send.
func (n *Node) Dial(endpoint string, responderPub [crypto.PublicKeyLen]byte) (string, error) {
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return "", fmt.Errorf("resolve responder endpoint: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	key := addr.String()
	if _, exists := n.sessions[key]; exists {
		return key, nil
	}
	sess, err := n.endpoint.Connect(addr, responderPub)
	if err != nil {
		return "", fmt.Errorf("connect: %w", err)
	}
	n.sessions[key] = &tracked{sess: sess, lastSeen: time.Now()}
	return key, nil
}

// Send emits a DATA payload on the session addressed by key.
func (n *Node) Send(key string, payload []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.sessions[key]
	if !ok {
		return fmt.Errorf("no session for %s", key)
	}
	if err := t.sess.SendData(payload); err != nil {
		return err
	}
	t.bytesOut += int64(len(payload))
	return nil
}

// Established reports whether the session addressed by key has live keys.
func (n *Node) Established(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.sessions[key]
	return ok && t.sess.Established()
}

// SessionInfo is a live session snapshot for the management API.
type SessionInfo struct {
	Addr     string    `json:"addr"`
	Role     string    `json:"role"`
	State    string    `json:"state"`
	LastSeen time.Time `json:"last_seen"`
	BytesIn  int64     `json:"bytes_in"`
	BytesOut int64     `json:"bytes_out"`
}

// Sessions returns a snapshot of the live session table.
func (n *Node) Sessions() []SessionInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]SessionInfo, 0, len(n.sessions))
	for key, t := range n.sessions {
		out = append(out, SessionInfo{
			Addr:     key,
			Role:     t.sess.Role().String(),
			State:    t.sess.State().String(),
			LastSeen: t.lastSeen,
			BytesIn:  t.bytesIn,
			BytesOut: t.bytesOut,
		})
	}
	return out
}

// --- Core callbacks (run with mu held by the packet path) ---

func (n *Node) sendPacket(_ *lodp.Endpoint, pkt []byte, addr *net.UDPAddr) error {
	return n.transport.SendTo(pkt, addr)
}

func (n *Node) onAccept(_ *lodp.Endpoint, s *lodp.Session, addr *net.UDPAddr) {
	key := addr.String()
	t := &tracked{sess: s, lastSeen: time.Now()}
	n.sessions[key] = t

	if n.opts.DB != nil {
		if id, err := registry.OpenSession(n.opts.DB, key, s.Role().String()); err == nil {
			t.recID = id
		} else {
			n.log.Warn("record session", "err", err)
		}
	}
	n.log.Info("session accepted", "peer", key)
	n.publish(Event{Kind: "accepted", Addr: key, Time: time.Now()})
}

func (n *Node) onConnect(s *lodp.Session, err error) {
	key := s.PeerAddr().String()
	if err != nil {
		n.log.Warn("connect failed", "peer", key, "err", err)
		delete(n.sessions, key)
		n.publish(Event{Kind: "connect_failed", Addr: key, Time: time.Now(), Err: err.Error()})
		return
	}
	if t, ok := n.sessions[key]; ok {
		t.lastSeen = time.Now()
		if n.opts.DB != nil {
			if id, dbErr := registry.OpenSession(n.opts.DB, key, s.Role().String()); dbErr == nil {
				t.recID = id
			}
		}
	}
	n.log.Info("session established", "peer", key)
	n.publish(Event{Kind: "connected", Addr: key, Time: time.Now()})
}

func (n *Node) onRecv(s *lodp.Session, payload []byte) {
	key := s.PeerAddr().String()
	if t, ok := n.sessions[key]; ok {
		t.lastSeen = time.Now()
		t.bytesIn += int64(len(payload))
	}
	switch {
	case n.opts.OnData != nil:
		n.opts.OnData(s, payload)
	case n.opts.Responder:
		// Default responder behavior: echo the payload back.
		if err := s.SendData(payload); err != nil {
			n.log.Debug("echo send failed", "peer", key, "err", err)
		} else if t, ok := n.sessions[key]; ok {
			t.bytesOut += int64(len(payload))
		}
	default:
		n.log.Info("data received", "peer", key, "len", len(payload))
	}
}

func (n *Node) onHeartbeatAck(s *lodp.Session, payload []byte) {
	key := s.PeerAddr().String()
	if t, ok := n.sessions[key]; ok {
		t.lastSeen = time.Now()
	}
	n.log.Debug("heartbeat ack", "peer", key, "len", len(payload))
	n.publish(Event{Kind: "heartbeat_ack", Addr: key, Time: time.Now()})
}

// --- Loops ---

func (n *Node) readLoop() {
	defer n.wg.Done()
	buf := make([]byte, lodp.MaxSegmentSize)
	for {
		select {
		case <-n.ctx.Done():
			return
		default:
		}
		sz, remoteAddr, err := n.transport.ReadFrom(buf)
		if err != nil {
			if n.ctx.Err() != nil {
				return
			}
			n.log.Error("UDP read error", "err", err)
			continue
		}

		n.mu.Lock()
		t := n.sessions[remoteAddr.String()]
		var sess *lodp.Session
		if t != nil {
			sess = t.sess
		}
		if err := n.endpoint.HandlePacket(sess, buf[:sz], remoteAddr); err != nil {
			n.log.Debug("packet dropped", "from", remoteAddr, "err", err)
		} else if t != nil {
			t.lastSeen = time.Now()
		}
		n.mu.Unlock()
	}
}

func (n *Node) maintenanceLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.opts.RetransmitEvery)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.mu.Lock()
			now := time.Now()
			for key, t := range n.sessions {
				switch t.sess.State() {
				case lodp.StateInit, lodp.StateHandshake:
					if err := t.sess.Retransmit(); err != nil {
						n.log.Debug("handshake retransmit failed", "peer", key, "err", err)
					}
				case lodp.StateEstablished:
					if t.sess.Role() == lodp.RoleInitiator && now.Sub(t.lastBeat) >= n.opts.HeartbeatEvery {
						if err := t.sess.SendHeartbeat(nil); err != nil {
							n.log.Debug("heartbeat send failed", "peer", key, "err", err)
						}
						t.lastBeat = now
					}
				}
				if now.Sub(t.lastSeen) > n.opts.IdleAfter {
					n.log.Info("session idle, closing", "peer", key)
					t.sess.Close()
					n.closeRecord(t)
					delete(n.sessions, key)
					n.publish(Event{Kind: "closed", Addr: key, Time: now})
				}
			}
			n.mu.Unlock()
		}
	}
}

// eventLoop drains the publish queue outside the packet path.
func (n *Node) eventLoop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		case ev := <-n.events:
			if n.opts.Publish != nil {
				n.opts.Publish(ev)
			}
		}
	}
}

func (n *Node) publish(ev Event) {
	select {
	case n.events <- ev:
	default:
		// Feed is best-effort; drop when the queue is full.
	}
}

func (n *Node) closeRecord(t *tracked) {
	if n.opts.DB == nil || t.recID == 0 {
		return
	}
	if err := registry.CloseSession(n.opts.DB, t.recID, t.bytesIn, t.bytesOut); err != nil {
		n.log.Warn("close session record", "err", err)
	}
}
