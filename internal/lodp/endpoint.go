package lodp

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lodpnet/lodp/internal/crypto"
)

// Callbacks is the host surface the core calls out through. Send is
// required; everything else is optional. The core never retries or
// queues: a send failure propagates straight back to the caller.
type Callbacks struct {
	// Send emits one finished datagram toward addr.
	Send func(e *Endpoint, pkt []byte, addr *net.UDPAddr) error

	// OnAccept hands a freshly established responder session to the
	// host, which takes ownership (session lookup is host-side).
	OnAccept func(e *Endpoint, s *Session, addr *net.UDPAddr)

	// OnConnect delivers the initiator's handshake outcome exactly
	// once: nil, ErrBadHandshake or ErrNoBufs.
	OnConnect func(s *Session, err error)

	// OnRecv delivers a DATA payload. The slice is only valid for the
	// duration of the call.
	OnRecv func(s *Session, payload []byte)

	// OnHeartbeatAck delivers an echoed HEARTBEAT_ACK payload.
	OnHeartbeatAck func(s *Session, payload []byte)

	// PreEncrypt is the padding hook: asked before every encrypt how
	// many random bytes to append, clamped to the segment budget.
	PreEncrypt func(e *Endpoint, current, max int) int

	// RateLimit gates sessionless INIT and established HEARTBEAT
	// processing. Nil admits everything.
	RateLimit func(addr *net.UDPAddr, t PacketType) bool
}

// Config carries endpoint construction parameters.
type Config struct {
	// Identity is the long-term Curve25519 keypair (the ntor B/b).
	Identity *crypto.Keypair

	// Responder enables the introduction keys derived from Identity,
	// allowing the endpoint to accept INIT/HANDSHAKE without a session.
	Responder bool

	// PoolSize is the packet buffer pool capacity (default 32).
	PoolSize int

	// Clock is a coarse unix-seconds source for cookie rotation
	// (default time.Now).
	Clock func() int64

	// Rand is the CSPRNG (default crypto/rand).
	Rand io.Reader

	// Logger receives debug drop/diagnostic records (default
	// slog.Default()).
	Logger *slog.Logger

	// UserData is an opaque host pointer carried on the endpoint.
	UserData any
}

// Endpoint is the process-wide protocol engine: responder identity,
// introduction keys, cookie keys and the packet dispatcher. One packet
// is processed to completion before the next; the host must not call
// into one endpoint from two goroutines at once.
type Endpoint struct {
	identity *crypto.Keypair
	intro    crypto.SymmetricKey
	hasIntro bool

	cookies cookieState
	pool    *bufferPool
	cb      Callbacks
	clock   func() int64
	rand    io.Reader
	log     *slog.Logger
	mu      sync.Mutex

	// UserData is an opaque host pointer.
	UserData any
}

// NewEndpoint builds an endpoint around an identity and host callbacks.
func NewEndpoint(cfg Config, cb Callbacks) (*Endpoint, error) {
	if cfg.Identity == nil {
		return nil, errors.New("lodp: endpoint requires an identity keypair")
	}
	if cb.Send == nil {
		return nil, errors.New("lodp: endpoint requires a send callback")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 32
	}
	if cfg.Clock == nil {
		cfg.Clock = func() int64 { return time.Now().Unix() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	e := &Endpoint{
		identity: cfg.Identity,
		pool:     newBufferPool(cfg.PoolSize),
		cb:       cb,
		clock:    cfg.Clock,
		rand:     cfg.Rand,
		log:      cfg.Logger.With("component", "lodp"),
		UserData: cfg.UserData,
	}
	if cfg.Responder {
		e.intro = crypto.DeriveIntroKeys(cfg.Identity.Public())
		e.hasIntro = true
		if err := crypto.RandBytes(e.rand, e.cookies.current[:]); err != nil {
			return nil, err
		}
		e.cookies.rotateAt = e.clock() + cookieRotateInterval
	}
	return e, nil
}

// PublicKey returns the endpoint's long-term public key.
func (e *Endpoint) PublicKey() [crypto.PublicKeyLen]byte {
	return e.identity.Public()
}

// Close wipes the endpoint's symmetric material. All sessions tied to
// the endpoint must already be closed.
func (e *Endpoint) Close() {
	e.intro.Wipe()
	e.hasIntro = false
	crypto.Wipe(e.cookies.current[:])
	crypto.Wipe(e.cookies.previous[:])
}

// Connect creates an initiator session toward a responder whose
// long-term public key is known, and emits the opening INIT.
func (e *Endpoint) Connect(addr *net.UDPAddr, responderPub [crypto.PublicKeyLen]byte) (*Session, error) {
	if addr.IP.To4() == nil && addr.IP.To16() == nil {
		return nil, ErrAFNotSupport
	}
	if err := crypto.ValidatePublicKey(responderPub[:]); err != nil {
		return nil, ErrBadHandshake
	}

	eph, err := crypto.NewKeypair(e.rand)
	if err != nil {
		return nil, err
	}
	s := &Session{
		endpoint:       e,
		peerAddr:       addr,
		role:           RoleInitiator,
		state:          StateInit,
		remoteIdentity: responderPub,
		respIntro:      crypto.DeriveIntroKeys(responderPub),
		eph:            eph,
	}
	if err := crypto.RandBytes(e.rand, s.selfIntro.MAC[:]); err != nil {
		s.fail()
		return nil, err
	}
	if err := crypto.RandBytes(e.rand, s.selfIntro.Bulk[:]); err != nil {
		s.fail()
		return nil, err
	}
	if err := e.sendInit(s); err != nil {
		s.fail()
		return nil, err
	}
	return s, nil
}

// HandlePacket is the dispatcher entry point. The host matches the
// datagram to a session by peer address (or passes nil) and hands the
// raw bytes over. Protocol failures come back as error kinds and are
// never signalled to the peer.
func (e *Endpoint) HandlePacket(s *Session, pkt []byte, addr *net.UDPAddr) error {
	if len(pkt) < bodyOffset || len(pkt) > MaxSegmentSize {
		return ErrBadPacket
	}

	b, err := e.pool.get()
	if err != nil {
		return err
	}
	defer e.pool.put(b)
	copy(b.ct[:], pkt)
	b.n = len(pkt)

	// Key selection: session receive key first, endpoint intro keys as
	// the fallback. Intro-key success with a session attached is only
	// ever a responder-side HANDSHAKE retransmit.
	introAuth := false
	switch {
	case s != nil:
		if s.state == StateError {
			return ErrBadPacket
		}
		err = openPacket(b, s.rxKeyCurrent())
		if errors.Is(err, ErrInvalidMAC) && e.hasIntro {
			if retryErr := openPacket(b, &e.intro); retryErr == nil {
				introAuth = true
				err = nil
			}
		}
		if err != nil {
			return err
		}
	default:
		if !e.hasIntro {
			return ErrNotResponder
		}
		if err = openPacket(b, &e.intro); err != nil {
			return err
		}
		introAuth = true
	}

	t, length, err := parseHeader(b)
	if err != nil {
		return err
	}
	body := b.pt[bodyOffset : tagLen+length]

	if s != nil && introAuth {
		if t != PacketHandshake || s.role != RoleResponder {
			return ErrBadPacket
		}
		return e.handleHandshakeRetransmit(s, body, addr)
	}

	if s == nil {
		switch t {
		case PacketInit:
			return e.handleInit(body, addr)
		case PacketHandshake:
			return e.handleHandshake(body, addr)
		default:
			e.log.Debug("sessionless packet dropped", "type", t, "from", addr)
			return ErrBadPacket
		}
	}

	switch t {
	case PacketData:
		return e.handleData(s, body)
	case PacketInitAck:
		return e.handleInitAck(s, body)
	case PacketHandshakeAck:
		return e.handleHandshakeAck(s, body)
	case PacketHeartbeat:
		return e.handleHeartbeat(s, body, addr)
	case PacketHeartbeatAck:
		return e.handleHeartbeatAck(s, body)
	default:
		// INIT/HANDSHAKE under session keys, and the reserved
		// REKEY/REKEY_ACK pair.
		e.log.Debug("packet dropped", "type", t, "state", s.state, "from", addr)
		return ErrBadPacket
	}
}

// --- Responder handlers ---

// handleInit answers a sessionless INIT with an INIT_ACK carrying a
// fresh cookie. Deliberately stateless: no session, no allocation that
// survives the call.
func (e *Endpoint) handleInit(body []byte, addr *net.UDPAddr) error {
	if len(body) != initBodyLen {
		return ErrBadPacket
	}
	if e.cb.RateLimit != nil && !e.cb.RateLimit(addr, PacketInit) {
		e.log.Debug("INIT rate-limited", "from", addr)
		return nil
	}

	introMAC := body[:crypto.MACKeyLen]
	introBulk := body[crypto.MACKeyLen:initBodyLen]
	cookie, err := e.generateCookie(addr, introMAC, introBulk)
	if err != nil {
		return err
	}

	var peerKeys crypto.SymmetricKey
	copy(peerKeys.MAC[:], introMAC)
	copy(peerKeys.Bulk[:], introBulk)
	defer peerKeys.Wipe()

	return e.sendInitAck(addr, &peerKeys, cookie)
}

// handleHandshake validates the echoed cookie, runs the responder side
// of ntor and, on success, creates the session directly in ESTABLISHED
// and hands it to the host.
func (e *Endpoint) handleHandshake(body []byte, addr *net.UDPAddr) error {
	if len(body) != handshakeBodyMinLen+CookieLen {
		return ErrBadPacket
	}
	introMAC := body[:crypto.MACKeyLen]
	introBulk := body[crypto.MACKeyLen : crypto.MACKeyLen+crypto.BulkKeyLen]
	xBytes := body[crypto.MACKeyLen+crypto.BulkKeyLen : handshakeBodyMinLen]
	cookie := body[handshakeBodyMinLen:]

	if err := e.verifyCookie(cookie, addr, introMAC, introBulk); err != nil {
		return err
	}
	if err := crypto.ValidatePublicKey(xBytes); err != nil {
		return ErrBadHandshake
	}
	var initEphPub [crypto.PublicKeyLen]byte
	copy(initEphPub[:], xBytes)

	eph, err := crypto.NewKeypair(e.rand)
	if err != nil {
		return err
	}
	res, err := ntorResponderSide(eph, e.identity, initEphPub)
	if err != nil {
		eph.Wipe()
		return ErrBadHandshake
	}

	s := &Session{
		endpoint: e,
		peerAddr: addr,
		role:     RoleResponder,
		state:    StateEstablished,
		eph:      eph,
		ntor:     res,
		hasNtor:  true,
	}
	// Handshake material stays on the session until the first peer
	// DATA closes the HANDSHAKE_ACK retransmit window.
	initToResp, respToInit := crypto.DeriveSessionKeys(res.sharedSecret[:])
	s.txKey = respToInit
	s.rxKey = initToResp

	var peerKeys crypto.SymmetricKey
	copy(peerKeys.MAC[:], introMAC)
	copy(peerKeys.Bulk[:], introBulk)
	defer peerKeys.Wipe()

	if err := e.sendHandshakeAck(addr, &peerKeys, eph.Public(), s.ntor.auth); err != nil {
		s.Close()
		return err
	}

	if e.cb.OnAccept != nil {
		e.cb.OnAccept(e, s, addr)
	}
	return nil
}

// handleHandshakeRetransmit re-emits HANDSHAKE_ACK from the cached
// verifier when the initiator evidently never saw the first one. No
// host callback fires a second time.
func (e *Endpoint) handleHandshakeRetransmit(s *Session, body []byte, addr *net.UDPAddr) error {
	if len(body) != handshakeBodyMinLen+CookieLen {
		return ErrBadPacket
	}
	if s.seenPeerData || !s.hasNtor || s.eph == nil {
		return ErrBadPacket
	}

	var peerKeys crypto.SymmetricKey
	copy(peerKeys.MAC[:], body[:crypto.MACKeyLen])
	copy(peerKeys.Bulk[:], body[crypto.MACKeyLen:crypto.MACKeyLen+crypto.BulkKeyLen])
	defer peerKeys.Wipe()

	e.log.Debug("HANDSHAKE retransmit, re-emitting HANDSHAKE_ACK", "from", addr)
	return e.sendHandshakeAck(addr, &peerKeys, s.eph.Public(), s.ntor.auth)
}

// --- Initiator handlers ---

// handleInitAck stores the responder's cookie and advances to the
// HANDSHAKE exchange.
func (e *Endpoint) handleInitAck(s *Session, body []byte) error {
	if s.role != RoleInitiator || s.state != StateInit {
		return ErrBadPacket
	}
	if len(body) < 1 || len(body) > maxCookieLen {
		return ErrBadPacket
	}

	// The cookie blob is responder-defined and opaque; its length is
	// only bounded, not known.
	s.cookie = append([]byte(nil), body...)
	s.state = StateHandshake

	err := e.sendHandshake(s)
	if errors.Is(err, ErrNoBufs) {
		s.fail()
		if e.cb.OnConnect != nil {
			e.cb.OnConnect(s, ErrNoBufs)
		}
	}
	return err
}

// handleHandshakeAck finishes the initiator side: recompute the ntor
// verifier, compare in constant time, install the directional keys.
func (e *Endpoint) handleHandshakeAck(s *Session, body []byte) error {
	if s.role != RoleInitiator || s.state != StateHandshake {
		return ErrBadPacket
	}
	if len(body) != handshakeAckBodyLen {
		return ErrBadPacket
	}

	var respEphPub [crypto.PublicKeyLen]byte
	copy(respEphPub[:], body[:crypto.PublicKeyLen])
	verifier := body[crypto.PublicKeyLen:]

	if err := crypto.ValidatePublicKey(respEphPub[:]); err != nil {
		return e.failHandshake(s)
	}
	res, err := ntorInitiator(s.eph, respEphPub, s.remoteIdentity)
	if err != nil {
		return e.failHandshake(s)
	}
	if !crypto.Equal(res.auth[:], verifier) {
		res.wipe()
		return e.failHandshake(s)
	}

	initToResp, respToInit := crypto.DeriveSessionKeys(res.sharedSecret[:])
	s.txKey = initToResp
	s.rxKey = respToInit
	res.wipe()

	s.state = StateEstablished
	s.scrubHandshake()
	if e.cb.OnConnect != nil {
		e.cb.OnConnect(s, nil)
	}
	return nil
}

// failHandshake drives an initiator session to ERROR with transients
// wiped and reports BAD_HANDSHAKE exactly once through on_connect.
func (e *Endpoint) failHandshake(s *Session) error {
	s.fail()
	if e.cb.OnConnect != nil {
		e.cb.OnConnect(s, ErrBadHandshake)
	}
	return ErrBadHandshake
}

// --- Established traffic ---

func (e *Endpoint) handleData(s *Session, body []byte) error {
	if s.state != StateEstablished {
		return ErrBadPacket
	}
	if s.role == RoleResponder && !s.seenPeerData {
		// First peer DATA proves the initiator holds the session keys;
		// the retransmit window closes and the handshake material goes.
		s.seenPeerData = true
		s.scrubHandshake()
	}
	if e.cb.OnRecv != nil {
		e.cb.OnRecv(s, body)
	}
	return nil
}

func (e *Endpoint) handleHeartbeat(s *Session, body []byte, addr *net.UDPAddr) error {
	if s.state != StateEstablished {
		return ErrBadPacket
	}
	if e.cb.RateLimit != nil && !e.cb.RateLimit(addr, PacketHeartbeat) {
		e.log.Debug("HEARTBEAT rate-limited", "from", addr)
		return nil
	}
	return e.sendSealed(s, PacketHeartbeatAck, body)
}

func (e *Endpoint) handleHeartbeatAck(s *Session, body []byte) error {
	if s.state != StateEstablished {
		return ErrBadPacket
	}
	if e.cb.OnHeartbeatAck != nil {
		e.cb.OnHeartbeatAck(s, body)
	}
	return nil
}
