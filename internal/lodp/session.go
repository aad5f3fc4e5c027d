package lodp

import (
	"errors"
	"net"

	"github.com/lodpnet/lodp/internal/crypto"
)

// Role is the session's side of the handshake.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// State is the session lifecycle state. The state plus role pair
// determines which packet types are admissible.
type State int

const (
	// StateInit: INIT sent, waiting for INIT_ACK. Initiator only.
	StateInit State = iota
	// StateHandshake: cookie held, HANDSHAKE sent, waiting for
	// HANDSHAKE_ACK. Initiator only.
	StateHandshake
	// StateEstablished: session keys live. Responder sessions are
	// created directly here.
	StateEstablished
	// StateError: terminal. Every packet is dropped.
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateHandshake:
		return "handshake"
	case StateEstablished:
		return "established"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrNotEstablished is returned by the data-path senders when the
// session keys are not live yet (or not anymore).
var ErrNotEstablished = errors.New("lodp: session not established")

// Session is the per-peer connection control block. The endpoint owns
// the handshake; after ESTABLISHED the session is externally owned and
// must not be driven from two goroutines at once.
type Session struct {
	endpoint *Endpoint
	peerAddr *net.UDPAddr
	role     Role
	state    State

	// Initiator handshake material.
	remoteIdentity [crypto.PublicKeyLen]byte // responder long-term B
	respIntro      crypto.SymmetricKey       // derived from B, keys INIT/HANDSHAKE
	selfIntro      crypto.SymmetricKey       // initiator-chosen, keys the ACKs back
	cookie         []byte                    // INIT_ACK blob, echoed in HANDSHAKE

	// Shared handshake material.
	eph     *crypto.Keypair // x (initiator) or y (responder)
	ntor    ntorResult      // shared secret + cached verifier
	hasNtor bool

	// Live traffic keys, populated on ESTABLISHED.
	txKey crypto.SymmetricKey
	rxKey crypto.SymmetricKey

	seenPeerData bool

	// UserData is an opaque host pointer carried on the session.
	UserData any
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Role returns the session's handshake role.
func (s *Session) Role() Role { return s.role }

// PeerAddr returns the peer's datagram address.
func (s *Session) PeerAddr() *net.UDPAddr { return s.peerAddr }

// Established reports whether the session keys are live.
func (s *Session) Established() bool { return s.state == StateEstablished }

// rxKeyCurrent selects the key an inbound packet for this session is
// tried against first: the derived receive key once established,
// otherwise the initiator's self-chosen intro keys (which protect
// INIT_ACK and HANDSHAKE_ACK).
func (s *Session) rxKeyCurrent() *crypto.SymmetricKey {
	if s.state == StateEstablished {
		return &s.rxKey
	}
	return &s.selfIntro
}

// scrubHandshake zeroes every transient the handshake phase produced:
// the cookie blob, the ephemeral keypair, the shared secret and
// verifier, and the pre-session intro keys. Idempotent.
func (s *Session) scrubHandshake() {
	if s.cookie != nil {
		crypto.Wipe(s.cookie)
		s.cookie = nil
	}
	if s.eph != nil {
		s.eph.Wipe()
		s.eph = nil
	}
	if s.hasNtor {
		s.ntor.wipe()
		s.hasNtor = false
	}
	s.selfIntro.Wipe()
	s.respIntro.Wipe()
}

// fail drives the session to ERROR and scrubs handshake transients.
func (s *Session) fail() {
	s.scrubHandshake()
	s.state = StateError
}

// Close destroys the session's key material. Legal in any state,
// including mid-handshake; the session is unusable afterwards and the
// host drops its reference.
func (s *Session) Close() {
	s.scrubHandshake()
	s.txKey.Wipe()
	s.rxKey.Wipe()
	s.state = StateError
}

// Retransmit re-emits the in-flight handshake packet after presumed
// datagram loss: INIT in state INIT, HANDSHAKE in state HANDSHAKE.
// A no-op once established.
func (s *Session) Retransmit() error {
	switch s.state {
	case StateInit:
		return s.endpoint.sendInit(s)
	case StateHandshake:
		return s.endpoint.sendHandshake(s)
	case StateEstablished:
		return nil
	default:
		return ErrBadPacket
	}
}

// SendData emits a DATA packet with the given payload. The session must
// be established; oversized payloads fail fast with ErrMsgSize.
func (s *Session) SendData(payload []byte) error {
	if s.state != StateEstablished {
		return ErrNotEstablished
	}
	return s.endpoint.sendSealed(s, PacketData, payload)
}

// SendHeartbeat emits a HEARTBEAT carrying payload; the peer echoes it
// back in a HEARTBEAT_ACK.
func (s *Session) SendHeartbeat(payload []byte) error {
	if s.state != StateEstablished {
		return ErrNotEstablished
	}
	return s.endpoint.sendSealed(s, PacketHeartbeat, payload)
}
