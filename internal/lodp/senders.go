package lodp

import (
	"net"

	"github.com/lodpnet/lodp/internal/crypto"
)

// Per-type packet senders. Every sender follows the same shape: check
// the size budget, take a buffer, fill header and body, pad, seal under
// the appropriate key, hand the ciphertext to the host send hook, and
// return that hook's result. The buffer goes back to the pool on every
// exit path.

func (e *Endpoint) emit(b *buffer, key *crypto.SymmetricKey, addr *net.UDPAddr) error {
	if err := appendPadding(b, e.padHook(), e.rand); err != nil {
		return err
	}
	if err := sealPacket(b, key, e.rand); err != nil {
		return err
	}
	return e.cb.Send(e, b.ct[:b.n], addr)
}

func (e *Endpoint) padHook() func(current, max int) int {
	if e.cb.PreEncrypt == nil {
		return nil
	}
	return func(current, max int) int {
		return e.cb.PreEncrypt(e, current, max)
	}
}

// sendInit emits INIT: the initiator's self-chosen intro key pair,
// sealed under the responder's derived intro keys.
func (e *Endpoint) sendInit(s *Session) error {
	b, err := e.pool.get()
	if err != nil {
		return err
	}
	defer e.pool.put(b)

	putHeader(b, PacketInit, initBodyLen)
	body := b.pt[bodyOffset:]
	n := copy(body, s.selfIntro.MAC[:])
	copy(body[n:], s.selfIntro.Bulk[:])

	return e.emit(b, &s.respIntro, s.peerAddr)
}

// sendInitAck emits INIT_ACK: the cookie, sealed under the intro keys
// the INIT carried.
func (e *Endpoint) sendInitAck(addr *net.UDPAddr, peerKeys *crypto.SymmetricKey, cookie []byte) error {
	if bodyOffset+len(cookie) > MaxSegmentSize {
		return ErrMsgSize
	}
	b, err := e.pool.get()
	if err != nil {
		return err
	}
	defer e.pool.put(b)

	putHeader(b, PacketInitAck, len(cookie))
	copy(b.pt[bodyOffset:], cookie)

	return e.emit(b, peerKeys, addr)
}

// sendHandshake emits HANDSHAKE: the same intro key pair as INIT, the
// ephemeral public key X, and the echoed cookie.
func (e *Endpoint) sendHandshake(s *Session) error {
	bodyLen := handshakeBodyMinLen + len(s.cookie)
	if bodyOffset+bodyLen > MaxSegmentSize {
		return ErrMsgSize
	}
	b, err := e.pool.get()
	if err != nil {
		return err
	}
	defer e.pool.put(b)

	putHeader(b, PacketHandshake, bodyLen)
	body := b.pt[bodyOffset:]
	n := copy(body, s.selfIntro.MAC[:])
	n += copy(body[n:], s.selfIntro.Bulk[:])
	pub := s.eph.Public()
	n += copy(body[n:], pub[:])
	copy(body[n:], s.cookie)

	return e.emit(b, &s.respIntro, s.peerAddr)
}

// sendHandshakeAck emits HANDSHAKE_ACK: the responder ephemeral Y and
// the ntor verifier, sealed under the packet-carried intro keys.
func (e *Endpoint) sendHandshakeAck(addr *net.UDPAddr, peerKeys *crypto.SymmetricKey,
	respEphPub [crypto.PublicKeyLen]byte, auth [crypto.MACDigestLen]byte) error {
	b, err := e.pool.get()
	if err != nil {
		return err
	}
	defer e.pool.put(b)

	putHeader(b, PacketHandshakeAck, handshakeAckBodyLen)
	body := b.pt[bodyOffset:]
	n := copy(body, respEphPub[:])
	copy(body[n:], auth[:])

	return e.emit(b, peerKeys, addr)
}

// sendSealed emits a session-keyed packet (DATA, HEARTBEAT,
// HEARTBEAT_ACK) with an opaque payload.
func (e *Endpoint) sendSealed(s *Session, t PacketType, payload []byte) error {
	if bodyOffset+len(payload) > MaxSegmentSize {
		return ErrMsgSize
	}
	b, err := e.pool.get()
	if err != nil {
		return err
	}
	defer e.pool.put(b)

	putHeader(b, t, len(payload))
	copy(b.pt[bodyOffset:], payload)

	return e.emit(b, &s.txKey, s.peerAddr)
}
