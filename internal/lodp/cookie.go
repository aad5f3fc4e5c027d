package lodp

import (
	"encoding/binary"
	"net"

	"github.com/lodpnet/lodp/internal/crypto"
)

// Cookie service: the responder keeps zero per-flow state between INIT
// and HANDSHAKE by handing out MAC(key, peer address || packet-carried
// intro keys) and re-deriving it on the way back.

const (
	// CookieLen is the cookie size this responder emits.
	CookieLen = crypto.MACDigestLen

	// cookieRotateInterval is how long a cookie key stays current.
	cookieRotateInterval = 30
	// cookieGraceWindow is how long the previous key is still accepted
	// after rotation.
	cookieGraceWindow = 15
)

// cookieState holds the current and previous cookie keys. Rotation is
// lazy: every generate/verify samples the endpoint clock first.
type cookieState struct {
	current     [crypto.MACKeyLen]byte
	previous    [crypto.MACKeyLen]byte
	hasPrevious bool
	rotateAt    int64 // next rotation deadline, unix seconds
	expireAt    int64 // previous key acceptance deadline
}

// rotateIfNeeded rotates the cookie keys when the deadline has passed.
// Called with the endpoint lock held.
func (e *Endpoint) rotateIfNeeded(now int64) error {
	if now < e.cookies.rotateAt {
		return nil
	}
	e.cookies.previous = e.cookies.current
	e.cookies.hasPrevious = true
	if err := crypto.RandBytes(e.rand, e.cookies.current[:]); err != nil {
		return err
	}
	e.cookies.rotateAt = now + cookieRotateInterval
	e.cookies.expireAt = now + cookieGraceWindow
	return nil
}

// cookieBlob serializes the material a cookie binds: the peer's address
// and port plus the intro keys taken verbatim from the INIT or
// HANDSHAKE body.
func cookieBlob(addr *net.UDPAddr, introMAC, introBulk []byte) ([]byte, error) {
	var ip []byte
	if v4 := addr.IP.To4(); v4 != nil {
		ip = v4
	} else if v6 := addr.IP.To16(); v6 != nil {
		ip = v6
	} else {
		return nil, ErrAFNotSupport
	}

	blob := make([]byte, 0, len(ip)+2+len(introMAC)+len(introBulk))
	blob = append(blob, ip...)
	blob = binary.BigEndian.AppendUint16(blob, uint16(addr.Port))
	blob = append(blob, introMAC...)
	blob = append(blob, introBulk...)
	return blob, nil
}

// generateCookie computes a fresh cookie under the current key.
func (e *Endpoint) generateCookie(addr *net.UDPAddr, introMAC, introBulk []byte) ([]byte, error) {
	blob, err := cookieBlob(addr, introMAC, introBulk)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.rotateIfNeeded(e.clock()); err != nil {
		return nil, err
	}
	return crypto.Mac(e.cookies.current[:], CookieLen, blob), nil
}

// verifyCookie recomputes the cookie under the current key and, inside
// the grace window, the previous key. Both compares are constant-time.
// Two mismatches are ErrInvalidCookie.
func (e *Endpoint) verifyCookie(cookie []byte, addr *net.UDPAddr, introMAC, introBulk []byte) error {
	blob, err := cookieBlob(addr, introMAC, introBulk)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock()
	if err := e.rotateIfNeeded(now); err != nil {
		return err
	}
	if crypto.Equal(cookie, crypto.Mac(e.cookies.current[:], CookieLen, blob)) {
		return nil
	}
	if e.cookies.hasPrevious && now <= e.cookies.expireAt {
		if crypto.Equal(cookie, crypto.Mac(e.cookies.previous[:], CookieLen, blob)) {
			return nil
		}
	}
	return ErrInvalidCookie
}
