package lodp

import "errors"

// Error kinds surfaced by the core. Receive-path failures are reported
// to the host only; nothing is ever signalled to the peer.
var (
	// ErrInvalidMAC means authentication failed under the tried key.
	ErrInvalidMAC = errors.New("lodp: invalid MAC")

	// ErrBadPacket means a structural or semantic check failed: bad
	// length, non-zero flags, or a packet type outside its state window.
	ErrBadPacket = errors.New("lodp: malformed or unexpected packet")

	// ErrInvalidCookie means the handshake cookie matched neither the
	// current nor the unexpired previous cookie key.
	ErrInvalidCookie = errors.New("lodp: cookie mismatch")

	// ErrNotResponder means a sessionless packet arrived at an endpoint
	// without introduction keys, or a responder-only operation was
	// attempted on an initiator.
	ErrNotResponder = errors.New("lodp: endpoint cannot respond")

	// ErrBadHandshake means the key agreement failed or the verifier
	// did not match.
	ErrBadHandshake = errors.New("lodp: handshake failed")

	// ErrNoBufs means the packet buffer pool is exhausted.
	ErrNoBufs = errors.New("lodp: buffer pool exhausted")

	// ErrMsgSize means the payload would push the packet past the
	// maximum segment size. Fragmentation is never performed.
	ErrMsgSize = errors.New("lodp: payload exceeds maximum segment size")

	// ErrAFNotSupport means the peer address is neither IPv4 nor IPv6.
	ErrAFNotSupport = errors.New("lodp: unsupported address family")
)
