package lodp

import (
	"encoding/binary"
	"io"

	"github.com/lodpnet/lodp/internal/crypto"
)

// Envelope codec: encrypt-then-MAC over the common frame. The stream
// cipher covers type..end-of-buffer; the MAC covers IV..end-of-buffer,
// so the length field is authenticated before it is ever parsed.

// putHeader writes type, zero flags and the big-endian length into the
// plaintext side and sets the buffer length. bodyLen is the type-specific
// body size; the caller fills the body at pt[bodyOffset:].
func putHeader(b *buffer, t PacketType, bodyLen int) {
	b.pt[typeOffset] = byte(t)
	b.pt[flagsOffset] = 0
	binary.BigEndian.PutUint16(b.pt[lengthOffset:lengthOffset+2], uint16(tlvHeaderLen+bodyLen))
	b.n = bodyOffset + bodyLen
}

// appendPadding asks the host's padding hook for extra random bytes and
// appends them to the plaintext past the authenticated length, clamped
// to the remaining segment budget.
func appendPadding(b *buffer, hook func(current, max int) int, rng io.Reader) error {
	if hook == nil {
		return nil
	}
	pad := hook(b.n, MaxSegmentSize)
	if pad <= 0 {
		return nil
	}
	if pad > MaxSegmentSize-b.n {
		pad = MaxSegmentSize - b.n
	}
	if err := crypto.RandBytes(rng, b.pt[b.n:b.n+pad]); err != nil {
		return err
	}
	b.n += pad
	return nil
}

// sealPacket encrypts the plaintext side into the ciphertext side and
// MACs the result: fresh random IV, ChaCha20 from the type byte onward,
// keyed BLAKE2s over IV..end placed in the MAC slot.
func sealPacket(b *buffer, key *crypto.SymmetricKey, rng io.Reader) error {
	if err := crypto.RandBytes(rng, b.ct[ivOffset:typeOffset]); err != nil {
		return err
	}
	if err := crypto.StreamXOR(b.ct[typeOffset:b.n], b.pt[typeOffset:b.n],
		key.Bulk[:], b.ct[ivOffset:typeOffset]); err != nil {
		return err
	}
	mac := crypto.Mac(key.MAC[:], crypto.MACDigestLen, b.ct[ivOffset:b.n])
	copy(b.ct[macOffset:ivOffset], mac)
	return nil
}

// openPacket verifies the MAC in constant time and, on success, decrypts
// the ciphertext side into the plaintext side from the type byte onward.
// A mismatch is ErrInvalidMAC and leaves no plaintext behind.
func openPacket(b *buffer, key *crypto.SymmetricKey) error {
	if b.n < tagLen {
		return ErrBadPacket
	}
	mac := crypto.Mac(key.MAC[:], crypto.MACDigestLen, b.ct[ivOffset:b.n])
	if !crypto.Equal(mac, b.ct[macOffset:ivOffset]) {
		return ErrInvalidMAC
	}
	return crypto.StreamXOR(b.pt[typeOffset:b.n], b.ct[typeOffset:b.n],
		key.Bulk[:], b.ct[ivOffset:typeOffset])
}

// parseHeader reads the decrypted TLV header and applies the universal
// checks: flags must be zero, length at least the TLV header itself and
// no longer than the authenticated plaintext.
func parseHeader(b *buffer) (t PacketType, length int, err error) {
	if b.n < bodyOffset {
		return 0, 0, ErrBadPacket
	}
	if b.pt[flagsOffset] != 0 {
		return 0, 0, ErrBadPacket
	}
	length = int(binary.BigEndian.Uint16(b.pt[lengthOffset : lengthOffset+2]))
	if length < tlvHeaderLen || length > b.n-tagLen {
		return 0, 0, ErrBadPacket
	}
	return PacketType(b.pt[typeOffset]), length, nil
}
