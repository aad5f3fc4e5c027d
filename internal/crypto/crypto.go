package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/curve25519"
)

// Primitive sizes shared by the whole protocol.
const (
	// MACKeyLen is the keyed-BLAKE2s key size.
	MACKeyLen = 32
	// MACDigestLen is the truncated digest length carried on the wire.
	MACDigestLen = 16
	// BulkKeyLen is the ChaCha20 key size.
	BulkKeyLen = chacha20.KeySize
	// BulkIVLen is the ChaCha20 nonce size.
	BulkIVLen = chacha20.NonceSize
	// PublicKeyLen is the Curve25519 public key size.
	PublicKeyLen = 32
	// PrivateKeyLen is the Curve25519 private key size.
	PrivateKeyLen = 32
	// SharedSecretLen is the X25519 shared secret size.
	SharedSecretLen = 32
)

var (
	ErrInvalidPublicKey = errors.New("crypto: invalid public key")
	ErrBadDigestLen     = errors.New("crypto: digest length out of range")
)

// Labels for the deterministic introduction key derivation.
var (
	introMACLabel  = []byte("lodp-intro-1:mac")
	introBulkLabel = []byte("lodp-intro-1:stream")
)

// SymmetricKey is a MAC key plus bulk cipher key pair, the unit of
// envelope keying for one direction.
type SymmetricKey struct {
	MAC  [MACKeyLen]byte
	Bulk [BulkKeyLen]byte
}

// Wipe zeroes the key material.
func (k *SymmetricKey) Wipe() {
	Wipe(k.MAC[:])
	Wipe(k.Bulk[:])
}

// Mac computes keyed BLAKE2s-256 over the concatenation of data,
// truncated to size bytes (1..32).
func Mac(key []byte, size int, data ...[]byte) []byte {
	if size < 1 || size > blake2s.Size {
		panic(ErrBadDigestLen)
	}
	h, err := blake2s.New256(key)
	if err != nil {
		panic("crypto: blake2s key setup: " + err.Error())
	}
	for _, d := range data {
		h.Write(d)
	}
	sum := h.Sum(nil)
	out := make([]byte, size)
	copy(out, sum[:size])
	Wipe(sum)
	return out
}

// StreamXOR applies the ChaCha20 keystream for (key, iv) to src,
// writing into dst. dst and src must be the same length and must not
// partially overlap.
func StreamXOR(dst, src, key, iv []byte) error {
	c, err := chacha20.NewUnauthenticatedCipher(key, iv)
	if err != nil {
		return fmt.Errorf("stream cipher setup: %w", err)
	}
	c.XORKeyStream(dst, src)
	return nil
}

// Keypair is a Curve25519 keypair.
type Keypair struct {
	priv [PrivateKeyLen]byte
	pub  [PublicKeyLen]byte
}

// NewKeypair generates a keypair from r (crypto/rand.Reader if nil).
func NewKeypair(r io.Reader) (*Keypair, error) {
	if r == nil {
		r = rand.Reader
	}
	kp := &Keypair{}
	if _, err := io.ReadFull(r, kp.priv[:]); err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	// Clamp per Curve25519 convention
	kp.priv[0] &= 248
	kp.priv[31] &= 127
	kp.priv[31] |= 64

	pub, err := curve25519.X25519(kp.priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	copy(kp.pub[:], pub)
	return kp, nil
}

// KeypairFromPrivate rebuilds a keypair from stored private key bytes.
func KeypairFromPrivate(priv [PrivateKeyLen]byte) (*Keypair, error) {
	kp := &Keypair{priv: priv}
	pub, err := curve25519.X25519(kp.priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	copy(kp.pub[:], pub)
	return kp, nil
}

// Public returns the public key.
func (kp *Keypair) Public() [PublicKeyLen]byte {
	return kp.pub
}

// PrivateBytes exposes the raw private key for persistence.
func (kp *Keypair) PrivateBytes() [PrivateKeyLen]byte {
	return kp.priv
}

// ECDH computes the X25519 shared secret with the peer's public key.
// X25519 itself rejects the identity and the other low-order points by
// refusing an all-zero output, which doubles as the post-ECDH public
// key validation the handshake requires.
func (kp *Keypair) ECDH(peerPub [PublicKeyLen]byte) ([SharedSecretLen]byte, error) {
	var out [SharedSecretLen]byte
	s, err := curve25519.X25519(kp.priv[:], peerPub[:])
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	copy(out[:], s)
	Wipe(s)
	return out, nil
}

// Wipe zeroes both the private and the public key. The keypair is
// unusable afterwards.
func (kp *Keypair) Wipe() {
	Wipe(kp.priv[:])
	Wipe(kp.pub[:])
}

// ValidatePublicKey rejects the all-zero (identity) encoding up front.
// Low-order points that survive this check are caught by ECDH.
func ValidatePublicKey(pub []byte) error {
	if len(pub) != PublicKeyLen {
		return ErrInvalidPublicKey
	}
	var zero [PublicKeyLen]byte
	if subtle.ConstantTimeCompare(pub, zero[:]) == 1 {
		return ErrInvalidPublicKey
	}
	return nil
}

// DeriveIntroKeys derives the introduction key pair from a long-term
// public key. Both sides of a handshake compute the same pair, so
// "advertised out-of-band" reduces to knowing the public key.
func DeriveIntroKeys(pub [PublicKeyLen]byte) SymmetricKey {
	var k SymmetricKey
	copy(k.MAC[:], Mac(pub[:], MACKeyLen, introMACLabel))
	copy(k.Bulk[:], Mac(pub[:], BulkKeyLen, introBulkLabel))
	return k
}

// RandBytes fills b from r (crypto/rand.Reader if nil).
func RandBytes(r io.Reader, b []byte) error {
	if r == nil {
		r = rand.Reader
	}
	if _, err := io.ReadFull(r, b); err != nil {
		return fmt.Errorf("read random bytes: %w", err)
	}
	return nil
}

// Equal compares two byte slices in constant time.
func Equal(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}

// Wipe zeroes b. The noinline pragma and KeepAlive keep the stores from
// being elided when the slice is about to go out of scope.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
