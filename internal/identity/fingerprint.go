package identity

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2s"
)

const (
	// FingerprintSize is the byte length of a key fingerprint.
	FingerprintSize = 8
)

// Fingerprint is a short BLAKE2s digest of a public key, used for
// logging and the peer registry. It carries no protocol meaning.
type Fingerprint [FingerprintSize]byte

// FingerprintOf derives the fingerprint of a public key.
func FingerprintOf(pubKey []byte) Fingerprint {
	hash := blake2s.Sum256(pubKey)
	var fp Fingerprint
	copy(fp[:], hash[:FingerprintSize])
	return fp
}

// FingerprintFromHex parses a hex-encoded fingerprint.
func FingerprintFromHex(s string) (Fingerprint, error) {
	var fp Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return fp, fmt.Errorf("invalid hex fingerprint: %w", err)
	}
	if len(b) != FingerprintSize {
		return fp, fmt.Errorf("fingerprint must be %d bytes, got %d", FingerprintSize, len(b))
	}
	copy(fp[:], b)
	return fp, nil
}

// String returns the hex-encoded fingerprint.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// IsZero returns true if the fingerprint is all zeros.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}
