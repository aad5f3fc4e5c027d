package identity

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lodpnet/lodp/internal/crypto"
)

// Identity holds a node's long-term Curve25519 keypair. For a responder
// this is the ntor identity B/b that initiators must know out of band.
type Identity struct {
	Keypair     *crypto.Keypair
	Fingerprint Fingerprint
}

// Generate creates a new random identity.
func Generate() (*Identity, error) {
	kp, err := crypto.NewKeypair(nil)
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	pub := kp.Public()
	return &Identity{Keypair: kp, Fingerprint: FingerprintOf(pub[:])}, nil
}

// FromPrivateKey recreates an identity from stored private key bytes.
func FromPrivateKey(priv [crypto.PrivateKeyLen]byte) (*Identity, error) {
	kp, err := crypto.KeypairFromPrivate(priv)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	pub := kp.Public()
	return &Identity{Keypair: kp, Fingerprint: FingerprintOf(pub[:])}, nil
}

// LoadOrGenerate loads an identity from file, or generates and saves a
// new one (0600, parent directory created on demand).
func LoadOrGenerate(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err == nil && len(data) == crypto.PrivateKeyLen {
		var priv [crypto.PrivateKeyLen]byte
		copy(priv[:], data)
		crypto.Wipe(data)
		return FromPrivateKey(priv)
	}

	id, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create identity directory: %w", err)
	}
	priv := id.Keypair.PrivateBytes()
	if err := os.WriteFile(path, priv[:], 0600); err != nil {
		return nil, fmt.Errorf("save identity: %w", err)
	}
	crypto.Wipe(priv[:])
	return id, nil
}

// PublicKeyHex returns the public key as a hex string, the form
// initiators are handed out of band.
func (id *Identity) PublicKeyHex() string {
	pub := id.Keypair.Public()
	return hex.EncodeToString(pub[:])
}

// PublicKeyFromHex parses an out-of-band responder public key.
func PublicKeyFromHex(s string) ([crypto.PublicKeyLen]byte, error) {
	var pub [crypto.PublicKeyLen]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return pub, fmt.Errorf("invalid hex public key: %w", err)
	}
	if len(b) != crypto.PublicKeyLen {
		return pub, fmt.Errorf("public key must be %d bytes, got %d", crypto.PublicKeyLen, len(b))
	}
	copy(pub[:], b)
	if err := crypto.ValidatePublicKey(pub[:]); err != nil {
		return pub, err
	}
	return pub, nil
}

// String returns a human-readable identity summary.
func (id *Identity) String() string {
	return fmt.Sprintf("Identity{fp=%s, pubkey=%s...}", id.Fingerprint, id.PublicKeyHex()[:16])
}
