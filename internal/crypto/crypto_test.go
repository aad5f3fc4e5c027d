package crypto

import (
	"bytes"
	"testing"
)

func TestMacSizesAndDeterminism(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, MACKeyLen)
	msg := []byte("the quick brown fox")

	for _, size := range []int{1, MACDigestLen, 32} {
		out := Mac(key, size, msg)
		if len(out) != size {
			t.Fatalf("Mac size %d: got %d bytes", size, len(out))
		}
	}

	a := Mac(key, MACDigestLen, msg)
	b := Mac(key, MACDigestLen, msg)
	if !bytes.Equal(a, b) {
		t.Fatal("Mac is not deterministic")
	}

	// Truncation is a prefix of the full digest
	full := Mac(key, 32, msg)
	if !bytes.Equal(a, full[:MACDigestLen]) {
		t.Fatal("truncated Mac is not a prefix of the full digest")
	}
}

func TestMacKeySeparation(t *testing.T) {
	msg := []byte("payload")
	k1 := bytes.Repeat([]byte{0x01}, MACKeyLen)
	k2 := bytes.Repeat([]byte{0x02}, MACKeyLen)

	if bytes.Equal(Mac(k1, MACDigestLen, msg), Mac(k2, MACDigestLen, msg)) {
		t.Fatal("different keys produced the same MAC")
	}
}

func TestMacMultiPartEqualsConcat(t *testing.T) {
	key := bytes.Repeat([]byte{0x07}, MACKeyLen)
	a := Mac(key, 32, []byte("foo"), []byte("bar"))
	b := Mac(key, 32, []byte("foobar"))
	if !bytes.Equal(a, b) {
		t.Fatal("multi-part Mac differs from concatenated input")
	}
}

func TestStreamXORRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0xAA}, BulkKeyLen)
	iv := bytes.Repeat([]byte{0x01}, BulkIVLen)
	plaintext := []byte("datagram payload bytes")

	ct := make([]byte, len(plaintext))
	if err := StreamXOR(ct, plaintext, key, iv); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(ct, plaintext) {
		t.Fatal("ciphertext equals plaintext")
	}

	pt := make([]byte, len(ct))
	if err := StreamXOR(pt, ct, key, iv); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatal("round-trip did not preserve bytes")
	}
}

func TestKeypairAgreement(t *testing.T) {
	alice, err := NewKeypair(nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	bob, err := NewKeypair(nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	s1, err := alice.ECDH(bob.Public())
	if err != nil {
		t.Fatalf("alice ECDH: %v", err)
	}
	s2, err := bob.ECDH(alice.Public())
	if err != nil {
		t.Fatalf("bob ECDH: %v", err)
	}
	if s1 != s2 {
		t.Fatal("shared secrets disagree")
	}
}

func TestECDHRejectsLowOrderPoint(t *testing.T) {
	kp, err := NewKeypair(nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	var zero [PublicKeyLen]byte
	if _, err := kp.ECDH(zero); err == nil {
		t.Fatal("ECDH accepted the identity point")
	}
}

func TestValidatePublicKey(t *testing.T) {
	kp, _ := NewKeypair(nil)
	pub := kp.Public()

	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{"valid", pub[:], false},
		{"all zero", make([]byte, PublicKeyLen), true},
		{"short", pub[:16], true},
		{"long", append(pub[:], 0x00), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePublicKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidatePublicKey() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDeriveSessionKeys(t *testing.T) {
	secret := bytes.Repeat([]byte{0x5A}, SharedSecretLen)

	i1, r1 := DeriveSessionKeys(secret)
	i2, r2 := DeriveSessionKeys(secret)
	if i1 != i2 || r1 != r2 {
		t.Fatal("derivation is not deterministic")
	}
	if i1 == r1 {
		t.Fatal("directional keys are identical")
	}
	if i1.MAC == i1.Bulk {
		t.Fatal("MAC and bulk halves are identical")
	}

	other := bytes.Repeat([]byte{0x5B}, SharedSecretLen)
	i3, _ := DeriveSessionKeys(other)
	if i1 == i3 {
		t.Fatal("different secrets derived the same keys")
	}
}

func TestDeriveIntroKeys(t *testing.T) {
	kp, _ := NewKeypair(nil)
	a := DeriveIntroKeys(kp.Public())
	b := DeriveIntroKeys(kp.Public())
	if a != b {
		t.Fatal("intro key derivation is not deterministic")
	}
	if a.MAC == a.Bulk {
		t.Fatal("intro MAC and bulk keys are identical")
	}

	other, _ := NewKeypair(nil)
	c := DeriveIntroKeys(other.Public())
	if a == c {
		t.Fatal("different identities derived the same intro keys")
	}
}

func TestWipe(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Wipe(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroed", i)
		}
	}

	var k SymmetricKey
	k.MAC[0] = 0xFF
	k.Bulk[0] = 0xFF
	k.Wipe()
	if k.MAC[0] != 0 || k.Bulk[0] != 0 {
		t.Fatal("SymmetricKey.Wipe left material behind")
	}
}
