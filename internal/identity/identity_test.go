package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateAndRoundTrip(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if id.Fingerprint.IsZero() {
		t.Fatal("zero fingerprint")
	}

	priv := id.Keypair.PrivateBytes()
	restored, err := FromPrivateKey(priv)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.PublicKeyHex() != id.PublicKeyHex() {
		t.Fatal("restored identity has a different public key")
	}
	if restored.Fingerprint != id.Fingerprint {
		t.Fatal("restored identity has a different fingerprint")
	}
}

func TestLoadOrGenerate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys", "responder.key")

	first, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat key file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("key file mode = %o, want 0600", info.Mode().Perm())
	}

	second, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if first.PublicKeyHex() != second.PublicKeyHex() {
		t.Fatal("reload produced a different identity")
	}
}

func TestPublicKeyFromHex(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatal(err)
	}

	pub, err := PublicKeyFromHex(id.PublicKeyHex())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pub != id.Keypair.Public() {
		t.Fatal("parsed key differs")
	}

	tests := []struct {
		name string
		in   string
	}{
		{"not hex", "zz"},
		{"short", "abcd"},
		{"all zero", "0000000000000000000000000000000000000000000000000000000000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := PublicKeyFromHex(tt.in); err == nil {
				t.Fatal("accepted invalid key")
			}
		})
	}
}

func TestFingerprintHexRoundTrip(t *testing.T) {
	fp := FingerprintOf([]byte("some public key bytes"))
	parsed, err := FingerprintFromHex(fp.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != fp {
		t.Fatal("fingerprint hex round-trip failed")
	}

	if _, err := FingerprintFromHex("abcd"); err == nil {
		t.Fatal("accepted short fingerprint")
	}
}
