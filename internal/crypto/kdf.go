package crypto

import (
	"hash"
	"io"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/hkdf"
)

// kdfInfo labels the session key expansion.
var kdfInfo = []byte("lodp-ntor-1:session_keys")

func newBlake2s() hash.Hash {
	h, err := blake2s.New256(nil)
	if err != nil {
		panic("crypto: blake2s setup: " + err.Error())
	}
	return h
}

// DeriveSessionKeys expands a handshake shared secret into the two
// directional key pairs. The first pair keys initiator→responder
// traffic, the second responder→initiator; the caller assigns tx/rx
// according to its role.
func DeriveSessionKeys(secret []byte) (initToResp, respToInit SymmetricKey) {
	r := hkdf.New(newBlake2s, secret, nil, kdfInfo)

	var raw [2 * (MACKeyLen + BulkKeyLen)]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		panic("crypto: hkdf expand: " + err.Error())
	}

	off := 0
	off += copy(initToResp.MAC[:], raw[off:off+MACKeyLen])
	off += copy(initToResp.Bulk[:], raw[off:off+BulkKeyLen])
	off += copy(respToInit.MAC[:], raw[off:off+MACKeyLen])
	copy(respToInit.Bulk[:], raw[off:off+BulkKeyLen])

	Wipe(raw[:])
	return initToResp, respToInit
}
