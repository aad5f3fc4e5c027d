package lodp

import (
	"github.com/lodpnet/lodp/internal/crypto"
)

// Modified ntor key agreement. One long-term and one ephemeral DH on the
// responder side against the initiator's single ephemeral, with a
// labeled keyed-BLAKE2s extract in place of the HMAC-SHA256 tree of the
// Tor construction.

const (
	protoID       = "lodp-ntor-1"
	ntorResponder = "Responder"
)

var (
	ntorSSKey     = []byte(protoID + ":key_extract")
	ntorVerifyKey = []byte(protoID + ":key_expand")
	ntorAuthKey   = []byte(protoID + ":mac")
	ntorProtoID   = []byte(protoID)
	ntorRespLabel = []byte(ntorResponder)
)

// ntorResult is the transient outcome of either side of the agreement.
// The caller owns wiping it.
type ntorResult struct {
	sharedSecret [crypto.SharedSecretLen]byte
	auth         [crypto.MACDigestLen]byte
}

func (r *ntorResult) wipe() {
	crypto.Wipe(r.sharedSecret[:])
	crypto.Wipe(r.auth[:])
}

// ntorCommon folds the two DH outputs and the three public keys into the
// shared secret and the Auth verifier. The success path is
// data-oblivious; failures abort before any secret-dependent branch.
func ntorCommon(s1, s2 [crypto.SharedSecretLen]byte, b, x, y [crypto.PublicKeyLen]byte) ntorResult {
	secretInput := make([]byte, 0, 2*crypto.SharedSecretLen+3*crypto.PublicKeyLen+len(ntorProtoID))
	secretInput = append(secretInput, s1[:]...)
	secretInput = append(secretInput, s2[:]...)
	secretInput = append(secretInput, b[:]...)
	secretInput = append(secretInput, x[:]...)
	secretInput = append(secretInput, y[:]...)
	secretInput = append(secretInput, ntorProtoID...)

	var r ntorResult
	ss := crypto.Mac(ntorSSKey, crypto.SharedSecretLen, secretInput)
	copy(r.sharedSecret[:], ss)

	verify := crypto.Mac(ntorVerifyKey, crypto.MACKeyLen, secretInput)
	auth := crypto.Mac(ntorAuthKey, crypto.MACDigestLen,
		verify, b[:], y[:], x[:], ntorProtoID, ntorRespLabel)
	copy(r.auth[:], auth)

	crypto.Wipe(ss)
	crypto.Wipe(verify)
	crypto.Wipe(auth)
	crypto.Wipe(secretInput)
	return r
}

// ntorInitiator completes the initiator side: ephemeral x against the
// responder's ephemeral Y and long-term B.
func ntorInitiator(eph *crypto.Keypair, respEphPub, respIdentityPub [crypto.PublicKeyLen]byte) (ntorResult, error) {
	s1, err := eph.ECDH(respEphPub)
	if err != nil {
		return ntorResult{}, ErrBadHandshake
	}
	s2, err := eph.ECDH(respIdentityPub)
	if err != nil {
		crypto.Wipe(s1[:])
		return ntorResult{}, ErrBadHandshake
	}
	r := ntorCommon(s1, s2, respIdentityPub, eph.Public(), respEphPub)
	crypto.Wipe(s1[:])
	crypto.Wipe(s2[:])
	return r, nil
}

// ntorResponderSide completes the responder side: ephemeral y and long-term
// b, both against the initiator's ephemeral X.
func ntorResponderSide(eph, identity *crypto.Keypair, initEphPub [crypto.PublicKeyLen]byte) (ntorResult, error) {
	s1, err := eph.ECDH(initEphPub)
	if err != nil {
		return ntorResult{}, ErrBadHandshake
	}
	s2, err := identity.ECDH(initEphPub)
	if err != nil {
		crypto.Wipe(s1[:])
		return ntorResult{}, ErrBadHandshake
	}
	r := ntorCommon(s1, s2, identity.Public(), initEphPub, eph.Public())
	crypto.Wipe(s1[:])
	crypto.Wipe(s2[:])
	return r, nil
}
