package lodp

import (
	"fmt"

	"github.com/lodpnet/lodp/internal/crypto"
)

// PacketType identifies the LODP packet type.
type PacketType uint8

const (
	PacketData PacketType = iota
	PacketInit
	PacketInitAck
	PacketHandshake
	PacketHandshakeAck
	PacketHeartbeat
	PacketHeartbeatAck
	PacketRekey    // reserved, never emitted or accepted
	PacketRekeyAck // reserved, never emitted or accepted
)

func (t PacketType) String() string {
	switch t {
	case PacketData:
		return "DATA"
	case PacketInit:
		return "INIT"
	case PacketInitAck:
		return "INIT_ACK"
	case PacketHandshake:
		return "HANDSHAKE"
	case PacketHandshakeAck:
		return "HANDSHAKE_ACK"
	case PacketHeartbeat:
		return "HEARTBEAT"
	case PacketHeartbeatAck:
		return "HEARTBEAT_ACK"
	case PacketRekey:
		return "REKEY"
	case PacketRekeyAck:
		return "REKEY_ACK"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// Wire layout. Every packet is:
//
//	┌──────────────┬─────────────┬──────┬───────┬────────┬──────┐
//	│ MAC (16B)    │ IV (12B)    │ type │ flags │ length │ body │
//	└──────────────┴─────────────┴──────┴───────┴────────┴──────┘
//
// The MAC authenticates everything from the IV onward. The 16-bit
// big-endian length counts bytes from the type byte to the end of the
// authenticated plaintext, so trailing padding beyond length is carried
// and authenticated but ignored by the receiver.
const (
	// MaxSegmentSize bounds every produced datagram (LODP_MSS).
	MaxSegmentSize = 1472

	macOffset    = 0
	ivOffset     = crypto.MACDigestLen
	tagLen       = crypto.MACDigestLen + crypto.BulkIVLen
	typeOffset   = tagLen
	flagsOffset  = tagLen + 1
	lengthOffset = tagLen + 2
	bodyOffset   = tagLen + 4

	// tlvHeaderLen covers type, flags and length; the smallest legal
	// value of the length field.
	tlvHeaderLen = 4

	// MaxPayloadSize is the largest DATA/HEARTBEAT payload.
	MaxPayloadSize = MaxSegmentSize - bodyOffset

	// Fixed body lengths.
	initBodyLen         = crypto.MACKeyLen + crypto.BulkKeyLen
	handshakeBodyMinLen = crypto.MACKeyLen + crypto.BulkKeyLen + crypto.PublicKeyLen
	handshakeAckBodyLen = crypto.PublicKeyLen + crypto.MACDigestLen

	// maxCookieLen bounds the responder-defined INIT_ACK cookie blob
	// the initiator will store.
	maxCookieLen = 256
)
