// Package ssu2 implements the SSU2 UDP transport (spec.md §4.7): packet
// envelope and header protection, the client/server handshake state
// machines over Noise XK, the data-phase block catalog, ack/retransmission
// policy, fragmentation, relay, and peer-test flows. It is grounded on the
// teacher's link package (link/link.go) for the overall
// connect-then-negotiate shape, generalized from Tor's single TLS link to
// SSU2's per-packet AEAD envelope over UDP, and on ntor/ntor.go's
// handshake-step structuring for the multi-message Noise exchange.
package ssu2

import (
	"encoding/binary"
	"fmt"

	"github.com/go-i2p/i2p-router-core/cryptoutil"
)

// HeaderSize is the fixed 16-byte packet header (spec.md §4.7).
const HeaderSize = 16

// PacketType identifies a packet's handshake/data role. The catalog
// mirrors SSU2's wire values; only the ones this package's state machine
// produces or consumes are named.
type PacketType byte

const (
	TypeSessionRequest   PacketType = 0
	TypeTokenRequest     PacketType = 1
	TypeSessionCreated   PacketType = 2
	TypeRetry            PacketType = 3
	TypeSessionConfirmed PacketType = 4
	TypeData             PacketType = 6
	TypePeerTest         PacketType = 7
	TypeRelayRequest     PacketType = 9
	TypeRelayResponse    PacketType = 10
	TypeRelayIntro       PacketType = 11
	TypeHolePunch        PacketType = 12
)

// Header is the 16-byte packet envelope: destination connection ID,
// packet number, type, and three flag bytes (spec.md §4.7).
type Header struct {
	DestConnID uint64
	PacketNum  uint32
	Type       PacketType
	Flags      [3]byte
}

// Encode writes the header in wire order, prior to header protection.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint64(buf[0:8], h.DestConnID)
	binary.BigEndian.PutUint32(buf[8:12], h.PacketNum)
	buf[12] = byte(h.Type)
	copy(buf[13:16], h.Flags[:])
	return buf
}

// DecodeHeader parses a 16-byte unprotected header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("ssu2: short header (%d bytes)", len(buf))
	}
	var h Header
	h.DestConnID = binary.BigEndian.Uint64(buf[0:8])
	h.PacketNum = binary.BigEndian.Uint32(buf[8:12])
	h.Type = PacketType(buf[12])
	copy(h.Flags[:], buf[13:16])
	return h, nil
}

// ProtectHeader XORs each half of the connection ID with a ChaCha20
// keystream keyed on introOrHeaderKey, nonce taken from the last 12 bytes
// of the packet (spec.md §4.7: "XORed with ChaCha20(zero, intro-or-header
// -key, nonce=last-12-bytes-of-packet-tail)"). packetTail must be the
// trailing 12+ bytes of ciphertext already produced for this packet (the
// AEAD tag, for a data packet; the second ephemeral key material, for
// handshake packets — whichever the caller has at the point it protects
// the header).
func ProtectHeader(header []byte, introOrHeaderKey [32]byte, packetTail []byte) error {
	if len(header) < HeaderSize {
		return fmt.Errorf("ssu2: header too short to protect")
	}
	if len(packetTail) < 12 {
		return fmt.Errorf("ssu2: packet tail too short for header protection nonce")
	}
	var nonce [12]byte
	copy(nonce[:], packetTail[len(packetTail)-12:])
	mask, err := cryptoutil.ChaCha20Keystream(introOrHeaderKey[:], nonce[:], 8)
	if err != nil {
		return fmt.Errorf("ssu2: header protection keystream: %w", err)
	}
	for i := 0; i < 8; i++ {
		header[i] ^= mask[i]
	}
	return nil
}

// DataNonce derives the 12-byte AEAD nonce for a data-phase packet from
// its packet number, little-endian at offset 4 (spec.md §4.7).
func DataNonce(packetNum uint32) [12]byte {
	var nonce [12]byte
	binary.LittleEndian.PutUint32(nonce[4:8], packetNum)
	return nonce
}
