package ssu2

import (
	"encoding/binary"
	"fmt"
)

// BlockType enumerates the SSU2 data-phase block catalog (spec.md §4.7).
type BlockType byte

const (
	BlockDateTime          BlockType = 0
	BlockOptions           BlockType = 1
	BlockRouterInfo        BlockType = 2
	BlockI2NPMessage       BlockType = 3
	BlockFirstFragment     BlockType = 4
	BlockFollowOnFragment  BlockType = 5
	BlockTermination       BlockType = 6
	BlockRelayRequest      BlockType = 7
	BlockRelayResponse     BlockType = 8
	BlockRelayIntro        BlockType = 9
	BlockPeerTest          BlockType = 10
	BlockAck               BlockType = 12
	BlockAddress           BlockType = 13
	BlockRelayTagRequest   BlockType = 15
	BlockRelayTag          BlockType = 16
	BlockNewToken          BlockType = 17
	BlockPathChallenge     BlockType = 18
	BlockPathResponse      BlockType = 19
	BlockPadding           BlockType = 254
)

// SSU2_FLAG_IMMEDIATE_ACK_REQUESTED, carried in the packet header's flag
// bytes (spec.md §4.7), forces the peer to ack within its next scheduled
// flush instead of waiting for its normal batching interval.
const FlagImmediateAckRequested = 0x01

// Block is one `{type(u8), len(u16 BE), value}` record.
type Block struct {
	Type  BlockType
	Value []byte
}

// Encode serializes a single block.
func (b Block) Encode() []byte {
	out := make([]byte, 3+len(b.Value))
	out[0] = byte(b.Type)
	binary.BigEndian.PutUint16(out[1:3], uint16(len(b.Value)))
	copy(out[3:], b.Value)
	return out
}

// EncodeBlocks concatenates a sequence of blocks into one payload.
func EncodeBlocks(blocks []Block) []byte {
	var out []byte
	for _, b := range blocks {
		out = append(out, b.Encode()...)
	}
	return out
}

// DecodeBlocks splits a data-phase payload back into its constituent
// blocks, stopping cleanly at the end of the buffer.
func DecodeBlocks(payload []byte) ([]Block, error) {
	var out []Block
	for len(payload) > 0 {
		if len(payload) < 3 {
			return nil, fmt.Errorf("ssu2: truncated block header (%d bytes left)", len(payload))
		}
		typ := BlockType(payload[0])
		length := int(binary.BigEndian.Uint16(payload[1:3]))
		if len(payload) < 3+length {
			return nil, fmt.Errorf("ssu2: block type %d declares length %d beyond buffer", typ, length)
		}
		out = append(out, Block{Type: typ, Value: append([]byte(nil), payload[3:3+length]...)})
		payload = payload[3+length:]
	}
	return out, nil
}

// Find returns the first block of the given type, if any.
func Find(blocks []Block, t BlockType) (Block, bool) {
	for _, b := range blocks {
		if b.Type == t {
			return b, true
		}
	}
	return Block{}, false
}

// DateTimeBlock encodes a 4-byte big-endian Unix-second timestamp, used
// both for clock-skew detection during handshake and for monotone sync in
// the data phase (spec.md §4.7, block type 0).
func DateTimeBlock(unixSeconds uint32) Block {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, unixSeconds)
	return Block{Type: BlockDateTime, Value: v}
}

// TerminationReason maps to RejectReason for the wire (spec.md §4.7's
// Termination block carries a reason code; this repo reuses the same
// small int space the reject conditions already define).
type TerminationReason = RejectReason

// TerminationBlock encodes a session-close reason plus the last valid
// received packet number, matching i2pd's Termination payload shape.
func TerminationBlock(reason TerminationReason, lastReceivedPacketNum uint64) Block {
	v := make([]byte, 9)
	binary.BigEndian.PutUint64(v[0:8], lastReceivedPacketNum)
	v[8] = byte(reason)
	return Block{Type: BlockTermination, Value: v}
}

// AddressBlock encodes an observed remote endpoint as raw IP bytes
// followed by a big-endian port, used both in Retry (client's observed
// address) and SessionCreated.
func AddressBlock(ip []byte, port uint16) Block {
	v := make([]byte, len(ip)+2)
	copy(v, ip)
	binary.BigEndian.PutUint16(v[len(ip):], port)
	return Block{Type: BlockAddress, Value: v}
}

// NewTokenBlock encodes the next-connection token and its expiry, offered
// during SessionCreated (spec.md §4.7).
func NewTokenBlock(token uint64, expiryUnix uint32) Block {
	v := make([]byte, 12)
	binary.BigEndian.PutUint64(v[0:8], token)
	binary.BigEndian.PutUint32(v[8:12], expiryUnix)
	return Block{Type: BlockNewToken, Value: v}
}

// RelayTagBlock encodes the 4-byte introducer tag a server assigns a
// client it agrees to introduce for (spec.md §4.7).
func RelayTagBlock(tag uint32) Block {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, tag)
	return Block{Type: BlockRelayTag, Value: v}
}

// PaddingBlock wraps caller-supplied random filler bytes.
func PaddingBlock(filler []byte) Block {
	return Block{Type: BlockPadding, Value: filler}
}
