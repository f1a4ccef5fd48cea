package ssu2

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// MaxAckRanges bounds the compact run-length encoding's nack-run/ack-run
// pairs (spec.md §4.7: "up to 32 ... pairs covering up to 511 packets").
const MaxAckRanges = 32

// MaxAckSpan is not used in this package: BuildAckBlock caps only the
// number of ranges (MaxAckRanges) and each run's length (255), so the
// ranges it emits can span more than MaxAckSpan packets.
const MaxAckSpan = 511

// AckState tracks a receiver's view of delivered packet numbers for one
// session: the highest in-order packet number seen, plus any
// out-of-sequence numbers received ahead of it (spec.md §4.7).
type AckState struct {
	mu sync.Mutex

	ackThrough   uint32
	hasAckThrough bool
	outOfOrder   map[uint32]bool
}

// NewAckState returns an empty ack tracker.
func NewAckState() *AckState {
	return &AckState{outOfOrder: make(map[uint32]bool)}
}

// Receive records packetNum as delivered, advancing ackThrough through any
// now-contiguous run of previously out-of-order packets.
func (a *AckState) Receive(packetNum uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasAckThrough {
		a.ackThrough = packetNum
		a.hasAckThrough = true
		return
	}
	switch {
	case packetNum == a.ackThrough+1:
		a.ackThrough = packetNum
		for a.outOfOrder[a.ackThrough+1] {
			a.ackThrough++
			delete(a.outOfOrder, a.ackThrough)
		}
	case packetNum > a.ackThrough+1:
		a.outOfOrder[packetNum] = true
	default:
		// at or below ackThrough: duplicate, ignore.
	}
}

// AckRange is one {nackRun, ackRun} pair following the cumulative
// ack-through value in an Ack block.
type AckRange struct {
	NackRun byte // count of consecutive missing packets
	AckRun  byte // count of consecutive received packets that follow
}

// BuildAckBlock produces an Ack block: 4-byte ackThrough, 1-byte acnt
// (number of ranges), then up to MaxAckRanges {nack-run, ack-run} byte
// pairs walking forward from ackThrough+1 through the highest known
// out-of-order packet number (spec.md §4.7).
func (a *AckState) BuildAckBlock() Block {
	a.mu.Lock()
	defer a.mu.Unlock()

	v := make([]byte, 4, 5+2*MaxAckRanges)
	binary.BigEndian.PutUint32(v[0:4], a.ackThrough)

	ranges := a.computeRangesLocked()
	if len(ranges) > MaxAckRanges {
		ranges = ranges[:MaxAckRanges]
	}
	v = append(v, byte(len(ranges)))
	for _, r := range ranges {
		v = append(v, r.NackRun, r.AckRun)
	}
	return Block{Type: BlockAck, Value: v}
}

func (a *AckState) computeRangesLocked() []AckRange {
	if len(a.outOfOrder) == 0 {
		return nil
	}
	highest := a.ackThrough
	for n := range a.outOfOrder {
		if n > highest {
			highest = n
		}
	}
	var ranges []AckRange
	cursor := a.ackThrough + 1
	for cursor <= highest {
		var nackRun byte
		for cursor <= highest && !a.outOfOrder[cursor] && nackRun < 255 {
			nackRun++
			cursor++
		}
		var ackRun byte
		for cursor <= highest && a.outOfOrder[cursor] && ackRun < 255 {
			ackRun++
			cursor++
		}
		if nackRun == 0 && ackRun == 0 {
			break
		}
		ranges = append(ranges, AckRange{NackRun: nackRun, AckRun: ackRun})
	}
	return ranges
}

// ParseAckBlock decodes an Ack block's value back into ackThrough and its
// run-length ranges, for the peer consuming an incoming Ack.
func ParseAckBlock(value []byte) (ackThrough uint32, ranges []AckRange, err error) {
	if len(value) < 5 {
		return 0, nil, errShortAck
	}
	ackThrough = binary.BigEndian.Uint32(value[0:4])
	acnt := int(value[4])
	value = value[5:]
	for i := 0; i < acnt; i++ {
		if len(value) < 2 {
			return 0, nil, errShortAck
		}
		ranges = append(ranges, AckRange{NackRun: value[0], AckRun: value[1]})
		value = value[2:]
	}
	return ackThrough, ranges, nil
}

var errShortAck = fmt.Errorf("ssu2: truncated Ack block")
