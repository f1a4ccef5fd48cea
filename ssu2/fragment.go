package ssu2

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// FragmentCleanupWindow is how long an incomplete reassembly is kept
// before being dropped (spec.md §4.7).
const FragmentCleanupWindow = 30 * time.Second

// MaxFollowOnFragments bounds a single I2NP message's fragment count
// (spec.md §4.7: "up to 64").
const MaxFollowOnFragments = 64

// Duplicate I2NP messages are suppressed by a per-session (msgID ->
// timestamp) set, bounded at ~5000 entries and decayed after 10s of
// inactivity (spec.md §5).
const (
	msgIDDedupSize  = 5000
	msgIDDedupDecay = 10 * time.Second
)

// reassembly mirrors package tunnel's Reassembler shape (fragments keyed
// by index, a total set once the last fragment arrives, and a last-insert
// time), kept as a separate type here since SSU2's data phase fragments
// independently of tunnel-message fragmentation.
type reassembly struct {
	fragments  map[int][]byte
	total      int
	lastInsert time.Time
}

// Reassembler tracks every in-flight SSU2 message reassembly for one
// session, keyed by message ID, plus the completed-message dedup set that
// suppresses reprocessing a retransmitted duplicate after its reassembly
// entry has already been delivered and removed.
type Reassembler struct {
	mu      sync.Mutex
	byMsgID map[uint32]*reassembly
	seen    *lru.Cache[uint32, time.Time]
}

// NewReassembler returns an empty per-session fragment tracker.
func NewReassembler() *Reassembler {
	seen, err := lru.New[uint32, time.Time](msgIDDedupSize)
	if err != nil {
		// Only fails on a non-positive size, which msgIDDedupSize never is.
		seen, _ = lru.New[uint32, time.Time](1)
	}
	return &Reassembler{byMsgID: make(map[uint32]*reassembly), seen: seen}
}

// Duplicate reports whether msgID was already delivered within the dedup
// decay window; callers check this before admitting fragments for a fresh
// msgID so a retransmitted duplicate of an already-delivered message isn't
// reassembled and handed upstream a second time.
func (r *Reassembler) Duplicate(msgID uint32, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.seen.Get(msgID)
	return ok && now.Sub(ts) < msgIDDedupDecay
}

// MarkDelivered records msgID as delivered at now, arming Duplicate's
// suppression window for it.
func (r *Reassembler) MarkDelivered(msgID uint32, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen.Add(msgID, now)
}

// AddFirstFragment records a FirstFragment block's payload for msgID.
// Layout: {msgID(u32 BE), fragNum/flags(u8), data...}; fragNum is always 0
// for FirstFragment, with the high bit of the flags byte marking "last"
// when the message is exactly one fragment.
func (r *Reassembler) AddFirstFragment(msgID uint32, last bool, data []byte) {
	r.add(msgID, 0, last, data)
}

// AddFollowOnFragment records a FollowOnFragment block's payload.
func (r *Reassembler) AddFollowOnFragment(msgID uint32, fragNum int, last bool, data []byte) error {
	if fragNum <= 0 || fragNum > MaxFollowOnFragments {
		return fmt.Errorf("ssu2: follow-on fragment number %d out of range", fragNum)
	}
	r.add(msgID, fragNum, last, data)
	return nil
}

func (r *Reassembler) add(msgID uint32, index int, last bool, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ts, seen := r.seen.Get(msgID); seen && time.Since(ts) < msgIDDedupDecay {
		return
	}
	re, ok := r.byMsgID[msgID]
	if !ok {
		re = &reassembly{fragments: make(map[int][]byte), total: -1}
		r.byMsgID[msgID] = re
	}
	re.fragments[index] = append([]byte(nil), data...)
	if last {
		re.total = index + 1
	}
	re.lastInsert = time.Now()
}

// TryAssemble returns the assembled message and removes it from tracking
// once every fragment 0..total-1 has arrived; otherwise ok is false. A
// msgID already marked delivered by a prior TryAssemble is reported as not
// ok without re-assembling, suppressing a retransmitted duplicate.
func (r *Reassembler) TryAssemble(msgID uint32) (data []byte, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ts, seen := r.seen.Get(msgID); seen && time.Since(ts) < msgIDDedupDecay {
		return nil, false
	}
	re, exists := r.byMsgID[msgID]
	if !exists || re.total < 0 {
		return nil, false
	}
	for i := 0; i < re.total; i++ {
		if _, have := re.fragments[i]; !have {
			return nil, false
		}
	}
	var out []byte
	for i := 0; i < re.total; i++ {
		out = append(out, re.fragments[i]...)
	}
	delete(r.byMsgID, msgID)
	r.seen.Add(msgID, time.Now())
	return out, true
}

// Cleanup drops any reassembly idle past FragmentCleanupWindow.
func (r *Reassembler) Cleanup(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, re := range r.byMsgID {
		if now.Sub(re.lastInsert) > FragmentCleanupWindow {
			delete(r.byMsgID, id)
		}
	}
}

// FirstFragmentBlock builds a type-4 block.
func FirstFragmentBlock(msgID uint32, last bool, data []byte) Block {
	v := make([]byte, 5+len(data))
	binary.BigEndian.PutUint32(v[0:4], msgID)
	if last {
		v[4] = 0x80
	}
	copy(v[5:], data)
	return Block{Type: BlockFirstFragment, Value: v}
}

// FollowOnFragmentBlock builds a type-5 block; fragNum occupies the low 7
// bits of the flags byte, with bit 7 marking the last fragment.
func FollowOnFragmentBlock(msgID uint32, fragNum int, last bool, data []byte) Block {
	v := make([]byte, 5+len(data))
	binary.BigEndian.PutUint32(v[0:4], msgID)
	v[4] = byte(fragNum & 0x7f)
	if last {
		v[4] |= 0x80
	}
	copy(v[5:], data)
	return Block{Type: BlockFollowOnFragment, Value: v}
}

// ParseFragmentBlock decodes either fragment block type's common header.
func ParseFragmentBlock(b Block) (msgID uint32, fragNum int, last bool, data []byte, err error) {
	if len(b.Value) < 5 {
		return 0, 0, false, nil, fmt.Errorf("ssu2: truncated fragment block")
	}
	msgID = binary.BigEndian.Uint32(b.Value[0:4])
	flags := b.Value[4]
	fragNum = int(flags & 0x7f)
	last = flags&0x80 != 0
	data = b.Value[5:]
	return msgID, fragNum, last, data, nil
}
