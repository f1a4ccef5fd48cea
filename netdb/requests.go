package netdb

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/go-i2p/i2p-router-core/identity"
)

// Constants from spec.md §4.11.
const (
	MaxLookupAttempts            = 5
	MaxLeaseSetRequestTimeout     = 40 * time.Second
	ExploratoryRequestInterval    = 55 * time.Second
	ExploratoryRequestJitterMax   = 170 * time.Second
	ExploratoryRequestBudget      = 30 * time.Second
)

// ReplyKey is the session key (and ECIES/ElGamal tag) a lookup's reply is
// encrypted under, pre-registered with the requester's session store
// before the DatabaseLookup is sent (spec.md §4.11).
type ReplyKey struct {
	SessionKey [32]byte
	Tag        []byte // 8 bytes for ECIES-X25519, 32 bytes for legacy ElGamal
}

// newECIESReplyKey generates a fresh session key and 8-byte ECIES tag.
func newECIESReplyKey() (*ReplyKey, error) {
	rk := &ReplyKey{Tag: make([]byte, 8)}
	if _, err := rand.Read(rk.SessionKey[:]); err != nil {
		return nil, err
	}
	if _, err := rand.Read(rk.Tag); err != nil {
		return nil, err
	}
	return rk, nil
}

// RequestState tracks one outstanding netdb lookup (spec.md §4.11).
type RequestState struct {
	Target    identity.Hash
	Excluded  map[identity.Hash]bool
	Attempts  int
	Started   time.Time
	ReplyKey  *ReplyKey
	callbacks []func(found any)
}

// RequestTracker holds every outstanding lookup a destination or the
// router itself has issued (spec.md §4.11). Grounded on the teacher's
// directory.Cache for the "pending work keyed by identifier" shape,
// generalized from a single consensus fetch to many concurrent per-hash
// lookups.
type RequestTracker struct {
	mu                sync.Mutex
	pending           map[identity.Hash]*RequestState
	lastExploratory   time.Time
	nextExploratoryAt time.Time
}

// NewRequestTracker returns an empty tracker.
func NewRequestTracker() *RequestTracker {
	return &RequestTracker{pending: make(map[identity.Hash]*RequestState)}
}

// Start begins (or rejoins, if already outstanding) a lookup for target,
// registering cb to be called with the found record (RouterInfo or
// LeaseSet) or nil on failure/timeout.
func (t *RequestTracker) Start(target identity.Hash, now time.Time, cb func(found any)) (*RequestState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rs, ok := t.pending[target]; ok {
		if cb != nil {
			rs.callbacks = append(rs.callbacks, cb)
		}
		return rs, nil
	}
	rk, err := newECIESReplyKey()
	if err != nil {
		return nil, err
	}
	rs := &RequestState{
		Target:   target,
		Excluded: make(map[identity.Hash]bool),
		Started:  now,
		ReplyKey: rk,
	}
	if cb != nil {
		rs.callbacks = append(rs.callbacks, cb)
	}
	t.pending[target] = rs
	return rs, nil
}

// OnSearchReply records a DatabaseSearchReply's closer-floodfill list
// against the lookup for target: every hash not already known is handed
// to onNewRouter (the caller's exploration-queue hook), and the replying
// floodfill is added to Excluded so the next attempt picks a different
// one. Returns the updated attempt count, with exhausted set once it
// reaches MaxLookupAttempts or when no lookup for target is pending (the
// caller then Abandons the request).
func (t *RequestTracker) OnSearchReply(target identity.Hash, repliedBy identity.Hash, closer []identity.Hash, isKnown func(identity.Hash) bool, onNewRouter func(identity.Hash)) (attempts int, exhausted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rs, ok := t.pending[target]
	if !ok {
		return 0, true
	}
	rs.Excluded[repliedBy] = true
	rs.Attempts++
	for _, h := range closer {
		if isKnown == nil || !isKnown(h) {
			if onNewRouter != nil {
				onNewRouter(h)
			}
		}
	}
	return rs.Attempts, rs.Attempts >= MaxLookupAttempts
}

// Abandon removes the lookup for target and invokes every registered
// callback with nil, per spec.md §4.11: "all registered completion
// callbacks receive None."
func (t *RequestTracker) Abandon(target identity.Hash) {
	t.mu.Lock()
	rs, ok := t.pending[target]
	if ok {
		delete(t.pending, target)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	for _, cb := range rs.callbacks {
		cb(nil)
	}
}

// Complete removes the lookup for target and invokes every registered
// callback with the found record.
func (t *RequestTracker) Complete(target identity.Hash, found any) {
	t.mu.Lock()
	rs, ok := t.pending[target]
	if ok {
		delete(t.pending, target)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	for _, cb := range rs.callbacks {
		cb(found)
	}
}

// ManageRequests expires any lookup that has exceeded MaxLookupAttempts or
// MaxLeaseSetRequestTimeout, abandoning each (spec.md §4.11). Returns how
// many were expired.
func (t *RequestTracker) ManageRequests(now time.Time) int {
	t.mu.Lock()
	var expired []identity.Hash
	for target, rs := range t.pending {
		if rs.Attempts >= MaxLookupAttempts || now.Sub(rs.Started) > MaxLeaseSetRequestTimeout {
			expired = append(expired, target)
		}
	}
	t.mu.Unlock()
	for _, target := range expired {
		t.Abandon(target)
	}
	return len(expired)
}

// Pending reports whether a lookup for target is outstanding.
func (t *RequestTracker) Pending(target identity.Hash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[target]
	return ok
}

// ExploratoryDue reports whether it is time to issue another exploratory
// lookup, per spec.md §4.11's "55s ± random up to 170s" schedule, and
// advances the internal schedule if so.
func (t *RequestTracker) ExploratoryDue(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Before(t.nextExploratoryAt) {
		return false
	}
	jitter, err := rand.Int(rand.Reader, big.NewInt(int64(ExploratoryRequestJitterMax)))
	var jd time.Duration
	if err == nil {
		jd = time.Duration(jitter.Int64())
	}
	t.lastExploratory = now
	t.nextExploratoryAt = now.Add(ExploratoryRequestInterval + jd)
	return true
}
