package destination

import (
	"sync"
	"time"
)

// GarlicSessionTagExpiration is the ElGamal/ECIES session-tag lifetime
// i2pd uses for ratcheted forward secrecy (spec.md §4.12, restored from
// original_source/libi2pd/Destination.cpp's session-tag bookkeeping; the
// distilled spec names "session-tag registration" in its summary table
// without giving it a component).
const GarlicSessionTagExpiration = 10 * time.Minute

// sessionTagEntry is one inbound tag this destination can be addressed
// under, and the symmetric key a garlic message tagged with it is
// encrypted under.
type sessionTagEntry struct {
	Key     [32]byte
	Expires time.Time
}

// GarlicSessionTable tracks inbound session tags (spec.md §4.12's garlic
// session state) for one local destination in a single tag-keyed map,
// pruned on use (a tag is single
// -use, per the ElGamal/ECIES session-tag scheme) and on expiration.
// Grounded on the teacher's stream package's per-flow state map shape
// (stream.Stream's flow-id-keyed bookkeeping), generalized from one flow
// ID to many single-use tags.
type GarlicSessionTable struct {
	mu   sync.Mutex
	tags map[[8]byte]*sessionTagEntry
}

// NewGarlicSessionTable returns an empty table.
func NewGarlicSessionTable() *GarlicSessionTable {
	return &GarlicSessionTable{tags: make(map[[8]byte]*sessionTagEntry)}
}

// Register adds a freshly-received session tag and its symmetric key,
// valid until GarlicSessionTagExpiration from now.
func (g *GarlicSessionTable) Register(tag [8]byte, key [32]byte, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tags[tag] = &sessionTagEntry{Key: key, Expires: now.Add(GarlicSessionTagExpiration)}
}

// Consume looks up and removes tag (tags are single-use), returning its
// key and whether it was found and still valid.
func (g *GarlicSessionTable) Consume(tag [8]byte, now time.Time) ([32]byte, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.tags[tag]
	if !ok {
		return [32]byte{}, false
	}
	delete(g.tags, tag)
	if now.After(e.Expires) {
		return [32]byte{}, false
	}
	return e.Key, true
}

// Expire drops every tag past its expiration, called from Destination's
// periodic cleanup.
func (g *GarlicSessionTable) Expire(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	dropped := 0
	for tag, e := range g.tags {
		if now.After(e.Expires) {
			delete(g.tags, tag)
			dropped++
		}
	}
	return dropped
}

// Count reports how many live tags remain, used by tests and diagnostics.
func (g *GarlicSessionTable) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tags)
}
