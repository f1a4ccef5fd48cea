// Package netdb implements the network database (spec.md §4.10): the
// Kademlia-indexed store of RouterInfo and LeaseSet records, floodfill
// membership, daily routing-key rotation, and the periodic maintenance
// tasks that keep the store fresh. It is grounded on the teacher's
// directory package (directory/cache.go, directory/consensus.go) for the
// load/store/refresh shape, generalized from Tor's single consensus
// document to I2P's per-record Kademlia store, and on kademlia.DHTNode for
// floodfill membership and closest-node queries.
package netdb

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/go-i2p/i2p-router-core/identity"
	"github.com/go-i2p/i2p-router-core/internal/rlog"
	"github.com/go-i2p/i2p-router-core/kademlia"
	"github.com/go-i2p/i2p-router-core/routerinfo"
)

var log = rlog.For("netdb")

// Constants from spec.md §4.10.
const (
	MinKnownRouters          = 90
	MinFloodfillsBeforeSlow  = 5
	RouterExpirationMin      = 90 * time.Minute
	RouterExpirationMax      = 27 * time.Hour
	FloodfillExpiration      = time.Hour
	AggressiveExploreRateLow = 0.10 // tunnel-creation success rate below this triggers aggressive exploration

	ExploratoryVectorRefresh = 82 * time.Second
	MaxExploratoryVector     = 500

	FloodTargets = 3 // number of closest floodfills a stored record is forwarded to

	floodSuppressCacheSize = 4096
	floodSuppressWindow    = 10 * time.Minute
)

// RouterInfoEntry is a stored router descriptor plus the bookkeeping the
// maintenance tasks need: when it was last refreshed, independent of the
// descriptor's own self-reported Timestamp.
type RouterInfoEntry struct {
	RI       *routerinfo.RouterInfo
	LastSeen time.Time
}

// LeaseSetEntry is a stored destination descriptor. Record holds either a
// *leaseset.LeaseSet or a *leaseset.LeaseSet2; netdb treats both opaquely,
// relying only on Published/Expires for the monotonicity and expiration
// rules (spec.md §4.10's "NetDb cache replaces L1 with L2, never the
// reverse" invariant).
type LeaseSetEntry struct {
	Hash      identity.Hash
	Published time.Time
	Expires   time.Time
	Record    any
}

// Empty reports whether this leaseset carries zero leases, checked via a
// duck-typed interface so netdb need not import leaseset's concrete types.
func (e *LeaseSetEntry) Empty() bool {
	type leaseCounter interface{ LeaseCount() int }
	if lc, ok := e.Record.(leaseCounter); ok {
		return lc.LeaseCount() == 0
	}
	return false
}

// Store is the netdb: the authoritative RouterInfo/LeaseSet maps, the
// floodfill DHT, family membership, and outstanding requests (spec.md
// §4.10). One Store per router process.
type Store struct {
	mu        sync.RWMutex
	routers   map[identity.Hash]*RouterInfoEntry
	leasesets map[identity.Hash]*LeaseSetEntry
	floodfill *kademlia.DHTNode
	families  map[string][]identity.Hash // family name -> member hashes

	exploratoryVector   []identity.Hash
	exploratoryRefresh  time.Time
	selfHash            identity.Hash
	selfFamily          string

	floodSuppress *lru.Cache[identity.Hash, time.Time]

	Requests *RequestTracker
}

// New returns an empty Store for a router identifying as selfHash, in
// family selfFamily (empty if none).
func New(selfHash identity.Hash, selfFamily string) *Store {
	suppress, err := lru.New[identity.Hash, time.Time](floodSuppressCacheSize)
	if err != nil {
		// Only fails on a non-positive size, which floodSuppressCacheSize
		// never is; fall back to a single-entry cache.
		suppress, _ = lru.New[identity.Hash, time.Time](1)
	}
	return &Store{
		routers:       make(map[identity.Hash]*RouterInfoEntry),
		leasesets:     make(map[identity.Hash]*LeaseSetEntry),
		floodfill:     kademlia.NewDHTNode(),
		families:      make(map[string][]identity.Hash),
		selfHash:      selfHash,
		selfFamily:    selfFamily,
		floodSuppress: suppress,
		Requests:      NewRequestTracker(),
	}
}

// RoutingKey computes the daily-rotating routing key for hash (spec.md
// §4.10): SHA-256(identity-hash ‖ YYYYMMDD), optionally for the following
// UTC day when nextDay is set (used for publishes near the midnight
// boundary so both today's and tomorrow's closest floodfill can be
// targeted).
func RoutingKey(hash identity.Hash, now time.Time, nextDay bool) identity.Hash {
	day := now.UTC()
	if nextDay {
		day = day.Add(24 * time.Hour)
	}
	dateStr := day.Format("20060102")
	h := sha256.New()
	h.Write(hash[:])
	h.Write([]byte(dateStr))
	var out identity.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// StoreRouterInfo validates and inserts/updates ri, maintaining floodfill
// DHT membership and family tracking. Returns false if ri fails
// invariants and was rejected outright (as opposed to merely marked
// Reachable=false, which routerinfo.Parse already does internally).
func (s *Store) StoreRouterInfo(ri *routerinfo.RouterInfo, now time.Time) bool {
	if !ri.WithinTimestampWindow(now) {
		log.WithField("router", ri.Hash().String()).Debug("rejecting router info outside timestamp window")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hash := ri.Hash()
	s.routers[hash] = &RouterInfoEntry{RI: ri, LastSeen: now}

	if ri.Capabilities.Floodfill && ri.Reachable {
		s.floodfill.Insert(hash, ri)
	} else {
		s.floodfill.Remove(hash)
	}

	if ri.FamilyName != "" {
		members := s.families[ri.FamilyName]
		if !containsHash(members, hash) {
			s.families[ri.FamilyName] = append(members, hash)
		}
	}
	return true
}

// RouterInfo returns the stored descriptor for hash, if any.
func (s *Store) RouterInfo(hash identity.Hash) (*routerinfo.RouterInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.routers[hash]
	if !ok {
		return nil, false
	}
	return e.RI, true
}

// AllReachableRouters returns every stored, reachable RouterInfo, the
// candidate pool tunnel.Pool draws hop selections from (spec.md §4.12).
func (s *Store) AllReachableRouters() []*routerinfo.RouterInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*routerinfo.RouterInfo, 0, len(s.routers))
	for _, e := range s.routers {
		if e.RI.Reachable {
			out = append(out, e.RI)
		}
	}
	return out
}

// KnownRouterCount reports how many RouterInfos are currently stored, used
// to decide whether reseed is necessary (spec.md §4.10).
func (s *Store) KnownRouterCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.routers)
}

// FloodfillCount reports how many floodfill-capable routers are known.
func (s *Store) FloodfillCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countTrieEntries(s.floodfill)
}

func countTrieEntries(d *kademlia.DHTNode) int {
	var zero identity.Hash
	entries := d.FindClosestN(zero, 1<<20, nil)
	return len(entries)
}

// ClosestFloodfills returns up to n floodfills closest to target by XOR
// distance, excluding any hash in exclude.
func (s *Store) ClosestFloodfills(target identity.Hash, n int, exclude map[identity.Hash]bool) []kademlia.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filter := func(hash identity.Hash, value any) bool {
		return !exclude[hash]
	}
	return s.floodfill.FindClosestN(target, n, filter)
}

// StoreLeaseSet inserts entry if it is newer than any existing record for
// the same hash (spec.md §4.10's monotonicity invariant: "never the
// reverse"). Returns true if the store was updated.
func (s *Store) StoreLeaseSet(entry *LeaseSetEntry, now time.Time) bool {
	if now.After(entry.Expires) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.leasesets[entry.Hash]
	if ok && !entry.Published.After(existing.Published) {
		return false
	}
	s.leasesets[entry.Hash] = entry
	return true
}

// LeaseSet returns the stored leaseset for hash, if any and unexpired.
func (s *Store) LeaseSet(hash identity.Hash, now time.Time) (*LeaseSetEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.leasesets[hash]
	if !ok || now.After(e.Expires) {
		return nil, false
	}
	return e, true
}

// ShouldFlood reports whether a just-stored record for hash should be
// forwarded to other floodfills, suppressing re-floods of the same hash
// within floodSuppressWindow to avoid storms when multiple peers relay the
// same store in quick succession.
func (s *Store) ShouldFlood(hash identity.Hash, now time.Time) bool {
	if last, ok := s.floodSuppress.Get(hash); ok && now.Sub(last) < floodSuppressWindow {
		return false
	}
	s.floodSuppress.Add(hash, now)
	return true
}

// FloodTargetsFor returns the FloodTargets floodfills closest to target's
// routing key (today's, and tomorrow's as well if nearMidnight), excluding
// excludeSource, per spec.md §4.10's flooding rule.
func (s *Store) FloodTargetsFor(target identity.Hash, excludeSource identity.Hash, now time.Time, nearMidnight bool) []kademlia.Entry {
	exclude := map[identity.Hash]bool{excludeSource: true}
	today := s.ClosestFloodfills(RoutingKey(target, now, false), FloodTargets, exclude)
	if !nearMidnight {
		return today
	}
	tomorrow := s.ClosestFloodfills(RoutingKey(target, now, true), FloodTargets, exclude)
	return mergeEntries(today, tomorrow)
}

// ManageRouterInfos drops routers that have exceeded RouterExpirationMax
// since last seen and removes any floodfill DHT entry whose router is no
// longer stored (capability changes are applied by StoreRouterInfo). It is
// the periodic task spec.md §4.10 names
// "ManageRouterInfos"; persistence to an external store is a caller
// responsibility (this method only governs the in-memory index).
func (s *Store) ManageRouterInfos(now time.Time) (dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, e := range s.routers {
		if now.Sub(e.LastSeen) > RouterExpirationMax {
			delete(s.routers, hash)
			s.floodfill.Remove(hash)
			dropped++
		}
	}
	s.floodfill.Cleanup(func(hash identity.Hash, value any) bool {
		_, ok := s.routers[hash]
		return ok
	})
	return dropped
}

// ManageLeaseSets drops expired or empty leasesets (spec.md §4.10).
func (s *Store) ManageLeaseSets(now time.Time) (dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, e := range s.leasesets {
		if now.After(e.Expires) || e.Empty() {
			delete(s.leasesets, hash)
			dropped++
		}
	}
	return dropped
}

// RefreshExploratoryVector recomputes the up-to-500-floodfill exploration
// vector (spec.md §4.10), excluding routers in s.selfFamily. No-ops if
// called before ExploratoryVectorRefresh has elapsed since the last
// refresh, unless force is set.
func (s *Store) RefreshExploratoryVector(now time.Time, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !force && now.Sub(s.exploratoryRefresh) < ExploratoryVectorRefresh {
		return
	}
	filter := func(hash identity.Hash, value any) bool {
		if hash == s.selfHash {
			return false
		}
		if s.selfFamily == "" {
			return true
		}
		ri, _ := value.(*routerinfo.RouterInfo)
		return ri == nil || ri.FamilyName != s.selfFamily
	}
	entries := s.floodfill.FindClosestN(s.selfHash, MaxExploratoryVector, filter)
	vector := make([]identity.Hash, len(entries))
	for i, e := range entries {
		vector[i] = e.Hash
	}
	s.exploratoryVector = vector
	s.exploratoryRefresh = now
}

// ExploratoryVector returns the current exploration target set.
func (s *Store) ExploratoryVector() []identity.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.Hash, len(s.exploratoryVector))
	copy(out, s.exploratoryVector)
	return out
}

// NeedsReseed reports whether known routers have fallen below
// MinKnownRouters, per spec.md §4.10's reseed trigger.
func (s *Store) NeedsReseed() bool {
	return s.KnownRouterCount() < MinKnownRouters
}

// Reseed runs fetch (the external reseed collaborator, typically
// reseed.Fetch) and stores every RouterInfo it returns, reporting how many
// were newly accepted. Callers should chain an exploratory lookup through
// one of the newly added floodfills afterward, per spec.md §4.10.
func (s *Store) Reseed(fetch func() ([]*routerinfo.RouterInfo, error), now time.Time) (int, error) {
	bundle, err := fetch()
	if err != nil {
		return 0, fmt.Errorf("netdb: reseed: %w", err)
	}
	added := 0
	for _, ri := range bundle {
		if s.StoreRouterInfo(ri, now) {
			added++
		}
	}
	log.WithField("added", added).WithField("total", len(bundle)).Info("reseed complete")
	return added, nil
}

func containsHash(hashes []identity.Hash, h identity.Hash) bool {
	for _, x := range hashes {
		if x == h {
			return true
		}
	}
	return false
}

func mergeEntries(a, b []kademlia.Entry) []kademlia.Entry {
	seen := make(map[identity.Hash]bool, len(a))
	out := make([]kademlia.Entry, 0, len(a)+len(b))
	for _, e := range a {
		seen[e.Hash] = true
		out = append(out, e)
	}
	for _, e := range b {
		if !seen[e.Hash] {
			out = append(out, e)
		}
	}
	return out
}
