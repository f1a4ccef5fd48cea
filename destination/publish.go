package destination

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/go-i2p/i2p-router-core/identity"
	"github.com/go-i2p/i2p-router-core/netdb"
	"github.com/go-i2p/i2p-router-core/tunnel"
)

// Timing constants from spec.md §4.12.
const (
	PublishMinInterval                 = 3 * time.Minute
	PublishConfirmationTimeout         = 10 * time.Second
	PublishRegularVerificationInterval = 30 * time.Minute
)

// publishState tracks one destination's in-flight publish/verify cycle,
// including the Open Question #1 floodfill-exclusion set (see DESIGN.md):
// exclusions are cleared only on a successful publish confirmation, never
// on the first failure, so a single bad floodfill cannot be retried
// indefinitely on every verification pass.
type publishState struct {
	mu sync.Mutex

	lastPublish    time.Time
	excluded       map[identity.Hash]bool
	awaitingReply  bool
	replyDeadline  time.Time
	replyToken     uint32
	lastVerifiedAt time.Time
}

func newPublishState() *publishState {
	return &publishState{excluded: make(map[identity.Hash]bool)}
}

// PublishSender is the external collaborator that actually sends a
// garlic-wrapped DatabaseStore through an outbound tunnel with an inbound
// reply tunnel attached (spec.md §4.12 step 3). Publish only selects the
// floodfill and tunnels and manages the rate limit/confirmation timer.
type PublishSender func(floodfill identity.Hash, storeHash identity.Hash, payload []byte, replyToken uint32, outbound, inbound *tunnel.Tunnel) error

// Publish chooses the floodfill closest to this destination's store hash
// (see storeHashFor), asks send to deliver a DatabaseStore, and arms the
// confirmation timer. Returns ErrNoTunnels/ErrNoFloodfill on the documented
// failure modes (spec.md §4.12).
func (d *Destination) Publish(now time.Time) error {
	d.mu.Lock()
	wire := d.published
	hash := identity.Hash{}
	if d.Keys != nil && d.Keys.Identity != nil {
		hash = d.Keys.Identity.Hash()
	}
	d.mu.Unlock()
	if wire == nil {
		return fmt.Errorf("destination: no signed leaseset to publish")
	}

	ps := d.publisher
	ps.mu.Lock()
	if !ps.lastPublish.IsZero() && now.Sub(ps.lastPublish) < PublishMinInterval {
		ps.mu.Unlock()
		return nil
	}
	ps.mu.Unlock()

	storeHash := storeHashFor(hash, now)
	excl := ps.excludedSnapshot()
	entries := d.netdb.ClosestFloodfills(storeHash, 1, excl)
	if len(entries) == 0 {
		return ErrNoFloodfill
	}
	floodfill := entries[0].Hash

	inbound := d.pool.Inbound()
	outbound := d.pool.Outbound()
	if len(inbound) == 0 || len(outbound) == 0 {
		return ErrNoTunnels
	}

	token, err := randomToken()
	if err != nil {
		return fmt.Errorf("destination: generate reply token: %w", err)
	}

	ps.mu.Lock()
	ps.lastPublish = now
	ps.awaitingReply = true
	ps.replyDeadline = now.Add(PublishConfirmationTimeout)
	ps.replyToken = token
	ps.mu.Unlock()

	if d.publishSend != nil {
		if err := d.publishSend(floodfill, storeHash, wire, token, outbound[0], inbound[0]); err != nil {
			ps.mu.Lock()
			ps.excluded[floodfill] = true
			ps.awaitingReply = false
			ps.mu.Unlock()
			return fmt.Errorf("destination: send publish: %w", err)
		}
	}
	return nil
}

// OnPublishConfirmed clears the exclusion set on success (Open Question
// #1's decided precedence) and records the verification baseline.
func (d *Destination) OnPublishConfirmed(now time.Time) {
	ps := d.publisher
	ps.mu.Lock()
	ps.awaitingReply = false
	ps.excluded = make(map[identity.Hash]bool)
	ps.lastVerifiedAt = now
	ps.mu.Unlock()
}

// CheckPublishTimeout retries the publish (without clearing exclusions, so
// a repeatedly-failing floodfill is skipped next time) if the confirmation
// deadline has passed with no reply, per spec.md §4.12's "on failure ...
// retry after PUBLISH_CONFIRMATION_TIMEOUT."
func (d *Destination) CheckPublishTimeout(now time.Time) error {
	ps := d.publisher
	ps.mu.Lock()
	due := ps.awaitingReply && now.After(ps.replyDeadline)
	ps.mu.Unlock()
	if !due {
		return nil
	}
	ps.mu.Lock()
	ps.awaitingReply = false
	// The retry must not be swallowed by PublishMinInterval, which is
	// longer than PublishConfirmationTimeout.
	ps.lastPublish = time.Time{}
	ps.mu.Unlock()
	return d.Publish(now)
}

// VerificationDue reports whether PublishRegularVerificationInterval has
// elapsed since the last confirmed publish.
func (d *Destination) VerificationDue(now time.Time) bool {
	ps := d.publisher
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.lastVerifiedAt.IsZero() || now.Sub(ps.lastVerifiedAt) >= PublishRegularVerificationInterval
}

// VerifyPublished re-fetches the stored bytes from a floodfill different
// from the one last published to and compares them byte-wise, republishing
// on mismatch (spec.md §4.12's "LeaseSet verification after publish
// confirmation"). fetch is the external collaborator that performs the
// actual DatabaseLookup-by-hash and returns the raw stored bytes.
func (d *Destination) VerifyPublished(now time.Time, fetch func(floodfill identity.Hash) ([]byte, error)) error {
	d.mu.Lock()
	wire := d.published
	hash := identity.Hash{}
	if d.Keys != nil && d.Keys.Identity != nil {
		hash = d.Keys.Identity.Hash()
	}
	d.mu.Unlock()
	if wire == nil {
		return nil
	}

	storeHash := storeHashFor(hash, now)
	excl := d.publisher.excludedSnapshot()
	entries := d.netdb.ClosestFloodfills(storeHash, 2, excl)
	if len(entries) < 2 {
		return ErrNoFloodfill
	}
	verifyTarget := entries[1].Hash

	got, err := fetch(verifyTarget)
	if err != nil || !bytesEqual(got, wire) {
		return d.Publish(now)
	}
	d.publisher.mu.Lock()
	d.publisher.lastVerifiedAt = now
	d.publisher.mu.Unlock()
	return nil
}

func (ps *publishState) excludedSnapshot() map[identity.Hash]bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	out := make(map[identity.Hash]bool, len(ps.excluded))
	for k := range ps.excluded {
		out[k] = true
	}
	return out
}

// storeHashFor computes the hash a destination's LeaseSet is published
// under: the daily routing key of the destination's own hash (spec.md
// §4.10). It does not compute a blinded store hash for EncryptedLeaseSet2.
func storeHashFor(destHash identity.Hash, now time.Time) identity.Hash {
	return netdb.RoutingKey(destHash, now, false)
}

func randomToken() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
