package destination

import (
	"testing"
	"time"

	"github.com/go-i2p/i2p-router-core/identity"
	"github.com/go-i2p/i2p-router-core/routerinfo"
	"github.com/go-i2p/i2p-router-core/tunnel"
)

func floodfillRouterInfo(t *testing.T, seed byte, now time.Time) *routerinfo.RouterInfo {
	t.Helper()
	id, _, err := identity.Parse(buildMinimalIdentityBytes(seed))
	if err != nil {
		t.Fatal(err)
	}
	ri := &routerinfo.RouterInfo{Identity: id, Reachable: true, Timestamp: now}
	ri.Capabilities.Floodfill = true
	return ri
}

func TestPublishFailsWithoutTunnels(t *testing.T) {
	d := newTestDestination(t)
	now := time.Now()
	d.SetLeaseSetUpdated() // no inbound tunnels yet, no-op

	d.mu.Lock()
	d.published = []byte("placeholder wire bytes")
	d.mu.Unlock()

	ff := floodfillRouterInfo(t, 9, now)
	d.netdb.StoreRouterInfo(ff, now)

	if err := d.Publish(now); err != ErrNoTunnels {
		t.Fatalf("expected ErrNoTunnels, got %v", err)
	}
}

func TestPublishFailsWithoutKnownFloodfill(t *testing.T) {
	d := newTestDestination(t)
	now := time.Now()
	d.pool.AddEstablished(establishedTunnel(1, tunnel.DirectionInbound, identity.Hash{1}, now))
	d.pool.AddEstablished(establishedTunnel(2, tunnel.DirectionOutbound, identity.Hash{2}, now))

	d.mu.Lock()
	d.published = []byte("placeholder wire bytes")
	d.mu.Unlock()

	if err := d.Publish(now); err != ErrNoFloodfill {
		t.Fatalf("expected ErrNoFloodfill, got %v", err)
	}
}

func TestPublishSendsAndArmsConfirmationTimer(t *testing.T) {
	d := newTestDestination(t)
	now := time.Now()
	d.pool.AddEstablished(establishedTunnel(1, tunnel.DirectionInbound, identity.Hash{1}, now))
	d.pool.AddEstablished(establishedTunnel(2, tunnel.DirectionOutbound, identity.Hash{2}, now))
	d.netdb.StoreRouterInfo(floodfillRouterInfo(t, 9, now), now)

	d.mu.Lock()
	d.published = []byte("placeholder wire bytes")
	d.mu.Unlock()

	var sentFloodfill identity.Hash
	sent := false
	d.SetPublishSender(func(floodfill, storeHash identity.Hash, payload []byte, token uint32, outbound, inbound *tunnel.Tunnel) error {
		sent = true
		sentFloodfill = floodfill
		return nil
	})

	if err := d.Publish(now); err != nil {
		t.Fatal(err)
	}
	if !sent {
		t.Fatal("expected publishSend invoked")
	}
	if sentFloodfill == (identity.Hash{}) {
		t.Fatal("expected a floodfill hash passed to sender")
	}
	if !d.publisher.awaitingReply {
		t.Fatal("expected confirmation timer armed")
	}

	// A second publish within PublishMinInterval should be a silent no-op.
	sent = false
	if err := d.Publish(now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if sent {
		t.Fatal("expected rate limit to suppress the second publish")
	}
}

func TestPublishExcludesFloodfillOnSendFailureUntilConfirmed(t *testing.T) {
	d := newTestDestination(t)
	now := time.Now()
	d.pool.AddEstablished(establishedTunnel(1, tunnel.DirectionInbound, identity.Hash{1}, now))
	d.pool.AddEstablished(establishedTunnel(2, tunnel.DirectionOutbound, identity.Hash{2}, now))
	d.netdb.StoreRouterInfo(floodfillRouterInfo(t, 9, now), now)

	d.mu.Lock()
	d.published = []byte("placeholder wire bytes")
	d.mu.Unlock()

	d.SetPublishSender(func(identity.Hash, identity.Hash, []byte, uint32, *tunnel.Tunnel, *tunnel.Tunnel) error {
		return errNoSuchFloodfill
	})

	if err := d.Publish(now); err == nil {
		t.Fatal("expected send failure to propagate")
	}
	if len(d.publisher.excluded) != 1 {
		t.Fatalf("expected 1 excluded floodfill, got %d", len(d.publisher.excluded))
	}

	// Next publish attempt (past the min interval) has no other floodfill
	// to pick, so it should report ErrNoFloodfill.
	if err := d.Publish(now.Add(PublishMinInterval + time.Second)); err != ErrNoFloodfill {
		t.Fatalf("expected ErrNoFloodfill with the only floodfill excluded, got %v", err)
	}

	// Confirming a publish clears the exclusion set.
	d.OnPublishConfirmed(now)
	if len(d.publisher.excluded) != 0 {
		t.Fatal("expected exclusions cleared on confirmation")
	}
}

func TestCheckPublishTimeoutRetriesAfterDeadline(t *testing.T) {
	d := newTestDestination(t)
	now := time.Now()
	d.publisher.awaitingReply = true
	d.publisher.replyDeadline = now.Add(-time.Second)

	retried := false
	d.SetPublishSender(func(identity.Hash, identity.Hash, []byte, uint32, *tunnel.Tunnel, *tunnel.Tunnel) error {
		retried = true
		return nil
	})
	d.mu.Lock()
	d.published = []byte("wire bytes")
	d.mu.Unlock()
	d.pool.AddEstablished(establishedTunnel(1, tunnel.DirectionInbound, identity.Hash{1}, now))
	d.pool.AddEstablished(establishedTunnel(2, tunnel.DirectionOutbound, identity.Hash{2}, now))
	d.netdb.StoreRouterInfo(floodfillRouterInfo(t, 9, now), now)

	if err := d.CheckPublishTimeout(now); err != nil {
		t.Fatal(err)
	}
	if !retried {
		t.Fatal("expected a retry publish after the confirmation deadline")
	}
}

func TestVerificationDueBeforeAnyConfirmedPublish(t *testing.T) {
	d := newTestDestination(t)
	if !d.VerificationDue(time.Now()) {
		t.Fatal("expected verification due before any confirmed publish")
	}
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errNoSuchFloodfill = fakeErr("no such floodfill")
