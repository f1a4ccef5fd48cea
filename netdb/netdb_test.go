package netdb

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/go-i2p/i2p-router-core/cryptoutil"
	"github.com/go-i2p/i2p-router-core/identity"
	"github.com/go-i2p/i2p-router-core/routerinfo"
)

// buildTestRouterInfo returns a RouterInfo with a real, hashable identity
// (so Store.StoreRouterInfo's floodfill/family bookkeeping exercises real
// hashes) but without running it through routerinfo.Parse, since these
// tests only need the post-parse struct shape.
func buildTestRouterInfo(t *testing.T, floodfill bool, family string, ts time.Time) *routerinfo.RouterInfo {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	encKey := make([]byte, 256)
	sigKey := make([]byte, 128)
	copy(sigKey[128-32:], pub)

	raw := make([]byte, 0, 400)
	raw = append(raw, encKey...)
	raw = append(raw, sigKey...)
	certLen := 4
	raw = append(raw, 5, byte(certLen>>8), byte(certLen))
	raw = append(raw, byte(cryptoutil.SigEdDSA25519>>8), byte(cryptoutil.SigEdDSA25519))
	raw = append(raw, byte(identity.CryptoElGamal>>8), byte(identity.CryptoElGamal))

	id, _, err := identity.Parse(raw)
	if err != nil {
		t.Fatalf("parse identity: %v", err)
	}

	caps := routerinfo.ParseCapabilities("", ts)
	if floodfill {
		caps.Floodfill = true
	}

	return &routerinfo.RouterInfo{
		Identity:     id,
		Timestamp:    ts,
		Capabilities: caps,
		FamilyName:   family,
		Reachable:    true,
	}
}

func TestStoreRouterInfoAddsFloodfillMembership(t *testing.T) {
	now := time.Now()
	s := New(identity.Hash{}, "")

	ri := buildTestRouterInfo(t, true, "", now)
	if !s.StoreRouterInfo(ri, now) {
		t.Fatal("expected router info to be stored")
	}
	if s.FloodfillCount() != 1 {
		t.Fatalf("expected 1 floodfill, got %d", s.FloodfillCount())
	}

	got, ok := s.RouterInfo(ri.Hash())
	if !ok || got != ri {
		t.Fatal("expected stored router info to be retrievable")
	}
}

func TestStoreRouterInfoRejectsStaleTimestamp(t *testing.T) {
	now := time.Now()
	s := New(identity.Hash{}, "")
	ri := buildTestRouterInfo(t, false, "", now.Add(-48*time.Hour))
	if s.StoreRouterInfo(ri, now) {
		t.Fatal("expected stale router info to be rejected")
	}
}

func TestManageRouterInfosDropsExpired(t *testing.T) {
	now := time.Now()
	s := New(identity.Hash{}, "")
	ri := buildTestRouterInfo(t, true, "", now)
	s.StoreRouterInfo(ri, now)

	later := now.Add(RouterExpirationMax + time.Minute)
	dropped := s.ManageRouterInfos(later)
	if dropped != 1 {
		t.Fatalf("expected 1 dropped, got %d", dropped)
	}
	if _, ok := s.RouterInfo(ri.Hash()); ok {
		t.Fatal("expected router info to be gone after expiration")
	}
	if s.FloodfillCount() != 0 {
		t.Fatal("expected floodfill membership to be cleaned up too")
	}
}

func TestRoutingKeyRotatesAcrossDays(t *testing.T) {
	var h identity.Hash
	copy(h[:], []byte("some-router-identity-hash-bytes"))
	now := time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC)

	today := RoutingKey(h, now, false)
	tomorrow := RoutingKey(h, now, true)
	if today == tomorrow {
		t.Fatal("expected today and tomorrow routing keys to differ")
	}

	sameDayLater := RoutingKey(h, now.Add(time.Minute), false)
	if today == sameDayLater {
		t.Fatal("expected routing key to rotate across the UTC day boundary")
	}
}

func TestShouldFloodSuppressesRepeats(t *testing.T) {
	var h identity.Hash
	copy(h[:], []byte("repeat-flood-test-hash-bytes-xx"))
	s := New(identity.Hash{}, "")
	now := time.Now()

	if !s.ShouldFlood(h, now) {
		t.Fatal("expected first flood to proceed")
	}
	if s.ShouldFlood(h, now.Add(time.Second)) {
		t.Fatal("expected repeat flood within window to be suppressed")
	}
	if !s.ShouldFlood(h, now.Add(floodSuppressWindow+time.Second)) {
		t.Fatal("expected flood to proceed again after the suppression window")
	}
}

func TestRequestTrackerAbandonInvokesCallbackWithNil(t *testing.T) {
	tr := NewRequestTracker()
	now := time.Now()
	var target identity.Hash
	copy(target[:], []byte("target-hash-for-lookup-test-byte"))

	got := make(chan any, 1)
	if _, err := tr.Start(target, now, func(found any) { got <- found }); err != nil {
		t.Fatal(err)
	}
	tr.Abandon(target)

	select {
	case v := <-got:
		if v != nil {
			t.Fatalf("expected nil callback payload, got %v", v)
		}
	default:
		t.Fatal("expected callback to fire synchronously")
	}
	if tr.Pending(target) {
		t.Fatal("expected request to be removed after Abandon")
	}
}

func TestRequestTrackerManageRequestsExpiresOverAttemptsOrTimeout(t *testing.T) {
	tr := NewRequestTracker()
	now := time.Now()
	var target identity.Hash
	copy(target[:], []byte("another-target-hash-test-bytesx"))

	tr.Start(target, now, nil)
	for i := 0; i < MaxLookupAttempts; i++ {
		tr.OnSearchReply(target, identity.Hash{}, nil, nil, nil)
	}

	expired := tr.ManageRequests(now)
	if expired != 1 {
		t.Fatalf("expected 1 expired request, got %d", expired)
	}
	if tr.Pending(target) {
		t.Fatal("expected request to be gone after exceeding max attempts")
	}
}

func TestRequestTrackerExploratoryDueSchedulesNext(t *testing.T) {
	tr := NewRequestTracker()
	now := time.Now()
	if !tr.ExploratoryDue(now) {
		t.Fatal("expected first call to be due immediately")
	}
	if tr.ExploratoryDue(now.Add(time.Second)) {
		t.Fatal("expected immediate re-check to not be due yet")
	}
	if !tr.ExploratoryDue(now.Add(ExploratoryRequestInterval + ExploratoryRequestJitterMax + time.Second)) {
		t.Fatal("expected a later check past the max jittered interval to be due")
	}
}
