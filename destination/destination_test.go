package destination

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/go-i2p/i2p-router-core/config"
	"github.com/go-i2p/i2p-router-core/identity"
	"github.com/go-i2p/i2p-router-core/netdb"
	"github.com/go-i2p/i2p-router-core/routerinfo"
	"github.com/go-i2p/i2p-router-core/tunnel"
)

// buildTestKeys builds a parseable EdDSA identity plus matching private
// keys, mirroring identity_test.go's buildEdDSAIdentity.
func buildTestKeys(t *testing.T) *identity.PrivateKeys {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 391)
	copy(buf[256+96:384], pub)
	buf[384] = 5
	buf[385] = 0
	buf[386] = 4
	buf[387] = 0
	buf[388] = 7
	buf[389] = 0
	buf[390] = 4
	id, _, err := identity.Parse(buf)
	if err != nil {
		t.Fatal(err)
	}
	return &identity.PrivateKeys{
		Identity:             id,
		EncryptionPrivateKey: make([]byte, 256),
		SigningPrivateKey:    priv,
	}
}

type fakeCandidates struct{ routers []*routerinfo.RouterInfo }

func (f *fakeCandidates) AllReachableRouters() []*routerinfo.RouterInfo { return f.routers }

func buildMinimalIdentityBytes(seed byte) []byte {
	encKey := make([]byte, 256)
	sigKey := make([]byte, 128)
	sigKey[0] = seed
	raw := append([]byte{}, encKey...)
	raw = append(raw, sigKey...)
	raw = append(raw, 0, 0, 0)
	return raw
}

func fakeRouterInfo(t *testing.T, seed byte) *routerinfo.RouterInfo {
	t.Helper()
	id, _, err := identity.Parse(buildMinimalIdentityBytes(seed))
	if err != nil {
		t.Fatal(err)
	}
	ri := &routerinfo.RouterInfo{Identity: id, Reachable: true}
	ri.Capabilities.BandwidthTier = 'O'
	return ri
}

func newTestDestination(t *testing.T) *Destination {
	t.Helper()
	keys := buildTestKeys(t)
	store := netdb.New(keys.Identity.Hash(), "")
	src := &fakeCandidates{routers: []*routerinfo.RouterInfo{
		fakeRouterInfo(t, 1), fakeRouterInfo(t, 2), fakeRouterInfo(t, 3),
	}}
	pool := tunnel.NewPool(keys.Identity.Hash(), tunnel.PoolParams{
		InboundLength: 1, OutboundLength: 1, InboundQuantity: 2, OutboundQuantity: 2,
	}, src)
	return New(keys, config.DefaultDestinationParams(), pool, store)
}

func establishedTunnel(id uint32, dir tunnel.Direction, peer identity.Hash, now time.Time) *tunnel.Tunnel {
	hop := &tunnel.HopConfig{PeerHash: peer, ReceiveTunnel: id}
	tn := tunnel.NewTunnel(id, dir, []*tunnel.HopConfig{hop}, now.Add(10*time.Minute))
	tn.MarkEstablished()
	return tn
}

func TestSetLeaseSetUpdatedBuildsLeaseSetFromInboundTunnels(t *testing.T) {
	d := newTestDestination(t)
	now := time.Now()
	d.pool.AddEstablished(establishedTunnel(1, tunnel.DirectionInbound, identity.Hash{9}, now))

	d.SetLeaseSetUpdated()

	if d.currentLeaseSet == nil {
		t.Fatal("expected a built leaseset")
	}
	if len(d.currentLeaseSet.Leases) != 1 {
		t.Fatalf("expected 1 lease, got %d", len(d.currentLeaseSet.Leases))
	}
	if d.published == nil {
		t.Fatal("expected signed wire bytes")
	}
}

func TestSetLeaseSetUpdatedNoopsWithoutInboundTunnels(t *testing.T) {
	d := newTestDestination(t)
	d.SetLeaseSetUpdated()
	if d.currentLeaseSet != nil {
		t.Fatal("expected no leaseset built without inbound tunnels")
	}
}

func TestHandleDataMessageDispatchesToRegisteredHandler(t *testing.T) {
	d := newTestDestination(t)
	var gotPayload []byte
	var gotFrom, gotTo uint16
	d.RegisterHandler(80, func(payload []byte, fromPort, toPort uint16) error {
		gotPayload = payload
		gotFrom = fromPort
		gotTo = toPort
		return nil
	})

	msg := append([]byte{ProtoStreaming}, []byte("hello")...)
	if err := d.HandleDataMessage(msg, 1234, 80); err != nil {
		t.Fatal(err)
	}
	if string(gotPayload) != "hello" {
		t.Fatalf("payload = %q", gotPayload)
	}
	if gotFrom != 1234 || gotTo != 80 {
		t.Fatalf("ports = %d/%d", gotFrom, gotTo)
	}
}

func TestHandleDataMessageRejectsUnknownProtocolByte(t *testing.T) {
	d := newTestDestination(t)
	d.RegisterHandler(80, func([]byte, uint16, uint16) error { return nil })
	if err := d.HandleDataMessage([]byte{99, 1}, 0, 80); err == nil {
		t.Fatal("expected error for unknown protocol byte")
	}
}

func TestHandleDataMessageErrorsWithoutRegisteredHandler(t *testing.T) {
	d := newTestDestination(t)
	if err := d.HandleDataMessage([]byte{ProtoStreaming, 1}, 0, 80); err == nil {
		t.Fatal("expected error for unregistered port")
	}
}

func TestRequestDestinationServesFromCacheWithoutLookup(t *testing.T) {
	d := newTestDestination(t)
	target := identity.Hash{1, 2, 3}
	d.netdb.StoreLeaseSet(&netdb.LeaseSetEntry{Hash: target, Published: time.Now(), Expires: time.Now().Add(time.Hour), Record: "cached"}, time.Now())

	lookupCalled := false
	var got any
	err := d.RequestDestination(target, time.Now(), func(found any) { got = found }, func(identity.Hash, *netdb.ReplyKey) error {
		lookupCalled = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if lookupCalled {
		t.Fatal("expected cache hit to skip lookup")
	}
	if got != "cached" {
		t.Fatalf("got = %v", got)
	}
}

func TestRequestDestinationServesFromRemoteCacheAfterResolve(t *testing.T) {
	d := newTestDestination(t)
	target := identity.Hash{9, 9, 9}

	d.resolvePending(target, "resolved-remote")

	lookupCalled := false
	var got any
	err := d.RequestDestination(target, time.Now(), func(found any) { got = found }, func(identity.Hash, *netdb.ReplyKey) error {
		lookupCalled = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if lookupCalled {
		t.Fatal("expected remote cache hit to skip lookup")
	}
	if got != "resolved-remote" {
		t.Fatalf("got = %v", got)
	}
}

func TestRequestDestinationCoalescesConcurrentLookups(t *testing.T) {
	d := newTestDestination(t)
	target := identity.Hash{4, 5, 6}

	lookups := 0
	lookupFn := func(identity.Hash, *netdb.ReplyKey) error { lookups++; return nil }

	if err := d.RequestDestination(target, time.Now(), func(any) {}, lookupFn); err != nil {
		t.Fatal(err)
	}
	if err := d.RequestDestination(target, time.Now(), func(any) {}, lookupFn); err != nil {
		t.Fatal(err)
	}
	if lookups != 1 {
		t.Fatalf("expected 1 dispatched lookup, got %d", lookups)
	}
	if len(d.pending[target].callbacks) != 2 {
		t.Fatalf("expected 2 coalesced callbacks, got %d", len(d.pending[target].callbacks))
	}
}

func TestCleanupExpiresGarlicTagsAndRemoteCache(t *testing.T) {
	d := newTestDestination(t)
	now := time.Now()
	d.Garlic.Register([8]byte{1}, [32]byte{2}, now.Add(-time.Hour))
	d.remoteCache.Add(identity.Hash{7}, &remoteLeaseSetEntry{Expires: now.Add(-time.Minute)})

	d.Cleanup(now)

	if d.Garlic.Count() != 0 {
		t.Fatal("expected expired garlic tag pruned")
	}
	if _, ok := d.remoteCache.Get(identity.Hash{7}); ok {
		t.Fatal("expected expired remote cache entry pruned")
	}
}
