package tunnel

import (
	"testing"
	"time"

	"github.com/go-i2p/i2p-router-core/identity"
	"github.com/go-i2p/i2p-router-core/routerinfo"
)

type fakeCandidates struct {
	routers []*routerinfo.RouterInfo
}

func (f *fakeCandidates) AllReachableRouters() []*routerinfo.RouterInfo { return f.routers }

func fakeRouterInfo(t *testing.T, seed byte, tier byte) *routerinfo.RouterInfo {
	t.Helper()
	raw := make([]byte, 32)
	raw[0] = seed
	id, _, err := identity.Parse(buildMinimalIdentityBytes(raw))
	if err != nil {
		t.Fatalf("build fake identity: %v", err)
	}
	ri := &routerinfo.RouterInfo{Identity: id, Reachable: true}
	ri.Capabilities.BandwidthTier = tier
	return ri
}

// buildMinimalIdentityBytes produces a parseable identity.Parse input
// (encryption key + signing key + a minimal KEY cert) whose hash varies
// with seed, without needing real key material.
func buildMinimalIdentityBytes(seed []byte) []byte {
	encKey := make([]byte, 256)
	sigKey := make([]byte, 128)
	copy(sigKey, seed)
	raw := append([]byte{}, encKey...)
	raw = append(raw, sigKey...)
	raw = append(raw, 0, 0, 0) // NULL cert, length 0
	return raw
}

func TestSelectWeightedHopsPicksRequestedCount(t *testing.T) {
	var self identity.Hash
	candidates := []*routerinfo.RouterInfo{
		fakeRouterInfo(t, 1, 'X'),
		fakeRouterInfo(t, 2, 'L'),
		fakeRouterInfo(t, 3, 'O'),
	}
	picked, err := selectWeightedHops(candidates, 3, self)
	if err != nil {
		t.Fatal(err)
	}
	if len(picked) != 3 {
		t.Fatalf("expected 3 picked hops, got %d", len(picked))
	}
}

func TestPoolBuildPlanForRespectsLength(t *testing.T) {
	src := &fakeCandidates{routers: []*routerinfo.RouterInfo{
		fakeRouterInfo(t, 1, 'X'),
		fakeRouterInfo(t, 2, 'L'),
		fakeRouterInfo(t, 3, 'O'),
		fakeRouterInfo(t, 4, 'N'),
	}}
	params := PoolParams{OutboundLength: 3, OutboundQuantity: 2}
	pool := NewPool(identity.Hash{}, params, src)

	plan, err := pool.BuildPlanFor(DirectionOutbound, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Hops) != 3 {
		t.Fatalf("expected 3 hops, got %d", len(plan.Hops))
	}
	if !plan.Hops[len(plan.Hops)-1].IsEndpoint {
		t.Fatal("expected last hop marked as endpoint")
	}
}

func TestPoolAddEstablishedFiresUpdateOnInbound(t *testing.T) {
	src := &fakeCandidates{}
	pool := NewPool(identity.Hash{}, PoolParams{}, src)
	fired := false
	pool.OnUpdate(func() { fired = true })

	tun := NewTunnel(1, DirectionInbound, nil, time.Now().Add(10*time.Minute))
	pool.AddEstablished(tun)

	if !fired {
		t.Fatal("expected inbound tunnel addition to fire update callback")
	}
	if len(pool.Inbound()) != 1 {
		t.Fatal("expected 1 inbound tunnel in pool")
	}
}
