package tunnel

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/go-i2p/i2p-router-core/identity"
	"github.com/go-i2p/i2p-router-core/routerinfo"
)

// RouterCandidates is the source a pool draws hop candidates from. Kept as
// a narrow interface so this package does not need to import netdb.
// netdb.Store.AllReachableRouters implements it, returning every stored
// reachable RouterInfo; the pool then filters out itself and weights the
// rest.
type RouterCandidates interface {
	AllReachableRouters() []*routerinfo.RouterInfo
}

// PoolParams mirrors the hop-length/variance/quantity knobs of
// config.DestinationParams, kept decoupled from the config package so
// tunnel does not need to import it.
type PoolParams struct {
	InboundLength          int
	OutboundLength         int
	InboundQuantity        int
	OutboundQuantity       int
	InboundLengthVariance  int
	OutboundLengthVariance int
}

// Pool is a destination's inbound+outbound tunnel set (spec.md §4.12's
// TunnelPool). Grounded on the teacher's pathselect package for the
// filtered-candidate-then-weighted-random-pick selection shape
// (pathselect.SelectExit/SelectGuard/SelectMiddle, pathselect.weightedRandom),
// generalized from Tor's three fixed roles (guard/middle/exit) to I2P's
// symmetric N-hop inbound/outbound tunnels built from the same candidate
// pool, weighted by bandwidth tier instead of consensus bandwidth weights.
type Pool struct {
	mu      sync.Mutex
	params  PoolParams
	self    identity.Hash
	sources RouterCandidates

	inbound  []*Tunnel
	outbound []*Tunnel

	onUpdate func()
}

// NewPool starts an empty pool for self, drawing hop candidates from src.
func NewPool(self identity.Hash, params PoolParams, src RouterCandidates) *Pool {
	return &Pool{params: params, self: self, sources: src}
}

// OnUpdate registers the callback the pool invokes whenever its inbound
// tunnel set changes, wired by destination.Destination to
// SetLeaseSetUpdated.
func (p *Pool) OnUpdate(fn func()) { p.mu.Lock(); p.onUpdate = fn; p.mu.Unlock() }

// Reconfigure applies new pool parameters, reporting whether they differ
// from the current ones (spec.md §4.12's Reconfigure "returns whether the
// pool was actually reshaped").
func (p *Pool) Reconfigure(params PoolParams) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	changed := params != p.params
	p.params = params
	return changed
}

// Inbound returns the current established inbound tunnels.
func (p *Pool) Inbound() []*Tunnel {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Tunnel, len(p.inbound))
	copy(out, p.inbound)
	return out
}

// Outbound returns the current established outbound tunnels.
func (p *Pool) Outbound() []*Tunnel {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Tunnel, len(p.outbound))
	copy(out, p.outbound)
	return out
}

// SelectOutbound picks one established outbound tunnel at random, for
// sending a message through (spec.md §4.12's CreateStream step).
func (p *Pool) SelectOutbound() (*Tunnel, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var usable []*Tunnel
	for _, t := range p.outbound {
		if t.Usable() {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return nil, false
	}
	idx, err := randomIndex(len(usable))
	if err != nil {
		return usable[0], true
	}
	return usable[idx], true
}

// BuildPlanFor selects length(±variance) hops for one tunnel of the given
// direction; selectWeightedHops removes each pick from the candidate list,
// so a single tunnel doesn't reuse a peer across its own hops.
func (p *Pool) BuildPlanFor(dir Direction, now time.Time) (*BuildPlan, error) {
	p.mu.Lock()
	length, variance := p.params.OutboundLength, p.params.OutboundLengthVariance
	if dir == DirectionInbound {
		length, variance = p.params.InboundLength, p.params.InboundLengthVariance
	}
	src := p.sources
	p.mu.Unlock()

	n := length
	if variance > 0 {
		jitter, err := randomIndex(2*variance + 1)
		if err == nil {
			n = length - variance + jitter
		}
	}
	if n < 0 {
		n = 0
	}

	candidates := src.AllReachableRouters()
	picked, err := selectWeightedHops(candidates, n, p.self)
	if err != nil {
		return nil, fmt.Errorf("tunnel: select hops: %w", err)
	}

	hops := make([]*HopConfig, len(picked))
	for i, ri := range picked {
		hc := &HopConfig{PeerHash: ri.Hash(), EncType: EncryptionAES}
		hops[i] = hc
		if i == 0 && dir == DirectionInbound {
			hc.IsGateway = true
		}
		if i == len(picked)-1 {
			hc.IsEndpoint = true
		}
	}

	return &BuildPlan{Hops: hops, RequestTime: now.Truncate(time.Minute), Expiration: 10 * time.Minute}, nil
}

// AddEstablished records a newly-built tunnel and fires the update
// callback for inbound additions (a new lease candidate is now available).
func (p *Pool) AddEstablished(t *Tunnel) {
	p.mu.Lock()
	var cb func()
	if t.Direction == DirectionInbound {
		p.inbound = append(p.inbound, t)
		cb = p.onUpdate
	} else {
		p.outbound = append(p.outbound, t)
	}
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Expire drops tunnels past their expiration or marked failed, firing the
// update callback if the inbound set shrank.
func (p *Pool) Expire(now time.Time) {
	p.mu.Lock()
	before := len(p.inbound)
	p.inbound = filterUsable(p.inbound, now)
	p.outbound = filterUsable(p.outbound, now)
	shrank := len(p.inbound) < before
	cb := p.onUpdate
	p.mu.Unlock()
	if shrank && cb != nil {
		cb()
	}
}

func filterUsable(tunnels []*Tunnel, now time.Time) []*Tunnel {
	var out []*Tunnel
	for _, t := range tunnels {
		if state := t.CheckExpiration(now); state != StateFailed {
			out = append(out, t)
		}
	}
	return out
}

// selectWeightedHops picks n distinct routers (excluding self and
// duplicates), weighted toward higher bandwidth tiers, mirroring
// pathselect.weightedRandom's rejection-sampling approach.
func selectWeightedHops(candidates []*routerinfo.RouterInfo, n int, self identity.Hash) ([]*routerinfo.RouterInfo, error) {
	pool := make([]*routerinfo.RouterInfo, 0, len(candidates))
	weights := make([]int64, 0, len(candidates))
	seenSubnet := make(map[string]bool)
	for _, ri := range candidates {
		if ri.Hash() == self || !ri.Reachable {
			continue
		}
		subnet := subnet16(ri)
		if subnet != "" && seenSubnet[subnet] {
			continue
		}
		pool = append(pool, ri)
		weights = append(weights, bandwidthWeight(ri.Capabilities.BandwidthTier))
		if subnet != "" {
			seenSubnet[subnet] = true
		}
	}

	picked := make([]*routerinfo.RouterInfo, 0, n)
	for i := 0; i < n && len(pool) > 0; i++ {
		idx, err := weightedRandom(weights)
		if err != nil {
			return nil, err
		}
		picked = append(picked, pool[idx])
		pool = append(pool[:idx], pool[idx+1:]...)
		weights = append(weights[:idx], weights[idx+1:]...)
	}
	return picked, nil
}

func bandwidthWeight(tier byte) int64 {
	switch tier {
	case 'X':
		return 2048
	case 'P':
		return 1024
	case 'O':
		return 256
	case 'N':
		return 128
	case 'M':
		return 64
	case 'L':
		return 48
	default:
		return 12
	}
}

func subnet16(ri *routerinfo.RouterInfo) string {
	for _, a := range ri.Addresses {
		if ip := net.ParseIP(a.Host); ip != nil {
			if ip4 := ip.To4(); ip4 != nil {
				return fmt.Sprintf("%d.%d", ip4[0], ip4[1])
			}
		}
	}
	return ""
}

func weightedRandom(weights []int64) (int, error) {
	var total int64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return 0, fmt.Errorf("tunnel: no positive-weight candidates")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(total))
	if err != nil {
		return 0, fmt.Errorf("tunnel: weighted random: %w", err)
	}
	target := n.Int64()
	var cumulative int64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cumulative += w
		if target < cumulative {
			return i, nil
		}
	}
	return len(weights) - 1, nil
}

func randomIndex(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("tunnel: randomIndex requires n > 0")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
