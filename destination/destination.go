// Package destination implements the local-destination lifecycle (spec.md
// §4.12): identity and encryption keys, tunnel pool, current LeaseSet,
// remote-LeaseSet cache, pending lookups, and garlic session-tag state. It
// is grounded on the teacher's socks.Server for the "accept work, dispatch
// by registered handler" shape (generalized from SOCKS CONNECT dispatch to
// I2P's streaming/datagram/raw protocol-byte dispatch) and on
// stream.Stream for the thin io.ReadWriteCloser-per-flow pattern
// CreateStream hands back.
package destination

import (
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/go-i2p/i2p-router-core/config"
	"github.com/go-i2p/i2p-router-core/identity"
	"github.com/go-i2p/i2p-router-core/internal/rlog"
	"github.com/go-i2p/i2p-router-core/leaseset"
	"github.com/go-i2p/i2p-router-core/netdb"
	"github.com/go-i2p/i2p-router-core/tunnel"
)

var log = rlog.For("destination")

// Protocol bytes dispatched by HandleDataMessage, per spec.md §4.12.
const (
	ProtoStreaming byte = 6
	ProtoDatagram  byte = 17
	ProtoRaw       byte = 18
)

// MaxLeasesInPublishedSet caps the leases in the leaseset a destination
// publishes (spec.md §4.12's "up to 16 current inbound tunnels with a
// 2-tunnel backup margin"). BackupMargin names that margin;
// SetLeaseSetUpdated does not apply it.
const (
	MaxLeasesInPublishedSet = 16
	BackupMargin            = 2
)

// CleanupPeriod is the periodic cleanup interval (spec.md §4.12). Start
// does not schedule Cleanup; it runs only when a caller invokes it.
const CleanupPeriod = 5 * time.Minute

// RemoteLeaseSetCacheSize bounds the resolved-remote-destination cache
// RequestDestination consults before issuing a fresh netdb lookup.
const RemoteLeaseSetCacheSize = 256

// RemoteLeaseSetFallbackTTL caches a resolved remote leaseset of an
// unrecognized type for a conservative fixed duration, since its own
// expiration can't be read off the value.
const RemoteLeaseSetFallbackTTL = 10 * time.Minute

// ProtocolHandler is an external collaborator registered for a protocol
// byte/port pair; HandleDataMessage dispatches to it (spec.md §4.12).
type ProtocolHandler func(payload []byte, fromPort, toPort uint16) error

// ErrNoTunnels and ErrNoFloodfill are the Publish failure modes spec.md
// §4.12 names explicitly.
var (
	ErrNoTunnels   = errors.New("destination: no usable tunnels to publish through")
	ErrNoFloodfill = errors.New("destination: no floodfill known to publish to")
)

// remoteLeaseSetEntry caches a resolved remote destination.
type remoteLeaseSetEntry struct {
	LeaseSet any // *leaseset.LeaseSet or *leaseset.LeaseSet2
	Expires  time.Time
}

// Destination is a local I2P destination: identity, tunnel pool, leaseset
// state, and the dispatch table for inbound data (spec.md §4.12).
type Destination struct {
	mu sync.Mutex

	Keys   *identity.PrivateKeys
	Params config.DestinationParams

	pool  *tunnel.Pool
	netdb *netdb.Store

	currentLeaseSet *leaseset.LeaseSet2
	published       []byte

	remoteCache *lru.Cache[identity.Hash, *remoteLeaseSetEntry]
	pending     map[identity.Hash]*LeaseSetRequest

	Garlic *GarlicSessionTable

	handlers map[uint16]ProtocolHandler

	publisher   *publishState
	publishSend PublishSender

	started bool
}

// SetPublishSender wires the external DatabaseStore-sending collaborator
// Publish calls (spec.md §4.12 step 3).
func (d *Destination) SetPublishSender(fn PublishSender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.publishSend = fn
}

// LeaseSetRequest tracks one caller-visible in-flight RequestDestination
// call, distinct from netdb.RequestTracker's lower-level bookkeeping: this
// is the destination-facing handle, netdb's is the wire-protocol handle.
type LeaseSetRequest struct {
	Target    identity.Hash
	Started   time.Time
	callbacks []func(found any)
}

// New builds a destination around keys, not yet started.
func New(keys *identity.PrivateKeys, params config.DestinationParams, pool *tunnel.Pool, store *netdb.Store) *Destination {
	remoteCache, err := lru.New[identity.Hash, *remoteLeaseSetEntry](RemoteLeaseSetCacheSize)
	if err != nil {
		// Only fails on a non-positive size, which RemoteLeaseSetCacheSize never is.
		remoteCache, _ = lru.New[identity.Hash, *remoteLeaseSetEntry](1)
	}
	d := &Destination{
		Keys:        keys,
		Params:      params,
		pool:        pool,
		netdb:       store,
		remoteCache: remoteCache,
		pending:     make(map[identity.Hash]*LeaseSetRequest),
		Garlic:      NewGarlicSessionTable(),
		handlers:    make(map[uint16]ProtocolHandler),
		publisher:   newPublishState(),
	}
	return d
}

// RegisterHandler wires an external collaborator for inbound data on
// toPort, dispatched by protocol byte via HandleDataMessage.
func (d *Destination) RegisterHandler(toPort uint16, h ProtocolHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[toPort] = h
}

// Start wires SetLeaseSetUpdated to the tunnel pool's update callback
// (spec.md §4.12's lifecycle step 1); it does not build tunnels or start
// any other pool activity. Session-tag
// persistence loading is the caller's responsibility (an external
// collaborator owns the on-disk `destinations/<b32>.<crypto-type>.dat`
// files); Start only wires the in-memory pieces together.
func (d *Destination) Start() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	pool := d.pool
	d.mu.Unlock()

	pool.OnUpdate(func() { d.SetLeaseSetUpdated() })
	log.WithField("destination", d.Keys.Identity.Hash().String()).Info("destination started")
}

// SetLeaseSetUpdated rebuilds the local LeaseSet from the pool's current
// inbound tunnels and republishes if IsPublic (spec.md §4.12 step 2).
func (d *Destination) SetLeaseSetUpdated() {
	inbound := d.pool.Inbound()
	if len(inbound) == 0 {
		return
	}

	leaseN := len(inbound)
	if leaseN > MaxLeasesInPublishedSet {
		leaseN = MaxLeasesInPublishedSet
	}

	builder := leaseset.NewLocalLeaseSet2(d.Keys)
	for _, ek := range d.encryptionKeys() {
		builder.AddEncryptionKey(ek.Type, ek.Key)
	}
	builder.SetUnpublished(d.Params.DontPublishLeaseSet)

	leases := make([]leaseset.Lease2, 0, leaseN)
	for i := 0; i < leaseN && i < len(inbound); i++ {
		t := inbound[i]
		if len(t.Hops) == 0 {
			continue
		}
		gateway := t.Hops[0]
		leases = append(leases, leaseset.Lease2{
			TunnelGateway: gateway.PeerHash,
			TunnelID:      gateway.ReceiveTunnel,
			EndDate:       t.Expiration,
		})
	}
	if len(leases) == 0 {
		return
	}
	builder.SetLeases(leases)

	parsed, wire, err := builder.Sign(time.Now(), 10*time.Minute)
	if err != nil {
		log.WithError(err).Error("sign local leaseset")
		return
	}

	d.mu.Lock()
	d.currentLeaseSet = parsed
	d.published = wire
	dontPublish := d.Params.DontPublishLeaseSet
	d.mu.Unlock()

	if !dontPublish {
		if err := d.Publish(time.Now()); err != nil {
			log.WithError(err).Warn("publish after leaseset update")
		}
	}
}

// encryptionKeys returns the typed encryption-key list to advertise,
// preferring ECIES-X25519 (type 4) with an ElGamal legacy fallback if
// LeaseSetEncType names it, per spec.md §4.12.
func (d *Destination) encryptionKeys() []leaseset.EncryptionKeyEntry {
	var out []leaseset.EncryptionKeyEntry
	for _, t := range d.Params.LeaseSetEncType {
		switch t {
		case 4: // ECIES-X25519
			out = append(out, leaseset.EncryptionKeyEntry{Type: 4, Key: d.Keys.EncryptionPrivateKey})
		case 0: // ElGamal legacy
			out = append(out, leaseset.EncryptionKeyEntry{Type: 0, Key: d.Keys.EncryptionPrivateKey})
		}
	}
	if len(out) == 0 {
		out = append(out, leaseset.EncryptionKeyEntry{Type: 4, Key: d.Keys.EncryptionPrivateKey})
	}
	return out
}

// RequestDestination resolves target to a LeaseSet: if cached and
// unexpired, invokes cb immediately; otherwise registers a lookup and
// dispatches it through lookupFn (spec.md §4.12 step 4). lookupFn is the
// caller's DatabaseLookup sender (garlic-wrap + send via a tunnel to the
// closest floodfill); RequestDestination only manages the bookkeeping.
func (d *Destination) RequestDestination(target identity.Hash, now time.Time, cb func(found any), lookupFn func(target identity.Hash, replyKey *netdb.ReplyKey) error) error {
	if e, ok := d.netdb.LeaseSet(target, now); ok {
		cb(e.Record)
		return nil
	}

	d.mu.Lock()
	if entry, ok := d.remoteCache.Get(target); ok {
		if now.Before(entry.Expires) {
			d.mu.Unlock()
			cb(entry.LeaseSet)
			return nil
		}
		d.remoteCache.Remove(target)
	}
	if req, exists := d.pending[target]; exists {
		if cb != nil {
			req.callbacks = append(req.callbacks, cb)
		}
		d.mu.Unlock()
		return nil
	}
	req := &LeaseSetRequest{Target: target, Started: now}
	if cb != nil {
		req.callbacks = append(req.callbacks, cb)
	}
	d.pending[target] = req
	d.mu.Unlock()

	rs, err := d.netdb.Requests.Start(target, now, func(found any) { d.resolvePending(target, found) })
	if err != nil {
		return fmt.Errorf("destination: start lookup: %w", err)
	}
	if lookupFn != nil {
		if err := lookupFn(target, rs.ReplyKey); err != nil {
			return fmt.Errorf("destination: send lookup: %w", err)
		}
	}
	return nil
}

func (d *Destination) resolvePending(target identity.Hash, found any) {
	d.mu.Lock()
	req, ok := d.pending[target]
	if ok {
		delete(d.pending, target)
	}
	if found != nil {
		base := time.Now()
		if ok {
			base = req.Started
		}
		d.remoteCache.Add(target, &remoteLeaseSetEntry{LeaseSet: found, Expires: remoteLeaseSetExpiry(found, base)})
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	for _, cb := range req.callbacks {
		cb(found)
	}
}

// remoteLeaseSetExpiry picks the cache TTL for a resolved remote leaseset:
// its own ExpirationTime for LS2, the latest lease EndDate for the legacy
// format, or a conservative fallback when the type is unrecognized.
func remoteLeaseSetExpiry(found any, now time.Time) time.Time {
	switch v := found.(type) {
	case *leaseset.LeaseSet2:
		return v.ExpirationTime()
	case *leaseset.LeaseSet:
		var latest time.Time
		for _, l := range v.Leases {
			if l.EndDate.After(latest) {
				latest = l.EndDate
			}
		}
		if !latest.IsZero() {
			return latest
		}
	}
	return now.Add(RemoteLeaseSetFallbackTTL)
}

// StreamOpener is the external streaming collaborator CreateStream hands
// the resolved LeaseSet and chosen outbound tunnel to (spec.md §4.12 step 5).
type StreamOpener func(remote any, outbound *tunnel.Tunnel, targetPort uint16) (any, error)

// CreateStream resolves target then calls into opener with the remote's
// lease list and a randomly-chosen outbound tunnel.
func (d *Destination) CreateStream(target identity.Hash, targetPort uint16, now time.Time, opener StreamOpener, lookupFn func(identity.Hash, *netdb.ReplyKey) error) (any, error) {
	resolved := make(chan any, 1)
	err := d.RequestDestination(target, now, func(found any) { resolved <- found }, lookupFn)
	if err != nil {
		return nil, err
	}
	remote := <-resolved
	if remote == nil {
		return nil, fmt.Errorf("destination: lookup for %s failed", target)
	}

	outbound, ok := d.pool.SelectOutbound()
	if !ok {
		return nil, ErrNoTunnels
	}
	return opener(remote, outbound, targetPort)
}

// HandleDataMessage dispatches payload by its leading protocol byte to the
// handler registered for toPort (spec.md §4.12 step 6).
func (d *Destination) HandleDataMessage(payload []byte, fromPort, toPort uint16) error {
	if len(payload) == 0 {
		return fmt.Errorf("destination: empty data message")
	}
	proto := payload[0]
	switch proto {
	case ProtoStreaming, ProtoDatagram, ProtoRaw:
	default:
		return fmt.Errorf("destination: unknown protocol byte %d", proto)
	}

	d.mu.Lock()
	h, ok := d.handlers[toPort]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("destination: no handler registered for port %d", toPort)
	}
	return h(payload[1:], fromPort, toPort)
}

// Reconfigure updates tunnel pool parameters and the publish flag,
// reporting whether the pool was actually reshaped (spec.md §4.12).
func (d *Destination) Reconfigure(params config.DestinationParams) bool {
	d.mu.Lock()
	d.Params = params
	d.mu.Unlock()

	reshaped := d.pool.Reconfigure(tunnel.PoolParams{
		InboundLength:          params.InboundLength,
		OutboundLength:         params.OutboundLength,
		InboundQuantity:        params.InboundQuantity,
		OutboundQuantity:       params.OutboundQuantity,
		InboundLengthVariance:  params.InboundLengthVariance,
		OutboundLengthVariance: params.OutboundLengthVariance,
	})
	return reshaped
}

// Cleanup runs the periodic maintenance: expire pool tunnels, garlic
// session tags, and remote leaseset cache entries. Start does not schedule
// it; it runs when a caller invokes it.
func (d *Destination) Cleanup(now time.Time) {
	d.pool.Expire(now)
	d.Garlic.Expire(now)

	d.mu.Lock()
	for _, hash := range d.remoteCache.Keys() {
		if e, ok := d.remoteCache.Peek(hash); ok && now.After(e.Expires) {
			d.remoteCache.Remove(hash)
		}
	}
	d.mu.Unlock()
}
