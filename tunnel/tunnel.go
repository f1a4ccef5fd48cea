package tunnel

import (
	"sync"
	"time"
)

// State is a tunnel's lifecycle stage, grounded on the teacher's circuit
// state machine (circuit/circuit.go) generalized from Tor's per-circuit
// states to I2P's simpler build/established/expiring cycle.
type State int

const (
	StateBuilding State = iota
	StateEstablished
	StateExpiring
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateEstablished:
		return "established"
	case StateExpiring:
		return "expiring"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Direction distinguishes inbound (terminates at this router, gateway is
// remote) from outbound (originates at this router, endpoint is remote).
type Direction int

const (
	DirectionOutbound Direction = iota
	DirectionInbound
)

// Tunnel is a built tunnel this router participates in, either as the
// originator (outbound/inbound client tunnel) or as a transit hop.
type Tunnel struct {
	mu sync.Mutex

	ID         uint32
	Direction  Direction
	Hops       []*HopConfig
	state      State
	Expiration time.Time
	createdAt  time.Time
}

// NewTunnel wraps a completed BuildPlan's hops into a Tunnel record.
func NewTunnel(id uint32, dir Direction, hops []*HopConfig, expiration time.Time) *Tunnel {
	return &Tunnel{ID: id, Direction: dir, Hops: hops, state: StateBuilding, Expiration: expiration, createdAt: time.Now()}
}

// State returns the tunnel's current lifecycle stage.
func (t *Tunnel) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// MarkEstablished transitions Building -> Established once every hop has
// accepted its build record.
func (t *Tunnel) MarkEstablished() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateBuilding {
		t.state = StateEstablished
	}
}

// MarkFailed transitions to Failed from any non-terminal state, idempotent
// once already Failed (spec.md §8's "idempotent close" property, applied
// to the tunnel lifecycle rather than just SSU2 session termination).
func (t *Tunnel) MarkFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateFailed
}

// CheckExpiration transitions Established -> Expiring within the final
// minute of life, and any state -> Failed once past Expiration, returning
// the resulting state for the caller (tunnel pool) to act on.
func (t *Tunnel) CheckExpiration(now time.Time) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.After(t.Expiration) {
		t.state = StateFailed
		return t.state
	}
	if t.state == StateEstablished && now.After(t.Expiration.Add(-time.Minute)) {
		t.state = StateExpiring
	}
	return t.state
}

// Usable reports whether the tunnel can still carry traffic.
func (t *Tunnel) Usable() bool {
	s := t.State()
	return s == StateEstablished || s == StateExpiring
}
