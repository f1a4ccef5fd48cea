// Package transport holds the session bookkeeping shared by both I2P
// transports (SSU2 and NTCP2): bandwidth accounting, RTT tracking, and
// slow/failed handshake detection (spec.md §4.6). It is grounded on the
// teacher's link.Link, generalized from Tor's single TLS-link model to a
// transport-agnostic base that ssu2.Session and ntcp2.Session embed.
package transport

import (
	"sync"
	"time"

	"github.com/go-i2p/i2p-router-core/identity"
	"github.com/go-i2p/i2p-router-core/internal/rlog"
)

var log = rlog.For("transport")

// bandwidthWindow is how often windowed bandwidth deltas are folded into
// the running rate estimate (spec.md §4.6: "update every 5s of activity").
const bandwidthWindow = 5 * time.Second

// Slow/failed handshake thresholds (spec.md §4.6).
const (
	HandshakeSlowThreshold   = 500 * time.Millisecond
	HandshakeFailedThreshold = 10 * time.Second
)

// Status summarizes a session's health independent of its
// transport-specific protocol state machine.
type Status int

const (
	StatusActive Status = iota
	StatusSlow
	StatusFailed
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSlow:
		return "slow"
	case StatusFailed:
		return "failed"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session is the transport-agnostic base every SSU2/NTCP2 session embeds.
// All fields are mutex-guarded since both directions of traffic and
// periodic maintenance touch it concurrently.
type Session struct {
	mu sync.Mutex

	PeerHash identity.Hash

	status Status

	// windowed byte counters, folded into sentRate/recvRate every
	// bandwidthWindow of wall-clock time.
	windowSent, windowRecv uint64
	windowStart            time.Time
	sentRate, recvRate     float64 // bytes/sec, simple windowed average

	// RTT tracking, smoothed the way the teacher's circuit build-time
	// estimator does (single EWMA, no separate variance term — this
	// transport base only needs a slow/failed signal, not RTO scheduling,
	// which SSU2 computes itself on top of its own ack-timed samples).
	rtt time.Duration

	lastActivity time.Time
	terminateAt  time.Time // zero until a termination timeout is armed
}

// NewSession starts a session's bookkeeping for peer.
func NewSession(peer identity.Hash) *Session {
	now := time.Now()
	return &Session{
		PeerHash:     peer,
		status:       StatusActive,
		windowStart:  now,
		lastActivity: now,
	}
}

// RecordHandshakeDuration classifies a completed handshake exchange by
// elapsed time, per spec.md §4.6's slow/failed thresholds.
func (s *Session) RecordHandshakeDuration(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case d > HandshakeFailedThreshold:
		s.status = StatusFailed
		log.WithField("peer", s.PeerHash).WithField("elapsed", d).Warn("handshake exceeded failure threshold")
	case d > HandshakeSlowThreshold:
		s.status = StatusSlow
		log.WithField("peer", s.PeerHash).WithField("elapsed", d).Debug("handshake marked slow")
	}
}

// RecordSent/RecordReceived feed byte counts into the windowed bandwidth
// estimate, folding the window whenever bandwidthWindow has elapsed.
func (s *Session) RecordSent(n int)     { s.record(n, true) }
func (s *Session) RecordReceived(n int) { s.record(n, false) }

func (s *Session) record(n int, sent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if sent {
		s.windowSent += uint64(n)
	} else {
		s.windowRecv += uint64(n)
	}
	s.lastActivity = now
	s.foldWindowLocked(now)
}

func (s *Session) foldWindowLocked(now time.Time) {
	elapsed := now.Sub(s.windowStart)
	if elapsed < bandwidthWindow {
		return
	}
	secs := elapsed.Seconds()
	s.sentRate = float64(s.windowSent) / secs
	s.recvRate = float64(s.windowRecv) / secs
	s.windowSent, s.windowRecv = 0, 0
	s.windowStart = now
}

// Rates returns the current windowed send/receive byte rates.
func (s *Session) Rates() (sentBps, recvBps float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sentRate, s.recvRate
}

// UpdateRTT folds a fresh round-trip sample into the smoothed estimate
// using a simple EWMA (alpha 0.125, matching SSU2's own RTO smoothing
// constant per spec.md §4.7 so the two layers behave consistently).
func (s *Session) UpdateRTT(sample time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rtt == 0 {
		s.rtt = sample
		return
	}
	const alpha = 0.125
	s.rtt = time.Duration((1-alpha)*float64(s.rtt) + alpha*float64(sample))
}

// RTT returns the current smoothed round-trip estimate.
func (s *Session) RTT() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rtt
}

// Status returns the session's current health classification.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ArmTermination schedules a transport-specific idle-termination deadline;
// SSU2 and NTCP2 each pass their own timeout (spec.md §4.6: "Termination
// timeout is transport-specific").
func (s *Session) ArmTermination(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminateAt = s.lastActivity.Add(timeout)
}

// CheckTermination reports whether the session has been idle past its
// armed termination deadline, and if so marks it terminated.
func (s *Session) CheckTermination(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminateAt.IsZero() {
		return false
	}
	if now.After(s.terminateAt) {
		s.status = StatusTerminated
		return true
	}
	return false
}

// Touch records activity, pushing back the idle-termination deadline by
// the same timeout it was last armed with.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.terminateAt.IsZero() {
		timeout := s.terminateAt.Sub(s.lastActivity)
		s.lastActivity = time.Now()
		s.terminateAt = s.lastActivity.Add(timeout)
		return
	}
	s.lastActivity = time.Now()
}
