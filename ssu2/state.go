package ssu2

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-i2p/i2p-router-core/identity"
	"github.com/go-i2p/i2p-router-core/transport"
)

// State is one node of the SSU2 handshake/lifecycle state machine
// (spec.md §4.7). Client and server sides share the Established/Closing/
// ClosingConfirmed/Terminated tail; the paths leading there differ.
type State int

const (
	Unknown State = iota
	TokenRequestSent
	TokenReceived
	SessionRequestSent
	SessionCreatedReceived
	SessionConfirmedSent
	SessionRequestReceived
	SessionCreatedSent
	SessionConfirmedReceived
	Established
	Introduced
	PeerTestState
	Closing
	ClosingConfirmed
	Terminated
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "Unknown"
	case TokenRequestSent:
		return "TokenRequestSent"
	case TokenReceived:
		return "TokenReceived"
	case SessionRequestSent:
		return "SessionRequestSent"
	case SessionCreatedReceived:
		return "SessionCreatedReceived"
	case SessionConfirmedSent:
		return "SessionConfirmedSent"
	case SessionRequestReceived:
		return "SessionRequestReceived"
	case SessionCreatedSent:
		return "SessionCreatedSent"
	case SessionConfirmedReceived:
		return "SessionConfirmedReceived"
	case Established:
		return "Established"
	case Introduced:
		return "Introduced"
	case PeerTestState:
		return "PeerTest"
	case Closing:
		return "Closing"
	case ClosingConfirmed:
		return "ClosingConfirmed"
	case Terminated:
		return "Terminated"
	default:
		return "Invalid"
	}
}

// clientTransitions and serverTransitions enumerate the only legal edges,
// so an out-of-order or duplicated packet is rejected by the state check
// rather than silently reprocessed.
var clientTransitions = map[State][]State{
	Unknown:                {TokenRequestSent, SessionRequestSent},
	TokenRequestSent:       {TokenReceived},
	TokenReceived:          {SessionRequestSent},
	SessionRequestSent:     {SessionCreatedReceived},
	SessionCreatedReceived: {SessionConfirmedSent},
	SessionConfirmedSent:   {Established},
	Established:            {Closing, Introduced, PeerTestState},
	Introduced:             {Established},
	PeerTestState:          {Established},
	Closing:                {ClosingConfirmed},
	ClosingConfirmed:       {Terminated},
}

var serverTransitions = map[State][]State{
	Unknown:                  {SessionRequestReceived},
	SessionRequestReceived:   {SessionCreatedSent},
	SessionCreatedSent:       {SessionConfirmedReceived},
	SessionConfirmedReceived: {Established},
	Established:              {Closing, PeerTestState},
	PeerTestState:            {Established},
	Closing:                  {ClosingConfirmed},
	ClosingConfirmed:         {Terminated},
}

// Role distinguishes which transition table a Session enforces.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// RejectReason names a handshake rejection cause (spec.md §4.7), carried
// in a Termination block.
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectClockSkew
	RejectMalformedRouterInfo
	RejectIdentityMismatch
	RejectBadToken
	RejectBannedPeer
	RejectIncompatibleVersion
	RejectWrongNetID
	RejectDuplicateSession
	RejectTimeout
)

// Session is one SSU2 connection, embedding the transport-agnostic
// bandwidth/RTT/slowness bookkeeping every transport shares.
type Session struct {
	*transport.Session

	mu    sync.Mutex
	role  Role
	state State

	DestConnID uint64
	SrcConnID  uint64

	Noise *HandshakeState

	lastPacketNum uint32

	Retransmit *RetransmitState
	Ack        *AckState
}

// NewSession starts tracking a fresh SSU2 connection for peer in the given
// role, beginning in Unknown.
func NewSession(peer identity.Hash, role Role) *Session {
	return &Session{
		Session:    transport.NewSession(peer),
		role:       role,
		state:      Unknown,
		Retransmit: NewRetransmitState(),
		Ack:        NewAckState(),
	}
}

// State returns the current handshake/lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session to next if the edge is legal for its role,
// otherwise returns an error describing the illegal transition.
func (s *Session) Transition(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table := clientTransitions
	if s.role == RoleServer {
		table = serverTransitions
	}
	for _, allowed := range table[s.state] {
		if allowed == next {
			s.state = next
			return nil
		}
	}
	return fmt.Errorf("ssu2: illegal transition %s -> %s for role %v", s.state, next, s.role)
}

// NextPacketNum allocates the next outbound packet number for this
// session's data phase.
func (s *Session) NextPacketNum() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.lastPacketNum
	s.lastPacketNum++
	return n
}

// Replace marks this session superseded by a newer handshake from the same
// peer by moving it straight to Terminated. It sends no Termination block
// (there is no ReplacedByNewSession reason in RejectReason).
func (s *Session) Replace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Terminated
}

// RecordHandshakeElapsed classifies the handshake time since start as slow
// (>500ms) or failed (>10s) per spec.md §4.6; SSU2 measures it from first
// SessionRequest/TokenRequest send to Established.
func (s *Session) RecordHandshakeElapsed(start time.Time) {
	s.RecordHandshakeDuration(time.Since(start))
}
