package ssu2

import (
	"fmt"
	"sync"
	"time"
)

// PeerTestExpiry is how long a nonce-identified peer test stays valid
// (spec.md §4.7).
const PeerTestExpiry = 60 * time.Second

// PeerTestOutcome is Alice's reachability classification at the end of a
// peer test (spec.md §4.7).
type PeerTestOutcome int

const (
	PeerTestPending PeerTestOutcome = iota
	PeerTestOK
	PeerTestFirewalled
	PeerTestSymmetricNAT
)

func (o PeerTestOutcome) String() string {
	switch o {
	case PeerTestOK:
		return "OK"
	case PeerTestFirewalled:
		return "Firewalled"
	case PeerTestSymmetricNAT:
		return "SymmetricNAT"
	default:
		return "Pending"
	}
}

// PeerTestMsg is the 1..7 sequence number in spec.md §4.7's flow:
// Alice->Bob(1) -> Bob->Charlie(2) -> Charlie->Bob(3) -> Bob->Alice(4) ->
// Charlie->Alice direct(5) -> Alice->Charlie(6) -> Charlie->Alice(7).
type PeerTestMsg int

const (
	PeerTestMsg1 PeerTestMsg = 1
	PeerTestMsg2 PeerTestMsg = 2
	PeerTestMsg3 PeerTestMsg = 3
	PeerTestMsg4 PeerTestMsg = 4
	PeerTestMsg5 PeerTestMsg = 5
	PeerTestMsg6 PeerTestMsg = 6
	PeerTestMsg7 PeerTestMsg = 7
)

// PeerTestState tracks one in-flight peer test from Alice's perspective,
// since Alice is the only party that derives a reachability conclusion;
// Bob and Charlie are stateless relays for the purposes of this package.
type PeerTestState struct {
	mu sync.Mutex

	Nonce     uint32
	startedAt time.Time

	gotMsg4       bool
	msg4Accepted  bool
	gotMsg5       bool
	msg5Port      uint16
	ownSocketPort uint16

	outcome PeerTestOutcome
}

// NewPeerTest starts tracking a fresh test, recording Alice's own outbound
// socket port so a later message 5 can be compared against it for the
// symmetric-NAT check.
func NewPeerTest(nonce uint32, ownSocketPort uint16) *PeerTestState {
	return &PeerTestState{Nonce: nonce, startedAt: time.Now(), ownSocketPort: ownSocketPort, outcome: PeerTestPending}
}

// Expired reports whether this test has outlived PeerTestExpiry.
func (p *PeerTestState) Expired(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Sub(p.startedAt) > PeerTestExpiry
}

// OnMsg4 records Bob's reply relaying Charlie's acceptance (or not). Per
// spec.md §4.7, if only msg 4 ever arrives with accept, Alice concludes
// Firewalled.
func (p *PeerTestState) OnMsg4(accepted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gotMsg4 = true
	p.msg4Accepted = accepted
	if accepted && p.outcome == PeerTestPending {
		p.outcome = PeerTestFirewalled
	}
}

// OnMsg5 records Charlie's direct message to Alice, carrying the port
// Charlie observed. Receiving msg 5 at all concludes OK, UNLESS the
// observed port mismatches Alice's own outbound socket port, which
// concludes SymmetricNAT instead (spec.md §4.7) — unless
// hasConfirmedDirectSession is true, meaning Alice already has a prior
// confirmed direct Established session with this peer on the same
// address family, in which case that known-good path outweighs one
// ambiguous test and OK wins regardless of the port mismatch (spec.md §9
// Open Question #2, decided in DESIGN.md).
func (p *PeerTestState) OnMsg5(observedPort uint16, hasConfirmedDirectSession bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gotMsg5 = true
	p.msg5Port = observedPort
	if observedPort != p.ownSocketPort && !hasConfirmedDirectSession {
		p.outcome = PeerTestSymmetricNAT
	} else {
		p.outcome = PeerTestOK
	}
}

// Outcome returns the test's current classification; PeerTestPending
// until enough messages have arrived or the test expires.
func (p *PeerTestState) Outcome() PeerTestOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome
}

// EncodePeerTestMessage serializes the fields common to every peer-test message: msg
// number, nonce, and an opaque endpoint payload (IP+port) the relaying
// party fills in differently at each hop.
func EncodePeerTestMessage(msg PeerTestMsg, nonce uint32, endpoint []byte) Block {
	v := make([]byte, 5+len(endpoint))
	v[0] = byte(msg)
	putU32(v[1:5], nonce)
	copy(v[5:], endpoint)
	return Block{Type: BlockPeerTest, Value: v}
}

// DecodePeerTestMessage reverses EncodePeerTestMessage.
func DecodePeerTestMessage(b Block) (msg PeerTestMsg, nonce uint32, endpoint []byte, err error) {
	if len(b.Value) < 5 {
		return 0, 0, nil, fmt.Errorf("ssu2: truncated PeerTest block")
	}
	msg = PeerTestMsg(b.Value[0])
	nonce = getU32(b.Value[1:5])
	endpoint = b.Value[5:]
	return msg, nonce, endpoint, nil
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
