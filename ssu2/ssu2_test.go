package ssu2

import (
	"testing"
	"time"
)

func TestAckStateTracksOutOfOrderThenCollapses(t *testing.T) {
	a := NewAckState()
	a.Receive(0)
	a.Receive(2)
	a.Receive(3)
	blk := a.BuildAckBlock()
	ackThrough, ranges, err := ParseAckBlock(blk.Value)
	if err != nil {
		t.Fatal(err)
	}
	if ackThrough != 0 {
		t.Fatalf("expected ackThrough 0 (1 still missing), got %d", ackThrough)
	}
	if len(ranges) != 1 || ranges[0].NackRun != 1 || ranges[0].AckRun != 2 {
		t.Fatalf("expected one range {nack:1,ack:2}, got %+v", ranges)
	}

	a.Receive(1)
	blk2 := a.BuildAckBlock()
	ackThrough2, ranges2, err := ParseAckBlock(blk2.Value)
	if err != nil {
		t.Fatal(err)
	}
	if ackThrough2 != 3 {
		t.Fatalf("expected ackThrough to collapse to 3, got %d", ackThrough2)
	}
	if len(ranges2) != 0 {
		t.Fatalf("expected no ranges once contiguous, got %+v", ranges2)
	}
}

func TestRetransmitRTOClampedAndCongestionWindowAdapts(t *testing.T) {
	r := NewRetransmitState()
	if r.RTO() != RTOMax {
		t.Fatalf("expected default RTO to be RTOMax before any sample, got %v", r.RTO())
	}
	r.SampleRTT(50 * time.Millisecond)
	if rto := r.RTO(); rto != RTOMin {
		t.Fatalf("expected RTO clamped to RTOMin for a tiny RTT sample, got %v", rto)
	}

	now := time.Now()
	r.RecordSent(1, now)
	if err := r.MarkResent(1, now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if got := r.CongestionWindow(); got != CongestionWindowFloor {
		t.Fatalf("expected window to stay at floor after halving from floor, got %d", got)
	}

	r2 := NewRetransmitState()
	for i := uint32(0); i < 20; i++ {
		r2.RecordSent(i, now)
	}
	r2.Ack([]uint32{0, 1, 2, 3, 4}, now.Add(10*time.Millisecond))
	if got := r2.CongestionWindow(); got != CongestionWindowFloor+5 {
		t.Fatalf("expected window to grow by 5 acked packets, got %d", got)
	}
}

func TestRetransmitTooManyResendsSignalsTimeout(t *testing.T) {
	r := NewRetransmitState()
	now := time.Now()
	r.RecordSent(7, now)
	var lastErr error
	for i := 0; i < MaxUnackedResends; i++ {
		lastErr = r.MarkResent(7, now.Add(time.Duration(i+1)*time.Second))
	}
	if lastErr != ErrTooManyResends {
		t.Fatalf("expected ErrTooManyResends after %d resends, got %v", MaxUnackedResends, lastErr)
	}
}

func TestFragmentReassemblyOutOfOrder(t *testing.T) {
	r := NewReassembler()
	r.AddFirstFragment(42, false, []byte("hello "))
	if err := r.AddFollowOnFragment(42, 2, true, []byte("world")); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.TryAssemble(42); ok {
		t.Fatal("should not assemble with fragment 1 missing")
	}
	if err := r.AddFollowOnFragment(42, 1, false, []byte("there ")); err != nil {
		t.Fatal(err)
	}
	got, ok := r.TryAssemble(42)
	if !ok {
		t.Fatal("expected complete reassembly")
	}
	if string(got) != "hello there world" {
		t.Fatalf("got %q", got)
	}
}

func TestFragmentReassemblySuppressesRetransmittedDuplicate(t *testing.T) {
	r := NewReassembler()
	r.AddFirstFragment(42, true, []byte("hello"))
	got, ok := r.TryAssemble(42)
	if !ok || string(got) != "hello" {
		t.Fatalf("expected first delivery to succeed, got %q ok=%v", got, ok)
	}

	// A retransmitted duplicate of the same message ID must not be
	// reassembled and delivered a second time.
	r.AddFirstFragment(42, true, []byte("hello"))
	if _, ok := r.TryAssemble(42); ok {
		t.Fatal("expected duplicate msgID to be suppressed")
	}
}

func TestPeerTestOutcomes(t *testing.T) {
	pt := NewPeerTest(1, 4444)
	pt.OnMsg4(true)
	if pt.Outcome() != PeerTestFirewalled {
		t.Fatalf("expected Firewalled after msg4 accept only, got %v", pt.Outcome())
	}
	pt.OnMsg5(4444, false)
	if pt.Outcome() != PeerTestOK {
		t.Fatalf("expected OK after matching msg5 port, got %v", pt.Outcome())
	}

	pt2 := NewPeerTest(2, 4444)
	pt2.OnMsg4(true)
	pt2.OnMsg5(9999, false)
	if pt2.Outcome() != PeerTestSymmetricNAT {
		t.Fatalf("expected SymmetricNAT on port mismatch, got %v", pt2.Outcome())
	}

	pt3 := NewPeerTest(3, 4444)
	pt3.OnMsg5(9999, true)
	if pt3.Outcome() != PeerTestOK {
		t.Fatalf("expected OK to win over port mismatch with a confirmed direct session, got %v", pt3.Outcome())
	}
}
