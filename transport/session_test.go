package transport

import (
	"testing"
	"time"

	"github.com/go-i2p/i2p-router-core/identity"
)

func TestRecordHandshakeDurationClassifiesStatus(t *testing.T) {
	s := NewSession(identity.Hash{})
	s.RecordHandshakeDuration(100 * time.Millisecond)
	if s.Status() != StatusActive {
		t.Fatalf("expected active, got %v", s.Status())
	}

	s2 := NewSession(identity.Hash{})
	s2.RecordHandshakeDuration(1 * time.Second)
	if s2.Status() != StatusSlow {
		t.Fatalf("expected slow, got %v", s2.Status())
	}

	s3 := NewSession(identity.Hash{})
	s3.RecordHandshakeDuration(11 * time.Second)
	if s3.Status() != StatusFailed {
		t.Fatalf("expected failed, got %v", s3.Status())
	}
}

func TestUpdateRTTSmoothsTowardSamples(t *testing.T) {
	s := NewSession(identity.Hash{})
	s.UpdateRTT(100 * time.Millisecond)
	if s.RTT() != 100*time.Millisecond {
		t.Fatalf("first sample should set RTT directly, got %v", s.RTT())
	}
	s.UpdateRTT(200 * time.Millisecond)
	if s.RTT() <= 100*time.Millisecond || s.RTT() >= 200*time.Millisecond {
		t.Fatalf("expected smoothed RTT strictly between samples, got %v", s.RTT())
	}
}

func TestCheckTerminationFiresPastDeadline(t *testing.T) {
	s := NewSession(identity.Hash{})
	s.ArmTermination(10 * time.Millisecond)
	if s.CheckTermination(time.Now()) {
		t.Fatal("should not terminate immediately")
	}
	if !s.CheckTermination(time.Now().Add(50 * time.Millisecond)) {
		t.Fatal("expected termination after deadline")
	}
	if s.Status() != StatusTerminated {
		t.Fatalf("expected terminated status, got %v", s.Status())
	}
}

func TestTouchPushesBackTerminationDeadline(t *testing.T) {
	s := NewSession(identity.Hash{})
	s.ArmTermination(100 * time.Millisecond)
	s.Touch()
	if s.CheckTermination(time.Now().Add(50 * time.Millisecond)) {
		t.Fatal("touch should have pushed back the deadline")
	}
}
