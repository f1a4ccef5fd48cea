package timesync

import (
	"testing"
	"time"

	"github.com/go-i2p/i2p-router-core/identity"
)

func TestRecordPeerSkewNeedsTwoDistinctPeers(t *testing.T) {
	tr := New(true)
	var p1, p2 identity.Hash
	p1[0] = 1
	p2[0] = 2

	tr.RecordPeerSkew(p1, 5*time.Second)
	if tr.offset != 0 {
		t.Fatal("should not adjust offset from a single peer sample")
	}
	tr.RecordPeerSkew(p2, 9*time.Second)
	if tr.offset == 0 {
		t.Fatal("expected offset to update once two distinct peers reported")
	}
}

func TestRecordPeerSkewIgnoredWhenDisabled(t *testing.T) {
	tr := New(false)
	var p1, p2 identity.Hash
	p1[0] = 1
	p2[0] = 2
	tr.RecordPeerSkew(p1, 5*time.Second)
	tr.RecordPeerSkew(p2, 9*time.Second)
	if tr.offset != 0 {
		t.Fatal("disabled tracker should never adjust offset")
	}
}

func TestMedianSkewEvenAndOddCounts(t *testing.T) {
	odd := []sample{{skew: 1 * time.Second}, {skew: 3 * time.Second}, {skew: 2 * time.Second}}
	if got := medianSkewLocked(odd); got != 2*time.Second {
		t.Fatalf("expected median 2s, got %v", got)
	}
	even := []sample{{skew: 1 * time.Second}, {skew: 3 * time.Second}}
	if got := medianSkewLocked(even); got != 2*time.Second {
		t.Fatalf("expected average-of-middle-two 2s, got %v", got)
	}
}
