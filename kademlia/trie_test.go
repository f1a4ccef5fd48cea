package kademlia

import (
	"testing"

	"github.com/go-i2p/i2p-router-core/identity"
)

func hashFromByte(b byte) identity.Hash {
	var h identity.Hash
	h[0] = b
	return h
}

func TestFindClosestRespectsXORDistance(t *testing.T) {
	d := NewDHTNode()
	d.Insert(hashFromByte(0x00), "a")
	d.Insert(hashFromByte(0x01), "b")
	d.Insert(hashFromByte(0xFF), "c")

	target := hashFromByte(0x02)
	h, v, ok := d.FindClosest(target, nil)
	if !ok {
		t.Fatal("expected a result")
	}
	// distance(0x02, 0x00) = 0x02, distance(0x02, 0x01) = 0x03, distance(0x02,0xff) = 0xfd
	if v != "a" {
		t.Fatalf("expected closest entry %q, got %q (hash %s)", "a", v, h)
	}
}

func TestFindClosestNOrdersByDistanceAscending(t *testing.T) {
	d := NewDHTNode()
	d.Insert(hashFromByte(0x00), "a")
	d.Insert(hashFromByte(0x01), "b")
	d.Insert(hashFromByte(0x03), "c")

	got := d.FindClosestN(hashFromByte(0x00), 3, nil)
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	want := []string{"a", "b", "c"}
	for i, e := range got {
		if e.Value != want[i] {
			t.Fatalf("position %d: got %v, want %v", i, e.Value, want[i])
		}
	}
}

func TestRemoveCollapsesInternalNode(t *testing.T) {
	d := NewDHTNode()
	d.Insert(hashFromByte(0x00), "a")
	d.Insert(hashFromByte(0x80), "b")
	d.Remove(hashFromByte(0x80))

	got := d.FindClosestN(hashFromByte(0x00), 2, nil)
	if len(got) != 1 || got[0].Value != "a" {
		t.Fatalf("expected only %q to remain, got %v", "a", got)
	}
}

func TestCleanupRemovesFilteredEntries(t *testing.T) {
	d := NewDHTNode()
	d.Insert(hashFromByte(0x00), "keep")
	d.Insert(hashFromByte(0x01), "drop")

	d.Cleanup(func(h identity.Hash, v any) bool { return v == "keep" })

	got := d.FindClosestN(hashFromByte(0x00), 2, nil)
	if len(got) != 1 || got[0].Value != "keep" {
		t.Fatalf("expected only %q to survive cleanup, got %v", "keep", got)
	}
}
