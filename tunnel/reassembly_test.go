package tunnel

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestReassemblyIsOrderIndependent(t *testing.T) {
	want := []byte("the quick brown fox jumps over the lazy dog")
	fragSize := 7
	var frags [][]byte
	for i := 0; i < len(want); i += fragSize {
		end := i + fragSize
		if end > len(want) {
			end = len(want)
		}
		frags = append(frags, want[i:end])
	}

	order := rand.Perm(len(frags))
	r := NewReassembler(1)
	for i, idx := range order {
		r.AddFragment(idx, frags[idx], idx == len(frags)-1)
		if i < len(order)-1 && r.Complete() && idx != len(frags)-1 {
			// fine: completeness only declared once "last" fragment seen
		}
	}
	if !r.Complete() {
		t.Fatal("expected reassembly complete after all fragments added")
	}
	got, err := r.Assemble()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestReassemblyIncompleteWithoutLastFragment(t *testing.T) {
	r := NewReassembler(2)
	r.AddFragment(0, []byte("a"), false)
	r.AddFragment(1, []byte("b"), false)
	if r.Complete() {
		t.Fatal("should not be complete without a marked-last fragment")
	}
	if _, err := r.Assemble(); err == nil {
		t.Fatal("expected error assembling incomplete reassembly")
	}
}
