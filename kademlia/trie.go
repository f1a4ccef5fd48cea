// Package kademlia implements the binary trie of RouterInfo references
// used for floodfill selection (spec.md §4.9). It is grounded on the
// teacher's hidden-service directory selection (onion/hsdir.go) and path
// selection (pathselect/pathselect.go), generalized from Tor's
// consensus-index-based HSDir ring to I2P's hash-bit binary trie.
package kademlia

import (
	"github.com/go-i2p/i2p-router-core/identity"
)

// Filter decides whether a trie entry is eligible for a given query, used
// by FindClosest/Cleanup to skip or expire entries without the trie
// needing to know about RouterInfo semantics.
type Filter func(hash identity.Hash, value any) bool

type node struct {
	// leaf holds (hash, value) when this node is a leaf; both nil/zero for
	// an internal node, which instead has left/right children.
	hash      identity.Hash
	value     any
	isLeaf    bool
	left      *node
	right     *node
}

// DHTNode is a binary trie of values keyed by their identity hash,
// descended bit-by-bit from the most significant bit (spec.md §4.9).
type DHTNode struct {
	root *node
}

// NewDHTNode returns an empty trie.
func NewDHTNode() *DHTNode { return &DHTNode{} }

// Insert places value under hash, promoting an existing leaf to an
// internal node at the first bit the two hashes disagree on, per spec.md
// §4.9: "on a leaf with an existing value, promotes the leaf to an
// internal node and places both values at the next distinguishing level."
func (d *DHTNode) Insert(hash identity.Hash, value any) {
	d.root = insert(d.root, hash, value, 0)
}

func insert(n *node, hash identity.Hash, value any, level int) *node {
	if n == nil {
		return &node{hash: hash, value: value, isLeaf: true}
	}
	if n.isLeaf {
		if n.hash == hash {
			n.value = value
			return n
		}
		// Promote: create an internal node and re-insert both the
		// existing leaf and the new entry, descending until they diverge.
		existing := n
		internal := &node{}
		return insertBoth(internal, existing.hash, existing.value, hash, value, level)
	}
	if hash.Bit(level) == 0 {
		n.left = insert(n.left, hash, value, level+1)
	} else {
		n.right = insert(n.right, hash, value, level+1)
	}
	return n
}

func insertBoth(internal *node, h1 identity.Hash, v1 any, h2 identity.Hash, v2 any, level int) *node {
	b1, b2 := h1.Bit(level), h2.Bit(level)
	if b1 == b2 {
		child := insertBoth(&node{}, h1, v1, h2, v2, level+1)
		if b1 == 0 {
			internal.left = child
		} else {
			internal.right = child
		}
		return internal
	}
	leaf1 := &node{hash: h1, value: v1, isLeaf: true}
	leaf2 := &node{hash: h2, value: v2, isLeaf: true}
	if b1 == 0 {
		internal.left, internal.right = leaf1, leaf2
	} else {
		internal.left, internal.right = leaf2, leaf1
	}
	return internal
}

// Remove deletes the entry for hash, collapsing any internal node left
// with a single child, per spec.md §4.9.
func (d *DHTNode) Remove(hash identity.Hash) {
	d.root = remove(d.root, hash, 0)
}

func remove(n *node, hash identity.Hash, level int) *node {
	if n == nil {
		return nil
	}
	if n.isLeaf {
		if n.hash == hash {
			return nil
		}
		return n
	}
	if hash.Bit(level) == 0 {
		n.left = remove(n.left, hash, level+1)
	} else {
		n.right = remove(n.right, hash, level+1)
	}
	if n.left == nil {
		return n.right
	}
	if n.right == nil {
		return n.left
	}
	return n
}

// FindClosest returns the single filter-passing entry closest to target by
// XOR distance, descending toward the side target.Bit(level) indicates and
// falling back to the other side when that subtree yields nothing (spec.md
// §4.9).
func (d *DHTNode) FindClosest(target identity.Hash, filter Filter) (identity.Hash, any, bool) {
	results := d.FindClosestN(target, 1, filter)
	if len(results) == 0 {
		return identity.Hash{}, nil, false
	}
	return results[0].Hash, results[0].Value, true
}

// Entry is one result of FindClosestN.
type Entry struct {
	Hash  identity.Hash
	Value any
}

// FindClosestN collects up to n filter-passing entries in ascending
// XOR-distance order from target (spec.md §4.9).
func (d *DHTNode) FindClosestN(target identity.Hash, n int, filter Filter) []Entry {
	var out []Entry
	collect(d.root, target, 0, filter, &out)
	sortByDistance(out, target)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func collect(n *node, target identity.Hash, level int, filter Filter, out *[]Entry) {
	if n == nil {
		return
	}
	if n.isLeaf {
		if filter == nil || filter(n.hash, n.value) {
			*out = append(*out, Entry{Hash: n.hash, Value: n.value})
		}
		return
	}
	preferred, other := n.left, n.right
	if target.Bit(level) == 1 {
		preferred, other = n.right, n.left
	}
	collect(preferred, target, level+1, filter, out)
	collect(other, target, level+1, filter, out)
}

func sortByDistance(entries []Entry, target identity.Hash) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0; j-- {
			di := entries[j].Hash.Xor(target)
			dj := entries[j-1].Hash.Xor(target)
			if lessHash(di, dj) {
				entries[j], entries[j-1] = entries[j-1], entries[j]
			} else {
				break
			}
		}
	}
}

func lessHash(a, b identity.Hash) bool { return a.Less(b) }

// Cleanup removes every entry for which filter returns false, used to
// expire stale routers (spec.md §4.9).
func (d *DHTNode) Cleanup(filter Filter) {
	d.root = cleanup(d.root, filter)
}

func cleanup(n *node, filter Filter) *node {
	if n == nil {
		return nil
	}
	if n.isLeaf {
		if filter(n.hash, n.value) {
			return n
		}
		return nil
	}
	n.left = cleanup(n.left, filter)
	n.right = cleanup(n.right, filter)
	if n.left == nil {
		return n.right
	}
	if n.right == nil {
		return n.left
	}
	return n
}
