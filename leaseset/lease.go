// Package leaseset implements I2P LeaseSet/LeaseSet2/EncryptedLeaseSet2
// parsing, verification, and local construction (spec.md §3, §4.4). It is
// grounded on the teacher's rendezvous-descriptor handling
// (onion/rendezvous.go, onion/descriptor.go) generalized from Tor's
// single-hop rendezvous-point record to I2P's multi-lease tunnel-gateway
// list, and on original_source/libi2pd/LeaseSet.cpp for wire-layout and
// invariant details the distilled spec only summarizes.
package leaseset

import (
	"sort"
	"time"

	"github.com/go-i2p/i2p-router-core/identity"
)

// Lease is one inbound-tunnel endpoint a destination publishes for clients
// to send to (spec.md §3: "{tunnelGateway, tunnelId, endDate}").
type Lease struct {
	TunnelGateway identity.Hash
	TunnelID      uint32
	EndDate       time.Time
}

// Lease2 is the LeaseSet2 variant: EndDate is a 4-byte seconds-since-epoch
// field rather than the legacy 8-byte millisecond date (spec.md §3).
type Lease2 struct {
	TunnelGateway identity.Hash
	TunnelID      uint32
	EndDate       time.Time
}

// SortLeasesByExpiration orders leases by descending expiration, the order
// spec.md §4.4 requires callers to select "the freshest lease first."
func SortLeasesByExpiration(leases []Lease) {
	sort.Slice(leases, func(i, j int) bool {
		return leases[i].EndDate.After(leases[j].EndDate)
	})
}

// SortLease2sByExpiration is the Lease2 analogue of SortLeasesByExpiration.
func SortLease2sByExpiration(leases []Lease2) {
	sort.Slice(leases, func(i, j int) bool {
		return leases[i].EndDate.After(leases[j].EndDate)
	})
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func be64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

func putBE32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func putBE64(v uint64) []byte {
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}
