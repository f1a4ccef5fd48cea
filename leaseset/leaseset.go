package leaseset

import (
	"fmt"
	"time"

	"github.com/go-i2p/i2p-router-core/cryptoutil"
	"github.com/go-i2p/i2p-router-core/identity"
)

// MaxLeases is the hard cap on leases in a single LeaseSet, per spec.md §3.
const MaxLeases = 16

// LeaseSet is the legacy (pre-LS2) leaseset format: a destination identity,
// a single ElGamal encryption key, a vestigial legacy signing key, and up
// to 16 leases, outer-signed by the destination (spec.md §3, §4.4).
type LeaseSet struct {
	Destination   *identity.Identity
	EncryptionKey [256]byte
	SigningKey    [128]byte // legacy field, unused by modern destinations
	Leases        []Lease

	signedBytes []byte
	signature   []byte
}

// Hash returns the destination's identity hash, the key under which this
// leaseset is stored and looked up in netdb.
func (ls *LeaseSet) Hash() identity.Hash { return ls.Destination.Hash() }

// LeaseCount reports how many leases this leaseset carries, used by netdb
// to drop emptied-out leasesets (spec.md §4.10).
func (ls *LeaseSet) LeaseCount() int { return len(ls.Leases) }

// Parse parses a legacy LeaseSet record in one pass.
func Parse(b []byte) (*LeaseSet, error) {
	id, n, err := identity.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("leaseset: parse destination: %w", err)
	}
	pos := n

	if pos+256+128+1 > len(b) {
		return nil, fmt.Errorf("leaseset: truncated before lease count")
	}
	ls := &LeaseSet{Destination: id}
	copy(ls.EncryptionKey[:], b[pos:pos+256])
	pos += 256
	copy(ls.SigningKey[:], b[pos:pos+128])
	pos += 128

	numLeases := int(b[pos])
	pos++
	if numLeases > MaxLeases {
		return nil, fmt.Errorf("leaseset: %d leases exceeds max %d", numLeases, MaxLeases)
	}

	for i := 0; i < numLeases; i++ {
		if pos+44 > len(b) {
			return nil, fmt.Errorf("leaseset: truncated lease %d", i)
		}
		var l Lease
		copy(l.TunnelGateway[:], b[pos:pos+32])
		l.TunnelID = uint32(be32(b[pos+32 : pos+36]))
		l.EndDate = time.UnixMilli(int64(be64(b[pos+36 : pos+44])))
		pos += 44
		ls.Leases = append(ls.Leases, l)
	}

	sigLen := SignatureLen(id.SigningAlgo)
	if pos+sigLen > len(b) {
		return nil, fmt.Errorf("leaseset: truncated before signature")
	}
	ls.signedBytes = append([]byte(nil), b[:pos]...)
	ls.signature = append([]byte(nil), b[pos:pos+sigLen]...)

	SortLeasesByExpiration(ls.Leases)
	return ls, nil
}

// Verify checks the outer signature and drops the invariant from spec.md
// §4.4: a LeaseSet with zero remaining unexpired leases is not usable.
func (ls *LeaseSet) Verify(now time.Time) (bool, error) {
	ok, err := ls.Destination.Verify(ls.signedBytes, ls.signature)
	if err != nil || !ok {
		return false, err
	}
	for _, l := range ls.Leases {
		if l.EndDate.After(now) {
			return true, nil
		}
	}
	return false, nil
}

// SignatureLen returns the trailing signature size for algo, shared across
// the LeaseSet/LeaseSet2/RouterInfo codecs (spec.md §9's polymorphism note).
func SignatureLen(algo cryptoutil.SigningAlgo) int {
	switch algo {
	case cryptoutil.SigDSA_SHA1:
		return 40
	case cryptoutil.SigECDSA_P256:
		return 64
	case cryptoutil.SigECDSA_P384:
		return 96
	case cryptoutil.SigECDSA_P521:
		return 132
	default: // SigEdDSA25519, SigRedDSA25519
		return 64
	}
}
