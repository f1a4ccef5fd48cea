package leaseset

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-i2p/i2p-router-core/identity"
)

// LeaseSet2Type distinguishes the standard and meta variants sharing the
// LS2 header layout (spec.md §3).
type LeaseSet2Type byte

const (
	LS2Standard LeaseSet2Type = 3
	LS2Meta     LeaseSet2Type = 7
)

// EncryptionKeyEntry is one entry in LS2's encryption-key list: unlike the
// legacy LeaseSet's single ElGamal key, LS2 carries a typed list so a
// destination can offer ECIES-X25519 alongside (or instead of) ElGamal
// (spec.md §3).
type EncryptionKeyEntry struct {
	Type uint16
	Key  []byte
}

// LeaseSet2 is the modern leaseset format: destination, published/expires
// timestamps, a properties bag, a list of typed encryption keys, and
// Lease2 entries with second-granularity expirations (spec.md §3, §4.4).
type LeaseSet2 struct {
	Type            LeaseSet2Type
	Destination     *identity.Identity
	Published       time.Time
	ExpiresSeconds  uint16 // offset added to Published, per wire format
	Flags           uint16
	EncryptionKeys  []EncryptionKeyEntry
	Properties      map[string]string
	Leases          []Lease2
	// MetaEntries holds {hash, cost} pairs for LS2Meta's "other leasesets
	// this destination also publishes under" list (spec.md §3); empty for
	// LS2Standard.
	MetaEntries []MetaEntry

	signedBytes []byte
	signature   []byte
}

// MetaEntry is one entry of a meta LeaseSet2's referenced-leaseset list.
type MetaEntry struct {
	Hash identity.Hash
	Cost byte
}

const (
	flagUnpublished = 1 << 0
	flagOfflineKeys = 1 << 1
)

// Unpublished reports the LS2 "do not flood to netdb" flag.
func (ls *LeaseSet2) Unpublished() bool { return ls.Flags&flagUnpublished != 0 }

// OfflineKeys reports whether this LS2 was signed via offline-key delegation.
func (ls *LeaseSet2) OfflineKeys() bool { return ls.Flags&flagOfflineKeys != 0 }

// Hash returns the destination's identity hash.
func (ls *LeaseSet2) Hash() identity.Hash { return ls.Destination.Hash() }

// LeaseCount reports how many leases this leaseset carries, used by netdb
// to drop emptied-out leasesets (spec.md §4.10).
func (ls *LeaseSet2) LeaseCount() int { return len(ls.Leases) }

// ParseLeaseSet2 parses a standard or meta LeaseSet2 record, dispatching on
// the leading type byte (spec.md §3).
func ParseLeaseSet2(b []byte) (*LeaseSet2, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("leaseset2: empty buffer")
	}
	lsType := LeaseSet2Type(b[0])
	if lsType != LS2Standard && lsType != LS2Meta {
		return nil, fmt.Errorf("leaseset2: unsupported type %d", lsType)
	}
	pos := 1

	id, n, err := identity.Parse(b[pos:])
	if err != nil {
		return nil, fmt.Errorf("leaseset2: parse destination: %w", err)
	}
	pos += n

	if pos+4+2+2 > len(b) {
		return nil, fmt.Errorf("leaseset2: truncated header")
	}
	publishedSecs := be32(b[pos : pos+4])
	pos += 4
	expires := uint16(b[pos])<<8 | uint16(b[pos+1])
	pos += 2
	flags := uint16(b[pos])<<8 | uint16(b[pos+1])
	pos += 2

	ls := &LeaseSet2{
		Type:           lsType,
		Destination:    id,
		Published:      time.Unix(int64(publishedSecs), 0),
		ExpiresSeconds: expires,
		Flags:          flags,
	}

	if ls.OfflineKeys() {
		// Offline-signature block: {expires(4), sigType(2), transientKey,
		// signature}. Length is algorithm-dependent; this build supports
		// only the EdDSA25519 transient case used elsewhere in this repo.
		if pos+4+2+32 > len(b) {
			return nil, fmt.Errorf("leaseset2: truncated offline block")
		}
		pos += 4 + 2 + 32 + SignatureLen(id.SigningAlgo)
	}

	if lsType == LS2Meta {
		if pos+2 > len(b) {
			return nil, fmt.Errorf("leaseset2: truncated meta entry count")
		}
		numEntries := int(b[pos])<<8 | int(b[pos+1])
		pos += 2
		for i := 0; i < numEntries; i++ {
			if pos+33 > len(b) {
				return nil, fmt.Errorf("leaseset2: truncated meta entry %d", i)
			}
			var me MetaEntry
			copy(me.Hash[:], b[pos:pos+32])
			me.Cost = b[pos+32]
			pos += 33
			ls.MetaEntries = append(ls.MetaEntries, me)
		}
	}

	if pos >= len(b) {
		return nil, fmt.Errorf("leaseset2: truncated before encryption key count")
	}
	numKeys := int(b[pos])
	pos++
	for i := 0; i < numKeys; i++ {
		if pos+4 > len(b) {
			return nil, fmt.Errorf("leaseset2: truncated encryption key %d header", i)
		}
		keyType := uint16(b[pos])<<8 | uint16(b[pos+1])
		keyLen := int(b[pos+2])<<8 | int(b[pos+3])
		pos += 4
		if pos+keyLen > len(b) {
			return nil, fmt.Errorf("leaseset2: truncated encryption key %d body", i)
		}
		ls.EncryptionKeys = append(ls.EncryptionKeys, EncryptionKeyEntry{Type: keyType, Key: append([]byte(nil), b[pos:pos+keyLen]...)})
		pos += keyLen
	}

	if pos+2 > len(b) {
		return nil, fmt.Errorf("leaseset2: truncated before properties length")
	}
	propLen := int(b[pos])<<8 | int(b[pos+1])
	pos += 2
	if pos+propLen > len(b) {
		return nil, fmt.Errorf("leaseset2: properties extend past buffer")
	}
	ls.Properties = parseProperties(string(b[pos : pos+propLen]))
	pos += propLen

	if lsType == LS2Standard {
		if pos >= len(b) {
			return nil, fmt.Errorf("leaseset2: truncated before lease count")
		}
		numLeases := int(b[pos])
		pos++
		if numLeases > MaxLeases {
			return nil, fmt.Errorf("leaseset2: %d leases exceeds max %d", numLeases, MaxLeases)
		}
		for i := 0; i < numLeases; i++ {
			if pos+40 > len(b) {
				return nil, fmt.Errorf("leaseset2: truncated lease %d", i)
			}
			var l Lease2
			copy(l.TunnelGateway[:], b[pos:pos+32])
			l.TunnelID = be32(b[pos+32 : pos+36])
			l.EndDate = time.Unix(int64(be32(b[pos+36:pos+40])), 0)
			pos += 40
			ls.Leases = append(ls.Leases, l)
		}
		SortLease2sByExpiration(ls.Leases)
	}

	sigLen := SignatureLen(id.SigningAlgo)
	if pos+sigLen > len(b) {
		return nil, fmt.Errorf("leaseset2: truncated before signature")
	}
	ls.signedBytes = append([]byte(nil), b[:pos]...)
	ls.signature = append([]byte(nil), b[pos:pos+sigLen]...)

	return ls, nil
}

// Verify checks the outer signature and (for standard LS2) the "at least
// one unexpired lease" invariant from spec.md §4.4.
func (ls *LeaseSet2) Verify(now time.Time) (bool, error) {
	ok, err := ls.Destination.Verify(ls.signedBytes, ls.signature)
	if err != nil || !ok {
		return false, err
	}
	if ls.Type == LS2Meta {
		return true, nil
	}
	for _, l := range ls.Leases {
		if l.EndDate.After(now) {
			return true, nil
		}
	}
	return false, nil
}

// ExpirationTime returns Published+ExpiresSeconds, the absolute expiration
// used for the overall LS2 record (distinct from individual lease expiries).
func (ls *LeaseSet2) ExpirationTime() time.Time {
	return ls.Published.Add(time.Duration(ls.ExpiresSeconds) * time.Second)
}

func parseProperties(s string) map[string]string {
	out := make(map[string]string)
	for _, kv := range strings.Split(s, ";") {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		out[parts[0]] = parts[1]
	}
	return out
}
