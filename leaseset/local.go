package leaseset

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-i2p/i2p-router-core/identity"
)

// LocalLeaseSet2 is the mutable builder a destination uses to publish its
// own LeaseSet2, grounded on the teacher's rendezvous-record construction
// (onion/rendezvous.go) generalized to I2P's lease-list/property-bag shape.
type LocalLeaseSet2 struct {
	keys           *identity.PrivateKeys
	encryptionKeys []EncryptionKeyEntry
	leases         []Lease2
	properties     map[string]string
	unpublished    bool
}

// NewLocalLeaseSet2 starts a fresh builder for the given destination key
// bundle.
func NewLocalLeaseSet2(keys *identity.PrivateKeys) *LocalLeaseSet2 {
	return &LocalLeaseSet2{keys: keys, properties: map[string]string{}}
}

// AddEncryptionKey adds a typed encryption key this destination accepts
// garlic messages under (e.g. ECIES-X25519, spec.md §3).
func (l *LocalLeaseSet2) AddEncryptionKey(keyType uint16, key []byte) {
	l.encryptionKeys = append(l.encryptionKeys, EncryptionKeyEntry{Type: keyType, Key: append([]byte(nil), key...)})
}

// SetLeases replaces the published lease list, the operation the tunnel
// pool calls whenever its inbound-tunnel set changes.
func (l *LocalLeaseSet2) SetLeases(leases []Lease2) {
	l.leases = append([]Lease2(nil), leases...)
	SortLease2sByExpiration(l.leases)
	if len(l.leases) > MaxLeases {
		l.leases = l.leases[:MaxLeases]
	}
}

// SetUnpublished marks this leaseset as client-side-only: it must never be
// flooded to netdb, only handed directly to peers out of band (spec.md
// §3's unpublishedFlag).
func (l *LocalLeaseSet2) SetUnpublished(v bool) { l.unpublished = v }

// Sign serializes, signs, and re-parses the LeaseSet2, returning both forms
// so callers (destination.Publish) can flood the wire bytes while keeping
// the typed struct for local bookkeeping.
func (l *LocalLeaseSet2) Sign(now time.Time, expires time.Duration) (*LeaseSet2, []byte, error) {
	if len(l.leases) == 0 {
		return nil, nil, fmt.Errorf("leaseset2: cannot sign with zero leases")
	}

	var buf []byte
	buf = append(buf, byte(LS2Standard))
	buf = append(buf, l.keys.Identity.Bytes()...)
	buf = append(buf, putBE32(uint32(now.Unix()))...)

	expiresSecs := uint16(expires / time.Second)
	buf = append(buf, byte(expiresSecs>>8), byte(expiresSecs))

	var flags uint16
	if l.unpublished {
		flags |= flagUnpublished
	}
	buf = append(buf, byte(flags>>8), byte(flags))

	buf = append(buf, byte(len(l.encryptionKeys)))
	for _, k := range l.encryptionKeys {
		buf = append(buf, byte(k.Type>>8), byte(k.Type))
		buf = append(buf, byte(len(k.Key)>>8), byte(len(k.Key)))
		buf = append(buf, k.Key...)
	}

	propEncoded := encodeProps(l.properties)
	buf = append(buf, byte(len(propEncoded)>>8), byte(len(propEncoded)))
	buf = append(buf, propEncoded...)

	buf = append(buf, byte(len(l.leases)))
	for _, lease := range l.leases {
		buf = append(buf, lease.TunnelGateway[:]...)
		buf = append(buf, putBE32(lease.TunnelID)...)
		buf = append(buf, byte(lease.EndDate.Unix()>>24), byte(lease.EndDate.Unix()>>16), byte(lease.EndDate.Unix()>>8), byte(lease.EndDate.Unix()))
	}

	sig, err := l.keys.Sign(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("leaseset2: sign: %w", err)
	}
	full := append(append([]byte(nil), buf...), sig...)

	parsed, err := ParseLeaseSet2(full)
	if err != nil {
		return nil, nil, fmt.Errorf("leaseset2: re-parse signed leaseset: %w", err)
	}
	return parsed, full, nil
}

func encodeProps(props map[string]string) []byte {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(props[k])
		b.WriteByte(';')
	}
	return []byte(b.String())
}
