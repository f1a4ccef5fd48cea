package routerinfo

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-i2p/i2p-router-core/identity"
)

// LocalRouterInfo is the mutable builder for this router's own descriptor,
// grounded on the teacher's descriptor-signing flow in directory/keycert.go
// generalized to I2P's address/property model (spec.md §4.3's
// "LocalRouterInfo" operations: enable/disable transport, add/remove
// introducer, re-sign).
type LocalRouterInfo struct {
	keys       *identity.PrivateKeys
	addresses  []*Address
	caps       Capabilities
	version    string
	netID      int
	familyName string
	familySig  []byte
}

// NewLocalRouterInfo starts a fresh local descriptor builder for the given
// identity/key bundle.
func NewLocalRouterInfo(keys *identity.PrivateKeys, netID int, version string) *LocalRouterInfo {
	return &LocalRouterInfo{keys: keys, netID: netID, version: version}
}

// SetCapabilities replaces the capability set (floodfill flag, bandwidth
// tier, congestion, hidden/reachable flags).
func (l *LocalRouterInfo) SetCapabilities(c Capabilities) { l.caps = c }

// SetCongestion updates only the congestion portion of the capability set,
// the operation netdb's periodic self-check calls as load changes.
func (l *LocalRouterInfo) SetCongestion(level CongestionLevel) { l.caps.Congestion = level }

// AddNTCP2Address adds (or replaces, if one already exists for the same
// host family) an NTCP2 address record.
func (l *LocalRouterInfo) AddNTCP2Address(host string, port uint16, staticKey [32]byte) {
	l.removeAddressesOfStyle("NTCP2", addrFamily(host))
	l.addresses = append(l.addresses, &Address{
		TransportStyle: "NTCP2",
		Host:           host,
		Port:           port,
		StaticKey:      staticKey,
		HasStaticKey:   true,
		Properties:     map[string]string{},
	})
}

// AddSSU2Address adds (or replaces) an SSU2 address record for the given
// host family, with its static and intro keys.
func (l *LocalRouterInfo) AddSSU2Address(host string, port uint16, staticKey, introKey [32]byte) {
	l.removeAddressesOfStyle("SSU2", addrFamily(host))
	l.addresses = append(l.addresses, &Address{
		TransportStyle: "SSU2",
		Host:           host,
		Port:           port,
		StaticKey:      staticKey,
		HasStaticKey:   true,
		IntroKey:       introKey,
		HasIntroKey:    true,
		Properties:     map[string]string{},
	})
}

// RemoveTransport drops every address of the given style and host family
// ("v4" or "v6"), the operation behind spec.md §4.3's disable-v4/disable-v6
// controls.
func (l *LocalRouterInfo) RemoveTransport(style, family string) {
	l.removeAddressesOfStyle(style, family)
}

func (l *LocalRouterInfo) removeAddressesOfStyle(style, family string) {
	kept := l.addresses[:0]
	for _, a := range l.addresses {
		if a.TransportStyle == style && addrFamily(a.Host) == family {
			continue
		}
		kept = append(kept, a)
	}
	l.addresses = kept
}

// AddIntroducer appends an SSU2 introducer tuple to the first matching SSU2
// address (host family chosen by the caller, since a router may publish
// separate v4/v6 SSU2 addresses with independent introducer sets).
func (l *LocalRouterInfo) AddIntroducer(family string, intro Introducer) error {
	for _, a := range l.addresses {
		if a.TransportStyle != "SSU2" || addrFamily(a.Host) != family {
			continue
		}
		if len(a.Introducers) >= 3 {
			a.Introducers = a.Introducers[1:] // drop oldest, per spec.md §4.3 introducer churn
		}
		a.Introducers = append(a.Introducers, intro)
		return nil
	}
	return fmt.Errorf("routerinfo: no SSU2 address for family %q to attach introducer", family)
}

// RemoveIntroducer drops any introducer tuple matching hash across all SSU2
// addresses, called when an introducer becomes unreachable.
func (l *LocalRouterInfo) RemoveIntroducer(hash identity.Hash) {
	for _, a := range l.addresses {
		kept := a.Introducers[:0]
		for _, in := range a.Introducers {
			if in.Hash != hash {
				kept = append(kept, in)
			}
		}
		a.Introducers = kept
	}
}

func addrFamily(host string) string {
	if strings.Contains(host, ":") {
		return "v6"
	}
	return "v4"
}

// Sign serializes and signs the descriptor, returning both the finished
// RouterInfo and its wire bytes. Re-running Sign after any mutator call is
// how this repo re-publishes a changed descriptor (spec.md §4.3).
func (l *LocalRouterInfo) Sign(now time.Time) (*RouterInfo, []byte, error) {
	var buf []byte
	buf = append(buf, l.keys.Identity.Bytes()...)
	buf = append(buf, be64Bytes(uint64(now.UnixMilli()))...)

	buf = append(buf, byte(len(l.addresses)))
	for _, a := range l.addresses {
		buf = append(buf, encodeAddress(a)...)
	}
	buf = append(buf, 0) // peer-hash count, always 0 (spec.md §4.3: field is vestigial)

	props := l.properties()
	buf = append(buf, encodeProperties(props)...)

	sig, err := l.keys.Sign(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("routerinfo: sign: %w", err)
	}
	full := append(append([]byte(nil), buf...), sig...)

	ri, err := Parse(full, l.netID)
	if err != nil {
		return nil, nil, fmt.Errorf("routerinfo: re-parse signed descriptor: %w", err)
	}
	return ri, full, nil
}

func (l *LocalRouterInfo) properties() map[string]string {
	props := map[string]string{
		"caps":           l.caps.String(),
		"router.version": l.version,
		"netId":          strconv.Itoa(l.netID),
	}
	if l.familyName != "" {
		props["family"] = l.familyName
	}
	if l.familySig != nil {
		props["family.sig"] = encodeI2PBase64(l.familySig)
	}
	return props
}

func encodeAddress(a *Address) []byte {
	var buf []byte
	buf = append(buf, a.Cost)
	buf = append(buf, be64Bytes(a.Date)...)
	buf = append(buf, []byte(a.TransportStyle)...)
	buf = append(buf, 0)

	props := map[string]string{}
	for k, v := range a.Properties {
		props[k] = v
	}
	if a.Host != "" {
		props["host"] = a.Host
	}
	if a.Port != 0 {
		props["port"] = strconv.Itoa(int(a.Port))
	}
	if a.HasStaticKey {
		props["s"] = encodeI2PBase64(a.StaticKey[:])
	}
	if a.HasIntroKey {
		props["i"] = encodeI2PBase64(a.IntroKey[:])
	}
	for i, in := range a.Introducers {
		props[fmt.Sprintf("itag%d", i)] = strconv.FormatUint(uint64(in.Tag), 10)
		props[fmt.Sprintf("ih%d", i)] = encodeI2PBase64(in.Hash[:])
		props[fmt.Sprintf("iexp%d", i)] = strconv.FormatUint(uint64(in.Expires), 10)
	}

	encoded := encodeProperties(props)
	buf = append(buf, byte(len(encoded)>>8), byte(len(encoded)))
	buf = append(buf, encoded...)
	return buf
}

func encodeProperties(props map[string]string) []byte {
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

func be64Bytes(v uint64) []byte {
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}
