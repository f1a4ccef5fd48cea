package routerinfo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-i2p/i2p-router-core/identity"
)

// Introducer is an SSU/SSU2 introducer tuple used for NAT traversal
// (spec.md §3: "{tag, iH, iExp}").
type Introducer struct {
	Tag     uint32
	Hash    identity.Hash
	Expires uint32 // seconds since epoch
}

// Address is one transport address record of a RouterInfo, per spec.md §3
// and the wire layout in spec.md §4.3.
type Address struct {
	Cost           byte
	Date           uint64 // 8-byte date field, legacy, usually 0
	TransportStyle string // "NTCP2", "SSU2"; unknown styles are skipped, not fatal
	Host           string
	Port           uint16
	StaticKey      [32]byte // NTCP2/SSU2 required
	HasStaticKey   bool
	IntroKey       [32]byte // SSU2 required
	HasIntroKey    bool
	Introducers    []Introducer
	Properties     map[string]string
}

// Published reports whether this address is usable: host+port specified,
// per spec.md §3's "address-presence rules."
func (a *Address) Published() bool {
	return a.Host != "" && a.Port != 0
}

// Valid checks the transport-specific required-key rules from spec.md §3:
// NTCP2/SSU2 require a static key; SSU2 additionally requires an intro key.
func (a *Address) Valid() bool {
	switch a.TransportStyle {
	case "NTCP2":
		return a.HasStaticKey
	case "SSU2":
		return a.HasStaticKey && a.HasIntroKey
	default:
		return true
	}
}

// parseAddress parses one address record starting at a "cost" byte,
// returning the address and bytes consumed, or (nil, n, nil) if the
// transport style is unrecognized (address skipped, not fatal, per
// spec.md §4.3: "Unknown transport styles cause the address to be skipped
// but not the descriptor.").
func parseAddress(b []byte) (*Address, int, error) {
	if len(b) < 9 {
		return nil, 0, fmt.Errorf("routerinfo: address record too short")
	}
	cost := b[0]
	date := be64(b[1:9])
	pos := 9

	styleEnd := indexByte(b[pos:], 0)
	if styleEnd < 0 {
		return nil, 0, fmt.Errorf("routerinfo: address transport style not null-terminated")
	}
	style := string(b[pos : pos+styleEnd])
	pos += styleEnd + 1

	if pos+2 > len(b) {
		return nil, 0, fmt.Errorf("routerinfo: address properties length truncated")
	}
	propLen := int(b[pos])<<8 | int(b[pos+1])
	pos += 2
	if pos+propLen > len(b) {
		return nil, 0, fmt.Errorf("routerinfo: address properties extend past buffer")
	}
	props := parseProperties(string(b[pos : pos+propLen]))
	pos += propLen

	a := &Address{Cost: cost, Date: date, TransportStyle: style, Properties: props}
	if style != "NTCP2" && style != "SSU2" && style != "SSU" {
		return nil, pos, nil // skipped, not fatal
	}

	a.Host = props["host"]
	if portStr, ok := props["port"]; ok {
		if p, err := strconv.ParseUint(portStr, 10, 16); err == nil {
			a.Port = uint16(p)
		}
	}
	if keyB64, ok := props["s"]; ok {
		if key, err := decodeI2PBase64(keyB64); err == nil && len(key) == 32 {
			copy(a.StaticKey[:], key)
			a.HasStaticKey = true
		}
	}
	if ikB64, ok := props["i"]; ok {
		if ik, err := decodeI2PBase64(ikB64); err == nil && len(ik) == 32 {
			copy(a.IntroKey[:], ik)
			a.HasIntroKey = true
		}
	}
	// Introducer tuples: itag0/ih0/iexp0, itag1/ih1/iexp1, itag2/ih2/iexp2.
	for i := 0; i < 3; i++ {
		tagKey := fmt.Sprintf("itag%d", i)
		hKey := fmt.Sprintf("ih%d", i)
		expKey := fmt.Sprintf("iexp%d", i)
		tagStr, ok1 := props[tagKey]
		hStr, ok2 := props[hKey]
		expStr, ok3 := props[expKey]
		if !ok1 || !ok2 || !ok3 {
			break
		}
		tag, err1 := strconv.ParseUint(tagStr, 10, 32)
		hBytes, err2 := decodeI2PBase64(hStr)
		exp, err3 := strconv.ParseUint(expStr, 10, 32)
		if err1 != nil || err2 != nil || err3 != nil || len(hBytes) != 32 {
			break
		}
		var intro Introducer
		intro.Tag = uint32(tag)
		copy(intro.Hash[:], hBytes)
		intro.Expires = uint32(exp)
		a.Introducers = append(a.Introducers, intro)
	}

	return a, pos, nil
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

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func be64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
