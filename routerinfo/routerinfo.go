// Package routerinfo implements the I2P router descriptor codec: parsing,
// invariant checking, and capability extraction (spec.md §3, §4.3). It is
// grounded on the teacher's descriptor package (descriptor/descriptor.go),
// generalized from Tor's line-oriented plaintext descriptor format to I2P's
// length-prefixed binary one, and on original_source/libi2pd/RouterInfo.cpp
// for field order and invariant details the distilled spec only summarizes.
package routerinfo

import (
	"fmt"
	"time"

	"github.com/go-i2p/i2p-router-core/cryptoutil"
	"github.com/go-i2p/i2p-router-core/identity"
)

// MaxDescriptorSize is the hard size cap from spec.md §4.3.
const MaxDescriptorSize = 3072

// RouterInfo is a parsed router descriptor (spec.md §3).
type RouterInfo struct {
	Identity     *identity.Identity
	Timestamp    time.Time
	Addresses    []*Address
	Capabilities Capabilities
	CapsRaw      string
	FamilyName   string
	FamilySig    []byte
	Version      string
	NetID        int

	// Reachable reflects the invariants enforced during parse (spec.md
	// §4.3): an otherwise well-formed descriptor that fails one of them is
	// kept (so it can still be logged/inspected) but marked unreachable
	// rather than discarded outright, mirroring i2pd's RouterInfo::SetUnreachable.
	Reachable bool

	signedBytes []byte
	signature   []byte
}

// Hash returns the identity hash of this router.
func (ri *RouterInfo) Hash() identity.Hash { return ri.Identity.Hash() }

// Parse parses a full RouterInfo descriptor in one pass, per spec.md §4.3.
func Parse(b []byte, expectedNetID int) (*RouterInfo, error) {
	if len(b) > MaxDescriptorSize {
		return nil, fmt.Errorf("routerinfo: descriptor is %d bytes, exceeds %d", len(b), MaxDescriptorSize)
	}

	id, n, err := identity.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("routerinfo: parse identity: %w", err)
	}
	pos := n

	if pos+8 > len(b) {
		return nil, fmt.Errorf("routerinfo: truncated before timestamp")
	}
	tsMillis := be64(b[pos : pos+8])
	pos += 8
	ri := &RouterInfo{
		Identity:  id,
		Timestamp: time.UnixMilli(int64(tsMillis)),
		NetID:     expectedNetID,
		Reachable: true,
	}

	if pos >= len(b) {
		return nil, fmt.Errorf("routerinfo: truncated before address count")
	}
	numAddrs := int(b[pos])
	pos++

	for i := 0; i < numAddrs; i++ {
		addr, consumed, err := parseAddress(b[pos:])
		if err != nil {
			return nil, fmt.Errorf("routerinfo: address %d: %w", i, err)
		}
		pos += consumed
		if addr != nil {
			ri.Addresses = append(ri.Addresses, addr)
		}
	}

	if pos >= len(b) {
		return nil, fmt.Errorf("routerinfo: truncated before peer count")
	}
	numPeers := int(b[pos])
	pos++
	pos += numPeers * 32 // peer hashes are present on the wire but ignored, per spec.md §4.3

	propsEnd := len(b) - signatureLen(id.SigningAlgo)
	if propsEnd < pos {
		return nil, fmt.Errorf("routerinfo: truncated before properties/signature")
	}
	props := parseMapping(b[pos:propsEnd])
	ri.signedBytes = append([]byte(nil), b[:propsEnd]...)
	ri.signature = append([]byte(nil), b[propsEnd:]...)

	ri.CapsRaw = props["caps"]
	ri.Capabilities = ParseCapabilities(ri.CapsRaw, ri.Timestamp)
	ri.Version = props["router.version"]
	if fam, ok := props["family"]; ok {
		ri.FamilyName = fam
	}
	if famSig, ok := props["family.sig"]; ok {
		if sig, err := decodeI2PBase64(famSig); err == nil {
			ri.FamilySig = sig
		}
	}

	if ok, err := ri.Identity.Verify(ri.signedBytes, ri.signature); err != nil || !ok {
		return nil, fmt.Errorf("routerinfo: descriptor signature verification failed")
	}
	ri.enforceInvariants(props, expectedNetID)
	return ri, nil
}

// enforceInvariants applies spec.md §4.3's reject/unreachable rules. A
// descriptor that fails signature verification is a hard parse error (the
// bytes are meaningless; Parse rejects it before calling this); everything
// else downgrades Reachable instead of discarding the descriptor, matching
// i2pd's behavior of still indexing an unreachable router (so it isn't
// re-fetched every lookup).
func (ri *RouterInfo) enforceInvariants(props map[string]string, expectedNetID int) {
	if netIDStr, present := props["netId"]; present {
		if netIDStr != fmt.Sprintf("%d", expectedNetID) {
			ri.Reachable = false
		}
	}

	if ri.Identity.SigningAlgo.IsRSA() {
		ri.Reachable = false
	}
	if ri.Capabilities.Floodfill && ri.Identity.SigningAlgo == cryptoutil.SigDSA_SHA1 {
		ri.Reachable = false
	}

	anySupported := false
	for _, a := range ri.Addresses {
		if a.Published() && a.Valid() {
			anySupported = true
		}
	}
	if !anySupported {
		ri.Reachable = false
	}
}

// VerifySignature re-checks the descriptor signature independently of the
// cached Reachable flag, for callers (e.g. netdb store handlers) that need
// a fresh, explicit boolean rather than the parse-time invariant summary.
func (ri *RouterInfo) VerifySignature() (bool, error) {
	return ri.Identity.Verify(ri.signedBytes, ri.signature)
}

// WithinTimestampWindow checks the [now-27h, now+2min] freshness rule for
// remote descriptors (spec.md §3).
func (ri *RouterInfo) WithinTimestampWindow(now time.Time) bool {
	return ri.Timestamp.After(now.Add(-27*time.Hour)) && ri.Timestamp.Before(now.Add(2*time.Minute))
}

// signatureLen returns the trailing signature size for each recognized
// algorithm, per the sizes in spec.md §9's polymorphism note and
// cryptoutil's Verifier implementations.
func signatureLen(algo cryptoutil.SigningAlgo) int {
	switch algo {
	case cryptoutil.SigDSA_SHA1:
		return 40
	case cryptoutil.SigECDSA_P256:
		return 64
	case cryptoutil.SigECDSA_P384:
		return 96
	case cryptoutil.SigECDSA_P521:
		return 132
	case cryptoutil.SigEdDSA25519, cryptoutil.SigRedDSA25519:
		return 64
	default:
		return 64
	}
}

func parseMapping(b []byte) map[string]string {
	return parseProperties(string(b))
}
