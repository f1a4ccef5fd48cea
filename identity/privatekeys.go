package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/go-i2p/i2p-router-core/cryptoutil"
)

// OfflineSignature delegates signing to a short-lived transient key, per
// spec.md §3: "timestamp, transient-signing-algorithm, transient public
// key, offline signature over the transient key."
type OfflineSignature struct {
	Expires         uint32 // seconds since epoch, 4-byte field per i2pd
	TransientAlgo   cryptoutil.SigningAlgo
	TransientPublic []byte
	Signature       []byte // signed by the long-term key over (expires||algo||transientPublic)
}

// PrivateKeys is the full identity plus private key material, optionally
// delegating to an offline-signed transient key (spec.md §3).
type PrivateKeys struct {
	Identity             *Identity
	EncryptionPrivateKey []byte // 256 bytes
	SigningPrivateKey    []byte // variable length; all-zero when Offline != nil
	Offline              *OfflineSignature
	transientPriv        []byte // only set in-process when Offline != nil; never serialized
}

// CreateOffline produces a new PrivateKeys bundle whose long-term signing
// key is removed from the signing path: the long-term key signs only the
// offline block once, and all subsequent signatures use a fresh transient
// key of transientAlgo, per spec.md §4.2.
func CreateOffline(id *Identity, longTermSigningPriv []byte, expires time.Time, transientAlgo cryptoutil.SigningAlgo) (*PrivateKeys, error) {
	if transientAlgo != cryptoutil.SigEdDSA25519 {
		return nil, fmt.Errorf("identity: CreateOffline only supports EdDSA25519 transient keys in this build")
	}
	transientPub, transientPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate transient key: %w", err)
	}

	expSecs := uint32(expires.Unix())
	toSign := make([]byte, 0, 4+2+len(transientPub))
	toSign = append(toSign, be32(expSecs)...)
	toSign = append(toSign, be16(uint16(transientAlgo))...)
	toSign = append(toSign, transientPub...)

	longSigner, err := cryptoutil.NewEd25519Signer(longTermSigningPriv)
	if err != nil {
		return nil, fmt.Errorf("identity: build long-term signer: %w", err)
	}
	sig, err := longSigner.Sign(toSign)
	if err != nil {
		return nil, fmt.Errorf("identity: sign offline block: %w", err)
	}

	pk := &PrivateKeys{
		Identity:          id,
		SigningPrivateKey: make([]byte, len(longTermSigningPriv)), // all-zero: invariant from spec.md §3
		Offline: &OfflineSignature{
			Expires:         expSecs,
			TransientAlgo:   transientAlgo,
			TransientPublic: transientPub,
			Signature:       sig,
		},
		transientPriv: transientPriv,
	}
	return pk, nil
}

// Sign signs msg, chaining through the offline block first if present, per
// spec.md §3's invariant that "verification of any signature chains
// through the offline block first."
func (pk *PrivateKeys) Sign(msg []byte) ([]byte, error) {
	if pk.Offline != nil {
		signer, err := cryptoutil.NewEd25519Signer(pk.transientPriv)
		if err != nil {
			return nil, fmt.Errorf("identity: transient signer: %w", err)
		}
		return signer.Sign(msg)
	}
	signer, err := cryptoutil.NewEd25519Signer(pk.SigningPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("identity: long-term signer: %w", err)
	}
	return signer.Sign(msg)
}

// VerifyChain verifies sig over msg, validating the offline delegation
// first when present: the long-term identity key must have signed the
// offline block, and the offline block's transient key must not be
// expired, before the transient key's signature over msg is checked.
func VerifyChain(id *Identity, offline *OfflineSignature, msg, sig []byte, now time.Time) (bool, error) {
	if offline == nil {
		return id.Verify(msg, sig)
	}
	if uint32(now.Unix()) > offline.Expires {
		return false, fmt.Errorf("identity: offline signature expired at %d", offline.Expires)
	}
	toVerify := make([]byte, 0, 4+2+len(offline.TransientPublic))
	toVerify = append(toVerify, be32(offline.Expires)...)
	toVerify = append(toVerify, be16(uint16(offline.TransientAlgo))...)
	toVerify = append(toVerify, offline.TransientPublic...)
	ok, err := id.Verify(toVerify, offline.Signature)
	if err != nil || !ok {
		return false, fmt.Errorf("identity: offline block signature invalid: %w", err)
	}
	v, err := cryptoutil.NewVerifier(offline.TransientAlgo, offline.TransientPublic)
	if err != nil {
		return false, err
	}
	return v.Verify(msg, sig), nil
}

func be32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func be16(v uint16) []byte {
	return []byte{byte(v >> 8), byte(v)}
}
