package leaseset

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/go-i2p/i2p-router-core/cryptoutil"
	"github.com/go-i2p/i2p-router-core/identity"
)

// EncryptedLS2Type is the wire type tag for EncryptedLeaseSet2 records,
// distinct from the plain LeaseSet2 standard/meta tags.
const EncryptedLS2Type LeaseSet2Type = 5

// AuthScheme selects how (or whether) EncryptedLeaseSet2's outer layer
// gates access to the per-client cookie that unlocks the inner layer,
// per spec.md §4.4's client-auth step.
type AuthScheme byte

const (
	AuthNone AuthScheme = 0
	AuthDH   AuthScheme = 1
	AuthPSK  AuthScheme = 3
)

// ErrClientCookieNotFound is returned when a caller's secret does not match
// any per-client record in the outer plaintext — spec.md §8's Universal
// Invariant names this exact condition for unauthorized secrets.
var ErrClientCookieNotFound = fmt.Errorf("leaseset2: client cookie not found")

// ClientAuth is one authorized client's PSK-auth credential, used both to
// publish (Encrypt) and to locate/unwrap a client's own cookie record
// (Decrypt).
type ClientAuth struct {
	Secret [32]byte
}

// clientRecordSize is one per-client record in the outer plaintext:
// an 8-byte scan ID plus a 32-byte ChaCha20-wrapped cookie.
const clientRecordSize = 8 + 32

// EncryptedLeaseSet2 is a leaseset published and looked up under a blinded
// key, with the real LeaseSet2 payload wrapped in two ChaCha20 layers
// (spec.md §4.4's 5-step procedure). Lookups know only the blinded
// destination (via its base32/base64 address); only holders of the
// original identity's signing key — and, when client-auth is in effect,
// the right per-client secret — can recover the inner leaseset.
type EncryptedLeaseSet2 struct {
	BlindedKey     [32]byte
	Published      uint32 // seconds since epoch, part of the subcredential input
	ExpiresSeconds uint16
	Flags          uint16

	outerSalt [32]byte
	outerCiph []byte
	signature []byte
}

// BlindedHash returns the identity hash this record is stored/looked-up
// under: SHA-256 of the blinded public key, the same Hash construction used
// for ordinary identities (spec.md §4.4).
func (e *EncryptedLeaseSet2) BlindedHash() identity.Hash {
	return identity.Hash(sha256.Sum256(e.BlindedKey[:]))
}

// ParseEncryptedLeaseSet2 parses the outer envelope without decrypting the
// inner payload; callers that hold the original identity call Decrypt next.
func ParseEncryptedLeaseSet2(b []byte) (*EncryptedLeaseSet2, error) {
	const fixedLen = 1 + 32 + 4 + 2 + 2 + 2
	if len(b) < fixedLen {
		return nil, fmt.Errorf("leaseset2: encrypted record too short")
	}
	if LeaseSet2Type(b[0]) != EncryptedLS2Type {
		return nil, fmt.Errorf("leaseset2: not an encrypted leaseset2 record (type %d)", b[0])
	}
	pos := 1
	e := &EncryptedLeaseSet2{}
	copy(e.BlindedKey[:], b[pos:pos+32])
	pos += 32
	e.Published = be32(b[pos : pos+4])
	pos += 4
	e.ExpiresSeconds = uint16(b[pos])<<8 | uint16(b[pos+1])
	pos += 2
	e.Flags = uint16(b[pos])<<8 | uint16(b[pos+1])
	pos += 2
	outerLen := int(uint16(b[pos])<<8 | uint16(b[pos+1]))
	pos += 2

	if outerLen < 32 || len(b)-pos < outerLen+64 {
		return nil, fmt.Errorf("leaseset2: truncated encrypted payload/signature")
	}
	copy(e.outerSalt[:], b[pos:pos+32])
	e.outerCiph = append([]byte(nil), b[pos+32:pos+outerLen]...)
	pos += outerLen
	e.signature = append([]byte(nil), b[pos:pos+64]...)
	return e, nil
}

// Decrypt reverses the 5-step EncryptedLeaseSet2 procedure (spec.md §4.4):
//  1. verify the outer envelope's signature under the blinded key;
//  2. compute the subcredential from the original identity and the blinded
//     key carried in the record, appending the publish timestamp;
//  3. derive keys1 = HKDF(outer-salt, subcredential‖timestamp, "ELS2_L1K",
//     44) and ChaCha20-decrypt the outer ciphertext;
//  4. read the outer plaintext's auth-flag; for DH/PSK client-auth, scan
//     the per-client records for clientAuth's derived ID and recover its
//     32-byte cookie, or fail with ErrClientCookieNotFound;
//  5. derive keys2 = HKDF(inner-salt, (cookie‖)subcredential‖timestamp,
//     "ELS2_L2K", 44), ChaCha20-decrypt the inner payload, and parse/verify
//     it as an ordinary (unblinded) LeaseSet2.
//
// clientAuth is nil for a no-auth publication; DH client-auth is not
// implemented in this build (see DESIGN.md) and returns an explicit error.
func (e *EncryptedLeaseSet2) Decrypt(originalID *identity.Identity, clientAuth *ClientAuth) (*LeaseSet2, error) {
	signed := e.signedPrefix()

	blindedVerifier, err := cryptoutil.NewVerifier(cryptoutil.SigEdDSA25519, e.BlindedKey[:])
	if err != nil {
		return nil, fmt.Errorf("leaseset2: blinded verifier: %w", err)
	}
	if !blindedVerifier.Verify(signed, e.signature) {
		return nil, fmt.Errorf("leaseset2: blinded signature invalid")
	}

	subcred, err := identity.GetSubcredential(originalID, e.BlindedKey)
	if err != nil {
		return nil, fmt.Errorf("leaseset2: subcredential: %w", err)
	}
	outerIKM := append(append([]byte(nil), subcred[:]...), putBE32(e.Published)...)

	keys1, err := cryptoutil.HKDF(e.outerSalt[:], outerIKM, []byte("ELS2_L1K"), 44)
	if err != nil {
		return nil, fmt.Errorf("leaseset2: derive outer key: %w", err)
	}
	outerPlain, err := cryptoutil.ChaCha20XOR(keys1[:32], keys1[32:44], 0, e.outerCiph)
	if err != nil {
		return nil, fmt.Errorf("leaseset2: decrypt outer layer: %w", err)
	}
	if len(outerPlain) < 1+32+2 {
		return nil, fmt.Errorf("leaseset2: outer plaintext too short")
	}

	authFlag := AuthScheme(outerPlain[0])
	rest := outerPlain[1:]

	var cookie []byte
	switch authFlag {
	case AuthNone:
		// no per-client gating; rest begins with inner-salt directly.
	case AuthDH:
		return nil, fmt.Errorf("leaseset2: DH client-auth is not implemented in this build")
	case AuthPSK:
		if clientAuth == nil {
			return nil, ErrClientCookieNotFound
		}
		if len(rest) < 1 {
			return nil, fmt.Errorf("leaseset2: missing client-auth record count")
		}
		numClients := int(rest[0])
		rest = rest[1:]
		if len(rest) < numClients*clientRecordSize {
			return nil, fmt.Errorf("leaseset2: truncated client-auth records")
		}
		id, key, nonce, err := clientAuthKeyMaterial(*clientAuth, subcred, AuthPSK)
		if err != nil {
			return nil, fmt.Errorf("leaseset2: derive client-auth material: %w", err)
		}
		found := false
		for i := 0; i < numClients; i++ {
			rec := rest[i*clientRecordSize : (i+1)*clientRecordSize]
			if bytes.Equal(rec[:8], id[:]) {
				plain, err := cryptoutil.ChaCha20XOR(key[:], nonce[:], 0, rec[8:])
				if err != nil {
					return nil, fmt.Errorf("leaseset2: unwrap client cookie: %w", err)
				}
				cookie = plain
				found = true
				break
			}
		}
		if !found {
			return nil, ErrClientCookieNotFound
		}
		rest = rest[numClients*clientRecordSize:]
	default:
		return nil, fmt.Errorf("leaseset2: unknown client-auth scheme %d", authFlag)
	}

	if len(rest) < 32+2 {
		return nil, fmt.Errorf("leaseset2: missing inner-salt/length")
	}
	var innerSalt [32]byte
	copy(innerSalt[:], rest[:32])
	innerLen := int(uint16(rest[32])<<8 | uint16(rest[33]))
	innerCiph := rest[34:]
	if len(innerCiph) != innerLen {
		return nil, fmt.Errorf("leaseset2: inner ciphertext length mismatch: got %d, want %d", len(innerCiph), innerLen)
	}

	innerIKM := append(append(append([]byte(nil), cookie...), subcred[:]...), putBE32(e.Published)...)
	keys2, err := cryptoutil.HKDF(innerSalt[:], innerIKM, []byte("ELS2_L2K"), 44)
	if err != nil {
		return nil, fmt.Errorf("leaseset2: derive inner key: %w", err)
	}
	innerPlain, err := cryptoutil.ChaCha20XOR(keys2[:32], keys2[32:44], 0, innerCiph)
	if err != nil {
		return nil, fmt.Errorf("leaseset2: decrypt inner layer: %w", err)
	}
	if len(innerPlain) < 1 {
		return nil, fmt.Errorf("leaseset2: empty inner plaintext")
	}

	inner, err := ParseLeaseSet2(innerPlain[1:])
	if err != nil {
		return nil, fmt.Errorf("leaseset2: parse decrypted inner leaseset: %w", err)
	}
	return inner, nil
}

// Encrypt builds an EncryptedLeaseSet2 wire record around innerWire (an
// already-signed LeaseSet2, per LocalLeaseSet2.Sign), under keys' blinded
// identity for the UTC day published falls in. clients is nil for a
// no-auth publication, or one PSK ClientAuth per authorized client.
func Encrypt(keys *identity.PrivateKeys, innerWire []byte, published uint32, expiresSeconds uint16, clients []ClientAuth) ([]byte, error) {
	date := identity.DateString(time.Unix(int64(published), 0))
	blindedPub, err := identity.BlindedPublicKey(keys.Identity, date)
	if err != nil {
		return nil, fmt.Errorf("leaseset2: blind identity: %w", err)
	}
	subcred, err := identity.GetSubcredential(keys.Identity, blindedPub)
	if err != nil {
		return nil, fmt.Errorf("leaseset2: subcredential: %w", err)
	}

	var cookie []byte
	authFlag := AuthNone
	var clientSection []byte
	if len(clients) > 0 {
		authFlag = AuthPSK
		cookie = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, cookie); err != nil {
			return nil, fmt.Errorf("leaseset2: generate cookie: %w", err)
		}
		clientSection = append(clientSection, byte(len(clients)))
		for _, c := range clients {
			id, key, nonce, err := clientAuthKeyMaterial(c, subcred, AuthPSK)
			if err != nil {
				return nil, fmt.Errorf("leaseset2: derive client-auth material: %w", err)
			}
			enc, err := cryptoutil.ChaCha20XOR(key[:], nonce[:], 0, cookie)
			if err != nil {
				return nil, fmt.Errorf("leaseset2: wrap client cookie: %w", err)
			}
			clientSection = append(clientSection, id[:]...)
			clientSection = append(clientSection, enc...)
		}
	}

	innerSalt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, innerSalt); err != nil {
		return nil, fmt.Errorf("leaseset2: generate inner salt: %w", err)
	}
	innerIKM := append(append(append([]byte(nil), cookie...), subcred[:]...), putBE32(published)...)
	keys2, err := cryptoutil.HKDF(innerSalt, innerIKM, []byte("ELS2_L2K"), 44)
	if err != nil {
		return nil, fmt.Errorf("leaseset2: derive inner key: %w", err)
	}
	innerCiph, err := cryptoutil.ChaCha20XOR(keys2[:32], keys2[32:44], 0, append([]byte{byte(LS2Standard)}, innerWire...))
	if err != nil {
		return nil, fmt.Errorf("leaseset2: encrypt inner layer: %w", err)
	}

	outerPlain := []byte{byte(authFlag)}
	outerPlain = append(outerPlain, clientSection...)
	outerPlain = append(outerPlain, innerSalt...)
	outerPlain = append(outerPlain, byte(len(innerCiph)>>8), byte(len(innerCiph)))
	outerPlain = append(outerPlain, innerCiph...)

	outerSalt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, outerSalt); err != nil {
		return nil, fmt.Errorf("leaseset2: generate outer salt: %w", err)
	}
	outerIKM := append(append([]byte(nil), subcred[:]...), putBE32(published)...)
	keys1, err := cryptoutil.HKDF(outerSalt, outerIKM, []byte("ELS2_L1K"), 44)
	if err != nil {
		return nil, fmt.Errorf("leaseset2: derive outer key: %w", err)
	}
	outerCiph, err := cryptoutil.ChaCha20XOR(keys1[:32], keys1[32:44], 0, outerPlain)
	if err != nil {
		return nil, fmt.Errorf("leaseset2: encrypt outer layer: %w", err)
	}

	e := &EncryptedLeaseSet2{
		BlindedKey:     blindedPub,
		Published:      published,
		ExpiresSeconds: expiresSeconds,
		outerCiph:      outerCiph,
	}
	copy(e.outerSalt[:], outerSalt)

	body := e.signedPrefixWith(outerSalt, outerCiph)
	sig, err := identity.BlindedSign(keys.SigningPrivateKey, date, body)
	if err != nil {
		return nil, fmt.Errorf("leaseset2: sign blinded envelope: %w", err)
	}
	e.signature = sig
	return append(body, sig...), nil
}

// signedPrefix reconstructs the bytes the blinded signature covers: the
// type tag, blinded key, timestamps, flags, outer-ciphertext-length, and
// outer ciphertext (salt‖ciphertext), in wire order.
func (e *EncryptedLeaseSet2) signedPrefix() []byte {
	return e.signedPrefixWith(e.outerSalt[:], e.outerCiph)
}

func (e *EncryptedLeaseSet2) signedPrefixWith(outerSalt, outerCiph []byte) []byte {
	var buf []byte
	buf = append(buf, byte(EncryptedLS2Type))
	buf = append(buf, e.BlindedKey[:]...)
	buf = append(buf, putBE32(e.Published)...)
	buf = append(buf, byte(e.ExpiresSeconds>>8), byte(e.ExpiresSeconds))
	buf = append(buf, byte(e.Flags>>8), byte(e.Flags))
	outerLen := len(outerSalt) + len(outerCiph)
	buf = append(buf, byte(outerLen>>8), byte(outerLen))
	buf = append(buf, outerSalt...)
	buf = append(buf, outerCiph...)
	return buf
}

// clientAuthKeyMaterial derives a client's scan ID, cookie-wrapping key, and
// nonce from its shared secret and the publication's subcredential, using
// the literal HKDF labels spec.md §4.4 names for each scheme's per-client
// derivation ("ELS2_XCA" for DH, "ELS2PSKA" for PSK).
func clientAuthKeyMaterial(c ClientAuth, subcred [32]byte, scheme AuthScheme) (id [8]byte, key [32]byte, nonce [12]byte, err error) {
	label := []byte("ELS2PSKA")
	if scheme == AuthDH {
		label = []byte("ELS2_XCA")
	}
	ikm := append(append([]byte(nil), c.Secret[:]...), subcred[:]...)
	okm, err := cryptoutil.HKDF(nil, ikm, label, 8+32+12)
	if err != nil {
		return id, key, nonce, err
	}
	copy(id[:], okm[:8])
	copy(key[:], okm[8:40])
	copy(nonce[:], okm[40:52])
	return id, key, nonce, nil
}
