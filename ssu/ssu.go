// Package ssu implements part of the legacy SSU transport (spec.md §4.8):
// the AES-256-CBC + HMAC-MD5 packet envelope and a session-state tracker.
// It does not perform the DH session handshake: SetState records a state,
// but no code here builds or processes SessionRequest/SessionCreated/
// SessionConfirmed. Fragmentation, relay and peer test report
// ErrNotImplemented (see DESIGN.md Open Question #3); SSU2 is the
// transport new installations use.
// Grounded on the teacher's link.Link for the connect-then-negotiate
// shape and on spec.md §4.8's wire description.
package ssu

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/md5"
	"errors"
	"fmt"

	"github.com/go-i2p/i2p-router-core/identity"
	"github.com/go-i2p/i2p-router-core/transport"
)

// ErrNotImplemented is returned by the legacy-SSU operations this package
// does not implement: packet fragmentation, relay introductions, and peer
// testing. Data envelope encrypt/decrypt is implemented; session
// establishment is not, and has no function that returns this error.
var ErrNotImplemented = errors.New("ssu: legacy SSU feature not implemented, see DESIGN.md Open Question #3")

// HeaderSize is SSU's fixed header: flag(1) + MAC(16) + IV(16) = 33 bytes
// of framing before the encrypted body, though spec.md §4.8 cites the
// logical header (post-decrypt) as 23 bytes once MAC/IV are stripped.
const HeaderSize = 23

// State is legacy SSU's (much smaller) session lifecycle.
type State int

const (
	Unknown State = iota
	SessionRequestSent
	SessionCreatedReceived
	SessionConfirmedSent
	SessionRequestReceived
	SessionCreatedSent
	SessionConfirmedReceived
	Established
	Failed
)

// Session is a legacy SSU connection, embedding the same transport base
// SSU2/NTCP2 use.
type Session struct {
	*transport.Session
	state State
}

// NewSession starts tracking a legacy SSU session for peer.
func NewSession(peer identity.Hash) *Session {
	return &Session{Session: transport.NewSession(peer), state: Unknown}
}

// State returns the current session state.
func (s *Session) State() State { return s.state }

// SetState advances the session state; legacy SSU's state list is short
// enough that this repo does not enforce a transition table the way
// ssu2.Session does.
func (s *Session) SetState(next State) { s.state = next }

// SessionKey is the DH-derived AES-256 key plus the HMAC-MD5 key legacy
// SSU derives alongside it (spec.md §4.8).
type SessionKey struct {
	CipherKey [32]byte
	MACKey    [32]byte
}

// EncryptPacket applies AES-256-CBC under key.CipherKey with the given IV,
// then HMAC-MD5-authenticates the ciphertext plus a netId-tweaked size
// field, matching spec.md §4.8's envelope.
func EncryptPacket(key SessionKey, iv [16]byte, netID byte, plaintext []byte) (ciphertext, mac []byte, err error) {
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, nil, fmt.Errorf("ssu: plaintext length %d not a multiple of the AES block size", len(plaintext))
	}
	block, err := aes.NewCipher(key.CipherKey[:])
	if err != nil {
		return nil, nil, fmt.Errorf("ssu: aes cipher: %w", err)
	}
	ciphertext = make([]byte, len(plaintext))
	cbc := cipher.NewCBCEncrypter(block, iv[:])
	cbc.CryptBlocks(ciphertext, plaintext)

	mac = macOver(key.MACKey, ciphertext, iv, netID)
	return ciphertext, mac, nil
}

// DecryptPacket reverses EncryptPacket, verifying the HMAC-MD5 tag before
// decrypting.
func DecryptPacket(key SessionKey, iv [16]byte, netID byte, ciphertext, wantMAC []byte) ([]byte, error) {
	gotMAC := macOver(key.MACKey, ciphertext, iv, netID)
	if !hmac.Equal(gotMAC, wantMAC) {
		return nil, fmt.Errorf("ssu: HMAC-MD5 verification failed")
	}
	block, err := aes.NewCipher(key.CipherKey[:])
	if err != nil {
		return nil, fmt.Errorf("ssu: aes cipher: %w", err)
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ssu: ciphertext length %d not a multiple of the AES block size", len(ciphertext))
	}
	plaintext := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(block, iv[:])
	cbc.CryptBlocks(plaintext, ciphertext)
	return plaintext, nil
}

// macOver authenticates ciphertext||iv||sizeByte(netID-tweaked), per
// spec.md §4.8's "HMAC-MD5 authentication (with a netId-tweaked size
// field)".
func macOver(macKey [32]byte, ciphertext []byte, iv [16]byte, netID byte) []byte {
	h := hmac.New(md5.New, macKey[:])
	h.Write(ciphertext)
	h.Write(iv[:])
	size := byte(len(ciphertext)) ^ netID
	h.Write([]byte{size})
	return h.Sum(nil)
}

// Fragment, Relay, and PeerTest are stubbed per this package's reduced
// scope; calling any of them reports ErrNotImplemented rather than
// silently no-opping.
func Fragment([]byte) ([][]byte, error)      { return nil, ErrNotImplemented }
func RelayIntroduce(identity.Hash) error     { return ErrNotImplemented }
func PeerTest(identity.Hash) error           { return ErrNotImplemented }
