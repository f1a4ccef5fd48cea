package ssu2

import (
	"encoding/binary"

	"github.com/go-i2p/i2p-router-core/identity"
)

// RelayResponseCode enumerates spec.md §4.7's relay response codes.
type RelayResponseCode byte

const (
	RelayAccept               RelayResponseCode = 0
	RelayTagNotFound          RelayResponseCode = 5
	RelayUnsupportedAddrFamily RelayResponseCode = 65
	RelaySignatureFailure     RelayResponseCode = 67
	RelayUnknownAlice         RelayResponseCode = 70
)

// RelayRequest is Alice's ask to Bob: introduce me to Charlie, identified
// by Charlie's relay tag (spec.md §4.7 Relay).
type RelayRequest struct {
	Nonce     uint32
	CharlieTag uint32
	AliceIdent identity.Hash
	AlicePort  uint16
	AliceIP    []byte
}

// Encode serializes a RelayRequest block value.
func (r RelayRequest) Encode() []byte {
	v := make([]byte, 4+4+32+2+len(r.AliceIP))
	binary.BigEndian.PutUint32(v[0:4], r.Nonce)
	binary.BigEndian.PutUint32(v[4:8], r.CharlieTag)
	copy(v[8:40], r.AliceIdent[:])
	binary.BigEndian.PutUint16(v[40:42], r.AlicePort)
	copy(v[42:], r.AliceIP)
	return v
}

// RelayResponse carries Bob's (or Charlie's) outcome back.
type RelayResponse struct {
	Nonce uint32
	Code  RelayResponseCode
	Token uint64
}

// Encode serializes a RelayResponse block value.
func (r RelayResponse) Encode() []byte {
	v := make([]byte, 13)
	binary.BigEndian.PutUint32(v[0:4], r.Nonce)
	v[4] = byte(r.Code)
	binary.BigEndian.PutUint64(v[5:13], r.Token)
	return v
}

// ParseRelayResponse decodes a RelayResponse block value.
func ParseRelayResponse(v []byte) (RelayResponse, bool) {
	if len(v) < 13 {
		return RelayResponse{}, false
	}
	return RelayResponse{
		Nonce: binary.BigEndian.Uint32(v[0:4]),
		Code:  RelayResponseCode(v[4]),
		Token: binary.BigEndian.Uint64(v[5:13]),
	}, true
}

// RelayIntro is Bob's forward to Charlie, carrying Alice's signed endpoint
// (spec.md §4.7: "Charlie validates Alice's signature under Alice's
// identity, fetched from netdb").
type RelayIntro struct {
	Nonce      uint32
	AliceIdent identity.Hash
	AliceIP    []byte
	AlicePort  uint16
	Signature  []byte // over {AliceIdent, AliceIP, AlicePort, Nonce}, by Alice
}

// Encode serializes a RelayIntro block value.
func (r RelayIntro) Encode() []byte {
	v := make([]byte, 0, 4+32+2+len(r.AliceIP)+len(r.Signature))
	nonce := make([]byte, 4)
	binary.BigEndian.PutUint32(nonce, r.Nonce)
	v = append(v, nonce...)
	v = append(v, r.AliceIdent[:]...)
	port := make([]byte, 2)
	binary.BigEndian.PutUint16(port, r.AlicePort)
	v = append(v, r.AliceIP...)
	v = append(v, port...)
	v = append(v, r.Signature...)
	return v
}

// RelaySignedMessage reconstructs the bytes Alice signs over for a
// RelayIntro, so Charlie can verify it against Alice's RouterInfo identity
// fetched from netdb.
func RelaySignedMessage(ident identity.Hash, ip []byte, port uint16, nonce uint32) []byte {
	v := make([]byte, 0, 32+len(ip)+2+4)
	v = append(v, ident[:]...)
	v = append(v, ip...)
	portBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(portBytes, port)
	v = append(v, portBytes...)
	nonceBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(nonceBytes, nonce)
	v = append(v, nonceBytes...)
	return v
}
