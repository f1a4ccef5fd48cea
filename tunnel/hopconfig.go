// Package tunnel implements tunnel build-record construction/parsing and
// the per-hop onion encryption layer (spec.md §3, §4.5). It is grounded on
// the teacher's circuit package (circuit/circuit.go, circuit/extend.go),
// generalized from Tor's per-hop ntor handshake and onion-skin layering to
// I2P's Noise-N short build record and pre-built tunnel-message layering,
// and on original_source/libi2pd/TunnelConfig.cpp for hop-record field
// order the distilled spec only summarizes.
package tunnel

import (
	"time"

	"github.com/go-i2p/i2p-router-core/identity"
)

// EncryptionType is the build-record cleartext's encryption-type tag.
// Only AES (0) is defined here, and Pool.BuildPlanFor sets it on every hop.
type EncryptionType byte

const EncryptionAES EncryptionType = 0

// HopConfig describes one hop of a tunnel being built: the peer it runs on
// and the tunnel IDs/flags that hop's build record must carry (spec.md §3).
type HopConfig struct {
	PeerHash      identity.Hash
	PeerStaticKey [32]byte // hop's NTCP2/SSU2 static key, used as the Noise N recipient key
	ReceiveTunnel uint32
	NextTunnel    uint32
	NextIdent     identity.Hash
	IsGateway     bool
	IsEndpoint    bool
	EncType       EncryptionType

	// LayerKey/IVKey are generated locally (not carried on the wire) and
	// used to onion-encrypt/decrypt tunnel data messages as they cross
	// this hop (spec.md §4.5's "derive reply, layer, and IV keys").
	LayerKey [32]byte
	IVKey    [32]byte
	ReplyKey [32]byte
	ReplyIV  [16]byte
}

// BuildPlan is an ordered list of hop configs plus the tunnel's overall
// request/expiration window, the unit tunnel.BuildShort/BuildLong consume.
type BuildPlan struct {
	Hops        []*HopConfig
	RequestTime time.Time     // truncated to whole minutes on the wire
	Expiration  time.Duration // from RequestTime
	SendMsgID   uint32
}
