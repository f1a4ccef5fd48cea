// Package config defines the typed options record consumed by every
// subsystem in the router core. Parsing flags, files, or environment
// variables into this struct is the job of an external collaborator
// (spec.md §1, "Deliberately out of scope"); this package only declares
// the shape and defaults.
package config

import "time"

// BandwidthTier is one of the capability-letter bandwidth classes from
// spec.md §4.3.
type BandwidthTier byte

const (
	TierUnder12    BandwidthTier = 'K'
	Tier12to48     BandwidthTier = 'L'
	Tier48to64     BandwidthTier = 'M'
	Tier64to128    BandwidthTier = 'N'
	TierHigh       BandwidthTier = 'O' // 128-256 KB/s
	TierExtra      BandwidthTier = 'P' // 256-2048 KB/s
	TierUnlimited  BandwidthTier = 'X' // >2048 KB/s
)

// Options is the router-wide configuration record, corresponding to
// spec.md §6's "Configuration surface" table.
type Options struct {
	Host string
	Port int

	IPv6 bool
	IPv4 bool

	NoTransit bool
	Floodfill bool

	Bandwidth BandwidthTier

	NetTimeFromPeers     bool
	NetTimeNTPServers    []string
	NetTimeNTPSyncPeriod time.Duration

	SSU2Enabled   bool
	SSU2Port      int
	SSU2MTU4      int
	SSU2MTU6      int
	SSU2Published bool
	SSU2Proxy     string // SOCKS5 UDP-associate relay, empty = disabled

	NTCP2Enabled bool
	NTCP2Port    int

	NetID int
}

// Default returns the option defaults named in spec.md §6.
func Default() Options {
	return Options{
		Host:                 "",
		Port:                 4567,
		IPv6:                 false,
		IPv4:                 true,
		NoTransit:            false,
		Floodfill:            false,
		Bandwidth:            TierHigh,
		NetTimeFromPeers:     true,
		NetTimeNTPSyncPeriod: 6 * time.Hour,
		SSU2Enabled:          true,
		SSU2Port:             0,
		SSU2MTU4:             1488,
		SSU2MTU6:             1452,
		SSU2Published:        true,
		NTCP2Enabled:         true,
		NetID:                2,
	}
}

// DestinationParams mirrors the I2CP-compatible per-destination option
// names from spec.md §6, carried over for compatibility.
type DestinationParams struct {
	InboundLength           int
	OutboundLength          int
	InboundQuantity         int
	OutboundQuantity        int
	InboundLengthVariance   int
	OutboundLengthVariance  int
	TagsToSend              int
	ExplicitPeers           []string
	DontPublishLeaseSet     bool
	LeaseSetType            int // 1, 3, or 5
	LeaseSetAuthType        int // 0=none, 1=DH, 2=PSK
	LeaseSetPrivKey         []byte
	LeaseSetEncType         []int
	LeaseSetClientDH        map[int][]byte // N -> pubkey
	LeaseSetClientPSK       map[int][]byte // N -> key
	StreamingInitialAckDelay time.Duration
	StreamingMaxOutboundSpeed int
	StreamingMaxInboundSpeed  int
	StreamingAnswerPings      bool
	StreamingProfile          int // 0=bulk, 1=interactive
}

// DestinationOption mutates a DestinationParams, following the functional
// options idiom used throughout the go-i2p SAM ecosystem.
type DestinationOption func(*DestinationParams) error

// DefaultDestinationParams returns the spec's per-destination defaults.
func DefaultDestinationParams() DestinationParams {
	return DestinationParams{
		InboundLength:    3,
		OutboundLength:   3,
		InboundQuantity:  2,
		OutboundQuantity: 2,
		TagsToSend:       40,
		LeaseSetType:     1,
		LeaseSetAuthType: 0,
		LeaseSetEncType:  []int{4}, // ECIES-X25519
	}
}

// NewDestinationParams applies functional options over the defaults.
func NewDestinationParams(opts ...DestinationOption) (DestinationParams, error) {
	p := DefaultDestinationParams()
	for _, opt := range opts {
		if err := opt(&p); err != nil {
			return DestinationParams{}, err
		}
	}
	return p, nil
}

// SetInboundLength sets inbound.length.
func SetInboundLength(n int) DestinationOption {
	return func(p *DestinationParams) error { p.InboundLength = n; return nil }
}

// SetOutboundLength sets outbound.length.
func SetOutboundLength(n int) DestinationOption {
	return func(p *DestinationParams) error { p.OutboundLength = n; return nil }
}

// SetInboundQuantity sets inbound.quantity.
func SetInboundQuantity(n int) DestinationOption {
	return func(p *DestinationParams) error { p.InboundQuantity = n; return nil }
}

// SetOutboundQuantity sets outbound.quantity.
func SetOutboundQuantity(n int) DestinationOption {
	return func(p *DestinationParams) error { p.OutboundQuantity = n; return nil }
}

// SetDontPublishLeaseSet sets i2cp.dontPublishLeaseSet.
func SetDontPublishLeaseSet(v bool) DestinationOption {
	return func(p *DestinationParams) error { p.DontPublishLeaseSet = v; return nil }
}
