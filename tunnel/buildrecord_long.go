package tunnel

import "errors"

// LongRecordSize is the fixed wire size of a legacy long-form tunnel build
// record (spec.md §4.5).
const LongRecordSize = 528

// ErrLongFormNotImplemented reports that this build does not implement the
// legacy ElGamal-encrypted long-form tunnel build record. This repo already
// reduces legacy SSU to envelope/session-state only (see DESIGN.md's Open
// Question #3); since long-form build records exist to interoperate with
// routers reachable only over legacy SSU, the same scope reduction applies
// here: a router with no SSU2/NTCP2 peers remaining is a case this build
// does not target.
var ErrLongFormNotImplemented = errors.New("tunnel: legacy long-form build records are not implemented")

// BuildLongRecord is a stub for the legacy long-form record (ElGamal or
// ECIES-X25519 per-hop encryption at different offsets within a 528-byte
// envelope). See ErrLongFormNotImplemented.
func BuildLongRecord(hop *HopConfig, plan *BuildPlan, index byte) ([]byte, error) {
	return nil, ErrLongFormNotImplemented
}
