package types

import "github.com/google/uuid"

// DocumentId is an opaque identifier for a document. The core never
// interprets its contents.
type DocumentId string

// PeerId is globally unique and stable across reconnections. It must never
// be synthesized from a timestamp, a random per-connection value, or
// anything else that would vary between connections from the same logical
// peer -- doing so breaks reconnection knowledge (see the Establishment
// Protocol Handler).
type PeerId string

// NewPeerId mints a fresh, stable peer identifier. Callers that want
// stability across process restarts must persist the result themselves;
// the core has no persistence of its own (see the storage adapter for one
// way to do that).
func NewPeerId() PeerId {
	return PeerId(uuid.NewString())
}

// ChannelId is assigned locally, monotonically increasing, unique for the
// lifetime of one process. It carries no meaning outside that process.
type ChannelId uint64

// RequestId correlates an external, asynchronous caller request (e.g.
// ensureDocument) with the eventual cmd/resolve-request or
// cmd/reject-request command that answers it.
type RequestId string

// NewRequestId mints a fresh request correlation id.
func NewRequestId() RequestId {
	return RequestId(uuid.NewString())
}

// PeerIdentity is exchanged during establishment and never partially
// trusted: only PeerId is load-bearing for the core's invariants, Name is
// advisory (used by permission predicates and UIs).
type PeerIdentity struct {
	PeerId PeerId
	Name   string
}
