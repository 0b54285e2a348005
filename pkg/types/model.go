package types

import (
	"sync/atomic"
	"time"

	"github.com/stitchsync/syncore/pkg/crdt"
)

// AwarenessState is this repository's best-effort belief about whether a
// given peer holds a given document.
type AwarenessState int

const (
	AwarenessUnknown AwarenessState = iota
	AwarenessHas
	AwarenessNo
)

func (s AwarenessState) String() string {
	switch s {
	case AwarenessHas:
		return "has"
	case AwarenessNo:
		return "no"
	default:
		return "unknown"
	}
}

// DocumentAwareness records what we believe a specific peer knows about a
// specific document.
type DocumentAwareness struct {
	State            AwarenessState
	LastKnownVersion crdt.VersionVector
	LastUpdated      time.Time
}

// PeerState is never deleted solely because its last channel closed -- a
// reconnect with the same stable PeerId must find its awareness and
// subscriptions intact. See ReapIdlePeers for the only sanctioned removal
// path, which the shell must invoke explicitly; the dispatcher never does.
type PeerState struct {
	Identity          PeerIdentity
	DocumentAwareness map[DocumentId]*DocumentAwareness
	Subscriptions     map[DocumentId]struct{}
	Channels          map[ChannelId]struct{}
	LastSeen          time.Time
}

func newPeerState(identity PeerIdentity) *PeerState {
	return &PeerState{
		Identity:          identity,
		DocumentAwareness: make(map[DocumentId]*DocumentAwareness),
		Subscriptions:     make(map[DocumentId]struct{}),
		Channels:          make(map[ChannelId]struct{}),
	}
}

// DocumentState exists iff the local repository knows about the document,
// whether created locally, loaded from storage, or announced by a peer
// whose directory we accepted.
type DocumentState struct {
	DocId          DocumentId
	Doc            crdt.Document
	ActiveRequests map[RequestId]struct{}
}

func newDocumentState(id DocumentId, doc crdt.Document) *DocumentState {
	return &DocumentState{
		DocId:          id,
		Doc:            doc,
		ActiveRequests: make(map[RequestId]struct{}),
	}
}

// Model is the authoritative, process-wide, in-memory state. It is owned
// exclusively by the dispatcher; nothing outside pkg/core should mutate it
// directly.
type Model struct {
	Identity  PeerIdentity
	Documents map[DocumentId]*DocumentState
	Channels  map[ChannelId]*Channel
	Peers     map[PeerId]*PeerState

	nextChannelId uint64
}

// NewModel creates an empty model for the given local identity.
func NewModel(identity PeerIdentity) *Model {
	return &Model{
		Identity:  identity,
		Documents: make(map[DocumentId]*DocumentState),
		Channels:  make(map[ChannelId]*Channel),
		Peers:     make(map[PeerId]*PeerState),
	}
}

// NextChannelId assigns the next monotonically increasing channel id.
func (m *Model) NextChannelId() ChannelId {
	return ChannelId(atomic.AddUint64(&m.nextChannelId, 1))
}

// EnsurePeer returns the PeerState for id, creating an empty one if this is
// the first time the peer has been observed.
func (m *Model) EnsurePeer(identity PeerIdentity) (*PeerState, bool) {
	if existing, ok := m.Peers[identity.PeerId]; ok {
		return existing, false
	}
	ps := newPeerState(identity)
	m.Peers[identity.PeerId] = ps
	return ps, true
}

// EnsureDocument returns the DocumentState for id, creating one backed by
// doc if absent. Returns false if a DocumentState already existed (doc is
// ignored in that case).
func (m *Model) EnsureDocument(id DocumentId, doc crdt.Document) (*DocumentState, bool) {
	if existing, ok := m.Documents[id]; ok {
		return existing, false
	}
	ds := newDocumentState(id, doc)
	m.Documents[id] = ds
	return ds, true
}

// ReapIdlePeers removes peers whose LastSeen is older than olderThan and
// which currently have no bound channels. This is the only sanctioned path
// that deletes a PeerState; the dispatcher never calls it itself -- the
// shell must invoke it explicitly (e.g. off a ticker), since idle
// bookkeeping is left to the embedder's own policy.
func (m *Model) ReapIdlePeers(now time.Time, olderThan time.Duration) []PeerId {
	var removed []PeerId
	for id, ps := range m.Peers {
		if len(ps.Channels) > 0 {
			continue
		}
		if now.Sub(ps.LastSeen) < olderThan {
			continue
		}
		delete(m.Peers, id)
		removed = append(removed, id)
	}
	return removed
}
