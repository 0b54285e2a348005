package core

import (
	"time"

	"github.com/stitchsync/syncore/pkg/crdt"
	"github.com/stitchsync/syncore/pkg/types"
)

// HandleEstablishRequest processes an inbound establish-request. The
// receiving side replies with establish-response and then performs the
// same reconnection/new-peer bookkeeping the responder and the initiator
// both need.
func HandleEstablishRequest(d *Deps, channelId types.ChannelId, msg types.EstablishRequest) []types.Command {
	cmds := []types.Command{
		types.SendMessageCmd{
			ToChannelId: channelId,
			Message:     types.EstablishResponse{Identity: d.Model.Identity},
		},
	}
	return append(cmds, handleEstablished(d, channelId, msg.Identity)...)
}

// HandleEstablishResponse processes the acceptor's reply to our
// establish-request. No further reply is sent; the same bookkeeping runs.
func HandleEstablishResponse(d *Deps, channelId types.ChannelId, msg types.EstablishResponse) []types.Command {
	return handleEstablished(d, channelId, msg.Identity)
}

// handleEstablished is the shared reconnection/new-peer logic run by both
// sides of the handshake regardless of who initiated it. It is idempotent
// with respect to peer-state creation, which is what makes concurrent
// initiation from both sides safe.
func handleEstablished(d *Deps, channelId types.ChannelId, identity types.PeerIdentity) []types.Command {
	ch, ok := d.Model.Channels[channelId]
	if !ok {
		return []types.Command{warnDropped("establish on unknown channel", map[string]interface{}{"channel_id": channelId})}
	}
	if ch.State == types.StateEstablished {
		return []types.Command{warnDropped("duplicate establishment on already-established channel", map[string]interface{}{
			"channel_id": channelId, "peer_id": ch.PeerId,
		})}
	}

	peer, isNew := d.Model.EnsurePeer(identity)
	now := time.Now()
	peer.LastSeen = now
	ch.State = types.StateEstablished
	ch.PeerId = identity.PeerId
	peer.Channels[channelId] = struct{}{}

	if !isNew {
		return []types.Command{reconnectionSyncRequest(d, channelId, peer)}
	}
	return newPeerCommands(d, channelId)
}

// reconnectionSyncRequest builds the optimized sync-request emitted on the
// reconnection path: only documents the peer's cached knowledge shows as
// stale are included, and the directory exchange is skipped entirely.
func reconnectionSyncRequest(d *Deps, channelId types.ChannelId, peer *types.PeerState) types.Command {
	var docs []types.SyncRequestDoc
	for docId, ds := range d.Model.Documents {
		localVersion := ds.Doc.Version()
		aw, known := peer.DocumentAwareness[docId]
		stale := !known || aw.LastKnownVersion == nil || aw.LastKnownVersion.Compare(localVersion) == crdt.Less
		if stale {
			docs = append(docs, types.SyncRequestDoc{DocId: docId, RequesterVersion: localVersion})
		}
	}
	return types.SendMessageCmd{
		ToChannelId: channelId,
		Message:     types.SyncRequest{Docs: docs},
	}
}

// newPeerCommands builds the directory-request and full sync-request
// emitted on the new-peer path.
func newPeerCommands(d *Deps, channelId types.ChannelId) []types.Command {
	var docs []types.SyncRequestDoc
	for docId, ds := range d.Model.Documents {
		docs = append(docs, types.SyncRequestDoc{DocId: docId, RequesterVersion: ds.Doc.Version()})
	}
	return []types.Command{
		types.SendMessageCmd{ToChannelId: channelId, Message: types.DirectoryRequest{}},
		types.SendMessageCmd{ToChannelId: channelId, Message: types.SyncRequest{Docs: docs}},
	}
}
