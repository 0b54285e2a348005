package core

import (
	"time"

	"github.com/stitchsync/syncore/pkg/crdt"
	"github.com/stitchsync/syncore/pkg/types"
)

// NotifyDocumentChanged fans a local change out to peers: every peer
// subscribed to docId whose last-known version does not already dominate
// the local one receives an update on the first established,
// reveal-permitted channel found; peers not yet subscribed but still of
// unknown awareness are nudged with an unsolicited single-entry
// directory-response instead. Version-vector dominance, not hop count, is
// what prevents echo storms across multi-hop topologies.
func NotifyDocumentChanged(d *Deps, docId types.DocumentId) []types.Command {
	ds, exists := d.Model.Documents[docId]
	if !exists {
		return []types.Command{warnDropped("document-changed for unknown document", map[string]interface{}{"doc_id": docId})}
	}

	localVersion := ds.Doc.Version()
	now := time.Now()
	var cmds []types.Command

	for _, peer := range d.Model.Peers {
		if _, subscribed := peer.Subscriptions[docId]; subscribed {
			cmds = append(cmds, fanOutToSubscriber(d, peer, ds, localVersion, now)...)
			continue
		}
		cmds = append(cmds, nudgeUnknownPeer(d, peer, ds, docId, now)...)
	}
	return cmds
}

func fanOutToSubscriber(d *Deps, peer *types.PeerState, ds *types.DocumentState, localVersion crdt.VersionVector, now time.Time) []types.Command {
	aw := peer.DocumentAwareness[ds.DocId]
	if aw != nil && aw.LastKnownVersion != nil {
		switch localVersion.Compare(aw.LastKnownVersion) {
		case crdt.Equal, crdt.Less:
			return nil // peer is already at least as current as us
		}
	}

	ch := firstRevealableChannel(d, peer, ds)
	if ch == nil {
		return nil // no established, permitted channel right now
	}

	var from crdt.VersionVector
	if aw != nil {
		from = aw.LastKnownVersion
	}
	data, err := ds.Doc.Export(crdt.ExportOptions{Mode: crdt.ExportUpdate, From: from})
	if err != nil {
		return []types.Command{errDropped("failed exporting fan-out update", map[string]interface{}{
			"doc_id": ds.DocId, "peer_id": ch.PeerId, "error": err.Error(),
		})}
	}

	if aw == nil {
		aw = &types.DocumentAwareness{}
		peer.DocumentAwareness[ds.DocId] = aw
	}
	aw.State = types.AwarenessHas
	aw.LastKnownVersion = localVersion
	aw.LastUpdated = now

	return []types.Command{
		types.SendMessageCmd{
			ToChannelId: ch.ChannelId,
			Message: types.SyncResponse{
				DocId:        ds.DocId,
				Transmission: types.Transmission{Kind: types.TransmissionUpdate, Data: data, Version: localVersion},
			},
		},
	}
}

func nudgeUnknownPeer(d *Deps, peer *types.PeerState, ds *types.DocumentState, docId types.DocumentId, now time.Time) []types.Command {
	aw := peer.DocumentAwareness[docId]
	if aw != nil && aw.State != types.AwarenessUnknown {
		return nil
	}
	ch := firstRevealableChannel(d, peer, ds)
	if ch == nil {
		return nil
	}
	return []types.Command{
		types.SendMessageCmd{
			ToChannelId: ch.ChannelId,
			Message:     types.DirectoryResponse{DocIds: []types.DocumentId{docId}},
		},
	}
}

func firstRevealableChannel(d *Deps, peer *types.PeerState, ds *types.DocumentState) *types.Channel {
	for chId := range peer.Channels {
		ch := d.Model.Channels[chId]
		if !types.IsEstablished(ch) {
			continue
		}
		ctx := types.PermissionContext{
			PeerName: peer.Identity.Name, ChannelId: chId, ChannelKind: ch.Kind, DocId: ds.DocId, Doc: ds.Doc,
		}
		if d.CanReveal(ctx) {
			return ch
		}
	}
	return nil
}
