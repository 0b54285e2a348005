package core

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/stitchsync/syncore/pkg/crdt"
	"github.com/stitchsync/syncore/pkg/types"
)

// HandleSyncRequest decides, for each requested document, between
// up-to-date, an update, a snapshot, or unavailable, and -- whenever the
// document is held and the update is permitted -- records the requester as
// subscribed and aware.
func HandleSyncRequest(d *Deps, channelId types.ChannelId, msg types.SyncRequest) []types.Command {
	ch, cmds := establishedChannel(d, channelId, "sync-request")
	if ch == nil {
		return cmds
	}
	peer := d.Model.Peers[ch.PeerId]
	now := time.Now()

	var out []types.Command
	for _, entry := range msg.Docs {
		out = append(out, handleSyncRequestDoc(d, ch, peer, now, entry)...)
	}
	return out
}

func handleSyncRequestDoc(d *Deps, ch *types.Channel, peer *types.PeerState, now time.Time, entry types.SyncRequestDoc) []types.Command {
	docId := entry.DocId
	ds, exists := d.Model.Documents[docId]
	if !exists {
		return []types.Command{
			types.SendMessageCmd{
				ToChannelId: ch.ChannelId,
				Message:     types.SyncResponse{DocId: docId, Transmission: types.Transmission{Kind: types.TransmissionUnavailable}},
			},
		}
	}

	ctx := types.PermissionContext{PeerName: peer.Identity.Name, ChannelId: ch.ChannelId, ChannelKind: ch.Kind, DocId: docId, Doc: ds.Doc}
	if !d.CanUpdate(ctx) {
		return []types.Command{
			warnDropped("sync-request denied by permission policy", map[string]interface{}{"doc_id": docId, "peer_id": ch.PeerId}),
			types.SendMessageCmd{
				ToChannelId: ch.ChannelId,
				Message:     types.SyncResponse{DocId: docId, Transmission: types.Transmission{Kind: types.TransmissionUnavailable}},
			},
		}
	}

	localVersion := ds.Doc.Version()
	var cmds []types.Command

	cmp := crdt.Equal
	if entry.RequesterVersion != nil {
		cmp = localVersion.Compare(entry.RequesterVersion)
	} else if !localVersion.IsZero() {
		cmp = crdt.Greater
	}

	switch cmp {
	case crdt.Equal:
		cmds = append(cmds, types.SendMessageCmd{
			ToChannelId: ch.ChannelId,
			Message:     types.SyncResponse{DocId: docId, Transmission: types.Transmission{Kind: types.TransmissionUpToDate, Version: localVersion}},
		})
	case crdt.Greater, crdt.Concurrent:
		kind, data, err := chooseTransmission(d, ds.Doc, entry.RequesterVersion)
		if err != nil {
			cmds = append(cmds, errDropped("failed exporting sync response", map[string]interface{}{"doc_id": docId, "error": err.Error()}))
			break
		}
		cmds = append(cmds, types.SendMessageCmd{
			ToChannelId: ch.ChannelId,
			Message:     types.SyncResponse{DocId: docId, Transmission: types.Transmission{Kind: kind, Data: data, Version: localVersion}},
		})
	case crdt.Less:
		data, err := ds.Doc.Export(crdt.ExportOptions{Mode: crdt.ExportUpdate, From: entry.RequesterVersion})
		if err != nil {
			cmds = append(cmds, errDropped("failed exporting sync response", map[string]interface{}{"doc_id": docId, "error": err.Error()}))
			break
		}
		cmds = append(cmds, types.SendMessageCmd{
			ToChannelId: ch.ChannelId,
			Message:     types.SyncResponse{DocId: docId, Transmission: types.Transmission{Kind: types.TransmissionUpdate, Data: data, Version: localVersion}},
		})
		// The requester is strictly ahead of us: ask them to reciprocate.
		cmds = append(cmds, types.SendMessageCmd{
			ToChannelId: ch.ChannelId,
			Message:     types.SyncRequest{Docs: []types.SyncRequestDoc{{DocId: docId, RequesterVersion: localVersion}}},
		})
	}

	aw, known := peer.DocumentAwareness[docId]
	if !known {
		aw = &types.DocumentAwareness{}
		peer.DocumentAwareness[docId] = aw
	}
	aw.State = types.AwarenessHas
	aw.LastKnownVersion = entry.RequesterVersion
	aw.LastUpdated = now
	peer.Subscriptions[docId] = struct{}{}

	return cmds
}

// chooseTransmission implements the Sync Engine's snapshot-vs-update
// heuristic: a brand-new requester (empty version vector, or none
// supplied) always gets a snapshot; otherwise the responder compares the
// byte size of the update export against a configurable fraction of the
// snapshot export's size and sends whichever is smaller in spirit.
func chooseTransmission(d *Deps, doc crdt.Document, requesterVersion crdt.VersionVector) (types.TransmissionKind, []byte, error) {
	if requesterVersion == nil || requesterVersion.IsZero() {
		snapshot, err := doc.Export(crdt.ExportOptions{Mode: crdt.ExportSnapshot})
		return types.TransmissionSnapshot, snapshot, err
	}

	update, err := doc.Export(crdt.ExportOptions{Mode: crdt.ExportUpdate, From: requesterVersion})
	if err != nil {
		return 0, nil, err
	}
	snapshot, err := doc.Export(crdt.ExportOptions{Mode: crdt.ExportSnapshot})
	if err != nil {
		return 0, nil, err
	}

	ratio := d.Config.SnapshotThresholdRatio
	if ratio <= 0 {
		ratio = 0.6
	}
	if float64(len(update)) > ratio*float64(len(snapshot)) {
		d.log().Debugf("choosing snapshot over update: update=%s snapshot=%s",
			humanize.Bytes(uint64(len(update))), humanize.Bytes(uint64(len(snapshot))))
		return types.TransmissionSnapshot, snapshot, nil
	}
	return types.TransmissionUpdate, update, nil
}

// HandleSyncResponse handles reception of a sync-response: imports
// snapshot/update payloads, records awareness, and resolves any
// ensureDocument caller waiting on this document.
func HandleSyncResponse(d *Deps, channelId types.ChannelId, msg types.SyncResponse) []types.Command {
	ch, cmds := establishedChannel(d, channelId, "sync-response")
	if ch == nil {
		return cmds
	}
	peer := d.Model.Peers[ch.PeerId]
	now := time.Now()
	docId := msg.DocId

	switch msg.Transmission.Kind {
	case types.TransmissionSnapshot, types.TransmissionUpdate:
		return handleDataTransmission(d, ch, peer, now, docId, msg.Transmission)
	case types.TransmissionUpToDate:
		return handleUpToDate(d, peer, now, docId, msg.Transmission)
	case types.TransmissionUnavailable:
		return handleUnavailable(d, peer, now, docId)
	default:
		return []types.Command{warnDropped("sync-response with unknown transmission kind", map[string]interface{}{"doc_id": docId})}
	}
}

func handleDataTransmission(d *Deps, ch *types.Channel, peer *types.PeerState, now time.Time, docId types.DocumentId, t types.Transmission) []types.Command {
	ds, existed := d.Model.Documents[docId]
	if !existed {
		ds, _ = d.Model.EnsureDocument(docId, d.NewDocument(docId))
	}
	wasEmpty := ds.Doc.Version().IsZero()

	ctx := types.PermissionContext{PeerName: peer.Identity.Name, ChannelId: ch.ChannelId, ChannelKind: ch.Kind, DocId: docId, Doc: ds.Doc}
	if !d.CanUpdate(ctx) {
		return []types.Command{warnDropped("sync-response update denied by permission policy", map[string]interface{}{"doc_id": docId, "peer_id": ch.PeerId})}
	}

	if err := ds.Doc.Import(t.Data); err != nil {
		// Malformed payload: local document left unchanged, peer awareness
		// for this doc is NOT updated, as if nothing had been received.
		return []types.Command{errDropped("malformed CRDT payload, import rejected", map[string]interface{}{
			"doc_id": docId, "peer_id": ch.PeerId, "error": err.Error(),
		})}
	}

	localVersion := ds.Doc.Version()
	aw, known := peer.DocumentAwareness[docId]
	if !known {
		aw = &types.DocumentAwareness{}
		peer.DocumentAwareness[docId] = aw
	}
	aw.State = types.AwarenessHas
	aw.LastKnownVersion = localVersion
	aw.LastUpdated = now

	var cmds []types.Command
	if wasEmpty {
		cmds = append(cmds, types.SubscribeDocCmd{DocId: docId})
	}
	cmds = append(cmds, resolveActiveRequests(ds, true)...)
	return cmds
}

func handleUpToDate(d *Deps, peer *types.PeerState, now time.Time, docId types.DocumentId, t types.Transmission) []types.Command {
	aw, known := peer.DocumentAwareness[docId]
	if !known {
		aw = &types.DocumentAwareness{}
		peer.DocumentAwareness[docId] = aw
	}
	aw.State = types.AwarenessHas
	aw.LastKnownVersion = t.Version
	aw.LastUpdated = now

	if ds, exists := d.Model.Documents[docId]; exists {
		return resolveActiveRequests(ds, true)
	}
	return nil
}

func handleUnavailable(d *Deps, peer *types.PeerState, now time.Time, docId types.DocumentId) []types.Command {
	aw, known := peer.DocumentAwareness[docId]
	if !known {
		aw = &types.DocumentAwareness{}
		peer.DocumentAwareness[docId] = aw
	}
	// Subscription intent, if any, is deliberately left untouched: a peer
	// (storage, notably) may subscribe before it has the document in
	// order to receive and persist future writes.
	aw.State = types.AwarenessNo
	aw.LastUpdated = now

	if ds, exists := d.Model.Documents[docId]; exists {
		return resolveActiveRequests(ds, false)
	}
	return nil
}
