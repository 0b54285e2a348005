package core

import (
	"time"

	"github.com/stitchsync/syncore/pkg/types"
)

// HandleDirectoryRequest enumerates local document ids the requesting peer
// is permitted to see, evaluating CanReveal fresh for each one, and
// replies with a directory-response.
func HandleDirectoryRequest(d *Deps, channelId types.ChannelId) []types.Command {
	ch, cmds := establishedChannel(d, channelId, "directory-request")
	if ch == nil {
		return cmds
	}

	var ids []types.DocumentId
	for docId, ds := range d.Model.Documents {
		ctx := types.PermissionContext{
			PeerName:    peerName(d, ch.PeerId),
			ChannelId:   channelId,
			ChannelKind: ch.Kind,
			DocId:       docId,
			Doc:         ds.Doc,
		}
		if d.CanReveal(ctx) {
			ids = append(ids, docId)
		}
	}

	return []types.Command{
		types.SendMessageCmd{ToChannelId: channelId, Message: types.DirectoryResponse{DocIds: ids}},
	}
}

// HandleDirectoryResponse handles reception of a directory-response: it
// records `has` awareness for every announced id and creates any missing
// local DocumentState entries as empty documents. It never creates
// subscriptions -- that is earned only by an explicit sync-request.
func HandleDirectoryResponse(d *Deps, channelId types.ChannelId, msg types.DirectoryResponse) []types.Command {
	ch, cmds := establishedChannel(d, channelId, "directory-response")
	if ch == nil {
		return cmds
	}

	peer := d.Model.Peers[ch.PeerId]
	now := time.Now()
	for _, docId := range msg.DocIds {
		if _, exists := d.Model.Documents[docId]; !exists {
			d.Model.EnsureDocument(docId, d.NewDocument(docId))
		}
		aw, known := peer.DocumentAwareness[docId]
		if !known {
			aw = &types.DocumentAwareness{}
			peer.DocumentAwareness[docId] = aw
		}
		aw.State = types.AwarenessHas
		aw.LastUpdated = now
	}
	return nil
}

// establishedChannel fetches ch and validates it is established, or
// returns a dropped-message command describing why not. Callers should
// treat a nil first return as "stop, return the second value".
func establishedChannel(d *Deps, channelId types.ChannelId, what string) (*types.Channel, []types.Command) {
	ch, ok := d.Model.Channels[channelId]
	if !ok {
		return nil, []types.Command{warnDropped("message on unknown channel", map[string]interface{}{
			"channel_id": channelId, "message": what,
		})}
	}
	if !types.IsEstablished(ch) {
		return nil, []types.Command{warnDropped("protocol message before establishment", map[string]interface{}{
			"channel_id": channelId, "message": what,
		})}
	}
	return ch, nil
}

func peerName(d *Deps, peerId types.PeerId) string {
	if peer, ok := d.Model.Peers[peerId]; ok {
		return peer.Identity.Name
	}
	return ""
}
