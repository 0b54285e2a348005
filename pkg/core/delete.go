package core

import "github.com/stitchsync/syncore/pkg/types"

// HandleDeleteRequest removes the named document locally, if we hold it,
// and replies with its outcome. Any established peer may request a
// delete; the storage adapter is the prototypical responder, removing all
// keys under the document.
func HandleDeleteRequest(d *Deps, channelId types.ChannelId, msg types.DeleteRequest) []types.Command {
	ch, cmds := establishedChannel(d, channelId, "delete-request")
	if ch == nil {
		return cmds
	}

	status := types.Ignored
	if _, exists := d.Model.Documents[msg.DocId]; exists {
		delete(d.Model.Documents, msg.DocId)
		status = types.Deleted
	}
	return []types.Command{
		types.SendMessageCmd{
			ToChannelId: channelId,
			Message:     types.DeleteResponse{DocId: msg.DocId, Status: status},
		},
	}
}

// HandleDeleteResponse just logs the outcome; the core does not retry
// deletes, leaving that policy to the caller that issued deleteDocument.
func HandleDeleteResponse(d *Deps, channelId types.ChannelId, msg types.DeleteResponse) []types.Command {
	ch, cmds := establishedChannel(d, channelId, "delete-response")
	if ch == nil {
		return cmds
	}
	return []types.Command{
		logCmd(types.LogInfo, "delete-response received", map[string]interface{}{
			"channel_id": channelId, "peer_id": ch.PeerId, "doc_id": msg.DocId, "status": msg.Status,
		}),
	}
}
