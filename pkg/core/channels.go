package core

import "github.com/stitchsync/syncore/pkg/types"

// AttachChannel assigns a fresh channel id, records the channel as
// connected-but-not-established, and enqueues the establish-request the
// core proactively sends to identify itself. It does not perform the
// handshake itself.
func AttachChannel(d *Deps, gc types.GeneratedChannel) (types.ChannelId, []types.Command) {
	id := d.Model.NextChannelId()
	ch := &types.Channel{
		AdapterId: gc.AdapterId,
		Kind:      gc.Kind,
		Send:      gc.Send,
		Stop:      gc.Stop,
		State:     types.StateConnected,
		ChannelId: id,
	}
	d.Model.Channels[id] = ch

	cmds := []types.Command{
		types.SendMessageCmd{
			ToChannelId: id,
			Message:     types.EstablishRequest{Identity: d.Model.Identity},
		},
	}
	return id, cmds
}

// DetachChannel implements detachChannel: the channel is removed from the
// model. If it had been established, its id is removed from the bound
// peer's channel set, but the PeerState itself is preserved so a future
// reconnect restores cached knowledge.
func DetachChannel(d *Deps, id types.ChannelId) []types.Command {
	ch, ok := d.Model.Channels[id]
	if !ok {
		return []types.Command{warnDropped("detach of unknown channel", map[string]interface{}{"channel_id": id})}
	}
	delete(d.Model.Channels, id)

	if ch.State == types.StateEstablished {
		if peer, ok := d.Model.Peers[ch.PeerId]; ok {
			delete(peer.Channels, id)
		}
	}
	return nil
}
