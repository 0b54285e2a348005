package core

import "github.com/stitchsync/syncore/pkg/types"

// ChannelMeta is a read-only snapshot of a channel, returned by the query
// helpers below so callers never hold a reference into the live model.
type ChannelMeta struct {
	ChannelId types.ChannelId
	Kind      types.ChannelKind
	PeerId    types.PeerId
	State     types.ChannelState
}

// ChannelFilter narrows GetChannelsForDocument's result set.
type ChannelFilter func(ChannelMeta) bool

// ReadyState maps one channel to whether its peer is believed to still be
// loading the named document.
type ReadyState struct {
	Channel ChannelMeta
	Loading bool
}

// GetPeerState returns a deep copy of the named peer's state, or false if
// no such peer is known.
func (disp *Dispatcher) GetPeerState(peerId types.PeerId) (types.PeerState, bool) {
	disp.mu.Lock()
	defer disp.mu.Unlock()
	ps, ok := disp.deps.Model.Peers[peerId]
	if !ok {
		return types.PeerState{}, false
	}
	return clonePeerState(ps), true
}

func clonePeerState(ps *types.PeerState) types.PeerState {
	out := types.PeerState{
		Identity:          ps.Identity,
		DocumentAwareness: make(map[types.DocumentId]*types.DocumentAwareness, len(ps.DocumentAwareness)),
		Subscriptions:     make(map[types.DocumentId]struct{}, len(ps.Subscriptions)),
		Channels:          make(map[types.ChannelId]struct{}, len(ps.Channels)),
		LastSeen:          ps.LastSeen,
	}
	for k, v := range ps.DocumentAwareness {
		cp := *v
		out.DocumentAwareness[k] = &cp
	}
	for k := range ps.Subscriptions {
		out.Subscriptions[k] = struct{}{}
	}
	for k := range ps.Channels {
		out.Channels[k] = struct{}{}
	}
	return out
}

// GetChannelsForDocument returns channel metadata for every channel bound
// to a peer that is subscribed to, or aware of, docId, optionally narrowed
// by filter.
func (disp *Dispatcher) GetChannelsForDocument(docId types.DocumentId, filter ChannelFilter) []ChannelMeta {
	disp.mu.Lock()
	defer disp.mu.Unlock()

	var out []ChannelMeta
	for _, peer := range disp.deps.Model.Peers {
		_, aware := peer.DocumentAwareness[docId]
		_, subscribed := peer.Subscriptions[docId]
		if !aware && !subscribed {
			continue
		}
		for chId := range peer.Channels {
			ch := disp.deps.Model.Channels[chId]
			if ch == nil {
				continue
			}
			meta := ChannelMeta{ChannelId: chId, Kind: ch.Kind, PeerId: ch.PeerId, State: ch.State}
			if filter == nil || filter(meta) {
				out = append(out, meta)
			}
		}
	}
	return out
}

// GetReadyStates maps every channel bound to any known peer to whether that
// peer still appears to be loading docId: Loading is true unless the peer's
// awareness of docId is AwarenessHas, including when it has no awareness
// entry for docId at all.
func (disp *Dispatcher) GetReadyStates(docId types.DocumentId) []ReadyState {
	disp.mu.Lock()
	defer disp.mu.Unlock()

	var out []ReadyState
	for _, peer := range disp.deps.Model.Peers {
		aw, known := peer.DocumentAwareness[docId]
		loading := !known || aw.State != types.AwarenessHas
		for chId := range peer.Channels {
			ch := disp.deps.Model.Channels[chId]
			if ch == nil {
				continue
			}
			out = append(out, ReadyState{
				Channel: ChannelMeta{ChannelId: chId, Kind: ch.Kind, PeerId: ch.PeerId, State: ch.State},
				Loading: loading,
			})
		}
	}
	return out
}
