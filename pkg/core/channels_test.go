package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchsync/syncore/pkg/types"
)

func TestAttachChannelSendsEstablishRequest(t *testing.T) {
	d := newTestDeps(types.PeerIdentity{PeerId: "local", Name: "local"})
	tc := &testChannel{}
	gc := types.GeneratedChannel{AdapterId: "a1", Kind: types.ChannelNetwork, Send: tc.send, Stop: func() {}}

	id, cmds := AttachChannel(d, gc)

	ch, ok := d.Model.Channels[id]
	require.True(t, ok)
	assert.Equal(t, types.StateConnected, ch.State)

	msgs := sentMessages(cmds)
	require.Len(t, msgs, 1)
	req, ok := msgs[0].(types.EstablishRequest)
	require.True(t, ok)
	assert.Equal(t, types.PeerId("local"), req.Identity.PeerId)
}

func TestDetachChannelRemovesFromPeerSet(t *testing.T) {
	d := newTestDeps(types.PeerIdentity{PeerId: "local", Name: "local"})
	id, _ := attachTestChannel(d, types.ChannelNetwork, types.StateEstablished, "remote")
	peer, _ := d.Model.EnsurePeer(types.PeerIdentity{PeerId: "remote", Name: "remote"})
	peer.Channels[id] = struct{}{}

	cmds := DetachChannel(d, id)

	assert.Empty(t, cmds)
	_, stillThere := d.Model.Channels[id]
	assert.False(t, stillThere)
	_, stillBound := peer.Channels[id]
	assert.False(t, stillBound)
	_, peerStillKnown := d.Model.Peers["remote"]
	assert.True(t, peerStillKnown, "peer state must survive its last channel detaching")
}

func TestDetachUnknownChannelWarnsAndDoesNotPanic(t *testing.T) {
	d := newTestDeps(types.PeerIdentity{PeerId: "local", Name: "local"})
	cmds := DetachChannel(d, types.ChannelId(999))
	assert.True(t, hasCommandKind(cmds, types.CmdLog))
}
