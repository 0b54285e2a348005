package core

import (
	"time"

	"github.com/stitchsync/syncore/pkg/crdt"
	"github.com/stitchsync/syncore/pkg/crdt/fakedoc"
	"github.com/stitchsync/syncore/pkg/types"
)

// recordedSend captures one outbound message for assertions.
type recordedSend struct {
	channelId types.ChannelId
	msg       types.ProtocolMessage
}

// testChannel is a no-op channel whose Send records instead of transmitting.
type testChannel struct {
	sent []types.ProtocolMessage
}

func (c *testChannel) send(msg types.ProtocolMessage) error {
	c.sent = append(c.sent, msg)
	return nil
}

func newTestDeps(identity types.PeerIdentity) *Deps {
	canReveal, canUpdate := types.AllowAll()
	return &Deps{
		Model:  types.NewModel(identity),
		Config: &types.Configuration{Name: identity.Name, RequestTimeout: 50 * time.Millisecond, SnapshotThresholdRatio: 0.6},
		CanReveal: canReveal,
		CanUpdate: canUpdate,
		NewDocument: func(id types.DocumentId) crdt.Document {
			return fakedoc.New(string(identity.PeerId) + ":" + string(id))
		},
	}
}

// attachTestChannel puts a Channel of kind directly into the model in a
// given state, bypassing AttachChannel when the test wants to start from an
// already-connected or already-established channel.
func attachTestChannel(d *Deps, kind types.ChannelKind, state types.ChannelState, peerId types.PeerId) (types.ChannelId, *testChannel) {
	tc := &testChannel{}
	id := d.Model.NextChannelId()
	ch := &types.Channel{
		Kind:      kind,
		Send:      tc.send,
		Stop:      func() {},
		State:     state,
		ChannelId: id,
		PeerId:    peerId,
	}
	d.Model.Channels[id] = ch
	return id, tc
}

// sentMessages filters cmds for SendMessageCmd values and returns their
// messages in order.
func sentMessages(cmds []types.Command) []types.ProtocolMessage {
	var out []types.ProtocolMessage
	for _, cmd := range cmds {
		if sc, ok := cmd.(types.SendMessageCmd); ok {
			out = append(out, sc.Message)
		}
	}
	return out
}

func hasCommandKind(cmds []types.Command, kind types.CommandKind) bool {
	for _, cmd := range cmds {
		if cmd.CommandKind() == kind {
			return true
		}
	}
	return false
}
