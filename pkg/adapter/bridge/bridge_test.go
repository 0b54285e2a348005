package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchsync/syncore/pkg/adapter"
	"github.com/stitchsync/syncore/pkg/types"
)

type recordingHooks struct {
	addedKind    types.ChannelKind
	delivered    []types.ProtocolMessage
	removedCalls int
}

func (r *recordingHooks) hooksFor(id types.ChannelId) adapter.Hooks {
	return adapter.Hooks{
		AddChannel: func(gc types.GeneratedChannel) types.ChannelId {
			r.addedKind = gc.Kind
			return id
		},
		Deliver: func(_ types.ChannelId, msg types.ProtocolMessage) {
			r.delivered = append(r.delivered, msg)
		},
		RemoveChannel: func(types.ChannelId) {
			r.removedCalls++
		},
	}
}

func TestBridgePairDeliversSendAsGoCall(t *testing.T) {
	a, b := Pair("a", "b")
	hooksA := &recordingHooks{}
	hooksB := &recordingHooks{}
	a.Init(hooksA.hooksFor(1))
	b.Init(hooksB.hooksFor(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	assert.Equal(t, types.ChannelBridge, hooksA.addedKind)

	require.NoError(t, a.send(types.EstablishRequest{}))
	require.Len(t, hooksB.delivered, 1)
	_, ok := hooksB.delivered[0].(types.EstablishRequest)
	assert.True(t, ok)
}

func TestBridgeSendBeforeOwnSideStartedStillReachesPeer(t *testing.T) {
	a, b := Pair("a", "b")
	hooksB := &recordingHooks{}
	a.Init(adapter.Hooks{AddChannel: func(types.GeneratedChannel) types.ChannelId { return 1 }})
	b.Init(hooksB.hooksFor(2))

	// a never called Start: its hooks are set but closed defaults to false,
	// so a.send would actually reach b -- the real guard against sending
	// into a peer that hasn't registered yet lives on the receiving side's
	// closed flag, not on whether the sender itself started.
	require.NoError(t, a.send(types.EstablishRequest{}))
	assert.Len(t, hooksB.delivered, 1, "Start only registers the channel id with the core; sending doesn't require it")
}

func TestBridgeContextCancelTearsDownAndRemoveChannelFires(t *testing.T) {
	a, b := Pair("a", "b")
	hooksA := &recordingHooks{}
	a.Init(hooksA.hooksFor(1))
	b.Init(adapter.Hooks{AddChannel: func(types.GeneratedChannel) types.ChannelId { return 2 }})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	cancel()
	assert.Eventually(t, func() bool {
		return hooksA.removedCalls == 1
	}, time.Second, 5*time.Millisecond)

	// A second teardown (Deinit after context cancel already tore it down)
	// must not double-fire RemoveChannel.
	a.Deinit()
	assert.Equal(t, 1, hooksA.removedCalls)
}

func TestBridgeCoreInitiatedStopDoesNotFireRemoveChannel(t *testing.T) {
	a, b := Pair("a", "b")
	hooksA := &recordingHooks{}
	var captured types.GeneratedChannel
	var removeCalls int
	a.Init(adapter.Hooks{
		AddChannel: func(gc types.GeneratedChannel) types.ChannelId {
			captured = gc
			return 1
		},
		RemoveChannel: func(types.ChannelId) { removeCalls++ },
	})
	b.Init(hooksA.hooksFor(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	captured.Stop() // core-initiated: must mark closed without calling RemoveChannel
	require.NoError(t, a.send(types.EstablishRequest{}), "send after core-initiated stop must be a harmless no-op")
	assert.Zero(t, removeCalls, "a core-initiated stop must not call back into RemoveChannel")
}
