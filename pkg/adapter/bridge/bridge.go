// Package bridge implements an in-process, paired-channel adapter: two
// repositories wired directly together without any serialization, the way
// a unit test or a single-process demo connects peers. Grounded on the
// teacher's in-process test-cluster idiom (test/testing.go), which wires
// mcast.Peer instances together without a network in between.
package bridge

import (
	"context"
	"sync"

	"github.com/stitchsync/syncore/pkg/adapter"
	"github.com/stitchsync/syncore/pkg/types"
)

// Pair creates two bridge adapters that deliver each other's sends
// directly as a Go function call.
func Pair(adapterIdA, adapterIdB string) (*Bridge, *Bridge) {
	a := &Bridge{adapterId: adapterIdA}
	b := &Bridge{adapterId: adapterIdB}
	a.peer = b
	b.peer = a
	return a, b
}

// Bridge is one side of an in-process channel pair.
type Bridge struct {
	adapterId string
	peer      *Bridge

	mu        sync.Mutex
	hooks     adapter.Hooks
	channelId types.ChannelId
	closed    bool
}

var _ adapter.Adapter = (*Bridge)(nil)

func (b *Bridge) Init(hooks adapter.Hooks) {
	b.mu.Lock()
	b.hooks = hooks
	b.mu.Unlock()
}

// Start registers this side's channel. Sending does not depend on Start:
// a send reaches the peer as soon as the peer's Init has installed its
// Deliver hook (before the peer's Start it is tagged with the zero channel
// id), and is silently dropped while the peer has no Deliver hook or is
// closed.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	hooks := b.hooks
	b.mu.Unlock()

	gc := types.GeneratedChannel{
		AdapterId: b.adapterId,
		Kind:      types.ChannelBridge,
		Send:      b.send,
		Stop:      b.coreInitiatedStop,
	}
	id := hooks.AddChannel(gc)
	b.mu.Lock()
	b.channelId = id
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.selfTeardown()
	}()
	return nil
}

func (b *Bridge) Deinit() {
	b.selfTeardown()
}

func (b *Bridge) send(msg types.ProtocolMessage) error {
	b.mu.Lock()
	peer := b.peer
	closed := b.closed
	b.mu.Unlock()
	if closed || peer == nil {
		return nil
	}
	peer.deliver(msg)
	return nil
}

func (b *Bridge) deliver(msg types.ProtocolMessage) {
	b.mu.Lock()
	hooks := b.hooks
	id := b.channelId
	closed := b.closed
	b.mu.Unlock()
	if closed || hooks.Deliver == nil {
		return
	}
	hooks.Deliver(id, msg)
}

// coreInitiatedStop is wired as GeneratedChannel.Stop: the core calls this
// when it detaches the channel itself (e.g. DetachChannel), so it must not
// call back into RemoveChannel.
func (b *Bridge) coreInitiatedStop() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// selfTeardown is used when the adapter decides, on its own, that the
// channel is gone (context cancellation here; a real network adapter would
// call this on a connection error).
func (b *Bridge) selfTeardown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	hooks := b.hooks
	id := b.channelId
	b.mu.Unlock()
	if hooks.RemoveChannel != nil {
		hooks.RemoveChannel(id)
	}
}
