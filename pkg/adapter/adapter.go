// Package adapter defines the transport-side contract between the
// synchronization core and concrete transports: an adapter produces
// GeneratedChannel values and the Repo upgrades them to connected channels
// via the Hooks it is handed at Init time.
package adapter

import (
	"context"

	"github.com/stitchsync/syncore/pkg/types"
)

// Hooks is what the core hands an adapter at Init time.
type Hooks struct {
	// AddChannel upgrades a generated channel to connected: it assigns a
	// channelId and returns it so the adapter can tag inbound traffic
	// with it via Deliver.
	AddChannel func(types.GeneratedChannel) types.ChannelId

	// Deliver feeds an inbound protocol message, received on channelId,
	// into the router -- the adapter calls it instead of the core reaching
	// into the adapter.
	Deliver func(types.ChannelId, types.ProtocolMessage)

	// RemoveChannel tells the core a channel's adapter tore itself down
	// (as opposed to the core calling the channel's Stop func).
	RemoveChannel func(types.ChannelId)
}

// Adapter is the transport lifecycle contract. Generate is intentionally
// not part of this interface: adapters call hooks.AddChannel whenever they
// have a new channel ready, which may happen zero, one, or many times
// depending on the transport (a bridge pairs exactly one, a network
// listener may accept many, storage presents exactly one synthetic
// channel).
type Adapter interface {
	// Init is called once, before Start, with the hooks this adapter
	// should use to announce channels.
	Init(hooks Hooks)

	// Start begins producing channels. It must return once startup is
	// underway; long-running work (listen loops, reconnect loops) runs on
	// goroutines the adapter manages and tears down when ctx is
	// cancelled.
	Start(ctx context.Context) error

	// Deinit releases any resources Start acquired. Called after ctx is
	// cancelled.
	Deinit()
}
