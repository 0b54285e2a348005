package core

import (
	"github.com/libp2p/go-eventbus"
	"github.com/libp2p/go-libp2p-core/event"

	"github.com/stitchsync/syncore/pkg/types"
)

// DocumentReadyEvent is emitted after every local change to a document and
// after every sync-response processed for a document this replica holds,
// including up-to-date and unavailable responses, so it does not imply
// that the version advanced. It lets an observer (a UI layer, a metrics
// exporter) watch synchronization progress without threading a callback
// through every handler -- the same role p.h.EventBus() plays for libp2p
// protocol state.
type DocumentReadyEvent struct {
	DocId   types.DocumentId
	PeerId  types.PeerId
	Version []byte
}

// PeerEstablishedEvent is emitted once a channel completes the
// establishment handshake and is bound to a peer.
type PeerEstablishedEvent struct {
	PeerId    types.PeerId
	ChannelId types.ChannelId
}

// ModelSnapshotEvent is emitted once per dispatcher tick: a cheap,
// read-only count of the model's shape plus the message kind that just
// produced it, for observers that want to chart synchronization activity
// without holding a reference into the live model.
type ModelSnapshotEvent struct {
	PeerCount     int
	ChannelCount  int
	DocumentCount int
	MessageKind   types.MessageKind
}

// Events wraps the event bus the Dispatcher emits on. A nil or zero value
// is usable: it has no emitters, so emitting on it is a no-op, and tests
// that don't care about observability can skip wiring it up. NewEvents
// builds one that actually emits.
type Events struct {
	bus              event.Bus
	readyEmitter     event.Emitter
	establishEmitter event.Emitter
	snapshotEmitter  event.Emitter
}

// NewEvents constructs an Events backed by a fresh in-process bus.
func NewEvents() (*Events, error) {
	bus := eventbus.NewBus()
	readyEmitter, err := bus.Emitter(new(DocumentReadyEvent))
	if err != nil {
		return nil, err
	}
	establishEmitter, err := bus.Emitter(new(PeerEstablishedEvent))
	if err != nil {
		return nil, err
	}
	snapshotEmitter, err := bus.Emitter(new(ModelSnapshotEvent))
	if err != nil {
		return nil, err
	}
	return &Events{bus: bus, readyEmitter: readyEmitter, establishEmitter: establishEmitter, snapshotEmitter: snapshotEmitter}, nil
}

// Bus exposes the underlying event.Bus so callers can Subscribe directly.
func (e *Events) Bus() event.Bus {
	if e == nil {
		return nil
	}
	return e.bus
}

func (e *Events) emitDocumentReady(evt DocumentReadyEvent) {
	if e == nil || e.readyEmitter == nil {
		return
	}
	_ = e.readyEmitter.Emit(evt)
}

func (e *Events) emitPeerEstablished(evt PeerEstablishedEvent) {
	if e == nil || e.establishEmitter == nil {
		return
	}
	_ = e.establishEmitter.Emit(evt)
}

func (e *Events) emitModelSnapshot(evt ModelSnapshotEvent) {
	if e == nil || e.snapshotEmitter == nil {
		return
	}
	_ = e.snapshotEmitter.Emit(evt)
}
