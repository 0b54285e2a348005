// Package syncore is the caller-facing facade over the synchronization
// core: ensureDocument, deleteDocument, subscribeToDocument, and the
// read-only query helpers. It wires a core.Dispatcher to a set of
// adapter.Adapter transports and runs the dispatch loop.
package syncore

import (
	"context"
	"fmt"

	"github.com/hannahhoward/go-pubsub"

	"github.com/stitchsync/syncore/pkg/adapter"
	"github.com/stitchsync/syncore/pkg/core"
	"github.com/stitchsync/syncore/pkg/crdt"
	"github.com/stitchsync/syncore/pkg/types"
)

type documentChangedEvt struct {
	docId types.DocumentId
}

type documentSubscriberFn func(types.DocumentId)

func dispatchDocumentEvent(evt pubsub.Event, subFn pubsub.SubscriberFn) error {
	e, ok := evt.(documentChangedEvt)
	if !ok {
		return fmt.Errorf("syncore: unexpected event type %T", evt)
	}
	sub, ok := subFn.(documentSubscriberFn)
	if !ok {
		return fmt.Errorf("syncore: unexpected subscriber type %T", subFn)
	}
	sub(e.docId)
	return nil
}

// Repo is one local replica of the document repository: the dispatcher
// loop, the adapters feeding it channels, and the local fan-out used by
// subscribeToDocument.
type Repo struct {
	disp      *core.Dispatcher
	ps        *pubsub.PubSub
	adapters  []adapter.Adapter
	cancel    context.CancelFunc
}

// Options configures a new Repo.
type Options struct {
	Identity    types.PeerIdentity
	Config      *types.Configuration
	CanReveal   types.CanRevealFunc
	CanUpdate   types.CanUpdateFunc
	NewDocument func(types.DocumentId) crdt.Document
	Adapters    []adapter.Adapter
}

// New constructs a Repo and starts its dispatch loop and adapters. Call
// Close to stop both.
func New(ctx context.Context, opts Options) (*Repo, error) {
	canReveal, canUpdate := opts.CanReveal, opts.CanUpdate
	if canReveal == nil || canUpdate == nil {
		allowReveal, allowUpdate := types.AllowAll()
		if canReveal == nil {
			canReveal = allowReveal
		}
		if canUpdate == nil {
			canUpdate = allowUpdate
		}
	}

	deps := &core.Deps{
		Model:       types.NewModel(opts.Identity),
		Config:      opts.Config,
		CanReveal:   canReveal,
		CanUpdate:   canUpdate,
		NewDocument: opts.NewDocument,
	}
	events, err := core.NewEvents()
	if err != nil {
		return nil, err
	}
	disp := core.NewDispatcher(deps, events)

	runCtx, cancel := context.WithCancel(ctx)
	go disp.Run(runCtx)

	r := &Repo{
		disp:   disp,
		cancel: cancel,
		ps:     pubsub.New(dispatchDocumentEvent),
	}
	r.bridgeReadyEvents(runCtx, events)

	hooks := disp.Hooks()
	for _, a := range opts.Adapters {
		a.Init(hooks)
		if err := a.Start(runCtx); err != nil {
			cancel()
			return nil, fmt.Errorf("syncore: starting adapter: %w", err)
		}
		r.adapters = append(r.adapters, a)
	}

	return r, nil
}

// Close stops the dispatch loop and every adapter.
func (r *Repo) Close() {
	r.cancel()
	for _, a := range r.adapters {
		a.Deinit()
	}
}

// EnsureDocument idempotently creates-or-attaches docId and blocks until it
// reaches a terminal readiness state (loaded, unavailable, or timeout).
func (r *Repo) EnsureDocument(ctx context.Context, docId types.DocumentId) (loaded bool, err error) {
	reqId := types.NewRequestId()
	r.disp.Enqueue(types.EnsureDocument{DocId: docId, RequestId: reqId})
	payload, err := r.disp.Await(ctx, reqId)
	if err != nil {
		return false, err
	}
	result, _ := payload.(map[string]interface{})
	loaded, _ = result["loaded"].(bool)
	return loaded, nil
}

// DeleteDocument removes docId locally and asks subscribed peers to do the
// same.
func (r *Repo) DeleteDocument(ctx context.Context, docId types.DocumentId) error {
	reqId := types.NewRequestId()
	r.disp.Enqueue(types.DeleteDocument{DocId: docId, RequestId: reqId})
	_, err := r.disp.Await(ctx, reqId)
	return err
}

// SubscribeToDocument registers callback to be invoked locally after each
// local change notified for docId and after each sync-response the core
// processes for docId, whether or not that response changed the document.
// Deleting docId does not invoke it. The returned func removes the
// subscription.
func (r *Repo) SubscribeToDocument(docId types.DocumentId, callback func()) (unsubscribe func()) {
	var fn documentSubscriberFn = func(changed types.DocumentId) {
		if changed == docId {
			callback()
		}
	}
	return r.ps.Subscribe(fn)
}

// NotifyLocalChange tells the Repo that docId's CRDT instance emitted a
// change event. Application code that mutates a crdt.Document directly
// (rather than relying on the core's own cmd/subscribe-doc wiring) should
// call this after the mutation.
func (r *Repo) NotifyLocalChange(docId types.DocumentId) {
	r.disp.Enqueue(types.DocumentChanged{DocId: docId})
}

// bridgeReadyEvents republishes the dispatcher's internal DocumentReadyEvent
// observability stream onto the caller-facing pubsub fan-out, so
// SubscribeToDocument callbacks fire regardless of whether a change
// originated from cmd/subscribe-doc or from NotifyLocalChange.
func (r *Repo) bridgeReadyEvents(ctx context.Context, events *core.Events) {
	bus := events.Bus()
	if bus == nil {
		return
	}
	sub, err := bus.Subscribe(new(core.DocumentReadyEvent))
	if err != nil {
		return
	}
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub.Out():
				if !ok {
					return
				}
				if evt, ok := raw.(core.DocumentReadyEvent); ok {
					_ = r.ps.Publish(documentChangedEvt{docId: evt.DocId})
				}
			}
		}
	}()
}

// GetPeerState implements the query helper of the same name.
func (r *Repo) GetPeerState(peerId types.PeerId) (types.PeerState, bool) {
	return r.disp.GetPeerState(peerId)
}

// GetChannelsForDocument implements the query helper of the same name.
func (r *Repo) GetChannelsForDocument(docId types.DocumentId, filter core.ChannelFilter) []core.ChannelMeta {
	return r.disp.GetChannelsForDocument(docId, filter)
}

// GetReadyStates implements the query helper of the same name.
func (r *Repo) GetReadyStates(docId types.DocumentId) []core.ReadyState {
	return r.disp.GetReadyStates(docId)
}
