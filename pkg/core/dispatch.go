package core

import (
	"context"
	"sync"
	"time"

	"github.com/stitchsync/syncore/pkg/adapter"
	"github.com/stitchsync/syncore/pkg/crdt"
	"github.com/stitchsync/syncore/pkg/types"
)

// requestOutcome carries a resolve/reject outcome to whatever goroutine
// called Await for a given requestId.
type requestOutcome struct {
	payload interface{}
	err     error
}

// Dispatcher routes messages to the pure handlers and executes the
// commands they return. It owns the single mutex guarding model mutation,
// guaranteeing the pure update function never runs re-entrantly, while
// commands -- the only step that performs I/O -- execute outside that lock
// via the Invoker.
type Dispatcher struct {
	deps    *Deps
	events  *Events
	invoker Invoker

	mu sync.Mutex

	inbox chan types.Message

	subscribed map[types.DocumentId]struct{}

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	pendingMu sync.Mutex
	pending   map[types.RequestId]chan requestOutcome
}

// NewDispatcher wires a Dispatcher around deps. events may be nil, in which
// case observability is a no-op.
func NewDispatcher(deps *Deps, events *Events) *Dispatcher {
	return &Dispatcher{
		deps:       deps,
		events:     events,
		invoker:    InvokerInstance(),
		inbox:      make(chan types.Message, 256),
		subscribed: make(map[types.DocumentId]struct{}),
		timers:     make(map[string]*time.Timer),
		pending:    make(map[types.RequestId]chan requestOutcome),
	}
}

// Enqueue hands a message to the dispatcher's single inbox. Safe to call
// from any goroutine; it is the only way adapters and the public API reach
// the core.
func (disp *Dispatcher) Enqueue(msg types.Message) {
	disp.inbox <- msg
}

// Run drains the inbox until ctx is cancelled. Exactly one goroutine should
// call Run. Each message is fully routed (handler plus command dispatch)
// before the next is dequeued, which is what gives the model its
// single-threaded semantics despite commands running concurrently.
func (disp *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			disp.stopAllTimers()
			return
		case msg := <-disp.inbox:
			disp.process(msg)
		}
	}
}

func (disp *Dispatcher) process(msg types.Message) {
	disp.mu.Lock()
	cmds := disp.route(msg)
	disp.emitModelSnapshot(msg.MessageKind())
	disp.mu.Unlock()

	disp.execute(cmds)
}

func (disp *Dispatcher) emitModelSnapshot(kind types.MessageKind) {
	if disp.events == nil {
		return
	}
	disp.events.emitModelSnapshot(ModelSnapshotEvent{
		PeerCount:     len(disp.deps.Model.Peers),
		ChannelCount:  len(disp.deps.Model.Channels),
		DocumentCount: len(disp.deps.Model.Documents),
		MessageKind:   kind,
	})
}

// route must only be called with disp.mu held.
func (disp *Dispatcher) route(msg types.Message) []types.Command {
	switch m := msg.(type) {
	case types.ChannelMessage:
		return disp.routeProtocolMessage(m)
	case types.ChannelRemoved:
		return DetachChannel(disp.deps, m.ChannelId)
	case types.DocumentChanged:
		cmds := NotifyDocumentChanged(disp.deps, m.DocId)
		disp.emitDocumentReady(m.DocId, types.PeerId(""))
		return cmds
	case types.TimeoutFired:
		return HandleTimeoutFired(disp.deps, m)
	case types.EnsureDocument:
		return HandleEnsureDocument(disp.deps, m)
	case types.DeleteDocument:
		return HandleDeleteDocument(disp.deps, m)
	default:
		return []types.Command{warnDropped("unrecognized message kind", map[string]interface{}{"kind": int(msg.MessageKind())})}
	}
}

func (disp *Dispatcher) routeProtocolMessage(m types.ChannelMessage) []types.Command {
	switch inner := m.Inner.(type) {
	case types.EstablishRequest:
		cmds := HandleEstablishRequest(disp.deps, m.ChannelId, inner)
		disp.emitPeerEstablished(m.ChannelId)
		return cmds
	case types.EstablishResponse:
		cmds := HandleEstablishResponse(disp.deps, m.ChannelId, inner)
		disp.emitPeerEstablished(m.ChannelId)
		return cmds
	case types.DirectoryRequest:
		return HandleDirectoryRequest(disp.deps, m.ChannelId)
	case types.DirectoryResponse:
		return HandleDirectoryResponse(disp.deps, m.ChannelId, inner)
	case types.SyncRequest:
		return HandleSyncRequest(disp.deps, m.ChannelId, inner)
	case types.SyncResponse:
		cmds := HandleSyncResponse(disp.deps, m.ChannelId, inner)
		peerId := types.PeerId("")
		if ch, ok := disp.deps.Model.Channels[m.ChannelId]; ok {
			peerId = ch.PeerId
		}
		disp.emitDocumentReady(inner.DocId, peerId)
		return cmds
	case types.DeleteRequest:
		return HandleDeleteRequest(disp.deps, m.ChannelId, inner)
	case types.DeleteResponse:
		return HandleDeleteResponse(disp.deps, m.ChannelId, inner)
	default:
		return []types.Command{warnDropped("unrecognized protocol message", map[string]interface{}{"channel_id": m.ChannelId})}
	}
}

func (disp *Dispatcher) emitPeerEstablished(channelId types.ChannelId) {
	if disp.events == nil {
		return
	}
	ch, ok := disp.deps.Model.Channels[channelId]
	if !ok || !types.IsEstablished(ch) {
		return
	}
	disp.events.emitPeerEstablished(PeerEstablishedEvent{PeerId: ch.PeerId, ChannelId: channelId})
}

func (disp *Dispatcher) emitDocumentReady(docId types.DocumentId, peerId types.PeerId) {
	if disp.events == nil {
		return
	}
	ds, ok := disp.deps.Model.Documents[docId]
	if !ok {
		return
	}
	disp.events.emitDocumentReady(DocumentReadyEvent{DocId: docId, PeerId: peerId, Version: ds.Doc.Version().Bytes()})
}

// AttachChannel is the adapter-facing entry point for bringing a freshly
// generated channel into the model; it wraps the pure AttachChannel with
// the dispatcher's locking and command execution.
func (disp *Dispatcher) AttachChannel(gc types.GeneratedChannel) types.ChannelId {
	disp.mu.Lock()
	id, cmds := AttachChannel(disp.deps, gc)
	disp.mu.Unlock()
	disp.execute(cmds)
	return id
}

// Deliver feeds an inbound protocol message received on channelId into the
// router. Adapters call this instead of reaching into the model directly.
func (disp *Dispatcher) Deliver(channelId types.ChannelId, msg types.ProtocolMessage) {
	disp.Enqueue(types.ChannelMessage{ChannelId: channelId, Inner: msg})
}

// RemoveChannel tells the core a channel's adapter tore itself down.
func (disp *Dispatcher) RemoveChannel(channelId types.ChannelId) {
	disp.Enqueue(types.ChannelRemoved{ChannelId: channelId})
}

// Hooks builds the adapter.Hooks this dispatcher hands to every Adapter at
// Init time.
func (disp *Dispatcher) Hooks() adapter.Hooks {
	return adapter.Hooks{
		AddChannel:    disp.AttachChannel,
		Deliver:       disp.Deliver,
		RemoveChannel: disp.RemoveChannel,
	}
}

// Await blocks until requestId is resolved or rejected, or ctx is done.
func (disp *Dispatcher) Await(ctx context.Context, requestId types.RequestId) (interface{}, error) {
	outcome := make(chan requestOutcome, 1)
	disp.pendingMu.Lock()
	disp.pending[requestId] = outcome
	disp.pendingMu.Unlock()

	select {
	case res := <-outcome:
		return res.payload, res.err
	case <-ctx.Done():
		disp.pendingMu.Lock()
		delete(disp.pending, requestId)
		disp.pendingMu.Unlock()
		return nil, ctx.Err()
	}
}

func (disp *Dispatcher) execute(cmds []types.Command) {
	for _, cmd := range cmds {
		disp.executeOne(cmd)
	}
}

func (disp *Dispatcher) executeOne(cmd types.Command) {
	switch c := cmd.(type) {
	case types.SendMessageCmd:
		disp.executeSend(c)
	case types.SubscribeDocCmd:
		disp.executeSubscribeDoc(c)
	case types.SetTimeoutCmd:
		disp.executeSetTimeout(c)
	case types.ClearTimeoutCmd:
		disp.executeClearTimeout(c)
	case types.ResolveRequestCmd:
		disp.settle(c.RequestId, c.Payload, nil)
	case types.RejectRequestCmd:
		disp.settle(c.RequestId, nil, c.Err)
	case types.LogCmd:
		disp.executeLog(c)
	case types.BatchCmd:
		disp.execute(c.Commands)
	}
}

func (disp *Dispatcher) executeSend(c types.SendMessageCmd) {
	disp.mu.Lock()
	ch, ok := disp.deps.Model.Channels[c.ToChannelId]
	disp.mu.Unlock()
	if !ok {
		return
	}
	send := ch.Send
	toChannelId := c.ToChannelId
	disp.invoker.Spawn(func() {
		if err := send(c.Message); err != nil {
			disp.deps.log().Warnf("send failed on channel %d: %v", toChannelId, err)
			disp.Enqueue(types.ChannelRemoved{ChannelId: toChannelId})
		}
	})
}

func (disp *Dispatcher) executeSubscribeDoc(c types.SubscribeDocCmd) {
	disp.mu.Lock()
	defer disp.mu.Unlock()
	if _, already := disp.subscribed[c.DocId]; already {
		return
	}
	ds, ok := disp.deps.Model.Documents[c.DocId]
	if !ok {
		return
	}
	disp.subscribed[c.DocId] = struct{}{}
	docId := c.DocId
	ds.Doc.Subscribe(func(crdt.ChangeEvent) {
		disp.Enqueue(types.DocumentChanged{DocId: docId})
	})
}

func (disp *Dispatcher) executeSetTimeout(c types.SetTimeoutCmd) {
	disp.timersMu.Lock()
	defer disp.timersMu.Unlock()
	if existing, ok := disp.timers[c.Key]; ok {
		existing.Stop()
	}
	key := c.Key
	disp.timers[key] = time.AfterFunc(c.Duration, func() {
		disp.Enqueue(types.TimeoutFired{Key: key})
	})
}

func (disp *Dispatcher) executeClearTimeout(c types.ClearTimeoutCmd) {
	disp.timersMu.Lock()
	defer disp.timersMu.Unlock()
	if t, ok := disp.timers[c.Key]; ok {
		t.Stop()
		delete(disp.timers, c.Key)
	}
}

func (disp *Dispatcher) executeLog(c types.LogCmd) {
	logger := disp.deps.log()
	if logger == nil {
		return
	}
	switch c.Level {
	case types.LogDebug:
		logger.Debugf("%s %v", c.Message, c.Fields)
	case types.LogInfo:
		logger.Infof("%s %v", c.Message, c.Fields)
	case types.LogWarn:
		logger.Warnf("%s %v", c.Message, c.Fields)
	case types.LogError:
		logger.Errorf("%s %v", c.Message, c.Fields)
	}
}

func (disp *Dispatcher) settle(requestId types.RequestId, payload interface{}, err error) {
	disp.pendingMu.Lock()
	outcome, ok := disp.pending[requestId]
	if ok {
		delete(disp.pending, requestId)
	}
	disp.pendingMu.Unlock()
	if !ok {
		return
	}
	outcome <- requestOutcome{payload: payload, err: err}
	close(outcome)
}

func (disp *Dispatcher) stopAllTimers() {
	disp.timersMu.Lock()
	defer disp.timersMu.Unlock()
	for key, t := range disp.timers {
		t.Stop()
		delete(disp.timers, key)
	}
}
