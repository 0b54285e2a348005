package types

// MessageKind enumerates the variants the Message Router's single entry
// point must handle. Unlike ProtocolKind, these also cover messages that
// never touch the wire (timeouts, local document changes, caller
// requests).
type MessageKind int

const (
	KindChannelMessage MessageKind = iota
	KindChannelRemoved
	KindDocumentChanged
	KindTimeoutFired
	KindEnsureDocument
	KindDeleteDocument
)

// Message is the sum type dispatch(message, model) consumes. Every handler
// must be total over the variants it claims; unknown messages are logged
// and dropped by the router.
type Message interface {
	MessageKind() MessageKind
}

// ChannelMessage wraps a ProtocolMessage with the channel id it arrived on.
// This is the only variant produced by adapters' onReceive callbacks.
type ChannelMessage struct {
	ChannelId ChannelId
	Inner     ProtocolMessage
}

func (ChannelMessage) MessageKind() MessageKind { return KindChannelMessage }

// ChannelRemoved notifies the router that a channel's adapter tore it down
// (explicit stop, or a TransportFailure the adapter chose to surface as a
// removal).
type ChannelRemoved struct {
	ChannelId ChannelId
}

func (ChannelRemoved) MessageKind() MessageKind { return KindChannelRemoved }

// DocumentChanged notifies the router that the external CRDT engine emitted
// a change event for a document, local-origin or imported -- the core does
// not distinguish the two at this layer.
type DocumentChanged struct {
	DocId DocumentId
}

func (DocumentChanged) MessageKind() MessageKind { return KindDocumentChanged }

// TimeoutFired notifies the router that a previously-set timeout key
// elapsed before it was cleared.
type TimeoutFired struct {
	Key string
}

func (TimeoutFired) MessageKind() MessageKind { return KindTimeoutFired }

// EnsureDocument is the message-level form of the public ensureDocument
// call: idempotently create-or-attach a document, optionally resolving
// requestId when it reaches a terminal readiness state.
type EnsureDocument struct {
	DocId     DocumentId
	RequestId RequestId
}

func (EnsureDocument) MessageKind() MessageKind { return KindEnsureDocument }

// DeleteDocument is the message-level form of the public deleteDocument
// call.
type DeleteDocument struct {
	DocId     DocumentId
	RequestId RequestId
}

func (DeleteDocument) MessageKind() MessageKind { return KindDeleteDocument }
