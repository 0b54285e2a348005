package types

import "fmt"

// Kind enumerates the error classes the core can produce. These are never
// fatal to the dispatcher (see CoreError's doc comment); the shell decides
// what, if anything, to do beyond logging.
type Kind int

const (
	ProtocolViolation Kind = iota
	UnknownChannel
	UnknownDocument
	PermissionDenied
	Timeout
	TransportFailure
	Malformed
)

func (k Kind) String() string {
	switch k {
	case ProtocolViolation:
		return "protocol_violation"
	case UnknownChannel:
		return "unknown_channel"
	case UnknownDocument:
		return "unknown_document"
	case PermissionDenied:
		return "permission_denied"
	case Timeout:
		return "timeout"
	case TransportFailure:
		return "transport_failure"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// CoreError carries a Kind plus enough context (channel/document/peer) for
// a log line to be actionable, without requiring callers to string-match
// error messages. No CoreError ever stops the dispatcher; it is either
// logged and the offending message dropped, or surfaced via
// cmd/reject-request.
type CoreError struct {
	Kind      Kind
	ChannelId ChannelId
	DocId     DocumentId
	PeerId    PeerId
	Err       error
}

func (e *CoreError) Error() string {
	return fmt.Sprintf("%s: channel=%d doc=%s peer=%s: %v", e.Kind, e.ChannelId, e.DocId, e.PeerId, e.Err)
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// NewError builds a CoreError with the given kind and wrapped cause.
func NewError(kind Kind, err error) *CoreError {
	return &CoreError{Kind: kind, Err: err}
}

func (e *CoreError) WithChannel(id ChannelId) *CoreError {
	e.ChannelId = id
	return e
}

func (e *CoreError) WithDocument(id DocumentId) *CoreError {
	e.DocId = id
	return e
}

func (e *CoreError) WithPeer(id PeerId) *CoreError {
	e.PeerId = id
	return e
}
