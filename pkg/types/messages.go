package types

import "github.com/stitchsync/syncore/pkg/crdt"

// ProtocolKind enumerates the exhaustive set of post-establishment wire
// messages (plus the handshake itself). Framing is each adapter's concern;
// the core only ever sees these typed values.
type ProtocolKind int

const (
	KindEstablishRequest ProtocolKind = iota
	KindEstablishResponse
	KindSyncRequest
	KindSyncResponse
	KindDirectoryRequest
	KindDirectoryResponse
	KindDeleteRequest
	KindDeleteResponse
)

func (k ProtocolKind) String() string {
	switch k {
	case KindEstablishRequest:
		return "establish-request"
	case KindEstablishResponse:
		return "establish-response"
	case KindSyncRequest:
		return "sync-request"
	case KindSyncResponse:
		return "sync-response"
	case KindDirectoryRequest:
		return "directory-request"
	case KindDirectoryResponse:
		return "directory-response"
	case KindDeleteRequest:
		return "delete-request"
	case KindDeleteResponse:
		return "delete-response"
	default:
		return "unknown-protocol-message"
	}
}

// ProtocolMessage is any message an adapter may carry across an established
// channel (establish-request/response are the sole exception, allowed on a
// connected-but-not-established channel).
type ProtocolMessage interface {
	ProtocolKind() ProtocolKind
}

// EstablishRequest is sent by the initiator of a handshake, allowed only on
// a connected-but-not-established channel.
type EstablishRequest struct {
	Identity PeerIdentity
}

func (EstablishRequest) ProtocolKind() ProtocolKind { return KindEstablishRequest }

// EstablishResponse is the acceptor's reply.
type EstablishResponse struct {
	Identity PeerIdentity
}

func (EstablishResponse) ProtocolKind() ProtocolKind { return KindEstablishResponse }

// SyncRequestDoc is one document entry in a sync-request.
type SyncRequestDoc struct {
	DocId            DocumentId
	RequesterVersion crdt.VersionVector
}

// SyncRequest advertises the requester's current version vector per
// document and asks the responder to catch it up.
type SyncRequest struct {
	Docs []SyncRequestDoc
}

func (SyncRequest) ProtocolKind() ProtocolKind { return KindSyncRequest }

// TransmissionKind selects which variant a Transmission carries.
type TransmissionKind int

const (
	TransmissionSnapshot TransmissionKind = iota
	TransmissionUpdate
	TransmissionUpToDate
	TransmissionUnavailable
)

func (k TransmissionKind) String() string {
	switch k {
	case TransmissionSnapshot:
		return "snapshot"
	case TransmissionUpdate:
		return "update"
	case TransmissionUpToDate:
		return "up-to-date"
	case TransmissionUnavailable:
		return "unavailable"
	default:
		return "unknown-transmission"
	}
}

// Transmission is the payload of a sync-response.
type Transmission struct {
	Kind    TransmissionKind
	Data    []byte
	Version crdt.VersionVector
}

// SyncResponse answers one document of a sync-request, or is pushed
// unsolicited by the Local Change Fan-out.
type SyncResponse struct {
	DocId        DocumentId
	Transmission Transmission
}

func (SyncResponse) ProtocolKind() ProtocolKind { return KindSyncResponse }

// DirectoryRequest asks the peer to enumerate document ids it is willing
// to reveal to us.
type DirectoryRequest struct{}

func (DirectoryRequest) ProtocolKind() ProtocolKind { return KindDirectoryRequest }

// DirectoryResponse enumerates document ids the peer is willing to reveal.
type DirectoryResponse struct {
	DocIds []DocumentId
}

func (DirectoryResponse) ProtocolKind() ProtocolKind { return KindDirectoryResponse }

// DeleteRequest asks the peer to delete a document.
type DeleteRequest struct {
	DocId DocumentId
}

func (DeleteRequest) ProtocolKind() ProtocolKind { return KindDeleteRequest }

// DeleteStatus reports the outcome of a delete-request.
type DeleteStatus int

const (
	Deleted DeleteStatus = iota
	Ignored
)

// DeleteResponse replies to a delete-request.
type DeleteResponse struct {
	DocId  DocumentId
	Status DeleteStatus
}

func (DeleteResponse) ProtocolKind() ProtocolKind { return KindDeleteResponse }
