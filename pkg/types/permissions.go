package types

import "github.com/stitchsync/syncore/pkg/crdt"

// PermissionContext is passed to the application-provided CanReveal and
// CanUpdate predicates. It is computed fresh at each send/import site and
// never cached in state -- policy may legitimately change between ticks.
type PermissionContext struct {
	PeerName    string
	ChannelId   ChannelId
	ChannelKind ChannelKind
	DocId       DocumentId
	Doc         crdt.Document
}

// CanRevealFunc gates whether a document id may be announced to a peer on
// a channel (directory-response entries, and local-change fan-out's
// unsolicited directory pushes).
type CanRevealFunc func(ctx PermissionContext) bool

// CanUpdateFunc gates whether an incoming update for a document may be
// applied.
type CanUpdateFunc func(ctx PermissionContext) bool

// AllowAll is the identity permission set: every reveal/update is allowed.
// Useful for tests and for callers that have no permission model yet.
func AllowAll() (CanRevealFunc, CanUpdateFunc) {
	return func(PermissionContext) bool { return true },
		func(PermissionContext) bool { return true }
}
