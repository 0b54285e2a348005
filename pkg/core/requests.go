package core

import (
	"errors"
	"strings"

	"github.com/stitchsync/syncore/pkg/types"
)

var errRequestTimedOut = errors.New("request timed out waiting for document readiness")

const ensureDocumentTimeoutPrefix = "ensure-document:"

func requestTimeoutKey(reqId types.RequestId) string {
	return ensureDocumentTimeoutPrefix + string(reqId)
}

// resolveActiveRequests drains ds.ActiveRequests, resolving each one with
// whether the document ended up loaded. ensureDocument resolves when
// loaded or unavailable, never rejects on a terminal negative outcome.
// Only a timeout rejects.
func resolveActiveRequests(ds *types.DocumentState, loaded bool) []types.Command {
	if len(ds.ActiveRequests) == 0 {
		return nil
	}
	var cmds []types.Command
	for reqId := range ds.ActiveRequests {
		cmds = append(cmds,
			types.ResolveRequestCmd{RequestId: reqId, Payload: map[string]interface{}{"docId": ds.DocId, "loaded": loaded}},
			types.ClearTimeoutCmd{Key: requestTimeoutKey(reqId)},
		)
	}
	ds.ActiveRequests = make(map[types.RequestId]struct{})
	return cmds
}

// HandleEnsureDocument implements the caller-side ensureDocument call,
// idempotently. A document that already has content resolves immediately;
// otherwise the request is parked on the DocumentState, a timeout is
// armed, and any peer already known to have it is asked for a sync. This
// sync request fires on every call that finds the document still empty --
// not only the one that first creates the DocumentState -- because a
// directory-response nudge (discovery.go's HandleDirectoryResponse) can
// create an empty DocumentState and record peer awareness for a docId
// well before any caller ever asks for it; gating the request on created
// would leave such a document waiting for a sync that is never sent.
// requestDocumentFromPeers is idempotent (it only ever emits more
// SyncRequest sends), so asking again here is harmless.
func HandleEnsureDocument(d *Deps, msg types.EnsureDocument) []types.Command {
	ds, _ := d.Model.EnsureDocument(msg.DocId, d.NewDocument(msg.DocId))
	if msg.RequestId == "" {
		return nil
	}

	if !ds.Doc.Version().IsZero() {
		return []types.Command{
			types.ResolveRequestCmd{RequestId: msg.RequestId, Payload: map[string]interface{}{"docId": msg.DocId, "loaded": true}},
		}
	}

	ds.ActiveRequests[msg.RequestId] = struct{}{}
	cmds := []types.Command{
		types.SetTimeoutCmd{Key: requestTimeoutKey(msg.RequestId), Duration: d.Config.RequestTimeout},
	}
	cmds = append(cmds, requestDocumentFromPeers(d, msg.DocId)...)
	return cmds
}

// requestDocumentFromPeers asks any peer whose cached awareness says it
// holds docId for a sync, one request per peer, preferring the first
// established channel found.
func requestDocumentFromPeers(d *Deps, docId types.DocumentId) []types.Command {
	var cmds []types.Command
	for _, peer := range d.Model.Peers {
		aw, known := peer.DocumentAwareness[docId]
		if !known || aw.State != types.AwarenessHas {
			continue
		}
		for chId := range peer.Channels {
			ch := d.Model.Channels[chId]
			if ch == nil || !types.IsEstablished(ch) {
				continue
			}
			cmds = append(cmds, types.SendMessageCmd{
				ToChannelId: chId,
				Message:     types.SyncRequest{Docs: []types.SyncRequestDoc{{DocId: docId}}},
			})
			break
		}
	}
	return cmds
}

// HandleDeleteDocument implements the caller-side deleteDocument call: the
// local copy is removed immediately (deletion is locally authoritative),
// subscribed peers are asked to delete their copies too, and the request
// resolves synchronously -- there is no network round-trip to wait on.
func HandleDeleteDocument(d *Deps, msg types.DeleteDocument) []types.Command {
	delete(d.Model.Documents, msg.DocId)

	var cmds []types.Command
	for _, peer := range d.Model.Peers {
		if _, subscribed := peer.Subscriptions[msg.DocId]; !subscribed {
			continue
		}
		for chId := range peer.Channels {
			ch := d.Model.Channels[chId]
			if ch == nil || !types.IsEstablished(ch) {
				continue
			}
			cmds = append(cmds, types.SendMessageCmd{
				ToChannelId: chId,
				Message:     types.DeleteRequest{DocId: msg.DocId},
			})
		}
		delete(peer.Subscriptions, msg.DocId)
		delete(peer.DocumentAwareness, msg.DocId)
	}

	if msg.RequestId != "" {
		cmds = append(cmds, types.ResolveRequestCmd{
			RequestId: msg.RequestId,
			Payload:   map[string]interface{}{"docId": msg.DocId, "deleted": true},
		})
	}
	return cmds
}

// HandleTimeoutFired routes a fired timeout key back to the pending request
// it guards. Only ensureDocument timeouts are tracked today; anything else
// is logged and dropped.
func HandleTimeoutFired(d *Deps, msg types.TimeoutFired) []types.Command {
	if !strings.HasPrefix(msg.Key, ensureDocumentTimeoutPrefix) {
		return []types.Command{warnDropped("timeout fired for unrecognized key", map[string]interface{}{"key": msg.Key})}
	}
	reqId := types.RequestId(strings.TrimPrefix(msg.Key, ensureDocumentTimeoutPrefix))
	for _, ds := range d.Model.Documents {
		if _, pending := ds.ActiveRequests[reqId]; pending {
			delete(ds.ActiveRequests, reqId)
			return []types.Command{
				types.RejectRequestCmd{RequestId: reqId, Err: types.NewError(types.Timeout, errRequestTimedOut)},
			}
		}
	}
	return nil
}
