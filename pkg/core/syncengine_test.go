package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchsync/syncore/pkg/crdt"
	"github.com/stitchsync/syncore/pkg/types"
)

func TestHandleSyncRequestUnknownDocRepliesUnavailable(t *testing.T) {
	d := newTestDeps(types.PeerIdentity{PeerId: "local", Name: "local"})
	id, _ := attachTestChannel(d, types.ChannelNetwork, types.StateEstablished, "remote")
	d.Model.EnsurePeer(types.PeerIdentity{PeerId: "remote", Name: "remote"})

	cmds := HandleSyncRequest(d, id, types.SyncRequest{Docs: []types.SyncRequestDoc{{DocId: "ghost"}}})

	msgs := sentMessages(cmds)
	require.Len(t, msgs, 1)
	resp := msgs[0].(types.SyncResponse)
	assert.Equal(t, types.TransmissionUnavailable, resp.Transmission.Kind)
}

func TestHandleSyncRequestFromEmptyRequesterSendsSnapshot(t *testing.T) {
	d := newTestDeps(types.PeerIdentity{PeerId: "local", Name: "local"})
	ds, _ := d.Model.EnsureDocument("doc1", d.NewDocument("doc1"))
	ds.Doc.(interface{ Append([]byte) crdt.ChangeEvent }).Append([]byte("hello"))

	id, _ := attachTestChannel(d, types.ChannelNetwork, types.StateEstablished, "remote")
	peer, _ := d.Model.EnsurePeer(types.PeerIdentity{PeerId: "remote", Name: "remote"})

	cmds := HandleSyncRequest(d, id, types.SyncRequest{Docs: []types.SyncRequestDoc{{DocId: "doc1"}}})

	msgs := sentMessages(cmds)
	require.Len(t, msgs, 1)
	resp := msgs[0].(types.SyncResponse)
	assert.Equal(t, types.TransmissionSnapshot, resp.Transmission.Kind)
	assert.NotEmpty(t, resp.Transmission.Data)

	_, subscribed := peer.Subscriptions["doc1"]
	assert.True(t, subscribed)
}

func TestHandleSyncRequestEqualVersionRepliesUpToDate(t *testing.T) {
	d := newTestDeps(types.PeerIdentity{PeerId: "local", Name: "local"})
	ds, _ := d.Model.EnsureDocument("doc1", d.NewDocument("doc1"))
	ds.Doc.(interface{ Append([]byte) crdt.ChangeEvent }).Append([]byte("hello"))
	requesterVersion := ds.Doc.Version()

	id, _ := attachTestChannel(d, types.ChannelNetwork, types.StateEstablished, "remote")
	d.Model.EnsurePeer(types.PeerIdentity{PeerId: "remote", Name: "remote"})

	cmds := HandleSyncRequest(d, id, types.SyncRequest{Docs: []types.SyncRequestDoc{{DocId: "doc1", RequesterVersion: requesterVersion}}})

	msgs := sentMessages(cmds)
	require.Len(t, msgs, 1)
	resp := msgs[0].(types.SyncResponse)
	assert.Equal(t, types.TransmissionUpToDate, resp.Transmission.Kind)
}

func TestHandleSyncRequestRequesterAheadAsksReciprocalSync(t *testing.T) {
	d := newTestDeps(types.PeerIdentity{PeerId: "local", Name: "local"})
	d.Model.EnsureDocument("doc1", d.NewDocument("doc1"))

	ahead := mustAppendOnNewReplica("someone-else")

	id, _ := attachTestChannel(d, types.ChannelNetwork, types.StateEstablished, "remote")
	d.Model.EnsurePeer(types.PeerIdentity{PeerId: "remote", Name: "remote"})

	cmds := HandleSyncRequest(d, id, types.SyncRequest{Docs: []types.SyncRequestDoc{{DocId: "doc1", RequesterVersion: ahead}}})

	msgs := sentMessages(cmds)
	require.Len(t, msgs, 2)
	update := msgs[0].(types.SyncResponse)
	assert.Equal(t, types.TransmissionUpdate, update.Transmission.Kind)
	reciprocal := msgs[1].(types.SyncRequest)
	require.Len(t, reciprocal.Docs, 1)
	assert.Equal(t, types.DocumentId("doc1"), reciprocal.Docs[0].DocId)
}

func TestHandleSyncRequestDeniedByPermissionRepliesUnavailable(t *testing.T) {
	d := newTestDeps(types.PeerIdentity{PeerId: "local", Name: "local"})
	d.CanUpdate = func(types.PermissionContext) bool { return false }
	d.Model.EnsureDocument("doc1", d.NewDocument("doc1"))

	id, _ := attachTestChannel(d, types.ChannelNetwork, types.StateEstablished, "remote")
	d.Model.EnsurePeer(types.PeerIdentity{PeerId: "remote", Name: "remote"})

	cmds := HandleSyncRequest(d, id, types.SyncRequest{Docs: []types.SyncRequestDoc{{DocId: "doc1"}}})

	msgs := sentMessages(cmds)
	require.Len(t, msgs, 1)
	resp := msgs[0].(types.SyncResponse)
	assert.Equal(t, types.TransmissionUnavailable, resp.Transmission.Kind)
}

func TestHandleSyncResponseSnapshotImportsAndResolvesRequest(t *testing.T) {
	producer := newTestDeps(types.PeerIdentity{PeerId: "producer", Name: "producer"})
	ds, _ := producer.Model.EnsureDocument("doc1", producer.NewDocument("doc1"))
	ds.Doc.(interface{ Append([]byte) crdt.ChangeEvent }).Append([]byte("payload"))
	snapshot, err := ds.Doc.Export(crdt.ExportOptions{Mode: crdt.ExportSnapshot})
	require.NoError(t, err)

	d := newTestDeps(types.PeerIdentity{PeerId: "local", Name: "local"})
	localDs, _ := d.Model.EnsureDocument("doc1", d.NewDocument("doc1"))
	reqId := types.RequestId("req-1")
	localDs.ActiveRequests[reqId] = struct{}{}

	id, _ := attachTestChannel(d, types.ChannelNetwork, types.StateEstablished, "remote")
	d.Model.EnsurePeer(types.PeerIdentity{PeerId: "remote", Name: "remote"})

	cmds := HandleSyncResponse(d, id, types.SyncResponse{
		DocId:        "doc1",
		Transmission: types.Transmission{Kind: types.TransmissionSnapshot, Data: snapshot},
	})

	assert.Equal(t, "payload", string(mustContent(t, localDs.Doc)))
	assert.True(t, hasCommandKind(cmds, types.CmdResolveRequest))
	assert.True(t, hasCommandKind(cmds, types.CmdSubscribeDoc), "a document that was empty before import must be subscribed")
}

func TestHandleSyncResponseMalformedPayloadLeavesAwarenessUntouched(t *testing.T) {
	d := newTestDeps(types.PeerIdentity{PeerId: "local", Name: "local"})
	d.Model.EnsureDocument("doc1", d.NewDocument("doc1"))
	id, _ := attachTestChannel(d, types.ChannelNetwork, types.StateEstablished, "remote")
	peer, _ := d.Model.EnsurePeer(types.PeerIdentity{PeerId: "remote", Name: "remote"})

	cmds := HandleSyncResponse(d, id, types.SyncResponse{
		DocId:        "doc1",
		Transmission: types.Transmission{Kind: types.TransmissionSnapshot, Data: []byte("not json")},
	})

	assert.True(t, hasCommandKind(cmds, types.CmdLog))
	_, known := peer.DocumentAwareness["doc1"]
	assert.False(t, known)
}

func TestHandleSyncResponseUnavailableResolvesRequestAsNotLoaded(t *testing.T) {
	d := newTestDeps(types.PeerIdentity{PeerId: "local", Name: "local"})
	ds, _ := d.Model.EnsureDocument("doc1", d.NewDocument("doc1"))
	reqId := types.RequestId("req-1")
	ds.ActiveRequests[reqId] = struct{}{}

	id, _ := attachTestChannel(d, types.ChannelNetwork, types.StateEstablished, "remote")
	d.Model.EnsurePeer(types.PeerIdentity{PeerId: "remote", Name: "remote"})

	cmds := HandleSyncResponse(d, id, types.SyncResponse{DocId: "doc1", Transmission: types.Transmission{Kind: types.TransmissionUnavailable}})

	require.True(t, hasCommandKind(cmds, types.CmdResolveRequest))
	assert.Empty(t, ds.ActiveRequests)
}

// mustAppendOnNewReplica builds a version vector strictly ahead of the zero
// vector by appending once on a scratch document authored by replica.
func mustAppendOnNewReplica(replica string) crdt.VersionVector {
	d := newTestDeps(types.PeerIdentity{PeerId: types.PeerId(replica), Name: replica})
	ds, _ := d.Model.EnsureDocument("scratch", d.NewDocument("scratch"))
	ds.Doc.(interface{ Append([]byte) crdt.ChangeEvent }).Append([]byte("x"))
	return ds.Doc.Version()
}

func mustContent(t *testing.T, doc crdt.Document) []byte {
	t.Helper()
	type contenter interface{ Content() []byte }
	c, ok := doc.(contenter)
	require.True(t, ok)
	return c.Content()
}
