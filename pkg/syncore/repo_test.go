package syncore

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchsync/syncore/pkg/adapter"
	"github.com/stitchsync/syncore/pkg/adapter/bridge"
	"github.com/stitchsync/syncore/pkg/adapter/storage"
	"github.com/stitchsync/syncore/pkg/crdt"
	"github.com/stitchsync/syncore/pkg/crdt/fakedoc"
	"github.com/stitchsync/syncore/pkg/types"
)

// stableDocFactory returns the same *fakedoc.Doc for a given id on every
// call, so a test can hang onto the exact instance the Repo ends up using
// even though core.HandleEnsureDocument invokes the factory on every call
// for the same id (types.Model.EnsureDocument keeps only the first
// document it is given).
type stableDocFactory struct {
	mu   sync.Mutex
	name string
	docs map[types.DocumentId]*fakedoc.Doc
}

func newStableDocFactory(name string) *stableDocFactory {
	return &stableDocFactory{name: name, docs: make(map[types.DocumentId]*fakedoc.Doc)}
}

func (f *stableDocFactory) New(id types.DocumentId) crdt.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[id]; ok {
		return d
	}
	d := fakedoc.New(f.name + ":" + string(id))
	f.docs[id] = d
	return d
}

func (f *stableDocFactory) get(id types.DocumentId) *fakedoc.Doc {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id]
}

func newTestRepo(t *testing.T, name string, factory *stableDocFactory, adapters ...adapter.Adapter) *Repo {
	t.Helper()
	r, err := New(context.Background(), Options{
		Identity:    types.PeerIdentity{PeerId: types.PeerId(name), Name: name},
		Config:      &types.Configuration{Name: name, RequestTimeout: 80 * time.Millisecond, SnapshotThresholdRatio: 0.6},
		NewDocument: factory.New,
		Adapters:    adapters,
	})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestRepoEnsureDocumentResolvesOnceContentExists(t *testing.T) {
	factory := newStableDocFactory("alice")
	repo := newTestRepo(t, "alice", factory)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	loaded, err := repo.EnsureDocument(ctx, "doc1")
	require.Error(t, err, "no peers and empty content: this call must time out")
	assert.False(t, loaded, "a brand new document with no peers has no content yet, so it must not report loaded")

	factory.get("doc1").Append([]byte("hello"))

	loaded, err = repo.EnsureDocument(context.Background(), "doc1")
	require.NoError(t, err)
	assert.True(t, loaded, "once the document has content, ensureDocument must resolve immediately")
}

func TestRepoSubscribeToDocumentFiresOnLocalChange(t *testing.T) {
	factory := newStableDocFactory("alice")
	repo := newTestRepo(t, "alice", factory)

	_, err := repo.EnsureDocument(context.Background(), "doc1")
	require.Error(t, err, "no peers and empty content: this call must time out")

	fired := make(chan struct{}, 1)
	unsubscribe := repo.SubscribeToDocument("doc1", func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	factory.get("doc1").Append([]byte("hello"))
	repo.NotifyLocalChange("doc1")

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("subscriber was never notified of the local change")
	}
}

func TestRepoSubscribeToDocumentIgnoresUnrelatedDocument(t *testing.T) {
	factory := newStableDocFactory("alice")
	repo := newTestRepo(t, "alice", factory)
	repo.EnsureDocument(context.Background(), "doc1")
	repo.EnsureDocument(context.Background(), "doc2")

	fired := false
	unsubscribe := repo.SubscribeToDocument("doc1", func() { fired = true })
	defer unsubscribe()

	factory.get("doc2").Append([]byte("x"))
	repo.NotifyLocalChange("doc2")

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired, "a subscription to doc1 must not fire for doc2's change")
}

func TestRepoDeleteDocumentRemovesLocalCopy(t *testing.T) {
	factory := newStableDocFactory("alice")
	repo := newTestRepo(t, "alice", factory)

	repo.EnsureDocument(context.Background(), "doc1")
	factory.get("doc1").Append([]byte("hello"))
	loaded, err := repo.EnsureDocument(context.Background(), "doc1")
	require.NoError(t, err)
	require.True(t, loaded)

	require.NoError(t, repo.DeleteDocument(context.Background(), "doc1"))

	// The factory caches instances; drop the deleted one so the next
	// EnsureDocument gets a fresh, empty document rather than "hello".
	factory.mu.Lock()
	delete(factory.docs, "doc1")
	factory.mu.Unlock()

	shortCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = repo.EnsureDocument(shortCtx, "doc1")
	assert.Error(t, err, "the document was deleted, so a fresh ensureDocument call must find it empty again and eventually time out")
}

func TestRepoTwoPeerConvergeViaBridgeAdapter(t *testing.T) {
	aliceFactory := newStableDocFactory("alice")
	bobFactory := newStableDocFactory("bob")

	aliceBridge, bobBridge := bridge.Pair("alice-to-bob", "bob-to-alice")

	alice := newTestRepo(t, "alice", aliceFactory, aliceBridge)
	_, err := alice.EnsureDocument(context.Background(), "doc1")
	require.Error(t, err, "no peers yet: must time out with no content")
	aliceFactory.get("doc1").Append([]byte("hello from alice"))

	bob := newTestRepo(t, "bob", bobFactory, bobBridge)

	var notified int32
	unsubscribe := bob.SubscribeToDocument("doc1", func() { atomic.AddInt32(&notified, 1) })
	defer unsubscribe()

	require.Eventually(t, func() bool {
		d := bobFactory.get("doc1")
		return d != nil && len(d.Content()) > 0
	}, 3*time.Second, 10*time.Millisecond, "bob never converged to alice's pre-existing document content")

	assert.Equal(t, "hello from alice", string(bobFactory.get("doc1").Content()))
	assert.True(t, atomic.LoadInt32(&notified) > 0, "the subscription must have fired at least once while content converged")
}

// TestRepoStorageAdapterSubscribesBeforeHavingDocumentThenPersistsAndReconstructs
// wires a real storage.Storage to a real Repo end to end: storage starts out
// empty, subscribes to a document it doesn't yet hold via its own reciprocal
// sync-request, persists the write that follows, and a fresh Repo reopening
// the same bbolt file reconstructs the content.
func TestRepoStorageAdapterSubscribesBeforeHavingDocumentThenPersistsAndReconstructs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "doc.db")

	aliceFactory := newStableDocFactory("alice")
	st, err := storage.Open(dbPath, aliceFactory.New, 1<<20, "disk", nil)
	require.NoError(t, err)

	alice := newTestRepo(t, "alice", aliceFactory, st)

	_, err = alice.EnsureDocument(context.Background(), "doc1")
	require.Error(t, err, "storage has nothing yet and there are no other peers: this must time out")

	storagePeer := types.PeerId("storage-disk")
	require.Eventually(t, func() bool {
		ps, ok := alice.GetPeerState(storagePeer)
		if !ok {
			return false
		}
		_, subscribed := ps.Subscriptions["doc1"]
		return subscribed
	}, 2*time.Second, 10*time.Millisecond, "storage must subscribe to doc1 via its own reciprocal sync-request even though it doesn't hold the document yet")

	aliceFactory.get("doc1").Append([]byte("Hello"))
	alice.NotifyLocalChange("doc1")

	require.Eventually(t, func() bool {
		ps, ok := alice.GetPeerState(storagePeer)
		if !ok {
			return false
		}
		aw, ok := ps.DocumentAwareness["doc1"]
		return ok && aw.State == types.AwarenessHas
	}, 2*time.Second, 10*time.Millisecond, "storage's fan-out update never went out")
	time.Sleep(100 * time.Millisecond) // let the already-dispatched send reach storage.handle and persist

	alice.Close()

	ids, err := storage.ListDocuments(dbPath)
	require.NoError(t, err)
	require.Equal(t, []types.DocumentId{"doc1"}, ids, "storage never persisted the write that followed its own subscription")

	bobFactory := newStableDocFactory("bob")
	reopened, err := storage.Open(dbPath, bobFactory.New, 1<<20, "disk", nil)
	require.NoError(t, err)
	restarted := newTestRepo(t, "bob", bobFactory, reopened)

	loaded, err := restarted.EnsureDocument(context.Background(), "doc1")
	require.NoError(t, err)
	assert.True(t, loaded, "a fresh repo attached to the same storage file must reconstruct the persisted document")
	assert.Equal(t, "Hello", string(bobFactory.get("doc1").Content()))
}
