// Package storage implements a bbolt-backed storage adapter: a key-value
// store presenting as a single, synthetically pre-established channel. It
// auto-responds to establishment, answers sync-request by reconstructing a
// temporary CRDT instance from a stored snapshot plus incremental updates,
// and persists whatever sync-response payloads it is handed, compacting
// increments into a fresh snapshot once their accumulated size crosses a
// threshold.
//
// Grounded on a Storage interface shape (Set/Get over a stored entry)
// generalized from a flat key space to bbolt's nested buckets.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	bolt "go.etcd.io/bbolt"

	"github.com/stitchsync/syncore/pkg/adapter"
	"github.com/stitchsync/syncore/pkg/crdt"
	"github.com/stitchsync/syncore/pkg/types"
)

var documentsBucket = []byte("documents")

const snapshotKey = "snapshot"
const updatePrefix = "update/"

// Storage is the reference storage adapter.
type Storage struct {
	adapterId                string
	db                       *bolt.DB
	newDoc                   func(types.DocumentId) crdt.Document
	compactionThresholdBytes int
	log                      types.Logger

	mu        sync.Mutex
	hooks     adapter.Hooks
	channelId types.ChannelId
	identity  types.PeerIdentity
}

// Open opens (creating if absent) a bbolt database at path for use as the
// backing store for adapterId.
func Open(path string, newDoc func(types.DocumentId) crdt.Document, compactionThresholdBytes int, adapterId string, log types.Logger) (*Storage, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: opening %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(documentsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Storage{
		adapterId:                adapterId,
		db:                       db,
		newDoc:                   newDoc,
		compactionThresholdBytes: compactionThresholdBytes,
		log:                      log,
		identity:                 types.PeerIdentity{PeerId: types.PeerId("storage-" + adapterId), Name: "storage"},
	}, nil
}

var _ adapter.Adapter = (*Storage)(nil)

func (s *Storage) Init(hooks adapter.Hooks) {
	s.mu.Lock()
	s.hooks = hooks
	s.mu.Unlock()
}

// Start registers storage's single synthetic channel. The core's usual
// attachChannel->establish-request flow still fires; handle() answers it
// immediately, which is what makes this channel "pre-established" in
// practice even though it goes through the same handshake code path.
func (s *Storage) Start(ctx context.Context) error {
	s.mu.Lock()
	hooks := s.hooks
	s.mu.Unlock()

	gc := types.GeneratedChannel{
		AdapterId: s.adapterId,
		Kind:      types.ChannelStorage,
		Send:      s.handle,
		Stop:      func() {},
	}
	id := hooks.AddChannel(gc)
	s.mu.Lock()
	s.channelId = id
	s.mu.Unlock()
	return nil
}

func (s *Storage) Deinit() {
	_ = s.db.Close()
}

// handle processes one message the core sent toward storage, replying
// synchronously via hooks.Deliver exactly as an in-process peer would.
func (s *Storage) handle(msg types.ProtocolMessage) error {
	s.mu.Lock()
	hooks := s.hooks
	id := s.channelId
	identity := s.identity
	s.mu.Unlock()

	switch m := msg.(type) {
	case types.EstablishRequest:
		hooks.Deliver(id, types.EstablishResponse{Identity: identity})
	case types.DirectoryRequest:
		hooks.Deliver(id, types.DirectoryResponse{DocIds: s.listDocuments()})
	case types.SyncRequest:
		for _, entry := range m.Docs {
			resp := s.respondSync(entry)
			hooks.Deliver(id, resp)
			if sr, ok := resp.(types.SyncResponse); ok && sr.Transmission.Kind == types.TransmissionUnavailable {
				// We don't hold this document yet, but we still want to be
				// told about it once it exists: echo back our own
				// sync-request for it. Core answers as the responder, which
				// is the only code path that records us as subscribed
				// (syncengine.go's handleSyncRequestDoc) -- subscribing
				// before having the document is the prototypical case the
				// design notes call out for storage. This mirrors the
				// reciprocal sync-request syncengine.go itself sends when a
				// responder finds the requester ahead of it.
				hooks.Deliver(id, types.SyncRequest{Docs: []types.SyncRequestDoc{{DocId: entry.DocId}}})
			}
		}
	case types.SyncResponse:
		s.persist(m)
	case types.DeleteRequest:
		hooks.Deliver(id, types.DeleteResponse{DocId: m.DocId, Status: s.deleteDocument(m.DocId)})
	}
	return nil
}

func docKey(docId types.DocumentId) []byte { return []byte(docId) }

func (s *Storage) listDocuments() []types.DocumentId {
	var ids []types.DocumentId
	_ = s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(documentsBucket)
		c := root.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if v == nil {
				ids = append(ids, types.DocumentId(append([]byte(nil), k...)))
			}
		}
		return nil
	})
	return ids
}

// reconstruct loads docId's snapshot plus every stored increment into a
// fresh CRDT instance. Increments are replayed in the lexicographic order
// of their multibase-encoded version key, which for a monotonically
// growing version vector tracks causal order closely enough for this
// reference adapter's purposes -- Import's idempotence absorbs any
// reordering regardless.
func (s *Storage) reconstruct(docId types.DocumentId) (crdt.Document, bool) {
	var snapshot []byte
	var updates [][]byte
	found := false

	_ = s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(documentsBucket)
		bucket := root.Bucket(docKey(docId))
		if bucket == nil {
			return nil
		}
		found = true
		if data := bucket.Get([]byte(snapshotKey)); data != nil {
			snapshot = append([]byte(nil), data...)
		}
		type kv struct {
			key  string
			data []byte
		}
		var pairs []kv
		_ = bucket.ForEach(func(k, v []byte) error {
			key := string(k)
			if strings.HasPrefix(key, updatePrefix) {
				pairs = append(pairs, kv{key: key, data: append([]byte(nil), v...)})
			}
			return nil
		})
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
		for _, p := range pairs {
			updates = append(updates, p.data)
		}
		return nil
	})
	if !found {
		return nil, false
	}

	doc := s.newDoc(docId)
	if snapshot != nil {
		_ = doc.Import(snapshot)
	}
	for _, u := range updates {
		_ = doc.Import(u)
	}
	return doc, true
}

func (s *Storage) respondSync(entry types.SyncRequestDoc) types.ProtocolMessage {
	doc, found := s.reconstruct(entry.DocId)
	if !found {
		return types.SyncResponse{DocId: entry.DocId, Transmission: types.Transmission{Kind: types.TransmissionUnavailable}}
	}

	version := doc.Version()
	if entry.RequesterVersion != nil && version.Compare(entry.RequesterVersion) == crdt.Equal {
		return types.SyncResponse{DocId: entry.DocId, Transmission: types.Transmission{Kind: types.TransmissionUpToDate, Version: version}}
	}

	mode, from := crdt.ExportUpdate, entry.RequesterVersion
	kind := types.TransmissionUpdate
	if entry.RequesterVersion == nil || entry.RequesterVersion.IsZero() {
		mode, from, kind = crdt.ExportSnapshot, nil, types.TransmissionSnapshot
	}
	data, err := doc.Export(crdt.ExportOptions{Mode: mode, From: from})
	if err != nil {
		return types.SyncResponse{DocId: entry.DocId, Transmission: types.Transmission{Kind: types.TransmissionUnavailable}}
	}
	return types.SyncResponse{DocId: entry.DocId, Transmission: types.Transmission{Kind: kind, Data: data, Version: version}}
}

func (s *Storage) persist(msg types.SyncResponse) {
	t := msg.Transmission
	if t.Kind != types.TransmissionSnapshot && t.Kind != types.TransmissionUpdate {
		return
	}

	_ = s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(documentsBucket)
		bucket, err := root.CreateBucketIfNotExists(docKey(msg.DocId))
		if err != nil {
			return err
		}
		if t.Kind == types.TransmissionSnapshot {
			if err := clearUpdates(bucket); err != nil {
				return err
			}
			return bucket.Put([]byte(snapshotKey), t.Data)
		}

		versionKey, err := crdt.EncodeVersion(t.Version)
		if err != nil {
			return err
		}
		if err := bucket.Put([]byte(updatePrefix+versionKey), t.Data); err != nil {
			return err
		}
		return s.maybeCompact(bucket, msg.DocId)
	})
}

func clearUpdates(bucket *bolt.Bucket) error {
	var stale [][]byte
	_ = bucket.ForEach(func(k, _ []byte) error {
		if strings.HasPrefix(string(k), updatePrefix) {
			stale = append(stale, append([]byte(nil), k...))
		}
		return nil
	})
	for _, k := range stale {
		if err := bucket.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// maybeCompact folds every stored increment into a fresh snapshot once
// their accumulated size crosses compactionThresholdBytes.
func (s *Storage) maybeCompact(bucket *bolt.Bucket, docId types.DocumentId) error {
	total := 0
	_ = bucket.ForEach(func(k, v []byte) error {
		if strings.HasPrefix(string(k), updatePrefix) {
			total += len(v)
		}
		return nil
	})
	if total < s.compactionThresholdBytes {
		return nil
	}

	// Rebuild from this bucket, inside the caller's write transaction, so
	// the increment just written is part of the new snapshot.
	doc := s.newDoc(docId)
	if data := bucket.Get([]byte(snapshotKey)); data != nil {
		_ = doc.Import(data)
	}
	_ = bucket.ForEach(func(k, v []byte) error {
		if strings.HasPrefix(string(k), updatePrefix) {
			_ = doc.Import(v)
		}
		return nil
	})
	snapshot, err := doc.Export(crdt.ExportOptions{Mode: crdt.ExportSnapshot})
	if err != nil {
		return err
	}
	if s.log != nil {
		s.log.Debugf("compacting %s: %s of increments folded into a %s snapshot",
			docId, humanize.Bytes(uint64(total)), humanize.Bytes(uint64(len(snapshot))))
	}
	if err := clearUpdates(bucket); err != nil {
		return err
	}
	return bucket.Put([]byte(snapshotKey), snapshot)
}

func (s *Storage) deleteDocument(docId types.DocumentId) types.DeleteStatus {
	status := types.Ignored
	_ = s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(documentsBucket)
		if root.Bucket(docKey(docId)) == nil {
			return nil
		}
		status = types.Deleted
		return root.DeleteBucket(docKey(docId))
	})
	return status
}
