// Package fakedoc is a reference CRDT engine used by tests and by the
// cmd/syncored demo. It is deliberately simple: a document is a sequence of
// append operations, each stamped with the replica that authored it and a
// per-replica sequence number. Merging is order-independent (operations are
// rendered sorted by (replica, seq)) which gives the idempotent/commutative
// Import behaviour the sync core's contract requires, without attempting to
// be a realistic text CRDT.
package fakedoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/stitchsync/syncore/pkg/crdt"
)

// ErrMalformed is returned by Import when the bytes are not a valid encoding
// produced by Export.
var ErrMalformed = errors.New("fakedoc: malformed payload")

// Op is a single append operation.
type Op struct {
	Replica string `json:"replica"`
	Seq     uint64 `json:"seq"`
	Value   []byte `json:"value"`
}

// Version is a version vector: replica -> highest seq observed from it.
type Version map[string]uint64

// Clone returns an independent copy.
func (v Version) Clone() Version {
	out := make(Version, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Compare implements crdt.VersionVector.
func (v Version) Compare(other crdt.VersionVector) crdt.Comparison {
	o, ok := other.(Version)
	if !ok {
		return crdt.Concurrent
	}
	lessSeen, greaterSeen := false, false
	keys := make(map[string]struct{}, len(v)+len(o))
	for k := range v {
		keys[k] = struct{}{}
	}
	for k := range o {
		keys[k] = struct{}{}
	}
	for k := range keys {
		a, b := v[k], o[k]
		if a < b {
			lessSeen = true
		} else if a > b {
			greaterSeen = true
		}
	}
	switch {
	case !lessSeen && !greaterSeen:
		return crdt.Equal
	case lessSeen && !greaterSeen:
		return crdt.Less
	case !lessSeen && greaterSeen:
		return crdt.Greater
	default:
		return crdt.Concurrent
	}
}

// Bytes implements crdt.VersionVector with a canonical, sorted-key encoding.
func (v Version) Bytes() []byte {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([][2]interface{}, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, [2]interface{}{k, v[k]})
	}
	data, _ := json.Marshal(ordered)
	return data
}

// IsZero implements crdt.VersionVector.
func (v Version) IsZero() bool {
	for _, seq := range v {
		if seq > 0 {
			return false
		}
	}
	return true
}

// Doc is the reference crdt.Document implementation.
type Doc struct {
	mu      sync.Mutex
	replica string
	clock   Version
	ops     []Op
	subs    map[int]func(crdt.ChangeEvent)
	nextSub int
}

// New creates an empty document authored by replica.
func New(replica string) *Doc {
	return &Doc{
		replica: replica,
		clock:   Version{},
		subs:    make(map[int]func(crdt.ChangeEvent)),
	}
}

// Append performs a local mutation: it records a new op authored by this
// replica's identity and notifies subscribers.
func (d *Doc) Append(value []byte) crdt.ChangeEvent {
	d.mu.Lock()
	d.clock[d.replica]++
	seq := d.clock[d.replica]
	op := Op{Replica: d.replica, Seq: seq, Value: append([]byte(nil), value...)}
	d.ops = append(d.ops, op)
	version := d.clock.Clone()
	subs := d.snapshotSubs()
	d.mu.Unlock()

	event := crdt.ChangeEvent{Version: version}
	for _, cb := range subs {
		cb(event)
	}
	return event
}

// Content renders the document deterministically: operations ordered by
// (replica, seq), concatenated.
func (d *Doc) Content() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	ordered := make([]Op, len(d.ops))
	copy(ordered, d.ops)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Replica != ordered[j].Replica {
			return ordered[i].Replica < ordered[j].Replica
		}
		return ordered[i].Seq < ordered[j].Seq
	})
	var buf bytes.Buffer
	for _, op := range ordered {
		buf.Write(op.Value)
	}
	return buf.Bytes()
}

// Version implements crdt.Document.
func (d *Doc) Version() crdt.VersionVector {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock.Clone()
}

type wireDoc struct {
	Ops []Op `json:"ops"`
}

// Export implements crdt.Document.
func (d *Doc) Export(opts crdt.ExportOptions) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var from Version
	if opts.Mode == crdt.ExportUpdate && opts.From != nil {
		if v, ok := opts.From.(Version); ok {
			from = v
		}
	}

	var selected []Op
	for _, op := range d.ops {
		if opts.Mode == crdt.ExportSnapshot {
			selected = append(selected, op)
			continue
		}
		if from[op.Replica] < op.Seq {
			selected = append(selected, op)
		}
	}
	return json.Marshal(wireDoc{Ops: selected})
}

// Import implements crdt.Document. It is idempotent: ops already covered by
// the local clock are skipped.
func (d *Doc) Import(data []byte) error {
	var w wireDoc
	if err := json.Unmarshal(data, &w); err != nil {
		return ErrMalformed
	}

	d.mu.Lock()
	var applied []Op
	for _, op := range w.Ops {
		if d.clock[op.Replica] >= op.Seq {
			continue
		}
		d.ops = append(d.ops, op)
		if op.Seq > d.clock[op.Replica] {
			d.clock[op.Replica] = op.Seq
		}
		applied = append(applied, op)
	}
	if len(applied) == 0 {
		d.mu.Unlock()
		return nil
	}
	version := d.clock.Clone()
	subs := d.snapshotSubs()
	d.mu.Unlock()

	event := crdt.ChangeEvent{Version: version}
	for _, cb := range subs {
		cb(event)
	}
	return nil
}

// Subscribe implements crdt.Document.
func (d *Doc) Subscribe(callback func(crdt.ChangeEvent)) func() {
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = callback
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

func (d *Doc) snapshotSubs() []func(crdt.ChangeEvent) {
	out := make([]func(crdt.ChangeEvent), 0, len(d.subs))
	for _, cb := range d.subs {
		out = append(out, cb)
	}
	return out
}

var _ crdt.Document = (*Doc)(nil)
var _ crdt.VersionVector = Version{}
