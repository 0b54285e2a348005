// Package crdt defines the contract the synchronization core requires from
// an external CRDT engine. The core never implements CRDT semantics itself;
// it only calls Version, Compare, Export, Import and Subscribe on whatever
// document type the application plugs in. pkg/crdt/fakedoc ships one such
// engine for tests and demos.
package crdt

// Comparison is the three-valued (four, counting Concurrent) result of
// comparing two version vectors.
type Comparison int

const (
	Less Comparison = iota
	Equal
	Greater
	Concurrent
)

func (c Comparison) String() string {
	switch c {
	case Less:
		return "less"
	case Equal:
		return "equal"
	case Greater:
		return "greater"
	case Concurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// VersionVector summarizes the operations a document replica has observed.
// Implementations must be safe to compare and to serialize to a canonical
// byte form (see EncodeVersion) for inclusion in wire messages and storage
// keys.
type VersionVector interface {
	// Compare reports how the receiver relates to other.
	Compare(other VersionVector) Comparison

	// Bytes returns a canonical, deterministic encoding of the vector.
	Bytes() []byte

	// IsZero reports whether this is the empty vector (a brand-new
	// requester that has observed nothing).
	IsZero() bool
}

// ExportMode selects whether Export produces a full snapshot or an
// incremental update relative to a prior version.
type ExportMode int

const (
	ExportSnapshot ExportMode = iota
	ExportUpdate
)

// ExportOptions parametrizes Document.Export.
type ExportOptions struct {
	Mode ExportMode
	// From names the version an ExportUpdate export is relative to; a nil
	// From (which the core passes when it knows no version for the peer)
	// exports everything from the beginning. Ignored for ExportSnapshot.
	From VersionVector
}

// ChangeEvent is delivered to subscribers whenever a document mutates,
// whether the mutation originated locally or via Import.
type ChangeEvent struct {
	Version VersionVector
}

// Document is the external CRDT instance contract. Import must be
// idempotent and commutative with respect to any other Import call: the
// sync engine relies on this to absorb duplicate or re-ordered deliveries
// without corrupting state.
type Document interface {
	// Version returns the document's current version vector.
	Version() VersionVector

	// Export encodes the document per opts.
	Export(opts ExportOptions) ([]byte, error)

	// Import merges bytes produced by a prior Export (on any replica)
	// into the document. Total on any well-formed input; returns an error
	// only for malformed bytes.
	Import(data []byte) error

	// Subscribe registers callback to be invoked after every local or
	// imported mutation. The returned func removes the subscription.
	Subscribe(callback func(ChangeEvent)) (unsubscribe func())
}
