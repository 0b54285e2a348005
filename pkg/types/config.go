package types

import "time"

// ProtocolVersion is bumped whenever a wire-incompatible change is made to
// the ProtocolMessage set.
const ProtocolVersion = 1

// Configuration bundles the knobs a Repo needs beyond its identity. See
// definition.DefaultConfiguration for sane defaults.
type Configuration struct {
	// Name is this process's advisory display name; DefaultConfiguration
	// uses it as the logger's component name. The establishment handshake
	// sends the Repo's PeerIdentity, not this field.
	Name string

	// Logger receives every log line the core emits.
	Logger Logger

	// RequestTimeout bounds how long an ensureDocument caller request waits
	// before being rejected with a Timeout error. deleteDocument requests
	// resolve at once and do not use it.
	RequestTimeout time.Duration

	// SnapshotThresholdRatio: when an update export's byte length exceeds
	// this fraction of a full snapshot export's byte length, the sync
	// engine sends a snapshot instead (the "approaches the full-document
	// size" heuristic from the Sync Engine's transmission-selection rule).
	SnapshotThresholdRatio float64

	// CompactionThresholdBytes is the reference storage adapter's
	// accumulated-increment-bytes threshold before it folds increments
	// into a new snapshot.
	CompactionThresholdBytes int
}
