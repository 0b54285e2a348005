// Package core implements the synchronization core's functional update
// function: the Channel Lifecycle Manager, Establishment Protocol Handler,
// Discovery Engine, Sync Engine, Local Change Fan-out and the Message
// Router/Dispatcher that ties them together. Handlers in this package are
// pure with respect to I/O -- they read and mutate a *types.Model and
// return a list of types.Command for the Dispatcher (the shell) to
// execute. See dispatch.go for the shell.
package core

import (
	"github.com/stitchsync/syncore/pkg/crdt"
	"github.com/stitchsync/syncore/pkg/types"
)

// Deps bundles everything a pure handler needs beyond the message it is
// processing: the model to mutate, configuration, and the two permission
// predicates the application layer provides. Handlers must never cache
// CanReveal/CanUpdate results -- they are recomputed at every call site.
type Deps struct {
	Model     *types.Model
	Config    *types.Configuration
	CanReveal types.CanRevealFunc
	CanUpdate types.CanUpdateFunc

	// NewDocument constructs an empty CRDT document instance for a
	// document id the core has just learned about (via directory
	// announcement or an accepted sync-response) but never held before.
	NewDocument func(types.DocumentId) crdt.Document
}

func (d *Deps) log() types.Logger {
	return d.Config.Logger
}
