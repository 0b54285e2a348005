package definition

import (
	"time"

	"github.com/stitchsync/syncore/pkg/types"
)

// DefaultConfiguration builds a types.Configuration with a DefaultLogger and
// sensible default thresholds.
func DefaultConfiguration(name string) *types.Configuration {
	return &types.Configuration{
		Name:                     name,
		Logger:                   NewDefaultLogger(name),
		RequestTimeout:           10 * time.Second,
		SnapshotThresholdRatio:   0.6,
		CompactionThresholdBytes: 64 * 1024,
	}
}
