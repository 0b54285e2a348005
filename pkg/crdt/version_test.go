package crdt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchsync/syncore/pkg/crdt"
	"github.com/stitchsync/syncore/pkg/crdt/fakedoc"
)

func TestEncodeDecodeVersionRoundTrips(t *testing.T) {
	v := fakedoc.Version{"alice": 3, "bob": 1}

	encoded, err := crdt.EncodeVersion(v)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)

	decoded, err := crdt.DecodeVersionBytes(encoded)
	require.NoError(t, err)
	assert.Equal(t, v.Bytes(), decoded)
}

func TestEncodeVersionIsCanonical(t *testing.T) {
	a := fakedoc.Version{"alice": 1, "bob": 2}
	b := fakedoc.Version{"bob": 2, "alice": 1}

	encA, err := crdt.EncodeVersion(a)
	require.NoError(t, err)
	encB, err := crdt.EncodeVersion(b)
	require.NoError(t, err)

	assert.Equal(t, encA, encB)
}
