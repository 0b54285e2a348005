package network

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchsync/syncore/pkg/types"
)

func TestEncodeDecodeRoundTripsEachMessageKind(t *testing.T) {
	cases := []types.ProtocolMessage{
		types.EstablishRequest{Identity: types.PeerIdentity{PeerId: "p1", Name: "alice"}},
		types.EstablishResponse{Identity: types.PeerIdentity{PeerId: "p2", Name: "bob"}},
		types.DirectoryRequest{},
		types.DirectoryResponse{DocIds: []types.DocumentId{"doc1", "doc2"}},
		types.DeleteRequest{DocId: "doc1"},
		types.DeleteResponse{DocId: "doc1", Status: types.Deleted},
		types.SyncRequest{Docs: []types.SyncRequestDoc{{DocId: "doc1"}}},
		types.SyncResponse{DocId: "doc1", Transmission: types.Transmission{Kind: types.TransmissionUnavailable}},
	}

	for _, msg := range cases {
		data, err := encode(msg)
		require.NoError(t, err)

		decoded, err := decode(data)
		require.NoError(t, err)
		assert.Equal(t, msg, decoded)
	}
}

func TestDecodeUnknownKindErrors(t *testing.T) {
	data, err := json.Marshal(envelope{Kind: types.ProtocolKind(999), Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)

	_, err = decode(data)
	assert.Error(t, err)
}

func TestWriteReadFrameRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte("hello world")))

	got, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestReadFrameOnTruncatedInputErrors(t *testing.T) {
	_, err := readFrame(bytes.NewReader([]byte{0, 0}))
	assert.Error(t, err)
}
