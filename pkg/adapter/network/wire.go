package network

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/stitchsync/syncore/pkg/types"
)

// envelope is the wire form of a types.ProtocolMessage: its kind tag plus
// the raw JSON of the concrete type, so the receiver can dispatch to the
// right struct before unmarshalling it.
type envelope struct {
	Kind    types.ProtocolKind
	Payload json.RawMessage
}

func encode(msg types.ProtocolMessage) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("network: marshalling %T: %w", msg, err)
	}
	return json.Marshal(envelope{Kind: msg.ProtocolKind(), Payload: payload})
}

func decode(data []byte) (types.ProtocolMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("network: unmarshalling envelope: %w", err)
	}

	switch env.Kind {
	case types.KindEstablishRequest:
		var m types.EstablishRequest
		return m, json.Unmarshal(env.Payload, &m)
	case types.KindEstablishResponse:
		var m types.EstablishResponse
		return m, json.Unmarshal(env.Payload, &m)
	case types.KindSyncRequest:
		var m types.SyncRequest
		return m, json.Unmarshal(env.Payload, &m)
	case types.KindSyncResponse:
		var m types.SyncResponse
		return m, json.Unmarshal(env.Payload, &m)
	case types.KindDirectoryRequest:
		var m types.DirectoryRequest
		return m, json.Unmarshal(env.Payload, &m)
	case types.KindDirectoryResponse:
		var m types.DirectoryResponse
		return m, json.Unmarshal(env.Payload, &m)
	case types.KindDeleteRequest:
		var m types.DeleteRequest
		return m, json.Unmarshal(env.Payload, &m)
	case types.KindDeleteResponse:
		var m types.DeleteResponse
		return m, json.Unmarshal(env.Payload, &m)
	default:
		return nil, fmt.Errorf("network: unknown protocol kind %d", env.Kind)
	}
}

// writeFrame writes a 4-byte big-endian length prefix followed by data.
func writeFrame(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readFrame reads one length-prefixed frame.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
