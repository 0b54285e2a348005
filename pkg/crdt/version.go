package crdt

import (
	"github.com/multiformats/go-multibase"
)

// EncodeVersion canonicalizes a version vector to a base58btc multibase
// string, suitable for use in storage keys (pkg/adapter/storage) or for
// logging/debugging a version without leaking its raw byte layout.
func EncodeVersion(v VersionVector) (string, error) {
	return multibase.Encode(multibase.Base58BTC, v.Bytes())
}

// DecodeVersionBytes reverses EncodeVersion, returning the raw bytes a
// VersionVector implementation can parse back into its own representation.
func DecodeVersionBytes(encoded string) ([]byte, error) {
	_, data, err := multibase.Decode(encoded)
	return data, err
}
