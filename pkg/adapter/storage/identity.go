package storage

import (
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"github.com/stitchsync/syncore/pkg/types"
)

var identityBucket = []byte("_identity")

const identityKey = "self"

type identityRecord struct {
	PeerId string
	Name   string
}

// LoadOrCreateIdentity reads a previously persisted PeerIdentity from the
// reserved _identity bucket of the bbolt file at path, or -- on first run
// -- mints a fresh PeerId, asks promptName for a display name, and
// persists both before returning.
func LoadOrCreateIdentity(path string, promptName func() (string, error)) (types.PeerIdentity, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return types.PeerIdentity{}, err
	}
	defer db.Close()

	var identity types.PeerIdentity
	err = db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(identityBucket)
		if err != nil {
			return err
		}
		if data := bucket.Get([]byte(identityKey)); data != nil {
			var rec identityRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			identity = types.PeerIdentity{PeerId: types.PeerId(rec.PeerId), Name: rec.Name}
			return nil
		}

		name, err := promptName()
		if err != nil {
			return err
		}
		identity = types.PeerIdentity{PeerId: types.NewPeerId(), Name: name}
		data, err := json.Marshal(identityRecord{PeerId: string(identity.PeerId), Name: identity.Name})
		if err != nil {
			return err
		}
		return bucket.Put([]byte(identityKey), data)
	})
	return identity, err
}
