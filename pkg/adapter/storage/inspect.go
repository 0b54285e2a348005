package storage

import (
	bolt "go.etcd.io/bbolt"

	"github.com/stitchsync/syncore/pkg/types"
)

// ListDocuments opens the bbolt file at path read-only and returns every
// document id it has a bucket for, without needing a running Storage
// adapter. Used by CLI introspection commands.
func ListDocuments(path string) ([]types.DocumentId, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var ids []types.DocumentId
	err = db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(documentsBucket)
		if root == nil {
			return nil
		}
		c := root.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if v == nil {
				ids = append(ids, types.DocumentId(append([]byte(nil), k...)))
			}
		}
		return nil
	})
	return ids, err
}
