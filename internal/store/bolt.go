package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

var artworksBucket = []byte("artworks")

// Bolt stores records in an embedded BoltDB file.
// Ids come from the bucket sequence, so they are never reused.
type Bolt struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenBolt opens (or creates) the database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(artworksBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{db: db, now: time.Now}, nil
}

func (b *Bolt) Create(ctx context.Context, version int32, data string) (int64, error) {
	if err := checkContext(ctx, "create"); err != nil {
		return 0, err
	}
	var id int64
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(artworksBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		rec := Record{
			ID:        int64(seq),
			Version:   version,
			Data:      data,
			CreatedAt: b.now().UTC(),
		}
		value, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := bucket.Put(boltKey(rec.ID), value); err != nil {
			return err
		}
		id = rec.ID
		return nil
	})
	if err != nil {
		return 0, storageErr("create", err)
	}
	return id, nil
}

func (b *Bolt) Get(ctx context.Context, id int64) (Record, bool, error) {
	if err := checkContext(ctx, "get"); err != nil {
		return Record{}, false, err
	}
	var rec Record
	err := b.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(artworksBucket).Get(boltKey(id))
		if value == nil {
			return errNoRecord
		}
		return json.Unmarshal(value, &rec)
	})
	if errors.Is(err, errNoRecord) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, storageErr("get", err)
	}
	return rec, true, nil
}

// Close releases the database file lock.
func (b *Bolt) Close() error {
	return b.db.Close()
}

var errNoRecord = errors.New("no record")

// boltKey encodes id big-endian so keys sort numerically.
func boltKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}
