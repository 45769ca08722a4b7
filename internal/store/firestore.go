package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	firestoreCollection = "artworks"
	firestoreCounters   = "counters"

	// Every create contends on the counter document.
	firestoreMaxAttempts = 20
)

type artworkDoc struct {
	ID        int64     `firestore:"id"`
	Version   int64     `firestore:"version"`
	Data      string    `firestore:"data"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type counterDoc struct {
	Next int64 `firestore:"next"`
}

// Firestore stores records as documents in a Cloud Firestore collection.
// Numeric ids are allocated from a counter document in the same transaction
// that creates the artwork document.
type Firestore struct {
	client *firestore.Client
	now    func() time.Time
}

// OpenFirestore connects to the given project. FIRESTORE_EMULATOR_HOST is
// honored by the client library.
func OpenFirestore(ctx context.Context, projectID string) (*Firestore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("connect firestore: %w", err)
	}
	return &Firestore{client: client, now: time.Now}, nil
}

func (f *Firestore) Create(ctx context.Context, version int32, data string) (int64, error) {
	counter := f.client.Collection(firestoreCounters).Doc(firestoreCollection)
	var id int64
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		c := counterDoc{Next: 1}
		snap, err := tx.Get(counter)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&c); err != nil {
				return err
			}
		}

		doc := artworkDoc{
			ID:        c.Next,
			Version:   int64(version),
			Data:      data,
			CreatedAt: f.now().UTC(),
		}
		if err := tx.Set(counter, counterDoc{Next: c.Next + 1}); err != nil {
			return err
		}
		if err := tx.Create(f.doc(doc.ID), doc); err != nil {
			return err
		}
		id = doc.ID
		return nil
	}, firestore.MaxAttempts(firestoreMaxAttempts))
	if err != nil {
		return 0, storageErr("create", err)
	}
	return id, nil
}

func (f *Firestore) Get(ctx context.Context, id int64) (Record, bool, error) {
	snap, err := f.doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, storageErr("get", err)
	}
	var doc artworkDoc
	if err := snap.DataTo(&doc); err != nil {
		return Record{}, false, storageErr("get", err)
	}
	return Record{
		ID:        id,
		Version:   int32(doc.Version),
		Data:      doc.Data,
		CreatedAt: doc.CreatedAt.UTC(),
	}, true, nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) doc(id int64) *firestore.DocumentRef {
	return f.client.Collection(firestoreCollection).Doc(strconv.FormatInt(id, 10))
}
