// Package store contains the record stores behind the artwork service.
// Every backend satisfies RecordStore and is safe for concurrent use.
package store

import (
	"context"
	"fmt"
	"time"
)

// Record is a stored artwork. All fields are write-once.
type Record struct {
	ID        int64     `json:"id"`
	Version   int32     `json:"version"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordStore is the persistence contract the service depends on.
type RecordStore interface {
	// Create persists a new record and returns its freshly assigned id.
	Create(ctx context.Context, version int32, data string) (int64, error)
	// Get returns the record for id. A missing record is reported with
	// found=false and a nil error.
	Get(ctx context.Context, id int64) (rec Record, found bool, err error)
}

// StorageError reports a failure of the underlying persistence layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// checkContext turns a done context into a StorageError for op.
func checkContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return storageErr(op, err)
	}
	return nil
}
