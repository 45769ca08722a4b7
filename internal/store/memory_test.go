package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemory_Lifecycle tests id assignment and round-trip reads.
func TestMemory_Lifecycle(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2012, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(WithClock(func() time.Time { return fixed }))

	// 1. Get a non-existent record
	_, ok, err := m.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// 2. First create gets id 1
	id, err := m.Create(ctx, 3, `{"x":1}`)
	require.NoError(t, err)
	assert.EqualValues(t, 1, id)

	rec, ok, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Record{ID: 1, Version: 3, Data: `{"x":1}`, CreatedAt: fixed}, rec)

	// 3. Second create gets id 2 and leaves the first untouched
	id2, err := m.Create(ctx, 3, `{"x":2}`)
	require.NoError(t, err)
	assert.EqualValues(t, 2, id2)

	rec, _, _ = m.Get(ctx, id)
	assert.Equal(t, `{"x":1}`, rec.Data)
}

func TestMemory_PutAdvancesIDs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Put(Record{ID: 41, Version: 1, Data: "a"})
	id, err := m.Create(ctx, 1, "b")
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	// A lower id must not move the counter back.
	m.Put(Record{ID: 7, Version: 1, Data: "c"})
	id, err = m.Create(ctx, 1, "d")
	require.NoError(t, err)
	assert.EqualValues(t, 43, id)

	got := m.Records()
	require.Len(t, got, 4)
	assert.EqualValues(t, []int64{7, 41, 42, 43}, []int64{got[0].ID, got[1].ID, got[2].ID, got[3].ID})
}

func TestMemory_Reset(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, _ = m.Create(ctx, 1, "gone")

	m.Reset([]Record{{ID: 5, Version: 2, Data: "kept"}})

	_, ok, _ := m.Get(ctx, 1)
	assert.False(t, ok)
	rec, ok, _ := m.Get(ctx, 5)
	assert.True(t, ok)
	assert.Equal(t, "kept", rec.Data)

	id, err := m.Create(ctx, 1, "next")
	require.NoError(t, err)
	assert.EqualValues(t, 6, id)
}

type failingJournal struct{ err error }

func (f failingJournal) Append(any) error { return f.err }

func TestMemory_JournalFailureDoesNotConsumeID(t *testing.T) {
	ctx := context.Background()
	j := &toggleJournal{fail: true}
	m := NewMemory(WithJournal(j))

	_, err := m.Create(ctx, 1, "x")
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "create", serr.Op)

	j.fail = false
	id, err := m.Create(ctx, 1, "x")
	require.NoError(t, err)
	assert.EqualValues(t, 1, id)
	assert.Len(t, j.entries, 1)
}

type toggleJournal struct {
	fail    bool
	entries []any
}

func (j *toggleJournal) Append(entry any) error {
	if j.fail {
		return errors.New("disk full")
	}
	j.entries = append(j.entries, entry)
	return nil
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory(WithJournal(failingJournal{err: errors.New("unused")}))

	_, err := m.Create(ctx, 1, "x")
	assert.ErrorIs(t, err, context.Canceled)

	_, _, err = m.Get(ctx, 1)
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "get", serr.Op)
}

// TestMemory_Concurrency checks that concurrent creates never share an id.
func TestMemory_Concurrency(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var wg sync.WaitGroup
	numGoroutines := 50
	numOperations := 200

	ids := make(chan int64, numGoroutines*numOperations)
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				id, err := m.Create(ctx, 1, "some_value")
				if err != nil {
					t.Errorf("create: %v", err)
					return
				}
				ids <- id
				_, _, _ = m.Get(ctx, id)
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("id %d assigned twice", id)
		}
		seen[id] = true
	}
	assert.Len(t, seen, numGoroutines*numOperations)
}

// blockingJournal holds every append until release is closed.
type blockingJournal struct {
	entered chan struct{}
	release chan struct{}
}

func (j *blockingJournal) Append(any) error {
	j.entered <- struct{}{}
	<-j.release
	return nil
}

func TestMemory_ReadsDoNotWaitForJournal(t *testing.T) {
	ctx := context.Background()
	j := &blockingJournal{entered: make(chan struct{}, 1), release: make(chan struct{})}
	m := NewMemory(WithJournal(j))
	m.Put(Record{ID: 1, Version: 1, Data: "existing"})

	created := make(chan int64, 1)
	go func() {
		id, err := m.Create(ctx, 1, "pending")
		if err != nil {
			t.Errorf("create: %v", err)
		}
		created <- id
	}()
	<-j.entered

	got := make(chan Record, 1)
	go func() {
		rec, _, _ := m.Get(ctx, 1)
		got <- rec
	}()
	select {
	case rec := <-got:
		assert.Equal(t, "existing", rec.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("get blocked behind the journal write")
	}

	_, ok, err := m.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok, "record visible before its journal write finished")

	close(j.release)
	assert.EqualValues(t, 2, <-created)
	_, ok, _ = m.Get(ctx, 2)
	assert.True(t, ok)
}
