package store

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"
)

// Journal durably records every created record before it becomes visible.
type Journal interface {
	Append(entry any) error
}

// Memory is a thread-safe in-memory record store.
// Ids start at 1 and grow by one per created record.
//
// Writers are serialized by appendMu, which also covers the journal write.
// mu only guards publishing, so reads never wait on a journal sync.
// Lock order is appendMu then mu.
type Memory struct {
	appendMu sync.Mutex
	mu       sync.RWMutex
	records  map[int64]Record
	lastID  int64
	journal Journal
	now     func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithJournal makes every Create append to j first.
func WithJournal(j Journal) MemoryOption {
	return func(m *Memory) { m.journal = j }
}

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory initializes and returns a new empty Memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		records: make(map[int64]Record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create stores a new record stamped with the store's clock.
func (m *Memory) Create(ctx context.Context, version int32, data string) (int64, error) {
	if err := checkContext(ctx, "create"); err != nil {
		return 0, err
	}
	return m.Append(version, data, m.now().UTC())
}

// Append stores a new record with an explicit creation time.
// The id is only consumed once the journal write succeeded.
func (m *Memory) Append(version int32, data string, createdAt time.Time) (int64, error) {
	m.appendMu.Lock()
	defer m.appendMu.Unlock()

	m.mu.RLock()
	id := m.lastID + 1
	m.mu.RUnlock()

	rec := Record{
		ID:        id,
		Version:   version,
		Data:      data,
		CreatedAt: createdAt,
	}
	if m.journal != nil {
		if err := m.journal.Append(rec); err != nil {
			return 0, storageErr("create", err)
		}
	}

	m.mu.Lock()
	m.records[rec.ID] = rec
	m.lastID = rec.ID
	m.mu.Unlock()
	return rec.ID, nil
}

// Get retrieves the record stored under id.
func (m *Memory) Get(ctx context.Context, id int64) (Record, bool, error) {
	if err := checkContext(ctx, "get"); err != nil {
		return Record{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	return rec, ok, nil
}

// Put inserts an already built record, e.g. while replaying a journal.
// Later creates are assigned ids above rec.ID.
func (m *Memory) Put(rec Record) {
	m.appendMu.Lock()
	defer m.appendMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	if rec.ID > m.lastID {
		m.lastID = rec.ID
	}
}

// Records returns a copy of every stored record ordered by id.
func (m *Memory) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reset replaces the whole content of the store.
func (m *Memory) Reset(records []Record) {
	m.appendMu.Lock()
	defer m.appendMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[int64]Record, len(records))
	m.lastID = 0
	for _, rec := range records {
		m.records[rec.ID] = rec
		if rec.ID > m.lastID {
			m.lastID = rec.ID
		}
	}
}

// Close closes the journal when it holds a resource.
func (m *Memory) Close() error {
	if c, ok := m.journal.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
