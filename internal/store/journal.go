package store

import (
	"encoding/json"
	"fmt"

	"github.com/ASHISH26940/artstore/internal/persistence"
)

// OpenJournaled rebuilds a Memory store from the write-ahead log at path and
// keeps appending new records to it.
func OpenJournaled(path string, opts ...MemoryOption) (*Memory, error) {
	m := NewMemory(opts...)

	err := persistence.Replay(path, func(entry []byte) error {
		var rec Record
		if err := json.Unmarshal(entry, &rec); err != nil {
			return err
		}
		if rec.ID <= 0 {
			return fmt.Errorf("invalid record id %d", rec.ID)
		}
		m.Put(rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay journal: %w", err)
	}

	wal, err := persistence.NewWAL(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	m.journal = wal
	return m, nil
}
