// Package raft replicates record creation across a cluster with the Raft
// consensus protocol. Every node keeps a full copy in a memory store.
package raft

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"

	"github.com/ASHISH26940/artstore/internal/store"
)

// OpCreate creates a new record.
const OpCreate = "CREATE"

// Command represents a single command that is committed to the Raft log.
// CreatedAt is stamped by the leader so every replica stores the same value.
type Command struct {
	Op        string    `json:"op"`
	Version   int32     `json:"version,omitempty"`
	Data      string    `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// applyResult is what FSM.Apply hands back through ApplyFuture.Response.
type applyResult struct {
	ID  int64
	Err error
}

// FSM applies committed log entries to the local record store.
type FSM struct {
	store  *store.Memory
	logger hclog.Logger
}

// NewFSM creates a new FSM over s.
func NewFSM(s *store.Memory, logger hclog.Logger) *FSM {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &FSM{
		store:  s,
		logger: logger,
	}
}

// Apply applies a Raft log entry to the record store.
// Ids are assigned here, in log order, so all replicas agree on them.
func (f *FSM) Apply(entry *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(entry.Data, &cmd); err != nil {
		f.logger.Error("failed to unmarshal command", "index", entry.Index, "error", err)
		return applyResult{Err: err}
	}

	switch cmd.Op {
	case OpCreate:
		id, err := f.store.Append(cmd.Version, cmd.Data, cmd.CreatedAt)
		if err != nil {
			return applyResult{Err: err}
		}
		f.logger.Trace("applied create", "index", entry.Index, "id", id)
		return applyResult{ID: id}
	default:
		f.logger.Warn("unrecognized command op", "op", cmd.Op, "index", entry.Index)
		return applyResult{Err: fmt.Errorf("unrecognized op %q", cmd.Op)}
	}
}

// Snapshot captures every record for log compaction.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return &snapshot{records: f.store.Records()}, nil
}

// Restore replaces the store content with a snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var records []store.Record
	if err := json.NewDecoder(rc).Decode(&records); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	f.store.Reset(records)
	f.logger.Info("restored snapshot", "records", len(records))
	return nil
}

type snapshot struct {
	records []store.Record
}

func (s *snapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s.records); err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *snapshot) Release() {}
