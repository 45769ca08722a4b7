package raft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/raft"

	"github.com/ASHISH26940/artstore/internal/store"
)

// DefaultApplyTimeout bounds a create when the request carries no deadline.
const DefaultApplyTimeout = 5 * time.Second

// ErrNotLeader is returned for writes and joins sent to a follower.
var ErrNotLeader = errors.New("not the raft leader")

// Consensus is the part of *raft.Raft the replicated store needs.
// Tests substitute a fake.
type Consensus interface {
	Apply(cmd []byte, timeout time.Duration) raft.ApplyFuture
	State() raft.RaftState
	Leader() raft.ServerAddress
	AddVoter(id raft.ServerID, address raft.ServerAddress, prevIndex uint64, timeout time.Duration) raft.IndexFuture
}

// Store is a RecordStore whose creates go through the Raft log.
// Reads are served from the local replica and may lag the leader.
type Store struct {
	node  Consensus
	local *store.Memory
	now   func() time.Time
}

// NewStore returns a replicated store. local must be the FSM's store.
func NewStore(node Consensus, local *store.Memory) *Store {
	return &Store{node: node, local: local, now: time.Now}
}

func (s *Store) Create(ctx context.Context, version int32, data string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &store.StorageError{Op: "create", Err: err}
	}
	if s.node.State() != raft.Leader {
		return 0, &store.StorageError{
			Op:  "create",
			Err: fmt.Errorf("%w, leader is %q", ErrNotLeader, s.node.Leader()),
		}
	}

	cmdBytes, err := json.Marshal(Command{
		Op:        OpCreate,
		Version:   version,
		Data:      data,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return 0, &store.StorageError{Op: "create", Err: err}
	}

	// Blocks until the entry is committed by a majority and applied locally.
	future := s.node.Apply(cmdBytes, applyTimeout(ctx))
	if err := future.Error(); err != nil {
		return 0, &store.StorageError{Op: "create", Err: err}
	}
	res, ok := future.Response().(applyResult)
	if !ok {
		return 0, &store.StorageError{Op: "create", Err: fmt.Errorf("unexpected apply response %T", future.Response())}
	}
	if res.Err != nil {
		var serr *store.StorageError
		if errors.As(res.Err, &serr) {
			return 0, res.Err
		}
		return 0, &store.StorageError{Op: "create", Err: res.Err}
	}
	return res.ID, nil
}

func (s *Store) Get(ctx context.Context, id int64) (store.Record, bool, error) {
	return s.local.Get(ctx, id)
}

// Join adds a voter to the cluster. Only the leader can do this.
func (s *Store) Join(nodeID, addr string) error {
	if s.node.State() != raft.Leader {
		return ErrNotLeader
	}
	future := s.node.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 0)
	return future.Error()
}

// Leader returns the address of the current leader, if known.
func (s *Store) Leader() string {
	return string(s.node.Leader())
}

// applyTimeout honors the caller's deadline, capped at DefaultApplyTimeout.
func applyTimeout(ctx context.Context) time.Duration {
	timeout := DefaultApplyTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return timeout
}
