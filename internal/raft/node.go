package raft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// NodeConfig describes the local Raft node.
type NodeConfig struct {
	NodeID    string
	BindAddr  string
	DataDir   string
	Bootstrap bool
}

// Node is a running Raft node with its on-disk log store.
type Node struct {
	*raft.Raft
	logStore *raftboltdb.BoltStore
}

// NewNode starts a Raft node that applies entries to fsm.
func NewNode(cfg NodeConfig, fsm raft.FSM, logger hclog.Logger) (*Node, error) {
	if cfg.NodeID == "" {
		return nil, errors.New("raft node id is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create raft data dir: %w", err)
	}

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)
	raftConfig.Logger = logger

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve raft address: %w", err)
	}
	transport, err := raft.NewTCPTransportWithLogger(cfg.BindAddr, advertise(addr), 3, 10*time.Second, logger)
	if err != nil {
		return nil, fmt.Errorf("create raft transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStoreWithLogger(cfg.DataDir, 2, logger)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft.db"))
	if err != nil {
		return nil, fmt.Errorf("create bolt store: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, fsm, logStore, logStore, snapshots, transport)
	if err != nil {
		_ = logStore.Close()
		return nil, fmt.Errorf("create raft node: %w", err)
	}

	if cfg.Bootstrap {
		logger.Info("bootstrapping cluster", "node_id", cfg.NodeID)
		future := r.BootstrapCluster(raft.Configuration{
			Servers: []raft.Server{
				{
					ID:      raftConfig.LocalID,
					Address: transport.LocalAddr(),
				},
			},
		})
		if err := future.Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
			_ = r.Shutdown().Error()
			_ = logStore.Close()
			return nil, fmt.Errorf("bootstrap cluster: %w", err)
		}
	}

	return &Node{Raft: r, logStore: logStore}, nil
}

// WaitForLeader blocks until the cluster has a leader or ctx is done.
func (n *Node) WaitForLeader(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if addr, _ := n.LeaderWithID(); addr != "" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close shuts the node down and releases the log store.
func (n *Node) Close() error {
	err := n.Shutdown().Error()
	if cerr := n.logStore.Close(); err == nil {
		err = cerr
	}
	return err
}

// advertise returns nil for unspecified bind addresses so the transport
// advertises the listener's address instead.
func advertise(addr *net.TCPAddr) net.Addr {
	if addr.IP == nil || addr.IP.IsUnspecified() || addr.Port == 0 {
		return nil
	}
	return addr
}

// RequestJoin asks the leader's HTTP API at leaderURL to add this node.
func RequestJoin(ctx context.Context, client *http.Client, leaderURL, nodeID, raftAddr string) error {
	body, err := json.Marshal(map[string]string{"node_id": nodeID, "addr": raftAddr})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, leaderURL+"/join", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("join %s: %w", leaderURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("join %s: unexpected status %s", leaderURL, resp.Status)
	}
	return nil
}
