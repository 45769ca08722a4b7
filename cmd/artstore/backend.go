package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/lestrrat-go/backoff/v2"

	"github.com/ASHISH26940/artstore/internal/config"
	internal_raft "github.com/ASHISH26940/artstore/internal/raft"
	"github.com/ASHISH26940/artstore/internal/server"
	"github.com/ASHISH26940/artstore/internal/store"
)

// backend is the record store selected by config plus what it needs at shutdown.
type backend struct {
	store   store.RecordStore
	cluster server.Cluster
	closer  io.Closer
}

func (b *backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

func openBackend(ctx context.Context, cfg *config.Config, bootstrap bool, logger hclog.Logger) (*backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		m := store.NewMemory()
		return &backend{store: m, closer: m}, nil

	case config.BackendJournal:
		path := cfg.Path("artworks.wal")
		logger.Info("replaying write-ahead log", "path", path)
		m, err := store.OpenJournaled(path)
		if err != nil {
			return nil, err
		}
		logger.Info("write-ahead log replay complete", "records", len(m.Records()))
		return &backend{store: m, closer: m}, nil

	case config.BackendBolt:
		b, err := store.OpenBolt(cfg.Path("artworks.db"))
		if err != nil {
			return nil, err
		}
		return &backend{store: b, closer: b}, nil

	case config.BackendSQLite:
		s, err := store.OpenSQLite(cfg.Path("artworks.sqlite"))
		if err != nil {
			return nil, err
		}
		return &backend{store: s, closer: s}, nil

	case config.BackendPostgres:
		p, err := store.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &backend{store: p, closer: p}, nil

	case config.BackendFirestore:
		f, err := store.OpenFirestore(ctx, cfg.ProjectID)
		if err != nil {
			return nil, err
		}
		return &backend{store: f, closer: f}, nil

	case config.BackendRaft:
		local := store.NewMemory()
		fsm := internal_raft.NewFSM(local, logger.Named("fsm"))
		node, err := internal_raft.NewNode(internal_raft.NodeConfig{
			NodeID:    cfg.NodeID,
			BindAddr:  cfg.RaftAddr(),
			DataDir:   cfg.Path("raft"),
			Bootstrap: bootstrap,
		}, fsm, logger.Named("raft"))
		if err != nil {
			return nil, err
		}
		rs := internal_raft.NewStore(node, local)
		return &backend{store: rs, cluster: rs, closer: node}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// joinPolicy paces join attempts while the leader may still be starting.
func joinPolicy() backoff.Policy {
	return backoff.Exponential(
		backoff.WithMinInterval(time.Second),
		backoff.WithMaxInterval(10*time.Second),
		backoff.WithJitterFactor(0.1),
		backoff.WithMaxRetries(5),
	)
}

// joinCluster asks each peer in turn to add this node until one accepts.
func joinCluster(ctx context.Context, cfg *config.Config, policy backoff.Policy, logger hclog.Logger) error {
	client := &http.Client{Timeout: 5 * time.Second}
	var lastErr error
	attempt := 0
	b := policy.Start(ctx)
	for backoff.Continue(b) {
		attempt++
		for _, peer := range cfg.Peers {
			err := internal_raft.RequestJoin(ctx, client, peer, cfg.NodeID, cfg.RaftAddr())
			if err == nil {
				logger.Info("joined cluster", "via", peer)
				return nil
			}
			logger.Warn("join attempt failed", "peer", peer, "attempt", attempt, "error", err)
			lastErr = err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("could not join any peer: %w", lastErr)
}
