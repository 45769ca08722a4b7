package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/lestrrat-go/backoff/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ASHISH26940/artstore/internal/config"
)

func TestParseOptions_DataDriven(t *testing.T) {
	type testCase struct {
		name   string
		args   []string
		expect Options
	}

	cases := []testCase{
		{name: "defaults", args: []string{}, expect: Options{}},
		{name: "short config", args: []string{"-c", "artstore.toml"}, expect: Options{Config: "artstore.toml"}},
		{
			name:   "all flags",
			args:   []string{"--config=a.yaml", "--env", ".env", "--bootstrap"},
			expect: Options{Config: "a.yaml", EnvFile: ".env", Bootstrap: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts, err := parseOptions(tc.args)
			require.NoError(t, err)
			assert.EqualValues(t, tc.expect, *opts)
		})
	}

	_, err := parseOptions([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artstore.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = 9000\nbackend = \"bolt\"\n"), 0644))

	env := map[string]string{"ARTSTORE_PORT": "9100"}
	cfg, err := loadConfig(&Options{Config: path}, func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, config.BackendBolt, cfg.Backend)
}

func TestLoadConfig_Invalid(t *testing.T) {
	env := map[string]string{"ARTSTORE_BACKEND": "postgres"}
	_, err := loadConfig(&Options{}, func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn")
}

func TestOpenBackend_Embedded(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{config.BackendMemory, config.BackendJournal, config.BackendBolt, config.BackendSQLite} {
		t.Run(name, func(t *testing.T) {
			cfg := config.New()
			cfg.Backend = name
			cfg.DataDir = t.TempDir()

			be, err := openBackend(ctx, cfg, false, hclog.NewNullLogger())
			require.NoError(t, err)
			t.Cleanup(func() { _ = be.Close() })
			assert.Nil(t, be.cluster)

			id, err := be.store.Create(ctx, 1, `{"x":1}`)
			require.NoError(t, err)
			rec, ok, err := be.store.Get(ctx, id)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, `{"x":1}`, rec.Data)
		})
	}
}

func TestOpenBackend_Unknown(t *testing.T) {
	cfg := config.New()
	cfg.Backend = "mongo"
	_, err := openBackend(context.Background(), cfg, false, hclog.NewNullLogger())
	assert.Error(t, err)
}

func TestJoinCluster_RetriesUntilLeaderAccepts(t *testing.T) {
	var calls atomic.Int32
	leader := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "no leader yet", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer leader.Close()

	cfg := config.New()
	cfg.NodeID = "node2"
	cfg.Peers = []string{leader.URL}
	policy := backoff.Constant(backoff.WithInterval(time.Millisecond), backoff.WithMaxRetries(5))

	require.NoError(t, joinCluster(context.Background(), cfg, policy, hclog.NewNullLogger()))
	assert.EqualValues(t, 3, calls.Load())
}

func TestJoinCluster_GivesUp(t *testing.T) {
	follower := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Can only join a cluster via the leader node", http.StatusForbidden)
	}))
	defer follower.Close()

	cfg := config.New()
	cfg.NodeID = "node2"
	cfg.Peers = []string{follower.URL}
	policy := backoff.Constant(backoff.WithInterval(time.Millisecond), backoff.WithMaxRetries(2))

	err := joinCluster(context.Background(), cfg, policy, hclog.NewNullLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not join any peer")
}
