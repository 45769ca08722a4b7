// Package config handles loading and parsing the application's configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Record store backends.
const (
	BackendMemory    = "memory"
	BackendJournal   = "journal"
	BackendBolt      = "bolt"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendRaft      = "raft"
)

// EnvPrefix prefixes every environment override, e.g. ARTSTORE_PORT.
const EnvPrefix = "ARTSTORE_"

// Config holds all configuration for the application.
type Config struct {
	NodeID       string        `toml:"node_id" yaml:"node_id"` // Unique ID for the node in a raft cluster
	Host         string        `toml:"host" yaml:"host"`
	Port         int           `toml:"port" yaml:"port"`
	RaftPort     int           `toml:"raft_port" yaml:"raft_port"` // Port for Raft's internal communication
	DataDir      string        `toml:"data_dir" yaml:"data_dir"`
	Peers        []string      `toml:"peers" yaml:"peers"` // HTTP base URLs of nodes to join through
	Backend      string        `toml:"backend" yaml:"backend"`
	DSN          string        `toml:"dsn" yaml:"dsn"`               // postgres only
	ProjectID    string        `toml:"project_id" yaml:"project_id"` // firestore only
	PageURL      string        `toml:"page_url" yaml:"page_url"`     // empty serves the built-in page
	LogLevel     string        `toml:"log_level" yaml:"log_level"`
	ReadTimeout  time.Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout" yaml:"write_timeout"`
	Diagnostics  bool          `toml:"diagnostics" yaml:"diagnostics"`
}

// New returns a new Config with default values.
func New() *Config {
	return &Config{
		NodeID:       "",
		Host:         "localhost",
		Port:         8080,
		RaftPort:     9080,
		DataDir:      ".",
		Peers:        []string{},
		Backend:      BackendJournal,
		LogLevel:     "info",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}

// Load reads a configuration file from the given path and populates the Config struct.
// Files ending in .yaml or .yml are parsed as YAML, everything else as TOML.
func (c *Config) Load(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(data, c)
	default:
		_, err := toml.DecodeFile(path, c)
		return err
	}
}

// LoadEnvFile exports the variables of a dotenv file into the process
// environment. Variables that are already set win.
func LoadEnvFile(path string) error {
	return godotenv.Load(path)
}

// ApplyEnv overrides fields from ARTSTORE_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("NODE_ID", &c.NodeID)
	str("HOST", &c.Host)
	num("PORT", &c.Port)
	num("RAFT_PORT", &c.RaftPort)
	str("DATA_DIR", &c.DataDir)
	str("BACKEND", &c.Backend)
	str("DSN", &c.DSN)
	str("PROJECT_ID", &c.ProjectID)
	str("PAGE_URL", &c.PageURL)
	str("LOG_LEVEL", &c.LogLevel)
	dur("READ_TIMEOUT", &c.ReadTimeout)
	dur("WRITE_TIMEOUT", &c.WriteTimeout)
	if v, ok := lookup(EnvPrefix + "PEERS"); ok {
		c.Peers = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "DIAGNOSTICS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sDIAGNOSTICS: %w", EnvPrefix, err))
		} else {
			c.Diagnostics = b
		}
	}
	return errors.Join(errs...)
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Backend {
	case BackendMemory, BackendJournal, BackendBolt, BackendSQLite:
	case BackendPostgres:
		if c.DSN == "" {
			errs = append(errs, errors.New("backend postgres requires dsn"))
		}
	case BackendFirestore:
		if c.ProjectID == "" {
			errs = append(errs, errors.New("backend firestore requires project_id"))
		}
	case BackendRaft:
		if c.NodeID == "" {
			errs = append(errs, errors.New("backend raft requires node_id"))
		}
		if c.RaftPort <= 0 || c.RaftPort > 65535 {
			errs = append(errs, fmt.Errorf("raft_port %d out of range", c.RaftPort))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	return errors.Join(errs...)
}

// HTTPAddr is the address the HTTP server listens on.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RaftAddr is the address raft listens on.
func (c *Config) RaftAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.RaftPort)
}

// Path resolves name inside the data directory.
func (c *Config) Path(name string) string {
	return filepath.Join(c.DataDir, name)
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
