// Package main is the entry point for the artstore server application.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/hashicorp/go-hclog"
	"github.com/jessevdk/go-flags"

	"github.com/ASHISH26940/artstore/internal/config"
	"github.com/ASHISH26940/artstore/internal/server"
	"github.com/ASHISH26940/artstore/internal/service"
)

// Options are the command line flags. The struct tags are interpreted by
// github.com/jessevdk/go-flags.
type Options struct {
	Config    string `short:"c" long:"config" description:"Path to a TOML or YAML config file"`
	EnvFile   string `short:"e" long:"env" description:"Path to a dotenv file exported before config overrides"`
	Bootstrap bool   `long:"bootstrap" description:"Bootstrap the raft cluster (run on the first node only)"`
}

func parseOptions(args []string) (*Options, error) {
	opts := &Options{}
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// loadConfig builds the effective config: defaults, then file, then environment.
func loadConfig(opts *Options, lookup func(string) (string, bool)) (*config.Config, error) {
	if opts.EnvFile != "" {
		if err := config.LoadEnvFile(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	cfg := config.New()
	if opts.Config != "" {
		if err := cfg.Load(opts.Config); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func main() {
	// --- Configuration and Flags ---
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := loadConfig(opts, os.LookupEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "artstore",
		Level: hclog.LevelFromString(cfg.LogLevel),
	})

	if err := run(cfg, opts.Bootstrap, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, bootstrap bool, logger hclog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Diagnostics {
		if err := agent.Listen(agent.Options{}); err != nil {
			return fmt.Errorf("start diagnostics agent: %w", err)
		}
		defer agent.Close()
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// --- Record store ---
	be, err := openBackend(ctx, cfg, bootstrap, logger)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	defer func() {
		if err := be.Close(); err != nil {
			logger.Warn("close backend", "error", err)
		}
	}()
	logger.Info("record store ready", "backend", cfg.Backend)

	// --- HTTP Server ---
	page, err := server.LoadPage(ctx, cfg.PageURL)
	if err != nil {
		return err
	}
	srvOpts := []server.Option{server.WithPage(page), server.WithLogger(logger.Named("http"))}
	if be.cluster != nil {
		srvOpts = append(srvOpts, server.WithCluster(be.cluster))
	}
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      server.New(service.New(be.store), srvOpts...),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if cfg.Backend == config.BackendRaft && !bootstrap && len(cfg.Peers) > 0 {
		if err := joinCluster(ctx, cfg, joinPolicy(), logger); err != nil {
			logger.Error("failed to join cluster", "error", err)
		}
	}

	logger.Info("artstore node started successfully")
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
