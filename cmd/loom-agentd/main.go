// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// loom-agentd is the long-running daemon: it owns every thread's on-disk
// state, supervises the per-turn LLM subprocess, routes agent-to-agent
// interjection, and exposes the local control API an Electron front end
// drives. It is a single cobra root command that wires its collaborators
// and blocks on an interrupt signal; there is no terminal UI of its own.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/loom-agentd/internal/agentdconfig"
	"github.com/teradata-labs/loom-agentd/internal/blobstore"
	"github.com/teradata-labs/loom-agentd/internal/contextbudget"
	"github.com/teradata-labs/loom-agentd/internal/controlapi"
	"github.com/teradata-labs/loom-agentd/internal/log"
	"github.com/teradata-labs/loom-agentd/internal/router"
	"github.com/teradata-labs/loom-agentd/internal/supervisor"
	"github.com/teradata-labs/loom-agentd/internal/thread"
)

var (
	configPath string
	devLogging bool
)

var rootCmd = &cobra.Command{
	Use:   "loom-agentd",
	Short: "loom-agentd supervises agent CLI subprocesses and routes messages between threads",
	Long: `loom-agentd is the background process behind the Loom desktop app.

It decodes each agent CLI's line-delimited JSON stream, assembles per-turn
context under a fixed token budget, supervises one subprocess per active
thread, and exposes a local HTTP control API the Electron front end drives
to list agents, send messages, and fetch history.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to an optional YAML config overlay")
	rootCmd.Flags().BoolVar(&devLogging, "dev", false, "use human-readable development logging instead of JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := agentdconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := log.New(devLogging)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting loom-agentd", zap.String("data_dir", cfg.DataDir))

	threads := thread.NewManager(filepath.Join(cfg.DataDir, "threads"), logger)
	defer func() {
		if err := threads.Shutdown(); err != nil {
			logger.Warn("thread manager shutdown reported an error", zap.Error(err))
		}
	}()

	blobs, err := blobstore.New(filepath.Join(cfg.DataDir, "externalized"), logger)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	defer blobs.Close()

	assembler := contextbudget.New(contextbudget.Default(), blobs)

	// Bind the control API's listener before constructing the supervisor so
	// the tool-config base URL reflects the port actually bound, not just
	// the preferred one: Listen may have incremented past it on EADDRINUSE.
	listener, boundPort, err := controlapi.Listen(cfg.ControlAPI.Bind, cfg.ControlAPI.Port)
	if err != nil {
		return fmt.Errorf("control api: %w", err)
	}
	baseURL := controlAPIBaseURL(cfg.ControlAPI.Bind, boundPort)

	sup := supervisor.New(supervisor.Config{
		Threads:   threads,
		Assembler: assembler,
		Counter:   contextbudget.Default(),
		CLI: supervisor.CLIConfig{
			BinaryName:         cfg.CLI.BinaryName,
			ExtraCandidateDirs: cfg.CLI.ExtraCandidateDirs,
		},
		Logger:               logger,
		ControlAPIBaseURL:    baseURL,
		HelperToolServerPath: cfg.ToolServers.HelperToolServerPath,
		AgentToolServerPath:  cfg.ToolServers.AgentToolServerPath,
	})

	rtr := router.New(router.Config{
		Supervisor:      sup,
		Threads:         threads,
		Logger:          logger,
		KillGracePeriod: time.Duration(cfg.Router.KillGracePeriodMS) * time.Millisecond,
	})

	api := controlapi.New(controlapi.Config{
		Supervisor: sup,
		Router:     rtr,
		CreateThread: func(name string) error {
			_, err := threads.GetOrCreate(name)
			return err
		},
		Logger:   logger,
		Bind:     cfg.ControlAPI.Bind,
		Port:     cfg.ControlAPI.Port,
		Listener: listener,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := api.Start(ctx); err != nil {
		return fmt.Errorf("control api: %w", err)
	}
	logger.Info("loom-agentd stopped")
	return nil
}

// controlAPIBaseURL builds the URL threaded into every generated
// tool-config file, so the subprocess CLI's own tool calls can reach this
// daemon's control API. Callers must pass the actually bound port (e.g.
// from controlapi.Listen), not just the preferred one.
func controlAPIBaseURL(bind string, port int) string {
	return fmt.Sprintf("http://%s:%d", bind, port)
}
