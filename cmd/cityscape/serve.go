// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kadirpekel/cityscape/pkg/artifact"
	"github.com/kadirpekel/cityscape/pkg/auth"
	"github.com/kadirpekel/cityscape/pkg/cityscape"
	"github.com/kadirpekel/cityscape/pkg/config"
	"github.com/kadirpekel/cityscape/pkg/logger"
	"github.com/kadirpekel/cityscape/pkg/observability"
	"github.com/kadirpekel/cityscape/pkg/runner"
	"github.com/kadirpekel/cityscape/pkg/server"
	"github.com/kadirpekel/cityscape/pkg/session"
	"github.com/kadirpekel/cityscape/pkg/task"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int `help:"Port to listen on. Overrides PORT (default 8080)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli, c)
	if err != nil {
		return err
	}

	cleanup, err := initLogger(&cfg.Logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs := observability.NewManager(cfg.Observability)
	if err := obs.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Observability shutdown failed", "error", err)
		}
	}()

	sessions, err := session.NewFromURI(cfg.Server.SessionServiceURI)
	if err != nil {
		return fmt.Errorf("failed to create session service: %w", err)
	}
	if closer, ok := sessions.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	artifacts := artifact.NewInMemoryService()

	root, err := cityscape.BuildRoot(ctx, cfg, cityscape.Deps{
		Tracer:  obs.Tracer("cityscape/agents"),
		Metrics: obs.Metrics(),
	})
	if err != nil {
		return fmt.Errorf("failed to build agents: %w", err)
	}

	r, err := runner.New(runner.Config{
		AppName:         AppName,
		Agent:           root,
		SessionService:  sessions,
		ArtifactService: artifacts,
		Tracer:          obs.Tracer("cityscape/runner"),
		Metrics:         obs.Metrics(),
	})
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	srvCfg := server.Config{
		Server:          &cfg.Server,
		Auth:            &cfg.Auth,
		Runner:          r,
		SessionService:  sessions,
		ArtifactService: artifacts,
		Observability:   obs,
		Version:         version(),
	}
	tasks, err := task.NewStoreForSessions(sessions)
	if err != nil {
		return fmt.Errorf("failed to create task store: %w", err)
	}
	if tasks != nil {
		srvCfg.TaskStore = tasks
	}

	validator, err := auth.NewValidatorFromConfig(&cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to create token validator: %w", err)
	}
	if validator != nil {
		defer validator.Close()
		srvCfg.Validator = validator
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}

	printStartup(cfg)
	return srv.ListenAndServe(ctx)
}

// loadConfig reads the environment, .env files and the optional YAML file,
// then applies command-line overrides.
func loadConfig(cli *CLI, c *ServeCmd) (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		ConfigFile: cli.Config,
		EnvFiles:   cli.EnvFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if cli.LogLevel != "" {
		cfg.Logger.Level = cli.LogLevel
	}
	if cli.LogFile != "" {
		cfg.Logger.File = cli.LogFile
	}
	if cli.LogFormat != "" {
		cfg.Logger.Format = cli.LogFormat
	}
	return cfg, nil
}

func initLogger(cfg *config.LoggerConfig) (func(), error) {
	if cfg.File == "" {
		logger.Init(logger.ParseLevel(cfg.Level), os.Stderr, cfg.Format)
		return func() {}, nil
	}
	file, cleanup, err := logger.OpenLogFile(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.Init(logger.ParseLevel(cfg.Level), file, cfg.Format)
	return cleanup, nil
}

func printStartup(cfg *config.Config) {
	base := fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	fmt.Printf("\ncityscape server ready\n")
	fmt.Printf("   Health:      %s/health\n", base)
	fmt.Printf("   Run (SSE):   %s/run_sse\n", base)
	if cfg.Server.A2AEnabled() {
		fmt.Printf("   Agent Card:  %s%s/.well-known/agent-card.json\n", base, server.A2APath(AppName))
	}
	if cfg.Server.WebInterfaceEnabled() {
		fmt.Printf("   Web UI:      %s/dev-ui/\n", base)
	}
	if cfg.CityTrip.Enabled() {
		fmt.Printf("   City trip:   %s\n", cfg.CityTrip.URL)
	}
	fmt.Println()
}
