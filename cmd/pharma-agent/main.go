// Package main implements the entry point for the pharma production
// agent: it ingests live line telemetry, correlates it with process
// orders, QA results and compliance records, and fans the combined view
// out to subscribers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/config"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/metric"
	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/service"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "pharma-agent"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting pharma agent",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	metricsRegistry := metric.NewMetricsRegistry()

	agent, err := service.NewAgent(cfg,
		service.WithLogger(logger),
		service.WithMetricsRegistry(metricsRegistry),
	)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	return runWithSignalHandling(agent, cliCfg.ShutdownTimeout)
}

// runWithSignalHandling starts the agent and blocks until a shutdown
// signal arrives
func runWithSignalHandling(agent *service.Agent, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := agent.Start(signalCtx); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}
	slog.Info("Pharma agent started, watching production lines")

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := agent.Stop(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("Pharma agent shutdown complete")
	return nil
}
