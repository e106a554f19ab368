package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aeolun/udpchat/pkg/logging"
	"github.com/aeolun/udpchat/pkg/server"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "~/.udpchat/server.toml", "Path to config file")
	address := flag.String("a", "", "Address to bind (overrides config, default localhost)")
	port := flag.Int("p", 0, "UDP port to listen on (overrides config, default 15000)")
	window := flag.Int("w", 0, "Window size (accepted, currently has no effect)")
	metricsAddr := flag.String("metrics-addr", "", "Serve /metrics and /health on this address (overrides config)")
	journalPath := flag.String("journal", "", "Path to SQLite delivery journal (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("udpchat server %s\n", Version)
		os.Exit(0)
	}

	config, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file
	if *address != "" {
		config.Server.Address = *address
	}
	if *port != 0 {
		config.Server.Port = *port
	}
	if *window != 0 {
		config.Server.WindowSize = *window
	}
	if *metricsAddr != "" {
		config.Observability.MetricsAddr = *metricsAddr
	}
	if *journalPath != "" {
		config.Observability.JournalPath = *journalPath
	}
	if *debug {
		config.Observability.LogLevel = "debug"
	}

	logger := logging.New(config.Observability.LogLevel, os.Stderr)

	serverConfig, err := config.ToServerConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger.Info().
		Str("version", Version).
		Str("config", *configPath).
		Str("journal", serverConfig.JournalPath).
		Msg("starting udpchat server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, serverConfig, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("server stopped")
}
