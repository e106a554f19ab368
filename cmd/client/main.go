package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aeolun/udpchat/pkg/client"
	"github.com/aeolun/udpchat/pkg/logging"
)

func main() {
	configPath := flag.String("config", client.DefaultConfigPath(), "Path to config file")
	username := flag.String("u", "", "Username to join with (required unless set in config)")
	address := flag.String("a", "", "Server IP or hostname (overrides config, default localhost)")
	port := flag.Int("p", 0, "Server port (overrides config, default 15000)")
	window := flag.Int("w", 0, "Window size (accepted, currently has no effect)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	fileConfig, err := client.LoadClientConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *username != "" {
		fileConfig.Local.Username = *username
	}
	if *address != "" {
		fileConfig.Connection.Address = *address
	}
	if *port != 0 {
		fileConfig.Connection.Port = *port
	}
	if *window != 0 {
		fileConfig.Connection.WindowSize = *window
	}
	if *debug {
		fileConfig.Local.LogLevel = "debug"
	}

	config := fileConfig.ToConfig()
	if !client.ValidUsername(config.Username) {
		fmt.Fprintln(os.Stderr, "Missing or invalid username.")
		flag.Usage()
		os.Exit(1)
	}

	logger := logging.New(fileConfig.Local.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = client.New(config, logger).Run(ctx, os.Stdin, os.Stdout)
	switch {
	case errors.Is(err, client.ErrDisconnected):
		os.Exit(1)
	case err != nil:
		logger.Error().Err(err).Msg("client failed")
		os.Exit(1)
	}
}
