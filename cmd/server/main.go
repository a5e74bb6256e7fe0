package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/boardcast/boardcast/pkg/server"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "~/.boardcast/config.toml", "Path to config file")
	port := flag.Int("port", 0, "HTTP port to listen on (overrides config)")
	dbPath := flag.String("db", "", "Path to SQLite database (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	pretty := flag.Bool("pretty", false, "Human-readable log output")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("Boardcast Server %s\n", Version)
		os.Exit(0)
	}

	var logger zerolog.Logger
	if *pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		logger.Debug().Msg("debug logging enabled")
	}

	// Load configuration (creates default if not found)
	config, err := server.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Command-line flags override config file
	if *port != 0 {
		config.Server.HTTPPort = *port
	}
	if *dbPath != "" {
		config.Server.DatabasePath = *dbPath
	}

	finalDBPath, err := config.GetDatabasePath()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve database path")
	}
	if err := os.MkdirAll(filepath.Dir(finalDBPath), 0755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create database directory")
	}

	serverConfig := config.ToServerConfig()

	metrics := server.NewMetrics()
	srv, err := server.NewServer(finalDBPath, serverConfig, logger, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create server")
	}

	logger.Info().Str("config", *configPath).Str("database", finalDBPath).Msg("starting boardcast server")

	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}

	logger.Info().
		Str("version", Version).
		Int("port", serverConfig.HTTPPort).
		Msg("boardcast server started")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info().Str("signal", sig.String()).Msg("shutting down")
	if err := srv.Stop(); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	logger.Info().Msg("server stopped")
}
