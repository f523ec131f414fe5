// Package main is the dossier CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/atifdosyasi/dossier/internal/auth"
	"github.com/atifdosyasi/dossier/internal/catalog"
	"github.com/atifdosyasi/dossier/internal/config"
	"github.com/atifdosyasi/dossier/internal/generate"
	"github.com/atifdosyasi/dossier/internal/server"
	"github.com/atifdosyasi/dossier/internal/session"
	"github.com/atifdosyasi/dossier/internal/upload"
	"github.com/atifdosyasi/dossier/internal/watcher"
	"github.com/atifdosyasi/dossier/internal/workspace"
	"github.com/atifdosyasi/dossier/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/dossier/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "version", "--version", "-v":
		fmt.Printf("dossier version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	// Local overrides (engine command, ports) may live in a .env file.
	_ = godotenv.Load()

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ws := workspace.NewResolver(cfg.Storage.BaseDir)
	sessions := session.NewStore(ws, logger)
	intake := upload.NewIntake(ws, sessions, logger)
	runner := generate.NewRunner(cfg.Engine, logger)
	orchestrator := generate.NewOrchestrator(ws, sessions, runner, logger)
	cat := catalog.NewCatalog(ws, sessions, logger)

	users, err := auth.NewStore(cfg.Storage.UsersDBPath)
	if err != nil {
		logger.Fatal("failed to open user store", zap.Error(err))
	}
	defer users.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	artifacts := watcher.NewArtifactWatcher(cfg.Storage.BaseDir, logger)
	if err := artifacts.Start(ctx); err != nil {
		logger.Warn("artifact watcher unavailable", zap.Error(err))
	}
	defer artifacts.Stop()

	srv := server.NewServer(ws, sessions, intake, orchestrator, cat, users, cfg, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	}
}

func printUsage() {
	fmt.Println(`dossier - citation dossier service

Usage:
  dossier server [--config path] [--debug]   start the HTTP server
  dossier version                            print version
  dossier help                               show this help`)
}
