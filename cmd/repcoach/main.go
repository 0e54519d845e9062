package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tailscale.com/tsnet"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/config"
	"github.com/claude/repcoach/internal/journal"
	coachmcp "github.com/claude/repcoach/internal/mcp"
	"github.com/claude/repcoach/internal/provider"
	"github.com/claude/repcoach/internal/provider/hevy"
	"github.com/claude/repcoach/internal/server"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/storage"
	"github.com/claude/repcoach/internal/vault"
	"github.com/claude/repcoach/internal/voice"
	"github.com/claude/repcoach/internal/voice/wsbridge"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	log.Info("repcoach starting", "version", Version)

	ctx := context.Background()

	// Database is optional: without it there is no history, no phonetic
	// mappings and no database vault.
	var db *storage.DB
	if cfg.Database.Enabled {
		dsn := cfg.Database.DSN()
		if err := storage.RunMigrations(dsn, "migrations"); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")

		if *migrateOnly {
			log.Info("migrate-only: exiting")
			return
		}

		db, err = storage.New(ctx, dsn)
		if err != nil {
			log.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		log.Info("database connected")
	} else if *migrateOnly {
		log.Error("migrate-only requires database.enabled")
		os.Exit(1)
	}

	jr, err := journal.Open(cfg.Journal.Dir)
	if err != nil {
		log.Error("failed to open journal", "dir", cfg.Journal.Dir, "error", err)
		os.Exit(1)
	}
	defer jr.Close()

	keys, err := openVault(cfg, db)
	if err != nil {
		log.Error("failed to open vault", "backend", cfg.Vault.Backend, "error", err)
		os.Exit(1)
	}

	// Providers
	registry := provider.NewRegistry(hevy.New(cfg.Provider.BaseURL, keys,
		hevy.WithHTTPClient(&http.Client{Timeout: cfg.Provider.Timeout}),
		hevy.WithLogger(log.With("provider", hevy.Name)),
	))
	if err := registry.SetActive(cfg.Provider.Name); err != nil {
		log.Error("unknown provider", "name", cfg.Provider.Name, "error", err)
		os.Exit(1)
	}

	opts := []session.Option{
		session.WithRemote(registry),
		session.WithJournal(jr),
		session.WithLogger(log),
	}
	var store server.Store
	if db != nil {
		opts = append(opts, session.WithStore(db))
		store = db
	}
	sessions := session.NewService(coachConfig(cfg), registry, opts...)

	if n, err := sessions.Recover(ctx); err != nil {
		log.Warn("journal recovery failed", "error", err)
	} else if n > 0 {
		log.Info("resent unsynced workouts", "count", n)
	}

	mcpServer := coachmcp.New(coachmcp.NewLocalCoach(sessions), Version, log.With("component", "mcp"))

	srv := server.New(server.Deps{
		Sessions:  sessions,
		Providers: registry,
		Vault:     keys,
		DB:        store,
		MCP:       coachmcp.NewHTTPHandler(mcpServer),
		Voice: []wsbridge.Option{
			wsbridge.WithSpeakOptions(voice.SpeakOptions{Rate: cfg.Voice.Rate, Pitch: cfg.Voice.Pitch, Volume: cfg.Voice.Volume}),
			wsbridge.WithSelfHearingWindow(cfg.Coach.SelfHearingWindow),
		},
		APIKey:  cfg.Auth.APIKey,
		Version: Version,
	}, log)

	// Start server: tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		srv.SetTailscale(lc)

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	sessions.CompleteAll(shutdownCtx)
	log.Info("server stopped")
}

func coachConfig(cfg *config.Config) coach.Config {
	return coach.Config{
		AnnounceDelay:       cfg.Coach.AnnounceDelay,
		DefaultRestSeconds:  cfg.Coach.DefaultRestSeconds,
		ExerciseRestSeconds: cfg.Coach.ExerciseRestSeconds,
		FinishTimeout:       cfg.Coach.CompletionWait,
	}
}

func openVault(cfg *config.Config, db *storage.DB) (vault.Vault, error) {
	switch cfg.Vault.Backend {
	case config.VaultDatabase:
		if db == nil {
			return nil, errors.New("database vault needs database.enabled")
		}
		return vault.NewSealed(db, cfg.Vault.Secret, cfg.Vault.Scope)
	default:
		return vault.NewKeyring(cfg.Vault.Scope), nil
	}
}
