package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	boltadapter "github.com/ericfisherdev/tgvault/internal/adapter/driven/bolt"
	"github.com/ericfisherdev/tgvault/internal/adapter/driven/filestore"
	githubadapter "github.com/ericfisherdev/tgvault/internal/adapter/driven/github"
	"github.com/ericfisherdev/tgvault/internal/adapter/driven/keepass"
	sqliteadapter "github.com/ericfisherdev/tgvault/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/tgvault/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/tgvault/internal/adapter/driving/web"
	wshandler "github.com/ericfisherdev/tgvault/internal/adapter/driving/ws"
	"github.com/ericfisherdev/tgvault/internal/application"
	"github.com/ericfisherdev/tgvault/internal/config"
	"github.com/ericfisherdev/tgvault/internal/domain/port/driven"
)

const eventBuffer = 16

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(os.Stderr, cfg))
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"store", cfg.StoreBackend,
		"cipher_suite", cfg.CipherSuite,
		"idle_timeout", cfg.IdleTimeout,
		"locale", cfg.Locale,
	)

	// 2. Setup signal handling. memguard owns SIGINT: it wipes every enclave
	// and exits at once. SIGTERM drives the graceful shutdown below, after
	// which the deferred Purge wipes what is left. CatchInterrupt resets the
	// process signal handlers, so it must run before NotifyContext.
	memguard.CatchInterrupt()
	defer memguard.Purge()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	// 3. Open the blob store selected by configuration.
	blobs, closeStore, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
	}()

	// 4. Wire the vault session and load persisted state.
	events := application.NewEventBus(eventBuffer)
	vault := application.NewVaultService(blobs, events, application.VaultConfig{
		Params:       cfg.KDFParams(),
		Suite:        cfg.CipherSuite,
		Locale:       cfg.Locale,
		RevealWindow: cfg.RevealWindow,
	})
	if err := vault.Init(ctx); err != nil {
		return err
	}
	slog.Info("vault loaded", "state", vault.State())

	// 5. Remote backups are optional; the provider starts empty without a token.
	var backupStore driven.BackupStore
	if cfg.HasGitHubCredentials() {
		backupStore = githubadapter.NewGistBackup(cfg.GitHubToken, cfg.GistID)
		slog.Info("gist backup configured", "gist_id", cfg.GistID)
	} else {
		slog.Info("no github token configured, remote backup disabled")
	}
	backupSvc := application.NewBackupService(vault, application.NewBackupStoreProvider(backupStore))

	// 6. Lock the vault after inactivity.
	go application.NewIdleLocker(vault, cfg.IdleTimeout).Start(ctx)

	// 7. Create handlers and register routes.
	tokens, err := httphandler.NewTokenIssuer(vault, cfg.TokenTTL)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	apiHandler := httphandler.NewHandler(vault, backupSvc, tokens, slog.Default(), keepass.New())
	apiHandler.SetBackupStoreFactory(func(token, gistID string) driven.BackupStore {
		return githubadapter.NewGistBackup(token, gistID)
	})
	httphandler.RegisterAPIRoutes(mux, apiHandler)

	wsHandler := wshandler.NewHandler(events, tokens, cfg.AllowedOrigins, slog.Default())
	wshandler.RegisterRoutes(mux, wsHandler)

	webHandler := webhandler.NewHandler(vault, tokens, slog.Default())
	webhandler.RegisterRoutes(mux, webHandler)

	// Apply middleware.
	handler := httphandler.ApplyMiddleware(mux, slog.Default(), cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("tgvault started", "listen_addr", cfg.ListenAddr)

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// Drop the key before draining connections.
	vault.Lock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// newLogger builds the process logger from the configured format and level.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openBlobStore opens the configured backend and returns its close function.
func openBlobStore(ctx context.Context, cfg *config.Config) (driven.BlobStore, func() error, error) {
	switch cfg.StoreBackend {
	case config.BackendBolt:
		store, err := boltadapter.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("bolt store opened", "path", cfg.BoltPath)
		return store, store.Close, nil

	case config.BackendFile:
		store, err := filestore.Open(cfg.FileDir)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("file store opened", "dir", cfg.FileDir)
		return store, store.Close, nil

	default:
		db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		version, err := sqliteadapter.RunMigrations(db.Writer)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		slog.Info("database opened", "path", cfg.DBPath, "schema_version", version)
		return sqliteadapter.NewBlobRepo(db), db.Close, nil
	}
}
