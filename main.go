package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"flipmatch-server/api"
	"flipmatch-server/auth"
	"flipmatch-server/config"
	"flipmatch-server/ledger"
	"flipmatch-server/loghandler"
	"flipmatch-server/session"
	"flipmatch-server/storage"
	"flipmatch-server/theme"
	"flipmatch-server/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if err2 := godotenv.Load("server/.env"); err2 != nil {
			fmt.Fprintln(os.Stderr, "No .env file found; using environment variables.")
		}
	}

	cfg := config.Load()
	slog.SetDefault(slog.New(loghandler.NewCompactHandler(os.Stdout, loghandler.ParseLevel(cfg.LogLevel))))

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "tag", "main", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, scanErr := theme.Scan(os.DirFS(cfg.ThemesDir), cfg.AssetURLPrefix)
	if scanErr != nil {
		slog.Warn("theme scan failed; only the glyph theme is playable", "tag", "main", "dir", cfg.ThemesDir, "err", scanErr)
		catalog = theme.NewCatalog()
	}
	slog.Info("themes loaded", "tag", "main", "themes", catalog.Names())

	store, bc, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, store.Close())
	}()

	validator, err := auth.NewValidator(cfg.NeonAuthBaseURL)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if validator == nil {
		slog.Info("auth not configured; all players are anonymous", "tag", "main")
	} else {
		slog.Info("auth configured", "tag", "main", "base_url", cfg.NeonAuthBaseURL)
	}

	book := ledger.NewBook(store, bc)
	sessions := session.NewManager(ctx, cfg, catalog, book, validator)
	hub := ws.NewHub(cfg, sessions)

	handler := api.NewHandler(cfg, catalog, book, validator)
	router := api.NewRouter(handler, hub.ServeWS, http.Dir(cfg.ThemesDir))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := book.Listen(gctx); err != nil {
			slog.Warn("ledger change listener stopped", "tag", "main", "err", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("listening", "tag", "main", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore picks Postgres when DATABASE_URL is set, SQLite otherwise. Only
// Postgres can fan unlock notifications out to other instances.
func openStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, ledger.Broadcaster, error) {
	pg, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if pg != nil {
		slog.Info("ledger storage: postgres", "tag", "main")
		return pg, pg, nil
	}

	lite, err := storage.NewSQLiteStore(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: %w", err)
	}
	slog.Info("ledger storage: sqlite", "tag", "main", "path", cfg.SQLitePath)
	return lite, nil, nil
}
