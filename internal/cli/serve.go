package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"retailpos/m/internal/api"
	"retailpos/m/internal/branch"
	"retailpos/m/internal/catalog"
	"retailpos/m/internal/identity"
	"retailpos/m/internal/sales"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}
}

func serve(parent context.Context, opts *RootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log := opts.Config, opts.Logger
	db, err := openDB(ctx, opts)
	if err != nil {
		return err
	}
	defer closeDB(db, log)

	store := catalog.NewStore(db, log.With(slog.String("component", "catalog")))
	users := identity.NewService(db, cfg.Secret, cfg.TokenTTL, log.With(slog.String("component", "identity")))
	handler := api.New(api.Deps{
		Catalog:        store,
		Sales:          sales.NewRecorder(db, store, log.With(slog.String("component", "sales"))),
		Identity:       users,
		Branches:       branch.NewDirectory(db, users, log.With(slog.String("component", "branch"))),
		Logger:         log,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("retailpos server starting", slog.String("addr", srv.Addr), slog.String("driver", cfg.DatabaseDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", slog.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
