package cmd

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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"runwatch/api"
	"runwatch/config"
	"runwatch/events"
	"runwatch/logging"
	"runwatch/plan"
)

// Serve starts the HTTP server and blocks until SIGINT or SIGTERM
func Serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logging.Setup(&cfg.Log); err != nil {
		return err
	}

	store, err := openStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	catalog, err := plan.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		slog.Warn("failed to load pipeline catalog", "path", cfg.Catalog.Path, "error", err)
		catalog = &plan.Catalog{}
	} else {
		slog.Info("loaded pipeline catalog", "pipelines", len(catalog.Pipelines))
	}

	views := api.NewViews()
	h := api.NewHandler(views, api.Options{
		Storage:          store,
		Broker:           events.NewBroker(),
		Catalog:          catalog,
		BaseDir:          catalogBaseDir(cfg),
		FilterChunk:      cfg.Views.FilterChunk,
		AllowUnpersisted: cfg.Views.AllowUnpersisted,
	})

	janitor := api.NewJanitor(views, cfg.Views.TTL, cfg.Views.JanitorInterval)
	go janitor.Start()
	defer janitor.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	h.RegisterRoutes(e)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting runwatch server", "addr", cfg.Server.Addr())
		if err := e.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	slog.Info("shutting down runwatch server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
