// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/datamaps/internal/api"
	"github.com/starford/datamaps/internal/datamapservice"
	"github.com/starford/datamaps/internal/extract"
	"github.com/starford/datamaps/internal/mcpserver"
	"github.com/starford/datamaps/internal/store"
	"github.com/starford/datamaps/internal/workbook"
)

// Version is reported by the MCP server.
const Version = "1.0.0"

// App is an initialised datamaps application bound to one store.
type App struct {
	cfg    *Config
	logger *slog.Logger
	store  *store.Store
	svc    *datamapservice.Service
	orch   *extract.Orchestrator
	out    io.Writer
	pretty bool
}

// New builds the logger and opens the store described by the options.
func New(ctx context.Context, opts ...Option) (*App, error) {
	app := &application{out: os.Stdout, logOut: os.Stderr}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config
	logger := newLogger(cfg.App, app.logOut, app.verbose, app.quiet)
	slog.SetDefault(logger)

	logger.Debug("Configuration loaded",
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()),
		slog.Bool("raw_values", cfg.Workbook.RawValues))

	st, err := store.Open(ctx, cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	opener := workbook.Opener(workbook.Options{RawValues: cfg.Workbook.RawValues})
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  st,
		svc:    datamapservice.NewService(st),
		orch:   extract.New(st, opener, logger),
		out:    app.out,
		pretty: app.pretty,
	}, nil
}

func newLogger(cfg ApplicationConfig, w io.Writer, verbose, quiet bool) *slog.Logger {
	level := cfg.LogLevel
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == LogFormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Close closes the store.
func (a *App) Close() error {
	return a.store.Close()
}

func (a *App) print(v any) error {
	enc := json.NewEncoder(a.out)
	if a.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// report prints rep and passes err through, so a failed run still shows
// its stage and counts.
func (a *App) report(rep *extract.Report, err error) error {
	if rep != nil {
		if perr := a.print(rep); perr != nil && err == nil {
			return perr
		}
	}
	return err
}

// ImportDefinition imports the definition at path as a new datamap. With
// reset the schema is dropped and recreated in the same transaction.
func (a *App) ImportDefinition(ctx context.Context, path, name string, reset bool) error {
	if name == "" {
		name = a.cfg.Import.DefaultName
	}
	return a.report(a.orch.Import(ctx, path, name, reset))
}

// ExtractParams selects what an extraction runs against.
type ExtractParams struct {
	Spreadsheet string
	Datamap     string // id or name of a stored datamap

	// Definition, when set, is imported in the same transaction instead of
	// using a stored datamap.
	Definition string
	Name       string
	Reset      bool
}

// Extract traverses a workbook and records the matched values.
func (a *App) Extract(ctx context.Context, p ExtractParams) error {
	req := extract.Request{WorkbookPath: p.Spreadsheet}
	switch {
	case p.Definition != "":
		req.DefinitionPath, req.Name, req.Reset = p.Definition, p.Name, p.Reset
		if req.Name == "" {
			req.Name = a.cfg.Import.DefaultName
		}
	case p.Datamap != "":
		dm, err := a.svc.Resolve(ctx, p.Datamap)
		if err != nil {
			return fmt.Errorf("datamap %q: %w", p.Datamap, err)
		}
		req.DatamapID = dm.ID
	default:
		return errors.New("either a datamap or a definition is required")
	}
	return a.report(a.orch.Run(ctx, req))
}

// Reset drops and recreates the schema.
func (a *App) Reset(ctx context.Context) error {
	if err := a.store.ResetSchema(ctx); err != nil {
		return err
	}
	a.logger.Warn("schema reset; all datamaps and results dropped", slog.String("sqlite_path", a.cfg.SQLite.Path))
	return a.print(map[string]string{"status": "reset"})
}

// ListDatamaps prints every datamap.
func (a *App) ListDatamaps(ctx context.Context) error {
	items, err := a.svc.ListDatamaps(ctx)
	if err != nil {
		return err
	}
	return a.print(items)
}

// Lines prints a datamap and its lines.
func (a *App) Lines(ctx context.Context, ref string) error {
	d, err := a.svc.GetDatamap(ctx, ref)
	if err != nil {
		return err
	}
	return a.print(d)
}

// Returns prints the values of one run, the newest when runID is empty.
func (a *App) Returns(ctx context.Context, ref, runID string) error {
	rv, err := a.svc.Values(ctx, ref, runID)
	if err != nil {
		return err
	}
	return a.print(rv)
}

// Delete removes a datamap, and its results when purge is set.
func (a *App) Delete(ctx context.Context, ref string, purge bool) error {
	res, err := a.svc.DeleteDatamap(ctx, ref, purge)
	if err != nil {
		return err
	}
	a.logger.Info("datamap deleted",
		slog.Int64("datamap_id", res.Datamap.ID),
		slog.Int64("runs_removed", res.RunsRemoved))
	return a.print(res)
}

// ServeMCP serves the MCP tools on stdin/stdout until the client disconnects.
func (a *App) ServeMCP() error {
	a.logger.Info("Starting MCP server on stdio")
	return mcpserver.New(a.svc, Version).ServeStdio()
}

// Handler returns the HTTP handler of the read-only API.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := a.svc.ListDatamaps(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", api.NewRouter(a.svc, a.cfg.Auth.AuthEnabled(), a.cfg.Auth.Token))
	return r
}

// Serve runs the HTTP API until ctx is cancelled or a shutdown signal arrives.
func (a *App) Serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Address(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...",
		slog.String("http_address", cfg.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("auth", cfg.Auth.AuthEnabled()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
