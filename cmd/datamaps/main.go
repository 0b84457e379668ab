package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/datamaps/internal"
	pkgconfig "github.com/starford/datamaps/pkg/config"
)

// withApp loads the configuration named by the root flags, opens the
// application and hands it to fn.
func withApp(fn func(ctx context.Context, cmd *cli.Command, app *internal.App) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		root := cmd.Root()

		cfg := internal.NewDefaultConfig()
		configPath := root.String("config")
		found, err := pkgconfig.LoadOptional(configPath, cfg)
		if err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		if db := root.String("db"); db != "" {
			cfg.SQLite.Path = db
		}

		app, err := internal.New(ctx,
			internal.WithConfig(cfg),
			internal.WithOutput(os.Stdout),
			internal.WithPretty(root.Bool("pretty")),
			internal.WithVerbosity(root.Bool("verbose"), root.Bool("quiet")),
		)
		if err != nil {
			return fmt.Errorf("app init error: %w", err)
		}
		defer app.Close() //nolint:errcheck

		if !found {
			slog.Debug("config file not found, using defaults", slog.String("path", configPath))
		}
		return fn(ctx, cmd, app)
	}
}

func datamapFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "datamap",
		Aliases:  []string{"d"},
		Usage:    "Datamap id or name",
		Required: required,
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "datamaps",
		Usage: "Extract values from spreadsheets through key, sheet, cellref datamaps",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("DATAMAPS_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "SQLite database path (overrides sqlite.path)",
				Sources: cli.EnvVars("DATAMAPS_DB"),
			},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Log at debug level"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Log errors only"},
			&cli.BoolFlag{Name: "pretty", Usage: "Indent JSON output"},
		},
		Commands: []*cli.Command{
			{
				Name:  "datamap",
				Usage: "Import a datamap definition file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "import", Aliases: []string{"i"}, Usage: "Definition file (key,sheet,cellref)", Required: true},
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Datamap name"},
					&cli.BoolFlag{Name: "overwrite", Usage: "Drop all stored datamaps and results first"},
					&cli.BoolFlag{Name: "initial", Usage: "Alias of --overwrite for a fresh database"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					reset := cmd.Bool("overwrite") || cmd.Bool("initial")
					return app.ImportDefinition(ctx, cmd.String("import"), cmd.String("name"), reset)
				}),
			},
			{
				Name:  "import",
				Usage: "Extract values from a spreadsheet using a datamap",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "spreadsheet", Aliases: []string{"s"}, Usage: "Workbook to read (.xlsx, .xlsm)", Required: true},
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Name for the datamap imported with --definition"},
					&cli.BoolFlag{Name: "overwrite", Usage: "With --definition, drop all stored data first"},
				},
				MutuallyExclusiveFlags: []cli.MutuallyExclusiveFlags{{
					Flags: [][]cli.Flag{
						{datamapFlag(false)},
						{&cli.StringFlag{Name: "definition", Usage: "Import this definition in the same run instead of using a stored datamap"}},
					},
					Required: true,
				}},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					return app.Extract(ctx, internal.ExtractParams{
						Spreadsheet: cmd.String("spreadsheet"),
						Datamap:     cmd.String("datamap"),
						Definition:  cmd.String("definition"),
						Name:        cmd.String("name"),
						Reset:       cmd.Bool("overwrite"),
					})
				}),
			},
			{
				Name:  "reset",
				Usage: "Drop and recreate the database schema",
				Action: withApp(func(ctx context.Context, _ *cli.Command, app *internal.App) error {
					return app.Reset(ctx)
				}),
			},
			{
				Name:  "datamaps",
				Usage: "List stored datamaps",
				Action: withApp(func(ctx context.Context, _ *cli.Command, app *internal.App) error {
					return app.ListDatamaps(ctx)
				}),
			},
			{
				Name:  "lines",
				Usage: "Show the lines of a datamap",
				Flags: []cli.Flag{datamapFlag(true)},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					return app.Lines(ctx, cmd.String("datamap"))
				}),
			},
			{
				Name:  "returns",
				Usage: "Show the values recorded by an extraction run",
				Flags: []cli.Flag{
					datamapFlag(true),
					&cli.StringFlag{Name: "run", Aliases: []string{"r"}, Usage: "Run id; the newest run when omitted"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					return app.Returns(ctx, cmd.String("datamap"), cmd.String("run"))
				}),
			},
			{
				Name:  "delete",
				Usage: "Delete a datamap and its lines",
				Flags: []cli.Flag{
					datamapFlag(true),
					&cli.BoolFlag{Name: "purge-results", Usage: "Also delete its extraction runs and values"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
					return app.Delete(ctx, cmd.String("datamap"), cmd.Bool("purge-results"))
				}),
			},
			{
				Name:  "serve",
				Usage: "Serve the read-only HTTP API",
				Action: withApp(func(ctx context.Context, _ *cli.Command, app *internal.App) error {
					return app.Serve(ctx)
				}),
			},
			{
				Name:  "mcp",
				Usage: "Serve MCP tools on stdio",
				Action: withApp(func(_ context.Context, _ *cli.Command, app *internal.App) error {
					return app.ServeMCP()
				}),
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}
