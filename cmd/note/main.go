// Note: a local outliner with [[wiki links]], served over MCP.
//
// Usage:
//
//	note serve                 # Start MCP server (stdio transport)
//	note export --out dump.json
//	note import dump.json
//	note stats
//	note update                # Update to the latest version
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ChienNQuang/Note/internal/config"
	"github.com/ChienNQuang/Note/internal/export"
	noteserver "github.com/ChienNQuang/Note/internal/server"
	"github.com/ChienNQuang/Note/internal/updater"
	"github.com/lmittmann/tint"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "serve":
		err = runServe(args)
	case "export":
		err = runExport(args)
	case "import":
		err = runImport(args)
	case "stats":
		err = runStats(args)
	case "update":
		err = runUpdate()
	case "--help", "-h", "help":
		printUsage()
	case "--version", "-v", "version":
		fmt.Printf("note v%s\n", noteserver.Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// common holds the flags every store command accepts.
type common struct {
	configPath string
	logLevel   string
	level      *slog.LevelVar
	logger     *slog.Logger
	cfg        *config.Config
}

func newFlagSet(name string, c *common) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVar(&c.configPath, "config", defaultConfigPath(), "config file (.yaml or .json)")
	fs.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error (default: from config)")
	return fs
}

// setup loads the configuration and builds the stderr logger.
func (c *common) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	c.cfg = cfg
	c.level = &slog.LevelVar{}
	c.level.Set(cfg.Level())
	c.logger = newLogger(os.Stderr, c.level)
	slog.SetDefault(c.logger)
	return nil
}

func newLogger(w *os.File, level *slog.LevelVar) *slog.Logger {
	return slog.New(tint.NewHandler(colorable.NewColorable(w), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(w.Fd()),
	}))
}

func defaultConfigPath() string {
	return filepath.Join(config.Default().DataDir, "config.yaml")
}

// ─── serve ──────────────────────────────────────────────────────────────────

func runServe(args []string) error {
	var c common
	fs := newFlagSet("serve", &c)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.setup(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, cleanup, err := noteserver.New(ctx, c.cfg, c.logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Background version check. Prints to stderr so it doesn't
	// interfere with MCP's stdio transport on stdout.
	go checkForUpdates(ctx)

	go func() {
		err := config.Watch(ctx, c.configPath, c.logger, func(cfg *config.Config) {
			if c.logLevel == "" {
				c.level.Set(cfg.Level())
			}
		})
		if err != nil {
			c.logger.Debug("config reload disabled", "err", err)
		}
	}()

	return server.ServeStdio(s)
}

func checkForUpdates(ctx context.Context) {
	res := updater.CheckVersion(ctx, noteserver.Version)
	if res.UpdateAvailable {
		fmt.Fprintf(os.Stderr,
			"\n  Update available: v%s -> v%s\n"+
				"  Run: note update\n"+
				"  Release: %s\n\n",
			res.CurrentVersion, res.LatestVersion, res.ReleaseURL,
		)
	}
}

// ─── export / import ────────────────────────────────────────────────────────

func runExport(args []string) error {
	var c common
	fs := newFlagSet("export", &c)
	out := fs.StringP("out", "o", "-", "output file, - for stdout")
	format := fs.String("format", "json", "json or markdown")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.setup(); err != nil {
		return err
	}

	ctx := context.Background()
	d, err := noteserver.Open(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	var buf bytes.Buffer
	switch *format {
	case "json":
		doc, err := d.Exporter.Export(ctx)
		if err != nil {
			return err
		}
		if err := export.Encode(&buf, doc); err != nil {
			return err
		}
	case "markdown", "md":
		md, err := d.Exporter.Markdown(ctx)
		if err != nil {
			return err
		}
		buf.WriteString(md)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}

	if *out == "-" {
		_, err = os.Stdout.Write(buf.Bytes())
		return err
	}
	if err := export.WriteFile(*out, buf.Bytes()); err != nil {
		return err
	}
	c.logger.Info("export written", "path", *out, "bytes", buf.Len())
	return nil
}

func runImport(args []string) error {
	var c common
	fs := newFlagSet("import", &c)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: note import [flags] <file|->")
	}
	if err := c.setup(); err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if path := fs.Arg(0); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	doc, err := export.Decode(r)
	if err != nil {
		return err
	}

	ctx := context.Background()
	d, err := noteserver.Open(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	res, err := d.Exporter.Import(ctx, doc)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d blocks and %d links\n", res.Nodes, res.Links)
	return nil
}

// ─── stats ──────────────────────────────────────────────────────────────────

func runStats(args []string) error {
	var c common
	fs := newFlagSet("stats", &c)
	top := fs.Int("top", 10, "number of most linked blocks to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.setup(); err != nil {
		return err
	}

	ctx := context.Background()
	d, err := noteserver.Open(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	db, err := d.Stats.Database(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Database:        %s\n", d.Store.Path())
	fmt.Printf("Blocks:          %d (%d roots, %d leaves)\n", db.TotalNodes, db.RootNodes, db.LeafNodes)
	fmt.Printf("Links:           %d\n", db.TotalLinks)
	fmt.Printf("Depth:           max %d, average %.2f\n", db.MaxDepth, db.AvgDepth)
	fmt.Printf("Journal pages:   %d\n", db.JournalNodes)
	fmt.Printf("Distinct tags:   %d\n", db.DistinctTags)

	if *top <= 0 {
		return nil
	}
	linked, err := d.Stats.TopLinked(ctx, *top)
	if err != nil {
		return err
	}
	if len(linked) > 0 {
		fmt.Println("\nMost linked:")
		for _, lc := range linked {
			fmt.Printf("  %-40s %d\n", lc.NodeID, lc.References)
		}
	}
	return nil
}

// ─── update ─────────────────────────────────────────────────────────────────

func runUpdate() error {
	fmt.Fprintf(os.Stderr, "Checking for updates...\n")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	v, err := updater.SelfUpdate(ctx, noteserver.Version)
	if errors.Is(err, updater.ErrUpToDate) {
		fmt.Fprintf(os.Stderr, "Already at the latest version (v%s)\n", noteserver.Version)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Updated to v%s. Restart note to use the new version.\n", v)
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `note v%s: a local outliner with [[wiki links]], served over MCP

Usage:
  note serve                    Start the MCP server (stdio transport)
  note export [--format json|markdown] [--out FILE]
                                Write every block and link
  note import FILE              Load an export (upserts by ID)
  note stats [--top N]          Print store statistics
  note update                   Update to the latest version
  note version                  Print the version

Flags for serve, export, import and stats:
  --config FILE                 Config file (default: %s)
  --log-level LEVEL             debug, info, warn or error

Environment:
  %s   Directory holding the database
  %s  Log level

Configuration:
  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "note": {
        "command": "note",
        "args": ["serve"]
      }
    }
  }
`, noteserver.Version, defaultConfigPath(), config.EnvDataDir, config.EnvLogLevel)
}
