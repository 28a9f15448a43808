package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/scopegraph/internal/config"
	"github.com/standardbeagle/scopegraph/internal/langparse"
	"github.com/standardbeagle/scopegraph/internal/mcpserver"
	"github.com/standardbeagle/scopegraph/internal/obslog"
	"github.com/standardbeagle/scopegraph/internal/pipeline"
	"github.com/standardbeagle/scopegraph/internal/query"
	"github.com/standardbeagle/scopegraph/internal/scope"
	"github.com/standardbeagle/scopegraph/internal/snapshot"
	"github.com/standardbeagle/scopegraph/internal/version"
	"github.com/standardbeagle/scopegraph/internal/watch"
	"github.com/standardbeagle/scopegraph/pkg/pathutil"
)

// diskUnitSource reads already-produced file-unit XML from disk (spec §1's
// XML producer is an external collaborator; this repository's boundary
// starts at the decoded FileUnit).
type diskUnitSource struct{}

func (diskUnitSource) ReadFileUnit(path string) (*langparse.FileUnit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return langparse.DecodeFileUnit(path, f)
}

// buildRepository loads configuration for root and constructs the
// Repository it governs, along with the include predicate bulk operations
// and the watcher use to decide which paths are in scope.
func buildRepository(root string) (*pipeline.Repository, *config.Config, *config.Matcher, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, nil, nil, fmt.Errorf("validate config: %w", err)
	}
	matcher := config.NewMatcher(cfg)
	repo := pipeline.New(langparse.NewRegistry(), cfg.Pipeline.LockRecursion)
	return repo, cfg, matcher, nil
}

func main() {
	app := &cli.App{
		Name:                   "scopegraphd",
		Usage:                  "Cross-language scope graph indexer and query server",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory to index",
				Value:   ".",
			},
			&cli.StringFlag{
				Name:  "snapshot",
				Usage: "Snapshot file path (overrides config pipeline.snapshot_path)",
			},
			&cli.IntFlag{
				Name:  "parallelism",
				Usage: "Producer pool worker count (0 = GOMAXPROCS)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "index",
				Usage:  "Load a snapshot if present, otherwise perform a full reparse, and save a snapshot on exit",
				Action: indexCommand,
			},
			{
				Name:   "watch",
				Usage:  "Index the project, then watch for changes and apply them incrementally",
				Action: watchCommand,
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:  "scan-interval",
						Usage: "Periodic full-directory rescan interval in seconds (overrides config)",
					},
				},
			},
			{
				Name:   "query",
				Usage:  "Run a one-shot query against a snapshot",
				Action: queryCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "kind", Usage: "scope|type|method|namespace|property|calls", Value: "scope"},
					&cli.StringFlag{Name: "file", Usage: "Source file path as recorded on the graph", Required: true},
					&cli.IntFlag{Name: "line", Usage: "1-based line number", Required: true},
					&cli.IntFlag{Name: "column", Usage: "0-based column"},
				},
			},
			{
				Name:   "save",
				Usage:  "Index the project and write a snapshot",
				Action: saveCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Index the project, then start the MCP server with stdio transport",
				Action: mcpCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootAndParallelism(c *cli.Context) (string, int, error) {
	root, err := filepath.Abs(c.String("root"))
	if err != nil {
		return "", 0, fmt.Errorf("resolve root: %w", err)
	}
	return root, c.Int("parallelism"), nil
}

func snapshotPath(c *cli.Context, cfg *config.Config) string {
	if p := c.String("snapshot"); p != "" {
		return p
	}
	return cfg.Pipeline.SnapshotPath
}

func bulkInit(ctx context.Context, c *cli.Context) (*pipeline.Repository, *config.Config, *config.Matcher, error) {
	root, parallelism, err := rootAndParallelism(c)
	if err != nil {
		return nil, nil, nil, err
	}
	repo, cfg, matcher, err := buildRepository(root)
	if err != nil {
		return nil, nil, nil, err
	}
	list := pipeline.WalkDir(matcher.ShouldIngest)
	if err := repo.BulkInit(ctx, diskUnitSource{}, list, root, snapshotPath(c, cfg), snapshotLoader{}, parallelism); err != nil {
		return nil, nil, nil, fmt.Errorf("bulk init: %w", err)
	}
	return repo, cfg, matcher, nil
}

// snapshotLoader adapts internal/snapshot.Load to pipeline.Snapshotter
// without internal/pipeline importing internal/snapshot.
type snapshotLoader struct{}

func (snapshotLoader) Load(path string) (*scope.Scope, error) {
	return snapshot.Load(path)
}

func indexCommand(c *cli.Context) error {
	ctx := context.Background()
	repo, cfg, _, err := bulkInit(ctx, c)
	if err != nil {
		return err
	}
	if path := snapshotPath(c, cfg); path != "" {
		if err := repo.WithReadLock(ctx, func(_ context.Context, global *scope.Scope) error {
			return snapshot.Save(path, global)
		}); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		fmt.Fprintf(os.Stderr, "wrote snapshot to %s\n", path)
	}
	return nil
}

func saveCommand(c *cli.Context) error {
	return indexCommand(c)
}

func watchCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	repo, cfg, matcher, err := bulkInit(ctx, c)
	if err != nil {
		return err
	}
	root, _, err := rootAndParallelism(c)
	if err != nil {
		return err
	}

	scanInterval := time.Duration(cfg.Pipeline.ScanIntervalSeconds * float64(time.Second))
	if v := c.Float64("scan-interval"); v > 0 {
		scanInterval = time.Duration(v * float64(time.Second))
	}

	w, err := watch.New(root, matcher.ShouldIngest, 200*time.Millisecond, scanInterval)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	if err := w.Start(ctx, func(ev pipeline.FileEvent) {
		if err := repo.HandleEvent(ctx, diskUnitSource{}, ev); err != nil {
			obslog.Warnf("watch: failed to apply %s for %s: %v", ev.Kind, ev.Path, err)
		}
	}); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	fmt.Fprintf(os.Stderr, "watching %s (ctrl-c to stop)\n", root)
	<-ctx.Done()

	if err := w.Stop(); err != nil {
		obslog.Warnf("watch: stop error: %v", err)
	}

	if path := snapshotPath(c, cfg); path != "" {
		if err := repo.WithReadLock(context.Background(), func(_ context.Context, global *scope.Scope) error {
			return snapshot.Save(path, global)
		}); err != nil {
			return fmt.Errorf("save snapshot on exit: %w", err)
		}
	}
	return nil
}

func mcpCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	repo, _, _, err := bulkInit(ctx, c)
	if err != nil {
		return err
	}
	srv := mcpserver.New(repo)
	return srv.Run(ctx)
}

func queryCommand(c *cli.Context) error {
	ctx := context.Background()
	repo, _, _, err := bulkInit(ctx, c)
	if err != nil {
		return err
	}
	root, _, err := rootAndParallelism(c)
	if err != nil {
		return err
	}
	// Location.FilePath is stored absolute internally; a caller on the
	// command line naturally passes a root-relative path.
	loc := scope.Location{FilePath: pathutil.ToAbsolute(c.String("file"), root), StartLine: c.Int("line"), StartColumn: c.Int("column")}

	switch c.String("kind") {
	case "scope":
		found, err := query.FindScope(ctx, repo, loc)
		if err != nil {
			return err
		}
		printScope(found, root)
	case "type":
		found, err := query.FindScopeOfKind[scope.TypeDef](ctx, repo, loc)
		if err != nil {
			return err
		}
		printScope(found, root)
	case "method":
		found, err := query.FindScopeOfKind[scope.MethodDef](ctx, repo, loc)
		if err != nil {
			return err
		}
		printScope(found, root)
	case "namespace":
		found, err := query.FindScopeOfKind[scope.Namespace](ctx, repo, loc)
		if err != nil {
			return err
		}
		printScope(found, root)
	case "property":
		found, err := query.FindScopeOfKind[scope.PropertyDef](ctx, repo, loc)
		if err != nil {
			return err
		}
		printScope(found, root)
	case "calls":
		calls, err := query.FindMethodCalls(ctx, repo, loc)
		if err != nil {
			return err
		}
		for _, call := range calls {
			fmt.Printf("%s:%d %s -> %s\n", pathutil.ToRelative(call.Location.FilePath, root), call.Location.StartLine, call.Text, call.ResolvedTargetHint)
		}
	default:
		return fmt.Errorf("unknown --kind %q", c.String("kind"))
	}
	return nil
}

func printScope(s *scope.Scope, root string) {
	if s == nil {
		fmt.Println("no match")
		return
	}
	loc := s.PrimaryLocation()
	fmt.Printf("%s %s (%s) at %s:%d\n", s.Kind, s.Qualified, s.Signature, pathutil.ToRelative(loc.FilePath, root), loc.StartLine)
}

// signalContext returns a context canceled on SIGINT/SIGTERM, mirroring the
// pack's daemon-mode shutdown handling.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			obslog.Infof("received signal %v, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
