// Command ffpickctl is a thin diagnostic binary for exercising
// ffpick.Engine end to end during development: scan a directory, run a
// search, or print a health report, with human-readable colored output.
// It is not the editor-facing interface; see cmd/ffpickffi for that.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/rybkr/ffpick"
	"github.com/rybkr/ffpick/internal/cli"
	"github.com/rybkr/ffpick/internal/progress"
	"github.com/rybkr/ffpick/internal/termcolor"
)

var version = "dev"

func main() {
	gf, args := parseGlobalFlags(os.Args[1:])
	cw := termcolor.NewWriter(os.Stdout, gf.colorMode)

	app := cli.NewApp("ffpickctl", version)
	app.Stderr = os.Stderr

	// engine is declared here and assigned after dispatch determines that
	// the matched command needs it (NeedsEngine). Closures capture the
	// pointer variable, which is populated before they execute.
	var engine *ffpick.Engine

	app.Register(&cli.Command{
		Name:        "scan",
		Summary:     "Run a full scan of the indexed root and report progress",
		Usage:       "ffpickctl scan",
		NeedsEngine: true,
		Run:         func(args []string) int { return runScan(engine, args) },
	})

	app.Register(&cli.Command{
		Name:        "search",
		Summary:     "Run a fuzzy search against the index and print matches",
		Usage:       "ffpickctl search [-n <count>] [-p <page>] <query>",
		Examples:    []string{"ffpickctl search main.go", "ffpickctl search -n 20 handler"},
		NeedsEngine: true,
		Run:         func(args []string) int { return runSearch(engine, args, cw) },
	})

	app.Register(&cli.Command{
		Name:        "health",
		Summary:     "Print the engine's current health report",
		Usage:       "ffpickctl health [<test-path>]",
		NeedsEngine: true,
		Run:         func(args []string) int { return runHealth(engine, args, cw) },
	})

	app.Register(&cli.Command{
		Name:    "version",
		Summary: "Show version information",
		Usage:   "ffpickctl version",
		Run:     func([]string) int { fmt.Printf("ffpickctl %s\n", version); return 0 },
	})

	if len(args) > 0 {
		cmd := app.Lookup(args[0])
		if cmd != nil && cmd.NeedsEngine {
			root := os.Getenv("FFPICK_ROOT")
			if root == "" {
				root = "."
			}
			cfg := ffpick.NewConfig(root)
			cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			disabled := false
			cfg.StartWatcher = &disabled // ffpickctl runs one-shot commands, no need to watch

			var err error
			engine, err = ffpick.New(context.Background(), cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "ffpickctl: %v\n", err)
				os.Exit(1)
			}
			defer engine.Close()
		}
	}

	os.Exit(app.Run(args, cw))
}

func runScan(engine *ffpick.Engine, args []string) int {
	sp := progress.New("scanning")
	sp.Start()
	err := engine.ScanFiles(context.Background())
	sp.Stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ffpickctl: scan failed: %v\n", err)
		return 1
	}
	fmt.Printf("scanned %d files\n", engine.GetScanProgress())
	return 0
}

func runSearch(engine *ffpick.Engine, args []string, cw *termcolor.Writer) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	pageSize := fs.Int("n", 25, "number of results to print")
	pageIndex := fs.Int("p", 0, "page index")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "ffpickctl: search requires a query argument")
		return 2
	}
	query := fs.Arg(0)

	page, err := engine.Search(ffpick.SearchRequest{Query: query, PageIndex: *pageIndex, PageSize: *pageSize})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ffpickctl: %v\n", err)
		return 1
	}

	for _, r := range page.Results {
		fmt.Fprintf(cw, "%s  %s\n", cw.Cyan(strconv.Itoa(r.Score)), r.Entry.Rel)
	}
	fmt.Fprintf(cw, "%s\n", cw.Bold(fmt.Sprintf("%d/%d matched", len(page.Results), page.TotalFiltered)))
	return 0
}

func runHealth(engine *ffpick.Engine, args []string, cw *termcolor.Writer) int {
	testPath := ""
	if len(args) > 0 {
		testPath = args[0]
	}
	report := engine.HealthCheck(testPath)

	fmt.Fprintf(cw, "initialized:     %v\n", report.Initialized)
	fmt.Fprintf(cw, "scanning:        %v\n", report.IsScanning)
	fmt.Fprintf(cw, "scanned files:   %d\n", report.ScannedFiles)
	fmt.Fprintf(cw, "store degraded:  %v\n", report.StoreDegraded)
	fmt.Fprintf(cw, "git repository:  %v\n", report.GitRepositoryDetected)
	if report.TestPathAccessible != nil {
		fmt.Fprintf(cw, "test path ok:    %v\n", *report.TestPathAccessible)
	}
	return 0
}
