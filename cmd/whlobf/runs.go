package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/animus-labs/whlobf/internal/domain"
	"github.com/animus-labs/whlobf/internal/execution/pipeline"
	"github.com/animus-labs/whlobf/internal/platform/postgres"
	"github.com/animus-labs/whlobf/internal/repo"
	repopg "github.com/animus-labs/whlobf/internal/repo/postgres"
)

// runRuns reads reports recorded in the run database:
//
//	whlobf runs [--source <file>] [--failed|--succeeded] [--limit n]
//	whlobf runs show [--verbose] <run-id>
func runRuns(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) int {
	show := len(args) > 0 && args[0] == "show"
	if show {
		args = args[1:]
	}
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	source := fs.String("source", "", "only runs of this source file")
	failed := fs.Bool("failed", false, "only failed runs")
	succeeded := fs.Bool("succeeded", false, "only successful runs")
	limit := fs.Int("limit", 50, "maximum number of runs")
	verbose := fs.Bool("verbose", false, "print stage logs of successful stages too")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *failed && *succeeded {
		fmt.Fprintln(os.Stderr, "--failed and --succeeded are mutually exclusive")
		return 2
	}
	if show && fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: whlobf runs show [--verbose] <run-id>")
		return 2
	}

	store, closeStore, err := openRunStore(ctx)
	if err != nil {
		logger.Error("open run database", "error", err)
		return 2
	}
	defer closeStore()

	if show {
		err = showRun(ctx, store, fs.Arg(0), *verbose, stdout)
		if errors.Is(err, repo.ErrNotFound) {
			logger.Error("run not found", "run_id", fs.Arg(0))
			return 1
		}
	} else {
		filter := repo.RunFilter{Source: *source, Limit: *limit}
		if *failed || *succeeded {
			filter.Succeeded = succeeded
		}
		err = listRuns(ctx, store, filter, stdout)
	}
	if err != nil {
		logger.Error("read runs", "error", err)
		return 1
	}
	return 0
}

func openRunStore(ctx context.Context) (repo.RunReportRepository, func(), error) {
	cfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Enabled() {
		return nil, nil, errors.New("DATABASE_URL is not set")
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return repopg.NewRunReportStore(db), func() { _ = db.Close() }, nil
}

func listRuns(ctx context.Context, store repo.RunReportRepository, filter repo.RunFilter, w io.Writer) error {
	reports, err := store.List(ctx, filter)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tSTATUS\tSOURCE")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.RunID, r.StartedAt.UTC().Format(time.RFC3339), runStatus(r), r.Source)
	}
	return tw.Flush()
}

func runStatus(r domain.RunReport) string {
	if r.Succeeded {
		return "succeeded"
	}
	if stage, ok := r.FailedStage(); ok {
		return "failed at " + stage.Name
	}
	return "failed"
}

func showRun(ctx context.Context, store repo.RunReportRepository, runID string, verbose bool, w io.Writer) error {
	report, err := store.Get(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "run %s  %s  %s\n", report.RunID, report.Source, runStatus(report))
	if report.Output != "" {
		fmt.Fprintf(w, "output %s\n", report.Output)
	}
	fmt.Fprint(w, pipeline.Render(report, verbose))
	return nil
}
