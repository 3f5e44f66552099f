package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: whlobf <command> [flags]

commands:
  file     compile one .py/.pyx file
  folder   compile every matching source below a directory
  decrypt  decrypt tokens in a traceback or an encrypted source file
  keygen   print a new random key
  runs     list recorded runs, or show one with "runs show <id>"
`

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, logger))
}

// run dispatches a subcommand and returns the process exit code: 0 on
// success, 1 when processing failed, 2 on usage or configuration errors.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, logger *slog.Logger) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "file":
		return runFile(ctx, rest, stdout, logger)
	case "folder":
		return runFolder(ctx, rest, stdout, logger)
	case "decrypt":
		return runDecrypt(rest, stdin, stdout, logger)
	case "keygen":
		return runKeygen(stdout, logger)
	case "runs":
		return runRuns(ctx, rest, stdout, logger)
	case "worker":
		return runWorker(ctx, rest, logger)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		logger.Error("unknown command", "command", cmd)
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
}
