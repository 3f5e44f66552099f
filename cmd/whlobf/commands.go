package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/animus-labs/whlobf/internal/config"
	"github.com/animus-labs/whlobf/internal/execution/pipeline"
	"github.com/animus-labs/whlobf/internal/linecrypt"
	"github.com/animus-labs/whlobf/internal/processor"
)

// loadConfig loads the configuration and warns when the key had to be drawn
// at random: tracebacks of the built modules can only be decrypted with it.
func loadConfig(path string, logger *slog.Logger) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if cfg.KeyGenerated {
		logger.Warn("no key configured, generated a random one; keep it to decrypt tracebacks (WHLOBF_KEY)", "key", cfg.Key)
	}
	return cfg, nil
}

func defaultDir(value, name string) string {
	if value != "" {
		return value
	}
	return filepath.Join(".whlobf", name)
}

func runFile(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("file", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	buildDir := fs.String("build-dir", "", "directory for intermediate files (default .whlobf/build)")
	logDir := fs.String("log-dir", "", "directory for stage logs (default .whlobf/logs)")
	verbose := fs.Bool("verbose", false, "print stage logs of successful stages too")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: whlobf file [flags] <source.py|source.pyx>")
		return 2
	}

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Error("load config", "error", err)
		return 2
	}
	fp, err := newFileProcessor(cfg, logger)
	if err != nil {
		logger.Error("setup processor", "error", err)
		return 2
	}
	s, err := openSinks(ctx, logger)
	if err != nil {
		logger.Error("setup report sinks", "error", err)
		return 2
	}
	defer s.Close()

	report, err := fp.Process(ctx, processor.Job{
		Source:   fs.Arg(0),
		BuildDir: defaultDir(*buildDir, "build"),
		LogDir:   defaultDir(*logDir, "logs"),
	})
	if err != nil {
		logger.Error("process file", "source", fs.Arg(0), "error", err)
		return 2
	}
	_ = s.Record(ctx, report)

	fmt.Fprint(stdout, pipeline.Render(report, *verbose || cfg.Verbose))
	if !report.Succeeded {
		return 1
	}
	fmt.Fprintln(stdout, report.Output)
	return 0
}

func runFolder(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("folder", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	output := fs.String("output", "", "output tree (default <input>_whlobf)")
	workers := fs.Int("workers", -1, "worker processes; 0 runs in this process (default from config)")
	buildDir := fs.String("build-dir", "", "directory for intermediate files (default a temp dir)")
	logDir := fs.String("log-dir", "", "directory for stage logs (default .whlobf/logs)")
	verbose := fs.Bool("verbose", false, "print stage logs of successful stages too")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: whlobf folder [flags] <input-dir>")
		return 2
	}
	input := filepath.Clean(fs.Arg(0))

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Error("load config", "error", err)
		return 2
	}
	if *workers >= 0 {
		cfg.Workers = *workers
	}
	fp, err := newFileProcessor(cfg, logger)
	if err != nil {
		logger.Error("setup processor", "error", err)
		return 2
	}
	batch := &processor.Batch{Workers: cfg.Workers, Local: fp, Logger: logger}
	if cfg.Workers > 0 {
		launcher := &processor.SubprocessLauncher{}
		if *configPath != "" {
			launcher.Args = []string{"--config", *configPath}
		}
		if cfg.Key != "" {
			launcher.Env = []string{"WHLOBF_KEY=" + cfg.Key}
		}
		batch.Launcher = launcher
	}
	folder, err := processor.NewFolderProcessor(processor.FolderConfig{
		Patterns:        cfg.Folder.Patterns,
		DeleteProcessed: cfg.Folder.DeleteProcessed,
		ResetOutput:     cfg.Folder.ResetOutput,
	}, batch, logger)
	if err != nil {
		logger.Error("setup folder processor", "error", err)
		return 2
	}
	s, err := openSinks(ctx, logger)
	if err != nil {
		logger.Error("setup report sinks", "error", err)
		return 2
	}
	defer s.Close()

	out := *output
	if out == "" {
		out = input + "_whlobf"
	}
	res, err := folder.Run(ctx, processor.FolderJob{
		Input:    input,
		Output:   out,
		BuildDir: *buildDir,
		LogDir:   defaultDir(*logDir, "logs"),
	})
	if err != nil {
		logger.Error("process folder", "input", input, "error", err)
		return 2
	}

	for _, r := range append(append([]processor.BatchResult{}, res.Succeeded...), res.Failed...) {
		if r.Err == nil {
			_ = s.Record(ctx, r.Report)
		}
	}
	for _, r := range res.Failed {
		if r.Err != nil {
			fmt.Fprintf(stdout, "%s: %v\n", r.Job.Source, r.Err)
			continue
		}
		fmt.Fprint(stdout, pipeline.Render(r.Report, *verbose || cfg.Verbose))
	}
	fmt.Fprintf(stdout, "%d succeeded, %d failed\n", len(res.Succeeded), len(res.Failed))
	if len(res.Failed) > 0 {
		return 1
	}
	fmt.Fprintln(stdout, res.Output)
	return 0
}

func runDecrypt(args []string, stdin io.Reader, stdout io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("decrypt", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	blob := fs.Bool("blob", false, "input is an encrypted source file written by a compiled module")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "usage: whlobf decrypt [--blob] [file|-]")
		return 2
	}

	cipher, err := cipherFromConfig(*configPath)
	if err != nil {
		logger.Error("load key", "error", err)
		return 2
	}

	var raw []byte
	if name := fs.Arg(0); name == "" || name == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(name)
	}
	if err != nil {
		logger.Error("read input", "error", err)
		return 2
	}

	if *blob {
		text, err := cipher.DecryptBlob(string(raw))
		if err != nil {
			logger.Error("decrypt blob", "error", err)
			return 1
		}
		fmt.Fprint(stdout, text)
		return 0
	}
	text, n := cipher.DecryptText(string(raw))
	fmt.Fprint(stdout, text)
	logger.Debug("decrypted tokens", "count", n)
	return 0
}

func cipherFromConfig(path string) (*linecrypt.Cipher, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cfg.KeyGenerated {
		return nil, errors.New("no key configured: set WHLOBF_KEY or key in the config file")
	}
	key, err := cfg.ParseKey()
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, errors.New("no key configured: set WHLOBF_KEY or key in the config file")
	}
	return linecrypt.New(key)
}

func runKeygen(stdout io.Writer, logger *slog.Logger) int {
	key, err := linecrypt.GenerateKey()
	if err != nil {
		logger.Error("generate key", "error", err)
		return 1
	}
	fmt.Fprintln(stdout, key.String())
	return 0
}

func runWorker(ctx context.Context, args []string, logger *slog.Logger) int {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	jobFile := fs.String("job", "", "job file")
	resultFile := fs.String("result", "", "result file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*jobFile) == "" || strings.TrimSpace(*resultFile) == "" {
		logger.Error("worker requires --job and --result")
		return 2
	}
	logger = logger.With("worker_pid", os.Getpid())

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		return 2
	}
	fp, err := newFileProcessor(cfg, logger)
	if err != nil {
		logger.Error("setup processor", "error", err)
		return 2
	}
	if err := processor.ServeWorker(ctx, fp, *jobFile, *resultFile); err != nil {
		logger.Error("serve worker", "error", err)
		return 1
	}
	return 0
}
