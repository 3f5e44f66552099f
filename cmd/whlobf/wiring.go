package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/animus-labs/whlobf/internal/config"
	"github.com/animus-labs/whlobf/internal/domain"
	"github.com/animus-labs/whlobf/internal/linecrypt"
	platformstore "github.com/animus-labs/whlobf/internal/platform/objectstore"
	"github.com/animus-labs/whlobf/internal/platform/postgres"
	"github.com/animus-labs/whlobf/internal/processor"
	"github.com/animus-labs/whlobf/internal/reportexport"
	"github.com/animus-labs/whlobf/internal/repo"
	repopg "github.com/animus-labs/whlobf/internal/repo/postgres"
	flagsetter "github.com/animus-labs/whlobf/internal/rewrite/flag"
	"github.com/animus-labs/whlobf/internal/rewrite/inject"
	"github.com/animus-labs/whlobf/internal/rewrite/literal"
	"github.com/animus-labs/whlobf/internal/runtimeexec"
	"github.com/animus-labs/whlobf/internal/service/publish"
	"github.com/animus-labs/whlobf/internal/storage/objectstore"
)

func newFileProcessor(cfg config.Config, logger *slog.Logger) (*processor.FileProcessor, error) {
	transpiler, err := runtimeexec.NewCythonTranspiler(cfg.Transpiler.Bin, cfg.Transpiler.Args)
	if err != nil {
		return nil, err
	}
	compiler, err := runtimeexec.NewNativeCompiler(runtimeexec.NativeCompilerConfig{
		CXX:       cfg.Compiler.CXX,
		Python:    cfg.Compiler.Python,
		Timeout:   cfg.Compiler.Timeout,
		Toolchain: runtimeexec.ToolchainKind(cfg.Compiler.Toolchain),
	})
	if err != nil {
		return nil, err
	}
	flags, err := flagsetter.New(flagsetter.Config{Enable: cfg.FlagSetter.Enable, Name: cfg.FlagSetter.Name})
	if err != nil {
		return nil, err
	}

	deps := processor.FileDeps{
		Transpiler: transpiler,
		Compiler:   compiler,
		Flags:      flags,
		Literals:   literal.New(literal.Config{Enable: cfg.Literals.Enable, IncludeDir: cfg.Literals.IncludeDir}, logger),
		Logger:     logger,
	}
	if cfg.Injector.Enable {
		key, err := cfg.ParseKey()
		if err != nil {
			return nil, err
		}
		cipher, err := linecrypt.New(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
		}
		deps.Injector, err = inject.New(inject.Config{
			Enable:      true,
			TempDirName: cfg.Injector.TempDirName,
			Strict:      cfg.Injector.Strict,
		}, cipher, logger)
		if err != nil {
			return nil, err
		}
	}
	return processor.NewFileProcessor(deps)
}

// sinks fans finished reports out to the optional database, bucket and
// export destination configured through the environment.
type sinks struct {
	logger    *slog.Logger
	store     repo.RunReportRepository
	publisher *publish.Publisher
	exporter  reportexport.Exporter
	closers   []io.Closer
}

func openSinks(ctx context.Context, logger *slog.Logger) (*sinks, error) {
	s := &sinks{logger: logger, exporter: reportexport.NoopExporter{}}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	if dbCfg.Enabled() {
		db, err := postgres.Open(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("database unavailable: %w", err)
		}
		s.closers = append(s.closers, db)
		if err := repopg.EnsureSchema(ctx, db); err != nil {
			s.Close()
			return nil, err
		}
		s.store = repopg.NewRunReportStore(db)
	}

	storeCfg, err := platformstore.ConfigFromEnv()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("object store config: %w", err)
	}
	if storeCfg.Enabled() {
		minioStore, err := objectstore.NewMinioStore(storeCfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("object store: %w", err)
		}
		if err := platformstore.EnsureBucket(ctx, minioStore.Client(), storeCfg); err != nil {
			s.Close()
			return nil, err
		}
		if s.publisher, err = publish.New(minioStore, storeCfg.Bucket, storeCfg.Prefix, logger); err != nil {
			s.Close()
			return nil, err
		}
	}

	exportCfg, err := reportexport.ConfigFromEnv()
	if err != nil {
		s.Close()
		return nil, err
	}
	if exportCfg.Enabled() {
		w := io.Writer(os.Stdout)
		if exportCfg.Destination != "-" {
			f, err := os.OpenFile(exportCfg.Destination, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("open report export: %w", err)
			}
			s.closers = append(s.closers, f)
			w = f
		}
		s.exporter = reportexport.NewNDJSONExporter(w)
	}
	return s, nil
}

// Record hands report to every configured sink. Sink failures are logged
// and joined; they never change the outcome of the run itself.
func (s *sinks) Record(ctx context.Context, report domain.RunReport) error {
	var errs []error
	if s.store != nil {
		if _, err := s.store.Insert(ctx, report); err != nil {
			s.logger.Error("store run report", "run_id", report.RunID, "error", err)
			errs = append(errs, err)
		}
	}
	if s.publisher != nil {
		if _, err := s.publisher.Publish(ctx, report); err != nil {
			s.logger.Error("publish run", "run_id", report.RunID, "error", err)
			errs = append(errs, err)
		}
	}
	if err := s.exporter.Export(ctx, report); err != nil {
		s.logger.Error("export run report", "run_id", report.RunID, "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *sinks) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
	s.closers = nil
}
