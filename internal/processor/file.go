package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/animus-labs/whlobf/internal/domain"
	"github.com/animus-labs/whlobf/internal/execution/pipeline"
	"github.com/animus-labs/whlobf/internal/rewrite/flag"
	"github.com/animus-labs/whlobf/internal/rewrite/inject"
	"github.com/animus-labs/whlobf/internal/rewrite/literal"
	"github.com/animus-labs/whlobf/internal/runtimeexec"
)

const (
	StagePrep       = "prep"
	StageTranspile  = "transpile"
	StageFlagSetter = "flag_setter"
	StageLiterals   = "string_literal_obfuscator"
	StageInjector   = "source_code_injector"
	StageCompile    = "compile"
)

// Processor turns one Job into a run report. A returned error means the run
// could not be set up; stage failures are carried by the report.
type Processor interface {
	Process(ctx context.Context, job Job) (domain.RunReport, error)
}

// FileDeps are the collaborators of a FileProcessor. Nil rewriters are
// treated as disabled stages.
type FileDeps struct {
	Transpiler runtimeexec.Transpiler
	Compiler   runtimeexec.Compiler
	Flags      *flag.Setter
	Literals   *literal.Obfuscator
	Injector   *inject.Injector
	Logger     *slog.Logger
}

type FileProcessor struct {
	deps   FileDeps
	logger *slog.Logger
}

func NewFileProcessor(deps FileDeps) (*FileProcessor, error) {
	if deps.Transpiler == nil {
		return nil, errors.New("transpiler is required")
	}
	if deps.Compiler == nil {
		return nil, errors.New("compiler is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FileProcessor{deps: deps, logger: logger}, nil
}

// Process runs the six stages for job.Source in order. Once a stage fails
// the remaining ones are recorded as not executed.
func (p *FileProcessor) Process(ctx context.Context, job Job) (domain.RunReport, error) {
	workDir, logDir, err := job.prepare()
	if err != nil {
		return domain.RunReport{}, err
	}
	run, err := pipeline.New(logDir,
		pipeline.WithRunID(job.RunID),
		pipeline.WithSource(job.Source),
		pipeline.WithLogger(p.logger),
	)
	if err != nil {
		return domain.RunReport{}, err
	}
	logger := p.logger.With("run_id", run.ID(), "source", job.Source)
	logger.Info("processing file", "work_dir", workDir, "log_dir", logDir)

	var (
		unit                runtimeexec.Unit
		includeDirs         []string
		obfuscatorActivated bool
		injectorActivated   bool
	)

	run.Stage(ctx, StagePrep, func(ctx context.Context) error {
		return checkSource(job.Source)
	})

	run.Stage(ctx, StageTranspile, func(ctx context.Context) error {
		u, err := p.deps.Transpiler.Transpile(ctx, job.Source, workDir)
		if err != nil {
			return err
		}
		unit = u
		fmt.Printf("translation unit: %s\n", unit.CppFile)
		return nil
	})

	run.Stage(ctx, StageFlagSetter, func(ctx context.Context) error {
		if p.deps.Flags == nil {
			return nil
		}
		_, err := p.deps.Flags.Run(unit.CppFile)
		return err
	})

	run.Stage(ctx, StageLiterals, func(ctx context.Context) error {
		if p.deps.Literals == nil {
			return nil
		}
		stem := strings.TrimSuffix(filepath.Base(unit.CppFile), filepath.Ext(unit.CppFile))
		res, err := p.deps.Literals.
			WithDefaultIncludeDir(filepath.Join(workDir, stem+"_include")).
			Run(unit.CppFile)
		if err != nil {
			return err
		}
		obfuscatorActivated = res.Activated
		if res.IncludeDir != "" {
			includeDirs = append(includeDirs, res.IncludeDir)
		}
		return nil
	})

	run.Stage(ctx, StageInjector, func(ctx context.Context) error {
		if p.deps.Injector == nil {
			return nil
		}
		res, err := p.deps.Injector.Run(job.Source, unit.CppFile)
		if err != nil {
			return err
		}
		injectorActivated = res.Activated
		return nil
	})

	run.Stage(ctx, StageCompile, func(ctx context.Context) error {
		out, err := p.deps.Compiler.Compile(ctx, runtimeexec.CompileRequest{
			Unit:                unit,
			WorkDir:             job.BuildDir,
			IncludeDirs:         includeDirs,
			ObfuscatorActivated: obfuscatorActivated,
			InjectorActivated:   injectorActivated,
		})
		if err != nil {
			return err
		}
		fmt.Printf("compiled module: %s\n", out)
		run.SetOutput(out)
		return nil
	})

	report := run.Report()
	if report.Succeeded {
		logger.Info("file processed", "output", report.Output)
	} else if failed, ok := report.FailedStage(); ok {
		logger.Warn("file failed", "stage", failed.Name, "failure", string(failed.Failure), "stderr", failed.StderrPath)
	}
	return report, nil
}

func checkSource(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", domain.ErrValidation, path)
	}
	switch filepath.Ext(path) {
	case ".py", ".pyx":
		return nil
	default:
		return fmt.Errorf("%w: %s must have a .py or .pyx extension", domain.ErrValidation, path)
	}
}
