package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/animus-labs/whlobf/internal/domain"
	"github.com/animus-labs/whlobf/internal/execution/redirect"
)

// stageMu serializes stage bodies across Runs sharing a process, since the
// redirected descriptors are process-wide.
var stageMu sync.Mutex

// StageFunc is the body of one stage.
type StageFunc func(ctx context.Context) error

type Option func(*Run)

func WithRunID(id string) Option {
	return func(r *Run) {
		if strings.TrimSpace(id) != "" {
			r.id = strings.TrimSpace(id)
		}
	}
}

func WithSource(source string) Option {
	return func(r *Run) { r.source = source }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Run) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Run) {
		if now != nil {
			r.now = now
		}
	}
}

// Run is the ordered collection of stage records for one input file.
type Run struct {
	id        string
	source    string
	logDir    string
	logger    *slog.Logger
	now       func() time.Time
	startedAt time.Time
	stages    []domain.StageRecord
	succeeded bool
	output    string
}

// New prepares a Run writing stage logs under logDir. Failing to create the
// log directory is a setup error reported before any stage begins.
func New(logDir string, opts ...Option) (*Run, error) {
	logDir = strings.TrimSpace(logDir)
	if logDir == "" {
		return nil, errors.New("log directory is required")
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	r := &Run{
		id:        uuid.NewString(),
		logDir:    logDir,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		succeeded: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startedAt = r.now().UTC()
	return r, nil
}

func (r *Run) ID() string { return r.id }

func (r *Run) LogDir() string { return r.logDir }

// Succeeded reports whether every stage so far succeeded. Once false it stays false.
func (r *Run) Succeeded() bool { return r.succeeded }

// SetOutput records the artifact produced by the run, usually the compiled module.
func (r *Run) SetOutput(path string) { r.output = path }

// Stage runs fn as the stage called name unless an earlier stage failed, in
// which case the stage is recorded as not executed. It reports whether fn ran
// and succeeded.
func (r *Run) Stage(ctx context.Context, name string, fn StageFunc) bool {
	record := domain.StageRecord{Name: name}
	if !r.succeeded {
		r.stages = append(r.stages, record)
		r.logger.Debug("stage skipped", "run_id", r.id, "stage", name)
		return false
	}

	record.Executed = true
	record.StartedAt = r.now().UTC()
	if err := validateStageName(name); err != nil {
		r.logger.Error("invalid stage", "run_id", r.id, "stage", name, "error", err)
		record.Failure = domain.StageFailureError
		record.FinishedAt = record.StartedAt
		r.succeeded = false
		r.stages = append(r.stages, record)
		return false
	}
	record.StdoutPath = filepath.Join(r.logDir, name+"_stdout.txt")
	record.StderrPath = filepath.Join(r.logDir, name+"_stderr.txt")
	record.Failure = r.execute(ctx, name, record.StdoutPath, record.StderrPath, fn)
	record.FinishedAt = r.now().UTC()
	record.Succeeded = record.Failure == domain.StageFailureNone

	if !record.Succeeded {
		r.succeeded = false
		r.logger.Warn("stage failed", "run_id", r.id, "stage", name, "failure", string(record.Failure))
	}
	r.stages = append(r.stages, record)
	return record.Succeeded
}

func (r *Run) execute(ctx context.Context, name, stdoutPath, stderrPath string, fn StageFunc) domain.StageFailure {
	stdout, err := os.Create(stdoutPath)
	if err != nil {
		r.logger.Error("open stage stdout", "run_id", r.id, "stage", name, "error", err)
		return domain.StageFailureError
	}
	defer func() { _ = stdout.Close() }()
	stderr, err := os.Create(stderrPath)
	if err != nil {
		r.logger.Error("open stage stderr", "run_id", r.id, "stage", name, "error", err)
		return domain.StageFailureError
	}
	defer func() { _ = stderr.Close() }()

	stageErr := r.capture(ctx, stdout, stderr, fn)
	if stageErr == nil {
		return domain.StageFailureNone
	}
	writeDiagnostic(stderr, name, stageErr)
	return classify(stageErr)
}

// capture runs fn with the process streams pointed at the stage files. The
// streams are restored before capture returns on every path.
func (r *Run) capture(ctx context.Context, stdout, stderr *os.File, fn StageFunc) (err error) {
	stageMu.Lock()
	defer stageMu.Unlock()

	scope, err := redirect.Acquire(stdout, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if restoreErr := scope.Restore(); restoreErr != nil {
			err = errors.Join(err, restoreErr)
		}
	}()
	return invoke(ctx, fn)
}

func invoke(ctx context.Context, fn StageFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p, stack: debug.Stack()}
		}
	}()
	if fn == nil {
		return errors.New("stage body is nil")
	}
	return fn(ctx)
}

// Report returns every stage recorded so far, attempted or skipped.
func (r *Run) Report() domain.RunReport {
	stages := make([]domain.StageRecord, len(r.stages))
	copy(stages, r.stages)
	return domain.RunReport{
		RunID:      r.id,
		Source:     r.source,
		Output:     r.output,
		Succeeded:  r.succeeded,
		Stages:     stages,
		StartedAt:  r.startedAt,
		FinishedAt: r.now().UTC(),
	}
}

func validateStageName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("stage name is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("stage name %q must not contain path separators", name)
	}
	return nil
}
