package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/animus-labs/whlobf/internal/domain"
)

// StageWorker names the synthetic stage recorded when a worker process dies
// without reporting.
const StageWorker = "worker"

// workerResult is what a worker process writes back.
type workerResult struct {
	Report domain.RunReport `json:"report"`
	Error  string           `json:"error,omitempty"`
}

// SubprocessLauncher runs each job in a fresh worker process started as
//
//	<Executable> worker <Args...> --job <file> --result <file>
type SubprocessLauncher struct {
	Executable string
	Args       []string
	// ScratchDir holds the job and result files. Empty means os.TempDir().
	ScratchDir string
	// Env is appended to the parent environment of every worker.
	Env []string
}

func (l *SubprocessLauncher) Process(ctx context.Context, job Job) (domain.RunReport, error) {
	if err := job.Validate(); err != nil {
		return domain.RunReport{}, err
	}
	if job.RunID == "" {
		job.RunID = uuid.NewString()
	}
	exe := strings.TrimSpace(l.Executable)
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return domain.RunReport{}, fmt.Errorf("resolve worker executable: %w", err)
		}
	}
	scratch, err := os.MkdirTemp(l.ScratchDir, "whlobf-worker-")
	if err != nil {
		return domain.RunReport{}, fmt.Errorf("create worker scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	jobFile := filepath.Join(scratch, "job.json")
	resultFile := filepath.Join(scratch, "result.json")
	if err := writeJSON(jobFile, job); err != nil {
		return domain.RunReport{}, err
	}

	args := append(append([]string{"worker"}, l.Args...), "--job", jobFile, "--result", resultFile)
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}
	startedAt := time.Now().UTC()
	runErr := cmd.Run()

	var res workerResult
	readErr := readJSON(resultFile, &res)
	switch {
	case readErr == nil && res.Error != "":
		return res.Report, errors.New(res.Error)
	case readErr == nil:
		return res.Report, nil
	}
	cause := errors.Join(runErr, readErr)
	return workerLostReport(job, startedAt, cause), nil
}

// workerLostReport records a run whose worker exited without a result as a
// single failed worker stage.
func workerLostReport(job Job, startedAt time.Time, cause error) domain.RunReport {
	record := domain.StageRecord{
		Name:      StageWorker,
		Executed:  true,
		Failure:   domain.StageFailureError,
		StartedAt: startedAt,
	}
	if _, logDir, err := job.Dirs(); err == nil && os.MkdirAll(logDir, 0o755) == nil {
		stderrPath := filepath.Join(logDir, StageWorker+"_stderr.txt")
		msg := fmt.Sprintf("worker exited without a result: %v\n", cause)
		if os.WriteFile(stderrPath, []byte(msg), 0o644) == nil {
			record.StderrPath = stderrPath
		}
	}
	now := time.Now().UTC()
	record.FinishedAt = now
	return domain.RunReport{
		RunID:      job.RunID,
		Source:     job.Source,
		Succeeded:  false,
		Stages:     []domain.StageRecord{record},
		StartedAt:  startedAt,
		FinishedAt: now,
	}
}

// ServeWorker is the body of the worker command: it processes the job in
// jobFile and writes the outcome to resultFile.
func ServeWorker(ctx context.Context, p Processor, jobFile, resultFile string) error {
	var job Job
	if err := readJSON(jobFile, &job); err != nil {
		return err
	}
	report, err := p.Process(ctx, job)
	res := workerResult{Report: report}
	if err != nil {
		res.Error = err.Error()
	}
	return writeJSON(resultFile, res)
}

func writeJSON(path string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".partial"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
