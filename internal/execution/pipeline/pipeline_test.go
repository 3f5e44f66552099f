package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/animus-labs/whlobf/internal/domain"
)

func newRun(t *testing.T) *Run {
	t.Helper()
	run, err := New(t.TempDir(), WithRunID("run-1"), WithSource("main.py"))
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return run
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(raw)
}

func TestRunStageTwoFailsSkipsStageThree(t *testing.T) {
	run := newRun(t)
	ctx := context.Background()

	if !run.Stage(ctx, "stage1", func(context.Context) error {
		fmt.Println("hello from stage1")
		return nil
	}) {
		t.Fatalf("stage1 expected success")
	}
	if run.Stage(ctx, "stage2", func(context.Context) error {
		return errors.New("boom")
	}) {
		t.Fatalf("stage2 expected failure")
	}
	called := false
	if run.Stage(ctx, "stage3", func(context.Context) error {
		called = true
		return nil
	}) {
		t.Fatalf("stage3 expected skip")
	}
	if called {
		t.Fatalf("stage3 body must not run after a failure")
	}

	report := run.Report()
	if report.Succeeded {
		t.Fatalf("expected run failure")
	}
	if len(report.Stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(report.Stages))
	}
	s1, s2, s3 := report.Stages[0], report.Stages[1], report.Stages[2]
	if !s1.Executed || !s1.Succeeded {
		t.Fatalf("stage1=%+v", s1)
	}
	if !s2.Executed || s2.Succeeded || s2.Failure != domain.StageFailureError {
		t.Fatalf("stage2=%+v", s2)
	}
	if s3.Executed || s3.Succeeded || s3.StdoutPath != "" || s3.StderrPath != "" {
		t.Fatalf("stage3=%+v", s3)
	}
	if got := readFile(t, s1.StdoutPath); !strings.Contains(got, "hello from stage1") {
		t.Fatalf("stage1 stdout=%q", got)
	}
	if got := readFile(t, s2.StderrPath); !strings.Contains(got, "boom") {
		t.Fatalf("stage2 stderr=%q", got)
	}
}

func TestRunFirstFailureInvariant(t *testing.T) {
	const n = 6
	for k := 1; k <= n; k++ {
		t.Run(fmt.Sprintf("fail_at_%d", k), func(t *testing.T) {
			run := newRun(t)
			for i := 1; i <= n; i++ {
				run.Stage(context.Background(), fmt.Sprintf("s%d", i), func(context.Context) error {
					if i == k {
						return fmt.Errorf("stage %d failed", i)
					}
					return nil
				})
			}
			report := run.Report()
			for i, stage := range report.Stages {
				idx := i + 1
				switch {
				case idx < k:
					if !stage.Executed || !stage.Succeeded {
						t.Fatalf("stage %d=%+v, want executed and succeeded", idx, stage)
					}
				case idx == k:
					if !stage.Executed || stage.Succeeded {
						t.Fatalf("stage %d=%+v, want executed and failed", idx, stage)
					}
				default:
					if stage.Executed || stage.Succeeded {
						t.Fatalf("stage %d=%+v, want not executed", idx, stage)
					}
				}
			}
			if failed, ok := report.FailedStage(); !ok || failed.Name != fmt.Sprintf("s%d", k) {
				t.Fatalf("FailedStage()=%+v,%v", failed, ok)
			}
		})
	}
}

func TestRunCapturesCauseChain(t *testing.T) {
	run := newRun(t)
	root := errors.New("root cause")
	wrapped := fmt.Errorf("%w: transpiler produced 2 units: %w", domain.ErrIntegration, root)

	run.Stage(context.Background(), "transpile", func(context.Context) error {
		return fmt.Errorf("transpile main.py: %w", wrapped)
	})

	stage := run.Report().Stages[0]
	stderr := readFile(t, stage.StderrPath)
	for _, want := range []string{"transpile main.py", "caused by:", "integration_error", "root cause"} {
		if !strings.Contains(stderr, want) {
			t.Fatalf("stderr log missing %q:\n%s", want, stderr)
		}
	}
}

func TestRunRecoversPanic(t *testing.T) {
	run := newRun(t)
	ok := run.Stage(context.Background(), "explode", func(context.Context) error {
		panic("unexpected state")
	})
	if ok {
		t.Fatalf("expected panic stage to fail")
	}
	stage := run.Report().Stages[0]
	if stage.Failure != domain.StageFailurePanic {
		t.Fatalf("Failure=%q, want panic", stage.Failure)
	}
	stderr := readFile(t, stage.StderrPath)
	if !strings.Contains(stderr, "unexpected state") || !strings.Contains(stderr, "goroutine") {
		t.Fatalf("stderr log missing panic details:\n%s", stderr)
	}

	// Streams must be usable again once the stage is over.
	if _, err := fmt.Fprint(os.Stdout, ""); err != nil {
		t.Fatalf("stdout not restored: %v", err)
	}
}

func TestRunClassifiesCompileTimeout(t *testing.T) {
	run := newRun(t)
	run.Stage(context.Background(), "compile", func(context.Context) error {
		return fmt.Errorf("compile main.cpp: %w", domain.ErrCompileTimeout)
	})
	if got := run.Report().Stages[0].Failure; got != domain.StageFailureTimeout {
		t.Fatalf("Failure=%q, want timeout", got)
	}
}

func TestRunRejectsPathLikeStageName(t *testing.T) {
	run := newRun(t)
	if run.Stage(context.Background(), "../escape", func(context.Context) error { return nil }) {
		t.Fatalf("expected invalid stage name to fail")
	}
	if run.Succeeded() {
		t.Fatalf("expected run failure")
	}
}

func TestNewRequiresLogDir(t *testing.T) {
	if _, err := New(" "); err == nil {
		t.Fatalf("New() expected error for empty log dir")
	}
}

func TestRenderDistinguishesSkippedStages(t *testing.T) {
	run := newRun(t)
	ctx := context.Background()
	run.Stage(ctx, "prep", func(context.Context) error {
		fmt.Println("prep output")
		return nil
	})
	run.Stage(ctx, "transpile", func(context.Context) error { return errors.New("cython missing") })
	run.Stage(ctx, "compile", func(context.Context) error { return nil })

	quiet := Render(run.Report(), false)
	if strings.Contains(quiet, "prep output") {
		t.Fatalf("non-verbose report must not include stdout:\n%s", quiet)
	}
	if !strings.Contains(quiet, "NO MESSAGE") {
		t.Fatalf("expected NO MESSAGE for empty stderr:\n%s", quiet)
	}
	if strings.Count(quiet, "NOT EXECUTED") != 1 {
		t.Fatalf("expected one NOT EXECUTED block:\n%s", quiet)
	}
	if !strings.Contains(quiet, "executed=true, succeeded=false, failure=error") {
		t.Fatalf("expected failed status line:\n%s", quiet)
	}

	verbose := Render(run.Report(), true)
	if !strings.Contains(verbose, ">>> STDOUT") || !strings.Contains(verbose, "prep output") {
		t.Fatalf("verbose report must include stdout:\n%s", verbose)
	}
}
