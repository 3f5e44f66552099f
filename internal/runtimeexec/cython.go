package runtimeexec

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/animus-labs/whlobf/internal/domain"
)

// CythonTranspiler runs the cython command line compiler in C++ mode with
// language level 3.
type CythonTranspiler struct {
	bin       string
	extraArgs []string
}

func NewCythonTranspiler(bin string, extraArgs []string) (*CythonTranspiler, error) {
	bin = strings.TrimSpace(bin)
	if bin == "" {
		bin = "cython"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%w: cython binary not found: %v", domain.ErrIntegration, err)
	}
	return &CythonTranspiler{bin: bin, extraArgs: append([]string(nil), extraArgs...)}, nil
}

func (t *CythonTranspiler) Kind() string {
	return "cython"
}

// Transpile copies sourceFile into workDir and generates <stem>.cpp next to
// the copy. Other sources may share workDir; only <stem>.cpp is considered.
func (t *CythonTranspiler) Transpile(ctx context.Context, sourceFile, workDir string) (Unit, error) {
	info, err := os.Stat(workDir)
	if err != nil || !info.IsDir() {
		return Unit{}, fmt.Errorf("%w: work dir %s is not a directory", domain.ErrValidation, workDir)
	}
	base := filepath.Base(sourceFile)
	working := filepath.Join(workDir, base)
	if err := copyFile(sourceFile, working); err != nil {
		return Unit{}, fmt.Errorf("copy source to work dir: %w", err)
	}

	stem := strings.TrimSuffix(base, filepath.Ext(base))
	unit := filepath.Join(workDir, stem+".cpp")
	if err := os.Remove(unit); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Unit{}, fmt.Errorf("remove stale translation unit: %w", err)
	}
	args := append([]string{"--cplus", "-3"}, t.extraArgs...)
	args = append(args, "-o", stem+".cpp", base)
	cmd := exec.CommandContext(ctx, t.bin, args...)
	cmd.Dir = workDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	fmt.Printf("%s %s\n", t.bin, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return Unit{}, fmt.Errorf("%w: cython failed: %v", domain.ErrIntegration, err)
	}

	if info, err := os.Stat(unit); err != nil || !info.Mode().IsRegular() {
		return Unit{}, fmt.Errorf("%w: cython did not produce %s", domain.ErrIntegration, unit)
	}
	return Unit{
		CppFile: unit,
		Descriptor: Descriptor{
			Module:     stem,
			SourceFile: working,
			Language:   "c++",
		},
	}, nil
}
