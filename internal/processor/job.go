package processor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/animus-labs/whlobf/internal/domain"
)

// Job describes one source file to process.
type Job struct {
	Source   string `json:"source"`
	BuildDir string `json:"build_dir"`
	LogDir   string `json:"log_dir"`
	// Root, when set, is the tree Source belongs to. Work and log
	// directories then mirror Source's path relative to Root.
	Root  string `json:"root,omitempty"`
	RunID string `json:"run_id,omitempty"`
}

func (j Job) Validate() error {
	if strings.TrimSpace(j.Source) == "" {
		return fmt.Errorf("%w: source is required", domain.ErrValidation)
	}
	if strings.TrimSpace(j.BuildDir) == "" {
		return fmt.Errorf("%w: build dir is required", domain.ErrValidation)
	}
	if strings.TrimSpace(j.LogDir) == "" {
		return fmt.Errorf("%w: log dir is required", domain.ErrValidation)
	}
	return nil
}

// Dirs resolves the transpiler work directory and the stage log directory.
// With a Root, the log directory is named after the relative source path
// with dots replaced by underscores, so main.py logs under main_py/.
func (j Job) Dirs() (workDir, logDir string, err error) {
	if j.Root == "" {
		return j.BuildDir, j.LogDir, nil
	}
	rel, err := filepath.Rel(j.Root, j.Source)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", "", fmt.Errorf("%w: %s is not inside %s", domain.ErrValidation, j.Source, j.Root)
	}
	rootName := filepath.Base(filepath.Clean(j.Root))
	workDir = filepath.Join(j.BuildDir, rootName, filepath.Dir(rel))
	logName := strings.ReplaceAll(filepath.Base(rel), ".", "_")
	logDir = filepath.Join(j.LogDir, rootName, filepath.Dir(rel), logName)
	return workDir, logDir, nil
}

func (j Job) prepare() (workDir, logDir string, err error) {
	if err := j.Validate(); err != nil {
		return "", "", err
	}
	workDir, logDir, err = j.Dirs()
	if err != nil {
		return "", "", err
	}
	for _, dir := range []string{j.BuildDir, workDir, logDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return workDir, logDir, nil
}
