package processor

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/animus-labs/whlobf/internal/domain"
)

var DefaultPatterns = []string{"**/*.py", "**/*.pyx"}

type FolderConfig struct {
	Patterns []string
	// DeleteProcessed removes the plain sources of compiled files from the
	// output tree.
	DeleteProcessed bool
	// ResetOutput empties the output directory before copying.
	ResetOutput bool
}

type FolderJob struct {
	Input    string
	Output   string
	BuildDir string
	LogDir   string
}

type FolderResult struct {
	Output    string
	Succeeded []BatchResult
	Failed    []BatchResult
}

// FolderProcessor compiles every matching source below a directory and, when
// all of them succeed, lays out the compiled modules in an output tree.
type FolderProcessor struct {
	cfg    FolderConfig
	batch  *Batch
	logger *slog.Logger
}

func NewFolderProcessor(cfg FolderConfig, batch *Batch, logger *slog.Logger) (*FolderProcessor, error) {
	if batch == nil {
		return nil, fmt.Errorf("%w: batch is required", domain.ErrConfiguration)
	}
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = DefaultPatterns
	}
	for _, p := range cfg.Patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: invalid pattern %q", domain.ErrConfiguration, p)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FolderProcessor{cfg: cfg, batch: batch, logger: logger}, nil
}

// Collect returns the sources under input matching the configured patterns,
// relative to input, sorted and without duplicates.
func (f *FolderProcessor) Collect(input string) ([]string, error) {
	fsys := os.DirFS(input)
	var out []string
	for _, pattern := range f.cfg.Patterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		out = append(out, matches...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func (f *FolderProcessor) Run(ctx context.Context, job FolderJob) (FolderResult, error) {
	input, err := filepath.Abs(job.Input)
	if err != nil {
		return FolderResult{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if info, err := os.Stat(input); err != nil || !info.IsDir() {
		return FolderResult{}, fmt.Errorf("%w: %s is not a directory", domain.ErrValidation, job.Input)
	}
	output := input
	if strings.TrimSpace(job.Output) != "" {
		if output, err = filepath.Abs(job.Output); err != nil {
			return FolderResult{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		if output != input && within(input, output) {
			return FolderResult{}, fmt.Errorf("%w: output %s is inside input %s", domain.ErrValidation, output, input)
		}
	}
	buildDir := job.BuildDir
	if strings.TrimSpace(buildDir) == "" {
		if buildDir, err = os.MkdirTemp("", "whlobf-build-"); err != nil {
			return FolderResult{}, fmt.Errorf("create build dir: %w", err)
		}
	}

	rels, err := f.Collect(input)
	if err != nil {
		return FolderResult{}, err
	}
	f.logger.Info("processing folder", "input", input, "files", len(rels), "workers", f.batch.Workers)

	jobs := make([]Job, 0, len(rels))
	for _, rel := range rels {
		jobs = append(jobs, Job{
			Source:   filepath.Join(input, filepath.FromSlash(rel)),
			BuildDir: buildDir,
			LogDir:   job.LogDir,
			Root:     input,
		})
	}
	results, err := f.batch.Run(ctx, jobs)
	if err != nil {
		return FolderResult{}, err
	}

	res := FolderResult{Output: output}
	for _, r := range results {
		if r.Succeeded() && r.Report.Output != "" {
			res.Succeeded = append(res.Succeeded, r)
		} else {
			res.Failed = append(res.Failed, r)
		}
	}
	if len(res.Failed) > 0 {
		f.logger.Warn("folder not assembled", "failed", len(res.Failed), "succeeded", len(res.Succeeded))
		return res, nil
	}

	if output != input {
		if err := f.copyTree(input, output); err != nil {
			return res, err
		}
	}
	for _, r := range res.Succeeded {
		rel, err := filepath.Rel(input, r.Job.Source)
		if err != nil {
			return res, err
		}
		placed := filepath.Join(output, rel)
		if f.cfg.DeleteProcessed {
			if err := os.Remove(placed); err != nil && !os.IsNotExist(err) {
				return res, fmt.Errorf("delete processed source: %w", err)
			}
		}
		module := filepath.Join(filepath.Dir(placed), filepath.Base(r.Report.Output))
		if err := copyFile(r.Report.Output, module); err != nil {
			return res, fmt.Errorf("place compiled module: %w", err)
		}
	}
	f.logger.Info("folder assembled", "output", output, "modules", len(res.Succeeded))
	return res, nil
}

func (f *FolderProcessor) copyTree(input, output string) error {
	if f.cfg.ResetOutput {
		if err := os.RemoveAll(output); err != nil {
			return fmt.Errorf("reset output: %w", err)
		}
	}
	return fs.WalkDir(os.DirFS(input), ".", func(rel string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		dst := filepath.Join(output, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return copyFile(filepath.Join(input, filepath.FromSlash(rel)), dst)
	})
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
