package runtimeexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/animus-labs/whlobf/internal/domain"
)

const DefaultCompileTimeout = 60 * time.Second

type NativeCompilerConfig struct {
	// CXX overrides the compiler command. Empty uses the interpreter's CXX
	// build variable, then "c++".
	CXX     string
	Python  string
	Timeout time.Duration
	// Toolchain skips detection when set.
	Toolchain ToolchainKind
}

// NativeCompiler builds extension modules by invoking the C++ compiler
// directly. Toolchain and interpreter are probed once, on first use.
type NativeCompiler struct {
	cfg NativeCompilerConfig

	mu     sync.Mutex
	probed bool
	cxx    []string
	tc     Toolchain
	vars   PythonBuildVars
}

func NewNativeCompiler(cfg NativeCompilerConfig) (*NativeCompiler, error) {
	cfg.CXX = strings.TrimSpace(cfg.CXX)
	cfg.Python = strings.TrimSpace(cfg.Python)
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCompileTimeout
	}
	switch cfg.Toolchain {
	case "", ToolchainClang, ToolchainGCC, ToolchainMSVC:
	default:
		return nil, fmt.Errorf("%w: unknown toolchain %q", domain.ErrConfiguration, cfg.Toolchain)
	}
	if _, err := exec.LookPath(cfg.Python); err != nil {
		return nil, fmt.Errorf("%w: python interpreter not found: %v", domain.ErrIntegration, err)
	}
	return &NativeCompiler{cfg: cfg}, nil
}

func (c *NativeCompiler) Kind() string {
	return "native"
}

func (c *NativeCompiler) probe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.probed {
		return nil
	}
	vars, err := ProbePython(ctx, c.cfg.Python)
	if err != nil {
		return err
	}
	cxx := strings.Fields(c.cfg.CXX)
	if len(cxx) == 0 {
		cxx = strings.Fields(vars.CXX)
	}
	if len(cxx) == 0 {
		cxx = []string{"c++"}
	}

	tc := Toolchain{Kind: c.cfg.Toolchain}
	if tc.Kind == "" {
		if tc, err = detectToolchain(ctx, cxx); err != nil {
			return err
		}
	}
	c.cxx, c.tc, c.vars, c.probed = cxx, tc, vars, true
	fmt.Printf("toolchain %s (clang=%d gcc=%d.%d), ext suffix %s\n", tc.Kind, tc.ClangMajor, tc.GCCMajor, tc.GCCMinor, vars.ExtSuffix)
	return nil
}

func detectToolchain(ctx context.Context, cxx []string) (Toolchain, error) {
	args := append(append([]string(nil), cxx[1:]...), "-E", "-x", "c++", "-dM", "-")
	cmd := exec.CommandContext(ctx, cxx[0], args...)
	cmd.Stdin = strings.NewReader(probeProgram)
	out, err := cmd.Output()
	if err != nil {
		return Toolchain{}, fmt.Errorf("%w: probe %s: %v", domain.ErrIntegration, cxx[0], err)
	}
	return ParseToolchain(string(out))
}

// Compile builds req.Unit in req.WorkDir and returns the single produced
// module. The build runs with the configured timeout; hitting it is reported
// as domain.ErrCompileTimeout.
func (c *NativeCompiler) Compile(ctx context.Context, req CompileRequest) (string, error) {
	if err := c.probe(ctx); err != nil {
		return "", err
	}
	compileFlags, linkFlags := StdFlags(c.tc, req.ObfuscatorActivated, req.InjectorActivated)
	if c.tc.Kind == ToolchainMSVC {
		return "", fmt.Errorf("%w: direct msvc builds are not supported (flags %v)", domain.ErrIntegration, compileFlags)
	}

	cppFile := req.Unit.CppFile
	dir := filepath.Dir(cppFile)
	stem := strings.TrimSuffix(filepath.Base(cppFile), filepath.Ext(cppFile))
	output := filepath.Join(dir, stem+c.vars.ExtSuffix)
	ext := moduleExt(runtime.GOOS)
	if err := removeModules(dir, stem, ext); err != nil {
		return "", err
	}
	args := BuildArgs(c.cxx[1:], compileFlags, linkFlags, c.vars.IncludeDir, req.IncludeDirs, cppFile, output, runtime.GOOS)

	workDir := req.WorkDir
	if workDir == "" {
		workDir = dir
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, c.cxx[0], args...)
	cmd.Dir = workDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.WaitDelay = 5 * time.Second
	fmt.Printf("%s %s\n", c.cxx[0], strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: after %s", domain.ErrCompileTimeout, c.cfg.Timeout)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrCompile, err)
	}

	return FindModule(dir, stem, ext)
}

// BuildArgs assembles a shared-library build command line for gcc or clang.
func BuildArgs(prefix, compileFlags, linkFlags []string, pythonInclude string, includeDirs []string, cppFile, output, goos string) []string {
	args := append([]string(nil), prefix...)
	args = append(args, "-shared", "-fPIC", "-O2")
	args = append(args, compileFlags...)
	args = append(args, "-I"+pythonInclude)
	for _, dir := range includeDirs {
		if dir != "" {
			args = append(args, "-I"+dir)
		}
	}
	args = append(args, cppFile, "-o", output)
	if goos == "darwin" {
		args = append(args, "-undefined", "dynamic_lookup")
	}
	return append(args, linkFlags...)
}

// FindModule returns the only <stem>.*<ext> file in dir.
func FindModule(dir, stem, ext string) (string, error) {
	found, err := matchFiles(dir, moduleMatcher(stem, ext))
	if err != nil {
		return "", fmt.Errorf("list build dir: %w", err)
	}
	if len(found) != 1 {
		return "", fmt.Errorf("%w: expected one %s.*%s in %s, found %d", domain.ErrIntegration, stem, ext, dir, len(found))
	}
	return found[0], nil
}

// removeModules deletes <stem>.*<ext> left in dir by earlier builds, which
// may have used a different extension suffix.
func removeModules(dir, stem, ext string) error {
	stale, err := matchFiles(dir, moduleMatcher(stem, ext))
	if err != nil {
		return fmt.Errorf("list build dir: %w", err)
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale module: %w", err)
		}
	}
	return nil
}

func moduleExt(goos string) string {
	if goos == "windows" {
		return ".pyd"
	}
	return ".so"
}
