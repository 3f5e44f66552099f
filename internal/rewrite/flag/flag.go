// Package flag forces a module-level Python flag to True in a generated
// translation unit, so code guarded by the flag can tell it runs compiled.
package flag

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/animus-labs/whlobf/internal/domain"
	"github.com/animus-labs/whlobf/internal/rewrite/patch"
)

const (
	DefaultName = "_WHLOBF_FLAG"
	RuleName    = "module_flag_assignment"
)

var namePattern = regexp.MustCompile(`^_*[A-Za-z][A-Za-z0-9_]*$`)

type Config struct {
	Enable bool
	Name   string
}

type Result struct {
	Activated bool
	Matches   int
	Code      string
}

type Setter struct {
	cfg  Config
	rule patch.Rule
}

func New(cfg Config) (*Setter, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if !namePattern.MatchString(cfg.Name) {
		return nil, fmt.Errorf("%w: flag name %q is not an identifier", domain.ErrConfiguration, cfg.Name)
	}
	// Cython interns module globals as __pyx_n_s_<name> with leading
	// underscores dropped.
	interned := strings.TrimLeft(cfg.Name, "_")
	pattern := patch.MustCompile(RuleName,
		`(PyDict_SetItem\(__pyx_d, __pyx_n_s_`+regexp.QuoteMeta(interned)+`, )([^\)]+)\)`)
	return &Setter{
		cfg: cfg,
		rule: patch.Rule{
			Name:    RuleName,
			Pattern: pattern,
			Replace: patch.Template("$1Py_True /* forced by whlobf (was: `$2`) */ )"),
		},
	}, nil
}

// Rewrite forces every assignment of the flag to Py_True.
func (s *Setter) Rewrite(code string) Result {
	patched, n := s.rule.Apply(code)
	return Result{Activated: true, Matches: n, Code: patched}
}

// Run rewrites cppFile in place. A disabled setter reports no activation and
// leaves the file alone.
func (s *Setter) Run(cppFile string) (Result, error) {
	if !s.cfg.Enable {
		return Result{}, nil
	}
	raw, err := os.ReadFile(cppFile)
	if err != nil {
		return Result{}, fmt.Errorf("read translation unit: %w", err)
	}
	if err := os.WriteFile(cppFile+".bak_before_flag_setter", raw, 0o644); err != nil {
		return Result{}, fmt.Errorf("backup translation unit: %w", err)
	}
	res := s.Rewrite(string(raw))
	if err := os.WriteFile(cppFile, []byte(res.Code), 0o644); err != nil {
		return Result{}, fmt.Errorf("write translation unit: %w", err)
	}
	fmt.Printf("flag %s forced at %d site(s)\n", s.cfg.Name, res.Matches)
	return res, nil
}
