// Package literal hides string literal arrays in a generated translation unit
// behind compile-time obfuscation calls.
package literal

import (
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/animus-labs/whlobf/internal/rewrite/patch"
)

const (
	ObfuscateHeader = "whlobf_obfuscate.h"
	LengthHeader    = "whlobf_length.h"

	lengthPrefix = "__length"
)

//go:embed headers/*.h
var headers embed.FS

// Declaration is one literal array found in the translation unit.
type Declaration struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Mutable bool   `json:"mutable"`
}

type shape struct {
	rule    string
	mutable bool
	pointer string
}

// The transpiler emits exactly these two shapes, one declaration per line.
var shapes = []shape{
	{rule: "const_char_array", mutable: false, pointer: "static const char *"},
	{rule: "char_array", mutable: true, pointer: "static char *"},
}

var declarationPatterns = map[string]*regexp.Regexp{
	"const_char_array": patch.MustCompile("const_char_array", `(?m)^static const char (\w+)\[\] = "(.*?)";$`),
	"char_array":       patch.MustCompile("char_array", `(?m)^static char (\w+)\[\] = "(.*?)";$`),
}

type Config struct {
	// Enable turns the stage into a no-op when false.
	Enable bool
	// IncludeDir receives the headers. Empty means a fresh temp directory.
	IncludeDir string
}

// Result is the outcome of one rewrite.
type Result struct {
	Activated    bool
	IncludeDir   string
	Declarations []Declaration
	// Duplicates lists names declared more than once. They are rewritten
	// blindly, which the transpiler is expected never to require.
	Duplicates []string
	Code       string
}

type Obfuscator struct {
	cfg    Config
	logger *slog.Logger
	rules  patch.Set
}

func New(cfg Config, logger *slog.Logger) *Obfuscator {
	if logger == nil {
		logger = slog.Default()
	}
	rules := make(patch.Set, 0, len(shapes))
	for _, s := range shapes {
		rules = append(rules, patch.Rule{
			Name:    s.rule,
			Pattern: declarationPatterns[s.rule],
			Replace: patch.Template(s.pointer + "$1 = WHLOBF_OBFUSCATE(\"$2\");\n" +
				"static const long " + lengthPrefix + "$1 = WHLOBF_LENGTH(\"$2\");"),
		})
	}
	return &Obfuscator{cfg: cfg, logger: logger, rules: rules}
}

// WithDefaultIncludeDir returns a copy installing headers into dir when no
// include directory is configured.
func (o *Obfuscator) WithDefaultIncludeDir(dir string) *Obfuscator {
	if strings.TrimSpace(o.cfg.IncludeDir) != "" {
		return o
	}
	cp := *o
	cp.cfg.IncludeDir = dir
	return &cp
}

func (o *Obfuscator) Enabled() bool { return o.cfg.Enable }

// Rewrite returns code with every literal declaration replaced. It does not
// touch the filesystem; Result.IncludeDir stays empty.
func (o *Obfuscator) Rewrite(code string) Result {
	decls := collect(code)
	if len(decls) == 0 {
		return Result{Activated: false, Code: code}
	}

	rewritten, _ := o.rules.Apply(code)

	seen := make(map[string]struct{}, len(decls))
	var duplicates []string
	for _, decl := range decls {
		if _, ok := seen[decl.Name]; ok {
			duplicates = append(duplicates, decl.Name)
			continue
		}
		seen[decl.Name] = struct{}{}
		rewritten = strings.ReplaceAll(rewritten, "sizeof("+decl.Name+")", lengthPrefix+decl.Name)
	}
	if len(duplicates) > 0 {
		o.logger.Warn("duplicate literal declarations", "names", duplicates)
	}

	rewritten = strings.Join([]string{
		`#include "` + ObfuscateHeader + `"`,
		`#include "` + LengthHeader + `"`,
		rewritten,
	}, "\n")

	return Result{
		Activated:    true,
		Declarations: decls,
		Duplicates:   duplicates,
		Code:         rewritten,
	}
}

// Run rewrites cppFile in place and installs the headers. A unit without
// literal declarations is left untouched and reported as not activated.
func (o *Obfuscator) Run(cppFile string) (Result, error) {
	if !o.cfg.Enable {
		return Result{}, nil
	}
	raw, err := os.ReadFile(cppFile)
	if err != nil {
		return Result{}, fmt.Errorf("read translation unit: %w", err)
	}
	res := o.Rewrite(string(raw))
	if !res.Activated {
		fmt.Printf("no literal declarations in %s\n", cppFile)
		return res, nil
	}
	if err := backup(cppFile, raw, "string_literal_obfuscator"); err != nil {
		return Result{}, err
	}

	includeDir, err := o.installHeaders()
	if err != nil {
		return Result{}, err
	}
	res.IncludeDir = includeDir

	if err := os.WriteFile(cppFile, []byte(res.Code), 0o644); err != nil {
		return Result{}, fmt.Errorf("write translation unit: %w", err)
	}
	fmt.Printf("obfuscated %d literal declarations in %s\n", len(res.Declarations), cppFile)
	return res, nil
}

func (o *Obfuscator) installHeaders() (string, error) {
	dir := strings.TrimSpace(o.cfg.IncludeDir)
	if dir == "" {
		tmp, err := os.MkdirTemp("", "whlobf-include-")
		if err != nil {
			return "", fmt.Errorf("create include dir: %w", err)
		}
		dir = tmp
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create include dir: %w", err)
	}
	for _, name := range []string{ObfuscateHeader, LengthHeader} {
		body, err := headers.ReadFile("headers/" + name)
		if err != nil {
			return "", fmt.Errorf("read embedded header %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
			return "", fmt.Errorf("write header %s: %w", name, err)
		}
	}
	return dir, nil
}

// collect returns every declaration in order of appearance across both shapes.
func collect(code string) []Declaration {
	type found struct {
		offset int
		decl   Declaration
	}
	var all []found
	for _, s := range shapes {
		for _, loc := range declarationPatterns[s.rule].FindAllStringSubmatchIndex(code, -1) {
			all = append(all, found{
				offset: loc[0],
				decl: Declaration{
					Name:    code[loc[2]:loc[3]],
					Value:   code[loc[4]:loc[5]],
					Mutable: s.mutable,
				},
			})
		}
	}
	// Shapes never overlap, so ordering by offset restores source order.
	slices.SortFunc(all, func(a, b found) int { return a.offset - b.offset })
	out := make([]Declaration, 0, len(all))
	for _, f := range all {
		out = append(out, f.decl)
	}
	return out
}

func backup(path string, raw []byte, stage string) error {
	if err := os.WriteFile(path+".bak_before_"+stage, raw, 0o644); err != nil {
		return fmt.Errorf("backup translation unit: %w", err)
	}
	return nil
}
