// Package inject embeds the original source in a translation unit as
// encrypted lines and redirects traceback paths and labels to encrypted
// content.
package inject

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/animus-labs/whlobf/internal/domain"
	"github.com/animus-labs/whlobf/internal/linecrypt"
	"github.com/animus-labs/whlobf/internal/rewrite/patch"
)

const (
	RuleMarkErrPos      = "mark_err_pos_macro"
	RuleFileScopeDecl   = "file_scope_filename_decl"
	RuleLocalDecl       = "local_filename_decl"
	RuleAddTraceback    = "add_traceback_label"
	RuleArgtupleInvalid = "raise_argtuple_invalid_label"

	DefaultTempDirName = "whlobf"
)

// EncryptedLine is one line of the original source in encrypted form.
type EncryptedLine struct {
	Index int    `json:"index"`
	Token string `json:"token"`
}

type Config struct {
	Enable bool
	// TempDirName is the directory under the runtime temp dir holding the
	// materialized encrypted sources.
	TempDirName string
	// Strict turns a missing required anchor into domain.ErrPatchNotFound.
	Strict bool
}

type Result struct {
	Activated bool
	Hash      string
	Lines     []EncryptedLine
	Outcomes  []patch.Outcome
	Missing   []string
	Code      string
}

type Injector struct {
	cfg    Config
	cipher *linecrypt.Cipher
	logger *slog.Logger
}

// New validates the configuration eagerly. A nil cipher is a configuration
// error even when the injector is disabled.
func New(cfg Config, cipher *linecrypt.Cipher, logger *slog.Logger) (*Injector, error) {
	if cipher == nil {
		return nil, fmt.Errorf("%w: injector requires key material", domain.ErrConfiguration)
	}
	cfg.TempDirName = strings.TrimSpace(cfg.TempDirName)
	if cfg.TempDirName == "" {
		cfg.TempDirName = DefaultTempDirName
	}
	if strings.ContainsAny(cfg.TempDirName, "/\\\"\n") || cfg.TempDirName == "." || cfg.TempDirName == ".." {
		return nil, fmt.Errorf("%w: temp dir name %q must be a plain directory name", domain.ErrConfiguration, cfg.TempDirName)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{cfg: cfg, cipher: cipher, logger: logger}, nil
}

// EncryptSource splits source on "\n" exactly and encrypts every line, so
// decrypting the tokens in order and joining them with "\n" restores source
// byte for byte.
func (inj *Injector) EncryptSource(source []byte) ([]EncryptedLine, error) {
	parts := strings.Split(string(source), "\n")
	lines := make([]EncryptedLine, 0, len(parts))
	for i, part := range parts {
		token, err := inj.cipher.EncryptLine(part)
		if err != nil {
			return nil, fmt.Errorf("encrypt source line %d: %w", i+1, err)
		}
		lines = append(lines, EncryptedLine{Index: i, Token: token})
	}
	return lines, nil
}

// Rewrite patches code in memory. When a required anchor is missing the
// returned code is the input unchanged and Activated is false.
func (inj *Injector) Rewrite(source []byte, code string) (Result, error) {
	lines, err := inj.EncryptSource(source)
	if err != nil {
		return Result{}, err
	}
	hash := contentHash(source)

	var labelErr error
	encryptLabel := func(call string) func(patch.Match) string {
		return func(m patch.Match) string {
			token, err := inj.cipher.EncryptLine(m.Groups[1])
			if err != nil {
				labelErr = errors.Join(labelErr, fmt.Errorf("encrypt label %q: %w", m.Groups[1], err))
				return m.Groups[0]
			}
			return call + `("` + token + `"`
		}
	}

	writer := sourceWriterFunc(inj.cfg.TempDirName, hash, lines)
	hook := markErrPosHook()
	rules := patch.Set{
		{
			Name:     RuleMarkErrPos,
			Pattern:  markErrPosPattern,
			Required: true,
			Replace: func(m patch.Match) string {
				patched := m.Groups[1] + hook + "}"
				if m.Index == 0 {
					return writer + "\n" + patched
				}
				return patched
			},
		},
		{
			Name:     RuleFileScopeDecl,
			Pattern:  fileScopeDeclPattern,
			Required: true,
			Replace:  patch.Template("$1\nstatic std::string " + tempFileVar + ";"),
		},
		{
			Name:    RuleLocalDecl,
			Pattern: localDeclPattern,
			Replace: patch.Template("$1$2\n$1std::string " + tempFileVar + ";"),
		},
		{
			Name:    RuleAddTraceback,
			Pattern: addTracebackPattern,
			Replace: encryptLabel("__Pyx_AddTraceback"),
		},
		{
			Name:    RuleArgtupleInvalid,
			Pattern: argtupleInvalidPattern,
			Replace: encryptLabel("__Pyx_RaiseArgtupleInvalid"),
		},
	}

	patched, outcomes := rules.Apply(code)
	if labelErr != nil {
		return Result{}, labelErr
	}
	res := Result{
		Hash:     hash,
		Lines:    lines,
		Outcomes: outcomes,
		Missing:  patch.Missing(outcomes),
		Code:     code,
	}
	if len(res.Missing) > 0 {
		inj.logger.Warn("source injection anchors not found", "missing", res.Missing)
		if inj.cfg.Strict {
			return res, fmt.Errorf("%w: %s", domain.ErrPatchNotFound, strings.Join(res.Missing, ", "))
		}
		return res, nil
	}

	res.Activated = true
	res.Code = strings.Join(append(append([]string{}, includes...), patched), "\n")
	return res, nil
}

// Run patches cppFile in place from the original source file.
func (inj *Injector) Run(sourceFile, cppFile string) (Result, error) {
	if !inj.cfg.Enable {
		return Result{}, nil
	}
	source, err := os.ReadFile(sourceFile)
	if err != nil {
		return Result{}, fmt.Errorf("read source: %w", err)
	}
	raw, err := os.ReadFile(cppFile)
	if err != nil {
		return Result{}, fmt.Errorf("read translation unit: %w", err)
	}
	res, err := inj.Rewrite(source, string(raw))
	if err != nil {
		return res, err
	}
	for _, o := range res.Outcomes {
		fmt.Printf("rule %s matched %d time(s)\n", o.Rule, o.Matches)
	}
	if !res.Activated {
		fmt.Printf("source injection not activated, missing: %s\n", strings.Join(res.Missing, ", "))
		return res, nil
	}
	if err := os.WriteFile(cppFile+".bak_before_source_code_injector", raw, 0o644); err != nil {
		return Result{}, fmt.Errorf("backup translation unit: %w", err)
	}
	if err := os.WriteFile(cppFile, []byte(res.Code), 0o644); err != nil {
		return Result{}, fmt.Errorf("write translation unit: %w", err)
	}
	fmt.Printf("embedded %d encrypted lines (sha256 %s)\n", len(res.Lines), res.Hash)
	return res, nil
}

func contentHash(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}
