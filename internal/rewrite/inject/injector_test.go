package inject

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/animus-labs/whlobf/internal/domain"
	"github.com/animus-labs/whlobf/internal/linecrypt"
)

const testKey = "WwAPKBMXKl-I43L4u8B5WD9xoperM9qhXDlLVWRFkiY="

const sourceFixture = "import os\n\n\ndef greet(name):\n    return 'hi ' + name\n\n"

const unitFixture = `/* Generated by Cython 3.0.0 */
#include "Python.h"
static PyObject *__pyx_m = NULL;
static int __pyx_lineno;
static int __pyx_clineno = 0;
static const char * __pyx_cfilenm = __FILE__;
static const char *__pyx_filename;

#define __PYX_MARK_ERR_POS(f_index, lineno) \
    { __pyx_filename = __pyx_f[f_index]; (void)__pyx_filename; __pyx_lineno = lineno; (void)__pyx_lineno; __pyx_clineno = __LINE__; (void)__pyx_clineno; }
#define __PYX_ERR(f_index, lineno, Ln_error) \
    { __PYX_MARK_ERR_POS(f_index, lineno) goto Ln_error; }

static PyObject *__pyx_pw_4main_1greet(PyObject *__pyx_self, PyObject *__pyx_args) {
  int __pyx_lineno = 0;
  const char *__pyx_filename = NULL;
  int __pyx_clineno = 0;
  __Pyx_RaiseArgtupleInvalid("greet", 1, 1, 1, PyTuple_GET_SIZE(__pyx_args)); __PYX_ERR(0, 4, __pyx_L3_error)
  __pyx_L3_error:;
  __Pyx_AddTraceback("main.greet", __pyx_clineno, __pyx_lineno, __pyx_filename);
  return NULL;
}
`

var blobElement = regexp.MustCompile(`(?m)^        "(<whlobf [^"]+>)",$`)

func newCipher(t *testing.T) *linecrypt.Cipher {
	t.Helper()
	key, err := linecrypt.ParseKey(testKey)
	if err != nil {
		t.Fatalf("ParseKey() err=%v", err)
	}
	c, err := linecrypt.New(key)
	if err != nil {
		t.Fatalf("linecrypt.New() err=%v", err)
	}
	return c
}

func newInjector(t *testing.T, cfg Config) (*Injector, *linecrypt.Cipher) {
	t.Helper()
	c := newCipher(t)
	inj, err := New(cfg, c, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return inj, c
}

func TestRewriteEmbedsDecryptableSource(t *testing.T) {
	inj, c := newInjector(t, Config{Enable: true})
	res, err := inj.Rewrite([]byte(sourceFixture), unitFixture)
	if err != nil {
		t.Fatalf("Rewrite() err=%v", err)
	}
	if !res.Activated {
		t.Fatalf("expected activation, missing=%v", res.Missing)
	}

	elems := blobElement.FindAllStringSubmatch(res.Code, -1)
	if len(elems) != len(res.Lines) {
		t.Fatalf("embedded %d tokens, want %d", len(elems), len(res.Lines))
	}
	plain := make([]string, 0, len(elems))
	for _, m := range elems {
		line, err := c.DecryptLine(m[1])
		if err != nil {
			t.Fatalf("DecryptLine() err=%v", err)
		}
		plain = append(plain, line)
	}
	if got := strings.Join(plain, "\n"); got != sourceFixture {
		t.Fatalf("reconstructed source=%q, want %q", got, sourceFixture)
	}
}

func TestRewritePatchesAnchors(t *testing.T) {
	inj, c := newInjector(t, Config{Enable: true})
	res, err := inj.Rewrite([]byte(sourceFixture), unitFixture)
	if err != nil {
		t.Fatalf("Rewrite() err=%v", err)
	}
	code := res.Code

	if !strings.HasPrefix(code, "#include <string>\n#include <filesystem>\n#include <fstream>\n") {
		t.Fatalf("includes not prepended")
	}
	if n := strings.Count(code, "static std::filesystem::path "+pathFunc+"()"); n != 1 {
		t.Fatalf("writer function defined %d times", n)
	}
	if !strings.Contains(code, "static const char *__pyx_filename;\nstatic std::string "+tempFileVar+";") {
		t.Fatalf("file scope companion missing")
	}
	if !strings.Contains(code, "  const char *__pyx_filename = NULL;\n  std::string "+tempFileVar+";") {
		t.Fatalf("local companion missing")
	}
	if !strings.Contains(code, markErrPosHook()+"}") {
		t.Fatalf("macro hook missing")
	}
	if strings.Index(code, pathFunc+"()") > strings.Index(code, "#define __PYX_MARK_ERR_POS") {
		t.Fatalf("writer function must precede the macro")
	}
	if strings.Contains(code, `"main.greet"`) || strings.Contains(code, `"greet"`) {
		t.Fatalf("plain labels left in code")
	}
	if !strings.Contains(code, res.Hash+".py") {
		t.Fatalf("content hash path missing")
	}

	decrypted, failed := c.DecryptText(code)
	if failed != 0 {
		t.Fatalf("DecryptText failed=%d", failed)
	}
	if !strings.Contains(decrypted, `__Pyx_AddTraceback("main.greet"`) ||
		!strings.Contains(decrypted, `__Pyx_RaiseArgtupleInvalid("greet"`) {
		t.Fatalf("labels do not decrypt back to originals")
	}
	for _, o := range res.Outcomes {
		if o.Matches == 0 {
			t.Fatalf("rule %s did not match", o.Rule)
		}
	}
}

func TestRewriteIsSaltedButHashStable(t *testing.T) {
	inj, _ := newInjector(t, Config{Enable: true})
	first, err := inj.Rewrite([]byte(sourceFixture), unitFixture)
	if err != nil {
		t.Fatalf("Rewrite() err=%v", err)
	}
	second, err := inj.Rewrite([]byte(sourceFixture), unitFixture)
	if err != nil {
		t.Fatalf("Rewrite() err=%v", err)
	}
	if first.Hash != second.Hash {
		t.Fatalf("content hash not deterministic")
	}
	// The two blank lines at index 1 and 2 must not share a token.
	if first.Lines[1].Token == first.Lines[2].Token || first.Lines[1].Token == second.Lines[1].Token {
		t.Fatalf("identical lines produced identical tokens")
	}
}

func TestRewriteMissingAnchorLeavesCodeUntouched(t *testing.T) {
	inj, _ := newInjector(t, Config{Enable: true})
	code := strings.Replace(unitFixture, "#define __PYX_MARK_ERR_POS", "#define __PYX_OTHER", 1)
	res, err := inj.Rewrite([]byte(sourceFixture), code)
	if err != nil {
		t.Fatalf("Rewrite() err=%v", err)
	}
	if res.Activated {
		t.Fatalf("expected no activation")
	}
	if res.Code != code {
		t.Fatalf("code changed despite missing anchor")
	}
	if len(res.Missing) != 1 || res.Missing[0] != RuleMarkErrPos {
		t.Fatalf("Missing=%v", res.Missing)
	}
}

func TestRewriteStrictEscalatesMissingAnchor(t *testing.T) {
	inj, _ := newInjector(t, Config{Enable: true, Strict: true})
	_, err := inj.Rewrite([]byte(sourceFixture), "int main() { return 0; }")
	if !errors.Is(err, domain.ErrPatchNotFound) {
		t.Fatalf("Rewrite() err=%v, want ErrPatchNotFound", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}, nil, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("New(nil cipher) err=%v", err)
	}
	if _, err := New(Config{TempDirName: "a/b"}, newCipher(t), nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("New(bad temp dir) err=%v", err)
	}
}

func TestRunRewritesFileInPlace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.py")
	cpp := filepath.Join(dir, "main.cpp")
	if err := os.WriteFile(src, []byte(sourceFixture), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := os.WriteFile(cpp, []byte(unitFixture), 0o644); err != nil {
		t.Fatalf("write unit: %v", err)
	}
	inj, _ := newInjector(t, Config{Enable: true})
	res, err := inj.Run(src, cpp)
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if !res.Activated {
		t.Fatalf("expected activation")
	}
	written, err := os.ReadFile(cpp)
	if err != nil {
		t.Fatalf("read unit: %v", err)
	}
	if string(written) != res.Code {
		t.Fatalf("unit on disk differs from result")
	}
	if _, err := os.Stat(cpp + ".bak_before_source_code_injector"); err != nil {
		t.Fatalf("backup missing: %v", err)
	}
}
