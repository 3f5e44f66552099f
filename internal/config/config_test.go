package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/animus-labs/whlobf/internal/domain"
)

const testKey = "WwAPKBMXKl-I43L4u8B5WD9xoperM9qhXDlLVWRFkiY="

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
key: ` + testKey + `
workers: 4
compiler:
  toolchain: gcc
  timeout: 90s
source_code_injector:
  strict: true
folder:
  patterns: ["src/**/*.py"]
`))
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	if cfg.Workers != 4 || cfg.Compiler.Timeout != 90*time.Second || cfg.Compiler.Toolchain != "gcc" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if !cfg.Injector.Strict || !cfg.Injector.Enable || cfg.Injector.TempDirName != "whlobf" {
		t.Fatalf("injector=%+v", cfg.Injector)
	}
	if cfg.Compiler.Python != "python3" || !cfg.FlagSetter.Enable {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if len(cfg.Folder.Patterns) != 1 || cfg.Folder.Patterns[0] != "src/**/*.py" {
		t.Fatalf("patterns=%v", cfg.Folder.Patterns)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("wokers: 2\n")); err == nil {
		t.Fatalf("Parse() err=nil for unknown key")
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) err=%v", err)
	}
	if cfg.Transpiler.Bin != "cython" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestValidateAggregatesIssues(t *testing.T) {
	cfg := Default()
	cfg.Workers = -1
	cfg.Compiler.Toolchain = "tcc"
	err := cfg.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() err=%v, want *ValidationError", err)
	}
	if len(verr.Issues) != 3 {
		t.Fatalf("issues=%v, want workers, toolchain and key", verr.Issues)
	}
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("Validate() err does not match ErrConfiguration")
	}
}

func TestValidateKeyOnlyRequiredForInjector(t *testing.T) {
	cfg := Default()
	cfg.Injector.Enable = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	cfg.Injector.Enable = true
	cfg.Key = "not-a-key"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "configuration_error") {
		t.Fatalf("Validate() err=%v, want bad key", err)
	}
}

func TestLoadAppliesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whlobf.yaml")
	if err := os.WriteFile(path, []byte("workers: 2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WHLOBF_KEY", testKey)
	t.Setenv("WHLOBF_WORKERS", "3")
	t.Setenv("WHLOBF_STRING_LITERAL_OBFUSCATOR", "false")
	t.Setenv("WHLOBF_PATTERNS", "a/*.py, b/*.pyx")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg.Workers != 3 || cfg.Literals.Enable || len(cfg.Folder.Patterns) != 2 {
		t.Fatalf("cfg=%+v", cfg)
	}
	key, err := cfg.ParseKey()
	if err != nil || key == nil || key.String() != testKey {
		t.Fatalf("ParseKey()=%v,%v", key, err)
	}
}

func TestLoadGeneratesMissingKey(t *testing.T) {
	t.Setenv("WHLOBF_KEY", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if !cfg.KeyGenerated {
		t.Fatalf("KeyGenerated=false with no key configured")
	}
	key, err := cfg.ParseKey()
	if err != nil || key == nil {
		t.Fatalf("ParseKey()=%v,%v", key, err)
	}

	again, err := Load("")
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if again.Key == cfg.Key {
		t.Fatalf("Load() drew the same key twice")
	}

	t.Setenv("WHLOBF_KEY", testKey)
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg.KeyGenerated || cfg.Key != testKey {
		t.Fatalf("configured key replaced: generated=%t", cfg.KeyGenerated)
	}
}

func TestLoadSkipsKeyWithoutInjector(t *testing.T) {
	t.Setenv("WHLOBF_KEY", "")
	t.Setenv("WHLOBF_SOURCE_CODE_INJECTOR", "false")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg.KeyGenerated || cfg.Key != "" {
		t.Fatalf("key generated while the injector is disabled")
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("WHLOBF_KEY", testKey)
	t.Setenv("WHLOBF_COMPILE_TIMEOUT", "soon")
	if _, err := Load(""); err == nil {
		t.Fatalf("Load() err=nil for bad duration")
	}
}
