// Package config loads the tool configuration from an optional YAML file and
// WHLOBF_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/animus-labs/whlobf/internal/domain"
	"github.com/animus-labs/whlobf/internal/linecrypt"
	"github.com/animus-labs/whlobf/internal/platform/env"
	"github.com/animus-labs/whlobf/internal/rewrite/flag"
	"github.com/animus-labs/whlobf/internal/rewrite/inject"
	"github.com/animus-labs/whlobf/internal/runtimeexec"
)

type Config struct {
	// Key is the URL-safe base64 line encryption key.
	Key string `yaml:"key"`
	// KeyGenerated reports that Load drew Key at random because none was
	// configured.
	KeyGenerated bool `yaml:"-"`
	Verbose      bool `yaml:"verbose"`
	// Workers bounds the worker process pool. Zero processes files in this
	// process, one at a time.
	Workers int `yaml:"workers"`

	Transpiler TranspilerConfig `yaml:"transpiler"`
	Compiler   CompilerConfig   `yaml:"compiler"`
	FlagSetter FlagSetterConfig `yaml:"flag_setter"`
	Literals   LiteralsConfig   `yaml:"string_literal_obfuscator"`
	Injector   InjectorConfig   `yaml:"source_code_injector"`
	Folder     FolderConfig     `yaml:"folder"`
}

type TranspilerConfig struct {
	Bin  string   `yaml:"bin"`
	Args []string `yaml:"args"`
}

type CompilerConfig struct {
	CXX       string        `yaml:"cxx"`
	Python    string        `yaml:"python"`
	Toolchain string        `yaml:"toolchain"`
	Timeout   time.Duration `yaml:"timeout"`
}

type FlagSetterConfig struct {
	Enable bool   `yaml:"enable"`
	Name   string `yaml:"name"`
}

type LiteralsConfig struct {
	Enable     bool   `yaml:"enable"`
	IncludeDir string `yaml:"include_dir"`
}

type InjectorConfig struct {
	Enable      bool   `yaml:"enable"`
	TempDirName string `yaml:"temp_dir_name"`
	Strict      bool   `yaml:"strict"`
}

type FolderConfig struct {
	Patterns        []string `yaml:"patterns"`
	DeleteProcessed bool     `yaml:"delete_processed"`
	ResetOutput     bool     `yaml:"reset_output"`
}

func Default() Config {
	return Config{
		Transpiler: TranspilerConfig{Bin: "cython"},
		Compiler: CompilerConfig{
			Python:  "python3",
			Timeout: runtimeexec.DefaultCompileTimeout,
		},
		FlagSetter: FlagSetterConfig{Enable: true, Name: flag.DefaultName},
		Literals:   LiteralsConfig{Enable: true},
		Injector:   InjectorConfig{Enable: true, TempDirName: inject.DefaultTempDirName},
		Folder: FolderConfig{
			Patterns:        []string{"**/*.py", "**/*.pyx"},
			DeleteProcessed: true,
		},
	}
}

// Load reads path (skipped when empty) over the defaults, applies the
// environment and validates the result. When the source code injector is
// enabled and no key is configured, a random key is generated.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = Parse(raw); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if cfg.Injector.Enable && strings.TrimSpace(cfg.Key) == "" {
		key, err := linecrypt.GenerateKey()
		if err != nil {
			return Config{}, fmt.Errorf("%w: generate key: %v", domain.ErrConfiguration, err)
		}
		cfg.Key = key.String()
		cfg.KeyGenerated = true
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from WHLOBF_* variables that are set.
func (c *Config) ApplyEnv() error {
	var err error
	c.Key = env.String("WHLOBF_KEY", c.Key)
	if c.Verbose, err = env.Bool("WHLOBF_VERBOSE", c.Verbose); err != nil {
		return err
	}
	if c.Workers, err = env.Int("WHLOBF_WORKERS", c.Workers); err != nil {
		return err
	}
	c.Transpiler.Bin = env.NonEmpty("WHLOBF_CYTHON", c.Transpiler.Bin)
	c.Compiler.CXX = env.NonEmpty("WHLOBF_CXX", c.Compiler.CXX)
	c.Compiler.Python = env.NonEmpty("WHLOBF_PYTHON", c.Compiler.Python)
	c.Compiler.Toolchain = env.NonEmpty("WHLOBF_TOOLCHAIN", c.Compiler.Toolchain)
	if c.Compiler.Timeout, err = env.Duration("WHLOBF_COMPILE_TIMEOUT", c.Compiler.Timeout); err != nil {
		return err
	}
	if c.FlagSetter.Enable, err = env.Bool("WHLOBF_FLAG_SETTER", c.FlagSetter.Enable); err != nil {
		return err
	}
	c.FlagSetter.Name = env.NonEmpty("WHLOBF_FLAG_NAME", c.FlagSetter.Name)
	if c.Literals.Enable, err = env.Bool("WHLOBF_STRING_LITERAL_OBFUSCATOR", c.Literals.Enable); err != nil {
		return err
	}
	c.Literals.IncludeDir = env.NonEmpty("WHLOBF_INCLUDE_DIR", c.Literals.IncludeDir)
	if c.Injector.Enable, err = env.Bool("WHLOBF_SOURCE_CODE_INJECTOR", c.Injector.Enable); err != nil {
		return err
	}
	c.Injector.TempDirName = env.NonEmpty("WHLOBF_TEMP_DIR_NAME", c.Injector.TempDirName)
	if c.Injector.Strict, err = env.Bool("WHLOBF_STRICT", c.Injector.Strict); err != nil {
		return err
	}
	c.Folder.Patterns = env.List("WHLOBF_PATTERNS", c.Folder.Patterns)
	return nil
}

func (c Config) Validate() error {
	verr := &ValidationError{}
	if c.Workers < 0 {
		verr.Add("workers must be >= 0")
	}
	if c.Compiler.Timeout <= 0 {
		verr.Add("compiler.timeout must be positive")
	}
	switch runtimeexec.ToolchainKind(strings.TrimSpace(c.Compiler.Toolchain)) {
	case "", runtimeexec.ToolchainClang, runtimeexec.ToolchainGCC, runtimeexec.ToolchainMSVC:
	default:
		verr.Add(fmt.Sprintf("compiler.toolchain %q must be clang, gcc or msvc", c.Compiler.Toolchain))
	}
	if strings.TrimSpace(c.Transpiler.Bin) == "" {
		verr.Add("transpiler.bin is required")
	}
	if len(c.Folder.Patterns) == 0 {
		verr.Add("folder.patterns must not be empty")
	}
	if c.Injector.Enable {
		if strings.TrimSpace(c.Key) == "" {
			verr.Add("key is required while the source code injector is enabled")
		} else if _, err := linecrypt.ParseKey(c.Key); err != nil {
			verr.Add(err.Error())
		}
	}
	return verr.OrNil()
}

// ParseKey returns the validated key, or nil when none is configured.
func (c Config) ParseKey() (*linecrypt.Key, error) {
	if strings.TrimSpace(c.Key) == "" {
		return nil, nil
	}
	return linecrypt.ParseKey(c.Key)
}
