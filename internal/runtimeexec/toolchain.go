package runtimeexec

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/animus-labs/whlobf/internal/domain"
)

type ToolchainKind string

const (
	ToolchainClang ToolchainKind = "clang"
	ToolchainGCC   ToolchainKind = "gcc"
	ToolchainMSVC  ToolchainKind = "msvc"
)

// Toolchain identifies the C++ standard library in use. Only the fields for
// Kind are set.
type Toolchain struct {
	Kind       ToolchainKind
	ClangMajor int
	GCCMajor   int
	GCCMinor   int
}

// probeProgram is preprocessed to dump the standard library macros.
const probeProgram = "#include <ciso646>\nint main () {}"

var (
	libcppVersionPattern = regexp.MustCompile(`_LIBCPP_VERSION (\d+)`)
	glibcxxPattern       = regexp.MustCompile(`__GLIBCXX__`)
	gnucPattern          = regexp.MustCompile(`__GNUC__ (\d+)`)
	gnucMinorPattern     = regexp.MustCompile(`__GNUC_MINOR__ (\d+)`)
)

// ParseToolchain detects the toolchain from `-E -dM` macro output.
func ParseToolchain(macros string) (Toolchain, error) {
	if m := libcppVersionPattern.FindStringSubmatch(macros); m != nil {
		major, err := libcppMajor(m[1])
		if err != nil {
			return Toolchain{}, err
		}
		return Toolchain{Kind: ToolchainClang, ClangMajor: major}, nil
	}
	if glibcxxPattern.MatchString(macros) {
		major := gnucPattern.FindStringSubmatch(macros)
		minor := gnucMinorPattern.FindStringSubmatch(macros)
		if major == nil || minor == nil {
			return Toolchain{}, fmt.Errorf("%w: libstdc++ without __GNUC__ version macros", domain.ErrIntegration)
		}
		maj, _ := strconv.Atoi(major[1])
		mnr, _ := strconv.Atoi(minor[1])
		return Toolchain{Kind: ToolchainGCC, GCCMajor: maj, GCCMinor: mnr}, nil
	}
	return Toolchain{}, fmt.Errorf("%w: unrecognized C++ standard library", domain.ErrIntegration)
}

// libcppMajor decodes _LIBCPP_VERSION. libc++ used VRRR before 16 and
// VVRRPP since.
func libcppMajor(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: bad _LIBCPP_VERSION %q", domain.ErrIntegration, v)
	}
	if len(v) >= 6 {
		return n / 10000, nil
	}
	return n / 1000, nil
}

// StdFlags picks the language standard and the extra link libraries. The
// injected code needs <filesystem> (C++17) and the obfuscation headers need
// C++14 constexpr.
func StdFlags(tc Toolchain, obfuscatorActivated, injectorActivated bool) (compile, link []string) {
	msvc := tc.Kind == ToolchainMSVC
	std := func(v string) []string {
		if msvc {
			return []string{"/std:" + v}
		}
		return []string{"-std=" + v}
	}
	switch {
	case injectorActivated:
		compile = std("c++17")
		switch tc.Kind {
		case ToolchainClang:
			if tc.ClangMajor < 7 {
				link = []string{"-lc++experimental"}
			} else if tc.ClangMajor < 9 {
				link = []string{"-lc++fs"}
			}
		case ToolchainGCC:
			if tc.GCCMajor < 9 || (tc.GCCMajor == 9 && tc.GCCMinor < 1) {
				link = []string{"-lstdc++fs"}
			}
		}
	case obfuscatorActivated:
		compile = std("c++14")
	default:
		compile = std("c++11")
	}
	return compile, link
}
