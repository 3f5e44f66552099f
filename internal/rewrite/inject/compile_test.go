package inject

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func lookupCXX(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("gcc/clang command lines only")
	}
	for _, name := range []string{os.Getenv("CXX"), "c++", "g++", "clang++"} {
		if name == "" {
			continue
		}
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no C++ compiler found")
	return ""
}

// standaloneUnit has the anchors of a generated unit without needing
// Python.h. main reports the file name an error position resolves to.
const standaloneUnit = `#include <cstdio>
static const char *__pyx_f[] = {"main.py"};
static const char *__pyx_filename;

#define __PYX_MARK_ERR_POS(f_index, lineno) \
    { __pyx_filename = __pyx_f[f_index]; (void)(lineno); }

int main() {
    const char *__pyx_filename = NULL;
    __PYX_MARK_ERR_POS(0, 1);
    std::printf("%s\n", __pyx_filename);
    __PYX_MARK_ERR_POS(0, 2);
    std::printf("%s\n", __pyx_filename);
    return 0;
}
`

func TestInjectedWriterMaterializesSource(t *testing.T) {
	cxx := lookupCXX(t)
	dir := t.TempDir()
	source := []byte("import os\n\ndef greet(name):\n    raise ValueError(name)\n")
	src := filepath.Join(dir, "main.py")
	cpp := filepath.Join(dir, "main.cpp")
	if err := os.WriteFile(src, source, 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := os.WriteFile(cpp, []byte(standaloneUnit), 0o644); err != nil {
		t.Fatalf("write unit: %v", err)
	}
	inj, cipher := newInjector(t, Config{Enable: true})
	res, err := inj.Run(src, cpp)
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if !res.Activated {
		t.Fatalf("Run() not activated, missing %v", res.Missing)
	}

	bin := filepath.Join(dir, "main")
	build := exec.Command(cxx, "-std=c++17", cpp, "-o", bin)
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("%s: %v\n%s", strings.Join(build.Args, " "), err, out)
	}

	tmp := t.TempDir()
	runUnit := func() []string {
		t.Helper()
		cmd := exec.Command(bin)
		cmd.Env = append(os.Environ(), "TMPDIR="+tmp)
		out, err := cmd.Output()
		if err != nil {
			t.Fatalf("run unit: %v", err)
		}
		return strings.Split(strings.TrimSpace(string(out)), "\n")
	}

	want := filepath.Join(tmp, DefaultTempDirName, res.Hash+".py")
	paths := runUnit()
	if len(paths) != 2 || paths[0] != want || paths[1] != want {
		t.Fatalf("error positions=%v, want %s twice", paths, want)
	}
	blob, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read materialized source: %v", err)
	}
	if n := bytes.Count(blob, []byte("\n")) + 1; n != len(res.Lines) {
		t.Fatalf("materialized %d tokens, want %d", n, len(res.Lines))
	}
	plain, err := cipher.DecryptBlob(string(blob))
	if err != nil {
		t.Fatalf("DecryptBlob() err=%v", err)
	}
	if plain != string(source) {
		t.Fatalf("DecryptBlob()=%q, want %q", plain, source)
	}

	// An existing file is reused as is.
	if err := os.WriteFile(want, []byte("kept"), 0o644); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	runUnit()
	if got, _ := os.ReadFile(want); string(got) != "kept" {
		t.Fatalf("materialized source rewritten: %q", got)
	}
}
