package runtimeexec

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// matchFiles lists regular files in dir whose base name satisfies keep.
func matchFiles(dir string, keep func(name string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !keep(entry.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// moduleMatcher accepts <stem>.<anything><ext>, the names setuptools and
// direct compiler builds give extension modules.
func moduleMatcher(stem, ext string) func(string) bool {
	prefix := stem + "."
	return func(name string) bool {
		return len(name) > len(prefix)+len(ext) &&
			strings.HasPrefix(name, prefix) &&
			strings.HasSuffix(name, ext)
	}
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
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
