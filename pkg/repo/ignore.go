package repo

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFile is the name of the ignore file at the working-tree root.
const IgnoreFile = ".gitignore"

// IgnoreChecker decides whether repository-relative paths are excluded.
//
// A pattern is a slash-delimited path; empty components are dropped, so
// "build/", "/build" and "build" are the same pattern. A path is ignored
// when some pattern's components are a prefix of the path's components:
// "build/" ignores "build", "build/out.bin" and "build/x/y" but not
// "builds/a" or "src/build".
type IgnoreChecker struct {
	patterns [][]string
}

// NewIgnoreChecker builds a checker from the given pattern lines. Blank
// lines and lines starting with '#' are skipped. The metadata directory is
// always ignored.
func NewIgnoreChecker(lines []string) *IgnoreChecker {
	ic := &IgnoreChecker{patterns: [][]string{{MetaDir}}}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if parts := splitComponents(line); len(parts) > 0 {
			ic.patterns = append(ic.patterns, parts)
		}
	}
	return ic
}

// LoadIgnoreChecker reads the ignore file from root. A missing file yields
// a checker that ignores only the metadata directory.
func LoadIgnoreChecker(root string) (*IgnoreChecker, error) {
	f, err := os.Open(filepath.Join(root, IgnoreFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewIgnoreChecker(nil), nil
		}
		return nil, fmt.Errorf("read ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file: %w", err)
	}
	return NewIgnoreChecker(lines), nil
}

// IsIgnored reports whether the repository-relative path is excluded.
func (ic *IgnoreChecker) IsIgnored(path string) bool {
	parts := splitComponents(filepath.ToSlash(path))
	for _, p := range ic.patterns {
		if hasComponentPrefix(parts, p) {
			return true
		}
	}
	return false
}

func splitComponents(path string) []string {
	var out []string
	for _, c := range strings.Split(path, "/") {
		if c != "" && c != "." {
			out = append(out, c)
		}
	}
	return out
}

func hasComponentPrefix(parts, prefix []string) bool {
	if len(prefix) > len(parts) {
		return false
	}
	for i := range prefix {
		if parts[i] != prefix[i] {
			return false
		}
	}
	return true
}
