package config

import (
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
)

// FindRoot returns the project root for buffile: the closest ancestor
// directory containing an entry whose name matches one of patterns. When no
// ancestor matches, the file's own directory is the root.
func FindRoot(buffile string, patterns []string) string {
	dir := filepath.Dir(buffile)
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		// Patterns are checked by Validate; a bad one here just never matches.
		if g, err := glob.Compile(p, filepath.Separator); err == nil {
			globs = append(globs, g)
		}
	}
	if len(globs) == 0 {
		return dir
	}

	for cur := dir; ; {
		if containsMatch(cur, globs) {
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return dir
		}
		cur = parent
	}
}

func containsMatch(dir string, globs []glob.Glob) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		for _, g := range globs {
			if g.Match(e.Name()) {
				return true
			}
		}
	}
	return false
}
