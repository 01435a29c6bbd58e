package watch

import (
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// skipDirs are never watched.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	".hg":          true,
	".svn":         true,
}

// Ignorer decides which paths below a root must not trigger a recompile.
type Ignorer struct {
	root    string
	outDirs []string
	matcher gitignore.Matcher
}

// NewIgnorer reads the root's .gitignore files and ignores everything below
// outDirs in addition.
func NewIgnorer(root string, outDirs ...string) (*Ignorer, error) {
	patterns, err := gitignore.ReadPatterns(osfs.New(root), nil)
	if err != nil {
		return nil, err
	}
	abs := make([]string, 0, len(outDirs))
	for _, d := range outDirs {
		if d == "" {
			continue
		}
		a, err := filepath.Abs(d)
		if err != nil {
			return nil, err
		}
		abs = append(abs, a)
	}
	return &Ignorer{root: root, outDirs: abs, matcher: gitignore.NewMatcher(patterns)}, nil
}

// Ignored reports whether path should be skipped.
func (i *Ignorer) Ignored(path string, isDir bool) bool {
	base := filepath.Base(path)
	if isDir && skipDirs[base] {
		return true
	}
	if !isDir && isScratchFile(base) {
		return true
	}
	for _, d := range i.outDirs {
		if path == d || strings.HasPrefix(path, d+string(filepath.Separator)) {
			return true
		}
	}
	rel, err := filepath.Rel(i.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	return i.matcher.Match(strings.Split(filepath.ToSlash(rel), "/"), isDir)
}

// isScratchFile matches hidden files and editor swap, backup and lock files.
func isScratchFile(base string) bool {
	switch {
	case strings.HasPrefix(base, "."):
		return true
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasSuffix(base, ".tmp"):
		return true
	case strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	case base == "4913", base == "Thumbs.db":
		return true
	}
	return false
}
