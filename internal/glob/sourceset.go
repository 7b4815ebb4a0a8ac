// Package glob resolves ordered include/exclude glob lists into concrete
// source files.
//
// Patterns use doublestar syntax ("**" crosses directories). A pattern that
// starts with "!" excludes. Patterns are applied in declaration order, so an
// exclusion only removes files added by the inclusions before it:
//
//	src/templates/**/*.tmpl
//	!src/templates/views/**/*.tmpl
package glob

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// File is a resolved source file.
type File struct {
	// Path is slash separated and relative to the project root.
	Path string
	// Base is the static prefix of the pattern that matched the file.
	Base string
	// Rel is Path relative to Base. Outputs mirror this layout.
	Rel string
}

type pattern struct {
	glob    string
	exclude bool
}

// SourceSet is an ordered list of include and exclude patterns. The zero
// value matches nothing.
type SourceSet struct {
	patterns []pattern
}

// New builds a SourceSet. Invalid patterns are reported by Validate.
func New(patterns ...string) SourceSet {
	s := SourceSet{patterns: make([]pattern, 0, len(patterns))}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		exclude := strings.HasPrefix(p, "!")
		if exclude {
			p = p[1:]
		}
		s.patterns = append(s.patterns, pattern{glob: Clean(p), exclude: exclude})
	}

	return s
}

// Clean normalises a pattern or path to the slash separated, root relative
// form used for matching.
func Clean(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	if p == "" {
		return "."
	}

	return path.Clean(p)
}

// Patterns returns the patterns in declaration order, exclusions prefixed with "!".
func (s SourceSet) Patterns() []string {
	out := make([]string, len(s.patterns))
	for i, p := range s.patterns {
		if p.exclude {
			out[i] = "!" + p.glob
		} else {
			out[i] = p.glob
		}
	}

	return out
}

// Empty reports whether the set has no inclusion patterns.
func (s SourceSet) Empty() bool {
	for _, p := range s.patterns {
		if !p.exclude {
			return false
		}
	}

	return true
}

// Validate checks every pattern for syntax errors.
func (s SourceSet) Validate() error {
	for _, p := range s.patterns {
		if !doublestar.ValidatePattern(p.glob) {
			return fmt.Errorf("invalid glob pattern %q", p.glob)
		}
		if strings.HasPrefix(p.glob, "../") || p.glob == ".." {
			return fmt.Errorf("glob pattern %q escapes the project root", p.glob)
		}
	}

	return nil
}

// Resolve expands the set against root. A set that matches nothing returns an
// empty slice and no error.
func (s SourceSet) Resolve(root string) ([]File, error) {
	return s.ResolveFS(os.DirFS(root))
}

// ResolveFS expands the set against fsys.
func (s SourceSet) ResolveFS(fsys fs.FS) ([]File, error) {
	var (
		files []File
		index = make(map[string]int)
	)

	for _, p := range s.patterns {
		if p.exclude {
			kept := files[:0]
			for _, f := range files {
				if ok, _ := doublestar.Match(p.glob, f.Path); ok {
					delete(index, f.Path)
					continue
				}
				kept = append(kept, f)
			}
			files = kept
			for i, f := range files {
				index[f.Path] = i
			}
			continue
		}

		matches, err := doublestar.Glob(fsys, p.glob, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", p.glob, err)
		}
		sort.Strings(matches)

		base, _ := doublestar.SplitPattern(p.glob)
		for _, m := range matches {
			if _, seen := index[m]; seen {
				continue
			}
			index[m] = len(files)
			files = append(files, File{Path: m, Base: base, Rel: relTo(base, m)})
		}
	}

	return files, nil
}

// Match reports whether a root relative path is selected by the set, using the
// same ordering rules as Resolve.
func (s SourceSet) Match(p string) bool {
	p = Clean(p)
	selected := false
	for _, pat := range s.patterns {
		ok, err := doublestar.Match(pat.glob, p)
		if err != nil || !ok {
			continue
		}
		selected = !pat.exclude
	}

	return selected
}

// Bases returns the distinct static prefixes of the inclusion patterns. These
// are the directories a watcher needs to observe.
func (s SourceSet) Bases() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range s.patterns {
		if p.exclude {
			continue
		}
		base, _ := doublestar.SplitPattern(p.glob)
		if !seen[base] {
			seen[base] = true
			out = append(out, base)
		}
	}

	return out
}

func relTo(base, p string) string {
	if base == "." || base == "" {
		return p
	}
	if p == base {
		return path.Base(p)
	}

	return strings.TrimPrefix(p, base+"/")
}
