// Package walk discovers the files an archive is created from.
package walk

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/karrick/godirwalk"

	"github.com/meigma/zpack/internal/pathutil"
)

// File is one discovered input.
type File struct {
	// Name is the sanitized, slash-separated archive name.
	Name string
	// Path is the host path to read from.
	Path string
}

// Options configures discovery.
type Options struct {
	// Exclude holds path.Match patterns tested against each archive name and
	// its base name. Matching directories are not descended into.
	Exclude []string
	// Skip holds host paths to leave out, typically the destination archive.
	Skip []string
}

// Excluded reports whether name matches any pattern.
func Excluded(name string, patterns []string) bool {
	base := pathutil.Base(name)
	for _, p := range patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
		if ok, _ := path.Match(p, base); ok {
			return true
		}
	}
	return false
}

// ValidatePatterns reports the first malformed exclude pattern.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("exclude pattern %q: %w", p, err)
		}
	}
	return nil
}

// Collect expands roots into regular files in sorted order. A root naming a
// file yields that file; a directory yields everything beneath it. Archive
// names are relative to the root's parent, so walking "/src/docs" yields
// names like "docs/a.txt". Symbolic links and other special files are
// skipped.
func Collect(roots []string, opts Options) ([]File, error) {
	if err := ValidatePatterns(opts.Exclude); err != nil {
		return nil, err
	}
	skip := make(map[string]struct{}, len(opts.Skip))
	for _, p := range opts.Skip {
		if abs, err := filepath.Abs(p); err == nil {
			skip[abs] = struct{}{}
		}
	}
	c := &collector{opts: opts, skip: skip}
	for _, root := range roots {
		if err := c.walk(root); err != nil {
			return nil, err
		}
	}
	return c.files, nil
}

type collector struct {
	opts  Options
	skip  map[string]struct{}
	files []File
}

func (c *collector) walk(root string) error {
	st, err := os.Lstat(root)
	if err != nil {
		return err
	}
	base := filepath.Base(root)
	if !st.IsDir() {
		if st.Mode().IsRegular() {
			c.add(root, pathutil.Sanitize(base))
		}
		return nil
	}
	return godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: false,
		Callback: func(p string, de *godirwalk.Dirent) error {
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			name := pathutil.Sanitize(filepath.Join(base, rel))
			switch {
			case de.IsDir():
				if rel != "." && Excluded(name, c.opts.Exclude) {
					return filepath.SkipDir
				}
			case de.IsRegular():
				c.add(p, name)
			}
			return nil
		},
		ErrorCallback: func(string, error) godirwalk.ErrorAction {
			return godirwalk.Halt
		},
	})
}

func (c *collector) add(p, name string) {
	if name == "" || Excluded(name, c.opts.Exclude) {
		return
	}
	if abs, err := filepath.Abs(p); err == nil {
		if _, ok := c.skip[abs]; ok {
			return
		}
	}
	c.files = append(c.files, File{Name: name, Path: p})
}
