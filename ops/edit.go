package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/meigma/zpack"
	"github.com/meigma/zpack/internal/pathutil"
)

// Rename maps an entry name, or a directory prefix, to a new name.
type Rename struct {
	Old string
	New string
}

// apply returns the renamed form of name and whether r matched it.
func (r Rename) apply(name string) (string, bool) {
	old := strings.TrimSuffix(r.Old, "/")
	if old == "" || old == "." {
		return "", false
	}
	if name == old {
		return r.New, true
	}
	if strings.HasPrefix(name, pathutil.DirPrefix(old)) {
		return pathutil.DirPrefix(strings.TrimSuffix(r.New, "/")) + name[len(old)+1:], true
	}
	return "", false
}

// Delete rewrites archive without the entries matching names. A name
// matches an entry of the same name and every entry beneath it when read
// as a directory. Every name must match at least one entry.
func Delete(ctx context.Context, archive string, names []string, opts ...Option) (Summary, error) {
	cfg := newConfig(opts)
	if len(names) == 0 {
		return Summary{}, ErrNoInputs
	}
	targets := make([]string, len(names))
	for i, name := range names {
		targets[i] = strings.TrimSuffix(name, "/")
		if err := zpack.ValidateFilename(targets[i]); err != nil {
			return Summary{}, fmt.Errorf("delete %s: %w", name, err)
		}
	}
	r, err := openArchive(ctx, archive, &cfg)
	if err != nil {
		return Summary{}, err
	}
	defer r.Close()

	entries := r.Entries()
	matched := make([]bool, len(names))
	keep := entries[:0]
	for _, e := range entries {
		drop := false
		for i, target := range targets {
			if pathutil.Matches(e.Filename, target) {
				matched[i] = true
				drop = true
			}
		}
		if drop {
			cfg.log().Debug("removing entry", "name", e.Filename)
			continue
		}
		keep = append(keep, e)
	}
	for i, ok := range matched {
		if !ok {
			return Summary{}, fmt.Errorf("delete %s: %w", names[i], ErrNoMatch)
		}
	}

	sum := Summary{Removed: len(entries) - len(keep)}
	err = commit(archive, &cfg, r, &sum, func(w *zpack.Writer, _ string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return copyEntries(w, r, keep, &cfg, nil)
	})
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// Move rewrites archive with entries renamed. Each rename applies to the
// entry named Old and, treating Old as a directory, to every entry beneath
// it. The first matching rename wins. Compressed data is copied as is.
func Move(ctx context.Context, archive string, renames []Rename, opts ...Option) (Summary, error) {
	cfg := newConfig(opts)
	if len(renames) == 0 {
		return Summary{}, ErrNoInputs
	}
	for _, rn := range renames {
		if err := zpack.ValidateFilename(strings.TrimSuffix(rn.New, "/")); err != nil {
			return Summary{}, fmt.Errorf("move %s: %w", rn.Old, err)
		}
	}
	r, err := openArchive(ctx, archive, &cfg)
	if err != nil {
		return Summary{}, err
	}
	defer r.Close()

	entries := r.Entries()
	matched := make([]bool, len(renames))
	newNames := make(map[string]string)
	for _, e := range entries {
		for i, rn := range renames {
			if to, ok := rn.apply(e.Filename); ok {
				matched[i] = true
				newNames[e.Filename] = to
				break
			}
		}
	}
	for i, ok := range matched {
		if !ok {
			return Summary{}, fmt.Errorf("move %s: %w", renames[i].Old, ErrNoMatch)
		}
	}

	sum := Summary{Renamed: len(newNames)}
	rename := func(name string) string {
		if to, ok := newNames[name]; ok {
			return to
		}
		return name
	}
	err = commit(archive, &cfg, r, &sum, func(w *zpack.Writer, _ string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return copyEntries(w, r, entries, &cfg, rename)
	})
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}
