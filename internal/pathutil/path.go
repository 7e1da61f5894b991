// Package pathutil provides path rules for slash-separated archive names.
package pathutil

import (
	"errors"
	"strings"
)

// ErrIllegal is returned for names that are empty, absolute, or contain
// empty, "." or ".." segments.
var ErrIllegal = errors.New("pathutil: illegal filename")

// Validate reports whether name is a legal archive filename. Names are
// byte strings; any encoding is accepted. Both slash and backslash count as
// separators when looking for traversal segments.
func Validate(name string) error {
	if name == "" || isSep(rune(name[0])) || hasDriveLetter(name) {
		return ErrIllegal
	}
	for seg := range strings.SplitSeq(name, "/") {
		if seg == "" {
			return ErrIllegal
		}
	}
	for _, seg := range strings.FieldsFunc(name, isSep) {
		if seg == "." || seg == ".." {
			return ErrIllegal
		}
	}
	return nil
}

// Sanitize turns a host path into an archive name: backslashes become
// slashes, leading separators and drive letters are dropped, repeated
// separators collapse, and "." and ".." segments are removed. The result
// may be empty when nothing nameable remains.
func Sanitize(p string) string {
	if hasDriveLetter(p) {
		p = p[2:]
	}
	segs := strings.FieldsFunc(p, isSep)
	out := segs[:0]
	for _, seg := range segs {
		if seg == "." || seg == ".." {
			continue
		}
		out = append(out, seg)
	}
	return strings.Join(out, "/")
}

// Base returns the last element of a slash-separated path.
// If path is empty or ".", it returns ".".
func Base(path string) string {
	if path == "" || path == "." {
		return "."
	}
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// DirPrefix converts a path to its directory prefix form.
// For ".", returns "" (empty prefix matches all).
// For other paths, appends "/" to match children.
func DirPrefix(name string) string {
	if name == "." {
		return ""
	}
	return strings.TrimSuffix(name, "/") + "/"
}

// Matches reports whether name equals target or lives beneath it.
func Matches(name, target string) bool {
	return name == target || strings.HasPrefix(name, DirPrefix(target))
}

func isSep(r rune) bool {
	return r == '/' || r == '\\'
}

func hasDriveLetter(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0] | 0x20
	return c >= 'a' && c <= 'z'
}
