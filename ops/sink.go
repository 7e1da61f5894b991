package ops

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
)

// extractedMode is the permission of extracted files before umask.
const extractedMode = 0o644

// fileSink writes extracted entries below a destination directory with
// atomic writes.
//
// Entries are written to a temporary file in their target directory, then
// renamed to the final path on Commit, so partially written files are
// never visible at the final path. Unless unsafe, every path is resolved
// through an os.Root and cannot leave the destination.
type fileSink struct {
	dest string
	root *os.Root
}

func newFileSink(dest string, unsafe bool) (*fileSink, error) {
	if err := os.MkdirAll(dest, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	s := &fileSink{dest: dest}
	if unsafe {
		return s, nil
	}
	root, err := os.OpenRoot(dest)
	if err != nil {
		return nil, fmt.Errorf("open output directory: %w", err)
	}
	s.root = root
	return s, nil
}

func (s *fileSink) Close() error {
	if s.root == nil {
		return nil
	}
	return s.root.Close()
}

// Writer returns a committer for the slash-separated name.
func (s *fileSink) Writer(name string) (*fileCommitter, error) {
	rel := filepath.FromSlash(name)
	if s.root == nil {
		destPath := filepath.Join(s.dest, rel)
		dir := filepath.Dir(destPath)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
		tempFile, err := os.CreateTemp(dir, ".zpack-*")
		if err != nil {
			return nil, fmt.Errorf("create temp file: %w", err)
		}
		return &fileCommitter{
			tempFile: tempFile,
			tempPath: tempFile.Name(),
			destPath: destPath,
			rename:   os.Rename,
			remove:   os.Remove,
		}, nil
	}

	dir := filepath.Dir(rel)
	if dir != "." {
		if err := s.root.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	tempPath := filepath.Join(dir, ".zpack-"+strconv.FormatUint(rand.Uint64(), 36)) //nolint:gosec // name only needs to be unlikely to collide
	tempFile, err := s.root.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &fileCommitter{
		tempFile: tempFile,
		tempPath: tempPath,
		destPath: rel,
		rename:   s.root.Rename,
		remove:   s.root.Remove,
	}, nil
}

// fileCommitter writes to a temp file and renames on Commit.
type fileCommitter struct {
	tempFile *os.File
	tempPath string
	destPath string
	rename   func(oldpath, newpath string) error
	remove   func(name string) error
}

// Write implements io.Writer.
func (c *fileCommitter) Write(p []byte) (int, error) {
	return c.tempFile.Write(p)
}

// Commit closes the temp file and renames it to the final path.
func (c *fileCommitter) Commit() error {
	if err := c.tempFile.Chmod(extractedMode); err != nil {
		_ = c.Discard() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("chmod: %w", err)
	}
	if err := c.tempFile.Close(); err != nil {
		_ = c.remove(c.tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := c.rename(c.tempPath, c.destPath); err != nil {
		_ = c.remove(c.tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", c.destPath, err)
	}
	return nil
}

// Discard closes and removes the temp file.
func (c *fileCommitter) Discard() error {
	_ = c.tempFile.Close() //nolint:errcheck // we're cleaning up
	return c.remove(c.tempPath)
}
