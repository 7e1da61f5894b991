package zpack

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// backing is the storage a Reader serves bytes from. Each variant decides
// on its own whether release frees anything.
type backing interface {
	size() int64
	// readAt fills p from off or fails.
	readAt(p []byte, off int64) error
	// view returns the bytes at [off, off+n) without copying, when the
	// backing is memory resident.
	view(off, n int64) ([]byte, bool)
	release() error
}

// fileBacking owns an open file and closes it on release.
type fileBacking struct {
	f *os.File
	n int64
}

func (b *fileBacking) size() int64 { return b.n }

func (b *fileBacking) readAt(p []byte, off int64) error {
	return readFullAt(b.f, p, off)
}

func (*fileBacking) view(int64, int64) ([]byte, bool) { return nil, false }

func (b *fileBacking) release() error {
	err := b.f.Close()
	b.f = nil
	return err
}

// readerAtBacking borrows a caller's io.ReaderAt and never closes it.
type readerAtBacking struct {
	ra io.ReaderAt
	n  int64
}

func (b *readerAtBacking) size() int64 { return b.n }

func (b *readerAtBacking) readAt(p []byte, off int64) error {
	return readFullAt(b.ra, p, off)
}

func (*readerAtBacking) view(int64, int64) ([]byte, bool) { return nil, false }

func (b *readerAtBacking) release() error {
	b.ra = nil
	return nil
}

// ownedBuffer holds a private copy of the archive bytes.
type ownedBuffer struct {
	b []byte
}

func (b *ownedBuffer) size() int64 { return int64(len(b.b)) }

func (b *ownedBuffer) readAt(p []byte, off int64) error {
	return copyAt(b.b, p, off)
}

func (b *ownedBuffer) view(off, n int64) ([]byte, bool) {
	return b.b[off : off+n], true
}

func (b *ownedBuffer) release() error {
	b.b = nil
	return nil
}

// borrowedBuffer aliases caller memory. It is only ever read, and release
// drops the reference without touching the bytes.
type borrowedBuffer struct {
	b []byte
}

func (b *borrowedBuffer) size() int64 { return int64(len(b.b)) }

func (b *borrowedBuffer) readAt(p []byte, off int64) error {
	return copyAt(b.b, p, off)
}

func (b *borrowedBuffer) view(off, n int64) ([]byte, bool) {
	return b.b[off : off+n : off+n], true
}

func (b *borrowedBuffer) release() error {
	b.b = nil
	return nil
}

var (
	_ backing = (*fileBacking)(nil)
	_ backing = (*readerAtBacking)(nil)
	_ backing = (*ownedBuffer)(nil)
	_ backing = (*borrowedBuffer)(nil)
)

func readFullAt(ra io.ReaderAt, p []byte, off int64) error {
	n, err := ra.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: read %d bytes at %d: %v", ErrReadFailed, len(p), off, err)
}

func copyAt(src, p []byte, off int64) error {
	if off < 0 || off > int64(len(src)) || int64(len(p)) > int64(len(src))-off {
		return fmt.Errorf("%w: read %d bytes at %d past end", ErrReadFailed, len(p), off)
	}
	copy(p, src[off:])
	return nil
}
