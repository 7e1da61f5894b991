package zpack

import (
	"fmt"
	"os"

	"github.com/meigma/zpack/internal/membuf"
)

// sink is the append-only store a Writer emits archive bytes to. The write
// offset is always the sink's own length.
type sink interface {
	size() uint64
	write(p []byte) error
	// bytes returns the archive for memory sinks.
	bytes() ([]byte, bool)
	release() error
}

// fileSink owns a file and appends to it.
type fileSink struct {
	f *os.File
	n uint64
}

func (s *fileSink) size() uint64 { return s.n }

func (s *fileSink) write(p []byte) error {
	n, err := s.f.Write(p)
	s.n += uint64(n) //nolint:gosec // n is non-negative
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

func (*fileSink) bytes() ([]byte, bool) { return nil, false }

func (s *fileSink) release() error {
	err := s.f.Close()
	s.f = nil
	return err
}

// heapSink grows a power-of-two buffer.
type heapSink struct {
	buf *membuf.Buffer
}

func (s *heapSink) size() uint64 { return uint64(s.buf.Len()) } //nolint:gosec // length is non-negative

func (s *heapSink) write(p []byte) error {
	if _, err := s.buf.Write(p); err != nil {
		return fmt.Errorf("%w: %v", ErrAllocFailed, err)
	}
	return nil
}

func (s *heapSink) bytes() ([]byte, bool) { return s.buf.Bytes(), true }

func (s *heapSink) release() error {
	s.buf.Release()
	return nil
}

var (
	_ sink = (*fileSink)(nil)
	_ sink = (*heapSink)(nil)
)
