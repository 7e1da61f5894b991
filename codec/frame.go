package codec

import (
	"bytes"
	"fmt"
	"io"
)

// frameEncoder is a streaming encoder that can be retargeted at a new sink.
type frameEncoder interface {
	io.WriteCloser
	Reset(w io.Writer)
}

// frameCompressor turns a writer-style encoder into the push-style
// Compressor contract. Encoded bytes land in pending and are drained into
// the caller's window; while pending is non-empty no new input is taken.
type frameCompressor struct {
	// open returns an encoder for level writing to w, reusing enc when possible.
	open func(enc frameEncoder, level int, w io.Writer) (frameEncoder, error)

	enc     frameEncoder
	level   int
	pending bytes.Buffer
	active  bool // Begin called, End not yet flushed
	started bool // encoder attached to pending
	closed  bool // encoder closed, trailer in pending
}

func (c *frameCompressor) Begin(level int) error {
	c.Reset()
	c.level = level
	c.active = true
	return nil
}

func (c *frameCompressor) Update(dst, src []byte) (int, int, error) {
	if !c.active {
		return 0, 0, ErrNotStarted
	}
	produced := c.drain(dst)
	if c.pending.Len() > 0 || len(src) == 0 {
		return 0, produced, nil
	}
	if err := c.start(); err != nil {
		return 0, produced, err
	}
	if _, err := c.enc.Write(src); err != nil {
		c.Reset()
		return 0, produced, fmt.Errorf("%w: %v", ErrCompressFailed, err)
	}
	produced += c.drain(dst[produced:])
	return len(src), produced, nil
}

func (c *frameCompressor) End(dst []byte) (int, bool, error) {
	if !c.active {
		return 0, false, ErrNotStarted
	}
	if c.started && !c.closed {
		c.closed = true
		if err := c.enc.Close(); err != nil {
			c.Reset()
			return 0, false, fmt.Errorf("%w: %v", ErrCompressFailed, err)
		}
	}
	produced := c.drain(dst)
	if c.pending.Len() > 0 {
		return produced, false, nil
	}
	c.active = false
	return produced, true, nil
}

func (c *frameCompressor) Reset() {
	c.pending.Reset()
	c.active = false
	c.started = false
	c.closed = false
}

func (c *frameCompressor) Close() error {
	c.Reset()
	c.pending = bytes.Buffer{}
	c.enc = nil
	return nil
}

// compressAll runs a whole frame through the encoder and copies it to dst.
func (c *frameCompressor) compressAll(dst, src []byte, level int) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	if err := c.Begin(level); err != nil {
		return 0, err
	}
	defer c.Reset()
	if err := c.start(); err != nil {
		return 0, err
	}
	if _, err := c.enc.Write(src); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCompressFailed, err)
	}
	if err := c.enc.Close(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCompressFailed, err)
	}
	if c.pending.Len() > len(dst) {
		return 0, ErrBufferTooSmall
	}
	return copy(dst, c.pending.Bytes()), nil
}

// start attaches the encoder to pending on the first non-empty input, so a
// stream that never receives data produces no bytes at all.
func (c *frameCompressor) start() error {
	if c.started {
		return nil
	}
	enc, err := c.open(c.enc, c.level, &c.pending)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCompressFailed, err)
	}
	c.enc = enc
	c.started = true
	return nil
}

func (c *frameCompressor) drain(dst []byte) int {
	n, _ := c.pending.Read(dst) //nolint:errcheck // io.EOF on empty buffer
	return n
}
