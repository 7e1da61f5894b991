package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// lz4BlockSize keeps per-block buffers small for bounded-memory streaming.
const lz4BlockSize = 64 << 10

type lz4Codec struct{}

func (lz4Codec) Method() Method    { return LZ4 }
func (lz4Codec) Name() string      { return "lz4" }
func (lz4Codec) DefaultLevel() int { return 0 }

// CompressBound covers the frame header, a size word per block (blocks that
// do not shrink are stored raw) and the end mark.
func (lz4Codec) CompressBound(n int) int {
	blocks := n/lz4BlockSize + 1
	return n + blocks*4 + 32
}

// BufferSizes matches windows to one 64 KiB block. The decompress input
// window also holds the block's size word and the end mark.
func (c lz4Codec) BufferSizes() BufferSizes {
	return BufferSizes{
		CompressIn:    lz4BlockSize,
		CompressOut:   c.CompressBound(lz4BlockSize),
		DecompressIn:  lz4BlockSize + 8,
		DecompressOut: lz4BlockSize,
	}
}

func (lz4Codec) NewCompressor() Compressor {
	c := &lz4Compressor{}
	c.frame.open = func(enc frameEncoder, level int, w io.Writer) (frameEncoder, error) {
		zw, ok := enc.(*lz4.Writer)
		if !ok {
			zw = lz4.NewWriter(w)
		} else {
			zw.Reset(w)
		}
		err := zw.Apply(
			lz4.BlockSizeOption(lz4.Block64Kb),
			lz4.CompressionLevelOption(lz4Level(level)),
			lz4.ConcurrencyOption(1),
			lz4.ChecksumOption(false),
		)
		if err != nil {
			return nil, err
		}
		return zw, nil
	}
	return c
}

func (lz4Codec) NewDecompressor(Config) Decompressor {
	d := &lz4Decompressor{}
	d.pump = newPump(func(r io.Reader, w io.Writer) error {
		_, err := io.Copy(w, lz4Reader(&d.stream, r))
		if lz4ChecksumFailed(err) {
			return fmt.Errorf("%w: %v", ErrChecksumMismatch, err)
		}
		return err
	})
	return d
}

// lz4Level maps 1..9 onto the library's compression levels; anything
// lower selects fast mode.
func lz4Level(level int) lz4.CompressionLevel {
	if level <= 0 {
		return lz4.Fast
	}
	level = min(level, 9)
	return lz4.CompressionLevel(1 << (8 + level))
}

type lz4Compressor struct {
	frame frameCompressor
}

func (c *lz4Compressor) Compress(dst, src []byte, level int) (int, error) {
	return c.frame.compressAll(dst, src, level)
}

func (c *lz4Compressor) Begin(level int) error { return c.frame.Begin(level) }

func (c *lz4Compressor) Update(dst, src []byte) (int, int, error) {
	return c.frame.Update(dst, src)
}

func (c *lz4Compressor) End(dst []byte) (int, bool, error) { return c.frame.End(dst) }

func (c *lz4Compressor) Reset() { c.frame.Reset() }

func (c *lz4Compressor) Close() error { return c.frame.Close() }

type lz4Decompressor struct {
	oneshot *lz4.Reader
	stream  *lz4.Reader
	pump    *pump
}

// lz4Reader retargets the reader in slot at r, creating it on first use.
func lz4Reader(slot **lz4.Reader, r io.Reader) *lz4.Reader {
	if *slot == nil {
		*slot = lz4.NewReader(r)
	} else {
		(*slot).Reset(r)
	}
	return *slot
}

func (d *lz4Decompressor) Decompress(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	zr := lz4Reader(&d.oneshot, bytes.NewReader(src))
	n := 0
	for n < len(dst) {
		m, err := zr.Read(dst[n:])
		n += m
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return 0, lz4Error(err)
		}
	}
	var probe [1]byte
	for {
		m, err := zr.Read(probe[:])
		if m > 0 {
			return 0, ErrBufferTooSmall
		}
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return 0, lz4Error(err)
		}
	}
}

func (d *lz4Decompressor) Update(dst, src []byte, final bool) (int, int, error) {
	return d.pump.Update(dst, src, final)
}

func (d *lz4Decompressor) Reset() { d.pump.Reset() }

func (d *lz4Decompressor) Close() error {
	d.pump.Reset()
	d.oneshot, d.stream = nil, nil
	return nil
}

func lz4Error(err error) error {
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %v", ErrInputIncomplete, err)
	case lz4ChecksumFailed(err):
		return fmt.Errorf("%w: %v", ErrChecksumMismatch, err)
	default:
		return fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
}

// lz4ChecksumFailed reports whether err is a block or content checksum
// failure. Header checksum failures are structural.
func lz4ChecksumFailed(err error) bool {
	return errors.Is(err, lz4.ErrInvalidBlockChecksum) || errors.Is(err, lz4.ErrInvalidFrameChecksum)
}
