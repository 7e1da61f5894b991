package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// ZstdDefaultLevel is the level used when none is given.
const ZstdDefaultLevel = 3

const (
	zstdBlockMax    = 128 << 10
	zstdBlockHeader = 3
)

type zstdCodec struct{}

func (zstdCodec) Method() Method    { return Zstd }
func (zstdCodec) Name() string      { return "zstd" }
func (zstdCodec) DefaultLevel() int { return ZstdDefaultLevel }

// CompressBound follows the reference ZSTD_COMPRESSBOUND formula with room
// for the frame header.
func (zstdCodec) CompressBound(n int) int {
	bound := n + n>>8 + 64
	if n < 128<<10 {
		bound += (128<<10 - n) >> 11
	}
	return bound
}

// BufferSizes matches windows to whole zstd blocks.
func (zstdCodec) BufferSizes() BufferSizes {
	return BufferSizes{
		CompressIn:    zstdBlockMax,
		CompressOut:   zstdBlockMax + zstdBlockMax>>8 + zstdBlockHeader,
		DecompressIn:  zstdBlockMax + zstdBlockHeader,
		DecompressOut: zstdBlockMax,
	}
}

func (zstdCodec) NewCompressor() Compressor {
	c := &zstdCompressor{}
	c.frame.open = func(enc frameEncoder, level int, w io.Writer) (frameEncoder, error) {
		e, err := c.encoder(level)
		if err != nil {
			return nil, err
		}
		e.Reset(w)
		return e, nil
	}
	return c
}

func (zstdCodec) NewDecompressor(cfg Config) Decompressor {
	d := &zstdDecompressor{cfg: cfg}
	d.pump = newPump(func(r io.Reader, w io.Writer) error {
		dec, err := d.decoder(&d.stream)
		if err != nil {
			return err
		}
		if err := dec.Reset(r); err != nil {
			return err
		}
		_, err = dec.WriteTo(w)
		return zstdChecksum(err)
	})
	return d
}

// zstdLevel maps a numeric zstd level to the library's coarse levels.
// Non-positive levels use the default.
func zstdLevel(level int) zstd.EncoderLevel {
	if level <= 0 {
		level = ZstdDefaultLevel
	}
	return zstd.EncoderLevelFromZstd(level)
}

type zstdCompressor struct {
	frame frameCompressor

	enc      *zstd.Encoder
	encLevel zstd.EncoderLevel
}

// encoder returns an encoder for level, rebuilding it when the level's
// library mapping differs from the cached one.
func (c *zstdCompressor) encoder(level int) (*zstd.Encoder, error) {
	want := zstdLevel(level)
	if c.enc != nil && c.encLevel == want {
		return c.enc, nil
	}
	if c.enc != nil {
		_ = c.enc.Close() //nolint:errcheck // replacing encoder
	}
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(want),
		zstd.WithEncoderConcurrency(1),
		zstd.WithLowerEncoderMem(true),
		zstd.WithEncoderCRC(false),
	)
	if err != nil {
		c.enc = nil
		return nil, err
	}
	c.enc, c.encLevel = enc, want
	return enc, nil
}

func (c *zstdCompressor) Compress(dst, src []byte, level int) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	enc, err := c.encoder(level)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCompressFailed, err)
	}
	out := enc.EncodeAll(src, dst[:0])
	if len(out) > len(dst) {
		return 0, ErrBufferTooSmall
	}
	return copy(dst, out), nil
}

func (c *zstdCompressor) Begin(level int) error { return c.frame.Begin(level) }

func (c *zstdCompressor) Update(dst, src []byte) (int, int, error) {
	return c.frame.Update(dst, src)
}

func (c *zstdCompressor) End(dst []byte) (int, bool, error) { return c.frame.End(dst) }

func (c *zstdCompressor) Reset() { c.frame.Reset() }

func (c *zstdCompressor) Close() error {
	_ = c.frame.Close() //nolint:errcheck // frame close never fails
	if c.enc == nil {
		return nil
	}
	err := c.enc.Close()
	c.enc = nil
	return err
}

// zstdDecompressor keeps separate decoders for oneshot and streaming use so
// a parked stream never holds the decoder a oneshot call needs.
type zstdDecompressor struct {
	cfg     Config
	oneshot *zstd.Decoder
	stream  *zstd.Decoder
	pump    *pump
}

func (d *zstdDecompressor) decoder(slot **zstd.Decoder) (*zstd.Decoder, error) {
	if *slot != nil {
		return *slot, nil
	}
	opts := []zstd.DOption{
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
		zstd.WithDecodeAllCapLimit(true),
	}
	if d.cfg.MaxDecoderMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(d.cfg.MaxDecoderMemory))
	}
	dec, err := zstd.NewReader(nil, opts...)
	if err != nil {
		return nil, err
	}
	*slot = dec
	return dec, nil
}

func (d *zstdDecompressor) Decompress(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	dec, err := d.decoder(&d.oneshot)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	out, err := dec.DecodeAll(src, dst[:0])
	switch {
	case errors.Is(err, zstd.ErrDecoderSizeExceeded):
		return 0, ErrBufferTooSmall
	case errors.Is(err, io.ErrUnexpectedEOF):
		return 0, fmt.Errorf("%w: %v", ErrInputIncomplete, err)
	case errors.Is(err, zstd.ErrCRCMismatch):
		return 0, zstdChecksum(err)
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	if len(out) > len(dst) {
		return 0, ErrBufferTooSmall
	}
	return copy(dst, out), nil
}

func (d *zstdDecompressor) Update(dst, src []byte, final bool) (int, int, error) {
	return d.pump.Update(dst, src, final)
}

func (d *zstdDecompressor) Reset() { d.pump.Reset() }

func (d *zstdDecompressor) Close() error {
	d.pump.Reset()
	for _, slot := range []**zstd.Decoder{&d.oneshot, &d.stream} {
		if *slot != nil {
			(*slot).Close()
			*slot = nil
		}
	}
	return nil
}

// zstdChecksum reports a frame checksum failure as ErrChecksumMismatch.
// Frames written here carry no checksum, but foreign frames may.
func zstdChecksum(err error) error {
	if errors.Is(err, zstd.ErrCRCMismatch) {
		return fmt.Errorf("%w: %v", ErrChecksumMismatch, err)
	}
	return err
}
