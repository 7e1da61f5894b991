package codec

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayloads() map[string][]byte {
	rng := rand.New(rand.NewPCG(1, 2))
	random := make([]byte, 300<<10)
	for i := range random {
		random[i] = byte(rng.IntN(256))
	}
	return map[string][]byte{
		"one byte":     {0x42},
		"short text":   []byte("hello, zpack"),
		"repetitive":   bytes.Repeat([]byte("abcdefgh"), 40<<10),
		"random":       random,
		"mixed blocks": append(bytes.Repeat([]byte{0}, 70<<10), random[:90<<10]...),
	}
}

func allCodecs(t *testing.T) []Codec {
	t.Helper()
	var out []Codec
	for _, m := range []Method{Zstd, LZ4, None} {
		c, ok := Lookup(m)
		require.True(t, ok, "codec %d not registered", m)
		out = append(out, c)
	}
	return out
}

func TestMethodNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "zstd", Zstd.String())
	assert.Equal(t, "lz4", LZ4.String())
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "unknown(9)", Method(9).String())

	for name, want := range map[string]Method{"zstd": Zstd, "LZ4": LZ4, "none": None, "store": None} {
		got, err := ParseMethod(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMethod("brotli")
	require.ErrorIs(t, err, ErrUnknownMethod)

	assert.Equal(t, []Method{Zstd, LZ4, None}, Methods())
}

func TestOneshotRoundTrip(t *testing.T) {
	t.Parallel()

	for _, c := range allCodecs(t) {
		for name, data := range testPayloads() {
			t.Run(c.Name()+"/"+name, func(t *testing.T) {
				t.Parallel()
				comp := c.NewCompressor()
				defer comp.Close()
				dec := c.NewDecompressor(Config{})
				defer dec.Close()

				buf := make([]byte, c.CompressBound(len(data)))
				n, err := comp.Compress(buf, data, c.DefaultLevel())
				require.NoError(t, err)
				require.LessOrEqual(t, n, len(buf))

				out := make([]byte, len(data))
				m, err := dec.Decompress(out, buf[:n])
				require.NoError(t, err)
				assert.Equal(t, len(data), m)
				assert.Equal(t, data, out)

				if len(data) > 1 {
					_, err = dec.Decompress(make([]byte, len(data)-1), buf[:n])
					require.ErrorIs(t, err, ErrBufferTooSmall)
				}
			})
		}
	}
}

func TestEmptyInputIsEmptyOutput(t *testing.T) {
	t.Parallel()

	for _, c := range allCodecs(t) {
		comp := c.NewCompressor()
		n, err := comp.Compress(make([]byte, c.CompressBound(0)), nil, c.DefaultLevel())
		require.NoError(t, err, c.Name())
		assert.Zero(t, n, c.Name())

		require.NoError(t, comp.Begin(c.DefaultLevel()))
		consumed, produced, err := comp.Update(make([]byte, 16), nil)
		require.NoError(t, err)
		assert.Zero(t, consumed)
		assert.Zero(t, produced)
		produced, flushed, err := comp.End(make([]byte, 16))
		require.NoError(t, err)
		assert.True(t, flushed)
		assert.Zero(t, produced, c.Name())
		require.NoError(t, comp.Close())

		dec := c.NewDecompressor(Config{})
		m, err := dec.Decompress(nil, nil)
		require.NoError(t, err)
		assert.Zero(t, m)

		consumed, produced, err = dec.Update(make([]byte, 16), nil, true)
		require.NoError(t, err)
		assert.Zero(t, consumed)
		assert.Zero(t, produced)
		require.NoError(t, dec.Close())
	}
}

// streamCompress feeds data in chunks of inSize through windows of outSize.
func streamCompress(t *testing.T, comp Compressor, level int, data []byte, inSize, outSize int) []byte {
	t.Helper()
	require.NoError(t, comp.Begin(level))

	var out bytes.Buffer
	window := make([]byte, outSize)
	pending := []byte(nil)
	for len(data) > 0 || len(pending) > 0 {
		if len(pending) == 0 {
			k := min(inSize, len(data))
			pending, data = data[:k], data[k:]
		}
		consumed, produced, err := comp.Update(window, pending)
		require.NoError(t, err)
		out.Write(window[:produced])
		pending = pending[consumed:]
	}
	for {
		produced, flushed, err := comp.End(window)
		require.NoError(t, err)
		out.Write(window[:produced])
		if flushed {
			break
		}
	}
	return out.Bytes()
}

// streamDecompress mirrors the read-back loop: unconsumed input is
// re-presented ahead of the next chunk.
func streamDecompress(t *testing.T, dec Decompressor, comp []byte, inSize, outSize, want int) []byte {
	t.Helper()

	var out bytes.Buffer
	window := make([]byte, outSize)
	in := make([]byte, 0, inSize)
	pos := 0
	stalls := 0
	for out.Len() < want {
		k := min(cap(in)-len(in), len(comp)-pos)
		in = append(in, comp[pos:pos+k]...)
		pos += k
		final := pos == len(comp)

		consumed, produced, err := dec.Update(window, in, final)
		require.NoError(t, err)
		out.Write(window[:produced])
		in = append(in[:0], in[consumed:]...)
		if consumed == 0 && produced == 0 && k == 0 {
			stalls++
			require.Less(t, stalls, 3, "decoder made no progress")
		}
	}
	return out.Bytes()
}

func TestStreamingRoundTrip(t *testing.T) {
	t.Parallel()

	windows := []struct{ in, out int }{
		{1, 1},
		{7, 3},
		{4096, 13},
		{64 << 10, 64 << 10},
	}
	data := testPayloads()["mixed blocks"][:20<<10]
	for _, c := range allCodecs(t) {
		for _, w := range windows {
			comp := c.NewCompressor()
			compressed := streamCompress(t, comp, c.DefaultLevel(), data, w.in, w.out)
			require.NoError(t, comp.Close())

			dec := c.NewDecompressor(Config{})
			got := streamDecompress(t, dec, compressed, max(w.in, 1), w.out, len(data))
			assert.Equal(t, data, got, "%s in=%d out=%d", c.Name(), w.in, w.out)

			oneshot := make([]byte, len(data))
			n, err := dec.Decompress(oneshot, compressed)
			require.NoError(t, err)
			assert.Equal(t, data, oneshot[:n])
			require.NoError(t, dec.Close())
		}
	}
}

func TestStreamingDecoderReset(t *testing.T) {
	t.Parallel()

	data := testPayloads()["repetitive"]
	for _, c := range allCodecs(t) {
		comp := c.NewCompressor()
		buf := make([]byte, c.CompressBound(len(data)))
		n, err := comp.Compress(buf, data, c.DefaultLevel())
		require.NoError(t, err)

		dec := c.NewDecompressor(Config{})
		window := make([]byte, 100)
		_, produced, err := dec.Update(window, buf[:n/2], false)
		require.NoError(t, err)
		assert.Positive(t, produced)

		dec.Reset()
		got := streamDecompress(t, dec, buf[:n], 1024, 4096, len(data))
		assert.Equal(t, data, got, c.Name())
		require.NoError(t, dec.Close())
		require.NoError(t, comp.Close())
	}
}

func TestTruncatedInput(t *testing.T) {
	t.Parallel()

	data := testPayloads()["random"][:10<<10]
	for _, m := range []Method{Zstd, LZ4} {
		c, _ := Lookup(m)
		comp := c.NewCompressor()
		buf := make([]byte, c.CompressBound(len(data)))
		n, err := comp.Compress(buf, data, c.DefaultLevel())
		require.NoError(t, err)

		dec := c.NewDecompressor(Config{})
		_, err = dec.Decompress(make([]byte, len(data)), buf[:n/2])
		require.Error(t, err, c.Name())

		window := make([]byte, len(data))
		in := buf[:n/2]
		var total int
		for {
			consumed, produced, err := dec.Update(window[total:], in, true)
			total += produced
			in = in[consumed:]
			if err != nil {
				assert.True(t, errors.Is(err, ErrInputIncomplete) || errors.Is(err, ErrDecompressFailed), "%s: %v", c.Name(), err)
				break
			}
			require.Positive(t, consumed+produced, "%s: no error and no progress", c.Name())
		}
		assert.Less(t, total, len(data))
		require.NoError(t, dec.Close())
	}
}

func TestCompressBufferTooSmall(t *testing.T) {
	t.Parallel()

	data := testPayloads()["random"][:4096]
	for _, c := range allCodecs(t) {
		comp := c.NewCompressor()
		_, err := comp.Compress(make([]byte, 16), data, c.DefaultLevel())
		require.ErrorIs(t, err, ErrBufferTooSmall, c.Name())
		require.NoError(t, comp.Close())
	}
}

func TestLevels(t *testing.T) {
	t.Parallel()

	data := testPayloads()["repetitive"]
	for _, m := range []Method{Zstd, LZ4} {
		c, _ := Lookup(m)
		comp := c.NewCompressor()
		dec := c.NewDecompressor(Config{})
		for _, level := range []int{-1, 0, 1, 3, 9, 19, 22} {
			buf := make([]byte, c.CompressBound(len(data)))
			n, err := comp.Compress(buf, data, level)
			require.NoError(t, err, "%s level %d", c.Name(), level)
			out := make([]byte, len(data))
			_, err = dec.Decompress(out, buf[:n])
			require.NoError(t, err)
			assert.Equal(t, data, out)
		}
		require.NoError(t, comp.Close())
		require.NoError(t, dec.Close())
	}
}

func TestUpdateWithoutBegin(t *testing.T) {
	t.Parallel()

	for _, c := range allCodecs(t) {
		comp := c.NewCompressor()
		_, _, err := comp.Update(make([]byte, 8), []byte("x"))
		require.ErrorIs(t, err, ErrNotStarted, c.Name())
		_, _, err = comp.End(make([]byte, 8))
		require.ErrorIs(t, err, ErrNotStarted, c.Name())
	}
}

func TestFramesCarryNoChecksum(t *testing.T) {
	t.Parallel()

	data := testPayloads()["short text"]
	tests := []struct {
		method Method
		// flag byte offset and the checksum bits within it
		offset int
		mask   byte
	}{
		{Zstd, 4, 0x04},
		{LZ4, 4, 0x14},
	}
	for _, tt := range tests {
		c, _ := Lookup(tt.method)

		buf := make([]byte, c.CompressBound(len(data)))
		n, err := c.NewCompressor().Compress(buf, data, c.DefaultLevel())
		require.NoError(t, err)
		require.Greater(t, n, tt.offset)
		assert.Zero(t, buf[tt.offset]&tt.mask, "%s oneshot frame flags %#x", c.Name(), buf[tt.offset])

		streamed := streamCompress(t, c.NewCompressor(), c.DefaultLevel(), data, 5, 16)
		require.Greater(t, len(streamed), tt.offset)
		assert.Zero(t, streamed[tt.offset]&tt.mask, "%s stream frame flags %#x", c.Name(), streamed[tt.offset])
	}
}

func TestForeignFrameChecksumMismatch(t *testing.T) {
	t.Parallel()

	data := testPayloads()["repetitive"][:20<<10]

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderCRC(true))
	require.NoError(t, err)
	zframe := enc.EncodeAll(data, nil)
	require.NoError(t, enc.Close())

	var lbuf bytes.Buffer
	lw := lz4.NewWriter(&lbuf)
	require.NoError(t, lw.Apply(lz4.ChecksumOption(true)))
	_, err = lw.Write(data)
	require.NoError(t, err)
	require.NoError(t, lw.Close())

	for m, frame := range map[Method][]byte{Zstd: zframe, LZ4: lbuf.Bytes()} {
		c, _ := Lookup(m)
		frame = bytes.Clone(frame)
		frame[len(frame)-1] ^= 0xff

		dec := c.NewDecompressor(Config{})
		_, err := dec.Decompress(make([]byte, len(data)), frame)
		require.ErrorIs(t, err, ErrChecksumMismatch, c.Name())
		dec.Reset()

		window := make([]byte, len(data))
		total := 0
		in := frame
		for {
			consumed, produced, err := dec.Update(window[total:], in, true)
			total += produced
			in = in[consumed:]
			if err != nil {
				require.ErrorIs(t, err, ErrChecksumMismatch, c.Name())
				break
			}
			require.Positive(t, consumed+produced, "%s: no error and no progress", c.Name())
		}
		require.NoError(t, dec.Close())
	}
}

func TestBufferSizes(t *testing.T) {
	t.Parallel()

	for _, c := range allCodecs(t) {
		sizes := StreamBufferSizes(c)
		assert.Positive(t, sizes.CompressIn, c.Name())
		assert.GreaterOrEqual(t, sizes.CompressOut, c.CompressBound(0), c.Name())
		assert.Positive(t, sizes.DecompressIn, c.Name())
		assert.Positive(t, sizes.DecompressOut, c.Name())

		data := testPayloads()["mixed blocks"]
		comp := streamCompress(t, c.NewCompressor(), c.DefaultLevel(), data, sizes.CompressIn, sizes.CompressOut)
		got := streamDecompress(t, c.NewDecompressor(Config{}), comp, sizes.DecompressIn, sizes.DecompressOut, len(data))
		assert.Equal(t, data, got, c.Name())
	}

	store, _ := Lookup(None)
	assert.Equal(t, DefaultBufferSize, StreamBufferSizes(store).CompressIn)
}
