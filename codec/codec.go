// Package codec adapts compression libraries to the oneshot and streaming
// contracts used by zpack archives.
//
// Every codec offers a bound on compressed size, oneshot compression and
// decompression into caller buffers, and resumable streaming in both
// directions. Streaming calls report how much input they consumed; input
// that was not consumed must be presented again on the next call.
//
// Empty input always maps to empty output, for every codec and in both
// directions.
package codec

import (
	"fmt"
	"strings"
	"sync"
)

// Method identifies the compression algorithm of an archive entry. The
// numeric values are part of the archive format.
type Method uint8

const (
	// Zstd is Zstandard frame compression.
	Zstd Method = 0
	// LZ4 is LZ4 frame compression.
	LZ4 Method = 1
	// None stores data verbatim.
	None Method = 2
)

func (m Method) String() string {
	if c, ok := Lookup(m); ok {
		return c.Name()
	}
	return fmt.Sprintf("unknown(%d)", uint8(m))
}

// ParseMethod resolves a method by name. "store" is accepted as an alias
// for "none".
func ParseMethod(name string) (Method, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "store" {
		name = "none"
	}
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	for m, c := range registry.codecs {
		if c.Name() == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
}

// Config carries resource limits for decompressors.
type Config struct {
	// MaxDecoderMemory caps decoder window allocations. Zero means no limit.
	MaxDecoderMemory uint64
}

// Codec describes one compression method.
type Codec interface {
	Method() Method
	Name() string
	DefaultLevel() int
	// CompressBound returns the largest compressed size for n input bytes.
	CompressBound(n int) int
	NewCompressor() Compressor
	NewDecompressor(cfg Config) Decompressor
}

// Compressor is a reusable compression context.
type Compressor interface {
	// Compress compresses src into dst and returns the number of bytes
	// written. It returns ErrBufferTooSmall if dst cannot hold the result.
	Compress(dst, src []byte, level int) (int, error)

	// Begin starts a new stream at the given level, discarding any prior
	// stream state.
	Begin(level int) error

	// Update feeds src and writes compressed bytes to dst. Bytes of src past
	// consumed were not taken and must be presented again.
	Update(dst, src []byte) (consumed, produced int, err error)

	// End finishes the stream. flushed is false while output remains, in
	// which case End must be called again with a fresh dst.
	End(dst []byte) (produced int, flushed bool, err error)

	// Reset abandons any stream in progress.
	Reset()
	Close() error
}

// Decompressor is a reusable decompression context.
type Decompressor interface {
	// Decompress decodes all of src into dst and returns the number of bytes
	// written. It returns ErrBufferTooSmall if the output does not fit.
	Decompress(dst, src []byte) (int, error)

	// Update feeds src and writes decoded bytes to dst. final marks src as
	// the tail of the compressed input. Bytes of src past consumed were not
	// taken and must be presented again.
	Update(dst, src []byte, final bool) (consumed, produced int, err error)

	// Reset abandons any stream in progress.
	Reset()
	Close() error
}

// DefaultBufferSize is the window size for codecs that do not recommend
// their own.
const DefaultBufferSize = 64 << 10

// BufferSizes are recommended window sizes for streaming one method.
type BufferSizes struct {
	CompressIn    int
	CompressOut   int
	DecompressIn  int
	DecompressOut int
}

// BufferSizer is implemented by codecs that recommend streaming window
// sizes.
type BufferSizer interface {
	BufferSizes() BufferSizes
}

// StreamBufferSizes returns the window sizes c recommends, or
// DefaultBufferSize for every window.
func StreamBufferSizes(c Codec) BufferSizes {
	if s, ok := c.(BufferSizer); ok {
		return s.BufferSizes()
	}
	return BufferSizes{
		CompressIn:    DefaultBufferSize,
		CompressOut:   DefaultBufferSize,
		DecompressIn:  DefaultBufferSize,
		DecompressOut: DefaultBufferSize,
	}
}

var registry = struct {
	mu     sync.RWMutex
	codecs map[Method]Codec
}{codecs: make(map[Method]Codec)}

// Register installs c, replacing any codec with the same method.
func Register(c Codec) {
	registry.mu.Lock()
	registry.codecs[c.Method()] = c
	registry.mu.Unlock()
}

// Lookup returns the codec registered for m.
func Lookup(m Method) (Codec, bool) {
	registry.mu.RLock()
	c, ok := registry.codecs[m]
	registry.mu.RUnlock()
	return c, ok
}

// Methods returns the registered methods in ascending order.
func Methods() []Method {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	out := make([]Method, 0, len(registry.codecs))
	for m := range 256 {
		if _, ok := registry.codecs[Method(m)]; ok {
			out = append(out, Method(m))
		}
	}
	return out
}

func init() {
	Register(storeCodec{})
	Register(zstdCodec{})
	Register(lz4Codec{})
}
