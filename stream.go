package zpack

import (
	"github.com/zeebo/xxh3"

	"github.com/meigma/zpack/codec"
)

// DefaultStreamBufferSize is the window size for methods that do not
// recommend their own.
const DefaultStreamBufferSize = codec.DefaultBufferSize

// StreamSizes are recommended window sizes for streaming one method.
type StreamSizes = codec.BufferSizes

// StreamBufferSizes returns the recommended window sizes for m.
// NewEntryReader and CreateEntry allocate their windows with them.
func StreamBufferSizes(m Method) (StreamSizes, error) {
	c, err := lookupCodec(m)
	if err != nil {
		return StreamSizes{}, err
	}
	return codec.StreamBufferSizes(c), nil
}

// Stream is a cursor for moving one file through caller-owned input and
// output windows.
//
// When reading, each [Reader.ReadFileStream] call fills the input window
// from the archive, decodes into the output window and leaves any input
// the codec did not take at the front of the input window (the read-back).
// Callers consume [Stream.Output] and call [Stream.Rewind] before the next
// call.
//
// When writing, callers fill [Stream.Input] and [Stream.Fill] it before
// each [Writer.WriteFileStreamUpdate]; produced bytes go straight to the
// archive.
//
// A Stream is tied to one file at a time. Call [Stream.Reset] before using
// it for the next file.
type Stream struct {
	in  []byte
	out []byte

	inStart int // first unconsumed input byte
	inEnd   int // end of buffered input
	outLen  int // bytes of out holding produced data

	totalIn  uint64
	totalOut uint64

	hash     *xxh3.Hasher
	started  bool
	finished bool

	// writer state
	method Method
	level  int
}

// NewStream returns a cursor over the given windows. Both must be non-empty.
func NewStream(in, out []byte) *Stream {
	return &Stream{in: in, out: out, hash: xxh3.New()}
}

// Reset prepares the stream for another file, keeping its windows.
func (s *Stream) Reset() {
	s.inStart, s.inEnd, s.outLen = 0, 0, 0
	s.totalIn, s.totalOut = 0, 0
	s.hash.Reset()
	s.started = false
	s.finished = false
	s.method, s.level = 0, 0
}

// Done reports whether every byte of the current file has been produced
// and verified.
func (s *Stream) Done() bool { return s.finished }

// TotalIn is the number of compressed bytes pulled from the archive when
// reading, or uncompressed bytes consumed when writing.
func (s *Stream) TotalIn() uint64 { return s.totalIn }

// TotalOut is the number of uncompressed bytes produced when reading, or
// compressed bytes written when writing.
func (s *Stream) TotalOut() uint64 { return s.totalOut }

// ReadBack is the number of input bytes the codec has not consumed yet.
func (s *Stream) ReadBack() int { return s.inEnd - s.inStart }

// Output returns the bytes produced into the output window since the last Rewind.
func (s *Stream) Output() []byte { return s.out[:s.outLen] }

// Rewind moves pending read-back to the front of the input window and
// empties the output window.
func (s *Stream) Rewind() {
	s.compact()
	s.outLen = 0
}

// Input returns the free part of the input window for writing.
func (s *Stream) Input() []byte {
	s.compact()
	return s.in[s.inEnd:]
}

// Fill marks n bytes of the slice returned by Input as valid.
func (s *Stream) Fill(n int) {
	s.inEnd = min(s.inEnd+max(n, 0), len(s.in))
}

// Sum64 returns the running content hash.
func (s *Stream) Sum64() uint64 { return s.hash.Sum64() }

func (s *Stream) compact() {
	if s.inStart == 0 {
		return
	}
	n := copy(s.in, s.in[s.inStart:s.inEnd])
	s.inStart, s.inEnd = 0, n
}

func (s *Stream) valid() bool {
	return s != nil && len(s.in) > 0 && len(s.out) > 0 && s.hash != nil
}
