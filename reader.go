package zpack

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/zeebo/xxh3"

	"github.com/meigma/zpack/codec"
	"github.com/meigma/zpack/internal/format"
	"github.com/meigma/zpack/internal/sizing"
)

// Reader provides read access to an archive.
//
// The zero value is a closed Reader; open it with one of the Open methods.
// After Close the Reader may be opened again.
type Reader struct {
	cfg  config
	back backing

	version    uint16
	entries    []FileEntry
	index      map[string]int
	compSize   uint64
	uncompSize uint64

	ctx     codecContexts
	scratch []byte
}

// Open opens and parses the archive at path.
func (r *Reader) Open(path string, opts ...Option) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	if err := r.OpenFile(f, opts...); err != nil {
		return err
	}
	r.cfg.log().Debug("opened archive", "path", path, "files", len(r.entries))
	return nil
}

// OpenFile parses the archive in f. The Reader takes ownership of f and
// closes it on Close, including when OpenFile fails.
func (r *Reader) OpenFile(f *os.File, opts ...Option) error {
	st, err := f.Stat()
	if err != nil {
		_ = f.Close() //nolint:errcheck // already failing
		return fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	if !st.Mode().IsRegular() {
		_ = f.Close() //nolint:errcheck // already failing
		return fmt.Errorf("%w: %s is not a regular file", ErrOpenFailed, f.Name())
	}
	return r.attach(&fileBacking{f: f, n: st.Size()}, opts)
}

// OpenReaderAt parses an archive of the given size read through ra. The
// Reader never closes ra.
func (r *Reader) OpenReaderAt(ra io.ReaderAt, size int64, opts ...Option) error {
	if ra == nil || size < 0 {
		return fmt.Errorf("%w: invalid reader", ErrOpenFailed)
	}
	return r.attach(&readerAtBacking{ra: ra, n: size}, opts)
}

// OpenBytes parses a private copy of b.
func (r *Reader) OpenBytes(b []byte, opts ...Option) error {
	return r.attach(&ownedBuffer{b: bytes.Clone(b)}, opts)
}

// OpenShared parses b in place. The Reader never modifies b, and the
// caller must keep it unchanged until Close.
func (r *Reader) OpenShared(b []byte, opts ...Option) error {
	return r.attach(&borrowedBuffer{b: b}, opts)
}

func (r *Reader) attach(b backing, opts []Option) error {
	if r.back != nil {
		_ = r.Close() //nolint:errcheck // reopening
	}
	r.cfg = newConfig(opts)
	r.ctx = codecContexts{cfg: codec.Config{MaxDecoderMemory: r.cfg.maxDecoderMemory}}
	r.back = b
	if err := r.parse(); err != nil {
		_ = r.Close() //nolint:errcheck // already failing
		return err
	}
	return nil
}

// parse validates the fixed records and loads the central directory.
func (r *Reader) parse() error {
	size := r.back.size()
	if size < format.MinArchiveSize {
		return fmt.Errorf("%w: %d bytes", ErrFileTooSmall, size)
	}

	var head [format.HeaderSize + format.MarkerSize]byte
	if err := r.back.readAt(head[:], 0); err != nil {
		return err
	}
	version, err := format.ParseHeader(head[:])
	if err != nil {
		return fmt.Errorf("%w: header", ErrSignatureInvalid)
	}
	if version < format.MinVersion || version > format.MaxVersion {
		return fmt.Errorf("%w: version %d", ErrVersionIncompatible, version)
	}
	if !format.CheckSignature(head[format.HeaderSize:], format.SigDataMarker) {
		return fmt.Errorf("%w: data marker", ErrSignatureInvalid)
	}

	endPos := size - format.EndRecordSize
	var end [format.EndRecordSize]byte
	if err := r.back.readAt(end[:], endPos); err != nil {
		return err
	}
	dirOffset, err := format.ParseEndRecord(end[:])
	if err != nil {
		return fmt.Errorf("%w: end record", ErrSignatureInvalid)
	}
	dataStart := uint64(format.HeaderSize + format.MarkerSize)
	if dirOffset < dataStart || dirOffset >= uint64(endPos) {
		return fmt.Errorf("%w: directory offset %d out of bounds", ErrReadFailed, dirOffset)
	}
	left := uint64(endPos) - dirOffset
	if left < format.DirHeaderSize {
		return fmt.Errorf("%w: directory header truncated", ErrReadFailed)
	}

	var dh [format.DirHeaderSize]byte
	if err := r.back.readAt(dh[:], int64(dirOffset)); err != nil { //nolint:gosec // bounded by size
		return err
	}
	hdr, err := format.ParseDirHeader(dh[:])
	if err != nil {
		return fmt.Errorf("%w: directory", ErrSignatureInvalid)
	}
	left -= format.DirHeaderSize
	if hdr.BlockSize > left {
		return fmt.Errorf("%w: block size %d exceeds %d remaining bytes", ErrBlockSizeInvalid, hdr.BlockSize, left)
	}
	if minBlock, ok := sizing.MulUint64(hdr.Count, format.EntryFixedSize); !ok || minBlock > hdr.BlockSize {
		return fmt.Errorf("%w: %d entries do not fit %d bytes", ErrBlockSizeInvalid, hdr.Count, hdr.BlockSize)
	}

	block := make([]byte, hdr.BlockSize)
	if err := r.back.readAt(block, int64(dirOffset)+format.DirHeaderSize); err != nil { //nolint:gosec // bounded by size
		return err
	}

	entries := make([]FileEntry, 0, hdr.Count)
	index := make(map[string]int, hdr.Count)
	var compTotal, uncompTotal uint64
	p := block
	for i := uint64(0); i < hdr.Count; i++ {
		rec, n, err := format.ParseEntry(p)
		if err != nil {
			return fmt.Errorf("%w: entry %d truncated", ErrBlockSizeInvalid, i)
		}
		p = p[n:]
		var ok1, ok2 bool
		compTotal, ok1 = sizing.AddUint64(compTotal, rec.CompSize)
		uncompTotal, ok2 = sizing.AddUint64(uncompTotal, rec.UncompSize)
		if !ok1 || !ok2 {
			return fmt.Errorf("%w: size totals overflow", ErrFileSizeInvalid)
		}
		if _, dup := index[rec.Name]; !dup {
			index[rec.Name] = len(entries)
		}
		entries = append(entries, entryFromRecord(&rec))
	}
	if len(p) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrBlockSizeInvalid, len(p))
	}

	r.version = version
	r.entries = entries
	r.index = index
	r.compSize = compTotal
	r.uncompSize = uncompTotal
	return nil
}

// IsOpen reports whether the Reader holds a parsed archive.
func (r *Reader) IsOpen() bool { return r.back != nil }

// Version returns the format version of the open archive.
func (r *Reader) Version() uint16 { return r.version }

// Size returns the archive size in bytes.
func (r *Reader) Size() int64 {
	if r.back == nil {
		return 0
	}
	return r.back.size()
}

// Len returns the number of entries.
func (r *Reader) Len() int { return len(r.entries) }

// Entries returns a copy of the entry table in archive order.
func (r *Reader) Entries() []FileEntry { return slices.Clone(r.entries) }

// Entry returns the first entry named name.
func (r *Reader) Entry(name string) (*FileEntry, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	e := r.entries[i]
	return &e, true
}

// CompressedSize is the sum of the compressed sizes of all entries.
func (r *Reader) CompressedSize() uint64 { return r.compSize }

// UncompressedSize is the sum of the uncompressed sizes of all entries.
func (r *Reader) UncompressedSize() uint64 { return r.uncompSize }

// checkRange verifies the entry's data lies inside the archive.
func (r *Reader) checkRange(e *FileEntry) error {
	end, ok := sizing.AddUint64(e.Offset, e.CompSize)
	if !ok || end > uint64(r.back.size()) { //nolint:gosec // size is non-negative
		return fmt.Errorf("%w: %s [%d,+%d)", ErrFileOffsetInvalid, e.Filename, e.Offset, e.CompSize)
	}
	return nil
}

// ReadRaw copies up to len(dst) bytes of the entry's compressed data into
// dst and returns the number of bytes copied.
func (r *Reader) ReadRaw(e *FileEntry, dst []byte) (int, error) {
	if r.back == nil {
		return 0, ErrNotOpened
	}
	if err := r.checkRange(e); err != nil {
		return 0, err
	}
	n := len(dst)
	if uint64(n) > e.CompSize {
		n = int(e.CompSize) //nolint:gosec // smaller than len(dst)
	}
	if err := r.back.readAt(dst[:n], int64(e.Offset)); err != nil { //nolint:gosec // checked by checkRange
		return 0, err
	}
	return n, nil
}

// rawData returns the entry's compressed bytes, aliasing memory backings
// and reading file backings into reusable scratch.
func (r *Reader) rawData(e *FileEntry) ([]byte, error) {
	if err := r.checkRange(e); err != nil {
		return nil, err
	}
	off, n := int64(e.Offset), int64(e.CompSize) //nolint:gosec // checked by checkRange
	if b, ok := r.back.view(off, n); ok {
		return b, nil
	}
	size, err := sizing.ToInt(e.CompSize, ErrAllocFailed)
	if err != nil {
		return nil, err
	}
	if cap(r.scratch) < size {
		r.scratch = make([]byte, size)
	}
	buf := r.scratch[:size]
	if err := r.back.readAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadFile decompresses the entry into dst, verifies its hash and returns
// the number of bytes written. dst must hold at least UncompSize bytes.
func (r *Reader) ReadFile(e *FileEntry, dst []byte) (int, error) {
	if r.back == nil {
		return 0, ErrNotOpened
	}
	if uint64(len(dst)) < e.UncompSize {
		return 0, fmt.Errorf("%w: %s needs %d bytes", ErrBufferTooSmall, e.Filename, e.UncompSize)
	}
	_, dec, err := r.ctx.decompressor(e.Method)
	if err != nil {
		return 0, err
	}
	if e.Method == MethodNone && e.CompSize != e.UncompSize {
		return 0, fmt.Errorf("%w: %s stored with %d of %d bytes", ErrFileSizeInvalid, e.Filename, e.CompSize, e.UncompSize)
	}
	raw, err := r.rawData(e)
	if err != nil {
		return 0, err
	}

	out := dst[:e.UncompSize]
	n, err := dec.Decompress(out, raw)
	if err != nil {
		dec.Reset()
		return 0, decodeError(e, err)
	}
	if uint64(n) != e.UncompSize { //nolint:gosec // n is non-negative
		return 0, fmt.Errorf("%w: %s produced %d of %d bytes", ErrFileIncomplete, e.Filename, n, e.UncompSize)
	}
	if xxh3.Hash(out) != e.Hash {
		return 0, fmt.Errorf("%w: %s", ErrFileHashMismatch, e.Filename)
	}
	return n, nil
}

// ReadAll allocates a buffer for the entry and reads it with ReadFile.
// Entries larger than the configured maximum file size are rejected.
func (r *Reader) ReadAll(e *FileEntry) ([]byte, error) {
	if r.back == nil {
		return nil, ErrNotOpened
	}
	if r.cfg.maxFileSize > 0 && e.UncompSize > r.cfg.maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileSizeInvalid, e.Filename, e.UncompSize, r.cfg.maxFileSize)
	}
	size, err := sizing.ToInt(e.UncompSize, ErrAllocFailed)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := r.ReadFile(e, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadFileStream advances the streaming decode of e by one step.
//
// Each call pulls the next chunk of compressed data behind any read-back
// already in the input window, decodes into the free part of the output
// window and hashes what was produced. When the last byte has been
// produced the hash is checked and s.Done reports true. Callers loop until
// Done, consuming s.Output and calling s.Rewind between calls.
func (r *Reader) ReadFileStream(e *FileEntry, s *Stream) error {
	if r.back == nil {
		return ErrNotOpened
	}
	if !s.valid() {
		return fmt.Errorf("%w: empty window", ErrStreamInvalid)
	}
	if s.finished {
		return nil
	}
	if s.outLen == len(s.out) {
		return fmt.Errorf("%w: output window full", ErrStreamInvalid)
	}
	_, dec, err := r.ctx.decompressor(e.Method)
	if err != nil {
		return err
	}
	if !s.started {
		if err := r.checkRange(e); err != nil {
			return err
		}
		if e.Method == MethodNone && e.CompSize != e.UncompSize {
			return fmt.Errorf("%w: %s stored with %d of %d bytes", ErrFileSizeInvalid, e.Filename, e.CompSize, e.UncompSize)
		}
		dec.Reset()
		s.Reset()
		s.started = true
	}

	s.compact()
	pulled := 0
	if want := e.CompSize - s.totalIn; want > 0 && s.inEnd < len(s.in) {
		n := len(s.in) - s.inEnd
		if uint64(n) > want {
			n = int(want) //nolint:gosec // smaller than n
		}
		off := int64(e.Offset + s.totalIn) //nolint:gosec // checked by checkRange
		if err := r.back.readAt(s.in[s.inEnd:s.inEnd+n], off); err != nil {
			dec.Reset()
			return err
		}
		s.inEnd += n
		s.totalIn += uint64(n)
		pulled = n
	}
	final := s.totalIn == e.CompSize

	dst := s.out[s.outLen:]
	consumed, produced, err := dec.Update(dst, s.in[s.inStart:s.inEnd], final)
	if produced > 0 {
		_, _ = s.hash.Write(dst[:produced]) //nolint:errcheck // hash writes never fail
	}
	s.inStart += consumed
	s.outLen += produced
	s.totalOut += uint64(produced) //nolint:gosec // produced is non-negative
	if err != nil {
		dec.Reset()
		return decodeError(e, err)
	}

	switch {
	case s.totalOut > e.UncompSize:
		dec.Reset()
		return fmt.Errorf("%w: %s decoded past %d bytes", ErrFileSizeInvalid, e.Filename, e.UncompSize)
	case s.totalOut == e.UncompSize:
		if s.hash.Sum64() != e.Hash {
			dec.Reset()
			return fmt.Errorf("%w: %s", ErrFileHashMismatch, e.Filename)
		}
		s.finished = true
	case consumed == 0 && produced == 0 && (final || pulled == 0):
		dec.Reset()
		return fmt.Errorf("%w: %s stalled at %d of %d bytes", ErrFileIncomplete, e.Filename, s.totalOut, e.UncompSize)
	}
	return nil
}

func decodeError(e *FileEntry, err error) error {
	switch {
	case errors.Is(err, codec.ErrInputIncomplete):
		return fmt.Errorf("%w: %s: %v", ErrFileIncomplete, e.Filename, err)
	case errors.Is(err, codec.ErrBufferTooSmall):
		return fmt.Errorf("%w: %s decodes past %d bytes", ErrFileSizeInvalid, e.Filename, e.UncompSize)
	case errors.Is(err, codec.ErrChecksumMismatch):
		return fmt.Errorf("%w: %s: %v", ErrFileHashMismatch, e.Filename, err)
	default:
		return fmt.Errorf("%w: %s", err, e.Filename)
	}
}

// Close releases the backing store, codec contexts and entry table. A
// borrowed buffer or io.ReaderAt is left untouched.
func (r *Reader) Close() error {
	if r.back == nil {
		return nil
	}
	err := r.back.release()
	if cerr := r.ctx.close(); err == nil {
		err = cerr
	}
	*r = Reader{}
	return err
}
