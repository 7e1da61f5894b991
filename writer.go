package zpack

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/zeebo/xxh3"

	"github.com/meigma/zpack/internal/format"
	"github.com/meigma/zpack/internal/membuf"
	"github.com/meigma/zpack/internal/pathutil"
	"github.com/meigma/zpack/internal/sizing"
)

// copyChunkSize bounds the buffer used to copy raw entry data.
const copyChunkSize = 256 << 10

// Writer produces an archive.
//
// A valid archive needs, in order: WriteHeader, WriteDataMarker, any
// number of file writes or entry copies, WriteDirectory and WriteEndRecord.
// The order is not enforced so callers can compose rewrite flows from the
// individual steps. The zero value is a closed Writer.
type Writer struct {
	cfg  config
	sink sink

	entries    []FileEntry
	names      map[string]struct{}
	compSize   uint64
	uncompSize uint64
	dirOffset  uint64

	ctx     codecContexts
	scratch []byte
	stream  *Stream
}

// Create creates or truncates the file at path and writes the archive to it.
func (w *Writer) Create(path string, opts ...Option) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	w.attach(&fileSink{f: f}, opts)
	w.cfg.log().Debug("created archive", "path", path)
	return nil
}

// CreateFile truncates f and writes the archive to it. The Writer takes
// ownership of f and closes it on Close, including when CreateFile fails.
func (w *Writer) CreateFile(f *os.File, opts ...Option) error {
	if err := f.Truncate(0); err != nil {
		_ = f.Close() //nolint:errcheck // already failing
		return fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close() //nolint:errcheck // already failing
		return fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	w.attach(&fileSink{f: f}, opts)
	return nil
}

// CreateHeap writes the archive to memory. The buffer starts at the next
// power of two no smaller than initial and doubles as needed; see Bytes.
func (w *Writer) CreateHeap(initial int, opts ...Option) error {
	w.attach(&heapSink{buf: membuf.New(initial)}, opts)
	return nil
}

func (w *Writer) attach(s sink, opts []Option) {
	if w.sink != nil {
		_ = w.Close() //nolint:errcheck // reopening
	}
	w.cfg = newConfig(opts)
	w.sink = s
	w.names = make(map[string]struct{})
}

// IsOpen reports whether the Writer has a destination.
func (w *Writer) IsOpen() bool { return w.sink != nil }

// Offset returns the current write offset.
func (w *Writer) Offset() uint64 {
	if w.sink == nil {
		return 0
	}
	return w.sink.size()
}

// Len returns the number of entries written so far.
func (w *Writer) Len() int { return len(w.entries) }

// Entries returns a copy of the entry table.
func (w *Writer) Entries() []FileEntry { return slices.Clone(w.entries) }

// Has reports whether an entry named name has been written.
func (w *Writer) Has(name string) bool {
	_, ok := w.names[name]
	return ok
}

// CompressedSize is the sum of compressed sizes of the entries written.
func (w *Writer) CompressedSize() uint64 { return w.compSize }

// UncompressedSize is the sum of uncompressed sizes of the entries written.
func (w *Writer) UncompressedSize() uint64 { return w.uncompSize }

// Bytes returns the archive written to a heap Writer. The slice is only
// valid until the next write or Close.
func (w *Writer) Bytes() []byte {
	if w.sink == nil {
		return nil
	}
	b, _ := w.sink.bytes()
	return b
}

func (w *Writer) emit(p []byte) error {
	if w.sink == nil {
		return ErrNotOpened
	}
	return w.sink.write(p)
}

// WriteHeader writes the archive header for the current format version.
func (w *Writer) WriteHeader() error {
	return w.WriteHeaderVersion(Version)
}

// WriteHeaderVersion writes an archive header declaring version v.
func (w *Writer) WriteHeaderVersion(v uint16) error {
	return w.emit(format.AppendHeader(nil, v))
}

// WriteDataMarker writes the marker that opens the data section.
func (w *Writer) WriteDataMarker() error {
	return w.emit(format.AppendDataMarker(nil))
}

// ValidateFilename checks name against the archive filename rules.
func ValidateFilename(name string) error {
	if len(name) > format.MaxFilenameLen {
		return fmt.Errorf("%w: %d bytes", ErrFilenameTooLong, len(name))
	}
	if err := pathutil.Validate(name); err != nil {
		return fmt.Errorf("%w: %q", ErrIllegalFilename, name)
	}
	return nil
}

func (w *Writer) checkName(name string) error {
	if err := ValidateFilename(name); err != nil {
		return err
	}
	if w.Has(name) {
		return fmt.Errorf("%w: %s", ErrDuplicateFilename, name)
	}
	return nil
}

func (w *Writer) appendEntry(e FileEntry) {
	w.entries = append(w.entries, e)
	w.names[e.Filename] = struct{}{}
	w.compSize += e.CompSize
	w.uncompSize += e.UncompSize
}

// WriteFile compresses data in one call and appends it as name.
func (w *Writer) WriteFile(name string, data []byte, opts CompressOptions) error {
	if w.sink == nil {
		return ErrNotOpened
	}
	if w.stream != nil {
		return fmt.Errorf("%w: file stream not ended", ErrStreamInvalid)
	}
	if err := w.checkName(name); err != nil {
		return err
	}
	cd, comp, err := w.ctx.compressor(opts.Method)
	if err != nil {
		return err
	}

	bound := cd.CompressBound(len(data))
	if cap(w.scratch) < bound {
		w.scratch = make([]byte, bound)
	}
	n, err := comp.Compress(w.scratch[:bound], data, opts.level(cd))
	if err != nil {
		comp.Reset()
		return fmt.Errorf("%w: %s", err, name)
	}

	offset := w.sink.size()
	if err := w.sink.write(w.scratch[:n]); err != nil {
		return err
	}
	w.appendEntry(FileEntry{
		Filename:   name,
		Offset:     offset,
		CompSize:   uint64(n),         //nolint:gosec // n is non-negative
		UncompSize: uint64(len(data)), //nolint:gosec // len is non-negative
		Hash:       xxh3.Hash(data),
		Method:     opts.Method,
	})
	w.cfg.log().Debug("wrote file", "name", name, "method", opts.Method.String(), "size", len(data), "compressed", n)
	return nil
}

// beginStream binds s to this Writer's compressor for opts on first use.
func (w *Writer) beginStream(s *Stream, opts CompressOptions) error {
	if s.started {
		if w.stream != s {
			return fmt.Errorf("%w: stream belongs to another file", ErrStreamInvalid)
		}
		if s.method != opts.Method {
			return fmt.Errorf("%w: method changed mid-stream", ErrStreamInvalid)
		}
		return nil
	}
	if w.stream != nil && w.stream != s {
		return fmt.Errorf("%w: another stream is in progress", ErrStreamInvalid)
	}
	cd, comp, err := w.ctx.compressor(opts.Method)
	if err != nil {
		return err
	}
	level := opts.level(cd)
	if err := comp.Begin(level); err != nil {
		return err
	}
	pending := s.in[s.inStart:s.inEnd]
	s.hash.Reset()
	s.totalIn, s.totalOut, s.outLen = 0, 0, 0
	s.inStart, s.inEnd = 0, copy(s.in, pending)
	s.started, s.finished = true, false
	s.method, s.level = opts.Method, level
	w.stream = s
	return nil
}

// abortStream drops the in-progress stream after an error.
func (w *Writer) abortStream(s *Stream) {
	if _, comp, err := w.ctx.compressor(s.method); err == nil {
		comp.Reset()
	}
	s.Reset()
	w.stream = nil
}

// WriteFileStreamUpdate compresses every byte buffered in the stream's
// input window and writes the output straight to the archive.
func (w *Writer) WriteFileStreamUpdate(s *Stream, opts CompressOptions) error {
	if w.sink == nil {
		return ErrNotOpened
	}
	if !s.valid() {
		return fmt.Errorf("%w: empty window", ErrStreamInvalid)
	}
	if err := w.beginStream(s, opts); err != nil {
		return err
	}
	_, comp, err := w.ctx.compressor(s.method)
	if err != nil {
		return err
	}
	for s.inStart < s.inEnd {
		src := s.in[s.inStart:s.inEnd]
		consumed, produced, err := comp.Update(s.out, src)
		if err != nil {
			w.abortStream(s)
			return err
		}
		if produced > 0 {
			if err := w.sink.write(s.out[:produced]); err != nil {
				w.abortStream(s)
				return err
			}
			s.totalOut += uint64(produced) //nolint:gosec // produced is non-negative
		}
		if consumed > 0 {
			_, _ = s.hash.Write(src[:consumed]) //nolint:errcheck // hash writes never fail
			s.totalIn += uint64(consumed)       //nolint:gosec // consumed is non-negative
			s.inStart += consumed
		}
	}
	s.inStart, s.inEnd = 0, 0
	return nil
}

// WriteFileStreamEnd flushes the stream, then records the entry as name.
// The entry only becomes part of the archive once this call succeeds.
func (w *Writer) WriteFileStreamEnd(name string, s *Stream, opts CompressOptions) error {
	if w.sink == nil {
		return ErrNotOpened
	}
	if err := w.checkName(name); err != nil {
		if s.started && w.stream == s {
			w.abortStream(s)
		}
		return err
	}
	if err := w.WriteFileStreamUpdate(s, opts); err != nil {
		return err
	}
	_, comp, err := w.ctx.compressor(s.method)
	if err != nil {
		return err
	}
	for {
		produced, flushed, err := comp.End(s.out)
		if err != nil {
			w.abortStream(s)
			return err
		}
		if produced > 0 {
			if err := w.sink.write(s.out[:produced]); err != nil {
				w.abortStream(s)
				return err
			}
			s.totalOut += uint64(produced) //nolint:gosec // produced is non-negative
		}
		if flushed {
			break
		}
	}

	e := FileEntry{
		Filename:   name,
		Offset:     w.sink.size() - s.totalOut,
		CompSize:   s.totalOut,
		UncompSize: s.totalIn,
		Hash:       s.hash.Sum64(),
		Method:     s.method,
	}
	w.appendEntry(e)
	w.cfg.log().Debug("wrote file stream", "name", name, "method", e.Method.String(), "size", e.UncompSize, "compressed", e.CompSize)
	s.started, s.finished = false, true
	w.stream = nil
	return nil
}

// CopyEntry copies e's compressed bytes from r without recompressing and
// appends an identical entry at the new offset.
func (w *Writer) CopyEntry(r *Reader, e *FileEntry) error {
	return w.CopyEntryAs(r, e, e.Filename)
}

// CopyEntryAs is CopyEntry under a different filename.
func (w *Writer) CopyEntryAs(r *Reader, e *FileEntry, name string) error {
	if w.sink == nil || !r.IsOpen() {
		return ErrNotOpened
	}
	if w.stream != nil {
		return fmt.Errorf("%w: file stream not ended", ErrStreamInvalid)
	}
	if err := w.checkName(name); err != nil {
		return err
	}
	if err := r.checkRange(e); err != nil {
		return err
	}

	chunk := copyChunkSize
	if e.CompSize < uint64(chunk) {
		chunk = int(e.CompSize) //nolint:gosec // smaller than copyChunkSize
	}
	if cap(w.scratch) < chunk {
		w.scratch = make([]byte, chunk)
	}
	buf := w.scratch[:chunk]

	offset := w.sink.size()
	part := *e
	for part.CompSize > 0 {
		n, err := r.ReadRaw(&part, buf)
		if err != nil {
			return err
		}
		if err := w.sink.write(buf[:n]); err != nil {
			return err
		}
		part.Offset += uint64(n)   //nolint:gosec // n is non-negative
		part.CompSize -= uint64(n) //nolint:gosec // n is non-negative
	}

	copied := *e
	copied.Filename = name
	copied.Offset = offset
	w.appendEntry(copied)
	return nil
}

// CopyEntries copies each entry with CopyEntry, stopping at the first error.
func (w *Writer) CopyEntries(r *Reader, entries []FileEntry) error {
	for i := range entries {
		if err := w.CopyEntry(r, &entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// WriteDirectory writes the central directory for every entry so far and
// remembers its offset for WriteEndRecord.
func (w *Writer) WriteDirectory() error {
	if w.sink == nil {
		return ErrNotOpened
	}
	if w.stream != nil {
		return fmt.Errorf("%w: file stream not ended", ErrStreamInvalid)
	}
	records := make([]format.Entry, len(w.entries))
	var block uint64
	for i := range w.entries {
		records[i] = w.entries[i].record()
		if len(records[i].Name) > format.MaxFilenameLen {
			return fmt.Errorf("%w: %d bytes", ErrFilenameTooLong, len(records[i].Name))
		}
		block += uint64(records[i].EncodedSize()) //nolint:gosec // non-negative
	}
	size, err := sizing.ToInt(block+format.DirHeaderSize, ErrAllocFailed)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, size)
	buf = format.AppendDirHeader(buf, format.DirHeader{Count: uint64(len(records)), BlockSize: block})
	for i := range records {
		buf = format.AppendEntry(buf, &records[i])
	}

	offset := w.sink.size()
	if err := w.sink.write(buf); err != nil {
		return err
	}
	w.dirOffset = offset
	return nil
}

// WriteEndRecord writes the trailer pointing at the directory.
func (w *Writer) WriteEndRecord() error {
	return w.emit(format.AppendEndRecord(nil, w.dirOffset))
}

// WriteArchive writes a complete archive holding files. Each file uses its
// own options when set and opts otherwise.
func (w *Writer) WriteArchive(files []File, opts CompressOptions) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	if err := w.WriteDataMarker(); err != nil {
		return err
	}
	for i := range files {
		o := opts
		if files[i].Options != nil {
			o = *files[i].Options
		}
		if err := w.WriteFile(files[i].Name, files[i].Data, o); err != nil {
			return err
		}
	}
	if err := w.WriteDirectory(); err != nil {
		return err
	}
	return w.WriteEndRecord()
}

// Close releases the destination, codec contexts and entry table. For
// files, Close reports any error from closing the file.
func (w *Writer) Close() error {
	if w.sink == nil {
		return nil
	}
	err := w.sink.release()
	err = errors.Join(err, w.ctx.close())
	*w = Writer{}
	return err
}
