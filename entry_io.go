package zpack

import (
	"fmt"
	"io"
)

// EntryReader streams one entry through a fixed pair of windows. The
// content hash is checked when the last byte has been produced; Read
// returns io.EOF only after a successful check.
type EntryReader struct {
	r     *Reader
	e     FileEntry
	s     *Stream
	avail []byte
	err   error
}

// NewEntryReader returns an io.Reader over the decoded content of e using
// the windows StreamBufferSizes recommends for its method.
func (r *Reader) NewEntryReader(e *FileEntry) *EntryReader {
	in, out := DefaultStreamBufferSize, DefaultStreamBufferSize
	if sizes, err := StreamBufferSizes(e.Method); err == nil {
		in, out = sizes.DecompressIn, sizes.DecompressOut
	}
	return r.NewEntryReaderBuffer(e, make([]byte, in), make([]byte, out))
}

// NewEntryReaderBuffer is NewEntryReader with caller-supplied windows.
func (r *Reader) NewEntryReaderBuffer(e *FileEntry, in, out []byte) *EntryReader {
	return &EntryReader{r: r, e: *e, s: NewStream(in, out)}
}

// Read implements io.Reader.
func (er *EntryReader) Read(p []byte) (int, error) {
	for len(er.avail) == 0 {
		if er.err != nil {
			return 0, er.err
		}
		if er.s.Done() {
			er.err = io.EOF
			return 0, io.EOF
		}
		er.s.Rewind()
		if err := er.r.ReadFileStream(&er.e, er.s); err != nil {
			er.err = err
		}
		er.avail = er.s.Output()
	}
	n := copy(p, er.avail)
	er.avail = er.avail[n:]
	return n, nil
}

// WriteTo implements io.WriterTo.
func (er *EntryReader) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for {
		if len(er.avail) > 0 {
			n, err := w.Write(er.avail)
			total += int64(n)
			er.avail = er.avail[n:]
			if err != nil {
				return total, err
			}
			continue
		}
		if er.err != nil {
			if er.err == io.EOF {
				return total, nil
			}
			return total, er.err
		}
		if er.s.Done() {
			er.err = io.EOF
			return total, nil
		}
		er.s.Rewind()
		if err := er.r.ReadFileStream(&er.e, er.s); err != nil {
			er.err = err
		}
		er.avail = er.s.Output()
	}
}

// EntryWriter compresses one entry as it is written. The entry is added to
// the archive on Close.
type EntryWriter struct {
	w      *Writer
	name   string
	opts   CompressOptions
	s      *Stream
	closed bool
	err    error
}

// CreateEntry returns a writer that streams a new entry named name into
// the archive. Only one entry can be in progress at a time, and it must be
// closed before the directory is written.
func (w *Writer) CreateEntry(name string, opts CompressOptions) (*EntryWriter, error) {
	if w.sink == nil {
		return nil, ErrNotOpened
	}
	if err := w.checkName(name); err != nil {
		return nil, err
	}
	if w.stream != nil {
		return nil, fmt.Errorf("%w: another stream is in progress", ErrStreamInvalid)
	}
	sizes, err := StreamBufferSizes(opts.Method)
	if err != nil {
		return nil, err
	}
	s := NewStream(make([]byte, sizes.CompressIn), make([]byte, sizes.CompressOut))
	if err := w.beginStream(s, opts); err != nil {
		return nil, err
	}
	return &EntryWriter{w: w, name: name, opts: opts, s: s}, nil
}

// Write implements io.Writer.
func (ew *EntryWriter) Write(p []byte) (int, error) {
	if ew.closed {
		return 0, fmt.Errorf("%w: entry closed", ErrStreamInvalid)
	}
	if ew.err != nil {
		return 0, ew.err
	}
	written := 0
	for len(p) > 0 {
		n := copy(ew.s.Input(), p)
		ew.s.Fill(n)
		p = p[n:]
		written += n
		if len(ew.s.Input()) == 0 {
			if err := ew.w.WriteFileStreamUpdate(ew.s, ew.opts); err != nil {
				ew.err = err
				return written, err
			}
		}
	}
	return written, nil
}

// Close flushes the compressor and records the entry.
func (ew *EntryWriter) Close() error {
	if ew.closed {
		return nil
	}
	ew.closed = true
	if ew.err != nil {
		return ew.err
	}
	return ew.w.WriteFileStreamEnd(ew.name, ew.s, ew.opts)
}

var (
	_ io.Reader      = (*EntryReader)(nil)
	_ io.WriterTo    = (*EntryReader)(nil)
	_ io.WriteCloser = (*EntryWriter)(nil)
)
