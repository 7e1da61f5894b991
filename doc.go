// Package zpack reads and writes zpack archives: many named files packed
// into one file, each compressed independently and protected by a 64-bit
// content hash, with a central directory at the end.
//
// Archives are laid out as a header, a data marker, the compressed file
// data back to back, the central directory and a fixed 12-byte end record
// that points at the directory. Every integer is little-endian.
//
// # Reading
//
// Open an archive and read a file in one call:
//
//	var r zpack.Reader
//	if err := r.Open("assets.zpk"); err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	e, ok := r.Entry("config.json")
//	if !ok {
//	    return zpack.ErrFileNotFound
//	}
//	data, err := r.ReadAll(e)
//
// Large files can be streamed through fixed buffers with [Reader.ReadFileStream]
// or the [io.Reader] returned by [Reader.NewEntryReader].
//
// # Writing
//
//	var w zpack.Writer
//	if err := w.Create("assets.zpk"); err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	err := w.WriteArchive([]zpack.File{{Name: "config.json", Data: cfg}},
//	    zpack.CompressOptions{Method: zpack.MethodZstd, Level: 3})
//
// A Writer can also be driven step by step: [Writer.WriteHeader],
// [Writer.WriteDataMarker], any number of file writes or entry copies,
// [Writer.WriteDirectory] and finally [Writer.WriteEndRecord].
//
// # Concurrency
//
// A Reader or Writer must not be used from more than one goroutine at a
// time. Independent Readers over the same archive may run in parallel.
package zpack
