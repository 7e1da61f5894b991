package zpack

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/meigma/zpack/codec"
	"github.com/meigma/zpack/internal/format"
)

// Method identifies the compression algorithm of an entry.
type Method = codec.Method

// Compression methods.
const (
	MethodZstd = codec.Zstd
	MethodLZ4  = codec.LZ4
	MethodNone = codec.None
)

// Format constants.
const (
	// Version is the archive format version written by default.
	Version = format.Version

	// MaxFilenameLen is the longest filename, in bytes, an archive can hold.
	MaxFilenameLen = format.MaxFilenameLen

	// MinArchiveSize is the size of an archive with no files.
	MinArchiveSize = format.MinArchiveSize
)

// FileEntry describes one file in an archive.
type FileEntry struct {
	// Filename is the slash-separated name of the file.
	Filename string

	// Offset is the position of the compressed data from the start of the archive.
	Offset uint64

	// CompSize is the length of the compressed data.
	CompSize uint64

	// UncompSize is the length of the original content.
	UncompSize uint64

	// Hash is the XXH3-64 digest of the original content.
	Hash uint64

	// Method is the codec the data was compressed with.
	Method Method
}

func (e *FileEntry) record() format.Entry {
	return format.Entry{
		Name:       e.Filename,
		Offset:     e.Offset,
		CompSize:   e.CompSize,
		UncompSize: e.UncompSize,
		Hash:       e.Hash,
		Method:     uint8(e.Method),
	}
}

func entryFromRecord(rec *format.Entry) FileEntry {
	return FileEntry{
		Filename:   rec.Name,
		Offset:     rec.Offset,
		CompSize:   rec.CompSize,
		UncompSize: rec.UncompSize,
		Hash:       rec.Hash,
		Method:     Method(rec.Method),
	}
}

// CompressOptions selects the codec and level for a file write.
type CompressOptions struct {
	Method Method

	// Level is passed to the codec. Zero selects the codec default.
	Level int
}

// DefaultCompressOptions is zstd at its default level.
var DefaultCompressOptions = CompressOptions{Method: MethodZstd, Level: codec.ZstdDefaultLevel}

// ParseCompressOptions parses "method" or "method:level", e.g. "zstd:19",
// "lz4" or "store".
func ParseCompressOptions(s string) (CompressOptions, error) {
	name, lvl, hasLevel := strings.Cut(s, ":")
	m, err := codec.ParseMethod(name)
	if err != nil {
		return CompressOptions{}, fmt.Errorf("%w: %w", ErrMethodInvalid, err)
	}
	opts := CompressOptions{Method: m}
	if hasLevel {
		n, err := strconv.Atoi(strings.TrimSpace(lvl))
		if err != nil {
			return CompressOptions{}, fmt.Errorf("%w: level %q", ErrMethodInvalid, lvl)
		}
		opts.Level = n
	}
	return opts, nil
}

// String formats o the way ParseCompressOptions accepts it.
func (o CompressOptions) String() string {
	if o.Level == 0 {
		return o.Method.String()
	}
	return o.Method.String() + ":" + strconv.Itoa(o.Level)
}

func (o CompressOptions) level(c codec.Codec) int {
	if o.Level == 0 {
		return c.DefaultLevel()
	}
	return o.Level
}

// File is a named buffer for [Writer.WriteArchive].
type File struct {
	Name string
	Data []byte
	// Options overrides the archive-wide options when non-nil.
	Options *CompressOptions
}
