package zpack

import (
	"errors"

	"github.com/meigma/zpack/codec"
)

// Sentinel errors for archive operations. Wrapped errors keep the sentinel
// reachable through errors.Is.
var (
	// ErrNotOpened is returned when an operation needs an open handle.
	ErrNotOpened = errors.New("zpack: archive not opened")

	// ErrOpenFailed is returned when the archive source or destination is unusable.
	ErrOpenFailed = errors.New("zpack: open failed")

	// ErrReadFailed is returned when the backing store cannot be read or a
	// record points outside the archive.
	ErrReadFailed = errors.New("zpack: read failed")

	// ErrWriteFailed is returned when the backing store rejects a write.
	ErrWriteFailed = errors.New("zpack: write failed")

	// ErrFileTooSmall is returned for archives shorter than header, data
	// marker and end record combined.
	ErrFileTooSmall = errors.New("zpack: archive too small")

	// ErrSignatureInvalid is returned when a record signature does not match.
	ErrSignatureInvalid = errors.New("zpack: invalid signature")

	// ErrVersionIncompatible is returned for archives newer than this package understands.
	ErrVersionIncompatible = errors.New("zpack: incompatible version")

	// ErrBlockSizeInvalid is returned when the directory block size disagrees
	// with the archive size or its entries.
	ErrBlockSizeInvalid = errors.New("zpack: invalid directory block size")

	// ErrFileOffsetInvalid is returned when an entry's data lies outside the archive.
	ErrFileOffsetInvalid = errors.New("zpack: invalid file offset")

	// ErrFileSizeInvalid is returned when entry sizes are inconsistent with
	// the method or exceed configured limits.
	ErrFileSizeInvalid = errors.New("zpack: invalid file size")

	// ErrIllegalFilename is returned for empty, absolute or traversing filenames.
	ErrIllegalFilename = errors.New("zpack: illegal filename")

	// ErrFilenameTooLong is returned for filenames over 65535 bytes.
	ErrFilenameTooLong = errors.New("zpack: filename too long")

	// ErrDuplicateFilename is returned when a writer already holds an entry
	// with the same name.
	ErrDuplicateFilename = errors.New("zpack: duplicate filename")

	// ErrFileNotFound is returned when a named entry does not exist.
	ErrFileNotFound = errors.New("zpack: file not found")

	// ErrMethodInvalid is returned for entries whose method has no codec.
	ErrMethodInvalid = errors.New("zpack: invalid compression method")

	// ErrAllocFailed is returned when a buffer cannot be sized for an entry.
	ErrAllocFailed = errors.New("zpack: allocation failed")

	// ErrStreamInvalid is returned when a stream cursor is unusable for the call.
	ErrStreamInvalid = errors.New("zpack: invalid stream")

	// ErrFileIncomplete is returned when compressed data ends before the
	// declared uncompressed size is reached.
	ErrFileIncomplete = errors.New("zpack: file incomplete")

	// ErrFileHashMismatch is returned when decoded content does not match its hash.
	ErrFileHashMismatch = errors.New("zpack: file hash mismatch")

	// ErrNotAvailable is returned for operations the backing does not support.
	ErrNotAvailable = errors.New("zpack: not available")
)

// Codec errors re-exported from the codec package.
var (
	// ErrBufferTooSmall is returned when the destination cannot hold the output.
	ErrBufferTooSmall = codec.ErrBufferTooSmall

	// ErrCompressFailed is returned when compression fails.
	ErrCompressFailed = codec.ErrCompressFailed

	// ErrDecompressFailed is returned when compressed data is malformed.
	ErrDecompressFailed = codec.ErrDecompressFailed
)

// Kind groups errors by the layer that produced them.
type Kind uint8

const (
	// KindNone is the kind of a nil error.
	KindNone Kind = iota
	// KindNotOpened covers calls on closed handles.
	KindNotOpened
	// KindIO covers failures at the file or buffer boundary.
	KindIO
	// KindFormat covers malformed archives and rejected filenames.
	KindFormat
	// KindResource covers allocation and size limit failures.
	KindResource
	// KindCodec covers compression library failures.
	KindCodec
	// KindIntegrity covers content hash mismatches.
	KindIntegrity
	// KindOther covers errors from outside this package.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotOpened:
		return "not-opened"
	case KindIO:
		return "io"
	case KindFormat:
		return "format"
	case KindResource:
		return "resource"
	case KindCodec:
		return "codec"
	case KindIntegrity:
		return "integrity"
	default:
		return "other"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrNotOpened, KindNotOpened},
	{ErrFileHashMismatch, KindIntegrity},
	{ErrOpenFailed, KindIO},
	{ErrReadFailed, KindIO},
	{ErrWriteFailed, KindIO},
	{ErrNotAvailable, KindIO},
	{ErrFileTooSmall, KindFormat},
	{ErrSignatureInvalid, KindFormat},
	{ErrVersionIncompatible, KindFormat},
	{ErrBlockSizeInvalid, KindFormat},
	{ErrFileOffsetInvalid, KindFormat},
	{ErrFileSizeInvalid, KindFormat},
	{ErrIllegalFilename, KindFormat},
	{ErrFilenameTooLong, KindFormat},
	{ErrDuplicateFilename, KindFormat},
	{ErrFileNotFound, KindFormat},
	{ErrMethodInvalid, KindFormat},
	{ErrStreamInvalid, KindFormat},
	{ErrAllocFailed, KindResource},
	{ErrBufferTooSmall, KindCodec},
	{ErrCompressFailed, KindCodec},
	{ErrDecompressFailed, KindCodec},
	{ErrFileIncomplete, KindCodec},
	{codec.ErrChecksumMismatch, KindIntegrity},
	{codec.ErrInputIncomplete, KindCodec},
	{codec.ErrUnknownMethod, KindCodec},
}

// KindOf classifies err.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindOther
}
