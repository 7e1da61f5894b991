package codec

import "errors"

// Sentinel errors for codec operations.
var (
	// ErrBufferTooSmall is returned when output does not fit the destination.
	ErrBufferTooSmall = errors.New("codec: buffer too small")

	// ErrCompressFailed is returned when the compression library reports an error.
	ErrCompressFailed = errors.New("codec: compression failed")

	// ErrDecompressFailed is returned when compressed input is malformed.
	ErrDecompressFailed = errors.New("codec: decompression failed")

	// ErrChecksumMismatch is returned when a frame carries a checksum that
	// does not match the decoded data.
	ErrChecksumMismatch = errors.New("codec: frame checksum mismatch")

	// ErrInputIncomplete is returned when the final input ends mid-stream.
	ErrInputIncomplete = errors.New("codec: compressed input incomplete")

	// ErrUnknownMethod is returned for methods with no registered codec.
	ErrUnknownMethod = errors.New("codec: unknown method")

	// ErrNotStarted is returned when Update or End is called without Begin.
	ErrNotStarted = errors.New("codec: stream not started")
)
