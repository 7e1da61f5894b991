// Package format encodes and decodes the fixed binary records of a zpack
// archive. All integers are little-endian.
package format

import (
	"encoding/binary"
	"errors"
)

// Record signatures.
const (
	SigHeader     uint32 = 0x154b505a
	SigDataMarker uint32 = 0x144b505a
	SigDirectory  uint32 = 0x134b505a
	SigEndRecord  uint32 = 0x124b505a
)

// Record sizes in bytes.
const (
	SignatureSize  = 4
	HeaderSize     = SignatureSize + 2
	MarkerSize     = SignatureSize
	DirHeaderSize  = SignatureSize + 8 + 8
	EntryFixedSize = 2 + 8 + 8 + 8 + 8 + 1
	EndRecordSize  = SignatureSize + 8

	// MinArchiveSize is the smallest well-formed archive: header, data
	// marker and end record.
	MinArchiveSize = HeaderSize + MarkerSize + EndRecordSize

	// MaxFilenameLen is the largest filename the u16 length prefix can carry.
	MaxFilenameLen = 1<<16 - 1
)

// Version bounds understood by this package.
const (
	Version    uint16 = 1
	MinVersion uint16 = 1
	MaxVersion uint16 = 1
)

var (
	// ErrShortBuffer is returned when a record is decoded from too few bytes.
	ErrShortBuffer = errors.New("format: short buffer")
	// ErrBadSignature is returned when a record does not start with the expected signature.
	ErrBadSignature = errors.New("format: bad signature")
)

// PutLE16 writes v to b[0:2].
func PutLE16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }

// PutLE32 writes v to b[0:4].
func PutLE32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

// PutLE64 writes v to b[0:8].
func PutLE64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

// LE16 reads a uint16 from b[0:2].
func LE16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }

// LE32 reads a uint32 from b[0:4].
func LE32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

// LE64 reads a uint64 from b[0:8].
func LE64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

// CheckSignature reports whether b starts with sig.
func CheckSignature(b []byte, sig uint32) bool {
	return len(b) >= SignatureSize && LE32(b) == sig
}

// AppendHeader appends the archive header for version v.
func AppendHeader(dst []byte, v uint16) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, SigHeader)
	return binary.LittleEndian.AppendUint16(dst, v)
}

// ParseHeader validates the header signature and returns the version.
func ParseHeader(b []byte) (uint16, error) {
	if len(b) < HeaderSize {
		return 0, ErrShortBuffer
	}
	if !CheckSignature(b, SigHeader) {
		return 0, ErrBadSignature
	}
	return LE16(b[SignatureSize:]), nil
}

// AppendDataMarker appends the data-section marker.
func AppendDataMarker(dst []byte) []byte {
	return binary.LittleEndian.AppendUint32(dst, SigDataMarker)
}

// AppendEndRecord appends the end record pointing at the directory.
func AppendEndRecord(dst []byte, dirOffset uint64) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, SigEndRecord)
	return binary.LittleEndian.AppendUint64(dst, dirOffset)
}

// ParseEndRecord validates the end record and returns the directory offset.
func ParseEndRecord(b []byte) (uint64, error) {
	if len(b) < EndRecordSize {
		return 0, ErrShortBuffer
	}
	if !CheckSignature(b, SigEndRecord) {
		return 0, ErrBadSignature
	}
	return LE64(b[SignatureSize:]), nil
}

// DirHeader is the fixed prefix of the central directory.
type DirHeader struct {
	Count     uint64
	BlockSize uint64
}

// AppendDirHeader appends the directory signature, entry count and block size.
func AppendDirHeader(dst []byte, h DirHeader) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, SigDirectory)
	dst = binary.LittleEndian.AppendUint64(dst, h.Count)
	return binary.LittleEndian.AppendUint64(dst, h.BlockSize)
}

// ParseDirHeader validates the directory signature and decodes its header.
func ParseDirHeader(b []byte) (DirHeader, error) {
	if len(b) < DirHeaderSize {
		return DirHeader{}, ErrShortBuffer
	}
	if !CheckSignature(b, SigDirectory) {
		return DirHeader{}, ErrBadSignature
	}
	return DirHeader{
		Count:     LE64(b[4:]),
		BlockSize: LE64(b[12:]),
	}, nil
}

// Entry is one directory record.
type Entry struct {
	Name       string
	Offset     uint64
	CompSize   uint64
	UncompSize uint64
	Hash       uint64
	Method     uint8
}

// EncodedSize returns the number of bytes e occupies in the directory.
func (e *Entry) EncodedSize() int {
	return EntryFixedSize + len(e.Name)
}

// AppendEntry appends e in directory layout. The caller ensures the name
// fits in MaxFilenameLen.
func AppendEntry(dst []byte, e *Entry) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(e.Name))) //nolint:gosec // checked by caller
	dst = append(dst, e.Name...)
	dst = binary.LittleEndian.AppendUint64(dst, e.Offset)
	dst = binary.LittleEndian.AppendUint64(dst, e.CompSize)
	dst = binary.LittleEndian.AppendUint64(dst, e.UncompSize)
	dst = binary.LittleEndian.AppendUint64(dst, e.Hash)
	return append(dst, e.Method)
}

// ParseEntry decodes one directory record from b and returns the number of
// bytes consumed.
func ParseEntry(b []byte) (Entry, int, error) {
	if len(b) < EntryFixedSize {
		return Entry{}, 0, ErrShortBuffer
	}
	nameLen := int(LE16(b))
	size := EntryFixedSize + nameLen
	if len(b) < size {
		return Entry{}, 0, ErrShortBuffer
	}
	p := b[2:]
	e := Entry{Name: string(p[:nameLen])}
	p = p[nameLen:]
	e.Offset = LE64(p)
	e.CompSize = LE64(p[8:])
	e.UncompSize = LE64(p[16:])
	e.Hash = LE64(p[24:])
	e.Method = p[32]
	return e, size, nil
}
