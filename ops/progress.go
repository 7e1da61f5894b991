package ops

// ProgressEvent represents a progress update during an operation.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the entry currently being processed, if applicable.
	Path string

	// BytesDone is the number of uncompressed bytes completed so far.
	BytesDone uint64

	// BytesTotal is the total uncompressed bytes for the operation.
	// Zero indicates the total is unknown.
	BytesTotal uint64

	// FilesDone is the number of entries completed.
	FilesDone int

	// FilesTotal is the total number of entries.
	FilesTotal int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages.
const (
	// StageEnumerating indicates input directories are being walked.
	StageEnumerating ProgressStage = iota

	// StageCompressing indicates files are being compressed and written.
	StageCompressing

	// StageCopying indicates entries are being copied from the old archive.
	StageCopying

	// StageTesting indicates entries are being decompressed and verified.
	StageTesting

	// StageExtracting indicates entries are being written to disk.
	StageExtracting
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageEnumerating:
		return "enumerating"
	case StageCompressing:
		return "compressing"
	case StageCopying:
		return "copying"
	case StageTesting:
		return "testing"
	case StageExtracting:
		return "extracting"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)
