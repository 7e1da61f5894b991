package ops

import (
	"context"

	"github.com/meigma/zpack"
)

// Listing is the table of contents of an archive.
type Listing struct {
	Version    uint16
	Size       int64
	Entries    []zpack.FileEntry
	CompSize   uint64
	UncompSize uint64
}

// List reads the directory of archive.
func List(ctx context.Context, archive string, opts ...Option) (Listing, error) {
	cfg := newConfig(opts)
	r, err := openArchive(ctx, archive, &cfg)
	if err != nil {
		return Listing{}, err
	}
	defer r.Close()

	return Listing{
		Version:    r.Version(),
		Size:       r.Size(),
		Entries:    r.Entries(),
		CompSize:   r.CompressedSize(),
		UncompSize: r.UncompressedSize(),
	}, nil
}
