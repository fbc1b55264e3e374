package volume

import (
	"context"
	"errors"
	"fmt"
	"iter"

	metadata "github.com/utxob/Data-Recover-toll/FS"
	"github.com/utxob/Data-Recover-toll/readers"
	"github.com/utxob/Data-Recover-toll/tree"
)

var ErrUnknownVolume = errors.New("no known volume (supported NTFS FAT32)")

// Volume walks the bookkeeping structures of one filesystem.
type Volume interface {
	Process(ctx context.Context, hD readers.DiskReader, partitionOffsetB int64) error
	Deleted() iter.Seq[metadata.Deleted]
	GetClusterSize() int
	GetInfo() string
	GetSignature() string
}

// resolvePaths yields the selected records one at a time, placing each in the tree.
func resolvePaths(deleted []metadata.Deleted, dirTree *tree.Tree) iter.Seq[metadata.Deleted] {
	return func(yield func(metadata.Deleted) bool) {
		if dirTree == nil {
			return
		}
		for _, rec := range deleted {
			path, depth, orphan := dirTree.Resolve(rec.Record)
			rec.Path, rec.Depth, rec.Orphan = path, depth, rec.Orphan || orphan
			if !yield(rec) {
				return
			}
		}
	}
}

// Locate identifies the filesystem from the boot sector at partitionOffsetB.
func Locate(hD readers.DiskReader, partitionOffsetB int64) (Volume, error) {
	data, err := hD.ReadFile(partitionOffsetB, 512)
	if err != nil || len(data) < 512 {
		return nil, fmt.Errorf("%w: boot sector at %d: %v", readers.ErrMediumUnreadable, partitionOffsetB, err)
	}

	ntfs := new(NTFS)
	if err := ntfs.AddVolume(data); err == nil {
		return ntfs, nil
	}
	fat := new(FAT32)
	if err := fat.AddVolume(data); err == nil {
		return fat, nil
	}
	return nil, ErrUnknownVolume
}
