package metadata

import (
	"cmp"
	"errors"
	"slices"
	"time"

	"github.com/utxob/Data-Recover-toll/utils"
)

var (
	// ErrStructureInvalid marks a filesystem entry that failed a checksum or
	// self-consistency check, the walk skips it.
	ErrStructureInvalid = errors.New("filesystem structure invalid")
	// ErrPartial marks a reconstruction that could not reproduce every byte.
	ErrPartial = errors.New("partial reconstruction")
)

// Extent is a contiguous byte range on the medium. Sparse extents hold no data
// and reconstruct as zeros.
type Extent struct {
	Offset int64
	Length int64
	Sparse bool
}

func (extent Extent) End() int64 {
	return extent.Offset + extent.Length
}

// Record is the extent-yielding capability shared by every filesystem family.
type Record interface {
	GetID() int64
	GetParentID() int64
	GetFname() string
	GetLogicalFileSize() int64
	IsDeleted() bool
	IsFolder() bool
	GetModifiedTime() time.Time
	GetExtents() []Extent
	GetResidentData() []byte
	IsResident() bool
	GetFilesystem() string
}

// Deleted is a record the walker surfaced for recovery.
type Deleted struct {
	Record    Record
	Path      string
	Depth     int
	Overlaps  []int64 // IDs of surfaced records sharing bytes with this one
	Orphan    bool
	Partition int
	Sequence  int
}

func (deleted Deleted) GetFname() string {
	return deleted.Record.GetFname()
}

// GetTypeTag is empty, the type of a metadata record comes from its name.
func (deleted Deleted) GetTypeTag() string {
	return ""
}

func (deleted Deleted) GetLogicalFileSize() int64 {
	return deleted.Record.GetLogicalFileSize()
}

func (deleted Deleted) GetDepth() int {
	return deleted.Depth
}

func FilterDeleted(records []Record, includeDeleted bool) []Record {
	return utils.Filter(records, func(record Record) bool {
		return record.IsDeleted() == includeDeleted
	})
}

func FilterOutFolders(records []Record) []Record {
	return utils.Filter(records, func(record Record) bool {
		return !record.IsFolder()
	})
}

func FilterFolders(records []Record) []Record {
	return utils.Filter(records, func(record Record) bool {
		return record.IsFolder()
	})
}

type span struct {
	start int64
	end   int64
	idx   int
}

// MarkOverlaps records on both sides every pair of entries whose extents share bytes.
func MarkOverlaps(deleted []Deleted) {
	var spans []span
	for idx := range deleted {
		for _, extent := range deleted[idx].Record.GetExtents() {
			if extent.Sparse || extent.Length <= 0 {
				continue
			}
			spans = append(spans, span{extent.Offset, extent.End(), idx})
		}
	}
	slices.SortFunc(spans, func(a, b span) int {
		return cmp.Compare(a.start, b.start)
	})

	seen := make(map[[2]int]bool)
	var active []span
	for _, cur := range spans {
		active = slices.DeleteFunc(active, func(other span) bool {
			return other.end <= cur.start
		})
		for _, other := range active {
			if other.idx == cur.idx {
				continue
			}
			pair := [2]int{min(other.idx, cur.idx), max(other.idx, cur.idx)}
			if seen[pair] {
				continue
			}
			seen[pair] = true
			deleted[other.idx].Overlaps = append(deleted[other.idx].Overlaps, deleted[cur.idx].Record.GetID())
			deleted[cur.idx].Overlaps = append(deleted[cur.idx].Overlaps, deleted[other.idx].Record.GetID())
		}
		active = append(active, cur)
	}
	for idx := range deleted {
		slices.Sort(deleted[idx].Overlaps)
	}
}
