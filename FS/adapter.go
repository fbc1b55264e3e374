package metadata

import (
	"time"

	"github.com/utxob/Data-Recover-toll/FS/FAT"
	"github.com/utxob/Data-Recover-toll/FS/NTFS/MFT"
)

// NTFSRecord resolves the runs of an MFT record against its volume.
type NTFSRecord struct {
	*MFT.Record
	PartitionOffset int64
	ClusterSize     int
}

func (ntfsRecord NTFSRecord) GetID() int64 {
	return int64(ntfsRecord.Entry)
}

func (ntfsRecord NTFSRecord) GetParentID() int64 {
	parRef, _, ok := ntfsRecord.GetParentRef()
	if !ok {
		return -1
	}
	return int64(parRef)
}

func (ntfsRecord NTFSRecord) IsResident() bool {
	return ntfsRecord.HasResidentDataAttr()
}

func (ntfsRecord NTFSRecord) GetExtents() []Extent {
	var extents []Extent
	clusterSize := int64(ntfsRecord.ClusterSize)
	for _, run := range ntfsRecord.GetDataRuns() {
		extent := Extent{Length: int64(run.Length) * clusterSize, Sparse: run.Sparse}
		if !run.Sparse {
			extent.Offset = ntfsRecord.PartitionOffset + run.Cluster*clusterSize
		}
		extents = append(extents, extent)
	}
	return extents
}

func (ntfsRecord NTFSRecord) GetFilesystem() string {
	return "NTFS"
}

// FATRecord is a directory entry with the extents the walker resolved for it.
type FATRecord struct {
	Entry   *FAT.DirEntry
	Extents []Extent
}

func (fatRecord FATRecord) GetID() int64 {
	return fatRecord.Entry.ID
}

func (fatRecord FATRecord) GetParentID() int64 {
	return fatRecord.Entry.ParentID
}

func (fatRecord FATRecord) GetFname() string {
	return fatRecord.Entry.GetFname()
}

func (fatRecord FATRecord) GetLogicalFileSize() int64 {
	return int64(fatRecord.Entry.FileSize)
}

func (fatRecord FATRecord) IsDeleted() bool {
	return fatRecord.Entry.Deleted
}

func (fatRecord FATRecord) IsFolder() bool {
	return fatRecord.Entry.IsFolder()
}

func (fatRecord FATRecord) GetModifiedTime() time.Time {
	return fatRecord.Entry.GetModifiedTime()
}

func (fatRecord FATRecord) GetExtents() []Extent {
	return fatRecord.Extents
}

func (fatRecord FATRecord) GetResidentData() []byte {
	return nil
}

func (fatRecord FATRecord) IsResident() bool {
	return false
}

func (fatRecord FATRecord) GetFilesystem() string {
	return "FAT32"
}
