package volume

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/go-restruct/restruct"
	metadata "github.com/utxob/Data-Recover-toll/FS"
	"github.com/utxob/Data-Recover-toll/FS/NTFS/MFT"
	"github.com/utxob/Data-Recover-toll/logger"
	"github.com/utxob/Data-Recover-toll/readers"
	"github.com/utxob/Data-Recover-toll/tree"
	"github.com/utxob/Data-Recover-toll/utils"
)

const (
	rootEntry   = 5
	bitmapEntry = 6
)

var errNotNTFS = errors.New("not an NTFS boot sector")

type NTFS struct {
	VBR     *VBR
	MFT     *MFT.MFTTable
	Bitmap  MFT.Bitmap
	deleted []metadata.Deleted
	dirTree *tree.Tree
}

type VBR struct { //Volume Boot Record
	JumpInstruction      [3]byte  //0-3
	Signature            [4]byte  //4 bytes NTFS 3-7
	NotUsed1             [4]byte  //7-11
	BytesPerSector       uint16   // 11-13
	SectorsPerCluster    uint8    //13
	NotUsed2             [26]byte //14-40
	TotalSectors         uint64   //40-48
	MFTOffset            uint64   //48-56
	MFTMirrOffset        uint64   //56-64
	ClustersPerMFTRecord int8     //64 negative values are a power of two in bytes
}

func (vbr *VBR) Parse(data []byte) error {
	if err := restruct.Unpack(data[:65], binary.LittleEndian, vbr); err != nil {
		return err
	}
	switch {
	case vbr.GetSignature() != "NTFS":
		return errNotNTFS
	case vbr.BytesPerSector < 512 || vbr.BytesPerSector&(vbr.BytesPerSector-1) != 0:
		return fmt.Errorf("%w: %d bytes per sector", errNotNTFS, vbr.BytesPerSector)
	case vbr.SectorsPerCluster == 0:
		return fmt.Errorf("%w: zero sectors per cluster", errNotNTFS)
	}
	return nil
}

func (vbr VBR) GetSignature() string {
	return string(vbr.Signature[:])
}

func (vbr VBR) ClusterSize() int {
	return int(vbr.SectorsPerCluster) * int(vbr.BytesPerSector)
}

func (vbr VBR) RecordSize() int {
	if vbr.ClustersPerMFTRecord < 0 {
		return 1 << -vbr.ClustersPerMFTRecord
	}
	if vbr.ClustersPerMFTRecord == 0 {
		return MFT.RecordSize
	}
	return int(vbr.ClustersPerMFTRecord) * vbr.ClusterSize()
}

func (vbr VBR) TotalClusters() int64 {
	return int64(vbr.TotalSectors) / int64(vbr.SectorsPerCluster)
}

func (ntfs *NTFS) AddVolume(data []byte) error {
	vbr := new(VBR)
	if len(data) < 512 {
		return errNotNTFS
	}
	if err := vbr.Parse(data); err != nil {
		return err
	}
	ntfs.VBR = vbr
	return nil
}

// Process loads $MFT and $Bitmap and selects the deleted records worth recovering,
// ctx is checked between records.
func (ntfs *NTFS) Process(ctx context.Context, hD readers.DiskReader, partitionOffsetB int64) error {
	clusterSize := ntfs.VBR.ClusterSize()
	recordSize := ntfs.VBR.RecordSize()
	physicalOffset := partitionOffsetB + int64(ntfs.VBR.MFTOffset)*int64(clusterSize)

	msg := "Reading first record entry to determine the size of $MFT Table at offset %s"
	logger.RecoveryLogger.Info(fmt.Sprintf(msg, utils.Stringify(physicalOffset)))

	data, err := hD.ReadFile(physicalOffset, recordSize)
	if err != nil || len(data) < recordSize {
		return fmt.Errorf("%w: $MFT record at %d: %v", readers.ErrMediumUnreadable, physicalOffset, err)
	}
	var mftRecord MFT.Record
	if err := mftRecord.Process(data); err != nil {
		return fmt.Errorf("%w: $MFT record: %w", metadata.ErrStructureInvalid, err)
	}
	mftSize := mftRecord.GetLogicalFileSize()
	if size := hD.GetDiskSize(); mftSize <= 0 || (size != readers.SizeUnknown && mftSize > size) {
		return fmt.Errorf("%w: $MFT of %d bytes", metadata.ErrStructureInvalid, mftSize)
	}

	start := time.Now()
	MFTAreaBuf, err := ntfs.CollectMFTArea(hD, partitionOffsetB, mftRecord)
	if err != nil {
		logger.RecoveryLogger.Warning(fmt.Sprintf("$MFT area partially read: %v", err))
	}
	ntfs.MFT = &MFT.MFTTable{RecordSize: recordSize}
	if err := ntfs.MFT.ProcessRecords(ctx, MFTAreaBuf); err != nil {
		return err
	}
	for _, invalid := range ntfs.MFT.Invalid {
		logger.RecoveryLogger.Warning(fmt.Errorf("%w: %w", metadata.ErrStructureInvalid, invalid).Error())
	}
	logger.RecoveryLogger.Info(fmt.Sprintf("processed %s records in %f secs",
		utils.Stringify(int64(len(ntfs.MFT.Records))), time.Since(start).Seconds()))

	for idx := range ntfs.MFT.Records {
		if err := ctx.Err(); err != nil {
			return err
		}
		record := &ntfs.MFT.Records[idx]
		if !record.IsValid() {
			continue
		}
		if err := record.ProcessNoNResidentAttributes(hD, partitionOffsetB, clusterSize); err != nil {
			logger.RecoveryLogger.Warning(err.Error())
		}
	}

	logger.RecoveryLogger.Info("Linking $MFT record non resident $MFT entries")
	ntfs.MFT.CreateLinkedRecords()
	logger.RecoveryLogger.Info("Locating parent $MFT records from Filename attributes")
	ntfs.MFT.FindParentRecords()

	if err := ntfs.loadBitmap(hD, partitionOffsetB); err != nil {
		logger.RecoveryLogger.Warning(fmt.Sprintf("$Bitmap unavailable, reuse check disabled: %v", err))
	}
	return ntfs.selectDeleted(ctx, partitionOffsetB)
}

// CollectMFTArea reads $MFT following the runlist of its first record.
func (ntfs NTFS) CollectMFTArea(hD readers.DiskReader, partitionOffsetB int64, mftRecord MFT.Record) ([]byte, error) {
	var buf bytes.Buffer
	record := metadata.NTFSRecord{Record: &mftRecord, PartitionOffset: partitionOffsetB,
		ClusterSize: ntfs.VBR.ClusterSize()}
	_, err := metadata.Reconstruct(hD, record, &buf)
	return buf.Bytes(), err
}

func (ntfs *NTFS) loadBitmap(hD readers.DiskReader, partitionOffsetB int64) error {
	if len(ntfs.MFT.Records) <= bitmapEntry || !ntfs.MFT.Records[bitmapEntry].IsValid() {
		return MFT.ErrRecordNotFound
	}
	var buf bytes.Buffer
	record := metadata.NTFSRecord{Record: &ntfs.MFT.Records[bitmapEntry], PartitionOffset: partitionOffsetB,
		ClusterSize: ntfs.VBR.ClusterSize()}
	if _, err := metadata.Reconstruct(hD, record, &buf); err != nil {
		return err
	}
	ntfs.Bitmap = MFT.Bitmap(buf.Bytes())
	return nil
}

// isReused reports whether any cluster of the record is allocated again.
func (ntfs NTFS) isReused(record *MFT.Record) bool {
	if ntfs.Bitmap == nil {
		return false
	}
	for _, run := range record.GetDataRuns() {
		if !run.Sparse && ntfs.Bitmap.AnyAllocated(run.Cluster, run.Length) {
			return true
		}
	}
	return false
}

// hasPlausibleRuns rejects runlists pointing outside the volume or not covering the size.
func (ntfs NTFS) hasPlausibleRuns(record *MFT.Record) bool {
	var allocated int64
	for _, run := range record.GetDataRuns() {
		if !run.Sparse && (run.Cluster < 0 || run.Cluster+int64(run.Length) > ntfs.VBR.TotalClusters()) {
			return false
		}
		allocated += int64(run.Length) * int64(ntfs.VBR.ClusterSize())
	}
	return allocated > 0 && allocated >= record.GetLogicalFileSize()
}

// selectDeleted keeps the deleted records worth recovering and marks their overlaps,
// paths are resolved as Deleted is consumed.
func (ntfs *NTFS) selectDeleted(ctx context.Context, partitionOffsetB int64) error {
	var records []metadata.Record
	for idx := range ntfs.MFT.Records {
		record := &ntfs.MFT.Records[idx]
		if !record.IsValid() || record.IsExtension() {
			continue
		}
		records = append(records, metadata.NTFSRecord{Record: record, PartitionOffset: partitionOffsetB,
			ClusterSize: ntfs.VBR.ClusterSize()})
	}
	ntfs.dirTree = tree.New(rootEntry)
	ntfs.dirTree.Build(records)

	ntfs.deleted = nil
	for _, rec := range metadata.FilterOutFolders(metadata.FilterDeleted(records, true)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		ntfsRecord := rec.(metadata.NTFSRecord)
		record := ntfsRecord.Record
		switch {
		case record.GetLogicalFileSize() <= 0:
			continue
		case !record.HasResidentDataAttr() && !ntfs.hasPlausibleRuns(record):
			logger.RecoveryLogger.Info(fmt.Sprintf("%s has no usable runlist", record))
			continue
		case !record.HasResidentDataAttr() && ntfs.isReused(record):
			logger.RecoveryLogger.Info(fmt.Sprintf("%s clusters reallocated", record))
			continue
		}
		ntfs.deleted = append(ntfs.deleted, metadata.Deleted{Record: ntfsRecord, Orphan: record.Orphan})
	}
	metadata.MarkOverlaps(ntfs.deleted)
	logger.RecoveryLogger.Info(fmt.Sprintf("%s deleted records recoverable", utils.Stringify(int64(len(ntfs.deleted)))))
	return nil
}

func (ntfs NTFS) Deleted() iter.Seq[metadata.Deleted] {
	return resolvePaths(ntfs.deleted, ntfs.dirTree)
}

func (ntfs NTFS) GetClusterSize() int {
	return ntfs.VBR.ClusterSize()
}

func (ntfs NTFS) GetInfo() string {
	return fmt.Sprintf("%s size %s cluster size %d", ntfs.GetSignature(),
		utils.Stringify(int64(ntfs.VBR.TotalSectors)*int64(ntfs.VBR.BytesPerSector)), ntfs.VBR.ClusterSize())
}

func (ntfs NTFS) GetSignature() string {
	return ntfs.VBR.GetSignature()
}
