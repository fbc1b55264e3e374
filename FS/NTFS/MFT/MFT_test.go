package MFT

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	MFTAttributes "github.com/utxob/Data-Recover-toll/FS/NTFS/MFT/attributes"
	"github.com/utxob/Data-Recover-toll/internal/testimg"
	"github.com/utxob/Data-Recover-toll/readers"
	"github.com/utxob/Data-Recover-toll/utils"
)

const stamp = uint64(133000000000000000)

func TestProcessResidentRecord(t *testing.T) {
	bs := testimg.MFTRecord(testimg.RecordSpec{Entry: 40, Seq: 3, Name: "report.docx", Parent: 5, ParentSeq: 5,
		Resident: []byte("hello world"), Modified: stamp})

	var record Record
	require.NoError(t, record.Process(bs))
	assert.Equal(t, "report.docx", record.GetFname())
	assert.True(t, record.IsDeleted())
	assert.False(t, record.IsFolder())
	assert.True(t, record.HasResidentDataAttr())
	assert.Equal(t, []byte("hello world"), record.GetResidentData())
	assert.Equal(t, int64(11), record.GetLogicalFileSize())
	assert.Equal(t, utils.WindowsTime{Stamp: stamp}.ConvertToTime(), record.GetModifiedTime())

	parRef, parSeq, ok := record.GetParentRef()
	require.True(t, ok)
	assert.Equal(t, uint32(5), parRef)
	assert.Equal(t, uint16(5), parSeq)
}

func TestProcessEndsAtMarker(t *testing.T) {
	bs := testimg.MFTRecord(testimg.RecordSpec{Entry: 40, Seq: 1, Name: "a.txt", Resident: []byte("hi")})

	var record Record
	require.NoError(t, record.Process(bs))
	// bytes in use end 8 bytes after the end marker
	assert.Equal(t, uint32(0xffffffff), binary.LittleEndian.Uint32(bs[record.Size-8:]))
	assert.Len(t, record.Attributes, 3)
	assert.Equal(t, []byte("hi"), record.GetResidentData())
}

func TestNonResidentAttributeListOversized(t *testing.T) {
	header := &MFTAttributes.Header{
		AttributeHeader:      MFTAttributes.AttributeHeader{Type: 0x20, NoNResident: 1},
		ATRrecordNoNResident: &MFTAttributes.ATRrecordNoNResident{ActualLength: 1 << 62},
		RunList:              &MFTAttributes.RunList{Offset: 1, Length: 1},
		RunListTotalLenCl:    1,
	}
	list := &MFTAttributes.AttributeListEntries{}
	list.SetHeader(header)
	record := Record{RecordHeader: RecordHeader{Entry: 44}, Attributes: []Attribute{list}}

	err := record.ProcessNoNResidentAttributes(readers.NewMemReader(make([]byte, 8192)), 0, 4096)
	assert.True(t, errors.Is(err, ErrCorruptRecord))
	assert.True(t, errors.Is(err, MFTAttributes.ErrAttributeOversized))
	assert.Empty(t, record.LinkedRecordsInfo)
}

func TestProcessRejectsBrokenFixup(t *testing.T) {
	bs := testimg.MFTRecord(testimg.RecordSpec{Entry: 41, Seq: 1, Name: "a.txt", Resident: []byte("x"), BreakFixup: true})

	var record Record
	err := record.Process(bs)
	assert.True(t, errors.Is(err, ErrCorruptRecord))
}

func TestProcessRejectsBadSignature(t *testing.T) {
	bs := testimg.MFTRecord(testimg.RecordSpec{Entry: 42, Seq: 1, Name: "a.txt"})
	copy(bs, "BAAD")

	var record Record
	assert.True(t, errors.Is(record.Process(bs), ErrCorruptRecord))
}

func TestGetDataRunsWithSparseRun(t *testing.T) {
	bs := testimg.MFTRecord(testimg.RecordSpec{Entry: 43, Seq: 1, InUse: true, Name: "disk.vhd",
		Runs: []testimg.Run{{Cluster: 100, Length: 2}, {Cluster: -1, Length: 3}, {Cluster: 50, Length: 1}},
		Size: 5 * 4096})

	var record Record
	require.NoError(t, record.Process(bs))
	assert.False(t, record.HasResidentDataAttr())
	assert.Equal(t, int64(5*4096), record.GetLogicalFileSize())
	assert.Equal(t, []MFTAttributes.Run{
		{Cluster: 100, Length: 2},
		{Length: 3, Sparse: true},
		{Cluster: 50, Length: 1},
	}, record.GetDataRuns())
}

func buildTable(t *testing.T, image testimg.NTFSImage) *MFTTable {
	data := image.Build()
	start := testimg.NTFSMFTCluster * 4096
	table := &MFTTable{RecordSize: testimg.NTFSRecordSize}
	require.NoError(t, table.ProcessRecords(context.Background(), data[start:start+testimg.NTFSMFTClusters*4096]))
	return table
}

func TestTableLinksExtensionRecords(t *testing.T) {
	content := testimg.Body(9000, 7)
	table := buildTable(t, testimg.NTFSImage{Files: []testimg.NTFSFile{
		{Entry: 20, Name: "big.bin", Data: content, Deleted: true,
			Runs: []testimg.Run{{Cluster: 40, Length: 2}, {Cluster: 30, Length: 1}}, Extension: 21},
	}})
	table.CreateLinkedRecords()
	table.FindParentRecords()

	base := table.Records[20]
	require.Len(t, base.LinkedRecords, 1)
	assert.Equal(t, uint32(21), base.LinkedRecords[0].Entry)
	assert.Equal(t, []MFTAttributes.Run{{Cluster: 40, Length: 2}, {Cluster: 30, Length: 1}}, base.GetDataRuns())
	assert.Equal(t, int64(9000), base.GetLogicalFileSize())
	assert.Equal(t, "big.bin", table.Records[21].GetFname())
	require.NotNil(t, base.Parent)
	assert.Equal(t, uint32(5), base.Parent.Entry)
}

func TestTableParentsAndInvalidRecords(t *testing.T) {
	table := buildTable(t, testimg.NTFSImage{Files: []testimg.NTFSFile{
		{Entry: 20, Name: "docs", Dir: true},
		{Entry: 21, Name: "a.txt", Parent: 20, ParentSeq: 1, Data: []byte("abc"), Resident: true, Deleted: true},
		{Entry: 22, Name: "b.txt", Parent: 20, ParentSeq: 9, Data: []byte("abc"), Resident: true, Deleted: true},
		{Entry: 23, Name: "c.txt", Data: []byte("abc"), Resident: true, Corrupt: true},
	}})
	table.FindParentRecords()

	require.NotNil(t, table.Records[21].Parent)
	assert.Equal(t, "docs", table.Records[21].Parent.GetFname())
	assert.False(t, table.Records[21].Orphan)
	assert.True(t, table.Records[22].Orphan)
	assert.False(t, table.Records[23].IsValid())
	require.Len(t, table.Invalid, 1)
	assert.True(t, errors.Is(table.Invalid[0], ErrCorruptRecord))

	_, err := table.GetRecord(20, 9)
	assert.True(t, errors.Is(err, ErrParentReallocated))
	_, err = table.GetRecord(60, 1)
	assert.True(t, errors.Is(err, ErrRecordNotFound))
}

func TestBitmap(t *testing.T) {
	bitmap := Bitmap{0x05}
	assert.True(t, bitmap.IsAllocated(0))
	assert.False(t, bitmap.IsAllocated(1))
	assert.True(t, bitmap.IsAllocated(2))
	assert.True(t, bitmap.IsAllocated(100))
	assert.False(t, bitmap.AnyAllocated(3, 5))
	assert.True(t, bitmap.AnyAllocated(1, 2))
	assert.Equal(t, []int{1, 3, 4, 5, 6, 7}, bitmap.GetUnallocatedClusters())
}

func TestProcessRecordsStopsOnCancel(t *testing.T) {
	data := testimg.NTFSImage{}.Build()
	start := testimg.NTFSMFTCluster * 4096

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	table := &MFTTable{RecordSize: testimg.NTFSRecordSize}
	err := table.ProcessRecords(ctx, data[start:start+testimg.NTFSMFTClusters*4096])
	assert.True(t, errors.Is(err, context.Canceled))
}
