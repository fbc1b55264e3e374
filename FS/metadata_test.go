package metadata

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/utxob/Data-Recover-toll/FS/FAT"
	"github.com/utxob/Data-Recover-toll/FS/NTFS/MFT"
	"github.com/utxob/Data-Recover-toll/internal/testimg"
	"github.com/utxob/Data-Recover-toll/readers"
)

type fakeRecord struct {
	id       int64
	size     int64
	extents  []Extent
	resident []byte
	deleted  bool
}

func (rec fakeRecord) GetID() int64               { return rec.id }
func (rec fakeRecord) GetParentID() int64         { return 5 }
func (rec fakeRecord) GetFname() string           { return "fake.bin" }
func (rec fakeRecord) GetLogicalFileSize() int64  { return rec.size }
func (rec fakeRecord) IsDeleted() bool            { return rec.deleted }
func (rec fakeRecord) IsFolder() bool             { return false }
func (rec fakeRecord) GetModifiedTime() time.Time { return time.Time{} }
func (rec fakeRecord) GetExtents() []Extent       { return rec.extents }
func (rec fakeRecord) GetResidentData() []byte    { return rec.resident }
func (rec fakeRecord) IsResident() bool           { return rec.resident != nil }
func (rec fakeRecord) GetFilesystem() string      { return "test" }

func TestReconstructFollowsExtentMapOrder(t *testing.T) {
	data := testimg.Body(8192, 3)
	hD := readers.NewMemReader(data)
	record := fakeRecord{size: 220, extents: []Extent{
		{Offset: 5000, Length: 100}, {Offset: 1000, Length: 100}, {Length: 50, Sparse: true},
	}}

	var out bytes.Buffer
	written, err := Reconstruct(hD, record, &out)
	require.NoError(t, err)
	assert.Equal(t, int64(220), written)

	expected := append(append(append([]byte(nil), data[5000:5100]...), data[1000:1100]...), make([]byte, 20)...)
	assert.Equal(t, expected, out.Bytes())
}

func TestReconstructKeepsGoodBytesAroundFault(t *testing.T) {
	data := testimg.Body(4096, 4)
	hD := readers.NewMemReader(data, readers.Region{Offset: 1100, Length: 50})
	record := fakeRecord{size: 300, extents: []Extent{{Offset: 1000, Length: 300}}}

	var out bytes.Buffer
	written, err := Reconstruct(hD, record, &out)
	assert.True(t, errors.Is(err, ErrPartial))
	assert.True(t, errors.Is(err, readers.ErrMediumFault))
	assert.Equal(t, int64(300), written)

	expected := append(append(append([]byte(nil), data[1000:1100]...), make([]byte, 50)...), data[1150:1300]...)
	assert.Equal(t, expected, out.Bytes())
}

func TestReconstructShortExtentMap(t *testing.T) {
	hD := readers.NewMemReader(testimg.Body(4096, 5))
	record := fakeRecord{size: 500, extents: []Extent{{Offset: 0, Length: 200}}}

	var out bytes.Buffer
	written, err := Reconstruct(hD, record, &out)
	assert.True(t, errors.Is(err, ErrPartial))
	assert.Equal(t, int64(200), written)
}

func TestReconstructResident(t *testing.T) {
	record := fakeRecord{size: 5, resident: []byte("hello world")}

	var out bytes.Buffer
	written, err := Reconstruct(readers.NewMemReader(nil), record, &out)
	require.NoError(t, err)
	assert.Equal(t, int64(5), written)
	assert.Equal(t, "hello", out.String())
}

func TestNTFSRecordExtents(t *testing.T) {
	bs := testimg.MFTRecord(testimg.RecordSpec{Entry: 43, Seq: 1, Name: "disk.vhd", Parent: 5, ParentSeq: 5,
		Runs: []testimg.Run{{Cluster: 100, Length: 2}, {Cluster: -1, Length: 1}, {Cluster: 50, Length: 1}},
		Size: 4 * 4096})
	var record MFT.Record
	require.NoError(t, record.Process(bs))
	record.Entry = 43

	ntfsRecord := NTFSRecord{Record: &record, PartitionOffset: 1 << 20, ClusterSize: 4096}
	assert.Equal(t, int64(43), ntfsRecord.GetID())
	assert.Equal(t, int64(5), ntfsRecord.GetParentID())
	assert.False(t, ntfsRecord.IsResident())
	assert.Equal(t, "NTFS", ntfsRecord.GetFilesystem())
	assert.Equal(t, []Extent{
		{Offset: 1<<20 + 100*4096, Length: 8192},
		{Length: 4096, Sparse: true},
		{Offset: 1<<20 + 50*4096, Length: 4096},
	}, ntfsRecord.GetExtents())
}

func TestFATRecord(t *testing.T) {
	entry := &FAT.DirEntry{LongName: "photo.jpg", Deleted: true, ID: 4096, ParentID: 2048}
	entry.FileSize = 1500
	fatRecord := FATRecord{Entry: entry, Extents: []Extent{{Offset: 8192, Length: 2048}}}

	var record Record = fatRecord
	assert.Equal(t, int64(4096), record.GetID())
	assert.Equal(t, int64(2048), record.GetParentID())
	assert.Equal(t, "photo.jpg", record.GetFname())
	assert.Equal(t, int64(1500), record.GetLogicalFileSize())
	assert.True(t, record.IsDeleted())
	assert.Equal(t, "FAT32", record.GetFilesystem())
}

func TestMarkOverlapsSurfacesBothSides(t *testing.T) {
	deleted := []Deleted{
		{Record: fakeRecord{id: 1, extents: []Extent{{Offset: 0, Length: 100}}}},
		{Record: fakeRecord{id: 2, extents: []Extent{{Offset: 300, Length: 10}, {Offset: 50, Length: 100}}}},
		{Record: fakeRecord{id: 3, extents: []Extent{{Offset: 200, Length: 100}, {Length: 100, Sparse: true}}}},
		{Record: fakeRecord{id: 4, extents: []Extent{{Offset: 0, Length: 400}}}},
	}
	MarkOverlaps(deleted)

	assert.Equal(t, []int64{2, 4}, deleted[0].Overlaps)
	assert.Equal(t, []int64{1, 4}, deleted[1].Overlaps)
	assert.Equal(t, []int64{4}, deleted[2].Overlaps)
	assert.Equal(t, []int64{1, 2, 3}, deleted[3].Overlaps)
}

func TestFilterDeleted(t *testing.T) {
	records := []Record{fakeRecord{id: 1, deleted: true}, fakeRecord{id: 2}, fakeRecord{id: 3, deleted: true}}
	assert.Len(t, FilterDeleted(records, true), 2)
	assert.Len(t, FilterDeleted(records, false), 1)
	assert.Len(t, FilterOutFolders(records), 3)
	assert.Empty(t, FilterFolders(records))
}
