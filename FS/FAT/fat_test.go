package FAT

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/utxob/Data-Recover-toll/internal/testimg"
)

const (
	dosDate = uint16((2023-1980)<<9 | 5<<5 | 17)
	dosTime = uint16(10<<11 | 30<<5 | 10)
)

func sampleImage() testimg.FATImage {
	return testimg.FATImage{Files: []testimg.FATFile{
		{Name: "Documents", Dir: true, Cluster: 3, Parent: -1, Date: dosDate, Time: dosTime},
		{Name: "report.docx", Deleted: true, Cluster: 10, Parent: 0, Data: testimg.Body(2500, 1),
			Date: dosDate, Time: dosTime},
		{Name: "photo.jpg", Cluster: 20, Parent: -1, Data: testimg.JPEG(1500, 2)},
		{Name: "old.txt", Deleted: true, Cluster: 30, Parent: -1, Data: []byte("gone")},
	}}
}

func TestBootSectorParse(t *testing.T) {
	image := sampleImage()
	data := image.Build()

	var bootSector BootSector
	require.NoError(t, bootSector.Parse(data[:512]))
	assert.Equal(t, "FAT32", bootSector.GetSignature())
	assert.Equal(t, "RECOVERTEST", bootSector.GetLabel())
	assert.Equal(t, 1024, bootSector.ClusterSize())
	assert.Equal(t, uint32(2), bootSector.RootDirClusterNumber)
	assert.Equal(t, int64(image.DataOffset()), bootSector.DataOffset())
	assert.Equal(t, uint32(1024), bootSector.TotalClusters())
	assert.Equal(t, int64(image.ClusterOffset(20)), bootSector.ClusterOffset(20))
	assert.True(t, bootSector.IsValidCluster(1025))
	assert.False(t, bootSector.IsValidCluster(1026))

	var fsInfo FSInfo
	require.NoError(t, fsInfo.Parse(data[512:1024]))
	assert.Equal(t, uint32(0xFFFFFFFF), fsInfo.FreeCount)
}

func TestBootSectorRejectsOtherLayouts(t *testing.T) {
	var bootSector BootSector
	ntfs := testimg.NTFSImage{}.Build()
	assert.True(t, errors.Is(bootSector.Parse(ntfs[:512]), ErrInvalidBootSector))

	data := sampleImage().Build()
	data[511] = 0
	assert.True(t, errors.Is(bootSector.Parse(data[:512]), ErrInvalidBootSector))
	assert.True(t, errors.Is(bootSector.Parse(data[:100]), ErrInvalidBootSector))
}

func TestTableChain(t *testing.T) {
	data := sampleImage().Build()
	var bootSector BootSector
	require.NoError(t, bootSector.Parse(data[:512]))
	table := LoadTable(data[bootSector.FATOffset() : bootSector.FATOffset()+bootSector.FATSize()])

	chain, err := table.Chain(20)
	require.NoError(t, err)
	assert.Equal(t, []uint32{20, 21}, chain)

	chain, err = table.Chain(10)
	assert.True(t, errors.Is(err, ErrBrokenChain))
	assert.Equal(t, []uint32{10}, chain)
	assert.True(t, table.FreeRun(10, 3))
	assert.False(t, table.FreeRun(19, 2))
}

func TestTableChainDetectsLoop(t *testing.T) {
	table := Table{0x0FFFFFF8, 0x0FFFFFFF, 3, 2}
	chain, err := table.Chain(2)
	assert.True(t, errors.Is(err, ErrBrokenChain))
	assert.Equal(t, []uint32{2, 3}, chain)

	_, err = table.Chain(7)
	assert.True(t, errors.Is(err, ErrBrokenChain))
}

func TestParseDirectoryRecoversDeletedNames(t *testing.T) {
	image := sampleImage()
	data := image.Build()
	clusterSize := image.ClusterSize()

	rootOffset := image.ClusterOffset(2)
	entries := ParseDirectory(data[rootOffset:rootOffset+clusterSize], int64(rootOffset), 0)
	require.Len(t, entries, 3)

	assert.Equal(t, "Documents", entries[0].GetFname())
	assert.True(t, entries[0].IsFolder())
	assert.False(t, entries[0].Deleted)
	assert.Equal(t, uint32(3), entries[0].GetFirstCluster())

	assert.Equal(t, "photo.jpg", entries[1].GetFname())
	assert.Equal(t, "PHOTO.JPG", entries[1].ShortName)
	assert.Equal(t, uint32(1500), entries[1].FileSize)

	assert.Equal(t, "old.txt", entries[2].GetFname())
	assert.Equal(t, "OLD.TXT", entries[2].ShortName)
	assert.True(t, entries[2].Deleted)

	dirOffset := image.ClusterOffset(3)
	entries = ParseDirectory(data[dirOffset:dirOffset+clusterSize], int64(dirOffset), int64(rootOffset))
	require.Len(t, entries, 1)
	report := entries[0]
	assert.True(t, report.Deleted)
	assert.Equal(t, "report.docx", report.LongName)
	assert.Equal(t, "REPORT.DOC", report.ShortName)
	assert.Equal(t, uint32(10), report.GetFirstCluster())
	assert.Equal(t, uint32(2500), report.FileSize)
	assert.Equal(t, int64(dirOffset+3*DirEntrySize), report.ID)
	assert.Equal(t, int64(rootOffset), report.ParentID)
	assert.Equal(t, time.Date(2023, 5, 17, 10, 30, 20, 0, time.UTC), report.GetModifiedTime())
}

func TestParseDirectoryDropsInconsistentLongName(t *testing.T) {
	image := sampleImage()
	data := image.Build()
	dirOffset := image.ClusterOffset(3)
	data[dirOffset+2*DirEntrySize+1] = 'x' // first long name character of report.docx

	entries := ParseDirectory(data[dirOffset:dirOffset+image.ClusterSize()], int64(dirOffset), 0)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].LongName)
	assert.Equal(t, "_EPORT.DOC", entries[0].GetFname())

	rootOffset := image.ClusterOffset(2)
	// short name of photo.jpg follows its single long name slot
	data[rootOffset+DirEntrySize*3+1] = 'Q'
	entries = ParseDirectory(data[rootOffset:rootOffset+image.ClusterSize()], int64(rootOffset), 0)
	assert.Equal(t, "PQOTO.JPG", entries[1].GetFname())
}

func TestRestoreFirstByte(t *testing.T) {
	original := testimg.FATShortName("report.docx")
	checksum := Checksum(original[:])
	deleted := original
	deleted[0] = deletedMarker

	first, ok := restoreFirstByte(deleted, "report.docx", checksum)
	assert.True(t, ok)
	assert.Equal(t, byte('R'), first)
	assert.Equal(t, testimg.FATChecksum(original), checksum)

	first, ok = restoreFirstByte(deleted, "~report.docx", checksum)
	assert.True(t, ok)
	assert.Equal(t, byte('R'), first)

	_, ok = restoreFirstByte(deleted, "xreport.docx", checksum)
	assert.False(t, ok)
}
