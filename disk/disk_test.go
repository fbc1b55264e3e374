package disk

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metadata "github.com/utxob/Data-Recover-toll/FS"
	mbrLib "github.com/utxob/Data-Recover-toll/disk/partition/MBR"
	"github.com/utxob/Data-Recover-toll/internal/testimg"
	"github.com/utxob/Data-Recover-toll/readers"
)

var (
	reportData = testimg.Body(10000, 1)
	innerData  = testimg.JPEG(3000, 2)
	bigData    = testimg.Body(5000, 3)
	docxData   = testimg.Body(2500, 4)
)

func ntfsImage() testimg.NTFSImage {
	return testimg.NTFSImage{
		Files: []testimg.NTFSFile{
			{Entry: 30, Name: "report.txt", Deleted: true, Data: reportData,
				Runs: []testimg.Run{{Cluster: 100, Length: 1}, {Cluster: 60, Length: 2}}},
			{Entry: 31, Name: "live.txt", Data: []byte("still here"), Runs: []testimg.Run{{Cluster: 70, Length: 1}}},
			{Entry: 32, Name: "reused.bin", Deleted: true, Data: testimg.Body(100, 5),
				Runs: []testimg.Run{{Cluster: 80, Length: 1}}},
			{Entry: 33, Name: "small.txt", Deleted: true, Resident: true, Data: []byte("tiny")},
			{Entry: 34, Name: "Docs", Dir: true},
			{Entry: 35, Name: "inner.jpg", Parent: 34, ParentSeq: 1, Deleted: true, Data: innerData,
				Runs: []testimg.Run{{Cluster: 110, Length: 1}}},
			{Entry: 36, Name: "broken.txt", Deleted: true, Resident: true, Data: []byte("x"), Corrupt: true},
			{Entry: 37, Name: "big.iso", Deleted: true, Data: bigData, Extension: 38,
				Runs: []testimg.Run{{Cluster: 120, Length: 2}}},
		},
		Allocated: []int64{80},
	}
}

func fatImage() testimg.FATImage {
	return testimg.FATImage{Files: []testimg.FATFile{
		{Name: "Documents", Dir: true, Cluster: 3, Parent: -1},
		{Name: "report.docx", Deleted: true, Cluster: 10, Parent: 0, Data: docxData},
		{Name: "photo.jpg", Cluster: 20, Parent: -1, Data: testimg.JPEG(1500, 6)},
		{Name: "old.txt", Deleted: true, Cluster: 30, Parent: -1, Data: []byte("gone")},
	}}
}

func walkAll(t *testing.T, hD readers.DiskReader, partitionNum int) []metadata.Deleted {
	t.Helper()
	disk := New(hD)
	require.NoError(t, disk.Process(partitionNum))

	out := make(chan metadata.Deleted)
	errs := make(chan error, 1)
	go func() {
		errs <- disk.WalkDeleted(context.Background(), partitionNum, out)
	}()
	var found []metadata.Deleted
	for deleted := range out {
		found = append(found, deleted)
	}
	require.NoError(t, <-errs)
	return found
}

func content(t *testing.T, hD readers.DiskReader, deleted metadata.Deleted) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := metadata.Reconstruct(hD, deleted.Record, &buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestWalkNTFSVolumeAtFirstSector(t *testing.T) {
	hD := readers.NewMemReader(ntfsImage().Build())
	found := walkAll(t, hD, -1)

	require.Len(t, found, 4)
	var paths []string
	for idx, deleted := range found {
		paths = append(paths, deleted.Path)
		assert.Equal(t, idx, deleted.Sequence)
		assert.Equal(t, 0, deleted.Partition)
		assert.Equal(t, "NTFS", deleted.Record.GetFilesystem())
	}
	assert.Equal(t, []string{"/report.txt", "/small.txt", "/Docs/inner.jpg", "/big.iso"}, paths)
	assert.Equal(t, 1, found[2].Depth)
	assert.Equal(t, 0, found[0].Depth)

	assert.Equal(t, reportData, content(t, hD, found[0]))
	assert.Equal(t, []byte("tiny"), content(t, hD, found[1]))
	assert.Equal(t, innerData, content(t, hD, found[2]))
	assert.Equal(t, bigData, content(t, hD, found[3]))
}

func TestWalkMBRDiskWithNTFSAndFAT32(t *testing.T) {
	ntfs := ntfsImage().Build()
	fat := fatImage().Build()
	data := testimg.MBRDisk(
		testimg.Partition{Type: 0x07, StartLBA: 2048, Volume: ntfs},
		testimg.Partition{Type: 0x0c, StartLBA: uint32(2048 + len(ntfs)/512), Volume: fat},
	)
	hD := readers.NewMemReader(data)
	found := walkAll(t, hD, -1)

	require.Len(t, found, 6)
	assert.Equal(t, reportData, content(t, hD, found[0]))

	// root directory entries come before those of subdirectories
	assert.Equal(t, "/old.txt", found[4].Path)
	assert.Equal(t, []byte("gone"), content(t, hD, found[4]))

	docx := found[5]
	assert.Equal(t, 1, docx.Partition)
	assert.Equal(t, 5, docx.Sequence)
	assert.Equal(t, "FAT32", docx.Record.GetFilesystem())
	assert.Equal(t, "/Documents/report.docx", docx.Path)
	assert.Equal(t, 1, docx.Depth)
	assert.Equal(t, docxData, content(t, hD, docx))

	// selecting one partition walks only that volume
	found = walkAll(t, hD, 1)
	require.Len(t, found, 2)
	assert.Equal(t, 0, found[0].Sequence)
}

func TestWalkGPTDisk(t *testing.T) {
	data := testimg.GPTDisk(testimg.Partition{TypeGUID: testimg.BasicDataGUID, StartLBA: 40, Volume: fatImage().Build()})
	hD := readers.NewMemReader(data)

	disk := New(hD)
	require.NoError(t, disk.Process(-1))
	require.NotNil(t, disk.GPT)
	assert.Contains(t, disk.ListPartitions(), "Basic data")
	assert.Contains(t, disk.ListPartitions(), "RECOVERTEST")

	found := walkAll(t, hD, -1)
	require.Len(t, found, 2)
	assert.Equal(t, docxData, content(t, hD, found[1]))
}

func TestWalkSurfacesOverlappingRecords(t *testing.T) {
	image := testimg.NTFSImage{Files: []testimg.NTFSFile{
		{Entry: 40, Name: "first.bin", Deleted: true, Data: testimg.Body(100, 7),
			Runs: []testimg.Run{{Cluster: 90, Length: 1}}},
		{Entry: 41, Name: "second.bin", Deleted: true, Data: testimg.Body(5000, 8),
			Runs: []testimg.Run{{Cluster: 90, Length: 2}}},
	}}
	found := walkAll(t, readers.NewMemReader(image.Build()), -1)

	require.Len(t, found, 2)
	assert.Equal(t, []int64{41}, found[0].Overlaps)
	assert.Equal(t, []int64{40}, found[1].Overlaps)
}

func TestWalkFATSkipsReusedClusters(t *testing.T) {
	image := fatImage()
	image.Allocated = []uint32{30}
	found := walkAll(t, readers.NewMemReader(image.Build()), -1)

	require.Len(t, found, 1)
	assert.Equal(t, "report.docx", found[0].Record.GetFname())
}

func TestWalkDeletedStopsOnCancel(t *testing.T) {
	disk := New(readers.NewMemReader(ntfsImage().Build()))
	require.NoError(t, disk.Process(-1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan metadata.Deleted)
	err := disk.WalkDeleted(ctx, -1, out)
	assert.True(t, errors.Is(err, context.Canceled))
	_, open := <-out
	assert.False(t, open)
}

func TestProcessRejectsUnknownMedium(t *testing.T) {
	disk := New(readers.NewMemReader(make([]byte, 4096)))
	assert.True(t, errors.Is(disk.Process(-1), mbrLib.ErrInvalidMBR))

	disk = New(readers.NewMemReader(nil))
	assert.True(t, errors.Is(disk.Process(-1), readers.ErrMediumUnreadable))
}

func TestWalkFailsWhenEveryVolumeFails(t *testing.T) {
	data := ntfsImage().Build()
	copy(data[testimg.NTFSMFTCluster*4096:], []byte{0, 0, 0, 0}) // $MFT record 0 signature
	disk := New(readers.NewMemReader(data))
	require.NoError(t, disk.Process(-1))

	out := make(chan metadata.Deleted, 8)
	err := disk.WalkDeleted(context.Background(), -1, out)
	assert.True(t, errors.Is(err, ErrNoVolumes))
	assert.True(t, errors.Is(err, metadata.ErrStructureInvalid))
	_, open := <-out
	assert.False(t, open)
}

func TestWalkContinuesPastFailedVolume(t *testing.T) {
	ntfs := ntfsImage().Build()
	copy(ntfs[testimg.NTFSMFTCluster*4096:], []byte{0, 0, 0, 0})
	fat := fatImage().Build()
	data := testimg.MBRDisk(
		testimg.Partition{Type: 0x07, StartLBA: 2048, Volume: ntfs},
		testimg.Partition{Type: 0x0c, StartLBA: uint32(2048 + len(ntfs)/512), Volume: fat},
	)
	found := walkAll(t, readers.NewMemReader(data), -1)

	require.Len(t, found, 2)
	assert.Equal(t, 1, found[0].Partition)
	assert.Equal(t, 0, found[0].Sequence)
}

func TestVolumeProcessStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, data := range map[string][]byte{"NTFS": ntfsImage().Build(), "FAT32": fatImage().Build()} {
		t.Run(name, func(t *testing.T) {
			hD := readers.NewMemReader(data)
			disk := New(hD)
			require.NoError(t, disk.Process(-1))
			vol := disk.Partitions[0].GetVolume()
			require.NotNil(t, vol)

			assert.True(t, errors.Is(vol.Process(ctx, hD, 0), context.Canceled))
			for range vol.Deleted() {
				t.Fatal("cancelled volume yielded a record")
			}
		})
	}
}
