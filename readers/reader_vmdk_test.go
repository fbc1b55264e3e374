package readers

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	grainSectors = 128
	grainBytes   = grainSectors * 512
)

// writeSparseVMDK lays out a four grain sparse extent: header, grain directory at
// sector 1, grain table at sector 2, then grains 0 and 2. Grains 1 and 3 are unallocated.
func writeSparseVMDK(t *testing.T, grain0 []byte, grain2 []byte) string {
	t.Helper()
	dir := t.TempDir()

	extentData := make([]byte, 3*512+2*grainBytes)
	header := extentData[:512]
	copy(header, "KDMV")
	binary.LittleEndian.PutUint32(header[4:], 1)
	binary.LittleEndian.PutUint64(header[12:], 4*grainSectors) // capacity
	binary.LittleEndian.PutUint64(header[20:], grainSectors)
	binary.LittleEndian.PutUint32(header[44:], 4) // grain table entries
	binary.LittleEndian.PutUint64(header[56:], 1) // grain directory sector
	binary.LittleEndian.PutUint64(header[64:], 2) // metadata sectors

	binary.LittleEndian.PutUint32(extentData[512:], 2)
	binary.LittleEndian.PutUint32(extentData[1024:], 3)
	binary.LittleEndian.PutUint32(extentData[1024+8:], 3+grainSectors)
	copy(extentData[3*512:], grain0)
	copy(extentData[3*512+grainBytes:], grain2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "disk-s001.vmdk"), extentData, 0600))

	descriptor := "# Disk DescriptorFile\nversion=1\nCID=fffffffe\nparentCID=ffffffff\n" +
		"createType=\"monolithicSparse\"\n\n# Extent description\nRW 512 SPARSE \"disk-s001.vmdk\"\n\n# The Disk Data Base \n"
	path := filepath.Join(dir, "disk.vmdk")
	require.NoError(t, os.WriteFile(path, []byte(descriptor), 0600))
	return path
}

func TestVMDKReaderReadsAcrossGrains(t *testing.T) {
	grain0 := pattern(grainBytes)
	grain2 := pattern(grainBytes + 7)[7:]
	hD := &VMDKReader{PathToEvidenceFiles: writeSparseVMDK(t, grain0, grain2)}
	require.NoError(t, hD.CreateHandler())
	assert.Equal(t, int64(4*grainBytes), hD.GetDiskSize())

	data, err := hD.ReadFile(grainBytes-100, 2*grainBytes+200)
	require.NoError(t, err)
	require.Len(t, data, 2*grainBytes+200)
	assert.Equal(t, grain0[grainBytes-100:], data[:100])
	assert.Equal(t, make([]byte, grainBytes), data[100:100+grainBytes])
	assert.Equal(t, grain2, data[100+grainBytes:100+2*grainBytes])
	assert.Equal(t, make([]byte, 100), data[100+2*grainBytes:])

	// clamped at the end of the virtual disk
	data, err = hD.ReadFile(4*grainBytes-10, 100)
	require.NoError(t, err)
	assert.Len(t, data, 10)
}

func TestVMDKReaderRejectsOtherFiles(t *testing.T) {
	hD := &VMDKReader{PathToEvidenceFiles: filepath.Join(t.TempDir(), "disk.img")}
	assert.ErrorIs(t, hD.CreateHandler(), errNotVMDK)

	path := filepath.Join(t.TempDir(), "flat.vmdk")
	require.NoError(t, os.WriteFile(path, []byte("# Disk DescriptorFile\n# Extent description\nRW 16 FLAT \"flat-f001.vmdk\" 0\n"), 0600))
	hD = &VMDKReader{PathToEvidenceFiles: path}
	assert.ErrorIs(t, hD.CreateHandler(), errNotVMDK)
}
