package readers

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestMemReaderFault(t *testing.T) {
	data := pattern(4096)
	hD := NewMemReader(data, Region{Offset: 1024, Length: 512})

	got, err := hD.ReadFile(512, 2048)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMediumFault))
	assert.Equal(t, data[512:1024], got)

	fault, ok := AsFault(err)
	require.True(t, ok)
	assert.Equal(t, int64(1024), fault.Offset)
	assert.Equal(t, int64(512), fault.Length)
	assert.Equal(t, int64(1536), fault.End())
}

func TestMemReaderClampsAtEnd(t *testing.T) {
	hD := NewMemReader(pattern(1000))
	got, err := hD.ReadFile(900, 512)
	require.NoError(t, err)
	assert.Len(t, got, 100)

	got, err = hD.ReadFile(2000, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// wholeRequestFailer fails every read touching a bad region, like a device returning EIO.
type wholeRequestFailer struct {
	*MemReader
}

func (failer wholeRequestFailer) ReadFile(offset int64, length int) ([]byte, error) {
	data, err := failer.MemReader.ReadFile(offset, length)
	if err != nil {
		return nil, &MediumFault{Offset: offset, Length: int64(length), Err: err}
	}
	return data, nil
}

func TestSectorReaderIsolatesBadSector(t *testing.T) {
	data := pattern(8192)
	inner := wholeRequestFailer{NewMemReader(data, Region{Offset: 2048, Length: 512})}
	hD := NewSectorReader(inner, 512)

	got, err := hD.ReadFile(0, 8192)
	require.Error(t, err)
	assert.Equal(t, data[:2048], got)

	fault, ok := AsFault(err)
	require.True(t, ok)
	assert.Equal(t, int64(2048), fault.Offset)
	assert.Equal(t, int64(512), fault.Length)

	rest, err := hD.ReadFile(fault.End(), 8192-int(fault.End()))
	require.NoError(t, err)
	assert.Equal(t, data[2560:], rest)
}

func TestSectorReaderPassesCleanReads(t *testing.T) {
	data := pattern(2048)
	hD := NewSectorReader(NewMemReader(data), 0)
	got, err := hD.ReadFile(100, 1000)
	require.NoError(t, err)
	assert.Equal(t, data[100:1100], got)
}

type slowReader struct {
	*MemReader
	delay time.Duration
}

func (slow slowReader) ReadFile(offset int64, length int) ([]byte, error) {
	time.Sleep(slow.delay)
	return slow.MemReader.ReadFile(offset, length)
}

func TestTimeoutReader(t *testing.T) {
	hD := NewTimeoutReader(slowReader{NewMemReader(pattern(1024)), 200 * time.Millisecond}, 10*time.Millisecond)
	_, err := hD.ReadFile(0, 512)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReadTimeout))
	fault, ok := AsFault(err)
	require.True(t, ok)
	assert.Equal(t, int64(512), fault.Length)

	fast := NewTimeoutReader(NewMemReader(pattern(1024)), time.Second)
	got, err := fast.ReadFile(0, 16)
	require.NoError(t, err)
	assert.Len(t, got, 16)
}

func TestChunkIterator(t *testing.T) {
	data := pattern(10000)
	it := NewChunkIterator(NewMemReader(data, Region{Offset: 4500, Length: 100}), 0, 10000, 4096)

	var joined bytes.Buffer
	var faults []*MediumFault
	for {
		chunk, ok := it.Next()
		if !ok {
			break
		}
		assert.Equal(t, int64(joined.Len()), chunk.Offset-skipped(faults))
		joined.Write(chunk.Data)
		if chunk.Fault != nil {
			faults = append(faults, chunk.Fault)
		}
	}
	require.Len(t, faults, 1)
	assert.Equal(t, int64(4500), faults[0].Offset)
	assert.Equal(t, 9900, joined.Len())
	assert.Equal(t, data[:4500], joined.Bytes()[:4500])
	assert.Equal(t, data[4600:], joined.Bytes()[4500:])
}

func skipped(faults []*MediumFault) int64 {
	var total int64
	for _, fault := range faults {
		total += fault.Length
	}
	return total
}

func TestChunkIteratorUnknownSize(t *testing.T) {
	hD := NewMemReader(pattern(3000))
	hD.UnknownSize = true
	it := NewChunkIterator(hD, 0, SizeUnknown, 1024)
	total := 0
	for {
		chunk, ok := it.Next()
		if !ok {
			break
		}
		total += len(chunk.Data)
	}
	assert.Equal(t, 3000, total)
}

func TestRawReader(t *testing.T) {
	data := pattern(4096)
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, data, 0600))

	hD, err := GetHandler(path, "auto")
	require.NoError(t, err)
	defer hD.CloseHandler()

	assert.Equal(t, int64(4096), hD.GetDiskSize())
	got, err := hD.ReadFile(4000, 512)
	require.NoError(t, err)
	assert.Equal(t, data[4000:], got)
}

func TestGetHandlerErrors(t *testing.T) {
	_, err := GetHandler(filepath.Join(t.TempDir(), "missing.img"), "raw")
	assert.True(t, errors.Is(err, ErrMediumUnreadable))

	_, err = GetHandler("x", "tape")
	assert.True(t, errors.Is(err, ErrUnknownMode))
}

func TestDetectMode(t *testing.T) {
	assert.Equal(t, "ewf", DetectMode("case.E01"))
	assert.Equal(t, "vmdk", DetectMode("vm.vmdk"))
	assert.Equal(t, "physicalDrive", DetectMode(`\\.\PHYSICALDRIVE1`))
	assert.Equal(t, "raw", DetectMode("/dev/sdb"))
}
