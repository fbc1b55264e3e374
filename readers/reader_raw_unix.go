//go:build unix

package readers

import (
	"os"

	"golang.org/x/sys/unix"
)

// deviceSize seeks a block device descriptor to its end.
func deviceSize(file *os.File) int64 {
	fd := int(file.Fd())
	size, err := unix.Seek(fd, 0, unix.SEEK_END)
	if err != nil || size <= 0 {
		return SizeUnknown
	}
	if _, err := unix.Seek(fd, 0, unix.SEEK_SET); err != nil {
		return SizeUnknown
	}
	return size
}

func newPhysicalDriveReader(pathToDisk string) DiskReader {
	return &RawReader{PathToEvidenceFiles: pathToDisk}
}
