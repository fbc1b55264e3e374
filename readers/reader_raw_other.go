//go:build !unix && !windows

package readers

import "os"

func deviceSize(file *os.File) int64 {
	return SizeUnknown
}

func newPhysicalDriveReader(pathToDisk string) DiskReader {
	return &RawReader{PathToEvidenceFiles: pathToDisk}
}
