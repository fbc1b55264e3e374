//go:build windows

package readers

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/utxob/Data-Recover-toll/logger"
	"golang.org/x/sys/windows"
)

const chunkSize = 512 * 1024 * 1024 // 512 MB

var (
	kernel32             = windows.NewLazySystemDLL("kernel32.dll")
	procSetFilePointerEx = kernel32.NewProc("SetFilePointerEx")
)

type DISK_GEOMETRY struct {
	Cylinders         int64
	MediaType         int32
	TracksPerCylinder int32
	SectorsPerTrack   int32
	BytesPerSector    int32
}

type WindowsReader struct {
	a_file string
	fd     windows.Handle
}

func newPhysicalDriveReader(pathToDisk string) DiskReader {
	return &WindowsReader{a_file: pathToDisk}
}

func deviceSize(file *os.File) int64 {
	return SizeUnknown
}

func (winreader *WindowsReader) CreateHandler() error {
	file_ptr, err := windows.UTF16PtrFromString(winreader.a_file)
	if err != nil {
		return err
	}
	var templateHandle windows.Handle
	fd, err := windows.CreateFile(file_ptr, windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE, nil,
		windows.OPEN_EXISTING, windows.FILE_FLAG_SEQUENTIAL_SCAN, templateHandle)
	if err != nil {
		return err
	}
	winreader.fd = fd
	return nil
}

func (winreader *WindowsReader) CloseHandler() error {
	return windows.Close(winreader.fd)
}

func (winreader *WindowsReader) GetDiskSize() int64 {
	const IOCTL_DISK_GET_DRIVE_GEOMETRY = 0x70000
	const nByte_DISK_GEOMETRY = 24
	disk_geometry := DISK_GEOMETRY{}

	var returned uint32
	var inBuffer *byte
	err := windows.DeviceIoControl(winreader.fd, IOCTL_DISK_GET_DRIVE_GEOMETRY,
		inBuffer, 0, (*byte)(unsafe.Pointer(&disk_geometry)), nByte_DISK_GEOMETRY, &returned, nil)
	if err != nil {
		logger.RecoveryLogger.Warning(fmt.Sprintf("drive geometry unavailable for %s: %v", winreader.a_file, err))
		return SizeUnknown
	}

	return disk_geometry.Cylinders * int64(disk_geometry.TracksPerCylinder) *
		int64(disk_geometry.SectorsPerTrack) * int64(disk_geometry.BytesPerSector)
}

func (winreader *WindowsReader) ReadFile(startOffset int64, totalSize int) ([]byte, error) {
	data := make([]byte, 0, totalSize)
	buffer := make([]byte, min(totalSize, chunkSize))
	offset := int64(0)

	for int(offset) < totalSize {
		err := setFilePointerEx(winreader.fd, offset+startOffset, windows.FILE_BEGIN)
		if err != nil {
			return data, &MediumFault{Offset: startOffset + offset, Length: int64(totalSize) - offset, Err: err}
		}

		toRead := min(chunkSize, totalSize-int(offset))
		bytesRead := uint32(0)
		err = windows.ReadFile(winreader.fd, buffer[:toRead], &bytesRead, nil)
		if err != nil {
			logger.RecoveryLogger.Error(fmt.Sprintf("Read failed at offset %d: %v", offset+startOffset, err))
			return data, &MediumFault{Offset: startOffset + offset, Length: int64(totalSize) - offset, Err: err}
		}
		if bytesRead == 0 {
			break
		}
		data = append(data, buffer[:bytesRead]...)
		offset += int64(bytesRead)
	}
	return data, nil
}

func setFilePointerEx(handle windows.Handle, distance int64, moveMethod uint32) error {
	var newPos int64
	r1, _, err := procSetFilePointerEx.Call(
		uintptr(handle),
		uintptr(distance),
		uintptr(unsafe.Pointer(&newPos)),
		uintptr(moveMethod),
	)
	if r1 == 0 {
		return err
	}
	return nil
}
