package readers

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// SizeUnknown is reported by media whose length cannot be determined.
const SizeUnknown = int64(-1)

var (
	ErrMediumFault      = errors.New("medium fault")
	ErrReadTimeout      = errors.New("read timed out")
	ErrMediumUnreadable = errors.New("medium unreadable")
	ErrUnknownMode      = errors.New("unknown reader mode")
)

// DiskReader is a read-only byte source. ReadFile returns the readable prefix of the
// requested range; when the range could not be read completely the error is a *MediumFault.
type DiskReader interface {
	CreateHandler() error
	CloseHandler() error
	ReadFile(int64, int) ([]byte, error)
	GetDiskSize() int64
}

// MediumFault marks the unreadable run [Offset, Offset+Length) following the returned prefix.
// Bytes past the run were not read.
type MediumFault struct {
	Offset int64
	Length int64
	Err    error
}

func (fault *MediumFault) Error() string {
	if fault.Err == nil {
		return fmt.Sprintf("medium fault at %d len %d", fault.Offset, fault.Length)
	}
	return fmt.Sprintf("medium fault at %d len %d: %v", fault.Offset, fault.Length, fault.Err)
}

func (fault *MediumFault) Unwrap() error {
	return fault.Err
}

func (fault *MediumFault) Is(target error) bool {
	return target == ErrMediumFault
}

func (fault *MediumFault) End() int64 {
	return fault.Offset + fault.Length
}

// AsFault extracts the fault from an error returned by ReadFile.
func AsFault(err error) (*MediumFault, bool) {
	var fault *MediumFault
	if errors.As(err, &fault) {
		return fault, true
	}
	return nil, false
}

// clamp trims a request to the medium size, it returns a non positive length past the end.
func clamp(offset int64, length int, size int64) int {
	if size == SizeUnknown || offset+int64(length) <= size {
		return length
	}
	if offset >= size {
		return 0
	}
	return int(size - offset)
}

func DetectMode(pathToDisk string) string {
	if strings.HasPrefix(strings.ToUpper(pathToDisk), `\\.\PHYSICALDRIVE`) {
		return "physicalDrive"
	}
	switch strings.ToLower(filepath.Ext(pathToDisk)) {
	case ".e01", ".ewf":
		return "ewf"
	case ".vmdk":
		return "vmdk"
	}
	return "raw"
}

func GetHandler(pathToDisk string, mode string) (DiskReader, error) {
	if mode == "" || mode == "auto" {
		mode = DetectMode(pathToDisk)
	}

	var dr DiskReader
	switch mode {
	case "physicalDrive":
		dr = newPhysicalDriveReader(pathToDisk)
	case "ewf":
		dr = &EWFReader{PathToEvidenceFiles: pathToDisk}
	case "raw", "device":
		dr = &RawReader{PathToEvidenceFiles: pathToDisk}
	case "vmdk":
		dr = &VMDKReader{PathToEvidenceFiles: pathToDisk}
	default:
		return nil, fmt.Errorf("%w %s", ErrUnknownMode, mode)
	}
	if err := dr.CreateHandler(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediumUnreadable, err)
	}

	return dr, nil
}
