package attributes

import (
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"
	"github.com/utxob/Data-Recover-toll/utils"
)

// SIRecord is the part of $STANDARD_INFORMATION shared by all NTFS versions. 0-48
type SIRecord struct {
	Crtime         utils.WindowsTime
	Mtime          utils.WindowsTime
	MFTmtime       utils.WindowsTime
	Atime          utils.WindowsTime
	FileAttributes uint32
	Maxver         uint32
	Ver            uint32
	ClassID        uint32
}

type SIAttribute struct {
	SIRecord
	Header *Header
}

func (siattr *SIAttribute) SetHeader(header *Header) {
	siattr.Header = header
}

func (siattr SIAttribute) GetHeader() Header {
	return *siattr.Header
}

func (siattr *SIAttribute) Parse(data []byte) error {
	if len(data) < 48 {
		return fmt.Errorf("%w: standard information %d bytes", ErrAttributeTruncated, len(data))
	}
	return restruct.Unpack(data[:48], binary.LittleEndian, &siattr.SIRecord)
}

func (siattr SIAttribute) FindType() string {
	return siattr.Header.GetType()
}

func (siattr SIAttribute) IsNoNResident() bool {
	return siattr.Header.IsNoNResident()
}
