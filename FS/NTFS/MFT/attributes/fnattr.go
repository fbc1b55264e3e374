package attributes

import (
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"
	"github.com/utxob/Data-Recover-toll/utils"
)

var NameSpaceFlags = map[uint8]string{
	0: "POSIX", 1: "Win32", 2: "Dos", 3: "Win32 & Dos",
}

// FNRecord is the fixed part of $FILE_NAME. 0-66
type FNRecord struct {
	Parent     uint64 //0-8 6 bytes entry, 2 bytes sequence
	Crtime     utils.WindowsTime
	Mtime      utils.WindowsTime
	MFTmtime   utils.WindowsTime
	Atime      utils.WindowsTime
	AllocFsize uint64
	RealFsize  uint64
	Flags      uint32
	Reparse    uint32
	Nlen       uint8
	Nspace     uint8
}

type FNAttribute struct {
	FNRecord
	ParRef uint64
	ParSeq uint16
	Fname  string
	Header *Header
}

func (fnattr *FNAttribute) SetHeader(header *Header) {
	fnattr.Header = header
}

func (fnattr FNAttribute) GetHeader() Header {
	return *fnattr.Header
}

func (fnattr FNAttribute) FindType() string {
	return fnattr.Header.GetType()
}

func (fnattr FNAttribute) IsNoNResident() bool {
	return fnattr.Header.IsNoNResident()
}

func (fnAttr *FNAttribute) Parse(data []byte) error {
	if len(data) < 66 {
		return fmt.Errorf("%w: file name %d bytes", ErrAttributeTruncated, len(data))
	}
	if err := restruct.Unpack(data[:66], binary.LittleEndian, &fnAttr.FNRecord); err != nil {
		return err
	}
	fnAttr.ParRef = fnAttr.Parent & 0xffffffffffff
	fnAttr.ParSeq = uint16(fnAttr.Parent >> 48)

	nameEnd := 66 + 2*int(fnAttr.Nlen)
	if nameEnd > len(data) {
		return fmt.Errorf("%w: file name of %d chars", ErrAttributeTruncated, fnAttr.Nlen)
	}
	fnAttr.Fname = utils.DecodeUTF16(data[66:nameEnd])
	return nil
}

func (fnAttr FNAttribute) GetFileNameType() string {
	return NameSpaceFlags[fnAttr.Nspace]
}
