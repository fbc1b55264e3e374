package attributes

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-restruct/restruct"
	"github.com/utxob/Data-Recover-toll/readers"
	"github.com/utxob/Data-Recover-toll/utils"
)

var (
	ErrAttributeTruncated = errors.New("attribute exceeds record")
	ErrAttributeOversized = errors.New("attribute length exceeds its allocation")
)

var AttrTypes = map[uint32]string{
	0x10: "Standard Information", 0x20: "Attribute List",
	0x30: "FileName", 0x40: "Object ID",
	0x50: "Security Descriptor", 0x60: "Volume Name",
	0x70: "Volume Information", 0x80: "DATA",
	0x90: "Index Root", 0xa0: "Index Allocation",
	0xb0: "BitMap", 0xc0: "Reparse Point",
	0xe0: "Extended Attribute", 0xf0: "Extended Attribute Information",
	0x100:      "Logged Utility Stream",
	0xffffffff: "Last",
}

// AttributeHeader is the common prefix of every attribute. 0-16
type AttributeHeader struct {
	Type        uint32 //0-4
	AttrLen     uint32 //4-8
	NoNResident uint8  //8
	Nlen        uint8  //9
	NameOff     uint16 //10-12 relative to the start of attribute
	Flags       uint16 //12-14 compressed, encrypted, sparse
	ID          uint16 //14-16
}

// ATRrecordResident follows the header of resident attributes. 16-24
type ATRrecordResident struct {
	ContentSize   uint32 //16-20
	OffsetContent uint16 //20-22
	IdxFlags      uint16 //22-24
}

// ATRrecordNoNResident follows the header of non resident attributes. 16-64
type ATRrecordNoNResident struct {
	StartVcn     uint64 //16-24
	LastVcn      uint64 //24-32
	RunOff       uint16 //32-34
	Compusize    uint16 //34-36
	F1           uint32 //36-40
	Length       uint64 //40-48 allocated
	ActualLength uint64 //48-56
	InitLength   uint64 //56-64
}

// Header is a decoded attribute header with its form specific part.
type Header struct {
	AttributeHeader
	Name                 string
	ATRrecordResident    *ATRrecordResident
	ATRrecordNoNResident *ATRrecordNoNResident
	RunList              *RunList
	RunListTotalLenCl    uint64
}

// ParseHeader decodes the attribute starting at data[0], data extends to the record end.
func ParseHeader(data []byte) (*Header, error) {
	header := new(Header)
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %d bytes left for type", ErrAttributeTruncated, len(data))
	}
	// the end marker is only four bytes, the record may end right after it
	if header.Type = binary.LittleEndian.Uint32(data[:4]); header.IsLast() {
		return header, nil
	}
	if len(data) < 16 {
		return nil, fmt.Errorf("%w: %d bytes left for header", ErrAttributeTruncated, len(data))
	}
	if err := restruct.Unpack(data[:16], binary.LittleEndian, &header.AttributeHeader); err != nil {
		return nil, err
	}
	if header.AttrLen < 16 || int(header.AttrLen) > len(data) {
		return nil, fmt.Errorf("%w: %s length %d available %d", ErrAttributeTruncated,
			header.GetType(), header.AttrLen, len(data))
	}
	attr := data[:header.AttrLen]

	if header.Nlen > 0 {
		nameEnd := int(header.NameOff) + 2*int(header.Nlen)
		if nameEnd > len(attr) {
			return nil, fmt.Errorf("%w: %s name", ErrAttributeTruncated, header.GetType())
		}
		header.Name = utils.DecodeUTF16(attr[header.NameOff:nameEnd])
	}

	if !header.IsNoNResident() {
		if len(attr) < 24 {
			return nil, fmt.Errorf("%w: resident %s", ErrAttributeTruncated, header.GetType())
		}
		header.ATRrecordResident = new(ATRrecordResident)
		if err := restruct.Unpack(attr[16:24], binary.LittleEndian, header.ATRrecordResident); err != nil {
			return nil, err
		}
		if end := int(header.ATRrecordResident.OffsetContent) + int(header.ATRrecordResident.ContentSize); end > len(attr) {
			return nil, fmt.Errorf("%w: resident %s content ends at %d", ErrAttributeTruncated, header.GetType(), end)
		}
		return header, nil
	}

	if len(attr) < 64 {
		return nil, fmt.Errorf("%w: non resident %s", ErrAttributeTruncated, header.GetType())
	}
	header.ATRrecordNoNResident = new(ATRrecordNoNResident)
	if err := restruct.Unpack(attr[16:64], binary.LittleEndian, header.ATRrecordNoNResident); err != nil {
		return nil, err
	}
	runOff := int(header.ATRrecordNoNResident.RunOff)
	if runOff > len(attr) {
		return nil, fmt.Errorf("%w: %s runlist offset %d", ErrAttributeTruncated, header.GetType(), runOff)
	}
	header.RunList = new(RunList)
	header.RunListTotalLenCl = header.RunList.Process(attr[runOff:])
	return header, nil
}

// Content returns the resident payload of the attribute at data[0].
func (header Header) Content(data []byte) []byte {
	if header.ATRrecordResident == nil {
		return nil
	}
	start := int(header.ATRrecordResident.OffsetContent)
	return data[start : start+int(header.ATRrecordResident.ContentSize)]
}

func (attrHeader AttributeHeader) GetType() string {
	attrType, ok := AttrTypes[attrHeader.Type]
	if ok {
		return attrType
	}
	return fmt.Sprintf("%x", attrHeader.Type)
}

func (attrHeader AttributeHeader) IsLast() bool {
	return attrHeader.Type == 0xffffffff
}

func (attrHeader AttributeHeader) IsFileName() bool {
	return attrHeader.GetType() == "FileName"
}

func (attrHeader AttributeHeader) IsData() bool {
	return attrHeader.GetType() == "DATA"
}

func (attrHeader AttributeHeader) IsAttrList() bool {
	return attrHeader.GetType() == "Attribute List"
}

func (attrHeader AttributeHeader) IsStdInfo() bool {
	return attrHeader.GetType() == "Standard Information"
}

func (attrHeader AttributeHeader) IsNoNResident() bool {
	return attrHeader.NoNResident == 1
}

func (attrHeader AttributeHeader) IsCompressed() bool {
	return attrHeader.Flags&0x0001 != 0
}

func (attrHeader AttributeHeader) IsEncrypted() bool {
	return attrHeader.Flags&0x4000 != 0
}

// GetContent reads the non resident content up to its actual length, sparse runs read as zeros.
// The actual length must fit both the clusters of the runlist and the medium.
func (header Header) GetContent(hD readers.DiskReader, partitionOffsetB int64, clusterSizeB int) ([]byte, error) {
	if header.ATRrecordNoNResident == nil {
		return nil, fmt.Errorf("%s is resident", header.GetType())
	}
	if clusterSizeB <= 0 {
		return nil, fmt.Errorf("%w: cluster size %d", ErrAttributeOversized, clusterSizeB)
	}
	actualLength := header.ATRrecordNoNResident.ActualLength
	clusters := actualLength/uint64(clusterSizeB) + min(actualLength%uint64(clusterSizeB), 1)
	if clusters > header.RunListTotalLenCl {
		return nil, fmt.Errorf("%w: %s of %d bytes in %d clusters", ErrAttributeOversized,
			header.GetType(), actualLength, header.RunListTotalLenCl)
	}
	if size := hD.GetDiskSize(); actualLength > math.MaxInt64 || (size != readers.SizeUnknown && int64(actualLength) > size) {
		return nil, fmt.Errorf("%w: %s of %d bytes on a medium of %d", ErrAttributeOversized,
			header.GetType(), actualLength, size)
	}
	actualLen := int64(actualLength)

	var content []byte
	for _, run := range header.RunList.Runs() {
		if int64(len(content)) >= actualLen {
			break
		}
		length := actualLen - int64(len(content))
		if run.Length < uint64(length)/uint64(clusterSizeB)+1 {
			length = int64(run.Length) * int64(clusterSizeB)
		}
		if run.Sparse {
			content = append(content, make([]byte, length)...)
			continue
		}
		data, err := hD.ReadFile(partitionOffsetB+run.Cluster*int64(clusterSizeB), int(length))
		content = append(content, data...)
		if err != nil {
			return content, err
		}
		if int64(len(data)) < length {
			return content, fmt.Errorf("%w: %s ends at %d", ErrAttributeTruncated, header.GetType(), len(content))
		}
	}
	if int64(len(content)) < actualLen {
		return content, fmt.Errorf("%w: runlist of %s covers %d of %d", ErrAttributeTruncated,
			header.GetType(), len(content), actualLen)
	}
	return content, nil
}
