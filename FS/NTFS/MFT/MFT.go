package MFT

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-restruct/restruct"
	MFTAttributes "github.com/utxob/Data-Recover-toll/FS/NTFS/MFT/attributes"
	"github.com/utxob/Data-Recover-toll/logger"
	"github.com/utxob/Data-Recover-toll/readers"
)

var RecordSize = 1024

var ErrCorruptRecord = errors.New("MFT record failed validation")

var MFTflags = map[uint16]string{
	0: "File Unallocated", 1: "File Allocated", 2: "Folder Unallocated", 3: "Folder Allocated",
}

type Attribute interface {
	FindType() string
	SetHeader(header *MFTAttributes.Header)
	GetHeader() MFTAttributes.Header
	IsNoNResident() bool
	Parse([]byte) error
}

type FixUp struct {
	Signature      []byte
	OriginalValues [][]byte
}

// RecordHeader is the fixed FILE record prefix. 0-48
type RecordHeader struct {
	Signature            [4]byte //0-3
	UpdateFixUpArrOffset uint16  //4-5 relative to the start of the entry
	UpdateFixUpArrSize   uint16  //6-7
	Lsn                  uint64  //8-15 points to the most recent $LogFile entry
	Seq                  uint16  //16-17 incremented when the entry is allocated or unallocated
	Linkcount            uint16  //18-19
	AttrOff              uint16  //20-21 first attr location
	Flags                uint16  //22-23 in use, directory
	Size                 uint32  //24-27
	AllocSize            uint32  //28-31
	BaseRef              uint64  //32-39 base record of an extension record
	NextAttrID           uint16  //40-41
	F1                   uint16  //42-43
	Entry                uint32  //44-47
}

// Record is an MFT entry with its decoded attributes.
type Record struct {
	RecordHeader
	FixUp              *FixUp
	Attributes         []Attribute
	LinkedRecordsInfo  []MFTAttributes.LinkedRecordInfo //holds attr list entries
	LinkedRecords      []*Record                        //when attributes do not fit in one entry
	OriginLinkedRecord *Record                          //base record of an extension record
	Parent             *Record
	Orphan             bool
}

func (record Record) GetSignature() string {
	return string(record.Signature[:])
}

func (record Record) IsValid() bool {
	return record.GetSignature() == "FILE"
}

func (record Record) getType() string {
	return MFTflags[record.Flags&0x03]
}

func (record Record) IsFolder() bool {
	return record.Flags&0x02 != 0
}

func (record Record) IsDeleted() bool {
	return record.Flags&0x01 == 0
}

func (record Record) IsExtension() bool {
	return record.BaseRef&0xffffffffffff != 0
}

func (record Record) GetID() int {
	return int(record.Entry)
}

func (record Record) GetSequence() int {
	return int(record.Seq)
}

func (record *Record) ProcessFixUpArrays(data []byte) error {
	start := int(record.UpdateFixUpArrOffset)
	end := start + 2*int(record.UpdateFixUpArrSize)
	if record.UpdateFixUpArrSize < 2 || end > len(data) {
		return fmt.Errorf("%w: fixup array at %d size %d", ErrCorruptRecord, start, record.UpdateFixUpArrSize)
	}
	fixuparray := data[start:end]
	var fixupvals [][]byte
	for val := 2; val < len(fixuparray); val += 2 {
		fixupvals = append(fixupvals, append([]byte(nil), fixuparray[val:val+2]...))
	}
	record.FixUp = &FixUp{Signature: append([]byte(nil), fixuparray[:2]...), OriginalValues: fixupvals}

	for idx, original := range record.FixUp.OriginalValues {
		sectorEnd := (idx + 1) * 512
		if sectorEnd > len(data) {
			break
		}
		if data[sectorEnd-2] != record.FixUp.Signature[0] || data[sectorEnd-1] != record.FixUp.Signature[1] {
			return fmt.Errorf("%w: update sequence mismatch in sector %d", ErrCorruptRecord, idx)
		}
		copy(data[sectorEnd-2:sectorEnd], original)
	}
	return nil
}

// Process verifies the record and decodes its attributes, bs is modified by the fixups.
func (record *Record) Process(bs []byte) error {
	if len(bs) < 48 {
		return fmt.Errorf("%w: %d bytes", ErrCorruptRecord, len(bs))
	}
	if err := restruct.Unpack(bs[:48], binary.LittleEndian, &record.RecordHeader); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}

	if record.GetSignature() == "BAAD" {
		return fmt.Errorf("%w: record %d marked BAAD", ErrCorruptRecord, record.Entry)
	} else if !record.IsValid() {
		return fmt.Errorf("%w: non valid signature %x", ErrCorruptRecord, record.Signature)
	}
	if err := record.ProcessFixUpArrays(bs); err != nil {
		return err
	}

	limit := len(bs)
	if record.Size > 0 && int(record.Size) < limit {
		limit = int(record.Size)
	}
	ReadPtr := int(record.AttrOff)
	var attributes []Attribute
	var linkedRecordsInfo []MFTAttributes.LinkedRecordInfo

	for ReadPtr+4 <= limit {
		attrHeader, err := MFTAttributes.ParseHeader(bs[ReadPtr:limit])
		if err != nil {
			return fmt.Errorf("%w: record %d: %w", ErrCorruptRecord, record.Entry, err)
		}
		if attrHeader.IsLast() {
			break
		}

		var attr Attribute
		if !attrHeader.IsNoNResident() {
			switch {
			case attrHeader.IsFileName():
				attr = &MFTAttributes.FNAttribute{}
			case attrHeader.IsData():
				attr = &MFTAttributes.DATA{}
			case attrHeader.IsStdInfo():
				attr = &MFTAttributes.SIAttribute{}
			case attrHeader.IsAttrList():
				attr = &MFTAttributes.AttributeListEntries{}
			}
			if attr != nil {
				if err := attr.Parse(attrHeader.Content(bs[ReadPtr:limit])); err != nil {
					return fmt.Errorf("%w: record %d %s: %w", ErrCorruptRecord, record.Entry, attrHeader.GetType(), err)
				}
			}
			if list, ok := attr.(*MFTAttributes.AttributeListEntries); ok {
				linkedRecordsInfo = append(linkedRecordsInfo, list.GetLinkedRecordsInfo(record.Entry)...)
			}
		} else {
			switch {
			case attrHeader.IsData():
				attr = &MFTAttributes.DATA{}
			case attrHeader.IsAttrList():
				attr = &MFTAttributes.AttributeListEntries{}
			}
		}

		if attr != nil {
			attr.SetHeader(attrHeader)
			attributes = append(attributes, attr)
		} else if _, known := MFTAttributes.AttrTypes[attrHeader.Type]; !known {
			logger.RecoveryLogger.Warning(fmt.Sprintf("unknown attribute %s at record %d",
				attrHeader.GetType(), record.Entry))
		}
		ReadPtr += int(attrHeader.AttrLen)
	}
	record.Attributes = attributes
	record.LinkedRecordsInfo = linkedRecordsInfo
	return nil
}

// ProcessNoNResidentAttributes loads attribute lists stored outside the record.
func (record *Record) ProcessNoNResidentAttributes(hD readers.DiskReader, partitionOffsetB int64, clusterSizeB int) error {
	for _, attr := range record.Attributes {
		list, ok := attr.(*MFTAttributes.AttributeListEntries)
		if !ok || !list.IsNoNResident() {
			continue
		}
		content, err := list.Header.GetContent(hD, partitionOffsetB, clusterSizeB)
		if errors.Is(err, MFTAttributes.ErrAttributeOversized) {
			return fmt.Errorf("%w: attribute list of record %d: %w", ErrCorruptRecord, record.Entry, err)
		} else if err != nil {
			return fmt.Errorf("attribute list of record %d: %w", record.Entry, err)
		}
		if err := list.Parse(content); err != nil {
			return fmt.Errorf("%w: attribute list of record %d: %w", ErrCorruptRecord, record.Entry, err)
		}
		record.LinkedRecordsInfo = append(record.LinkedRecordsInfo, list.GetLinkedRecordsInfo(record.Entry)...)
	}
	return nil
}

func (record Record) FindAttribute(attributeName string) Attribute {
	for _, attribute := range record.Attributes {
		if attribute.FindType() == attributeName {
			return attribute
		}
	}
	return nil
}

func (record Record) HasAttr(attrName string) bool {
	return record.FindAttribute(attrName) != nil
}

// findData returns the unnamed DATA attributes of the record and its extension records.
func (record Record) findData() []*MFTAttributes.DATA {
	var datas []*MFTAttributes.DATA
	collect := func(rec *Record) {
		for _, attribute := range rec.Attributes {
			if data, ok := attribute.(*MFTAttributes.DATA); ok && data.IsUnnamed() {
				datas = append(datas, data)
			}
		}
	}
	collect(&record)
	for _, linkedRecord := range record.LinkedRecords {
		collect(linkedRecord)
	}
	return datas
}

func (record Record) HasResidentDataAttr() bool {
	datas := record.findData()
	return len(datas) > 0 && !datas[0].IsNoNResident()
}

func (record Record) GetResidentData() []byte {
	datas := record.findData()
	if len(datas) == 0 || datas[0].IsNoNResident() {
		return nil
	}
	return datas[0].Content
}

// GetDataRuns merges the runlists of the unnamed DATA attributes ordered by start VCN,
// VCN gaps between attributes are reported as sparse runs.
func (record Record) GetDataRuns() []MFTAttributes.Run {
	var headers []MFTAttributes.Header
	for _, data := range record.findData() {
		if data.IsNoNResident() && data.Header.ATRrecordNoNResident != nil {
			headers = append(headers, *data.Header)
		}
	}
	slices.SortFunc(headers, func(a, b MFTAttributes.Header) int {
		return cmp.Compare(a.ATRrecordNoNResident.StartVcn, b.ATRrecordNoNResident.StartVcn)
	})

	var runs []MFTAttributes.Run
	vcn := uint64(0)
	for _, header := range headers {
		startVcn := header.ATRrecordNoNResident.StartVcn
		if startVcn < vcn {
			logger.RecoveryLogger.Warning(fmt.Sprintf("record %d overlapping DATA at vcn %d", record.Entry, startVcn))
			continue
		}
		if startVcn > vcn {
			runs = append(runs, MFTAttributes.Run{Length: startVcn - vcn, Sparse: true})
		}
		vcn = startVcn
		for _, run := range header.RunList.Runs() {
			runs = append(runs, run)
			vcn += run.Length
		}
	}
	return runs
}

func (record Record) GetFnames() map[string]string {
	fnames := make(map[string]string)
	for _, attribute := range record.Attributes {
		if fnattr, ok := attribute.(*MFTAttributes.FNAttribute); ok {
			fnames[fnattr.GetFileNameType()] = fnattr.Fname
		}
	}
	return fnames
}

func (record Record) GetFname() string {
	if record.OriginLinkedRecord != nil {
		return record.OriginLinkedRecord.GetFname()
	}
	fnames := record.GetFnames()
	for _, namescheme := range []string{"Win32", "Win32 & Dos", "POSIX", "Dos"} {
		name, ok := fnames[namescheme]
		if ok {
			return name
		}
	}
	return "-"
}

func (record Record) getFNAttribute() *MFTAttributes.FNAttribute {
	var found *MFTAttributes.FNAttribute
	for _, attribute := range record.Attributes {
		if fnattr, ok := attribute.(*MFTAttributes.FNAttribute); ok {
			// long names first
			if found == nil || found.Nspace == 2 {
				found = fnattr
			}
		}
	}
	return found
}

// GetParentRef returns the parent entry and sequence from $FILE_NAME.
func (record Record) GetParentRef() (uint32, uint16, bool) {
	fnattr := record.getFNAttribute()
	if fnattr == nil {
		return 0, 0, false
	}
	return uint32(fnattr.ParRef), fnattr.ParSeq, true
}

// GetLogicalFileSize prefers the DATA attribute over the often stale $FILE_NAME size.
func (record Record) GetLogicalFileSize() int64 {
	if record.OriginLinkedRecord != nil {
		return record.OriginLinkedRecord.GetLogicalFileSize()
	}
	for _, data := range record.findData() {
		if !data.IsNoNResident() {
			return int64(len(data.Content))
		}
		if header := data.Header.ATRrecordNoNResident; header.StartVcn == 0 {
			return int64(header.ActualLength)
		}
	}
	if fnattr := record.getFNAttribute(); fnattr != nil {
		return int64(fnattr.RealFsize)
	}
	return 0
}

func (record Record) GetPhysicalSize() int64 {
	if fnattr := record.getFNAttribute(); fnattr != nil {
		return int64(fnattr.AllocFsize)
	}
	return 0
}

func (record Record) GetModifiedTime() time.Time {
	if attr := record.FindAttribute("Standard Information"); attr != nil {
		return attr.(*MFTAttributes.SIAttribute).Mtime.ConvertToTime()
	}
	if fnattr := record.getFNAttribute(); fnattr != nil {
		return fnattr.Mtime.ConvertToTime()
	}
	return time.Time{}
}

func (record Record) GetLinkedRecords() []*Record {
	return record.LinkedRecords
}

func (record Record) HasParent() bool {
	return record.Parent != nil
}

func (record Record) String() string {
	return fmt.Sprintf("record %d seq %d %s %s", record.Entry, record.Seq, record.getType(), record.GetFname())
}
