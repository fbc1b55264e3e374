package attributes

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
	"github.com/utxob/Data-Recover-toll/utils"
)

// AttributeList is one $ATTRIBUTE_LIST entry. 0-26
type AttributeList struct {
	Type       uint32 //0-4
	Len        uint16 //4-6
	Namelen    uint8  //6
	Nameoffset uint8  //7
	StartVcn   uint64 //8-16
	Ref        uint64 //16-24 6 bytes entry, 2 bytes sequence
	ID         uint16 //24-26
}

type AttributeListEntry struct {
	AttributeList
	ParRef uint64
	ParSeq uint16
	Name   string
}

type AttributeListEntries struct {
	Entries []AttributeListEntry
	Header  *Header
}

type LinkedRecordInfo struct {
	RefEntry uint32
	RefSeq   uint16
	StartVCN uint64
}

func (attrList AttributeList) GetType() string {
	return AttributeHeader{Type: attrList.Type}.GetType()
}

func (attrListEntries *AttributeListEntries) SetHeader(header *Header) {
	attrListEntries.Header = header
}

func (attrListEntries AttributeListEntries) GetHeader() Header {
	return *attrListEntries.Header
}

func (attrListEntries *AttributeListEntries) Parse(data []byte) error {
	attrListEntries.Entries = nil
	pos := 0
	for pos+26 <= len(data) {
		var entry AttributeListEntry
		if err := restruct.Unpack(data[pos:pos+26], binary.LittleEndian, &entry.AttributeList); err != nil {
			return err
		}
		if entry.Len < 26 {
			break
		}
		entry.ParRef = entry.Ref & 0xffffffffffff
		entry.ParSeq = uint16(entry.Ref >> 48)
		nameStart := pos + int(entry.Nameoffset)
		if nameEnd := nameStart + 2*int(entry.Namelen); entry.Namelen > 0 && nameEnd <= len(data) {
			entry.Name = utils.DecodeUTF16(data[nameStart:nameEnd])
		}
		attrListEntries.Entries = append(attrListEntries.Entries, entry)
		pos += int(entry.Len)
	}
	return nil
}

// GetLinkedRecordsInfo lists the extension records holding unnamed DATA attributes.
func (attrListEntries AttributeListEntries) GetLinkedRecordsInfo(entryID uint32) []LinkedRecordInfo {
	var linkedRecordsInfo []LinkedRecordInfo
	for _, entry := range attrListEntries.Entries {
		if entry.GetType() != "DATA" || entry.Namelen != 0 {
			continue
		}
		// attribute is stored in the same base record
		if entry.ParRef == uint64(entryID) {
			continue
		}
		linkedRecordsInfo = append(linkedRecordsInfo,
			LinkedRecordInfo{RefEntry: uint32(entry.ParRef), StartVCN: entry.StartVcn, RefSeq: entry.ParSeq})
	}
	return linkedRecordsInfo
}

func (attrListEntries AttributeListEntries) FindType() string {
	return attrListEntries.Header.GetType()
}

func (attrListEntries AttributeListEntries) IsNoNResident() bool {
	return attrListEntries.Header.IsNoNResident()
}
