package FAT

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf16"

	"github.com/go-restruct/restruct"
	"github.com/utxob/Data-Recover-toll/logger"
	"github.com/utxob/Data-Recover-toll/utils"
)

const (
	DirEntrySize = 32

	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLongName  = 0x0F

	deletedMarker = 0xE5
)

// DirEntryRaw is a short name directory entry. 0-32
type DirEntryRaw struct {
	Name         [8]byte
	Ext          [3]byte
	Attr         uint8
	NTRes        uint8
	CrtTimeTenth uint8
	CrtTime      uint16
	CrtDate      uint16
	LstAccDate   uint16
	FstClusHI    uint16
	WrtTime      uint16
	WrtDate      uint16
	FstClusLO    uint16
	FileSize     uint32
}

// LFNEntry is one long file name slot. 0-32
type LFNEntry struct {
	Ord       uint8
	Name1     [10]byte
	Attr      uint8
	Type      uint8
	Chksum    uint8
	Name2     [12]byte
	FstClusLO uint16
	Name3     [4]byte
}

// DirEntry is a decoded short entry with its long name. ID is the byte offset of the
// entry within the volume, ParentID the ID of the directory holding it.
type DirEntry struct {
	DirEntryRaw
	LongName  string
	ShortName string
	Deleted   bool
	ID        int64
	ParentID  int64
}

func (entry DirEntry) IsFolder() bool {
	return entry.Attr&AttrDirectory != 0
}

func (entry DirEntry) GetFirstCluster() uint32 {
	return uint32(entry.FstClusHI)<<16 | uint32(entry.FstClusLO)
}

func (entry DirEntry) GetFname() string {
	if entry.LongName != "" {
		return entry.LongName
	}
	return entry.ShortName
}

func (entry DirEntry) GetModifiedTime() time.Time {
	return utils.DOSDateTime(entry.WrtDate, entry.WrtTime)
}

func (entry DirEntry) String() string {
	return fmt.Sprintf("%s cluster %d size %d deleted %t", entry.GetFname(), entry.GetFirstCluster(),
		entry.FileSize, entry.Deleted)
}

// Checksum is the long name checksum of an 11 byte short name.
func Checksum(shortName []byte) uint8 {
	var sum uint8
	for _, val := range shortName[:11] {
		sum = (sum&1)<<7 + sum>>1 + val
	}
	return sum
}

func decodeShortName(raw [11]byte) string {
	name := strings.TrimRight(utils.DecodeCP437(raw[:8]), " ")
	ext := strings.TrimRight(utils.DecodeCP437(raw[8:]), " ")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

func (lfn LFNEntry) chars() []uint16 {
	var units []uint16
	for _, part := range [][]byte{lfn.Name1[:], lfn.Name2[:], lfn.Name3[:]} {
		for idx := 0; idx+1 < len(part); idx += 2 {
			units = append(units, binary.LittleEndian.Uint16(part[idx:]))
		}
	}
	return units
}

// assembleLongName joins slots stored last part first.
func assembleLongName(slots []LFNEntry) string {
	var units []uint16
	for idx := len(slots) - 1; idx >= 0; idx-- {
		units = append(units, slots[idx].chars()...)
	}
	for idx, unit := range units {
		if unit == 0x0000 || unit == 0xFFFF {
			units = units[:idx]
			break
		}
	}
	return string(utf16.Decode(units))
}

// restoreFirstByte recovers the short name byte overwritten by the deletion marker.
// The checksum determines it uniquely, the long name confirms it when it starts with
// a letter or digit.
func restoreFirstByte(raw [11]byte, longName string, checksum uint8) (byte, bool) {
	for val := 0x20; val < 0x100; val++ {
		raw[0] = byte(val)
		if val == deletedMarker || Checksum(raw[:]) != checksum {
			continue
		}
		runes := []rune(longName)
		if len(runes) > 0 && runes[0] < 0x80 && (unicode.IsLetter(runes[0]) || unicode.IsDigit(runes[0])) {
			return byte(val), byte(unicode.ToUpper(runes[0])) == byte(val)
		}
		return byte(val), true
	}
	return 0, false
}

// ParseDirectory decodes the entries of a directory content. Offset is the volume
// byte offset of data, parentID the ID of the directory.
func ParseDirectory(data []byte, offset int64, parentID int64) []DirEntry {
	var entries []DirEntry
	var slots []LFNEntry

	for pos := 0; pos+DirEntrySize <= len(data); pos += DirEntrySize {
		slot := data[pos : pos+DirEntrySize]
		if slot[0] == 0x00 { // no more entries
			break
		}
		if slot[11] == AttrLongName {
			var lfn LFNEntry
			if err := restruct.Unpack(slot, binary.LittleEndian, &lfn); err != nil {
				slots = nil
				continue
			}
			if lfn.Ord&0x40 != 0 && lfn.Ord != deletedMarker {
				slots = nil // first slot of a new live sequence
			}
			slots = append(slots, lfn)
			continue
		}

		var entry DirEntry
		if err := restruct.Unpack(slot, binary.LittleEndian, &entry.DirEntryRaw); err != nil {
			slots = nil
			continue
		}
		entry.ID = offset + int64(pos)
		entry.ParentID = parentID
		entry.Deleted = slot[0] == deletedMarker
		pending := slots
		slots = nil

		if entry.Attr&AttrVolumeID != 0 || slot[0] == '.' {
			continue
		}
		var raw [11]byte
		copy(raw[:], slot[:11])
		if raw[0] == 0x05 { // 0xE5 as a real first byte
			raw[0] = deletedMarker
		}

		if len(pending) > 0 {
			longName := assembleLongName(pending)
			checksum := pending[len(pending)-1].Chksum
			consistent := true
			for _, lfn := range pending {
				consistent = consistent && lfn.Chksum == checksum
			}
			if entry.Deleted && consistent {
				if first, ok := restoreFirstByte(raw, longName, checksum); ok {
					raw[0] = first
				} else {
					consistent = false
				}
			} else if consistent {
				consistent = Checksum(raw[:]) == checksum
			}
			if consistent {
				entry.LongName = longName
			} else {
				logger.RecoveryLogger.Warning(fmt.Sprintf("long name %q at %d fails checksum, using short name",
					longName, entry.ID))
			}
		}
		if entry.Deleted && raw[0] == deletedMarker {
			raw[0] = '_'
		}
		entry.ShortName = decodeShortName(raw)
		entries = append(entries, entry)
	}
	return entries
}
