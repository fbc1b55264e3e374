package GPT

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/go-restruct/restruct"
	"github.com/google/uuid"
	volume "github.com/utxob/Data-Recover-toll/disk/volume"
	"github.com/utxob/Data-Recover-toll/readers"
	"github.com/utxob/Data-Recover-toll/utils"
)

var ErrInvalidGPT = errors.New("gpt header not valid")

var PartitionTypes = map[string]string{
	"ebd0a0a2-b9e5-4433-87c0-68b6b72699c7": "Basic data",
	"de94bba4-06d1-4d40-a16a-bfd50179d6ac": "Windows recovery",
	"c12a7328-f81f-11d2-ba4b-00a0c93ec93b": "EFI system",
	"e3c9e316-0b5c-4db8-817d-f92df00215ae": "Microsoft reserved",
	"0fc63daf-8483-4772-8e79-3d69d8477de4": "Linux filesystem",
}

type GPT struct {
	Header     *GPTHeader
	Partitions []Partition
}

// GPTHeader is found at LBA 1. 0-92
type GPTHeader struct {
	StartSignature     [8]byte
	Revision           [4]byte
	HeaderSize         uint32
	HeaderCRC          uint32
	Reserved           [4]byte
	CurrentLBA         uint64 //location of header
	BackupLBA          uint64
	FirstUsableLBA     uint64
	LastUsableLBA      uint64
	DiskGUID           [16]byte
	PartitionsStartLBA uint64 // usually LBA 2
	NofPartitions      uint32
	PartitionSize      uint32
	PartionArrayCRC    uint32
}

// PartitionEntry is one partition array slot. 0-128
type PartitionEntry struct {
	PartitionTypeGUID [16]byte
	PartitionGUID     [16]byte
	StartLBA          uint64
	EndLBA            uint64
	Atttributes       [8]byte
	Name              [72]byte
}

type Partition struct {
	PartitionEntry
	Volume volume.Volume
}

// mixed endian on disk, the first three groups are little endian
func toUUID(raw [16]byte) uuid.UUID {
	var id uuid.UUID
	copy(id[:], raw[:])
	id[0], id[1], id[2], id[3] = raw[3], raw[2], raw[1], raw[0]
	id[4], id[5] = raw[5], raw[4]
	id[6], id[7] = raw[7], raw[6]
	return id
}

func (gpt *GPT) ParseHeader(data []byte) error {
	var header GPTHeader
	if len(data) < 92 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidGPT, len(data))
	}
	if err := restruct.Unpack(data[:92], binary.LittleEndian, &header); err != nil {
		return err
	}
	if string(header.StartSignature[:]) != "EFI PART" {
		return fmt.Errorf("%w: signature %s", ErrInvalidGPT, utils.Hexify(header.StartSignature[:]))
	}
	if header.PartitionSize < 128 || header.NofPartitions == 0 || header.NofPartitions > 1024 {
		return fmt.Errorf("%w: %d entries of %d bytes", ErrInvalidGPT, header.NofPartitions, header.PartitionSize)
	}
	gpt.Header = &header
	return nil
}

func (gpt GPT) GetPartitionArraySize() uint32 {
	return gpt.Header.PartitionSize * gpt.Header.NofPartitions
}

// ParsePartitions keeps the used entries of the partition array.
func (gpt *GPT) ParsePartitions(data []byte) error {
	entrySize := int(gpt.Header.PartitionSize)
	for idx := 0; idx < int(gpt.Header.NofPartitions) && (idx+1)*entrySize <= len(data); idx++ {
		var partition Partition
		if err := restruct.Unpack(data[idx*entrySize:idx*entrySize+128], binary.LittleEndian,
			&partition.PartitionEntry); err != nil {
			return err
		}
		if partition.PartitionTypeGUID == [16]byte{} {
			continue
		}
		gpt.Partitions = append(gpt.Partitions, partition)
	}
	return nil
}

func (partition Partition) GetOffset() uint64 {
	return partition.StartLBA
}

func (partition Partition) GetType() string {
	typeGUID := toUUID(partition.PartitionTypeGUID).String()
	if name, ok := PartitionTypes[typeGUID]; ok {
		return name
	}
	return typeGUID
}

func (partition Partition) GetName() string {
	units := make([]uint16, 0, 36)
	for idx := 0; idx+1 < len(partition.Name); idx += 2 {
		unit := binary.LittleEndian.Uint16(partition.Name[idx:])
		if unit == 0 {
			break
		}
		units = append(units, unit)
	}
	return strings.TrimSpace(string(utf16.Decode(units)))
}

func (partition *Partition) LocateVolume(hD readers.DiskReader) error {
	vol, err := volume.Locate(hD, int64(partition.GetOffset())*512)
	if err != nil {
		return fmt.Errorf("%s at sector %d: %w", partition.GetType(), partition.GetOffset(), err)
	}
	partition.Volume = vol
	return nil
}

func (partition Partition) GetVolume() volume.Volume {
	return partition.Volume
}

func (partition Partition) GetInfo() string {
	return fmt.Sprintf(" %s %s %s at %s size %s sectors", partition.GetType(),
		toUUID(partition.PartitionGUID), partition.GetName(), utils.Stringify(int64(partition.StartLBA)),
		utils.Stringify(int64(partition.EndLBA-partition.StartLBA+1)))
}
