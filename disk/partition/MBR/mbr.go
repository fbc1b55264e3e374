package MBR

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-restruct/restruct"
	volume "github.com/utxob/Data-Recover-toll/disk/volume"
	"github.com/utxob/Data-Recover-toll/readers"
	"github.com/utxob/Data-Recover-toll/utils"
)

var ErrInvalidMBR = errors.New("mbr not valid")

var PartitionTypes = map[uint8]string{
	0x07: "HPFS/NTFS/exFAT",
	0x0b: "W95 FAT32",
	0x0c: "W95 FAT32 (LBA)",
	0x05: "Extended",
	0x0f: "Extended (LBA)",
	0x17: "Hidden NTFS",
	0x1b: "Hidden W95 FAT32",
	0x1c: "Hidden W95 FAT32 (LBA)",
	0x27: "Hidden NTFS Win",
	0xee: "GPT protective",
}

type MBR struct {
	Partitions         []Partition
	ExtendedPartitions []ExtendedPartition
	Signature          []byte //510-511
}

// PartitionEntry is one slot of the partition table. 0-16
type PartitionEntry struct {
	Flag     uint8
	StartCHS [3]byte
	Type     uint8
	EndCHS   [3]byte
	StartLBA uint32
	Size     uint32 //sectors
}

type Partition struct {
	PartitionEntry
	Volume volume.Volume
}

type ExtendedPartition struct {
	Partition   *Partition
	TableOffset int
}

func (partition Partition) GetOffset() uint64 {
	return uint64(partition.StartLBA)
}

func (partition Partition) GetPartitionType() string {
	if name, ok := PartitionTypes[partition.Type]; ok {
		return name
	}
	return fmt.Sprintf("type %#02x", partition.Type)
}

func (partition Partition) isExtended() bool {
	return partition.Type == 0x05 || partition.Type == 0x0f
}

// LocateVolume inspects the boot sector of the partition.
func (partition *Partition) LocateVolume(hD readers.DiskReader) error {
	vol, err := volume.Locate(hD, int64(partition.GetOffset())*512)
	if err != nil {
		return fmt.Errorf("%s at sector %d: %w", partition.GetPartitionType(), partition.GetOffset(), err)
	}
	partition.Volume = vol
	return nil
}

func (partition Partition) GetVolume() volume.Volume {
	return partition.Volume
}

func (partition Partition) GetInfo() string {
	return fmt.Sprintf(" %s at %s size %s sectors", partition.GetPartitionType(),
		utils.Stringify(int64(partition.GetOffset())), utils.Stringify(int64(partition.Size)))
}

func (extPartition ExtendedPartition) GetOffset() uint64 {
	return uint64(extPartition.Partition.StartLBA) + uint64(extPartition.TableOffset)
}

func (extPartition *ExtendedPartition) LocateVolume(hD readers.DiskReader) error {
	vol, err := volume.Locate(hD, int64(extPartition.GetOffset())*512)
	if err != nil {
		return fmt.Errorf("logical %s at sector %d: %w", extPartition.Partition.GetPartitionType(),
			extPartition.GetOffset(), err)
	}
	extPartition.Partition.Volume = vol
	return nil
}

func (extPartition ExtendedPartition) GetVolume() volume.Volume {
	return extPartition.Partition.Volume
}

func (extPartition ExtendedPartition) GetInfo() string {
	return fmt.Sprintf("\textended partition %s at %s size %s sectors",
		extPartition.Partition.GetPartitionType(), utils.Stringify(int64(extPartition.GetOffset())),
		utils.Stringify(int64(extPartition.Partition.Size)))
}

func (mbr MBR) IsProtective() bool {
	return len(mbr.Partitions) > 0 && mbr.Partitions[0].Type == 0xEE // 1st partition flag
}

func LocatePartitions(data []byte) ([]Partition, error) {
	var partitions []Partition
	for pos := 0; pos+16 <= len(data); pos += 16 {
		var partition Partition
		if err := restruct.Unpack(data[pos:pos+16], binary.LittleEndian, &partition.PartitionEntry); err != nil {
			return partitions, err
		}
		if partition.Type == 0x00 {
			continue
		}
		partitions = append(partitions, partition)
	}
	return partitions, nil
}

// PopulatePseudoMBR describes a disk holding a single volume from sector 0.
func (mbr *MBR) PopulatePseudoMBR(voltype string) {
	var partition Partition
	switch voltype {
	case "NTFS":
		partition.Type = 0x07
	case "FAT32":
		partition.Type = 0x0c
	}
	mbr.Partitions = []Partition{partition}
	mbr.Signature = []byte{0x55, 0xaa}
}

// DiscoverExtendedPartitions reads the logical partitions of the first extended
// boot record, offset is its sector.
func (mbr *MBR) DiscoverExtendedPartitions(buffer []byte, offset int) error {
	partitions, err := LocatePartitions(buffer[446:510])
	if err != nil {
		return err
	}
	var extPartitions []ExtendedPartition
	for idx := range partitions {
		if partitions[idx].isExtended() { // link to the next EBR
			continue
		}
		extPartitions = append(extPartitions, ExtendedPartition{Partition: &partitions[idx], TableOffset: offset})
	}
	mbr.ExtendedPartitions = extPartitions
	return nil
}

func (mbr *MBR) Parse(buffer []byte) error {
	if len(buffer) < 512 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidMBR, len(buffer))
	}
	mbr.Signature = buffer[510:512]
	if utils.Hexify(mbr.Signature) != "55aa" {
		return ErrInvalidMBR
	}
	partitions, err := LocatePartitions(buffer[446:510])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMBR, err)
	}
	mbr.Partitions = partitions
	return nil
}

func (mbr MBR) GetExtendedPartitionOffset() (int, error) {
	for _, partition := range mbr.Partitions {
		if partition.isExtended() {
			return int(partition.GetOffset()), nil
		}
	}
	return -1, errors.New("extended partition not found")
}
