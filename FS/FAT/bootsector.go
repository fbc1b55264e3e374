package FAT

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/go-restruct/restruct"
)

var ErrInvalidBootSector = errors.New("not a FAT32 boot sector")

// BootSector is the BIOS parameter block followed by the FAT32 extended boot record. 0-90
type BootSector struct {
	JumpInstruction      [3]byte
	OEMID                [8]byte
	BytesPerSector       uint16 //11-13
	SectorsPerCluster    uint8  //13
	ReservedSectorCount  uint16 //14-16
	FATCount             uint8  //16
	RootDirEntryCount    uint16 //17-19 zero on FAT32
	LogicalVolumeSectors uint16 //19-21
	MediaDescriptorType  uint8  //21
	SectorsPerFAT16      uint16 //22-24 zero on FAT32
	SectorsPerTrack      uint16
	MediaHeadCount       uint16
	HiddenSectorCount    uint32
	LargeSectorCount     uint32 //32-36
	SectorsPerFAT        uint32 //36-40
	Flags                uint16
	FATVersion           uint16
	RootDirClusterNumber uint32 //44-48
	FSInfoSector         uint16 //48-50
	BackupBootSector     uint16
	Reserved             [12]byte
	DriveNumber          uint8
	WindowsNTFlags       uint8
	Signature            uint8
	VolumeID             uint32
	VolumeLabel          [11]byte
	SystemID             [8]byte //82-90 "FAT32   "
}

// FSInfo carries the free cluster hints. 484-496 of its sector
type FSInfo struct {
	StructSignature uint32
	FreeCount       uint32
	NextFree        uint32
}

func (bootSector *BootSector) Parse(data []byte) error {
	if len(data) < 512 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidBootSector, len(data))
	}
	if err := restruct.Unpack(data[:90], binary.LittleEndian, bootSector); err != nil {
		return err
	}
	switch {
	case data[510] != 0x55 || data[511] != 0xAA:
		return fmt.Errorf("%w: missing 55AA signature", ErrInvalidBootSector)
	case bootSector.BytesPerSector < 512 || bootSector.BytesPerSector&(bootSector.BytesPerSector-1) != 0:
		return fmt.Errorf("%w: %d bytes per sector", ErrInvalidBootSector, bootSector.BytesPerSector)
	case bootSector.SectorsPerCluster == 0 || bootSector.SectorsPerCluster&(bootSector.SectorsPerCluster-1) != 0:
		return fmt.Errorf("%w: %d sectors per cluster", ErrInvalidBootSector, bootSector.SectorsPerCluster)
	case bootSector.FATCount == 0 || bootSector.SectorsPerFAT == 0:
		return fmt.Errorf("%w: no allocation table", ErrInvalidBootSector)
	case bootSector.RootDirEntryCount != 0 || bootSector.SectorsPerFAT16 != 0:
		return fmt.Errorf("%w: FAT12/16 layout", ErrInvalidBootSector)
	case bootSector.RootDirClusterNumber < 2:
		return fmt.Errorf("%w: root cluster %d", ErrInvalidBootSector, bootSector.RootDirClusterNumber)
	}
	return nil
}

func (fsInfo *FSInfo) Parse(data []byte) error {
	if len(data) < 512 || binary.LittleEndian.Uint32(data) != 0x41615252 {
		return errors.New("FSInfo lead signature missing")
	}
	if err := restruct.Unpack(data[484:496], binary.LittleEndian, fsInfo); err != nil {
		return err
	}
	if fsInfo.StructSignature != 0x61417272 {
		return errors.New("FSInfo struct signature missing")
	}
	return nil
}

func (bootSector BootSector) GetSignature() string {
	return strings.TrimSpace(string(bootSector.SystemID[:]))
}

func (bootSector BootSector) GetLabel() string {
	return strings.TrimSpace(string(bootSector.VolumeLabel[:]))
}

func (bootSector BootSector) ClusterSize() int {
	return int(bootSector.BytesPerSector) * int(bootSector.SectorsPerCluster)
}

// FATOffset is the byte offset of the first allocation table within the volume.
func (bootSector BootSector) FATOffset() int64 {
	return int64(bootSector.ReservedSectorCount) * int64(bootSector.BytesPerSector)
}

func (bootSector BootSector) FATSize() int64 {
	return int64(bootSector.SectorsPerFAT) * int64(bootSector.BytesPerSector)
}

func (bootSector BootSector) DataOffset() int64 {
	return bootSector.FATOffset() + int64(bootSector.FATCount)*bootSector.FATSize()
}

func (bootSector BootSector) TotalSectors() int64 {
	if bootSector.LargeSectorCount != 0 {
		return int64(bootSector.LargeSectorCount)
	}
	return int64(bootSector.LogicalVolumeSectors)
}

// TotalClusters counts data clusters, numbered from 2.
func (bootSector BootSector) TotalClusters() uint32 {
	dataSectors := bootSector.TotalSectors() - bootSector.DataOffset()/int64(bootSector.BytesPerSector)
	if dataSectors <= 0 {
		return 0
	}
	return uint32(dataSectors / int64(bootSector.SectorsPerCluster))
}

// ClusterOffset is the byte offset of a data cluster within the volume.
func (bootSector BootSector) ClusterOffset(cluster uint32) int64 {
	return bootSector.DataOffset() + int64(cluster-2)*int64(bootSector.ClusterSize())
}

func (bootSector BootSector) IsValidCluster(cluster uint32) bool {
	return cluster >= 2 && cluster < bootSector.TotalClusters()+2
}
