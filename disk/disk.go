package disk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	metadata "github.com/utxob/Data-Recover-toll/FS"
	gptLib "github.com/utxob/Data-Recover-toll/disk/partition/GPT"
	mbrLib "github.com/utxob/Data-Recover-toll/disk/partition/MBR"
	"github.com/utxob/Data-Recover-toll/disk/volume"
	"github.com/utxob/Data-Recover-toll/logger"
	"github.com/utxob/Data-Recover-toll/readers"
)

var (
	ErrNTFSVol          = errors.New("NTFS volume discovered instead of MBR")
	ErrFATVol           = errors.New("FAT32 volume discovered instead of MBR")
	ErrNoVolumes        = errors.New("no supported volume found")
	ErrPartitionMissing = errors.New("partition not found")
)

type Partition interface {
	GetOffset() uint64
	LocateVolume(readers.DiskReader) error
	GetVolume() volume.Volume
	GetInfo() string
}

type Disk struct {
	MBR        *mbrLib.MBR
	GPT        *gptLib.GPT
	Handler    readers.DiskReader
	Partitions []Partition
}

func New(hD readers.DiskReader) *Disk {
	return &Disk{Handler: hD}
}

// Process discovers the partitions and locates their volumes, partitionNum -1 selects all.
func (disk *Disk) Process(partitionNum int) error {
	err := disk.DiscoverPartitions()
	switch {
	case errors.Is(err, ErrNTFSVol):
		logger.RecoveryLogger.Warning("No MBR discovered, instead NTFS volume found at 1st sector")
		disk.CreatePseudoMBR("NTFS")
	case errors.Is(err, ErrFATVol):
		logger.RecoveryLogger.Warning("No MBR discovered, instead FAT32 volume found at 1st sector")
		disk.CreatePseudoMBR("FAT32")
	case err != nil:
		return err
	}
	if partitionNum >= len(disk.Partitions) {
		return fmt.Errorf("%w: %d of %d", ErrPartitionMissing, partitionNum, len(disk.Partitions))
	}
	return disk.ProcessPartitions(partitionNum)
}

func (disk Disk) hasProtectiveMBR() bool {
	return disk.MBR.IsProtective()
}

func (disk *Disk) populateMBR() error {
	var mbr mbrLib.MBR
	data, err := disk.Handler.ReadFile(0, 512) // MBR always at first sector
	if err != nil || len(data) < 512 {
		return fmt.Errorf("%w: first sector: %v", readers.ErrMediumUnreadable, err)
	}

	if string(data[3:7]) == "NTFS" {
		return ErrNTFSVol
	}
	if string(data[82:87]) == "FAT32" {
		return ErrFATVol
	}

	if err := mbr.Parse(data); err != nil {
		return err
	}
	offset, err := mbr.GetExtendedPartitionOffset()
	if err == nil {
		data, err := disk.Handler.ReadFile(int64(offset)*512, 512)
		if err == nil && len(data) == 512 {
			if err := mbr.DiscoverExtendedPartitions(data, offset); err != nil {
				logger.RecoveryLogger.Warning(fmt.Sprintf("extended partition table at %d: %v", offset, err))
			}
		}
	}
	disk.MBR = &mbr
	return nil
}

func (disk *Disk) populateGPT() error {
	data, err := disk.Handler.ReadFile(512, 512) // gpt always starts at 512
	if err != nil {
		return fmt.Errorf("gpt header: %w", err)
	}
	var gpt gptLib.GPT
	if err := gpt.ParseHeader(data); err != nil {
		return err
	}
	length := gpt.GetPartitionArraySize()
	data, err = disk.Handler.ReadFile(int64(gpt.Header.PartitionsStartLBA*512), int(length))
	if err != nil {
		logger.RecoveryLogger.Warning(fmt.Sprintf("gpt partition array partially read: %v", err))
	}
	if err := gpt.ParsePartitions(data); err != nil {
		return err
	}
	disk.GPT = &gpt
	return nil
}

func (disk *Disk) CreatePseudoMBR(voltype string) {
	var mbr mbrLib.MBR
	mbr.PopulatePseudoMBR(voltype)
	disk.MBR = &mbr
	disk.Partitions = nil
	for idx := range disk.MBR.Partitions {
		disk.Partitions = append(disk.Partitions, &disk.MBR.Partitions[idx])
	}
}

func (disk *Disk) DiscoverPartitions() error {
	if err := disk.populateMBR(); err != nil {
		return err
	}
	if disk.hasProtectiveMBR() {
		if err := disk.populateGPT(); err != nil {
			return err
		}
		for idx := range disk.GPT.Partitions {
			disk.Partitions = append(disk.Partitions, &disk.GPT.Partitions[idx])
		}
		return nil
	}
	for idx := range disk.MBR.Partitions {
		if partition := &disk.MBR.Partitions[idx]; partition.Type != 0x05 && partition.Type != 0x0f {
			disk.Partitions = append(disk.Partitions, partition)
		}
	}
	for idx := range disk.MBR.ExtendedPartitions {
		disk.Partitions = append(disk.Partitions, &disk.MBR.ExtendedPartitions[idx])
	}
	return nil
}

// ProcessPartitions locates the volume of the selected partitions.
func (disk *Disk) ProcessPartitions(partitionNum int) error {
	found := 0
	for idx := range disk.Partitions {
		if partitionNum != -1 && partitionNum != idx {
			continue
		}
		if err := disk.Partitions[idx].LocateVolume(disk.Handler); err != nil {
			logger.RecoveryLogger.Warning(fmt.Sprintf("partition %d: %v", idx, err))
			continue
		}
		found++
		msg := "Partition %d %s at %d sector"
		logger.RecoveryLogger.Info(fmt.Sprintf(msg, idx, disk.Partitions[idx].GetVolume().GetSignature(),
			disk.Partitions[idx].GetOffset()))
	}
	if found == 0 {
		return ErrNoVolumes
	}
	return nil
}

// WalkDeleted processes the located volumes in turn and sends their deleted records to
// out, which is closed on return. Sequence numbers run across volumes. A volume that
// fails is logged and skipped, the walk fails with ErrNoVolumes when every one did.
func (disk Disk) WalkDeleted(ctx context.Context, partitionNum int, out chan<- metadata.Deleted) error {
	defer close(out)
	sequence := 0
	var failures []error
	walked := 0
	for idx, partition := range disk.Partitions {
		if partitionNum != -1 && partitionNum != idx {
			continue
		}
		vol := partition.GetVolume()
		if vol == nil {
			continue
		}
		partitionOffsetB := int64(partition.GetOffset()) * 512
		logger.RecoveryLogger.Info(fmt.Sprintf("Processing partition %d at %d %s", idx, partitionOffsetB, vol.GetInfo()))
		if err := vol.Process(ctx, disk.Handler, partitionOffsetB); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logger.RecoveryLogger.Error(fmt.Sprintf("partition %d: %v", idx, err))
			failures = append(failures, fmt.Errorf("partition %d: %w", idx, err))
			continue
		}
		walked++
		for deleted := range vol.Deleted() {
			deleted.Partition = idx
			deleted.Sequence = sequence
			sequence++
			select {
			case out <- deleted:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if walked == 0 && len(failures) > 0 {
		return fmt.Errorf("%w: %w", ErrNoVolumes, errors.Join(failures...))
	}
	return nil
}

func (disk Disk) ListPartitions() string {
	var info strings.Builder
	if disk.MBR != nil && disk.hasProtectiveMBR() {
		info.WriteString("GPT:\n")
	} else {
		info.WriteString("MBR:\n")
	}
	for idx, partition := range disk.Partitions {
		fmt.Fprintf(&info, "%d%s\n", idx, partition.GetInfo())
		if vol := partition.GetVolume(); vol != nil {
			fmt.Fprintf(&info, "\t%s\n", vol.GetInfo())
		}
	}
	return info.String()
}

func (disk Disk) Close() error {
	return disk.Handler.CloseHandler()
}
