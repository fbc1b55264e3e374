package testimg

import (
	"encoding/binary"
)

// Partition places a volume image at StartLBA.
type Partition struct {
	Type     byte
	TypeGUID [16]byte
	StartLBA uint32
	Volume   []byte
}

func diskSize(partitions []Partition, minimum int) int {
	size := minimum
	for _, partition := range partitions {
		size = max(size, int(partition.StartLBA)*512+len(partition.Volume))
	}
	return size
}

// MBRDisk builds a disk with a classic partition table.
func MBRDisk(partitions ...Partition) []byte {
	data := make([]byte, diskSize(partitions, 512))
	for idx, partition := range partitions {
		entry := data[446+16*idx:]
		entry[4] = partition.Type
		binary.LittleEndian.PutUint32(entry[8:], partition.StartLBA)
		binary.LittleEndian.PutUint32(entry[12:], uint32(len(partition.Volume)/512))
		copy(data[int(partition.StartLBA)*512:], partition.Volume)
	}
	data[510], data[511] = 0x55, 0xAA
	return data
}

// Windows basic data partition type in on-disk byte order.
var BasicDataGUID = [16]byte{0xA2, 0xA0, 0xD0, 0xEB, 0xE5, 0xB9, 0x33, 0x44, 0x87, 0xC0, 0x68, 0xB6, 0xB7, 0x26, 0x99, 0xC7}

// GPTDisk builds a disk with a protective MBR and a GPT header at LBA 1.
func GPTDisk(partitions ...Partition) []byte {
	data := make([]byte, diskSize(partitions, 34*512))
	protective := data[446:]
	protective[4] = 0xEE
	binary.LittleEndian.PutUint32(protective[8:], 1)
	binary.LittleEndian.PutUint32(protective[12:], 0xFFFFFFFF)
	data[510], data[511] = 0x55, 0xAA

	header := data[512:1024]
	copy(header, "EFI PART")
	binary.LittleEndian.PutUint32(header[8:], 0x00010000)
	binary.LittleEndian.PutUint32(header[12:], 92)
	binary.LittleEndian.PutUint64(header[24:], 1)
	binary.LittleEndian.PutUint64(header[40:], 34)
	binary.LittleEndian.PutUint64(header[72:], 2)
	binary.LittleEndian.PutUint32(header[80:], 4)
	binary.LittleEndian.PutUint32(header[84:], 128)

	for idx, partition := range partitions {
		entry := data[1024+128*idx:]
		copy(entry, partition.TypeGUID[:])
		entry[16] = byte(idx + 1)
		binary.LittleEndian.PutUint64(entry[32:], uint64(partition.StartLBA))
		binary.LittleEndian.PutUint64(entry[40:], uint64(int(partition.StartLBA)+len(partition.Volume)/512-1))
		copy(data[int(partition.StartLBA)*512:], partition.Volume)
	}
	return data
}
