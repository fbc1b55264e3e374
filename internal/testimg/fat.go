package testimg

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
)

const (
	FATReservedSectors = 32
	FATRootCluster     = 2
)

// FATFile is a file or directory of a synthetic FAT32 volume stored in contiguous
// clusters from Cluster. Parent indexes Files, -1 is the root directory.
type FATFile struct {
	Name    string
	Dir     bool
	Deleted bool
	Data    []byte
	Cluster uint32
	Parent  int
	Date    uint16
	Time    uint16
}

type FATImage struct {
	SectorsPerCluster int
	Clusters          int
	Files             []FATFile
	// Allocated clusters are marked in use in the allocation table.
	Allocated []uint32
}

// FATShortName derives the 8.3 name the way a basic generator would.
func FATShortName(name string) [11]byte {
	var raw [11]byte
	for idx := range raw {
		raw[idx] = ' '
	}
	base, ext := name, ""
	if dot := strings.LastIndex(name, "."); dot > 0 {
		base, ext = name[:dot], name[dot+1:]
	}
	clean := func(val string) string {
		var out []byte
		for _, char := range strings.ToUpper(val) {
			if char < 0x80 && (char >= 'A' && char <= 'Z' || char >= '0' && char <= '9') {
				out = append(out, byte(char))
			}
		}
		return string(out)
	}
	base, ext = clean(base), clean(ext)
	if len(base) > 8 {
		base = base[:6] + "~1"
	}
	copy(raw[:8], base)
	copy(raw[8:], ext[:min(3, len(ext))])
	return raw
}

func FATChecksum(raw [11]byte) uint8 {
	var sum uint8
	for _, val := range raw {
		sum = (sum&1)<<7 + sum>>1 + val
	}
	return sum
}

func lfnSlots(name string, checksum uint8) [][]byte {
	units := utf16.Encode([]rune(name))
	if len(units)%13 != 0 {
		units = append(units, 0)
	}
	for len(units)%13 != 0 {
		units = append(units, 0xFFFF)
	}
	count := len(units) / 13
	var slots [][]byte
	for ord := count; ord >= 1; ord-- {
		slot := make([]byte, DirEntrySize)
		slot[0] = byte(ord)
		if ord == count {
			slot[0] |= 0x40
		}
		slot[11] = 0x0F
		slot[13] = checksum
		part := units[(ord-1)*13 : ord*13]
		positions := []int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}
		for idx, pos := range positions {
			binary.LittleEndian.PutUint16(slot[pos:], part[idx])
		}
		slots = append(slots, slot)
	}
	return slots
}

const DirEntrySize = 32

func shortEntry(raw [11]byte, attr byte, cluster uint32, size uint32, date uint16, clock uint16) []byte {
	entry := make([]byte, DirEntrySize)
	copy(entry, raw[:])
	entry[11] = attr
	binary.LittleEndian.PutUint16(entry[20:], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(entry[22:], clock)
	binary.LittleEndian.PutUint16(entry[24:], date)
	binary.LittleEndian.PutUint16(entry[26:], uint16(cluster))
	binary.LittleEndian.PutUint32(entry[28:], size)
	return entry
}

// normalize fills in the geometry defaults shared by Build and the offset helpers.
func (image FATImage) normalize() FATImage {
	if image.SectorsPerCluster == 0 {
		image.SectorsPerCluster = 2
	}
	if image.Clusters == 0 {
		image.Clusters = 1024
	}
	return image
}

func (image FATImage) ClusterSize() int {
	return image.normalize().SectorsPerCluster * 512
}

func (image FATImage) sectorsPerFAT() int {
	return ((image.normalize().Clusters+2)*4 + 511) / 512
}

// DataOffset is the byte offset of cluster 2.
func (image FATImage) DataOffset() int {
	return (FATReservedSectors + 2*image.sectorsPerFAT()) * 512
}

func (image FATImage) ClusterOffset(cluster uint32) int {
	return image.DataOffset() + int(cluster-2)*image.ClusterSize()
}

func (image FATImage) Build() []byte {
	image = image.normalize()
	clusterSize := image.ClusterSize()
	spf := image.sectorsPerFAT()
	totalSectors := FATReservedSectors + 2*spf + image.Clusters*image.SectorsPerCluster
	data := make([]byte, totalSectors*512)

	boot := data[:512]
	copy(boot, []byte{0xEB, 0x58, 0x90})
	copy(boot[3:], "MSDOS5.0")
	binary.LittleEndian.PutUint16(boot[11:], 512)
	boot[13] = byte(image.SectorsPerCluster)
	binary.LittleEndian.PutUint16(boot[14:], FATReservedSectors)
	boot[16] = 2
	boot[21] = 0xF8
	binary.LittleEndian.PutUint32(boot[32:], uint32(totalSectors))
	binary.LittleEndian.PutUint32(boot[36:], uint32(spf))
	binary.LittleEndian.PutUint32(boot[44:], FATRootCluster)
	binary.LittleEndian.PutUint16(boot[48:], 1)
	binary.LittleEndian.PutUint16(boot[50:], 6)
	boot[66] = 0x29
	copy(boot[71:], "RECOVERTEST")
	copy(boot[82:], "FAT32   ")
	boot[510], boot[511] = 0x55, 0xAA

	fsInfo := data[512:1024]
	binary.LittleEndian.PutUint32(fsInfo[0:], 0x41615252)
	binary.LittleEndian.PutUint32(fsInfo[484:], 0x61417272)
	binary.LittleEndian.PutUint32(fsInfo[488:], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(fsInfo[492:], 0xFFFFFFFF)
	fsInfo[510], fsInfo[511] = 0x55, 0xAA

	table := make([]uint32, image.Clusters+2)
	table[0], table[1] = 0x0FFFFFF8, 0x0FFFFFFF
	table[FATRootCluster] = 0x0FFFFFFF
	chain := func(start uint32, count int) {
		for idx := 0; idx < count; idx++ {
			cluster := start + uint32(idx)
			if idx == count-1 {
				table[cluster] = 0x0FFFFFFF
			} else {
				table[cluster] = cluster + 1
			}
		}
	}

	dirs := map[int][]byte{-1: nil}
	dirCluster := map[int]uint32{-1: FATRootCluster}
	for idx, file := range image.Files {
		if file.Dir {
			dirCluster[idx] = file.Cluster
			parentCluster := dirCluster[file.Parent]
			if file.Parent == -1 {
				parentCluster = 0
			}
			dirs[idx] = append(shortEntry([11]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '},
				0x10, file.Cluster, 0, file.Date, file.Time),
				shortEntry([11]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '},
					0x10, parentCluster, 0, file.Date, file.Time)...)
		}
	}

	for _, file := range image.Files {
		raw := FATShortName(file.Name)
		var slots [][]byte
		if string(raw[:]) != strings.ToUpper(file.Name) {
			slots = lfnSlots(file.Name, FATChecksum(raw))
		}
		attr := byte(0x20)
		size := uint32(len(file.Data))
		if file.Dir {
			attr, size = 0x10, 0
		}
		short := shortEntry(raw, attr, file.Cluster, size, file.Date, file.Time)
		if file.Deleted {
			short[0] = 0xE5
			for _, slot := range slots {
				slot[0] = 0xE5
			}
		}
		for _, slot := range slots {
			dirs[file.Parent] = append(dirs[file.Parent], slot...)
		}
		dirs[file.Parent] = append(dirs[file.Parent], short...)

		count := max(1, (len(file.Data)+clusterSize-1)/clusterSize)
		if !file.Dir {
			copy(data[image.ClusterOffset(file.Cluster):], file.Data)
		}
		if !file.Deleted {
			chain(file.Cluster, count)
		}
	}

	for idx, content := range dirs {
		copy(data[image.ClusterOffset(dirCluster[idx]):], content)
	}
	for _, cluster := range image.Allocated {
		if table[cluster] == 0 {
			table[cluster] = 0x0FFFFFFF
		}
	}
	for copyIdx := 0; copyIdx < 2; copyIdx++ {
		fat := data[(FATReservedSectors+copyIdx*spf)*512:]
		for cluster, val := range table {
			binary.LittleEndian.PutUint32(fat[cluster*4:], val)
		}
	}
	return data
}
