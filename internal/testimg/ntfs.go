package testimg

import (
	"encoding/binary"
	"unicode/utf16"
)

const (
	NTFSMFTCluster    = 4
	NTFSMFTClusters   = 16
	NTFSBitmapCluster = 2
	NTFSRecordSize    = 1024
	NTFSRootSeq       = 5
)

// Run places Length clusters at Cluster, a negative cluster is a sparse run.
type Run struct {
	Cluster int64
	Length  uint64
}

type AttrListRef struct {
	Type     uint32
	Entry    uint32
	Seq      uint16
	StartVcn uint64
}

// RecordSpec describes one FILE record.
type RecordSpec struct {
	Entry       uint32
	Seq         uint16
	InUse       bool
	Dir         bool
	BaseRef     uint64
	Name        string
	Parent      uint32
	ParentSeq   uint16
	Modified    uint64
	Resident    []byte
	Runs        []Run
	StartVcn    uint64
	Size        int64
	AttrList    []AttrListRef
	NoStdInfo   bool
	ClusterSize int
	BreakFixup  bool
}

func align8(n int) int {
	return (n + 7) &^ 7
}

func residentAttr(attrType uint32, id uint16, content []byte) []byte {
	attr := make([]byte, align8(24+len(content)))
	binary.LittleEndian.PutUint32(attr[0:], attrType)
	binary.LittleEndian.PutUint32(attr[4:], uint32(len(attr)))
	binary.LittleEndian.PutUint16(attr[14:], id)
	binary.LittleEndian.PutUint32(attr[16:], uint32(len(content)))
	binary.LittleEndian.PutUint16(attr[20:], 24)
	copy(attr[24:], content)
	return attr
}

func unsignedBytes(val uint64) []byte {
	var out []byte
	for {
		out = append(out, byte(val))
		val >>= 8
		if val == 0 {
			return out
		}
	}
}

func signedBytes(val int64) []byte {
	for size := 1; size <= 8; size++ {
		limit := int64(1) << (8*size - 1)
		if size == 8 || (val >= -limit && val < limit) {
			out := make([]byte, size)
			for idx := range out {
				out[idx] = byte(val >> (8 * idx))
			}
			return out
		}
	}
	return nil
}

// EncodeRuns builds NTFS mapping pairs.
func EncodeRuns(runs []Run) []byte {
	var out []byte
	prev := int64(0)
	for _, run := range runs {
		lengthBytes := unsignedBytes(run.Length)
		if run.Cluster < 0 {
			out = append(out, byte(len(lengthBytes)))
			out = append(out, lengthBytes...)
			continue
		}
		offBytes := signedBytes(run.Cluster - prev)
		out = append(out, byte(len(offBytes)<<4|len(lengthBytes)))
		out = append(out, lengthBytes...)
		out = append(out, offBytes...)
		prev = run.Cluster
	}
	return append(out, 0)
}

func nonResidentAttr(attrType uint32, id uint16, runs []Run, startVcn uint64, size int64, clusterSize int) []byte {
	runlist := EncodeRuns(runs)
	attr := make([]byte, align8(64+len(runlist)))
	total := uint64(0)
	for _, run := range runs {
		total += run.Length
	}
	binary.LittleEndian.PutUint32(attr[0:], attrType)
	binary.LittleEndian.PutUint32(attr[4:], uint32(len(attr)))
	attr[8] = 1
	binary.LittleEndian.PutUint16(attr[14:], id)
	binary.LittleEndian.PutUint64(attr[16:], startVcn)
	binary.LittleEndian.PutUint64(attr[24:], startVcn+total-1)
	binary.LittleEndian.PutUint16(attr[32:], 64)
	binary.LittleEndian.PutUint64(attr[40:], total*uint64(clusterSize))
	binary.LittleEndian.PutUint64(attr[48:], uint64(size))
	binary.LittleEndian.PutUint64(attr[56:], uint64(size))
	copy(attr[64:], runlist)
	return attr
}

func fileName(spec RecordSpec) []byte {
	name := utf16.Encode([]rune(spec.Name))
	content := make([]byte, 66+2*len(name))
	binary.LittleEndian.PutUint64(content[0:], uint64(spec.Parent)|uint64(spec.ParentSeq)<<48)
	for idx := 0; idx < 4; idx++ {
		binary.LittleEndian.PutUint64(content[8+8*idx:], spec.Modified)
	}
	binary.LittleEndian.PutUint64(content[40:], uint64(spec.Size))
	binary.LittleEndian.PutUint64(content[48:], uint64(spec.Size))
	if spec.Dir {
		binary.LittleEndian.PutUint32(content[56:], 0x10000000)
	}
	content[64] = byte(len(name))
	content[65] = 1 // Win32
	for idx, char := range name {
		binary.LittleEndian.PutUint16(content[66+2*idx:], char)
	}
	return content
}

// MFTRecord encodes a FILE record of NTFSRecordSize bytes with its fixups applied.
func MFTRecord(spec RecordSpec) []byte {
	if spec.ClusterSize == 0 {
		spec.ClusterSize = 4096
	}
	record := make([]byte, NTFSRecordSize)
	copy(record, "FILE")
	binary.LittleEndian.PutUint16(record[4:], 48)
	binary.LittleEndian.PutUint16(record[6:], 1+NTFSRecordSize/512)
	binary.LittleEndian.PutUint16(record[16:], spec.Seq)
	binary.LittleEndian.PutUint16(record[18:], 1)
	binary.LittleEndian.PutUint16(record[20:], 56)
	var flags uint16
	if spec.InUse {
		flags |= 1
	}
	if spec.Dir {
		flags |= 2
	}
	binary.LittleEndian.PutUint16(record[22:], flags)
	binary.LittleEndian.PutUint32(record[28:], NTFSRecordSize)
	binary.LittleEndian.PutUint64(record[32:], spec.BaseRef)
	binary.LittleEndian.PutUint32(record[44:], spec.Entry)

	var attrs [][]byte
	id := uint16(0)
	if !spec.NoStdInfo {
		stdInfo := make([]byte, 48)
		for idx := 0; idx < 4; idx++ {
			binary.LittleEndian.PutUint64(stdInfo[8*idx:], spec.Modified)
		}
		attrs = append(attrs, residentAttr(0x10, id, stdInfo))
		id++
	}
	if len(spec.AttrList) > 0 {
		list := make([]byte, 32*len(spec.AttrList))
		for idx, ref := range spec.AttrList {
			entry := list[32*idx:]
			binary.LittleEndian.PutUint32(entry[0:], ref.Type)
			binary.LittleEndian.PutUint16(entry[4:], 32)
			entry[7] = 26
			binary.LittleEndian.PutUint64(entry[8:], ref.StartVcn)
			binary.LittleEndian.PutUint64(entry[16:], uint64(ref.Entry)|uint64(ref.Seq)<<48)
		}
		attrs = append(attrs, residentAttr(0x20, id, list))
		id++
	}
	if spec.Name != "" {
		attrs = append(attrs, residentAttr(0x30, id, fileName(spec)))
		id++
	}
	if spec.Resident != nil {
		attrs = append(attrs, residentAttr(0x80, id, spec.Resident))
	} else if spec.Runs != nil {
		attrs = append(attrs, nonResidentAttr(0x80, id, spec.Runs, spec.StartVcn, spec.Size, spec.ClusterSize))
	}

	ptr := 56
	for _, attr := range attrs {
		copy(record[ptr:], attr)
		ptr += len(attr)
	}
	binary.LittleEndian.PutUint32(record[ptr:], 0xffffffff)
	binary.LittleEndian.PutUint32(record[24:], uint32(ptr+8))

	usn := []byte{0x0b, 0x00}
	copy(record[48:], usn)
	for idx := 0; idx < NTFSRecordSize/512; idx++ {
		sectorEnd := (idx + 1) * 512
		copy(record[50+2*idx:], record[sectorEnd-2:sectorEnd])
		copy(record[sectorEnd-2:], usn)
	}
	if spec.BreakFixup {
		record[1022] ^= 0xff
	}
	return record
}

// NTFSFile is a file or directory of a synthetic NTFS volume.
type NTFSFile struct {
	Entry     uint32
	Seq       uint16
	Name      string
	Parent    uint32
	ParentSeq uint16
	Dir       bool
	Deleted   bool
	Data      []byte
	Resident  bool
	// Runs receive Data in order, the last run may hold slack.
	Runs []Run
	// Extension moves the DATA attribute to that entry behind an attribute list.
	Extension uint32
	Modified  uint64
	Corrupt   bool
}

// NTFSImage lays out a volume with the boot sector at cluster 0, $Bitmap content at
// cluster NTFSBitmapCluster and $MFT at NTFSMFTCluster.
type NTFSImage struct {
	ClusterSize int
	Clusters    int
	Files       []NTFSFile
	// Allocated marks clusters in use besides the system areas and live files.
	Allocated []int64
}

func (image NTFSImage) Build() []byte {
	if image.ClusterSize == 0 {
		image.ClusterSize = 4096
	}
	if image.Clusters == 0 {
		image.Clusters = 256
	}
	clusterSize := image.ClusterSize
	data := make([]byte, image.Clusters*clusterSize)

	vbr := data[:512]
	copy(vbr, []byte{0xEB, 0x52, 0x90})
	copy(vbr[3:], "NTFS    ")
	binary.LittleEndian.PutUint16(vbr[11:], 512)
	vbr[13] = byte(clusterSize / 512)
	binary.LittleEndian.PutUint64(vbr[40:], uint64(image.Clusters*clusterSize/512-1))
	binary.LittleEndian.PutUint64(vbr[48:], NTFSMFTCluster)
	binary.LittleEndian.PutUint64(vbr[56:], 1)
	vbr[64] = 0xF6 // 2^10 byte records
	vbr[510], vbr[511] = 0x55, 0xAA

	bitmap := make([]byte, image.Clusters/8)
	mark := func(start int64, length uint64) {
		for cluster := start; cluster < start+int64(length); cluster++ {
			if cluster >= 0 && cluster/8 < int64(len(bitmap)) {
				bitmap[cluster/8] |= 1 << (cluster % 8)
			}
		}
	}
	mark(0, 2)
	mark(NTFSBitmapCluster, 1)
	mark(NTFSMFTCluster, NTFSMFTClusters)
	for _, cluster := range image.Allocated {
		mark(cluster, 1)
	}

	records := map[uint32][]byte{
		0: MFTRecord(RecordSpec{Entry: 0, Seq: 1, InUse: true, Name: "$MFT", Parent: 5, ParentSeq: NTFSRootSeq,
			Runs: []Run{{NTFSMFTCluster, NTFSMFTClusters}}, Size: int64(NTFSMFTClusters * clusterSize), ClusterSize: clusterSize}),
		5: MFTRecord(RecordSpec{Entry: 5, Seq: NTFSRootSeq, InUse: true, Dir: true, Name: ".", Parent: 5,
			ParentSeq: NTFSRootSeq, ClusterSize: clusterSize}),
	}

	for _, file := range image.Files {
		if file.Seq == 0 {
			file.Seq = 1
		}
		if file.Parent == 0 {
			file.Parent, file.ParentSeq = 5, NTFSRootSeq
		}
		spec := RecordSpec{Entry: file.Entry, Seq: file.Seq, InUse: !file.Deleted, Dir: file.Dir, Name: file.Name,
			Parent: file.Parent, ParentSeq: file.ParentSeq, Modified: file.Modified, Size: int64(len(file.Data)),
			ClusterSize: clusterSize, BreakFixup: file.Corrupt}

		if !file.Dir {
			if file.Resident {
				spec.Resident = append([]byte{}, file.Data...)
			} else {
				pos := 0
				for _, run := range file.Runs {
					length := int(run.Length) * clusterSize
					if run.Cluster >= 0 {
						copy(data[int(run.Cluster)*clusterSize:], file.Data[pos:min(pos+length, len(file.Data))])
						if !file.Deleted {
							mark(run.Cluster, run.Length)
						}
					}
					pos = min(pos+length, len(file.Data))
				}
				if file.Extension != 0 {
					spec.AttrList = []AttrListRef{
						{Type: 0x10, Entry: file.Entry, Seq: file.Seq},
						{Type: 0x30, Entry: file.Entry, Seq: file.Seq},
						{Type: 0x80, Entry: file.Extension, Seq: 1},
					}
					records[file.Extension] = MFTRecord(RecordSpec{Entry: file.Extension, Seq: 1, InUse: !file.Deleted,
						BaseRef: uint64(file.Entry) | uint64(file.Seq)<<48, Runs: file.Runs, Size: int64(len(file.Data)),
						NoStdInfo: true, ClusterSize: clusterSize})
				} else {
					spec.Runs = file.Runs
				}
			}
		}
		records[file.Entry] = MFTRecord(spec)
	}

	records[6] = MFTRecord(RecordSpec{Entry: 6, Seq: 6, InUse: true, Name: "$Bitmap", Parent: 5, ParentSeq: NTFSRootSeq,
		Runs: []Run{{NTFSBitmapCluster, 1}}, Size: int64(len(bitmap)), ClusterSize: clusterSize})
	copy(data[NTFSBitmapCluster*clusterSize:], bitmap)

	for entry, record := range records {
		copy(data[NTFSMFTCluster*clusterSize+int(entry)*NTFSRecordSize:], record)
	}
	return data
}
