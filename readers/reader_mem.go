package readers

import (
	"errors"
	"sort"
	"sync/atomic"
)

var errBadRegion = errors.New("unreadable region")

// Region is a byte range of a medium.
type Region struct {
	Offset int64
	Length int64
}

// MemReader serves a medium held in memory, regions listed in Bad fail to read.
type MemReader struct {
	Data        []byte
	Bad         []Region
	UnknownSize bool
	reads       atomic.Int64
}

func NewMemReader(data []byte, bad ...Region) *MemReader {
	sort.Slice(bad, func(i, j int) bool { return bad[i].Offset < bad[j].Offset })
	return &MemReader{Data: data, Bad: bad}
}

func (memreader *MemReader) CreateHandler() error {
	return nil
}

func (memreader *MemReader) CloseHandler() error {
	return nil
}

func (memreader *MemReader) GetDiskSize() int64 {
	if memreader.UnknownSize {
		return SizeUnknown
	}
	return int64(len(memreader.Data))
}

// Reads reports how many ReadFile calls were served.
func (memreader *MemReader) Reads() int64 {
	return memreader.reads.Load()
}

func (memreader *MemReader) ReadFile(offset int64, length int) ([]byte, error) {
	memreader.reads.Add(1)
	length = clamp(offset, length, int64(len(memreader.Data)))
	if length <= 0 || offset < 0 {
		return nil, nil
	}
	end := offset + int64(length)

	for _, bad := range memreader.Bad {
		badEnd := bad.Offset + bad.Length
		if badEnd <= offset || bad.Offset >= end {
			continue
		}
		faultStart := max(bad.Offset, offset)
		faultEnd := min(memreader.badRunEnd(badEnd), end)
		data := append([]byte(nil), memreader.Data[offset:faultStart]...)
		return data, &MediumFault{Offset: faultStart, Length: faultEnd - faultStart, Err: errBadRegion}
	}

	return append([]byte(nil), memreader.Data[offset:end]...), nil
}

// badRunEnd extends a bad region through adjacent ones.
func (memreader *MemReader) badRunEnd(end int64) int64 {
	for _, bad := range memreader.Bad {
		if bad.Offset <= end && bad.Offset+bad.Length > end {
			end = bad.Offset + bad.Length
		}
	}
	return end
}
