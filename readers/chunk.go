package readers

import (
	"github.com/utxob/Data-Recover-toll/utils"
)

// ChunkIterator walks [Start, End) forward in fixed size reads. End may be SizeUnknown,
// iteration then stops at the first empty read.
type ChunkIterator struct {
	Reader    DiskReader
	ChunkSize int
	End       int64
	pos       int64
}

type Chunk struct {
	Offset int64
	Data   []byte
	Fault  *MediumFault
}

func NewChunkIterator(hD DiskReader, start int64, end int64, chunkSize int) *ChunkIterator {
	return &ChunkIterator{Reader: hD, ChunkSize: chunkSize, End: end, pos: start}
}

func (it *ChunkIterator) Position() int64 {
	return it.pos
}

// SeekTo moves the iterator forward, backward moves are ignored.
func (it *ChunkIterator) SeekTo(pos int64) {
	if pos > it.pos {
		it.pos = pos
	}
}

// Next returns false once the range is exhausted. A faulty chunk carries the good
// prefix and the iterator continues past the unreadable run.
func (it *ChunkIterator) Next() (Chunk, bool) {
	if it.End != SizeUnknown && it.pos >= it.End {
		return Chunk{}, false
	}
	length := it.ChunkSize
	if it.End != SizeUnknown && it.End-it.pos < int64(length) {
		length = int(it.End - it.pos)
	}

	data, err := it.Reader.ReadFile(it.pos, length)
	chunk := Chunk{Offset: it.pos, Data: data}
	if fault, ok := AsFault(err); ok {
		chunk.Fault = fault
		it.pos = max(fault.End(), it.pos+int64(len(data)))
		if fault.Length == 0 {
			it.pos++
		}
		return chunk, true
	} else if err != nil {
		chunk.Fault = &MediumFault{Offset: it.pos + int64(len(data)), Length: int64(length - len(data)), Err: err}
		it.pos += int64(length)
		return chunk, true
	}

	if len(data) == 0 {
		return Chunk{}, false
	}
	it.pos += int64(len(data))
	if len(data) < length && it.End == SizeUnknown {
		it.End = it.pos
	}
	return chunk, true
}

func formatOffset(offset int64) string {
	return utils.Stringify(offset)
}
