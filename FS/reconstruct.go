package metadata

import (
	"fmt"
	"io"

	"github.com/utxob/Data-Recover-toll/readers"
)

const readChunk = 1 << 20

var zeroChunk = make([]byte, readChunk)

func writeZeros(w io.Writer, length int64) (int64, error) {
	var written int64
	for written < length {
		n, err := w.Write(zeroChunk[:min(int64(readChunk), length-written)])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Reconstruct streams the content of record to w, extents in map order, truncated to
// the logical size. Sparse extents and unreadable ranges are written as zeros so the
// following bytes keep their position, the error then wraps ErrPartial. Errors from w
// are returned as they are.
func Reconstruct(hD readers.DiskReader, record Record, w io.Writer) (int64, error) {
	size := record.GetLogicalFileSize()
	if record.IsResident() {
		data := record.GetResidentData()
		if int64(len(data)) > size {
			data = data[:size]
		}
		n, err := w.Write(data)
		return int64(n), err
	}

	var written int64
	var faults []error
	for _, extent := range record.GetExtents() {
		if written >= size {
			break
		}
		length := min(extent.Length, size-written)
		if extent.Sparse {
			n, err := writeZeros(w, length)
			written += n
			if err != nil {
				return written, err
			}
			continue
		}

		for pos := int64(0); pos < length; {
			offset := extent.Offset + pos
			n := min(int64(readChunk), length-pos)
			data, err := hD.ReadFile(offset, int(n))
			wn, werr := w.Write(data)
			written += int64(wn)
			if werr != nil {
				return written, werr
			}
			got := int64(len(data))
			if got < n {
				skip := n - got
				if fault, ok := readers.AsFault(err); ok && fault.End() > offset+got {
					skip = min(skip, fault.End()-(offset+got))
				}
				if err == nil {
					err = fmt.Errorf("short read at %d", offset+got)
				}
				faults = append(faults, err)
				zn, zerr := writeZeros(w, skip)
				written += zn
				if zerr != nil {
					return written, zerr
				}
				got += skip
			}
			pos += got
		}
	}

	if written < size {
		faults = append(faults, fmt.Errorf("extent map covers %d of %d bytes", written, size))
	}
	if len(faults) > 0 {
		return written, fmt.Errorf("%w: %d unreadable ranges, first: %w", ErrPartial, len(faults), faults[0])
	}
	return written, nil
}
