package readers

import (
	"fmt"

	"github.com/utxob/Data-Recover-toll/logger"
)

const DefaultSectorSize = 512

// SectorReader retries failed reads sector by sector so that a single bad sector
// does not hide the readable data around it.
type SectorReader struct {
	DiskReader
	SectorSize int
}

func NewSectorReader(hD DiskReader, sectorSize int) *SectorReader {
	if sectorSize <= 0 {
		sectorSize = DefaultSectorSize
	}
	return &SectorReader{DiskReader: hD, SectorSize: sectorSize}
}

func (sectorreader *SectorReader) ReadFile(offset int64, length int) ([]byte, error) {
	data, err := sectorreader.DiskReader.ReadFile(offset, length)
	if err == nil {
		return data, nil
	}
	end := offset + int64(length)

	start := offset + int64(len(data))
	if fault, ok := AsFault(err); ok && fault.Offset < start {
		start = fault.Offset
	}
	sector := int64(sectorreader.SectorSize)
	if aligned := start - start%sector; aligned >= offset {
		start = aligned
	}
	data = data[:start-offset]

	pos := start
	for pos < end {
		sectorLen := int(min(sector-pos%sector, end-pos))
		sectorData, sectorErr := sectorreader.DiskReader.ReadFile(pos, sectorLen)
		if sectorErr != nil {
			break
		}
		data = append(data, sectorData...)
		pos += int64(len(sectorData))
		if len(sectorData) < sectorLen { // end of medium
			return data, nil
		}
	}
	if pos >= end {
		return data, nil
	}

	badStart := pos
	for pos < end {
		sectorLen := int(min(sector-pos%sector, end-pos))
		if _, sectorErr := sectorreader.DiskReader.ReadFile(pos, sectorLen); sectorErr == nil {
			break
		}
		pos += int64(sectorLen)
	}

	msg := fmt.Sprintf("isolated unreadable sectors %s-%s", formatOffset(badStart), formatOffset(pos))
	logger.RecoveryLogger.Warning(msg)
	return data, &MediumFault{Offset: badStart, Length: pos - badStart, Err: err}
}
