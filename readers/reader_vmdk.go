package readers

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"

	extent "github.com/aarsakian/VMDK_Reader/extent"
	"github.com/utxob/Data-Recover-toll/logger"
)

var errNotVMDK = errors.New("only VMDK Sparse images are supported")

type VMDKReader struct {
	PathToEvidenceFiles string
	fd                  extent.Extents
	grainSizeB          int64
}

// CreateHandler reads the extent descriptions of the descriptor file and the grain
// tables of every sparse extent.
func (imgreader *VMDKReader) CreateHandler() (err error) {
	extension := path.Ext(imgreader.PathToEvidenceFiles)
	if strings.ToLower(extension) != ".vmdk" {
		return errNotVMDK
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing extents of %s: %v", imgreader.PathToEvidenceFiles, r)
		}
	}()

	extents := extent.LocateExtents(imgreader.PathToEvidenceFiles)
	if len(extents) == 0 {
		return fmt.Errorf("%w: no extent described in %s", errNotVMDK, imgreader.PathToEvidenceFiles)
	}
	for _, ext := range extents {
		if ext.ExtentType != "SPARSE" {
			return fmt.Errorf("%w: %s extent %s", errNotVMDK, ext.ExtentType, ext.FilenamePath)
		}
	}
	extents.Parse()
	for _, ext := range extents {
		if ext.SparseHeader == nil || ext.SparseHeader.GrainSize == 0 {
			return fmt.Errorf("%w: no sparse header in %s", ErrMediumUnreadable, ext.FilenamePath)
		}
	}
	imgreader.fd = extents
	imgreader.grainSizeB = extents[0].GetGrainSizeB()
	return nil
}

func (imgreader *VMDKReader) CloseHandler() error {
	return nil
}

// ReadFile translates through the grain tables one grain at a time, unallocated grains
// read as zeros.
func (imgreader *VMDKReader) ReadFile(physicalOffset int64, length int) (data []byte, err error) {
	if imgreader.fd == nil {
		return nil, fmt.Errorf("%w: %s not opened", ErrMediumUnreadable, imgreader.PathToEvidenceFiles)
	}
	length = clamp(physicalOffset, length, imgreader.GetDiskSize())
	if length <= 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("vmdk read failed at offset %d len %d: %v", physicalOffset, length, r)
			logger.RecoveryLogger.Error(msg)
			data, err = buf.Bytes(), &MediumFault{Offset: physicalOffset + int64(buf.Len()),
				Length: int64(length - buf.Len()), Err: errors.New(msg)}
		}
	}()

	for pos := int64(0); pos < int64(length); {
		offset := physicalOffset + pos
		n := min(imgreader.grainSizeB-offset%imgreader.grainSizeB, int64(length)-pos)
		before := buf.Len()
		grainOffsets := imgreader.fd.RetrieveData(&buf, offset, n)
		if len(grainOffsets) > 0 && grainOffsets[0] == 0 {
			buf.Write(make([]byte, n))
		}
		if got := int64(buf.Len() - before); got < n {
			buf.Truncate(before)
			return buf.Bytes(), &MediumFault{Offset: offset, Length: int64(length) - pos,
				Err: errors.New("grain outside the grain tables")}
		}
		pos += n
	}
	return buf.Bytes(), nil
}

func (imgreader *VMDKReader) GetDiskSize() int64 {
	return imgreader.fd.GetHDSize()
}
