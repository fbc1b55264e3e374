package readers

import (
	"errors"
	"fmt"
	"path"
	"strings"

	ewfLib "github.com/aarsakian/EWF_Reader/ewf"
	ewfutils "github.com/aarsakian/EWF_Reader/ewf/utils"
	"github.com/utxob/Data-Recover-toll/logger"
)

var errNotEWF = errors.New("only E01 evidence files are supported")

type EWFReader struct {
	PathToEvidenceFiles string
	fd                  *ewfLib.EWF_Image
}

func (imgreader *EWFReader) CreateHandler() (err error) {
	extension := path.Ext(imgreader.PathToEvidenceFiles)
	if strings.ToLower(extension) != ".e01" && strings.ToLower(extension) != ".ewf" {
		return errNotEWF
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing evidence %s: %v", imgreader.PathToEvidenceFiles, r)
		}
	}()

	ewf_image := new(ewfLib.EWF_Image)
	filenames := ewfutils.FindEvidenceFiles(imgreader.PathToEvidenceFiles)
	ewf_image.ParseEvidence(filenames)

	imgreader.fd = ewf_image
	return nil
}

func (imgreader *EWFReader) CloseHandler() error {
	return nil
}

// ReadFile maps logical offsets through the chunk table of the container.
func (imgreader *EWFReader) ReadFile(physicalOffset int64, length int) (data []byte, err error) {
	if imgreader.fd == nil {
		return nil, fmt.Errorf("%w: %s not opened", ErrMediumUnreadable, imgreader.PathToEvidenceFiles)
	}
	length = clamp(physicalOffset, length, imgreader.GetDiskSize())
	if length <= 0 {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("ewf read failed at offset %d len %d: %v", physicalOffset, length, r)
			logger.RecoveryLogger.Error(msg)
			data, err = nil, &MediumFault{Offset: physicalOffset, Length: int64(length), Err: errors.New(msg)}
		}
	}()

	data = imgreader.fd.RetrieveData(physicalOffset, int64(length))
	if len(data) < length {
		return data, &MediumFault{Offset: physicalOffset + int64(len(data)), Length: int64(length - len(data)),
			Err: errors.New("short ewf chunk")}
	}
	return data[:length], nil
}

func (imgreader *EWFReader) GetDiskSize() int64 {
	if imgreader.fd == nil {
		return 0
	}
	return int64(imgreader.fd.Chunksize) * int64(imgreader.fd.NofChunks)
}
