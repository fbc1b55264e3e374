package readers

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/utxob/Data-Recover-toll/logger"
)

type RawReader struct {
	PathToEvidenceFiles string
	fd                  *os.File
	size                int64
}

func (imgreader *RawReader) CreateHandler() error {
	file, err := os.Open(imgreader.PathToEvidenceFiles)
	if err != nil {
		logger.RecoveryLogger.Error(fmt.Sprintf("err %s in getting handle of %s", err, imgreader.PathToEvidenceFiles))
		return err
	}
	imgreader.fd = file
	imgreader.size = SizeUnknown

	finfo, err := file.Stat()
	if err != nil {
		return nil
	}
	if finfo.Mode().IsRegular() {
		imgreader.size = finfo.Size()
	} else {
		imgreader.size = deviceSize(file)
	}
	return nil
}

func (imgreader *RawReader) CloseHandler() error {
	if imgreader.fd == nil {
		return nil
	}
	return imgreader.fd.Close()
}

func (imgreader *RawReader) ReadFile(physicalOffset int64, length int) ([]byte, error) {
	length = clamp(physicalOffset, length, imgreader.size)
	if length <= 0 {
		return nil, nil
	}

	data := make([]byte, length)
	n, err := imgreader.fd.ReadAt(data, physicalOffset)
	if err == nil || errors.Is(err, io.EOF) {
		return data[:n], nil
	}

	msg := fmt.Sprintf("raw read failed: offset %d len %d read %d err %s", physicalOffset, length, n, err)
	logger.RecoveryLogger.Error(msg)
	return data[:n], &MediumFault{Offset: physicalOffset + int64(n), Length: int64(length - n), Err: err}
}

func (imgreader *RawReader) GetDiskSize() int64 {
	return imgreader.size
}
