package readers

import (
	"time"
)

type readResult struct {
	data []byte
	err  error
}

// TimeoutReader bounds every read, an expired read becomes a fault covering the request.
type TimeoutReader struct {
	DiskReader
	Timeout time.Duration
}

func NewTimeoutReader(hD DiskReader, timeout time.Duration) DiskReader {
	if timeout <= 0 {
		return hD
	}
	return &TimeoutReader{DiskReader: hD, Timeout: timeout}
}

func (timeoutreader *TimeoutReader) ReadFile(offset int64, length int) ([]byte, error) {
	results := make(chan readResult, 1)
	go func() {
		data, err := timeoutreader.DiskReader.ReadFile(offset, length)
		results <- readResult{data: data, err: err}
	}()

	timer := time.NewTimer(timeoutreader.Timeout)
	defer timer.Stop()

	select {
	case result := <-results:
		return result.data, result.err
	case <-timer.C:
		return nil, &MediumFault{Offset: offset, Length: int64(length), Err: ErrReadTimeout}
	}
}
