package signatures

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrInvalidSignature = errors.New("invalid signature")

// ReadFunc reads relative to a candidate's start offset.
type ReadFunc func(offset int64, length int) ([]byte, error)

// MeasureFunc derives a file length from its own structures, it reports false
// when the structures are not plausible.
type MeasureFunc func(read ReadFunc, limit int64) (int64, bool)

// Signature describes one file type variant. Header is compared HeaderOffset bytes
// after the file start, a zero Mask byte makes the header byte a wildcard.
type Signature struct {
	Tag          string
	Extensions   []string
	Header       []byte
	Mask         []byte
	HeaderOffset int
	Footer       []byte
	FooterTail   int
	MinSize      int64
	MaxSize      int64
	Measure      MeasureFunc
}

// Span is the number of bytes from the file start needed to test the header.
func (sig Signature) Span() int {
	return sig.HeaderOffset + len(sig.Header)
}

// Matches tests the header against data that starts at the candidate file start.
func (sig Signature) Matches(data []byte) bool {
	if len(data) < sig.Span() {
		return false
	}
	window := data[sig.HeaderOffset:sig.Span()]
	if sig.Mask == nil {
		return bytes.Equal(window, sig.Header)
	}
	for idx, val := range sig.Header {
		if sig.Mask[idx] != 0 && window[idx] != val {
			return false
		}
	}
	return true
}

func (sig Signature) HasFooter() bool {
	return len(sig.Footer) > 0
}

// FooterLength includes the fixed trailer that follows the footer pattern.
func (sig Signature) FooterLength() int {
	return len(sig.Footer) + sig.FooterTail
}

func (sig Signature) Extension() string {
	if len(sig.Extensions) == 0 {
		return "bin"
	}
	return sig.Extensions[0]
}

func (sig Signature) Validate() error {
	switch {
	case sig.Tag == "":
		return fmt.Errorf("%w: empty tag", ErrInvalidSignature)
	case len(sig.Header) == 0:
		return fmt.Errorf("%w: %s has no header", ErrInvalidSignature, sig.Tag)
	case sig.Mask != nil && len(sig.Mask) != len(sig.Header):
		return fmt.Errorf("%w: %s mask length differs from header", ErrInvalidSignature, sig.Tag)
	case sig.HeaderOffset < 0:
		return fmt.Errorf("%w: %s negative header offset", ErrInvalidSignature, sig.Tag)
	case sig.MinSize <= 0 || sig.MaxSize < sig.MinSize:
		return fmt.Errorf("%w: %s size bounds %d-%d", ErrInvalidSignature, sig.Tag, sig.MinSize, sig.MaxSize)
	case int64(sig.Span()) > sig.MaxSize:
		return fmt.Errorf("%w: %s header exceeds max size", ErrInvalidSignature, sig.Tag)
	}
	return nil
}

// MeasureLittleEndian32 reads a 32 bit length at pos and adds delta.
func MeasureLittleEndian32(pos int64, delta int64, minimum int64) MeasureFunc {
	return func(read ReadFunc, limit int64) (int64, bool) {
		data, err := read(pos, 4)
		if err != nil || len(data) < 4 {
			return 0, false
		}
		size := int64(binary.LittleEndian.Uint32(data)) + delta
		if size < minimum || size > limit {
			return 0, false
		}
		return size, true
	}
}

// MeasureISOBoxes walks ISO base media boxes from the file start.
func MeasureISOBoxes(read ReadFunc, limit int64) (int64, bool) {
	pos := int64(0)
	boxes := 0
	for pos < limit {
		header, err := read(pos, 16)
		if err != nil || len(header) < 8 {
			break
		}
		size := int64(binary.BigEndian.Uint32(header[:4]))
		if !isBoxType(header[4:8]) {
			break
		}
		if size == 1 {
			if len(header) < 16 {
				break
			}
			size = int64(binary.BigEndian.Uint64(header[8:16]))
		}
		if size < 8 {
			break
		}
		pos += size
		boxes++
	}
	if boxes == 0 || pos > limit {
		return 0, false
	}
	return pos, true
}

func isBoxType(boxType []byte) bool {
	for _, val := range boxType {
		if !(val >= 'a' && val <= 'z' || val >= 'A' && val <= 'Z' || val >= '0' && val <= '9' || val == ' ') {
			return false
		}
	}
	return true
}
