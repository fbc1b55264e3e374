// Package testimg builds synthetic media for tests.
package testimg

import (
	"encoding/binary"
)

var PNGHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// Body fills n bytes with a pattern free of 0xFF so no JPEG marker appears.
func Body(n int, seed int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte((i+seed)%200) + 1
	}
	return data
}

// JPEG returns a size byte file delimited by SOI and EOI markers.
func JPEG(size int, seed int) []byte {
	data := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, Body(size-6, seed)...)
	return append(data, 0xFF, 0xD9)
}

// TruncatedJPEG has a header and no EOI marker.
func TruncatedJPEG(size int, seed int) []byte {
	return append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, Body(size-4, seed)...)
}

func PNG(size int, seed int) []byte {
	data := append([]byte(nil), PNGHeader...)
	data = append(data, Body(size-len(PNGHeader)-12, seed)...)
	data = append(data, 0, 0, 0, 0)
	data = append(data, []byte("IEND")...)
	return append(data, 0xAE, 0x42, 0x60, 0x82)
}

func BMP(size int, seed int) []byte {
	data := make([]byte, size)
	copy(data, "BM")
	binary.LittleEndian.PutUint32(data[2:], uint32(size))
	copy(data[6:], Body(size-6, seed))
	return data
}

// Medium is a zero filled byte space with files placed at known offsets.
type Medium struct {
	Data  []byte
	Files []Placement
}

type Placement struct {
	Offset int64
	Data   []byte
}

func NewMedium(size int) *Medium {
	return &Medium{Data: make([]byte, size)}
}

func (medium *Medium) Place(offset int64, data []byte) *Medium {
	copy(medium.Data[offset:], data)
	medium.Files = append(medium.Files, Placement{Offset: offset, Data: data})
	return medium
}
