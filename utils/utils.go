package utils

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// 100ns intervals between 1601-01-01 and 1970-01-01
const windowsEpochDelta = 116444736000000000

type WindowsTime struct {
	Stamp uint64
}

var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

func GetBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

func PutBuffer(buf *bytes.Buffer) {
	buf.Reset()
	bufferPool.Put(buf)
}

func Filter[T any](elements []T, predicate func(T) bool) []T {
	var filtered []T
	for _, element := range elements {
		if predicate(element) {
			filtered = append(filtered, element)
		}
	}
	return filtered
}

func Hexify(barray []byte) string {
	return hex.EncodeToString(barray)
}

// ReadEndianUInt reads up to 8 little endian bytes.
func ReadEndianUInt(barray []byte) uint64 {
	var sum uint64
	for index, val := range barray {
		if index == 8 {
			break
		}
		sum |= uint64(val) << uint(index*8)
	}
	return sum
}

// ReadEndianInt reads up to 8 little endian bytes sign extending from the most significant one.
func ReadEndianInt(barray []byte) int64 {
	if len(barray) == 0 {
		return 0
	}
	if len(barray) > 8 {
		barray = barray[:8]
	}
	sum := ReadEndianUInt(barray)
	if barray[len(barray)-1]&0x80 != 0 && len(barray) < 8 {
		sum |= ^uint64(0) << uint(len(barray)*8)
	}
	return int64(sum)
}

// DetermineClusterOffsetLength splits a runlist header into offset and length field sizes.
func DetermineClusterOffsetLength(val byte) (uint64, uint64) {
	return uint64(val >> 4), uint64(val & 0x0f)
}

func ToUint16(data []byte) uint16 {
	return binary.LittleEndian.Uint16(data)
}

func ToUint32(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data)
}

func ToUint64(data []byte) uint64 {
	return binary.LittleEndian.Uint64(data)
}

func DecodeUTF16(data []byte) string {
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	decoded, err := decoder.Bytes(data)
	if err != nil {
		return ""
	}
	return string(decoded)
}

// DecodeCP437 decodes OEM short names.
func DecodeCP437(data []byte) string {
	decoded, err := charmap.CodePage437.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

func RemoveNulls(data []byte) string {
	return strings.TrimRight(string(bytes.ReplaceAll(data, []byte{0x00}, nil)), " ")
}

func (winTime WindowsTime) ConvertToTime() time.Time {
	if winTime.Stamp == 0 {
		return time.Time{}
	}
	unixNano := (int64(winTime.Stamp) - windowsEpochDelta) * 100
	return time.Unix(0, unixNano).UTC()
}

func (winTime WindowsTime) ConvertToIsoTime() string {
	return winTime.ConvertToTime().Format("02-01-2006 15:04:05")
}

// DOSDateTime converts FAT packed date and time fields.
func DOSDateTime(date uint16, clock uint16) time.Time {
	if date == 0 {
		return time.Time{}
	}
	year := int(date>>9) + 1980
	month := time.Month((date >> 5) & 0x0f)
	day := int(date & 0x1f)
	hour := int(clock >> 11)
	minute := int((clock >> 5) & 0x3f)
	second := int(clock&0x1f) * 2
	return time.Date(year, month, day, hour, minute, second, 0, time.UTC)
}

// SanitizeName keeps alphanumerics and ._- plus space, replacing the rest.
func SanitizeName(name string) string {
	var sanitized strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sanitized.WriteRune(r)
		case r == '.' || r == '_' || r == '-' || r == ' ':
			sanitized.WriteRune(r)
		case r > 127:
			sanitized.WriteRune(r)
		default:
			sanitized.WriteRune('_')
		}
	}
	result := strings.Trim(sanitized.String(), " .")
	if result == "" {
		return "unnamed"
	}
	return result
}

func NewPrinter() *message.Printer {
	return message.NewPrinter(language.Greek)
}

// Stringify formats numbers with digit grouping for log lines.
func Stringify(val int64) string {
	return NewPrinter().Sprintf("%d", val)
}
