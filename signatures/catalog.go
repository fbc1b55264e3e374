package signatures

const (
	kB = 1000
	MB = 1000 * kB
)

var riffMask = []byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}

// catalog is ordered, earlier entries win when headers collide.
var catalog = []Signature{
	// documents
	{Tag: "zip_based", Extensions: []string{"zip", "docx", "xlsx", "pptx", "odt", "ods", "jar", "apk", "epub"},
		Header: []byte{0x50, 0x4B, 0x03, 0x04}, Footer: []byte{0x50, 0x4B, 0x05, 0x06}, FooterTail: 18,
		MinSize: 30, MaxSize: 10 * MB},
	{Tag: "cfb", Extensions: []string{"cfb", "doc", "xls", "ppt", "msg"},
		Header: []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, MinSize: 1536, MaxSize: 50 * MB},
	{Tag: "pdf", Extensions: []string{"pdf"},
		Header: []byte("%PDF"), Footer: []byte("%%EOF"), MinSize: 64, MaxSize: 100 * MB},
	{Tag: "zip_based", Extensions: []string{"zip"},
		Header: []byte{0x50, 0x4B, 0x05, 0x06}, MinSize: 22, MaxSize: 22},
	{Tag: "zip_based", Extensions: []string{"zip"},
		Header: []byte{0x50, 0x4B, 0x07, 0x08}, Footer: []byte{0x50, 0x4B, 0x05, 0x06}, FooterTail: 18,
		MinSize: 30, MaxSize: 10 * MB},

	// images
	{Tag: "jpg", Extensions: []string{"jpg", "jpeg", "jpe"},
		Header: []byte{0xFF, 0xD8, 0xFF}, Footer: []byte{0xFF, 0xD9}, MinSize: 128, MaxSize: 30 * MB},
	{Tag: "png", Extensions: []string{"png"},
		Header: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, Footer: []byte("IEND"), FooterTail: 4,
		MinSize: 67, MaxSize: 50 * MB},
	{Tag: "gif", Extensions: []string{"gif"},
		Header: []byte("GIF8"), Footer: []byte{0x00, 0x3B}, MinSize: 35, MaxSize: 10 * MB},
	{Tag: "bmp", Extensions: []string{"bmp", "dib"},
		Header: []byte("BM"), MinSize: 58, MaxSize: 100 * MB, Measure: MeasureLittleEndian32(2, 0, 58)},
	{Tag: "tiff", Extensions: []string{"tif", "tiff"},
		Header: []byte{0x49, 0x49, 0x2A, 0x00}, MinSize: 64, MaxSize: 100 * MB},
	{Tag: "tiff", Extensions: []string{"tif", "tiff"},
		Header: []byte{0x4D, 0x4D, 0x00, 0x2A}, MinSize: 64, MaxSize: 100 * MB},

	// video
	{Tag: "mov", Extensions: []string{"mov", "qt"},
		Header: []byte("ftypqt"), HeaderOffset: 4, MinSize: 32, MaxSize: 500 * MB, Measure: MeasureISOBoxes},
	{Tag: "mp4", Extensions: []string{"mp4", "m4v", "m4a", "3gp"},
		Header: []byte("ftyp"), HeaderOffset: 4, MinSize: 32, MaxSize: 500 * MB, Measure: MeasureISOBoxes},
	{Tag: "avi", Extensions: []string{"avi"},
		Header: []byte("RIFF\x00\x00\x00\x00AVI "), Mask: riffMask, MinSize: 64, MaxSize: 500 * MB,
		Measure: MeasureLittleEndian32(4, 8, 64)},
	{Tag: "mkv", Extensions: []string{"mkv", "webm"},
		Header: []byte{0x1A, 0x45, 0xDF, 0xA3}, MinSize: 64, MaxSize: 500 * MB},
	{Tag: "flv", Extensions: []string{"flv"},
		Header: []byte{0x46, 0x4C, 0x56, 0x01}, MinSize: 13, MaxSize: 100 * MB},

	// audio
	{Tag: "mp3", Extensions: []string{"mp3"},
		Header: []byte("ID3"), MinSize: 128, MaxSize: 10 * MB},
	{Tag: "mp3", Extensions: []string{"mp3"},
		Header: []byte{0xFF, 0xFB}, MinSize: 128, MaxSize: 10 * MB},
	{Tag: "wav", Extensions: []string{"wav"},
		Header: []byte("RIFF\x00\x00\x00\x00WAVE"), Mask: riffMask, MinSize: 44, MaxSize: 100 * MB,
		Measure: MeasureLittleEndian32(4, 8, 44)},
	{Tag: "aac", Extensions: []string{"aac"},
		Header: []byte{0xFF, 0xF1}, MinSize: 128, MaxSize: 10 * MB},
	{Tag: "flac", Extensions: []string{"flac"},
		Header: []byte("fLaC"), MinSize: 42, MaxSize: 100 * MB},

	// archives
	{Tag: "rar", Extensions: []string{"rar"},
		Header: []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00}, MinSize: 20, MaxSize: 100 * MB},
	{Tag: "rar5", Extensions: []string{"rar"},
		Header: []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00}, MinSize: 20, MaxSize: 100 * MB},
	{Tag: "7z", Extensions: []string{"7z"},
		Header: []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}, MinSize: 32, MaxSize: 100 * MB},

	// web
	{Tag: "html", Extensions: []string{"html", "htm"},
		Header: []byte("<!DOCT"), Footer: []byte("</html>"), MinSize: 16, MaxSize: 1 * MB},
	{Tag: "css", Extensions: []string{"css"},
		Header: []byte("/* CSS"), MinSize: 16, MaxSize: 1 * MB},
	{Tag: "js", Extensions: []string{"js"},
		Header: []byte("<scrip"), Footer: []byte("</script>"), MinSize: 16, MaxSize: 1 * MB},

	// executables
	{Tag: "exe", Extensions: []string{"exe", "dll", "sys"},
		Header: []byte("MZ"), MinSize: 97, MaxSize: 50 * MB},
}

// Default returns the built-in catalog.
func Default() *Registry {
	return MustRegistry(catalog...)
}
