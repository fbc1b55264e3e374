package attributes

// DATA keeps resident content, non resident content is described by the header runlist.
type DATA struct {
	Content []byte
	Header  *Header
}

func (data *DATA) SetHeader(header *Header) {
	data.Header = header
}

func (data *DATA) Parse(datab []byte) error {
	data.Content = append([]byte(nil), datab...)
	return nil
}

func (data DATA) GetHeader() Header {
	return *data.Header
}

func (data DATA) FindType() string {
	return data.Header.GetType()
}

func (data DATA) IsNoNResident() bool {
	return data.Header.IsNoNResident()
}

// IsUnnamed reports the default stream, named ones are alternate data streams.
func (data DATA) IsUnnamed() bool {
	return data.Header.Nlen == 0
}
