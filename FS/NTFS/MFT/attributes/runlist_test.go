package attributes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunListProcess(t *testing.T) {
	// 2 clusters at 0x1000, 3 sparse, 1 cluster 0x10 back
	runs := []byte{0x21, 0x02, 0x00, 0x10, 0x01, 0x03, 0x11, 0x01, 0xF0, 0x00}

	runlist := new(RunList)
	assert.Equal(t, uint64(6), runlist.Process(runs))
	assert.Equal(t, []Run{
		{Cluster: 0x1000, Length: 2},
		{Length: 3, Sparse: true},
		{Cluster: 0x0FF0, Length: 1},
	}, runlist.Runs())
}

func TestRunListStopsOnTruncatedPair(t *testing.T) {
	runlist := new(RunList)
	assert.Equal(t, uint64(4), runlist.Process([]byte{0x11, 0x04, 0x20, 0x32, 0x01}))
	assert.Equal(t, []Run{{Cluster: 0x20, Length: 4}}, runlist.Runs())
}

func TestParseHeaderRejectsOverlongAttribute(t *testing.T) {
	data := make([]byte, 32)
	data[0] = 0x80
	data[4] = 0xff
	_, err := ParseHeader(data)
	assert.ErrorIs(t, err, ErrAttributeTruncated)
}
