package FAT

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	clusterMask = 0x0FFFFFFF
	badCluster  = 0x0FFFFFF7
	endOfChain  = 0x0FFFFFF8
)

var ErrBrokenChain = errors.New("broken cluster chain")

// Table is the file allocation table, entry n describes cluster n.
type Table []uint32

func LoadTable(data []byte) Table {
	table := make(Table, len(data)/4)
	for idx := range table {
		table[idx] = binary.LittleEndian.Uint32(data[idx*4:]) & clusterMask
	}
	return table
}

func (table Table) IsFree(cluster uint32) bool {
	return int(cluster) < len(table) && table[cluster] == 0
}

// FreeRun reports whether length clusters from start are all free.
func (table Table) FreeRun(start uint32, length uint32) bool {
	for cluster := start; cluster < start+length; cluster++ {
		if !table.IsFree(cluster) {
			return false
		}
	}
	return true
}

// Chain follows the allocation chain from start.
func (table Table) Chain(start uint32) ([]uint32, error) {
	var chain []uint32
	visited := make(map[uint32]bool)
	cluster := start
	for {
		if cluster < 2 || int(cluster) >= len(table) {
			return chain, fmt.Errorf("%w: cluster %d out of range", ErrBrokenChain, cluster)
		}
		if visited[cluster] {
			return chain, fmt.Errorf("%w: loop at cluster %d", ErrBrokenChain, cluster)
		}
		visited[cluster] = true
		chain = append(chain, cluster)

		next := table[cluster]
		switch {
		case next >= endOfChain:
			return chain, nil
		case next == 0 || next == badCluster:
			return chain, fmt.Errorf("%w: cluster %d points to %#x", ErrBrokenChain, cluster, next)
		}
		cluster = next
	}
}
