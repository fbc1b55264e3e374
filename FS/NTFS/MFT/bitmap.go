package MFT

// Bitmap is the $Bitmap cluster allocation map, one bit per cluster.
type Bitmap []byte

func (bitmap Bitmap) IsAllocated(cluster int64) bool {
	if cluster < 0 || cluster/8 >= int64(len(bitmap)) {
		// outside the volume, never free
		return true
	}
	return bitmap[cluster/8]&(1<<(cluster%8)) != 0
}

// AnyAllocated reports whether one of length clusters from start is in use.
func (bitmap Bitmap) AnyAllocated(start int64, length uint64) bool {
	for cluster := start; cluster < start+int64(length); cluster++ {
		if bitmap.IsAllocated(cluster) {
			return true
		}
	}
	return false
}

func (bitmap Bitmap) GetUnallocatedClusters() []int {
	var unallocatedClusters []int
	for pos := 0; pos < len(bitmap)*8; pos++ {
		if !bitmap.IsAllocated(int64(pos)) {
			unallocatedClusters = append(unallocatedClusters, pos)
		}
	}
	return unallocatedClusters
}
