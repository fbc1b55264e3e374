package attributes

import (
	"github.com/utxob/Data-Recover-toll/utils"
)

// RunList holds a linked list of runs, offsets are relative to the previous run.
type RunList struct {
	Offset int64
	Length uint64
	Sparse bool
	Next   *RunList
}

// Run is a run with its absolute starting cluster.
type Run struct {
	Cluster int64
	Length  uint64
	Sparse  bool
}

// Process decodes the mapping pairs and returns the total length in clusters.
func (prevRunlist *RunList) Process(runlists []byte) uint64 {
	clusterPtr := uint64(0)
	totalLen := uint64(0)
	first := true

	for clusterPtr < uint64(len(runlists)) {
		ClusterOffsB, ClusterLenB := utils.DetermineClusterOffsetLength(runlists[clusterPtr])
		if ClusterLenB == 0 {
			break
		}
		if clusterPtr+1+ClusterLenB+ClusterOffsB > uint64(len(runlists)) {
			break
		}

		clustersLen := utils.ReadEndianUInt(runlists[clusterPtr+1 : clusterPtr+ClusterLenB+1])
		runlist := RunList{Length: clustersLen, Sparse: ClusterOffsB == 0}
		if !runlist.Sparse {
			runlist.Offset = utils.ReadEndianInt(runlists[clusterPtr+1+ClusterLenB : clusterPtr+ClusterLenB+ClusterOffsB+1])
		}

		if first {
			*prevRunlist = runlist
			first = false
		} else {
			prevRunlist.Next = &runlist
			prevRunlist = &runlist
		}
		totalLen += clustersLen
		clusterPtr += ClusterLenB + ClusterOffsB + 1
	}
	return totalLen
}

// Runs resolves relative offsets into absolute clusters.
func (runlist *RunList) Runs() []Run {
	var runs []Run
	cluster := int64(0)
	for runlist != nil {
		if runlist.Length == 0 {
			break
		}
		if runlist.Sparse {
			runs = append(runs, Run{Length: runlist.Length, Sparse: true})
		} else {
			cluster += runlist.Offset
			runs = append(runs, Run{Cluster: cluster, Length: runlist.Length})
		}
		runlist = runlist.Next
	}
	return runs
}
