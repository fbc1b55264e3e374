package volume

import (
	"context"
	"fmt"
	"iter"

	metadata "github.com/utxob/Data-Recover-toll/FS"
	"github.com/utxob/Data-Recover-toll/FS/FAT"
	"github.com/utxob/Data-Recover-toll/logger"
	"github.com/utxob/Data-Recover-toll/readers"
	"github.com/utxob/Data-Recover-toll/tree"
	"github.com/utxob/Data-Recover-toll/utils"
)

// rootID is the parent ID of the entries of the root directory.
const rootID = 0

type FAT32 struct {
	BootSector *FAT.BootSector
	FSInfo     *FAT.FSInfo
	Table      FAT.Table
	Entries    []FAT.DirEntry
	deleted    []metadata.Deleted
	dirTree    *tree.Tree
}

type pendingDir struct {
	cluster uint32
	id      int64
	deleted bool
}

func (fat *FAT32) AddVolume(data []byte) error {
	bootSector := new(FAT.BootSector)
	if err := bootSector.Parse(data); err != nil {
		return err
	}
	fat.BootSector = bootSector
	return nil
}

// Process loads the allocation table, walks the directory tree from the root cluster
// and selects the deleted entries worth recovering, ctx is checked between directories
// and entries.
func (fat *FAT32) Process(ctx context.Context, hD readers.DiskReader, partitionOffsetB int64) error {
	bootSector := fat.BootSector
	fsInfoOffset := partitionOffsetB + int64(bootSector.FSInfoSector)*int64(bootSector.BytesPerSector)
	if data, err := hD.ReadFile(fsInfoOffset, 512); err == nil {
		fsInfo := new(FAT.FSInfo)
		if err := fsInfo.Parse(data); err == nil {
			fat.FSInfo = fsInfo
		} else {
			logger.RecoveryLogger.Warning(fmt.Sprintf("FSInfo at %d: %v", fsInfoOffset, err))
		}
	}

	data, err := hD.ReadFile(partitionOffsetB+bootSector.FATOffset(), int(bootSector.FATSize()))
	if err != nil || int64(len(data)) < bootSector.FATSize() {
		return fmt.Errorf("%w: allocation table at %d: %v", readers.ErrMediumUnreadable,
			partitionOffsetB+bootSector.FATOffset(), err)
	}
	fat.Table = FAT.LoadTable(data)
	if total := int(bootSector.TotalClusters()) + 2; total < len(fat.Table) {
		fat.Table = fat.Table[:total]
	}
	logger.RecoveryLogger.Info(fmt.Sprintf("FAT32 volume %s with %s clusters of %d bytes", bootSector.GetLabel(),
		utils.Stringify(int64(bootSector.TotalClusters())), bootSector.ClusterSize()))

	if err := fat.walk(ctx, hD, partitionOffsetB); err != nil {
		return err
	}
	return fat.selectDeleted(ctx, partitionOffsetB)
}

// directoryClusters lists the clusters of a directory. Deleted directories lost their
// chain, only their first cluster is trusted.
func (fat FAT32) directoryClusters(dir pendingDir) []uint32 {
	if dir.deleted {
		if !fat.Table.IsFree(dir.cluster) {
			return nil
		}
		return []uint32{dir.cluster}
	}
	chain, err := fat.Table.Chain(dir.cluster)
	if err != nil {
		logger.RecoveryLogger.Warning(fmt.Sprintf("directory at cluster %d: %v", dir.cluster, err))
	}
	return chain
}

func (fat *FAT32) walk(ctx context.Context, hD readers.DiskReader, partitionOffsetB int64) error {
	bootSector := fat.BootSector
	clusterSize := bootSector.ClusterSize()
	queue := []pendingDir{{cluster: bootSector.RootDirClusterNumber, id: rootID}}
	visited := make(map[uint32]bool)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir := queue[0]
		queue = queue[1:]
		if visited[dir.cluster] {
			continue
		}
		visited[dir.cluster] = true

		clusters := fat.directoryClusters(dir)
		var content []byte
		for _, cluster := range clusters {
			data, err := hD.ReadFile(partitionOffsetB+bootSector.ClusterOffset(cluster), clusterSize)
			if err != nil || len(data) < clusterSize {
				logger.RecoveryLogger.Warning(fmt.Sprintf("directory cluster %d unreadable: %v", cluster, err))
				break
			}
			content = append(content, data...)
		}
		if len(content) == 0 {
			continue
		}
		if dir.deleted && (content[0] != '.' || content[11]&FAT.AttrDirectory == 0) {
			logger.RecoveryLogger.Info(fmt.Sprintf("deleted directory at cluster %d overwritten", dir.cluster))
			continue
		}

		for _, entry := range FAT.ParseDirectory(content, 0, dir.id) {
			// entry offsets within content map back onto the clusters holding them
			pos := entry.ID
			entry.ID = partitionOffsetB + bootSector.ClusterOffset(clusters[pos/int64(clusterSize)]) +
				pos%int64(clusterSize)
			fat.Entries = append(fat.Entries, entry)

			if entry.IsFolder() && bootSector.IsValidCluster(entry.GetFirstCluster()) {
				queue = append(queue, pendingDir{cluster: entry.GetFirstCluster(), id: entry.ID,
					deleted: entry.Deleted || dir.deleted})
			}
		}
	}
	logger.RecoveryLogger.Info(fmt.Sprintf("%s directory entries in %d directories",
		utils.Stringify(int64(len(fat.Entries))), len(visited)))
	return nil
}

// extents of a deleted file, the chain was cleared so the clusters are assumed contiguous
func (fat FAT32) extents(entry FAT.DirEntry, partitionOffsetB int64) ([]metadata.Extent, bool) {
	clusterSize := int64(fat.BootSector.ClusterSize())
	first := entry.GetFirstCluster()
	count := uint32((int64(entry.FileSize) + clusterSize - 1) / clusterSize)
	if count == 0 || !fat.BootSector.IsValidCluster(first) || !fat.BootSector.IsValidCluster(first+count-1) {
		return nil, false
	}
	return []metadata.Extent{{Offset: partitionOffsetB + fat.BootSector.ClusterOffset(first),
		Length: int64(count) * clusterSize}}, true
}

// selectDeleted keeps the deleted entries whose clusters are still free and marks their
// overlaps, paths are resolved as Deleted is consumed.
func (fat *FAT32) selectDeleted(ctx context.Context, partitionOffsetB int64) error {
	records := make([]metadata.Record, len(fat.Entries))
	for idx := range fat.Entries {
		records[idx] = metadata.FATRecord{Entry: &fat.Entries[idx]}
	}
	fat.dirTree = tree.New(rootID)
	fat.dirTree.Build(records)

	clusterSize := uint32(fat.BootSector.ClusterSize())
	fat.deleted = nil
	for idx, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry := fat.Entries[idx]
		if !entry.Deleted || entry.IsFolder() || entry.FileSize == 0 {
			continue
		}
		extents, ok := fat.extents(entry, partitionOffsetB)
		if !ok {
			logger.RecoveryLogger.Info(fmt.Sprintf("%s start cluster out of volume", entry))
			continue
		}
		count := (entry.FileSize + clusterSize - 1) / clusterSize
		if !fat.Table.FreeRun(entry.GetFirstCluster(), count) {
			logger.RecoveryLogger.Info(fmt.Sprintf("%s clusters reallocated", entry))
			continue
		}
		fatRecord := rec.(metadata.FATRecord)
		fatRecord.Extents = extents
		fat.deleted = append(fat.deleted, metadata.Deleted{Record: fatRecord})
	}
	metadata.MarkOverlaps(fat.deleted)
	logger.RecoveryLogger.Info(fmt.Sprintf("%s deleted entries recoverable", utils.Stringify(int64(len(fat.deleted)))))
	return nil
}

func (fat FAT32) Deleted() iter.Seq[metadata.Deleted] {
	return resolvePaths(fat.deleted, fat.dirTree)
}

func (fat FAT32) GetClusterSize() int {
	return fat.BootSector.ClusterSize()
}

func (fat FAT32) GetInfo() string {
	return fmt.Sprintf("%s %s size %s cluster size %d", fat.GetSignature(), fat.BootSector.GetLabel(),
		utils.Stringify(fat.BootSector.TotalSectors()*int64(fat.BootSector.BytesPerSector)), fat.BootSector.ClusterSize())
}

func (fat FAT32) GetSignature() string {
	return fat.BootSector.GetSignature()
}
