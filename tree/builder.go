package tree

import (
	"fmt"
	"path"
	"slices"

	metadata "github.com/utxob/Data-Recover-toll/FS"
	"github.com/utxob/Data-Recover-toll/logger"
	"github.com/utxob/Data-Recover-toll/utils"
)

// OrphanDir holds records whose parent chain does not reach the root.
const OrphanDir = "$OrphanFiles"

type Node struct {
	record   metadata.Record
	parent   *Node
	children []*Node
}

// Tree links folder records by parent ID, RootID is the ID top level entries point to.
type Tree struct {
	RootID int64
	nodes  map[int64]*Node
}

func New(rootID int64) *Tree {
	return &Tree{RootID: rootID, nodes: make(map[int64]*Node)}
}

func (t *Tree) Build(records []metadata.Record) {
	folders := metadata.FilterFolders(records)
	logger.RecoveryLogger.Info(fmt.Sprintf("Building tree from %s folders", utils.Stringify(int64(len(folders)))))

	for _, record := range folders {
		if _, ok := t.nodes[record.GetID()]; ok && record.IsDeleted() {
			continue // live folder wins
		}
		t.nodes[record.GetID()] = &Node{record: record}
	}
	for id, node := range t.nodes {
		if id == t.RootID {
			continue
		}
		parent, ok := t.nodes[node.record.GetParentID()]
		if !ok || parent == node {
			continue
		}
		node.parent = parent
		parent.children = append(parent.children, node)
	}
}

func (t Tree) Len() int {
	return len(t.nodes)
}

// Children lists the records directly under a folder.
func (t Tree) Children(id int64) []metadata.Record {
	node, ok := t.nodes[id]
	if !ok {
		return nil
	}
	var records []metadata.Record
	for _, child := range node.children {
		records = append(records, child.record)
	}
	return records
}

// Resolve returns the path of a record and the number of folders between it and the
// root. Records whose chain breaks or loops are placed under OrphanDir at depth 1.
func (t Tree) Resolve(record metadata.Record) (string, int, bool) {
	var components []string
	visited := map[int64]bool{record.GetID(): true}
	parentID := record.GetParentID()
	for parentID != t.RootID {
		node, ok := t.nodes[parentID]
		if !ok || visited[parentID] {
			return "/" + path.Join(OrphanDir, record.GetFname()), 1, true
		}
		visited[parentID] = true
		components = append(components, node.record.GetFname())
		parentID = node.record.GetParentID()
	}
	slices.Reverse(components)
	components = append(components, record.GetFname())
	return "/" + path.Join(components...), len(components) - 1, false
}
