package tree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	metadata "github.com/utxob/Data-Recover-toll/FS"
)

type node struct {
	id, parent int64
	name       string
	folder     bool
	deleted    bool
}

func (rec node) GetID() int64                  { return rec.id }
func (rec node) GetParentID() int64            { return rec.parent }
func (rec node) GetFname() string              { return rec.name }
func (rec node) GetLogicalFileSize() int64     { return 0 }
func (rec node) IsDeleted() bool               { return rec.deleted }
func (rec node) IsFolder() bool                { return rec.folder }
func (rec node) GetModifiedTime() time.Time    { return time.Time{} }
func (rec node) GetExtents() []metadata.Extent { return nil }
func (rec node) GetResidentData() []byte       { return nil }
func (rec node) IsResident() bool              { return false }
func (rec node) GetFilesystem() string         { return "test" }

func sample() []metadata.Record {
	return []metadata.Record{
		node{id: 5, parent: 5, name: ".", folder: true},
		node{id: 20, parent: 5, name: "Users", folder: true},
		node{id: 21, parent: 20, name: "alice", folder: true},
		node{id: 30, parent: 21, name: "notes.txt", deleted: true},
		node{id: 31, parent: 5, name: "top.txt", deleted: true},
		node{id: 32, parent: 99, name: "lost.txt", deleted: true},
		node{id: 40, parent: 41, name: "a", folder: true},
		node{id: 41, parent: 40, name: "b", folder: true},
		node{id: 42, parent: 41, name: "loop.txt", deleted: true},
	}
}

func TestResolvePaths(t *testing.T) {
	records := sample()
	tree := New(5)
	tree.Build(records)
	assert.Equal(t, 5, tree.Len())

	path, depth, orphan := tree.Resolve(records[3])
	assert.Equal(t, "/Users/alice/notes.txt", path)
	assert.Equal(t, 2, depth)
	assert.False(t, orphan)

	path, depth, orphan = tree.Resolve(records[4])
	assert.Equal(t, "/top.txt", path)
	assert.Equal(t, 0, depth)
	assert.False(t, orphan)

	path, depth, orphan = tree.Resolve(records[5])
	assert.Equal(t, "/$OrphanFiles/lost.txt", path)
	assert.Equal(t, 1, depth)
	assert.True(t, orphan)
}

func TestResolveStopsOnCycles(t *testing.T) {
	records := sample()
	tree := New(5)
	tree.Build(records)

	path, _, orphan := tree.Resolve(records[8])
	assert.True(t, orphan)
	assert.Equal(t, "/$OrphanFiles/loop.txt", path)
}

func TestChildren(t *testing.T) {
	tree := New(5)
	tree.Build(sample())

	children := tree.Children(5)
	assert.Len(t, children, 1)
	assert.Equal(t, "Users", children[0].GetFname())
	assert.Nil(t, tree.Children(1000))
}
