package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// insertThread builds root <- reply1 <- reply2 plus a sibling reply to root,
// returning the row IDs in insertion order.
func insertThread(t *testing.T, db *DB) []int64 {
	t.Helper()

	root := NewTestParsed("root")
	rootID, err := db.InsertParsed(root, 0)
	require.NoError(t, err)

	reply1 := NewTestParsed("reply1")
	reply1.InReplyTo = root.MessageID
	reply1.ParentID = rootID
	reply1ID, err := db.InsertParsed(reply1, 0)
	require.NoError(t, err)

	reply2 := NewTestParsed("reply2")
	reply2.InReplyTo = reply1.MessageID
	reply2.ParentID = reply1ID
	reply2ID, err := db.InsertParsed(reply2, 0)
	require.NoError(t, err)

	sibling := NewTestParsed("sibling")
	sibling.InReplyTo = root.MessageID
	sibling.ParentID = rootID
	siblingID, err := db.InsertParsed(sibling, 0)
	require.NoError(t, err)

	return []int64{rootID, reply1ID, reply2ID, siblingID}
}

// TestGetRootMessages tests that only parentless messages are roots
func TestGetRootMessages(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	ids := insertThread(t, db)

	roots, err := db.GetRootMessages(10, 0)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, ids[0], roots[0].ID)
	assert.Equal(t, "root", roots[0].Subject)
}

// TestGetDirectReplies tests the direct reply listing
func TestGetDirectReplies(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	ids := insertThread(t, db)

	replies, err := db.GetDirectReplies(ids[0])
	require.NoError(t, err)
	require.Len(t, replies, 2, "root has two direct replies")

	replies, err = db.GetDirectReplies(ids[2])
	require.NoError(t, err)
	assert.Empty(t, replies, "leaf has no replies")
}

// TestBuildThreadTree tests the nested conversation tree
func TestBuildThreadTree(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	ids := insertThread(t, db)

	root, err := db.GetMessageByID(ids[0])
	require.NoError(t, err)

	tree, err := db.BuildThreadTree(root)
	require.NoError(t, err)

	assert.True(t, tree.IsRoot)
	assert.Equal(t, 3, tree.ReplyCount, "three messages descend from the root")
	require.Len(t, tree.Children, 2)

	assert.Equal(t, "reply1", tree.Children[0].Subject)
	assert.Equal(t, 1, tree.Children[0].ThreadDepth)
	require.Len(t, tree.Children[0].Children, 1)
	assert.Equal(t, "reply2", tree.Children[0].Children[0].Subject)
	assert.Equal(t, 2, tree.Children[0].Children[0].ThreadDepth)
}

// TestGetThreadMessages tests flattening a thread starting from a leaf
func TestGetThreadMessages(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	ids := insertThread(t, db)

	flat, err := db.GetThreadMessages(ids[2])
	require.NoError(t, err)
	require.Len(t, flat, 4, "whole thread is returned from any member")
	assert.Equal(t, ids[0], flat[0].ID, "thread starts at the root")
}

// TestCountReplies tests the recursive reply count
func TestCountReplies(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	ids := insertThread(t, db)

	count, err := db.CountReplies(ids[0])
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = db.CountReplies(ids[1])
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = db.CountReplies(ids[2])
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// TestGetReferencesList tests References header splitting
func TestGetReferencesList(t *testing.T) {
	msg := &Message{ThreadReferences: "<a@test.com> <b@test.com>\n <c@test.com>"}
	assert.Equal(t,
		[]string{"<a@test.com>", "<b@test.com>", "<c@test.com>"},
		msg.GetReferencesList())

	empty := &Message{}
	assert.Empty(t, empty.GetReferencesList())
}
