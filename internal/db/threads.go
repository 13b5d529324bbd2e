package db

import (
	"fmt"
	"strings"
)

// ThreadMessage represents a message with conversation metadata
type ThreadMessage struct {
	*Message
	Children    []*ThreadMessage // Child messages (replies)
	ReplyCount  int              // Total number of replies in the thread
	IsRoot      bool             // True if this message starts a conversation
	ThreadDepth int              // Depth in the conversation tree (0 = root)
}

// GetRootMessages retrieves messages that are not replies. A message is a
// root when its parent was never resolved, either because it has no
// In-Reply-To or because the parent was never ingested.
func (db *DB) GetRootMessages(limit, offset int) ([]*Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE parent_id IS NULL
		ORDER BY date DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get root messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// GetDirectReplies retrieves all messages whose parent is the given row
func (db *DB) GetDirectReplies(parentID int64) ([]*Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE parent_id = ?
		ORDER BY date ASC
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get direct replies: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reply: %w", err)
		}
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating replies: %w", err)
	}

	return messages, nil
}

// BuildThreadTree builds a nested conversation tree starting from a root
// message, recursively collecting replies.
func (db *DB) BuildThreadTree(root *Message) (*ThreadMessage, error) {
	thread := &ThreadMessage{
		Message:     root,
		Children:    make([]*ThreadMessage, 0),
		IsRoot:      true,
		ThreadDepth: 0,
	}

	// Circular parent references cannot be created through ingestion, but a
	// hand-edited database must not hang the walk.
	visited := make(map[int64]bool)
	maxDepth := 50
	if err := db.buildThreadTreeRecursive(thread, 1, visited, maxDepth); err != nil {
		return nil, err
	}

	return thread, nil
}

func (db *DB) buildThreadTreeRecursive(parent *ThreadMessage, depth int, visited map[int64]bool, maxDepth int) error {
	if visited[parent.Message.ID] {
		return nil
	}
	if depth > maxDepth {
		return nil
	}
	visited[parent.Message.ID] = true

	replies, err := db.GetDirectReplies(parent.Message.ID)
	if err != nil {
		return err
	}

	for _, reply := range replies {
		child := &ThreadMessage{
			Message:     reply,
			Children:    make([]*ThreadMessage, 0),
			ThreadDepth: depth,
		}

		if err := db.buildThreadTreeRecursive(child, depth+1, visited, maxDepth); err != nil {
			return err
		}

		parent.Children = append(parent.Children, child)
		parent.ReplyCount += 1 + child.ReplyCount
	}

	return nil
}

// GetThreadMessages gets all messages in a conversation as a flat list.
// Starting from any message, it finds the root and returns the whole thread.
func (db *DB) GetThreadMessages(messageID int64) ([]*Message, error) {
	msg, err := db.GetMessageByID(messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("message not found")
	}

	root, err := db.findThreadRoot(msg)
	if err != nil {
		return nil, err
	}

	tree, err := db.BuildThreadTree(root)
	if err != nil {
		return nil, err
	}

	var flat []*Message
	var collect func(*ThreadMessage)
	collect = func(t *ThreadMessage) {
		flat = append(flat, t.Message)
		for _, child := range t.Children {
			collect(child)
		}
	}
	collect(tree)
	return flat, nil
}

// findThreadRoot follows parent_id links up to the thread root
func (db *DB) findThreadRoot(msg *Message) (*Message, error) {
	current := msg
	visited := map[int64]bool{current.ID: true}

	for current.ParentID.Valid {
		parent, err := db.GetMessageByID(current.ParentID.Int64)
		if err != nil || parent == nil {
			break
		}
		if visited[parent.ID] {
			break
		}
		visited[parent.ID] = true
		current = parent
	}

	return current, nil
}

// CountReplies counts the direct and indirect replies to a message
func (db *DB) CountReplies(messageID int64) (int, error) {
	var count int
	err := db.QueryRow(`
		WITH RECURSIVE replies AS (
			-- Base case: direct replies
			SELECT id FROM messages WHERE parent_id = ?

			UNION ALL

			-- Recursive case: replies to replies
			SELECT m.id
			FROM messages m
			INNER JOIN replies r ON m.parent_id = r.id
		)
		SELECT COUNT(*) FROM replies
	`, messageID).Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to count replies: %w", err)
	}

	return count, nil
}

// GetReferencesList parses the References header into a slice
func (m *Message) GetReferencesList() []string {
	if m.ThreadReferences == "" {
		return []string{}
	}
	refs := strings.Fields(m.ThreadReferences)
	result := make([]string, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref != "" {
			result = append(result, ref)
		}
	}
	return result
}
