package integration

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felo/mailgate/internal/db"
	"github.com/felo/mailgate/internal/importer"
	"github.com/felo/mailgate/internal/metrics"
)

const rootEML = `Message-Id: <thread-root@example.com>
From: Alice Smith <alice@example.com>
To: team@example.com
Subject: Quarterly planning
Date: Mon, 3 Aug 2026 10:00:00 +0000
Content-Type: multipart/mixed; boundary="b1"

--b1
Content-Type: text/html; charset=utf-8

<p>Draft agenda attached.</p>
--b1
Content-Type: text/plain; name="agenda.txt"
Content-Disposition: attachment; filename="agenda.txt"

1. budget
2. hiring
--b1--
`

const replyEML = `Message-Id: <thread-reply@example.com>
In-Reply-To: <thread-root@example.com>
References: <thread-root@example.com>
From: Bob Jones <bob@example.com>
To: alice@example.com
Cc: team@example.com
Subject: Re: Quarterly planning
Date: Mon, 3 Aug 2026 11:30:00 +0000
Content-Type: text/plain; charset=utf-8

Looks good, one comment inline.

> 1. budget
`

// TestEndToEndWorkflow walks the whole pipeline: raw .eml sources on disk,
// import through the parser, storage, threading queries, and dedup on replay.
func TestEndToEndWorkflow(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "01-root.eml"), []byte(rootEML), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "02-reply.eml"), []byte(replyEML), 0644))

	testDB, err := db.Open(":memory:")
	require.NoError(t, err, "Should open test database")
	defer testDB.Close()

	count, err := testDB.CountMessages()
	require.NoError(t, err)
	assert.Equal(t, 0, count, "Database should start empty")

	// Import the mailbox export. A single reader keeps ingestion in
	// filename order, so the root lands before the reply.
	imp := importer.New(testDB, metrics.NewExporter()).WithConcurrency(1)
	result, err := imp.ImportDir(tempDir)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalFound)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 0, result.Failed)

	// The reply threads under the root
	reply, err := testDB.GetMessageByMessageID("<thread-reply@example.com>")
	require.NoError(t, err)
	require.NotNil(t, reply)
	require.True(t, reply.ParentID.Valid, "Reply should resolve its parent")

	root, err := testDB.GetMessageByID(reply.ParentID.Int64)
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, "<thread-root@example.com>", root.MessageID)
	assert.Equal(t, "Quarterly planning", root.Subject)
	assert.Contains(t, root.EmailFrom, "alice@example.com")
	assert.Contains(t, root.BodyHTML, "Draft agenda attached")

	// The attachment survived with its payload
	attachments, err := testDB.GetAttachmentsByMessageID(root.ID)
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, "agenda.txt", attachments[0].Filename)
	assert.Contains(t, string(attachments[0].Content), "budget")

	// Thread queries see one conversation of two messages
	roots, err := testDB.GetRootMessages(10, 0)
	require.NoError(t, err)
	require.Len(t, roots, 1)

	replies, err := testDB.CountReplies(root.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, replies)

	thread, err := testDB.GetThreadMessages(reply.ID)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, root.ID, thread[0].ID, "Thread starts at the root")

	// Replaying the same directory stores nothing new
	again, err := imp.ImportDir(tempDir)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Imported)
	assert.Equal(t, 2, again.Skipped)

	count, err = testDB.CountMessages()
	require.NoError(t, err)
	assert.Equal(t, 2, count, "Count should remain the same after replay")
}

// TestWorkflowQuoteDetection verifies quoted reply text is marked so a
// client can collapse conversation history.
func TestWorkflowQuoteDetection(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "reply.eml"), []byte(replyEML), 0644))

	testDB, err := db.Open(":memory:")
	require.NoError(t, err)
	defer testDB.Close()

	imp := importer.New(testDB, metrics.NewExporter())
	result, err := imp.ImportDir(tempDir)
	require.NoError(t, err)
	require.Equal(t, 1, result.Imported)

	msg, err := testDB.GetMessageByMessageID("<thread-reply@example.com>")
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.Contains(t, msg.BodyHTML, "one comment inline")
	assert.Contains(t, msg.BodyHTML, "data-o-mail-quote", "quoted lines are marked")
}

// TestWorkflowLargeImport imports many generated messages concurrently
func TestWorkflowLargeImport(t *testing.T) {
	tempDir := t.TempDir()
	for i := 0; i < 40; i++ {
		content := fmt.Sprintf(
			"Message-Id: <bulk-%02d@example.com>\nFrom: sender@example.com\nSubject: bulk %02d\n"+
				"Date: Mon, 3 Aug 2026 10:00:00 +0000\nContent-Type: text/plain\n\nmessage %02d\n",
			i, i, i)
		name := fmt.Sprintf("msg-%02d.eml", i)
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, name), []byte(content), 0644))
	}

	testDB, err := db.Open(":memory:")
	require.NoError(t, err)
	defer testDB.Close()

	result, err := importer.New(testDB, metrics.NewExporter()).WithConcurrency(4).ImportDir(tempDir)
	require.NoError(t, err)
	assert.Equal(t, 40, result.Imported)
	assert.Zero(t, result.Failed)

	count, err := testDB.CountMessages()
	require.NoError(t, err)
	assert.Equal(t, 40, count)
}
