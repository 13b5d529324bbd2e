package db

import (
	"fmt"
	"testing"
	"time"

	"github.com/felo/mailgate/internal/parser"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	if err := db.Close(); err != nil {
		t.Errorf("Failed to close test database: %v", err)
	}
}

// NewTestParsed creates a parsed message with default values
func NewTestParsed(slug string) *parser.ParsedMessage {
	return &parser.ParsedMessage{
		MessageID:  fmt.Sprintf("<%s@test.com>", slug),
		Subject:    slug,
		EmailFrom:  "sender@test.com",
		To:         []string{"recipient@test.com"},
		Recipients: []string{"recipient@test.com"},
		Body:       fmt.Sprintf("<p>%s</p>", slug),
		Date:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// InsertTestMessages inserts parsed messages and returns their row IDs
func InsertTestMessages(t *testing.T, db *DB, msgs []*parser.ParsedMessage) []int64 {
	t.Helper()

	ids := make([]int64, 0, len(msgs))
	for i, msg := range msgs {
		id, err := db.InsertParsed(msg, 0)
		if err != nil {
			t.Fatalf("Failed to insert test message %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	return ids
}

// NewTestAccount creates an account record with default values
func NewTestAccount(name string) *Account {
	return &Account{
		Name:        name,
		ServerType:  "pop",
		Server:      "mail.test.com",
		Port:        995,
		IsSSL:       true,
		Username:    name + "@test.com",
		Password:    "secret",
		Active:      true,
		Priority:    5,
		Attach:      true,
		TargetModel: "message",
	}
}
