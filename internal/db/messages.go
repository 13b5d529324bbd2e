package db

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/felo/mailgate/internal/parser"
)

// NullTime is a custom type that handles both string and time.Time from SQLite
type NullTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner for NullTime
func (nt *NullTime) Scan(value interface{}) error {
	if value == nil {
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		nt.Time, nt.Valid = v, true
		return nil
	case string:
		// Try multiple time formats
		formats := []string{
			time.RFC3339,
			time.RFC3339Nano,
			// SQLite timestamp formats including Go's time.String() format
			"2006-01-02 15:04:05.999999999 -0700 -0700",
			"2006-01-02 15:04:05 -0700 -0700",
			"2006-01-02 15:04:05.999999999 -0700 MST",
			"2006-01-02 15:04:05 -0700 MST",
			"2006-01-02 15:04:05.999999999 -0700",
			"2006-01-02 15:04:05 -0700",
			"2006-01-02 15:04:05.999999999",
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05Z",
			time.RFC1123Z,
			time.RFC1123,
		}

		var t time.Time
		var err error
		for _, format := range formats {
			t, err = time.Parse(format, v)
			if err == nil {
				nt.Time, nt.Valid = t, true
				return nil
			}
		}

		return fmt.Errorf("failed to parse time string %q: %w", v, err)
	default:
		return fmt.Errorf("unsupported Scan type for NullTime: %T", value)
	}
}

// Value implements driver.Valuer for NullTime
func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return nil, nil
	}
	return nt.Time, nil
}

// Message represents an ingested message record
type Message struct {
	ID               int64
	MessageID        string
	Subject          string
	EmailFrom        string
	EmailTo          string // Comma-separated formatted addresses
	EmailCC          string
	Recipients       string
	BodyHTML         string
	Date             NullTime
	InReplyTo        string
	ThreadReferences string
	ParentID         sql.NullInt64
	BouncedEmail     string
	BouncedMessageID string
	AccountID        sql.NullInt64
	FetchedAt        NullTime
}

// GetDate returns the date as time.Time, or zero time if NULL
func (m *Message) GetDate() time.Time {
	if m.Date.Valid {
		return m.Date.Time
	}
	return time.Time{}
}

// Attachment represents a stored attachment, payload included
type Attachment struct {
	ID        int64
	MessageID int64
	Filename  string
	Content   []byte
	CID       string
	Size      int64
}

const messageColumns = `id, message_id, subject, email_from, email_to, email_cc, recipients,
       body_html, date, in_reply_to, thread_references, parent_id,
       bounced_email, bounced_message_id, account_id, fetched_at`

func scanMessage(row interface{ Scan(...interface{}) error }) (*Message, error) {
	msg := &Message{}
	err := row.Scan(
		&msg.ID, &msg.MessageID, &msg.Subject, &msg.EmailFrom, &msg.EmailTo, &msg.EmailCC, &msg.Recipients,
		&msg.BodyHTML, &msg.Date, &msg.InReplyTo, &msg.ThreadReferences, &msg.ParentID,
		&msg.BouncedEmail, &msg.BouncedMessageID, &msg.AccountID, &msg.FetchedAt,
	)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// InsertParsed persists a parsed message and its attachments in one
// transaction, so a half-written record can never be observed.
func (db *DB) InsertParsed(msg *parser.ParsedMessage, accountID int64) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var parentID sql.NullInt64
	if msg.ParentID != 0 {
		parentID = sql.NullInt64{Int64: msg.ParentID, Valid: true}
	}
	var account sql.NullInt64
	if accountID != 0 {
		account = sql.NullInt64{Int64: accountID, Valid: true}
	}

	result, err := tx.Exec(`
		INSERT INTO messages (
			message_id, subject, email_from, email_to, email_cc, recipients,
			body_html, date, in_reply_to, thread_references, parent_id,
			bounced_email, bounced_message_id, account_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.MessageID, msg.Subject, msg.EmailFrom,
		strings.Join(msg.To, ","), strings.Join(msg.CC, ","), strings.Join(msg.Recipients, ","),
		msg.Body, msg.Date, msg.InReplyTo, msg.References, parentID,
		msg.Bounce.BouncedEmail, msg.Bounce.BouncedMessageID, account,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get message id: %w", err)
	}

	for _, att := range msg.Attachments {
		_, err := tx.Exec(`
			INSERT INTO attachments (message_id, filename, content, cid, size)
			VALUES (?, ?, ?, ?, ?)
		`, id, att.Filename, att.Content, att.Info["cid"], len(att.Content))
		if err != nil {
			return 0, fmt.Errorf("failed to insert attachment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit message: %w", err)
	}

	return id, nil
}

// FindIDByMessageID looks up a message row by its Message-Id header. It is
// the dedup and threading lookup used while parsing.
func (db *DB) FindIDByMessageID(messageID string) (int64, bool, error) {
	if messageID == "" {
		return 0, false, nil
	}

	var id int64
	err := db.QueryRow("SELECT id FROM messages WHERE message_id = ?", messageID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up message_id: %w", err)
	}
	return id, true, nil
}

// GetMessageByID retrieves a message by its row ID
func (db *DB) GetMessageByID(id int64) (*Message, error) {
	msg, err := scanMessage(db.QueryRow(
		"SELECT "+messageColumns+" FROM messages WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// GetMessageByMessageID retrieves a message by its Message-Id header
func (db *DB) GetMessageByMessageID(messageID string) (*Message, error) {
	if messageID == "" {
		return nil, nil
	}

	msg, err := scanMessage(db.QueryRow(
		"SELECT "+messageColumns+" FROM messages WHERE message_id = ? LIMIT 1", messageID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message by message_id: %w", err)
	}
	return msg, nil
}

// ListMessages retrieves the most recent messages with pagination
func (db *DB) ListMessages(limit, offset int) ([]*Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		ORDER BY date DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
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

// CountMessages returns the total number of stored messages
func (db *DB) CountMessages() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// GetAttachmentsByMessageID retrieves all attachments for a message
func (db *DB) GetAttachmentsByMessageID(messageID int64) ([]*Attachment, error) {
	rows, err := db.Query(`
		SELECT id, message_id, filename, content, cid, size
		FROM attachments WHERE message_id = ?
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*Attachment
	for rows.Next() {
		att := &Attachment{}
		err := rows.Scan(&att.ID, &att.MessageID, &att.Filename, &att.Content, &att.CID, &att.Size)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, att)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}

	return attachments, nil
}
