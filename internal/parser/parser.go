package parser

import (
	"bytes"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/google/uuid"

	"github.com/felo/mailgate/internal/address"
	"github.com/felo/mailgate/internal/logging"
	"github.com/felo/mailgate/internal/mimeheader"
	"github.com/felo/mailgate/internal/sanitize"
)

// ErrDuplicate reports that a message with the same Message-Id has already
// been persisted. Callers treat it as a skip, not a failure.
var ErrDuplicate = errors.New("message already processed")

// Store is the lookup surface the parser needs for threading and
// deduplication.
type Store interface {
	FindIDByMessageID(messageID string) (int64, bool, error)
}

// Options control per-account parsing behavior.
type Options struct {
	// SaveOriginal attaches the raw RFC2822 source as original_email.eml.
	SaveOriginal bool
	// StripAttachments drops all extracted attachments after parsing.
	StripAttachments bool
}

// Parser turns raw RFC2822 messages into ParsedMessage records.
type Parser struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Parser {
	return &Parser{store: store, now: time.Now}
}

// Parse decodes a raw message into a ParsedMessage. It returns ErrDuplicate
// when the Message-Id is already known to the store; any other error means
// the message could not be read at all.
func (p *Parser) Parse(raw []byte, opts Options) (*ParsedMessage, error) {
	ent, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	msg := &ParsedMessage{TraceID: uuid.New().String()}

	msg.MessageID = strings.TrimSpace(ent.Header.Get("Message-Id"))
	if msg.MessageID == "" {
		// Some labels and outgoing mailers omit the Message-Id. Synthesize
		// one so deduplication and threading still have a key.
		msg.MessageID = fmt.Sprintf("<%d@localhost>", p.now().UnixNano())
		logging.Log.WithField("message_id", msg.MessageID).
			Debug("Message without Message-Id, generated a substitute")
	}

	if id, found, err := p.store.FindIDByMessageID(msg.MessageID); err != nil {
		return nil, fmt.Errorf("failed to check for duplicate message: %w", err)
	} else if found {
		logging.Log.WithFields(map[string]interface{}{
			"message_id":  msg.MessageID,
			"existing_id": id,
		}).Info("Ignoring mail with already known Message-Id")
		return nil, ErrDuplicate
	}

	msg.Subject = mimeheader.Decode(ent.Header.Get("Subject"))
	msg.EmailFrom = firstFormatted(ent.Header.Get("From"))
	msg.To = recipientUnion(nil, ent.Header.Get("Delivered-To"), ent.Header.Get("To"))
	msg.CC = recipientUnion(nil, ent.Header.Get("Cc"))
	msg.Recipients = recipientUnion(msg.To,
		ent.Header.Get("Cc"),
		ent.Header.Get("Resent-To"),
		ent.Header.Get("Resent-Cc"))

	msg.Date = p.parseDate(ent.Header.Get("Date"), msg.MessageID)

	msg.InReplyTo = strings.TrimSpace(ent.Header.Get("In-Reply-To"))
	msg.References = ent.Header.Get("References")
	if msg.InReplyTo != "" {
		parentID, found, err := p.store.FindIDByMessageID(msg.InReplyTo)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve parent message: %w", err)
		}
		if found {
			msg.ParentID = parentID
		}
	}

	msg.Body, msg.Attachments = extractPayload(ent, raw, opts.SaveOriginal)
	if opts.StripAttachments {
		msg.Attachments = nil
	}
	msg.Body = sanitize.Clean(msg.Body, sanitize.Defaults())

	// Entity bodies are single-pass readers and the payload walk above has
	// drained them, so the bounce scan re-reads from the raw source.
	if bounceEnt, err := message.Read(bytes.NewReader(raw)); err == nil || message.IsUnknownCharset(err) {
		msg.Bounce = extractBounce(bounceEnt)
	}

	return msg, nil
}

// parseDate converts the Date header to UTC. Unparseable dates fall back to
// the reception time so the record still sorts.
func (p *Parser) parseDate(raw string, messageID string) time.Time {
	if raw != "" {
		if t, err := mail.ParseDate(raw); err == nil {
			return t.UTC()
		}
		logging.Log.WithFields(map[string]interface{}{
			"message_id": messageID,
			"date":       raw,
		}).Warn("Failed to parse Date header, replacing by reception time")
	}
	return p.now().UTC()
}

// firstFormatted returns the first address of a header, reformatted with the
// display name re-encoded and the domain converted to ASCII.
func firstFormatted(header string) string {
	formatted := address.SplitAndFormat(header)
	if len(formatted) == 0 {
		return mimeheader.Decode(header)
	}
	return formatted[0]
}

// recipientUnion merges formatted addresses from several headers, preserving
// order and dropping duplicates (case-insensitive on the whole formatted
// address).
func recipientUnion(base []string, headers ...string) []string {
	out := append([]string(nil), base...)
	seen := make(map[string]bool, len(base))
	for _, addr := range base {
		seen[strings.ToLower(addr)] = true
	}
	for _, header := range headers {
		for _, addr := range address.SplitAndFormat(header) {
			key := strings.ToLower(addr)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, addr)
		}
	}
	return out
}
