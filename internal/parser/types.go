package parser

import "time"

// ParsedMessage is the structured record produced for one inbound email.
type ParsedMessage struct {
	// MessageID is never empty: a missing Message-Id header gets a
	// synthesized <timestamp@localhost> value.
	MessageID string

	Subject   string
	EmailFrom string

	// To, CC and Recipients hold formatted addresses, deduplicated.
	// Recipients is the union of Delivered-To, To, Cc, Resent-To, Resent-Cc.
	To         []string
	CC         []string
	Recipients []string

	// Body is sanitized HTML.
	Body        string
	Attachments []Attachment

	// Date is normalized to UTC. A parse failure substitutes the current
	// time and logs a warning.
	Date time.Time

	InReplyTo  string
	References string

	// ParentID references the persisted message the In-Reply-To header
	// resolves to; zero when the message starts a new thread.
	ParentID int64

	Bounce Bounce

	// TraceID correlates log records for one message across the pipeline.
	TraceID string
}

// Attachment is one extracted MIME part stored alongside the message.
type Attachment struct {
	Filename string
	Content  []byte

	// Info carries part metadata; inline attachments record their "cid" here
	// so <img src="cid:..."> references in the body can be matched up.
	Info map[string]string
}

// Bounce holds delivery-status-notification data extracted from a bounce
// message. Both fields are empty when the message is not a bounce.
type Bounce struct {
	// BouncedEmail is the normalized Final-Recipient address.
	BouncedEmail string

	// BouncedMessageID is the Message-Id of the bounced original. It is kept
	// as an opaque reference and not resolved to a stored record.
	BouncedMessageID string
}
