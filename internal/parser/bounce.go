package parser

import (
	"bufio"
	"net/textproto"
	"regexp"
	"strings"

	"github.com/emersion/go-message"

	"github.com/felo/mailgate/internal/address"
)

var msgIDRe = regexp.MustCompile(`<[^<>]+>`)

// extractBounce inspects a message for delivery-status-notification parts.
// The first message/delivery-status part yields the bounced recipient; the
// first message/rfc822 part (the bounced original) yields the bounced
// Message-Id. Either field stays empty when absent; a non-bounce message is
// not an error.
func extractBounce(ent *message.Entity) Bounce {
	var bounce Bounce
	dsnSeen, originalSeen := false, false

	_ = ent.Walk(func(path []int, part *message.Entity, err error) error {
		if err != nil && !message.IsUnknownCharset(err) {
			return nil
		}
		partType, _, _ := part.Header.ContentType()

		switch partType {
		case "message/delivery-status":
			if dsnSeen {
				return nil
			}
			dsnSeen = true
			bounce.BouncedEmail = bouncedRecipient(part)

		case "message/rfc822":
			if originalSeen {
				return nil
			}
			originalSeen = true
			bounce.BouncedMessageID = embeddedMessageID(part)
		}
		return nil
	})

	return bounce
}

// bouncedRecipient parses the per-recipient DSN block (the second body
// section) and normalizes its Final-Recipient, which arrives with an
// address-type prefix like "rfc822; user@example.com".
func bouncedRecipient(part *message.Entity) string {
	blocks := dsnBlocks(part)
	if len(blocks) < 2 {
		return ""
	}
	fields, err := textproto.NewReader(bufio.NewReader(strings.NewReader(blocks[1] + "\r\n\r\n"))).ReadMIMEHeader()
	if err != nil && len(fields) == 0 {
		return ""
	}
	finalRecipient := fields.Get("Final-Recipient")
	if finalRecipient == "" {
		return ""
	}
	if _, addr, found := strings.Cut(finalRecipient, ";"); found {
		finalRecipient = addr
	}
	normalized, ok := address.Normalize(strings.TrimSpace(finalRecipient))
	if !ok {
		return ""
	}
	return normalized
}

// dsnBlocks splits a delivery-status body into its blank-line separated
// field groups: per-message fields first, then one group per recipient.
func dsnBlocks(part *message.Entity) []string {
	body := decodeTextBody(part.Body, "")
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var blocks []string
	for _, block := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(block) != "" {
			blocks = append(blocks, strings.TrimSpace(block))
		}
	}
	return blocks
}

// embeddedMessageID reads the attached original message and pulls its
// Message-Id header.
func embeddedMessageID(part *message.Entity) string {
	embedded, err := message.Read(part.Body)
	if err != nil && !message.IsUnknownCharset(err) {
		return ""
	}
	raw := embedded.Header.Get("Message-Id")
	return msgIDRe.FindString(raw)
}
