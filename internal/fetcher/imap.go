package fetcher

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/felo/mailgate/internal/db"
)

type imapSession struct {
	client *client.Client
}

// DialIMAP connects to an IMAP server, authenticates and selects the folder.
// The timeout bounds every subsequent command on the connection.
func DialIMAP(acc *db.Account, timeout time.Duration, folder string) (Session, error) {
	addr := fmt.Sprintf("%s:%d", acc.Server, acc.Port)

	var c *client.Client
	var err error
	if acc.IsSSL {
		c, err = client.DialTLS(addr, nil)
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to IMAP server: %v", ErrConnection, err)
	}
	c.Timeout = timeout

	if err := c.Login(acc.Username, acc.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w: failed to login: %v", ErrConnection, err)
	}

	if _, err := c.Select(folder, false); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to select folder %q: %w", folder, err)
	}

	return &imapSession{client: c}, nil
}

func (s *imapSession) Unread() ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	ids, err := s.client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search for unseen messages: %w", err)
	}
	return ids, nil
}

func (s *imapSession) Fetch(id uint32) ([]byte, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(id)

	// Peek so the fetch itself does not set \Seen; the flag is only set by
	// Ack once the message is safely persisted.
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.Fetch(seqSet, items, messages)
	}()

	var msg *imap.Message
	for m := range messages {
		msg = m
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", id, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("no message returned for %d", id)
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, fmt.Errorf("message %d has no body section", id)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %d: %w", id, err)
	}
	return raw, nil
}

func (s *imapSession) Ack(id uint32) error {
	return s.storeSeenFlag(id, imap.AddFlags)
}

func (s *imapSession) Nack(id uint32) error {
	return s.storeSeenFlag(id, imap.RemoveFlags)
}

func (s *imapSession) storeSeenFlag(id uint32, op imap.FlagsOp) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(id)

	item := imap.FormatFlagsOp(op, true)
	return s.client.Store(seqSet, item, []interface{}{imap.SeenFlag}, nil)
}

func (s *imapSession) Close() error {
	return s.client.Logout()
}
