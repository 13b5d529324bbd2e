package fetcher

import (
	"fmt"
	"time"

	"github.com/knadh/go-pop3"

	"github.com/felo/mailgate/internal/db"
)

type popSession struct {
	conn *pop3.Conn
}

// DialPOP3 connects to a POP3 server and authenticates. The timeout applies
// to the dial; POP3 conversations are short-lived by construction since a
// cycle opens a fresh connection per batch.
func DialPOP3(acc *db.Account, timeout time.Duration) (Session, error) {
	p := pop3.New(pop3.Opt{
		Host:        acc.Server,
		Port:        acc.Port,
		TLSEnabled:  acc.IsSSL,
		DialTimeout: timeout,
	})

	conn, err := p.NewConn()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to POP server: %v", ErrConnection, err)
	}

	if err := conn.Auth(acc.Username, acc.Password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("%w: failed to login: %v", ErrConnection, err)
	}

	return &popSession{conn: conn}, nil
}

func (s *popSession) Unread() ([]uint32, error) {
	count, _, err := s.conn.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat mailbox: %w", err)
	}

	ids := make([]uint32, 0, count)
	for i := 1; i <= count; i++ {
		ids = append(ids, uint32(i))
	}
	return ids, nil
}

func (s *popSession) Fetch(id uint32) ([]byte, error) {
	buf, err := s.conn.RetrRaw(int(id))
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve message %d: %w", id, err)
	}
	return buf.Bytes(), nil
}

func (s *popSession) Ack(id uint32) error {
	return s.conn.Dele(int(id))
}

// Nack is a no-op for POP3: a message that was never deleted stays in the
// mailbox and is picked up again on the next cycle.
func (s *popSession) Nack(id uint32) error {
	return nil
}

func (s *popSession) Close() error {
	return s.conn.Quit()
}
