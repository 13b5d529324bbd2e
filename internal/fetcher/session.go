package fetcher

import (
	"errors"

	"github.com/felo/mailgate/internal/db"
)

// ErrConnection marks network or authentication failures while opening a
// session. A cycle hitting one aborts for that account without advancing its
// last fetch date.
var ErrConnection = errors.New("connection failed")

// Session is one connection to a mailbox. Implementations exist for POP3 and
// IMAP; tests substitute fakes.
type Session interface {
	// Unread returns the identifiers of messages awaiting ingestion, in
	// mailbox order.
	Unread() ([]uint32, error)

	// Fetch returns the raw RFC2822 source of a message. Fetching must not
	// mark the message as handled.
	Fetch(id uint32) ([]byte, error)

	// Ack marks a message as handled: POP3 deletes it, IMAP flags it seen.
	// Called only after the message is persisted (or recognized as a
	// duplicate), so a crash before Ack re-delivers rather than loses.
	Ack(id uint32) error

	// Nack returns a message to the pool after a processing failure.
	Nack(id uint32) error

	Close() error
}

// Dialer opens a mailbox session for an account.
type Dialer func(acc *db.Account) (Session, error)
