package fetcher

import (
	"fmt"

	"github.com/felo/mailgate/internal/db"
	"github.com/felo/mailgate/internal/logging"
	"github.com/felo/mailgate/internal/metrics"
	"github.com/felo/mailgate/internal/parser"
)

// Router decides what happens to a fetched message. The production router
// parses and persists; tests substitute recorders.
type Router interface {
	// Route processes one raw message for an account. parser.ErrDuplicate
	// means the message was already ingested and may be acknowledged.
	Route(acc *db.Account, raw []byte) error
}

// StoreRouter parses messages and persists them to the database.
type StoreRouter struct {
	parser   *parser.Parser
	store    *db.DB
	exporter *metrics.Exporter
}

func NewStoreRouter(store *db.DB, exporter *metrics.Exporter) *StoreRouter {
	return &StoreRouter{
		parser:   parser.New(store),
		store:    store,
		exporter: exporter,
	}
}

// Route parses and stores a message. Each message commits in its own
// transaction, so one broken message never rolls back its neighbors.
func (r *StoreRouter) Route(acc *db.Account, raw []byte) error {
	opts := parser.Options{
		SaveOriginal:     acc.KeepOriginal,
		StripAttachments: !acc.Attach,
	}

	msg, err := r.parser.Parse(raw, opts)
	if err != nil {
		return err
	}

	id, err := r.store.InsertParsed(msg, acc.ID)
	if err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}

	entry := logging.ForAccount(acc.Name, acc.Server, acc.ServerType).WithFields(map[string]interface{}{
		"id":         id,
		"message_id": msg.MessageID,
		"trace_id":   msg.TraceID,
		"target":     acc.TargetModel,
	})
	if msg.Bounce.BouncedEmail != "" || msg.Bounce.BouncedMessageID != "" {
		r.exporter.IncBounce(acc.Name)
		entry = entry.WithField("bounced_email", msg.Bounce.BouncedEmail)
	}
	entry.Info("Stored incoming message")

	return nil
}
