// Package fetcher polls configured mailbox accounts over POP3 or IMAP and
// hands every message to a Router for parsing and storage. A message is only
// removed from (or marked seen in) the source mailbox after it has been
// persisted, so delivery is at-least-once and the parser's dedup gate
// absorbs the replays.
package fetcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/felo/mailgate/internal/config"
	"github.com/felo/mailgate/internal/db"
	"github.com/felo/mailgate/internal/logging"
	"github.com/felo/mailgate/internal/metrics"
	"github.com/felo/mailgate/internal/parser"
)

// Stats counts the outcomes of a fetch cycle
type Stats struct {
	Fetched    int
	Failed     int
	Duplicates int
}

func (s *Stats) add(other Stats) {
	s.Fetched += other.Fetched
	s.Failed += other.Failed
	s.Duplicates += other.Duplicates
}

// Fetcher runs fetch cycles over the active accounts
type Fetcher struct {
	store    *db.DB
	router   Router
	exporter *metrics.Exporter

	dialers      map[string]Dialer
	popBatchSize int
	now          func() time.Time
}

func New(store *db.DB, router Router, exporter *metrics.Exporter, cfg config.FetchConfig) *Fetcher {
	return &Fetcher{
		store:    store,
		router:   router,
		exporter: exporter,
		dialers: map[string]Dialer{
			"imap": func(acc *db.Account) (Session, error) {
				return DialIMAP(acc, cfg.Timeout, cfg.IMAPFolder)
			},
			"pop": func(acc *db.Account) (Session, error) {
				return DialPOP3(acc, cfg.Timeout)
			},
		},
		popBatchSize: cfg.POPBatchSize,
		now:          time.Now,
	}
}

// FetchAll runs one fetch cycle for every active account, in priority order.
// One broken mailbox does not block the others.
func (f *Fetcher) FetchAll() (Stats, error) {
	accounts, err := f.store.ListActiveAccounts()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list accounts: %w", err)
	}

	var total Stats
	for _, acc := range accounts {
		stats, err := f.FetchAccount(acc)
		total.add(stats)
		if errors.Is(err, ErrConnection) {
			logging.ForAccount(acc.Name, acc.Server, acc.ServerType).
				WithError(err).Error("Mailbox unreachable, cycle aborted")
		} else if err != nil {
			logging.ForAccount(acc.Name, acc.Server, acc.ServerType).
				WithError(err).Error("Fetch cycle failed")
		}
	}
	return total, nil
}

// FetchAccount runs one complete fetch cycle for a single account. The
// account's last fetch date is only advanced when the cycle ran to the end.
func (f *Fetcher) FetchAccount(acc *db.Account) (Stats, error) {
	log := logging.ForAccount(acc.Name, acc.Server, acc.ServerType)
	start := f.now()

	var stats Stats
	var err error
	switch acc.ServerType {
	case "imap":
		stats, err = f.fetchIMAP(log, acc)
	case "pop":
		stats, err = f.fetchPOP(log, acc)
	default:
		return Stats{}, fmt.Errorf("unknown server type %q", acc.ServerType)
	}
	if err != nil {
		return stats, err
	}

	f.exporter.ObserveCycleDuration(acc.Name, f.now().Sub(start).Seconds())
	if err := f.store.UpdateLastFetchDate(acc.ID, f.now()); err != nil {
		return stats, err
	}

	log.WithFields(logrus.Fields{
		"fetched":    stats.Fetched,
		"failed":     stats.Failed,
		"duplicates": stats.Duplicates,
	}).Info("Fetch cycle completed")
	return stats, nil
}

// fetchPOP drains the mailbox in batches, reconnecting between batches. The
// loop stops when a batch comes back smaller than the cap, which means the
// mailbox is empty.
func (f *Fetcher) fetchPOP(log *logrus.Entry, acc *db.Account) (Stats, error) {
	var stats Stats
	for {
		session, err := f.dial(acc)
		if err != nil {
			return stats, err
		}

		ids, err := session.Unread()
		if err != nil {
			session.Close()
			return stats, err
		}
		if len(ids) > f.popBatchSize {
			ids = ids[:f.popBatchSize]
		}

		for _, id := range ids {
			f.processOne(log, session, acc, id, &stats)
		}

		if err := session.Close(); err != nil {
			log.WithError(err).Warn("Failed to close POP session")
		}

		if len(ids) < f.popBatchSize {
			return stats, nil
		}
	}
}

// fetchIMAP processes every unseen message over a single session.
func (f *Fetcher) fetchIMAP(log *logrus.Entry, acc *db.Account) (Stats, error) {
	var stats Stats

	session, err := f.dial(acc)
	if err != nil {
		return stats, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.WithError(err).Warn("Failed to close IMAP session")
		}
	}()

	ids, err := session.Unread()
	if err != nil {
		return stats, err
	}

	for _, id := range ids {
		f.processOne(log, session, acc, id, &stats)
	}
	return stats, nil
}

func (f *Fetcher) dial(acc *db.Account) (Session, error) {
	dialer, ok := f.dialers[acc.ServerType]
	if !ok {
		return nil, fmt.Errorf("unknown server type %q", acc.ServerType)
	}
	return dialer(acc)
}

// processOne fetches, routes and acknowledges a single message. Failures are
// counted and logged but never abort the cycle.
func (f *Fetcher) processOne(log *logrus.Entry, session Session, acc *db.Account, id uint32, stats *Stats) {
	raw, err := session.Fetch(id)
	if err != nil {
		stats.Failed++
		f.exporter.IncFailed(acc.Name)
		log.WithError(err).WithField("mailbox_id", id).Warn("Failed to fetch message")
		return
	}

	switch err := f.router.Route(acc, raw); {
	case err == nil:
		stats.Fetched++
		f.exporter.IncFetched(acc.Name)
		f.ack(log, session, id)

	case errors.Is(err, parser.ErrDuplicate):
		// Already stored in an earlier cycle; acknowledge so the source
		// mailbox stops re-delivering it.
		stats.Duplicates++
		f.exporter.IncDuplicate(acc.Name)
		f.ack(log, session, id)

	default:
		stats.Failed++
		f.exporter.IncFailed(acc.Name)
		log.WithError(err).WithField("mailbox_id", id).Error("Failed to process message")
		if err := session.Nack(id); err != nil {
			log.WithError(err).WithField("mailbox_id", id).Warn("Failed to return message to the mailbox")
		}
	}
}

func (f *Fetcher) ack(log *logrus.Entry, session Session, id uint32) {
	if err := session.Ack(id); err != nil {
		// The message is persisted; a failed Ack means the next cycle sees
		// it again and the dedup gate drops it.
		log.WithError(err).WithField("mailbox_id", id).Warn("Failed to acknowledge message")
	}
}
