package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Account is a mailbox to poll for incoming messages
type Account struct {
	ID            int64
	Name          string
	ServerType    string // "pop" or "imap"
	Server        string
	Port          int
	IsSSL         bool
	Username      string
	Password      string
	Active        bool
	Priority      int
	Attach        bool
	KeepOriginal  bool
	TargetModel   string // Record type the router files messages under
	LastFetchDate NullTime
}

const accountColumns = `id, name, server_type, server, port, is_ssl,
       username, password, active, priority, attach, keep_original, target_model, last_fetch_date`

func scanAccount(row interface{ Scan(...interface{}) error }) (*Account, error) {
	acc := &Account{}
	err := row.Scan(
		&acc.ID, &acc.Name, &acc.ServerType, &acc.Server, &acc.Port, &acc.IsSSL,
		&acc.Username, &acc.Password, &acc.Active, &acc.Priority,
		&acc.Attach, &acc.KeepOriginal, &acc.TargetModel, &acc.LastFetchDate,
	)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// InsertAccount creates a mailbox account, replacing an existing one with the
// same name so configured accounts can be re-seeded at startup.
func (db *DB) InsertAccount(acc *Account) (int64, error) {
	if acc.TargetModel == "" {
		acc.TargetModel = "message"
	}
	_, err := db.Exec(`
		INSERT INTO accounts (
			name, server_type, server, port, is_ssl,
			username, password, active, priority, attach, keep_original, target_model
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			server_type = excluded.server_type,
			server = excluded.server,
			port = excluded.port,
			is_ssl = excluded.is_ssl,
			username = excluded.username,
			password = excluded.password,
			active = excluded.active,
			priority = excluded.priority,
			attach = excluded.attach,
			keep_original = excluded.keep_original,
			target_model = excluded.target_model,
			updated_at = CURRENT_TIMESTAMP
	`,
		acc.Name, acc.ServerType, acc.Server, acc.Port, acc.IsSSL,
		acc.Username, acc.Password, acc.Active, acc.Priority, acc.Attach, acc.KeepOriginal,
		acc.TargetModel,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert account: %w", err)
	}

	// LastInsertId reports the last genuine INSERT on the connection, which
	// is a different row when the upsert took the UPDATE path. Resolve the id
	// by name instead.
	existing, err := db.GetAccountByName(acc.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to get account id: %w", err)
	}
	if existing == nil {
		return 0, fmt.Errorf("account %q missing after insert", acc.Name)
	}
	return existing.ID, nil
}

// GetAccountByName retrieves an account by its unique name
func (db *DB) GetAccountByName(name string) (*Account, error) {
	acc, err := scanAccount(db.QueryRow(
		"SELECT "+accountColumns+" FROM accounts WHERE name = ?", name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

// ListActiveAccounts returns the accounts to poll, ordered by priority
// (lowest value first) then name for a stable order.
func (db *DB) ListActiveAccounts() ([]*Account, error) {
	rows, err := db.Query(`
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE active = 1
		ORDER BY priority ASC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// UpdateLastFetchDate records a completed fetch cycle for an account
func (db *DB) UpdateLastFetchDate(accountID int64, t time.Time) error {
	_, err := db.Exec(`
		UPDATE accounts
		SET last_fetch_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, t.UTC(), accountID)
	if err != nil {
		return fmt.Errorf("failed to update last fetch date: %w", err)
	}
	return nil
}
