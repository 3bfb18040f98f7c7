package database

import (
	"database/sql"
	"fmt"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/session"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

// SessionsDB keeps the session table in SQLite. It satisfies session.Backend.
type SessionsDB struct {
	db     *sql.DB
	logger *utils.LogsManager
}

// NewSessionsDB creates the sessions table if needed
func NewSessionsDB(db *sql.DB, logger *utils.LogsManager) (*SessionsDB, error) {
	sdb := &SessionsDB{db: db, logger: logger}

	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		account TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		expiry INTEGER NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_topic ON sessions(topic);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to create sessions table: %v", err)
	}

	return sdb, nil
}

// Load returns every stored session, ordered by account
func (sdb *SessionsDB) Load() ([]session.Record, error) {
	rows, err := QueryRows(sdb.db,
		"SELECT account, topic, expiry FROM sessions ORDER BY account",
		func(rows *sql.Rows) (*session.Record, error) {
			var r session.Record
			err := rows.Scan(&r.Account, &r.Topic, &r.Expiry)
			return &r, err
		},
		sdb.logger, "database")
	if err != nil {
		return nil, err
	}

	records := make([]session.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, *r)
	}
	return records, nil
}

// Save replaces the whole table in one transaction
func (sdb *SessionsDB) Save(records []session.Record) error {
	tx, err := sdb.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin sessions transaction: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM sessions"); err != nil {
		return fmt.Errorf("failed to clear sessions: %v", err)
	}

	stmt, err := tx.Prepare("INSERT INTO sessions (account, topic, expiry) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare session insert: %v", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.Account, r.Topic, r.Expiry); err != nil {
			return fmt.Errorf("failed to insert session for %s: %v", r.Account, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sessions: %v", err)
	}
	return nil
}
