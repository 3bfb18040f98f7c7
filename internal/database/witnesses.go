package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

// AuthWitness is a signed digest issued by a local account
type AuthWitness struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	Digest    string    `json:"digest"`
	Signature string    `json:"signature"`
	CreatedAt time.Time `json:"created_at"`
}

// WitnessesDB stores issued authorization witnesses
type WitnessesDB struct {
	db     *sql.DB
	logger *utils.LogsManager
}

// NewWitnessesDB creates the auth_witnesses table if needed
func NewWitnessesDB(db *sql.DB, logger *utils.LogsManager) (*WitnessesDB, error) {
	query := `
	CREATE TABLE IF NOT EXISTS auth_witnesses (
		id TEXT PRIMARY KEY,
		account TEXT NOT NULL,
		digest TEXT NOT NULL,
		signature TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_auth_witnesses_account ON auth_witnesses(account);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to create auth_witnesses table: %v", err)
	}

	return &WitnessesDB{db: db, logger: logger}, nil
}

// SaveWitness records w. Saving the same witness twice is a no-op.
func (wdb *WitnessesDB) SaveWitness(w *AuthWitness) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}

	_, err := wdb.db.Exec(`
		INSERT INTO auth_witnesses (id, account, digest, signature, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		w.ID, w.Account, w.Digest, w.Signature, w.CreatedAt.Unix())
	if err != nil {
		wdb.logger.Error(fmt.Sprintf("Failed to save witness %s: %v", w.ID, err), "database")
		return err
	}
	return nil
}

// GetWitness returns the witness with id, or nil
func (wdb *WitnessesDB) GetWitness(id string) (*AuthWitness, error) {
	return QueryRowSingle(wdb.db,
		"SELECT id, account, digest, signature, created_at FROM auth_witnesses WHERE id = ?",
		func(row *sql.Row) (*AuthWitness, error) {
			return scanWitness(row.Scan)
		},
		wdb.logger, "database", id)
}

// ListWitnesses returns the witnesses issued by account, newest first
func (wdb *WitnessesDB) ListWitnesses(account string) ([]*AuthWitness, error) {
	return QueryRows(wdb.db,
		"SELECT id, account, digest, signature, created_at FROM auth_witnesses WHERE account = ? ORDER BY created_at DESC, id",
		func(rows *sql.Rows) (*AuthWitness, error) {
			return scanWitness(rows.Scan)
		},
		wdb.logger, "database", account)
}

func scanWitness(scan func(dest ...any) error) (*AuthWitness, error) {
	var w AuthWitness
	var createdAt int64
	if err := scan(&w.ID, &w.Account, &w.Digest, &w.Signature, &createdAt); err != nil {
		return nil, err
	}
	w.CreatedAt = time.Unix(createdAt, 0)
	return &w, nil
}
