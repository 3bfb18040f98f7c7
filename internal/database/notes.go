package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

// Note statuses
const (
	NoteStatusPending  = "pending"
	NoteStatusRedeemed = "redeemed"
)

// ShieldedNote is a note registered for redemption by a local account
type ShieldedNote struct {
	ID           int64     `json:"id"`
	Account      string    `json:"account"`
	Owner        string    `json:"owner"`
	Token        string    `json:"token"`
	Amount       string    `json:"amount"`
	SecretHash   string    `json:"secret_hash"`
	TxHash       string    `json:"tx_hash"`
	Status       string    `json:"status"`
	RedeemTxHash string    `json:"redeem_tx_hash,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NotesDB stores shielded notes
type NotesDB struct {
	db     *sql.DB
	logger *utils.LogsManager
}

// NewNotesDB creates the shielded_notes table if needed
func NewNotesDB(db *sql.DB, logger *utils.LogsManager) (*NotesDB, error) {
	query := `
	CREATE TABLE IF NOT EXISTS shielded_notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account TEXT NOT NULL,
		owner TEXT NOT NULL,
		token TEXT NOT NULL,
		amount TEXT NOT NULL,
		secret_hash TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'redeemed')),
		redeem_tx_hash TEXT,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		UNIQUE(tx_hash, secret_hash)
	);
	CREATE INDEX IF NOT EXISTS idx_shielded_notes_account ON shielded_notes(account);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to create shielded_notes table: %v", err)
	}

	return &NotesDB{db: db, logger: logger}, nil
}

// AddNote registers n as pending. A note already known by tx hash and secret
// hash keeps its row and n.ID is set to it.
func (ndb *NotesDB) AddNote(n *ShieldedNote) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.Status = NoteStatusPending

	_, err := ndb.db.Exec(`
		INSERT INTO shielded_notes (account, owner, token, amount, secret_hash, tx_hash, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tx_hash, secret_hash) DO NOTHING`,
		n.Account, n.Owner, n.Token, n.Amount, n.SecretHash, n.TxHash, n.Status, n.CreatedAt.Unix())
	if err != nil {
		ndb.logger.Error(fmt.Sprintf("Failed to add note %s: %v", n.TxHash, err), "database")
		return err
	}

	return ndb.db.QueryRow(
		"SELECT id, status FROM shielded_notes WHERE tx_hash = ? AND secret_hash = ?",
		n.TxHash, n.SecretHash).Scan(&n.ID, &n.Status)
}

// MarkRedeemed records the transaction that redeemed note id
func (ndb *NotesDB) MarkRedeemed(id int64, redeemTxHash string) error {
	_, err := ExecWithAffectedRowsCheck(ndb.db,
		"UPDATE shielded_notes SET status = ?, redeem_tx_hash = ? WHERE id = ?",
		ndb.logger, "database", NoteStatusRedeemed, redeemTxHash, id)
	if err == sql.ErrNoRows {
		return fmt.Errorf("note %d not found", id)
	}
	return err
}

// ListNotes returns the notes of account, oldest first
func (ndb *NotesDB) ListNotes(account string) ([]*ShieldedNote, error) {
	return QueryRows(ndb.db, `
		SELECT id, account, owner, token, amount, secret_hash, tx_hash, status, redeem_tx_hash, created_at
		FROM shielded_notes WHERE account = ? ORDER BY id`,
		func(rows *sql.Rows) (*ShieldedNote, error) {
			var n ShieldedNote
			var redeemTx sql.NullString
			var createdAt int64
			err := rows.Scan(&n.ID, &n.Account, &n.Owner, &n.Token, &n.Amount,
				&n.SecretHash, &n.TxHash, &n.Status, &redeemTx, &createdAt)
			if err != nil {
				return nil, err
			}
			n.RedeemTxHash = ScanNullableString(redeemTx)
			n.CreatedAt = time.Unix(createdAt, 0)
			return &n, nil
		},
		ndb.logger, "database", account)
}
