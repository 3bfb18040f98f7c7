package database

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/session"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

func setupTestManager(t *testing.T, dbFile string) *SQLiteManager {
	t.Helper()
	t.Setenv(utils.HomeEnv, t.TempDir())

	cm := utils.NewStaticConfig(map[string]string{"database_file": dbFile})
	logger := utils.NewLogsManagerWithWriter(cm, io.Discard)

	sqlm, err := NewSQLiteManager(cm, logger)
	require.NoError(t, err)
	return sqlm
}

func TestSessionsDBImplementsBackend(t *testing.T) {
	sqlm := setupTestManager(t, MemoryDatabase)
	defer sqlm.Close()

	var backend session.Backend = sqlm.Sessions

	records, err := backend.Load()
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, backend.Save([]session.Record{
		{Account: "0xB", Topic: "t2", Expiry: 1<<53 + 1},
		{Account: "0xA", Topic: "t1", Expiry: 1767225600},
	}))

	records, err = backend.Load()
	require.NoError(t, err)
	assert.Equal(t, []session.Record{
		{Account: "0xA", Topic: "t1", Expiry: 1767225600},
		{Account: "0xB", Topic: "t2", Expiry: 1<<53 + 1},
	}, records)

	require.NoError(t, backend.Save([]session.Record{{Account: "0xC", Topic: "t3", Expiry: 5}}))
	records, err = backend.Load()
	require.NoError(t, err)
	assert.Equal(t, []session.Record{{Account: "0xC", Topic: "t3", Expiry: 5}}, records)
}

func TestSessionStoreOverSQLiteSurvivesReopen(t *testing.T) {
	t.Setenv(utils.HomeEnv, t.TempDir())
	dbFile := filepath.Join(t.TempDir(), "relay.db")

	cm := utils.NewStaticConfig(map[string]string{"database_file": dbFile})
	logger := utils.NewLogsManagerWithWriter(cm, io.Discard)

	sqlm, err := NewSQLiteManager(cm, logger)
	require.NoError(t, err)
	store := session.NewStore(sqlm.Sessions, logger)
	require.NoError(t, store.Put("0xA", "topic-1", 1767225600))
	require.NoError(t, sqlm.Close())

	sqlm, err = NewSQLiteManager(cm, logger)
	require.NoError(t, err)
	defer sqlm.Close()

	reopened := session.NewStore(sqlm.Sessions, logger)
	rec, ok := reopened.Get("0xA")
	require.True(t, ok)
	assert.Equal(t, "topic-1", rec.Topic)
	assert.Equal(t, int64(1767225600), rec.Expiry)
}

func TestWitnessesDB(t *testing.T) {
	sqlm := setupTestManager(t, MemoryDatabase)
	defer sqlm.Close()

	w := &AuthWitness{ID: "w1", Account: "0xA", Digest: "0x01", Signature: "0xsig"}
	require.NoError(t, sqlm.Witnesses.SaveWitness(w))
	require.NoError(t, sqlm.Witnesses.SaveWitness(w))
	assert.False(t, w.CreatedAt.IsZero())

	got, err := sqlm.Witnesses.GetWitness("w1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "0xsig", got.Signature)

	missing, err := sqlm.Witnesses.GetWitness("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := sqlm.Witnesses.ListWitnesses("0xA")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNotesDB(t *testing.T) {
	sqlm := setupTestManager(t, MemoryDatabase)
	defer sqlm.Close()

	note := &ShieldedNote{
		Account:    "0xA",
		Owner:      "0xA",
		Token:      "0xT",
		Amount:     "100",
		SecretHash: "0xhash",
		TxHash:     "0xtx",
	}
	require.NoError(t, sqlm.Notes.AddNote(note))
	assert.NotZero(t, note.ID)
	assert.Equal(t, NoteStatusPending, note.Status)

	again := *note
	again.ID = 0
	require.NoError(t, sqlm.Notes.AddNote(&again))
	assert.Equal(t, note.ID, again.ID)

	require.NoError(t, sqlm.Notes.MarkRedeemed(note.ID, "0xredeem"))
	assert.Error(t, sqlm.Notes.MarkRedeemed(note.ID+100, "0xredeem"))

	notes, err := sqlm.Notes.ListNotes("0xA")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, NoteStatusRedeemed, notes[0].Status)
	assert.Equal(t, "0xredeem", notes[0].RedeemTxHash)

	stats := sqlm.GetStats()
	assert.Equal(t, int64(1), stats["shielded_notes"])
}
