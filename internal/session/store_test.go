package session

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

func testLogger() *utils.LogsManager {
	return utils.NewLogsManagerWithWriter(utils.NewStaticConfig(nil), io.Discard)
}

type failingBackend struct {
	records []Record
	failErr error
}

func (fb *failingBackend) Load() ([]Record, error) { return fb.records, nil }

func (fb *failingBackend) Save(records []Record) error {
	if fb.failErr != nil {
		return fb.failErr
	}
	fb.records = records
	return nil
}

func TestStorePutSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	store := NewStore(NewFileBackend(path), testLogger())
	require.NoError(t, store.Put("0xA", "topic-1", 1767225600))

	reopened := NewStore(NewFileBackend(path), testLogger())
	rec, ok := reopened.Get("0xA")
	require.True(t, ok)
	assert.Equal(t, Record{Account: "0xA", Topic: "topic-1", Expiry: 1767225600}, rec)
}

func TestStorePutLastApprovalWins(t *testing.T) {
	store := NewStore(&failingBackend{}, testLogger())

	require.NoError(t, store.Put("0xA", "topic-1", 100))
	require.NoError(t, store.Put("0xA", "topic-2", 200))

	rec, ok := store.Get("0xA")
	require.True(t, ok)
	assert.Equal(t, "topic-2", rec.Topic)
	assert.Equal(t, int64(200), rec.Expiry)
	assert.Equal(t, 1, store.Len())
}

func TestStorePutEvictsPreviousTopicOwner(t *testing.T) {
	store := NewStore(&failingBackend{}, testLogger())

	require.NoError(t, store.Put("0xA", "topic-1", 100))
	require.NoError(t, store.Put("0xB", "topic-1", 100))

	_, ok := store.Get("0xA")
	assert.False(t, ok)
	_, ok = store.Get("0xB")
	assert.True(t, ok)
}

func TestStorePutRejectsEmptyFields(t *testing.T) {
	store := NewStore(&failingBackend{}, testLogger())

	assert.ErrorIs(t, store.Put("", "topic", 1), ErrInvalidRecord)
	assert.ErrorIs(t, store.Put("0xA", "", 1), ErrInvalidRecord)
	assert.Equal(t, 0, store.Len())
}

func TestStoreDeleteByTopic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store := NewStore(NewFileBackend(path), testLogger())

	require.NoError(t, store.Put("0xA", "topic-1", 100))
	require.NoError(t, store.Put("0xB", "topic-2", 100))

	removed, err := store.DeleteByTopic("topic-1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = store.DeleteByTopic("unknown")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	reopened := NewStore(NewFileBackend(path), testLogger())
	assert.Equal(t, []Record{{Account: "0xB", Topic: "topic-2", Expiry: 100}}, reopened.ListAll())
}

func TestStoreDelete(t *testing.T) {
	store := NewStore(&failingBackend{}, testLogger())
	require.NoError(t, store.Put("0xA", "topic-1", 100))

	require.NoError(t, store.Delete("0xA"))
	require.NoError(t, store.Delete("0xA"))

	_, ok := store.Get("0xA")
	assert.False(t, ok)
}

func TestStoreFlushFailureLeavesTableUnchanged(t *testing.T) {
	backend := &failingBackend{}
	store := NewStore(backend, testLogger())
	require.NoError(t, store.Put("0xA", "topic-1", 100))

	backend.failErr = errors.New("disk full")

	require.Error(t, store.Put("0xB", "topic-2", 100))
	_, ok := store.Get("0xB")
	assert.False(t, ok)

	require.Error(t, store.Delete("0xA"))
	_, ok = store.Get("0xA")
	assert.True(t, ok)
}

func TestStoreStartsEmptyOnCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	store := NewStore(NewFileBackend(path), testLogger())
	assert.Equal(t, 0, store.Len())

	// The store stays writable and replaces the corrupt file.
	require.NoError(t, store.Put("0xA", "topic-1", 100))
	reopened := NewStore(NewFileBackend(path), testLogger())
	assert.Equal(t, 1, reopened.Len())
}

func TestStoreStartsEmptyOnMissingFile(t *testing.T) {
	store := NewStore(NewFileBackend(filepath.Join(t.TempDir(), "missing", "sessions.json")), testLogger())
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, store.ListAll())
}

func TestFileBackendKeepsExpiryPrecision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	backend := NewFileBackend(path)

	expiry := int64(1<<53 + 1)
	require.NoError(t, backend.Save([]Record{{Account: "0xA", Topic: "t", Expiry: expiry}}))

	records, err := backend.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, expiry, records[0].Expiry)
}

func TestFileBackendCorruptError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("[{"), 0600))

	_, err := NewFileBackend(path).Load()
	assert.ErrorIs(t, err, ErrCorruptStore)
}

func TestRecordExpired(t *testing.T) {
	now := time.Unix(1000, 0)

	assert.False(t, Record{Expiry: 1001}.Expired(now))
	assert.True(t, Record{Expiry: 1000}.Expired(now))
	assert.True(t, Record{Expiry: 999}.Expired(now))
}
