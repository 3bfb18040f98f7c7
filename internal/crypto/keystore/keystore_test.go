package keystore

import (
	"crypto/ed25519"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

func testData(t *testing.T) *KeystoreData {
	t.Helper()
	pubKey, privKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return &KeystoreData{Ed25519PrivateKey: privKey, Ed25519PublicKey: pubKey, CreatedAt: 1}
}

func TestCreateAndUnlockKeystore(t *testing.T) {
	data := testData(t)

	ks, err := CreateKeystore("test-passphrase-123", data)
	require.NoError(t, err)
	assert.Equal(t, keystoreVersion, ks.Version)
	assert.Len(t, ks.Salt, saltSize)
	assert.Len(t, ks.Nonce, nonceSize)
	assert.NotEmpty(t, ks.Data)

	unlocked, err := UnlockKeystore(ks, "test-passphrase-123")
	require.NoError(t, err)
	assert.Equal(t, data, unlocked)

	_, err = UnlockKeystore(ks, "wrong-passphrase")
	assert.ErrorIs(t, err, ErrWrongPassphrase)
}

func TestSaveLoadAndChangePassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", KeystoreFile)

	ks, err := CreateKeystore("old", testData(t))
	require.NoError(t, err)
	require.NoError(t, SaveKeystore(ks, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadKeystore(path)
	require.NoError(t, err)

	changed, err := ChangePassphrase(loaded, "old", "new")
	require.NoError(t, err)
	_, err = UnlockKeystore(changed, "old")
	assert.Error(t, err)
	_, err = UnlockKeystore(changed, "new")
	assert.NoError(t, err)
}

func TestInvalidInputs(t *testing.T) {
	_, err := CreateKeystore("", testData(t))
	assert.Error(t, err)

	_, err = CreateKeystore("p", &KeystoreData{Ed25519PrivateKey: []byte{1}, Ed25519PublicKey: []byte{2}})
	assert.Error(t, err)

	ks, err := CreateKeystore("p", testData(t))
	require.NoError(t, err)
	ks.Version = 99
	_, err = UnlockKeystore(ks, "p")
	assert.Error(t, err)
}

func TestInitOrLoadKeystoreKeepsIdentity(t *testing.T) {
	dir := t.TempDir()
	cm := utils.NewStaticConfig(map[string]string{"keystore_passphrase": "relay-pass"})
	logger := utils.NewLogsManagerWithWriter(cm, io.Discard)

	first, err := InitOrLoadKeystore(dir, "", cm, logger)
	require.NoError(t, err)

	second, err := InitOrLoadKeystore(dir, "", cm, logger)
	require.NoError(t, err)
	assert.Equal(t, first.ClientID(), second.ClientID())

	passFile := filepath.Join(t.TempDir(), "pass")
	require.NoError(t, os.WriteFile(passFile, []byte("wrong\n"), 0600))
	_, err = InitOrLoadKeystore(dir, passFile, utils.NewStaticConfig(nil), logger)
	assert.ErrorIs(t, err, ErrWrongPassphrase)
}
