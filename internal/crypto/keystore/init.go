package keystore

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/crypto"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

// KeystoreFile is the file name of the relay client identity in the data dir
const KeystoreFile = "relay-keystore.dat"

// InitOrLoadKeystore unlocks the relay client identity in dataDir, creating it
// on first start.
func InitOrLoadKeystore(dataDir string, passphraseFile string, config *utils.ConfigManager, logger *utils.LogsManager) (*crypto.KeyPair, error) {
	keystorePath := filepath.Join(dataDir, KeystoreFile)

	if _, err := os.Stat(keystorePath); err == nil {
		return unlockExistingKeystore(keystorePath, passphraseFile, config, logger)
	}

	return createFreshKeystore(keystorePath, passphraseFile, config, logger)
}

func unlockExistingKeystore(keystorePath string, passphraseFile string, config *utils.ConfigManager, logger *utils.LogsManager) (*crypto.KeyPair, error) {
	ks, err := LoadKeystore(keystorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load keystore: %v", err)
	}

	passphrase, err := getPassphrase(passphraseFile, false, config)
	if err != nil {
		return nil, err
	}

	data, err := UnlockKeystore(ks, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock keystore: %w", err)
	}

	keyPair, err := LoadKeysFromKeystore(data)
	if err != nil {
		return nil, err
	}
	logger.Info(fmt.Sprintf("Relay client identity %s unlocked", keyPair.ClientID()), "keystore")
	return keyPair, nil
}

func createFreshKeystore(keystorePath string, passphraseFile string, config *utils.ConfigManager, logger *utils.LogsManager) (*crypto.KeyPair, error) {
	keyPair, err := crypto.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %v", err)
	}

	passphrase, err := getPassphrase(passphraseFile, true, config)
	if err != nil {
		return nil, err
	}

	ks, err := CreateKeystore(passphrase, &KeystoreData{
		Ed25519PrivateKey: keyPair.PrivateKey,
		Ed25519PublicKey:  keyPair.PublicKey,
		CreatedAt:         time.Now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create keystore: %v", err)
	}

	if err := SaveKeystore(ks, keystorePath); err != nil {
		return nil, fmt.Errorf("failed to save keystore: %v", err)
	}

	logger.Info(fmt.Sprintf("New relay client identity %s saved to %s", keyPair.ClientID(), keystorePath), "keystore")
	return keyPair, nil
}

// getPassphrase reads the keystore passphrase from config, file or terminal
func getPassphrase(passphraseFile string, isNewKeystore bool, config *utils.ConfigManager) (string, error) {
	// Priority 1: Check config for keystore_passphrase
	if config != nil {
		if configPassphrase, exists := config.GetConfig("keystore_passphrase"); exists && configPassphrase != "" {
			return configPassphrase, nil
		}
	}

	// Priority 2: Check if passphrase file is provided
	if passphraseFile != "" {
		passphrase, err := os.ReadFile(passphraseFile)
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase file: %v", err)
		}
		return strings.TrimSpace(string(passphrase)), nil
	}

	// Priority 3: Interactive passphrase prompt
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("keystore passphrase required: set keystore_passphrase or pass a passphrase file")
	}
	if isNewKeystore {
		return promptNewPassphrase()
	}
	return promptPassphrase("Enter keystore passphrase: ")
}

func promptPassphrase(prompt string) (string, error) {
	fmt.Print(prompt)
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %v", err)
	}

	if len(passphrase) == 0 {
		return "", fmt.Errorf("passphrase cannot be empty")
	}

	return string(passphrase), nil
}

// promptNewPassphrase prompts for a new passphrase with confirmation
func promptNewPassphrase() (string, error) {
	fmt.Println("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("🔐 RELAY IDENTITY PASSPHRASE SETUP")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("The relay's signaling identity will be encrypted with this passphrase.")
	fmt.Println("It is required every time the relay starts.")

	for {
		passphrase1, err := promptPassphrase("\nCreate passphrase: ")
		if err != nil {
			return "", err
		}

		passphrase2, err := promptPassphrase("Confirm passphrase: ")
		if err != nil {
			return "", err
		}

		if passphrase1 != passphrase2 {
			fmt.Println("❌ Passphrases do not match. Please try again.")
			continue
		}

		return passphrase1, nil
	}
}

// LoadKeysFromKeystore converts KeystoreData to a crypto.KeyPair
func LoadKeysFromKeystore(data *KeystoreData) (*crypto.KeyPair, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}

	return &crypto.KeyPair{
		PublicKey:  ed25519.PublicKey(data.Ed25519PublicKey),
		PrivateKey: ed25519.PrivateKey(data.Ed25519PrivateKey),
	}, nil
}
