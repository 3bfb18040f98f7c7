package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/crypto/keystore"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the relay client identity",
	Long: `Manage the Ed25519 identity the relay authenticates to the signaling
relay with. The key is kept in an Argon2id encrypted keystore in the data
directory and created on first start.`,
}

var keyInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display the relay client identity",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		keyPair, err := keystore.InitOrLoadKeystore(utils.GetAppPaths("").DataDir, passphraseFile, config, logger)
		if err != nil {
			fail(fmt.Sprintf("Failed to unlock keystore: %v", err))
		}

		path := filepath.Join(utils.GetAppPaths("").DataDir, keystore.KeystoreFile)
		fmt.Println("Relay Client Identity")
		fmt.Println(banner)
		fmt.Printf("Client ID:   %s\n", keyPair.ClientID())
		fmt.Printf("Public Key:  %s\n", hex.EncodeToString(keyPair.PublicKey))
		if info, err := os.Stat(path); err == nil {
			fmt.Printf("Keystore:    %s (%d bytes)\n", path, info.Size())
		}
		fmt.Println()
	},
}

var keyPassphraseCmd = &cobra.Command{
	Use:   "change-passphrase",
	Short: "Re-encrypt the keystore with a new passphrase",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		path := filepath.Join(utils.GetAppPaths("").DataDir, keystore.KeystoreFile)
		ks, err := keystore.LoadKeystore(path)
		if err != nil {
			fail(fmt.Sprintf("Failed to load keystore: %v", err))
		}

		oldPassphrase, err := promptPassphrase("Current keystore passphrase: ")
		if err != nil {
			fail(err.Error())
		}
		newPassphrase, err := promptPassphrase("New keystore passphrase: ")
		if err != nil {
			fail(err.Error())
		}
		again, err := promptPassphrase("Confirm new passphrase: ")
		if err != nil {
			fail(err.Error())
		}
		if newPassphrase != again {
			fail("Passphrases do not match")
		}

		updated, err := keystore.ChangePassphrase(ks, oldPassphrase, newPassphrase)
		if err != nil {
			fail(fmt.Sprintf("Failed to change passphrase: %v", err))
		}
		if err := keystore.SaveKeystore(updated, path); err != nil {
			fail(fmt.Sprintf("Failed to save keystore: %v", err))
		}

		logger.Info("Keystore passphrase changed", "cli")
		fmt.Println("✓ Keystore passphrase changed")
	},
}

func init() {
	rootCmd.AddCommand(keyCmd)

	keyCmd.AddCommand(keyInfoCmd)
	keyCmd.AddCommand(keyPassphraseCmd)
}
