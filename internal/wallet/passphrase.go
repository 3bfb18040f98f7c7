package wallet

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

// KeyringService names the OS keyring entries holding wallet passphrases
const KeyringService = "signing-relay"

// PassphraseSource finds the unlock passphrase of a wallet: the
// wallet_passphrase config key, then the OS keyring, then an interactive
// prompt when stdin is a terminal.
type PassphraseSource struct {
	config *utils.ConfigManager
	logger *utils.LogsManager

	// Prompt overrides the terminal prompt. A nil Prompt with a
	// non-terminal stdin leaves the wallet locked.
	Prompt func(walletID string) (string, error)
}

func NewPassphraseSource(config *utils.ConfigManager, logger *utils.LogsManager) *PassphraseSource {
	return &PassphraseSource{config: config, logger: logger}
}

// Passphrase returns the passphrase for walletID. Without interactive only
// the config and the keyring are consulted.
func (ps *PassphraseSource) Passphrase(walletID string, interactive bool) (string, error) {
	if passphrase, exists := ps.config.GetConfig("wallet_passphrase"); exists && passphrase != "" {
		return passphrase, nil
	}

	passphrase, err := keyring.Get(KeyringService, walletID)
	if err == nil && passphrase != "" {
		return passphrase, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		ps.logger.Debug(fmt.Sprintf("Keyring lookup for wallet %s failed: %v", walletID, err), "wallet")
	}

	if interactive {
		if ps.Prompt != nil {
			return ps.Prompt(walletID)
		}
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return promptPassphrase(walletID)
		}
	}

	return "", fmt.Errorf("%w: no passphrase for wallet %s", ErrWalletLocked, walletID)
}

// Remember stores the passphrase of walletID in the OS keyring
func (ps *PassphraseSource) Remember(walletID, passphrase string) error {
	if err := keyring.Set(KeyringService, walletID, passphrase); err != nil {
		return fmt.Errorf("failed to store passphrase in keyring: %v", err)
	}
	return nil
}

// Forget removes a remembered passphrase. Forgetting an unknown wallet is not
// an error.
func (ps *PassphraseSource) Forget(walletID string) error {
	if err := keyring.Delete(KeyringService, walletID); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to remove passphrase from keyring: %v", err)
	}
	return nil
}

func promptPassphrase(walletID string) (string, error) {
	fmt.Fprintf(os.Stderr, "Enter passphrase for wallet %s: ", walletID)
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %v", err)
	}
	return string(passphrase), nil
}
