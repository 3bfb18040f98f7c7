package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/wallet"
)

var (
	walletNetwork    string
	walletPrivateKey string
	walletID         string
	forceWallet      bool
)

const banner = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage the accounts served by the relay",
	Long: `Manage the local accounts the relay signs for.

Wallet keys are encrypted with a passphrase (scrypt + AES-256-GCM) and stored
in the data directory. The relay unlocks them with wallet_passphrase, the OS
keyring (see 'wallet remember') or an interactive prompt.`,
}

func newWalletManager() *wallet.Manager {
	manager, err := wallet.NewManager(config, logger)
	if err != nil {
		fail(fmt.Sprintf("Failed to initialize wallet manager: %v", err))
	}
	return manager
}

// promptPassphrase reads a passphrase without echo
func promptPassphrase(prompt string) (string, error) {
	fmt.Print(prompt)
	passphraseBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %v", err)
	}
	return string(passphraseBytes), nil
}

func promptNewPassphrase() string {
	passphrase, err := promptPassphrase("Enter passphrase to encrypt wallet: ")
	if err != nil {
		fail(err.Error())
	}
	again, err := promptPassphrase("Confirm passphrase: ")
	if err != nil {
		fail(err.Error())
	}
	if passphrase != again {
		fail("Passphrases do not match")
	}
	if passphrase == "" {
		fail("Passphrase must not be empty")
	}
	return passphrase
}

// confirmed asks a yes/no question unless --force is set
func confirmed(question string) bool {
	if forceWallet {
		return true
	}
	fmt.Print(question + " (yes/no): ")
	var response string
	fmt.Scanln(&response)
	switch strings.ToLower(response) {
	case "yes", "y":
		return true
	}
	return false
}

func printWallet(w *wallet.StoredWallet) {
	fmt.Printf("Wallet ID:  %s\n", w.ID)
	fmt.Printf("Network:    %s (%s)\n", w.Network, networkName(w.Network))
	fmt.Printf("Address:    %s\n", w.Address)
}

func networkName(network string) string {
	switch network {
	case "eip155:84532":
		return "Base Sepolia (Testnet)"
	case "eip155:8453":
		return "Base (Mainnet)"
	case "eip155:1":
		return "Ethereum (Mainnet)"
	case "eip155:11155111":
		return "Sepolia (Testnet)"
	default:
		if strings.HasPrefix(network, "eip155:") {
			return "EVM Chain (ID: " + strings.TrimPrefix(network, "eip155:") + ")"
		}
		return "Unknown Network"
	}
}

func defaultNetwork() string {
	if walletNetwork != "" {
		return walletNetwork
	}
	return config.GetConfigWithDefault("network", "eip155:84532")
}

var walletCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new account",
	Long: `Create a new account on an EVM network. The network defaults to the
network the relay serves.

Example:
  signing-relay wallet create --network eip155:84532`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		manager := newWalletManager()
		network := defaultNetwork()

		fmt.Println("Creating new wallet...")
		fmt.Printf("Network: %s\n", network)
		fmt.Println()

		created, err := manager.CreateWallet(network, promptNewPassphrase())
		if err != nil {
			fail(fmt.Sprintf("Failed to create wallet: %v", err))
		}

		fmt.Println()
		fmt.Println("✓ Wallet created successfully")
		fmt.Println(banner)
		printWallet(created)
		fmt.Println()
		fmt.Println("To serve this account by default set in your config:")
		fmt.Printf("  default_wallet_id = %s\n", created.ID)
		fmt.Println()
		fmt.Println("Remember your passphrase - it cannot be recovered if lost!")
	},
}

var walletImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an account from a private key",
	Long: `Import an existing account using a hexadecimal private key (with or
without 0x prefix).

SECURITY WARNING: The private key grants full control over the account.
Only import keys on a trusted system.

Example:
  signing-relay wallet import --private-key 0x1234... --network eip155:84532`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if walletPrivateKey == "" {
			fail("--private-key is required")
		}
		manager := newWalletManager()

		fmt.Println("⚠️  SECURITY WARNING ⚠️")
		fmt.Println(banner)
		fmt.Println("You are about to import an account using its private key.")
		fmt.Println("Make sure you are on a TRUSTED system.")
		fmt.Println(banner)
		fmt.Println()

		if !confirmed("Do you want to continue?") {
			fmt.Println("Import cancelled.")
			return
		}

		imported, err := manager.ImportWallet(walletPrivateKey, defaultNetwork(), promptNewPassphrase())
		if err != nil {
			fail(fmt.Sprintf("Failed to import wallet: %v", err))
		}

		fmt.Println()
		fmt.Println("✓ Wallet imported successfully")
		fmt.Println(banner)
		printWallet(imported)
		fmt.Println()
	},
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		wallets := newWalletManager().ListWallets()
		defaultWalletID := config.GetConfigWithDefault("default_wallet_id", "")

		if wallets == nil {
			wallets = []*wallet.StoredWallet{}
		}
		err := printOutput(wallets, func(w io.Writer) {
			if len(wallets) == 0 {
				fmt.Fprintln(w, "No wallets found. Create one with 'signing-relay wallet create'.")
				return
			}
			fmt.Fprintln(w, "ID\tNETWORK\tADDRESS\tDEFAULT")
			for _, sw := range wallets {
				marker := ""
				if sw.ID == defaultWalletID {
					marker = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", sw.ID, sw.Network, sw.Address, marker)
			}
		})
		if err != nil {
			fail(err.Error())
		}
	},
}

var walletInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display information about an account",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if walletID == "" {
			fail("--wallet-id is required")
		}
		info, err := newWalletManager().GetWalletInfo(walletID)
		if err != nil {
			fail(fmt.Sprintf("Failed to get wallet: %v", err))
		}

		fmt.Println("Wallet Information")
		fmt.Println(banner)
		printWallet(info)
		if info.ID == config.GetConfigWithDefault("default_wallet_id", "") {
			fmt.Println("Default:    yes")
		}
		if info.Network != config.GetConfigWithDefault("network", "eip155:84532") {
			fmt.Println("Note:       not on the network the relay serves")
		}
		fmt.Println()
	},
}

var walletDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete an account",
	Long: `Delete an account from local storage.

SECURITY WARNING: This action is irreversible. Back up the private key first.

Example:
  signing-relay wallet delete --wallet-id <id>`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if walletID == "" {
			fail("--wallet-id is required")
		}
		manager := newWalletManager()

		fmt.Println("⚠️  WARNING ⚠️")
		fmt.Println(banner)
		fmt.Println("You are about to DELETE a wallet. This action is IRREVERSIBLE.")
		fmt.Printf("Wallet ID: %s\n", walletID)
		fmt.Println(banner)
		fmt.Println()

		if !confirmed("Do you want to continue?") {
			fmt.Println("Delete cancelled.")
			return
		}

		passphrase, err := promptPassphrase("Enter wallet passphrase to confirm: ")
		if err != nil {
			fail(err.Error())
		}
		if err := manager.DeleteWallet(walletID, passphrase); err != nil {
			fail(fmt.Sprintf("Failed to delete wallet: %v", err))
		}
		if err := wallet.NewPassphraseSource(config, logger).Forget(walletID); err != nil {
			logger.Warn(err.Error(), "cli")
		}

		fmt.Println("✓ Wallet deleted successfully")
	},
}

var walletRememberCmd = &cobra.Command{
	Use:   "remember",
	Short: "Store an account passphrase in the OS keyring",
	Long: `Verify the passphrase of an account and store it in the OS keyring so the
relay can unlock the account without a prompt.

Example:
  signing-relay wallet remember --wallet-id <id>`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if walletID == "" {
			fail("--wallet-id is required")
		}
		manager := newWalletManager()

		passphrase, err := promptPassphrase("Enter wallet passphrase: ")
		if err != nil {
			fail(err.Error())
		}
		if _, err := manager.GetWallet(walletID, passphrase); err != nil {
			fail(fmt.Sprintf("Failed to unlock wallet: %v", err))
		}

		if err := wallet.NewPassphraseSource(config, logger).Remember(walletID, passphrase); err != nil {
			fail(err.Error())
		}
		logger.Info(fmt.Sprintf("Stored passphrase of wallet %s in keyring", walletID), "cli")
		fmt.Println("✓ Passphrase stored in the OS keyring")
	},
}

var walletForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Remove an account passphrase from the OS keyring",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if walletID == "" {
			fail("--wallet-id is required")
		}
		if err := wallet.NewPassphraseSource(config, logger).Forget(walletID); err != nil {
			fail(err.Error())
		}
		fmt.Println("✓ Passphrase removed from the OS keyring")
	},
}

func init() {
	rootCmd.AddCommand(walletCmd)

	walletCmd.AddCommand(walletCreateCmd)
	walletCmd.AddCommand(walletImportCmd)
	walletCmd.AddCommand(walletListCmd)
	walletCmd.AddCommand(walletInfoCmd)
	walletCmd.AddCommand(walletDeleteCmd)
	walletCmd.AddCommand(walletRememberCmd)
	walletCmd.AddCommand(walletForgetCmd)

	walletCreateCmd.Flags().StringVarP(&walletNetwork, "network", "n", "", "network in CAIP-2 form (default: the relay network)")

	walletImportCmd.Flags().StringVarP(&walletPrivateKey, "private-key", "k", "", "private key in hexadecimal format (required)")
	walletImportCmd.Flags().StringVarP(&walletNetwork, "network", "n", "", "network in CAIP-2 form (default: the relay network)")
	walletImportCmd.Flags().BoolVar(&forceWallet, "force", false, "skip confirmation prompt (use with caution)")

	walletListCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")

	for _, c := range []*cobra.Command{walletInfoCmd, walletDeleteCmd, walletRememberCmd, walletForgetCmd} {
		c.Flags().StringVarP(&walletID, "wallet-id", "w", "", "wallet ID (required)")
	}
	walletDeleteCmd.Flags().BoolVar(&forceWallet, "force", false, "skip confirmation prompt (use with caution)")
}
