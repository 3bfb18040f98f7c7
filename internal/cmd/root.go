package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

var (
	configPath     string
	passphraseFile string
	logLevel       string
	config         *utils.ConfigManager
	logger         *utils.LogsManager
)

var rootCmd = &cobra.Command{
	Use:   "signing-relay",
	Short: "Session-authorized signing relay",
	Long: `A signing relay that pairs with remote applications over a signaling
channel and serves their wallet requests.

Every request is authorized against the session the remote application
opened for an account. Value-moving requests are confirmed by the operator
before anything is signed or submitted.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Initialize configuration
		config = utils.NewConfigManager(configPath)

		// Initialize logging
		logger = utils.NewLogsManager(config)
		if logLevel != "" {
			if err := logger.SetLogLevel(logLevel); err != nil {
				fail(err.Error())
			}
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		// Cleanup
		if logger != nil {
			logger.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// fail prints and logs msg, then exits
func fail(msg string) {
	fmt.Println("Error: " + msg)
	if logger != nil {
		logger.Error(msg, "cli")
		logger.Close()
	}
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&passphraseFile, "passphrase-file", "", "file holding the relay keystore passphrase")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log_level (trace, debug, info, warn, error)")
}
