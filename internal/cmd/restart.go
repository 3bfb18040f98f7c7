package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the signing relay in the background",
	Long: `Stop the running relay and start a detached one with the same config.

A detached relay has no terminal: wallet passphrases must come from
wallet_passphrase or the OS keyring, the keystore passphrase from
keystore_passphrase or --passphrase-file, and every confirmation is
cancelled.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		pidManager, err := utils.NewPIDManager(config)
		if err != nil {
			fail(fmt.Sprintf("Failed to create PID manager: %v", err))
		}

		pid, err := pidManager.ReadPID()
		if err == nil && pidManager.IsProcessRunning(pid) {
			fmt.Printf("Stopping relay with PID %d...\n", pid)
			if err := pidManager.StopProcess(pid); err != nil {
				fail(fmt.Sprintf("Failed to stop relay: %v", err))
			}
			logger.Info(fmt.Sprintf("Stopped relay with PID %d", pid), "cli")

			// Wait a moment for cleanup
			time.Sleep(2 * time.Second)
		} else {
			fmt.Println("No running relay found, starting fresh...")
		}
		if err := pidManager.RemovePIDFile(); err != nil {
			fmt.Printf("Warning: Failed to remove PID file: %v\n", err)
		}

		exePath, err := os.Executable()
		if err != nil {
			fail(fmt.Sprintf("Failed to get executable path: %v", err))
		}

		startArgs := []string{"start"}
		if configPath != "" {
			startArgs = append(startArgs, "--config", configPath)
		}
		if passphraseFile != "" {
			startArgs = append(startArgs, "--passphrase-file", passphraseFile)
		}

		child := exec.Command(exePath, startArgs...)
		if err := child.Start(); err != nil {
			fail(fmt.Sprintf("Failed to start relay: %v", err))
		}
		if err := child.Process.Release(); err != nil {
			logger.Warn(fmt.Sprintf("Failed to detach relay process: %v", err), "cli")
		}

		logger.Info("Relay restarted in the background", "cli")
		fmt.Println("Signing relay restarted (the new PID is written by the start process)")
	},
}

func init() {
	rootCmd.AddCommand(restartCmd)
}
