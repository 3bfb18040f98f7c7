package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

var stopCmd = &cobra.Command{
	Use:     "stop",
	Aliases: []string{"kill"},
	Short:   "Stop the running signing relay",
	Long: `Stop the running signing relay with a graceful termination signal.

The relay cancels open confirmations, answers every queued request and
closes the signaling channel before it exits.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		pidManager, err := utils.NewPIDManager(config)
		if err != nil {
			fail(fmt.Sprintf("Failed to create PID manager: %v", err))
		}

		pid, err := pidManager.ReadPID()
		if err != nil {
			fail(fmt.Sprintf("No running relay found: %v", err))
		}

		if !pidManager.IsProcessRunning(pid) {
			logger.Warn(fmt.Sprintf("Process with PID %d is not running", pid), "cli")
			fmt.Printf("Relay with PID %d is not running\n", pid)
			if err := pidManager.RemovePIDFile(); err != nil {
				fmt.Printf("Warning: Failed to remove stale PID file: %v\n", err)
			} else {
				fmt.Println("Removed stale PID file")
			}
			return
		}

		fmt.Printf("Stopping signing relay (PID: %d)...\n", pid)
		if err := pidManager.StopProcess(pid); err != nil {
			fail(fmt.Sprintf("Failed to stop relay: %v", err))
		}

		if err := pidManager.RemovePIDFile(); err != nil {
			fmt.Printf("Warning: Failed to remove PID file: %v\n", err)
		}

		logger.Info(fmt.Sprintf("Stopped relay with PID %d", pid), "cli")
		fmt.Println("Signing relay stopped")
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
