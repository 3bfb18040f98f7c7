package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/session"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/signaling"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage authorized sessions",
	Long: `Inspect and revoke the sessions that authorize remote applications to
use local accounts.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted sessions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openDatabase()
		if err != nil {
			fail(err.Error())
		}
		defer db.Close()

		store, err := openSessionStore(db)
		if err != nil {
			fail(err.Error())
		}

		records := store.ListAll()
		if records == nil {
			records = []session.Record{}
		}
		err = printOutput(records, func(w io.Writer) {
			if len(records) == 0 {
				fmt.Fprintln(w, "No sessions.")
				return
			}
			fmt.Fprintln(w, "ACCOUNT\tTOPIC\tEXPIRES")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Account, r.Topic, formatExpiry(r.Expiry))
			}
		})
		if err != nil {
			fail(err.Error())
		}
	},
}

var sessionsDisconnectCmd = &cobra.Command{
	Use:   "disconnect <topic>",
	Short: "Revoke a session and close its pairing",
	Long: `Delete every session bound to the topic and disconnect the topic on the
signaling relay. The relay must not be running.

Example:
  signing-relay sessions disconnect <topic>`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		topic := args[0]
		ensureRelayStopped()

		db, err := openDatabase()
		if err != nil {
			fail(err.Error())
		}
		defer db.Close()

		store, err := openSessionStore(db)
		if err != nil {
			fail(err.Error())
		}

		n, err := store.DeleteByTopic(topic)
		if err != nil {
			fail(fmt.Sprintf("Failed to delete session: %v", err))
		}
		fmt.Printf("Removed %d session record(s) for %s\n", n, topic)

		adapter, err := openAdapter()
		if err != nil {
			fail(err.Error())
		}
		defer adapter.Close()

		if err := disconnectTopic(adapter, topic); err != nil {
			fail(fmt.Sprintf("Failed to disconnect %s: %v", topic, err))
		}
		logger.Info(fmt.Sprintf("Disconnected %s", topic), "cli")
		fmt.Println("✓ Disconnected")
	},
}

func disconnectTopic(adapter signaling.Adapter, topic string) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.GetConfigDuration("signaling_request_timeout", 30*time.Second))
	defer cancel()
	return adapter.DisconnectPairing(ctx, topic)
}

// ensureRelayStopped exits when a relay process owns the session store
func ensureRelayStopped() {
	pidManager, err := utils.NewPIDManager(config)
	if err != nil {
		return
	}
	if pid, err := pidManager.ReadPID(); err == nil && pidManager.IsProcessRunning(pid) {
		fail(fmt.Sprintf("relay is running with PID %d, stop it first with 'signing-relay stop'", pid))
	}
}

func init() {
	rootCmd.AddCommand(sessionsCmd)

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDisconnectCmd)

	sessionsListCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
}
