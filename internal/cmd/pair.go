package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/signaling"
)

var pairCmd = &cobra.Command{
	Use:   "pair <uri>",
	Short: "Start the relay and pair with a remote application",
	Long: `Start the signing relay in the foreground and pair with the remote
application that issued the pairing URI.

Example:
  signing-relay pair "wc:7f6e...@2?relay-protocol=irn&symKey=587d..."`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		uri, err := signaling.ParsePairingURI(args[0])
		if err != nil {
			fail(err.Error())
		}
		if uri.Expired(time.Now()) {
			fail(fmt.Sprintf("pairing URI for topic %s has expired", uri.Topic))
		}

		runRelay(args[0])
	},
}

func init() {
	rootCmd.AddCommand(pairCmd)
}
