package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/signaling"
)

var pairingsCmd = &cobra.Command{
	Use:   "pairings",
	Short: "List pairings known to the signaling relay",
	Long: `Connect with the relay client identity and list the pairings the
signaling relay holds for it.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		adapter, err := openAdapter()
		if err != nil {
			fail(err.Error())
		}
		defer adapter.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.GetConfigDuration("signaling_request_timeout", 30*time.Second))
		defer cancel()

		pairings, err := adapter.ListPairings(ctx)
		if err != nil {
			fail(fmt.Sprintf("Failed to list pairings: %v", err))
		}
		if pairings == nil {
			pairings = []signaling.PairingInfo{}
		}

		err = printOutput(pairings, func(w io.Writer) {
			if len(pairings) == 0 {
				fmt.Fprintln(w, "No pairings.")
				return
			}
			fmt.Fprintln(w, "TOPIC\tPEER\tACTIVE\tEXPIRES")
			for _, p := range pairings {
				peer := "-"
				if p.Peer != nil && p.Peer.Name != "" {
					peer = p.Peer.Name
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", p.Topic, peer, p.Active, formatExpiry(p.Expiry))
			}
		})
		if err != nil {
			fail(err.Error())
		}
	},
}

func init() {
	rootCmd.AddCommand(pairingsCmd)

	pairingsCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
}
