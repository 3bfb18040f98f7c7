package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration the relay runs with: the config file merged with
.env and SIGNING_RELAY_* environment overrides. Passphrases are masked.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		configs := config.GetAllConfigs()
		for key := range configs {
			if strings.Contains(key, "passphrase") {
				configs[key] = "********"
			}
		}

		keys := make([]string, 0, len(configs))
		for key := range configs {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		err := printOutput(configs, func(w io.Writer) {
			fmt.Fprintln(w, "KEY\tVALUE")
			for _, key := range keys {
				fmt.Fprintf(w, "%s\t%s\n", key, configs[key])
			}
		})
		if err != nil {
			fail(err.Error())
		}
	},
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
}
