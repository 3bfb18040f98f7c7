package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

var outputFormat string

// printOutput writes v as json or yaml, or calls table for the default format
func printOutput(v any, table func(w io.Writer)) error {
	switch outputFormat {
	case "", "table":
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q, use table, json or yaml", outputFormat)
	}
}

func formatExpiry(expiry int64) string {
	if expiry <= 0 {
		return "-"
	}
	t := time.Unix(expiry, 0)
	if !time.Now().Before(t) {
		return t.Format(time.RFC3339) + " (expired)"
	}
	return t.Format(time.RFC3339)
}
