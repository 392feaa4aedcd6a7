package cmd

import (
	"encoding/json"
	"io"
	"text/tabwriter"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// orDash renders optional values in tables.
func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
