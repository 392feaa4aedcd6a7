package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strefethen/freebox-hub-go/internal/ctl/client"
)

func newAuditCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the hub's audit log",
	}
	cmd.AddCommand(newAuditListCmd(c))
	return cmd
}

func newAuditListCmd(c *cli) *cobra.Command {
	var q client.AuditQuery

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List audit events, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			events, hasMore, err := hub.AuditEvents(ctx, q)
			if err != nil {
				return explain(err)
			}
			return c.render(cmd.OutOrStdout(), events, func(out io.Writer) error {
				w := newTabWriter(out)
				fmt.Fprintln(w, "TIME\tLEVEL\tTYPE\tMESSAGE\tCORRELATION")
				for _, e := range events {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp, e.Level, e.Type, e.Message, formatCorrelation(e.Correlation))
				}
				if err := w.Flush(); err != nil {
					return err
				}
				if hasMore {
					fmt.Fprintln(out, "(more events available, raise --limit or narrow the filters)")
				}
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&q.Type, "type", "", "event type, e.g. PLAYBACK_STARTED")
	flags.StringVar(&q.Level, "level", "", "DEBUG, INFO, WARN or ERROR")
	flags.StringVar(&q.ScheduleID, "schedule", "", "schedule id")
	flags.StringVar(&q.Receiver, "receiver", "", "receiver name")
	flags.StringVar(&q.From, "from", "", "RFC 3339 lower bound")
	flags.StringVar(&q.To, "to", "", "RFC 3339 upper bound")
	flags.IntVar(&q.Limit, "limit", 50, "maximum events to return")
	return cmd
}

func formatCorrelation(correlation map[string]any) string {
	if len(correlation) == 0 {
		return "-"
	}
	pairs := make([]string, 0, len(correlation))
	for key, value := range correlation {
		pairs = append(pairs, fmt.Sprintf("%s=%v", key, value))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
