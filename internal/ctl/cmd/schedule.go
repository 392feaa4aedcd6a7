package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/strefethen/freebox-hub-go/internal/ctl/client"
)

func newScheduleCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule",
		Aliases: []string{"schedules"},
		Short:   "Manage playback schedules",
	}
	cmd.AddCommand(newScheduleListCmd(c), newScheduleAddCmd(c), newScheduleRemoveCmd(c))
	return cmd
}

func newScheduleListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List schedules",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			schedules, err := hub.Schedules(ctx)
			if err != nil {
				return explain(err)
			}
			return c.render(cmd.OutOrStdout(), schedules, func(out io.Writer) error {
				w := newTabWriter(out)
				fmt.Fprintln(w, "ID\tNAME\tCRON\tACTION\tENABLED\tNEXT RUN\tLAST STATUS")
				for _, s := range schedules {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\t%s\n",
						s.ID, s.Name, s.Cron, s.Action, s.Enabled, orDash(s.NextRunAt), orDash(s.LastStatus))
				}
				return w.Flush()
			})
		},
	}
}

func newScheduleAddCmd(c *cli) *cobra.Command {
	var input client.CreateSchedule
	var mediaURL string
	var disabled bool

	cmd := &cobra.Command{
		Use:   "add NAME --cron EXPR --action start|stop",
		Short: "Add a schedule",
		Example: `  # Start the morning radio on weekdays at 7:00
  fbxctl schedule add morning --cron "0 7 * * 1-5" --action start --url http://radio.lan/live.mp3

  # Stop playback every night
  fbxctl schedule add night --cron "@midnight" --action stop`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input.Name = args[0]
			if mediaURL != "" {
				input.MediaURL = &mediaURL
			}
			if disabled {
				enabled := false
				input.Enabled = &enabled
			}

			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			schedule, err := hub.CreateSchedule(ctx, input)
			if err != nil {
				return explain(err)
			}
			return c.render(cmd.OutOrStdout(), schedule, func(out io.Writer) error {
				fmt.Fprintf(out, "Schedule %s created, next run %s\n", schedule.ID, orDash(schedule.NextRunAt))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&input.Cron, "cron", "", "five-field cron expression or descriptor such as @hourly")
	cmd.Flags().StringVar(&input.Action, "action", "start", "start or stop")
	cmd.Flags().StringVar(&mediaURL, "url", "", "media URL for start schedules")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "create the schedule disabled")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}

func newScheduleRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "remove ID",
		Aliases: []string{"rm"},
		Short:   "Remove a schedule",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			if err := hub.DeleteSchedule(ctx, args[0]); err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schedule %s removed\n", args[0])
			return nil
		},
	}
}
