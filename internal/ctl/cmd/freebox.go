package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/strefethen/freebox-hub-go/internal/ctl/client"
)

// newFreeboxCmd drives the hub's Freebox client.
func newFreeboxCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "freebox",
		Aliases: []string{"fbx"},
		Short:   "Control the Freebox through the hub",
		Long: `The freebox commands walk the hub through discovery, app authorization and
session login, then cast media to the configured AirMedia receiver.`,
	}

	session := &cobra.Command{
		Use:   "session",
		Short: "Open or close the hub's Freebox session",
	}
	session.AddCommand(newSessionOpenCmd(c), newSessionCloseCmd(c))

	airmedia := &cobra.Command{
		Use:   "airmedia",
		Short: "Read or change the box's AirMedia setting",
	}
	airmedia.AddCommand(newAirMediaGetCmd(c), newAirMediaSetCmd(c))

	cmd.AddCommand(
		newDiscoverCmd(c),
		newStatusCmd(c),
		newAuthorizeCmd(c),
		session,
		newReceiversCmd(c),
		newReceiverCmd(c),
		newPlayCmd(c),
		newStopCmd(c),
		airmedia,
	)
	return cmd
}

func newDiscoverCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Probe the Freebox configured on the hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			box, err := hub.Discover(ctx)
			if err != nil {
				return explain(err)
			}
			return c.render(cmd.OutOrStdout(), box, func(out io.Writer) error {
				w := newTabWriter(out)
				fmt.Fprintf(w, "Name:\t%s\n", box.DeviceName)
				fmt.Fprintf(w, "Type:\t%s\n", box.DeviceType)
				fmt.Fprintf(w, "UID:\t%s\n", box.UID)
				fmt.Fprintf(w, "API:\t%s%s\n", box.APIBaseURL, box.APIVersion)
				if box.HTTPSAvailable {
					fmt.Fprintf(w, "HTTPS:\t%s:%d\n", box.APIDomain, box.HTTPSPort)
				}
				return w.Flush()
			})
		},
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the hub's Freebox client state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			state, err := hub.State(ctx)
			if err != nil {
				return explain(err)
			}
			return c.render(cmd.OutOrStdout(), state, func(out io.Writer) error {
				w := newTabWriter(out)
				fmt.Fprintf(w, "State:\t%s\n", state.State)
				if state.Descriptor != nil {
					fmt.Fprintf(w, "Freebox:\t%s (%s)\n", state.Descriptor.DeviceName, state.Descriptor.UID)
				}
				if state.TrackID != nil {
					fmt.Fprintf(w, "Track:\t%d\n", *state.TrackID)
				}
				fmt.Fprintf(w, "Receiver:\t%s\n", state.ReceiverName)
				return w.Flush()
			})
		},
	}
}

func newAuthorizeCmd(c *cli) *cobra.Command {
	var app client.AppInfo
	var wait bool
	var interval time.Duration
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Request an app token from the Freebox",
		Long: `Request an app token. The request must be confirmed on the box's front
panel. With --wait the command polls until the request is granted or denied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			authz, err := hub.Authorize(ctx, app)
			cancel()
			if err != nil {
				return explain(err)
			}

			out := cmd.OutOrStdout()
			if !wait {
				return c.render(out, authz, func(out io.Writer) error {
					fmt.Fprintf(out, "Authorization requested (track %d), confirm it on the Freebox\n", authz.TrackID)
					fmt.Fprintf(out, "Check progress with 'fbxctl freebox authorize status %d'\n", authz.TrackID)
					return nil
				})
			}

			if c.output != "json" {
				fmt.Fprintf(out, "Waiting for confirmation on the Freebox (track %d)...\n", authz.TrackID)
			}
			final, err := c.waitForAuthorization(cmd.Context(), hub, authz.TrackID, interval, timeout)
			if err != nil {
				return err
			}
			return c.render(out, final, func(out io.Writer) error {
				fmt.Fprintf(out, "Authorization %s\n", final.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&app.AppID, "app-id", "", "app identifier (default is the hub's)")
	cmd.Flags().StringVar(&app.AppName, "app-name", "", "app name shown on the box")
	cmd.Flags().StringVar(&app.AppVersion, "app-version", "", "app version shown on the box")
	cmd.Flags().StringVar(&app.DeviceName, "device-name", "", "device name shown on the box")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the request is granted or denied")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "polling interval with --wait")
	cmd.Flags().DurationVar(&timeout, "timeout", 90*time.Second, "give up waiting after this long")

	cmd.AddCommand(newAuthorizeStatusCmd(c))
	return cmd
}

func newAuthorizeStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status TRACK_ID",
		Short: "Show the status of an app token request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trackID, err := strconv.Atoi(args[0])
			if err != nil || trackID <= 0 {
				return fmt.Errorf("invalid track id %q", args[0])
			}
			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			authz, err := hub.PollAuthorization(ctx, trackID)
			if err != nil {
				return explain(err)
			}
			return c.render(cmd.OutOrStdout(), authz, func(out io.Writer) error {
				fmt.Fprintf(out, "Authorization %s\n", authz.Status)
				return nil
			})
		},
	}
}

// waitForAuthorization polls until the box resolves the request. A denied
// request is returned as an error.
func (c *cli) waitForAuthorization(ctx context.Context, hub *client.Client, trackID int, interval, timeout time.Duration) (*client.Authorization, error) {
	if interval <= 0 {
		return nil, errors.New("--interval must be positive")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		reqCtx, reqCancel := context.WithTimeout(ctx, c.timeout)
		authz, err := hub.PollAuthorization(reqCtx, trackID)
		reqCancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("authorization still pending after %s", timeout)
			}
			return nil, explain(err)
		}

		switch authz.Status {
		case client.AuthorizationGranted:
			return authz, nil
		case client.AuthorizationDenied:
			return nil, errors.New("authorization denied on the Freebox")
		}
		c.logger.Debug().Int("track_id", trackID).Str("status", authz.Status).Msg("authorization pending")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("authorization still pending after %s", timeout)
		case <-ticker.C:
		}
	}
}

func newSessionOpenCmd(c *cli) *cobra.Command {
	var challenge string

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Log the hub into the Freebox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			session, err := hub.OpenSession(ctx, challenge)
			if err != nil {
				return explain(err)
			}
			return c.render(cmd.OutOrStdout(), session, func(out io.Writer) error {
				fmt.Fprintf(out, "Session state: %s\n", session.State)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&challenge, "challenge", "", "login challenge to answer (default is to fetch a fresh one)")
	return cmd
}

func newSessionCloseCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Log the hub out of the Freebox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			session, err := hub.CloseSession(ctx)
			if err != nil {
				return explain(err)
			}
			return c.render(cmd.OutOrStdout(), session, func(out io.Writer) error {
				fmt.Fprintf(out, "Session state: %s\n", session.State)
				return nil
			})
		},
	}
}

func newReceiversCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "receivers",
		Short: "List AirMedia receivers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			receivers, err := hub.Receivers(ctx)
			if err != nil {
				return explain(err)
			}
			return c.render(cmd.OutOrStdout(), receivers, func(out io.Writer) error {
				w := newTabWriter(out)
				fmt.Fprintln(w, "NAME\tPASSWORD\tCAPABILITIES")
				for _, r := range receivers {
					fmt.Fprintf(w, "%s\t%v\t%s\n", r.Name, r.PasswordProtected, capabilityList(r.Capabilities))
				}
				return w.Flush()
			})
		},
	}
}

func capabilityList(caps map[string]bool) string {
	var names []string
	for name, ok := range caps {
		if ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func newReceiverCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "receiver NAME",
		Short: "Check whether a receiver can be used",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			availability, err := hub.Receiver(ctx, args[0])
			if err != nil {
				return explain(err)
			}
			return c.render(cmd.OutOrStdout(), availability, func(out io.Writer) error {
				fmt.Fprintf(out, "%s: %s\n", availability.Name, availability.Availability)
				return nil
			})
		},
	}
}

func newPlayCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "play URL",
		Short: "Cast a media URL to the configured receiver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			playback, err := hub.Play(ctx, args[0])
			if err != nil {
				return explain(err)
			}
			return c.render(cmd.OutOrStdout(), playback, func(out io.Writer) error {
				fmt.Fprintf(out, "Playing %s on %s\n", playback.URL, playback.Receiver)
				return nil
			})
		},
	}
}

func newStopCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop playback on the configured receiver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			playback, err := hub.Stop(ctx)
			if err != nil {
				return explain(err)
			}
			return c.render(cmd.OutOrStdout(), playback, func(out io.Writer) error {
				fmt.Fprintf(out, "Stopped playback on %s\n", playback.Receiver)
				return nil
			})
		},
	}
}

func newAirMediaGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the AirMedia setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			cfg, err := hub.AirMediaConfig(ctx)
			if err != nil {
				return explain(err)
			}
			return printAirMedia(c, cmd.OutOrStdout(), cfg)
		},
	}
}

func newAirMediaSetCmd(c *cli) *cobra.Command {
	var enabled bool
	var password string

	cmd := &cobra.Command{
		Use:   "set --enabled=true|false",
		Short: "Enable or disable AirMedia on the box",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("enabled") {
				return errors.New("--enabled is required")
			}
			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			cfg, err := hub.SetAirMediaConfig(ctx, enabled, password)
			if err != nil {
				return explain(err)
			}
			return printAirMedia(c, cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().BoolVar(&enabled, "enabled", false, "whether AirMedia is enabled")
	cmd.Flags().StringVar(&password, "password", "", "AirMedia password")
	return cmd
}

func printAirMedia(c *cli, out io.Writer, cfg *client.AirMediaConfig) error {
	return c.render(out, cfg, func(out io.Writer) error {
		w := newTabWriter(out)
		fmt.Fprintf(w, "Enabled:\t%v\n", cfg.Enabled)
		fmt.Fprintf(w, "Password set:\t%v\n", cfg.HasPassword)
		return w.Flush()
	})
}
