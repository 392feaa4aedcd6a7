package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/strefethen/freebox-hub-go/internal/ctl/config"
)

// newLoginCmd pairs fbxctl with a hub.
func newLoginCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Pair with a hub",
		Long: `Pairing is a two step exchange. 'login start' makes the hub print a
short-lived code in its log. 'login complete CODE' trades the code for a token
pair, which is stored in the current context.`,
	}
	cmd.AddCommand(newLoginStartCmd(c), newLoginCompleteCmd(c), newLoginRefreshCmd(c))
	return cmd
}

func newLoginStartCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Ask the hub for a pairing code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.requestContext(cmd)
			defer cancel()

			start, err := hub.StartPairing(ctx)
			if err != nil {
				return explain(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, start.PairingHint)
			fmt.Fprintf(out, "The code expires in %ds. Run 'fbxctl login complete CODE'.\n", start.ExpiresIn)
			return nil
		},
	}
}

func newLoginCompleteCmd(c *cli) *cobra.Command {
	var deviceName string
	var contextName string

	cmd := &cobra.Command{
		Use:   "complete CODE",
		Short: "Exchange a pairing code for hub credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _, err := c.target()
			if err != nil {
				return err
			}
			hub, err := c.client()
			if err != nil {
				return err
			}
			if deviceName == "" {
				deviceName, _ = os.Hostname()
			}
			if deviceName == "" {
				deviceName = "fbxctl"
			}

			ctx, cancel := c.requestContext(cmd)
			defer cancel()
			tokens, err := hub.CompletePairing(ctx, args[0], deviceName)
			if err != nil {
				return explain(err)
			}

			name := contextName
			if name == "" {
				name = c.cfg.CurrentContext
			}
			if name == "" {
				name = "default"
			}
			hubCtx, ok := c.cfg.Contexts[name]
			if !ok {
				hubCtx = &config.Context{}
			}
			hubCtx.Server = server
			hubCtx.Token = tokens.AccessToken
			hubCtx.RefreshToken = tokens.RefreshToken
			c.cfg.AddContext(name, hubCtx)
			if err := c.cfg.Save(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Paired as %q, credentials stored in context %q\n", deviceName, name)
			return nil
		},
	}
	cmd.Flags().StringVar(&deviceName, "device-name", "", "name the hub records for this client (default is the hostname)")
	cmd.Flags().StringVar(&contextName, "context", "", "context to store credentials in (default is the current context)")
	return cmd
}

func newLoginRefreshCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renew the access token of the current context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hubCtx, err := c.cfg.GetCurrentContext()
			if err != nil {
				return err
			}
			if hubCtx.RefreshToken == "" {
				return errors.New("current context has no refresh token, run 'fbxctl login start'")
			}
			hub, err := c.client()
			if err != nil {
				return err
			}

			ctx, cancel := c.requestContext(cmd)
			defer cancel()
			tokens, err := hub.Refresh(ctx, hubCtx.RefreshToken)
			if err != nil {
				return explain(err)
			}

			hubCtx.Token = tokens.AccessToken
			if err := c.cfg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Access token renewed, valid for %ds\n", tokens.ExpiresInSec)
			return nil
		},
	}
}
