// Package cmd implements the fbxctl commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/strefethen/freebox-hub-go/internal/ctl/client"
	"github.com/strefethen/freebox-hub-go/internal/ctl/config"
)

// cli carries flag values and the loaded config through one invocation.
type cli struct {
	cfgFile string
	server  string
	token   string
	output  string
	debug   bool
	timeout time.Duration

	cfg    *config.Config
	logger zerolog.Logger
}

// NewRootCommand builds the fbxctl command tree.
func NewRootCommand() *cobra.Command {
	c := &cli{logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "fbxctl",
		Short: "Freebox hub control tool",
		Long: `fbxctl talks to a running freebox-hub. It pairs with the hub, drives the
Freebox authorization and session flow, casts media to the configured AirMedia
receiver and manages playback schedules.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if c.debug {
				level = zerolog.DebugLevel
			}
			c.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
				Level(level).With().Timestamp().Logger()

			if c.output != "table" && c.output != "json" {
				return fmt.Errorf("invalid output format %q, expected table or json", c.output)
			}

			cfg, err := config.Load(c.cfgFile)
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is $FBXCTL_CONFIG or $HOME/.fbxctl/config.yaml)")
	flags.StringVar(&c.server, "server", "", "hub address, overrides the current context")
	flags.StringVar(&c.token, "token", "", "hub access token, overrides the current context")
	flags.StringVarP(&c.output, "output", "o", "table", "output format (table or json)")
	flags.BoolVar(&c.debug, "debug", false, "log hub requests")
	flags.DurationVar(&c.timeout, "request-timeout", 30*time.Second, "timeout for each hub request")

	root.AddCommand(newConfigCmd(c))
	root.AddCommand(newLoginCmd(c))
	root.AddCommand(newFreeboxCmd(c))
	root.AddCommand(newScheduleCmd(c))
	root.AddCommand(newAuditCmd(c))
	root.AddCommand(newVersionCmd(c))
	return root
}

// Execute runs fbxctl with the process arguments.
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// target resolves the hub address and token from flags and the current
// context. Flags win.
func (c *cli) target() (server, token string, err error) {
	server, token = c.server, c.token
	if ctx, ctxErr := c.cfg.GetCurrentContext(); ctxErr == nil {
		if server == "" {
			server = ctx.Server
		}
		if token == "" {
			token = ctx.Token
		}
	} else if server == "" {
		return "", "", ctxErr
	}
	return server, token, nil
}

func (c *cli) client() (*client.Client, error) {
	server, token, err := c.target()
	if err != nil {
		return nil, err
	}
	return client.NewClient(server,
		client.WithToken(token),
		client.WithLogger(c.logger),
	)
}

// requestContext bounds one hub call with --request-timeout.
func (c *cli) requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), c.timeout)
}

// render writes v as JSON when -o json is set, otherwise calls table.
func (c *cli) render(out io.Writer, v any, table func(io.Writer) error) error {
	if c.output == "json" {
		return printJSON(out, v)
	}
	return table(out)
}

// explain adds a hint for hub errors a user can act on.
func explain(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == "AUTH_TOKEN_EXPIRED":
		return fmt.Errorf("%w\nhint: run 'fbxctl login refresh'", err)
	case apiErr.StatusCode == 401:
		return fmt.Errorf("%w\nhint: run 'fbxctl login start' to pair with the hub", err)
	case apiErr.Code == "FREEBOX_PRECONDITION":
		return fmt.Errorf("%w\nhint: check 'fbxctl freebox status'", err)
	}
	return err
}
