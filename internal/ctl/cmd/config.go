package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/strefethen/freebox-hub-go/internal/ctl/config"
)

// newConfigCmd manages hub contexts.
func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long: `The config command manages fbxctl contexts. Each context names a hub
address and the credentials obtained by pairing with it.`,
	}

	cmd.AddCommand(
		newConfigGetContextCmd(c),
		newConfigSetContextCmd(c),
		newConfigDeleteContextCmd(c),
		newConfigUseContextCmd(c),
		newConfigViewCmd(c),
	)
	return cmd
}

func newConfigGetContextCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get-context [name]",
		Short: "Display one or many contexts",
		Example: `  # List all contexts
  fbxctl config get-context

  # Show details for a specific context
  fbxctl config get-context home`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				names := make([]string, 0, len(c.cfg.Contexts))
				for name := range c.cfg.Contexts {
					names = append(names, name)
				}
				sort.Strings(names)

				w := newTabWriter(out)
				fmt.Fprintln(w, "CURRENT\tNAME\tSERVER")
				for _, name := range names {
					current := ""
					if name == c.cfg.CurrentContext {
						current = "*"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", current, name, c.cfg.Contexts[name].Server)
				}
				return w.Flush()
			}

			ctx, ok := c.cfg.Contexts[args[0]]
			if !ok {
				return fmt.Errorf("context %q not found", args[0])
			}
			fmt.Fprintf(out, "Name: %s\n", ctx.Name)
			fmt.Fprintf(out, "Server: %s\n", ctx.Server)
			fmt.Fprintf(out, "Paired: %v\n", ctx.Token != "")
			return nil
		},
	}
}

func newConfigSetContextCmd(c *cli) *cobra.Command {
	var server string
	var use bool

	cmd := &cobra.Command{
		Use:   "set-context NAME --server URL",
		Short: "Create or update a context",
		Example: `  # Add a context for the hub on the home server
  fbxctl config set-context home --server http://hub.lan:9000 --use`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ctx, ok := c.cfg.Contexts[name]
			if !ok {
				if server == "" {
					return fmt.Errorf("--server is required for a new context")
				}
				ctx = &config.Context{}
			}
			if server != "" {
				if server != ctx.Server {
					// Tokens are bound to the hub that issued them.
					ctx.Token = ""
					ctx.RefreshToken = ""
				}
				ctx.Server = server
			}
			c.cfg.AddContext(name, ctx)
			if use {
				c.cfg.CurrentContext = name
			}
			if err := c.cfg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Context %q saved\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "hub address, e.g. http://hub.lan:9000")
	cmd.Flags().BoolVar(&use, "use", false, "make this the current context")
	return cmd
}

func newConfigDeleteContextCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-context NAME",
		Short: "Delete a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.RemoveContext(args[0]); err != nil {
				return err
			}
			if err := c.cfg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Context %q deleted\n", args[0])
			return nil
		},
	}
}

func newConfigUseContextCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "use-context NAME",
		Short: "Set the current context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.SetCurrentContext(args[0]); err != nil {
				return err
			}
			if err := c.cfg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q\n", args[0])
			return nil
		},
	}
}

func newConfigViewCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Display the configuration with tokens redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			type contextView struct {
				Server string `json:"server"`
				Paired bool   `json:"paired"`
			}
			view := struct {
				Path           string                 `json:"path"`
				CurrentContext string                 `json:"current_context"`
				Contexts       map[string]contextView `json:"contexts"`
			}{
				Path:           c.cfg.Path(),
				CurrentContext: c.cfg.CurrentContext,
				Contexts:       make(map[string]contextView, len(c.cfg.Contexts)),
			}
			for name, ctx := range c.cfg.Contexts {
				view.Contexts[name] = contextView{Server: ctx.Server, Paired: ctx.Token != ""}
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}
