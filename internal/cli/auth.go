package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/colthorp/nutrisync-cli-go/internal/app"
	"github.com/colthorp/nutrisync-cli-go/internal/core"
)

func newLoginCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "login [token]",
		Short: "Store the API token (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read token: %w", err)
				}
				token = line
			}
			token = strings.TrimSpace(token)
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Credentials.SaveToken(ctx, token); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Token saved (%s store).\n", g.cfg.Credentials.Backend)
				return nil
			})
		},
	}
}

func newLogoutCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				_, err := a.Credentials.GetToken(ctx)
				if errors.Is(err, core.ErrNoToken) {
					fmt.Fprintln(cmd.OutOrStdout(), "No token stored.")
					return nil
				}
				if err := a.Credentials.DeleteToken(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Token removed.")
				return nil
			})
		},
	}
}
