package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/colthorp/nutrisync-cli-go/internal/app"
	"github.com/colthorp/nutrisync-cli-go/internal/models"
	"github.com/colthorp/nutrisync-cli-go/internal/output"
)

const defaultConversation = "default"

func newChatCmd(g *globals) *cobra.Command {
	var conv string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the nutrition assistant",
	}
	cmd.PersistentFlags().StringVarP(&conv, "conversation", "c", defaultConversation, "Conversation id")

	send := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send a message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.Join(args, " ")
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if _, err := a.Chat.Messages(ctx, conv); err != nil {
					g.log.Warn().Err(err).Str("conversation", conv).Msg("could not load thread")
				}
				m, err := a.Chat.SendMessage(ctx, conv, content)
				if err != nil {
					return err
				}
				g.progress("Sending…")
				res, err := m.Wait(ctx)
				if err != nil {
					return err
				}
				if g.raw {
					return output.PrintJSON(cmd.OutOrStdout(), res)
				}
				if res.AssistantMessage != nil {
					output.PrintMessages(cmd.OutOrStdout(), []models.Message{*res.AssistantMessage})
				}
				return nil
			})
		},
	}

	history := &cobra.Command{
		Use:   "history",
		Short: "Print the conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				msgs, err := a.Chat.Messages(ctx, conv)
				if err != nil {
					return err
				}
				if g.raw {
					return output.StreamJSONSlice(cmd.OutOrStdout(), msgs)
				}
				output.PrintMessages(cmd.OutOrStdout(), msgs)
				return nil
			})
		},
	}

	cmd.AddCommand(send, history)
	return cmd
}
