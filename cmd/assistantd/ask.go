package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/assistantd/internal/config"
)

func newAskCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "ask <text>",
		Short: "Send one request to the assistant and print the reply",
		Long: `Send one request through the intent router and print the reply.

Examples:
  assistantd ask "добавь задачу купить молоко"
  assistantd ask --session s-1 "что я просил запомнить?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Replies go to stdout; keep logs off it.
			a, err := loadApp(cmd.Context(), func(c *config.Config) { c.Logging.Output = "stderr" })
			if err != nil {
				return err
			}
			defer a.close()

			reply, err := a.chat.Send(cmd.Context(), strings.Join(args, " "), sessionID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID to continue")
	return cmd
}
