package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/assistantd/internal/config"
	"github.com/fyrsmithlabs/assistantd/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the assistant as MCP tools on stdio",
		Long: `Serve ask, remember, recall, task and reminder tools over the Model
Context Protocol on stdin/stdout. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), func(c *config.Config) {
				c.Logging.Output = "stderr"
				c.Scheduler.Enabled = false
			})
			if err != nil {
				return err
			}
			defer a.close()

			srv, err := mcp.NewServer(&mcp.Config{
				Name:    "assistantd",
				Version: version,
				Logger:  a.logger.Underlying().Named("mcp"),
			}, mcp.Deps{
				Dispatcher: a.dispatcher,
				Memories:   a.memories,
				Tasks:      a.db.Tasks(),
				Reminders:  a.db.Reminders(),
				Scrubber:   a.scrubber,
			})
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
}
