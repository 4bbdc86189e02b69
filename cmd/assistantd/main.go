// Assistantd is a personal assistant daemon: chat, tasks, reminders and
// semantic memory behind an intent router.
//
// Usage:
//
//	# Start the HTTP API and reminder scheduler
//	assistantd serve --config assistant.yaml
//
//	# One-shot request
//	assistantd ask "напомни позвонить маме завтра в 18:00"
//
//	# MCP server on stdio
//	assistantd mcp
//
// Configuration is read from an optional YAML file and ASSISTANT_* environment
// variables. See internal/config for details.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "assistantd",
		Short: "Personal assistant daemon",
		Long: `assistantd routes natural-language requests to task, reminder,
memory and question-answering capabilities.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("ASSISTANT_CONFIG"), "path to YAML config file")

	root.AddCommand(newServeCmd(), newAskCmd(), newMCPCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "assistantd %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", gitCommit)
			fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", buildDate)
		},
	}
}
