// Command jeeves runs the conversational assistant on Discord or Feishu,
// or serves its tools over MCP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "jeeves",
		Short: "A gentleman's personal gentleman for your group chats",
		Long: `jeeves answers group and private conversations on Discord or Feishu,
delivers reminders, comments when the chat goes quiet and asks study questions.

Examples:
  jeeves serve
  jeeves serve --config jeeves.yaml
  jeeves mcp`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newMCPCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a config file (yaml, toml or json)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
