// Package cli implements the agentruntime CLI commands.
package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "agentruntime",
	Short: "Serve a conversational agent with persistent sessions and memory",
	Long: "agentruntime hosts a model-backed agent behind an HTTP API. Conversations\n" +
		"are recorded as append-only session logs, completed sessions can be\n" +
		"distilled into searchable long-term memory, and both live in pluggable\n" +
		"in-memory or sqlite stores.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
}
