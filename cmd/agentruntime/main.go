// Command agentruntime serves a conversational agent over HTTP, with
// persistent sessions, artifacts and long-term memory.
package main

import (
	"os"

	"github.com/hupe1980/agentruntime/cmd/agentruntime/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
