// Package cli implements the terminal client commands.
package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/banuni/haxor-mk2/internal/platform/config"
)

var (
	serverURL string
	username  string
	userID    string
	role      string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "haxor",
	Short: "Terminal client for the haxor realtime server",
	Long: `Terminal client for the haxor realtime server.

Connects to the server's websocket feed, renders the live chat and task
events, and lets you participate as a player or as the master.

Quick start:
  haxor chat --username nuni           # join the feed as a player
  haxor chat --username gm --role master
  haxor health                         # check the server is up`,
}

// Execute runs the client command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		config.Exitf("Error: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:3000", "Server base URL")
}

// wsURL derives the websocket endpoint from the HTTP base URL.
func wsURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		return "ws://" + base + "/ws"
	}
}
