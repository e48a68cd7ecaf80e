// Package loom implements the workspace CLI commands.
package loom

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd creates the root loom command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loom",
		Short: "Loom workspace client",
		Long: `Loom is the client core of the Loom conversational workspace.

It keeps the local copies of your sessions, knowledge bases, agents and
settings, mirrors them to a persistent cache, reconciles with the remote
backend on sign-in, and drives streaming chat exchanges.

Examples:
  loom chat
  loom chat --server https://loom.example.com
  loom serve --listen 127.0.0.1:7171`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("server", "http://localhost:8000", "Backend base URL")
	cmd.PersistentFlags().Bool("debug", false, "Verbose development logging")
	cmd.PersistentFlags().String("cache", "", "Cache database path (default ~/.loom/cache.db)")
	cmd.PersistentFlags().String("token-file", "", "Bearer token file (default ~/.loom/token)")

	viper.SetEnvPrefix("LOOM")
	viper.AutomaticEnv()
	viper.BindPFlags(cmd.PersistentFlags()) //nolint:errcheck

	cmd.AddCommand(NewChatCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewSyncCmd())

	return cmd
}
