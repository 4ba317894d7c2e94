// Package cli implements chatctl, the operator tool for a chatzalo
// deployment: minting and checking session tokens, inspecting a stopped
// database and deriving conversation ids.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRoot builds the command tree.
func NewRoot(version, commit string) *cobra.Command {
	root := &cobra.Command{
		Use:   "chatctl",
		Short: "Operator tool for chatzalo",
		Long: `chatctl mints and verifies session tokens, inspects the key space of a
stopped chatzalo database and derives 1:1 conversation ids.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringP("config", "c", "", "server config file (reads security.jwt_secret)")

	root.AddCommand(newTokenCmd(), newVerifyCmd(), newInspectCmd(), newConvIDCmd())
	return root
}

// Execute runs chatctl with os.Args.
func Execute(version, commit string) {
	if err := NewRoot(version, commit).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
