package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"chatzalo/pkg/models"
	"chatzalo/pkg/store"
	"chatzalo/pkg/utils"
)

func newConvIDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convid <email> <email>",
		Short: "Print the conversation id shared by two users",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := models.ConversationID(utils.NormalizeEmail(args[0]), utils.NormalizeEmail(args[1]))
			if key, _ := cmd.Flags().GetBool("key"); key {
				id = store.GenConversationKey(id)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().Bool("key", false, "print the storage key instead of the id")
	return cmd
}
