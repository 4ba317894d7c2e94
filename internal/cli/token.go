package cli

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"time"

	"github.com/spf13/cobra"

	"chatzalo/pkg/auth"
	"chatzalo/pkg/store"
	"chatzalo/pkg/utils"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <email>",
		Short: "Mint a session token for a user",
		Long: `Mint an HS256 session token. With --db the user id is read from the
(stopped) database; otherwise --user-id is used, defaulting to the email.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := utils.NormalizeEmail(args[0])
			if _, err := mail.ParseAddress(email); err != nil {
				return fmt.Errorf("invalid email %q", args[0])
			}
			secret, err := resolveSecret(cmd)
			if err != nil {
				return err
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			userID, _ := cmd.Flags().GetString("user-id")
			if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
				if userID, err = lookupUserID(dbPath, email); err != nil {
					return err
				}
			}
			if userID == "" {
				userID = email
			}

			token, exp, err := auth.NewTokens(secret, ttl, nil).Issue(userID, email)
			if err != nil {
				return err
			}
			if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
				return printYAML(cmd, map[string]any{
					"token":      token,
					"user_id":    userID,
					"email":      email,
					"expires_at": exp.UTC().Format(time.RFC3339),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("secret", "", "HMAC signing secret")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().String("user-id", "", "subject claim when --db is not given")
	cmd.Flags().String("db", "", "database directory to resolve the user id from")
	cmd.Flags().Bool("yaml", false, "print token details as YAML")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <token>",
		Short: "Check a session token's signature and expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := resolveSecret(cmd)
			if err != nil {
				return err
			}
			id, err := auth.NewTokens(secret, 0, nil).Verify(args[0])
			if err != nil {
				return err
			}
			return printYAML(cmd, map[string]string{"user_id": id.UserID, "email": id.Email})
		},
	}
	cmd.Flags().String("secret", "", "HMAC signing secret")
	return cmd
}

func lookupUserID(dbPath, email string) (string, error) {
	st, err := openExisting(dbPath)
	if err != nil {
		return "", err
	}
	defer st.Close()
	u, err := st.GetUser(email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("user %s not found in %s", email, dbPath)
		}
		return "", err
	}
	return u.ID, nil
}

// openExisting opens the pebble directory without creating a new one.
func openExisting(dbPath string) (*store.Store, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database %s: %w", dbPath, err)
	}
	return store.Open(dbPath, store.Options{})
}
