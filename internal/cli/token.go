package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
)

func newTokenCommand(tokens tokenIssuer) *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Issue a development bearer token",
		Long:  `Signs an HS256 token with JWT_SECRET. Only accepted by servers running with AUTH_PROVIDER=jwt.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tokens == nil {
				return errors.New("token issuer not configured")
			}
			token, err := tokens.Issue(args[0], email, ttl)
			if err != nil {
				return err
			}
			cmd.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	return cmd
}
