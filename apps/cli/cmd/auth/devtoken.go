package auth

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	platformauth "github.com/orbiterhq/orbiter-saas/platform/go/auth"
)

// Command groups auth helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Auth utilities (dev tokens)",
	}

	cmd.AddCommand(devTokenCommand())
	return cmd
}

func devTokenCommand() *cobra.Command {
	var (
		secret    string
		issuer    string
		userID    string
		email     string
		role      string
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Mint a signed operator JWT for dev/local use",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := platformauth.MintToken(secret, issuer, platformauth.Operator{
				ID:    userID,
				Email: email,
				Role:  role,
			}, expiresIn)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "HMAC signing secret (must match the API's JWT_SECRET)")
	cmd.Flags().StringVar(&issuer, "issuer", "orbiter-control-plane", "iss claim")
	cmd.Flags().StringVar(&userID, "user-id", "", "sub claim")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", platformauth.RoleOperator, "role claim (operator, admin)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", time.Hour, "token lifetime (e.g. 30m, 2h)")

	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
