package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pcm/internal/auth"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

func newTokenCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage bearer tokens",
	}

	var (
		userID string
		role   string
		ttl    time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for a user id and role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := e.config()
			if err != nil {
				return err
			}
			parsed, err := shared.ParseRole(role)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.JWTTTL
			}
			issuer, err := auth.NewIssuer(cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			token, err := issuer.Issue(shared.Actor{ID: userID, Role: parsed})
			if err != nil {
				return err
			}
			return e.printJSON(token)
		},
	}
	issue.Flags().StringVar(&userID, "user", "", "user id placed in the sub claim")
	issue.Flags().StringVar(&role, "role", string(shared.RoleDeveloper), "role claim")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_TTL)")
	_ = issue.MarkFlagRequired("user")

	cmd.AddCommand(issue)
	return cmd
}
