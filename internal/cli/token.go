package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"quiz-attempt-service/internal/auth"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
)

// NewTokenCmd issues a development bearer token signed with auth.secret.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		subject string
		role    string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			token, err := issueToken(cfg, subject, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "participant or organizer id")
	cmd.Flags().StringVar(&role, "role", "participant", "participant|organizer")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func issueToken(cfg config.Config, subject, role string) (string, error) {
	parsed, err := domain.ParseRole(role)
	if err != nil {
		return "", err
	}
	svc := auth.NewService(cfg.Auth.Secret, config.Duration(cfg.Auth.TokenTTL, 0))
	return svc.Issue(domain.Principal{ID: subject, Role: parsed})
}
